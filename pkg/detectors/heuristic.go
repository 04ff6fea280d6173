package detectors

import (
	"context"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/quoram/sentryflow/pkg/blackboard"
)

// HeuristicDetector runs a sandboxed scoring script against the current
// blackboard signals, the way system/tee's goja-backed script engine runs
// user scripts in isolation. Each invocation gets a fresh goja.Runtime so
// one request's script state can never leak into another's.
type HeuristicDetector struct {
	Base
	Script string
}

// DefaultHeuristicScript is a small illustrative scoring function operators
// can override via config without redeploying the binary; it reads the
// signals object and returns {delta, weight, reason}.
const DefaultHeuristicScript = `
function score(signals) {
	var delta = 0, weight = 0, reasons = [];
	if (signals["ua.is_bot"] === true) {
		delta += 0.2; weight += 0.3; reasons.push("heuristic: ua flagged bot-positive elsewhere");
	}
	if (signals["behavior.rate"] > 10) {
		delta += 0.3; weight += 0.4; reasons.push("heuristic: extreme request rate");
	}
	return {delta: delta, weight: weight, reason: reasons.join("; ")};
}
`

func NewHeuristicDetector(enabled bool, timeout time.Duration, script string) *HeuristicDetector {
	if script == "" {
		script = DefaultHeuristicScript
	}
	return &HeuristicDetector{
		Base: Base{
			DetectorName: "heuristic",
			Wave:         4,
			Enabled:      enabled,
			Optional:     true,
			ExecTimeoutD: timeout,
		},
		Script: script,
	}
}

func (d *HeuristicDetector) Contribute(ctx context.Context, req *blackboard.RequestSnapshot, signals map[blackboard.SignalKey]blackboard.SignalValue) (blackboard.ContributeResult, error) {
	select {
	case <-ctx.Done():
		return blackboard.ContributeResult{}, ctx.Err()
	default:
	}

	var out blackboard.ContributeResult

	vm := goja.New()
	plain := make(map[string]interface{}, len(signals))
	for k, v := range signals {
		switch v.Kind {
		case blackboard.KindBool:
			plain[string(k)] = v.Bool
		case blackboard.KindNumber:
			plain[string(k)] = v.Number
		case blackboard.KindString:
			plain[string(k)] = v.String
		}
	}

	if _, err := vm.RunString(d.Script); err != nil {
		return out, fmt.Errorf("heuristic: compile script: %w", err)
	}
	scoreFn, ok := goja.AssertFunction(vm.Get("score"))
	if !ok {
		return out, fmt.Errorf("heuristic: script does not define a score function")
	}

	result, err := scoreFn(goja.Undefined(), vm.ToValue(plain))
	if err != nil {
		return out, fmt.Errorf("heuristic: script execution failed: %w", err)
	}

	exported, ok := result.Export().(map[string]interface{})
	if !ok {
		return out, nil
	}

	delta, _ := exported["delta"].(float64)
	weight, _ := exported["weight"].(float64)
	reason, _ := exported["reason"].(string)
	if weight <= 0 {
		return out, nil
	}
	if delta > 1 {
		delta = 1
	} else if delta < -1 {
		delta = -1
	}
	if reason == "" {
		reason = "heuristic script flagged this request"
	}

	out.Contributions = append(out.Contributions, contribution(
		d.Name(), blackboard.CategoryHeuristic, delta, weight, reason, d.Priority(),
	))
	return out, nil
}
