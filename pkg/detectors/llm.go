package detectors

import (
	"context"
	"errors"
	"time"

	"github.com/quoram/sentryflow/pkg/blackboard"
	"github.com/quoram/sentryflow/infrastructure/resilience"
)

// LLMClient is the external collaborator the LLM detector consults for
// genuinely ambiguous sessions. Concrete implementations live outside this
// module (a hosted model endpoint); tests substitute a stub.
type LLMClient interface {
	ClassifySession(ctx context.Context, summary SessionSummary) (botProbability float64, reason string, err error)
}

// SessionSummary is the minimal, PII-scrubbed digest handed to the LLM
// client: already-derived features, never raw headers or IPs.
type SessionSummary struct {
	PathClass        string
	UAFamily         string
	RequestRate      float64
	PathEntropy      float64
	TimingRegularity float64
	InconsistencyScore float64
}

// LLMDetector is the last-resort, most expensive detector in the catalog.
// It only runs when triggered (enough prior-wave evidence and a running
// risk of at least 0.3) and is
// protected by a circuit breaker so a degraded upstream model never adds
// latency to every request once it starts failing.
type LLMDetector struct {
	Base
	Client  LLMClient
	Breaker *resilience.CircuitBreaker
}

func NewLLMDetector(enabled bool, timeout time.Duration, client LLMClient, breaker *resilience.CircuitBreaker) *LLMDetector {
	return &LLMDetector{
		Base: Base{
			DetectorName: "llm",
			Wave:         4,
			Enabled:      enabled,
			Optional:     true,
			ExecTimeoutD: timeout,
			// Runs only once at least five detectors have completed and the
			// running risk has reached 0.3, so confidently low verdicts never
			// pay for the call; there is no upper bound, so high-risk
			// requests reach it too.
			Triggers: []blackboard.Trigger{
				blackboard.DetectorCount{Min: 5},
				blackboard.RiskThreshold{MinScore: 0.3},
			},
		},
		Client:  client,
		Breaker: breaker,
	}
}

func (d *LLMDetector) Contribute(ctx context.Context, req *blackboard.RequestSnapshot, signals map[blackboard.SignalKey]blackboard.SignalValue) (blackboard.ContributeResult, error) {
	select {
	case <-ctx.Done():
		return blackboard.ContributeResult{}, ctx.Err()
	default:
	}

	var out blackboard.ContributeResult
	summary := SessionSummary{
		PathClass: req.PathClass,
	}
	if v, ok := signals[blackboard.SignalBehaviorRate]; ok && v.Kind == blackboard.KindNumber {
		summary.RequestRate = v.Number
	}
	if v, ok := signals[blackboard.SignalBehaviorPathEnt]; ok && v.Kind == blackboard.KindNumber {
		summary.PathEntropy = v.Number
	}
	if v, ok := signals[blackboard.SignalBehaviorTimingCV]; ok && v.Kind == blackboard.KindNumber {
		summary.TimingRegularity = 1 - v.Number
	}
	if v, ok := signals[blackboard.SignalInconsistencyScore]; ok && v.Kind == blackboard.KindNumber {
		summary.InconsistencyScore = v.Number
	}

	var botProb float64
	var reason string
	err := d.Breaker.Execute(ctx, func() error {
		var callErr error
		botProb, reason, callErr = d.Client.ClassifySession(ctx, summary)
		return callErr
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
			// Degraded upstream: contribute nothing rather than guess or
			// block the request on a dependency that has already tripped.
			return out, nil
		}
		return out, err
	}

	delta := botProb*2 - 1
	if delta > 1 {
		delta = 1
	} else if delta < -1 {
		delta = -1
	}
	out.Contributions = append(out.Contributions, contribution(
		d.Name(), blackboard.CategoryML, delta, 1.3, reason, d.Priority(),
	))
	return out, nil
}
