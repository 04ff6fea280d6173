package detectors

import (
	"context"
	"time"

	"github.com/quoram/sentryflow/pkg/behavior"
	"github.com/quoram/sentryflow/pkg/blackboard"
)

// BehavioralDetector scores request cadence and path diversity against the
// per-signature rolling window kept by pkg/behavior. It runs in wave 2,
// after identity-level signals (UA/IP/TLS/header) have had a chance to
// establish a signature worth tracking.
type BehavioralDetector struct {
	Base
	Store    *behavior.Store
	MinSample int
}

func NewBehavioralDetector(enabled bool, timeout time.Duration, store *behavior.Store) *BehavioralDetector {
	return &BehavioralDetector{
		Base: Base{
			DetectorName: "behavioral",
			Wave:         2,
			Enabled:      enabled,
			Optional:     false,
			ExecTimeoutD: timeout,
		},
		Store:     store,
		MinSample: 5,
	}
}

func (d *BehavioralDetector) Contribute(ctx context.Context, req *blackboard.RequestSnapshot, _ map[blackboard.SignalKey]blackboard.SignalValue) (blackboard.ContributeResult, error) {
	select {
	case <-ctx.Done():
		return blackboard.ContributeResult{}, ctx.Err()
	default:
	}

	var out blackboard.ContributeResult
	sigID := RequestSignatureID(req)
	d.Store.Record(sigID, req.PathClass, time.Now())
	summary := d.Store.Summarize(sigID)

	out.Signals = append(out.Signals,
		signal(blackboard.SignalBehaviorRate, blackboard.NumberValue(summary.RequestRate)),
		signal(blackboard.SignalBehaviorPathEnt, blackboard.NumberValue(summary.PathEntropy)),
		signal(blackboard.SignalBehaviorTimingCV, blackboard.NumberValue(1-summary.TimingRegularity)),
	)

	if summary.SampleSize < d.MinSample {
		return out, nil
	}

	var delta, weight float64
	var reasons []string

	if summary.RequestRate > 5 {
		delta += 0.5
		weight += 1.0
		reasons = append(reasons, "sustained request rate above human browsing cadence")
	}
	if summary.PathEntropy < 0.15 && summary.SampleSize >= 10 {
		delta += 0.4
		weight += 0.8
		reasons = append(reasons, "low path diversity, repetitive crawl pattern")
	}
	if summary.TimingRegularity > 0.9 {
		delta += 0.6
		weight += 1.1
		reasons = append(reasons, "mechanically regular inter-request timing")
	}
	if summary.RequestRate < 0.2 && summary.PathEntropy > 0.6 && summary.TimingRegularity < 0.3 {
		delta -= 0.3
		weight += 0.6
		reasons = append(reasons, "browsing cadence consistent with a human session")
	}

	if weight == 0 {
		return out, nil
	}
	if delta > 1 {
		delta = 1
	} else if delta < -1 {
		delta = -1
	}

	reason := reasons[0]
	for _, r := range reasons[1:] {
		reason += "; " + r
	}

	out.Contributions = append(out.Contributions, contribution(
		d.Name(), blackboard.CategoryBehavioral, delta, weight, reason, d.Priority(),
	))
	return out, nil
}
