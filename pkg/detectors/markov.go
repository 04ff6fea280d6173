package detectors

import (
	"context"
	"sync"
	"time"

	"github.com/quoram/sentryflow/pkg/blackboard"
	"github.com/quoram/sentryflow/pkg/markov"
)

// MarkovDetector scores path-transition drift for the request's signature:
// divergence from its own historical transition matrix, divergence from
// the population-wide human baseline, loop behavior, and sequence
// surprise. It needs two consecutive requests from the same signature to
// say anything, so the first request in a session always reads as
// "insufficient history" rather than guessing.
type MarkovDetector struct {
	Base
	Tracker *markov.Tracker

	mu       sync.Mutex
	lastPath map[string]string
}

func NewMarkovDetector(enabled bool, timeout time.Duration, tracker *markov.Tracker) *MarkovDetector {
	return &MarkovDetector{
		Base: Base{
			DetectorName: "markov",
			Wave:         2,
			Enabled:      enabled,
			Optional:     true,
			ExecTimeoutD: timeout,
		},
		Tracker:  tracker,
		lastPath: make(map[string]string),
	}
}

func (d *MarkovDetector) Contribute(ctx context.Context, req *blackboard.RequestSnapshot, signals map[blackboard.SignalKey]blackboard.SignalValue) (blackboard.ContributeResult, error) {
	select {
	case <-ctx.Done():
		return blackboard.ContributeResult{}, ctx.Err()
	default:
	}

	var out blackboard.ContributeResult
	sigID := RequestSignatureID(req)
	class := d.Tracker.ClassifyPath(req.NormalizedPath)

	// rep.ua_score is published by the reputation detector, which runs in
	// wave 3, after this wave-2 detector, so it is not on the board here:
	// isHuman stays false and this call site never feeds the global human
	// baseline.
	isHuman := false
	if v, ok := signals[blackboard.SignalRepUAScore]; ok && v.Kind == blackboard.KindNumber {
		isHuman = v.Number < 0.3
	}

	d.mu.Lock()
	prev, hadPrev := d.lastPath[sigID]
	d.lastPath[sigID] = class
	d.mu.Unlock()

	now := time.Now()
	if hadPrev {
		d.Tracker.RecordTransition(sigID, prev, class, now, isHuman)
	}

	if !hadPrev {
		return out, nil
	}

	drift := d.Tracker.Drift(sigID, now)
	out.Signals = append(out.Signals,
		signal(blackboard.SignalMarkovSelfDrift, blackboard.NumberValue(drift.SelfDrift)),
		signal(blackboard.SignalMarkovHumanDrift, blackboard.NumberValue(drift.HumanDrift)),
		signal(blackboard.SignalMarkovLoopScore, blackboard.NumberValue(drift.LoopScore)),
		signal(blackboard.SignalMarkovSequenceSurprise, blackboard.NumberValue(drift.SequenceSurprise)),
		signal(blackboard.SignalMarkovNovelty, blackboard.NumberValue(drift.TransitionNovelty)),
		signal(blackboard.SignalMarkovEntropyDelta, blackboard.NumberValue(drift.EntropyDelta)),
	)

	var delta, weight float64
	var reasons []string

	if drift.HumanDrift > 0.6 {
		delta += 0.5
		weight += 1.0
		reasons = append(reasons, "path-transition pattern diverges sharply from human baseline")
	}
	if drift.LoopScore > 0.5 {
		delta += 0.4
		weight += 0.8
		reasons = append(reasons, "repetitive cyclical navigation pattern")
	}
	if drift.TransitionNovelty > 0.8 && drift.SequenceSurprise > 3 {
		delta += 0.3
		weight += 0.6
		reasons = append(reasons, "highly novel, low-probability path transition")
	}
	if drift.HumanDrift < 0.2 && drift.LoopScore < 0.1 {
		delta -= 0.2
		weight += 0.4
		reasons = append(reasons, "navigation pattern consistent with human baseline")
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
