package detectors

import (
	"context"
	"time"

	"github.com/quoram/sentryflow/pkg/blackboard"
	"github.com/quoram/sentryflow/pkg/reputation"
)

// ReputationDetector folds the current request's other-detector signals
// into the decayed UA/IP reputation store and reports the resulting
// scores back as both signals (readable by wave-4 detectors; the Markov
// detector runs in wave 2, before this one) and a contribution of its own.
type ReputationDetector struct {
	Base
	Store *reputation.Store
	Key   []byte
}

func NewReputationDetector(enabled bool, timeout time.Duration, store *reputation.Store, key []byte) *ReputationDetector {
	return &ReputationDetector{
		Base: Base{
			DetectorName: "reputation",
			Wave:         3,
			Enabled:      enabled,
			Optional:     false,
			ExecTimeoutD: timeout,
		},
		Store: store,
		Key:   key,
	}
}

func (d *ReputationDetector) Contribute(ctx context.Context, req *blackboard.RequestSnapshot, signals map[blackboard.SignalKey]blackboard.SignalValue) (blackboard.ContributeResult, error) {
	select {
	case <-ctx.Done():
		return blackboard.ContributeResult{}, ctx.Err()
	default:
	}

	var out blackboard.ContributeResult

	normUA := reputation.NormalizeUA(req.UserAgent)
	uaID := reputation.HashPatternID(d.Key, reputation.PatternUserAgent, normUA)
	normIP, sentinel := reputation.NormalizeIP(req.ClientIP)
	ipID := reputation.HashPatternID(d.Key, reputation.PatternIPPrefix, normIP)

	// Evidence already produced by earlier waves' detectors (UA, IP,
	// behavioral, Markov) informs how strongly this single request should
	// move the running reputation score.
	evidence := priorEvidenceSignal(signals)

	uaRep := d.Store.ApplyEvidence(uaID, reputation.PatternUserAgent, evidence, 0.5)
	out.Signals = append(out.Signals, signal(blackboard.SignalRepUAScore, blackboard.NumberValue(uaRep.BotScore)))

	var ipRep reputation.PatternReputation
	if !sentinel {
		ipRep = d.Store.ApplyEvidence(ipID, reputation.PatternIPPrefix, evidence, 0.5)
		out.Signals = append(out.Signals, signal(blackboard.SignalRepIPScore, blackboard.NumberValue(ipRep.BotScore)))
	}

	if uaRep.State == reputation.StateWhitelisted {
		c := contribution(d.Name(), blackboard.CategoryReputation, -0.9, 1.5, "user-agent pattern has a long whitelisted history", d.Priority())
		c.Whitelisted = true
		out.Contributions = append(out.Contributions, c)
		return out, nil
	}

	delta := (uaRep.BotScore-0.5)*2*0.6 + (ipRep.BotScore-0.5)*2*0.4
	weight := 0.4 + 0.3*clampMin(uaRep.Support/20, 1)
	if delta > 1 {
		delta = 1
	} else if delta < -1 {
		delta = -1
	}

	reason := "accumulated pattern reputation for this UA/IP pair"
	if uaRep.State == reputation.StateConfirmed {
		reason = "user-agent pattern has a confirmed bot history"
	}

	out.Contributions = append(out.Contributions, contribution(
		d.Name(), blackboard.CategoryReputation, delta, weight, reason, d.Priority(),
	))
	return out, nil
}

// priorEvidenceSignal distills the signals already on the blackboard into a
// single [-1,1] evidence value for this request, used to update the
// reputation store. It weighs the bot-positive signals most predictive of
// automation over low-signal ones like header ordering.
func priorEvidenceSignal(signals map[blackboard.SignalKey]blackboard.SignalValue) float64 {
	score := 0.0
	n := 0.0
	if v, ok := signals[blackboard.SignalUAIsBot]; ok && v.Kind == blackboard.KindBool {
		if v.Bool {
			score += 1
		} else {
			score -= 0.3
		}
		n++
	}
	if v, ok := signals[blackboard.SignalIPIsDatacenter]; ok && v.Kind == blackboard.KindBool && v.Bool {
		score += 0.5
		n++
	}
	if v, ok := signals[blackboard.SignalBehaviorTimingCV]; ok && v.Kind == blackboard.KindNumber {
		score += (1 - v.Number) // low CV (regular timing) -> bot-positive
		n++
	}
	if v, ok := signals[blackboard.SignalMarkovHumanDrift]; ok && v.Kind == blackboard.KindNumber {
		score += v.Number
		n++
	}
	if n == 0 {
		return 0
	}
	avg := score / n
	if avg > 1 {
		avg = 1
	} else if avg < -1 {
		avg = -1
	}
	return avg
}

func clampMin(v, max float64) float64 {
	if v > max {
		return max
	}
	return v
}
