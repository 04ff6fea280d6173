// Package aggregator collapses a request's contribution ledger into the
// final AggregatedEvidence verdict, per SPEC_FULL §4.6. It is a pure
// function of the contribution multiset (and, for primary-bot tie-breaks
// only, their order) — no I/O, no shared state.
package aggregator

import (
	"math"
	"sort"

	"github.com/quoram/sentryflow/pkg/blackboard"
)

// Options configures the confidence scale τ.
type Options struct {
	ConfidenceScale float64
}

func DefaultOptions() Options {
	return Options{ConfidenceScale: 3.0}
}

// CategoryBreakdown is one category's fused score, total weight, and the
// distinct reasons that fed it.
type CategoryBreakdown struct {
	Category        blackboard.Category
	Score           float64 // rescaled to [0,1]
	TotalWeight     float64
	ContributionCount int
	Reasons         []string
}

// AggregatedEvidence is the final per-request verdict.
type AggregatedEvidence struct {
	BotProbability float64
	Confidence     float64
	RiskBand       blackboard.RiskBand

	CategoryBreakdown map[blackboard.Category]CategoryBreakdown

	ContributingDetectors []string

	PrimaryBotName string
	PrimaryBotType blackboard.BotType

	Ledger []blackboard.DetectionContribution
}

// Aggregate implements the §4.6 algorithm over an ordered contribution
// ledger (ordered by completion, as the blackboard stores it).
func Aggregate(ledger []blackboard.DetectionContribution, opts Options) AggregatedEvidence {
	if opts.ConfidenceScale <= 0 {
		opts.ConfidenceScale = 3.0
	}

	if len(ledger) == 0 {
		return AggregatedEvidence{
			BotProbability:    0.5,
			Confidence:        0,
			RiskBand:          blackboard.RiskUnknown,
			CategoryBreakdown: map[blackboard.Category]CategoryBreakdown{},
		}
	}

	type acc struct {
		weightedDeltaSum float64
		weightSum        float64
		count            int
		reasons          []string
		reasonSeen       map[string]struct{}
	}
	byCategory := make(map[blackboard.Category]*acc)
	detectorSeen := make(map[string]struct{})

	var categoryOrder []blackboard.Category
	for _, c := range ledger {
		a, ok := byCategory[c.Category]
		if !ok {
			a = &acc{reasonSeen: map[string]struct{}{}}
			byCategory[c.Category] = a
			categoryOrder = append(categoryOrder, c.Category)
		}
		a.weightedDeltaSum += c.Weight * c.ConfidenceDelta
		a.weightSum += c.Weight
		a.count++
		if c.Reason != "" {
			if _, seen := a.reasonSeen[c.Reason]; !seen {
				a.reasonSeen[c.Reason] = struct{}{}
				a.reasons = append(a.reasons, c.Reason)
			}
		}
		detectorSeen[c.DetectorName] = struct{}{}
	}

	breakdown := make(map[blackboard.Category]CategoryBreakdown, len(byCategory))
	var overallWeighted, overallWeight float64
	for _, cat := range categoryOrder {
		a := byCategory[cat]
		var score float64
		if a.weightSum > 0 {
			meanDelta := a.weightedDeltaSum / a.weightSum
			score = (meanDelta + 1) / 2
		} else {
			score = 0.5
		}
		breakdown[cat] = CategoryBreakdown{
			Category:          cat,
			Score:             score,
			TotalWeight:       a.weightSum,
			ContributionCount: a.count,
			Reasons:           a.reasons,
		}
		overallWeighted += a.weightSum * score
		overallWeight += a.weightSum
	}

	var p float64
	if overallWeight > 0 {
		p = overallWeighted / overallWeight
	} else {
		p = 0.5
	}
	p = clamp01(p)

	confidence := 1 - math.Exp(-overallWeight/opts.ConfidenceScale)

	riskBand := blackboard.RiskBandFromProbability(p)

	detectors := make([]string, 0, len(detectorSeen))
	for d := range detectorSeen {
		detectors = append(detectors, d)
	}
	sort.Strings(detectors)

	ev := AggregatedEvidence{
		BotProbability:        p,
		Confidence:            clamp01(confidence),
		RiskBand:              riskBand,
		CategoryBreakdown:     breakdown,
		ContributingDetectors: detectors,
		Ledger:                ledger,
	}

	applyPrimaryBot(&ev, ledger)
	return ev
}

// applyPrimaryBot picks the contribution with the highest weight*|delta|
// that names a bot, and applies the whitelist override: when that primary
// contribution is whitelisted, the primary bot type becomes VerifiedBot and
// the risk band is forced to RiskVeryLow regardless of the fused score.
// Ties are broken by ledger order (priority asc, name asc, as appended by
// the orchestrator), matching the documented tie-break.
func applyPrimaryBot(ev *AggregatedEvidence, ledger []blackboard.DetectionContribution) {
	bestIdx := -1
	bestMagnitude := -1.0
	for i, c := range ledger {
		if c.BotName == "" {
			continue
		}
		magnitude := c.Weight * math.Abs(c.ConfidenceDelta)
		if magnitude > bestMagnitude {
			bestMagnitude = magnitude
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return
	}
	best := ledger[bestIdx]
	ev.PrimaryBotName = best.BotName
	ev.PrimaryBotType = best.BotType

	if best.Whitelisted {
		ev.PrimaryBotType = blackboard.BotTypeVerifiedBot
		ev.RiskBand = blackboard.RiskVeryLow
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
