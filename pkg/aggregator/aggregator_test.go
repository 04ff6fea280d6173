package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quoram/sentryflow/pkg/blackboard"
)

func TestAggregateEmptyLedger(t *testing.T) {
	ev := Aggregate(nil, DefaultOptions())
	assert.Equal(t, 0.5, ev.BotProbability)
	assert.Equal(t, blackboard.RiskUnknown, ev.RiskBand)
	assert.Empty(t, ev.PrimaryBotName)
}

func TestAggregateSingleFullConfidenceContribution(t *testing.T) {
	ledger := []blackboard.DetectionContribution{
		{DetectorName: "useragent", Category: blackboard.CategoryUserAgent, ConfidenceDelta: 1, Weight: 1, Reason: "curl UA"},
	}
	ev := Aggregate(ledger, DefaultOptions())
	assert.InDelta(t, 1.0, ev.BotProbability, 1e-9)
	assert.Equal(t, blackboard.RiskVeryHigh, ev.RiskBand)
}

func TestAggregateOppositeContributionsCancel(t *testing.T) {
	ledger := []blackboard.DetectionContribution{
		{DetectorName: "a", Category: blackboard.CategoryIP, ConfidenceDelta: 1, Weight: 1},
		{DetectorName: "b", Category: blackboard.CategoryIP, ConfidenceDelta: -1, Weight: 1},
	}
	ev := Aggregate(ledger, DefaultOptions())
	assert.InDelta(t, 0.5, ev.BotProbability, 1e-9)
}

func TestZeroWeightContributionDoesNotMoveProbability(t *testing.T) {
	base := []blackboard.DetectionContribution{
		{DetectorName: "a", Category: blackboard.CategoryIP, ConfidenceDelta: 0.8, Weight: 1},
	}
	withZero := append([]blackboard.DetectionContribution{}, base...)
	withZero = append(withZero, blackboard.DetectionContribution{
		DetectorName: "noise", Category: blackboard.CategoryHeuristic, ConfidenceDelta: -1, Weight: 0,
	})

	evBase := Aggregate(base, DefaultOptions())
	evZero := Aggregate(withZero, DefaultOptions())
	assert.Equal(t, evBase.BotProbability, evZero.BotProbability)
	assert.Equal(t, evBase.RiskBand, evZero.RiskBand)
}

func TestWhitelistedBotForcesVeryLowRiskRegardlessOfScore(t *testing.T) {
	ledger := []blackboard.DetectionContribution{
		{DetectorName: "ip", Category: blackboard.CategoryIP, ConfidenceDelta: 0.9, Weight: 2},
		{
			DetectorName: "useragent", Category: blackboard.CategoryUserAgent,
			ConfidenceDelta: -1, Weight: 3, BotName: "Google Search", BotType: blackboard.BotTypeVerifiedBot,
			Whitelisted: true,
		},
	}
	ev := Aggregate(ledger, DefaultOptions())
	assert.Equal(t, blackboard.RiskVeryLow, ev.RiskBand)
	assert.Equal(t, blackboard.BotTypeVerifiedBot, ev.PrimaryBotType)
	assert.Equal(t, "Google Search", ev.PrimaryBotName)
}

func TestBotProbabilityAlwaysInRange(t *testing.T) {
	ledgers := [][]blackboard.DetectionContribution{
		nil,
		{{ConfidenceDelta: 1, Weight: 100}},
		{{ConfidenceDelta: -1, Weight: 100}},
		{{ConfidenceDelta: 0.3, Weight: 1}, {ConfidenceDelta: -0.9, Weight: 5}},
	}
	for _, l := range ledgers {
		ev := Aggregate(l, DefaultOptions())
		assert.GreaterOrEqual(t, ev.BotProbability, 0.0)
		assert.LessOrEqual(t, ev.BotProbability, 1.0)
	}
}
