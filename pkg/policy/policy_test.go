package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quoram/sentryflow/pkg/blackboard"
)

func TestDefaultRulesetVerifiedBotAllowed(t *testing.T) {
	rs := DefaultRuleset()
	action, name := rs.Evaluate(EvaluationInput{BotType: blackboard.BotTypeVerifiedBot, RiskBand: blackboard.RiskVeryLow})
	assert.Equal(t, "verified-bot-allow", name)
	assert.Equal(t, ActionAddHeaders, action.Kind)
}

func TestDefaultRulesetObviousToolBlocks(t *testing.T) {
	rs := DefaultRuleset()
	action, _ := rs.Evaluate(EvaluationInput{RiskBand: blackboard.RiskVeryHigh})
	assert.Equal(t, ActionBlock, action.Kind)
	assert.Equal(t, 403, action.BlockStatus)
}

func TestDefaultRulesetFallsBackToAllow(t *testing.T) {
	rs := DefaultRuleset()
	action, name := rs.Evaluate(EvaluationInput{RiskBand: blackboard.RiskLow})
	assert.Equal(t, "default-allow", name)
	assert.Equal(t, ActionAddHeaders, action.Kind)
}

func TestEvaluateIsDeterministicAndPure(t *testing.T) {
	rs := DefaultRuleset()
	in := EvaluationInput{RiskBand: blackboard.RiskMedium}
	a1, n1 := rs.Evaluate(in)
	a2, n2 := rs.Evaluate(in)
	assert.Equal(t, a1, a2)
	assert.Equal(t, n1, n2)
}
