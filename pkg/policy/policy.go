// Package policy implements the action policy evaluator, §4.7: a pure,
// ordered ruleset mapping a verdict to an action. Matching is deterministic
// and rules never perform I/O; actions that mutate the response are
// executed by the host integration, not here.
package policy

import (
	"github.com/quoram/sentryflow/pkg/aggregator"
	"github.com/quoram/sentryflow/pkg/blackboard"
)

// ActionKind is the closed set of actions a rule may select.
type ActionKind string

const (
	ActionAllow      ActionKind = "Allow"
	ActionLogOnly    ActionKind = "LogOnly"
	ActionAddHeaders ActionKind = "AddHeaders"
	ActionChallenge  ActionKind = "Challenge"
	ActionBlock      ActionKind = "Block"
	ActionRedirect   ActionKind = "Redirect"
	ActionHolodeck   ActionKind = "Holodeck"
	ActionTarpit     ActionKind = "Tarpit"
)

// Action is the fully resolved decision a rule produces.
type Action struct {
	Kind ActionKind

	// BlockStatus is the HTTP status to return when Kind == ActionBlock.
	BlockStatus int
	// RedirectURL is the target when Kind == ActionRedirect.
	RedirectURL string
	// HolodeckURL is the mock-API endpoint to dispatch to when
	// Kind == ActionHolodeck.
	HolodeckURL string
	// TarpitDelayMS is the artificial delay when Kind == ActionTarpit.
	TarpitDelayMS int
}

// EvaluationInput bundles the fields a predicate may inspect, per §4.7:
// "a predicate over {risk_band, bot_type, category_scores, primary_bot_name,
// path, method}".
type EvaluationInput struct {
	RiskBand        blackboard.RiskBand
	BotType         blackboard.BotType
	PrimaryBotName  string
	CategoryScores  map[blackboard.Category]float64
	Path            string
	Method          string
}

// InputFromEvidence builds an EvaluationInput from an aggregated verdict
// and the request's method/path.
func InputFromEvidence(ev aggregator.AggregatedEvidence, method, path string) EvaluationInput {
	scores := make(map[blackboard.Category]float64, len(ev.CategoryBreakdown))
	for cat, b := range ev.CategoryBreakdown {
		scores[cat] = b.Score
	}
	return EvaluationInput{
		RiskBand:       ev.RiskBand,
		BotType:        ev.PrimaryBotType,
		PrimaryBotName: ev.PrimaryBotName,
		CategoryScores: scores,
		Path:           path,
		Method:         method,
	}
}

// Predicate is a pure function of the evaluation input.
type Predicate func(EvaluationInput) bool

// Rule pairs a predicate with the action to take when it matches.
type Rule struct {
	Name      string
	Predicate Predicate
	Action    Action
}

// Ruleset is an ordered list of rules evaluated first-match-wins. Evaluate
// falls back to the default rule (Allow + AddHeaders) when nothing matches,
// per §4.7.
type Ruleset struct {
	Rules []Rule
}

// DefaultRule is appended implicitly; Evaluate never returns without a
// match because of it.
var DefaultRule = Rule{
	Name:      "default-allow",
	Predicate: func(EvaluationInput) bool { return true },
	Action:    Action{Kind: ActionAddHeaders},
}

// Evaluate finds the first matching rule (falling back to DefaultRule) and
// returns its action. Pure function, no I/O.
func (rs Ruleset) Evaluate(in EvaluationInput) (Action, string) {
	for _, r := range rs.Rules {
		if r.Predicate(in) {
			return r.Action, r.Name
		}
	}
	return DefaultRule.Action, DefaultRule.Name
}

// RiskAtLeast builds a predicate matching when in.RiskBand is at or above
// minBand in the documented ordering (VeryLow < Low < Elevated < Medium <
// High < VeryHigh); Unknown never satisfies a non-Unknown minimum.
func RiskAtLeast(minBand blackboard.RiskBand) Predicate {
	min := bandRank(minBand)
	return func(in EvaluationInput) bool {
		if in.RiskBand == blackboard.RiskUnknown {
			return minBand == blackboard.RiskUnknown
		}
		return bandRank(in.RiskBand) >= min
	}
}

func bandRank(b blackboard.RiskBand) int {
	switch b {
	case blackboard.RiskVeryLow:
		return 0
	case blackboard.RiskLow:
		return 1
	case blackboard.RiskElevated:
		return 2
	case blackboard.RiskMedium:
		return 3
	case blackboard.RiskHigh:
		return 4
	case blackboard.RiskVeryHigh:
		return 5
	default:
		return -1
	}
}

// IsBotType matches an exact bot type.
func IsBotType(t blackboard.BotType) Predicate {
	return func(in EvaluationInput) bool { return in.BotType == t }
}

// PathHasPrefix matches requests under a path prefix.
func PathHasPrefix(prefix string) Predicate {
	return func(in EvaluationInput) bool {
		return len(in.Path) >= len(prefix) && in.Path[:len(prefix)] == prefix
	}
}

// And combines predicates with logical AND.
func And(preds ...Predicate) Predicate {
	return func(in EvaluationInput) bool {
		for _, p := range preds {
			if !p(in) {
				return false
			}
		}
		return true
	}
}

// DefaultRuleset implements the reference policy from SPEC_FULL's scenario
// catalog: verified bots pass with headers attached, High and VeryHigh risk
// traffic is blocked with 403, Medium risk traffic is challenged, Unknown
// risk is log-only, and everything else falls through to DefaultRule.
func DefaultRuleset() Ruleset {
	return Ruleset{Rules: []Rule{
		{
			Name:      "verified-bot-allow",
			Predicate: IsBotType(blackboard.BotTypeVerifiedBot),
			Action:    Action{Kind: ActionAddHeaders},
		},
		{
			Name:      "high-risk-block",
			Predicate: RiskAtLeast(blackboard.RiskHigh),
			Action:    Action{Kind: ActionBlock, BlockStatus: 403},
		},
		{
			Name:      "medium-risk-challenge",
			Predicate: RiskAtLeast(blackboard.RiskMedium),
			Action:    Action{Kind: ActionChallenge},
		},
		{
			Name:      "unknown-allow-with-log",
			Predicate: func(in EvaluationInput) bool { return in.RiskBand == blackboard.RiskUnknown },
			Action:    Action{Kind: ActionLogOnly},
		},
	}}
}
