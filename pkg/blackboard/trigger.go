package blackboard

// Trigger is the closed sum type of conditions a detector can require
// before it becomes eligible to run. Evaluated against a signal snapshot,
// never against live blackboard state, so evaluation is deterministic for
// a given wave.
type Trigger interface {
	Evaluate(signals map[SignalKey]SignalValue, completedCount int, riskScore float64) bool
}

// SignalExists is satisfied once key has been published, regardless of value.
type SignalExists struct {
	Key SignalKey
}

func (t SignalExists) Evaluate(signals map[SignalKey]SignalValue, _ int, _ float64) bool {
	_, ok := signals[t.Key]
	return ok
}

// SignalEquals is satisfied when key is published and equals value.
type SignalEquals struct {
	Key   SignalKey
	Value SignalValue
}

func (t SignalEquals) Evaluate(signals map[SignalKey]SignalValue, _ int, _ float64) bool {
	v, ok := signals[t.Key]
	if !ok || v.Kind != t.Value.Kind {
		return false
	}
	switch v.Kind {
	case KindBool:
		return v.Bool == t.Value.Bool
	case KindNumber:
		return v.Number == t.Value.Number
	case KindString:
		return v.String == t.Value.String
	default:
		return false
	}
}

// SignalPredicate is satisfied when key is published and pred returns true
// for its current value.
type SignalPredicate struct {
	Key  SignalKey
	Pred func(SignalValue) bool
}

func (t SignalPredicate) Evaluate(signals map[SignalKey]SignalValue, _ int, _ float64) bool {
	v, ok := signals[t.Key]
	if !ok {
		return false
	}
	return t.Pred(v)
}

// AnyOf is satisfied when at least one child trigger is satisfied.
type AnyOf []Trigger

func (t AnyOf) Evaluate(signals map[SignalKey]SignalValue, completed int, risk float64) bool {
	for _, child := range t {
		if child.Evaluate(signals, completed, risk) {
			return true
		}
	}
	return false
}

// AllOf is satisfied when every child trigger is satisfied.
type AllOf []Trigger

func (t AllOf) Evaluate(signals map[SignalKey]SignalValue, completed int, risk float64) bool {
	for _, child := range t {
		if !child.Evaluate(signals, completed, risk) {
			return false
		}
	}
	return true
}

// DetectorCount is satisfied once at least Min detectors have completed.
type DetectorCount struct {
	Min int
}

func (t DetectorCount) Evaluate(_ map[SignalKey]SignalValue, completed int, _ float64) bool {
	return completed >= t.Min
}

// RiskThreshold is satisfied once the running risk score reaches MinScore.
type RiskThreshold struct {
	MinScore float64
}

func (t RiskThreshold) Evaluate(_ map[SignalKey]SignalValue, _ int, risk float64) bool {
	return risk >= t.MinScore
}

// EvaluateTriggers reports whether an empty trigger list (eligible in the
// first wave) or every condition in triggers is satisfied. Multiple
// top-level triggers are implicitly AND-ed, matching AllOf semantics.
func EvaluateTriggers(triggers []Trigger, signals map[SignalKey]SignalValue, completed int, risk float64) bool {
	if len(triggers) == 0 {
		return true
	}
	return AllOf(triggers).Evaluate(signals, completed, risk)
}
