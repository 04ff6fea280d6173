// Package blackboard implements the per-request shared workspace that
// detectors read from and the orchestrator alone writes to.
package blackboard

import "fmt"

// SignalKey is a closed enum of signal names detectors may publish or read.
// Unlike a bare string, a SignalKey can only be produced by the constants
// below or accepted by Blackboard.Propose after a registry lookup, which is
// what keeps the key space finite as required by the data model.
type SignalKey string

const (
	SignalSystemRequestID SignalKey = "_system.request_id"
	SignalSystemElapsed   SignalKey = "_system.elapsed"

	SignalUAIsBot      SignalKey = "ua.is_bot"
	SignalUAIsKnownBot SignalKey = "ua.is_known_bot"
	SignalUABotName    SignalKey = "ua.bot_name"
	SignalUAHeadless   SignalKey = "ua.headless"

	SignalHdrMissingAccept    SignalKey = "hdr.missing_accept"
	SignalHdrSuspiciousOrder  SignalKey = "hdr.suspicious_order"

	SignalIPIsDatacenter SignalKey = "ip.is_datacenter"
	SignalIPASN          SignalKey = "ip.asn"
	SignalIPCountry      SignalKey = "ip.country"
	SignalIPIsTor        SignalKey = "ip.is_tor"

	SignalTLSJA3Hash      SignalKey = "tls.ja3_hash"
	SignalTLSClientClass  SignalKey = "tls.client_class"

	SignalClientAvailable  SignalKey = "client.available"
	SignalClientConsistent SignalKey = "client.consistent"

	SignalBehaviorRate       SignalKey = "behavior.rate"
	SignalBehaviorPathEnt    SignalKey = "behavior.path_entropy"
	SignalBehaviorTimingCV   SignalKey = "behavior.timing_cv"

	SignalMarkovSelfDrift        SignalKey = "markov.self_drift"
	SignalMarkovHumanDrift       SignalKey = "markov.human_drift"
	SignalMarkovLoopScore        SignalKey = "markov.loop_score"
	SignalMarkovSequenceSurprise SignalKey = "markov.sequence_surprise"
	SignalMarkovNovelty          SignalKey = "markov.transition_novelty"
	SignalMarkovEntropyDelta     SignalKey = "markov.entropy_delta"

	SignalClusterID          SignalKey = "cluster.id"
	SignalClusterAvgBotProb  SignalKey = "cluster.avg_bot_prob"

	SignalRepUAScore SignalKey = "rep.ua_score"
	SignalRepIPScore SignalKey = "rep.ip_score"

	SignalInconsistencyScore   SignalKey = "inconsistency.score"
	SignalInconsistencyReasons SignalKey = "inconsistency.reasons"

	SignalHoneypotHit SignalKey = "honeypot.hit"
	SignalSecTool     SignalKey = "sec.tool"
)

// registeredKeys is the published registry every SignalKey must belong to.
// Propose rejects anything outside of it, enforcing the finite-enum
// requirement without reflection.
var registeredKeys = map[SignalKey]struct{}{
	SignalSystemRequestID: {}, SignalSystemElapsed: {},
	SignalUAIsBot: {}, SignalUAIsKnownBot: {}, SignalUABotName: {}, SignalUAHeadless: {},
	SignalHdrMissingAccept: {}, SignalHdrSuspiciousOrder: {},
	SignalIPIsDatacenter: {}, SignalIPASN: {}, SignalIPCountry: {}, SignalIPIsTor: {},
	SignalTLSJA3Hash: {}, SignalTLSClientClass: {},
	SignalClientAvailable: {}, SignalClientConsistent: {},
	SignalBehaviorRate: {}, SignalBehaviorPathEnt: {}, SignalBehaviorTimingCV: {},
	SignalMarkovSelfDrift: {}, SignalMarkovHumanDrift: {}, SignalMarkovLoopScore: {},
	SignalMarkovSequenceSurprise: {}, SignalMarkovNovelty: {}, SignalMarkovEntropyDelta: {},
	SignalClusterID: {}, SignalClusterAvgBotProb: {},
	SignalRepUAScore: {}, SignalRepIPScore: {},
	SignalInconsistencyScore: {}, SignalInconsistencyReasons: {},
	SignalHoneypotHit: {}, SignalSecTool: {},
}

// IsRegistered reports whether key belongs to the published signal registry.
func IsRegistered(key SignalKey) bool {
	_, ok := registeredKeys[key]
	return ok
}

// ValueKind tags the payload carried by a SignalValue.
type ValueKind int

const (
	KindBool ValueKind = iota
	KindNumber
	KindString
	KindRecord
)

// maxRecordFields bounds a Record's size so it cannot become a PII escape
// hatch disguised as a small structured value.
const maxRecordFields = 8

// SignalValue is a small tagged union. It intentionally has no `any` field:
// every payload must fit one of these four shapes, which is what makes the
// "PII must never be placed here" invariant checkable in one place.
type SignalValue struct {
	Kind   ValueKind
	Bool   bool
	Number float64
	String string
	Record map[string]string
}

func BoolValue(v bool) SignalValue     { return SignalValue{Kind: KindBool, Bool: v} }
func NumberValue(v float64) SignalValue { return SignalValue{Kind: KindNumber, Number: v} }
func StringValue(v string) SignalValue { return SignalValue{Kind: KindString, String: v} }

// RecordValue builds a Record-kind value. It returns an error instead of
// silently truncating if the caller hands it more fields than allowed.
func RecordValue(fields map[string]string) (SignalValue, error) {
	if len(fields) > maxRecordFields {
		return SignalValue{}, fmt.Errorf("blackboard: record value has %d fields, max is %d", len(fields), maxRecordFields)
	}
	cp := make(map[string]string, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return SignalValue{Kind: KindRecord, Record: cp}, nil
}

// Render formats the value for logging, independent of its kind.
func (v SignalValue) Render() string {
	switch v.Kind {
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindNumber:
		return fmt.Sprintf("%g", v.Number)
	case KindString:
		return v.String
	case KindRecord:
		return fmt.Sprintf("%v", v.Record)
	default:
		return ""
	}
}
