// Package detectors implements the contributing-detector catalog from
// SPEC_FULL §4.4: independent evidence producers, each declaring priority,
// trigger conditions, timeouts, and an is_optional flag, invoked by the
// orchestrator at most once per request.
package detectors

import (
	"context"
	"time"

	"github.com/quoram/sentryflow/pkg/blackboard"
	"github.com/quoram/sentryflow/pkg/reputation"
)

// signatureKey is the HMAC key used to derive the opaque per-request
// signature id shared by the behavioral, Markov, cluster, and reputation
// detectors, so they all key their cross-request state off the same
// composite identity. The gateway builder overwrites this at startup with
// a key loaded from config; the built-in default key is fine for tests.
var signatureKey = []byte("sentryflow-dev-signature-key")

// SetSignatureKey installs the process-wide HMAC key used to derive
// request signature ids. Call once during startup, before traffic flows.
func SetSignatureKey(key []byte) { signatureKey = key }

// RequestSignatureID derives a stable opaque identifier for the
// (normalized UA, normalized IP) pair a request carries, used as the
// cross-request grouping key by every detector that keeps its own history
// (behavioral, Markov, cluster, reputation).
func RequestSignatureID(req *blackboard.RequestSnapshot) string {
	normUA := reputation.NormalizeUA(req.UserAgent)
	normIP, _ := reputation.NormalizeIP(req.ClientIP)
	return reputation.HashPatternID(signatureKey, reputation.PatternComposite, normUA+"|"+normIP)
}

// Detector is the uniform interface every contributing detector satisfies.
// Contribute must honor ctx cancellation and is called at most once per
// request by the orchestrator.
type Detector interface {
	Name() string
	Priority() int // wave number; lower runs earlier
	IsEnabled() bool
	IsOptional() bool
	TriggerConditions() []blackboard.Trigger
	TriggerTimeout() time.Duration
	ExecutionTimeout() time.Duration
	Contribute(ctx context.Context, req *blackboard.RequestSnapshot, signals map[blackboard.SignalKey]blackboard.SignalValue) (blackboard.ContributeResult, error)
}

// Base provides the bookkeeping fields every detector shares, so concrete
// detectors only implement Contribute and (if they need one)
// TriggerConditions.
type Base struct {
	DetectorName    string
	Wave            int
	Enabled         bool
	Optional        bool
	Triggers        []blackboard.Trigger
	TriggerTimeoutD time.Duration
	ExecTimeoutD    time.Duration
}

func (b Base) Name() string                               { return b.DetectorName }
func (b Base) Priority() int                               { return b.Wave }
func (b Base) IsEnabled() bool                              { return b.Enabled }
func (b Base) IsOptional() bool                             { return b.Optional }
func (b Base) TriggerConditions() []blackboard.Trigger      { return b.Triggers }
func (b Base) TriggerTimeout() time.Duration                { return b.TriggerTimeoutD }
func (b Base) ExecutionTimeout() time.Duration              { return b.ExecTimeoutD }

// contribution is a small helper constructor to keep the individual
// detector files terse.
func contribution(detector string, cat blackboard.Category, delta, weight float64, reason string, priority int) blackboard.DetectionContribution {
	return blackboard.DetectionContribution{
		DetectorName:    detector,
		Category:        cat,
		ConfidenceDelta: delta,
		Weight:          weight,
		Reason:          reason,
		Priority:        priority,
	}
}

func signal(key blackboard.SignalKey, v blackboard.SignalValue) blackboard.SignalProposal {
	return blackboard.SignalProposal{Key: key, Value: v}
}
