// Package learning implements the bounded, non-blocking learning event bus
// described in SPEC_FULL §4.8: detection outcomes are published from the
// request path without ever blocking it, and a dedicated background
// consumer routes them to the reputation store and the cluster engine's
// churn check. Nothing is routed to the Markov tracker.
package learning

import (
	"time"

	"github.com/quoram/sentryflow/pkg/blackboard"
)

// EventKind is the closed tagged-variant discriminator for LearningEvent.
type EventKind string

const (
	EventHighConfidenceDetection EventKind = "HighConfidenceDetection"
	EventFullDetection           EventKind = "FullDetection"
	EventPatternDiscovered       EventKind = "PatternDiscovered"
	EventInconsistencyDetected   EventKind = "InconsistencyDetected"
	EventFastPathDriftDetected   EventKind = "FastPathDriftDetected"
	EventSignatureFeedback       EventKind = "SignatureFeedback"
	EventUserFeedback            EventKind = "UserFeedback"
)

// Event is one message on the learning bus. Only the fields relevant to
// Kind are populated; the rest are zero.
type Event struct {
	Kind      EventKind
	RequestID string
	At        time.Time

	// FullDetection / HighConfidenceDetection payload.
	Ledger         []blackboard.DetectionContribution
	BotProbability float64
	Confidence     float64

	// PatternDiscovered / SignatureFeedback payload.
	PatternID   string
	PatternType string
	SignatureID string
	BotSignal   float64 // in [-1,+1], same convention as ConfidenceDelta

	// InconsistencyDetected / FastPathDriftDetected payload.
	Reasons []string
	Metric  float64

	// UserFeedback payload.
	Label string // e.g. "false_positive", "confirmed_bot"

	Metadata map[string]string
}

// OverflowPolicy names how the bus behaves once its bounded buffer is full.
// DropOldest is the only policy SPEC_FULL names; the type exists so a
// second policy can be added later without an interface break.
type OverflowPolicy string

const (
	OverflowDropOldest OverflowPolicy = "DropOldest"
)
