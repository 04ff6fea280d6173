package learning

import (
	"github.com/quoram/sentryflow/infrastructure/logging"
	"github.com/quoram/sentryflow/pkg/cluster"
	"github.com/quoram/sentryflow/pkg/reputation"
)

// ReputationUpdater is the subset of *reputation.Store the consumer needs;
// declared as an interface so tests can fake it without constructing a
// real sharded store.
type ReputationUpdater interface {
	ApplyEvidence(patternID string, pt reputation.PatternType, botSignal float64, evidenceWeight float64) reputation.PatternReputation
}

// ChurnNotifier lets the consumer trigger an out-of-cadence cluster
// recompute when signature churn crosses the configured threshold.
type ChurnNotifier interface {
	ShouldRecomputeForChurn(activeCount int) bool
	RunOnce() *cluster.Snapshot
}

// Consumer wires the learning bus to the reputation store and the cluster
// churn check; drift events are only logged. It holds no
// locks of its own — each downstream component already owns its
// concurrency story.
type Consumer struct {
	Reputation ReputationUpdater
	Logger     *logging.Logger

	activeSignatures map[string]struct{}
	churn            ChurnNotifier
}

// NewConsumer builds a consumer wired to a reputation store. Cluster churn
// notification is optional (pass nil to skip it).
func NewConsumer(rep ReputationUpdater, churn ChurnNotifier, log *logging.Logger) *Consumer {
	return &Consumer{
		Reputation:       rep,
		Logger:           log,
		activeSignatures: make(map[string]struct{}),
		churn:            churn,
	}
}

// Handle dispatches one event per its Kind: detection events and pattern/
// signature feedback reinforce the reputation store, every event's
// signature id counts toward the cluster churn check, and inconsistency,
// fast-path drift and user-feedback events are only logged. No event
// reaches the Markov tracker, and drift events are not stored.
func (c *Consumer) Handle(ev Event) {
	switch ev.Kind {
	case EventHighConfidenceDetection, EventFullDetection:
		c.reinforceFromLedger(ev)
	case EventPatternDiscovered, EventSignatureFeedback:
		if ev.PatternID != "" && c.Reputation != nil {
			c.Reputation.ApplyEvidence(ev.PatternID, reputation.PatternType(ev.PatternType), ev.BotSignal, 1.0)
		}
		c.noteSignature(ev.SignatureID)
	case EventInconsistencyDetected:
		if c.Logger != nil {
			c.Logger.WithFields(map[string]interface{}{
				"request_id": ev.RequestID,
				"reasons":    ev.Reasons,
			}).Warn("inconsistency detected")
		}
	case EventFastPathDriftDetected:
		if c.Logger != nil {
			c.Logger.WithFields(map[string]interface{}{
				"request_id": ev.RequestID,
				"metric":     ev.Metric,
			}).Info("fast-path drift detected")
		}
	case EventUserFeedback:
		if c.Logger != nil {
			c.Logger.WithFields(map[string]interface{}{
				"request_id": ev.RequestID,
				"label":      ev.Label,
			}).Info("user feedback received")
		}
	}

	c.noteSignature(ev.SignatureID)
	c.maybeRecomputeClusters()
}

// reinforceFromLedger feeds each contribution's sign back into the
// reputation store, keyed by detector category as a stand-in pattern id
// when the event carries no explicit pattern (most FullDetection events
// reinforce at the category level; detectors that want pattern-specific
// reinforcement publish PatternDiscovered/SignatureFeedback instead).
func (c *Consumer) reinforceFromLedger(ev Event) {
	if c.Reputation == nil {
		return
	}
	for _, contrib := range ev.Ledger {
		if contrib.Weight <= 0 {
			continue
		}
		c.Reputation.ApplyEvidence(
			"category:"+string(contrib.Category),
			reputation.PatternComposite,
			contrib.ConfidenceDelta,
			contrib.Weight,
		)
	}
}

func (c *Consumer) noteSignature(id string) {
	if id == "" {
		return
	}
	c.activeSignatures[id] = struct{}{}
}

func (c *Consumer) maybeRecomputeClusters() {
	if c.churn == nil {
		return
	}
	if c.churn.ShouldRecomputeForChurn(len(c.activeSignatures)) {
		c.churn.RunOnce()
	}
}
