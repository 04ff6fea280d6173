package detectors

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quoram/sentryflow/pkg/blackboard"
	"github.com/quoram/sentryflow/pkg/reputation"
)

func TestReputationDetectorAccumulatesFromPriorSignals(t *testing.T) {
	store := reputation.New(reputation.DefaultOptions())
	d := NewReputationDetector(true, time.Second, store, []byte("test-key"))
	req := &blackboard.RequestSnapshot{UserAgent: "curl/8.4.0", ClientIP: net.ParseIP("203.0.113.9")}
	signals := map[blackboard.SignalKey]blackboard.SignalValue{
		blackboard.SignalUAIsBot:        blackboard.BoolValue(true),
		blackboard.SignalIPIsDatacenter: blackboard.BoolValue(true),
	}

	result, err := d.Contribute(context.Background(), req, signals)
	require.NoError(t, err)
	require.NotEmpty(t, result.Contributions)
	assert.Greater(t, result.Contributions[0].ConfidenceDelta, 0.0)
}

func TestReputationDetectorWhitelistedForcesNegativeDelta(t *testing.T) {
	store := reputation.New(reputation.DefaultOptions())
	key := []byte("test-key")
	normUA := reputation.NormalizeUA("my-internal-healthcheck/1.0")
	uaID := reputation.HashPatternID(key, reputation.PatternUserAgent, normUA)
	for i := 0; i < 25; i++ {
		store.ApplyEvidence(uaID, reputation.PatternUserAgent, -1, 1)
	}

	d := NewReputationDetector(true, time.Second, store, key)
	req := &blackboard.RequestSnapshot{UserAgent: "my-internal-healthcheck/1.0", ClientIP: net.ParseIP("10.0.0.1")}

	result, err := d.Contribute(context.Background(), req, nil)
	require.NoError(t, err)
	require.Len(t, result.Contributions, 1)
	assert.True(t, result.Contributions[0].Whitelisted)
	assert.Less(t, result.Contributions[0].ConfidenceDelta, 0.0)
}

func TestPriorEvidenceSignalNeutralWithNoSignals(t *testing.T) {
	assert.Zero(t, priorEvidenceSignal(nil))
}
