package detectors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quoram/sentryflow/infrastructure/resilience"
	"github.com/quoram/sentryflow/pkg/blackboard"
)

type stubLLMClient struct {
	botProbability float64
	reason         string
	err            error
}

func (s *stubLLMClient) ClassifySession(ctx context.Context, summary SessionSummary) (float64, string, error) {
	return s.botProbability, s.reason, s.err
}

func TestLLMDetectorContributesFromClientScore(t *testing.T) {
	client := &stubLLMClient{botProbability: 0.9, reason: "model flagged scripted cadence"}
	breaker := resilience.New(resilience.DefaultConfig())
	d := NewLLMDetector(true, time.Second, client, breaker)

	result, err := d.Contribute(context.Background(), &blackboard.RequestSnapshot{}, nil)
	require.NoError(t, err)
	require.Len(t, result.Contributions, 1)
	assert.Greater(t, result.Contributions[0].ConfidenceDelta, 0.0)
	assert.Equal(t, "model flagged scripted cadence", result.Contributions[0].Reason)
}

func TestLLMDetectorOpenCircuitContributesNothing(t *testing.T) {
	client := &stubLLMClient{err: errors.New("upstream unavailable")}
	cfg := resilience.DefaultConfig()
	cfg.MaxFailures = 1
	breaker := resilience.New(cfg)
	d := NewLLMDetector(true, time.Second, client, breaker)

	// First call fails and opens the breaker; second should short-circuit.
	_, _ = d.Contribute(context.Background(), &blackboard.RequestSnapshot{}, nil)

	result, err := d.Contribute(context.Background(), &blackboard.RequestSnapshot{}, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Contributions)
}
