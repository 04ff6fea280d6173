package detectors

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quoram/sentryflow/pkg/blackboard"
)

func TestInconsistencyDetectorFlagsBrowserUAWithScriptTLS(t *testing.T) {
	d := NewInconsistencyDetector(true, time.Second)
	req := &blackboard.RequestSnapshot{UserAgent: "Mozilla/5.0 Chrome/120"}
	signals := map[blackboard.SignalKey]blackboard.SignalValue{
		blackboard.SignalTLSClientClass: blackboard.StringValue("python-requests"),
	}

	result, err := d.Contribute(context.Background(), req, signals)
	require.NoError(t, err)
	require.Len(t, result.Contributions, 1)
	assert.Greater(t, result.Contributions[0].ConfidenceDelta, 0.0)
}

func TestInconsistencyDetectorNoSignalsNoFindings(t *testing.T) {
	d := NewInconsistencyDetector(true, time.Second)
	req := &blackboard.RequestSnapshot{UserAgent: "Mozilla/5.0 Chrome/120"}

	result, err := d.Contribute(context.Background(), req, map[blackboard.SignalKey]blackboard.SignalValue{})
	require.NoError(t, err)
	assert.Empty(t, result.Contributions)
	require.Len(t, result.Signals, 1)
	assert.Zero(t, result.Signals[0].Value.Number)
}

func TestInconsistencyDetectorFlagsMobileClientHintMismatch(t *testing.T) {
	d := NewInconsistencyDetector(true, time.Second)
	req := &blackboard.RequestSnapshot{
		UserAgent: "Mozilla/5.0 (Mobile) Chrome/120",
		Headers:   map[string][]string{"Sec-Ch-Ua-Mobile": {"?0"}},
	}

	result, err := d.Contribute(context.Background(), req, nil)
	require.NoError(t, err)
	require.Len(t, result.Contributions, 1)
}
