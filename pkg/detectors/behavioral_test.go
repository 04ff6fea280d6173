package detectors

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quoram/sentryflow/pkg/behavior"
	"github.com/quoram/sentryflow/pkg/blackboard"
)

func TestBehavioralDetectorInsufficientSampleContributesNothing(t *testing.T) {
	store := behavior.New(behavior.DefaultOptions())
	d := NewBehavioralDetector(true, time.Second, store)
	req := &blackboard.RequestSnapshot{UserAgent: "curl/8.4.0", ClientIP: net.ParseIP("203.0.113.9"), PathClass: "api"}

	result, err := d.Contribute(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Contributions)
	assert.NotEmpty(t, result.Signals)
}

func TestBehavioralDetectorFlagsRegularRepetitiveTraffic(t *testing.T) {
	store := behavior.New(behavior.DefaultOptions())
	d := NewBehavioralDetector(true, time.Second, store)
	req := &blackboard.RequestSnapshot{UserAgent: "curl/8.4.0", ClientIP: net.ParseIP("203.0.113.9"), PathClass: "api"}

	sigID := RequestSignatureID(req)
	base := time.Now().Add(-30 * time.Second)
	for i := 0; i < 30; i++ {
		store.Record(sigID, "api", base.Add(time.Duration(i)*time.Second))
	}

	result, err := d.Contribute(context.Background(), req, nil)
	require.NoError(t, err)
	require.NotEmpty(t, result.Contributions)
	assert.Greater(t, result.Contributions[0].ConfidenceDelta, 0.0)
}
