package detectors

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quoram/sentryflow/pkg/blackboard"
)

func TestHeaderDetectorMissingAccept(t *testing.T) {
	d := NewHeaderDetector(true, time.Second)
	req := &blackboard.RequestSnapshot{Headers: map[string][]string{}}

	result, err := d.Contribute(context.Background(), req, nil)
	require.NoError(t, err)
	require.NotEmpty(t, result.Contributions)
	assert.Equal(t, blackboard.CategoryHeader, result.Contributions[0].Category)
}

func TestHeaderDetectorFullCanonicalSet(t *testing.T) {
	d := NewHeaderDetector(true, time.Second)
	req := &blackboard.RequestSnapshot{Headers: map[string][]string{
		"Accept":          {"text/html"},
		"Accept-Language": {"en-US"},
		"Accept-Encoding": {"gzip"},
	}}

	result, err := d.Contribute(context.Background(), req, nil)
	require.NoError(t, err)
	require.Len(t, result.Contributions, 1)
	assert.Less(t, result.Contributions[0].ConfidenceDelta, 0.0)
}

func TestSuspiciousOrderDetection(t *testing.T) {
	assert.True(t, suspiciousOrder([]string{"Accept-Encoding", "Accept"}))
	assert.False(t, suspiciousOrder([]string{"Accept", "Accept-Language", "Accept-Encoding"}))
	assert.False(t, suspiciousOrder([]string{"Accept"}))
}
