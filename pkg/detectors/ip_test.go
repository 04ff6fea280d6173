package detectors

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quoram/sentryflow/pkg/blackboard"
)

func TestIPDetectorFlagsDatacenterRange(t *testing.T) {
	d := NewIPDetector(true, time.Second, DefaultDatacenterRanges)
	req := &blackboard.RequestSnapshot{ClientIP: net.ParseIP("34.0.1.2")}

	result, err := d.Contribute(context.Background(), req, nil)
	require.NoError(t, err)
	require.NotEmpty(t, result.Contributions)
	assert.Equal(t, blackboard.CategoryIP, result.Contributions[0].Category)
}

func TestIPDetectorFlagsTorExit(t *testing.T) {
	d := NewIPDetector(true, time.Second, DefaultDatacenterRanges)
	req := &blackboard.RequestSnapshot{ClientIP: net.ParseIP("185.220.101.5")}

	result, err := d.Contribute(context.Background(), req, nil)
	require.NoError(t, err)
	found := false
	for _, c := range result.Contributions {
		if c.Reason == "client IP is a known Tor exit node" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestIPDetectorCleanIP(t *testing.T) {
	d := NewIPDetector(true, time.Second, DefaultDatacenterRanges)
	req := &blackboard.RequestSnapshot{ClientIP: net.ParseIP("203.0.113.9")}

	result, err := d.Contribute(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Contributions)
}

func TestIPDetectorNilIP(t *testing.T) {
	d := NewIPDetector(true, time.Second, DefaultDatacenterRanges)
	req := &blackboard.RequestSnapshot{}

	result, err := d.Contribute(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Contributions)
	assert.Empty(t, result.Signals)
}
