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

func TestUserAgentDetectorVerifiedBotWithMatchingIP(t *testing.T) {
	d := NewUserAgentDetector(true, time.Second, DefaultKnownBots)
	req := &blackboard.RequestSnapshot{
		UserAgent: "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
		ClientIP:  net.ParseIP("66.249.66.1"),
	}

	result, err := d.Contribute(context.Background(), req, nil)
	require.NoError(t, err)
	require.Len(t, result.Contributions, 1)
	c := result.Contributions[0]
	assert.Equal(t, blackboard.BotTypeVerifiedBot, c.BotType)
	assert.True(t, c.Whitelisted)
	assert.Equal(t, "Google Search", c.BotName)
}

func TestUserAgentDetectorKnownBotWrongIPNotWhitelisted(t *testing.T) {
	d := NewUserAgentDetector(true, time.Second, DefaultKnownBots)
	req := &blackboard.RequestSnapshot{
		UserAgent: "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
		ClientIP:  net.ParseIP("203.0.113.9"),
	}

	result, err := d.Contribute(context.Background(), req, nil)
	require.NoError(t, err)
	require.Len(t, result.Contributions, 1)
	c := result.Contributions[0]
	assert.False(t, c.Whitelisted)
	assert.NotEqual(t, blackboard.BotTypeVerifiedBot, c.BotType, "UA spoofing a verified bot from the wrong IP must not get the free pass")
	assert.Equal(t, blackboard.BotTypeUnverified, c.BotType)
	assert.Greater(t, c.ConfidenceDelta, 0.0, "impersonation should push toward bot, not away from it")
}

func TestUserAgentDetectorToolSignature(t *testing.T) {
	d := NewUserAgentDetector(true, time.Second, DefaultKnownBots)
	req := &blackboard.RequestSnapshot{UserAgent: "python-requests/2.31.0"}

	result, err := d.Contribute(context.Background(), req, nil)
	require.NoError(t, err)
	require.Len(t, result.Contributions, 1)
	assert.Greater(t, result.Contributions[0].ConfidenceDelta, 0.0)
}

func TestUserAgentDetectorMissingUA(t *testing.T) {
	d := NewUserAgentDetector(true, time.Second, DefaultKnownBots)
	req := &blackboard.RequestSnapshot{}

	result, err := d.Contribute(context.Background(), req, nil)
	require.NoError(t, err)
	require.Len(t, result.Contributions, 1)
	assert.Equal(t, 0.6, result.Contributions[0].ConfidenceDelta)
}

func TestUserAgentDetectorHeadlessMarker(t *testing.T) {
	d := NewUserAgentDetector(true, time.Second, DefaultKnownBots)
	req := &blackboard.RequestSnapshot{UserAgent: "Mozilla/5.0 HeadlessChrome/120.0.0.0"}

	result, err := d.Contribute(context.Background(), req, nil)
	require.NoError(t, err)
	require.Len(t, result.Contributions, 1)
	assert.Equal(t, blackboard.CategoryFingerprint, result.Contributions[0].Category)
}

func TestUserAgentDetectorOrdinaryBrowserNoContribution(t *testing.T) {
	d := NewUserAgentDetector(true, time.Second, DefaultKnownBots)
	req := &blackboard.RequestSnapshot{UserAgent: "Mozilla/5.0 (Macintosh) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"}

	result, err := d.Contribute(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Contributions)
}
