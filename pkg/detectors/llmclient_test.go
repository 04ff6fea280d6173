package detectors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quoram/sentryflow/infrastructure/ratelimit"
)

func TestHTTPLLMClientClassifySessionSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req llmRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "/api/:id", req.PathClass)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(llmResponse{BotProbability: 0.8, Reason: "ambiguous session, leans bot-like"})
	}))
	defer server.Close()

	client := NewHTTPLLMClient(server.URL, ratelimit.RateLimitConfig{RequestsPerSecond: 100, Burst: 10})
	prob, reason, err := client.ClassifySession(context.Background(), SessionSummary{PathClass: "/api/:id"})
	require.NoError(t, err)
	assert.Equal(t, 0.8, prob)
	assert.Equal(t, "ambiguous session, leans bot-like", reason)
}

func TestHTTPLLMClientNonOKStatusIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewHTTPLLMClient(server.URL, ratelimit.RateLimitConfig{RequestsPerSecond: 100, Burst: 10})
	_, _, err := client.ClassifySession(context.Background(), SessionSummary{})
	assert.Error(t, err)
}
