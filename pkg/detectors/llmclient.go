package detectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/quoram/sentryflow/infrastructure/ratelimit"
)

// HTTPLLMClient is the one concrete LLMClient this repo ships: a JSON-over-
// HTTP call to a hosted classification endpoint, throttled independently of
// the gateway's own inbound rate limiter so a burst of ambiguous sessions
// can never overrun the upstream model's own budget.
type HTTPLLMClient struct {
	endpoint string
	client   *ratelimit.RateLimitedClient
}

// NewHTTPLLMClient builds a client against endpoint, rate-limited to cfg.
func NewHTTPLLMClient(endpoint string, cfg ratelimit.RateLimitConfig) *HTTPLLMClient {
	return &HTTPLLMClient{
		endpoint: endpoint,
		client:   ratelimit.NewRateLimitedClient(&http.Client{Timeout: 5 * time.Second}, cfg),
	}
}

type llmRequest struct {
	PathClass          string  `json:"path_class"`
	UAFamily           string  `json:"ua_family"`
	RequestRate        float64 `json:"request_rate"`
	PathEntropy        float64 `json:"path_entropy"`
	TimingRegularity   float64 `json:"timing_regularity"`
	InconsistencyScore float64 `json:"inconsistency_score"`
}

type llmResponse struct {
	BotProbability float64 `json:"bot_probability"`
	Reason         string  `json:"reason"`
}

// ClassifySession implements LLMClient. The rate limiter's Wait blocks on
// ctx, so a cancelled request context aborts the call before any bytes hit
// the wire.
func (c *HTTPLLMClient) ClassifySession(ctx context.Context, summary SessionSummary) (float64, string, error) {
	body, err := json.Marshal(llmRequest{
		PathClass:          summary.PathClass,
		UAFamily:           summary.UAFamily,
		RequestRate:        summary.RequestRate,
		PathEntropy:        summary.PathEntropy,
		TimingRegularity:   summary.TimingRegularity,
		InconsistencyScore: summary.InconsistencyScore,
	})
	if err != nil {
		return 0, "", fmt.Errorf("llm client: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("llm client: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("llm client: call endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return 0, "", fmt.Errorf("llm client: endpoint returned %d", resp.StatusCode)
	}

	var out llmResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, "", fmt.Errorf("llm client: decode response: %w", err)
	}
	return out.BotProbability, out.Reason, nil
}
