package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterAllowsWithinBurst(t *testing.T) {
	rl := New(RateLimitConfig{RequestsPerSecond: 10, Burst: 2})

	if !rl.Allow() {
		t.Fatal("first call should be allowed")
	}
	if !rl.Allow() {
		t.Fatal("second call within burst should be allowed")
	}
}

func TestRateLimiterDefaultsAppliedForZeroConfig(t *testing.T) {
	rl := New(RateLimitConfig{})
	if !rl.Allow() {
		t.Fatal("default config should still allow an initial call")
	}
}

func TestRateLimiterResetRestoresBudget(t *testing.T) {
	rl := New(RateLimitConfig{RequestsPerSecond: 1, Burst: 1})
	rl.Allow() // consume the single burst token

	rl.Reset()
	if !rl.Allow() {
		t.Fatal("Reset() should restore the burst budget")
	}
}

func TestRateLimitedClientRespectsContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewRateLimitedClient(server.Client(), RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1})
	// Consume the single burst token so the next Wait() would block.
	client.limiter.Wait(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}

	if _, err := client.Do(req); err == nil {
		t.Fatal("expected context-deadline error waiting for rate limiter")
	}
}
