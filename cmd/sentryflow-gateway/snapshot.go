package main

import (
	"io"
	"net"
	"net/http"

	"github.com/quoram/sentryflow/infrastructure/httputil"
	"github.com/quoram/sentryflow/pkg/blackboard"
	"github.com/quoram/sentryflow/pkg/markov"
)

// maxBodySample bounds how much of the request body the honeypot detector
// is allowed to inspect; the rest of the body is never read into memory
// twice (the original body is restored for downstream handlers).
const maxBodySample = 8 << 10

// buildSnapshot takes the one read of r this process is allowed on the hot
// path and produces the immutable RequestSnapshot the orchestrator builds
// its blackboard from. Method/headers/cookies are request metadata the
// net/http server has already parsed; ClientIP goes through the same
// trusted-proxy logic the IP detector's store keys on.
func buildSnapshot(r *http.Request, classifier *markov.Classifier) *blackboard.RequestSnapshot {
	normPath := markov.NormalizePath(r.URL.Path)
	snap := &blackboard.RequestSnapshot{
		Method:         r.Method,
		Path:           r.URL.Path,
		NormalizedPath: normPath,
		PathClass:      classifier.Classify(normPath),
		Query:          r.URL.RawQuery,
		Headers:        map[string][]string(r.Header),
		ClientIP:       net.ParseIP(httputil.ClientIP(r)),
		UserAgent:      r.UserAgent(),
		Cookies:        cookieMap(r),
	}

	// JA3 fingerprinting happens at the TLS listener, ahead of net/http's
	// ClientHello-stripping handshake; a terminating reverse proxy forwards
	// it as a header. No header means no fingerprint for this request, same
	// as a plain HTTP connection.
	if ja3 := r.Header.Get("X-JA3-Hash"); ja3 != "" {
		snap.TLSJA3 = ja3
	}

	if r.Body != nil && r.Method != http.MethodGet && r.Method != http.MethodHead {
		limited := io.LimitReader(r.Body, maxBodySample+1)
		read, _ := io.ReadAll(limited)
		sample := read
		if len(sample) > maxBodySample {
			sample = sample[:maxBodySample]
		}
		snap.BodySample = sample
		snap.BodyLength = len(sample)
		// Restore the body so downstream handlers can still read it: every
		// byte read here, including the overflow probe byte, is replayed
		// ahead of the unread remainder of the original body.
		r.Body = io.NopCloser(&concatReader{head: read, rest: r.Body})
	}

	return snap
}

func cookieMap(r *http.Request) map[string]string {
	cookies := r.Cookies()
	if len(cookies) == 0 {
		return nil
	}
	out := make(map[string]string, len(cookies))
	for _, c := range cookies {
		out[c.Name] = c.Value
	}
	return out
}

// concatReader replays an already-consumed prefix ahead of whatever
// remains of the original body.
type concatReader struct {
	head []byte
	pos  int
	rest io.Reader
}

func (c *concatReader) Read(p []byte) (int, error) {
	if c.pos < len(c.head) {
		n := copy(p, c.head[c.pos:])
		c.pos += n
		return n, nil
	}
	return c.rest.Read(p)
}
