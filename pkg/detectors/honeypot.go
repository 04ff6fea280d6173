package detectors

import (
	"bytes"
	"context"
	"time"

	"github.com/quoram/sentryflow/pkg/blackboard"
)

// HoneypotDetector matches the request path and a small set of decoy
// form-field names against an invisible-to-humans trap list, and — since
// both are "this request is definitely not legitimate traffic" signals
// that cost nothing to check together — also checks for the path/UA
// markers left by known vulnerability scanners. A hit on either is
// near-definitive, so this detector carries the catalog's highest weight.
type HoneypotDetector struct {
	Base
	TrapPaths  map[string]struct{}
	TrapFields [][]byte
}

// DefaultTrapPaths are decoy endpoints never linked from rendered pages,
// only present in robots.txt disallow entries or hidden markup, so any hit
// means the requester is walking links a human never clicked.
var DefaultTrapPaths = []string{
	"/wp-admin/install.php", "/.env", "/admin/config.bak", "/__trap/ping",
}

// DefaultTrapFields are hidden form-field names styled to catch naive
// autofill bots; real browsers never populate a field that CSS hides.
var DefaultTrapFields = []string{"hp_email", "confirm_url", "website_url_hidden"}

// securityToolPathMarkers are path probes left by automated vulnerability
// scanners, distinct from generic HTTP client libraries: these are
// attack-surface probes, not API consumers.
var securityToolPathMarkers = []string{
	"/wp-login.php", "/phpmyadmin", "/.git/config", "/etc/passwd", "sqlmap",
}

// securityToolUAMarkers are scanner tool names that sometimes appear in
// their own User-Agent string, unlike the generic HTTP-client markers the
// UserAgent detector already covers.
var securityToolUAMarkers = []string{"sqlmap", "nikto", "nuclei", "nmap"}

func NewHoneypotDetector(enabled bool, timeout time.Duration, trapPaths, trapFields []string) *HoneypotDetector {
	paths := make(map[string]struct{}, len(trapPaths))
	for _, p := range trapPaths {
		paths[p] = struct{}{}
	}
	fields := make([][]byte, 0, len(trapFields))
	for _, f := range trapFields {
		fields = append(fields, []byte(f))
	}
	return &HoneypotDetector{
		Base: Base{
			DetectorName: "honeypot",
			Wave:         1,
			Enabled:      enabled,
			Optional:     false,
			ExecTimeoutD: timeout,
		},
		TrapPaths:  paths,
		TrapFields: fields,
	}
}

func (d *HoneypotDetector) Contribute(ctx context.Context, req *blackboard.RequestSnapshot, _ map[blackboard.SignalKey]blackboard.SignalValue) (blackboard.ContributeResult, error) {
	select {
	case <-ctx.Done():
		return blackboard.ContributeResult{}, ctx.Err()
	default:
	}

	var out blackboard.ContributeResult
	honeypotHit := false

	if _, hit := d.TrapPaths[req.NormalizedPath]; hit {
		honeypotHit = true
		out.Contributions = append(out.Contributions, contribution(
			d.Name(), blackboard.CategoryHoneypot, 0.95, 2.0, "path matches honeypot trap: "+req.NormalizedPath, d.Priority(),
		))
	} else {
		for _, field := range d.TrapFields {
			if len(req.BodySample) > 0 && bytes.Contains(req.BodySample, field) {
				honeypotHit = true
				out.Contributions = append(out.Contributions, contribution(
					d.Name(), blackboard.CategoryHoneypot, 0.9, 1.8, "form submission populated hidden trap field", d.Priority(),
				))
				break
			}
		}
	}
	out.Signals = append(out.Signals, signal(blackboard.SignalHoneypotHit, blackboard.BoolValue(honeypotHit)))

	secToolHit := matchesScannerSignature(req)
	out.Signals = append(out.Signals, signal(blackboard.SignalSecTool, blackboard.BoolValue(secToolHit)))
	if secToolHit {
		out.Contributions = append(out.Contributions, contribution(
			d.Name(), blackboard.CategorySecurityTool, 0.95, 2.0, "request matches known vulnerability-scanner signature", d.Priority(),
		))
	}

	return out, nil
}

func matchesScannerSignature(req *blackboard.RequestSnapshot) bool {
	path := req.NormalizedPath
	for _, marker := range securityToolPathMarkers {
		if len(path) >= len(marker) && containsFold(path, marker) {
			return true
		}
	}
	for _, marker := range securityToolUAMarkers {
		if containsFold(req.UserAgent, marker) {
			return true
		}
	}
	return false
}

func containsFold(s, substr string) bool {
	return len(substr) > 0 && indexFold(s, substr) >= 0
}

// indexFold is a tiny ASCII-lowercase-insensitive substring search, avoiding
// a strings.ToLower allocation on every request for what is a cold path
// outside the normal good-traffic case.
func indexFold(s, substr string) int {
	n, m := len(s), len(substr)
	if m == 0 || m > n {
		return -1
	}
outer:
	for i := 0; i+m <= n; i++ {
		for j := 0; j < m; j++ {
			a, b := s[i+j], substr[j]
			if 'A' <= a && a <= 'Z' {
				a += 'a' - 'A'
			}
			if 'A' <= b && b <= 'Z' {
				b += 'a' - 'A'
			}
			if a != b {
				continue outer
			}
		}
		return i
	}
	return -1
}
