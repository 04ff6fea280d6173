package detectors

import (
	"context"
	"strings"
	"time"

	"github.com/quoram/sentryflow/pkg/blackboard"
)

// InconsistencyDetector cross-checks claims a client makes about itself —
// UA-declared platform vs TLS stack, UA-declared browser vs header set —
// and flags mismatches a genuine client would never produce. It runs in
// wave 3, so the identity signals of waves 1 and 2 are already on the board.
type InconsistencyDetector struct {
	Base
}

func NewInconsistencyDetector(enabled bool, timeout time.Duration) *InconsistencyDetector {
	return &InconsistencyDetector{Base{
		DetectorName: "inconsistency",
		Wave:         3,
		Enabled:      enabled,
		Optional:     true,
		ExecTimeoutD: timeout,
	}}
}

func (d *InconsistencyDetector) Contribute(ctx context.Context, req *blackboard.RequestSnapshot, signals map[blackboard.SignalKey]blackboard.SignalValue) (blackboard.ContributeResult, error) {
	select {
	case <-ctx.Done():
		return blackboard.ContributeResult{}, ctx.Err()
	default:
	}

	var out blackboard.ContributeResult
	ua := strings.ToLower(req.UserAgent)
	var reasons []string

	if tlsClass, ok := signals[blackboard.SignalTLSClientClass]; ok && tlsClass.Kind == blackboard.KindString {
		claimsBrowser := strings.Contains(ua, "mozilla") || strings.Contains(ua, "chrome") || strings.Contains(ua, "safari")
		tlsIsScriptStack := strings.Contains(tlsClass.String, "python") || strings.Contains(tlsClass.String, "go-http")
		if claimsBrowser && tlsIsScriptStack {
			reasons = append(reasons, "UA claims a browser but TLS stack matches a scripted HTTP client")
		}
	}

	if strings.Contains(ua, "mobile") && req.Header("Sec-Ch-Ua-Mobile") == "?0" {
		reasons = append(reasons, "UA claims mobile but client hints declare non-mobile")
	}

	acceptLang := req.Header("Accept-Language")
	country, hasCountry := signals[blackboard.SignalIPCountry]
	if hasCountry && country.Kind == blackboard.KindString && acceptLang != "" {
		if country.String == "CN" && strings.HasPrefix(acceptLang, "en-") && !strings.Contains(acceptLang, "zh") {
			// weak signal on its own (VPNs and travel are common); only worth
			// a small nudge, never the deciding factor
			reasons = append(reasons, "IP geolocation and declared language disagree")
		}
	}

	if len(reasons) == 0 {
		out.Signals = append(out.Signals, signal(blackboard.SignalInconsistencyScore, blackboard.NumberValue(0)))
		return out, nil
	}

	score := float64(len(reasons)) * 0.3
	if score > 1 {
		score = 1
	}
	out.Signals = append(out.Signals, signal(blackboard.SignalInconsistencyScore, blackboard.NumberValue(score)))

	joined := reasons[0]
	for _, r := range reasons[1:] {
		joined += "; " + r
	}
	rec, err := blackboard.RecordValue(map[string]string{"reasons": joined})
	if err == nil {
		out.Signals = append(out.Signals, signal(blackboard.SignalInconsistencyReasons, rec))
	}

	weight := 0.5 + 0.4*float64(len(reasons)-1)
	if weight > 1.5 {
		weight = 1.5
	}

	out.Contributions = append(out.Contributions, contribution(
		d.Name(), blackboard.CategoryInconsistency, score, weight, joined, d.Priority(),
	))
	return out, nil
}
