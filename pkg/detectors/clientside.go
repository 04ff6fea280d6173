package detectors

import (
	"context"
	"time"

	"github.com/quoram/sentryflow/pkg/blackboard"
)

// ClientSideDetector evaluates a client-side telemetry cookie/header (the
// product of a JS challenge executed by the browser) when present.
// It fires only when the signal exists at all — absent a fingerprint,
// this detector has nothing to say.
type ClientSideDetector struct {
	Base
	// CookieName is where the host integration stores the signed
	// client-side telemetry payload once its challenge script reports in.
	CookieName string
}

func NewClientSideDetector(enabled bool, timeout time.Duration, cookieName string) *ClientSideDetector {
	if cookieName == "" {
		cookieName = "__sf_fp"
	}
	return &ClientSideDetector{
		Base: Base{
			DetectorName: "clientside",
			Wave:         1,
			Enabled:      enabled,
			Optional:     true,
			ExecTimeoutD: timeout,
		},
		CookieName: cookieName,
	}
}

func (d *ClientSideDetector) Contribute(ctx context.Context, req *blackboard.RequestSnapshot, _ map[blackboard.SignalKey]blackboard.SignalValue) (blackboard.ContributeResult, error) {
	select {
	case <-ctx.Done():
		return blackboard.ContributeResult{}, ctx.Err()
	default:
	}

	var out blackboard.ContributeResult
	payload, present := req.Cookies[d.CookieName]
	if !present || payload == "" {
		out.Signals = append(out.Signals, signal(blackboard.SignalClientAvailable, blackboard.BoolValue(false)))
		return out, nil
	}

	out.Signals = append(out.Signals, signal(blackboard.SignalClientAvailable, blackboard.BoolValue(true)))

	consistent := evaluateClientConsistency(payload, req)
	out.Signals = append(out.Signals, signal(blackboard.SignalClientConsistent, blackboard.BoolValue(consistent)))

	if consistent {
		out.Contributions = append(out.Contributions, contribution(
			d.Name(), blackboard.CategoryFingerprint, -0.4, 1.0, "client-side fingerprint consistent with declared UA/headers", d.Priority(),
		))
	} else {
		out.Contributions = append(out.Contributions, contribution(
			d.Name(), blackboard.CategoryFingerprint, 0.8, 1.5, "client-side fingerprint contradicts declared UA/headers", d.Priority(),
		))
	}
	return out, nil
}

// evaluateClientConsistency is a placeholder for the host's actual
// challenge-payload verification (signature check, canvas/WebGL hash
// cross-reference, timing-attestation replay); here it checks only that
// the payload is at least 16 bytes long and the request carries a
// User-Agent, which is enough to exercise the
// detector's contract without depending on an external JS-challenge
// service that lives outside this module's scope.
func evaluateClientConsistency(payload string, req *blackboard.RequestSnapshot) bool {
	return len(payload) >= 16 && req.UserAgent != ""
}
