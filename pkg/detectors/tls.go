package detectors

import (
	"context"
	"time"

	"github.com/quoram/sentryflow/pkg/blackboard"
)

// KnownJA3 pairs a JA3 hash with the client class it is known to
// represent (e.g. a specific HTTP client library's default TLS stack).
type KnownJA3 struct {
	Hash        string
	ClientClass string
	BotPositive bool // true when this JA3 corresponds to a scripted client
}

// DefaultKnownJA3 is a small illustrative table; production deployments
// load a much larger one from the same config layer.
var DefaultKnownJA3 = []KnownJA3{
	{Hash: "e7d705a3286e19ea42f587b344ee6865", ClientClass: "python-requests", BotPositive: true},
	{Hash: "6734f37431670b3ab4292b8f60f29984", ClientClass: "go-http-client", BotPositive: true},
	{Hash: "cd08e31494f9531f560d64c695473da9", ClientClass: "chrome-120-desktop", BotPositive: false},
}

// TLSDetector compares the TLS client handshake fingerprint (JA3) against
// known signatures. It only fires when a fingerprint is available on the
// connection; absent a JA3 hash, nothing about this request says anything
// about the connection-level TLS stack, so the detector contributes
// nothing rather than guessing.
type TLSDetector struct {
	Base
	known map[string]KnownJA3
}

func NewTLSDetector(enabled bool, timeout time.Duration, table []KnownJA3) *TLSDetector {
	m := make(map[string]KnownJA3, len(table))
	for _, k := range table {
		m[k.Hash] = k
	}
	return &TLSDetector{
		Base: Base{
			DetectorName: "tls_ja3",
			Wave:         1,
			Enabled:      enabled,
			Optional:     false,
			ExecTimeoutD: timeout,
		},
		known: m,
	}
}

func (d *TLSDetector) Contribute(ctx context.Context, req *blackboard.RequestSnapshot, _ map[blackboard.SignalKey]blackboard.SignalValue) (blackboard.ContributeResult, error) {
	select {
	case <-ctx.Done():
		return blackboard.ContributeResult{}, ctx.Err()
	default:
	}

	var out blackboard.ContributeResult
	if req.TLSJA3 == "" {
		return out, nil
	}

	out.Signals = append(out.Signals, signal(blackboard.SignalTLSJA3Hash, blackboard.StringValue(req.TLSJA3)))

	kb, ok := d.known[req.TLSJA3]
	if !ok {
		return out, nil
	}
	out.Signals = append(out.Signals, signal(blackboard.SignalTLSClientClass, blackboard.StringValue(kb.ClientClass)))

	if kb.BotPositive {
		out.Contributions = append(out.Contributions, contribution(
			d.Name(), blackboard.CategoryFingerprint, 0.75, 1.2, "TLS fingerprint matches known scripted client: "+kb.ClientClass, d.Priority(),
		))
	} else {
		out.Contributions = append(out.Contributions, contribution(
			d.Name(), blackboard.CategoryFingerprint, -0.3, 0.6, "TLS fingerprint matches known browser stack: "+kb.ClientClass, d.Priority(),
		))
	}
	return out, nil
}
