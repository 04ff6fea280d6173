package detectors

import (
	"context"
	"time"

	"github.com/quoram/sentryflow/pkg/blackboard"
)

// HeaderDetector inspects header presence and, as far as the snapshot
// records it, ordering (see headerNamesInOrder). Real browsers send
// a consistent Accept/Accept-Language/Accept-Encoding set in a consistent
// relative order; most scripted clients omit one or send them out of
// order.
type HeaderDetector struct {
	Base
}

func NewHeaderDetector(enabled bool, timeout time.Duration) *HeaderDetector {
	return &HeaderDetector{Base{
		DetectorName: "header",
		Wave:         1,
		Enabled:      enabled,
		Optional:     false,
		ExecTimeoutD: timeout,
	}}
}

// canonicalOrder is the relative order real browsers send these headers
// in; used only to detect out-of-order submissions, not to require exact
// adjacency.
var canonicalOrder = []string{"Accept", "Accept-Language", "Accept-Encoding"}

func (d *HeaderDetector) Contribute(ctx context.Context, req *blackboard.RequestSnapshot, _ map[blackboard.SignalKey]blackboard.SignalValue) (blackboard.ContributeResult, error) {
	select {
	case <-ctx.Done():
		return blackboard.ContributeResult{}, ctx.Err()
	default:
	}

	var out blackboard.ContributeResult

	if req.Header("Accept") == "" {
		out.Contributions = append(out.Contributions, contribution(
			d.Name(), blackboard.CategoryHeader, 0.4, 0.8, "missing Accept header", d.Priority(),
		))
		out.Signals = append(out.Signals, signal(blackboard.SignalHdrMissingAccept, blackboard.BoolValue(true)))
	} else {
		out.Signals = append(out.Signals, signal(blackboard.SignalHdrMissingAccept, blackboard.BoolValue(false)))
	}

	order := headerNamesInOrder(req.Headers)
	if suspiciousOrder(order) {
		out.Contributions = append(out.Contributions, contribution(
			d.Name(), blackboard.CategoryHeader, 0.3, 0.6, "headers submitted out of canonical order", d.Priority(),
		))
		out.Signals = append(out.Signals, signal(blackboard.SignalHdrSuspiciousOrder, blackboard.BoolValue(true)))
	} else {
		out.Signals = append(out.Signals, signal(blackboard.SignalHdrSuspiciousOrder, blackboard.BoolValue(false)))
	}

	if req.Header("Accept-Language") != "" && req.Header("Accept-Encoding") != "" && req.Header("Accept") != "" && !suspiciousOrder(order) {
		out.Contributions = append(out.Contributions, contribution(
			d.Name(), blackboard.CategoryHeader, -0.2, 0.4, "full canonical header set present", d.Priority(),
		))
	}

	return out, nil
}

// headerNamesInOrder returns the canonicalOrder headers present in headers,
// always listed in canonical order. RequestSnapshot.Headers is a map and
// records no arrival order, so the list Contribute hands to suspiciousOrder
// is never out of order: the out-of-order contribution and a true
// hdr.suspicious_order are not produced for a snapshot.
func headerNamesInOrder(headers map[string][]string) []string {
	var present []string
	for _, name := range canonicalOrder {
		if _, ok := headers[name]; ok {
			present = append(present, name)
		}
	}
	return present
}

func suspiciousOrder(present []string) bool {
	if len(present) < 2 {
		return false
	}
	idx := make(map[string]int, len(canonicalOrder))
	for i, n := range canonicalOrder {
		idx[n] = i
	}
	for i := 1; i < len(present); i++ {
		if idx[present[i]] < idx[present[i-1]] {
			return true
		}
	}
	return false
}
