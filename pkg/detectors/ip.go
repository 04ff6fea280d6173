package detectors

import (
	"context"
	"net"
	"time"

	"github.com/quoram/sentryflow/pkg/blackboard"
)

// DatacenterRange is one entry in the local, read-only cloud/hosting-range
// table. Full geo-IP/ASN databases are an external collaborator per
// SPEC_FULL's scope notes; this is the small local table the IP detector
// consults directly, the way the teacher's own detectors consult static
// in-process tables rather than a network service on the request path.
type DatacenterRange struct {
	CIDR    string
	ASN     string
	Country string
	network *net.IPNet
}

// DefaultDatacenterRanges covers the handful of major cloud ranges enough
// to exercise the detector and its tests; a production deployment would
// load a much larger table from the same YAML-driven config layer as
// detectors.yaml.
var DefaultDatacenterRanges = []DatacenterRange{
	{CIDR: "3.0.0.0/8", ASN: "AS16509", Country: "US"},     // AWS
	{CIDR: "13.64.0.0/11", ASN: "AS8075", Country: "US"},   // Azure
	{CIDR: "34.0.0.0/8", ASN: "AS15169", Country: "US"},    // GCP
	{CIDR: "35.0.0.0/8", ASN: "AS15169", Country: "US"},    // GCP
	{CIDR: "66.249.64.0/19", ASN: "AS15169", Country: "US"}, // Googlebot crawl range
	{CIDR: "104.196.0.0/14", ASN: "AS15169", Country: "US"},
	{CIDR: "157.55.0.0/16", ASN: "AS8075", Country: "US"},
}

// knownTorExitPrefixes is a tiny illustrative stand-in for a Tor exit-node
// feed; a real deployment would refresh this from an external collaborator
// (the spec's geo-IP/Tor database downloaders are explicitly out of the
// orchestrator's scope) and hand the detector the current snapshot.
var knownTorExitPrefixes = []string{"185.220.", "199.249.230."}

func compileRanges(ranges []DatacenterRange) []DatacenterRange {
	out := make([]DatacenterRange, 0, len(ranges))
	for _, r := range ranges {
		_, network, err := net.ParseCIDR(r.CIDR)
		if err != nil {
			continue
		}
		r.network = network
		out = append(out, r)
	}
	return out
}

// IPDetector classifies the client IP against the local datacenter/ASN
// table and a small Tor-exit prefix list.
type IPDetector struct {
	Base
	ranges []DatacenterRange
}

func NewIPDetector(enabled bool, timeout time.Duration, ranges []DatacenterRange) *IPDetector {
	return &IPDetector{
		Base: Base{
			DetectorName: "ip",
			Wave:         1,
			Enabled:      enabled,
			Optional:     false,
			ExecTimeoutD: timeout,
		},
		ranges: compileRanges(ranges),
	}
}

func (d *IPDetector) Contribute(ctx context.Context, req *blackboard.RequestSnapshot, _ map[blackboard.SignalKey]blackboard.SignalValue) (blackboard.ContributeResult, error) {
	select {
	case <-ctx.Done():
		return blackboard.ContributeResult{}, ctx.Err()
	default:
	}

	var out blackboard.ContributeResult
	ip := req.ClientIP
	if ip == nil {
		return out, nil
	}

	isDatacenter := false
	asn, country := "", ""
	for _, r := range d.ranges {
		if r.network != nil && r.network.Contains(ip) {
			isDatacenter = true
			asn = r.ASN
			country = r.Country
			break
		}
	}

	out.Signals = append(out.Signals, signal(blackboard.SignalIPIsDatacenter, blackboard.BoolValue(isDatacenter)))
	if asn != "" {
		out.Signals = append(out.Signals, signal(blackboard.SignalIPASN, blackboard.StringValue(asn)))
	}
	if country != "" {
		out.Signals = append(out.Signals, signal(blackboard.SignalIPCountry, blackboard.StringValue(country)))
	}

	if isDatacenter {
		out.Contributions = append(out.Contributions, contribution(
			d.Name(), blackboard.CategoryIP, 0.5, 1.0, "client IP resolves to a datacenter/cloud range ("+asn+")", d.Priority(),
		))
	}

	isTor := false
	s := ip.String()
	for _, p := range knownTorExitPrefixes {
		if len(s) >= len(p) && s[:len(p)] == p {
			isTor = true
			break
		}
	}
	out.Signals = append(out.Signals, signal(blackboard.SignalIPIsTor, blackboard.BoolValue(isTor)))
	if isTor {
		out.Contributions = append(out.Contributions, contribution(
			d.Name(), blackboard.CategoryIP, 0.6, 1.2, "client IP is a known Tor exit node", d.Priority(),
		))
	}

	return out, nil
}
