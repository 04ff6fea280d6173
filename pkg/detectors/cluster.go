package detectors

import (
	"context"
	"time"

	"github.com/quoram/sentryflow/pkg/blackboard"
	"github.com/quoram/sentryflow/pkg/cluster"
)

// ClusterDetector consults the background-recomputed cluster snapshot for
// the signature's community membership and that community's average bot
// probability. It never blocks on a recompute: Current() returns whatever
// snapshot is currently published, which may be empty on a cold start.
type ClusterDetector struct {
	Base
	Engine *cluster.Engine
}

func NewClusterDetector(enabled bool, timeout time.Duration, engine *cluster.Engine) *ClusterDetector {
	return &ClusterDetector{
		Base: Base{
			DetectorName: "cluster",
			Wave:         3,
			Enabled:      enabled,
			Optional:     true,
			ExecTimeoutD: timeout,
		},
		Engine: engine,
	}
}

func (d *ClusterDetector) Contribute(ctx context.Context, req *blackboard.RequestSnapshot, _ map[blackboard.SignalKey]blackboard.SignalValue) (blackboard.ContributeResult, error) {
	select {
	case <-ctx.Done():
		return blackboard.ContributeResult{}, ctx.Err()
	default:
	}

	var out blackboard.ContributeResult
	snap := d.Engine.Current()
	if snap == nil {
		return out, nil
	}

	sigID := RequestSignatureID(req)
	clusterID, avgBotProb, ok := snap.ClusterFor(sigID)
	if !ok {
		return out, nil
	}

	out.Signals = append(out.Signals,
		signal(blackboard.SignalClusterID, blackboard.StringValue(clusterID)),
		signal(blackboard.SignalClusterAvgBotProb, blackboard.NumberValue(avgBotProb)),
	)

	size := 0
	for _, c := range snap.Clusters {
		if c.ID == clusterID {
			size = len(c.MemberSignatureIDs)
			break
		}
	}
	if size < 3 {
		return out, nil
	}

	// A signature's own evidence is corroborated or contradicted by the
	// company it keeps: membership in a cluster that already skews bot-like
	// (or human-like) is itself evidence, scaled down by cluster size so a
	// two-member cohort can't swing a verdict on its own.
	delta := (avgBotProb - 0.5) * 2
	weight := 0.5
	if size >= 10 {
		weight = 0.9
	}
	if delta > 1 {
		delta = 1
	} else if delta < -1 {
		delta = -1
	}

	reason := "cluster cohort average bot probability"
	out.Contributions = append(out.Contributions, contribution(
		d.Name(), blackboard.CategoryCluster, delta, weight, reason, d.Priority(),
	))
	return out, nil
}
