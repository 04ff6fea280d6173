package cluster

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"
)

// Options configures the clustering cadence and the Leiden parameters.
type Options struct {
	Interval            time.Duration
	Resolution          float64
	SimilarityThreshold float64
	MaxIterations       int
	// ChurnDelta triggers an out-of-cadence recompute when the number of
	// active signatures changes by at least this many since the last cycle.
	ChurnDelta int
	Seed       int64
}

func DefaultOptions() Options {
	return Options{
		Interval:            30 * time.Second,
		Resolution:          1.0,
		SimilarityThreshold: 0.7,
		MaxIterations:       10,
		ChurnDelta:          25,
		Seed:                1,
	}
}

// FeatureSource supplies the current population of signature feature
// vectors for a clustering cycle. The orchestrator's behavioral/Markov
// detectors are responsible for keeping this up to date; the cluster
// engine only reads.
type FeatureSource interface {
	Snapshot() []Features
}

// WeightDriftObserver is notified when adaptive per-feature weights shift
// by more than the alert threshold between cycles.
type WeightDriftObserver func(shift map[string]float64)

// Engine is the process-wide singleton clustering worker. The current
// clustering is stored behind an atomic pointer; RunOnce publishes a new
// snapshot, Current reads it without blocking on a recompute in progress.
type Engine struct {
	opts   Options
	source FeatureSource

	current atomic.Pointer[Snapshot]

	onWeightDrift WeightDriftObserver
	lastSeenCount int
	cycleSeq      int64
}

// New constructs an engine seeded with an empty snapshot.
func New(opts Options, source FeatureSource) *Engine {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 10
	}
	e := &Engine{opts: opts, source: source}
	e.current.Store(&Snapshot{BySignatureID: map[string]string{}})
	return e
}

// OnWeightDrift registers a callback invoked after each cycle with the set
// of features whose adaptive weight shifted beyond the alert threshold.
func (e *Engine) OnWeightDrift(fn WeightDriftObserver) { e.onWeightDrift = fn }

// Current returns the most recently published snapshot. Never blocks.
func (e *Engine) Current() *Snapshot {
	return e.current.Load()
}

// ShouldRecomputeForChurn reports whether the active-signature count has
// drifted enough since the last cycle to warrant an out-of-cadence run.
func (e *Engine) ShouldRecomputeForChurn(activeCount int) bool {
	delta := activeCount - e.lastSeenCount
	if delta < 0 {
		delta = -delta
	}
	return delta >= e.opts.ChurnDelta
}

// RunOnce executes one clustering cycle: fetch the population, compute
// adaptive weights, build the similarity graph, run Leiden, and publish a
// new snapshot. Deterministic for a fixed population and seed.
func (e *Engine) RunOnce() *Snapshot {
	pop := e.source.Snapshot()
	e.lastSeenCount = len(pop)
	e.cycleSeq++

	prev := e.current.Load()

	if len(pop) == 0 {
		snap := &Snapshot{BySignatureID: map[string]string{}, CycleSeq: e.cycleSeq}
		e.current.Store(snap)
		return snap
	}

	weights := AdaptiveWeights(pop)
	if e.onWeightDrift != nil && prev != nil && len(prev.FeatureWeights) > 0 {
		if drift := WeightDrift(prev.FeatureWeights, weights); len(drift) > 0 {
			e.onWeightDrift(drift)
		}
	}

	ranges := FeatureRanges(pop)
	ids := make([]string, len(pop))
	byIdx := make(map[int]Features, len(pop))
	for i, f := range pop {
		ids[i] = f.SignatureID
		byIdx[i] = f
	}

	g := buildGraph(ids, func(i, j int) float64 {
		return Similarity(byIdx[i], byIdx[j], weights, ranges)
	}, e.opts.SimilarityThreshold)

	result := RunLeiden(g, e.opts.Resolution, e.opts.MaxIterations, e.opts.Seed)

	clusters := buildClusters(pop, result.labels)
	computeStability(clusters, prev)

	byID := make(map[string]string, len(pop))
	for i, f := range pop {
		byID[f.SignatureID] = clusters[result.labels[i]].ID
	}

	snap := &Snapshot{
		Clusters:       clusters,
		BySignatureID:  byID,
		FeatureWeights: weights,
		CycleSeq:       e.cycleSeq,
	}
	e.current.Store(snap)
	return snap
}

func buildClusters(pop []Features, labels []int) []Cluster {
	maxLabel := -1
	for _, l := range labels {
		if l > maxLabel {
			maxLabel = l
		}
	}
	clusters := make([]Cluster, maxLabel+1)
	for i := range clusters {
		clusters[i] = Cluster{ID: fmt.Sprintf("cohort-%d", i), Centroid: map[string]float64{}}
	}

	for i, f := range pop {
		c := &clusters[labels[i]]
		c.MemberSignatureIDs = append(c.MemberSignatureIDs, f.SignatureID)
		c.AvgBotProbability += f.AvgBotProb
		for _, name := range continuousFields {
			c.Centroid[name] += f.continuousValue(name)
		}
	}

	for i := range clusters {
		c := &clusters[i]
		n := float64(len(c.MemberSignatureIDs))
		if n == 0 {
			continue
		}
		c.AvgBotProbability /= n
		for k := range c.Centroid {
			c.Centroid[k] /= n
		}
		c.CohortName = cohortNameFor(*c)
		sort.Strings(c.MemberSignatureIDs)
	}
	return clusters
}

// cohortNameFor derives a human-readable label from the centroid, purely
// for observability (dashboards, logs) — it has no effect on clustering.
func cohortNameFor(c Cluster) string {
	switch {
	case c.AvgBotProbability >= 0.8:
		return "high-risk-cohort"
	case c.AvgBotProbability >= 0.5:
		return "elevated-risk-cohort"
	case c.AvgBotProbability <= 0.2:
		return "low-risk-cohort"
	default:
		return "mixed-cohort"
	}
}

// computeStability sets each new cluster's Stability to the Jaccard
// overlap with whichever previous cluster shares the most members, 0 if
// there is no previous snapshot or no overlap.
func computeStability(clusters []Cluster, prev *Snapshot) {
	if prev == nil || len(prev.Clusters) == 0 {
		return
	}
	for i := range clusters {
		cur := clusters[i]
		curSet := toSet(cur.MemberSignatureIDs)
		best := 0.0
		for _, p := range prev.Clusters {
			j := jaccard(curSet, toSet(p.MemberSignatureIDs))
			if j > best {
				best = j
			}
		}
		clusters[i].Stability = best
	}
}

func toSet(ids []string) map[string]struct{} {
	s := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Run starts the background recompute loop on the configured interval,
// returning when ctx is cancelled. Mirrors the teacher's monotonic-clock
// ticker pattern for hosted background workers.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.RunOnce()
		}
	}
}
