package cluster

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct{ feats []Features }

func (s staticSource) Snapshot() []Features { return s.feats }

func syntheticPopulation() []Features {
	var feats []Features
	for i := 0; i < 12; i++ {
		feats = append(feats, Features{
			SignatureID:      fmt.Sprintf("bot-%d", i),
			RequestRate:      120,
			PathEntropy:      0.1,
			IsDatacenter:     true,
			Country:          "US",
			AvgBotProb:       0.85,
			TimingRegularity: 0.95,
		})
	}
	for i := 0; i < 8; i++ {
		feats = append(feats, Features{
			SignatureID:      fmt.Sprintf("human-%d", i),
			RequestRate:      float64(1 + i),
			PathEntropy:      0.6 + float64(i)*0.01,
			IsDatacenter:     false,
			Country:          "DE",
			AvgBotProb:       0.1,
			TimingRegularity: 0.2 + float64(i)*0.05,
		})
	}
	return feats
}

func TestClusterFormationGroupsSimilarSignatures(t *testing.T) {
	opts := DefaultOptions()
	engine := New(opts, staticSource{feats: syntheticPopulation()})

	snap := engine.RunOnce()
	require.NotEmpty(t, snap.Clusters)

	botClusterID, _, ok := snap.ClusterFor("bot-0")
	require.True(t, ok)
	for i := 0; i < 12; i++ {
		id, _, ok := snap.ClusterFor(fmt.Sprintf("bot-%d", i))
		require.True(t, ok)
		assert.Equal(t, botClusterID, id)
	}

	var botCluster Cluster
	for _, c := range snap.Clusters {
		if c.ID == botClusterID {
			botCluster = c
		}
	}
	assert.Greater(t, botCluster.AvgBotProbability, 0.7)
}

func TestLeidenDeterministicUnderFixedSeed(t *testing.T) {
	pop := syntheticPopulation()
	weights := AdaptiveWeights(pop)
	ranges := FeatureRanges(pop)
	ids := make([]string, len(pop))
	for i, f := range pop {
		ids[i] = f.SignatureID
	}

	sim := func(i, j int) float64 { return Similarity(pop[i], pop[j], weights, ranges) }
	g1 := buildGraph(ids, sim, 0.7)
	g2 := buildGraph(ids, sim, 0.7)

	r1 := RunLeiden(g1, 1.0, 10, 42)
	r2 := RunLeiden(g2, 1.0, 10, 42)
	assert.Equal(t, r1.labels, r2.labels)
}

func TestAdaptiveWeightsSumToOneAndClamped(t *testing.T) {
	weights := AdaptiveWeights(syntheticPopulation())
	var sum float64
	for _, w := range weights {
		assert.GreaterOrEqual(t, w, weightFloor-1e-9)
		assert.LessOrEqual(t, w, weightCeiling+1e-9)
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}
