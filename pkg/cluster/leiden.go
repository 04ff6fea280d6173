package cluster

import (
	"math/rand"
	"sort"
)

// graph is the weighted similarity graph clustering operates over: an edge
// exists between i and j when Similarity(i,j) >= threshold.
type graph struct {
	nodes     []string // node id = signature id, index = node index
	neighbors [][]int
	weights   [][]float64 // weights[i][k] is the weight of the edge to neighbors[i][k]
}

func buildGraph(ids []string, sim func(i, j int) float64, threshold float64) *graph {
	n := len(ids)
	g := &graph{nodes: ids, neighbors: make([][]int, n), weights: make([][]float64, n)}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			w := sim(i, j)
			if w < threshold {
				continue
			}
			g.neighbors[i] = append(g.neighbors[i], j)
			g.weights[i] = append(g.weights[i], w)
			g.neighbors[j] = append(g.neighbors[j], i)
			g.weights[j] = append(g.weights[j], w)
		}
	}
	return g
}

// leidenResult is the node->community label assignment, compacted to [0,k).
type leidenResult struct {
	labels []int // labels[i] is node i's community
}

// RunLeiden performs deterministic Leiden-style community detection under
// the Constant Potts Model quality function, per SPEC_FULL §4.3: local
// moving to a CPM-maximizing neighbor community, then a connectivity
// refinement pass, repeated until no move occurs or maxIterations is hit.
// Same graph + same seed always yields the same (compacted) label
// assignment.
func RunLeiden(g *graph, resolution float64, maxIterations int, seed int64) leidenResult {
	n := len(g.nodes)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = i // every node starts in its own community
	}
	if n == 0 {
		return leidenResult{labels: labels}
	}

	rng := rand.New(rand.NewSource(seed))
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	commSize := make(map[int]int, n)
	for i := range labels {
		commSize[labels[i]]++
	}

	for iter := 0; iter < maxIterations; iter++ {
		rng.Shuffle(len(order), func(a, b int) { order[a], order[b] = order[b], order[a] })

		improved := false
		for _, node := range order {
			improved = localMove(g, labels, commSize, node, resolution) || improved
		}

		refine(g, labels)

		if !improved {
			break
		}
	}

	compact(labels)
	return leidenResult{labels: labels}
}

// localMove evaluates moving node to each neighboring community and
// relocates it to whichever maximizes CPM gain, including staying put.
// Returns whether a move actually happened.
func localMove(g *graph, labels []int, commSize map[int]int, node int, resolution float64) bool {
	current := labels[node]

	// w_in(candidate) contribution from node's edges into each candidate
	// community, summed by community label.
	wInByComm := make(map[int]float64)
	for k, nb := range g.neighbors[node] {
		wInByComm[labels[nb]] += g.weights[node][k]
	}

	bestComm := current
	bestGain := 0.0

	candidates := make([]int, 0, len(wInByComm)+1)
	for c := range wInByComm {
		candidates = append(candidates, c)
	}
	sort.Ints(candidates) // deterministic iteration order

	currentSize := commSize[current]
	for _, cand := range candidates {
		if cand == current {
			continue
		}
		candSize := commSize[cand]
		gain := wInByComm[cand] - wInByComm[current] -
			resolution*(float64(candSize)-float64(currentSize-1))
		if gain > bestGain {
			bestGain = gain
			bestComm = cand
		}
	}

	if bestComm == current {
		return false
	}

	commSize[current]--
	if commSize[current] == 0 {
		delete(commSize, current)
	}
	commSize[bestComm]++
	labels[node] = bestComm
	return true
}

// refine splits any community whose induced subgraph is disconnected: the
// largest connected component keeps the community's id, the rest are
// assigned fresh ids above every label in use so collisions cannot occur.
// Communities are visited in ascending label order so the fresh ids are the
// same on every run.
func refine(g *graph, labels []int) {
	n := len(labels)
	byComm := make(map[int][]int)
	freshBase := n // above every label currently in use
	for i, c := range labels {
		byComm[c] = append(byComm[c], i)
		if c >= freshBase {
			freshBase = c + 1
		}
	}
	comms := make([]int, 0, len(byComm))
	for c := range byComm {
		comms = append(comms, c)
	}
	sort.Ints(comms)

	freshCounter := 0

	for _, comm := range comms {
		members := byComm[comm]
		if len(members) <= 1 {
			continue
		}
		memberSet := make(map[int]struct{}, len(members))
		for _, m := range members {
			memberSet[m] = struct{}{}
		}

		components := connectedComponents(g, members, memberSet)
		if len(components) <= 1 {
			continue
		}

		sort.Slice(components, func(a, b int) bool { return len(components[a]) > len(components[b]) })
		// components[0] (largest) keeps `comm`; the rest get fresh ids.
		for _, comp := range components[1:] {
			freshCounter++
			newLabel := freshBase + freshCounter
			for _, node := range comp {
				labels[node] = newLabel
			}
		}
	}
}

func connectedComponents(g *graph, members []int, memberSet map[int]struct{}) [][]int {
	visited := make(map[int]bool, len(members))
	var components [][]int

	for _, start := range members {
		if visited[start] {
			continue
		}
		var comp []int
		queue := []int{start}
		visited[start] = true
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			comp = append(comp, cur)
			for _, nb := range g.neighbors[cur] {
				if _, inComm := memberSet[nb]; !inComm || visited[nb] {
					continue
				}
				visited[nb] = true
				queue = append(queue, nb)
			}
		}
		components = append(components, comp)
	}
	return components
}

// compact relabels communities to a contiguous [0,k) range, in order of
// first appearance, so output labels are stable/presentable regardless of
// the (possibly large, sparse) internal ids refine() assigned.
func compact(labels []int) {
	next := 0
	seen := make(map[int]int)
	for i, c := range labels {
		nl, ok := seen[c]
		if !ok {
			nl = next
			seen[c] = nl
			next++
		}
		labels[i] = nl
	}
}
