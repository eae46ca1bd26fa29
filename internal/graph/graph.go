// Package graph computes whole-engine health metrics (coherence, vitality)
// and exposes decay/prune/connect operations over the union of hot, warm,
// and cold storage tiers (spec §4.E). Adjacency lives on the Node itself;
// the Graph carries only in-RAM aggregation logic, grounded on the
// teacher's apoc/graph and apoc/scoring packages.
//
// Example:
//
//	g := graph.New(store)
//	tau := g.ComputeCoherence(time.Now())
//	if tau.Tau() < 0.3 {
//	    g.Prune(0.2)
//	}
package graph

import (
	"math"
	"time"

	"github.com/chitta-project/chitta/internal/node"
	"github.com/chitta-project/chitta/internal/storage"
)

// Graph is the union of hot+warm+cold nodes, computing whole-store metrics
// over whatever the storage engine currently holds in the hot tier (the
// metrics that require a full scan — coherence, vitality — only examine
// hot, since that's the only tier with live data in RAM; spec §4.E).
type Graph struct {
	store *storage.Engine
}

// New wraps a storage engine.
func New(store *storage.Engine) *Graph {
	return &Graph{store: store}
}

// Connect appends an outbound edge from `from` to `to`, coalescing
// duplicates by keeping the larger weight (spec §4.E connect).
func (g *Graph) Connect(from node.ID, to node.ID, edgeType node.EdgeType, weight float64) error {
	n, _, err := g.store.Peek(from)
	if err != nil {
		return err
	}
	n.Connect(to, edgeType, weight)
	return g.store.Update(n)
}

// ApplyDecay iterates every hot node and applies Confidence.ApplyDecay using
// its own decay rate and days since last access (spec §4.E apply_decay).
func (g *Graph) ApplyDecay(now time.Time) error {
	return g.store.ForEachHot(func(n *node.Node) error {
		days := n.DaysSinceAccessed(now)
		n.Confidence = n.Confidence.ApplyDecay(n.DecayRate, days)
		return g.store.Update(n)
	})
}

// Prune removes every prunable hot node whose effective confidence falls
// below threshold (spec §4.E prune, spec invariant #3: Invariant and Belief
// are never removed this way regardless of confidence). Returns the count
// removed.
func (g *Graph) Prune(threshold float64) (int, error) {
	var toRemove []node.ID
	err := g.store.ForEachHot(func(n *node.Node) error {
		if n.Prunable() && n.Confidence.Effective() < threshold {
			toRemove = append(toRemove, n.ID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, id := range toRemove {
		if err := g.store.Remove(id); err != nil && err != storage.ErrNotFound {
			return 0, err
		}
	}
	return len(toRemove), nil
}

// Coherence is the composite health score, tau_k, and its four components
// (spec §4.E compute_coherence).
type Coherence struct {
	Local      float64
	Global     float64
	Temporal   float64
	Structural float64
}

// Tau combines the four components into the single scalar tau_k =
// 0.3*local + 0.3*global + 0.2*temporal + 0.2*structural.
func (c Coherence) Tau() float64 {
	return 0.3*c.Local + 0.3*c.Global + 0.2*c.Temporal + 0.2*c.Structural
}

var importanceWeight = map[node.Type]float64{
	node.Invariant: 2.0,
	node.Belief:    1.5,
	node.Wisdom:    1.2,
	node.Failure:   1.0,
	node.Intention: 0.8,
	node.Episode:   0.5,
	node.Term:      0.3,
}

// ComputeCoherence scans the hot tier and derives the four coherence
// components exactly as spec §4.E defines them.
func (g *Graph) ComputeCoherence(now time.Time) Coherence {
	var nodes []*node.Node
	_ = g.store.ForEachHot(func(n *node.Node) error {
		nodes = append(nodes, n)
		return nil
	})
	return Coherence{
		Local:      localCoherence(nodes),
		Global:     globalCoherence(nodes),
		Temporal:   temporalCoherence(nodes, now),
		Structural: structuralCoherence(nodes),
	}
}

// localCoherence is 1 - contradiction_ratio - 0.3*tension_ratio.
func localCoherence(nodes []*node.Node) float64 {
	var totalEdges, contradictEdges int
	for _, n := range nodes {
		totalEdges += len(n.Edges)
		for _, e := range n.Edges {
			if e.Type == node.Contradicts {
				contradictEdges++
			}
		}
	}
	var contradictionRatio float64
	if totalEdges > 0 {
		contradictionRatio = float64(contradictEdges) / float64(totalEdges)
	}

	return 1 - contradictionRatio - 0.3*tensionRatio(nodes)
}

// tensionRatio samples up to 100 Belief/Wisdom pairs and counts those with
// cosine similarity > 0.7 but no Supports/Similar edge between them — an
// unacknowledged semantic overlap (spec §4.E local).
func tensionRatio(nodes []*node.Node) float64 {
	var candidates []*node.Node
	for _, n := range nodes {
		if n.NodeType == node.Belief || n.NodeType == node.Wisdom {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) < 2 {
		return 0
	}

	const maxSamples = 100
	sampled, tense := 0, 0
outer:
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			if sampled >= maxSamples {
				break outer
			}
			a, b := candidates[i], candidates[j]
			sampled++
			if a.Embedding.Cosine(b.Embedding) <= 0.7 {
				continue
			}
			if hasEdgeBetween(a, b, node.Supports) || hasEdgeBetween(a, b, node.Similar) ||
				hasEdgeBetween(b, a, node.Supports) || hasEdgeBetween(b, a, node.Similar) {
				continue
			}
			tense++
		}
	}
	if sampled == 0 {
		return 0
	}
	return float64(tense) / float64(sampled)
}

func hasEdgeBetween(from, to *node.Node, t node.EdgeType) bool {
	for _, e := range from.Edges {
		if e.Target == to.ID && e.Type == t {
			return true
		}
	}
	return false
}

// globalCoherence is the importance-weighted mean effective confidence,
// penalised by 0.5*sqrt(variance) among important (weighted) nodes.
func globalCoherence(nodes []*node.Node) float64 {
	var weightedSum, weightSum float64
	var samples []float64
	var sampleWeights []float64
	for _, n := range nodes {
		w, ok := importanceWeight[n.NodeType]
		if !ok {
			continue
		}
		eff := n.Confidence.Effective()
		weightedSum += w * eff
		weightSum += w
		samples = append(samples, eff)
		sampleWeights = append(sampleWeights, w)
	}
	if weightSum == 0 {
		return 1.0
	}
	mean := weightedSum / weightSum
	variance := weightedVariance(samples, sampleWeights, mean, weightSum)
	return clamp01(mean - 0.5*math.Sqrt(variance))
}

func weightedVariance(samples, weights []float64, mean, weightSum float64) float64 {
	if weightSum == 0 {
		return 0
	}
	var acc float64
	for i, x := range samples {
		d := x - mean
		acc += weights[i] * d * d
	}
	return acc / weightSum
}

// temporalCoherence is clamp(0.3 + 0.4*activity_ratio + 0.3*maturity_ratio).
func temporalCoherence(nodes []*node.Node, now time.Time) float64 {
	if len(nodes) == 0 {
		return 1.0
	}
	var activityScore float64
	for _, n := range nodes {
		days := n.DaysSinceAccessed(now)
		switch {
		case days <= 7:
			activityScore += 1.0
		case days <= 30:
			activityScore += 0.5
		}
	}
	activityRatio := activityScore / float64(len(nodes))

	var matureSum float64
	matureCount := 0
	for _, n := range nodes {
		if n.NodeType != node.Wisdom && n.NodeType != node.Belief {
			continue
		}
		if now.Sub(n.CreatedAt) <= 7*24*time.Hour {
			continue
		}
		matureSum += n.Confidence.Effective()
		matureCount++
	}
	var maturityRatio float64
	if matureCount > 0 {
		maturityRatio = matureSum / float64(matureCount)
	}

	return clamp01(0.3 + 0.4*activityRatio + 0.3*maturityRatio)
}

// structuralCoherence is (1 - 0.5*orphan_ratio)*(0.5 + 0.5*edge_density),
// edge_density = edges / (n*log2(n)) clamped to 1.
func structuralCoherence(nodes []*node.Node) float64 {
	n := len(nodes)
	if n == 0 {
		return 1.0
	}
	inDegree := make(map[node.ID]int, n)
	totalEdges := 0
	for _, nd := range nodes {
		totalEdges += len(nd.Edges)
		for _, e := range nd.Edges {
			inDegree[e.Target]++
		}
	}
	orphans := 0
	for _, nd := range nodes {
		if len(nd.Edges) == 0 && inDegree[nd.ID] == 0 {
			orphans++
		}
	}
	orphanRatio := float64(orphans) / float64(n)

	var edgeDensity float64
	if n > 1 {
		edgeDensity = float64(totalEdges) / (float64(n) * math.Log2(float64(n)))
	}
	if edgeDensity > 1 {
		edgeDensity = 1
	}
	return (1 - 0.5*orphanRatio) * (0.5 + 0.5*edgeDensity)
}

// VitalityStatus is a qualitative bucket derived from a vitality score.
type VitalityStatus string

const (
	Critical VitalityStatus = "critical"
	Weak     VitalityStatus = "weak"
	Healthy  VitalityStatus = "healthy"
	Vibrant  VitalityStatus = "vibrant"
)

// Ojas is the four-component vitality score (spec §4.E compute_vitality).
type Ojas struct {
	Structural float64
	Semantic   float64
	Temporal   float64
	Capacity   float64
}

// Overall averages the four components into a single [0,1] scalar used to
// pick a VitalityStatus.
func (o Ojas) Overall() float64 {
	return (o.Structural + o.Semantic + o.Temporal + o.Capacity) / 4
}

// Status maps Overall() to a qualitative bucket.
func (o Ojas) Status() VitalityStatus {
	v := o.Overall()
	switch {
	case v < 0.25:
		return Critical
	case v < 0.5:
		return Weak
	case v < 0.8:
		return Healthy
	default:
		return Vibrant
	}
}

// ComputeVitality derives structural (edge connectivity reusing
// structuralCoherence), semantic (mean pairwise diversity of a sample),
// temporal (reuses temporalCoherence), and capacity (hot headroom against
// configured capacity) signals.
func (g *Graph) ComputeVitality(now time.Time, hotCapacity int) Ojas {
	var nodes []*node.Node
	_ = g.store.ForEachHot(func(n *node.Node) error {
		nodes = append(nodes, n)
		return nil
	})
	if len(nodes) == 0 {
		return Ojas{}
	}
	capacity := 1.0
	if hotCapacity > 0 {
		capacity = clamp01(1 - float64(len(nodes))/float64(hotCapacity))
	}
	return Ojas{
		Structural: structuralCoherence(nodes),
		Semantic:   semanticDiversity(nodes),
		Temporal:   temporalCoherence(nodes, now),
		Capacity:   capacity,
	}
}

// semanticDiversity samples up to 50 pairs and returns 1 minus their mean
// cosine similarity: a store full of near-duplicate embeddings is less
// vital than one spanning a wide semantic range.
func semanticDiversity(nodes []*node.Node) float64 {
	const maxPairs = 50
	if len(nodes) < 2 {
		return 1
	}
	var sum float64
	count := 0
outer:
	for i := 0; i < len(nodes); i++ {
		for j := i + 1; j < len(nodes); j++ {
			if count >= maxPairs {
				break outer
			}
			sum += nodes[i].Embedding.Cosine(nodes[j].Embedding)
			count++
		}
	}
	if count == 0 {
		return 1
	}
	return clamp01(1 - sum/float64(count))
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
