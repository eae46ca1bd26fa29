package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chitta-project/chitta/internal/node"
	"github.com/chitta-project/chitta/internal/storage"
	"github.com/chitta-project/chitta/internal/vector"
)

func newTestGraph() (*Graph, *storage.Engine) {
	store := storage.Open(storage.DefaultConfig(""), nil, nil)
	return New(store), store
}

func TestConnectCoalescesDuplicates(t *testing.T) {
	g, store := newTestGraph()
	a := node.New(node.Episode, "a")
	b := node.New(node.Episode, "b")
	require.NoError(t, store.Insert(a))
	require.NoError(t, store.Insert(b))

	require.NoError(t, g.Connect(a.ID, b.ID, node.Similar, 0.4))
	require.NoError(t, g.Connect(a.ID, b.ID, node.Similar, 0.9))

	got, _, err := store.Peek(a.ID)
	require.NoError(t, err)
	require.Len(t, got.Edges, 1)
	assert.Equal(t, 0.9, got.Edges[0].Weight)
}

func TestPruneRemovesOnlyLowConfidencePrunable(t *testing.T) {
	g, store := newTestGraph()
	low := node.New(node.Episode, "weak")
	low.Confidence = node.Confidence{Mu: 0.01, Sigma2: 0, N: 1}
	invariant := node.New(node.Invariant, "never prune")
	invariant.Confidence = node.Confidence{Mu: 0.01, Sigma2: 0, N: 1}
	require.NoError(t, store.Insert(low))
	require.NoError(t, store.Insert(invariant))

	n, err := g.Prune(0.1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, _, err = store.Peek(invariant.ID)
	require.NoError(t, err, "Invariant must never be pruned by confidence threshold")
}

func TestApplyDecayReducesConfidence(t *testing.T) {
	g, store := newTestGraph()
	n := node.New(node.Episode, "x")
	n.AccessedAt = time.Now().Add(-10 * 24 * time.Hour)
	n.DecayRate = 0.15
	before := n.Confidence.Mu
	require.NoError(t, store.Insert(n))

	require.NoError(t, g.ApplyDecay(time.Now()))

	got, _, err := store.Peek(n.ID)
	require.NoError(t, err)
	assert.Less(t, got.Confidence.Mu, before)
}

func TestComputeCoherenceEmptyStoreReturnsBaseline(t *testing.T) {
	g, _ := newTestGraph()
	c := g.ComputeCoherence(time.Now())
	assert.Equal(t, 1.0, c.Local)
	assert.Equal(t, 1.0, c.Global)
	assert.InDelta(t, 1.0, c.Temporal, 1e-9)
	assert.Equal(t, 1.0, c.Structural)
	assert.InDelta(t, 1.0, c.Tau(), 1e-9)
}

func TestComputeCoherenceDetectsContradiction(t *testing.T) {
	g, store := newTestGraph()
	a := node.New(node.Belief, "a")
	b := node.New(node.Belief, "b")
	a.Confidence = node.NewConfidence(0.9)
	b.Confidence = node.NewConfidence(0.9)
	a.Connect(b.ID, node.Contradicts, 1.0)
	require.NoError(t, store.Insert(a))
	require.NoError(t, store.Insert(b))

	c := g.ComputeCoherence(time.Now())
	assert.Less(t, c.Local, 1.0)
}

func TestComputeVitalityCapacityReflectsHeadroom(t *testing.T) {
	g, store := newTestGraph()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Insert(node.New(node.Episode, "x")))
	}
	v := g.ComputeVitality(time.Now(), 10)
	assert.InDelta(t, 0.5, v.Capacity, 1e-9)
}

func TestOjasStatusBuckets(t *testing.T) {
	assert.Equal(t, Critical, Ojas{}.Status())
	assert.Equal(t, Vibrant, Ojas{Structural: 1, Semantic: 1, Temporal: 1, Capacity: 1}.Status())
}

func TestStructuralCoherenceOrphansLowerScore(t *testing.T) {
	nodes := []*node.Node{
		node.New(node.Episode, "a"),
		node.New(node.Episode, "b"),
	}
	orphaned := structuralCoherence(append([]*node.Node{}, nodes...))
	nodes[0].Connect(nodes[1].ID, node.RelatesTo, 0.5)
	connected := structuralCoherence(nodes)
	assert.Greater(t, connected, orphaned)
}

func TestSemanticDiversityIdenticalVectorsIsZero(t *testing.T) {
	a := node.New(node.Episode, "a")
	b := node.New(node.Episode, "b")
	a.Embedding = vector.Vector{1, 0, 0}
	b.Embedding = vector.Vector{1, 0, 0}
	d := semanticDiversity([]*node.Node{a, b})
	assert.InDelta(t, 0, d, 1e-9)
}
