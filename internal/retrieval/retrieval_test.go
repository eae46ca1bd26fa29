package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chitta-project/chitta/internal/node"
	"github.com/chitta-project/chitta/internal/storage"
	"github.com/chitta-project/chitta/internal/vector"
)

func newTestStore() *storage.Engine {
	return storage.Open(storage.DefaultConfig(""), nil, nil)
}

func insertWithEmbedding(t *testing.T, store *storage.Engine, typ node.Type, text string, v vector.Vector) *node.Node {
	t.Helper()
	n := node.New(typ, text)
	n.Embedding = v
	n.Confidence = node.NewConfidence(0.8)
	require.NoError(t, store.Insert(n))
	return n
}

func TestRRFCombinesDenseAndSparse(t *testing.T) {
	id1, id2 := node.NewID(), node.NewID()
	dense := []storage.DenseHit{{ID: id1, Similarity: 0.9}, {ID: id2, Similarity: 0.5}}
	sparse := []storage.BM25Hit{{ID: string(id2), Score: 2.0}}

	candidates := RRF(dense, sparse, 60, 0.7)
	require.Len(t, candidates, 2)
	// id2 appears in both lists so it should outrank id1 despite lower
	// raw dense similarity.
	assert.Equal(t, id2, candidates[0].ID)
}

func TestRecallDenseModeRanksBySimilarity(t *testing.T) {
	store := newTestStore()
	a := insertWithEmbedding(t, store, node.Episode, "a", vector.Vector{1, 0, 0})
	b := insertWithEmbedding(t, store, node.Episode, "b", vector.Vector{0, 1, 0})

	p := New(store)
	out, err := p.Recall(context.Background(), ModeDense, vector.Vector{1, 0, 0}, "", 2, Flags{}, time.Now())
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, a.ID, out[0].ID)
	_ = b
}

func TestRerankFactorsInConfidenceAndType(t *testing.T) {
	store := newTestStore()
	invariant := insertWithEmbedding(t, store, node.Invariant, "rule", vector.Vector{1, 0})
	invariant.Confidence = node.NewConfidence(1.0)
	require.NoError(t, store.Update(invariant))

	episode := insertWithEmbedding(t, store, node.Episode, "story", vector.Vector{1, 0})
	episode.Confidence = node.NewConfidence(1.0)
	require.NoError(t, store.Update(episode))

	p := New(store)
	out, err := p.Recall(context.Background(), ModeDense, vector.Vector{1, 0}, "", 2, Flags{}, time.Now())
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, invariant.ID, out[0].ID, "invariant type_factor (1.1) should outrank episode (0.9) at equal similarity/confidence")
}

func TestSessionPrimingBoostsBasinAlignedCandidates(t *testing.T) {
	store := newTestStore()
	aligned := insertWithEmbedding(t, store, node.Episode, "aligned", vector.Vector{1, 0})
	opposite := insertWithEmbedding(t, store, node.Episode, "opposite", vector.Vector{0, 1})

	session := NewSessionContext(10)
	session.Observe(node.NewID(), vector.Vector{1, 0})

	candidates := []Candidate{{ID: aligned.ID, Score: 1.0}, {ID: opposite.ID, Score: 1.0}}
	lookup := func(id node.ID) (*node.Node, bool) {
		n, _, err := store.Peek(id)
		if err != nil {
			return nil, false
		}
		return n, true
	}
	out := session.Prime(candidates, lookup, 0.15, 0.05)
	for _, c := range out {
		if c.ID == aligned.ID {
			assert.Greater(t, c.Score, 1.0)
		}
		if c.ID == opposite.ID {
			assert.InDelta(t, 1.0, c.Score, 1e-9)
		}
	}
}

func TestLateralInhibitionSuppressesNearDuplicates(t *testing.T) {
	store := newTestStore()
	winner := insertWithEmbedding(t, store, node.Episode, "winner", vector.Vector{1, 0})
	dup := insertWithEmbedding(t, store, node.Episode, "dup", vector.Vector{0.99, 0.1411})

	lookup := func(id node.ID) (*node.Node, bool) {
		n, _, err := store.Peek(id)
		if err != nil {
			return nil, false
		}
		return n, true
	}
	candidates := []Candidate{{ID: winner.ID, Score: 1.0}, {ID: dup.ID, Score: 0.9}}
	out := LateralInhibition(candidates, lookup, 0.9, 0.4, false)
	require.Len(t, out, 2)
	for _, c := range out {
		if c.ID == dup.ID {
			assert.Less(t, c.Score, 0.9, "near-duplicate should be suppressed, not removed")
		}
	}
}

func TestLateralInhibitionHardSuppressionRemoves(t *testing.T) {
	store := newTestStore()
	winner := insertWithEmbedding(t, store, node.Episode, "winner", vector.Vector{1, 0})
	dup := insertWithEmbedding(t, store, node.Episode, "dup", vector.Vector{0.99, 0.1411})

	lookup := func(id node.ID) (*node.Node, bool) {
		n, _, err := store.Peek(id)
		if err != nil {
			return nil, false
		}
		return n, true
	}
	candidates := []Candidate{{ID: winner.ID, Score: 1.0}, {ID: dup.ID, Score: 0.9}}
	out := LateralInhibition(candidates, lookup, 0.9, 0.4, true)
	assert.Len(t, out, 1)
}

func TestSpreadingActivationPropagatesAlongEdges(t *testing.T) {
	store := newTestStore()
	seed := insertWithEmbedding(t, store, node.Episode, "seed", vector.Vector{1, 0})
	neighbor := insertWithEmbedding(t, store, node.Episode, "neighbor", vector.Vector{0, 1})
	seed.Connect(neighbor.ID, node.RelatesTo, 0.8)
	require.NoError(t, store.Update(seed))

	p := New(store)
	out := p.spreadingActivation([]Candidate{{ID: seed.ID, Score: 1.0}}, 10)

	found := false
	for _, c := range out {
		if c.ID == neighbor.ID {
			found = true
			assert.Greater(t, c.Score, 0.0)
		}
	}
	assert.True(t, found, "neighbor should receive spread activation")
}

func TestHebbianUpdateStrengthensEdge(t *testing.T) {
	store := newTestStore()
	a := insertWithEmbedding(t, store, node.Episode, "a", vector.Vector{1, 0})
	b := insertWithEmbedding(t, store, node.Episode, "b", vector.Vector{0, 1})

	p := New(store)
	p.hebbianUpdate([]Candidate{{ID: a.ID, Score: 0.9}, {ID: b.ID, Score: 0.8}})

	got, _, err := store.Peek(a.ID)
	require.NoError(t, err)
	require.Len(t, got.Edges, 1)
	assert.Equal(t, node.Similar, got.Edges[0].Type)
	assert.Equal(t, b.ID, got.Edges[0].Target)
}

func TestFindAttractorsRequiresAllThresholds(t *testing.T) {
	store := newTestStore()
	hub := insertWithEmbedding(t, store, node.Wisdom, "hub", vector.Vector{1, 0})
	hub.Confidence = node.NewConfidence(0.9)
	hub.CreatedAt = time.Now().Add(-30 * 24 * time.Hour)
	for i := 0; i < 5; i++ {
		leaf := insertWithEmbedding(t, store, node.Episode, "leaf", vector.Vector{0, 1})
		hub.Connect(leaf.ID, node.RelatesTo, 0.5)
	}
	require.NoError(t, store.Update(hub))

	p := New(store)
	attractors := p.FindAttractors(time.Now())
	require.Len(t, attractors, 1)
	assert.Equal(t, hub.ID, attractors[0].ID)
}

func TestFindAttractorsExcludesYoungOrWeak(t *testing.T) {
	store := newTestStore()
	young := insertWithEmbedding(t, store, node.Wisdom, "young", vector.Vector{1, 0})
	young.Confidence = node.NewConfidence(0.9)
	for i := 0; i < 5; i++ {
		leaf := insertWithEmbedding(t, store, node.Episode, "leaf", vector.Vector{0, 1})
		young.Connect(leaf.ID, node.RelatesTo, 0.5)
	}
	require.NoError(t, store.Update(young))

	p := New(store)
	assert.Empty(t, p.FindAttractors(time.Now()), "node younger than 7 days should not qualify as an attractor")
}
