package dynamics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chitta-project/chitta/internal/graph"
	"github.com/chitta-project/chitta/internal/node"
	"github.com/chitta-project/chitta/internal/storage"
	"github.com/chitta-project/chitta/internal/vector"
)

func newTestDynamics() (*Dynamics, *storage.Engine) {
	store := storage.Open(storage.DefaultConfig(""), nil, nil)
	g := graph.New(store)
	return New(DefaultConfig(), store, g), store
}

func TestTickAppliesDecayAfterInterval(t *testing.T) {
	d, store := newTestDynamics()
	d.cfg.DecayInterval = 0

	n := node.New(node.Episode, "x")
	n.AccessedAt = time.Now().Add(-10 * 24 * time.Hour)
	n.DecayRate = 0.15
	before := n.Confidence.Mu
	require.NoError(t, store.Insert(n))

	require.NoError(t, d.Tick(time.Now()))

	got, _, err := store.Peek(n.ID)
	require.NoError(t, err)
	assert.Less(t, got.Confidence.Mu, before)
}

func TestEmergencyCoherenceTriggerPrunesOnLowTau(t *testing.T) {
	d, store := newTestDynamics()
	weak := node.New(node.Episode, "weak")
	weak.Confidence = node.Confidence{Mu: 0.01}
	require.NoError(t, store.Insert(weak))

	// Force a stale, already-low coherence reading and prevent Tick's own
	// interval-gated recompute from overwriting it before triggers run.
	d.lastTau = graph.Coherence{}
	d.lastCoherence = time.Now()
	require.NoError(t, d.Tick(time.Now()))

	_, _, err := store.Peek(weak.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound, "emergency_coherence should have pruned the low-confidence node")
}

func TestForgetCascadeWeakensNeighbors(t *testing.T) {
	d, store := newTestDynamics()
	center := node.New(node.Episode, "center")
	neighbor := node.New(node.Episode, "neighbor")
	neighbor.Confidence = node.NewConfidence(0.8)
	center.Connect(neighbor.ID, node.RelatesTo, 0.5)
	require.NoError(t, store.Insert(center))
	require.NoError(t, store.Insert(neighbor))

	require.NoError(t, d.Forget(center.ID, true, false))

	got, _, err := store.Peek(neighbor.ID)
	require.NoError(t, err)
	assert.Less(t, got.Confidence.Mu, 0.8)

	_, _, err = store.Peek(center.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestForgetLeavesAuditTrail(t *testing.T) {
	d, store := newTestDynamics()
	n := node.New(node.Episode, "gone")
	require.NoError(t, store.Insert(n))
	require.NoError(t, d.Forget(n.ID, false, false))

	ids := store.SearchByTag("audit:forget")
	assert.Len(t, ids, 1)
}

func TestForgetRewireConnectsOrphans(t *testing.T) {
	d, store := newTestDynamics()
	center := node.New(node.Episode, "center")
	in := node.New(node.Episode, "in")
	out := node.New(node.Episode, "out")
	in.Connect(center.ID, node.RelatesTo, 0.5)
	center.Connect(out.ID, node.RelatesTo, 0.5)
	require.NoError(t, store.Insert(center))
	require.NoError(t, store.Insert(in))
	require.NoError(t, store.Insert(out))

	require.NoError(t, d.Forget(center.ID, false, true))

	got, _, err := store.Peek(in.ID)
	require.NoError(t, err)
	// forget leaves the now-dangling edge to center in place (lazy GC),
	// so the rewired edge to out is appended after it.
	require.Len(t, got.Edges, 2)
	assert.Equal(t, out.ID, got.Edges[1].Target)
}

func TestPropagateConfidenceDecaysPerHop(t *testing.T) {
	d, store := newTestDynamics()
	a := node.New(node.Episode, "a")
	b := node.New(node.Episode, "b")
	a.Connect(b.ID, node.RelatesTo, 1.0)
	require.NoError(t, store.Insert(a))
	require.NoError(t, store.Insert(b))
	beforeB := b.Confidence.Mu

	require.NoError(t, d.PropagateConfidence(a.ID, 0.5, 0.5, 1))

	got, _, err := store.Peek(b.ID)
	require.NoError(t, err)
	assert.Greater(t, got.Confidence.Mu, beforeB)
}

func TestApplyFeedbackAggregatesPerNode(t *testing.T) {
	d, store := newTestDynamics()
	n := node.New(node.Episode, "x")
	n.Confidence = node.Confidence{Mu: 0.5}
	require.NoError(t, store.Insert(n))

	d.Feedback().Enqueue(FeedbackEvent{NodeID: n.ID, Kind: Helpful, Context: "useful"})
	d.Feedback().Enqueue(FeedbackEvent{NodeID: n.ID, Kind: Used})

	require.NoError(t, d.ApplyFeedback())

	got, _, err := store.Peek(n.ID)
	require.NoError(t, err)
	assert.Greater(t, got.Confidence.Mu, 0.5)

	auditIDs := store.SearchByTag("audit:feedback")
	assert.Len(t, auditIDs, 1)
}

func TestSynthesizeWisdomFromEpisodeCluster(t *testing.T) {
	d, store := newTestDynamics()
	for i := 0; i < 3; i++ {
		ep := node.New(node.Episode, "observed the same thing")
		ep.Embedding = vector.Vector{1, 0, 0}
		require.NoError(t, store.Insert(ep))
	}

	w, err := d.SynthesizeWisdom(time.Now())
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, node.Wisdom, w.NodeType)
	assert.Len(t, w.Edges, 3)
}

func TestSynthesizeWisdomSkipsWhenClusterTooSmall(t *testing.T) {
	d, store := newTestDynamics()
	ep := node.New(node.Episode, "alone")
	ep.Embedding = vector.Vector{1, 0, 0}
	require.NoError(t, store.Insert(ep))

	w, err := d.SynthesizeWisdom(time.Now())
	require.NoError(t, err)
	assert.Nil(t, w)
}

func TestSynthesizeWisdomDoesNotDuplicate(t *testing.T) {
	d, store := newTestDynamics()
	for i := 0; i < 3; i++ {
		ep := node.New(node.Episode, "same cluster")
		ep.Embedding = vector.Vector{1, 0, 0}
		require.NoError(t, store.Insert(ep))
	}
	first, err := d.SynthesizeWisdom(time.Now())
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := d.SynthesizeWisdom(time.Now())
	require.NoError(t, err)
	assert.Nil(t, second, "should not re-synthesize from the same cluster")
}
