package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chitta-project/chitta/internal/node"
)

func newTestEngine(capacity int) *Engine {
	cfg := DefaultConfig("")
	cfg.HotCapacity = capacity
	return Open(cfg, nil, nil)
}

func TestInsertAndGetPromotesNoop(t *testing.T) {
	e := newTestEngine(10)
	n := node.New(node.Episode, "hello world")
	require.NoError(t, e.Insert(n))

	got, tier, err := e.Get(n.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, TierHot, tier)
	assert.Equal(t, n.ID, got.ID)
}

func TestInsertEvictsLRUAtCapacity(t *testing.T) {
	e := newTestEngine(2)
	n1 := node.New(node.Episode, "first")
	n1.AccessedAt = time.Now().Add(-time.Hour)
	n2 := node.New(node.Episode, "second")
	n2.AccessedAt = time.Now().Add(-time.Minute)
	require.NoError(t, e.Insert(n1))
	require.NoError(t, e.Insert(n2))

	n3 := node.New(node.Episode, "third")
	require.NoError(t, e.Insert(n3))

	assert.Equal(t, 2, e.HotSize())
	_, tier, err := e.Get(n1.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, TierWarm, tier, "oldest-accessed node should have been evicted to warm")

	assert.Equal(t, e.HotSize(), e.BM25DocCount(), "BM25 index count must equal hot node count after eviction")
	assert.Equal(t, e.HotSize(), e.dense.Len(), "dense index count must equal hot node count after eviction")
}

func TestGetPromotesFromWarm(t *testing.T) {
	e := newTestEngine(1)
	n1 := node.New(node.Episode, "a")
	n1.AccessedAt = time.Now().Add(-time.Hour)
	n2 := node.New(node.Episode, "b")
	require.NoError(t, e.Insert(n1))
	require.NoError(t, e.Insert(n2)) // evicts n1 to warm

	got, tier, err := e.Get(n1.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, TierWarm, tier, "tier reported is where it was found, before promotion")
	assert.Equal(t, n1.ID, got.ID)

	// second Get should now find it hot
	_, tier2, err := e.Get(n1.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, TierHot, tier2)
}

func TestRemoveDropsFromAllTiersAndIndices(t *testing.T) {
	e := newTestEngine(10)
	n := node.New(node.Episode, "searchable text")
	require.NoError(t, e.Insert(n))
	assert.Equal(t, 1, e.BM25DocCount())

	require.NoError(t, e.Remove(n.ID))
	_, _, err := e.Get(n.ID, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, e.BM25DocCount())
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	e := newTestEngine(10)
	e.SetReadOnly(true)
	err := e.Insert(node.New(node.Episode, "x"))
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestClosedEngineRejectsOperations(t *testing.T) {
	e := newTestEngine(10)
	require.NoError(t, e.Close())
	err := e.Insert(node.New(node.Episode, "x"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestManageTiersMovesByAge(t *testing.T) {
	e := newTestEngine(10)
	cfg := DefaultConfig("")
	cfg.HotAge = time.Hour
	cfg.WarmAge = 2 * time.Hour
	e.cfg = cfg

	old := node.New(node.Episode, "stale")
	old.AccessedAt = time.Now().Add(-3 * time.Hour)
	require.NoError(t, e.Insert(old))

	e.ManageTiers(time.Now())

	_, tier, err := e.Peek(old.ID)
	require.NoError(t, err)
	assert.Equal(t, TierCold, tier, "node older than HotAge+WarmAge should land in cold after one pass")

	assert.Equal(t, 0, e.HotSize())
	assert.Equal(t, 0, e.BM25DocCount(), "BM25 index must drop a node demoted out of hot")
	assert.Equal(t, 0, e.dense.Len(), "dense index must drop a node demoted out of hot")
}

func TestSnapshotRollback(t *testing.T) {
	e := newTestEngine(10)
	n := node.New(node.Episode, "original")
	require.NoError(t, e.Insert(n))

	snap := e.TakeSnapshot()
	require.NoError(t, e.Remove(n.ID))
	assert.Equal(t, 0, e.HotSize())

	e.Rollback(snap)
	assert.Equal(t, 1, e.HotSize())
	got, _, err := e.Get(n.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, n.ID, got.ID)
}

func TestSearchByTag(t *testing.T) {
	e := newTestEngine(10)
	n := node.New(node.Episode, "tagged")
	n.AddTag("project:chitta")
	require.NoError(t, e.Insert(n))

	ids := e.SearchByTag("project:chitta")
	require.Len(t, ids, 1)
	assert.Equal(t, n.ID, ids[0])
}

func TestTotalSizeAcrossTiers(t *testing.T) {
	e := newTestEngine(1)
	n1 := node.New(node.Episode, "a")
	n1.AccessedAt = time.Now().Add(-time.Hour)
	n2 := node.New(node.Episode, "b")
	require.NoError(t, e.Insert(n1))
	require.NoError(t, e.Insert(n2))

	total, err := e.TotalSize()
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}
