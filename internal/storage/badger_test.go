package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chitta-project/chitta/internal/node"
	"github.com/chitta-project/chitta/internal/vector"
)

func newTestBadgerBacking(t *testing.T) *BadgerBacking {
	t.Helper()
	b, err := OpenBadgerBacking("", true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBadgerBackingPutGet(t *testing.T) {
	b := newTestBadgerBacking(t)
	id := node.NewID()
	rec := Record{
		NodeType:  node.Episode,
		Quantized: vector.Quantize(vector.Vector{0.1, 0.2, 0.3}),
	}
	require.NoError(t, b.Put(id, rec))

	got, ok, err := b.Get(id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, node.Episode, got.NodeType)
}

func TestBadgerBackingGetMissing(t *testing.T) {
	b := newTestBadgerBacking(t)
	_, ok, err := b.Get(node.NewID())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBadgerBackingDelete(t *testing.T) {
	b := newTestBadgerBacking(t)
	id := node.NewID()
	require.NoError(t, b.Put(id, Record{}))
	require.NoError(t, b.Delete(id))

	_, ok, err := b.Get(id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBadgerBackingForEach(t *testing.T) {
	b := newTestBadgerBacking(t)
	ids := []node.ID{node.NewID(), node.NewID(), node.NewID()}
	for _, id := range ids {
		require.NoError(t, b.Put(id, Record{}))
	}

	seen := make(map[node.ID]bool)
	err := b.ForEach(func(id node.ID, rec Record) error {
		seen[id] = true
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, seen, len(ids))
}
