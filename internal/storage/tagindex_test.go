package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chitta-project/chitta/internal/node"
)

func TestTagIndexReindexReplacesMembership(t *testing.T) {
	idx := NewTagIndex()
	id := node.NewID()
	idx.Reindex(id, []string{"project:a", "session:x"})
	idx.Reindex(id, []string{"project:b"})

	assert.Empty(t, idx.Get("project:a"))
	assert.Empty(t, idx.Get("session:x"))
	assert.Equal(t, []node.ID{id}, idx.Get("project:b"))
}

func TestTagIndexRemove(t *testing.T) {
	idx := NewTagIndex()
	id := node.NewID()
	idx.Reindex(id, []string{"project:a"})
	idx.Remove(id)
	assert.Empty(t, idx.Get("project:a"))
}

func TestTagIndexGetIsSortedForDeterminism(t *testing.T) {
	idx := NewTagIndex()
	id1, id2 := node.ID("b-id"), node.ID("a-id")
	idx.Reindex(id1, []string{"shared"})
	idx.Reindex(id2, []string{"shared"})

	got := idx.Get("shared")
	assert.Equal(t, []node.ID{id2, id1}, got)
}
