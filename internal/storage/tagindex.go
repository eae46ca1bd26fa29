package storage

import (
	"sort"
	"sync"

	"github.com/chitta-project/chitta/internal/node"
)

// TagIndex maps tag -> set(NodeId) for exact tag filtering (spec §4.D).
type TagIndex struct {
	mu  sync.RWMutex
	idx map[string]map[node.ID]struct{}
}

// NewTagIndex returns an empty tag index.
func NewTagIndex() *TagIndex {
	return &TagIndex{idx: make(map[string]map[node.ID]struct{})}
}

// Reindex replaces id's tag membership with exactly the given tags.
func (t *TagIndex) Reindex(id node.ID, tags []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(id)
	for _, tag := range tags {
		if t.idx[tag] == nil {
			t.idx[tag] = make(map[node.ID]struct{})
		}
		t.idx[tag][id] = struct{}{}
	}
}

// Remove drops id from every tag bucket.
func (t *TagIndex) Remove(id node.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(id)
}

func (t *TagIndex) removeLocked(id node.ID) {
	for tag, set := range t.idx {
		if _, ok := set[id]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(t.idx, tag)
			}
		}
	}
}

// Get returns every id carrying tag, sorted for deterministic output.
func (t *TagIndex) Get(tag string) []node.ID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	set := t.idx[tag]
	out := make([]node.ID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
