package storage

import (
	"sort"
	"sync"

	"github.com/chitta-project/chitta/internal/node"
	"github.com/chitta-project/chitta/internal/vector"
)

// DenseHit is one result of a dense (embedding) search: a node id and its
// cosine similarity to the query.
type DenseHit struct {
	ID         node.ID
	Similarity float64
}

// DenseIndex is the brute-force cosine scan list over the hot tier (spec
// §4.D: "an ANN-style linear scan ... it need not be exact"). A linear scan
// is the right choice here: exact nearest-neighbour is an explicit
// non-goal, hot capacity is bounded (10k nodes by default), and a plain
// scan is trivially correct and trivially kept consistent with inserts.
type DenseIndex struct {
	mu      sync.RWMutex
	vectors map[node.ID]vector.Vector
}

// NewDenseIndex returns an empty dense scan index.
func NewDenseIndex() *DenseIndex {
	return &DenseIndex{vectors: make(map[node.ID]vector.Vector)}
}

// Put inserts or replaces the vector for id.
func (d *DenseIndex) Put(id node.ID, v vector.Vector) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vectors[id] = v
}

// Remove drops id from the index.
func (d *DenseIndex) Remove(id node.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.vectors, id)
}

// Search returns the top k ids by cosine similarity to q.
func (d *DenseIndex) Search(q vector.Vector, k int) []DenseHit {
	d.mu.RLock()
	defer d.mu.RUnlock()
	hits := make([]DenseHit, 0, len(d.vectors))
	for id, v := range d.vectors {
		hits = append(hits, DenseHit{ID: id, Similarity: v.Cosine(q)})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// Len reports the number of vectors currently indexed.
func (d *DenseIndex) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.vectors)
}
