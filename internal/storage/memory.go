package storage

import (
	"sync"

	"github.com/chitta-project/chitta/internal/node"
)

// MemoryBacking is an in-process Backing with no persistence, used for
// tests and as a default when no on-disk backing is configured.
type MemoryBacking struct {
	mu      sync.RWMutex
	records map[node.ID]Record
}

// NewMemoryBacking returns an empty in-memory Backing.
func NewMemoryBacking() *MemoryBacking {
	return &MemoryBacking{records: make(map[node.ID]Record)}
}

func (m *MemoryBacking) Put(id node.ID, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id] = rec
	return nil
}

func (m *MemoryBacking) Get(id node.ID) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	return rec, ok, nil
}

func (m *MemoryBacking) Delete(id node.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

func (m *MemoryBacking) ForEach(fn func(node.ID, Record) error) error {
	m.mu.RLock()
	type pair struct {
		id  node.ID
		rec Record
	}
	pairs := make([]pair, 0, len(m.records))
	for id, rec := range m.records {
		pairs = append(pairs, pair{id, rec})
	}
	m.mu.RUnlock()
	for _, p := range pairs {
		if err := fn(p.id, p.rec); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryBacking) Close() error { return nil }
