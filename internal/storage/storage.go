// Package storage implements the three-tier node storage of spec §4.D:
// a hot in-memory map, a warm tier with quantized vectors backed by
// badger's memory-mapped value log, and a cold tier loaded on demand.
// It also owns the secondary indices that must stay consistent with the
// hot tier at the end of any mutating operation (spec invariant #5): the
// BM25 full-text index, the tag index, and the dense brute-force scan list.
package storage

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/chitta-project/chitta/internal/node"
	"github.com/chitta-project/chitta/internal/vector"
)

// Sentinel errors, following the teacher's pattern of package-level error
// variables rather than ad hoc string errors.
var (
	ErrNotFound      = errors.New("storage: node not found")
	ErrClosed        = errors.New("storage: engine closed")
	ErrReadOnly      = errors.New("storage: store is read-only after I/O failure")
	ErrVersionMismatch = errors.New("storage: on-disk file version mismatch")
)

// Tier identifies which of the three tiers currently holds a node.
type Tier int

const (
	TierHot Tier = iota
	TierWarm
	TierCold
)

func (t Tier) String() string {
	switch t {
	case TierHot:
		return "hot"
	case TierWarm:
		return "warm"
	case TierCold:
		return "cold"
	default:
		return "unknown"
	}
}

// Config controls tiering thresholds and capacities (spec §4.D).
type Config struct {
	HotCapacity int           // default 10000
	HotAge      time.Duration // default 24h
	WarmAge     time.Duration // default 7*24h
	BasePath    string        // base path for warm/cold backing stores
}

// DefaultConfig returns the spec's default tiering thresholds.
func DefaultConfig(basePath string) Config {
	return Config{
		HotCapacity: 10000,
		HotAge:      24 * time.Hour,
		WarmAge:     7 * 24 * time.Hour,
		BasePath:    basePath,
	}
}

// Backing is the persistence capability the warm and cold tiers need: put,
// get, delete, and iterate quantized records by id. Implemented by
// *BadgerBacking (production) so tests can swap in an in-memory fake.
type Backing interface {
	Put(id node.ID, rec Record) error
	Get(id node.ID) (Record, bool, error)
	Delete(id node.ID) error
	ForEach(fn func(node.ID, Record) error) error
	Close() error
}

// Record is the on-disk/warm representation of a node: full metadata plus
// a quantized vector instead of a float one.
type Record struct {
	NodeType   node.Type
	Quantized  vector.QuantizedVector
	Confidence node.Confidence
	DecayRate  float64
	CreatedAt  time.Time
	AccessedAt time.Time
	Payload    []byte
	Tags       []string
	Edges      []node.Edge
}

func toRecord(n *node.Node) Record {
	return Record{
		NodeType:   n.NodeType,
		Quantized:  vector.Quantize(n.Embedding),
		Confidence: n.Confidence,
		DecayRate:  n.DecayRate,
		CreatedAt:  n.CreatedAt,
		AccessedAt: n.AccessedAt,
		Payload:    n.Payload,
		Tags:       append([]string(nil), n.Tags...),
		Edges:      append([]node.Edge(nil), n.Edges...),
	}
}

func fromRecord(id node.ID, r Record) *node.Node {
	return &node.Node{
		ID:         id,
		NodeType:   r.NodeType,
		Embedding:  r.Quantized.Dequantize(),
		Confidence: r.Confidence,
		DecayRate:  r.DecayRate,
		CreatedAt:  r.CreatedAt,
		AccessedAt: r.AccessedAt,
		Payload:    r.Payload,
		Tags:       append([]string(nil), r.Tags...),
		Edges:      append([]node.Edge(nil), r.Edges...),
	}
}

// Engine is the tiered storage façade: hot map + warm/cold backing stores +
// secondary indices, all kept consistent on every mutating call.
type Engine struct {
	mu sync.RWMutex

	cfg Config

	hot map[node.ID]*node.Node

	warm Backing
	cold Backing

	// dense scan list mirrors hot for search_dense; warm is scanned
	// separately via quantized cosine in SearchDense. See dense.go.
	dense *DenseIndex

	bm25     *BM25Index
	tagIndex *TagIndex

	readOnly bool
	closed   bool

	snapshotID uint64
}

// Open constructs an Engine over the given warm/cold backing stores. Passing
// nil for either uses an in-memory Backing (useful for tests and for the
// zero-durability default).
func Open(cfg Config, warm, cold Backing) *Engine {
	if cfg.HotCapacity <= 0 {
		cfg.HotCapacity = 10000
	}
	if warm == nil {
		warm = NewMemoryBacking()
	}
	if cold == nil {
		cold = NewMemoryBacking()
	}
	e := &Engine{
		cfg:      cfg,
		hot:      make(map[node.ID]*node.Node),
		warm:     warm,
		cold:     cold,
		dense:    NewDenseIndex(),
		bm25:     NewBM25Index(),
		tagIndex: NewTagIndex(),
	}
	return e
}

// Close releases backing resources.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	werr := e.warm.Close()
	cerr := e.cold.Close()
	if werr != nil {
		return werr
	}
	return cerr
}

// Insert adds a new node to the hot tier and indexes it. If hot is already
// at capacity, the least-recently-accessed hot node is evicted to warm
// first so the new node is always immediately findable (spec §8 boundary
// behaviour: "insertion evicts LRU to warm and the new node is findable
// immediately").
func (e *Engine) Insert(n *node.Node) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if e.readOnly {
		return ErrReadOnly
	}
	if len(e.hot) >= e.cfg.HotCapacity {
		e.evictLRULocked()
	}
	e.hot[n.ID] = n
	e.indexLocked(n)
	return nil
}

// indexLocked updates bm25/tag/dense indices for n. Caller holds e.mu.
func (e *Engine) indexLocked(n *node.Node) {
	e.dense.Put(n.ID, n.Embedding)
	if text := n.Text(); text != "" {
		e.bm25.Index(string(n.ID), text)
	}
	e.tagIndex.Reindex(n.ID, n.Tags)
}

func (e *Engine) unindexLocked(id node.ID) {
	e.dense.Remove(id)
	e.bm25.Remove(string(id))
	e.tagIndex.Remove(id)
}

// evictLRULocked moves the hot node with the oldest AccessedAt to warm.
// Caller holds e.mu.
func (e *Engine) evictLRULocked() {
	var oldestID node.ID
	var oldestAt time.Time
	first := true
	for id, n := range e.hot {
		if first || n.AccessedAt.Before(oldestAt) {
			oldestID = id
			oldestAt = n.AccessedAt
			first = false
		}
	}
	if first {
		return // hot is empty
	}
	n := e.hot[oldestID]
	_ = e.warm.Put(oldestID, toRecord(n))
	delete(e.hot, oldestID)
	e.unindexLocked(oldestID)
}

// Get retrieves a node by id, promoting it to hot on any access from warm
// or cold (spec §4.D placement policy) and touching its access time.
func (e *Engine) Get(id node.ID, now time.Time) (*node.Node, Tier, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, 0, ErrClosed
	}
	if n, ok := e.hot[id]; ok {
		n.Touch(now)
		return n, TierHot, nil
	}
	if rec, ok, err := e.warm.Get(id); err != nil {
		return nil, 0, err
	} else if ok {
		n := fromRecord(id, rec)
		n.Touch(now)
		e.promoteLocked(n)
		_ = e.warm.Delete(id)
		return n, TierWarm, nil
	}
	if rec, ok, err := e.cold.Get(id); err != nil {
		return nil, 0, err
	} else if ok {
		n := fromRecord(id, rec)
		n.Touch(now)
		e.promoteLocked(n)
		_ = e.cold.Delete(id)
		return n, TierCold, nil
	}
	return nil, 0, ErrNotFound
}

// Peek retrieves a node without promoting it or mutating any tier — used by
// read-only introspection paths that must not touch storage state.
func (e *Engine) Peek(id node.ID) (*node.Node, Tier, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if n, ok := e.hot[id]; ok {
		return n, TierHot, nil
	}
	if rec, ok, _ := e.warm.Get(id); ok {
		return fromRecord(id, rec), TierWarm, nil
	}
	if rec, ok, _ := e.cold.Get(id); ok {
		return fromRecord(id, rec), TierCold, nil
	}
	return nil, 0, ErrNotFound
}

func (e *Engine) promoteLocked(n *node.Node) {
	if len(e.hot) >= e.cfg.HotCapacity {
		e.evictLRULocked()
	}
	e.hot[n.ID] = n
	e.indexLocked(n)
}

// Update replaces the stored node in whichever tier currently holds it and,
// when it is hot, re-indexes it (used after strengthen/weaken/connect/tag
// mutations). Warm and cold nodes stay out of the secondary indices.
func (e *Engine) Update(n *node.Node) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if e.readOnly {
		return ErrReadOnly
	}
	if _, ok := e.hot[n.ID]; ok {
		e.hot[n.ID] = n
		e.indexLocked(n)
		return nil
	}
	if _, ok, _ := e.warm.Get(n.ID); ok {
		_ = e.warm.Put(n.ID, toRecord(n))
		return nil
	}
	if _, ok, _ := e.cold.Get(n.ID); ok {
		_ = e.cold.Put(n.ID, toRecord(n))
		return nil
	}
	return ErrNotFound
}

// Remove deletes a node from whichever tier holds it and drops it from all
// indices. Dangling edges on other nodes are left for lazy GC on traversal
// (spec invariant #4).
func (e *Engine) Remove(id node.ID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	found := false
	if _, ok := e.hot[id]; ok {
		delete(e.hot, id)
		found = true
	}
	if _, ok, _ := e.warm.Get(id); ok {
		_ = e.warm.Delete(id)
		found = true
	}
	if _, ok, _ := e.cold.Get(id); ok {
		_ = e.cold.Delete(id)
		found = true
	}
	if !found {
		return ErrNotFound
	}
	e.unindexLocked(id)
	return nil
}

// ForEachHot calls fn for every node currently in the hot tier, in
// unspecified order. fn returning any non-nil error halts iteration early
// and ForEachHot returns that error.
func (e *Engine) ForEachHot(fn func(*node.Node) error) error {
	e.mu.RLock()
	nodes := make([]*node.Node, 0, len(e.hot))
	for _, n := range e.hot {
		nodes = append(nodes, n)
	}
	e.mu.RUnlock()
	for _, n := range nodes {
		if err := fn(n); err != nil {
			return err
		}
	}
	return nil
}

// HotSize returns the number of nodes currently in the hot tier.
func (e *Engine) HotSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.hot)
}

// TotalSize returns hot+warm+cold node counts combined; warm/cold counts
// require a full scan since those backings don't cache a live count.
func (e *Engine) TotalSize() (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	total := len(e.hot)
	if err := e.warm.ForEach(func(node.ID, Record) error { total++; return nil }); err != nil {
		return 0, err
	}
	if err := e.cold.ForEach(func(node.ID, Record) error { total++; return nil }); err != nil {
		return 0, err
	}
	return total, nil
}

// ManageTiers applies the spec §4.D placement policy: evict hot nodes older
// than HotAge to warm, and warm nodes older than WarmAge to cold. It does
// not evict by capacity; Insert and promotion do that. Called from
// Mind.Tick().
func (e *Engine) ManageTiers(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, n := range e.hot {
		if now.Sub(n.AccessedAt) > e.cfg.HotAge {
			_ = e.warm.Put(id, toRecord(n))
			delete(e.hot, id)
			e.unindexLocked(id)
		}
	}
	var toCold []node.ID
	_ = e.warm.ForEach(func(id node.ID, rec Record) error {
		if now.Sub(rec.AccessedAt) > e.cfg.WarmAge {
			toCold = append(toCold, id)
		}
		return nil
	})
	for _, id := range toCold {
		rec, ok, _ := e.warm.Get(id)
		if !ok {
			continue
		}
		_ = e.cold.Put(id, rec)
		_ = e.warm.Delete(id)
	}
}

// SearchDense performs a brute-force cosine scan over the dense index (hot
// plus warm contributions via quantized cosine), returning the top k
// matches sorted by similarity descending (spec §4.D search_dense).
func (e *Engine) SearchDense(q vector.Vector, k int) []DenseHit {
	e.mu.RLock()
	defer e.mu.RUnlock()
	hits := e.dense.Search(q, k)

	// Warm contributes via quantized cosine, approximating the same scan
	// over nodes that have been tiered out of hot (spec §4.D: "warm
	// contributes via quantized cosine").
	qq := vector.Quantize(q)
	var warmHits []DenseHit
	_ = e.warm.ForEach(func(id node.ID, rec Record) error {
		sim := qq.CosineApprox(rec.Quantized)
		warmHits = append(warmHits, DenseHit{ID: id, Similarity: sim})
		return nil
	})
	hits = append(hits, warmHits...)
	sort.Slice(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// SearchSparse runs a BM25 keyword search over the full-text index (spec
// §4.D search_sparse). The index may briefly lag an insert until the next
// sync (spec §5); callers must tolerate that staleness.
func (e *Engine) SearchSparse(text string, k int) []BM25Hit {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.bm25.Search(text, k)
}

// SearchByTag returns every node id carrying the exact tag.
func (e *Engine) SearchByTag(tag string) []node.ID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tagIndex.Get(tag)
}

// BM25DocCount exposes the indexed-document count, used by the spec §8
// invariant "BM25 index count equals the number of hot nodes with
// non-empty text".
func (e *Engine) BM25DocCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.bm25.DocCount()
}

// SetReadOnly marks the store read-only after a persistent storage I/O
// failure (spec §7 error kind 5): every subsequent write is rejected.
func (e *Engine) SetReadOnly(ro bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.readOnly = ro
}

// Snapshot captures enough state to roll back a subsequent destructive
// operation (prune, forget): a copy of every hot node and the current
// snapshot counter. Cheap because it's only taken before rare, bounded
// operations, never per-write (spec §7: "A snapshot taken before prune
// permits manual rollback").
type Snapshot struct {
	ID    uint64
	Nodes map[node.ID]*node.Node
}

// TakeSnapshot copies the hot tier and bumps the monotone snapshot counter
// (spec invariant #6: snapshots form a monotone sequence).
func (e *Engine) TakeSnapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.snapshotID++
	cp := make(map[node.ID]*node.Node, len(e.hot))
	for id, n := range e.hot {
		clone := *n
		clone.Embedding = n.Embedding.Clone()
		clone.Tags = append([]string(nil), n.Tags...)
		clone.Edges = append([]node.Edge(nil), n.Edges...)
		cp[id] = &clone
	}
	return Snapshot{ID: e.snapshotID, Nodes: cp}
}

// Rollback restores the hot tier (and derived indices) from a previously
// taken Snapshot.
func (e *Engine) Rollback(s Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hot = make(map[node.ID]*node.Node, len(s.Nodes))
	e.dense = NewDenseIndex()
	e.bm25 = NewBM25Index()
	e.tagIndex = NewTagIndex()
	for id, n := range s.Nodes {
		e.hot[id] = n
		e.indexLocked(n)
	}
}
