// Package mind is the single thread-safe entry point (spec §4.H) composing
// storage, graph, dynamics, retrieval, and the embedder into the engine's
// public API. Every operation takes Mind's mutex; long operations release
// it between stages where possible, following the coarse-grained locking
// policy of spec §5 and grounded on the teacher's single high-level
// pkg/nornicdb.DB façade over its storage/search/decay subsystems.
package mind

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/chitta-project/chitta/internal/dynamics"
	"github.com/chitta-project/chitta/internal/embed"
	"github.com/chitta-project/chitta/internal/graph"
	"github.com/chitta-project/chitta/internal/node"
	"github.com/chitta-project/chitta/internal/retrieval"
	"github.com/chitta-project/chitta/internal/storage"
)

// tracerName is the shared OTel tracer name for every Mind span.
const tracerName = "chitta.mind"

// observeMinInterval is the minimum spacing between two accepted Observe
// calls for the same node id (spec §8: "observe called more frequently
// than 500ms apart is rate-limited").
const observeMinInterval = 500 * time.Millisecond

// maxSnapshots bounds how many named snapshots Mind retains for rollback;
// older ones are evicted oldest-first (spec §7: snapshots are a manual,
// local recovery mechanism, not an unbounded history).
const maxSnapshots = 16

// Config bundles the sub-component configurations Mind needs to construct
// itself.
type Config struct {
	Storage   storage.Config
	Dynamics  dynamics.Config
	Retrieval retrieval.Config
}

// DefaultConfig returns spec-default configuration for every sub-component.
func DefaultConfig(basePath string) Config {
	return Config{
		Storage:   storage.DefaultConfig(basePath),
		Dynamics:  dynamics.DefaultConfig(),
		Retrieval: retrieval.DefaultConfig(),
	}
}

// Mind is the façade. All exported methods lock mu for the duration of
// their storage/graph/index mutation and release it before returning.
type Mind struct {
	mu sync.Mutex

	store     *storage.Engine
	g         *graph.Graph
	dyn       *dynamics.Dynamics
	retrieval *retrieval.Pipeline
	embedder  embed.Embedder
	session   *retrieval.SessionContext

	snapshots   map[uint64]storage.Snapshot
	snapshotLog []uint64

	lastObserved map[node.ID]time.Time
}

// Open constructs a Mind over the given warm/cold backing stores (nil uses
// in-memory backings) and embedder.
func Open(cfg Config, warm, cold storage.Backing, embedder embed.Embedder) *Mind {
	store := storage.Open(cfg.Storage, warm, cold)
	g := graph.New(store)
	session := retrieval.NewSessionContext(retrieval.DefaultSessionCapacity)
	return &Mind{
		store:     store,
		g:         g,
		dyn:       dynamics.New(cfg.Dynamics, store, g),
		retrieval: retrieval.New(store).WithConfig(cfg.Retrieval).WithSession(session),
		embedder:  embedder,
		session:   session,
		snapshots: make(map[uint64]storage.Snapshot),

		lastObserved: make(map[node.ID]time.Time),
	}
}

// Close releases every owned resource.
func (m *Mind) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Close()
}

// Remember embeds text, constructs a node of the given type, and inserts it (spec
// dataflow: text -> C -> B(node+embedding) -> D(insert+index)). The
// embedding call happens before the lock is taken so a slow model doesn't
// stall other operations (spec §4.H: "release [the mutex] between stages
// where possible").
func (m *Mind) Remember(ctx context.Context, text string, typ node.Type, confidence float64, tags []string) (*node.Node, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "mind.Remember",
		trace.WithAttributes(attribute.String("node_type", string(typ))))
	defer span.End()

	artha, err := m.embedder.Transform(ctx, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	n := node.New(typ, text)
	n.Embedding = artha.Vector
	if confidence > 0 {
		n.Confidence = node.NewConfidence(confidence)
	}
	for _, tag := range tags {
		n.AddTag(tag)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Insert(n); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return n, nil
}

// RememberVector is Remember's variant for a caller-supplied embedding,
// skipping the tokenize->embed pipeline entirely.
func (m *Mind) RememberVector(text string, typ node.Type, vec []float32, confidence float64, tags []string) (*node.Node, error) {
	n := node.New(typ, text)
	n.Embedding = append([]float32(nil), vec...)
	if confidence > 0 {
		n.Confidence = node.NewConfidence(confidence)
	}
	for _, tag := range tags {
		n.AddTag(tag)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Insert(n); err != nil {
		return nil, err
	}
	return n, nil
}

// Strengthen folds amount into a node's confidence as a new observation
// (the generic strengthen operation spec §4.E's attractor settling and
// §4.G's Hebbian rewiring both build on).
func (m *Mind) Strengthen(id node.ID, amount float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, _, err := m.store.Peek(id)
	if err != nil {
		return err
	}
	n.Confidence = n.Confidence.Observe(amount)
	return m.store.Update(n)
}

// Weaken folds -amount into a node's confidence.
func (m *Mind) Weaken(id node.ID, amount float64) error {
	return m.Strengthen(id, -amount)
}

// Connect appends a typed, weighted edge between two nodes.
func (m *Mind) Connect(from, to node.ID, edgeType node.EdgeType, weight float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.g.Connect(from, to, edgeType, weight)
}

// Tag adds a tag to a node.
func (m *Mind) Tag(id node.ID, tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, _, err := m.store.Peek(id)
	if err != nil {
		return err
	}
	n.AddTag(tag)
	return m.store.Update(n)
}

// Untag removes a tag from a node.
func (m *Mind) Untag(id node.ID, tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, _, err := m.store.Peek(id)
	if err != nil {
		return err
	}
	n.RemoveTag(tag)
	return m.store.Update(n)
}

// UpdatePayload replaces a node's text payload, re-embedding it.
func (m *Mind) UpdatePayload(ctx context.Context, id node.ID, text string) error {
	artha, err := m.embedder.Transform(ctx, text)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	n, _, err := m.store.Peek(id)
	if err != nil {
		return err
	}
	n.Payload = []byte(text)
	n.Embedding = artha.Vector
	return m.store.Update(n)
}

// Forget removes a node, optionally cascading a confidence penalty and
// rewiring orphaned neighbours (spec §4.G forget).
func (m *Mind) Forget(id node.ID, cascade, rewire bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dyn.Forget(id, cascade, rewire)
}

// RemoveNode deletes a node outright, with no cascade/rewire/audit
// behaviour (use Forget for the audited variant).
func (m *Mind) RemoveNode(id node.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Remove(id)
}

// Tick runs one dynamics cycle (decay, coherence, triggers, feedback,
// synthesis) and performs tier management (spec §4.G, §4.D manage_tiers).
func (m *Mind) Tick(now time.Time) error {
	_, span := otel.Tracer(tracerName).Start(context.Background(), "mind.Tick")
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.store.ManageTiers(now)
	if err := m.dyn.Tick(now); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// Snapshot takes a named, rollback-able snapshot of the hot tier and
// returns its id.
func (m *Mind) Snapshot() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.store.TakeSnapshot()
	m.snapshots[snap.ID] = snap
	m.snapshotLog = append(m.snapshotLog, snap.ID)
	if len(m.snapshotLog) > maxSnapshots {
		oldest := m.snapshotLog[0]
		m.snapshotLog = m.snapshotLog[1:]
		delete(m.snapshots, oldest)
	}
	return snap.ID
}

// Rollback restores the hot tier and indices from a previously taken
// snapshot id (spec §7: "a snapshot taken before prune permits manual
// rollback via rollback(snapshot_id)").
func (m *Mind) Rollback(snapshotID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snapshots[snapshotID]
	if !ok {
		return storage.ErrNotFound
	}
	m.store.Rollback(snap)
	return nil
}
