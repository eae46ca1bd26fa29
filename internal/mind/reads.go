package mind

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/chitta-project/chitta/internal/dynamics"
	"github.com/chitta-project/chitta/internal/node"
	"github.com/chitta-project/chitta/internal/retrieval"
	"github.com/chitta-project/chitta/internal/storage"
)

// Get retrieves a node by id, promoting it to hot on access.
func (m *Mind) Get(id node.ID, now time.Time) (*node.Node, storage.Tier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Get(id, now)
}

// Text returns a node's decoded payload.
func (m *Mind) Text(id node.ID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, _, err := m.store.Peek(id)
	if err != nil {
		return "", err
	}
	return n.Text(), nil
}

// QueryByType returns every hot node of the given type.
func (m *Mind) QueryByType(t node.Type) []*node.Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*node.Node
	_ = m.store.ForEachHot(func(n *node.Node) error {
		if n.NodeType == t {
			out = append(out, n)
		}
		return nil
	})
	return out
}

// RecallByTag returns every node carrying the exact tag.
func (m *Mind) RecallByTag(tag string) []*node.Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*node.Node
	for _, id := range m.store.SearchByTag(tag) {
		if n, _, err := m.store.Peek(id); err == nil {
			out = append(out, n)
		}
	}
	return out
}

// Recall embeds query (if non-empty) and runs the recall pipeline with the
// given mode and stage flags (spec §4.F, §4.H recall/resonate/full_resonate
// all funnel through this one entry point with different flag sets).
func (m *Mind) Recall(ctx context.Context, mode retrieval.Mode, query string, k int, flags retrieval.Flags, now time.Time) ([]retrieval.Candidate, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "mind.Recall",
		trace.WithAttributes(
			attribute.String("mode", string(mode)),
			attribute.Int("k", k),
		))
	defer span.End()

	var qVec []float32
	if query != "" && m.embedder.Ready() {
		artha, err := m.embedder.Transform(ctx, query)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		qVec = artha.Vector
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if qVec != nil {
		m.session.FoldQuery(qVec)
	}
	results, err := m.retrieval.Recall(ctx, mode, qVec, query, k, flags, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("result_count", len(results)))
	for _, c := range results {
		if n, _, err := m.store.Peek(c.ID); err == nil {
			m.session.Observe(c.ID, n.Embedding)
		}
	}
	return results, nil
}

// Resonate runs the recall pipeline with only spreading activation active
// (spec §4.H resonate).
func (m *Mind) Resonate(ctx context.Context, query string, k int, now time.Time) ([]retrieval.Candidate, error) {
	return m.Recall(ctx, retrieval.ModeHybrid, query, k, retrieval.Flags{Spread: true}, now)
}

// FullResonate runs the recall pipeline with every optional stage active
// (spec §4.H full_resonate).
func (m *Mind) FullResonate(ctx context.Context, query string, k int, now time.Time) ([]retrieval.Candidate, error) {
	return m.Recall(ctx, retrieval.ModeHybrid, query, k, retrieval.FullFlags(), now)
}

// FindAttractors returns the currently-qualifying attractors, ranked.
func (m *Mind) FindAttractors(now time.Time) []retrieval.Attractor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retrieval.FindAttractors(now)
}

// SettleTowardAttractors strengthens every attractor basin member toward
// its attractor.
func (m *Mind) SettleTowardAttractors(now time.Time, settleStrength float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retrieval.SettleTowardAttractors(now, settleStrength)
}

// PropagateConfidence runs a BFS confidence propagation from id.
func (m *Mind) PropagateConfidence(id node.ID, delta, decay float64, depth int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dyn.PropagateConfidence(id, delta, decay, depth)
}

// SynthesizeWisdom manually triggers wisdom synthesis outside of Tick.
func (m *Mind) SynthesizeWisdom(now time.Time) (*node.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dyn.SynthesizeWisdom(now)
}

// Feedback enqueues a feedback event for the next Tick's apply_feedback
// pass (spec §4.H Feedback).
func (m *Mind) Feedback(id node.ID, kind dynamics.FeedbackKind, magnitude float64, ctx string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dyn.Feedback().Enqueue(dynamics.FeedbackEvent{
		NodeID:    id,
		Kind:      kind,
		Magnitude: magnitude,
		Context:   ctx,
	})
}
