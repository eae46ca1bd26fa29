package mind

import (
	"time"

	"github.com/chitta-project/chitta/internal/graph"
	"github.com/chitta-project/chitta/internal/node"
	"github.com/chitta-project/chitta/internal/retrieval"
)

// State is a snapshot of the engine's basic size/tier metrics (spec §4.H
// introspection: "state").
type State struct {
	HotSize       int
	TotalSize     int
	BM25DocCount  int
	SnapshotCount int
}

// State returns the current size/tier metrics.
func (m *Mind) State() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total, err := m.store.TotalSize()
	if err != nil {
		return State{}, err
	}
	return State{
		HotSize:       m.store.HotSize(),
		TotalSize:     total,
		BM25DocCount:  m.store.BM25DocCount(),
		SnapshotCount: len(m.snapshots),
	}, nil
}

// Coherence recomputes the current coherence score.
func (m *Mind) Coherence(now time.Time) graph.Coherence {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.g.ComputeCoherence(now)
}

// Health recomputes the current vitality score.
func (m *Mind) Health(now time.Time) graph.Ojas {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.g.ComputeVitality(now, m.store.HotSize())
}

// SessionContext returns the live session-priming state.
func (m *Mind) SessionContext() *retrieval.SessionContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// CompetitionConfig returns the current retrieval scoring configuration
// (the "competition" between candidates during re-ranking and inhibition).
func (m *Mind) CompetitionConfig() retrieval.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retrieval.Config()
}

// EpistemicState summarises how much the engine currently trusts its own
// knowledge: coherence, vitality, and the fraction of hot nodes whose
// effective confidence is below the caller's lowConfidenceThreshold.
type EpistemicState struct {
	Coherence          graph.Coherence
	Vitality           graph.Ojas
	LowConfidenceRatio float64
}

// EpistemicState computes the epistemic summary (spec §4.H introspection:
// "epistemic summary").
func (m *Mind) EpistemicState(now time.Time, lowConfidenceThreshold float64) EpistemicState {
	m.mu.Lock()
	defer m.mu.Unlock()

	coherence := m.g.ComputeCoherence(now)
	vitality := m.g.ComputeVitality(now, m.store.HotSize())

	var total, low int
	_ = m.store.ForEachHot(func(n *node.Node) error {
		total++
		if n.Confidence.Effective() < lowConfidenceThreshold {
			low++
		}
		return nil
	})
	var ratio float64
	if total > 0 {
		ratio = float64(low) / float64(total)
	}
	return EpistemicState{Coherence: coherence, Vitality: vitality, LowConfidenceRatio: ratio}
}
