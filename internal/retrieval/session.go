package retrieval

import (
	"github.com/chitta-project/chitta/internal/node"
	"github.com/chitta-project/chitta/internal/vector"
)

// DefaultSessionCapacity bounds each FIFO in a SessionContext.
const DefaultSessionCapacity = 20

// SessionContext carries the bounded recent-activity state that session
// priming reads from (spec §4.F stage 4): recent observations, active
// intentions, and a running centroid ("goal basin") over everything
// observed this session.
type SessionContext struct {
	capacity int

	recentObservations []node.ID
	activeIntentions   []node.ID

	basinSum   vector.Vector
	basinCount int
}

// NewSessionContext returns an empty session context with the given FIFO
// capacity (use DefaultSessionCapacity if unsure).
func NewSessionContext(capacity int) *SessionContext {
	if capacity <= 0 {
		capacity = DefaultSessionCapacity
	}
	return &SessionContext{capacity: capacity}
}

// Observe records a node as recently seen, pushing it onto the bounded
// recent-observations FIFO and folding its embedding into the basin.
func (s *SessionContext) Observe(id node.ID, embedding vector.Vector) {
	s.recentObservations = pushBounded(s.recentObservations, id, s.capacity)
	s.foldBasin(embedding)
}

// AddIntention records an active intention node.
func (s *SessionContext) AddIntention(id node.ID) {
	s.activeIntentions = pushBounded(s.activeIntentions, id, s.capacity)
}

// FoldQuery folds a query embedding into the goal basin without recording
// it as a recent observation (queries have no node id of their own).
func (s *SessionContext) FoldQuery(embedding vector.Vector) {
	s.foldBasin(embedding)
}

func (s *SessionContext) foldBasin(v vector.Vector) {
	if len(v) == 0 {
		return
	}
	if s.basinSum == nil {
		s.basinSum = vector.New(len(v))
	}
	for i, x := range v {
		s.basinSum[i] += x
	}
	s.basinCount++
}

// Basin returns the current goal-basin centroid, normalized to unit length.
func (s *SessionContext) Basin() vector.Vector {
	if s.basinCount == 0 {
		return nil
	}
	centroid := s.basinSum.Clone()
	for i := range centroid {
		centroid[i] /= float32(s.basinCount)
	}
	centroid.Normalize()
	return centroid
}

func pushBounded(fifo []node.ID, id node.ID, capacity int) []node.ID {
	fifo = append(fifo, id)
	if len(fifo) > capacity {
		fifo = fifo[len(fifo)-capacity:]
	}
	return fifo
}

func containsID(ids []node.ID, id node.ID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// Prime boosts each candidate by 1 + alpha*cos(embedding, basin), plus a
// flat bonus for any candidate appearing in the recent-observations or
// active-intentions sets (spec §4.F stage 4).
func (s *SessionContext) Prime(candidates []Candidate, lookup Lookup, alpha, flat float64) []Candidate {
	basin := s.Basin()
	for i, c := range candidates {
		n, ok := lookup(c.ID)
		if !ok {
			continue
		}
		if basin != nil {
			boost := 1 + alpha*n.Embedding.Cosine(basin)
			candidates[i].Score *= boost
		}
		if containsID(s.recentObservations, c.ID) || containsID(s.activeIntentions, c.ID) {
			candidates[i].Score += flat
		}
	}
	return candidates
}
