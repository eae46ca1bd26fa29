package mind

import (
	"time"

	"github.com/chitta-project/chitta/internal/node"
)

// ObserveNode folds an existing node into the session's recent-observations
// FIFO and goal basin without returning it (the RPC `observe` tool: "I just
// looked at this, remember that for priming"). Calls for the same node id
// spaced less than observeMinInterval apart are rejected with
// ErrObserveRateLimited rather than silently dropped or applied twice; the
// caller still holds whatever payload it was about to send and may retry
// after the interval elapses.
func (m *Mind) ObserveNode(id node.ID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if last, ok := m.lastObserved[id]; ok && now.Sub(last) < observeMinInterval {
		return ErrObserveRateLimited
	}
	n, _, err := m.store.Peek(id)
	if err != nil {
		return err
	}
	m.session.Observe(id, n.Embedding)
	m.lastObserved[id] = now
	return nil
}

// MarkIntention records a node as an active intention for this session,
// giving it the flat priming bonus in future recalls.
func (m *Mind) MarkIntention(id node.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.AddIntention(id)
}
