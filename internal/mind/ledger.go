package mind

import (
	"github.com/chitta-project/chitta/internal/node"
)

// SaveLedger stores a JSON session-state blob as an ordinary Ledger node,
// tagged `session:<sessionID>` and `project:<project>` (spec §4.H Ledger).
func (m *Mind) SaveLedger(json, sessionID, project string) (*node.Node, error) {
	n := node.New(node.Ledger, json)
	n.AddTag("session:" + sessionID)
	n.AddTag("project:" + project)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Insert(n); err != nil {
		return nil, err
	}
	return n, nil
}

// LoadLedger returns the most recently created Ledger node for the given
// session and project ("latest" means max CreatedAt, spec §4.H Ledger).
func (m *Mind) LoadLedger(sessionID, project string) (*node.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *node.Node
	for _, id := range m.store.SearchByTag("session:" + sessionID) {
		n, _, err := m.store.Peek(id)
		if err != nil || n.NodeType != node.Ledger {
			continue
		}
		if !n.HasTag("project:" + project) {
			continue
		}
		if latest == nil || n.CreatedAt.After(latest.CreatedAt) {
			latest = n
		}
	}
	if latest == nil {
		return nil, ErrLedgerNotFound
	}
	return latest, nil
}

// UpdateLedger replaces an existing ledger node's JSON payload in place.
func (m *Mind) UpdateLedger(id node.ID, json string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, _, err := m.store.Peek(id)
	if err != nil {
		return err
	}
	if n.NodeType != node.Ledger {
		return ErrNotALedger
	}
	n.Payload = []byte(json)
	return m.store.Update(n)
}

// ListLedgers returns every Ledger node tagged with the given project,
// newest first.
func (m *Mind) ListLedgers(project string) []*node.Node {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*node.Node
	for _, id := range m.store.SearchByTag("project:" + project) {
		n, _, err := m.store.Peek(id)
		if err != nil || n.NodeType != node.Ledger {
			continue
		}
		out = append(out, n)
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.After(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}
