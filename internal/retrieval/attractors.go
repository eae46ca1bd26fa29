package retrieval

import (
	"math"
	"sort"
	"time"

	"github.com/chitta-project/chitta/internal/node"
)

// Attractor is a high-confidence, well-connected, mature node acting as a
// gravity well in embedding space (spec §4.F, GLOSSARY).
type Attractor struct {
	ID    node.ID
	Score float64
}

// minAttractorDegree, minAttractorAgeDays, and minAttractorConfidence are the
// qualifying thresholds from spec §4.F: effective confidence >= 0.7,
// in-degree+out-degree >= 5, age >= 7 days.
const (
	minAttractorConfidence = 0.7
	minAttractorDegree     = 5
	minAttractorAgeDays    = 7
)

// FindAttractors scans the hot tier for qualifying attractors and ranks
// them by conf*log(1+degree)*min(1, age_days/30).
func (p *Pipeline) FindAttractors(now time.Time) []Attractor {
	var nodes []*node.Node
	_ = p.store.ForEachHot(func(n *node.Node) error {
		nodes = append(nodes, n)
		return nil
	})

	inDegree := make(map[node.ID]int, len(nodes))
	for _, n := range nodes {
		for _, e := range n.Edges {
			inDegree[e.Target]++
		}
	}

	var attractors []Attractor
	for _, n := range nodes {
		conf := n.Confidence.Effective()
		degree := n.Degree() + inDegree[n.ID]
		ageDays := now.Sub(n.CreatedAt).Hours() / 24
		if conf < minAttractorConfidence || degree < minAttractorDegree || ageDays < minAttractorAgeDays {
			continue
		}
		score := conf * math.Log(1+float64(degree)) * math.Min(1, ageDays/30)
		attractors = append(attractors, Attractor{ID: n.ID, Score: score})
	}
	sort.Slice(attractors, func(i, j int) bool { return attractors[i].Score > attractors[j].Score })
	return attractors
}

// Basin returns every node within cosine 0.6 of the attractor, or reachable
// from it in at most 2 hops, excluding the attractor itself.
func (p *Pipeline) Basin(attractor node.ID) []node.ID {
	center, ok := p.lookup(attractor)
	if !ok {
		return nil
	}

	members := make(map[node.ID]bool)
	_ = p.store.ForEachHot(func(n *node.Node) error {
		if n.ID != attractor && center.Embedding.Cosine(n.Embedding) >= 0.6 {
			members[n.ID] = true
		}
		return nil
	})

	frontier := []node.ID{attractor}
	seen := map[node.ID]bool{attractor: true}
	for hop := 0; hop < 2; hop++ {
		var next []node.ID
		for _, id := range frontier {
			n, ok := p.lookup(id)
			if !ok {
				continue
			}
			for _, e := range n.Edges {
				if seen[e.Target] {
					continue
				}
				seen[e.Target] = true
				members[e.Target] = true
				next = append(next, e.Target)
			}
		}
		frontier = next
	}

	out := make([]node.ID, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	return out
}

// SettleTowardAttractors applies strengthen(n, settleStrength*cos(n,
// attractor)) to each basin member of every current attractor (spec §4.F
// attractors: "Settling applies strengthen...").
func (p *Pipeline) SettleTowardAttractors(now time.Time, settleStrength float64) error {
	for _, a := range p.FindAttractors(now) {
		center, ok := p.lookup(a.ID)
		if !ok {
			continue
		}
		for _, memberID := range p.Basin(a.ID) {
			member, ok := p.lookup(memberID)
			if !ok {
				continue
			}
			sim := center.Embedding.Cosine(member.Embedding)
			member.Confidence = member.Confidence.Observe(settleStrength * sim)
			if err := p.store.Update(member); err != nil {
				return err
			}
		}
	}
	return nil
}
