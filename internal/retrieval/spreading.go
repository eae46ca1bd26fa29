package retrieval

import "github.com/chitta-project/chitta/internal/node"

// spreadingActivation implements resonate (spec §4.F stage 6): seeds start
// with activation equal to their post-inhibition score, then for up to
// SpreadHops hops, each source's outbound neighbours gain
// SpreadStrength*decay^hop*act(source)*edge_weight. Seed and spread
// candidates are merged by taking the max activation per id.
func (p *Pipeline) spreadingActivation(seeds []Candidate, k int) []Candidate {
	activation := make(map[node.ID]float64, len(seeds))
	for _, c := range seeds {
		activation[c.ID] = c.Score
	}

	frontier := make([]node.ID, len(seeds))
	for i, c := range seeds {
		frontier[i] = c.ID
	}

	decay := 1.0
	for hop := 0; hop < p.cfg.SpreadHops && len(frontier) > 0; hop++ {
		decay *= p.cfg.SpreadDecay
		var next []node.ID
		for _, sourceID := range frontier {
			sourceAct := activation[sourceID]
			if sourceAct <= 0 {
				continue
			}
			n, ok := p.lookup(sourceID)
			if !ok {
				continue
			}
			for _, e := range n.Edges {
				delta := p.cfg.SpreadStrength * decay * sourceAct * e.Weight
				if delta <= 0 {
					continue
				}
				if delta > activation[e.Target] {
					activation[e.Target] = delta
				}
				next = append(next, e.Target)
			}
		}
		frontier = next
	}

	out := make([]Candidate, 0, len(activation))
	for id, act := range activation {
		out = append(out, Candidate{ID: id, Score: act})
	}
	sortDesc(out)
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

// hebbianUpdate strengthens (or creates) a Similar edge between every pair
// of distinct ids in the top min(HebbianTopK, len) candidates, proportional
// to their activations (spec §4.F stage 7).
func (p *Pipeline) hebbianUpdate(candidates []Candidate) {
	topK := p.cfg.HebbianTopK
	if topK > len(candidates) {
		topK = len(candidates)
	}
	top := candidates[:topK]
	for i := 0; i < len(top); i++ {
		for j := i + 1; j < len(top); j++ {
			p.strengthenPair(top[i], top[j])
			p.strengthenPair(top[j], top[i])
		}
	}
}

func (p *Pipeline) strengthenPair(a, b Candidate) {
	n, ok := p.lookup(a.ID)
	if !ok {
		return
	}
	var existing float64
	found := false
	for _, e := range n.Edges {
		if e.Target == b.ID && e.Type == node.Similar {
			existing = e.Weight
			found = true
			break
		}
	}
	delta := p.cfg.HebbianEta * a.Score * b.Score
	newWeight := clamp01(existing + delta)
	if !found || newWeight != existing {
		n.Connect(b.ID, node.Similar, newWeight)
		_ = p.store.Update(n)
	}
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
