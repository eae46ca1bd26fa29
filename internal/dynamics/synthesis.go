package dynamics

import (
	"strings"
	"time"

	"github.com/chitta-project/chitta/internal/node"
	"github.com/chitta-project/chitta/internal/vector"
)

// SynthesizeWisdom scans the hot tier for the largest Episode cluster
// accessed within SynthesisWindow whose pairwise cosine similarity is all
// >= SynthesisMinCosine, and if one of at least SynthesisMinCluster members
// exists, emits a new Wisdom node whose text concatenates each member's
// payload prefix and whose embedding is their centroid (spec §4.G
// synthesize_wisdom). Returns the synthesized node, or nil if no cluster
// qualified.
func (d *Dynamics) SynthesizeWisdom(now time.Time) (*node.Node, error) {
	var recent []*node.Node
	_ = d.store.ForEachHot(func(n *node.Node) error {
		if n.NodeType == node.Episode && now.Sub(n.AccessedAt) <= d.cfg.SynthesisWindow {
			recent = append(recent, n)
		}
		return nil
	})
	if len(recent) < d.cfg.SynthesisMinCluster {
		return nil, nil
	}

	cluster := largestCosineCluster(recent, d.cfg.SynthesisMinCosine)
	if len(cluster) < d.cfg.SynthesisMinCluster {
		return nil, nil
	}
	if d.alreadySynthesized(cluster) {
		return nil, nil
	}

	wisdom := node.New(node.Wisdom, synthesizedText(cluster))
	wisdom.Embedding = centroid(cluster)
	wisdom.Confidence = node.NewConfidence(0.6)
	for _, ep := range cluster {
		wisdom.Connect(ep.ID, node.EvolvedFrom, 0.5)
	}
	if err := d.store.Insert(wisdom); err != nil {
		return nil, err
	}
	return wisdom, nil
}

// alreadySynthesized reports whether an existing Wisdom node already
// evolved from at least half of cluster's members, to avoid re-synthesizing
// the same insight on every tick while the episodes remain hot.
func (d *Dynamics) alreadySynthesized(cluster []*node.Node) bool {
	members := make(map[node.ID]bool, len(cluster))
	for _, ep := range cluster {
		members[ep.ID] = true
	}
	found := false
	_ = d.store.ForEachHot(func(n *node.Node) error {
		if n.NodeType != node.Wisdom {
			return nil
		}
		matches := 0
		for _, e := range n.Edges {
			if e.Type == node.EvolvedFrom && members[e.Target] {
				matches++
			}
		}
		if matches*2 >= len(cluster) {
			found = true
		}
		return nil
	})
	return found
}

// largestCosineCluster greedily grows the largest group of episodes that
// are all mutually similar above minCosine, starting from each candidate
// seed and keeping the best result.
func largestCosineCluster(episodes []*node.Node, minCosine float64) []*node.Node {
	var best []*node.Node
	for i := range episodes {
		cluster := []*node.Node{episodes[i]}
		for j := range episodes {
			if j == i {
				continue
			}
			if allSimilar(cluster, episodes[j], minCosine) {
				cluster = append(cluster, episodes[j])
			}
		}
		if len(cluster) > len(best) {
			best = cluster
		}
	}
	return best
}

func allSimilar(cluster []*node.Node, candidate *node.Node, minCosine float64) bool {
	for _, member := range cluster {
		if member.Embedding.Cosine(candidate.Embedding) < minCosine {
			return false
		}
	}
	return true
}

const synthesisPrefixLen = 80

func synthesizedText(cluster []*node.Node) string {
	var b strings.Builder
	for i, ep := range cluster {
		if i > 0 {
			b.WriteString(" / ")
		}
		text := ep.Text()
		if len(text) > synthesisPrefixLen {
			text = text[:synthesisPrefixLen]
		}
		b.WriteString(text)
	}
	return b.String()
}

func centroid(cluster []*node.Node) vector.Vector {
	if len(cluster) == 0 {
		return nil
	}
	dim := cluster[0].Embedding.Dim()
	sum := vector.New(dim)
	for _, ep := range cluster {
		for i, x := range ep.Embedding {
			if i >= dim {
				break
			}
			sum[i] += x
		}
	}
	n := float32(len(cluster))
	for i := range sum {
		sum[i] /= n
	}
	sum.Normalize()
	return sum
}
