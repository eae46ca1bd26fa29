package retrieval

// LateralInhibition greedily walks candidates in descending score order;
// each accepted candidate suppresses any later candidate whose cosine
// similarity to it exceeds threshold, multiplying the suppressed
// candidate's score by (1-strength), or dropping it entirely if hard is set
// (spec §4.F stage 5).
func LateralInhibition(candidates []Candidate, lookup Lookup, threshold, strength float64, hard bool) []Candidate {
	accepted := make([]Candidate, 0, len(candidates))
	suppressed := make(map[int]bool, len(candidates))

	for i := range candidates {
		if suppressed[i] {
			continue
		}
		winner := candidates[i]
		winnerNode, ok := lookup(winner.ID)
		if !ok {
			accepted = append(accepted, winner)
			continue
		}
		accepted = append(accepted, winner)
		for j := i + 1; j < len(candidates); j++ {
			if suppressed[j] {
				continue
			}
			other := candidates[j]
			otherNode, ok := lookup(other.ID)
			if !ok {
				continue
			}
			if winnerNode.Embedding.Cosine(otherNode.Embedding) <= threshold {
				continue
			}
			if hard {
				suppressed[j] = true
				continue
			}
			candidates[j].Score *= 1 - strength
		}
	}
	return accepted
}
