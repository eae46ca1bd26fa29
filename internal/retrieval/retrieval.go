// Package retrieval implements the recall pipeline of spec §4.F: dense +
// sparse candidate generation, reciprocal-rank fusion, soul-aware
// re-ranking, session priming, lateral inhibition, spreading activation,
// and the Hebbian update that follows a successful recall.
//
// Stage 1 (candidate generation) is a bi-encoder retrieval exactly like the
// teacher's two-stage design in pkg/search/rerank.go: fast vector/BM25
// lookup first, heavier scoring only over the surviving candidates.
package retrieval

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/chitta-project/chitta/internal/node"
	"github.com/chitta-project/chitta/internal/storage"
	"github.com/chitta-project/chitta/internal/vector"
)

// Mode selects which candidate generation paths run.
type Mode string

const (
	ModeDense  Mode = "dense"
	ModeSparse Mode = "sparse"
	ModeHybrid Mode = "hybrid"
)

// Candidate is one item flowing through the pipeline, accumulating score
// adjustments from each stage.
type Candidate struct {
	ID         node.ID
	Similarity float64 // original cosine/BM25-derived similarity, stage 1
	Score      float64 // running score, mutated by every later stage
}

// Config bundles every tunable constant the recall pipeline needs,
// defaulted to the spec §4.F values.
type Config struct {
	CandidateFanout int // multiplier k->4k for stage-1 candidate pool size

	KRRF   int     // RRF rank-position constant, default 60
	WDense float64 // RRF dense-list weight, default 0.7

	WConf    float64 // conf_factor weight, default 0.5
	WRecency float64 // recency_factor weight, default 0.3
	HalfLife float64 // recency half-life in days, default 30

	PrimingAlpha float64 // session basin boost weight, default 0.15
	PrimingFlat  float64 // flat boost for recent/intention hits, default 0.05

	InhibitionEnabled    bool
	SimilarityThreshold  float64 // default 0.9
	InhibitionStrength   float64 // default 0.4
	HardSuppression      bool

	SpreadHops     int     // default 3
	SpreadStrength float64 // default 1.0 (scaled per-hop by SpreadDecay)
	SpreadDecay    float64 // default 0.5

	HebbianEta  float64 // default 0.03
	HebbianTopK int     // default 5
}

// DefaultConfig returns the spec's default tuning constants.
func DefaultConfig() Config {
	return Config{
		CandidateFanout:     4,
		KRRF:                60,
		WDense:               0.7,
		WConf:                0.5,
		WRecency:             0.3,
		HalfLife:             30,
		PrimingAlpha:         0.15,
		PrimingFlat:          0.05,
		InhibitionEnabled:    true,
		SimilarityThreshold:  0.9,
		InhibitionStrength:   0.4,
		HardSuppression:      false,
		SpreadHops:           3,
		SpreadStrength:       1.0,
		SpreadDecay:          0.5,
		HebbianEta:           0.03,
		HebbianTopK:          5,
	}
}

// Flags toggles each optional stage independently (spec §4.F: "every stage
// is individually togglable by request").
type Flags struct {
	Prime   bool
	Inhibit bool
	Spread  bool
	Learn   bool
}

// FullFlags turns every optional stage on (spec's full_resonate).
func FullFlags() Flags {
	return Flags{Prime: true, Inhibit: true, Spread: true, Learn: true}
}

// Lookup resolves a node by id without promoting tiers, used for read-only
// scoring passes (conf_factor, recency_factor, type_factor, spreading).
type Lookup func(id node.ID) (*node.Node, bool)

// Pipeline runs the full recall pipeline against a storage engine.
type Pipeline struct {
	store   *storage.Engine
	cfg     Config
	session *SessionContext
}

// New constructs a Pipeline with the default configuration and no session
// priming state.
func New(store *storage.Engine) *Pipeline {
	return &Pipeline{store: store, cfg: DefaultConfig()}
}

// WithConfig overrides the pipeline's tuning constants.
func (p *Pipeline) WithConfig(cfg Config) *Pipeline {
	p.cfg = cfg
	return p
}

// WithSession attaches session-priming state.
func (p *Pipeline) WithSession(s *SessionContext) *Pipeline {
	p.session = s
	return p
}

// Config returns the pipeline's current scoring configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

func (p *Pipeline) lookup(id node.ID) (*node.Node, bool) {
	n, _, err := p.store.Peek(id)
	if err != nil {
		return nil, false
	}
	return n, true
}

// Recall runs candidate generation through fusion and re-ranking, then any
// optional stages enabled by flags, and returns the top k candidates (spec
// §4.F stages 1-7).
func (p *Pipeline) Recall(ctx context.Context, mode Mode, qVec vector.Vector, qText string, k int, flags Flags, now time.Time) ([]Candidate, error) {
	fanout := k * p.cfg.CandidateFanout
	if fanout <= 0 {
		fanout = k
	}

	var dense []storage.DenseHit
	if mode == ModeDense || mode == ModeHybrid {
		dense = p.store.SearchDense(qVec, fanout)
	}
	var sparse []storage.BM25Hit
	if (mode == ModeSparse || mode == ModeHybrid) && qText != "" {
		sparse = p.store.SearchSparse(qText, fanout)
	}

	var candidates []Candidate
	switch mode {
	case ModeDense:
		for _, h := range dense {
			candidates = append(candidates, Candidate{ID: h.ID, Similarity: h.Similarity, Score: h.Similarity})
		}
	case ModeSparse:
		for _, h := range sparse {
			candidates = append(candidates, Candidate{ID: node.ID(h.ID), Similarity: h.Score, Score: h.Score})
		}
	default:
		candidates = RRF(dense, sparse, p.cfg.KRRF, p.cfg.WDense)
	}

	candidates = p.rerank(candidates, now)

	if flags.Prime && p.session != nil {
		candidates = p.session.Prime(candidates, p.lookup, p.cfg.PrimingAlpha, p.cfg.PrimingFlat)
	}

	sortDesc(candidates)

	if flags.Inhibit && p.cfg.InhibitionEnabled {
		candidates = LateralInhibition(candidates, p.lookup, p.cfg.SimilarityThreshold, p.cfg.InhibitionStrength, p.cfg.HardSuppression)
		sortDesc(candidates)
	}

	if len(candidates) > k {
		candidates = candidates[:k]
	}

	if flags.Spread {
		candidates = p.spreadingActivation(candidates, k)
	}

	sortDesc(candidates)
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	if flags.Learn {
		p.hebbianUpdate(candidates)
	}

	return candidates, nil
}

// RRF fuses a dense and a sparse ranked list with reciprocal-rank fusion
// (spec §4.F stage 2): rank-position r in a list contributes w/(kRRF+r+1);
// items outside the top len(list) contribute 0 from that list.
func RRF(dense []storage.DenseHit, sparse []storage.BM25Hit, kRRF int, wDense float64) []Candidate {
	scores := make(map[node.ID]float64)
	sims := make(map[node.ID]float64)
	order := make([]node.ID, 0, len(dense)+len(sparse))

	for r, h := range dense {
		scores[h.ID] += wDense / float64(kRRF+r+1)
		if _, seen := sims[h.ID]; !seen {
			order = append(order, h.ID)
		}
		if h.Similarity > sims[h.ID] {
			sims[h.ID] = h.Similarity
		}
	}
	wSparse := 1 - wDense
	for r, h := range sparse {
		id := node.ID(h.ID)
		scores[id] += wSparse / float64(kRRF+r+1)
		if _, seen := sims[id]; !seen {
			order = append(order, id)
		}
		if h.Score > sims[id] {
			sims[id] = h.Score
		}
	}

	out := make([]Candidate, 0, len(order))
	for _, id := range order {
		out = append(out, Candidate{ID: id, Similarity: sims[id], Score: scores[id]})
	}
	sortDesc(out)
	return out
}

var typeFactor = map[node.Type]float64{
	node.Failure:   1.2,
	node.Belief:    1.1,
	node.Invariant: 1.1,
	node.Wisdom:    1.0,
	node.Episode:   0.9,
}

// rerank applies the soul-aware scoring formula of spec §4.F stage 3:
// score = similarity * conf_factor * recency_factor * type_factor.
func (p *Pipeline) rerank(candidates []Candidate, now time.Time) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		n, ok := p.lookup(c.ID)
		if !ok {
			continue
		}
		confFactor := (1 - p.cfg.WConf) + p.cfg.WConf*n.Confidence.Effective()
		days := n.DaysSinceAccessed(now)
		recencyFactor := 1 + p.cfg.WRecency*math.Exp(-math.Ln2*days/p.cfg.HalfLife)
		tf, ok := typeFactor[n.NodeType]
		if !ok {
			tf = 1.0
		}
		c.Score = c.Similarity * confFactor * recencyFactor * tf
		out = append(out, c)
	}
	sortDesc(out)
	return out
}

func sortDesc(c []Candidate) {
	sort.Slice(c, func(i, j int) bool { return c[i].Score > c[j].Score })
}
