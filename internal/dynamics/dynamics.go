// Package dynamics runs the engine's autonomous background behavior (spec
// §4.G): scheduled decay and coherence recomputation, configurable
// trigger-condition-action rules, feedback batching, forget with cascade
// and rewire, confidence propagation, and opportunistic wisdom synthesis.
//
// Grounded on the teacher's pkg/decay.Manager: a ticked, interval-driven
// background process with its own Config struct of weighted defaults.
package dynamics

import (
	"time"

	"github.com/chitta-project/chitta/internal/graph"
	"github.com/chitta-project/chitta/internal/node"
	"github.com/chitta-project/chitta/internal/storage"
)

// Config controls how often Tick recomputes decay and coherence, and the
// thresholds built-in triggers fire at.
type Config struct {
	// DecayInterval is the minimum time between apply_decay passes.
	//
	// Default: 1 hour.
	DecayInterval time.Duration

	// CoherenceInterval is the minimum time between coherence recomputes.
	//
	// Default: 5 minutes.
	CoherenceInterval time.Duration

	// EmergencyCoherenceThreshold triggers a snapshot+prune(0.2)+recompute
	// when tau_k falls below it.
	//
	// Default: 0.3.
	EmergencyCoherenceThreshold float64

	// PruneDeadThreshold is the confidence floor the always-on prune_dead
	// trigger sweeps below.
	//
	// Default: 0.05.
	PruneDeadThreshold float64

	// CascadeStrength is how much forget(cascade=true) weakens each
	// neighbour's confidence.
	//
	// Default: 0.1.
	CascadeStrength float64

	// RewireWeight is the edge weight forget(rewire=true) assigns between
	// an orphaned in-neighbour/out-neighbour pair.
	//
	// Default: 0.1.
	RewireWeight float64

	// SynthesisMinCluster is the minimum Episode cluster size
	// synthesize_wisdom requires before emitting a Wisdom node.
	//
	// Default: 3.
	SynthesisMinCluster int

	// SynthesisWindow bounds how recent the Episode cluster must be.
	//
	// Default: 24 hours.
	SynthesisWindow time.Duration

	// SynthesisMinCosine is the minimum pairwise cosine similarity required
	// for episodes to count as one cluster.
	//
	// Default: 0.8.
	SynthesisMinCosine float64
}

// DefaultConfig returns the spec §4.G defaults.
func DefaultConfig() Config {
	return Config{
		DecayInterval:               time.Hour,
		CoherenceInterval:           5 * time.Minute,
		EmergencyCoherenceThreshold: 0.3,
		PruneDeadThreshold:          0.05,
		CascadeStrength:             0.1,
		RewireWeight:                0.1,
		SynthesisMinCluster:         3,
		SynthesisWindow:             24 * time.Hour,
		SynthesisMinCosine:          0.8,
	}
}

// Trigger is a named condition-action rule evaluated on every Tick.
type Trigger struct {
	Name      string
	Condition func(d *Dynamics, now time.Time) bool
	Action    func(d *Dynamics, now time.Time) error
}

// Dynamics owns the scheduling state and trigger list for a single Mind.
// It mutates the storage/graph it's given but holds no mutex of its own —
// callers (the Mind façade) serialize access (spec §5).
type Dynamics struct {
	cfg   Config
	store *storage.Engine
	g     *graph.Graph

	lastDecay     time.Time
	lastCoherence time.Time
	lastTau       graph.Coherence
	lastSnapshot  storage.Snapshot

	triggers []Trigger

	feedback *FeedbackQueue
}

// LastSnapshot returns the most recent snapshot taken by the
// emergency_coherence trigger, for manual rollback (spec §7).
func (d *Dynamics) LastSnapshot() storage.Snapshot {
	return d.lastSnapshot
}

// New constructs a Dynamics with the built-in emergency_coherence and
// prune_dead triggers already registered (spec §4.G).
func New(cfg Config, store *storage.Engine, g *graph.Graph) *Dynamics {
	d := &Dynamics{
		cfg:      cfg,
		store:    store,
		g:        g,
		feedback: NewFeedbackQueue(DefaultFeedbackConfig()),
	}
	d.triggers = []Trigger{
		{
			Name: "emergency_coherence",
			Condition: func(d *Dynamics, now time.Time) bool {
				return d.lastTau.Tau() < d.cfg.EmergencyCoherenceThreshold
			},
			Action: func(d *Dynamics, now time.Time) error {
				d.lastSnapshot = d.store.TakeSnapshot()
				if _, err := d.g.Prune(0.2); err != nil {
					return err
				}
				d.lastTau = d.g.ComputeCoherence(now)
				return nil
			},
		},
		{
			Name:      "prune_dead",
			Condition: func(d *Dynamics, now time.Time) bool { return true },
			Action: func(d *Dynamics, now time.Time) error {
				_, err := d.g.Prune(d.cfg.PruneDeadThreshold)
				return err
			},
		},
	}
	return d
}

// AddTrigger registers a user-configured trigger in addition to the
// built-ins.
func (d *Dynamics) AddTrigger(t Trigger) {
	d.triggers = append(d.triggers, t)
}

// Feedback exposes the feedback queue so the Mind façade can enqueue
// observations (spec §4.H Feedback).
func (d *Dynamics) Feedback() *FeedbackQueue {
	return d.feedback
}

// Tick runs one dynamics cycle (spec §4.G): interval-gated decay and
// coherence recompute, every registered trigger, feedback draining, and
// opportunistic wisdom synthesis. Called from the RPC `cycle` tool or a
// background timer.
func (d *Dynamics) Tick(now time.Time) error {
	if d.lastDecay.IsZero() || now.Sub(d.lastDecay) > d.cfg.DecayInterval {
		if err := d.g.ApplyDecay(now); err != nil {
			return err
		}
		d.lastDecay = now
	}
	if d.lastCoherence.IsZero() || now.Sub(d.lastCoherence) > d.cfg.CoherenceInterval {
		d.lastTau = d.g.ComputeCoherence(now)
		d.lastCoherence = now
	}
	for _, t := range d.triggers {
		if t.Condition(d, now) {
			if err := t.Action(d, now); err != nil {
				return err
			}
		}
	}
	if err := d.ApplyFeedback(); err != nil {
		return err
	}
	if _, err := d.SynthesizeWisdom(now); err != nil {
		return err
	}
	return nil
}

// LastCoherence returns the most recently computed coherence without
// forcing a recompute.
func (d *Dynamics) LastCoherence() graph.Coherence {
	return d.lastTau
}

// Forget removes a node, optionally cascading a confidence penalty to its
// neighbours and rewiring orphaned in/out neighbour pairs, and always
// leaves an audit trail (spec §4.G forget).
func (d *Dynamics) Forget(id node.ID, cascade, rewire bool) error {
	target, _, err := d.store.Peek(id)
	if err != nil {
		return err
	}

	var inNeighbors, outNeighbors []node.ID
	if cascade || rewire {
		_ = d.store.ForEachHot(func(n *node.Node) error {
			for _, e := range n.Edges {
				if e.Target == id {
					inNeighbors = append(inNeighbors, n.ID)
				}
			}
			return nil
		})
		for _, e := range target.Edges {
			outNeighbors = append(outNeighbors, e.Target)
		}
	}

	if cascade {
		for _, nid := range append(append([]node.ID{}, inNeighbors...), outNeighbors...) {
			n, _, err := d.store.Peek(nid)
			if err != nil {
				continue
			}
			n.Confidence = node.Confidence{
				Mu:     clamp01(n.Confidence.Mu - d.cfg.CascadeStrength),
				Sigma2: n.Confidence.Sigma2,
				N:      n.Confidence.N,
			}
			_ = d.store.Update(n)
		}
	}

	if rewire {
		for _, in := range inNeighbors {
			for _, out := range outNeighbors {
				if in == out {
					continue
				}
				n, _, err := d.store.Peek(in)
				if err != nil {
					continue
				}
				n.Connect(out, node.RelatesTo, d.cfg.RewireWeight)
				_ = d.store.Update(n)
			}
		}
	}

	if err := d.store.Remove(id); err != nil {
		return err
	}

	audit := node.New(node.Episode, "forgot node "+string(id))
	audit.AddTag("audit:forget")
	audit.Confidence = node.NewConfidence(0.3)
	return d.store.Insert(audit)
}

// PropagateConfidence does a BFS from id up to depth hops, applying
// delta' = delta * decay^hop * edge_weight to each reached node via
// observe (spec §4.G propagate_confidence).
func (d *Dynamics) PropagateConfidence(id node.ID, delta, decayFactor float64, depth int) error {
	type frontierEntry struct {
		id  node.ID
		amt float64
	}
	frontier := []frontierEntry{{id: id, amt: delta}}
	visited := map[node.ID]bool{id: true}

	for hop := 1; hop <= depth && len(frontier) > 0; hop++ {
		var next []frontierEntry
		for _, f := range frontier {
			n, _, err := d.store.Peek(f.id)
			if err != nil {
				continue
			}
			for _, e := range n.Edges {
				if visited[e.Target] {
					continue
				}
				visited[e.Target] = true
				amt := delta * pow(decayFactor, hop) * e.Weight
				target, _, err := d.store.Peek(e.Target)
				if err != nil {
					continue
				}
				target.Confidence = target.Confidence.Observe(target.Confidence.Mu + amt)
				if err := d.store.Update(target); err != nil {
					return err
				}
				next = append(next, frontierEntry{id: e.Target, amt: amt})
			}
		}
		frontier = next
	}
	return nil
}

func pow(base float64, exp int) float64 {
	out := 1.0
	for i := 0; i < exp; i++ {
		out *= base
	}
	return out
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
