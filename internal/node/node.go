// Package node defines the typed knowledge graph's core entities: Node,
// Edge, NodeType, EdgeType, and the Bayesian Confidence estimator.
//
// Node types are a closed tagged variant (spec §9: "centralise defaults in a
// single lookup table, not polymorphic classes"). Defaults holds the
// per-type decay rate, prune eligibility, and retrieval weight that the rest
// of the engine reads instead of special-casing types inline.
//
// Example:
//
//	n := node.New(node.Wisdom, "prefer explicit ownership")
//	n.Embedding = myEmbedder.Embed(n.Payload)
//	n.Confidence = n.Confidence.Observe(0.9)
package node

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chitta-project/chitta/internal/vector"
)

// ID is a 128-bit opaque node identifier, rendered as hex-with-dashes
// (i.e. a UUID string) per spec §3.
type ID string

// NewID generates a fresh globally-unique ID.
func NewID() ID {
	return ID(uuid.New().String())
}

// Type is the closed tagged variant of knowledge node kinds.
type Type string

const (
	Wisdom      Type = "wisdom"
	Belief      Type = "belief"
	Invariant   Type = "invariant"
	Identity    Type = "identity"
	Intention   Type = "intention"
	Aspiration  Type = "aspiration"
	Dream       Type = "dream"
	Episode     Type = "episode"
	Operation   Type = "operation"
	Term        Type = "term"
	Failure     Type = "failure"
	Voice       Type = "voice"
	Meta        Type = "meta"
	Gap         Type = "gap"
	Question    Type = "question"
	StoryThread Type = "story_thread"
	Ledger      Type = "ledger"
	Entity      Type = "entity"
)

// EdgeType is the closed tagged variant of relationship kinds between nodes.
type EdgeType string

const (
	Similar     EdgeType = "similar"
	Supports    EdgeType = "supports"
	Contradicts EdgeType = "contradicts"
	RelatesTo   EdgeType = "relates_to"
	PartOf      EdgeType = "part_of"
	IsA         EdgeType = "is_a"
	Mentions    EdgeType = "mentions"
	AppliedIn   EdgeType = "applied_in"
	EvolvedFrom EdgeType = "evolved_from"
)

// TypeDefault holds the per-NodeType defaults that drive decay, pruning, and
// retrieval, centralised in a single lookup table (spec §9) rather than
// scattered across polymorphic type switches.
type TypeDefault struct {
	// DecayPerDay is the default decay rate delta, per spec §3 (0.02-0.15/day).
	DecayPerDay float64
	// Prunable reports whether nodes of this type may ever be removed by
	// confidence-threshold pruning. Invariant and Belief are never prunable
	// by confidence (spec invariant #3); only explicit forget removes them.
	Prunable bool
	// RetrievalWeight is a per-type retrieval weight kept in the table. No
	// other code reads it: coherence weighting and the re-ranker's
	// type_factor each use their own per-type weights.
	RetrievalWeight float64
}

// Defaults is the single source of truth for type-specific behavior.
var Defaults = map[Type]TypeDefault{
	Wisdom:      {DecayPerDay: 0.03, Prunable: true, RetrievalWeight: 1.2},
	Belief:      {DecayPerDay: 0.02, Prunable: false, RetrievalWeight: 1.5},
	Invariant:   {DecayPerDay: 0.02, Prunable: false, RetrievalWeight: 2.0},
	Identity:    {DecayPerDay: 0.02, Prunable: true, RetrievalWeight: 1.0},
	Intention:   {DecayPerDay: 0.08, Prunable: true, RetrievalWeight: 0.8},
	Aspiration:  {DecayPerDay: 0.05, Prunable: true, RetrievalWeight: 0.8},
	Dream:       {DecayPerDay: 0.10, Prunable: true, RetrievalWeight: 0.6},
	Episode:     {DecayPerDay: 0.15, Prunable: true, RetrievalWeight: 0.5},
	Operation:   {DecayPerDay: 0.06, Prunable: true, RetrievalWeight: 0.9},
	Term:        {DecayPerDay: 0.04, Prunable: true, RetrievalWeight: 0.3},
	Failure:     {DecayPerDay: 0.03, Prunable: true, RetrievalWeight: 1.0},
	Voice:       {DecayPerDay: 0.02, Prunable: true, RetrievalWeight: 1.0},
	Meta:        {DecayPerDay: 0.05, Prunable: true, RetrievalWeight: 0.7},
	Gap:         {DecayPerDay: 0.07, Prunable: true, RetrievalWeight: 0.7},
	Question:    {DecayPerDay: 0.10, Prunable: true, RetrievalWeight: 0.6},
	StoryThread: {DecayPerDay: 0.04, Prunable: true, RetrievalWeight: 0.8},
	Ledger:      {DecayPerDay: 0.01, Prunable: false, RetrievalWeight: 0.5},
	Entity:      {DecayPerDay: 0.03, Prunable: true, RetrievalWeight: 0.9},
}

// DefaultFor returns the type default for t, falling back to a conservative
// mid-range default (0.05/day, prunable, weight 1.0) for an unrecognised type
// rather than panicking — typed variants can still arrive over the wire with
// a value outside the closed set during a schema migration.
func DefaultFor(t Type) TypeDefault {
	if d, ok := Defaults[t]; ok {
		return d
	}
	return TypeDefault{DecayPerDay: 0.05, Prunable: true, RetrievalWeight: 1.0}
}

// Confidence is a running Bayesian confidence estimate (spec §3, §4.B):
// mu in [0,1], a variance estimate sigma², and the observation count n.
// Effective confidence is mu*(1-sigma²).
type Confidence struct {
	Mu    float64
	Sigma2 float64
	N     int
}

// NewConfidence returns a confidence prior with mean mu, zero variance, and
// a single observation.
func NewConfidence(mu float64) Confidence {
	return Confidence{Mu: clamp01(mu), Sigma2: 0, N: 1}
}

// Effective returns mu*(1-sigma²), the single scalar the rest of the engine
// reads when it needs "how much do we trust this".
func (c Confidence) Effective() float64 {
	return c.Mu * (1 - c.Sigma2)
}

// Observe folds a new observation x into the running mean/variance using a
// running-mean update with variance shrinkage (spec §4.B):
//
//	mu' = mu + (x-mu)/(n+1)
//	n'  = n+1
//	sigma2' = sigma2 * n/(n+1)
func (c Confidence) Observe(x float64) Confidence {
	x = clamp01(x)
	n := c.N
	newMu := c.Mu + (x-c.Mu)/float64(n+1)
	newSigma2 := c.Sigma2
	if n > 0 {
		newSigma2 = c.Sigma2 * float64(n) / float64(n+1)
	}
	return Confidence{Mu: clamp01(newMu), Sigma2: newSigma2, N: n + 1}
}

// ApplyDecay multiplies mu by exp(-delta*daysSinceAccessed), eroding
// confidence the longer a node goes untouched (spec §4.B). Decay never
// increases mu, preserving spec invariant #2 (effective confidence is
// monotone non-increasing under decay alone).
func (c Confidence) ApplyDecay(delta float64, daysSinceAccessed float64) Confidence {
	if daysSinceAccessed <= 0 {
		return c
	}
	factor := expNeg(delta * daysSinceAccessed)
	c.Mu = clamp01(c.Mu * factor)
	return c
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

// Edge is a typed, weighted directed link from the owning node to Target.
type Edge struct {
	Target ID
	Type   EdgeType
	Weight float64 // in [0,1]
}

// Node is a typed knowledge entity: an embedding, a confidence estimate, a
// decay rate, timestamps, raw payload, tags, and its outbound edges
// (spec §3).
type Node struct {
	ID ID
	NodeType Type

	Embedding vector.Vector

	Confidence Confidence
	DecayRate  float64 // delta, per day

	CreatedAt  time.Time
	AccessedAt time.Time

	Payload []byte // usually UTF-8 text, may be JSON for Ledger nodes

	Tags []string

	Edges []Edge
}

// New constructs a Node of the given type with its type defaults applied,
// default confidence 0.7, and payload set from text.
func New(t Type, text string) *Node {
	now := time.Now()
	d := DefaultFor(t)
	return &Node{
		ID:         NewID(),
		NodeType:   t,
		Confidence: NewConfidence(0.7),
		DecayRate:  d.DecayPerDay,
		CreatedAt:  now,
		AccessedAt: now,
		Payload:    []byte(text),
	}
}

// Text returns the payload decoded as UTF-8 text.
func (n *Node) Text() string {
	return string(n.Payload)
}

// Touch resets the access timestamp, as required whenever a node is read or
// written (spec §3 Lifecycle: "Touch on any access resets the tier timer").
func (n *Node) Touch(now time.Time) {
	n.AccessedAt = now
}

// DaysSinceAccessed returns the number of days (may be fractional) since the
// node was last touched, relative to now.
func (n *Node) DaysSinceAccessed(now time.Time) float64 {
	return now.Sub(n.AccessedAt).Hours() / 24
}

// HasTag reports whether n carries the exact tag s.
func (n *Node) HasTag(s string) bool {
	for _, t := range n.Tags {
		if t == s {
			return true
		}
	}
	return false
}

// AddTag appends a tag if not already present, preserving insertion order
// (spec §3: tags are an ordered set).
func (n *Node) AddTag(s string) {
	if n.HasTag(s) {
		return
	}
	n.Tags = append(n.Tags, s)
}

// RemoveTag removes a tag if present.
func (n *Node) RemoveTag(s string) {
	for i, t := range n.Tags {
		if t == s {
			n.Tags = append(n.Tags[:i], n.Tags[i+1:]...)
			return
		}
	}
}

// TagValue returns the value portion of the first tag matching "prefix:*",
// or "" if none match. Used for `project:foo`, `session:bar`, `thread:baz`.
func (n *Node) TagValue(prefix string) string {
	p := prefix + ":"
	for _, t := range n.Tags {
		if strings.HasPrefix(t, p) {
			return strings.TrimPrefix(t, p)
		}
	}
	return ""
}

// Connect appends an outbound edge, coalescing a duplicate (target, type)
// pair by keeping the larger weight (spec §4.B).
func (n *Node) Connect(target ID, edgeType EdgeType, weight float64) {
	weight = clamp01(weight)
	for i, e := range n.Edges {
		if e.Target == target && e.Type == edgeType {
			if weight > e.Weight {
				n.Edges[i].Weight = weight
			}
			return
		}
	}
	n.Edges = append(n.Edges, Edge{Target: target, Type: edgeType, Weight: weight})
}

// Disconnect removes the outbound edge (target, type) if present.
func (n *Node) Disconnect(target ID, edgeType EdgeType) {
	for i, e := range n.Edges {
		if e.Target == target && e.Type == edgeType {
			n.Edges = append(n.Edges[:i], n.Edges[i+1:]...)
			return
		}
	}
}

// Degree returns the node's out-degree (its own edge count). In-degree must
// be computed by the graph, which has visibility over every node's edges.
func (n *Node) Degree() int {
	return len(n.Edges)
}

// Prunable reports whether this node's type allows confidence-based pruning
// (spec invariant #3: Invariant and Belief are never pruned this way).
func (n *Node) Prunable() bool {
	return DefaultFor(n.NodeType).Prunable
}

func expNeg(x float64) float64 {
	if x > 700 { // avoid math.Exp underflow noise; e^-700 is already ~0
		return 0
	}
	return math.Exp(-x)
}
