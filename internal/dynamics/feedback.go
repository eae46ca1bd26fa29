package dynamics

import (
	"sync"

	"github.com/chitta-project/chitta/internal/node"
	"github.com/chitta-project/chitta/internal/storage"
)

// FeedbackKind is the closed set of feedback signals a host can report
// against a recalled node (spec §4.H Feedback).
type FeedbackKind string

const (
	Used        FeedbackKind = "used"
	Helpful     FeedbackKind = "helpful"
	Misleading  FeedbackKind = "misleading"
	Confirmed   FeedbackKind = "confirmed"
	Challenged  FeedbackKind = "challenged"
)

// DefaultFeedbackDelta is the per-kind confidence delta applied when
// feedback of that kind is aggregated (spec §4.H Feedback defaults).
var DefaultFeedbackDelta = map[FeedbackKind]float64{
	Used:       0.01,
	Helpful:    0.10,
	Misleading: -0.15,
	Confirmed:  0.08,
	Challenged: -0.05,
}

// FeedbackEvent is one queued observation about a recalled node.
type FeedbackEvent struct {
	NodeID    node.ID
	Kind      FeedbackKind
	Magnitude float64
	Context   string
}

// FeedbackConfig controls queue capacity and per-kind deltas.
type FeedbackConfig struct {
	Capacity int
	Deltas   map[FeedbackKind]float64
}

// DefaultFeedbackConfig returns a 1000-capacity queue with spec default
// deltas.
func DefaultFeedbackConfig() FeedbackConfig {
	deltas := make(map[FeedbackKind]float64, len(DefaultFeedbackDelta))
	for k, v := range DefaultFeedbackDelta {
		deltas[k] = v
	}
	return FeedbackConfig{Capacity: 1000, Deltas: deltas}
}

// FeedbackQueue is a bounded FIFO of feedback events awaiting aggregation.
// Once full, the oldest event is dropped to admit a new one — feedback is
// advisory signal, not an audit log (the Episode trail created by
// Helpful/Misleading feedback is the durable record).
type FeedbackQueue struct {
	mu     sync.Mutex
	cfg    FeedbackConfig
	events []FeedbackEvent
}

// NewFeedbackQueue returns an empty queue with the given configuration.
func NewFeedbackQueue(cfg FeedbackConfig) *FeedbackQueue {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1000
	}
	if cfg.Deltas == nil {
		cfg.Deltas = DefaultFeedbackConfig().Deltas
	}
	return &FeedbackQueue{cfg: cfg}
}

// Enqueue adds a feedback event, dropping the oldest if at capacity.
func (q *FeedbackQueue) Enqueue(ev FeedbackEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, ev)
	if len(q.events) > q.cfg.Capacity {
		q.events = q.events[len(q.events)-q.cfg.Capacity:]
	}
}

// Len reports the number of events currently queued.
func (q *FeedbackQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

func (q *FeedbackQueue) drain() []FeedbackEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.events
	q.events = nil
	return out
}

// ApplyFeedback drains the feedback queue, aggregates per-kind deltas
// (scaled by each event's Magnitude) per node, clamps the total to [0,1],
// and writes each node's new confidence via observe. Helpful and
// Misleading feedback additionally leave a low-confidence Episode for
// audit (spec §4.H Feedback).
func (d *Dynamics) ApplyFeedback() error {
	events := d.feedback.drain()
	if len(events) == 0 {
		return nil
	}

	type agg struct {
		delta float64
	}
	byNode := make(map[node.ID]*agg)
	for _, ev := range events {
		delta, ok := d.feedback.cfg.Deltas[ev.Kind]
		if !ok {
			continue
		}
		a, ok := byNode[ev.NodeID]
		if !ok {
			a = &agg{}
			byNode[ev.NodeID] = a
		}
		a.delta += delta * magnitudeOrOne(ev.Magnitude)

		if ev.Kind == Helpful || ev.Kind == Misleading {
			audit := node.New(node.Episode, feedbackAuditText(ev))
			audit.AddTag("audit:feedback")
			audit.Confidence = node.NewConfidence(0.2)
			if err := d.store.Insert(audit); err != nil {
				return err
			}
		}
	}

	for id, a := range byNode {
		n, _, err := d.store.Peek(id)
		if err == storage.ErrNotFound {
			continue
		}
		if err != nil {
			return err
		}
		n.Confidence = n.Confidence.Observe(clamp01(n.Confidence.Mu + a.delta))
		if err := d.store.Update(n); err != nil {
			return err
		}
	}
	return nil
}

func magnitudeOrOne(m float64) float64 {
	if m == 0 {
		return 1
	}
	return m
}

func feedbackAuditText(ev FeedbackEvent) string {
	return string(ev.Kind) + ": " + ev.Context
}
