package node

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfidenceObserveRunningMean(t *testing.T) {
	c := NewConfidence(0.5)
	c = c.Observe(1.0)
	require.Equal(t, 2, c.N)
	assert.InDelta(t, 0.75, c.Mu, 1e-9)
}

func TestConfidenceDecayMonotoneNonIncreasing(t *testing.T) {
	c := NewConfidence(0.9)
	before := c.Effective()
	c = c.ApplyDecay(0.05, 10)
	after := c.Effective()
	assert.LessOrEqual(t, after, before)
}

func TestConfidenceDecayZeroDaysNoop(t *testing.T) {
	c := NewConfidence(0.9)
	after := c.ApplyDecay(0.05, 0)
	assert.Equal(t, c, after)
}

func TestConfidenceClamped(t *testing.T) {
	c := NewConfidence(1.5)
	assert.Equal(t, 1.0, c.Mu)
	c2 := c.Observe(-5)
	assert.GreaterOrEqual(t, c2.Mu, 0.0)
}

func TestEdgeCoalescingKeepsMaxWeight(t *testing.T) {
	n := New(Wisdom, "x")
	target := NewID()
	n.Connect(target, Similar, 0.3)
	n.Connect(target, Similar, 0.8)
	n.Connect(target, Similar, 0.1)
	require.Len(t, n.Edges, 1)
	assert.Equal(t, 0.8, n.Edges[0].Weight)
}

func TestDisconnect(t *testing.T) {
	n := New(Wisdom, "x")
	target := NewID()
	n.Connect(target, Similar, 0.5)
	n.Disconnect(target, Similar)
	assert.Empty(t, n.Edges)
}

func TestTagsOrderedSet(t *testing.T) {
	n := New(Episode, "x")
	n.AddTag("project:foo")
	n.AddTag("thread:abc")
	n.AddTag("project:foo") // duplicate, ignored
	require.Len(t, n.Tags, 2)
	assert.Equal(t, "foo", n.TagValue("project"))
	n.RemoveTag("thread:abc")
	assert.False(t, n.HasTag("thread:abc"))
}

func TestPrunableByType(t *testing.T) {
	assert.False(t, New(Invariant, "x").Prunable())
	assert.False(t, New(Belief, "x").Prunable())
	assert.True(t, New(Episode, "x").Prunable())
}

func TestDaysSinceAccessed(t *testing.T) {
	n := New(Wisdom, "x")
	now := n.AccessedAt.Add(48 * time.Hour)
	assert.InDelta(t, 2.0, n.DaysSinceAccessed(now), 1e-9)
}

func TestDefaultForUnknownType(t *testing.T) {
	d := DefaultFor(Type("bogus"))
	assert.Equal(t, 0.05, d.DecayPerDay)
	assert.True(t, d.Prunable)
}
