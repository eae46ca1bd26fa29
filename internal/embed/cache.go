// Cached embedder: a thread-safe LRU of text -> Artha in front of any
// Embedder, per spec §4.C ("default capacity 10000"). Backed by
// ristretto, the pack's concurrent-cache library (promoted from badger's
// indirect dependency), rather than a hand-rolled map+list LRU — see
// DESIGN.md.
package embed

import (
	"context"

	"github.com/dgraph-io/ristretto/v2"
)

// DefaultCacheCapacity is the spec's default LRU capacity.
const DefaultCacheCapacity = 10000

// CachedEmbedder wraps an Embedder with an LRU cache keyed on exact text.
// TransformBatch partitions its input into cached and uncached texts and
// issues a single batched call to the inner embedder for the uncached set
// (spec §4.C).
type CachedEmbedder struct {
	inner Embedder
	cache *ristretto.Cache[string, Artha]
}

// NewCachedEmbedder wraps inner with an LRU of the given capacity (0 means
// DefaultCacheCapacity).
func NewCachedEmbedder(inner Embedder, capacity int64) (*CachedEmbedder, error) {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, Artha]{
		NumCounters: capacity * 10,
		MaxCost:     capacity,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

func (c *CachedEmbedder) Dimension() int { return c.inner.Dimension() }
func (c *CachedEmbedder) Ready() bool    { return c.inner.Ready() }

// Close releases cache resources.
func (c *CachedEmbedder) Close() {
	c.cache.Close()
}

func (c *CachedEmbedder) Transform(ctx context.Context, text string) (Artha, error) {
	if a, ok := c.cache.Get(text); ok {
		return a, nil
	}
	a, err := c.inner.Transform(ctx, text)
	if err != nil {
		return Artha{}, err
	}
	c.cache.Set(text, a, 1)
	return a, nil
}

func (c *CachedEmbedder) TransformBatch(ctx context.Context, texts []string) ([]Artha, error) {
	results := make([]Artha, len(texts))
	var missIdx []int
	var missTexts []string
	missPos := make(map[string]int) // text -> index in missTexts

	for i, text := range texts {
		if a, ok := c.cache.Get(text); ok {
			results[i] = a
		} else {
			missIdx = append(missIdx, i)
			if _, seen := missPos[text]; !seen {
				missPos[text] = len(missTexts)
				missTexts = append(missTexts, text)
			}
		}
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	computed, err := c.inner.TransformBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, text := range missTexts {
		c.cache.Set(text, computed[j], 1)
	}
	for _, idx := range missIdx {
		results[idx] = computed[missPos[texts[idx]]]
	}
	return results, nil
}
