package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroEmbedder(t *testing.T) {
	z := NewZeroEmbedder(384)
	assert.True(t, z.Ready())
	a, err := z.Transform(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, 0.0, a.Certainty)
	assert.Equal(t, 384, len(a.Vector))
	for _, x := range a.Vector {
		assert.Zero(t, x)
	}
}

func TestZeroEmbedderBatch(t *testing.T) {
	z := NewZeroEmbedder(8)
	out, err := z.TransformBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, out, 3)
}

// fakeEmbedder counts real transform calls so cache tests can assert on
// dedup behavior without needing a real ONNX model.
type fakeEmbedder struct {
	dim   int
	calls int
}

func (f *fakeEmbedder) Transform(ctx context.Context, text string) (Artha, error) {
	f.calls++
	v := make([]float32, f.dim)
	v[0] = float32(len(text))
	return Artha{Vector: v, Certainty: 1, Source: "model"}, nil
}

func (f *fakeEmbedder) TransformBatch(ctx context.Context, texts []string) ([]Artha, error) {
	out := make([]Artha, len(texts))
	for i, t := range texts {
		a, _ := f.Transform(ctx, t)
		out[i] = a
	}
	return out, nil
}
func (f *fakeEmbedder) Dimension() int { return f.dim }
func (f *fakeEmbedder) Ready() bool    { return true }

func TestCachedEmbedderDedupesBatch(t *testing.T) {
	fake := &fakeEmbedder{dim: 4}
	cached, err := NewCachedEmbedder(fake, 100)
	require.NoError(t, err)
	defer cached.Close()

	out, err := cached.TransformBatch(context.Background(), []string{"hello", "world", "hello"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, out[0].Vector, out[2].Vector)
	assert.Equal(t, 2, fake.calls) // "hello" computed once despite appearing twice
}

func TestCachedEmbedderHitsAcrossCalls(t *testing.T) {
	fake := &fakeEmbedder{dim: 4}
	cached, err := NewCachedEmbedder(fake, 100)
	require.NoError(t, err)
	defer cached.Close()

	_, err = cached.Transform(context.Background(), "repeat")
	require.NoError(t, err)
	cached.cache.Wait()
	_, err = cached.Transform(context.Background(), "repeat")
	require.NoError(t, err)
	assert.Equal(t, 1, fake.calls)
}
