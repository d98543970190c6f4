package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEmbedder(t *testing.T) {
	m := NewMock(384)
	ctx := context.Background()

	t.Run("fixed dimensionality", func(t *testing.T) {
		vec, err := m.Embed(ctx, "こんにちは")
		require.NoError(t, err)
		assert.Len(t, vec, 384)
		assert.Equal(t, 384, m.Dimensions())
	})

	t.Run("deterministic", func(t *testing.T) {
		a, err := m.Embed(ctx, "今日は良い天気ですね")
		require.NoError(t, err)
		b, err := m.Embed(ctx, "今日は良い天気ですね")
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("distinct texts differ", func(t *testing.T) {
		a, err := m.Embed(ctx, "text one")
		require.NoError(t, err)
		b, err := m.Embed(ctx, "text two")
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("unit norm", func(t *testing.T) {
		vec, err := m.Embed(ctx, "normalize me")
		require.NoError(t, err)
		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-4)
	})

	t.Run("default dimensions", func(t *testing.T) {
		assert.Equal(t, 1536, NewMock(0).Dimensions())
	})
}

func TestGuardedEmbedderPassesThrough(t *testing.T) {
	e, err := New(Config{Provider: "mock", Dimensions: 64, Concurrency: 2})
	require.NoError(t, err)
	assert.Equal(t, 64, e.Dimensions())

	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 64)
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "voyage"})
	require.Error(t, err)
}
