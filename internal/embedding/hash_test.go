package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashEngineDeterminism(t *testing.T) {
	engine := NewHashEngine(128)
	ctx := context.Background()

	a, err := engine.Embed(ctx, "the same text")
	require.NoError(t, err)
	b, err := engine.Embed(ctx, "the same text")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := engine.Embed(ctx, "different text")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestHashEngineUnitNorm(t *testing.T) {
	engine := NewHashEngine(128)
	v, err := engine.Embed(context.Background(), "some knowledge content")
	require.NoError(t, err)
	require.Len(t, v, 128)

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
}

func TestHashEngineEdges(t *testing.T) {
	t.Run("empty text yields zero vector", func(t *testing.T) {
		engine := NewHashEngine(64)
		v, err := engine.Embed(context.Background(), "")
		require.NoError(t, err)
		require.Len(t, v, 64)
		for _, x := range v {
			assert.Zero(t, x)
		}
	})

	t.Run("tiny dimensions fall back to default", func(t *testing.T) {
		engine := NewHashEngine(3)
		assert.Equal(t, DefaultHashDimensions, engine.Dimensions())
	})

	t.Run("batch matches single embeds", func(t *testing.T) {
		engine := NewHashEngine(32)
		ctx := context.Background()
		batch, err := engine.EmbedBatch(ctx, []string{"one", "two"})
		require.NoError(t, err)
		require.Len(t, batch, 2)

		one, _ := engine.Embed(ctx, "one")
		assert.Equal(t, one, batch[0])
	})
}

func TestL2Normalize(t *testing.T) {
	t.Run("scales to unit length", func(t *testing.T) {
		v := L2Normalize([]float32{3, 4})
		assert.InDelta(t, 0.6, float64(v[0]), 1e-6)
		assert.InDelta(t, 0.8, float64(v[1]), 1e-6)
	})

	t.Run("zero vector is unchanged", func(t *testing.T) {
		v := L2Normalize([]float32{0, 0, 0})
		assert.Equal(t, []float32{0, 0, 0}, v)
	})
}

func TestCosineSimilarity(t *testing.T) {
	t.Run("known angles", func(t *testing.T) {
		same, err := CosineSimilarity([]float32{1, 0}, []float32{1, 0})
		require.NoError(t, err)
		assert.InDelta(t, 1.0, same, 1e-6)

		orth, err := CosineSimilarity([]float32{1, 0}, []float32{0, 1})
		require.NoError(t, err)
		assert.InDelta(t, 0.0, orth, 1e-6)

		opp, err := CosineSimilarity([]float32{1, 0}, []float32{-1, 0})
		require.NoError(t, err)
		assert.InDelta(t, -1.0, opp, 1e-6)
	})

	t.Run("length mismatch fails", func(t *testing.T) {
		_, err := CosineSimilarity([]float32{1}, []float32{1, 0})
		assert.Error(t, err)
	})
}

func TestRenderContent(t *testing.T) {
	t.Run("map keys render in sorted order", func(t *testing.T) {
		content := map[string]interface{}{"zeta": 1, "alpha": 2}
		a := RenderContent(content)
		b := RenderContent(map[string]interface{}{"alpha": 2, "zeta": 1})
		assert.Equal(t, a, b)
	})

	t.Run("strings render verbatim", func(t *testing.T) {
		assert.Equal(t, "hello", RenderContent("hello"))
	})

	t.Run("nil renders empty", func(t *testing.T) {
		assert.Equal(t, "", RenderContent(nil))
	})
}
