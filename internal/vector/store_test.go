package vector

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddVector(t *testing.T) {
	t.Run("duplicate id rejected", func(t *testing.T) {
		s := NewStore(2, nil)
		require.NoError(t, s.AddVector("a", []float32{1, 0}, Metadata{}))
		err := s.AddVector("a", []float32{0, 1}, Metadata{})
		assert.ErrorIs(t, err, ErrDuplicateID)
	})

	t.Run("dimension mismatch rejected", func(t *testing.T) {
		s := NewStore(2, nil)
		err := s.AddVector("a", []float32{1, 0, 0}, Metadata{})
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("non-finite components rejected", func(t *testing.T) {
		s := NewStore(2, nil)
		err := s.AddVector("a", []float32{float32(math.NaN()), 0}, Metadata{})
		assert.ErrorIs(t, err, ErrNotFinite)
	})

	t.Run("dimension adopted from first insert", func(t *testing.T) {
		s := NewStore(0, nil)
		require.NoError(t, s.AddVector("a", []float32{1, 0, 0}, Metadata{}))
		assert.Equal(t, 3, s.Dimensions())
		err := s.AddVector("b", []float32{1, 0}, Metadata{})
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("stored vectors are unit normalized", func(t *testing.T) {
		s := NewStore(2, nil)
		require.NoError(t, s.AddVector("a", []float32{3, 4}, Metadata{}))
		v, _, ok := s.GetVector("a")
		require.True(t, ok)
		assert.InDelta(t, 0.6, float64(v[0]), 1e-6)
		assert.InDelta(t, 0.8, float64(v[1]), 1e-6)
	})
}

func TestSearchByVector(t *testing.T) {
	t.Run("results ordered by descending similarity", func(t *testing.T) {
		s := NewStore(2, nil)
		require.NoError(t, s.AddVector("east", []float32{1, 0}, Metadata{}))
		require.NoError(t, s.AddVector("north", []float32{0, 1}, Metadata{}))
		require.NoError(t, s.AddVector("northeast", []float32{1, 1}, Metadata{}))

		results, err := s.SearchByVector([]float32{1, 0}, 3)
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, "east", results[0].ID)
		assert.Equal(t, "northeast", results[1].ID)
		assert.Equal(t, "north", results[2].ID)
		assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	})

	t.Run("ties break by insertion order", func(t *testing.T) {
		s := NewStore(2, nil)
		require.NoError(t, s.AddVector("first", []float32{0, 1}, Metadata{}))
		require.NoError(t, s.AddVector("second", []float32{0, 1}, Metadata{}))
		require.NoError(t, s.AddVector("third", []float32{0, 1}, Metadata{}))

		results, err := s.SearchByVector([]float32{0, 1}, 2)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "first", results[0].ID)
		assert.Equal(t, "second", results[1].ID)
	})

	t.Run("k larger than store returns everything", func(t *testing.T) {
		s := NewStore(2, nil)
		require.NoError(t, s.AddVector("a", []float32{1, 0}, Metadata{}))

		results, err := s.SearchByVector([]float32{1, 0}, 50)
		require.NoError(t, err)
		assert.Len(t, results, 1)
	})

	t.Run("empty store returns no results", func(t *testing.T) {
		s := NewStore(2, nil)
		results, err := s.SearchByVector([]float32{1, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("query is normalized before comparison", func(t *testing.T) {
		s := NewStore(2, nil)
		require.NoError(t, s.AddVector("a", []float32{1, 0}, Metadata{}))

		results, err := s.SearchByVector([]float32{100, 0}, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	})
}

func TestSearchByID(t *testing.T) {
	t.Run("excludes the anchor itself", func(t *testing.T) {
		s := NewStore(2, nil)
		require.NoError(t, s.AddVector("a", []float32{1, 0}, Metadata{}))
		require.NoError(t, s.AddVector("b", []float32{1, 0.1}, Metadata{}))
		require.NoError(t, s.AddVector("c", []float32{0, 1}, Metadata{}))

		results, err := s.SearchByID("a", 2)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "b", results[0].ID)
		assert.Equal(t, "c", results[1].ID)
		for _, r := range results {
			assert.NotEqual(t, "a", r.ID)
		}
	})

	t.Run("unknown id fails", func(t *testing.T) {
		s := NewStore(2, nil)
		_, err := s.SearchByID("ghost", 3)
		assert.ErrorIs(t, err, ErrUnknownID)
	})
}

func TestDeleteVector(t *testing.T) {
	s := NewStore(2, nil)
	require.NoError(t, s.AddVector("a", []float32{1, 0}, Metadata{}))
	require.NoError(t, s.AddVector("b", []float32{0, 1}, Metadata{}))

	assert.True(t, s.DeleteVector("a"))
	assert.False(t, s.DeleteVector("a"))
	assert.Equal(t, 1, s.Count())

	results, err := s.SearchByVector([]float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}

func TestUpdateVector(t *testing.T) {
	t.Run("keeps insertion position for tie-breaks", func(t *testing.T) {
		s := NewStore(2, nil)
		require.NoError(t, s.AddVector("first", []float32{1, 0}, Metadata{}))
		require.NoError(t, s.AddVector("second", []float32{0, 1}, Metadata{}))
		require.NoError(t, s.UpdateVector("first", []float32{0, 1}, Metadata{}))

		results, err := s.SearchByVector([]float32{0, 1}, 2)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "first", results[0].ID)
	})

	t.Run("unknown id fails", func(t *testing.T) {
		s := NewStore(2, nil)
		err := s.UpdateVector("ghost", []float32{1, 0}, Metadata{})
		assert.ErrorIs(t, err, ErrUnknownID)
	})
}

func TestMetadataIsolation(t *testing.T) {
	s := NewStore(2, nil)
	tags := []string{"x"}
	require.NoError(t, s.AddVector("a", []float32{1, 0}, Metadata{Topic: "t", Tags: tags}))

	tags[0] = "mutated"
	_, meta, ok := s.GetVector("a")
	require.True(t, ok)
	assert.Equal(t, []string{"x"}, meta.Tags)
}
