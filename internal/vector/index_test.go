package vector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// allIndexes builds one of each index type at dims.
func allIndexes(t *testing.T, dims int) map[string]Index {
	t.Helper()
	out := map[string]Index{}
	for _, typ := range []string{TypeHNSW, TypeIVF, TypeFlat} {
		cfg := DefaultConfig()
		cfg.Type = typ
		cfg.Dimensions = dims
		cfg.IVF.Lists = 4
		cfg.IVF.Probes = 4
		idx, err := New(cfg)
		require.NoError(t, err)
		out[typ] = idx
	}
	return out
}

func TestNew_RejectsBadConfig(t *testing.T) {
	_, err := New(Config{Type: TypeFlat, Dimensions: 0})
	require.Error(t, err)

	_, err = New(Config{Type: "annoy", Dimensions: 4})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown vector index type")
}

func TestIndexes_ExactNeighbours(t *testing.T) {
	for name, idx := range allIndexes(t, 3) {
		t.Run(name, func(t *testing.T) {
			defer func() { _ = idx.Close() }()

			// Given: three axis-aligned vectors
			require.NoError(t, idx.Insert("x", []float32{1, 0, 0}))
			require.NoError(t, idx.Insert("y", []float32{0, 1, 0}))
			require.NoError(t, idx.Insert("negx", []float32{-2, 0, 0}))

			// When: searching near x
			got, err := idx.Search(context.Background(), []float32{3, 0, 0}, 3, 0)
			require.NoError(t, err)

			// Then: similarities are exact and ordered
			require.Len(t, got, 3)
			assert.Equal(t, "x", got[0].ID)
			assert.Equal(t, 1.0, got[0].Similarity)
			assert.Equal(t, "y", got[1].ID)
			assert.Equal(t, 0.0, got[1].Similarity)
			assert.Equal(t, "negx", got[2].ID)
			assert.Equal(t, -1.0, got[2].Similarity)
			assert.Equal(t, 2.0, got[2].Distance())
		})
	}
}

func TestIndexes_DimensionMismatch(t *testing.T) {
	for name, idx := range allIndexes(t, 1536) {
		t.Run(name, func(t *testing.T) {
			defer func() { _ = idx.Close() }()

			// When: searching with a 512-length query
			_, err := idx.Search(context.Background(), make([]float32, 512), 5, 0)

			// Then: a DimensionMismatchError is returned
			var dimErr *DimensionMismatchError
			require.True(t, errors.As(err, &dimErr))
			assert.Equal(t, 1536, dimErr.Expected)
			assert.Equal(t, 512, dimErr.Got)

			err = idx.Insert("a", make([]float32, 3))
			require.True(t, errors.As(err, &dimErr))
		})
	}
}

func TestIndexes_RejectsZeroVectorAndEmptyID(t *testing.T) {
	for name, idx := range allIndexes(t, 2) {
		t.Run(name, func(t *testing.T) {
			defer func() { _ = idx.Close() }()

			assert.ErrorIs(t, idx.Insert("z", []float32{0, 0}), ErrZeroVector)
			assert.ErrorIs(t, idx.Insert("", []float32{1, 0}), ErrEmptyID)
			_, err := idx.Search(context.Background(), []float32{0, 0}, 1, 0)
			assert.ErrorIs(t, err, ErrZeroVector)
		})
	}
}

func TestIndexes_ReplaceAndRemove(t *testing.T) {
	for name, idx := range allIndexes(t, 2) {
		t.Run(name, func(t *testing.T) {
			defer func() { _ = idx.Close() }()

			require.NoError(t, idx.Insert("a", []float32{1, 0}))
			require.NoError(t, idx.Insert("b", []float32{0, 1}))

			// Replace a so it points along y
			require.NoError(t, idx.Insert("a", []float32{0, 1}))
			assert.Equal(t, 2, idx.Len())

			got, err := idx.Search(context.Background(), []float32{1, 0}, 5, 0)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, 0.0, got[0].Similarity)

			// Remove b, and removing unknown ids is a no-op
			require.NoError(t, idx.Remove("b"))
			require.NoError(t, idx.Remove("missing"))
			assert.Equal(t, 1, idx.Len())

			got, err = idx.Search(context.Background(), []float32{0, 1}, 5, 0)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "a", got[0].ID)
		})
	}
}

func TestIndexes_TieBreakByID(t *testing.T) {
	for name, idx := range allIndexes(t, 2) {
		t.Run(name, func(t *testing.T) {
			defer func() { _ = idx.Close() }()

			for _, id := range []string{"c", "a", "b"} {
				require.NoError(t, idx.Insert(id, []float32{1, 1}))
			}

			got, err := idx.Search(context.Background(), []float32{1, 1}, 3, 0)
			require.NoError(t, err)
			require.Len(t, got, 3)
			assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].ID, got[1].ID, got[2].ID})
		})
	}
}

func TestIndexes_ClosedAndEmpty(t *testing.T) {
	for name, idx := range allIndexes(t, 2) {
		t.Run(name, func(t *testing.T) {
			got, err := idx.Search(context.Background(), []float32{1, 0}, 3, 0)
			require.NoError(t, err)
			assert.Empty(t, got)
			assert.NotNil(t, got)

			require.NoError(t, idx.Close())
			assert.ErrorIs(t, idx.Insert("a", []float32{1, 0}), ErrIndexClosed)
			_, err = idx.Search(context.Background(), []float32{1, 0}, 3, 0)
			assert.ErrorIs(t, err, ErrIndexClosed)
		})
	}
}

func TestIVF_ProbeBudgetTradesRecall(t *testing.T) {
	// Given: a trained IVF index over random vectors
	rng := rand.New(rand.NewSource(7))
	const dims, n = 8, 400
	ivf := NewIVFIndex(dims, IVFConfig{Lists: 16, Probes: 1, Iterations: 8})
	flat := NewFlatIndex(dims)
	for i := 0; i < n; i++ {
		vec := make([]float32, dims)
		for d := range vec {
			vec[d] = float32(rng.NormFloat64())
		}
		id := fmt.Sprintf("v%03d", i)
		require.NoError(t, ivf.Insert(id, vec))
		require.NoError(t, flat.Insert(id, vec))
	}
	require.NoError(t, ivf.Train(context.Background()))
	assert.True(t, ivf.Trained())

	query := make([]float32, dims)
	for d := range query {
		query[d] = float32(rng.NormFloat64())
	}
	exact, err := flat.Search(context.Background(), query, 10, 0)
	require.NoError(t, err)

	// When: probing every partition
	full, err := ivf.Search(context.Background(), query, 10, 16)
	require.NoError(t, err)

	// Then: the result equals exact search
	assert.Equal(t, exact, full)

	// And: a single probe scans fewer candidates but still returns valid hits
	narrow, err := ivf.Search(context.Background(), query, 10, 1)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(narrow), 10)
	for i := 1; i < len(narrow); i++ {
		assert.GreaterOrEqual(t, narrow[i-1].Similarity, narrow[i].Similarity)
	}
}

func TestIVF_UntrainedIsExact(t *testing.T) {
	ivf := NewIVFIndex(2, IVFConfig{Lists: 8})
	require.NoError(t, ivf.Insert("a", []float32{1, 0}))
	require.NoError(t, ivf.Insert("b", []float32{0.9, 0.1}))
	assert.False(t, ivf.Trained())

	got, err := ivf.Search(context.Background(), []float32{1, 0}, 2, 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
}

func TestHNSW_ProbeOverrideRestoresDefault(t *testing.T) {
	h := NewHNSWIndex(2, HNSWConfig{M: 8, EfSearch: 10})
	defer func() { _ = h.Close() }()
	for i := 0; i < 20; i++ {
		angle := float64(i) / 20 * math.Pi
		require.NoError(t, h.Insert(fmt.Sprintf("n%02d", i), []float32{float32(math.Cos(angle)), float32(math.Sin(angle))}))
	}

	got, err := h.Search(context.Background(), []float32{1, 0}, 3, 100)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "n00", got[0].ID)
	assert.Equal(t, 10, h.graph.EfSearch)
}

func TestHNSW_OrphansDoNotAppear(t *testing.T) {
	h := NewHNSWIndex(2, HNSWConfig{})
	defer func() { _ = h.Close() }()

	require.NoError(t, h.Insert("a", []float32{1, 0}))
	require.NoError(t, h.Insert("a", []float32{0, 1}))
	require.NoError(t, h.Insert("b", []float32{1, 1}))
	assert.Equal(t, 1, h.Orphans())

	got, err := h.Search(context.Background(), []float32{1, 0}, 5, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	ids := []string{got[0].ID, got[1].ID}
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}

func TestCosineSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, CosineSimilarity([]float32{2, 0}, []float32{5, 0}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 0}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.InDelta(t, math.Sqrt(0.5), CosineSimilarity([]float32{1, 1}, []float32{1, 0}), 1e-7)
}

func TestSearch_HonoursCancelledContext(t *testing.T) {
	h := NewHNSWIndex(2, HNSWConfig{})
	require.NoError(t, h.Insert("a", []float32{1, 0}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Search(ctx, []float32{1, 0}, 1, 0)
	assert.ErrorIs(t, err, context.Canceled)
}
