package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ragsearch/internal/store"
)

func cand(id string, score float64) store.Candidate {
	return store.Candidate{ChunkID: id, Score: score}
}

func TestFuse_ChunkInBothLists(t *testing.T) {
	// Given: one chunk scored by both legs
	text := []store.Candidate{cand("x", 0.8)}
	vec := []store.Candidate{cand("x", 0.6)}

	// When: fusing with wt=0.4, wv=0.6
	got := Fuse(text, vec, Weights{Text: 0.4, Vector: 0.6}, 10)

	// Then: it appears once with 0.4*0.8 + 0.6*0.6
	require.Len(t, got, 1)
	assert.InDelta(t, 0.68, got[0].Score, 1e-12)
	assert.Equal(t, 0.8, got[0].TextScore)
	assert.Equal(t, 0.6, got[0].VectorScore)
}

func TestFuse_VectorOnlyChunkKept(t *testing.T) {
	// Given: a chunk only the vector leg found
	got := Fuse(nil, []store.Candidate{cand("v", 0.9)}, Weights{Text: 0.5, Vector: 0.5}, 10)

	// Then: its missing text score counts as 0
	require.Len(t, got, 1)
	assert.Equal(t, "v", got[0].ChunkID)
	assert.InDelta(t, 0.45, got[0].Score, 1e-12)
	assert.Zero(t, got[0].TextScore)
}

func TestFuse_Scenario(t *testing.T) {
	// A: text only, B: both, C: vector only
	text := []store.Candidate{cand("A", 0.9), cand("B", 0.3)}
	vec := []store.Candidate{cand("B", 0.95), cand("C", 0.7)}

	got := Fuse(text, vec, Weights{Text: 0.5, Vector: 0.5}, 2)

	require.Len(t, got, 2)
	assert.Equal(t, "B", got[0].ChunkID)
	assert.InDelta(t, 0.625, got[0].Score, 1e-12)
	assert.Equal(t, "A", got[1].ChunkID)
	assert.InDelta(t, 0.45, got[1].Score, 1e-12)

	all := Fuse(text, vec, Weights{Text: 0.5, Vector: 0.5}, 0)
	require.Len(t, all, 3)
	assert.Equal(t, "C", all[2].ChunkID)
	assert.InDelta(t, 0.35, all[2].Score, 1e-12)
}

func TestFuse_TiesBreakByChunkID(t *testing.T) {
	text := []store.Candidate{cand("c", 0.9), cand("a", 0.1)}
	vec := []store.Candidate{cand("b", 0.5)}

	// Zero weights make every score 0
	got := Fuse(text, vec, Weights{}, 0)

	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].ChunkID, got[1].ChunkID, got[2].ChunkID})
	for _, f := range got {
		assert.Zero(t, f.Score)
	}
}

func TestFuse_SortedAndBounded(t *testing.T) {
	text := []store.Candidate{cand("a", 0.1), cand("b", 0.7), cand("c", 0.3), cand("d", 0.5)}
	vec := []store.Candidate{cand("e", 0.2), cand("c", 0.9), cand("f", 0.6)}

	for limit := 1; limit <= 8; limit++ {
		got := Fuse(text, vec, Weights{Text: 0.3, Vector: 0.7}, limit)
		assert.LessOrEqual(t, len(got), limit)
		for i := 1; i < len(got); i++ {
			assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
		}
	}
}

func TestFuse_Empty(t *testing.T) {
	got := Fuse(nil, nil, DefaultWeights(), 10)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFuse_MatchedInFollowsPresence(t *testing.T) {
	// Given: a chunk both legs found with a non-positive similarity
	text := []store.Candidate{cand("both", 0.4), cand("t", 0.2)}
	vec := []store.Candidate{cand("both", -0.3), cand("v", 0)}

	// When: fusing
	got := Fuse(text, vec, Weights{Text: 1, Vector: 1}, 0)

	// Then: labels come from which legs returned the chunk, not score signs
	labels := make(map[string]string, len(got))
	for _, f := range got {
		labels[f.ChunkID] = f.MatchedIn()
	}
	assert.Equal(t, map[string]string{
		"both": MatchedBoth,
		"t":    MatchedText,
		"v":    MatchedVector,
	}, labels)
}
