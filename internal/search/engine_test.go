package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ragerrors "github.com/Aman-CERP/ragsearch/internal/errors"
	"github.com/Aman-CERP/ragsearch/internal/lexical"
	"github.com/Aman-CERP/ragsearch/internal/registry"
	"github.com/Aman-CERP/ragsearch/internal/store"
	"github.com/Aman-CERP/ragsearch/internal/vector"
)

// fakeChunks returns fixed lexical candidates for any non-empty query.
type fakeChunks struct {
	mu     sync.Mutex
	cands  []store.Candidate
	chunks map[string]*store.Chunk
	delay  time.Duration
	err    error
	limits []int
}

func (f *fakeChunks) LexicalCandidates(ctx context.Context, q *lexical.Query, source string, limit int) ([]store.Candidate, error) {
	f.mu.Lock()
	f.limits = append(f.limits, limit)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	out := []store.Candidate{}
	for _, c := range f.cands {
		if source != "" && f.chunks[c.ChunkID].Source != source {
			continue
		}
		out = append(out, c)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeChunks) GetChunks(ctx context.Context, ids []string) ([]*store.Chunk, error) {
	out := []*store.Chunk{}
	for _, id := range ids {
		if c, ok := f.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// fakeVectors returns fixed hits.
type fakeVectors struct {
	mu      sync.Mutex
	hits    []registry.Hit
	delay   time.Duration
	err     error
	queries []registry.VectorQuery
}

func (f *fakeVectors) Search(ctx context.Context, q registry.VectorQuery) ([]registry.Hit, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	out := []registry.Hit{}
	for _, h := range f.hits {
		if q.Threshold != nil && h.Similarity <= *q.Threshold {
			continue
		}
		out = append(out, h)
	}
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// scenario builds A (text 0.9, no vector), B (text 0.3, vector 0.95) and
// C (no text match, vector 0.7).
func scenario() (*fakeChunks, *fakeVectors) {
	chunks := map[string]*store.Chunk{
		"A": {ID: "A", DocumentID: "doc", Text: "alpha", Source: "wiki"},
		"B": {ID: "B", DocumentID: "doc", Text: "bravo", Source: "wiki"},
		"C": {ID: "C", DocumentID: "doc", Text: "charlie", Description: "third", Source: "mail"},
	}
	fc := &fakeChunks{
		cands:  []store.Candidate{{ChunkID: "A", Score: 0.9}, {ChunkID: "B", Score: 0.3}},
		chunks: chunks,
	}
	fv := &fakeVectors{hits: []registry.Hit{
		{Chunk: chunks["B"], Similarity: 0.95},
		{Chunk: chunks["C"], Similarity: 0.7},
	}}
	return fc, fv
}

func newTestEngine(t *testing.T, fc ChunkStore, fv VectorSearcher, cfg Config) *Engine {
	t.Helper()
	e, err := NewEngine(fc, fv, cfg)
	require.NoError(t, err)
	return e
}

func ids(results []ScoredChunk) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ChunkID
	}
	return out
}

func TestSearchHybrid_Scenario(t *testing.T) {
	// Given: the A/B/C store
	fc, fv := scenario()
	e := newTestEngine(t, fc, fv, DefaultConfig())

	// When: fusing with equal weights and limit 2
	resp, err := e.SearchHybrid(context.Background(), HybridQuery{
		Query:   "anything",
		Vector:  []float32{1, 0},
		Weights: &Weights{Text: 0.5, Vector: 0.5},
		Limit:   2,
	})
	require.NoError(t, err)

	// Then: B(0.625), A(0.45); C(0.35) falls off the limit
	require.Len(t, resp.Results, 2)
	assert.False(t, resp.Degraded)
	assert.Equal(t, "B", resp.Results[0].ChunkID)
	assert.InDelta(t, 0.625, resp.Results[0].Score, 1e-12)
	assert.InDelta(t, 0.3, resp.Results[0].TextScore, 1e-12)
	assert.InDelta(t, 0.95, resp.Results[0].VectorScore, 1e-12)
	assert.Equal(t, "bravo", resp.Results[0].Text)
	assert.Equal(t, "A", resp.Results[1].ChunkID)
	assert.InDelta(t, 0.45, resp.Results[1].Score, 1e-12)
}

func TestSearchHybrid_OverFetchesBothLegs(t *testing.T) {
	fc, fv := scenario()
	cfg := DefaultConfig()
	cfg.OverFetch = 3
	e := newTestEngine(t, fc, fv, cfg)

	_, err := e.SearchHybrid(context.Background(), HybridQuery{Query: "x", Vector: []float32{1}, Limit: 5})
	require.NoError(t, err)

	assert.Equal(t, []int{15}, fc.limits)
	require.Len(t, fv.queries, 1)
	assert.Equal(t, 15, fv.queries[0].Limit)
	assert.Nil(t, fv.queries[0].Threshold)
}

func TestSearchHybrid_DefaultWeights(t *testing.T) {
	fc, fv := scenario()
	cfg := DefaultConfig()
	cfg.DefaultWeights = Weights{Text: 1, Vector: 0}
	e := newTestEngine(t, fc, fv, cfg)

	resp, err := e.SearchHybrid(context.Background(), HybridQuery{Query: "x", Vector: []float32{1}, Limit: 3})
	require.NoError(t, err)

	// Text-only weighting: A, B, then C at 0
	assert.Equal(t, []string{"A", "B", "C"}, ids(resp.Results))
	assert.Zero(t, resp.Results[2].Score)
}

func TestSearchHybrid_Properties(t *testing.T) {
	fc, fv := scenario()
	e := newTestEngine(t, fc, fv, DefaultConfig())
	ctx := context.Background()

	for limit := 1; limit <= 4; limit++ {
		q := HybridQuery{Query: "x", Vector: []float32{1}, Weights: &Weights{Text: 0.3, Vector: 0.7}, Limit: limit}
		first, err := e.SearchHybrid(ctx, q)
		require.NoError(t, err)
		second, err := e.SearchHybrid(ctx, q)
		require.NoError(t, err)

		// Bounded, sorted, idempotent
		assert.LessOrEqual(t, len(first.Results), limit)
		for i := 1; i < len(first.Results); i++ {
			assert.GreaterOrEqual(t, first.Results[i-1].Score, first.Results[i].Score)
		}
		assert.Equal(t, first, second)
	}
}

func TestSearchHybrid_Validation(t *testing.T) {
	fc, fv := scenario()
	e := newTestEngine(t, fc, fv, DefaultConfig())
	ctx := context.Background()

	tests := []struct {
		name string
		q    HybridQuery
		want error
	}{
		{"negative text weight", HybridQuery{Query: "x", Vector: []float32{1}, Weights: &Weights{Text: -0.1, Vector: 1}}, ErrInvalidWeights},
		{"negative vector weight", HybridQuery{Query: "x", Vector: []float32{1}, Weights: &Weights{Text: 1, Vector: -1}}, ErrInvalidWeights},
		{"missing vector", HybridQuery{Query: "x"}, ErrEmptyVector},
		{"threshold above one", HybridQuery{Query: "x", Vector: []float32{1}, VectorThreshold: ptr(1.5)}, ErrInvalidThreshold},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.SearchHybrid(ctx, tt.q)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("syntax error", func(t *testing.T) {
		_, err := e.SearchHybrid(ctx, HybridQuery{Query: `"open`, Vector: []float32{1}})
		var se *lexical.SyntaxError
		assert.True(t, errors.As(err, &se))
	})
}

func TestSearchHybrid_ZeroWeightsStillDeterministic(t *testing.T) {
	fc, fv := scenario()
	e := newTestEngine(t, fc, fv, DefaultConfig())

	resp, err := e.SearchHybrid(context.Background(), HybridQuery{Query: "x", Vector: []float32{1}, Weights: &Weights{}, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, ids(resp.Results))
}

func TestSearchHybrid_VectorFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("fails by default", func(t *testing.T) {
		fc, fv := scenario()
		fv.err = errors.New("index unavailable")
		e := newTestEngine(t, fc, fv, DefaultConfig())

		resp, err := e.SearchHybrid(ctx, HybridQuery{Query: "x", Vector: []float32{1}})
		require.Error(t, err)
		assert.Nil(t, resp)
	})

	t.Run("degrades when allowed", func(t *testing.T) {
		fc, fv := scenario()
		fv.err = errors.New("index unavailable")
		e := newTestEngine(t, fc, fv, DefaultConfig())

		resp, err := e.SearchHybrid(ctx, HybridQuery{Query: "x", Vector: []float32{1}, Degraded: true})
		require.NoError(t, err)
		assert.True(t, resp.Degraded)
		assert.Contains(t, resp.Reason, "index unavailable")
		assert.Equal(t, []string{"A", "B"}, ids(resp.Results))
	})

	t.Run("request errors never degrade", func(t *testing.T) {
		fc, fv := scenario()
		fv.err = &vector.DimensionMismatchError{Expected: 1536, Got: 512}
		e := newTestEngine(t, fc, fv, DefaultConfig())

		_, err := e.SearchHybrid(ctx, HybridQuery{Query: "x", Vector: []float32{1}, Degraded: true})
		var dm *vector.DimensionMismatchError
		assert.True(t, errors.As(err, &dm))
	})

	t.Run("text failure is fatal", func(t *testing.T) {
		fc, fv := scenario()
		fc.err = store.ErrClosed
		e := newTestEngine(t, fc, fv, DefaultConfig())

		_, err := e.SearchHybrid(ctx, HybridQuery{Query: "x", Vector: []float32{1}, Degraded: true})
		assert.ErrorIs(t, err, store.ErrClosed)
	})
}

func TestSearchHybrid_LegTimeouts(t *testing.T) {
	ctx := context.Background()

	t.Run("slow vector leg times out", func(t *testing.T) {
		fc, fv := scenario()
		fv.delay = time.Second
		cfg := DefaultConfig()
		cfg.VectorTimeout = 20 * time.Millisecond
		e := newTestEngine(t, fc, fv, cfg)

		start := time.Now()
		_, err := e.SearchHybrid(ctx, HybridQuery{Query: "x", Vector: []float32{1}})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 500*time.Millisecond)
	})

	t.Run("slow vector leg degrades when allowed", func(t *testing.T) {
		fc, fv := scenario()
		fv.delay = time.Second
		cfg := DefaultConfig()
		cfg.VectorTimeout = 20 * time.Millisecond
		e := newTestEngine(t, fc, fv, cfg)

		resp, err := e.SearchHybrid(ctx, HybridQuery{Query: "x", Vector: []float32{1}, Degraded: true})
		require.NoError(t, err)
		assert.True(t, resp.Degraded)
	})

	t.Run("slow text leg times out", func(t *testing.T) {
		fc, fv := scenario()
		fc.delay = time.Second
		cfg := DefaultConfig()
		cfg.TextTimeout = 20 * time.Millisecond
		e := newTestEngine(t, fc, fv, cfg)

		_, err := e.SearchHybrid(ctx, HybridQuery{Query: "x", Vector: []float32{1}})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, ragerrors.ErrCodeSearchTimeout, Classify(err).Code)
	})
}

func TestSearchHybrid_EmptyTextQueryUsesVectorsOnly(t *testing.T) {
	fc, fv := scenario()
	e := newTestEngine(t, fc, fv, DefaultConfig())

	resp, err := e.SearchHybrid(context.Background(), HybridQuery{Query: "the of", Vector: []float32{1}, Limit: 5})
	require.NoError(t, err)

	assert.Empty(t, fc.limits)
	assert.Equal(t, []string{"B", "C"}, ids(resp.Results))
}

func TestSearchText(t *testing.T) {
	fc, fv := scenario()
	e := newTestEngine(t, fc, fv, DefaultConfig())
	ctx := context.Background()

	results, err := e.SearchText(ctx, TextQuery{Query: "alpha", Limit: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "A", results[0].ChunkID)
	assert.Equal(t, 0.9, results[0].Score)
	assert.Zero(t, results[0].TextScore)

	// Empty and all-stop-word queries return nothing, not an error
	for _, q := range []string{"", "   ", "the and of"} {
		results, err = e.SearchText(ctx, TextQuery{Query: q})
		require.NoError(t, err)
		assert.Empty(t, results)
	}

	_, err = e.SearchText(ctx, TextQuery{Query: "a OR"})
	var se *lexical.SyntaxError
	assert.True(t, errors.As(err, &se))
}

func TestSearchText_QueryTooLong(t *testing.T) {
	fc, fv := scenario()
	cfg := DefaultConfig()
	cfg.MaxQueryLength = 5
	e := newTestEngine(t, fc, fv, cfg)

	_, err := e.SearchText(context.Background(), TextQuery{Query: "longer than five"})
	assert.ErrorIs(t, err, ErrQueryTooLong)
}

func TestSearchVector(t *testing.T) {
	fc, fv := scenario()
	e := newTestEngine(t, fc, fv, DefaultConfig())
	ctx := context.Background()

	results, err := e.SearchVector(ctx, VectorQuery{Vector: []float32{1}, Threshold: ptr(0.7), Limit: 10})
	require.NoError(t, err)

	// 0.7 is not strictly above the threshold
	assert.Equal(t, []string{"B"}, ids(results))
	assert.Equal(t, 0.95, results[0].Score)

	_, err = e.SearchVector(ctx, VectorQuery{})
	assert.ErrorIs(t, err, ErrEmptyVector)
}

func TestEngine_LimitDefaults(t *testing.T) {
	fc, fv := scenario()
	cfg := DefaultConfig()
	cfg.MaxLimit = 2
	e := newTestEngine(t, fc, fv, cfg)

	_, err := e.SearchVector(context.Background(), VectorQuery{Vector: []float32{1}, Limit: 50})
	require.NoError(t, err)
	_, err = e.SearchVector(context.Background(), VectorQuery{Vector: []float32{1}})
	require.NoError(t, err)

	require.Len(t, fv.queries, 2)
	assert.Equal(t, 2, fv.queries[0].Limit)
	assert.Equal(t, 2, fv.queries[1].Limit)
}

func TestNewEngine_NilDependencies(t *testing.T) {
	fc, fv := scenario()

	_, err := NewEngine(nil, fv, DefaultConfig())
	assert.ErrorIs(t, err, ErrNilDependency)
	_, err = NewEngine(fc, nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrNilDependency)

	e, err := NewEngine(fc, fv, Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), e.Config())
}

func TestClassify(t *testing.T) {
	_, syntaxErr := lexical.Parse(`"open`)

	tests := []struct {
		name string
		err  error
		code string
	}{
		{"syntax", syntaxErr, ragerrors.ErrCodeQuerySyntax},
		{"dimension", &vector.DimensionMismatchError{Expected: 3, Got: 2}, ragerrors.ErrCodeDimensionMismatch},
		{"model", &registry.ModelNotFoundError{Model: "m"}, ragerrors.ErrCodeModelNotFound},
		{"cross model", registry.ErrCrossModel, ragerrors.ErrCodeCrossModel},
		{"weights", ErrInvalidWeights, ragerrors.ErrCodeInvalidWeights},
		{"threshold", ErrInvalidThreshold, ragerrors.ErrCodeInvalidInput},
		{"closed", store.ErrClosed, ragerrors.ErrCodeStorageUnavailable},
		{"timeout", context.DeadlineExceeded, ragerrors.ErrCodeSearchTimeout},
		{"other", errors.New("boom"), ragerrors.ErrCodeSearchFailed},
		{"vector leg", fmt.Errorf("%w: %w", ErrVectorSearch, errors.New("index unavailable")), ragerrors.ErrCodeVectorSearchFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			re := Classify(tt.err)
			require.NotNil(t, re)
			assert.Equal(t, tt.code, re.Code)
			assert.ErrorIs(t, re, tt.err)
		})
	}

	assert.Nil(t, Classify(nil))

	existing := ragerrors.ValidationError("bad", nil)
	assert.Same(t, existing, Classify(existing))
}

func TestSearchHybrid_VectorFailureClassified(t *testing.T) {
	// Given: a vector leg failing for infrastructure reasons
	fc, fv := scenario()
	fv.err = errors.New("index unavailable")
	e := newTestEngine(t, fc, fv, DefaultConfig())

	// When: searching without degraded mode
	_, err := e.SearchHybrid(context.Background(), HybridQuery{Query: "x", Vector: []float32{1}})

	// Then: the failure is reported as a vector search failure
	require.ErrorIs(t, err, ErrVectorSearch)
	assert.Equal(t, ragerrors.ErrCodeVectorSearchFailed, Classify(err).Code)

	// And: request errors from the same leg keep their own codes
	fv.err = &registry.ModelNotFoundError{Model: "ada", Kind: store.KindBody}
	_, err = e.SearchHybrid(context.Background(), HybridQuery{Query: "x", Vector: []float32{1}})
	assert.Equal(t, ragerrors.ErrCodeModelNotFound, Classify(err).Code)
}

func TestSearchHybrid_MatchedIn(t *testing.T) {
	// Given: A found by text, B by both legs with negative similarity, C by vector
	fc, fv := scenario()
	fv.hits[0].Similarity = -0.2
	e := newTestEngine(t, fc, fv, DefaultConfig())

	// When: running a hybrid search
	resp, err := e.SearchHybrid(context.Background(), HybridQuery{Query: "x", Vector: []float32{1}})
	require.NoError(t, err)

	// Then: each result names the legs that returned it
	got := make(map[string]string)
	for _, r := range resp.Results {
		got[r.ChunkID] = r.MatchedIn
	}
	assert.Equal(t, map[string]string{"A": MatchedText, "B": MatchedBoth, "C": MatchedVector}, got)
}

func ptr(f float64) *float64 { return &f }
