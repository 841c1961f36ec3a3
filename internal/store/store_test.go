package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ragsearch/internal/lexical"
	"github.com/Aman-CERP/ragsearch/internal/vector"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(context.Background(), Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func putDoc(t *testing.T, s *SQLiteStore, id, source, category string) {
	t.Helper()
	require.NoError(t, s.PutDocument(context.Background(), &Document{ID: id, Source: source, Category: category}))
}

func mustParse(t *testing.T, q string) *lexical.Query {
	t.Helper()
	parsed, err := lexical.Parse(q)
	require.NoError(t, err)
	return parsed
}

func candidateIDs(cs []Candidate) []string {
	ids := make([]string, len(cs))
	for i, c := range cs {
		ids[i] = c.ChunkID
	}
	return ids
}

func TestPutChunks_RoundTrip(t *testing.T) {
	// Given: a document
	s := newTestStore(t)
	ctx := context.Background()
	putDoc(t, s, "doc-1", "manual", "guides")

	// When: storing a chunk with direct vectors
	page := 3
	err := s.PutChunks(ctx, []*Chunk{{
		ID: "c1", DocumentID: "doc-1", Ordinal: 0, Page: &page, ImageID: "img-1",
		Text: "The Vector Search engine", Description: "Figure of an index",
		BodyVector: []float32{1, 0, 0}, DescriptionVector: []float32{0, 1, 0},
	}})
	require.NoError(t, err)

	// Then: it reads back with derived terms, source and vectors
	got, err := s.GetChunk(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "manual", got.Source)
	assert.Equal(t, []string{"vector", "search", "engine"}, got.TextIndex.Terms)
	assert.Equal(t, []string{"figure", "index"}, got.DescriptionIndex.Terms)
	require.NotNil(t, got.Page)
	assert.Equal(t, 3, *got.Page)
	assert.Equal(t, "img-1", got.ImageID)
	assert.Equal(t, []float32{1, 0, 0}, got.BodyVector)
	assert.Equal(t, []float32{0, 1, 0}, got.DescriptionVector)
}

func TestPutChunks_GeneratesID(t *testing.T) {
	s := newTestStore(t)
	putDoc(t, s, "doc-1", "", "")

	c := &Chunk{DocumentID: "doc-1", Text: "hello"}
	require.NoError(t, s.PutChunks(context.Background(), []*Chunk{c}))
	assert.NotEmpty(t, c.ID)
}

func TestPutChunks_RejectsEmptyText(t *testing.T) {
	s := newTestStore(t)
	putDoc(t, s, "doc-1", "", "")

	err := s.PutChunks(context.Background(), []*Chunk{{ID: "c1", DocumentID: "doc-1", Text: "   "}})
	assert.ErrorIs(t, err, ErrInvalidChunk)
}

func TestPutChunks_UnknownDocument(t *testing.T) {
	s := newTestStore(t)

	err := s.PutChunks(context.Background(), []*Chunk{{ID: "c1", DocumentID: "missing", Text: "x"}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutChunks_DuplicateOrdinal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	putDoc(t, s, "doc-1", "", "")

	// In one batch
	err := s.PutChunks(ctx, []*Chunk{
		{ID: "a", DocumentID: "doc-1", Ordinal: 0, Text: "one"},
		{ID: "b", DocumentID: "doc-1", Ordinal: 0, Text: "two"},
	})
	var dup *DuplicateOrdinalError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, 0, dup.Ordinal)

	// Across batches
	require.NoError(t, s.PutChunks(ctx, []*Chunk{{ID: "a", DocumentID: "doc-1", Ordinal: 0, Text: "one"}}))
	err = s.PutChunks(ctx, []*Chunk{{ID: "b", DocumentID: "doc-1", Ordinal: 0, Text: "two"}})
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "doc-1", dup.DocumentID)
}

func TestPutChunks_UpdateKeepsOtherModels(t *testing.T) {
	// Given: a chunk with an embedding under a second model
	s := newTestStore(t)
	ctx := context.Background()
	putDoc(t, s, "doc-1", "", "")
	require.NoError(t, s.PutChunks(ctx, []*Chunk{{ID: "c1", DocumentID: "doc-1", Text: "old text"}}))
	require.NoError(t, s.PutEmbedding(ctx, &Embedding{ChunkID: "c1", Kind: KindBody, Model: "m2", Vector: []float32{1, 2}}))

	// When: the chunk text is rewritten
	require.NoError(t, s.PutChunks(ctx, []*Chunk{{ID: "c1", DocumentID: "doc-1", Text: "new text"}}))

	// Then: the embedding survives and the lexical index follows the new text
	_, err := s.GetEmbedding(ctx, "c1", KindBody, "m2")
	require.NoError(t, err)

	res, err := s.LexicalCandidates(ctx, mustParse(t, "old"), "", 10)
	require.NoError(t, err)
	assert.Empty(t, res)
	res, err = s.LexicalCandidates(ctx, mustParse(t, "new"), "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, candidateIDs(res))
}

func TestDeleteDocument_Cascades(t *testing.T) {
	// Given: a document with chunks and embeddings
	s := newTestStore(t)
	ctx := context.Background()
	putDoc(t, s, "doc-1", "", "")
	require.NoError(t, s.PutChunks(ctx, []*Chunk{
		{ID: "c1", DocumentID: "doc-1", Ordinal: 0, Text: "alpha", BodyVector: []float32{1, 0}},
		{ID: "c2", DocumentID: "doc-1", Ordinal: 1, Text: "alpha beta"},
	}))

	// When: deleting the document
	require.NoError(t, s.DeleteDocument(ctx, "doc-1"))

	// Then: chunks, full-text rows and embeddings are gone
	_, err := s.GetChunk(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)
	n, err := s.LexicalCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Embeddings)

	// And: deleting again reports not found
	assert.ErrorIs(t, s.DeleteDocument(ctx, "doc-1"), ErrNotFound)
}

func TestListDocuments_Filters(t *testing.T) {
	// Given: three documents created a minute apart
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, d := range []*Document{
		{ID: "old", Source: "wiki", Category: "papers"},
		{ID: "mid", Source: "blog", Category: "recipes"},
		{ID: "new", Source: "wiki", Category: "papers"},
	} {
		d.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.PutDocument(ctx, d))
	}

	docIDs := func(docs []*Document) []string {
		out := make([]string, len(docs))
		for i, d := range docs {
			out[i] = d.ID
		}
		return out
	}

	// When/Then: no filter lists newest first
	all, err := s.ListDocuments(ctx, DocumentFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "mid", "old"}, docIDs(all))

	// When/Then: category, source and limit narrow the list
	papers, err := s.ListDocuments(ctx, DocumentFilter{Category: "papers"})
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "old"}, docIDs(papers))

	blog, err := s.ListDocuments(ctx, DocumentFilter{Source: "blog"})
	require.NoError(t, err)
	assert.Equal(t, []string{"mid"}, docIDs(blog))

	latest, err := s.ListDocuments(ctx, DocumentFilter{Category: "papers", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, docIDs(latest))

	none, err := s.ListDocuments(ctx, DocumentFilter{Category: "poems"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDeleteChunk(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	putDoc(t, s, "doc-1", "", "")
	require.NoError(t, s.PutChunks(ctx, []*Chunk{{ID: "c1", DocumentID: "doc-1", Text: "alpha"}}))

	require.NoError(t, s.DeleteChunk(ctx, "c1"))

	res, err := s.LexicalCandidates(ctx, mustParse(t, "alpha"), "", 10)
	require.NoError(t, err)
	assert.Empty(t, res)
	assert.ErrorIs(t, s.DeleteChunk(ctx, "c1"), ErrNotFound)
}

func TestGetChunks_PreservesOrderAndSkipsMissing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	putDoc(t, s, "doc-1", "", "")
	require.NoError(t, s.PutChunks(ctx, []*Chunk{
		{ID: "a", DocumentID: "doc-1", Ordinal: 0, Text: "one"},
		{ID: "b", DocumentID: "doc-1", Ordinal: 1, Text: "two"},
	}))

	got, err := s.GetChunks(ctx, []string{"b", "missing", "a"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "a", got[1].ID)

	byDoc, err := s.ChunksByDocument(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, byDoc, 2)
	assert.Equal(t, "a", byDoc[0].ID)
}

func TestLexicalCandidates_MatchingOnly(t *testing.T) {
	// Given: three chunks
	s := newTestStore(t)
	ctx := context.Background()
	putDoc(t, s, "doc-1", "", "")
	require.NoError(t, s.PutChunks(ctx, []*Chunk{
		{ID: "a", DocumentID: "doc-1", Ordinal: 0, Text: "vector search with cosine distance"},
		{ID: "b", DocumentID: "doc-1", Ordinal: 1, Text: "vector vector vector search"},
		{ID: "c", DocumentID: "doc-1", Ordinal: 2, Text: "cooking recipes"},
	}))

	// When: searching with implicit AND
	res, err := s.LexicalCandidates(ctx, mustParse(t, "vector search"), "", 10)
	require.NoError(t, err)

	// Then: only matching chunks return, with scores in (0, 1), best first
	assert.ElementsMatch(t, []string{"a", "b"}, candidateIDs(res))
	for i, c := range res {
		assert.Greater(t, c.Score, 0.0)
		assert.Less(t, c.Score, 1.0)
		if i > 0 {
			assert.GreaterOrEqual(t, res[i-1].Score, c.Score)
		}
	}
}

func TestLexicalCandidates_CommonTermsKeepTheirWeight(t *testing.T) {
	// Given: a term present in two of three chunks, once and three times
	s := newTestStore(t)
	ctx := context.Background()
	putDoc(t, s, "doc-1", "", "")
	require.NoError(t, s.PutChunks(ctx, []*Chunk{
		{ID: "a", DocumentID: "doc-1", Ordinal: 0, Text: "vector search with cosine distance"},
		{ID: "b", DocumentID: "doc-1", Ordinal: 1, Text: "vector vector vector search"},
		{ID: "c", DocumentID: "doc-1", Ordinal: 2, Text: "cooking recipes", Description: "rare"},
	}))

	// When: searching the common term and the rare one
	common, err := s.LexicalCandidates(ctx, mustParse(t, "vector"), "", 10)
	require.NoError(t, err)
	rare, err := s.LexicalCandidates(ctx, mustParse(t, "rare"), "", 10)
	require.NoError(t, err)

	// Then: the common term scores on term frequency alone, like the rare one
	require.Equal(t, []string{"b", "a"}, candidateIDs(common))
	assert.InDelta(t, 0.5, common[1].Score, 1e-9)
	assert.Greater(t, common[0].Score, common[1].Score)

	// And: a description match counts double
	require.Equal(t, []string{"c"}, candidateIDs(rare))
	assert.InDelta(t, 2.0/3.0, rare[0].Score, 1e-9)
}

func TestLexicalCandidates_Operators(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	putDoc(t, s, "doc-1", "", "")
	require.NoError(t, s.PutChunks(ctx, []*Chunk{
		{ID: "a", DocumentID: "doc-1", Ordinal: 0, Text: "hybrid search engine"},
		{ID: "b", DocumentID: "doc-1", Ordinal: 1, Text: "search hybrid engine"},
		{ID: "c", DocumentID: "doc-1", Ordinal: 2, Text: "graph traversal", Description: "hybrid diagram"},
	}))

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"phrase", `"hybrid search"`, []string{"a"}},
		{"or", "traversal OR engine", []string{"a", "b", "c"}},
		{"negation", "hybrid -search", []string{"c"}},
		{"description", "diagram", []string{"c"}},
		{"stopwords only", "the and of", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.LexicalCandidates(ctx, mustParse(t, tt.query), "", 10)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, candidateIDs(res))
		})
	}
}

func TestLexicalCandidates_SourceFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	putDoc(t, s, "doc-1", "wiki", "")
	putDoc(t, s, "doc-2", "mail", "")
	require.NoError(t, s.PutChunks(ctx, []*Chunk{
		{ID: "a", DocumentID: "doc-1", Text: "quarterly report"},
		{ID: "b", DocumentID: "doc-2", Text: "quarterly report"},
	}))

	res, err := s.LexicalCandidates(ctx, mustParse(t, "report"), "mail", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, candidateIDs(res))

	res, err = s.LexicalCandidates(ctx, mustParse(t, "report"), "nowhere", 10)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestLexicalCandidates_Limit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	putDoc(t, s, "doc-1", "", "")
	var chunks []*Chunk
	for i := 0; i < 5; i++ {
		chunks = append(chunks, &Chunk{DocumentID: "doc-1", Ordinal: i, Text: "repeated term"})
	}
	require.NoError(t, s.PutChunks(ctx, chunks))

	res, err := s.LexicalCandidates(ctx, mustParse(t, "term"), "", 2)
	require.NoError(t, err)
	assert.Len(t, res, 2)
}

func TestPutEmbedding_DimensionChecks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	putDoc(t, s, "doc-1", "", "")
	require.NoError(t, s.PutChunks(ctx, []*Chunk{
		{ID: "a", DocumentID: "doc-1", Ordinal: 0, Text: "one"},
		{ID: "b", DocumentID: "doc-1", Ordinal: 1, Text: "two"},
	}))
	require.NoError(t, s.PutEmbedding(ctx, &Embedding{ChunkID: "a", Model: "small", Vector: []float32{1, 0, 0}}))

	// Declared dim disagrees with the vector
	err := s.PutEmbedding(ctx, &Embedding{ChunkID: "b", Model: "small", Dim: 4, Vector: []float32{1, 0, 0}})
	var mismatch *vector.DimensionMismatchError
	require.True(t, errors.As(err, &mismatch))

	// Same model, different dim
	err = s.PutEmbedding(ctx, &Embedding{ChunkID: "b", Model: "small", Vector: []float32{1, 0}})
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, 3, mismatch.Expected)
	assert.Equal(t, 2, mismatch.Got)

	// Another model may use another dim
	require.NoError(t, s.PutEmbedding(ctx, &Embedding{ChunkID: "b", Model: "large", Vector: []float32{1, 0, 0, 0, 0}}))

	// Zero vectors have no direction
	err = s.PutEmbedding(ctx, &Embedding{ChunkID: "b", Model: "small", Vector: []float32{0, 0, 0}})
	assert.ErrorIs(t, err, vector.ErrZeroVector)

	// Unknown chunk
	err = s.PutEmbedding(ctx, &Embedding{ChunkID: "zzz", Model: "small", Vector: []float32{1, 0, 0}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestModels_ScanAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	putDoc(t, s, "doc-1", "", "")
	require.NoError(t, s.PutChunks(ctx, []*Chunk{
		{ID: "b", DocumentID: "doc-1", Ordinal: 0, Text: "one", BodyVector: []float32{0, 1}},
		{ID: "a", DocumentID: "doc-1", Ordinal: 1, Text: "two", BodyVector: []float32{1, 0}},
	}))
	require.NoError(t, s.PutEmbedding(ctx, &Embedding{ChunkID: "a", Kind: KindDescription, Model: "clip", Vector: []float32{1, 1, 1}}))

	models, err := s.Models(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ModelInfo{
		{Model: "clip", Kind: KindDescription, Dim: 3, Count: 1},
		{Model: DefaultModelName, Kind: KindBody, Dim: 2, Count: 2},
	}, models)

	var seen []string
	err = s.ScanEmbeddings(ctx, DefaultModelName, KindBody, func(id string, vec []float32) error {
		seen = append(seen, id)
		assert.Len(t, vec, 2)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, seen)

	n, err := s.DeleteModel(ctx, DefaultModelName)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	models, err = s.Models(ctx)
	require.NoError(t, err)
	assert.Len(t, models, 1)
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	putDoc(t, s, "doc-1", "", "guides")
	putDoc(t, s, "doc-2", "", "guides")
	putDoc(t, s, "doc-3", "", "papers")
	require.NoError(t, s.PutChunks(ctx, []*Chunk{
		{DocumentID: "doc-1", Ordinal: 0, Text: "a1", ImageID: "img", ParsedID: "p1"},
		{DocumentID: "doc-1", Ordinal: 1, Text: "a2", ImageID: "img", ParsedID: "p1"},
		{DocumentID: "doc-3", Ordinal: 0, Text: "c1", BodyVector: []float32{1}},
	}))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Documents)
	assert.Equal(t, 3, st.Chunks)
	assert.Equal(t, 1, st.Images)
	assert.Equal(t, 1, st.ParsedArtifacts)
	assert.Equal(t, 1, st.Embeddings)
	assert.Equal(t, map[string]int{"guides": 2, "papers": 1}, st.ByCategory)
	assert.Equal(t, map[string]int{DefaultModelName: 1}, st.ByModel)
}

func TestOpen_PersistsToFile(t *testing.T) {
	// Given: a file-backed store with one chunk
	path := filepath.Join(t.TempDir(), "data", "chunks.db")
	ctx := context.Background()
	s, err := Open(ctx, Config{Path: path})
	require.NoError(t, err)
	putDoc(t, s, "doc-1", "", "")
	require.NoError(t, s.PutChunks(ctx, []*Chunk{{ID: "c1", DocumentID: "doc-1", Text: "persisted"}}))
	require.NoError(t, s.Close())

	// When: reopening
	s, err = Open(ctx, Config{Path: path})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	// Then: the chunk is searchable
	res, err := s.LexicalCandidates(ctx, mustParse(t, "persisted"), "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, candidateIDs(res))
}

func TestClosedStore(t *testing.T) {
	s, err := Open(context.Background(), Config{})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.GetChunks(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), Config{Lexical: LexicalConfig{Backend: "lucene"}})
	assert.Error(t, err)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("chunk")
	require.NoError(t, err)
	assert.Equal(t, KindBody, k)
	k, err = ParseKind("description")
	require.NoError(t, err)
	assert.Equal(t, KindDescription, k)
	_, err = ParseKind("image")
	assert.Error(t, err)
}

func TestCodec(t *testing.T) {
	vec := []float32{0.5, -1.25, 3}
	got, err := decodeVector(encodeVector(vec), 3)
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	_, err = decodeVector([]byte{1, 2, 3}, 1)
	assert.Error(t, err)
}
