package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ragsearch/internal/lexical"
	"github.com/Aman-CERP/ragsearch/internal/store"
	"github.com/Aman-CERP/ragsearch/internal/vector"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.Open(context.Background(), store.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

const sample = `
{"document": {"id": "d1", "source": "wiki", "title": "Networks", "category": "html"}}
{"chunk": {"id": "c1", "document_id": "d1", "ordinal": 0, "text": "neural networks learn representations"}}
{"chunk": {"id": "c2", "document_id": "d1", "ordinal": 1, "text": "gradient descent", "description": "optimisation"}}

{"embedding": {"chunk_id": "c1", "model": "mini", "vector": [1, 0, 0]}}
{"embedding": {"chunk_id": "c2", "model": "mini", "kind": "description", "vector": [0, 1, 0]}}
{"embedding": {"chunk_id": "c2", "vector": [0, 0, 1, 0]}}
`

func TestIngest_LoadsAllRecordTypes(t *testing.T) {
	// Given: a store and a JSONL stream with every record type
	s := newTestStore(t)
	ctx := context.Background()

	// When: ingesting
	res, err := Ingest(ctx, strings.NewReader(sample), s, Options{})

	// Then: everything is counted and stored
	require.NoError(t, err)
	assert.Equal(t, 1, res.Documents)
	assert.Equal(t, 2, res.Chunks)
	assert.Equal(t, 3, res.Embeddings)
	assert.Equal(t, []string{store.DefaultModelName, "mini"}, res.Models)
	assert.Empty(t, res.Errors)

	c, err := s.GetChunk(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, "wiki", c.Source)

	e, err := s.GetEmbedding(ctx, "c2", store.KindDescription, "mini")
	require.NoError(t, err)
	assert.Equal(t, 3, e.Dim)

	def, err := s.GetEmbedding(ctx, "c2", store.KindBody, store.DefaultModelName)
	require.NoError(t, err)
	assert.Equal(t, 4, def.Dim)

	q, err := lexical.Parse("neural")
	require.NoError(t, err)
	cands, err := s.LexicalCandidates(ctx, q, "", 10)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "c1", cands[0].ChunkID)
}

func TestIngest_StopsAtFirstBadLine(t *testing.T) {
	// Given: a stream whose third line is not JSON
	s := newTestStore(t)
	input := `{"document": {"id": "d1"}}
{"chunk": {"id": "c1", "document_id": "d1", "ordinal": 0, "text": "one"}}
not json
{"chunk": {"id": "c2", "document_id": "d1", "ordinal": 1, "text": "two"}}`

	// When: ingesting without ContinueOnError
	res, err := Ingest(context.Background(), strings.NewReader(input), s, Options{})

	// Then: the error names line 3 and later lines are not read
	var le *LineError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, 3, le.Line)
	assert.Equal(t, 1, res.Documents)
	assert.Equal(t, 0, res.Chunks, "buffered chunk is not flushed after a failure")
}

func TestIngest_ContinueOnError(t *testing.T) {
	// Given: bad lines of several kinds between good ones
	s := newTestStore(t)
	input := `{"document": {"id": "d1"}}
{}
{"document": {"id": "d2"}, "chunk": {"id": "x"}}
{"chunk": {"id": "c1", "document_id": "d1", "ordinal": 0, "text": "one"}}
{"chunk": {"id": "c2", "document_id": "d1", "ordinal": 0, "text": "same ordinal"}}
{"embedding": {"chunk_id": "missing", "vector": [1, 0]}}
{"embedding": {"chunk_id": "c1", "dim": 3, "vector": [1, 0]}}
{"embedding": {"chunk_id": "c1", "vector": [1, 0]}}`

	// When: ingesting with ContinueOnError
	res, err := Ingest(context.Background(), strings.NewReader(input), s, Options{ContinueOnError: true})

	// Then: good records land and each bad line is reported
	require.NoError(t, err)
	assert.Equal(t, 1, res.Documents)
	assert.Equal(t, 1, res.Chunks)
	assert.Equal(t, 1, res.Embeddings)

	lines := make([]int, len(res.Errors))
	for i, e := range res.Errors {
		lines[i] = e.Line
	}
	assert.Equal(t, []int{2, 3, 5, 6, 7}, lines)
	assert.ErrorIs(t, res.Errors[0], ErrEmptyRecord)
	assert.ErrorIs(t, res.Errors[1], ErrAmbiguousRecord)

	var dup *store.DuplicateOrdinalError
	assert.ErrorAs(t, res.Errors[2], &dup)
	assert.ErrorIs(t, res.Errors[3], store.ErrNotFound)
}

func TestIngest_DimensionMismatchAcrossModel(t *testing.T) {
	s := newTestStore(t)
	input := `{"document": {"id": "d1"}}
{"chunk": {"id": "c1", "document_id": "d1", "ordinal": 0, "text": "one"}}
{"chunk": {"id": "c2", "document_id": "d1", "ordinal": 1, "text": "two"}}
{"embedding": {"chunk_id": "c1", "model": "m", "vector": [1, 0, 0]}}
{"embedding": {"chunk_id": "c2", "model": "m", "vector": [1, 0]}}`

	_, err := Ingest(context.Background(), strings.NewReader(input), s, Options{})

	var dim *vector.DimensionMismatchError
	require.ErrorAs(t, err, &dim)
	assert.Equal(t, 3, dim.Expected)
	assert.Equal(t, 2, dim.Got)
}

func TestIngest_UnknownFieldRejected(t *testing.T) {
	s := newTestStore(t)

	_, err := Ingest(context.Background(), strings.NewReader(`{"doc": {"id": "d1"}}`), s, Options{})

	var le *LineError
	require.ErrorAs(t, err, &le)
	assert.Contains(t, le.Error(), "line 1: invalid json")
}

// recordingSink records batch sizes and can fail chosen chunk ids.
type recordingSink struct {
	batches []int
	failIDs map[string]bool
}

func (r *recordingSink) PutDocument(context.Context, *store.Document) error { return nil }

func (r *recordingSink) PutChunks(_ context.Context, chunks []*store.Chunk) error {
	r.batches = append(r.batches, len(chunks))
	for _, c := range chunks {
		if r.failIDs[c.ID] {
			return errors.New("rejected " + c.ID)
		}
	}
	return nil
}

func (r *recordingSink) PutEmbedding(context.Context, *store.Embedding) error { return nil }

func chunkLines(ids ...string) string {
	var b strings.Builder
	for _, id := range ids {
		b.WriteString(`{"chunk": {"id": "` + id + `", "document_id": "d", "text": "t"}}` + "\n")
	}
	return b.String()
}

func TestIngest_BatchesChunks(t *testing.T) {
	// Given: five chunks, a document, then two more chunks
	sink := &recordingSink{}
	input := chunkLines("a", "b", "c", "d", "e") + `{"document": {"id": "d"}}` + "\n" + chunkLines("f", "g")

	// When: ingesting with batch size 2
	res, err := Ingest(context.Background(), strings.NewReader(input), sink, Options{BatchSize: 2})

	// Then: full batches, a partial flush before the document, and a final flush
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1, 2}, sink.batches)
	assert.Equal(t, 7, res.Chunks)
}

func TestIngest_FailedBatchRetriedPerChunk(t *testing.T) {
	// Given: a batch with one rejected chunk
	sink := &recordingSink{failIDs: map[string]bool{"b": true}}
	var events []Event

	// When: ingesting with ContinueOnError
	res, err := Ingest(context.Background(), strings.NewReader(chunkLines("a", "b", "c")), sink, Options{
		BatchSize:       3,
		ContinueOnError: true,
		OnRecord:        func(ev Event) { events = append(events, ev) },
	})

	// Then: the batch is retried one by one and only b fails
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1, 1, 1}, sink.batches)
	assert.Equal(t, 2, res.Chunks)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 2, res.Errors[0].Line)
	require.Len(t, events, 2)
	assert.Equal(t, Event{Line: 1, Kind: "chunk", ID: "a"}, events[0])
	assert.Equal(t, Event{Line: 3, Kind: "chunk", ID: "c"}, events[1])
}

func TestIngest_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Ingest(ctx, strings.NewReader(chunkLines("a")), &recordingSink{}, Options{ContinueOnError: true})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestCountRecords(t *testing.T) {
	n, err := CountRecords(strings.NewReader(sample))

	require.NoError(t, err)
	assert.Equal(t, 6, n)
}
