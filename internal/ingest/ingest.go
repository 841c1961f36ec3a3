// Package ingest loads documents, chunks and embeddings from JSON lines into
// the store. Each line holds exactly one of:
//
//	{"document": {"id": "d1", "source": "wiki", "title": "..."}}
//	{"chunk": {"id": "c1", "document_id": "d1", "ordinal": 0, "text": "..."}}
//	{"embedding": {"chunk_id": "c1", "kind": "body", "model": "m", "vector": [...]}}
//
// Chunks are buffered and written in batches; any other record flushes the
// batch first so embeddings always follow the chunks they reference.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/Aman-CERP/ragsearch/internal/store"
)

const (
	// DefaultBatchSize is the number of chunks written per transaction.
	DefaultBatchSize = 256

	// MaxLineSize bounds one JSON line. Large embeddings need more than
	// bufio's default.
	MaxLineSize = 16 << 20
)

// Sink receives ingested records. *store.SQLiteStore implements it.
type Sink interface {
	PutDocument(ctx context.Context, doc *store.Document) error
	PutChunks(ctx context.Context, chunks []*store.Chunk) error
	PutEmbedding(ctx context.Context, e *store.Embedding) error
}

// Record is one input line.
type Record struct {
	Document  *store.Document  `json:"document,omitempty"`
	Chunk     *store.Chunk     `json:"chunk,omitempty"`
	Embedding *store.Embedding `json:"embedding,omitempty"`
}

// Event reports progress after each record.
type Event struct {
	Line int
	Kind string // document, chunk or embedding
	ID   string
}

// Options configures an ingest run.
type Options struct {
	// BatchSize is the number of chunks per write. 0 uses DefaultBatchSize.
	BatchSize int

	// DefaultModel names embeddings that carry no model.
	DefaultModel string

	// ContinueOnError records bad lines in Result.Errors instead of stopping.
	ContinueOnError bool

	// OnRecord, if set, is called after each record is accepted.
	OnRecord func(Event)
}

// LineError is a failure tied to one input line.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Result summarises an ingest run.
type Result struct {
	Documents  int
	Chunks     int
	Embeddings int
	Models     []string
	Errors     []*LineError
	Duration   time.Duration
}

// ErrEmptyRecord is returned for a line with no document, chunk or embedding.
var ErrEmptyRecord = errors.New("record has no document, chunk or embedding")

// ErrAmbiguousRecord is returned for a line with more than one record type.
var ErrAmbiguousRecord = errors.New("record must hold exactly one of document, chunk or embedding")

type pendingChunk struct {
	line  int
	chunk *store.Chunk
}

type run struct {
	sink    Sink
	opts    Options
	res     *Result
	pending []pendingChunk
	models  map[string]struct{}
}

// Ingest reads JSON lines from r into sink. Blank lines are skipped. On the
// first bad line it stops and returns a *LineError, unless
// opts.ContinueOnError is set. The result counts what was written either way.
func Ingest(ctx context.Context, r io.Reader, sink Sink, opts Options) (*Result, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.DefaultModel == "" {
		opts.DefaultModel = store.DefaultModelName
	}

	start := time.Now()
	ru := &run{sink: sink, opts: opts, res: &Result{}, models: make(map[string]struct{})}

	err := ru.read(ctx, r)
	if err == nil {
		err = ru.flush(ctx)
	}

	for m := range ru.models {
		ru.res.Models = append(ru.res.Models, m)
	}
	sort.Strings(ru.res.Models)
	ru.res.Duration = time.Since(start)

	slog.Info("ingest_complete",
		slog.Int("documents", ru.res.Documents),
		slog.Int("chunks", ru.res.Chunks),
		slog.Int("embeddings", ru.res.Embeddings),
		slog.Int("errors", len(ru.res.Errors)),
		slog.Duration("duration", ru.res.Duration))
	return ru.res, err
}

func (ru *run) read(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), MaxLineSize)

	line := 0
	for sc.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		if err := ru.record(ctx, line, raw); err != nil {
			if err := ru.fail(line, err); err != nil {
				return err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read input after line %d: %w", line, err)
	}
	return nil
}

// fail records a line error, returning it when the run should stop.
func (ru *run) fail(line int, err error) error {
	var le *LineError
	if !errors.As(err, &le) {
		le = &LineError{Line: line, Err: err}
	}
	if !ru.opts.ContinueOnError || errors.Is(err, context.Canceled) || errors.Is(err, store.ErrClosed) {
		return le
	}
	slog.Warn("ingest_line_skipped", slog.Int("line", le.Line), slog.String("error", le.Err.Error()))
	ru.res.Errors = append(ru.res.Errors, le)
	return nil
}

func (ru *run) record(ctx context.Context, line int, raw []byte) error {
	var rec Record
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rec); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}

	n := 0
	for _, set := range []bool{rec.Document != nil, rec.Chunk != nil, rec.Embedding != nil} {
		if set {
			n++
		}
	}
	switch {
	case n == 0:
		return ErrEmptyRecord
	case n > 1:
		return ErrAmbiguousRecord
	}

	if rec.Chunk != nil {
		ru.pending = append(ru.pending, pendingChunk{line: line, chunk: rec.Chunk})
		if len(ru.pending) >= ru.opts.BatchSize {
			return ru.flush(ctx)
		}
		return nil
	}

	if err := ru.flush(ctx); err != nil {
		return err
	}

	if d := rec.Document; d != nil {
		if err := ru.sink.PutDocument(ctx, d); err != nil {
			return err
		}
		ru.res.Documents++
		ru.notify(Event{Line: line, Kind: "document", ID: d.ID})
		return nil
	}

	e := rec.Embedding
	if err := ru.normalize(e); err != nil {
		return err
	}
	if err := ru.sink.PutEmbedding(ctx, e); err != nil {
		return err
	}
	ru.res.Embeddings++
	ru.models[e.Model] = struct{}{}
	ru.notify(Event{Line: line, Kind: "embedding", ID: e.ChunkID})
	return nil
}

func (ru *run) normalize(e *store.Embedding) error {
	if e.ChunkID == "" {
		return errors.New("embedding has no chunk_id")
	}
	if e.Model == "" {
		e.Model = ru.opts.DefaultModel
	}
	if e.Kind == "" {
		e.Kind = store.KindBody
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("unknown embedding kind %q", e.Kind)
	}
	if e.Dim == 0 {
		e.Dim = len(e.Vector)
	}
	if e.Dim != len(e.Vector) {
		return fmt.Errorf("embedding dim %d does not match vector length %d", e.Dim, len(e.Vector))
	}
	return nil
}

// flush writes buffered chunks as one batch. If the batch is rejected and
// the run continues on error, chunks are retried one by one so the failure
// lands on its own line.
func (ru *run) flush(ctx context.Context) error {
	if len(ru.pending) == 0 {
		return nil
	}
	batch := ru.pending
	ru.pending = nil

	chunks := make([]*store.Chunk, len(batch))
	for i, p := range batch {
		chunks[i] = p.chunk
	}

	err := ru.sink.PutChunks(ctx, chunks)
	if err == nil {
		ru.accept(batch)
		return nil
	}
	if !ru.opts.ContinueOnError || len(batch) == 1 {
		return &LineError{Line: batch[0].line, Err: err}
	}

	for _, p := range batch {
		if err := ru.sink.PutChunks(ctx, []*store.Chunk{p.chunk}); err != nil {
			if err := ru.fail(p.line, err); err != nil {
				return err
			}
			continue
		}
		ru.accept([]pendingChunk{p})
	}
	return nil
}

func (ru *run) accept(batch []pendingChunk) {
	ru.res.Chunks += len(batch)
	for _, p := range batch {
		if len(p.chunk.BodyVector) > 0 || len(p.chunk.DescriptionVector) > 0 {
			ru.models[ru.opts.DefaultModel] = struct{}{}
		}
		ru.notify(Event{Line: p.line, Kind: "chunk", ID: p.chunk.ID})
	}
}

func (ru *run) notify(ev Event) {
	if ru.opts.OnRecord != nil {
		ru.opts.OnRecord(ev)
	}
}

// CountRecords counts the non-blank lines of r.
func CountRecords(r io.Reader) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	n := 0
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) > 0 {
			n++
		}
	}
	return n, sc.Err()
}
