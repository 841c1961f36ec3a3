package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/whitespace"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/Aman-CERP/ragsearch/internal/lexical"
)

// TermsAnalyzerName splits stored representations on whitespace only; the
// terms were already produced by the lexical analyzer.
const TermsAnalyzerName = "ragsearch_terms"

// Bleve document fields.
const (
	bleveFieldBody        = "body"
	bleveFieldDescription = "description"
	bleveFieldSource      = "source"
	bleveFieldDocument    = "document_id"
)

// BleveIndex is the bleve lexical backend.
type BleveIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

type bleveChunk struct {
	Body        string `json:"body"`
	Description string `json:"description"`
	Source      string `json:"source"`
	DocumentID  string `json:"document_id"`
}

// NewBleveIndex opens or creates a bleve index at path. An empty path keeps
// the index in memory. A corrupt index is cleared and rebuilt by the caller.
func NewBleveIndex(path string) (*BleveIndex, error) {
	idx, err := openBleve(path)
	if err != nil {
		return nil, err
	}
	return &BleveIndex{index: idx, path: path}, nil
}

func openBleve(path string) (bleve.Index, error) {
	m, err := newBleveMapping()
	if err != nil {
		return nil, fmt.Errorf("failed to create bleve mapping: %w", err)
	}
	if path == "" {
		return bleve.NewMemOnly(m)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if verr := validateBleveMeta(path); verr != nil {
		slog.Warn("bleve_index_corrupted", slog.String("path", path), slog.String("error", verr.Error()))
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("bleve index at %s is corrupted and cannot be removed: %w", path, err)
		}
	}

	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, m)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open bleve index at %s: %w", path, err)
	}
	return idx, nil
}

// validateBleveMeta checks index_meta.json of an existing index directory.
func validateBleveMeta(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(path, "index_meta.json"))
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func newBleveMapping() (*mapping.IndexMappingImpl, error) {
	m := bleve.NewIndexMapping()
	err := m.AddCustomAnalyzer(TermsAnalyzerName, map[string]any{
		"type":      custom.Name,
		"tokenizer": whitespace.Name,
	})
	if err != nil {
		return nil, err
	}

	text := bleve.NewTextFieldMapping()
	text.Analyzer = TermsAnalyzerName
	text.IncludeTermVectors = true
	text.Store = false

	kw := bleve.NewTextFieldMapping()
	kw.Analyzer = keyword.Name
	kw.Store = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt(bleveFieldBody, text)
	doc.AddFieldMappingsAt(bleveFieldDescription, text)
	doc.AddFieldMappingsAt(bleveFieldSource, kw)
	doc.AddFieldMappingsAt(bleveFieldDocument, kw)

	m.DefaultMapping = doc
	m.DefaultAnalyzer = TermsAnalyzerName
	return m, nil
}

// Index adds or replaces chunks.
func (b *BleveIndex) Index(ctx context.Context, docs []*LexicalDoc) error {
	if len(docs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	batch := b.index.NewBatch()
	for _, d := range docs {
		err := batch.Index(d.ChunkID, bleveChunk{
			Body:        d.Body.String(),
			Description: d.Description.String(),
			Source:      d.Source,
			DocumentID:  d.DocumentID,
		})
		if err != nil {
			return fmt.Errorf("failed to index chunk %s: %w", d.ChunkID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

// Delete removes chunks by id.
func (b *BleveIndex) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	batch := b.index.NewBatch()
	for _, id := range chunkIDs {
		batch.Delete(id)
	}
	return b.index.Batch(batch)
}

// Search runs q over body and description, optionally filtered by source.
func (b *BleveIndex) Search(ctx context.Context, q *lexical.Query, source string, limit int) ([]Candidate, error) {
	if q.Empty() || limit <= 0 {
		return []Candidate{}, nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrClosed
	}

	var bq query.Query = q.Bleve(bleveFieldBody, bleveFieldDescription)
	if source != "" {
		filter := bleve.NewTermQuery(source)
		filter.SetField(bleveFieldSource)
		bq = bleve.NewConjunctionQuery(bq, filter)
	}

	req := bleve.NewSearchRequestOptions(bq, limit, 0, false)
	req.SortBy([]string{"-_score", "_id"})

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve search failed: %w", err)
	}

	out := make([]Candidate, 0, len(res.Hits))
	for _, hit := range res.Hits {
		out = append(out, Candidate{ChunkID: hit.ID, Score: saturate(hit.Score)})
	}
	return out, nil
}

// Count returns the number of indexed chunks.
func (b *BleveIndex) Count() (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, ErrClosed
	}
	n, err := b.index.DocCount()
	if err != nil {
		return 0, fmt.Errorf("failed to count bleve docs: %w", err)
	}
	return int(n), nil
}

// Clear drops every indexed chunk.
func (b *BleveIndex) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if err := b.index.Close(); err != nil {
		return fmt.Errorf("failed to close bleve index: %w", err)
	}
	if b.path != "" {
		if err := os.RemoveAll(b.path); err != nil {
			return fmt.Errorf("failed to remove bleve index: %w", err)
		}
	}
	idx, err := openBleve(b.path)
	if err != nil {
		b.closed = true
		return err
	}
	b.index = idx
	return nil
}

// Close closes the index.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}
