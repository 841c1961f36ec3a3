// Package store persists documents, chunks and chunk embeddings in SQLite and
// answers lexical candidate lookups over FTS5 (or bleve).
//
// Lexical artifacts are never supplied by callers: every write of chunk text or
// description runs the lexical analyzer and stores its output next to the row,
// the way a generated tsvector column would.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Aman-CERP/ragsearch/internal/lexical"
)

// Kind is the semantic kind of an embedding.
type Kind string

const (
	// KindBody embeds the chunk text.
	KindBody Kind = "body"
	// KindDescription embeds the chunk description.
	KindDescription Kind = "description"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindBody || k == KindDescription
}

// ParseKind parses a kind name. "chunk" is accepted as an alias for "body".
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "body", "chunk":
		return KindBody, nil
	case "description":
		return KindDescription, nil
	default:
		return "", fmt.Errorf("unknown embedding kind %q (valid: body, description)", s)
	}
}

// Lexical backends.
const (
	BackendSQLite = "sqlite"
	BackendBleve  = "bleve"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store is closed")

	// ErrInvalidChunk is wrapped by chunk validation failures.
	ErrInvalidChunk = errors.New("invalid chunk")
)

// DuplicateOrdinalError reports two chunks claiming the same position in a document.
type DuplicateOrdinalError struct {
	DocumentID string
	Ordinal    int
}

func (e *DuplicateOrdinalError) Error() string {
	return fmt.Sprintf("document %s already has a chunk at ordinal %d", e.DocumentID, e.Ordinal)
}

// Document is the parent of chunks. Only Source matters to search, as a filter.
type Document struct {
	ID        string    `json:"id"`
	Source    string    `json:"source,omitempty"`
	Title     string    `json:"title,omitempty"`
	Category  string    `json:"category,omitempty"`
	URL       string    `json:"url,omitempty"`
	FileType  string    `json:"file_type,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Chunk is the atomic retrievable unit.
type Chunk struct {
	ID          string `json:"id"`
	DocumentID  string `json:"document_id"`
	ParsedID    string `json:"parsed_id,omitempty"` // optional parsed artifact
	ImageID     string `json:"image_id,omitempty"`  // optional image
	Page        *int   `json:"page,omitempty"`
	Ordinal     int    `json:"ordinal"`               // unique per document
	Setting     string `json:"setting,omitempty"`     // chunking configuration label
	TokenCount  int    `json:"token_count,omitempty"` // estimate, 0 when unknown
	Text        string `json:"text"`
	Description string `json:"description,omitempty"`

	// Derived on write; ignored on input.
	TextIndex        lexical.Representation `json:"-"`
	DescriptionIndex lexical.Representation `json:"-"`

	// Direct vectors under the store's default model.
	BodyVector        []float32 `json:"body_vector,omitempty"`
	DescriptionVector []float32 `json:"description_vector,omitempty"`

	// Source of the parent document, filled on read.
	Source    string    `json:"source,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Embedding is one vector keyed by (chunk, kind, model).
type Embedding struct {
	ChunkID   string    `json:"chunk_id"`
	Kind      Kind      `json:"kind"`
	Model     string    `json:"model"`
	Dim       int       `json:"dim"`
	Vector    []float32 `json:"vector"`
	CreatedAt time.Time `json:"created_at"`
}

// ModelInfo summarises the embeddings stored for one (model, kind).
type ModelInfo struct {
	Model string `json:"model"`
	Kind  Kind   `json:"kind"`
	Dim   int    `json:"dim"`
	Count int    `json:"count"`
}

// Candidate is a chunk id with a raw relevance score.
type Candidate struct {
	ChunkID string
	Score   float64
}

// DocumentFilter narrows ListDocuments.
type DocumentFilter struct {
	Source   string
	Category string
	Limit    int
}

// Stats summarises store contents.
type Stats struct {
	Documents       int            `json:"documents"`
	Chunks          int            `json:"chunks"`
	Images          int            `json:"images"`
	ParsedArtifacts int            `json:"parsed_artifacts"`
	Embeddings      int            `json:"embeddings"`
	ByCategory      map[string]int `json:"by_category"`
	ByModel         map[string]int `json:"by_model"`
}

// LexicalDoc is what a lexical backend indexes for one chunk.
type LexicalDoc struct {
	ChunkID     string
	DocumentID  string
	Source      string
	Body        lexical.Representation
	Description lexical.Representation
}

// LexicalIndex is a full-text backend. Search returns candidates ordered by
// descending score with scores in [0, 1); non-matching chunks are absent.
type LexicalIndex interface {
	Index(ctx context.Context, docs []*LexicalDoc) error
	Delete(ctx context.Context, chunkIDs []string) error
	Search(ctx context.Context, q *lexical.Query, source string, limit int) ([]Candidate, error)
	Count() (int, error)
	Clear() error
	Close() error
}

// LexicalConfig selects and tunes the lexical backend.
type LexicalConfig struct {
	// Backend is "sqlite" (FTS5, default) or "bleve".
	Backend string `yaml:"backend" json:"backend"`

	// BlevePath is the bleve index directory. Empty keeps it in memory.
	BlevePath string `yaml:"bleve_path" json:"bleve_path"`

	// BodyWeight and DescriptionWeight scale term matches in each field.
	BodyWeight        float64 `yaml:"body_weight" json:"body_weight"`
	DescriptionWeight float64 `yaml:"description_weight" json:"description_weight"`

	Analyzer lexical.Config `yaml:"analyzer" json:"analyzer"`
}

// DefaultLexicalConfig weights description terms above body terms.
func DefaultLexicalConfig() LexicalConfig {
	return LexicalConfig{
		Backend:           BackendSQLite,
		BodyWeight:        1.0,
		DescriptionWeight: 2.0,
		Analyzer:          lexical.DefaultConfig(),
	}
}

// Config configures the SQLite store.
type Config struct {
	// Path is the database file. "" or ":memory:" opens an in-memory store.
	Path string

	// DefaultModel names the model that direct chunk vectors are stored under.
	DefaultModel string

	Lexical LexicalConfig
}

// DefaultModelName is used when Config.DefaultModel is empty.
const DefaultModelName = "default"

// saturate maps a non-negative relevance to [0, 1), keeping order.
func saturate(raw float64) float64 {
	if raw <= 0 {
		return 0
	}
	return raw / (1 + raw)
}
