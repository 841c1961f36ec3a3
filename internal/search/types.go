// Package search ranks chunks by lexical relevance, vector similarity, or a
// weighted sum of both.
//
// Hybrid fusion is a full outer join of the two candidate lists on chunk id.
// A chunk missing from one list scores 0 there, so
//
//	combined = text*TextWeight + vector*VectorWeight
//
// Results are sorted by combined score descending, ties by chunk id ascending.
package search

import (
	"time"

	"github.com/Aman-CERP/ragsearch/internal/store"
)

// ScoredChunk is one search result.
type ScoredChunk struct {
	ChunkID     string  `json:"chunk_id"`
	DocumentID  string  `json:"document_id"`
	Source      string  `json:"source,omitempty"`
	Text        string  `json:"text"`
	Description string  `json:"description,omitempty"`
	Score       float64 `json:"score"`

	// Hybrid only: the two contributions before weighting.
	TextScore   float64 `json:"text_score,omitempty"`
	VectorScore float64 `json:"vector_score,omitempty"`
	MatchedIn   string  `json:"matched_in,omitempty"`
}

// Values of ScoredChunk.MatchedIn.
const (
	MatchedText   = "text"
	MatchedVector = "vector"
	MatchedBoth   = "both"
)

// Response wraps hybrid results with the degraded-mode signal.
type Response struct {
	Results []ScoredChunk `json:"results"`

	// Degraded is set when the vector leg failed and the caller allowed
	// text-only ranking. Reason carries the vector error.
	Degraded bool   `json:"degraded,omitempty"`
	Reason   string `json:"degraded_reason,omitempty"`
}

// Weights are the fusion coefficients. Both must be >= 0.
type Weights struct {
	Text   float64 `yaml:"text" json:"text"`
	Vector float64 `yaml:"vector" json:"vector"`
}

// DefaultWeights weights both legs equally.
func DefaultWeights() Weights {
	return Weights{Text: 0.5, Vector: 0.5}
}

// TextQuery is a lexical search.
type TextQuery struct {
	Query  string
	Source string
	Limit  int
}

// VectorQuery is a similarity search over one model's index.
type VectorQuery struct {
	Vector      []float32
	Model       string // empty uses the default model
	VectorModel string // model that produced Vector, when known
	Kind        store.Kind

	// Threshold keeps similarity strictly above it, in [0, 1]. Nil keeps all.
	Threshold *float64

	Source string
	Limit  int
	Probe  int
}

// HybridQuery fuses a lexical and a vector search.
type HybridQuery struct {
	Query       string
	Vector      []float32
	Model       string
	VectorModel string
	Kind        store.Kind
	Source      string
	Limit       int
	Probe       int

	// Weights overrides Config.DefaultWeights.
	Weights *Weights

	// VectorThreshold filters the vector leg. Nil applies none.
	VectorThreshold *float64

	// Degraded allows falling back to text-only ranking when the vector leg
	// fails for reasons other than a bad request.
	Degraded bool
}

// Config configures the engine.
type Config struct {
	DefaultLimit   int     `yaml:"default_limit" json:"default_limit"`
	MaxLimit       int     `yaml:"max_limit" json:"max_limit"`
	DefaultWeights Weights `yaml:"weights" json:"weights"`

	// OverFetch multiplies the final limit for each hybrid leg.
	OverFetch int `yaml:"over_fetch" json:"over_fetch"`

	// TextTimeout and VectorTimeout bound each leg independently.
	TextTimeout   time.Duration `yaml:"text_timeout" json:"text_timeout"`
	VectorTimeout time.Duration `yaml:"vector_timeout" json:"vector_timeout"`

	// MaxQueryLength bounds the raw query string in bytes.
	MaxQueryLength int `yaml:"max_query_length" json:"max_query_length"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		DefaultLimit:   10,
		MaxLimit:       100,
		DefaultWeights: DefaultWeights(),
		OverFetch:      4,
		TextTimeout:    5 * time.Second,
		VectorTimeout:  5 * time.Second,
		MaxQueryLength: 1000,
	}
}
