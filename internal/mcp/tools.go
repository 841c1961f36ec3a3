package mcp

import (
	"github.com/Aman-CERP/ragsearch/internal/registry"
	"github.com/Aman-CERP/ragsearch/internal/search"
	"github.com/Aman-CERP/ragsearch/internal/store"
)

// SearchTextInput is the input schema for search_text.
type SearchTextInput struct {
	Query  string `json:"query" jsonschema:"web-search style query: words, \"phrases\", OR, -exclusions"`
	Source string `json:"source,omitempty" jsonschema:"only return chunks of documents with this source"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

// SearchVectorInput is the input schema for search_vector.
type SearchVectorInput struct {
	Vector      []float32 `json:"vector" jsonschema:"query embedding"`
	Model       string    `json:"model,omitempty" jsonschema:"index to search; default model when empty"`
	VectorModel string    `json:"vector_model,omitempty" jsonschema:"model that produced the vector; rejected if it differs from model"`
	Kind        string    `json:"kind,omitempty" jsonschema:"which chunk field was embedded: body (default) or description"`
	Threshold   *float64  `json:"threshold,omitempty" jsonschema:"only return similarity strictly above this value in [0,1]"`
	Probe       int       `json:"probe,omitempty" jsonschema:"recall/latency budget: HNSW ef_search or IVF lists probed; 0 uses the configured default"`
	Source      string    `json:"source,omitempty" jsonschema:"only return chunks of documents with this source"`
	Limit       int       `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

// SearchHybridInput is the input schema for search_hybrid.
type SearchHybridInput struct {
	Query        string    `json:"query" jsonschema:"web-search style query"`
	Vector       []float32 `json:"vector" jsonschema:"query embedding"`
	Model        string    `json:"model,omitempty" jsonschema:"index to search; default model when empty"`
	VectorModel  string    `json:"vector_model,omitempty" jsonschema:"model that produced the vector; rejected if it differs from model"`
	Kind         string    `json:"kind,omitempty" jsonschema:"body (default) or description"`
	Probe        int       `json:"probe,omitempty" jsonschema:"recall/latency budget of the vector index; 0 uses the configured default"`
	TextWeight   *float64  `json:"text_weight,omitempty" jsonschema:"weight of the lexical score, >= 0"`
	VectorWeight *float64  `json:"vector_weight,omitempty" jsonschema:"weight of the vector similarity, >= 0"`
	Source       string    `json:"source,omitempty" jsonschema:"only return chunks of documents with this source"`
	Limit        int       `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	AllowDegrade bool      `json:"allow_degrade,omitempty" jsonschema:"fall back to text-only ranking if vector search fails"`
}

// SearchOutput is the output schema of the search tools.
type SearchOutput struct {
	Results        []ResultOutput `json:"results" jsonschema:"results ordered by descending score"`
	Degraded       bool           `json:"degraded,omitempty" jsonschema:"true if vector search failed and results are text-only"`
	DegradedReason string         `json:"degraded_reason,omitempty"`
}

// ResultOutput is one ranked chunk.
type ResultOutput struct {
	ChunkID     string   `json:"chunk_id"`
	DocumentID  string   `json:"document_id"`
	Source      string   `json:"source,omitempty"`
	Text        string   `json:"text"`
	Description string   `json:"description,omitempty"`
	Score       float64  `json:"score" jsonschema:"relevance score"`
	TextScore   *float64 `json:"text_score,omitempty" jsonschema:"lexical component of a hybrid score"`
	VectorScore *float64 `json:"vector_score,omitempty" jsonschema:"vector component of a hybrid score"`
	MatchedIn   string   `json:"matched_in,omitempty" jsonschema:"text, vector or both"`
}

// StatsInput is the input schema for stats (no parameters).
type StatsInput struct{}

// StatsOutput is the output schema for stats.
type StatsOutput struct {
	Store   *store.Stats    `json:"store"`
	Indexes []registry.Info `json:"indexes"`
}

func toResults(results []search.ScoredChunk, hybrid bool) []ResultOutput {
	out := make([]ResultOutput, 0, len(results))
	for _, r := range results {
		o := ResultOutput{
			ChunkID:     r.ChunkID,
			DocumentID:  r.DocumentID,
			Source:      r.Source,
			Text:        r.Text,
			Description: r.Description,
			Score:       r.Score,
		}
		if hybrid {
			ts, vs := r.TextScore, r.VectorScore
			o.TextScore, o.VectorScore = &ts, &vs
			o.MatchedIn = r.MatchedIn
		}
		out = append(out, o)
	}
	return out
}
