package registry

import (
	"context"
	"fmt"

	"github.com/Aman-CERP/ragsearch/internal/store"
	"github.com/Aman-CERP/ragsearch/internal/vector"
)

// VectorQuery is a similarity search against one model's index.
type VectorQuery struct {
	// Model selects the index. Empty uses the default model.
	Model string

	// VectorModel names the model that produced Vector, when known. It must
	// equal Model.
	VectorModel string

	Kind   store.Kind
	Vector []float32

	// Threshold keeps only similarity strictly above it. Nil keeps everything.
	Threshold *float64

	Limit int

	// Probe is the index recall/latency budget; 0 uses the configured default.
	Probe int

	// Source restricts hits to chunks of documents with this source.
	Source string
}

// Hit is a hydrated vector search result.
type Hit struct {
	Chunk      *store.Chunk
	Similarity float64
}

// Search returns up to q.Limit chunks ordered by descending similarity, ties
// broken by ascending chunk id. Chunks without a vector for the model never
// appear. When a source filter drops neighbours the index is asked for twice
// as many until enough survive or the index has nothing more to give.
func (r *Registry) Search(ctx context.Context, q VectorQuery) ([]Hit, error) {
	model := q.Model
	if model == "" {
		model = r.cfg.DefaultModel
	}
	if q.VectorModel != "" && q.VectorModel != model {
		return nil, fmt.Errorf("%w: vector from %q, index %q", ErrCrossModel, q.VectorModel, model)
	}

	idx, err := r.Index(model, q.Kind)
	if err != nil {
		return nil, err
	}
	if q.Limit <= 0 {
		return []Hit{}, nil
	}

	fetch := q.Limit
	for {
		neighbors, err := idx.Search(ctx, q.Vector, fetch, q.Probe)
		if err != nil {
			return nil, err
		}

		cut := len(neighbors)
		if q.Threshold != nil {
			for i, n := range neighbors {
				if n.Similarity <= *q.Threshold {
					cut = i
					break
				}
			}
		}

		hits, err := r.hydrate(ctx, neighbors[:cut], q.Source)
		if err != nil {
			return nil, err
		}

		exhausted := len(neighbors) < fetch || cut < len(neighbors) || fetch >= idx.Len()
		if len(hits) >= q.Limit || exhausted {
			if len(hits) > q.Limit {
				hits = hits[:q.Limit]
			}
			return hits, nil
		}
		fetch *= 2
	}
}

// hydrate loads the chunks behind neighbours, keeping their order. Neighbours
// whose chunk is gone, or whose source does not match, are dropped.
func (r *Registry) hydrate(ctx context.Context, neighbors []vector.Neighbor, source string) ([]Hit, error) {
	if len(neighbors) == 0 {
		return []Hit{}, nil
	}
	ids := make([]string, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.ID
	}
	chunks, err := r.src.GetChunks(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*store.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	hits := make([]Hit, 0, len(neighbors))
	for _, n := range neighbors {
		c, ok := byID[n.ID]
		if !ok {
			continue
		}
		if source != "" && c.Source != source {
			continue
		}
		hits = append(hits, Hit{Chunk: c, Similarity: n.Similarity})
	}
	return hits, nil
}
