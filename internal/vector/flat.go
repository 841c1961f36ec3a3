package vector

import (
	"context"
	"sync"
)

// FlatIndex is an exact brute-force index. It scans every vector per query,
// which is the right choice for small corpora and the reference for recall
// measurements of the approximate indexes.
type FlatIndex struct {
	mu      sync.RWMutex
	dims    int
	vectors map[string][]float32
	closed  bool
}

var _ Index = (*FlatIndex)(nil)

// NewFlatIndex creates an empty exact index.
func NewFlatIndex(dims int) *FlatIndex {
	return &FlatIndex{
		dims:    dims,
		vectors: make(map[string][]float32),
	}
}

// Insert adds or replaces id.
func (f *FlatIndex) Insert(id string, vec []float32) error {
	if id == "" {
		return ErrEmptyID
	}
	if err := Validate(vec, f.dims); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrIndexClosed
	}
	f.vectors[id] = normalized(vec)
	return nil
}

// Remove deletes id.
func (f *FlatIndex) Remove(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrIndexClosed
	}
	delete(f.vectors, id)
	return nil
}

// Search scans every vector. probe is ignored.
func (f *FlatIndex) Search(ctx context.Context, query []float32, k, _ int) ([]Neighbor, error) {
	if err := Validate(query, f.dims); err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, ErrIndexClosed
	}
	if k <= 0 || len(f.vectors) == 0 {
		return []Neighbor{}, nil
	}

	q := normalized(query)
	out := make([]Neighbor, 0, len(f.vectors))
	scanned := 0
	for id, vec := range f.vectors {
		scanned++
		if scanned%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		out = append(out, Neighbor{ID: id, Similarity: CosineSimilarity(q, vec)})
	}

	return sortNeighbors(out, k), nil
}

// Len returns the number of vectors.
func (f *FlatIndex) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vectors)
}

// Dimensions returns the accepted vector length.
func (f *FlatIndex) Dimensions() int {
	return f.dims
}

// Close releases the vectors.
func (f *FlatIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	f.vectors = nil
	return nil
}
