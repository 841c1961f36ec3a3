// Package vector provides approximate nearest-neighbour indexes over cosine
// distance.
//
// Every index implements Index, so the search engine never depends on a
// concrete structure. Search takes a probe budget, the per-query
// recall/latency knob:
//
//	HNSWIndex  probe = efSearch, the candidate list width. Larger is slower and
//	           finds more true neighbours. 0 uses Config.HNSW.EfSearch.
//	IVFIndex   probe = number of partitions scanned (nprobe). Scanning every
//	           partition is exact. 0 uses Config.IVF.Probes.
//	FlatIndex  exact brute force. probe is ignored.
//
// Similarity is 1 - cosine distance, so it lies in [-1, 1].
package vector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Index kinds accepted by Config.Type.
const (
	TypeHNSW = "hnsw"
	TypeIVF  = "ivf"
	TypeFlat = "flat"
)

var (
	// ErrIndexClosed is returned by operations on a closed index.
	ErrIndexClosed = errors.New("vector index is closed")

	// ErrZeroVector is returned for all-zero vectors, whose cosine is undefined.
	ErrZeroVector = errors.New("vector has zero magnitude")

	// ErrEmptyID is returned when inserting without an identifier.
	ErrEmptyID = errors.New("vector id is empty")
)

// DimensionMismatchError reports a vector whose length differs from the index.
type DimensionMismatchError struct {
	Expected int
	Got      int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: index expects %d, got %d", e.Expected, e.Got)
}

// Neighbor is one search hit.
type Neighbor struct {
	ID         string
	Similarity float64 // 1 - cosine distance
}

// Distance returns the cosine distance, in [0, 2].
func (n Neighbor) Distance() float64 {
	return 1 - n.Similarity
}

// Index is an approximate nearest-neighbour index over cosine distance.
// Implementations are safe for concurrent use.
type Index interface {
	// Insert adds or replaces the vector stored under id.
	Insert(id string, vec []float32) error

	// Remove deletes id. Removing an unknown id is not an error.
	Remove(id string) error

	// Search returns up to k neighbours of query ordered by descending
	// similarity, ties broken by ascending id. probe is the recall/latency
	// budget described in the package documentation; 0 selects the default.
	Search(ctx context.Context, query []float32, k, probe int) ([]Neighbor, error)

	// Len returns the number of live vectors.
	Len() int

	// Dimensions returns the vector length the index accepts.
	Dimensions() int

	// Close releases resources. Further calls fail with ErrIndexClosed.
	Close() error
}

// Trainer is implemented by indexes that need a build step after bulk loading.
type Trainer interface {
	Train(ctx context.Context) error
}

// HNSWConfig tunes the HNSW graph.
type HNSWConfig struct {
	// M is the maximum neighbours per node.
	M int `yaml:"m" json:"m"`

	// EfSearch is the default candidate list width per query.
	EfSearch int `yaml:"ef_search" json:"ef_search"`
}

// IVFConfig tunes the inverted-file index.
type IVFConfig struct {
	// Lists is the number of k-means partitions.
	Lists int `yaml:"lists" json:"lists"`

	// Probes is the default number of partitions scanned per query.
	Probes int `yaml:"probes" json:"probes"`

	// Iterations bounds k-means refinement rounds.
	Iterations int `yaml:"iterations" json:"iterations"`
}

// Config selects and tunes an index.
type Config struct {
	// Type is "hnsw", "ivf" or "flat".
	Type string `yaml:"type" json:"type"`

	// Dimensions is the accepted vector length. Set per model by the registry.
	Dimensions int `yaml:"-" json:"-"`

	HNSW HNSWConfig `yaml:"hnsw" json:"hnsw"`
	IVF  IVFConfig  `yaml:"ivf" json:"ivf"`
}

// DefaultConfig returns HNSW with coder/hnsw's recommended parameters and IVF
// settings matching a pgvector ivfflat default build.
func DefaultConfig() Config {
	return Config{
		Type: TypeHNSW,
		HNSW: HNSWConfig{
			M:        16,
			EfSearch: 64,
		},
		IVF: IVFConfig{
			Lists:      100,
			Probes:     10,
			Iterations: 10,
		},
	}
}

// New creates an empty index of cfg.Type.
func New(cfg Config) (Index, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("invalid dimensions %d: must be positive", cfg.Dimensions)
	}
	switch strings.ToLower(cfg.Type) {
	case "", TypeHNSW:
		return NewHNSWIndex(cfg.Dimensions, cfg.HNSW), nil
	case TypeIVF:
		return NewIVFIndex(cfg.Dimensions, cfg.IVF), nil
	case TypeFlat:
		return NewFlatIndex(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown vector index type %q (valid: hnsw, ivf, flat)", cfg.Type)
	}
}

// Validate checks that vec has dims elements and a non-zero magnitude.
func Validate(vec []float32, dims int) error {
	if len(vec) != dims {
		return &DimensionMismatchError{Expected: dims, Got: len(vec)}
	}
	if magnitude(vec) == 0 {
		return ErrZeroVector
	}
	return nil
}

func magnitude(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// normalized returns a unit-length copy of vec.
func normalized(vec []float32) []float32 {
	out := make([]float32, len(vec))
	m := magnitude(vec)
	if m == 0 {
		return out
	}
	for i, v := range vec {
		out[i] = float32(float64(v) / m)
	}
	return out
}

// CosineSimilarity returns 1 - cosine distance between a and b, computed in
// float64. Zero vectors have similarity 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	// Rounding can push |sim| marginally past 1.
	return math.Max(-1, math.Min(1, sim))
}

// sortNeighbors orders by descending similarity then ascending id, and
// truncates to k.
func sortNeighbors(ns []Neighbor, k int) []Neighbor {
	sort.Slice(ns, func(i, j int) bool {
		if ns[i].Similarity != ns[j].Similarity {
			return ns[i].Similarity > ns[j].Similarity
		}
		return ns[i].ID < ns[j].ID
	})
	if k >= 0 && len(ns) > k {
		ns = ns[:k]
	}
	return ns
}
