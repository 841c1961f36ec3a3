package vector

import (
	"context"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWIndex implements Index with a coder/hnsw graph (pure Go).
type HNSWIndex struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]
	dims  int
	cfg   HNSWConfig

	// ID mapping (string <-> uint64)
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	closed bool
}

var _ Index = (*HNSWIndex)(nil)

// NewHNSWIndex creates an empty graph index.
func NewHNSWIndex(dims int, cfg HNSWConfig) *HNSWIndex {
	if cfg.M <= 0 {
		cfg.M = 16
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &HNSWIndex{
		graph:  graph,
		dims:   dims,
		cfg:    cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}
}

// Insert adds or replaces id. Replaced nodes are orphaned rather than deleted
// from the graph; coder/hnsw can corrupt its entry point when the last node of
// a layer is deleted.
func (h *HNSWIndex) Insert(id string, vec []float32) error {
	if id == "" {
		return ErrEmptyID
	}
	if err := Validate(vec, h.dims); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrIndexClosed
	}

	if existing, ok := h.idMap[id]; ok {
		delete(h.keyMap, existing)
		delete(h.idMap, id)
	}

	key := h.nextKey
	h.nextKey++

	h.graph.Add(hnsw.MakeNode(key, normalized(vec)))
	h.idMap[id] = key
	h.keyMap[key] = id
	return nil
}

// Remove orphans id's node.
func (h *HNSWIndex) Remove(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrIndexClosed
	}
	if key, ok := h.idMap[id]; ok {
		delete(h.keyMap, key)
		delete(h.idMap, id)
	}
	return nil
}

// Search walks the graph with a candidate list of width probe (efSearch).
func (h *HNSWIndex) Search(ctx context.Context, query []float32, k, probe int) ([]Neighbor, error) {
	if err := Validate(query, h.dims); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// EfSearch lives on the shared graph, so a non-default probe needs the
	// write lock for the duration of the walk.
	custom := probe > 0 && probe != h.cfg.EfSearch
	if custom {
		h.mu.Lock()
		defer h.mu.Unlock()
	} else {
		h.mu.RLock()
		defer h.mu.RUnlock()
	}

	if h.closed {
		return nil, ErrIndexClosed
	}
	if k <= 0 || len(h.idMap) == 0 {
		return []Neighbor{}, nil
	}

	if custom {
		h.graph.EfSearch = probe
		defer func() { h.graph.EfSearch = h.cfg.EfSearch }()
	}

	q := normalized(query)

	// Orphans still occupy result slots; ask for enough to cover them.
	orphans := h.graph.Len() - len(h.idMap)
	want := k + orphans
	if want > h.graph.Len() {
		want = h.graph.Len()
	}

	nodes := h.graph.Search(q, want)
	out := make([]Neighbor, 0, len(nodes))
	for _, node := range nodes {
		id, ok := h.keyMap[node.Key]
		if !ok {
			continue
		}
		out = append(out, Neighbor{ID: id, Similarity: CosineSimilarity(q, node.Value)})
	}

	return sortNeighbors(out, k), nil
}

// Len returns the number of live vectors.
func (h *HNSWIndex) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.idMap)
}

// Orphans returns graph nodes no longer mapped to an id.
func (h *HNSWIndex) Orphans() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0
	}
	return h.graph.Len() - len(h.idMap)
}

// Dimensions returns the accepted vector length.
func (h *HNSWIndex) Dimensions() int {
	return h.dims
}

// Close drops the graph.
func (h *HNSWIndex) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	h.graph = hnsw.NewGraph[uint64]()
	h.idMap = map[string]uint64{}
	h.keyMap = map[uint64]string{}
	return nil
}
