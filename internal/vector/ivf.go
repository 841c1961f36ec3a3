package vector

import (
	"context"
	"sort"
	"sync"
)

// IVFIndex is an inverted-file index: vectors are partitioned around k-means
// centroids and a query scans only the probe partitions whose centroids are
// closest. Until Train runs, all vectors sit in one partition and search is
// exact.
type IVFIndex struct {
	mu   sync.RWMutex
	dims int
	cfg  IVFConfig

	vectors   map[string][]float32 // normalized
	assign    map[string]int       // id -> partition
	lists     []map[string]struct{}
	centroids [][]float32

	closed bool
}

var (
	_ Index   = (*IVFIndex)(nil)
	_ Trainer = (*IVFIndex)(nil)
)

// NewIVFIndex creates an untrained index.
func NewIVFIndex(dims int, cfg IVFConfig) *IVFIndex {
	if cfg.Lists <= 0 {
		cfg.Lists = 100
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 1
	}
	if cfg.Iterations <= 0 {
		cfg.Iterations = 10
	}
	return &IVFIndex{
		dims:    dims,
		cfg:     cfg,
		vectors: make(map[string][]float32),
		assign:  make(map[string]int),
		lists:   []map[string]struct{}{{}},
	}
}

// Insert adds or replaces id, assigning it to the nearest partition.
func (v *IVFIndex) Insert(id string, vec []float32) error {
	if id == "" {
		return ErrEmptyID
	}
	if err := Validate(vec, v.dims); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return ErrIndexClosed
	}

	v.removeLocked(id)
	n := normalized(vec)
	v.vectors[id] = n
	p := v.nearestPartition(n)
	v.assign[id] = p
	v.lists[p][id] = struct{}{}
	return nil
}

// Remove deletes id from its partition.
func (v *IVFIndex) Remove(id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return ErrIndexClosed
	}
	v.removeLocked(id)
	return nil
}

func (v *IVFIndex) removeLocked(id string) {
	if p, ok := v.assign[id]; ok {
		delete(v.lists[p], id)
		delete(v.assign, id)
	}
	delete(v.vectors, id)
}

// nearestPartition returns 0 while untrained.
func (v *IVFIndex) nearestPartition(vec []float32) int {
	best, bestSim := 0, -2.0
	for i, c := range v.centroids {
		if s := CosineSimilarity(vec, c); s > bestSim {
			best, bestSim = i, s
		}
	}
	return best
}

// Train runs spherical k-means over the stored vectors and reassigns them.
// Centroids are seeded from evenly spaced vectors in id order, so training is
// deterministic for a given set of vectors.
func (v *IVFIndex) Train(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return ErrIndexClosed
	}
	if len(v.vectors) == 0 {
		return nil
	}

	ids := make([]string, 0, len(v.vectors))
	for id := range v.vectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	k := v.cfg.Lists
	if k > len(ids) {
		k = len(ids)
	}

	centroids := make([][]float32, k)
	for i := 0; i < k; i++ {
		src := v.vectors[ids[i*len(ids)/k]]
		centroids[i] = append([]float32(nil), src...)
	}

	assign := make(map[string]int, len(ids))
	for iter := 0; iter < v.cfg.Iterations; iter++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		changed := false
		for _, id := range ids {
			best, bestSim := 0, -2.0
			for c, centroid := range centroids {
				if s := CosineSimilarity(v.vectors[id], centroid); s > bestSim {
					best, bestSim = c, s
				}
			}
			if prev, ok := assign[id]; !ok || prev != best {
				assign[id] = best
				changed = true
			}
		}
		if !changed {
			break
		}

		sums := make([][]float64, k)
		for c := range sums {
			sums[c] = make([]float64, v.dims)
		}
		counts := make([]int, k)
		for _, id := range ids {
			c := assign[id]
			counts[c]++
			for d, x := range v.vectors[id] {
				sums[c][d] += float64(x)
			}
		}
		for c := range centroids {
			// Empty partitions keep their previous centroid.
			if counts[c] == 0 {
				continue
			}
			mean := make([]float32, v.dims)
			for d := range mean {
				mean[d] = float32(sums[c][d] / float64(counts[c]))
			}
			if magnitude(mean) > 0 {
				centroids[c] = normalized(mean)
			}
		}
	}

	lists := make([]map[string]struct{}, k)
	for c := range lists {
		lists[c] = make(map[string]struct{})
	}
	for _, id := range ids {
		lists[assign[id]][id] = struct{}{}
	}

	v.centroids = centroids
	v.assign = assign
	v.lists = lists
	return nil
}

// Trained reports whether partitions exist.
func (v *IVFIndex) Trained() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.centroids) > 0
}

// Search scans the probe partitions nearest to query.
func (v *IVFIndex) Search(ctx context.Context, query []float32, k, probe int) ([]Neighbor, error) {
	if err := Validate(query, v.dims); err != nil {
		return nil, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.closed {
		return nil, ErrIndexClosed
	}
	if k <= 0 || len(v.vectors) == 0 {
		return []Neighbor{}, nil
	}

	q := normalized(query)

	if probe <= 0 {
		probe = v.cfg.Probes
	}
	partitions := v.closestPartitions(q, probe)

	var out []Neighbor
	for _, p := range partitions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for id := range v.lists[p] {
			out = append(out, Neighbor{ID: id, Similarity: CosineSimilarity(q, v.vectors[id])})
		}
	}
	if out == nil {
		return []Neighbor{}, nil
	}

	return sortNeighbors(out, k), nil
}

func (v *IVFIndex) closestPartitions(q []float32, probe int) []int {
	if len(v.centroids) == 0 {
		return []int{0}
	}
	type scored struct {
		idx int
		sim float64
	}
	all := make([]scored, len(v.centroids))
	for i, c := range v.centroids {
		all[i] = scored{idx: i, sim: CosineSimilarity(q, c)}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].sim != all[j].sim {
			return all[i].sim > all[j].sim
		}
		return all[i].idx < all[j].idx
	})
	if probe > len(all) {
		probe = len(all)
	}
	out := make([]int, probe)
	for i := range out {
		out[i] = all[i].idx
	}
	return out
}

// Len returns the number of vectors.
func (v *IVFIndex) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.vectors)
}

// Dimensions returns the accepted vector length.
func (v *IVFIndex) Dimensions() int {
	return v.dims
}

// Close releases the partitions.
func (v *IVFIndex) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.closed = true
	v.vectors = nil
	v.assign = nil
	v.lists = nil
	v.centroids = nil
	return nil
}
