// Package registry keeps one vector index per (model, kind) so embeddings from
// several models, of different dimensions, coexist and are searched one model at
// a time.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/Aman-CERP/ragsearch/internal/store"
	"github.com/Aman-CERP/ragsearch/internal/vector"
)

// ErrCrossModel is returned when a query vector produced by one model is
// searched against another model's index.
var ErrCrossModel = errors.New("query vector and index belong to different models")

// ModelNotFoundError reports a model with no indexed vectors of the requested kind.
type ModelNotFoundError struct {
	Model string
	Kind  store.Kind
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("no %s vectors indexed for model %q", e.Kind, e.Model)
}

// Store is the persistence the registry reads from and writes through to.
type Store interface {
	Models(ctx context.Context) ([]store.ModelInfo, error)
	ScanEmbeddings(ctx context.Context, model string, kind store.Kind, fn func(chunkID string, vec []float32) error) error
	PutEmbedding(ctx context.Context, e *store.Embedding) error
	GetEmbedding(ctx context.Context, chunkID string, kind store.Kind, model string) (*store.Embedding, error)
	DeleteModel(ctx context.Context, model string) (int, error)
	GetChunks(ctx context.Context, ids []string) ([]*store.Chunk, error)
}

// Key identifies one index.
type Key struct {
	Model string
	Kind  store.Kind
}

func (k Key) String() string {
	return k.Model + "/" + string(k.Kind)
}

// Info describes a live index.
type Info struct {
	Model string     `json:"model"`
	Kind  store.Kind `json:"kind"`
	Dim   int        `json:"dim"`
	Len   int        `json:"len"`
	Type  string     `json:"type"`
}

// Config configures the registry.
type Config struct {
	// Index is the template for every index; Dimensions is set per model.
	Index vector.Config

	// DefaultModel is searched when a query names no model.
	DefaultModel string

	// Workers bounds concurrent index builds. 0 uses GOMAXPROCS.
	Workers int
}

// DefaultConfig returns a registry config over the default vector index.
func DefaultConfig() Config {
	return Config{
		Index:        vector.DefaultConfig(),
		DefaultModel: store.DefaultModelName,
	}
}

// Registry holds the live indexes. It is safe for concurrent use.
type Registry struct {
	src  Store
	cfg  Config
	pool *ants.Pool

	// loadMu serialises builds; mu guards indexes.
	loadMu  sync.Mutex
	mu      sync.RWMutex
	indexes map[Key]vector.Index
	loaded  time.Time
	closed  bool
}

// New creates an empty registry. Call Load to build indexes from src.
func New(src Store, cfg Config) (*Registry, error) {
	if src == nil {
		return nil, fmt.Errorf("registry store is nil")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = store.DefaultModelName
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create build pool: %w", err)
	}
	return &Registry{
		src:     src,
		cfg:     cfg,
		pool:    pool,
		indexes: make(map[Key]vector.Index),
	}, nil
}

// Load builds every (model, kind) index from the store and swaps them in
// together. Searches keep using the previous set until the swap.
func (r *Registry) Load(ctx context.Context) error {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	start := time.Now()
	models, err := r.src.Models(ctx)
	if err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		built    = make(map[Key]vector.Index, len(models))
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	for _, m := range models {
		m := m
		wg.Add(1)
		err := r.pool.Submit(func() {
			defer wg.Done()
			idx, err := r.build(ctx, m)
			if err != nil {
				fail(err)
				return
			}
			mu.Lock()
			built[Key{Model: m.Model, Kind: m.Kind}] = idx
			mu.Unlock()
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("failed to schedule build of %s/%s: %w", m.Model, m.Kind, err))
		}
	}
	wg.Wait()

	if firstErr != nil {
		for _, idx := range built {
			_ = idx.Close()
		}
		return firstErr
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		for _, idx := range built {
			_ = idx.Close()
		}
		return vector.ErrIndexClosed
	}
	// In-flight searches may still hold the old indexes; they are left to the GC.
	r.indexes = built
	r.loaded = time.Now()
	r.mu.Unlock()

	slog.Info("vector_indexes_loaded",
		slog.Int("indexes", len(built)),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// Reload rebuilds all indexes. It is Load under the name callers use after
// the indexing pipeline has written new embeddings.
func (r *Registry) Reload(ctx context.Context) error {
	return r.Load(ctx)
}

func (r *Registry) build(ctx context.Context, m store.ModelInfo) (vector.Index, error) {
	cfg := r.cfg.Index
	cfg.Dimensions = m.Dim
	idx, err := vector.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("model %s/%s: %w", m.Model, m.Kind, err)
	}

	err = r.src.ScanEmbeddings(ctx, m.Model, m.Kind, func(id string, vec []float32) error {
		return idx.Insert(id, vec)
	})
	if err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("failed to build index %s/%s: %w", m.Model, m.Kind, err)
	}

	if t, ok := idx.(vector.Trainer); ok {
		if err := t.Train(ctx); err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("failed to train index %s/%s: %w", m.Model, m.Kind, err)
		}
	}

	slog.Debug("vector_index_built",
		slog.String("model", m.Model),
		slog.String("kind", string(m.Kind)),
		slog.Int("dim", m.Dim),
		slog.Int("vectors", idx.Len()))
	return idx, nil
}

// Put stores e and adds it to the live index of its model, creating that
// index on first use.
func (r *Registry) Put(ctx context.Context, e *store.Embedding) error {
	if err := r.src.PutEmbedding(ctx, e); err != nil {
		return err
	}

	key := Key{Model: e.Model, Kind: e.Kind}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return vector.ErrIndexClosed
	}
	idx, ok := r.indexes[key]
	if !ok {
		cfg := r.cfg.Index
		cfg.Dimensions = e.Dim
		created, err := vector.New(cfg)
		if err != nil {
			return err
		}
		// Copy on write: a concurrent Load swaps the whole map.
		next := make(map[Key]vector.Index, len(r.indexes)+1)
		for k, v := range r.indexes {
			next[k] = v
		}
		next[key] = created
		r.indexes = next
		idx = created
	}
	return idx.Insert(e.ChunkID, e.Vector)
}

// Get returns one stored embedding by primary key.
func (r *Registry) Get(ctx context.Context, chunkID string, kind store.Kind, model string) (*store.Embedding, error) {
	if model == "" {
		model = r.cfg.DefaultModel
	}
	return r.src.GetEmbedding(ctx, chunkID, kind, model)
}

// Prune deletes every embedding of model and drops its indexes.
func (r *Registry) Prune(ctx context.Context, model string) (int, error) {
	n, err := r.src.DeleteModel(ctx, model)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	next := make(map[Key]vector.Index, len(r.indexes))
	for k, v := range r.indexes {
		if k.Model != model {
			next[k] = v
		}
	}
	r.indexes = next
	r.mu.Unlock()

	slog.Info("model_pruned", slog.String("model", model), slog.Int("embeddings", n))
	return n, nil
}

// Index returns the live index for (model, kind).
func (r *Registry) Index(model string, kind store.Kind) (vector.Index, error) {
	if model == "" {
		model = r.cfg.DefaultModel
	}
	if kind == "" {
		kind = store.KindBody
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, vector.ErrIndexClosed
	}
	idx, ok := r.indexes[Key{Model: model, Kind: kind}]
	if !ok || idx.Len() == 0 {
		return nil, &ModelNotFoundError{Model: model, Kind: kind}
	}
	return idx, nil
}

// Models describes the live indexes ordered by model then kind.
func (r *Registry) Models() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info, 0, len(r.indexes))
	for k, idx := range r.indexes {
		out = append(out, Info{
			Model: k.Model,
			Kind:  k.Kind,
			Dim:   idx.Dimensions(),
			Len:   idx.Len(),
			Type:  r.cfg.Index.Type,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Model != out[j].Model {
			return out[i].Model < out[j].Model
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// LoadedAt returns when the current index set was built.
func (r *Registry) LoadedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// DefaultModel returns the model searched when a query names none.
func (r *Registry) DefaultModel() string {
	return r.cfg.DefaultModel
}

// Close releases the build pool and every index.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.pool.Release()

	var errs []error
	for _, idx := range r.indexes {
		if err := idx.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.indexes = nil
	return errors.Join(errs...)
}
