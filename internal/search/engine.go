package search

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/ragsearch/internal/lexical"
	"github.com/Aman-CERP/ragsearch/internal/registry"
	"github.com/Aman-CERP/ragsearch/internal/store"
)

// ChunkStore is what the engine reads from the chunk store.
type ChunkStore interface {
	LexicalCandidates(ctx context.Context, q *lexical.Query, source string, limit int) ([]store.Candidate, error)
	GetChunks(ctx context.Context, ids []string) ([]*store.Chunk, error)
}

// VectorSearcher answers similarity searches. *registry.Registry implements it.
type VectorSearcher interface {
	Search(ctx context.Context, q registry.VectorQuery) ([]registry.Hit, error)
}

// Engine runs text, vector and hybrid searches. It keeps no state between
// calls, so concurrent searches need no coordination.
type Engine struct {
	chunks  ChunkStore
	vectors VectorSearcher
	parser  *lexical.Parser
	config  Config
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithParser sets the query parser. The default parser uses the default
// analyzer, which must match the one the store indexes with.
func WithParser(p *lexical.Parser) EngineOption {
	return func(e *Engine) {
		if p != nil {
			e.parser = p
		}
	}
}

// NewEngine creates a search engine.
func NewEngine(chunks ChunkStore, vectors VectorSearcher, config Config, opts ...EngineOption) (*Engine, error) {
	if chunks == nil {
		return nil, fmt.Errorf("%w: chunk store is required", ErrNilDependency)
	}
	if vectors == nil {
		return nil, fmt.Errorf("%w: vector searcher is required", ErrNilDependency)
	}
	e := &Engine{
		chunks:  chunks,
		vectors: vectors,
		parser:  lexical.NewParser(lexical.NewAnalyzer(lexical.DefaultConfig()), lexical.DefaultCacheSize),
		config:  withDefaults(config),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func withDefaults(c Config) Config {
	def := DefaultConfig()
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = def.DefaultLimit
	}
	if c.MaxLimit <= 0 {
		c.MaxLimit = def.MaxLimit
	}
	if c.DefaultWeights == (Weights{}) {
		c.DefaultWeights = def.DefaultWeights
	}
	if c.OverFetch < 1 {
		c.OverFetch = def.OverFetch
	}
	if c.TextTimeout <= 0 {
		c.TextTimeout = def.TextTimeout
	}
	if c.VectorTimeout <= 0 {
		c.VectorTimeout = def.VectorTimeout
	}
	if c.MaxQueryLength <= 0 {
		c.MaxQueryLength = def.MaxQueryLength
	}
	return c
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.config
}

func (e *Engine) limit(n int) int {
	if n <= 0 {
		n = e.config.DefaultLimit
	}
	if n > e.config.MaxLimit {
		return e.config.MaxLimit
	}
	return n
}

// SearchText ranks chunks by lexical relevance. An empty or all-stop-word
// query returns no results.
func (e *Engine) SearchText(ctx context.Context, q TextQuery) (results []ScoredChunk, err error) {
	start := time.Now()
	defer func() { e.observe(ModeText, start, len(results), err) }()

	parsed, err := e.parse(q.Query)
	if err != nil {
		return nil, err
	}
	limit := e.limit(q.Limit)

	cands, err := e.textLeg(ctx, parsed, q.Source, limit)
	if err != nil {
		return nil, err
	}

	fused := make([]Fused, len(cands))
	for i, c := range cands {
		fused[i] = Fused{ChunkID: c.ChunkID, Score: c.Score}
	}
	return e.hydrate(ctx, fused, nil, limit, false)
}

// SearchVector ranks chunks by similarity to q.Vector within one model.
func (e *Engine) SearchVector(ctx context.Context, q VectorQuery) (results []ScoredChunk, err error) {
	start := time.Now()
	defer func() { e.observe(ModeVector, start, len(results), err) }()

	if err := validateVector(q.Vector, q.Threshold); err != nil {
		return nil, err
	}
	limit := e.limit(q.Limit)

	hits, err := e.vectorLeg(ctx, registry.VectorQuery{
		Model:       q.Model,
		VectorModel: q.VectorModel,
		Kind:        q.Kind,
		Vector:      q.Vector,
		Threshold:   q.Threshold,
		Limit:       limit,
		Probe:       q.Probe,
		Source:      q.Source,
	})
	if err != nil {
		return nil, err
	}

	results = make([]ScoredChunk, 0, len(hits))
	for _, h := range hits {
		results = append(results, scored(h.Chunk, h.Similarity))
	}
	return results, nil
}

// SearchHybrid runs both legs concurrently, each over-fetching
// Config.OverFetch times the limit under its own deadline, and fuses them.
func (e *Engine) SearchHybrid(ctx context.Context, q HybridQuery) (resp *Response, err error) {
	start := time.Now()
	defer func() {
		n := 0
		if resp != nil {
			n = len(resp.Results)
		}
		e.observe(ModeHybrid, start, n, err)
	}()

	w := e.config.DefaultWeights
	if q.Weights != nil {
		w = *q.Weights
	}
	if err := validateWeights(w); err != nil {
		return nil, err
	}
	if err := validateVector(q.Vector, q.VectorThreshold); err != nil {
		return nil, err
	}
	parsed, err := e.parse(q.Query)
	if err != nil {
		return nil, err
	}

	limit := e.limit(q.Limit)
	fetch := limit * e.config.OverFetch

	var (
		textCands []store.Candidate
		hits      []registry.Hit
		vecErr    error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		textCands, err = e.textLeg(gctx, parsed, q.Source, fetch)
		return err
	})
	g.Go(func() error {
		var err error
		hits, err = e.vectorLeg(gctx, registry.VectorQuery{
			Model:       q.Model,
			VectorModel: q.VectorModel,
			Kind:        q.Kind,
			Vector:      q.Vector,
			Threshold:   q.VectorThreshold,
			Limit:       fetch,
			Probe:       q.Probe,
			Source:      q.Source,
		})
		if err != nil && q.Degraded && !isRequestError(err) && ctx.Err() == nil {
			vecErr = err
			return nil
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	resp = &Response{}
	if vecErr != nil {
		resp.Degraded = true
		resp.Reason = vecErr.Error()
		degradedTotal.Inc()
		slog.Warn("hybrid_search_degraded", slog.String("reason", vecErr.Error()))
	}

	known := make(map[string]*store.Chunk, len(hits))
	vecCands := make([]store.Candidate, len(hits))
	for i, h := range hits {
		known[h.Chunk.ID] = h.Chunk
		vecCands[i] = store.Candidate{ChunkID: h.Chunk.ID, Score: h.Similarity}
	}

	fused := Fuse(textCands, vecCands, w, 0)
	resp.Results, err = e.hydrate(ctx, fused, known, limit, true)
	if err != nil {
		return nil, err
	}

	slog.Debug("hybrid_search",
		slog.Int("text_candidates", len(textCands)),
		slog.Int("vector_candidates", len(vecCands)),
		slog.Int("fused", len(fused)),
		slog.Int("results", len(resp.Results)),
		slog.Duration("duration", time.Since(start)))
	return resp, nil
}

// textLeg runs lexical search under TextTimeout.
func (e *Engine) textLeg(ctx context.Context, q *lexical.Query, source string, limit int) ([]store.Candidate, error) {
	if q.Empty() {
		return []store.Candidate{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, e.config.TextTimeout)
	defer cancel()

	start := time.Now()
	cands, err := e.chunks.LexicalCandidates(ctx, q, source, limit)
	legDuration.WithLabelValues(ModeText).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("text search failed: %w", err)
	}
	return cands, nil
}

// vectorLeg runs vector search under VectorTimeout.
func (e *Engine) vectorLeg(ctx context.Context, q registry.VectorQuery) ([]registry.Hit, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.VectorTimeout)
	defer cancel()

	start := time.Now()
	hits, err := e.vectors.Search(ctx, q)
	legDuration.WithLabelValues(ModeVector).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVectorSearch, err)
	}
	return hits, nil
}

// hydrate attaches chunk content to fused entries, in order, up to limit.
// Entries whose chunk has since been deleted are skipped.
func (e *Engine) hydrate(ctx context.Context, fused []Fused, known map[string]*store.Chunk, limit int, hybrid bool) ([]ScoredChunk, error) {
	var missing []string
	for _, f := range fused {
		if _, ok := known[f.ChunkID]; !ok {
			missing = append(missing, f.ChunkID)
		}
	}
	if len(missing) > 0 {
		chunks, err := e.chunks.GetChunks(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("failed to load chunks: %w", err)
		}
		if known == nil {
			known = make(map[string]*store.Chunk, len(chunks))
		}
		for _, c := range chunks {
			known[c.ID] = c
		}
	}

	results := make([]ScoredChunk, 0, min(limit, len(fused)))
	for _, f := range fused {
		if len(results) == limit {
			break
		}
		c, ok := known[f.ChunkID]
		if !ok {
			continue
		}
		sc := scored(c, f.Score)
		if hybrid {
			sc.TextScore = f.TextScore
			sc.VectorScore = f.VectorScore
			sc.MatchedIn = f.MatchedIn()
		}
		results = append(results, sc)
	}
	return results, nil
}

func (e *Engine) parse(raw string) (*lexical.Query, error) {
	if len(raw) > e.config.MaxQueryLength {
		return nil, fmt.Errorf("%w: %d bytes, max %d", ErrQueryTooLong, len(raw), e.config.MaxQueryLength)
	}
	return e.parser.Parse(raw)
}

func (e *Engine) observe(mode string, start time.Time, n int, err error) {
	searchesTotal.WithLabelValues(mode, statusLabel(err)).Inc()
	searchDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	if err == nil {
		resultsReturned.WithLabelValues(mode).Observe(float64(n))
	}
}

func scored(c *store.Chunk, score float64) ScoredChunk {
	return ScoredChunk{
		ChunkID:     c.ID,
		DocumentID:  c.DocumentID,
		Source:      c.Source,
		Text:        c.Text,
		Description: c.Description,
		Score:       score,
	}
}

func validateWeights(w Weights) error {
	for _, v := range []float64{w.Text, w.Vector} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: text=%v vector=%v", ErrInvalidWeights, w.Text, w.Vector)
		}
	}
	return nil
}

func validateVector(vec []float32, threshold *float64) error {
	if len(vec) == 0 {
		return ErrEmptyVector
	}
	if threshold != nil {
		t := *threshold
		if math.IsNaN(t) || t < 0 || t > 1 {
			return fmt.Errorf("%w: got %v", ErrInvalidThreshold, t)
		}
	}
	return nil
}
