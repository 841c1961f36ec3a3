package lexical

import (
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of parsed queries kept by a Parser.
const DefaultCacheSize = 512

// Parser parses queries and caches the results. Parsing is a pure function of
// the raw string, so cached entries never go stale.
type Parser struct {
	analyzer *Analyzer
	cache    *lru.Cache[string, *Query]
}

// NewParser creates a caching parser. A non-positive size uses DefaultCacheSize.
func NewParser(analyzer *Analyzer, size int) *Parser {
	if analyzer == nil {
		analyzer = defaultAnalyzer
	}
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, *Query](size)
	if err != nil {
		// Only fails for size <= 0, which is excluded above.
		slog.Warn("query_cache_disabled", slog.String("error", err.Error()))
	}
	return &Parser{analyzer: analyzer, cache: cache}
}

// Analyzer returns the analyzer used for queries.
func (p *Parser) Analyzer() *Analyzer {
	return p.analyzer
}

// Parse returns the parsed query, from cache when possible.
// Syntax errors are not cached.
func (p *Parser) Parse(raw string) (*Query, error) {
	if p.cache != nil {
		if q, ok := p.cache.Get(raw); ok {
			return q, nil
		}
	}

	q, err := p.analyzer.Parse(raw)
	if err != nil {
		return nil, err
	}

	if p.cache != nil {
		p.cache.Add(raw, q)
	}
	return q, nil
}

// Len returns the number of cached queries.
func (p *Parser) Len() int {
	if p.cache == nil {
		return 0
	}
	return p.cache.Len()
}
