package cmd

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Aman-CERP/ragsearch/internal/config"
	"github.com/Aman-CERP/ragsearch/internal/lexical"
	"github.com/Aman-CERP/ragsearch/internal/registry"
	"github.com/Aman-CERP/ragsearch/internal/search"
	"github.com/Aman-CERP/ragsearch/internal/store"
)

// app is one open database with its vector indexes and search engine.
type app struct {
	cfg      *config.Config
	store    *store.SQLiteStore
	registry *registry.Registry
	engine   *search.Engine
	loadTime time.Duration
}

// openApp opens the store and, when loadVectors is set, builds every vector
// index before returning.
func openApp(ctx context.Context, cfg *config.Config, loadVectors bool) (*app, error) {
	st, err := store.Open(ctx, cfg.StoreConfig())
	if err != nil {
		return nil, err
	}

	reg, err := registry.New(st, cfg.RegistryConfig())
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	a := &app{cfg: cfg, store: st, registry: reg}
	if loadVectors {
		start := time.Now()
		if err := reg.Load(ctx); err != nil {
			_ = a.Close()
			return nil, err
		}
		a.loadTime = time.Since(start)
	}

	parser := lexical.NewParser(st.Analyzer(), lexical.DefaultCacheSize)
	a.engine, err = search.NewEngine(st, reg, cfg.Search, search.WithParser(parser))
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	slog.Debug("app_opened",
		slog.String("db", st.Path()),
		slog.String("lexical_backend", st.Backend()),
		slog.Int("indexes", len(reg.Models())),
		slog.Duration("load_duration", a.loadTime))
	return a, nil
}

// Close closes the registry, then the store.
func (a *app) Close() error {
	return errors.Join(a.registry.Close(), a.store.Close())
}
