package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Aman-CERP/ragsearch/internal/lexical"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

const schemaVersion = 1

// SQLiteStore is the chunk store. Reads may run concurrently; writes are
// serialised by SQLite (single connection, WAL journal).
type SQLiteStore struct {
	mu       sync.RWMutex
	db       *sql.DB
	path     string
	cfg      Config
	analyzer *lexical.Analyzer
	bleve    LexicalIndex // nil for the FTS5 backend
	closed   bool
}

// Open opens or creates the store at cfg.Path.
func Open(ctx context.Context, cfg Config) (*SQLiteStore, error) {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = DefaultModelName
	}
	if cfg.Lexical.Backend == "" {
		cfg.Lexical.Backend = BackendSQLite
	}
	if cfg.Lexical.BodyWeight == 0 && cfg.Lexical.DescriptionWeight == 0 {
		def := DefaultLexicalConfig()
		cfg.Lexical.BodyWeight = def.BodyWeight
		cfg.Lexical.DescriptionWeight = def.DescriptionWeight
	}

	var dsn string
	inMemory := cfg.Path == "" || cfg.Path == ":memory:"
	if inMemory {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(cfg.Path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		if err := checkIntegrity(cfg.Path); err != nil {
			return nil, fmt.Errorf("chunk store at %s failed integrity check: %w", cfg.Path, err)
		}
		dsn = cfg.Path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: pragmas are per connection and ":memory:" is per
	// connection too.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	if !inMemory {
		pragmas = append([]string{"PRAGMA journal_mode = WAL"}, pragmas...)
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{
		db:       db,
		path:     cfg.Path,
		cfg:      cfg,
		analyzer: lexical.NewAnalyzer(cfg.Lexical.Analyzer),
	}

	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	switch cfg.Lexical.Backend {
	case BackendSQLite:
	case BackendBleve:
		idx, err := NewBleveIndex(cfg.Lexical.BlevePath)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		s.bleve = idx
		if err := s.syncBleve(ctx); err != nil {
			_ = idx.Close()
			_ = db.Close()
			return nil, err
		}
	default:
		_ = db.Close()
		return nil, fmt.Errorf("unknown lexical backend %q (valid: sqlite, bleve)", cfg.Lexical.Backend)
	}

	return s, nil
}

// checkIntegrity runs SQLite's integrity check on an existing file.
// A missing file is fine; it will be created.
func checkIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS documents (
		id         TEXT PRIMARY KEY,
		source     TEXT NOT NULL DEFAULT '',
		title      TEXT NOT NULL DEFAULT '',
		category   TEXT NOT NULL DEFAULT '',
		url        TEXT NOT NULL DEFAULT '',
		file_type  TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_source ON documents(source);
	CREATE INDEX IF NOT EXISTS idx_documents_category ON documents(category);

	CREATE TABLE IF NOT EXISTS chunks (
		id                TEXT PRIMARY KEY,
		document_id       TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		parsed_id         TEXT,
		image_id          TEXT,
		page              INTEGER CHECK (page IS NULL OR page >= 0),
		ordinal           INTEGER NOT NULL CHECK (ordinal >= 0),
		setting           TEXT NOT NULL DEFAULT '',
		token_count       INTEGER NOT NULL DEFAULT 0 CHECK (token_count >= 0),
		text              TEXT NOT NULL CHECK (length(text) > 0),
		description       TEXT NOT NULL DEFAULT '',
		text_terms        TEXT NOT NULL DEFAULT '',
		description_terms TEXT NOT NULL DEFAULT '',
		updated_at        INTEGER NOT NULL,
		UNIQUE (document_id, ordinal)
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);

	-- body/description hold analyzed terms, not raw text
	CREATE VIRTUAL TABLE IF NOT EXISTS chunk_fts USING fts5(
		chunk_id UNINDEXED,
		body,
		description,
		tokenize='unicode61'
	);

	CREATE TRIGGER IF NOT EXISTS chunks_fts_delete AFTER DELETE ON chunks BEGIN
		DELETE FROM chunk_fts WHERE chunk_id = old.id;
	END;

	CREATE TABLE IF NOT EXISTS chunk_embeddings (
		chunk_id   TEXT NOT NULL REFERENCES chunks(id) ON DELETE CASCADE,
		kind       TEXT NOT NULL CHECK (kind IN ('body', 'description')),
		model      TEXT NOT NULL,
		dim        INTEGER NOT NULL CHECK (dim > 0),
		embedding  BLOB NOT NULL CHECK (length(embedding) = dim * 4),
		created_at INTEGER NOT NULL,
		PRIMARY KEY (chunk_id, kind, model)
	);
	CREATE INDEX IF NOT EXISTS idx_embeddings_model ON chunk_embeddings(model, kind);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO schema_version (version) VALUES (?)`, schemaVersion)
	return err
}

// Path returns the database path ("" for in-memory stores).
func (s *SQLiteStore) Path() string {
	return s.path
}

// DefaultModel returns the model direct chunk vectors are stored under.
func (s *SQLiteStore) DefaultModel() string {
	return s.cfg.DefaultModel
}

// Analyzer returns the analyzer used for lexical artifacts.
func (s *SQLiteStore) Analyzer() *lexical.Analyzer {
	return s.analyzer
}

// Backend returns the active lexical backend name.
func (s *SQLiteStore) Backend() string {
	return s.cfg.Lexical.Backend
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	return s.db.PingContext(ctx)
}

// Close checkpoints the WAL and closes the database and any bleve index.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.bleve != nil {
		if err := s.bleve.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.path != "" && s.path != ":memory:" {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// placeholders returns "?,?,..." and args for an IN clause.
func placeholders(ids []string) (string, []any) {
	ph := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = "?"
		args[i] = id
	}
	return strings.Join(ph, ","), args
}

// isUniqueOrdinalViolation recognises the (document_id, ordinal) constraint.
func isUniqueOrdinalViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, "chunks.ordinal")
}

func logWrite(op string, n int) {
	slog.Debug("store_write", slog.String("op", op), slog.Int("rows", n))
}
