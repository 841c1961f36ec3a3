package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Aman-CERP/ragsearch/internal/vector"
)

// PutEmbedding stores or replaces one embedding. Dim defaults to the vector
// length. All embeddings of one (model, kind) share a dimension.
func (s *SQLiteStore) PutEmbedding(ctx context.Context, e *Embedding) error {
	if e == nil {
		return fmt.Errorf("embedding is nil")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := putEmbeddingTx(ctx, tx, e); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit embedding: %w", err)
	}
	logWrite("put_embedding", 1)
	return nil
}

func putEmbeddingTx(ctx context.Context, tx *sql.Tx, e *Embedding) error {
	if e.ChunkID == "" {
		return fmt.Errorf("embedding has no chunk id: %w", ErrInvalidChunk)
	}
	if e.Model == "" {
		return fmt.Errorf("embedding for %s has no model", e.ChunkID)
	}
	if e.Kind == "" {
		e.Kind = KindBody
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("unknown embedding kind %q", e.Kind)
	}
	if e.Dim == 0 {
		e.Dim = len(e.Vector)
	}
	if err := vector.Validate(e.Vector, e.Dim); err != nil {
		return fmt.Errorf("embedding %s/%s/%s: %w", e.ChunkID, e.Kind, e.Model, err)
	}

	var existing int
	err := tx.QueryRowContext(ctx,
		`SELECT dim FROM chunk_embeddings WHERE model = ? AND kind = ? AND chunk_id != ? LIMIT 1`,
		e.Model, string(e.Kind), e.ChunkID).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("failed to read model dimension: %w", err)
	case existing != e.Dim:
		return fmt.Errorf("model %s (%s): %w", e.Model, e.Kind, &vector.DimensionMismatchError{Expected: existing, Got: e.Dim})
	}

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO chunk_embeddings (chunk_id, kind, model, dim, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id, kind, model) DO UPDATE SET
			dim = excluded.dim,
			embedding = excluded.embedding,
			created_at = excluded.created_at`,
		e.ChunkID, string(e.Kind), e.Model, e.Dim, encodeVector(e.Vector), e.CreatedAt.UnixNano())
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return fmt.Errorf("embedding chunk %s: %w", e.ChunkID, ErrNotFound)
		}
		return fmt.Errorf("failed to save embedding for %s: %w", e.ChunkID, err)
	}
	return nil
}

// GetEmbedding returns one embedding or ErrNotFound.
func (s *SQLiteStore) GetEmbedding(ctx context.Context, chunkID string, kind Kind, model string) (*Embedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	var e Embedding
	var blob []byte
	var created int64
	var k string
	err := s.db.QueryRowContext(ctx, `
		SELECT chunk_id, kind, model, dim, embedding, created_at
		FROM chunk_embeddings WHERE chunk_id = ? AND kind = ? AND model = ?`,
		chunkID, string(kind), model).Scan(&e.ChunkID, &k, &e.Model, &e.Dim, &blob, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("embedding %s/%s/%s: %w", chunkID, kind, model, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get embedding: %w", err)
	}
	e.Kind = Kind(k)
	e.CreatedAt = time.Unix(0, created).UTC()
	if e.Vector, err = decodeVector(blob, e.Dim); err != nil {
		return nil, err
	}
	return &e, nil
}

// ScanEmbeddings streams every vector of (model, kind) in chunk id order.
// Returning an error from fn stops the scan with that error.
func (s *SQLiteStore) ScanEmbeddings(ctx context.Context, model string, kind Kind, fn func(chunkID string, vec []float32) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, dim, embedding FROM chunk_embeddings
		WHERE model = ? AND kind = ? ORDER BY chunk_id`, model, string(kind))
	if err != nil {
		return fmt.Errorf("failed to scan embeddings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var dim int
		var blob []byte
		if err := rows.Scan(&id, &dim, &blob); err != nil {
			return fmt.Errorf("failed to scan embedding: %w", err)
		}
		vec, err := decodeVector(blob, dim)
		if err != nil {
			return fmt.Errorf("embedding %s: %w", id, err)
		}
		if err := fn(id, vec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Models lists the stored (model, kind) pairs with dimension and count.
func (s *SQLiteStore) Models(ctx context.Context) ([]ModelInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT model, kind, MAX(dim), COUNT(*) FROM chunk_embeddings
		GROUP BY model, kind ORDER BY model, kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer rows.Close()

	models := []ModelInfo{}
	for rows.Next() {
		var m ModelInfo
		var kind string
		if err := rows.Scan(&m.Model, &kind, &m.Dim, &m.Count); err != nil {
			return nil, fmt.Errorf("failed to scan model: %w", err)
		}
		m.Kind = Kind(kind)
		models = append(models, m)
	}
	return models, rows.Err()
}

// DeleteModel removes every embedding of model and returns how many went.
func (s *SQLiteStore) DeleteModel(ctx context.Context, model string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrClosed
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM chunk_embeddings WHERE model = ?`, model)
	if err != nil {
		return 0, fmt.Errorf("failed to delete model %s: %w", model, err)
	}
	n, _ := res.RowsAffected()
	logWrite("delete_model", int(n))
	return int(n), nil
}
