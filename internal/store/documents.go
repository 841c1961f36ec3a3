package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PutDocument inserts or updates a document. A missing ID is generated.
// Changing the source of an existing document re-indexes its chunks in the
// bleve backend, whose filter field is denormalised.
func (s *SQLiteStore) PutDocument(ctx context.Context, doc *Document) error {
	if doc == nil {
		return fmt.Errorf("document is nil")
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}

	var previousSource sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT source FROM documents WHERE id = ?`, doc.ID).Scan(&previousSource)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read document %s: %w", doc.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, source, title, category, url, file_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source = excluded.source,
			title = excluded.title,
			category = excluded.category,
			url = excluded.url,
			file_type = excluded.file_type`,
		doc.ID, doc.Source, doc.Title, doc.Category, doc.URL, doc.FileType, doc.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save document %s: %w", doc.ID, err)
	}

	if s.bleve != nil && previousSource.Valid && previousSource.String != doc.Source {
		return s.reindexBleveDocument(ctx, doc.ID)
	}
	return nil
}

// GetDocument returns the document or ErrNotFound.
func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, source, title, category, url, file_type, created_at
		FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	return doc, nil
}

// ListDocuments returns documents ordered by creation time, newest first.
func (s *SQLiteStore) ListDocuments(ctx context.Context, filter DocumentFilter) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	query := `SELECT id, source, title, category, url, file_type, created_at FROM documents WHERE 1=1`
	var args []any
	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, filter.Source)
	}
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, filter.Category)
	}
	query += ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := []*Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document; its chunks, their full-text rows and
// their embeddings go with it.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}

	var chunkIDs []string
	if s.bleve != nil {
		ids, err := s.chunkIDsForDocument(ctx, id)
		if err != nil {
			return err
		}
		chunkIDs = ids
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}

	if s.bleve != nil && len(chunkIDs) > 0 {
		if err := s.bleve.Delete(ctx, chunkIDs); err != nil {
			return fmt.Errorf("failed to delete document %s from bleve: %w", id, err)
		}
	}
	return nil
}

func (s *SQLiteStore) chunkIDsForDocument(ctx context.Context, docID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM chunks WHERE document_id = ? ORDER BY ordinal`, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks of %s: %w", docID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var created int64
	if err := row.Scan(&doc.ID, &doc.Source, &doc.Title, &doc.Category, &doc.URL, &doc.FileType, &created); err != nil {
		return nil, err
	}
	doc.CreatedAt = time.Unix(0, created).UTC()
	return &doc, nil
}
