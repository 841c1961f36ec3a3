package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Aman-CERP/ragsearch/internal/lexical"
)

// maxBatch bounds the ids bound into one IN clause.
const maxBatch = 500

// PutChunks inserts or updates chunks in one transaction. Lexical artifacts
// are recomputed from Text and Description; direct vectors are stored as
// embeddings under the default model. Missing IDs are generated.
func (s *SQLiteStore) PutChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := validateChunks(chunks); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}

	now := time.Now().UTC()
	for _, c := range chunks {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		c.TextIndex = s.analyzer.Analyze(c.Text)
		c.DescriptionIndex = s.analyzer.Analyze(c.Description)
		c.UpdatedAt = now
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	chunkStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, parsed_id, image_id, page, ordinal, setting,
			token_count, text, description, text_terms, description_terms, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			parsed_id = excluded.parsed_id,
			image_id = excluded.image_id,
			page = excluded.page,
			ordinal = excluded.ordinal,
			setting = excluded.setting,
			token_count = excluded.token_count,
			text = excluded.text,
			description = excluded.description,
			text_terms = excluded.text_terms,
			description_terms = excluded.description_terms,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk statement: %w", err)
	}
	defer chunkStmt.Close()

	ftsDelete, err := tx.PrepareContext(ctx, `DELETE FROM chunk_fts WHERE chunk_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare fts delete: %w", err)
	}
	defer ftsDelete.Close()

	ftsInsert, err := tx.PrepareContext(ctx, `INSERT INTO chunk_fts (chunk_id, body, description) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare fts insert: %w", err)
	}
	defer ftsInsert.Close()

	for _, c := range chunks {
		_, err := chunkStmt.ExecContext(ctx,
			c.ID, c.DocumentID, nullString(c.ParsedID), nullString(c.ImageID), nullPage(c.Page),
			c.Ordinal, c.Setting, c.TokenCount, c.Text, c.Description,
			c.TextIndex.String(), c.DescriptionIndex.String(), now.UnixNano())
		if err != nil {
			if isUniqueOrdinalViolation(err) {
				return &DuplicateOrdinalError{DocumentID: c.DocumentID, Ordinal: c.Ordinal}
			}
			if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
				return fmt.Errorf("chunk %s: document %s: %w", c.ID, c.DocumentID, ErrNotFound)
			}
			return fmt.Errorf("failed to save chunk %s: %w", c.ID, err)
		}
		if _, err := ftsDelete.ExecContext(ctx, c.ID); err != nil {
			return fmt.Errorf("failed to clear fts row for %s: %w", c.ID, err)
		}
		if _, err := ftsInsert.ExecContext(ctx, c.ID, c.TextIndex.String(), c.DescriptionIndex.String()); err != nil {
			return fmt.Errorf("failed to index chunk %s: %w", c.ID, err)
		}

		for kind, vec := range map[Kind][]float32{KindBody: c.BodyVector, KindDescription: c.DescriptionVector} {
			if len(vec) == 0 {
				continue
			}
			e := &Embedding{ChunkID: c.ID, Kind: kind, Model: s.cfg.DefaultModel, Dim: len(vec), Vector: vec, CreatedAt: now}
			if err := putEmbeddingTx(ctx, tx, e); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}
	logWrite("put_chunks", len(chunks))

	if s.bleve != nil {
		docs, err := s.lexicalDocs(ctx, chunkIDs(chunks))
		if err != nil {
			return err
		}
		if err := s.bleve.Index(ctx, docs); err != nil {
			return fmt.Errorf("failed to index chunks in bleve: %w", err)
		}
	}
	return nil
}

// validateChunks rejects what the schema would reject, with clearer errors,
// plus ordinal clashes inside the batch itself.
func validateChunks(chunks []*Chunk) error {
	seen := make(map[string]map[int]struct{})
	for i, c := range chunks {
		if c == nil {
			return fmt.Errorf("chunk %d is nil: %w", i, ErrInvalidChunk)
		}
		if c.DocumentID == "" {
			return fmt.Errorf("chunk %d has no document id: %w", i, ErrInvalidChunk)
		}
		if strings.TrimSpace(c.Text) == "" {
			return fmt.Errorf("chunk %d has empty text: %w", i, ErrInvalidChunk)
		}
		if c.Ordinal < 0 {
			return fmt.Errorf("chunk %d has negative ordinal %d: %w", i, c.Ordinal, ErrInvalidChunk)
		}
		if c.TokenCount < 0 {
			return fmt.Errorf("chunk %d has negative token count: %w", i, ErrInvalidChunk)
		}
		if c.Page != nil && *c.Page < 0 {
			return fmt.Errorf("chunk %d has negative page: %w", i, ErrInvalidChunk)
		}
		ords, ok := seen[c.DocumentID]
		if !ok {
			ords = make(map[int]struct{})
			seen[c.DocumentID] = ords
		}
		if _, dup := ords[c.Ordinal]; dup {
			return &DuplicateOrdinalError{DocumentID: c.DocumentID, Ordinal: c.Ordinal}
		}
		ords[c.Ordinal] = struct{}{}
	}
	return nil
}

// GetChunk returns one chunk with its source and default-model vectors.
func (s *SQLiteStore) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	chunks, err := s.GetChunks(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("chunk %s: %w", id, ErrNotFound)
	}
	c := chunks[0]

	for _, kind := range []Kind{KindBody, KindDescription} {
		e, err := s.GetEmbedding(ctx, id, kind, s.cfg.DefaultModel)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if kind == KindBody {
			c.BodyVector = e.Vector
		} else {
			c.DescriptionVector = e.Vector
		}
	}
	return c, nil
}

// GetChunks hydrates chunks by id, without vectors. Missing ids are skipped;
// the result follows the order of ids.
func (s *SQLiteStore) GetChunks(ctx context.Context, ids []string) ([]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	if len(ids) == 0 {
		return []*Chunk{}, nil
	}

	byID := make(map[string]*Chunk, len(ids))
	for start := 0; start < len(ids); start += maxBatch {
		end := min(start+maxBatch, len(ids))
		ph, args := placeholders(ids[start:end])
		rows, err := s.db.QueryContext(ctx, chunkSelect+` WHERE c.id IN (`+ph+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to get chunks: %w", err)
		}
		for rows.Next() {
			c, err := scanChunk(rows)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan chunk: %w", err)
			}
			byID[c.ID] = c
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}

	out := make([]*Chunk, 0, len(byID))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// ChunksByDocument returns a document's chunks in ordinal order.
func (s *SQLiteStore) ChunksByDocument(ctx context.Context, docID string) ([]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, chunkSelect+` WHERE c.document_id = ? ORDER BY c.ordinal`, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks of %s: %w", docID, err)
	}
	defer rows.Close()

	chunks := []*Chunk{}
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// DeleteChunk removes a chunk with its full-text row and embeddings.
func (s *SQLiteStore) DeleteChunk(ctx context.Context, id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete chunk %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("chunk %s: %w", id, ErrNotFound)
	}
	if s.bleve != nil {
		if err := s.bleve.Delete(ctx, []string{id}); err != nil {
			return fmt.Errorf("failed to delete chunk %s from bleve: %w", id, err)
		}
	}
	return nil
}

const chunkSelect = `
	SELECT c.id, c.document_id, c.parsed_id, c.image_id, c.page, c.ordinal, c.setting,
		c.token_count, c.text, c.description, c.text_terms, c.description_terms,
		c.updated_at, d.source
	FROM chunks c JOIN documents d ON d.id = c.document_id`

func scanChunk(row rowScanner) (*Chunk, error) {
	var c Chunk
	var parsedID, imageID sql.NullString
	var page sql.NullInt64
	var textTerms, descTerms string
	var updated int64
	err := row.Scan(&c.ID, &c.DocumentID, &parsedID, &imageID, &page, &c.Ordinal, &c.Setting,
		&c.TokenCount, &c.Text, &c.Description, &textTerms, &descTerms, &updated, &c.Source)
	if err != nil {
		return nil, err
	}
	c.ParsedID = parsedID.String
	c.ImageID = imageID.String
	if page.Valid {
		p := int(page.Int64)
		c.Page = &p
	}
	c.TextIndex = lexical.ParseRepresentation(textTerms)
	c.DescriptionIndex = lexical.ParseRepresentation(descTerms)
	c.UpdatedAt = time.Unix(0, updated).UTC()
	return &c, nil
}

func chunkIDs(chunks []*Chunk) []string {
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	return ids
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullPage(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}
