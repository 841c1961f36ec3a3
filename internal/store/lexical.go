package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/Aman-CERP/ragsearch/internal/lexical"
)

// LexicalCandidates returns chunks matching q, best first, with scores in
// [0, 1). A non-empty source restricts results to that document source.
// An empty query matches nothing.
func (s *SQLiteStore) LexicalCandidates(ctx context.Context, q *lexical.Query, source string, limit int) ([]Candidate, error) {
	if q.Empty() || limit <= 0 {
		return []Candidate{}, nil
	}
	if s.bleve != nil {
		return s.bleve.Search(ctx, q, source, limit)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	// FTS5 selects the matches; scoring runs over the stored terms so that a
	// term in most chunks is not flattened by bm25's document-frequency floor.
	query := `
		SELECT c.id, c.text_terms, c.description_terms
		FROM chunk_fts f
		JOIN chunks c ON c.id = f.chunk_id
		JOIN documents d ON d.id = c.document_id
		WHERE chunk_fts MATCH ?`
	args := []any{q.FTS5()}
	if source != "" {
		query += ` AND d.source = ?`
		args = append(args, source)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}
	defer rows.Close()

	results := []Candidate{}
	for rows.Next() {
		var (
			c          Candidate
			body, desc string
		)
		if err := rows.Scan(&c.ChunkID, &body, &desc); err != nil {
			return nil, fmt.Errorf("failed to scan lexical result: %w", err)
		}
		c.Score = q.Score(
			lexical.Field{Terms: lexical.ParseRepresentation(body), Weight: s.cfg.Lexical.BodyWeight},
			lexical.Field{Terms: lexical.ParseRepresentation(desc), Weight: s.cfg.Lexical.DescriptionWeight},
		)
		results = append(results, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// LexicalCount returns the number of chunks in the lexical index.
func (s *SQLiteStore) LexicalCount(ctx context.Context) (int, error) {
	if s.bleve != nil {
		return s.bleve.Count()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrClosed
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunk_fts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count lexical rows: %w", err)
	}
	return n, nil
}

// lexicalDocs loads what the bleve backend indexes for the given chunks.
// Callers hold s.mu.
func (s *SQLiteStore) lexicalDocs(ctx context.Context, ids []string) ([]*LexicalDoc, error) {
	docs := make([]*LexicalDoc, 0, len(ids))
	for start := 0; start < len(ids); start += maxBatch {
		end := min(start+maxBatch, len(ids))
		ph, args := placeholders(ids[start:end])
		rows, err := s.db.QueryContext(ctx, `
			SELECT c.id, c.document_id, d.source, c.text_terms, c.description_terms
			FROM chunks c JOIN documents d ON d.id = c.document_id
			WHERE c.id IN (`+ph+`) ORDER BY c.id`, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to load lexical docs: %w", err)
		}
		docs, err = appendLexicalDocs(docs, rows)
		if err != nil {
			return nil, err
		}
	}
	return docs, nil
}

type lexicalRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

func appendLexicalDocs(docs []*LexicalDoc, rows lexicalRows) ([]*LexicalDoc, error) {
	defer rows.Close()
	for rows.Next() {
		var d LexicalDoc
		var body, desc string
		if err := rows.Scan(&d.ChunkID, &d.DocumentID, &d.Source, &body, &desc); err != nil {
			return nil, fmt.Errorf("failed to scan lexical doc: %w", err)
		}
		d.Body = lexical.ParseRepresentation(body)
		d.Description = lexical.ParseRepresentation(desc)
		docs = append(docs, &d)
	}
	return docs, rows.Err()
}

// reindexBleveDocument pushes a document's chunks to bleve again.
func (s *SQLiteStore) reindexBleveDocument(ctx context.Context, docID string) error {
	ids, err := s.chunkIDsForDocument(ctx, docID)
	if err != nil || len(ids) == 0 {
		return err
	}
	docs, err := s.lexicalDocs(ctx, ids)
	if err != nil {
		return err
	}
	return s.bleve.Index(ctx, docs)
}

// syncBleve rebuilds the bleve index from SQLite when the two disagree on
// the number of chunks.
func (s *SQLiteStore) syncBleve(ctx context.Context) error {
	var chunks int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&chunks); err != nil {
		return fmt.Errorf("failed to count chunks: %w", err)
	}
	indexed, err := s.bleve.Count()
	if err != nil {
		return err
	}
	if indexed == chunks {
		return nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.document_id, d.source, c.text_terms, c.description_terms
		FROM chunks c JOIN documents d ON d.id = c.document_id ORDER BY c.id`)
	if err != nil {
		return fmt.Errorf("failed to load chunks for bleve: %w", err)
	}
	docs, err := appendLexicalDocs(nil, rows)
	if err != nil {
		return err
	}
	if err := s.bleve.Clear(); err != nil {
		return err
	}
	return s.bleve.Index(ctx, docs)
}
