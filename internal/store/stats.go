package store

import (
	"context"
	"fmt"
)

// Stats counts documents, chunks, referenced images and parsed artifacts,
// and embeddings, with per-category and per-model breakdowns.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	st := &Stats{
		ByCategory: make(map[string]int),
		ByModel:    make(map[string]int),
	}

	counts := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM documents`, &st.Documents},
		{`SELECT COUNT(*) FROM chunks`, &st.Chunks},
		{`SELECT COUNT(DISTINCT image_id) FROM chunks WHERE image_id IS NOT NULL`, &st.Images},
		{`SELECT COUNT(DISTINCT parsed_id) FROM chunks WHERE parsed_id IS NOT NULL`, &st.ParsedArtifacts},
		{`SELECT COUNT(*) FROM chunk_embeddings`, &st.Embeddings},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to compute stats: %w", err)
		}
	}

	if err := s.groupCounts(ctx, `SELECT category, COUNT(*) FROM documents GROUP BY category`, st.ByCategory); err != nil {
		return nil, err
	}
	if err := s.groupCounts(ctx, `SELECT model, COUNT(*) FROM chunk_embeddings GROUP BY model`, st.ByModel); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *SQLiteStore) groupCounts(ctx context.Context, query string, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to compute stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("failed to scan stats: %w", err)
		}
		into[key] = n
	}
	return rows.Err()
}
