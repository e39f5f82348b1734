package database

import (
	"context"
	"fmt"

	"github.com/lib/pq"
)

// SearchKnowledgeByKeywords returns knowledge records whose keyword column
// overlaps the given terms, scored by the fraction of terms matched.
func (s *PostgresStore) SearchKnowledgeByKeywords(ctx context.Context, keywords []string, limit int) ([]KnowledgeRow, error) {
	if limit <= 0 || len(keywords) == 0 {
		return nil, nil
	}

	query := `
        SELECT id, title, description, content, url, keywords, metadata,
               cardinality(ARRAY(SELECT unnest(keywords) INTERSECT SELECT unnest($1::text[])))::float
                   / cardinality($1::text[]) AS score
        FROM knowledge_items
        WHERE keywords && $1::text[]
        ORDER BY score DESC
        LIMIT $2
    `
	rows, err := s.DB.QueryContext(ctx, query, pq.Array(keywords), limit)
	if err != nil {
		return nil, fmt.Errorf("knowledge keyword search failed: %w", err)
	}
	defer rows.Close()

	return scanKnowledgeRows(rows, true)
}
