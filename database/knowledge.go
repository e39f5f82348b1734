package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// KnowledgeRow is one knowledge-base record with its vector-search score.
type KnowledgeRow struct {
	ID          string
	Score       float64
	Title       string
	Description string
	Content     string
	URL         string
	Keywords    []string
	Metadata    map[string]string
}

// SearchKnowledge runs a cosine-similarity search over knowledge_items and
// returns the topK nearest records. pgvector's <=> operator yields cosine
// distance, so the score is 1 - distance, clamped to [0,1].
func (s *PostgresStore) SearchKnowledge(ctx context.Context, queryVec []float32, topK int) ([]KnowledgeRow, error) {
	if topK <= 0 {
		return nil, nil
	}

	query := `
        SELECT id, title, description, content, url, keywords, metadata,
               1 - (embedding <=> $1) AS score
        FROM knowledge_items
        WHERE embedding IS NOT NULL
        ORDER BY embedding <=> $1
        LIMIT $2
    `
	rows, err := s.DB.QueryContext(ctx, query, pgvector.NewVector(queryVec), topK)
	if err != nil {
		return nil, fmt.Errorf("knowledge search query failed: %w", err)
	}
	defer rows.Close()

	return scanKnowledgeRows(rows, true)
}

func scanKnowledgeRows(rows *sql.Rows, withScore bool) ([]KnowledgeRow, error) {
	var results []KnowledgeRow
	for rows.Next() {
		var row KnowledgeRow
		var metaJSON []byte
		dest := []any{&row.ID, &row.Title, &row.Description, &row.Content,
			&row.URL, pq.Array(&row.Keywords), &metaJSON}
		if withScore {
			dest = append(dest, &row.Score)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge row: %w", err)
		}
		row.Metadata = decodeStringMap(metaJSON)
		if row.Score < 0 {
			row.Score = 0
		} else if row.Score > 1 {
			row.Score = 1
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// FetchEmbedding returns the stored vector for a knowledge item, for
// related-item lookups.
func (s *PostgresStore) FetchEmbedding(ctx context.Context, id string) ([]float32, error) {
	const query = `SELECT embedding FROM knowledge_items WHERE id = $1`

	var vec pgvector.Vector
	err := s.DB.QueryRowContext(ctx, query, id).Scan(&vec)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to fetch knowledge embedding: %w", err)
	}
	return vec.Slice(), nil
}

func decodeStringMap(raw []byte) map[string]string {
	if len(raw) == 0 {
		return map[string]string{}
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(generic))
	for k, v := range generic {
		if v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			out[k] = val
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}
