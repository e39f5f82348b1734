package database

import (
	"context"
	"fmt"
)

// ListHistoryPosts returns the most recent historical post records as raw
// field maps. A limit <= 0 returns every record.
func (s *PostgresStore) ListHistoryPosts(ctx context.Context, limit int) ([]map[string]string, error) {
	query := `SELECT fields FROM history_posts ORDER BY posted_at DESC NULLS LAST`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	return s.listFieldRecords(ctx, query, args...)
}

// ListAnalyticsPosts returns per-post analytics records as raw field maps.
func (s *PostgresStore) ListAnalyticsPosts(ctx context.Context, limit int) ([]map[string]string, error) {
	query := `SELECT fields FROM analytics_posts ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	return s.listFieldRecords(ctx, query, args...)
}

// ListDailyStats returns the most recent daily analytics records.
func (s *PostgresStore) ListDailyStats(ctx context.Context, limit int) ([]map[string]string, error) {
	query := `SELECT fields FROM analytics_daily ORDER BY day DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	return s.listFieldRecords(ctx, query, args...)
}

func (s *PostgresStore) listFieldRecords(ctx context.Context, query string, args ...any) ([]map[string]string, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("record listing query failed: %w", err)
	}
	defer rows.Close()

	var records []map[string]string
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan record fields: %w", err)
		}
		records = append(records, decodeStringMap(raw))
	}
	return records, rows.Err()
}
