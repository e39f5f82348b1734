package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type PostgresStore struct {
	DB *sql.DB
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	log.Println("Successfully connected to the database")
	return &PostgresStore{DB: db}, nil
}

// EnsureSchema creates the required tables if they do not already exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS knowledge_items (
            id TEXT PRIMARY KEY,
            title TEXT DEFAULT '',
            description TEXT DEFAULT '',
            content TEXT DEFAULT '',
            url TEXT DEFAULT '',
            keywords TEXT[] DEFAULT '{}'::TEXT[],
            metadata JSONB DEFAULT '{}'::jsonb,
            embedding vector(1536),
            created_at TIMESTAMPTZ DEFAULT NOW()
        )`,
		`CREATE INDEX IF NOT EXISTS idx_knowledge_items_url ON knowledge_items(url)`,
		`CREATE TABLE IF NOT EXISTS history_posts (
            id UUID PRIMARY KEY,
            fields JSONB NOT NULL DEFAULT '{}'::jsonb,
            posted_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ DEFAULT NOW()
        )`,
		`CREATE INDEX IF NOT EXISTS idx_history_posts_posted_at ON history_posts(posted_at DESC)`,
		`CREATE TABLE IF NOT EXISTS analytics_posts (
            id UUID PRIMARY KEY,
            fields JSONB NOT NULL DEFAULT '{}'::jsonb,
            created_at TIMESTAMPTZ DEFAULT NOW()
        )`,
		`CREATE TABLE IF NOT EXISTS analytics_daily (
            day DATE PRIMARY KEY,
            fields JSONB NOT NULL DEFAULT '{}'::jsonb
        )`,
	}

	for _, stmt := range stmts {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

func (s *PostgresStore) Close() error {
	return s.DB.Close()
}
