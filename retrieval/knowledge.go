package retrieval

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"postcrafter/database"
	"postcrafter/embedding"
	"postcrafter/errors"
)

type knowledgeStore interface {
	SearchKnowledge(ctx context.Context, queryVec []float32, topK int) ([]database.KnowledgeRow, error)
	SearchKnowledgeByKeywords(ctx context.Context, keywords []string, limit int) ([]database.KnowledgeRow, error)
	FetchEmbedding(ctx context.Context, id string) ([]float32, error)
}

// KnowledgeBase retrieves product knowledge records from the vector store.
type KnowledgeBase struct {
	store    knowledgeStore
	embedder embedding.Embedder
	logger   *zap.Logger
}

func NewKnowledgeBase(store *database.PostgresStore, embedder embedding.Embedder, logger *zap.Logger) *KnowledgeBase {
	return &KnowledgeBase{store: store, embedder: embedder, logger: logger}
}

// SearchByURL embeds the URL string and returns the topK nearest records
// with their similarity scores. Matching is by vector distance rather than
// string equality, so records registered under URL variants (trailing slash,
// query parameters) still surface.
func (kb *KnowledgeBase) SearchByURL(ctx context.Context, url string, topK int) ([]Item, error) {
	vec, err := kb.embedder.Embed(ctx, strings.TrimSpace(url))
	if err != nil {
		return nil, errors.Wrap(errors.ErrSourceUnavailable, err)
	}
	rows, err := kb.store.SearchKnowledge(ctx, vec, topK)
	if err != nil {
		return nil, errors.Wrap(errors.ErrSourceUnavailable, err)
	}
	return itemsFromRows(rows), nil
}

// SearchByKeywords returns records whose keyword tags overlap the terms.
func (kb *KnowledgeBase) SearchByKeywords(ctx context.Context, keywords []string, topK int) ([]Item, error) {
	rows, err := kb.store.SearchKnowledgeByKeywords(ctx, keywords, topK)
	if err != nil {
		return nil, errors.Wrap(errors.ErrSourceUnavailable, err)
	}
	return itemsFromRows(rows), nil
}

// RelatedItems finds records similar to an existing one by re-querying with
// its stored vector. The record itself is excluded from the results.
func (kb *KnowledgeBase) RelatedItems(ctx context.Context, id string, topK int) ([]Item, error) {
	vec, err := kb.store.FetchEmbedding(ctx, id)
	if err != nil {
		return nil, errors.Wrap(errors.ErrNotFound, err)
	}

	rows, err := kb.store.SearchKnowledge(ctx, vec, topK+1)
	if err != nil {
		return nil, errors.Wrap(errors.ErrSourceUnavailable, err)
	}

	items := make([]Item, 0, topK)
	for _, row := range rows {
		if row.ID == id {
			continue
		}
		items = append(items, itemFromRow(row))
		if len(items) == topK {
			break
		}
	}
	return items, nil
}

func itemFromRow(row database.KnowledgeRow) Item {
	return Item{
		ID:          row.ID,
		Score:       row.Score,
		Title:       row.Title,
		Description: row.Description,
		Content:     row.Content,
		URL:         row.URL,
		Metadata:    row.Metadata,
		Source:      KindKnowledgeBase,
	}
}

func itemsFromRows(rows []database.KnowledgeRow) []Item {
	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, itemFromRow(row))
	}
	return items
}
