package retrieval

import (
	"context"

	"go.uber.org/zap"

	"postcrafter/database"
	"postcrafter/errors"
)

// HistoryStore retrieves previously published posts. Record layouts vary by
// export source, so callers resolve fields through TextOf.
type HistoryStore struct {
	store  *database.PostgresStore
	logger *zap.Logger
}

func NewHistoryStore(store *database.PostgresStore, logger *zap.Logger) *HistoryStore {
	return &HistoryStore{store: store, logger: logger}
}

// RecentPosts returns the most recent post records, newest first.
func (h *HistoryStore) RecentPosts(ctx context.Context, limit int) ([]Record, error) {
	raw, err := h.store.ListHistoryPosts(ctx, limit)
	if err != nil {
		return nil, errors.Wrap(errors.ErrSourceUnavailable, err)
	}
	return toRecords(raw), nil
}
