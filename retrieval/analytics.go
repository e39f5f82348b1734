package retrieval

import (
	"context"

	"go.uber.org/zap"

	"postcrafter/database"
	"postcrafter/errors"
)

// AnalyticsStore retrieves per-post and daily performance records.
type AnalyticsStore struct {
	store  *database.PostgresStore
	logger *zap.Logger
}

func NewAnalyticsStore(store *database.PostgresStore, logger *zap.Logger) *AnalyticsStore {
	return &AnalyticsStore{store: store, logger: logger}
}

// PostRecords returns per-post analytics records, newest first.
func (a *AnalyticsStore) PostRecords(ctx context.Context, limit int) ([]Record, error) {
	raw, err := a.store.ListAnalyticsPosts(ctx, limit)
	if err != nil {
		return nil, errors.Wrap(errors.ErrSourceUnavailable, err)
	}
	return toRecords(raw), nil
}

// DailyStats returns daily aggregate records, newest first.
func (a *AnalyticsStore) DailyStats(ctx context.Context, limit int) ([]Record, error) {
	raw, err := a.store.ListDailyStats(ctx, limit)
	if err != nil {
		return nil, errors.Wrap(errors.ErrSourceUnavailable, err)
	}
	return toRecords(raw), nil
}

func toRecords(raw []map[string]string) []Record {
	records := make([]Record, 0, len(raw))
	for _, fields := range raw {
		records = append(records, Record(fields))
	}
	return records
}
