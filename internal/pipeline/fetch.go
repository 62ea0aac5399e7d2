package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/census-enrich/internal/cache"
	"github.com/sells-group/census-enrich/internal/model"
	"github.com/sells-group/census-enrich/pkg/census"
)

// StatsStore persists ACS tables between runs.
type StatsStore interface {
	Get(ctx context.Context, key string) (*model.StatsTable, error)
	Put(ctx context.Context, key string, table *model.StatsTable) error
}

// CachedFetcher serves ACS tables from a StatsStore and falls through to the
// API on a miss. Store errors are logged and never fail the fetch.
type CachedFetcher struct {
	Fetcher StatsFetcher
	Store   StatsStore
}

// FetchTractStatistics implements StatsFetcher.
func (c *CachedFetcher) FetchTractStatistics(ctx context.Context, year int, state string, vars census.Variables) (*model.StatsTable, error) {
	log := zap.L().With(zap.String("component", "cache"), zap.Int("year", year), zap.String("state", state))
	key := cache.Key(year, state, vars.Strings())

	cached, err := c.Store.Get(ctx, key)
	if err != nil {
		log.Warn("pipeline: cache read failed", zap.Error(err))
	}
	if cached != nil {
		log.Info("pipeline: acs table served from cache", zap.Int("tracts", len(cached.Rows)))
		return cached, nil
	}

	table, err := c.Fetcher.FetchTractStatistics(ctx, year, state, vars)
	if err != nil {
		return nil, err
	}
	if err := c.Store.Put(ctx, key, table); err != nil {
		log.Warn("pipeline: cache write failed", zap.Error(err))
	}
	return table, nil
}
