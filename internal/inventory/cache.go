package inventory

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/stockledger/internal/platform/cache"
)

const queryCacheNamespace = "stockledger:query"

// QueryCache memoises committed read models. It is never consulted by the
// reconciliation path.
type QueryCache struct {
	store  *cache.Versioned
	logger *slog.Logger
}

// NewQueryCache builds the cache. A nil client yields a pass-through cache.
func NewQueryCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *QueryCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryCache{store: cache.NewVersioned(client, queryCacheNamespace, ttl), logger: logger}
}

// Bump invalidates every cached read model.
func (c *QueryCache) Bump(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.store.Bump(ctx)
}

// Listen follows invalidations published by other replicas.
func (c *QueryCache) Listen(ctx context.Context) {
	if c == nil {
		return
	}
	c.store.ListenForInvalidation(ctx, func(ver int64) {
		c.logger.Debug("query cache version bumped", slog.Int64("version", ver))
	})
}

// cached serves the value from cache or loads it. Cache failures degrade to a
// direct load so a redis outage never fails a read.
func cached[T any](ctx context.Context, c *QueryCache, load func(context.Context) (T, error), parts ...string) (T, error) {
	if c == nil || !c.store.Enabled() {
		return load(ctx)
	}
	key, err := c.store.BuildKey(ctx, parts...)
	if err != nil {
		c.logger.Warn("query cache unavailable", slog.Any("error", err))
		return load(ctx)
	}
	var (
		out     T
		loadErr error
		loaded  bool
	)
	err = c.store.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		v, err := load(ctx)
		loadErr, loaded = err, true
		return v, err
	})
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return out, ctx.Err()
	}
	if loaded && loadErr != nil {
		return out, loadErr
	}
	c.logger.Warn("query cache fetch failed", slog.String("key", key), slog.Any("error", err))
	return load(ctx)
}

func listKey(kind string, filter ListFilter) []string {
	return []string{kind, "list", strconv.Itoa(filter.Page), strconv.Itoa(filter.Limit), strconv.Quote(filter.Keyword)}
}

func detailKey(kind string, id int64) []string {
	return []string{kind, "detail", strconv.FormatInt(id, 10)}
}
