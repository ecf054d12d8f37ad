package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/restodash/backend/internal/domain/pnl"
	"go.uber.org/zap"
)

const (
	defaultSummaryTTL    = 24 * time.Hour
	defaultSummaryPrefix = "pnl:summary:"
)

// CachedSummaryRepository puts Redis in front of a summary store.
// Reads go through the cache; writes go to the store first and then refresh the cache.
// Redis failures are logged and never fail the call.
type CachedSummaryRepository struct {
	store     pnl.SummaryRepository
	client    redis.Cmdable
	ttl       time.Duration
	keyPrefix string
	logger    *zap.Logger

	hits   int64
	misses int64
}

// CachedSummaryOption configures a CachedSummaryRepository
type CachedSummaryOption func(*CachedSummaryRepository)

// WithTTL sets how long cached summaries live
func WithTTL(ttl time.Duration) CachedSummaryOption {
	return func(c *CachedSummaryRepository) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithKeyPrefix sets the Redis key prefix
func WithKeyPrefix(prefix string) CachedSummaryOption {
	return func(c *CachedSummaryRepository) {
		if prefix != "" {
			c.keyPrefix = prefix
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) CachedSummaryOption {
	return func(c *CachedSummaryRepository) {
		c.logger = logger
	}
}

// NewCachedSummaryRepository wraps store with a Redis cache
func NewCachedSummaryRepository(store pnl.SummaryRepository, client redis.Cmdable, opts ...CachedSummaryOption) *CachedSummaryRepository {
	c := &CachedSummaryRepository{
		store:     store,
		client:    client,
		ttl:       defaultSummaryTTL,
		keyPrefix: defaultSummaryPrefix,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key returns the Redis key of a scope's summary.
func (c *CachedSummaryRepository) Key(scope pnl.Scope) string {
	return fmt.Sprintf("%s%s:%04d-%02d", c.keyPrefix, scope.LocationID, scope.Year, scope.Month)
}

// Upsert writes to the store, then refreshes the cached copy. When the
// refresh fails the old copy is dropped so readers fall through to the store.
func (c *CachedSummaryRepository) Upsert(ctx context.Context, summary *pnl.PeriodSummary) error {
	if err := c.store.Upsert(ctx, summary); err != nil {
		return err
	}
	if !c.set(ctx, summary) {
		if err := c.Invalidate(ctx, summary.Scope()); err != nil {
			c.logger.Error("stale summary left in cache", zap.String("key", c.Key(summary.Scope())), zap.Error(err))
		}
	}
	return nil
}

// FindByScope serves from Redis when possible and fills the cache on a miss.
func (c *CachedSummaryRepository) FindByScope(ctx context.Context, scope pnl.Scope) (*pnl.PeriodSummary, error) {
	key := c.Key(scope)
	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var summary pnl.PeriodSummary
		if jsonErr := json.Unmarshal(data, &summary); jsonErr == nil {
			atomic.AddInt64(&c.hits, 1)
			return &summary, nil
		} else {
			c.logger.Warn("dropping undecodable cached summary", zap.String("key", key), zap.Error(jsonErr))
			c.client.Del(ctx, key)
		}
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("summary cache read failed", zap.String("key", key), zap.Error(err))
	}

	atomic.AddInt64(&c.misses, 1)
	summary, err := c.store.FindByScope(ctx, scope)
	if err != nil {
		return nil, err
	}
	c.set(ctx, summary)
	return summary, nil
}

// ListByLocation is not cached.
func (c *CachedSummaryRepository) ListByLocation(ctx context.Context, locationID string, year int) ([]*pnl.PeriodSummary, error) {
	return c.store.ListByLocation(ctx, locationID, year)
}

// Invalidate removes the cached copy of scope.
func (c *CachedSummaryRepository) Invalidate(ctx context.Context, scope pnl.Scope) error {
	if err := c.client.Del(ctx, c.Key(scope)).Err(); err != nil {
		return fmt.Errorf("invalidate %s: %w", scope, err)
	}
	return nil
}

// Ping checks that Redis answers.
func (c *CachedSummaryRepository) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Stats returns cache hit and miss counts.
func (c *CachedSummaryRepository) Stats() (hits, misses int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses)
}

// set caches summary and reports whether the write went through.
func (c *CachedSummaryRepository) set(ctx context.Context, summary *pnl.PeriodSummary) bool {
	key := c.Key(summary.Scope())
	data, err := json.Marshal(summary)
	if err != nil {
		c.logger.Warn("summary cache encode failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("summary cache write failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

var _ pnl.SummaryRepository = (*CachedSummaryRepository)(nil)
