package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/restodash/backend/internal/domain/pnl"
	"github.com/restodash/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// SummaryCacheFactory decides whether summaries are served through Redis
type SummaryCacheFactory struct {
	redisConfig   config.RedisConfig
	logger        *zap.Logger
	allowFallback bool
}

// SummaryCacheFactoryOption is a functional option for configuring the factory
type SummaryCacheFactoryOption func(*SummaryCacheFactory)

// WithFactoryLogger sets the logger for the factory and the caches it builds
func WithFactoryLogger(logger *zap.Logger) SummaryCacheFactoryOption {
	return func(f *SummaryCacheFactory) {
		f.logger = logger
	}
}

// WithUncachedFallback controls whether the bare store is used when Redis is unavailable.
// Default is true.
func WithUncachedFallback(allow bool) SummaryCacheFactoryOption {
	return func(f *SummaryCacheFactory) {
		f.allowFallback = allow
	}
}

// NewSummaryCacheFactory creates a new factory
func NewSummaryCacheFactory(cfg config.RedisConfig, opts ...SummaryCacheFactoryOption) *SummaryCacheFactory {
	f := &SummaryCacheFactory{
		redisConfig:   cfg,
		logger:        zap.NewNop(),
		allowFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Wrap returns store behind a Redis cache when caching is enabled and Redis answers.
// The returned close function releases the Redis client and is never nil.
func (f *SummaryCacheFactory) Wrap(ctx context.Context, store pnl.SummaryRepository) (pnl.SummaryRepository, func() error, error) {
	noop := func() error { return nil }
	if !f.redisConfig.Enabled {
		return store, noop, nil
	}

	client, err := NewRedisClient(ctx, f.redisConfig)
	if err != nil {
		if !f.allowFallback {
			return nil, noop, fmt.Errorf("Redis required for summary cache but unavailable: %w", err)
		}
		f.logger.Warn("Redis unavailable, serving summaries without cache", zap.Error(err))
		return store, noop, nil
	}

	f.logger.Info("using Redis summary cache", zap.String("addr", f.redisConfig.Addr()))
	return f.WrapWithClient(store, client), client.Close, nil
}

// WrapWithClient wraps store using an existing client
func (f *SummaryCacheFactory) WrapWithClient(store pnl.SummaryRepository, client redis.Cmdable) *CachedSummaryRepository {
	return NewCachedSummaryRepository(store, client,
		WithTTL(f.redisConfig.TTL),
		WithKeyPrefix(f.redisConfig.KeyPrefix),
		WithLogger(f.logger),
	)
}
