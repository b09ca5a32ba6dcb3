package cache

import (
	"fmt"

	appinventory "github.com/vetstock/backend/internal/application/inventory"
	"github.com/vetstock/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// StockLevelCacheFactory creates stock level caches based on configuration
type StockLevelCacheFactory struct {
	redisConfig           config.RedisConfig
	cacheConfig           config.CacheConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// StockLevelCacheFactoryOption is a functional option for configuring the factory
type StockLevelCacheFactoryOption func(*StockLevelCacheFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) StockLevelCacheFactoryOption {
	return func(f *StockLevelCacheFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to the in-memory cache
// when Redis is unavailable. Default is true.
func WithInMemoryFallback(allow bool) StockLevelCacheFactoryOption {
	return func(f *StockLevelCacheFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewStockLevelCacheFactory creates a new factory
func NewStockLevelCacheFactory(redisCfg config.RedisConfig, cacheCfg config.CacheConfig, opts ...StockLevelCacheFactoryOption) *StockLevelCacheFactory {
	f := &StockLevelCacheFactory{
		redisConfig:           redisCfg,
		cacheConfig:           cacheCfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// CreateRedisCache creates a Redis-backed stock level cache
func (f *StockLevelCacheFactory) CreateRedisCache() (appinventory.StockLevelCache, error) {
	cache, err := NewRedisStockLevelCache(RedisCacheConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
		TTL:      f.cacheConfig.StockLevelTTL,
	}, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis stock level cache: %w", err)
	}
	return cache, nil
}

// CreateInMemoryCache creates an in-memory stock level cache.
// In-memory caches do not share invalidations across process instances,
// which can serve stale levels in distributed deployments.
func (f *StockLevelCacheFactory) CreateInMemoryCache() appinventory.StockLevelCache {
	return NewInMemoryStockLevelCache(
		WithInMemoryTTL(f.cacheConfig.StockLevelTTL),
		WithInMemoryLogger(f.logger),
	)
}

// CreateCache creates a stock level cache based on whether Redis is enabled
// and reachable, falling back to in-memory when allowed.
func (f *StockLevelCacheFactory) CreateCache() (appinventory.StockLevelCache, error) {
	if !f.redisConfig.Enabled {
		f.logger.Info("redis disabled, using in-memory stock level cache")
		return f.CreateInMemoryCache(), nil
	}

	cache, err := f.CreateRedisCache()
	if err == nil {
		f.logger.Info("using Redis stock level cache")
		return cache, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for stock level cache but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory stock level cache. "+
		"Invalidations will not reach other instances.",
		zap.Error(err),
	)
	return f.CreateInMemoryCache(), nil
}
