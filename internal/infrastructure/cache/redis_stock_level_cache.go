package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	appinventory "github.com/vetstock/backend/internal/application/inventory"
	"go.uber.org/zap"
)

// RedisStockLevelCache implements StockLevelCache using Redis. Suitable for
// distributed deployments where multiple instances need to see invalidations.
// Redis failures degrade to cache misses; reads always have the repository
// behind them.
type RedisStockLevelCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// RedisCacheConfig holds Redis connection configuration
type RedisCacheConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisStockLevelCache creates a new Redis-based stock level cache
func NewRedisStockLevelCache(cfg RedisCacheConfig, logger *zap.Logger) (*RedisStockLevelCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newRedisStockLevelCache(client, cfg.TTL, logger), nil
}

// NewRedisStockLevelCacheWithClient creates a cache with an existing Redis
// client. Useful for testing or when sharing a client across components.
func NewRedisStockLevelCacheWithClient(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisStockLevelCache {
	return newRedisStockLevelCache(client, ttl, logger)
}

func newRedisStockLevelCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisStockLevelCache {
	if ttl <= 0 {
		ttl = defaultStockLevelTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStockLevelCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// Get retrieves a stock level from Redis
func (c *RedisStockLevelCache) Get(ctx context.Context, productID, locationID uuid.UUID) (*appinventory.StockLevelResponse, bool) {
	key := levelCacheKey(productID, locationID)

	payload, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("redis stock level read failed",
				zap.String("key", key),
				zap.Error(err))
		}
		return nil, false
	}

	var level appinventory.StockLevelResponse
	if err := json.Unmarshal(payload, &level); err != nil {
		c.logger.Warn("corrupt stock level cache entry, dropping",
			zap.String("key", key),
			zap.Error(err))
		c.client.Del(ctx, key)
		return nil, false
	}
	return &level, true
}

// Set stores a stock level in Redis with the configured TTL
func (c *RedisStockLevelCache) Set(ctx context.Context, level appinventory.StockLevelResponse) {
	key := levelCacheKey(level.ProductID, level.LocationID)

	payload, err := json.Marshal(level)
	if err != nil {
		c.logger.Warn("failed to marshal stock level for cache",
			zap.String("key", key),
			zap.Error(err))
		return
	}

	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.Warn("redis stock level write failed",
			zap.String("key", key),
			zap.Error(err))
	}
}

// Invalidate removes a stock level from Redis
func (c *RedisStockLevelCache) Invalidate(ctx context.Context, productID, locationID uuid.UUID) {
	key := levelCacheKey(productID, locationID)
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Warn("redis stock level invalidation failed",
			zap.String("key", key),
			zap.Error(err))
	}
}

// Close closes the Redis client
func (c *RedisStockLevelCache) Close() error {
	return c.client.Close()
}

// GetClient returns the underlying Redis client (for testing/monitoring)
func (c *RedisStockLevelCache) GetClient() *redis.Client {
	return c.client
}

// Ensure RedisStockLevelCache implements StockLevelCache
var _ appinventory.StockLevelCache = (*RedisStockLevelCache)(nil)
