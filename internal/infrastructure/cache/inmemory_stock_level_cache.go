package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	appinventory "github.com/vetstock/backend/internal/application/inventory"
	"go.uber.org/zap"
)

// Constants for in-memory cache configuration
const (
	defaultCleanupInterval = 30 * time.Second
	defaultStockLevelTTL   = 5 * time.Minute
)

// InMemoryStockLevelCache implements StockLevelCache using in-memory storage.
// Suitable for single-instance deployments and testing; distributed
// deployments should use the Redis cache so invalidations reach every node.
type InMemoryStockLevelCache struct {
	levels  sync.Map // map[string]*levelEntry
	ttl     time.Duration
	logger  *zap.Logger
	stopCh  chan struct{} // Channel to stop the cleanup goroutine
	stopped int32         // Atomic flag to track if cache is stopped

	// Stats for monitoring
	hits   int64
	misses int64
}

// levelEntry wraps a cached stock level with its expiration time
type levelEntry struct {
	value     appinventory.StockLevelResponse
	expiresAt time.Time
}

func (e *levelEntry) isExpired() bool {
	return time.Now().After(e.expiresAt)
}

// InMemoryStockLevelCacheOption is a functional option for configuring the cache
type InMemoryStockLevelCacheOption func(*InMemoryStockLevelCache)

// WithInMemoryTTL sets the entry TTL
func WithInMemoryTTL(ttl time.Duration) InMemoryStockLevelCacheOption {
	return func(c *InMemoryStockLevelCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithInMemoryLogger sets the logger for the cache
func WithInMemoryLogger(logger *zap.Logger) InMemoryStockLevelCacheOption {
	return func(c *InMemoryStockLevelCache) {
		c.logger = logger
	}
}

// NewInMemoryStockLevelCache creates a new in-memory stock level cache
func NewInMemoryStockLevelCache(opts ...InMemoryStockLevelCacheOption) *InMemoryStockLevelCache {
	cache := &InMemoryStockLevelCache{
		ttl:    defaultStockLevelTTL,
		logger: zap.NewNop(),
		stopCh: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(cache)
	}

	// Start background cleanup goroutine
	go cache.cleanupExpired()

	return cache
}

// levelCacheKey generates the cache key for a product/location pair
func levelCacheKey(productID, locationID uuid.UUID) string {
	return "stock:level:" + productID.String() + ":" + locationID.String()
}

// Get retrieves a stock level from cache
func (c *InMemoryStockLevelCache) Get(ctx context.Context, productID, locationID uuid.UUID) (*appinventory.StockLevelResponse, bool) {
	cacheKey := levelCacheKey(productID, locationID)

	if value, ok := c.levels.Load(cacheKey); ok {
		entry := value.(*levelEntry)
		if !entry.isExpired() {
			atomic.AddInt64(&c.hits, 1)
			level := entry.value
			return &level, true
		}
		// Expired, remove from cache
		c.levels.Delete(cacheKey)
	}

	atomic.AddInt64(&c.misses, 1)
	return nil, false
}

// Set stores a stock level in cache
func (c *InMemoryStockLevelCache) Set(ctx context.Context, level appinventory.StockLevelResponse) {
	cacheKey := levelCacheKey(level.ProductID, level.LocationID)
	c.levels.Store(cacheKey, &levelEntry{
		value:     level,
		expiresAt: time.Now().Add(c.ttl),
	})
}

// Invalidate removes a stock level from cache
func (c *InMemoryStockLevelCache) Invalidate(ctx context.Context, productID, locationID uuid.UUID) {
	c.levels.Delete(levelCacheKey(productID, locationID))
}

// InvalidateAll removes all cached stock levels
func (c *InMemoryStockLevelCache) InvalidateAll() {
	c.levels.Range(func(key, _ any) bool {
		c.levels.Delete(key)
		return true
	})
	c.logger.Info("invalidated all cached stock levels")
}

// Close releases the cleanup goroutine
func (c *InMemoryStockLevelCache) Close() error {
	if atomic.CompareAndSwapInt32(&c.stopped, 0, 1) {
		close(c.stopCh)
	}
	return nil
}

// GetStats returns cache statistics
func (c *InMemoryStockLevelCache) GetStats() (hits, misses int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses)
}

// Count returns the number of entries in the cache
func (c *InMemoryStockLevelCache) Count() int {
	count := 0
	c.levels.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

// cleanupExpired periodically removes expired entries from the cache
func (c *InMemoryStockLevelCache) cleanupExpired() {
	ticker := time.NewTicker(defaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.doCleanup()
		}
	}
}

// doCleanup removes expired entries
func (c *InMemoryStockLevelCache) doCleanup() {
	removed := 0
	c.levels.Range(func(key, value any) bool {
		if value.(*levelEntry).isExpired() {
			c.levels.Delete(key)
			removed++
		}
		return true
	})
	if removed > 0 {
		c.logger.Debug("cleaned up expired stock level cache entries",
			zap.Int("removed", removed))
	}
}

// Ensure InMemoryStockLevelCache implements StockLevelCache
var _ appinventory.StockLevelCache = (*InMemoryStockLevelCache)(nil)
