package catalog

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// CachedCatalog is a read-through cache in front of another catalog. Misses are
// not cached so newly added tests are found without an invalidation.
type CachedCatalog struct {
	next Catalog

	mu        sync.RWMutex
	durations map[string]int
}

// NewCachedCatalog wraps next with a cache
func NewCachedCatalog(next Catalog) *CachedCatalog {
	return &CachedCatalog{
		next:      next,
		durations: make(map[string]int),
	}
}

// Duration implements Catalog
func (c *CachedCatalog) Duration(ctx context.Context, testID string) (int, error) {
	c.mu.RLock()
	seconds, ok := c.durations[testID]
	c.mu.RUnlock()
	if ok {
		return seconds, nil
	}

	seconds, err := c.next.Duration(ctx, testID)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.durations[testID] = seconds
	c.mu.Unlock()
	return seconds, nil
}

// Invalidate drops one cached entry
func (c *CachedCatalog) Invalidate(testID string) {
	c.mu.Lock()
	delete(c.durations, testID)
	c.mu.Unlock()
	log.Debug().Str("test_id", testID).Msg("catalog cache entry invalidated")
}

// InvalidateAll empties the cache
func (c *CachedCatalog) InvalidateAll() {
	c.mu.Lock()
	n := len(c.durations)
	c.durations = make(map[string]int)
	c.mu.Unlock()
	log.Debug().Int("entries", n).Msg("catalog cache cleared")
}

// Len returns the number of cached entries
func (c *CachedCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.durations)
}
