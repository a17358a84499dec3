package services

import (
	"context"
	"sync"
	"time"

	"github.com/fenilmodi00/ipo-yield-backend/models"
)

// CacheEntry represents a cached item with expiration
type CacheEntry struct {
	Data      interface{}
	ExpiresAt time.Time
}

// IsExpired checks if the cache entry has expired
func (ce *CacheEntry) IsExpired() bool {
	return time.Now().After(ce.ExpiresAt)
}

// CacheService is an in-memory TTL cache with bounded size and a background
// sweeper
type CacheService struct {
	cache      map[string]*CacheEntry
	mutex      sync.RWMutex
	defaultTTL time.Duration
	maxSize    int
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewCacheServiceWithConfig creates a cache service with custom configuration
func NewCacheServiceWithConfig(defaultTTL time.Duration, maxSize int) *CacheService {
	cs := &CacheService{
		cache:      make(map[string]*CacheEntry),
		defaultTTL: defaultTTL,
		maxSize:    maxSize,
		stop:       make(chan struct{}),
	}

	go cs.sweep(5 * time.Minute)

	return cs
}

// Get retrieves a value from cache
func (cs *CacheService) Get(key string) (interface{}, bool) {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	entry, exists := cs.cache[key]
	if !exists || entry.IsExpired() {
		return nil, false
	}

	return entry.Data, true
}

// Set stores a value in cache with default TTL
func (cs *CacheService) Set(key string, value interface{}) {
	cs.SetWithTTL(key, value, cs.defaultTTL)
}

// SetWithTTL stores a value in cache with custom TTL
func (cs *CacheService) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	if _, exists := cs.cache[key]; !exists && len(cs.cache) >= cs.maxSize {
		cs.evictOldest()
	}

	cs.cache[key] = &CacheEntry{
		Data:      value,
		ExpiresAt: time.Now().Add(ttl),
	}
}

// evictOldest removes the entry closest to expiry
func (cs *CacheService) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range cs.cache {
		if oldestKey == "" || entry.ExpiresAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.ExpiresAt
		}
	}

	if oldestKey != "" {
		delete(cs.cache, oldestKey)
	}
}

// Delete removes a value from cache
func (cs *CacheService) Delete(key string) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	delete(cs.cache, key)
}

// Size returns the number of items in cache
func (cs *CacheService) Size() int {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	return len(cs.cache)
}

// CleanupExpired removes expired entries and returns how many were removed
func (cs *CacheService) CleanupExpired() int {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	removed := 0
	for key, entry := range cs.cache {
		if entry.IsExpired() {
			delete(cs.cache, key)
			removed++
		}
	}
	return removed
}

// Stop ends the background sweeper
func (cs *CacheService) Stop() {
	cs.stopOnce.Do(func() { close(cs.stop) })
}

func (cs *CacheService) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cs.CleanupExpired()
		case <-cs.stop:
			return
		}
	}
}

// CachedDatasetSource wraps a DatasetSource so loads inside the TTL are
// served from memory
type CachedDatasetSource struct {
	source DatasetSource
	cache  *CacheService
	ttl    time.Duration
}

// NewCachedDatasetSource creates a caching wrapper around source
func NewCachedDatasetSource(source DatasetSource, cache *CacheService, ttl time.Duration) *CachedDatasetSource {
	return &CachedDatasetSource{
		source: source,
		cache:  cache,
		ttl:    ttl,
	}
}

// Name returns the wrapped source's name
func (cds *CachedDatasetSource) Name() string {
	return cds.source.Name()
}

// Load returns the cached dataset when fresh, loading and caching otherwise
func (cds *CachedDatasetSource) Load(ctx context.Context) (*models.Dataset, error) {
	cacheKey := cds.cacheKey()

	if cached, found := cds.cache.Get(cacheKey); found {
		if dataset, ok := cached.(*models.Dataset); ok {
			return dataset, nil
		}
	}

	dataset, err := cds.source.Load(ctx)
	if err != nil {
		return nil, err
	}

	cds.cache.SetWithTTL(cacheKey, dataset, cds.ttl)
	return dataset, nil
}

// Invalidate drops the cached dataset so the next Load reads the source
func (cds *CachedDatasetSource) Invalidate() {
	cds.cache.Delete(cds.cacheKey())
}

// GetCacheStats returns cache statistics
func (cds *CachedDatasetSource) GetCacheStats() map[string]interface{} {
	_, cached := cds.cache.Get(cds.cacheKey())
	return map[string]interface{}{
		"size":   cds.cache.Size(),
		"type":   "in-memory",
		"cached": cached,
		"ttl":    cds.ttl.String(),
	}
}

func (cds *CachedDatasetSource) cacheKey() string {
	return "dataset:" + cds.source.Name()
}
