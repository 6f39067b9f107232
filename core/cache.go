package core

import (
	"crypto/md5"
	"fmt"
	"sync"
	"time"
)

// CachedRewrite is one cached rewrite outcome with metadata.
type CachedRewrite struct {
	SQL       string
	Plan      *PartitionPlan
	Outcome   Outcome
	CreatedAt time.Time
	TTL       time.Duration
	Size      int64 // Estimated memory size in bytes
}

// RewriteCacheConfig holds configuration for the rewrite cache
type RewriteCacheConfig struct {
	MaxMemoryMB int           // Maximum memory usage in MB
	DefaultTTL  time.Duration // Default TTL for cached entries
	Enabled     bool          // Whether caching is enabled
}

// RewriteCache is an LRU cache for rewrite results with TTL and memory
// management. The rewriter is deterministic over (statement, workers,
// key column, batch size), which is what makes caching its output sound.
type RewriteCache struct {
	config   RewriteCacheConfig
	entries  map[string]*CachedRewrite
	keyOrder []string // For LRU eviction
	mutex    sync.RWMutex
	stats    RewriteCacheStats
}

// RewriteCacheStats tracks cache performance metrics
type RewriteCacheStats struct {
	Hits         int64
	Misses       int64
	Evictions    int64
	TotalLookups int64
	CurrentSize  int64 // Current memory usage in bytes
}

// NewRewriteCache creates a new rewrite cache with the given configuration
func NewRewriteCache(config RewriteCacheConfig) *RewriteCache {
	return &RewriteCache{
		config:   config,
		entries:  make(map[string]*CachedRewrite),
		keyOrder: make([]string, 0),
	}
}

// Get retrieves a cached rewrite if it exists and is not expired
func (rc *RewriteCache) Get(sql string, workers, batchSize int, keyColumn string) (*CachedRewrite, bool) {
	if !rc.config.Enabled {
		return nil, false
	}

	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	rc.stats.TotalLookups++
	key := rc.generateCacheKey(sql, workers, batchSize, keyColumn)

	entry, exists := rc.entries[key]
	if !exists {
		rc.stats.Misses++
		return nil, false
	}

	if rc.isExpired(entry) {
		rc.removeEntry(key)
		rc.stats.Misses++
		return nil, false
	}

	rc.moveToEnd(key)
	rc.stats.Hits++
	return entry, true
}

// Put stores a rewrite result in the cache
func (rc *RewriteCache) Put(sql string, workers, batchSize int, keyColumn string, entry *CachedRewrite) {
	if !rc.config.Enabled || entry == nil {
		return
	}

	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	key := rc.generateCacheKey(sql, workers, batchSize, keyColumn)
	entry.CreatedAt = time.Now()
	entry.TTL = rc.config.DefaultTTL
	entry.Size = rc.estimateSize(entry)

	if _, exists := rc.entries[key]; exists {
		rc.removeEntry(key)
	}

	rc.entries[key] = entry
	rc.keyOrder = append(rc.keyOrder, key)
	rc.stats.CurrentSize += entry.Size

	rc.evictIfNeeded()
}

// generateCacheKey creates a unique key for one rewrite input. The raw
// statement participates (not its fingerprint): literals survive into
// rewritten text, so literal-insensitive keying would serve wrong results.
func (rc *RewriteCache) generateCacheKey(sql string, workers, batchSize int, keyColumn string) string {
	hash := md5.Sum([]byte(fmt.Sprintf("%s|%d|%d|%s", sql, workers, batchSize, keyColumn)))
	return fmt.Sprintf("%x", hash)
}

// isExpired checks if a cache entry has exceeded its TTL
func (rc *RewriteCache) isExpired(entry *CachedRewrite) bool {
	if entry.TTL <= 0 {
		return false // No expiration
	}
	return time.Since(entry.CreatedAt) > entry.TTL
}

// moveToEnd moves a key to the end of the order slice (most recently used)
func (rc *RewriteCache) moveToEnd(key string) {
	for i, k := range rc.keyOrder {
		if k == key {
			rc.keyOrder = append(rc.keyOrder[:i], rc.keyOrder[i+1:]...)
			break
		}
	}
	rc.keyOrder = append(rc.keyOrder, key)
}

// removeEntry removes an entry from the cache
func (rc *RewriteCache) removeEntry(key string) {
	if entry, exists := rc.entries[key]; exists {
		rc.stats.CurrentSize -= entry.Size
		delete(rc.entries, key)

		for i, k := range rc.keyOrder {
			if k == key {
				rc.keyOrder = append(rc.keyOrder[:i], rc.keyOrder[i+1:]...)
				break
			}
		}
	}
}

// evictIfNeeded removes old entries if memory limit is exceeded
func (rc *RewriteCache) evictIfNeeded() {
	maxBytes := int64(rc.config.MaxMemoryMB) * 1024 * 1024

	rc.removeExpiredEntries()

	for rc.stats.CurrentSize > maxBytes && len(rc.keyOrder) > 0 {
		keyToEvict := rc.keyOrder[0]
		rc.removeEntry(keyToEvict)
		rc.stats.Evictions++
	}
}

// removeExpiredEntries removes all expired entries from the cache
func (rc *RewriteCache) removeExpiredEntries() {
	var keysToRemove []string
	for key, entry := range rc.entries {
		if rc.isExpired(entry) {
			keysToRemove = append(keysToRemove, key)
		}
	}
	for _, key := range keysToRemove {
		rc.removeEntry(key)
	}
}

// Clear removes all entries from the cache
func (rc *RewriteCache) Clear() {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	rc.entries = make(map[string]*CachedRewrite)
	rc.keyOrder = make([]string, 0)
	rc.stats.CurrentSize = 0
}

// GetStats returns current cache statistics
func (rc *RewriteCache) GetStats() RewriteCacheStats {
	rc.mutex.RLock()
	defer rc.mutex.RUnlock()
	return rc.stats
}

// estimateSize estimates the memory footprint of a cached rewrite
func (rc *RewriteCache) estimateSize(entry *CachedRewrite) int64 {
	size := int64(100) // struct overhead
	size += int64(len(entry.SQL)) + 16
	if entry.Plan != nil {
		size += 50
		for _, branch := range entry.Plan.Branches {
			size += int64(len(branch.Predicate)) + 32
		}
		size += int64(len(entry.Plan.KeyExpr)) + 16
	}
	return size
}

// GetHitRate returns the cache hit rate as a percentage
func (stats *RewriteCacheStats) GetHitRate() float64 {
	if stats.TotalLookups == 0 {
		return 0.0
	}
	return (float64(stats.Hits) / float64(stats.TotalLookups)) * 100.0
}
