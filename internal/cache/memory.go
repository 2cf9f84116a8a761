package cache

import (
	"math"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// MemoryCache is the L1 cache. Entries are evicted least recently used
// first until the total byte size fits the capacity.
type MemoryCache struct {
	capacity int64
	size     int64

	lru *simplelru.LRU[string, *memoryEntry]

	mu    sync.Mutex
	stats Stats
}

type memoryEntry struct {
	value     []byte
	timestamp time.Time
}

// NewMemoryCache creates a new memory cache with the specified capacity in bytes.
func NewMemoryCache(capacity int64) *MemoryCache {
	// The entry count is unbounded; eviction is driven by byte size.
	lru, err := simplelru.NewLRU[string, *memoryEntry](math.MaxInt32, nil)
	if err != nil {
		panic(err)
	}
	return &MemoryCache{
		capacity: capacity,
		lru:      lru,
		stats:    Stats{Capacity: capacity},
	}
}

// Get retrieves a value from the cache.
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lru.Get(key)
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	return entry.value, true
}

// Put stores a value in the cache.
func (c *MemoryCache) Put(key string, value []byte) error {
	valueSize := int64(len(value))
	if valueSize > c.capacity {
		return ErrItemTooLarge
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.lru.Peek(key); ok {
		c.size -= int64(len(old.value))
		c.lru.Remove(key)
	}
	for c.size+valueSize > c.capacity && c.lru.Len() > 0 {
		c.evictOldest()
	}

	c.lru.Add(key, &memoryEntry{value: value, timestamp: time.Now()})
	c.size += valueSize
	return nil
}

// Delete removes an entry from the cache.
func (c *MemoryCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.lru.Peek(key); ok {
		c.size -= int64(len(entry.value))
		c.lru.Remove(key)
	}
	return nil
}

// Clear removes all entries from the cache.
func (c *MemoryCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Purge()
	c.size = 0
	return nil
}

// Size returns the current cache size in bytes.
func (c *MemoryCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Contains checks if a key exists in the cache without updating recency.
func (c *MemoryCache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Contains(key)
}

// Stats returns cache statistics.
func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Size = c.size
	stats.ItemCount = int64(c.lru.Len())
	stats.computeHitRate()
	return stats
}

// Keys returns the keys from least to most recently used.
func (c *MemoryCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Keys()
}

// Prune removes entries older than maxAge and returns how many were removed.
func (c *MemoryCache) Prune(maxAge time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	pruned := 0
	for _, key := range c.lru.Keys() {
		entry, ok := c.lru.Peek(key)
		if !ok || !entry.timestamp.Before(cutoff) {
			continue
		}
		c.size -= int64(len(entry.value))
		c.lru.Remove(key)
		pruned++
	}
	return pruned
}

// evictOldest removes the least recently used item (must be called with lock held).
func (c *MemoryCache) evictOldest() {
	if _, entry, ok := c.lru.RemoveOldest(); ok {
		c.size -= int64(len(entry.value))
		c.stats.Evictions++
	}
}

var _ Cache = (*MemoryCache)(nil)
