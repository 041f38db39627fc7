package embedding

import (
	"sort"
	"sync"
	"time"
)

// Cache defaults.
const (
	defaultCacheTTL      = 24 * time.Hour
	defaultCacheCapacity = 10000

	// evictFraction of the capacity is dropped (oldest first) when a
	// purge of expired entries does not free a slot.
	evictFraction = 0.1
)

type cacheEntry struct {
	vector     []float32
	insertedAt time.Time
	expiresAt  time.Time
}

// Cache is a TTL + capacity bounded embedding cache. All methods are safe
// for concurrent use.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]cacheEntry
	ttl      time.Duration
	capacity int
	now      func() time.Time
}

// NewCache creates a cache. Zero ttl or capacity select the defaults.
func NewCache(ttl time.Duration, capacity int) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	return &Cache{
		entries:  make(map[string]cacheEntry),
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
	}
}

// Get returns the cached vector for key. Expired entries are treated as
// misses and removed. The returned slice is a copy.
func (c *Cache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	out := make([]float32, len(e.vector))
	copy(out, e.vector)
	return out, true
}

// Put stores a vector under key. At capacity it first purges expired
// entries, then evicts the oldest 10% by insertion time.
func (c *Cache) Put(key string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.capacity {
		c.purgeExpiredLocked(now)
		if len(c.entries) >= c.capacity {
			c.evictOldestLocked()
		}
	}

	stored := make([]float32, len(vector))
	copy(stored, vector)
	c.entries[key] = cacheEntry{
		vector:     stored,
		insertedAt: now,
		expiresAt:  now.Add(c.ttl),
	}
}

// Len returns the number of entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) purgeExpiredLocked(now time.Time) {
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}

func (c *Cache) evictOldestLocked() {
	n := int(float64(c.capacity) * evictFraction)
	if n < 1 {
		n = 1
	}

	type aged struct {
		key        string
		insertedAt time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{key: k, insertedAt: e.insertedAt})
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].insertedAt.Before(all[j].insertedAt)
	})
	for i := 0; i < n && i < len(all); i++ {
		delete(c.entries, all[i].key)
	}
}
