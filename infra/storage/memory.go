package storage

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// memoryEntry is one cached value
type memoryEntry struct {
	key         string
	value       []byte
	expiresAt   time.Time
	listElement *list.Element
}

// CacheStats represents cache performance metrics
type CacheStats struct {
	Size        int     `json:"size"`
	MaxSize     int     `json:"max_size"`
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Evictions   int64   `json:"evictions"`
	TTLExpiries int64   `json:"ttl_expiries"`
	HitRatio    float64 `json:"hit_ratio"`
}

// MemoryKV is an in-process TTL store with LRU eviction. It backs the order
// context and seller protection namespaces when CACHE_DRIVER=memory.
type MemoryKV struct {
	entries     map[string]*memoryEntry
	accessOrder *list.List // most recent at front
	maxSize     int
	now         Clock
	mu          sync.Mutex

	hits        int64
	misses      int64
	evictions   int64
	ttlExpiries int64
}

// NewMemoryKV creates a store holding at most maxSize entries (0 means unbounded).
// A nil clock uses time.Now.
func NewMemoryKV(maxSize int, now Clock) *MemoryKV {
	if now == nil {
		now = time.Now
	}
	return &MemoryKV{
		entries:     make(map[string]*memoryEntry),
		accessOrder: list.New(),
		maxSize:     maxSize,
		now:         now,
	}
}

func memoryKey(namespace, key string) string {
	return namespace + "\x00" + key
}

// Set stores value until ttl elapses, replacing any entry
func (c *MemoryKV) Set(_ context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	k := memoryKey(namespace, key)
	stored := append([]byte(nil), value...)

	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(ttl)
	if existing, ok := c.entries[k]; ok {
		existing.value = stored
		existing.expiresAt = expiresAt
		c.accessOrder.MoveToFront(existing.listElement)
		return nil
	}

	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictLRUUnsafe()
	}

	entry := &memoryEntry{key: k, value: stored, expiresAt: expiresAt}
	entry.listElement = c.accessOrder.PushFront(entry)
	c.entries[k] = entry
	return nil
}

// Get returns a live entry; expired entries are dropped and reported as missing
func (c *MemoryKV) Get(_ context.Context, namespace, key string) ([]byte, bool, error) {
	k := memoryKey(namespace, key)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[k]
	if !ok {
		c.misses++
		return nil, false, nil
	}

	if !c.now().Before(entry.expiresAt) {
		c.deleteEntryUnsafe(entry)
		c.ttlExpiries++
		c.misses++
		return nil, false, nil
	}

	c.accessOrder.MoveToFront(entry.listElement)
	c.hits++
	return append([]byte(nil), entry.value...), true, nil
}

// PurgeExpired removes expired entries
func (c *MemoryKV) PurgeExpired(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var removed int64
	for _, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			c.deleteEntryUnsafe(entry)
			c.ttlExpiries++
			removed++
		}
	}
	return removed, nil
}

// Stats returns cache statistics. Size counts expired entries not yet purged.
func (c *MemoryKV) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	hitRatio := 0.0
	if total := c.hits + c.misses; total > 0 {
		hitRatio = float64(c.hits) / float64(total)
	}

	return CacheStats{
		Size:        len(c.entries),
		MaxSize:     c.maxSize,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		TTLExpiries: c.ttlExpiries,
		HitRatio:    hitRatio,
	}
}

// evictLRUUnsafe removes the least recently used entry (lock held)
func (c *MemoryKV) evictLRUUnsafe() {
	lru := c.accessOrder.Back()
	if lru == nil {
		return
	}
	c.deleteEntryUnsafe(lru.Value.(*memoryEntry))
	c.evictions++
}

// deleteEntryUnsafe removes an entry from both map and list (lock held)
func (c *MemoryKV) deleteEntryUnsafe(entry *memoryEntry) {
	delete(c.entries, entry.key)
	if entry.listElement != nil {
		c.accessOrder.Remove(entry.listElement)
	}
}
