package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const defaultMaxEntries = 10000

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// MemoryOption configures a MemoryCache.
type MemoryOption func(*MemoryCache)

// WithMaxEntries bounds the number of entries. When full, expired entries are dropped
// first and then the entry closest to expiry.
func WithMaxEntries(n int) MemoryOption {
	return func(c *MemoryCache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithCleanupInterval sets how often expired entries are swept.
func WithCleanupInterval(d time.Duration) MemoryOption {
	return func(c *MemoryCache) {
		if d > 0 {
			c.cleanupInterval = d
		}
	}
}

// MemoryCache is a process-local Cache for single-instance deployments and tests.
type MemoryCache struct {
	mu         sync.RWMutex
	entries    map[string]memoryEntry
	maxEntries int

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewMemoryCache creates a memory cache and starts its cleanup loop. Call Close to stop it.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	c := &MemoryCache{
		entries:         make(map[string]memoryEntry),
		maxEntries:      defaultMaxEntries,
		cleanupInterval: time.Minute,
		stopCleanup:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.cleanup()

	return c
}

// Get returns a copy of the cached value or ErrCacheMiss.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || entry.expired(time.Now()) {
		c.misses.Add(1)
		return nil, ErrCacheMiss
	}
	c.hits.Add(1)
	return append([]byte(nil), entry.value...), nil
}

// Set stores a copy of value for ttl.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := time.Now()
	entry := memoryEntry{value: append([]byte(nil), value...), expiresAt: now.Add(ttl)}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.makeRoomLocked(now)
	}
	c.entries[key] = entry
	return nil
}

// Delete removes the given keys.
func (c *MemoryCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		delete(c.entries, key)
	}
	return nil
}

// Stats returns hit/miss counters and the number of stored entries.
func (c *MemoryCache) Stats(ctx context.Context) map[string]interface{} {
	c.mu.RLock()
	size := len(c.entries)
	c.mu.RUnlock()

	return map[string]interface{}{
		"type":        "memory",
		"entries":     size,
		"max_entries": c.maxEntries,
		"hits":        c.hits.Load(),
		"misses":      c.misses.Load(),
		"evictions":   c.evictions.Load(),
	}
}

// Close stops the background cleanup goroutine.
func (c *MemoryCache) Close() error {
	c.stopOnce.Do(func() { close(c.stopCleanup) })
	return nil
}

func (c *MemoryCache) cleanup() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.removeExpiredLocked(time.Now())
			c.mu.Unlock()
		case <-c.stopCleanup:
			return
		}
	}
}

func (c *MemoryCache) removeExpiredLocked(now time.Time) int {
	removed := 0
	for key, entry := range c.entries {
		if entry.expired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// makeRoomLocked frees at least one slot.
func (c *MemoryCache) makeRoomLocked(now time.Time) {
	if c.removeExpiredLocked(now) > 0 {
		return
	}

	var (
		victim string
		soon   time.Time
	)
	for key, entry := range c.entries {
		if victim == "" || entry.expiresAt.Before(soon) {
			victim, soon = key, entry.expiresAt
		}
	}
	delete(c.entries, victim)
	c.evictions.Add(1)
}

// Ensure MemoryCache implements Cache
var _ Cache = (*MemoryCache)(nil)
