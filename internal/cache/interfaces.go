package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Cache defines the interface for caching operations.
// This abstraction allows swapping between memory cache (development)
// and Redis cache (production) without changing business logic.
type Cache interface {
	// Get retrieves a value by key. Returns ErrCacheMiss if not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the given keys.
	Delete(ctx context.Context, keys ...string) error

	// Stats returns hit/miss counters and backend details.
	Stats(ctx context.Context) map[string]interface{}
}

// Common cache errors
type CacheError string

func (e CacheError) Error() string { return string(e) }

const (
	// ErrCacheMiss indicates the key was not found in cache.
	ErrCacheMiss CacheError = "cache miss"
)

// GetOrLoad returns the cached JSON value for key, or calls load and caches its result.
// Cache failures never fail the call; they only bypass the cache.
func GetOrLoad[T any](ctx context.Context, c Cache, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	if raw, err := c.Get(ctx, key); err == nil {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, nil
		}
	}

	v, err := load()
	if err != nil {
		return v, err
	}

	if raw, err := json.Marshal(v); err == nil {
		_ = c.Set(ctx, key, raw, ttl)
	}
	return v, nil
}

// Key builds a namespaced cache key.
func Key(kind, id string) string {
	return fmt.Sprintf("%s:%s", kind, id)
}
