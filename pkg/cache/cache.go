// Package cache holds read-side caches for ledger snapshots and quotes.
package cache

import (
	"fmt"
	"strings"
	"time"
)

// Cache stores derived values under string keys.
type Cache interface {
	// Get returns (value, true) if key is cached.
	Get(key string) (interface{}, bool)

	// Set stores value for ttl. It may drop the write under contention.
	Set(key string, value interface{}, ttl time.Duration) bool

	// Delete removes key.
	Delete(key string)

	// Clear removes every key.
	Clear()

	// Close releases resources.
	Close()
}

// Key joins parts into a cache key.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// Fetch returns the value cached under key, or calls load and caches its
// result. Load errors are not cached.
func Fetch[T any](c Cache, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
		c.Delete(key)
	}

	v, err := load()
	if err != nil {
		var zero T
		return zero, err
	}
	c.Set(key, v, ttl)
	return v, nil
}

// Versioned builds a key that changes whenever the ledger sequence number
// does, so entries never need explicit invalidation.
func Versioned(seq uint64, parts ...string) string {
	return Key(append([]string{fmt.Sprintf("v%d", seq)}, parts...)...)
}
