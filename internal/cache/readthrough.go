package cache

import (
	"strings"
	"time"
)

// ReadThrough wraps a Cache with single-flight-free read-through semantics for
// heavy aggregation queries keyed by their full filter set.
type ReadThrough[V any] struct {
	cache Cache[string, V]
	ttl   time.Duration
}

// NewReadThrough builds a read-through cache with the given TTL and capacity.
func NewReadThrough[V any](ttl time.Duration, capacity int) *ReadThrough[V] {
	return &ReadThrough[V]{
		cache: NewTTLCache[string, V](capacity),
		ttl:   ttl,
	}
}

// Do returns the cached value for key, computing and storing it on a miss.
// Errors are never cached.
func (r *ReadThrough[V]) Do(key string, fn func() (V, error)) (V, error) {
	if v, ok := r.cache.Get(key); ok {
		return v, nil
	}
	v, err := fn()
	if err != nil {
		return v, err
	}
	r.cache.Set(key, v, r.ttl)
	return v, nil
}

// Key joins filter parts into a stable cache key. Every part keeps its
// position and case, so an unset filter still occupies its slot and two
// filter sets never collapse onto the same key.
func Key(parts ...string) string {
	return strings.Join(parts, "|")
}
