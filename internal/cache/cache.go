// Package cache is the in-process Cache Layer (spec §2 "Cache Layer: LRU
// with TTL; pattern invalidation; write-through"): a generic LRU+TTL cache
// over hashicorp/golang-lru/v2's expirable list, plus a write-through
// wrapper in front of the persisted embedding_cache table so a warm
// process skips the database round trip entirely and a cold one still
// finds vectors a prior run already paid to compute.
package cache

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is a size-bounded, per-entry-TTL LRU keyed by string. Eviction
// past size is least-recently-used, exactly the donor's own bound-by-size
// instinct for the embedding_cache table (oldest-by-last-access first),
// applied here to an in-process layer instead of a SQL table.
type Cache[V any] struct {
	lru *expirable.LRU[string, V]
}

// New builds a Cache holding at most size entries, each expiring ttl after
// its last write. ttl of 0 means entries never expire on their own (size
// eviction still applies).
func New[V any](size int, ttl time.Duration) *Cache[V] {
	return &Cache[V]{lru: expirable.NewLRU[string, V](size, nil, ttl)}
}

func (c *Cache[V]) Get(key string) (V, bool) {
	return c.lru.Get(key)
}

func (c *Cache[V]) Set(key string, val V) {
	c.lru.Add(key, val)
}

// Invalidate drops one key.
func (c *Cache[V]) Invalidate(key string) {
	c.lru.Remove(key)
}

// InvalidatePrefix drops every cached key sharing prefix — the "pattern
// invalidation" spec calls for, e.g. dropping an Entry's cached snapshot
// together with any derivative keys recorded under the same id.
func (c *Cache[V]) InvalidatePrefix(prefix string) {
	for _, k := range c.lru.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.lru.Remove(k)
		}
	}
}

func (c *Cache[V]) Len() int {
	return c.lru.Len()
}
