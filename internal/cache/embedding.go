package cache

import (
	"context"
	"time"

	"github.com/agentkits/memory/internal/metrics"
	"github.com/agentkits/memory/internal/storage"
	"github.com/agentkits/memory/internal/types"
)

// EmbeddingCache is the write-through Cache Layer sitting in front of a
// storage.EmbeddingCacheStore: Get checks the in-process LRU first,
// falling through to the persisted table on miss and repopulating the LRU
// from it; Put writes both at once, so neither layer is ever the sole
// source of truth for long.
type EmbeddingCache struct {
	mem     *Cache[[]float32]
	store   storage.EmbeddingCacheStore
	ttl     time.Duration
	maxSize int
	metrics *metrics.Recorder
}

// WithMetrics attaches the Metrics component's recorder, returning c for
// chaining at construction time. A nil recorder (the default) makes every
// recording call a no-op.
func (c *EmbeddingCache) WithMetrics(m *metrics.Recorder) *EmbeddingCache {
	c.metrics = m
	return c
}

// NewEmbeddingCache builds an EmbeddingCache. memSize/ttl bound the
// in-process LRU (config's cache_size/cache_ttl); maxSize bounds the
// persisted table (config's embedding_cache_max_size, spec §3's
// EmbeddingCacheEntry "on capacity, oldest-by-last-access evicted").
func NewEmbeddingCache(store storage.EmbeddingCacheStore, memSize int, ttl time.Duration, maxSize int) *EmbeddingCache {
	return &EmbeddingCache{mem: New[[]float32](memSize, ttl), store: store, ttl: ttl, maxSize: maxSize}
}

// Get returns the cached vector for hash, checking the in-process layer
// before the persisted one. A persisted-layer hit is also a miss once its
// row has expired (storage.GetCachedEmbedding already applies that rule).
func (c *EmbeddingCache) Get(ctx context.Context, hash string) ([]float32, bool, error) {
	if v, ok := c.mem.Get(hash); ok {
		c.metrics.CacheHit(ctx)
		return v, true, nil
	}
	v, ok, err := c.store.GetCachedEmbedding(ctx, hash)
	if err != nil || !ok {
		c.metrics.CacheMiss(ctx)
		return nil, false, err
	}
	c.mem.Set(hash, v)
	c.metrics.CacheHit(ctx)
	return v, true, nil
}

// Put writes vec to both layers. The in-process write always succeeds;
// the persisted write can fail (disk full, locked), in which case the
// caller still has a cache-only hit until this process exits.
func (c *EmbeddingCache) Put(ctx context.Context, hash string, vec []float32) error {
	c.mem.Set(hash, vec)
	now := time.Now().UTC()
	entry := types.EmbeddingCacheEntry{
		Hash:           hash,
		Embedding:      vec,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	if c.ttl > 0 {
		entry.ExpiresAt = now.Add(c.ttl)
	} else {
		entry.ExpiresAt = now.Add(24 * 365 * time.Hour)
	}
	return c.store.PutCachedEmbedding(ctx, entry, c.maxSize)
}

// Invalidate drops hash from the in-process layer only; the persisted row
// is left for its own TTL/capacity eviction to reclaim, since a bad vector
// in the LRU is the urgent case (served immediately, in-process) while a
// bad row on disk is not (always re-validated before being trusted).
func (c *EmbeddingCache) Invalidate(hash string) {
	c.mem.Invalidate(hash)
}
