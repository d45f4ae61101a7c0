package cache

import (
	"context"
	"testing"
	"time"

	"github.com/agentkits/memory/internal/types"
)

// fakeEmbeddingStore is an in-memory stand-in for the persisted
// embedding_cache table, just enough to exercise EmbeddingCache's
// write-through and fallback behavior without a real database.
type fakeEmbeddingStore struct {
	rows  map[string]types.EmbeddingCacheEntry
	calls int
}

func newFakeEmbeddingStore() *fakeEmbeddingStore {
	return &fakeEmbeddingStore{rows: map[string]types.EmbeddingCacheEntry{}}
}

func (f *fakeEmbeddingStore) GetCachedEmbedding(ctx context.Context, hash string) ([]float32, bool, error) {
	f.calls++
	row, ok := f.rows[hash]
	if !ok || time.Now().UTC().After(row.ExpiresAt) {
		return nil, false, nil
	}
	return row.Embedding, true, nil
}

func (f *fakeEmbeddingStore) PutCachedEmbedding(ctx context.Context, entry types.EmbeddingCacheEntry, maxSize int) error {
	f.rows[entry.Hash] = entry
	return nil
}

func TestEmbeddingCachePutThenGetHitsInProcessLayer(t *testing.T) {
	store := newFakeEmbeddingStore()
	c := NewEmbeddingCache(store, 10, time.Hour, 100)
	ctx := context.Background()

	if err := c.Put(ctx, "hash-1", []float32{1, 2, 3}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	v, ok, err := c.Get(ctx, "hash-1")
	if err != nil || !ok {
		t.Fatalf("expected a hit, got ok=%v err=%v", ok, err)
	}
	if len(v) != 3 || v[0] != 1 {
		t.Fatalf("expected the stored vector back, got %v", v)
	}
	if store.calls != 0 {
		t.Fatalf("expected the in-process layer to serve the hit without touching storage, got %d storage calls", store.calls)
	}
}

func TestEmbeddingCacheFallsThroughToStorageOnProcessRestart(t *testing.T) {
	store := newFakeEmbeddingStore()
	warm := NewEmbeddingCache(store, 10, time.Hour, 100)
	ctx := context.Background()
	if err := warm.Put(ctx, "hash-1", []float32{9, 9}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	cold := NewEmbeddingCache(store, 10, time.Hour, 100)
	v, ok, err := cold.Get(ctx, "hash-1")
	if err != nil || !ok {
		t.Fatalf("expected a hit from the shared persisted store, got ok=%v err=%v", ok, err)
	}
	if len(v) != 2 || v[0] != 9 {
		t.Fatalf("expected the persisted vector, got %v", v)
	}
	if store.calls != 1 {
		t.Fatalf("expected exactly one storage lookup on the cold cache's first Get, got %d", store.calls)
	}

	// repopulated from storage: a second Get on the same (cold) instance
	// should not need another storage round trip.
	if _, _, err := cold.Get(ctx, "hash-1"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if store.calls != 1 {
		t.Fatalf("expected the in-process layer to now serve hash-1, got %d storage calls", store.calls)
	}
}

func TestEmbeddingCacheInvalidateDropsOnlyInProcessLayer(t *testing.T) {
	store := newFakeEmbeddingStore()
	c := NewEmbeddingCache(store, 10, time.Hour, 100)
	ctx := context.Background()
	_ = c.Put(ctx, "hash-1", []float32{1})

	c.Invalidate("hash-1")

	v, ok, err := c.Get(ctx, "hash-1")
	if err != nil || !ok {
		t.Fatalf("expected storage to still serve the row after an in-process invalidate, got ok=%v err=%v", ok, err)
	}
	if len(v) != 1 {
		t.Fatalf("expected the persisted vector back, got %v", v)
	}
}
