package cache

import (
	"testing"
	"time"
)

func TestSetAndGetRoundTrip(t *testing.T) {
	c := New[string](10, time.Minute)
	c.Set("a", "apple")

	v, ok := c.Get("a")
	if !ok || v != "apple" {
		t.Fatalf("expected a hit of %q, got %q ok=%v", "apple", v, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Fatalf("expected a miss for an unset key")
	}
}

func TestEntriesExpireAfterTTL(t *testing.T) {
	c := New[int](10, 10*time.Millisecond)
	c.Set("k", 1)

	if _, ok := c.Get("k"); !ok {
		t.Fatalf("expected a hit immediately after Set")
	}
	time.Sleep(30 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected the entry to have expired")
	}
}

func TestSizeBoundEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[int](2, time.Hour)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // touch a so b is the least recently used
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatalf("expected b evicted as least recently used")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("expected a to survive (recently touched)")
	}
	if _, ok := c.Get("c"); !ok {
		t.Fatalf("expected c to survive (just inserted)")
	}
}

func TestInvalidatePrefixDropsMatchingKeysOnly(t *testing.T) {
	c := New[int](10, time.Hour)
	c.Set("entry:1:snapshot", 1)
	c.Set("entry:1:embedding", 2)
	c.Set("entry:2:snapshot", 3)

	c.InvalidatePrefix("entry:1:")

	if _, ok := c.Get("entry:1:snapshot"); ok {
		t.Fatalf("expected entry:1:snapshot invalidated")
	}
	if _, ok := c.Get("entry:1:embedding"); ok {
		t.Fatalf("expected entry:1:embedding invalidated")
	}
	if _, ok := c.Get("entry:2:snapshot"); !ok {
		t.Fatalf("expected entry:2:snapshot to survive an unrelated prefix invalidation")
	}
}
