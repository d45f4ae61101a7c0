package contenthash

import "testing"

func TestHashIsStableAndJoinsParts(t *testing.T) {
	a := Hash("session-1", "hello world")
	b := Hash("session-1", "hello world")
	if a != b {
		t.Fatalf("expected stable hash, got %q and %q", a, b)
	}
	if len(a) != 32 {
		t.Fatalf("expected a 16-byte hex digest (32 chars), got %d: %q", len(a), a)
	}

	c := Hash("session-1", "hello", "world")
	if a == c {
		t.Fatal("expected different joins to produce different hashes")
	}
}
