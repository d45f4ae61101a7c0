package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentkits/memory/internal/types"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	dir := t.TempDir()
	s, err := New(context.Background(), filepath.Join(dir, "memory.db"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreAndGetEntry(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	e := &types.Entry{
		ID:          "entry-1",
		Namespace:   "decision",
		Key:         "k1",
		Content:     "use modernc.org/sqlite for the storage kernel",
		Type:        types.EntrySemantic,
		Tags:        []string{"storage", "sqlite"},
		AccessLevel: types.AccessProject,
	}
	if err := s.StoreEntry(ctx, e); err != nil {
		t.Fatalf("StoreEntry: %v", err)
	}

	got, err := s.GetEntry(ctx, "entry-1")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if got.Content != e.Content || got.Namespace != e.Namespace {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.AccessCount != 1 {
		t.Fatalf("expected access_count bumped to 1, got %d", got.AccessCount)
	}

	byKey, err := s.GetEntryByKey(ctx, "decision", "k1")
	if err != nil {
		t.Fatalf("GetEntryByKey: %v", err)
	}
	if byKey.ID != e.ID {
		t.Fatalf("expected same entry by key, got %s", byKey.ID)
	}
}

func TestUpdateEntryIncrementsVersion(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	e := &types.Entry{ID: "entry-2", Namespace: "pattern", Content: "original", Type: types.EntryEpisodic}
	if err := s.StoreEntry(ctx, e); err != nil {
		t.Fatalf("StoreEntry: %v", err)
	}

	newContent := "revised"
	updated, err := s.UpdateEntry(ctx, "entry-2", types.EntryPatch{Content: &newContent})
	if err != nil {
		t.Fatalf("UpdateEntry: %v", err)
	}
	if updated.Content != newContent {
		t.Fatalf("expected content updated, got %q", updated.Content)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version 2, got %d", updated.Version)
	}
}

func TestDeleteEntry(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	e := &types.Entry{ID: "entry-3", Namespace: "context", Content: "temp", Type: types.EntryWorking}
	if err := s.StoreEntry(ctx, e); err != nil {
		t.Fatalf("StoreEntry: %v", err)
	}

	ok, err := s.DeleteEntry(ctx, "entry-3")
	if err != nil || !ok {
		t.Fatalf("DeleteEntry: ok=%v err=%v", ok, err)
	}

	if _, err := s.GetEntry(ctx, "entry-3"); !isNotFound(err) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	ok, err = s.DeleteEntry(ctx, "entry-3")
	if err != nil || ok {
		t.Fatalf("expected second delete to report not-found: ok=%v err=%v", ok, err)
	}
}

func TestSearchEntriesByVector(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	a := make([]float32, 384)
	a[0] = 1
	b := make([]float32, 384)
	b[1] = 1

	if err := s.StoreEntry(ctx, &types.Entry{ID: "va", Namespace: "ns", Content: "a", Type: types.EntrySemantic, Embedding: a}); err != nil {
		t.Fatalf("store a: %v", err)
	}
	if err := s.StoreEntry(ctx, &types.Entry{ID: "vb", Namespace: "ns", Content: "b", Type: types.EntrySemantic, Embedding: b}); err != nil {
		t.Fatalf("store b: %v", err)
	}

	results, err := s.SearchEntriesByVector(ctx, a, 5, 0, types.EntryFilter{Namespace: "ns"})
	if err != nil {
		t.Fatalf("SearchEntriesByVector: %v", err)
	}
	if len(results) == 0 || results[0].Entry.ID != "va" {
		t.Fatalf("expected va ranked first, got %+v", results)
	}
	if results[0].Score < 0.99 {
		t.Fatalf("expected near-1.0 cosine for identical vector, got %f", results[0].Score)
	}
}

func TestSearchEntriesByTextFindsCJKSubstring(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	e := &types.Entry{
		ID:        "jp-1",
		Namespace: "japanese",
		Content:   "日本語のテスト内容です。認証機能の実装について説明します。",
		Type:      types.EntryEpisodic,
	}
	if err := s.StoreEntry(ctx, e); err != nil {
		t.Fatalf("StoreEntry: %v", err)
	}

	results, err := s.SearchEntriesByText(ctx, "認証機能", 10, types.EntryFilter{})
	if err != nil {
		t.Fatalf("SearchEntriesByText: %v", err)
	}
	found := false
	for _, r := range results {
		if r.Entry.ID == "jp-1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected jp-1 in CJK substring search results, got %+v", results)
	}
}

func TestClearNamespace(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id := "clear-" + time.Now().Add(time.Duration(i)*time.Millisecond).Format("150405.000000000")
		if err := s.StoreEntry(ctx, &types.Entry{ID: id, Namespace: "scratch", Content: "x", Type: types.EntryCache}); err != nil {
			t.Fatalf("StoreEntry: %v", err)
		}
	}

	n, err := s.ClearNamespace(ctx, "scratch")
	if err != nil {
		t.Fatalf("ClearNamespace: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 removed, got %d", n)
	}

	count, err := s.CountEntries(ctx, "scratch")
	if err != nil {
		t.Fatalf("CountEntries: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 remaining, got %d", count)
	}
}
