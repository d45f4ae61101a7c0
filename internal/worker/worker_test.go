package worker

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/agentkits/memory/internal/aiprovider"
	"github.com/agentkits/memory/internal/capture"
	"github.com/agentkits/memory/internal/storage/sqlite"
	"github.com/agentkits/memory/internal/types"
)

func newTestStore(t *testing.T) *sqlite.SQLiteStorage {
	t.Helper()
	dir := t.TempDir()
	store, err := sqlite.New(context.Background(), filepath.Join(dir, "memory.db"))
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

type fakeEmbedder struct{ calls int }

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	return []float32{float32(len(text)), 1, 2}, nil
}

func TestRunEmbedsPromptAndObservation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	svc := capture.New(store)

	if _, err := svc.InitSession(ctx, "sess-1", "proj", "hi"); err != nil {
		t.Fatalf("InitSession: %v", err)
	}
	if _, err := svc.SaveUserPrompt(ctx, "sess-1", "proj", "please add a feature"); err != nil {
		t.Fatalf("SaveUserPrompt: %v", err)
	}
	if _, err := svc.StoreObservation(ctx, capture.ObservationInput{
		SessionID: "sess-1", Project: "proj", ToolName: "Edit",
		ToolInput: map[string]any{"file_path": "a.go", "old_string": "x", "new_string": "y"},
	}); err != nil {
		t.Fatalf("StoreObservation: %v", err)
	}

	embed := &fakeEmbedder{}
	result, err := Run(ctx, store, types.TaskEmbed, embed, nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Drained {
		t.Fatalf("expected drained=true, got %+v", result)
	}
	if result.Processed != 2 {
		t.Fatalf("expected 2 embed tasks processed (prompt + observation), got %d", result.Processed)
	}
	if embed.calls != 2 {
		t.Fatalf("expected embedder called twice, got %d", embed.calls)
	}

	pending, err := store.PendingCount(ctx, types.TaskEmbed)
	if err != nil {
		t.Fatalf("PendingCount: %v", err)
	}
	if pending != 0 {
		t.Fatalf("expected queue drained, got %d pending", pending)
	}
}

func TestRunEnrichWritesSubtitle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	svc := capture.New(store)

	if _, err := svc.InitSession(ctx, "sess-1", "proj", "hi"); err != nil {
		t.Fatalf("InitSession: %v", err)
	}
	obs, err := svc.StoreObservation(ctx, capture.ObservationInput{
		SessionID: "sess-1", Project: "proj", ToolName: "Read",
		ToolInput: map[string]any{"file_path": "a.go"},
	})
	if err != nil {
		t.Fatalf("StoreObservation: %v", err)
	}

	result, err := Run(ctx, store, types.TaskEnrich, nil, aiprovider.Mock{}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Processed != 1 {
		t.Fatalf("expected 1 enrich task processed, got %+v", result)
	}

	updated, err := store.GetObservation(ctx, obs.ID)
	if err != nil {
		t.Fatalf("GetObservation: %v", err)
	}
	if updated.Subtitle == "" {
		t.Fatalf("expected a non-empty subtitle after enrichment")
	}
}

func TestRunCompressSkipsAlreadyCompressed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	svc := capture.New(store)

	if _, err := svc.InitSession(ctx, "sess-1", "proj", "hi"); err != nil {
		t.Fatalf("InitSession: %v", err)
	}
	obs, err := svc.StoreObservation(ctx, capture.ObservationInput{
		SessionID: "sess-1", Project: "proj", ToolName: "Edit",
		ToolInput: map[string]any{"file_path": "a.go", "old_string": "x", "new_string": "y"},
	})
	if err != nil {
		t.Fatalf("StoreObservation: %v", err)
	}
	if err := store.Enqueue(ctx, types.TaskCompress, "observations", obs.ID); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	result, err := Run(ctx, store, types.TaskCompress, nil, nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Processed != 1 {
		t.Fatalf("expected 1 compress task processed, got %+v", result)
	}

	updated, err := store.GetObservation(ctx, obs.ID)
	if err != nil {
		t.Fatalf("GetObservation: %v", err)
	}
	if !updated.IsCompressed || updated.CompressedSummary == "" {
		t.Fatalf("expected observation marked compressed with a summary, got %+v", updated)
	}

	if err := store.Enqueue(ctx, types.TaskCompress, "observations", obs.ID); err != nil {
		t.Fatalf("Enqueue second compress: %v", err)
	}
	second, err := Run(ctx, store, types.TaskCompress, nil, nil, nil)
	if err != nil {
		t.Fatalf("Run (second): %v", err)
	}
	if second.Processed != 1 {
		t.Fatalf("expected the no-op re-compress task still counted as processed (not failed), got %+v", second)
	}
}
