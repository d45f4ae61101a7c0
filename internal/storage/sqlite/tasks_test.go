package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/agentkits/memory/internal/types"
)

func newTestTaskStore(t *testing.T) *SQLiteStorage {
	t.Helper()
	dir := t.TempDir()
	store, err := New(context.Background(), filepath.Join(dir, "memory.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestClaimBatchMovesPendingToProcessing(t *testing.T) {
	store := newTestTaskStore(t)
	ctx := context.Background()

	if err := store.Enqueue(ctx, types.TaskEmbed, "observations", "obs-1"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := store.Enqueue(ctx, types.TaskEmbed, "observations", "obs-2"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	tasks, err := store.ClaimBatch(ctx, types.TaskEmbed, 10)
	if err != nil {
		t.Fatalf("ClaimBatch: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 claimed tasks, got %d", len(tasks))
	}

	pending, err := store.PendingCount(ctx, types.TaskEmbed)
	if err != nil {
		t.Fatalf("PendingCount: %v", err)
	}
	if pending != 0 {
		t.Fatalf("expected 0 pending after claim, got %d", pending)
	}

	again, err := store.ClaimBatch(ctx, types.TaskEmbed, 10)
	if err != nil {
		t.Fatalf("ClaimBatch (second): %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected claimed rows not reclaimable until released, got %d", len(again))
	}
}

func TestFailTaskRequeuesUntilAttemptsExhausted(t *testing.T) {
	store := newTestTaskStore(t)
	ctx := context.Background()

	if err := store.Enqueue(ctx, types.TaskCompress, "observations", "obs-1"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	tasks, err := store.ClaimBatch(ctx, types.TaskCompress, 1)
	if err != nil || len(tasks) != 1 {
		t.Fatalf("ClaimBatch: tasks=%v err=%v", tasks, err)
	}
	id := tasks[0].ID

	for i := 0; i < maxTaskAttempts-1; i++ {
		if err := store.FailTask(ctx, id); err != nil {
			t.Fatalf("FailTask attempt %d: %v", i, err)
		}
		pending, err := store.PendingCount(ctx, types.TaskCompress)
		if err != nil {
			t.Fatalf("PendingCount: %v", err)
		}
		if pending != 1 {
			t.Fatalf("expected task requeued to pending after attempt %d, got %d pending", i, pending)
		}
		reclaimed, err := store.ClaimBatch(ctx, types.TaskCompress, 1)
		if err != nil || len(reclaimed) != 1 {
			t.Fatalf("reclaiming after failure: tasks=%v err=%v", reclaimed, err)
		}
	}

	if err := store.FailTask(ctx, id); err != nil {
		t.Fatalf("final FailTask: %v", err)
	}
	pending, err := store.PendingCount(ctx, types.TaskCompress)
	if err != nil {
		t.Fatalf("PendingCount: %v", err)
	}
	if pending != 0 {
		t.Fatalf("expected task dropped after exhausting attempts, got %d pending", pending)
	}
}

func TestWithBusyRetryRetriesOnlyBusyErrors(t *testing.T) {
	calls := 0
	err := withBusyRetry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("SQLITE_BUSY: database is locked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}

	calls = 0
	permanentErr := errors.New("constraint violation")
	err = withBusyRetry(context.Background(), func() error {
		calls++
		return permanentErr
	})
	if !errors.Is(err, permanentErr) {
		t.Fatalf("expected the permanent error unwrapped, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a non-busy error to stop retrying immediately, got %d calls", calls)
	}
}
