package capture

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/agentkits/memory/internal/storage/sqlite"
	"github.com/agentkits/memory/internal/types"
)

func newTestService(t *testing.T) (*Service, *sqlite.SQLiteStorage) {
	t.Helper()
	dir := t.TempDir()
	store, err := sqlite.New(context.Background(), filepath.Join(dir, "memory.db"))
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return New(store), store
}

func TestInitSessionIsIdempotent(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	first, err := s.InitSession(ctx, "sess-1", "proj", "let's start")
	if err != nil {
		t.Fatalf("InitSession: %v", err)
	}
	if first.Status != types.SessionActive {
		t.Fatalf("expected active status, got %s", first.Status)
	}

	second, err := s.InitSession(ctx, "sess-1", "proj", "different text ignored")
	if err != nil {
		t.Fatalf("InitSession (re-init): %v", err)
	}
	if second.Prompt != first.Prompt {
		t.Fatalf("expected re-init to return the existing row unchanged, got prompt %q", second.Prompt)
	}
}

func TestInitSessionAttachesParentWithinResumeWindow(t *testing.T) {
	s, store := newTestService(t)
	ctx := context.Background()

	ended := time.Now().UTC()
	prior := &types.Session{ID: "sess-prior", Project: "proj", Status: types.SessionCompleted, EndedAt: &ended, StartedAt: ended.Add(-time.Hour)}
	if err := store.CreateSession(ctx, prior); err != nil {
		t.Fatalf("seed prior session: %v", err)
	}
	if err := store.UpdateSession(ctx, prior); err != nil {
		t.Fatalf("mark prior session completed: %v", err)
	}

	sess, err := s.InitSession(ctx, "sess-new", "proj", "resuming")
	if err != nil {
		t.Fatalf("InitSession: %v", err)
	}
	if sess.ParentSessionID != "sess-prior" {
		t.Fatalf("expected parent_session_id to be sess-prior, got %q", sess.ParentSessionID)
	}
}

func TestSaveUserPromptDedupsWithinWindow(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	if _, err := s.InitSession(ctx, "sess-1", "proj", ""); err != nil {
		t.Fatalf("InitSession: %v", err)
	}

	first, err := s.SaveUserPrompt(ctx, "sess-1", "proj", "please fix the bug")
	if err != nil {
		t.Fatalf("SaveUserPrompt: %v", err)
	}
	if first.PromptNumber != 1 {
		t.Fatalf("expected prompt_number 1, got %d", first.PromptNumber)
	}

	dup, err := s.SaveUserPrompt(ctx, "sess-1", "proj", "please fix the bug")
	if err != nil {
		t.Fatalf("SaveUserPrompt (dup): %v", err)
	}
	if dup.ID != first.ID {
		t.Fatalf("expected dedup to return the existing prompt, got a new id %q", dup.ID)
	}

	second, err := s.SaveUserPrompt(ctx, "sess-1", "proj", "now add a feature")
	if err != nil {
		t.Fatalf("SaveUserPrompt (distinct): %v", err)
	}
	if second.PromptNumber != 2 {
		t.Fatalf("expected prompt_number 2, got %d", second.PromptNumber)
	}
}

func TestStoreObservationClassifiesAndDedupsAndCountsOnce(t *testing.T) {
	s, store := newTestService(t)
	ctx := context.Background()
	if _, err := s.InitSession(ctx, "sess-1", "proj", ""); err != nil {
		t.Fatalf("InitSession: %v", err)
	}
	if _, err := s.SaveUserPrompt(ctx, "sess-1", "proj", "please fix the crash in parser.go"); err != nil {
		t.Fatalf("SaveUserPrompt: %v", err)
	}

	in := ObservationInput{
		SessionID: "sess-1",
		Project:   "proj",
		ToolName:  "Edit",
		ToolInput: map[string]any{
			"file_path":  "parser.go",
			"old_string": "return nil",
			"new_string": "return err",
		},
		ToolResponse: map[string]any{"success": true},
	}

	obs, err := s.StoreObservation(ctx, in)
	if err != nil {
		t.Fatalf("StoreObservation: %v", err)
	}
	if obs.Type != types.ObservationWrite {
		t.Fatalf("expected write classification, got %s", obs.Type)
	}
	if len(obs.FilesModified) != 1 || obs.FilesModified[0] != "parser.go" {
		t.Fatalf("expected files_modified [parser.go], got %v", obs.FilesModified)
	}
	if obs.Narrative == "" {
		t.Fatal("expected a narrative for an Edit observation")
	}
	foundIntent := false
	for _, c := range obs.Concepts {
		if c == "intent:bugfix" {
			foundIntent = true
		}
	}
	if !foundIntent {
		t.Fatalf("expected intent:bugfix concept, got %v", obs.Concepts)
	}

	sess, err := store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.ObservationCount != 1 {
		t.Fatalf("expected observation_count 1, got %d", sess.ObservationCount)
	}

	dup, err := s.StoreObservation(ctx, in)
	if err != nil {
		t.Fatalf("StoreObservation (dup): %v", err)
	}
	if dup.ID != obs.ID {
		t.Fatal("expected dedup to return the existing observation")
	}

	sess, err = store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession (after dup): %v", err)
	}
	if sess.ObservationCount != 1 {
		t.Fatalf("expected observation_count to stay at 1 after a dedup hit, got %d", sess.ObservationCount)
	}
}

func TestGenerateStructuredSummaryCollectsFilesAndDecisions(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	if _, err := s.InitSession(ctx, "sess-1", "proj", "build a thing"); err != nil {
		t.Fatalf("InitSession: %v", err)
	}
	if _, err := s.StoreObservation(ctx, ObservationInput{
		SessionID: "sess-1", Project: "proj", ToolName: "Read",
		ToolInput: map[string]any{"file_path": "a.go"},
	}); err != nil {
		t.Fatalf("StoreObservation read: %v", err)
	}
	if _, err := s.StoreObservation(ctx, ObservationInput{
		SessionID: "sess-1", Project: "proj", ToolName: "Edit",
		ToolInput: map[string]any{"file_path": "a.go", "old_string": "x", "new_string": "y"},
	}); err != nil {
		t.Fatalf("StoreObservation edit: %v", err)
	}

	summary, err := s.GenerateStructuredSummary(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GenerateStructuredSummary: %v", err)
	}
	if len(summary.FilesRead) != 1 || summary.FilesRead[0] != "a.go" {
		t.Fatalf("expected files_read [a.go], got %v", summary.FilesRead)
	}
	if len(summary.FilesModified) != 1 || summary.FilesModified[0] != "a.go" {
		t.Fatalf("expected files_modified [a.go], got %v", summary.FilesModified)
	}
	if len(summary.Decisions) != 1 {
		t.Fatalf("expected one decision from the Edit observation, got %v", summary.Decisions)
	}
}

func TestGetContextRendersMarkdownWithObservationsAndFooter(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	if _, err := s.InitSession(ctx, "sess-1", "proj", "do the thing"); err != nil {
		t.Fatalf("InitSession: %v", err)
	}
	if _, err := s.StoreObservation(ctx, ObservationInput{
		SessionID: "sess-1", Project: "proj", ToolName: "Edit",
		ToolInput: map[string]any{"file_path": "a.go", "old_string": "x", "new_string": "y"},
	}); err != nil {
		t.Fatalf("StoreObservation: %v", err)
	}

	md, err := s.GetContext(ctx, "proj")
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	if !strings.Contains(md, "Token Economics") || !strings.Contains(md, "Edit") {
		t.Fatalf("expected markdown to contain observations and a token-economics footer, got:\n%s", md)
	}
}

func TestRunLifecycleTasksArchivesOldCompletedSessions(t *testing.T) {
	s, store := newTestService(t)
	ctx := context.Background()

	ended := time.Now().UTC().AddDate(0, 0, -10)
	old := &types.Session{ID: "sess-old", Project: "proj", Status: types.SessionCompleted, EndedAt: &ended, StartedAt: ended.Add(-time.Hour)}
	if err := store.CreateSession(ctx, old); err != nil {
		t.Fatalf("seed old session: %v", err)
	}
	if err := store.UpdateSession(ctx, old); err != nil {
		t.Fatalf("mark old session completed: %v", err)
	}

	result, err := s.RunLifecycleTasks(ctx, LifecycleConfig{ArchiveAfterDays: 5})
	if err != nil {
		t.Fatalf("RunLifecycleTasks: %v", err)
	}
	if result.ArchivedSessions != 1 {
		t.Fatalf("expected 1 archived session, got %d", result.ArchivedSessions)
	}

	got, err := store.GetSession(ctx, "sess-old")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Status != types.SessionArchived {
		t.Fatalf("expected status archived, got %s", got.Status)
	}
}
