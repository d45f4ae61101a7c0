package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/agentkits/memory/internal/types"
)

func TestPromptsBySessionReturnsChronologicalOrder(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	sess := &types.Session{ID: "sess-1", Project: "proj", Status: types.SessionActive, StartedAt: time.Now().UTC()}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	for i, text := range []string{"first prompt", "second prompt", "third prompt"} {
		p := &types.UserPrompt{
			ID:           "prompt-" + string(rune('1'+i)),
			SessionID:    "sess-1",
			PromptNumber: i + 1,
			PromptText:   text,
		}
		if err := s.StorePrompt(ctx, p); err != nil {
			t.Fatalf("StorePrompt %q: %v", text, err)
		}
	}

	prompts, err := s.PromptsBySession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("PromptsBySession: %v", err)
	}
	if len(prompts) != 3 {
		t.Fatalf("expected 3 prompts, got %d", len(prompts))
	}
	for i, want := range []string{"first prompt", "second prompt", "third prompt"} {
		if prompts[i].PromptText != want {
			t.Fatalf("expected prompt %d to be %q, got %q", i, want, prompts[i].PromptText)
		}
	}

	latest, err := s.LatestPrompt(ctx, "sess-1")
	if err != nil {
		t.Fatalf("LatestPrompt: %v", err)
	}
	if latest.PromptText != "third prompt" {
		t.Fatalf("expected latest prompt to be the third, got %q", latest.PromptText)
	}
}

func TestPromptsBySessionEmptyForUnknownSession(t *testing.T) {
	s := newTestStorage(t)
	prompts, err := s.PromptsBySession(context.Background(), "no-such-session")
	if err != nil {
		t.Fatalf("PromptsBySession: %v", err)
	}
	if len(prompts) != 0 {
		t.Fatalf("expected no prompts, got %d", len(prompts))
	}
}
