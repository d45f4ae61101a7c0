package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/agentkits/memory/internal/types"
)

func runHook(t *testing.T, event string, payload hookEvent) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal hook payload: %v", err)
	}
	hookCmd.SetIn(bytes.NewReader(body))
	hookCmd.SetOut(&bytes.Buffer{})
	if err := hookCmd.RunE(hookCmd, []string{event}); err != nil {
		t.Fatalf("hook %s: %v", event, err)
	}
}

func TestHookDeliversSessionPromptAndObservation(t *testing.T) {
	eng = newTestEngine(t)
	rootCtx = context.Background()

	runHook(t, "session_start", hookEvent{SessionID: "sess-1", Project: "proj", Prompt: "build the thing"})
	runHook(t, "user_prompt_submit", hookEvent{SessionID: "sess-1", Project: "proj", Prompt: "please add a test"})
	runHook(t, "post_tool_use", hookEvent{
		SessionID: "sess-1", Project: "proj", ToolName: "Edit",
		ToolInput: map[string]any{"file_path": "a.go", "old_string": "x", "new_string": "y"},
	})

	prompts, err := eng.store.PromptsBySession(rootCtx, "sess-1")
	if err != nil {
		t.Fatalf("PromptsBySession: %v", err)
	}
	if len(prompts) != 1 || prompts[0].PromptText != "please add a test" {
		t.Fatalf("expected the submitted prompt stored, got %+v", prompts)
	}

	obs, err := eng.store.ObservationsBySession(rootCtx, "sess-1", 0)
	if err != nil {
		t.Fatalf("ObservationsBySession: %v", err)
	}
	if len(obs) != 1 || obs[0].ToolName != "Edit" {
		t.Fatalf("expected the tool-call observation stored, got %+v", obs)
	}
}

func TestHookRejectsUnknownEvent(t *testing.T) {
	eng = newTestEngine(t)
	rootCtx = context.Background()

	body, _ := json.Marshal(hookEvent{SessionID: "sess-1", Project: "proj"})
	hookCmd.SetIn(bytes.NewReader(body))
	hookCmd.SetOut(&bytes.Buffer{})
	if err := hookCmd.RunE(hookCmd, []string{"not_a_real_event"}); err == nil {
		t.Fatalf("expected an error for an unrecognized hook event")
	}
}

func TestAnyTasksPendingReflectsQueueDepth(t *testing.T) {
	eng = newTestEngine(t)
	rootCtx = context.Background()

	pending, err := anyTasksPending()
	if err != nil {
		t.Fatalf("anyTasksPending: %v", err)
	}
	if pending {
		t.Fatalf("expected no pending tasks on an empty queue")
	}

	if err := eng.store.Enqueue(rootCtx, types.TaskEmbed, "observations", "obs-1"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	pending, err = anyTasksPending()
	if err != nil {
		t.Fatalf("anyTasksPending: %v", err)
	}
	if !pending {
		t.Fatalf("expected pending tasks to be reported after enqueuing one")
	}
}
