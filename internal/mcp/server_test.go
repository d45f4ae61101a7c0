package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/agentkits/memory/internal/entry"
	"github.com/agentkits/memory/internal/search"
	"github.com/agentkits/memory/internal/storage/sqlite"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "memory.db")
	store, err := sqlite.New(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	repo := entry.New(store, nil)
	engine := search.New(repo, store)
	return NewServer(repo, engine, store, dbPath)
}

func readLines(t *testing.T, buf *bytes.Buffer) []jsonRPCResponse {
	t.Helper()
	var out []jsonRPCResponse
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var resp jsonRPCResponse
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			t.Fatalf("invalid response line %q: %v", scanner.Text(), err)
		}
		out = append(out, resp)
	}
	return out
}

func TestInitializeAndToolsList(t *testing.T) {
	s := newTestServer(t)
	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize"}` + "\n" +
		`{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n" +
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}` + "\n")
	var out bytes.Buffer

	if err := s.Serve(context.Background(), in, &out); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	responses := readLines(t, &out)
	if len(responses) != 2 {
		t.Fatalf("expected 2 response frames (notification gets none), got %d", len(responses))
	}
	if responses[0].Error != nil {
		t.Fatalf("unexpected error on initialize: %+v", responses[0].Error)
	}

	var list toolsListResult
	raw, _ := json.Marshal(responses[1].Result)
	if err := json.Unmarshal(raw, &list); err != nil {
		t.Fatalf("decoding tools/list result: %v", err)
	}
	if len(list.Tools) != 10 {
		t.Fatalf("expected 10 tool verbs, got %d", len(list.Tools))
	}
}

func callTool(t *testing.T, s *Server, id int, name string, args map[string]any) toolResult {
	t.Helper()
	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "tools/call",
		"params":  map[string]any{"name": name, "arguments": args},
	}
	line, _ := json.Marshal(req)
	var out bytes.Buffer
	if err := s.Serve(context.Background(), bytes.NewReader(append(line, '\n')), &out); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	responses := readLines(t, &out)
	if len(responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(responses))
	}
	if responses[0].Error != nil {
		t.Fatalf("tool call %s errored: %+v", name, responses[0].Error)
	}
	var tr toolResult
	raw, _ := json.Marshal(responses[0].Result)
	if err := json.Unmarshal(raw, &tr); err != nil {
		t.Fatalf("decoding tool result: %v", err)
	}
	return tr
}

func TestMemorySaveSearchAndDelete(t *testing.T) {
	s := newTestServer(t)

	saveResult := callTool(t, s, 1, "memory_save", map[string]any{
		"content":  "decided to use modernc.org/sqlite for the storage kernel",
		"category": "decision",
		"tags":     "storage,sqlite",
	})
	if saveResult.IsError {
		t.Fatalf("memory_save reported an error: %v", saveResult.Content)
	}

	searchResult := callTool(t, s, 2, "memory_search", map[string]any{
		"query":    "sqlite",
		"category": "decision",
	})
	if searchResult.IsError {
		t.Fatalf("memory_search reported an error: %v", searchResult.Content)
	}
	if !strings.Contains(searchResult.Content[0].Text, "sqlite") {
		t.Fatalf("expected search hit to reference the saved entry, got %s", searchResult.Content[0].Text)
	}

	statusResult := callTool(t, s, 3, "memory_status", nil)
	if !strings.Contains(statusResult.Content[0].Text, `"decision"`) {
		t.Fatalf("expected status to list the decision namespace, got %s", statusResult.Content[0].Text)
	}
}

func TestMemoryUpdateMissingIDFails(t *testing.T) {
	s := newTestServer(t)
	result := callTool(t, s, 1, "memory_update", map[string]any{"id": "does-not-exist", "content": "x"})
	if !result.IsError {
		t.Fatal("expected memory_update on a missing id to report an error result")
	}
}

func TestMemoryDeleteReportsFoundAndNotFound(t *testing.T) {
	s := newTestServer(t)
	save := callTool(t, s, 1, "memory_save", map[string]any{"content": "scratch note"})

	var saved map[string]any
	_ = json.Unmarshal([]byte(save.Content[0].Text), &saved)
	id, _ := saved["id"].(string)
	if id == "" {
		t.Fatal("expected saved entry to carry an id")
	}

	delResult := callTool(t, s, 2, "memory_delete", map[string]any{"ids": []any{id, "missing-id"}})
	if delResult.IsError {
		t.Fatalf("memory_delete reported an error: %v", delResult.Content)
	}
	if !strings.Contains(delResult.Content[0].Text, id) || !strings.Contains(delResult.Content[0].Text, "missing-id") {
		t.Fatalf("expected both found and not-found ids reported, got %s", delResult.Content[0].Text)
	}
}

func TestUnknownMethodReturnsMethodNotFound(t *testing.T) {
	s := newTestServer(t)
	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"bogus"}` + "\n")
	var out bytes.Buffer
	if err := s.Serve(context.Background(), in, &out); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	responses := readLines(t, &out)
	if len(responses) != 1 || responses[0].Error == nil || responses[0].Error.Code != codeMethodNotFound {
		t.Fatalf("expected a -32601 error, got %+v", responses)
	}
}
