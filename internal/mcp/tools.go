package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agentkits/memory/internal/search"
	"github.com/agentkits/memory/internal/types"
)

// progressiveHint is appended to every tool response, reinforcing the
// Layer 1 -> 2 -> 3 workflow (spec §4.9).
const progressiveHint = "\n\n---\nProgressive disclosure: memory_search gives you a compact ranked index; memory_timeline shows temporal context around specific ids; memory_details fetches full content for up to 5 chosen ids. Prefer search -> timeline -> details over fetching everything up front."

const importantGuidance = `This memory engine persists project knowledge across sessions. Use memory_save to record decisions, patterns, errors, and context worth remembering. Use memory_search before assuming you lack prior context on a topic. Always prefer memory_search -> memory_timeline -> memory_details over memory_list when you have a specific question, since it costs far fewer tokens.`

type toolHandler func(ctx context.Context, s *Server, args map[string]any) (*toolResult, error)

var toolHandlers = map[string]toolHandler{
	"__IMPORTANT":     handleImportant,
	"memory_status":   handleStatus,
	"memory_save":     handleSave,
	"memory_search":   handleSearch,
	"memory_timeline": handleTimeline,
	"memory_details":  handleDetails,
	"memory_recall":   handleRecall,
	"memory_list":     handleList,
	"memory_update":   handleUpdate,
	"memory_delete":   handleDelete,
}

func toolDefinitions() []tool {
	return []tool{
		{
			Name:        "__IMPORTANT",
			Description: "Static workflow guidance for using this memory engine effectively. Not a data operation.",
			InputSchema: schema(nil, nil),
		},
		{
			Name:        "memory_status",
			Description: "Returns entry counts, known namespaces, and the database path.",
			InputSchema: schema(nil, nil),
		},
		{
			Name:        "memory_save",
			Description: "Writes a new memory entry. category maps to the entry's namespace.",
			InputSchema: schema(map[string]any{
				"content":  map[string]any{"type": "string", "description": "Entry content"},
				"category": map[string]any{"type": "string", "enum": []string{"decision", "pattern", "error", "context", "observation"}, "description": "Maps to the entry's namespace", "default": "context"},
				"tags":     map[string]any{"description": "Comma-separated string or array of tag strings"},
				"key":      map[string]any{"type": "string", "description": "Optional secondary key, unique within the namespace"},
			}, []string{"content"}),
		},
		{
			Name:        "memory_search",
			Description: "Layer 1: compact ranked search across saved memory.",
			InputSchema: schema(map[string]any{
				"query":     map[string]any{"type": "string"},
				"limit":     map[string]any{"type": "number", "default": 20},
				"category":  map[string]any{"type": "string", "description": "Restrict to one namespace"},
				"dateStart": map[string]any{"type": "string", "description": "ISO date lower bound"},
				"dateEnd":   map[string]any{"type": "string", "description": "ISO date upper bound"},
				"orderBy":   map[string]any{"type": "string", "enum": []string{"relevance", "date_asc", "date_desc"}, "default": "relevance"},
			}, []string{"query"}),
		},
		{
			Name:        "memory_timeline",
			Description: "Layer 2: temporal context around one or more anchor entry ids.",
			InputSchema: schema(map[string]any{
				"anchor": map[string]any{"description": "Anchor entry id, or array of ids"},
				"before": map[string]any{"type": "number", "default": 30, "description": "Minutes before the anchor"},
				"after":  map[string]any{"type": "number", "default": 30, "description": "Minutes after the anchor"},
			}, []string{"anchor"}),
		},
		{
			Name:        "memory_details",
			Description: "Layer 3: full entries for up to 5 chosen ids.",
			InputSchema: schema(map[string]any{
				"ids": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			}, []string{"ids"}),
		},
		{
			Name:        "memory_recall",
			Description: "Convenience grouped summary of memory about a topic.",
			InputSchema: schema(map[string]any{
				"topic":     map[string]any{"type": "string"},
				"timeRange": map[string]any{"type": "string", "enum": []string{"today", "week", "month", "all"}, "default": "all"},
			}, []string{"topic"}),
		},
		{
			Name:        "memory_list",
			Description: "Recent-first listing of memory entries.",
			InputSchema: schema(map[string]any{
				"category": map[string]any{"type": "string"},
				"limit":    map[string]any{"type": "number", "default": 20},
			}, nil),
		},
		{
			Name:        "memory_update",
			Description: "Updates content and/or tags on an existing entry.",
			InputSchema: schema(map[string]any{
				"id":      map[string]any{"type": "string"},
				"content": map[string]any{"type": "string"},
				"tags":    map[string]any{"description": "Comma-separated string or array of tag strings"},
			}, []string{"id"}),
		},
		{
			Name:        "memory_delete",
			Description: "Deletes one or more entries by id, reporting found vs not-found.",
			InputSchema: schema(map[string]any{
				"ids": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			}, []string{"ids"}),
		},
	}
}

func schema(props map[string]any, required []string) map[string]any {
	if props == nil {
		props = map[string]any{}
	}
	if required == nil {
		required = []string{}
	}
	return map[string]any{"type": "object", "properties": props, "required": required}
}

func handleImportant(ctx context.Context, s *Server, args map[string]any) (*toolResult, error) {
	return okResult(importantGuidance), nil
}

func handleStatus(ctx context.Context, s *Server, args map[string]any) (*toolResult, error) {
	namespaces, err := s.store.ListNamespaces(ctx)
	if err != nil {
		return nil, err
	}
	total := 0
	counts := make(map[string]int, len(namespaces))
	for _, ns := range namespaces {
		n, err := s.store.CountEntries(ctx, ns)
		if err != nil {
			return nil, err
		}
		counts[ns] = n
		total += n
	}
	body, _ := json.MarshalIndent(map[string]any{
		"total_entries": total,
		"namespaces":    counts,
		"db_path":       s.dbPath,
	}, "", "  ")
	return okResult(string(body) + progressiveHint), nil
}

func handleSave(ctx context.Context, s *Server, args map[string]any) (*toolResult, error) {
	content := argString(args, "content")
	if content == "" {
		return errResult("content is required"), nil
	}
	category := argString(args, "category")
	if category == "" {
		category = "context"
	}
	e := &types.Entry{
		Namespace:   category,
		Key:         argString(args, "key"),
		Content:     content,
		Type:        types.EntrySemantic,
		Tags:        argStringList(args, "tags"),
		AccessLevel: types.AccessProject,
	}
	if err := s.repo.Store(ctx, e); err != nil {
		return nil, err
	}
	body, _ := json.MarshalIndent(e, "", "  ")
	return okResult(string(body) + progressiveHint), nil
}

func handleSearch(ctx context.Context, s *Server, args map[string]any) (*toolResult, error) {
	query := argString(args, "query")
	if query == "" {
		return errResult("query is required"), nil
	}
	opts := search.CompactOptions{
		Limit:           argInt(args, "limit", 20),
		Namespace:       argString(args, "category"),
		IncludeKeyword:  true,
		IncludeSemantic: true,
	}
	results, err := s.engine.CompactSearch(ctx, query, opts)
	if err != nil {
		return nil, err
	}

	if dateStart := argString(args, "dateStart"); dateStart != "" {
		results = filterByDate(ctx, s, results, dateStart, argString(args, "dateEnd"))
	}

	switch argString(args, "orderBy") {
	case "date_asc", "date_desc":
		desc := argString(args, "orderBy") == "date_desc"
		sortByCreatedAt(ctx, s, results, desc)
	}

	body, _ := json.MarshalIndent(results, "", "  ")
	return okResult(string(body) + progressiveHint), nil
}

func filterByDate(ctx context.Context, s *Server, results []search.CompactResult, startStr, endStr string) []search.CompactResult {
	start, errStart := time.Parse(time.RFC3339, startStr)
	if errStart != nil {
		start, errStart = time.Parse("2006-01-02", startStr)
	}
	var end time.Time
	hasEnd := false
	if endStr != "" {
		var errEnd error
		end, errEnd = time.Parse(time.RFC3339, endStr)
		if errEnd != nil {
			end, errEnd = time.Parse("2006-01-02", endStr)
		}
		hasEnd = errEnd == nil
	}
	if errStart != nil {
		return results
	}
	out := results[:0]
	for _, r := range results {
		e, err := s.store.GetEntry(ctx, r.ID)
		if err != nil {
			continue
		}
		if e.CreatedAt.Before(start) {
			continue
		}
		if hasEnd && e.CreatedAt.After(end) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func sortByCreatedAt(ctx context.Context, s *Server, results []search.CompactResult, desc bool) {
	created := make(map[string]time.Time, len(results))
	for _, r := range results {
		if e, err := s.store.GetEntry(ctx, r.ID); err == nil {
			created[r.ID] = e.CreatedAt
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		ti, tj := created[results[i].ID], created[results[j].ID]
		if desc {
			return ti.After(tj)
		}
		return ti.Before(tj)
	})
}

func handleTimeline(ctx context.Context, s *Server, args map[string]any) (*toolResult, error) {
	var anchors []string
	switch v := args["anchor"].(type) {
	case string:
		anchors = []string{v}
	case []any:
		for _, a := range v {
			if str, ok := a.(string); ok {
				anchors = append(anchors, str)
			}
		}
	}
	if len(anchors) == 0 {
		return errResult("anchor is required"), nil
	}
	before := time.Duration(argInt(args, "before", 30)) * time.Minute
	after := time.Duration(argInt(args, "after", 30)) * time.Minute

	rows, err := s.engine.Timeline(ctx, anchors, before, after)
	if err != nil {
		return nil, err
	}
	body, _ := json.MarshalIndent(rows, "", "  ")
	return okResult(string(body) + progressiveHint), nil
}

func handleDetails(ctx context.Context, s *Server, args map[string]any) (*toolResult, error) {
	ids := argStringList(args, "ids")
	if len(ids) == 0 {
		return errResult("ids is required"), nil
	}
	entries, err := s.engine.FullFetch(ctx, ids)
	if err != nil {
		return nil, err
	}
	body, _ := json.MarshalIndent(entries, "", "  ")
	return okResult(string(body) + progressiveHint), nil
}

func handleRecall(ctx context.Context, s *Server, args map[string]any) (*toolResult, error) {
	topic := argString(args, "topic")
	if topic == "" {
		return errResult("topic is required"), nil
	}
	results, err := s.engine.CompactSearch(ctx, topic, search.CompactOptions{Limit: 30, IncludeKeyword: true, IncludeSemantic: true})
	if err != nil {
		return nil, err
	}

	if cutoff, ok := recallCutoff(argString(args, "timeRange")); ok {
		filtered := results[:0]
		for _, r := range results {
			e, err := s.store.GetEntry(ctx, r.ID)
			if err == nil && !e.CreatedAt.Before(cutoff) {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}

	byNamespace := make(map[string][]search.CompactResult)
	for _, r := range results {
		byNamespace[r.Namespace] = append(byNamespace[r.Namespace], r)
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Recall: %s\n\n", topic))
	for ns, rows := range byNamespace {
		sb.WriteString(fmt.Sprintf("## %s\n", ns))
		for _, r := range rows {
			sb.WriteString(fmt.Sprintf("- [%s] %s\n", r.ID, r.Snippet))
		}
		sb.WriteString("\n")
	}
	if len(results) == 0 {
		sb.WriteString("No memory found for this topic.\n")
	}
	return okResult(sb.String() + progressiveHint), nil
}

func recallCutoff(timeRange string) (time.Time, bool) {
	now := time.Now()
	switch timeRange {
	case "today":
		return now.Add(-24 * time.Hour), true
	case "week":
		return now.Add(-7 * 24 * time.Hour), true
	case "month":
		return now.Add(-30 * 24 * time.Hour), true
	default:
		return time.Time{}, false
	}
}

func handleList(ctx context.Context, s *Server, args map[string]any) (*toolResult, error) {
	limit := argInt(args, "limit", 20)
	filter := types.EntryFilter{Namespace: argString(args, "category"), Limit: limit}
	scored, err := s.entriesRecentFirst(ctx, filter)
	if err != nil {
		return nil, err
	}
	body, _ := json.MarshalIndent(scored, "", "  ")
	return okResult(string(body) + progressiveHint), nil
}

// entriesRecentFirst is memory_list's backing query: the plain SQL-filter
// path (no content/embedding), already ordered newest-first by the
// storage layer.
func (s *Server) entriesRecentFirst(ctx context.Context, filter types.EntryFilter) ([]*types.Entry, error) {
	return s.store.QueryEntries(ctx, filter)
}

func handleUpdate(ctx context.Context, s *Server, args map[string]any) (*toolResult, error) {
	id := argString(args, "id")
	if id == "" {
		return errResult("id is required"), nil
	}
	patch := types.EntryPatch{}
	if content, ok := args["content"]; ok {
		if str, ok := content.(string); ok {
			patch.Content = &str
		}
	}
	if tags := argStringList(args, "tags"); tags != nil {
		patch.Tags = tags
	}
	updated, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return errResult(fmt.Sprintf("update failed: %v", err)), nil
	}
	body, _ := json.MarshalIndent(updated, "", "  ")
	return okResult(string(body) + progressiveHint), nil
}

func handleDelete(ctx context.Context, s *Server, args map[string]any) (*toolResult, error) {
	ids := argStringList(args, "ids")
	if len(ids) == 0 {
		return errResult("ids is required"), nil
	}
	var found, notFound []string
	for _, id := range ids {
		ok, err := s.repo.Delete(ctx, id)
		if err != nil {
			notFound = append(notFound, id)
			continue
		}
		if ok {
			found = append(found, id)
		} else {
			notFound = append(notFound, id)
		}
	}
	body, _ := json.MarshalIndent(map[string]any{"deleted": found, "not_found": notFound}, "", "  ")
	return okResult(string(body) + progressiveHint), nil
}
