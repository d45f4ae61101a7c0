package capture

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentkits/memory/internal/types"
)

// classifyToolType maps a tool name to the coarse Observation.Type the
// hybrid search engine and get_context grouping use. Unrecognized tools
// (custom MCP tools, future additions) fall through to "other" rather
// than erroring — classification is advisory, not load-bearing.
func classifyToolType(toolName string) types.ObservationType {
	switch toolName {
	case "Read", "Glob", "NotebookRead":
		return types.ObservationRead
	case "Write", "Edit", "MultiEdit", "NotebookEdit":
		return types.ObservationWrite
	case "Bash", "BashOutput", "KillShell":
		return types.ObservationExecute
	case "Grep", "WebSearch", "WebFetch":
		return types.ObservationSearch
	default:
		return types.ObservationOther
	}
}

// observationTitle builds a short human-readable label for an observation,
// preferring the file path the tool acted on when one is present.
func observationTitle(toolName string, input map[string]any) string {
	if path, ok := stringField(input, "file_path"); ok {
		return fmt.Sprintf("%s %s", toolName, path)
	}
	if cmd, ok := stringField(input, "command"); ok {
		return fmt.Sprintf("%s: %s", toolName, truncateRunes(cmd, 80))
	}
	if pattern, ok := stringField(input, "pattern"); ok {
		return fmt.Sprintf("%s %q", toolName, pattern)
	}
	return toolName
}

// extractFilePaths pulls file paths touched by a tool call into the
// files_read / files_modified buckets, per the tool's known input shape.
func extractFilePaths(toolName string, input map[string]any) (filesRead, filesModified []string) {
	path, hasPath := stringField(input, "file_path")
	switch toolName {
	case "Read", "NotebookRead":
		if hasPath {
			filesRead = append(filesRead, path)
		}
	case "Write", "Edit", "MultiEdit", "NotebookEdit":
		if hasPath {
			filesModified = append(filesModified, path)
		}
	}
	return filesRead, filesModified
}

// extractEditDiff builds a short narrative and fact list for Edit/MultiEdit
// calls by pairing each edit's old_string -> new_string. Other tools return
// no narrative; the caller leaves those fields empty.
func extractEditDiff(toolName string, input map[string]any) (narrative string, facts []string) {
	path, _ := stringField(input, "file_path")

	switch toolName {
	case "Edit":
		oldStr, _ := stringField(input, "old_string")
		newStr, _ := stringField(input, "new_string")
		facts = append(facts, diffFact(oldStr, newStr))
		narrative = fmt.Sprintf("edited %s", path)

	case "MultiEdit":
		edits, _ := input["edits"].([]any)
		for _, raw := range edits {
			edit, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			oldStr, _ := stringField(edit, "old_string")
			newStr, _ := stringField(edit, "new_string")
			facts = append(facts, diffFact(oldStr, newStr))
		}
		narrative = fmt.Sprintf("applied %d edits to %s", len(facts), path)
	}
	return narrative, facts
}

func diffFact(oldStr, newStr string) string {
	return fmt.Sprintf("before: %s -> after: %s", truncateRunes(oldStr, 60), truncateRunes(newStr, 60))
}

// inferIntent classifies the intent behind the most recent user prompt so
// an observation can be tagged with it. Keyword-based; a best-effort
// heuristic, not a model call, per spec §4.6.
func inferIntent(promptText string) types.Intent {
	lower := strings.ToLower(promptText)
	switch {
	case containsAny(lower, "fix", "bug", "broken", "error", "crash", "fail"):
		return types.IntentBugfix
	case containsAny(lower, "add", "implement", "create", "build", "support"):
		return types.IntentFeature
	case containsAny(lower, "refactor", "rename", "clean up", "cleanup", "reorganize", "simplify"):
		return types.IntentRefactor
	case containsAny(lower, "why", "investigate", "understand", "debug", "figure out", "explain"):
		return types.IntentInvestigation
	default:
		return types.IntentOther
	}
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func stringField(m map[string]any, key string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

func marshalCompact(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
