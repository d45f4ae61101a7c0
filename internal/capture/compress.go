package capture

import (
	"fmt"
	"strings"

	"github.com/agentkits/memory/internal/types"
)

// maxCompressedSummaryBytes bounds the collapsed summary's size, well under
// the raw tool_input/tool_response bytes it replaces.
const maxCompressedSummaryBytes = 500

// Compress collapses an observation's narrative, facts, and titles into a
// short summary for the compress worker, a pure deterministic function
// (spec §4.7 gives workers no AI-provider dependency for this kind — only
// enrich calls out). Compressing an already-compressed observation is a
// no-op that reports ok=false, per the documented compression discipline.
func Compress(o *types.Observation) (summary string, ok bool) {
	if o.IsCompressed {
		return "", false
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", o.ToolName, o.Title)
	if o.Narrative != "" {
		fmt.Fprintf(&b, " — %s", o.Narrative)
	}
	for _, f := range o.Facts {
		b.WriteString("; ")
		b.WriteString(f)
		if b.Len() >= maxCompressedSummaryBytes {
			break
		}
	}

	summary = b.String()
	if len(summary) > maxCompressedSummaryBytes {
		summary = summary[:maxCompressedSummaryBytes] + "...(truncated)"
	}
	return summary, true
}
