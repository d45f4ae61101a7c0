package capture

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agentkits/memory/internal/search"
	"github.com/agentkits/memory/internal/types"
)

// GenerateStructuredSummary is a pure function of a session's stored
// observations and prompts: it derives the SessionSummary shape without
// calling out to an AI provider. NextSteps stays empty and Notes carries
// only a count of observations and distinct files — this engine has no
// basis to fill in more without a model call, so callers that want them
// populated do so upstream before save_session_summary, per the enrichment
// boundary in §4.6.
func (s *Service) GenerateStructuredSummary(ctx context.Context, sessionID string) (*types.SessionSummary, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	obs, err := s.store.ObservationsBySession(ctx, sessionID, 0)
	if err != nil {
		return nil, err
	}

	var filesRead, filesModified, decisions []string
	seenRead := map[string]bool{}
	seenModified := map[string]bool{}

	// obs comes back most-recent-first; walk it in chronological order so
	// decisions read in the order they actually happened.
	for i := len(obs) - 1; i >= 0; i-- {
		o := obs[i]
		for _, f := range o.FilesRead {
			if !seenRead[f] {
				seenRead[f] = true
				filesRead = append(filesRead, f)
			}
		}
		for _, f := range o.FilesModified {
			if !seenModified[f] {
				seenModified[f] = true
				filesModified = append(filesModified, f)
			}
		}
		if o.Type == types.ObservationWrite && o.Narrative != "" {
			decisions = append(decisions, o.Narrative)
		}
	}

	distinctFiles := len(seenModified)
	for f := range seenRead {
		if !seenModified[f] {
			distinctFiles++
		}
	}

	promptNumber, err := s.store.NextPromptNumber(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	promptNumber--
	if promptNumber < 0 {
		promptNumber = 0
	}

	return &types.SessionSummary{
		SessionID:     sessionID,
		Request:       sess.Prompt,
		FilesRead:     filesRead,
		FilesModified: filesModified,
		Decisions:     decisions,
		Notes:         fmt.Sprintf("%d observations across %d files", len(obs), distinctFiles),
		PromptNumber:  promptNumber,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// SaveSessionSummary persists a (possibly AI-enriched) summary.
func (s *Service) SaveSessionSummary(ctx context.Context, summary *types.SessionSummary) error {
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = time.Now().UTC()
	}
	return s.store.StoreSessionSummary(ctx, summary)
}

const contextObservationLimit = 30

// GetContext returns a markdown recap of recent project activity: tool
// usage guidance, recent observations grouped by prompt, decisions pulled
// from Edit/Write observations, and a token-economics footer.
func (s *Service) GetContext(ctx context.Context, project string) (string, error) {
	obs, err := s.store.ObservationsByProject(ctx, project, contextObservationLimit)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("# Project Memory Context\n\n")
	b.WriteString("Use `memory_search` for Layer 1 keyword/semantic lookups, `memory_timeline` for ")
	b.WriteString("temporal context around a result, and `memory_details` for the full content of a ")
	b.WriteString("small set of IDs. Avoid dumping full entries before narrowing with search.\n\n")

	if len(obs) == 0 {
		b.WriteString("No recorded activity yet for this project.\n")
		return b.String(), nil
	}

	b.WriteString("## Recent Observations\n\n")
	grouped := groupByPrompt(obs)
	var promptNumbers []int
	for n := range grouped {
		promptNumbers = append(promptNumbers, n)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(promptNumbers)))

	var decisions []string
	for _, n := range promptNumbers {
		if n > 0 {
			fmt.Fprintf(&b, "### Prompt #%d\n", n)
		} else {
			b.WriteString("### (unnumbered)\n")
		}
		for _, o := range grouped[n] {
			fmt.Fprintf(&b, "- `%s` %s — %s\n", o.ID, o.ToolName, o.Title)
			if o.Type == types.ObservationWrite && o.Narrative != "" {
				decisions = append(decisions, o.Narrative)
			}
		}
		b.WriteString("\n")
	}

	if len(decisions) > 0 {
		b.WriteString("## Decisions\n\n")
		for _, d := range decisions {
			fmt.Fprintf(&b, "- %s\n", d)
		}
		b.WriteString("\n")
	}

	var actualChars int
	for _, o := range obs {
		actualChars += len(o.Title)
	}
	fullEntries := make([]*types.Entry, 0, len(obs))
	for _, o := range obs {
		fullEntries = append(fullEntries, &types.Entry{Content: o.ToolInput + o.ToolResponse})
	}
	report := search.Report(fullEntries, actualChars, map[string]int{"observations": len(obs)})
	fmt.Fprintf(&b, "## Token Economics\n\nfull: %d, actual: %d, savings: %.1f%%\n",
		report.FullResultTokens, report.ActualTokens, report.SavingsPercent)

	return b.String(), nil
}

func groupByPrompt(obs []*types.Observation) map[int][]*types.Observation {
	out := make(map[int][]*types.Observation)
	for _, o := range obs {
		out[o.PromptNumber] = append(out[o.PromptNumber], o)
	}
	return out
}
