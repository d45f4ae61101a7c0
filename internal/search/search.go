// Package search implements the Hybrid Search Engine's three-layer
// progressive-disclosure API (spec §4.5): a compact ranked index, temporal
// timeline context, and full-entry fetch — plus the token-economics
// accounting that motivates the split.
package search

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/agentkits/memory/internal/entry"
	"github.com/agentkits/memory/internal/metrics"
	"github.com/agentkits/memory/internal/storage"
	"github.com/agentkits/memory/internal/types"
)

const minScoreDefault = 0.1

// Engine serves the three search layers on top of the Entry Repository and
// the raw storage handle (timeline and full-fetch bypass the hybrid query
// algorithm, since they're not score-based).
type Engine struct {
	repo    *entry.Repository
	store   storage.EntryStore
	metrics *metrics.Recorder
}

func New(repo *entry.Repository, store storage.EntryStore) *Engine {
	return &Engine{repo: repo, store: store}
}

// WithMetrics attaches the Metrics component's recorder, returning e for
// chaining at construction time. A nil recorder (the default) makes every
// recording call below a no-op.
func (e *Engine) WithMetrics(m *metrics.Recorder) *Engine {
	e.metrics = m
	return e
}

// CompactOptions configures Layer 1.
type CompactOptions struct {
	Limit           int
	Namespace       string
	IncludeKeyword  bool
	IncludeSemantic bool
	MinScore        float64
}

// CompactResult is one Layer 1 row.
type CompactResult struct {
	ID             string  `json:"id"`
	Key            string  `json:"key,omitempty"`
	Namespace      string  `json:"namespace"`
	Score          float64 `json:"score"`
	KeywordScore   float64 `json:"keyword_score"`
	SemanticScore  float64 `json:"semantic_score"`
	Snippet        string  `json:"snippet"`
	EstimatedTokens int    `json:"estimated_tokens"`
}

// CompactSearch is Layer 1: a ranked, token-bounded index of matches.
func (e *Engine) CompactSearch(ctx context.Context, query string, opts CompactOptions) ([]CompactResult, error) {
	start := time.Now()
	defer func() { e.metrics.SearchLatency(ctx, "compact", time.Since(start)) }()

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	minScore := opts.MinScore
	if minScore <= 0 {
		minScore = minScoreDefault
	}

	queryType := types.QueryHybrid
	if opts.IncludeSemantic && !opts.IncludeKeyword {
		queryType = types.QuerySemantic
	} else if opts.IncludeKeyword && !opts.IncludeSemantic {
		queryType = types.QueryKeyword
	}

	filter := types.EntryFilter{
		QueryType: queryType,
		Content:   query,
		Namespace: opts.Namespace,
		Limit:     limit,
	}
	scored, err := e.repo.Query(ctx, filter)
	if err != nil {
		return nil, err
	}

	out := make([]CompactResult, 0, len(scored))
	for _, s := range scored {
		if s.Score < minScore {
			continue
		}
		out = append(out, CompactResult{
			ID:              s.Entry.ID,
			Key:             s.Entry.Key,
			Namespace:       s.Entry.Namespace,
			Score:           s.Score,
			KeywordScore:    s.KeywordScore,
			SemanticScore:   s.VectorScore,
			Snippet:         snippet(s.Entry.Content, 100),
			EstimatedTokens: entry.EstimateTokens(len(s.Entry.Content)),
		})
	}
	return out, nil
}

// TimelineEntry is one row of Layer 2: an entry plus whether it is the
// anchor the caller asked to center on.
type TimelineEntry struct {
	Entry    *types.Entry `json:"entry"`
	IsAnchor bool         `json:"is_anchor"`
}

// Timeline is Layer 2. Each anchor ID is resolved to its entry; the window
// is interpreted as minutes before/after the anchor's created_at (per the
// MCP memory_timeline contract), bounded to the same namespace, and
// returned in chronological order with the anchor marked.
func (e *Engine) Timeline(ctx context.Context, anchorIDs []string, before, after time.Duration) ([]TimelineEntry, error) {
	start := time.Now()
	defer func() { e.metrics.SearchLatency(ctx, "timeline", time.Since(start)) }()

	seen := make(map[string]bool)
	var out []TimelineEntry

	for _, id := range anchorIDs {
		anchor, err := e.store.GetEntry(ctx, id)
		if err != nil {
			continue
		}

		lo := anchor.CreatedAt.Add(-before)
		hi := anchor.CreatedAt.Add(after)
		filter := types.EntryFilter{
			Namespace:     anchor.Namespace,
			CreatedAfter:  &lo,
			CreatedBefore: &hi,
			Limit:         500,
		}
		window, err := e.store.QueryEntries(ctx, filter)
		if err != nil {
			continue
		}

		for _, w := range window {
			if seen[w.ID] {
				continue
			}
			seen[w.ID] = true
			out = append(out, TimelineEntry{Entry: w, IsAnchor: w.ID == anchor.ID})
		}
		if !seen[anchor.ID] {
			seen[anchor.ID] = true
			out = append(out, TimelineEntry{Entry: anchor, IsAnchor: true})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Entry.CreatedAt.Before(out[j].Entry.CreatedAt)
	})
	return out, nil
}

const maxDetailIDs = 5

// FullFetch is Layer 3: bounded, order-preserving, unscored full entries.
// ids beyond maxDetailIDs are silently dropped to bound token usage.
func (e *Engine) FullFetch(ctx context.Context, ids []string) ([]*types.Entry, error) {
	start := time.Now()
	defer func() { e.metrics.SearchLatency(ctx, "fullfetch", time.Since(start)) }()

	if len(ids) > maxDetailIDs {
		ids = ids[:maxDetailIDs]
	}
	out := make([]*types.Entry, 0, len(ids))
	for _, id := range ids {
		ent, err := e.store.GetEntry(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, ent)
	}
	return out, nil
}

// TokenReport is the economics footer attached to a search call: how many
// tokens a full dump would have cost versus what was actually returned.
type TokenReport struct {
	FullResultTokens int            `json:"full_result_tokens"`
	ActualTokens     int            `json:"actual_tokens"`
	SavingsPercent   float64        `json:"savings_percent"`
	PerLayerCounts   map[string]int `json:"per_layer_counts"`
}

// Report computes token economics for one layer's results. fullEntries is
// the full Entry set that would have been returned by a naive dump;
// actualChars is the char count of what was actually rendered (snippets,
// or a subset of full entries).
func Report(fullEntries []*types.Entry, actualChars int, layerCounts map[string]int) TokenReport {
	var fullChars int
	for _, e := range fullEntries {
		fullChars += len(e.Content)
	}
	full := entry.EstimateTokens(fullChars)
	actual := entry.EstimateTokens(actualChars)

	savings := 0.0
	if full > 0 {
		savings = (1 - float64(actual)/float64(full)) * 100
		if savings < 0 {
			savings = 0
		}
	}
	return TokenReport{
		FullResultTokens: full,
		ActualTokens:     actual,
		SavingsPercent:   math.Round(savings*100) / 100,
		PerLayerCounts:   layerCounts,
	}
}

func snippet(content string, maxLen int) string {
	r := []rune(content)
	if len(r) <= maxLen {
		return content
	}
	return string(r[:maxLen])
}
