// Package entry implements the Entry Repository (spec §4.4): the hybrid
// query algorithm and embedding-generation glue sitting above the storage
// kernel. Callers never talk to internal/storage/sqlite directly.
package entry

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/agentkits/memory/internal/cache"
	"github.com/agentkits/memory/internal/contenthash"
	"github.com/agentkits/memory/internal/idgen"
	"github.com/agentkits/memory/internal/storage"
	"github.com/agentkits/memory/internal/types"
)

// EmbeddingGenerator produces a vector for text. *embedclient.Client
// satisfies this; it is an interface here so Repository can be built and
// tested without spawning a real subprocess.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Repository is the Entry Repository. Embed may be nil, in which case
// Store/Update never attach an embedding and Query's semantic/hybrid
// paths only see entries that already carry one. EmbedCache may also be
// nil (cache disabled), in which case every Store/Update with changed
// content pays the embedding generator's full cost.
type Repository struct {
	store      storage.EntryStore
	embed      EmbeddingGenerator
	embedCache *cache.EmbeddingCache
}

func New(store storage.EntryStore, embed EmbeddingGenerator) *Repository {
	return &Repository{store: store, embed: embed}
}

// WithCache attaches the Cache Layer's write-through embedding cache,
// returning r for chaining at construction time.
func (r *Repository) WithCache(c *cache.EmbeddingCache) *Repository {
	r.embedCache = c
	return r
}

// embedText returns a vector for text, consulting the Cache Layer by
// content hash before falling back to the configured generator, and
// populating the cache on a generator hit so a repeat of this exact
// content (a re-save, or the same snippet in another entry) is free.
func (r *Repository) embedText(ctx context.Context, text string) ([]float32, bool) {
	if r.embed == nil {
		return nil, false
	}
	hash := contenthash.Hash(text)
	if r.embedCache != nil {
		if v, ok, err := r.embedCache.Get(ctx, hash); err == nil && ok {
			return v, true
		}
	}
	v, err := r.embed.Embed(ctx, text)
	if err != nil {
		return nil, false
	}
	if r.embedCache != nil {
		_ = r.embedCache.Put(ctx, hash, v)
	}
	return v, true
}

// Store persists a well-formed entry, generating an embedding if one is
// missing and a generator is configured. Embedding failure is not fatal:
// the entry is stored without one.
func (r *Repository) Store(ctx context.Context, e *types.Entry) error {
	if e.ID == "" {
		e.ID = idgen.GenerateHashID("entry", e.Content, e.Namespace, e.SessionID, time.Now(), 5, 0)
	}
	if len(e.Embedding) == 0 && e.Content != "" {
		if v, ok := r.embedText(ctx, e.Content); ok {
			e.Embedding = v
		}
	}
	return r.store.StoreEntry(ctx, e)
}

func (r *Repository) Get(ctx context.Context, id string) (*types.Entry, error) {
	return r.store.GetEntry(ctx, id)
}

func (r *Repository) GetByKey(ctx context.Context, namespace, key string) (*types.Entry, error) {
	return r.store.GetEntryByKey(ctx, namespace, key)
}

// Update applies patch, regenerating the embedding only when Content
// changed.
func (r *Repository) Update(ctx context.Context, id string, patch types.EntryPatch) (*types.Entry, error) {
	if patch.Content != nil {
		if v, ok := r.embedText(ctx, *patch.Content); ok {
			patch.Embedding = v
		}
	}
	return r.store.UpdateEntry(ctx, id, patch)
}

func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	return r.store.DeleteEntry(ctx, id)
}

func (r *Repository) BulkInsert(ctx context.Context, entries []*types.Entry) error {
	for _, e := range entries {
		if e.ID == "" {
			e.ID = idgen.GenerateHashID("entry", e.Content, e.Namespace, e.SessionID, time.Now(), 5, 0)
		}
	}
	return r.store.BulkInsertEntries(ctx, entries)
}

func (r *Repository) Count(ctx context.Context, namespace string) (int, error) {
	return r.store.CountEntries(ctx, namespace)
}

func (r *Repository) ListNamespaces(ctx context.Context) ([]string, error) {
	return r.store.ListNamespaces(ctx)
}

func (r *Repository) ClearNamespace(ctx context.Context, namespace string) (int, error) {
	return r.store.ClearNamespace(ctx, namespace)
}

// Query runs the hybrid query algorithm of spec §4.4/§4.5:
//  1. no content/embedding: plain SQL-filter path, newest first.
//  2. exact/prefix/tag: the filter path directly (storage already applies
//     those predicates).
//  3. keyword (FTS-only): return FTS/BM25 results directly, no vector
//     component.
//  4. semantic: vector search, obtaining a query vector from content if
//     one wasn't supplied.
//  5. hybrid: fuse vector + FTS results 0.7/0.3.
func (r *Repository) Query(ctx context.Context, filter types.EntryFilter) ([]types.ScoredEntry, error) {
	switch {
	case filter.Content == "" && len(filter.Embedding) == 0:
		entries, err := r.store.QueryEntries(ctx, filter)
		if err != nil {
			return nil, err
		}
		return wrapUnscored(entries), nil

	case filter.QueryType == types.QueryExact || filter.QueryType == types.QueryPrefix || filter.QueryType == types.QueryTag:
		entries, err := r.store.QueryEntries(ctx, filter)
		if err != nil {
			return nil, err
		}
		return wrapUnscored(entries), nil

	case filter.QueryType == types.QueryKeyword:
		limit := filter.Limit
		if limit <= 0 {
			limit = 20
		}
		return r.store.SearchEntriesByText(ctx, filter.Content, limit, filter)

	case filter.QueryType == types.QuerySemantic:
		return r.semanticQuery(ctx, filter)

	case filter.QueryType == types.QueryHybrid:
		return r.hybridQuery(ctx, filter)

	default:
		entries, err := r.store.QueryEntries(ctx, filter)
		if err != nil {
			return nil, err
		}
		return wrapUnscored(entries), nil
	}
}

func (r *Repository) semanticQuery(ctx context.Context, filter types.EntryFilter) ([]types.ScoredEntry, error) {
	vec := filter.Embedding
	if len(vec) == 0 {
		if r.embed == nil || filter.Content == "" {
			return nil, fmt.Errorf("entry: semantic query requires an embedding or a configured generator")
		}
		v, err := r.embed.Embed(ctx, filter.Content)
		if err != nil {
			return nil, fmt.Errorf("entry: generating query vector: %w", err)
		}
		vec = v
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	scored, err := r.store.SearchEntriesByVector(ctx, vec, limit, filter.Threshold, filter)
	if err != nil {
		return nil, err
	}
	// Namespace filtering is applied again post hoc per §4.4 step 3, since
	// the storage layer already filters on it but this keeps the contract
	// explicit if that changes.
	if filter.Namespace != "" {
		out := scored[:0]
		for _, s := range scored {
			if s.Entry.Namespace == filter.Namespace {
				out = append(out, s)
			}
		}
		scored = out
	}
	return scored, nil
}

func (r *Repository) hybridQuery(ctx context.Context, filter types.EntryFilter) ([]types.ScoredEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}

	var vecResults []types.ScoredEntry
	vec := filter.Embedding
	if len(vec) == 0 && r.embed != nil && filter.Content != "" {
		if v, err := r.embed.Embed(ctx, filter.Content); err == nil {
			vec = v
		}
	}
	if len(vec) > 0 {
		vr, err := r.store.SearchEntriesByVector(ctx, vec, limit*2, 0.1, filter)
		if err == nil {
			vecResults = vr
		}
	}

	var ftsResults []types.ScoredEntry
	if filter.Content != "" {
		fr, err := r.store.SearchEntriesByText(ctx, filter.Content, limit*2, filter)
		if err == nil {
			ftsResults = fr
		}
	}

	fused := make(map[string]*types.ScoredEntry, len(vecResults)+len(ftsResults))
	for _, s := range vecResults {
		s := s
		fused[s.Entry.ID] = &types.ScoredEntry{Entry: s.Entry, VectorScore: s.Score}
	}
	n := len(ftsResults)
	for i, s := range ftsResults {
		ftsScore := 1 - float64(i)/float64(n)
		if existing, ok := fused[s.Entry.ID]; ok {
			existing.KeywordScore = ftsScore
		} else {
			fused[s.Entry.ID] = &types.ScoredEntry{Entry: s.Entry, KeywordScore: ftsScore}
		}
	}

	out := make([]types.ScoredEntry, 0, len(fused))
	for _, s := range fused {
		s.Score = 0.7*s.VectorScore + 0.3*s.KeywordScore
		out = append(out, *s)
	}

	sortScored(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func wrapUnscored(entries []*types.Entry) []types.ScoredEntry {
	out := make([]types.ScoredEntry, len(entries))
	for i, e := range entries {
		out[i] = types.ScoredEntry{Entry: e}
	}
	return out
}

// sortScored applies the deterministic tie-break of §4.4/§4.5: score desc,
// then created_at desc, then lexicographic id.
func sortScored(s []types.ScoredEntry) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Score != s[j].Score {
			return s[i].Score > s[j].Score
		}
		ti, tj := s[i].Entry.CreatedAt, s[j].Entry.CreatedAt
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return s[i].Entry.ID < s[j].Entry.ID
	})
}

// EstimateTokens approximates token count as ceil(chars/4), used by the
// search package's layer economics.
func EstimateTokens(charCount int) int {
	return int(math.Ceil(float64(charCount) / 4.0))
}
