package entry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agentkits/memory/internal/types"
)

var errFakeNotFound = errors.New("fake store: not found")

// fakeStore is a minimal in-memory storage.EntryStore stand-in, enough to
// exercise the hybrid query algorithm without spinning up sqlite.
type fakeStore struct {
	entries map[string]*types.Entry
	vec     func(ctx context.Context, v []float32, k int, threshold float64, f types.EntryFilter) ([]types.ScoredEntry, error)
	text    func(ctx context.Context, q string, limit int, f types.EntryFilter) ([]types.ScoredEntry, error)
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[string]*types.Entry)}
}

func (f *fakeStore) StoreEntry(ctx context.Context, e *types.Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	f.entries[e.ID] = e
	return nil
}
func (f *fakeStore) GetEntry(ctx context.Context, id string) (*types.Entry, error) {
	e, ok := f.entries[id]
	if !ok {
		return nil, errFakeNotFound
	}
	return e, nil
}
func (f *fakeStore) GetEntryByKey(ctx context.Context, ns, key string) (*types.Entry, error) {
	for _, e := range f.entries {
		if e.Namespace == ns && e.Key == key {
			return e, nil
		}
	}
	return nil, errFakeNotFound
}
func (f *fakeStore) UpdateEntry(ctx context.Context, id string, patch types.EntryPatch) (*types.Entry, error) {
	e, ok := f.entries[id]
	if !ok {
		return nil, errFakeNotFound
	}
	if patch.Content != nil {
		e.Content = *patch.Content
	}
	e.Version++
	return e, nil
}
func (f *fakeStore) DeleteEntry(ctx context.Context, id string) (bool, error) {
	if _, ok := f.entries[id]; !ok {
		return false, nil
	}
	delete(f.entries, id)
	return true, nil
}
func (f *fakeStore) BulkInsertEntries(ctx context.Context, entries []*types.Entry) error {
	for _, e := range entries {
		f.entries[e.ID] = e
	}
	return nil
}
func (f *fakeStore) QueryEntries(ctx context.Context, filter types.EntryFilter) ([]*types.Entry, error) {
	var out []*types.Entry
	for _, e := range f.entries {
		if filter.Namespace != "" && e.Namespace != filter.Namespace {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
func (f *fakeStore) SearchEntriesByVector(ctx context.Context, v []float32, k int, threshold float64, filter types.EntryFilter) ([]types.ScoredEntry, error) {
	if f.vec != nil {
		return f.vec(ctx, v, k, threshold, filter)
	}
	return nil, nil
}
func (f *fakeStore) SearchEntriesByText(ctx context.Context, q string, limit int, filter types.EntryFilter) ([]types.ScoredEntry, error) {
	if f.text != nil {
		return f.text(ctx, q, limit, filter)
	}
	return nil, nil
}
func (f *fakeStore) CountEntries(ctx context.Context, ns string) (int, error) {
	n := 0
	for _, e := range f.entries {
		if ns == "" || e.Namespace == ns {
			n++
		}
	}
	return n, nil
}
func (f *fakeStore) ListNamespaces(ctx context.Context) ([]string, error) { return nil, nil }
func (f *fakeStore) ClearNamespace(ctx context.Context, ns string) (int, error) {
	n := 0
	for id, e := range f.entries {
		if e.Namespace == ns {
			delete(f.entries, id)
			n++
		}
	}
	return n, nil
}

type fakeEmbedder struct{ calls int }

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	return []float32{1, 0, 0}, nil
}

func TestStoreGeneratesEmbeddingWhenMissing(t *testing.T) {
	fs := newFakeStore()
	emb := &fakeEmbedder{}
	repo := New(fs, emb)

	e := &types.Entry{Namespace: "decision", Content: "pick modernc.org/sqlite", Type: types.EntrySemantic}
	if err := repo.Store(context.Background(), e); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if e.ID == "" {
		t.Fatal("expected an ID to be generated")
	}
	if len(e.Embedding) == 0 {
		t.Fatal("expected embedding to be generated")
	}
	if emb.calls != 1 {
		t.Fatalf("expected exactly one embed call, got %d", emb.calls)
	}
}

func TestQueryPlainFilterPath(t *testing.T) {
	fs := newFakeStore()
	repo := New(fs, nil)
	ctx := context.Background()

	_ = repo.Store(ctx, &types.Entry{ID: "e1", Namespace: "pattern", Content: "x", Type: types.EntryEpisodic})
	_ = repo.Store(ctx, &types.Entry{ID: "e2", Namespace: "other", Content: "y", Type: types.EntryEpisodic})

	scored, err := repo.Query(ctx, types.EntryFilter{Namespace: "pattern"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(scored) != 1 || scored[0].Entry.ID != "e1" {
		t.Fatalf("expected only e1, got %+v", scored)
	}
}

func TestHybridQueryFusesVectorAndText(t *testing.T) {
	fs := newFakeStore()
	now := time.Now()
	shared := &types.Entry{ID: "both", Namespace: "ns", Content: "shared hit", CreatedAt: now}
	vecOnly := &types.Entry{ID: "vec-only", Namespace: "ns", Content: "vector hit", CreatedAt: now}
	fs.entries[shared.ID] = shared
	fs.entries[vecOnly.ID] = vecOnly

	fs.vec = func(ctx context.Context, v []float32, k int, threshold float64, filter types.EntryFilter) ([]types.ScoredEntry, error) {
		return []types.ScoredEntry{
			{Entry: shared, Score: 0.9},
			{Entry: vecOnly, Score: 0.8},
		}, nil
	}
	fs.text = func(ctx context.Context, q string, limit int, filter types.EntryFilter) ([]types.ScoredEntry, error) {
		return []types.ScoredEntry{
			{Entry: shared, Score: 0.95},
		}, nil
	}

	repo := New(fs, nil)
	scored, err := repo.Query(context.Background(), types.EntryFilter{
		QueryType: types.QueryHybrid,
		Content:   "hit",
		Embedding: []float32{1, 0, 0},
		Limit:     10,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(scored) != 2 {
		t.Fatalf("expected 2 fused results, got %d", len(scored))
	}
	if scored[0].Entry.ID != "both" {
		t.Fatalf("expected the doubly-matched entry ranked first, got %s", scored[0].Entry.ID)
	}
	wantScore := 0.7*0.9 + 0.3*1.0
	if diff := scored[0].Score - wantScore; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected fused score %f, got %f", wantScore, scored[0].Score)
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(0); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if got := EstimateTokens(4); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := EstimateTokens(5); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
}
