// Package storage defines the capability-set trait that every memory
// engine backend (canonical SQLite, or a future in-memory test stub) must
// implement. Callers — the Entry Repository, Capture Service, Hybrid
// Search Engine, Task Queue — depend only on this interface, never on the
// sqlite package directly, so an alternate backend is a drop-in.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/agentkits/memory/internal/types"
)

// ErrNotFound is the sentinel every backend wraps its miss errors in, so
// callers that depend only on this interface (the Capture Service, Entry
// Repository) can test with errors.Is without importing a concrete backend.
var ErrNotFound = errors.New("not found")

// Storage is the polymorphic trait over {store, get, update, delete,
// query, search, bulk, stats, health} that every backend implements.
type Storage interface {
	EntryStore
	SessionStore
	PromptStore
	ObservationStore
	SummaryStore
	TaskStore
	EmbeddingCacheStore
	ConfigStore

	// Vacuum reclaims space and is the documented recovery step after
	// bulk deletes (lifecycle archival/purge).
	Vacuum(ctx context.Context) error

	// Health reports whether the underlying handle is usable.
	Health(ctx context.Context) error

	// Close releases the database handle.
	Close() error
}

// EntryStore is the Entry Repository contract (spec §4.4).
type EntryStore interface {
	StoreEntry(ctx context.Context, e *types.Entry) error
	GetEntry(ctx context.Context, id string) (*types.Entry, error)
	GetEntryByKey(ctx context.Context, namespace, key string) (*types.Entry, error)
	UpdateEntry(ctx context.Context, id string, patch types.EntryPatch) (*types.Entry, error)
	DeleteEntry(ctx context.Context, id string) (bool, error)
	BulkInsertEntries(ctx context.Context, entries []*types.Entry) error
	QueryEntries(ctx context.Context, filter types.EntryFilter) ([]*types.Entry, error)
	SearchEntriesByVector(ctx context.Context, vector []float32, k int, threshold float64, filter types.EntryFilter) ([]types.ScoredEntry, error)
	SearchEntriesByText(ctx context.Context, query string, limit int, filter types.EntryFilter) ([]types.ScoredEntry, error)
	CountEntries(ctx context.Context, namespace string) (int, error)
	ListNamespaces(ctx context.Context) ([]string, error)
	ClearNamespace(ctx context.Context, namespace string) (int, error)
}

// SessionStore persists Session rows.
type SessionStore interface {
	CreateSession(ctx context.Context, s *types.Session) error
	GetSession(ctx context.Context, id string) (*types.Session, error)
	UpdateSession(ctx context.Context, s *types.Session) error
	FindResumableSession(ctx context.Context, project string, within time.Duration) (*types.Session, error)
	ArchiveSessionsOlderThan(ctx context.Context, cutoff time.Time) (int, error)
	DeleteArchivedSessionsOlderThan(ctx context.Context, cutoff time.Time) (int, error)
	IncrementObservationCount(ctx context.Context, sessionID string) error
}

// PromptStore persists UserPrompt rows.
type PromptStore interface {
	FindPromptByHash(ctx context.Context, sessionID, contentHash string, within time.Duration) (*types.UserPrompt, error)
	NextPromptNumber(ctx context.Context, sessionID string) (int, error)
	StorePrompt(ctx context.Context, p *types.UserPrompt) error
	LatestPrompt(ctx context.Context, sessionID string) (*types.UserPrompt, error)
	PromptsBySession(ctx context.Context, sessionID string) ([]*types.UserPrompt, error)
	GetPrompt(ctx context.Context, id string) (*types.UserPrompt, error)
	SetPromptEmbedding(ctx context.Context, id string, vector []float32) error
}

// ObservationStore persists Observation rows.
type ObservationStore interface {
	FindObservationByHash(ctx context.Context, sessionID, toolName, contentHash string, within time.Duration) (*types.Observation, error)
	StoreObservation(ctx context.Context, o *types.Observation) error
	GetObservation(ctx context.Context, id string) (*types.Observation, error)
	ObservationsBySession(ctx context.Context, sessionID string, limit int) ([]*types.Observation, error)
	ObservationsByProject(ctx context.Context, project string, limit int) ([]*types.Observation, error)
	UncompressedObservationsOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*types.Observation, error)
	MarkObservationCompressed(ctx context.Context, id, summary string) error
	SetObservationEmbedding(ctx context.Context, id string, vector []float32) error
	SetObservationSubtitle(ctx context.Context, id, subtitle string) error
}

// SummaryStore persists SessionSummary rows.
type SummaryStore interface {
	StoreSessionSummary(ctx context.Context, s *types.SessionSummary) error
	GetSessionSummary(ctx context.Context, sessionID string) (*types.SessionSummary, error)
}

// TaskStore persists the durable task queue.
type TaskStore interface {
	Enqueue(ctx context.Context, kind types.TaskKind, targetTable, targetID string) error
	ClaimBatch(ctx context.Context, kind types.TaskKind, limit int) ([]*types.Task, error)
	CompleteTask(ctx context.Context, id int64) error
	FailTask(ctx context.Context, id int64) error
	ReleaseStaleProcessing(ctx context.Context, staleAfter time.Duration) (int, error)
	PendingCount(ctx context.Context, kind types.TaskKind) (int, error)
}

// EmbeddingCacheStore persists the content-hash -> vector cache.
type EmbeddingCacheStore interface {
	GetCachedEmbedding(ctx context.Context, hash string) ([]float32, bool, error)
	PutCachedEmbedding(ctx context.Context, entry types.EmbeddingCacheEntry, maxSize int) error
}

// ConfigStore persists small engine-wide key/value configuration, separate
// from settings.json (which is user-facing). The SQLite backend keeps the
// active FTS tokenizer in its separate metadata table, not here.
type ConfigStore interface {
	SetConfig(ctx context.Context, key, value string) error
	GetConfig(ctx context.Context, key string) (string, error)
}
