// Package memory is the public entry point to the project-scoped memory
// engine: embedded storage, hybrid search, and session capture for AI
// coding assistants. Most callers only need Open and the Entry/Session/
// Observation types; the MCP tool server and CLI are the primary
// consumers of the lower-level internal packages.
package memory

import (
	"context"

	"github.com/agentkits/memory/internal/storage"
	"github.com/agentkits/memory/internal/storage/sqlite"
	"github.com/agentkits/memory/internal/types"
)

// Core domain types re-exported for convenience.
type (
	Entry          = types.Entry
	EntryPatch     = types.EntryPatch
	EntryType      = types.EntryType
	EntryFilter    = types.EntryFilter
	ScoredEntry    = types.ScoredEntry
	AccessLevel    = types.AccessLevel
	Session        = types.Session
	UserPrompt     = types.UserPrompt
	Observation    = types.Observation
	SessionSummary = types.SessionSummary
	Task           = types.Task
)

// Entry type constants.
const (
	TypeEpisodic   = types.EntryEpisodic
	TypeSemantic   = types.EntrySemantic
	TypeProcedural = types.EntryProcedural
	TypeWorking    = types.EntryWorking
	TypeCache      = types.EntryCache
)

// Access level constants.
const (
	AccessPrivate = types.AccessPrivate
	AccessProject = types.AccessProject
	AccessShared  = types.AccessShared
)

// Storage is the capability-set every memory engine backend implements.
type Storage = storage.Storage

// Open opens (creating if absent) the SQLite-backed memory engine at
// dbPath. It is the single entry point callers outside internal/ need:
// the Entry Repository, Hybrid Search Engine, Capture Service, and Task
// Queue are all built on top of the returned Storage.
func Open(ctx context.Context, dbPath string, opts ...sqlite.Option) (Storage, error) {
	return sqlite.New(ctx, dbPath, opts...)
}

// WithVectorDim overrides the engine's fixed embedding dimension.
func WithVectorDim(dim int) sqlite.Option {
	return sqlite.WithVectorDim(dim)
}
