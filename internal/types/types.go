// Package types defines the entities stored by the memory engine: memory
// entries, sessions, prompts, observations, session summaries, queued
// background tasks, and the embedding cache. These are plain data shapes;
// validation and persistence live in internal/storage.
package types

import "time"

// EntryType classifies what kind of memory an Entry holds.
type EntryType string

const (
	EntryEpisodic   EntryType = "episodic"
	EntrySemantic   EntryType = "semantic"
	EntryProcedural EntryType = "procedural"
	EntryWorking    EntryType = "working"
	EntryCache      EntryType = "cache"
)

// AccessLevel controls who may see an Entry. Enforcement is out of scope
// (local trust model); the field exists to preserve the attribute when a
// caller sets it.
type AccessLevel string

const (
	AccessPrivate AccessLevel = "private"
	AccessProject AccessLevel = "project"
	AccessShared  AccessLevel = "shared"
)

// Entry is an addressable unit of memory.
type Entry struct {
	ID           string            `json:"id"`
	Namespace    string            `json:"namespace"`
	Key          string            `json:"key,omitempty"`
	Content      string            `json:"content"`
	Type         EntryType         `json:"type"`
	Tags         []string          `json:"tags,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	AccessLevel  AccessLevel       `json:"access_level"`
	Version      int               `json:"version"`
	References   []string          `json:"references,omitempty"`
	Embedding    []float32         `json:"embedding,omitempty"`
	SessionID    string            `json:"session_id,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	ExpiresAt    *time.Time        `json:"expires_at,omitempty"`
	LastAccessed time.Time         `json:"last_accessed_at"`
	AccessCount  int               `json:"access_count"`
}

// EntryPatch is a partial update to an Entry; nil fields are left alone.
type EntryPatch struct {
	Content     *string
	Tags        []string
	Metadata    map[string]string
	AccessLevel *AccessLevel
	References  []string
	ExpiresAt   *time.Time
	// Embedding, set by the Entry Repository when Content changed and an
	// embedding generator is configured, refreshes the vector shadow
	// table alongside the row. Left nil, the existing vector (if any) is
	// untouched.
	Embedding []float32
}

// QueryType selects the Entry Repository's retrieval strategy.
type QueryType string

const (
	QueryExact    QueryType = "exact"
	QueryPrefix   QueryType = "prefix"
	QueryTag      QueryType = "tag"
	QueryKeyword  QueryType = "keyword" // FTS/BM25 only, no vector component
	QuerySemantic QueryType = "semantic"
	QueryHybrid   QueryType = "hybrid"
)

// DistanceMetric selects how vector similarity is computed. Cosine is the
// only implemented metric; the field exists for forward compatibility.
type DistanceMetric string

const (
	DistanceCosine DistanceMetric = "cosine"
)

// EntryFilter is the closed configuration accepted by query/search.
type EntryFilter struct {
	QueryType QueryType
	Content   string
	Embedding []float32

	Key       string
	KeyPrefix string

	Namespace   string
	Tags        []string
	MemoryType  EntryType
	SessionID   string
	OwnerID     string
	AccessLevel AccessLevel
	Metadata    map[string]string

	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	UpdatedAfter  *time.Time
	UpdatedBefore *time.Time

	Limit           int
	Offset          int
	Threshold       float64
	IncludeExpired  bool
	DistanceMetric  DistanceMetric
}

// ScoredEntry pairs an Entry with its fused or vector-only similarity score.
type ScoredEntry struct {
	Entry         *Entry
	Score         float64
	VectorScore   float64
	KeywordScore  float64
}

// SessionStatus is the lifecycle state of a Session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionArchived  SessionStatus = "archived"
)

// Session is one assistant conversation.
type Session struct {
	ID               string        `json:"id"`
	Project          string        `json:"project"`
	ParentSessionID  string        `json:"parent_session_id,omitempty"`
	StartedAt        time.Time     `json:"started_at"`
	EndedAt          *time.Time    `json:"ended_at,omitempty"`
	Status           SessionStatus `json:"status"`
	ObservationCount int           `json:"observation_count"`
	Summary          string        `json:"summary,omitempty"`
	Prompt           string        `json:"prompt,omitempty"`
}

// UserPrompt is one user message within a session.
type UserPrompt struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	PromptNumber int       `json:"prompt_number"`
	PromptText   string    `json:"prompt_text"`
	ContentHash  string    `json:"content_hash"`
	CreatedAt    time.Time `json:"created_at"`
	Embedding    []float32 `json:"embedding,omitempty"`
}

// ObservationType classifies the kind of tool use an Observation records.
type ObservationType string

const (
	ObservationRead    ObservationType = "read"
	ObservationWrite   ObservationType = "write"
	ObservationExecute ObservationType = "execute"
	ObservationSearch  ObservationType = "search"
	ObservationOther   ObservationType = "other"
)

// Intent classifies the most recent user prompt driving an Observation.
type Intent string

const (
	IntentBugfix        Intent = "bugfix"
	IntentFeature        Intent = "feature"
	IntentRefactor       Intent = "refactor"
	IntentInvestigation  Intent = "investigation"
	IntentOther          Intent = "other"
)

// Observation is a single tool-use record attached to a session.
type Observation struct {
	ID                 string          `json:"id"`
	SessionID          string          `json:"session_id"`
	Project            string          `json:"project"`
	ToolName           string          `json:"tool_name"`
	ToolInput          string          `json:"tool_input"`
	ToolResponse       string          `json:"tool_response"`
	Type               ObservationType `json:"type"`
	Title              string          `json:"title"`
	PromptNumber       int             `json:"prompt_number,omitempty"`
	FilesRead          []string        `json:"files_read,omitempty"`
	FilesModified      []string        `json:"files_modified,omitempty"`
	Subtitle           string          `json:"subtitle,omitempty"`
	Narrative          string          `json:"narrative,omitempty"`
	Facts              []string        `json:"facts,omitempty"`
	Concepts           []string        `json:"concepts,omitempty"`
	CompressedSummary  string          `json:"compressed_summary,omitempty"`
	IsCompressed       bool            `json:"is_compressed"`
	ContentHash        string          `json:"content_hash"`
	Timestamp          time.Time       `json:"timestamp"`
	Embedding          []float32       `json:"embedding,omitempty"`
}

// SessionSummary is one structured post-hoc summary of a session.
type SessionSummary struct {
	SessionID     string    `json:"session_id"`
	Request       string    `json:"request"`
	Completed     string    `json:"completed"`
	FilesRead     []string  `json:"files_read,omitempty"`
	FilesModified []string  `json:"files_modified,omitempty"`
	NextSteps     []string  `json:"next_steps,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	Decisions     []string  `json:"decisions,omitempty"`
	PromptNumber  int       `json:"prompt_number"`
	CreatedAt     time.Time `json:"created_at"`
	Embedding     []float32 `json:"embedding,omitempty"`
}

// TaskKind names the three background worker kinds.
type TaskKind string

const (
	TaskEmbed    TaskKind = "embed"
	TaskEnrich   TaskKind = "enrich"
	TaskCompress TaskKind = "compress"
)

// TaskStatus tracks a queued task through claim and completion. A
// completed task's row is removed rather than marked done; TaskDone exists
// for callers that want to report a terminal status without a DB lookup.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskDone       TaskStatus = "done"
)

// Task is a queued background job.
type Task struct {
	ID          int64      `json:"id"`
	Kind        TaskKind   `json:"kind"`
	TargetTable string     `json:"target_table"`
	TargetID    string     `json:"target_id"`
	Status      TaskStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	Attempts    int        `json:"attempts"`
}

// EmbeddingCacheEntry maps a content hash to its previously computed vector.
type EmbeddingCacheEntry struct {
	Hash           string    `json:"hash"`
	Embedding      []float32 `json:"embedding"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	AccessCount    int       `json:"access_count"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}
