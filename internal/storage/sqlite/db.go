// Package sqlite is the storage kernel: a single embedded modernc.org/sqlite
// database file holding memory entries, sessions, prompts, observations,
// session summaries, the background task queue, and the embedding cache,
// plus an FTS5 mirror and a brute-force vector shadow table for hybrid
// search. One *sql.DB, one writer.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	_ "modernc.org/sqlite"
)

// SQLiteStorage is the canonical Storage backend.
type SQLiteStorage struct {
	db        *sql.DB
	path      string
	vectorDim int
	tokenizer string
}

// Option configures a SQLiteStorage at construction time.
type Option func(*options)

type options struct {
	vectorDim int
}

// WithVectorDim overrides the fixed embedding dimension (default 384).
// Vectors of any other dimension are silently skipped on insert.
func WithVectorDim(dim int) Option {
	return func(o *options) { o.vectorDim = dim }
}

// New opens (creating if absent) the database at path, applies pragmas,
// creates the schema if missing, runs additive migrations, and probes for
// the best available FTS5 tokenizer.
func New(ctx context.Context, path string, opts ...Option) (*SQLiteStorage, error) {
	o := &options{vectorDim: 384}
	for _, opt := range opts {
		opt(o)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)",
		path,
	)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection avoids SQLITE_BUSY storms under WAL; this
	// process's reads and writes all serialize through that one *sql.DB
	// connection pool slot.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &SQLiteStorage{db: db, path: path, vectorDim: o.vectorDim}

	if err := s.createSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	if err := s.setupFTS(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("setting up full-text search: %w", err)
	}

	return s, nil
}

func (s *SQLiteStorage) createSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memory_entries (
			id             TEXT PRIMARY KEY,
			namespace      TEXT NOT NULL,
			key            TEXT NOT NULL DEFAULT '',
			content        TEXT NOT NULL,
			type           TEXT NOT NULL,
			tags           TEXT NOT NULL DEFAULT '',
			metadata       TEXT NOT NULL DEFAULT '',
			access_level   TEXT NOT NULL DEFAULT 'private',
			version        INTEGER NOT NULL DEFAULT 1,
			"references"   TEXT NOT NULL DEFAULT '',
			session_id     TEXT NOT NULL DEFAULT '',
			created_at     TEXT NOT NULL,
			updated_at     TEXT NOT NULL,
			expires_at     TEXT,
			last_accessed_at TEXT NOT NULL,
			access_count   INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_memory_entries_namespace_key
			ON memory_entries(namespace, key) WHERE key != ''`,
		`CREATE INDEX IF NOT EXISTS idx_memory_entries_namespace ON memory_entries(namespace)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_entries_session ON memory_entries(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_entries_type ON memory_entries(type)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_entries_expires ON memory_entries(expires_at)`,

		`CREATE TABLE IF NOT EXISTS memory_vec (
			entry_id TEXT PRIMARY KEY REFERENCES memory_entries(id) ON DELETE CASCADE,
			dim      INTEGER NOT NULL,
			vector   BLOB NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS sessions (
			id                 TEXT PRIMARY KEY,
			project            TEXT NOT NULL,
			parent_session_id  TEXT NOT NULL DEFAULT '',
			started_at         TEXT NOT NULL,
			ended_at           TEXT,
			status             TEXT NOT NULL DEFAULT 'active',
			observation_count  INTEGER NOT NULL DEFAULT 0,
			summary            TEXT NOT NULL DEFAULT '',
			prompt             TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status)`,

		`CREATE TABLE IF NOT EXISTS user_prompts (
			id            TEXT PRIMARY KEY,
			session_id    TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			prompt_number INTEGER NOT NULL,
			prompt_text   TEXT NOT NULL,
			content_hash  TEXT NOT NULL,
			created_at    TEXT NOT NULL,
			embedding     BLOB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_user_prompts_session ON user_prompts(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_user_prompts_hash ON user_prompts(session_id, content_hash)`,

		`CREATE TABLE IF NOT EXISTS observations (
			id                 TEXT PRIMARY KEY,
			session_id         TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			project            TEXT NOT NULL,
			tool_name          TEXT NOT NULL,
			tool_input         TEXT NOT NULL DEFAULT '',
			tool_response      TEXT NOT NULL DEFAULT '',
			type               TEXT NOT NULL,
			title              TEXT NOT NULL DEFAULT '',
			prompt_number      INTEGER NOT NULL DEFAULT 0,
			files_read         TEXT NOT NULL DEFAULT '',
			files_modified     TEXT NOT NULL DEFAULT '',
			subtitle           TEXT NOT NULL DEFAULT '',
			narrative          TEXT NOT NULL DEFAULT '',
			facts              TEXT NOT NULL DEFAULT '',
			concepts           TEXT NOT NULL DEFAULT '',
			compressed_summary TEXT NOT NULL DEFAULT '',
			is_compressed      INTEGER NOT NULL DEFAULT 0,
			content_hash       TEXT NOT NULL,
			timestamp          TEXT NOT NULL,
			embedding          BLOB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_observations_session ON observations(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_observations_hash ON observations(session_id, tool_name, content_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_observations_compressed ON observations(is_compressed, timestamp)`,

		`CREATE TABLE IF NOT EXISTS session_summaries (
			session_id     TEXT PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
			request        TEXT NOT NULL DEFAULT '',
			completed      TEXT NOT NULL DEFAULT '',
			files_read     TEXT NOT NULL DEFAULT '',
			files_modified TEXT NOT NULL DEFAULT '',
			next_steps     TEXT NOT NULL DEFAULT '',
			notes          TEXT NOT NULL DEFAULT '',
			decisions      TEXT NOT NULL DEFAULT '',
			prompt_number  INTEGER NOT NULL DEFAULT 0,
			created_at     TEXT NOT NULL,
			embedding      BLOB
		)`,

		`CREATE TABLE IF NOT EXISTS task_queue (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			kind         TEXT NOT NULL,
			target_table TEXT NOT NULL,
			target_id    TEXT NOT NULL,
			status       TEXT NOT NULL DEFAULT 'pending',
			created_at   TEXT NOT NULL,
			attempts     INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_task_queue_kind_status ON task_queue(kind, status, id)`,

		`CREATE TABLE IF NOT EXISTS embedding_cache (
			hash             TEXT PRIMARY KEY,
			vector           BLOB NOT NULL,
			created_at       TEXT NOT NULL,
			expires_at       TEXT NOT NULL,
			access_count     INTEGER NOT NULL DEFAULT 0,
			last_accessed_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_embedding_cache_expires ON embedding_cache(expires_at)`,

		`CREATE TABLE IF NOT EXISTS config (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing %q: %w", stmt, err)
		}
	}
	return nil
}

// migrate adds columns that a prior schema version might be missing, by
// introspecting PRAGMA table_info() and issuing idempotent ALTER TABLE ADD
// COLUMN statements. Columns are never dropped or renamed, so every
// historical database file remains readable.
func (s *SQLiteStorage) migrate(ctx context.Context) error {
	additions := map[string][]columnDef{
		// Intentionally empty for the current schema version; future
		// releases append {table, column, definition} entries here.
	}

	for table, cols := range additions {
		existing, err := s.tableColumns(ctx, table)
		if err != nil {
			return fmt.Errorf("introspecting %s: %w", table, err)
		}
		for _, col := range cols {
			if existing[col.name] {
				continue
			}
			stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, col.name, col.definition)
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("adding column %s.%s: %w", table, col.name, err)
			}
		}
	}
	return nil
}

type columnDef struct {
	name       string
	definition string
}

func (s *SQLiteStorage) tableColumns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name       string
			ctype      string
			notnull    int
			dfltValue  sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// withBusyRetry runs fn, retrying with exponential backoff if it reports the
// database locked by another connection (see isBusy) — the multi-process
// layer above a single-writer *sql.DB, for when this process's embedded
// busy_timeout pragma alone doesn't absorb contention from a concurrently
// running worker subprocess touching the same file. Any other error, or
// running out of the retry budget, is returned as-is.
func withBusyRetry(ctx context.Context, fn func() error) error {
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	return backoff.Retry(func() error {
		err := fn()
		if err != nil && !isBusy(err) {
			return backoff.Permanent(err)
		}
		return err
	}, bo)
}

// Health reports whether the underlying handle can still serve a query.
func (s *SQLiteStorage) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Vacuum reclaims space freed by archival/purge deletes.
func (s *SQLiteStorage) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return wrapDBError("vacuum", err)
}

// Close releases the database handle.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
