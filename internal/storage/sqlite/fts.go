package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const metadataKeyTokenizer = "fts.tokenizer"

// setupFTS creates the memory_fts external-content virtual table mirroring
// memory_entries' key, content, namespace, and tags columns, probing for
// the best tokenizer this SQLite build supports (trigram for substring
// matching, falling back to unicode61, then porter) and remembering the
// choice in the metadata table so a later process reuses the same table
// definition instead of re-probing.
func (s *SQLiteStorage) setupFTS(ctx context.Context) error {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'memory_fts'`,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking for memory_fts: %w", err)
	}
	if exists > 0 {
		tokenizer, err := s.GetMetadata(ctx, metadataKeyTokenizer)
		if err != nil {
			return err
		}
		s.tokenizer = tokenizer
		return nil
	}

	tokenizer := s.probeTokenizer(ctx)
	s.tokenizer = tokenizer

	ddl := fmt.Sprintf(
		`CREATE VIRTUAL TABLE memory_fts USING fts5(
			key,
			content,
			namespace,
			tags,
			tokenize = '%s',
			content = 'memory_entries',
			content_rowid = 'rowid'
		)`, tokenizer)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("creating memory_fts (tokenizer=%s): %w", tokenizer, err)
	}

	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS memory_entries_ai AFTER INSERT ON memory_entries BEGIN
			INSERT INTO memory_fts(rowid, key, content, namespace, tags) VALUES (new.rowid, new.key, new.content, new.namespace, new.tags);
		END`,
		`CREATE TRIGGER IF NOT EXISTS memory_entries_ad AFTER DELETE ON memory_entries BEGIN
			INSERT INTO memory_fts(memory_fts, rowid, key, content, namespace, tags) VALUES ('delete', old.rowid, old.key, old.content, old.namespace, old.tags);
		END`,
		`CREATE TRIGGER IF NOT EXISTS memory_entries_au AFTER UPDATE ON memory_entries BEGIN
			INSERT INTO memory_fts(memory_fts, rowid, key, content, namespace, tags) VALUES ('delete', old.rowid, old.key, old.content, old.namespace, old.tags);
			INSERT INTO memory_fts(rowid, key, content, namespace, tags) VALUES (new.rowid, new.key, new.content, new.namespace, new.tags);
		END`,
	}
	for _, stmt := range triggers {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating fts trigger: %w", err)
		}
	}

	return s.SetMetadata(ctx, metadataKeyTokenizer, tokenizer)
}

// probeTokenizer tries to create a throwaway FTS5 table with each
// candidate tokenizer in preference order and returns the first that
// succeeds. trigram gives substring matching (useful for CJK content with
// no word boundaries); unicode61 is the standard word tokenizer; porter
// adds English stemming on top of unicode61. Every SQLite build with FTS5
// compiled in supports at least unicode61, so this always terminates.
func (s *SQLiteStorage) probeTokenizer(ctx context.Context) string {
	candidates := []string{"trigram", "unicode61", "porter"}
	for _, tok := range candidates {
		ddl := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS fts_probe_%s USING fts5(c, tokenize = '%s')`, tok, tok)
		_, err := s.db.ExecContext(ctx, ddl)
		_, _ = s.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS fts_probe_%s", tok))
		if err == nil {
			return tok
		}
	}
	return "unicode61"
}

// SetMetadata sets an internal schema/runtime-state value, distinct from
// SetConfig which is user-visible configuration.
func (s *SQLiteStorage) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, key, value)
	return wrapDBError("set metadata", err)
}

// GetMetadata gets an internal schema/runtime-state value, returning "" if unset.
func (s *SQLiteStorage) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, wrapDBError("get metadata", err)
}
