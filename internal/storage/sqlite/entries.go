package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/agentkits/memory/internal/types"
)

const entryColumns = `id, namespace, key, content, type, tags, metadata, access_level,
	version, "references", session_id, created_at, updated_at, expires_at,
	last_accessed_at, access_count`

// StoreEntry inserts a new Entry, stamping CreatedAt/UpdatedAt/LastAccessed
// if unset and defaulting Version to 1. If e.Embedding is present and
// matches the configured vector dimension, it is also written to the
// memory_vec shadow table; a dimension mismatch is silently skipped
// (the entry is still stored — it just won't surface in vector search).
func (s *SQLiteStorage) StoreEntry(ctx context.Context, e *types.Entry) error {
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = now
	}
	if e.LastAccessed.IsZero() {
		e.LastAccessed = now
	}
	if e.Version == 0 {
		e.Version = 1
	}
	if e.AccessLevel == "" {
		e.AccessLevel = types.AccessPrivate
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBError("begin store entry", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO memory_entries (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entryColumns),
		e.ID, e.Namespace, e.Key, e.Content, string(e.Type),
		formatJSONStringArray(e.Tags), marshalMetadata(e.Metadata), string(e.AccessLevel),
		e.Version, formatJSONStringArray(e.References), e.SessionID,
		e.CreatedAt.Format(time.RFC3339Nano), e.UpdatedAt.Format(time.RFC3339Nano),
		nullableTimeString(e.ExpiresAt), e.LastAccessed.Format(time.RFC3339Nano), e.AccessCount,
	)
	if err != nil {
		return wrapDBError("insert entry", err)
	}

	if err := s.upsertVector(ctx, tx, e.ID, e.Embedding); err != nil {
		return err
	}

	return wrapDBError("commit store entry", tx.Commit())
}

func (s *SQLiteStorage) upsertVector(ctx context.Context, tx *sql.Tx, id string, embedding []float32) error {
	if len(embedding) == 0 {
		return nil
	}
	if len(embedding) != s.vectorDim {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO memory_vec (entry_id, dim, vector) VALUES (?, ?, ?)
		ON CONFLICT (entry_id) DO UPDATE SET dim = excluded.dim, vector = excluded.vector
	`, id, len(embedding), encodeVector(embedding))
	return wrapDBError("upsert vector", err)
}

// GetEntry fetches an Entry by ID and bumps its access bookkeeping.
func (s *SQLiteStorage) GetEntry(ctx context.Context, id string) (*types.Entry, error) {
	e, err := s.scanEntryByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.bumpAccess(ctx, id)
	e.AccessCount++
	return e, nil
}

// GetEntryByKey fetches an Entry by its (namespace, key) unique address.
func (s *SQLiteStorage) GetEntryByKey(ctx context.Context, namespace, key string) (*types.Entry, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM memory_entries WHERE namespace = ? AND key = ?
	`, entryColumns), namespace, key)
	e, err := scanEntry(row)
	if err != nil {
		return nil, wrapDBError("get entry by key", err)
	}
	s.bumpAccess(ctx, e.ID)
	return e, nil
}

func (s *SQLiteStorage) scanEntryByID(ctx context.Context, id string) (*types.Entry, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM memory_entries WHERE id = ?
	`, entryColumns), id)
	e, err := scanEntry(row)
	if err != nil {
		return nil, wrapDBError("get entry", err)
	}
	return e, nil
}

// bumpAccess increments access_count and refreshes last_accessed_at. Best
// effort: a failure here never fails the read it is attached to.
func (s *SQLiteStorage) bumpAccess(ctx context.Context, id string) {
	_, _ = s.db.ExecContext(ctx, `
		UPDATE memory_entries SET access_count = access_count + 1, last_accessed_at = ?
		WHERE id = ?
	`, time.Now().UTC().Format(time.RFC3339Nano), id)
}

// UpdateEntry applies a partial patch, bumping Version and UpdatedAt.
func (s *SQLiteStorage) UpdateEntry(ctx context.Context, id string, patch types.EntryPatch) (*types.Entry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapDBError("begin update entry", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM memory_entries WHERE id = ?`, entryColumns), id)
	existing, err := scanEntry(row)
	if err != nil {
		return nil, wrapDBError("update entry: load existing", err)
	}

	if patch.Content != nil {
		existing.Content = *patch.Content
	}
	if patch.Tags != nil {
		existing.Tags = patch.Tags
	}
	if patch.Metadata != nil {
		existing.Metadata = patch.Metadata
	}
	if patch.AccessLevel != nil {
		existing.AccessLevel = *patch.AccessLevel
	}
	if patch.References != nil {
		existing.References = patch.References
	}
	if patch.ExpiresAt != nil {
		existing.ExpiresAt = patch.ExpiresAt
	}
	if patch.Embedding != nil {
		existing.Embedding = patch.Embedding
	}
	existing.Version++
	existing.UpdatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		UPDATE memory_entries SET
			content = ?, tags = ?, metadata = ?, access_level = ?,
			"references" = ?, expires_at = ?, version = ?, updated_at = ?
		WHERE id = ?
	`, existing.Content, formatJSONStringArray(existing.Tags), marshalMetadata(existing.Metadata),
		string(existing.AccessLevel), formatJSONStringArray(existing.References),
		nullableTimeString(existing.ExpiresAt), existing.Version,
		existing.UpdatedAt.Format(time.RFC3339Nano), id)
	if err != nil {
		return nil, wrapDBError("update entry", err)
	}

	if patch.Embedding != nil {
		if err := s.upsertVector(ctx, tx, id, existing.Embedding); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapDBError("commit update entry", err)
	}
	return existing, nil
}

// DeleteEntry removes an Entry and its vector, if any. Returns false, nil
// if no entry with that ID existed.
func (s *SQLiteStorage) DeleteEntry(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memory_entries WHERE id = ?`, id)
	if err != nil {
		return false, wrapDBError("delete entry", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapDBError("delete entry rows affected", err)
	}
	return n > 0, nil
}

// BulkInsertEntries inserts many entries in a single transaction.
func (s *SQLiteStorage) BulkInsertEntries(ctx context.Context, entries []*types.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBError("begin bulk insert", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO memory_entries (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entryColumns))
	if err != nil {
		return wrapDBError("prepare bulk insert", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range entries {
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		if e.UpdatedAt.IsZero() {
			e.UpdatedAt = now
		}
		if e.LastAccessed.IsZero() {
			e.LastAccessed = now
		}
		if e.Version == 0 {
			e.Version = 1
		}
		if e.AccessLevel == "" {
			e.AccessLevel = types.AccessPrivate
		}
		_, err = stmt.ExecContext(ctx,
			e.ID, e.Namespace, e.Key, e.Content, string(e.Type),
			formatJSONStringArray(e.Tags), marshalMetadata(e.Metadata), string(e.AccessLevel),
			e.Version, formatJSONStringArray(e.References), e.SessionID,
			e.CreatedAt.Format(time.RFC3339Nano), e.UpdatedAt.Format(time.RFC3339Nano),
			nullableTimeString(e.ExpiresAt), e.LastAccessed.Format(time.RFC3339Nano), e.AccessCount,
		)
		if err != nil {
			return wrapDBError("bulk insert entry", err)
		}
		if err := s.upsertVector(ctx, tx, e.ID, e.Embedding); err != nil {
			return err
		}
	}

	return wrapDBError("commit bulk insert", tx.Commit())
}

// QueryEntries lists entries matching filter's structural predicates
// (namespace, type, session, tags, metadata, key/prefix, time ranges,
// expiry). It ignores filter.Content/Embedding — those drive the text and
// vector search paths instead.
func (s *SQLiteStorage) QueryEntries(ctx context.Context, filter types.EntryFilter) ([]*types.Entry, error) {
	where, args := buildEntryWhere(filter)
	query := fmt.Sprintf(`SELECT %s FROM memory_entries`, entryColumns)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("query entries", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, wrapDBError("scan entry row", err)
		}
		out = append(out, e)
	}
	return out, wrapDBError("iterate entry rows", rows.Err())
}

// buildEntryWhere translates an EntryFilter's structural fields into SQL
// WHERE clauses and positional args, in the filter-accumulation idiom
// shared across the storage layer: explicit clause/arg slices rather than
// a query builder library.
func buildEntryWhere(filter types.EntryFilter) ([]string, []interface{}) {
	var where []string
	var args []interface{}

	if filter.Namespace != "" {
		where = append(where, "namespace = ?")
		args = append(args, filter.Namespace)
	}
	if filter.Key != "" {
		where = append(where, "key = ?")
		args = append(args, filter.Key)
	}
	if filter.KeyPrefix != "" {
		where = append(where, "key LIKE ? ESCAPE '\\'")
		args = append(args, escapeLike(filter.KeyPrefix)+"%")
	}
	if filter.MemoryType != "" {
		where = append(where, "type = ?")
		args = append(args, string(filter.MemoryType))
	}
	if filter.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.AccessLevel != "" {
		where = append(where, "access_level = ?")
		args = append(args, string(filter.AccessLevel))
	}
	for _, tag := range filter.Tags {
		where = append(where, "tags LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(`"`+tag+`"`)+"%")
	}
	for k, v := range filter.Metadata {
		where = append(where, "metadata LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(fmt.Sprintf("%q:%q", k, v))+"%")
	}
	if filter.CreatedAfter != nil {
		where = append(where, "created_at >= ?")
		args = append(args, filter.CreatedAfter.UTC().Format(time.RFC3339Nano))
	}
	if filter.CreatedBefore != nil {
		where = append(where, "created_at <= ?")
		args = append(args, filter.CreatedBefore.UTC().Format(time.RFC3339Nano))
	}
	if filter.UpdatedAfter != nil {
		where = append(where, "updated_at >= ?")
		args = append(args, filter.UpdatedAfter.UTC().Format(time.RFC3339Nano))
	}
	if filter.UpdatedBefore != nil {
		where = append(where, "updated_at <= ?")
		args = append(args, filter.UpdatedBefore.UTC().Format(time.RFC3339Nano))
	}
	if !filter.IncludeExpired {
		where = append(where, "(expires_at IS NULL OR expires_at > ?)")
		args = append(args, time.Now().UTC().Format(time.RFC3339Nano))
	}

	return where, args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// CountEntries returns the number of entries in a namespace, or across all
// namespaces if namespace is "".
func (s *SQLiteStorage) CountEntries(ctx context.Context, namespace string) (int, error) {
	var count int
	var err error
	if namespace == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory_entries`).Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory_entries WHERE namespace = ?`, namespace).Scan(&count)
	}
	return count, wrapDBError("count entries", err)
}

// ListNamespaces returns every distinct namespace currently in use.
func (s *SQLiteStorage) ListNamespaces(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT namespace FROM memory_entries ORDER BY namespace`)
	if err != nil {
		return nil, wrapDBError("list namespaces", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			return nil, wrapDBError("scan namespace", err)
		}
		out = append(out, ns)
	}
	return out, wrapDBError("iterate namespaces", rows.Err())
}

// ClearNamespace deletes every entry in a namespace and returns the count removed.
func (s *SQLiteStorage) ClearNamespace(ctx context.Context, namespace string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memory_entries WHERE namespace = ?`, namespace)
	if err != nil {
		return 0, wrapDBError("clear namespace", err)
	}
	n, err := res.RowsAffected()
	return int(n), wrapDBError("clear namespace rows affected", err)
}

// rowScanner abstracts *sql.Row and *sql.Rows so scanEntry serves both.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*types.Entry, error) {
	var (
		e             types.Entry
		typ           string
		tags          string
		metadata      string
		accessLevel   string
		references    string
		createdAt     string
		updatedAt     string
		expiresAt     sql.NullString
		lastAccessed  string
	)
	err := row.Scan(
		&e.ID, &e.Namespace, &e.Key, &e.Content, &typ,
		&tags, &metadata, &accessLevel, &e.Version, &references, &e.SessionID,
		&createdAt, &updatedAt, &expiresAt, &lastAccessed, &e.AccessCount,
	)
	if err != nil {
		return nil, err
	}

	e.Type = types.EntryType(typ)
	e.AccessLevel = types.AccessLevel(accessLevel)
	e.Tags = parseJSONStringArray(tags)
	e.References = parseJSONStringArray(references)
	e.Metadata = unmarshalMetadata(metadata)
	e.CreatedAt = parseTimeString(createdAt)
	e.UpdatedAt = parseTimeString(updatedAt)
	e.LastAccessed = parseTimeString(lastAccessed)
	e.ExpiresAt = parseNullableTimeString(expiresAt)
	return &e, nil
}

func marshalMetadata(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	data, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalMetadata(s string) map[string]string {
	if s == "" {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}

func nullableTimeString(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
