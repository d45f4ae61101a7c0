package sqlite

import (
	"context"
	"time"

	"github.com/agentkits/memory/internal/types"
)

const observationColumns = `id, session_id, project, tool_name, tool_input, tool_response,
	type, title, prompt_number, files_read, files_modified, subtitle, narrative,
	facts, concepts, compressed_summary, is_compressed, content_hash, timestamp, embedding`

// FindObservationByHash looks for a prior observation in the same session
// and tool with the same content hash within the dedup window.
func (s *SQLiteStorage) FindObservationByHash(ctx context.Context, sessionID, toolName, hash string, within time.Duration) (*types.Observation, error) {
	cutoff := time.Now().UTC().Add(-within).Format(time.RFC3339Nano)
	row := s.db.QueryRowContext(ctx, `
		SELECT `+observationColumns+` FROM observations
		WHERE session_id = ? AND tool_name = ? AND content_hash = ? AND timestamp >= ?
		ORDER BY timestamp DESC LIMIT 1
	`, sessionID, toolName, hash, cutoff)
	return scanObservation(row)
}

// StoreObservation inserts a new Observation, computing its content hash
// and timestamp if unset.
func (s *SQLiteStorage) StoreObservation(ctx context.Context, o *types.Observation) error {
	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now().UTC()
	}
	if o.ContentHash == "" {
		o.ContentHash = contentHash(o.SessionID, o.ToolName, o.ToolInput, o.ToolResponse)
	}
	var embedding interface{}
	if len(o.Embedding) > 0 {
		embedding = encodeVector(o.Embedding)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO observations (`+observationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.ID, o.SessionID, o.Project, o.ToolName, o.ToolInput, o.ToolResponse,
		string(o.Type), o.Title, o.PromptNumber, formatJSONStringArray(o.FilesRead),
		formatJSONStringArray(o.FilesModified), o.Subtitle, o.Narrative,
		formatJSONStringArray(o.Facts), formatJSONStringArray(o.Concepts),
		o.CompressedSummary, o.IsCompressed, o.ContentHash,
		o.Timestamp.Format(time.RFC3339Nano), embedding)
	return wrapDBError("store observation", err)
}

// GetObservation fetches an Observation by ID.
func (s *SQLiteStorage) GetObservation(ctx context.Context, id string) (*types.Observation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+observationColumns+` FROM observations WHERE id = ?`, id)
	return scanObservation(row)
}

// ObservationsBySession lists observations for a session, most recent first.
func (s *SQLiteStorage) ObservationsBySession(ctx context.Context, sessionID string, limit int) ([]*types.Observation, error) {
	query := `SELECT ` + observationColumns + ` FROM observations WHERE session_id = ? ORDER BY timestamp DESC`
	args := []interface{}{sessionID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("observations by session", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, wrapDBError("iterate observations", rows.Err())
}

// ObservationsByProject lists observations across every session in a
// project, most recent first — the source for get_context's cross-session
// recap, which has no single session_id to scope by.
func (s *SQLiteStorage) ObservationsByProject(ctx context.Context, project string, limit int) ([]*types.Observation, error) {
	query := `SELECT ` + observationColumns + ` FROM observations WHERE project = ? ORDER BY timestamp DESC`
	args := []interface{}{project}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("observations by project", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, wrapDBError("iterate project observations", rows.Err())
}

// UncompressedObservationsOlderThan lists observations not yet compressed
// whose timestamp is before cutoff, for the compress worker to pick up.
func (s *SQLiteStorage) UncompressedObservationsOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*types.Observation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+observationColumns+` FROM observations
		WHERE is_compressed = 0 AND timestamp < ?
		ORDER BY timestamp ASC LIMIT ?
	`, cutoff.UTC().Format(time.RFC3339Nano), limit)
	if err != nil {
		return nil, wrapDBError("uncompressed observations", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, wrapDBError("iterate uncompressed observations", rows.Err())
}

// MarkObservationCompressed stores the compress worker's summary and flips
// is_compressed.
func (s *SQLiteStorage) MarkObservationCompressed(ctx context.Context, id, summary string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE observations SET compressed_summary = ?, is_compressed = 1 WHERE id = ?
	`, summary, id)
	return wrapDBError("mark observation compressed", err)
}

// SetObservationEmbedding writes the embed worker's result onto an
// already stored observation.
func (s *SQLiteStorage) SetObservationEmbedding(ctx context.Context, id string, vector []float32) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE observations SET embedding = ? WHERE id = ?
	`, encodeVector(vector), id)
	return wrapDBError("set observation embedding", err)
}

// SetObservationSubtitle writes the enrich worker's AI-derived one-line
// subtitle onto an already stored observation.
func (s *SQLiteStorage) SetObservationSubtitle(ctx context.Context, id, subtitle string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE observations SET subtitle = ? WHERE id = ?
	`, subtitle, id)
	return wrapDBError("set observation subtitle", err)
}

func scanObservation(row rowScanner) (*types.Observation, error) {
	var (
		o                 types.Observation
		typ               string
		filesRead         string
		filesModified     string
		facts             string
		concepts          string
		timestamp         string
		embedding         []byte
	)
	err := row.Scan(&o.ID, &o.SessionID, &o.Project, &o.ToolName, &o.ToolInput, &o.ToolResponse,
		&typ, &o.Title, &o.PromptNumber, &filesRead, &filesModified, &o.Subtitle, &o.Narrative,
		&facts, &concepts, &o.CompressedSummary, &o.IsCompressed, &o.ContentHash, &timestamp, &embedding)
	if err != nil {
		return nil, wrapDBError("scan observation", err)
	}
	o.Type = types.ObservationType(typ)
	o.FilesRead = parseJSONStringArray(filesRead)
	o.FilesModified = parseJSONStringArray(filesModified)
	o.Facts = parseJSONStringArray(facts)
	o.Concepts = parseJSONStringArray(concepts)
	o.Timestamp = parseTimeString(timestamp)
	if len(embedding) > 0 {
		o.Embedding = decodeVector(embedding)
	}
	return &o, nil
}
