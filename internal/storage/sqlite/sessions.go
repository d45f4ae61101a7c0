package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/agentkits/memory/internal/types"
)

const sessionColumns = `id, project, parent_session_id, started_at, ended_at,
	status, observation_count, summary, prompt`

// CreateSession inserts a new Session row.
func (s *SQLiteStorage) CreateSession(ctx context.Context, sess *types.Session) error {
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now().UTC()
	}
	if sess.Status == "" {
		sess.Status = types.SessionActive
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, project, parent_session_id, started_at, ended_at,
			status, observation_count, summary, prompt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sess.ID, sess.Project, sess.ParentSessionID, sess.StartedAt.Format(time.RFC3339Nano),
		nullableTimeString(sess.EndedAt), string(sess.Status), sess.ObservationCount, sess.Summary, sess.Prompt)
	return wrapDBError("create session", err)
}

// GetSession fetches a Session by ID.
func (s *SQLiteStorage) GetSession(ctx context.Context, id string) (*types.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// UpdateSession persists changes to status, summary, prompt, and ended_at.
func (s *SQLiteStorage) UpdateSession(ctx context.Context, sess *types.Session) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET status = ?, ended_at = ?, summary = ?, prompt = ?,
			observation_count = ?
		WHERE id = ?
	`, string(sess.Status), nullableTimeString(sess.EndedAt), sess.Summary, sess.Prompt,
		sess.ObservationCount, sess.ID)
	return wrapDBError("update session", err)
}

// FindResumableSession returns the most recently completed session for a
// project that ended within the given window, or ErrNotFound if none
// qualifies. A fresh init_session call within this window attaches to the
// completed session as its parent rather than starting cold.
func (s *SQLiteStorage) FindResumableSession(ctx context.Context, project string, within time.Duration) (*types.Session, error) {
	cutoff := time.Now().UTC().Add(-within).Format(time.RFC3339Nano)
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE project = ? AND status = ? AND ended_at IS NOT NULL AND ended_at >= ?
		ORDER BY ended_at DESC LIMIT 1
	`, project, string(types.SessionCompleted), cutoff)
	return scanSession(row)
}

// ArchiveSessionsOlderThan marks completed sessions that ended before cutoff
// as archived, returning the number affected.
func (s *SQLiteStorage) ArchiveSessionsOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET status = ?
		WHERE status = ? AND ended_at IS NOT NULL AND ended_at < ?
	`, string(types.SessionArchived), string(types.SessionCompleted), cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, wrapDBError("archive sessions", err)
	}
	n, err := res.RowsAffected()
	return int(n), wrapDBError("archive sessions rows affected", err)
}

// DeleteArchivedSessionsOlderThan purges archived sessions (and, via
// ON DELETE CASCADE, their prompts/observations/summary) past the archive
// retention window, returning the number removed.
func (s *SQLiteStorage) DeleteArchivedSessionsOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM sessions WHERE status = ? AND ended_at IS NOT NULL AND ended_at < ?
	`, string(types.SessionArchived), cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, wrapDBError("delete archived sessions", err)
	}
	n, err := res.RowsAffected()
	return int(n), wrapDBError("delete archived sessions rows affected", err)
}

// IncrementObservationCount bumps a session's running observation tally.
func (s *SQLiteStorage) IncrementObservationCount(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET observation_count = observation_count + 1 WHERE id = ?
	`, sessionID)
	return wrapDBError("increment observation count", err)
}

func scanSession(row rowScanner) (*types.Session, error) {
	var (
		sess      types.Session
		status    string
		startedAt string
		endedAt   sql.NullString
	)
	err := row.Scan(&sess.ID, &sess.Project, &sess.ParentSessionID, &startedAt, &endedAt,
		&status, &sess.ObservationCount, &sess.Summary, &sess.Prompt)
	if err != nil {
		return nil, wrapDBError("scan session", err)
	}
	sess.Status = types.SessionStatus(status)
	sess.StartedAt = parseTimeString(startedAt)
	sess.EndedAt = parseNullableTimeString(endedAt)
	return &sess, nil
}
