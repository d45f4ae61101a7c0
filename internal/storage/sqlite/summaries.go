package sqlite

import (
	"context"
	"time"

	"github.com/agentkits/memory/internal/types"
)

// StoreSessionSummary inserts or replaces a session's structured summary.
func (s *SQLiteStorage) StoreSessionSummary(ctx context.Context, sum *types.SessionSummary) error {
	if sum.CreatedAt.IsZero() {
		sum.CreatedAt = time.Now().UTC()
	}
	var embedding interface{}
	if len(sum.Embedding) > 0 {
		embedding = encodeVector(sum.Embedding)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_summaries (session_id, request, completed, files_read,
			files_modified, next_steps, notes, decisions, prompt_number, created_at, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			request = excluded.request, completed = excluded.completed,
			files_read = excluded.files_read, files_modified = excluded.files_modified,
			next_steps = excluded.next_steps, notes = excluded.notes,
			decisions = excluded.decisions, prompt_number = excluded.prompt_number,
			created_at = excluded.created_at, embedding = excluded.embedding
	`, sum.SessionID, sum.Request, sum.Completed, formatJSONStringArray(sum.FilesRead),
		formatJSONStringArray(sum.FilesModified), formatJSONStringArray(sum.NextSteps),
		sum.Notes, formatJSONStringArray(sum.Decisions), sum.PromptNumber,
		sum.CreatedAt.Format(time.RFC3339Nano), embedding)
	return wrapDBError("store session summary", err)
}

// GetSessionSummary fetches a session's structured summary.
func (s *SQLiteStorage) GetSessionSummary(ctx context.Context, sessionID string) (*types.SessionSummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, request, completed, files_read, files_modified, next_steps,
			notes, decisions, prompt_number, created_at, embedding
		FROM session_summaries WHERE session_id = ?
	`, sessionID)

	var (
		sum           types.SessionSummary
		filesRead     string
		filesModified string
		nextSteps     string
		decisions     string
		createdAt     string
		embedding     []byte
	)
	err := row.Scan(&sum.SessionID, &sum.Request, &sum.Completed, &filesRead, &filesModified,
		&nextSteps, &sum.Notes, &decisions, &sum.PromptNumber, &createdAt, &embedding)
	if err != nil {
		return nil, wrapDBError("get session summary", err)
	}
	sum.FilesRead = parseJSONStringArray(filesRead)
	sum.FilesModified = parseJSONStringArray(filesModified)
	sum.NextSteps = parseJSONStringArray(nextSteps)
	sum.Decisions = parseJSONStringArray(decisions)
	sum.CreatedAt = parseTimeString(createdAt)
	if len(embedding) > 0 {
		sum.Embedding = decodeVector(embedding)
	}
	return &sum, nil
}
