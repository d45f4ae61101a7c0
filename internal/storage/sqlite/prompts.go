package sqlite

import (
	"time"

	"context"

	"github.com/agentkits/memory/internal/types"
)

// FindPromptByHash looks for a prompt with the same content hash recorded
// in the same session within the dedup window, returning ErrNotFound if
// none qualifies (the caller then knows to actually store the prompt).
func (s *SQLiteStorage) FindPromptByHash(ctx context.Context, sessionID, hash string, within time.Duration) (*types.UserPrompt, error) {
	cutoff := time.Now().UTC().Add(-within).Format(time.RFC3339Nano)
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, prompt_number, prompt_text, content_hash, created_at, embedding
		FROM user_prompts
		WHERE session_id = ? AND content_hash = ? AND created_at >= ?
		ORDER BY created_at DESC LIMIT 1
	`, sessionID, hash, cutoff)
	return scanPrompt(row)
}

// NextPromptNumber returns the next sequential prompt number for a session
// (1 if the session has no prompts yet).
func (s *SQLiteStorage) NextPromptNumber(ctx context.Context, sessionID string) (int, error) {
	var max int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(prompt_number), 0) FROM user_prompts WHERE session_id = ?
	`, sessionID).Scan(&max)
	if err != nil {
		return 0, wrapDBError("next prompt number", err)
	}
	return max + 1, nil
}

// StorePrompt inserts a new UserPrompt, computing its content hash and
// timestamp if unset. The prompt number is stored as given; callers take it
// from NextPromptNumber.
func (s *SQLiteStorage) StorePrompt(ctx context.Context, p *types.UserPrompt) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.ContentHash == "" {
		p.ContentHash = contentHash(p.SessionID, p.PromptText)
	}
	var embedding interface{}
	if len(p.Embedding) > 0 {
		embedding = encodeVector(p.Embedding)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_prompts (id, session_id, prompt_number, prompt_text, content_hash, created_at, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.SessionID, p.PromptNumber, p.PromptText, p.ContentHash,
		p.CreatedAt.Format(time.RFC3339Nano), embedding)
	return wrapDBError("store prompt", err)
}

// LatestPrompt returns the highest-numbered prompt recorded for a session,
// used to drive intent inference on the observation that follows it.
func (s *SQLiteStorage) LatestPrompt(ctx context.Context, sessionID string) (*types.UserPrompt, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, prompt_number, prompt_text, content_hash, created_at, embedding
		FROM user_prompts
		WHERE session_id = ?
		ORDER BY prompt_number DESC LIMIT 1
	`, sessionID)
	return scanPrompt(row)
}

// PromptsBySession returns every prompt recorded for a session in
// chronological order, the source for a full per-session export.
func (s *SQLiteStorage) PromptsBySession(ctx context.Context, sessionID string) ([]*types.UserPrompt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, prompt_number, prompt_text, content_hash, created_at, embedding
		FROM user_prompts
		WHERE session_id = ?
		ORDER BY prompt_number ASC
	`, sessionID)
	if err != nil {
		return nil, wrapDBError("prompts by session", err)
	}
	defer rows.Close()

	var out []*types.UserPrompt
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, wrapDBError("prompts by session", rows.Err())
}

// GetPrompt fetches a UserPrompt by ID, the embed worker's lookup when a
// queued task's target_table is user_prompts.
func (s *SQLiteStorage) GetPrompt(ctx context.Context, id string) (*types.UserPrompt, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, prompt_number, prompt_text, content_hash, created_at, embedding
		FROM user_prompts WHERE id = ?
	`, id)
	return scanPrompt(row)
}

// SetPromptEmbedding writes the embed worker's result onto an already
// stored prompt.
func (s *SQLiteStorage) SetPromptEmbedding(ctx context.Context, id string, vector []float32) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE user_prompts SET embedding = ? WHERE id = ?
	`, encodeVector(vector), id)
	return wrapDBError("set prompt embedding", err)
}

func scanPrompt(row rowScanner) (*types.UserPrompt, error) {
	var (
		p         types.UserPrompt
		createdAt string
		embedding []byte
	)
	err := row.Scan(&p.ID, &p.SessionID, &p.PromptNumber, &p.PromptText, &p.ContentHash, &createdAt, &embedding)
	if err != nil {
		return nil, wrapDBError("scan prompt", err)
	}
	p.CreatedAt = parseTimeString(createdAt)
	if len(embedding) > 0 {
		p.Embedding = decodeVector(embedding)
	}
	return &p, nil
}
