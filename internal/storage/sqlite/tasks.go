package sqlite

import (
	"context"
	"time"

	"github.com/agentkits/memory/internal/types"
)

// maxTaskAttempts bounds how many times a failed task is retried before it
// is dropped from the queue for good (spec §4.7 policy 3, mirrored here for
// individual tasks rather than whole worker processes).
const maxTaskAttempts = 3

// Enqueue adds a background task. Unknown target tables are accepted here
// (validation/no-op discard happens at claim time, per worker policy) so a
// future task kind can reuse the same queue without a storage-layer change.
func (s *SQLiteStorage) Enqueue(ctx context.Context, kind types.TaskKind, targetTable, targetID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_queue (kind, target_table, target_id, status, created_at, attempts)
		VALUES (?, ?, ?, ?, ?, 0)
	`, string(kind), targetTable, targetID, string(types.TaskPending), time.Now().UTC().Format(time.RFC3339Nano))
	return wrapDBError("enqueue task", err)
}

// ClaimBatch atomically moves up to limit pending tasks of the given kind
// to the processing state and returns them. A task stuck in processing
// because its worker crashed is recovered by ReleaseStaleProcessing.
func (s *SQLiteStorage) ClaimBatch(ctx context.Context, kind types.TaskKind, limit int) ([]*types.Task, error) {
	var tasks []*types.Task
	err := withBusyRetry(ctx, func() error {
		tasks = nil // a retried attempt starts the claim over from scratch

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return wrapDBError("begin claim batch", err)
		}
		defer func() { _ = tx.Rollback() }()

		rows, err := tx.QueryContext(ctx, `
			SELECT id, kind, target_table, target_id, status, created_at, attempts
			FROM task_queue WHERE kind = ? AND status = ? ORDER BY id ASC LIMIT ?
		`, string(kind), string(types.TaskPending), limit)
		if err != nil {
			return wrapDBError("query claim batch", err)
		}

		for rows.Next() {
			var (
				t         types.Task
				kindStr   string
				statusStr string
				createdAt string
			)
			if err := rows.Scan(&t.ID, &kindStr, &t.TargetTable, &t.TargetID, &statusStr, &createdAt, &t.Attempts); err != nil {
				_ = rows.Close()
				return wrapDBError("scan claim batch row", err)
			}
			t.Kind = types.TaskKind(kindStr)
			t.Status = types.TaskProcessing
			t.CreatedAt = parseTimeString(createdAt)
			tasks = append(tasks, &t)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return wrapDBError("iterate claim batch rows", err)
		}
		_ = rows.Close()

		for _, t := range tasks {
			if _, err := tx.ExecContext(ctx, `
				UPDATE task_queue SET status = ? WHERE id = ?
			`, string(types.TaskProcessing), t.ID); err != nil {
				return wrapDBError("mark task processing", err)
			}
		}

		return wrapDBError("commit claim batch", tx.Commit())
	})
	return tasks, err
}

// CompleteTask removes a successfully processed task from the queue.
func (s *SQLiteStorage) CompleteTask(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM task_queue WHERE id = ?`, id)
	return wrapDBError("complete task", err)
}

// FailTask bumps a claimed task's attempt counter and either returns it to
// pending for a future claim, or drops it once maxTaskAttempts is reached.
func (s *SQLiteStorage) FailTask(ctx context.Context, id int64) error {
	var attempts int
	err := s.db.QueryRowContext(ctx, `SELECT attempts FROM task_queue WHERE id = ?`, id).Scan(&attempts)
	if err != nil {
		return wrapDBError("fail task: load attempts", err)
	}

	attempts++
	if attempts >= maxTaskAttempts {
		_, err := s.db.ExecContext(ctx, `DELETE FROM task_queue WHERE id = ?`, id)
		return wrapDBError("fail task: drop exhausted", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE task_queue SET status = ?, attempts = ? WHERE id = ?
	`, string(types.TaskPending), attempts, id)
	return wrapDBError("fail task: requeue", err)
}

// ReleaseStaleProcessing returns tasks stuck in processing (their worker
// crashed before calling CompleteTask/FailTask) back to pending, if they
// were enqueued more than staleAfter ago. The queue records no claim time,
// so age is measured from created_at, not from when the task was claimed.
func (s *SQLiteStorage) ReleaseStaleProcessing(ctx context.Context, staleAfter time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-staleAfter).Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
		UPDATE task_queue SET status = ? WHERE status = ? AND created_at < ?
	`, string(types.TaskPending), string(types.TaskProcessing), cutoff)
	if err != nil {
		return 0, wrapDBError("release stale processing", err)
	}
	n, err := res.RowsAffected()
	return int(n), wrapDBError("release stale processing rows affected", err)
}

// PendingCount reports how many tasks of a kind are waiting in the queue.
func (s *SQLiteStorage) PendingCount(ctx context.Context, kind types.TaskKind) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM task_queue WHERE kind = ? AND status = ?
	`, string(kind), string(types.TaskPending)).Scan(&count)
	return count, wrapDBError("pending task count", err)
}
