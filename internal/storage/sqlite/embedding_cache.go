package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/agentkits/memory/internal/types"
)

// GetCachedEmbedding looks up a previously computed vector by content hash.
// An expired-but-present row is treated as a miss so the caller recomputes;
// it is left in place for PutCachedEmbedding's eviction pass to reclaim.
func (s *SQLiteStorage) GetCachedEmbedding(ctx context.Context, hash string) ([]float32, bool, error) {
	var (
		blob      []byte
		expiresAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT vector, expires_at FROM embedding_cache WHERE hash = ?
	`, hash).Scan(&blob, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapDBError("get cached embedding", err)
	}
	if parseTimeString(expiresAt).Before(time.Now().UTC()) {
		return nil, false, nil
	}

	_, _ = s.db.ExecContext(ctx, `
		UPDATE embedding_cache SET access_count = access_count + 1, last_accessed_at = ?
		WHERE hash = ?
	`, time.Now().UTC().Format(time.RFC3339Nano), hash)

	return decodeVector(blob), true, nil
}

// PutCachedEmbedding stores a vector, then evicts the least-recently-used
// rows past maxSize entries (0 disables eviction).
func (s *SQLiteStorage) PutCachedEmbedding(ctx context.Context, entry types.EmbeddingCacheEntry, maxSize int) error {
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.LastAccessedAt.IsZero() {
		entry.LastAccessedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embedding_cache (hash, vector, created_at, expires_at, access_count, last_accessed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (hash) DO UPDATE SET
			vector = excluded.vector, expires_at = excluded.expires_at,
			last_accessed_at = excluded.last_accessed_at
	`, entry.Hash, encodeVector(entry.Embedding), entry.CreatedAt.Format(time.RFC3339Nano),
		entry.ExpiresAt.Format(time.RFC3339Nano), entry.AccessCount, entry.LastAccessedAt.Format(time.RFC3339Nano))
	if err != nil {
		return wrapDBError("put cached embedding", err)
	}

	if maxSize <= 0 {
		return nil
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embedding_cache`).Scan(&count); err != nil {
		return wrapDBError("count embedding cache", err)
	}
	if count <= maxSize {
		return nil
	}

	// spec §3 EmbeddingCacheEntry: "on capacity, oldest-by-last-access 10%
	// are evicted" — a batch eviction rather than evicting back down to
	// exactly maxSize, so a write-heavy burst doesn't force an eviction
	// query on every single insert once the cache is full.
	evict := maxSize / 10
	if evict < 1 {
		evict = 1
	}
	_, err = s.db.ExecContext(ctx, `
		DELETE FROM embedding_cache WHERE hash IN (
			SELECT hash FROM embedding_cache ORDER BY last_accessed_at ASC LIMIT ?
		)
	`, evict)
	return wrapDBError("evict embedding cache", err)
}
