package capture

import (
	"context"
	"time"

	"github.com/agentkits/memory/internal/types"
)

// compressBatchSize bounds how many stale observations one lifecycle pass
// queues for compression, so a long-neglected project doesn't flood the
// task queue in a single run.
const compressBatchSize = 200

// LifecycleConfig configures one run_lifecycle_tasks pass.
type LifecycleConfig struct {
	CompressAfterDays int
	ArchiveAfterDays  int
	AutoDelete        bool
	DeleteAfterDays   int
}

// LifecycleResult reports what a lifecycle pass did, for logging/CLI output.
type LifecycleResult struct {
	QueuedCompressions int
	ArchivedSessions   int
	DeletedSessions    int
	Vacuumed           bool
}

// RunLifecycleTasks queues compression of stale uncompressed observations,
// archives completed sessions past their retention window, and — if
// auto_delete is set — purges archived sessions past delete_after_days and
// reclaims the freed space with vacuum.
func (s *Service) RunLifecycleTasks(ctx context.Context, cfg LifecycleConfig) (LifecycleResult, error) {
	var result LifecycleResult

	if cfg.CompressAfterDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -cfg.CompressAfterDays)
		stale, err := s.store.UncompressedObservationsOlderThan(ctx, cutoff, compressBatchSize)
		if err != nil {
			return result, err
		}
		for _, o := range stale {
			if err := s.store.Enqueue(ctx, types.TaskCompress, "observations", o.ID); err != nil {
				return result, err
			}
			result.QueuedCompressions++
		}
	}

	if cfg.ArchiveAfterDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -cfg.ArchiveAfterDays)
		n, err := s.store.ArchiveSessionsOlderThan(ctx, cutoff)
		if err != nil {
			return result, err
		}
		result.ArchivedSessions = n
	}

	if cfg.AutoDelete && cfg.DeleteAfterDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -cfg.DeleteAfterDays)
		n, err := s.store.DeleteArchivedSessionsOlderThan(ctx, cutoff)
		if err != nil {
			return result, err
		}
		result.DeletedSessions = n
		if n > 0 {
			if err := s.store.Vacuum(ctx); err != nil {
				return result, err
			}
			result.Vacuumed = true
		}
	}

	return result, nil
}
