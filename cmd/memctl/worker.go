package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/agentkits/memory/internal/types"
	"github.com/agentkits/memory/internal/worker"
	"github.com/agentkits/memory/internal/workerlock"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// taskKinds enumerates every worker kind the task queue supports.
var taskKinds = []types.TaskKind{types.TaskEmbed, types.TaskEnrich, types.TaskCompress}

// workerCmd is the hidden subprocess entrypoint the capture service spawns
// for one task-queue kind (spec §4.7). It is only meant to be reached via
// workerSpawnFunc/spawnWorkers, which already arranged for this kind's lock
// file to name this process's PID before exec'ing it; running it directly
// skips that arrangement and is not a supported entrypoint.
var workerCmd = &cobra.Command{
	Use:    "worker <kind>",
	Short:  "run one task-queue worker to drain its kind (internal)",
	Hidden: true,
	Args:   cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := types.TaskKind(args[0])
		switch kind {
		case types.TaskEmbed, types.TaskEnrich, types.TaskCompress:
		default:
			return fmt.Errorf("unknown worker kind %q", kind)
		}
		defer func() { _ = workerlock.ReleasePath(eng.settings.MemoryDir, string(kind)) }()

		var embed worker.Embedder
		if eng.embed != nil {
			embed = eng.embed
		}
		var enrich worker.Enricher
		if eng.aiProvider != nil {
			enrich = eng.aiProvider
		}

		result, err := worker.Run(rootCtx, eng.store, kind, embed, enrich, eng.metrics)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: processed=%d failed=%d drained=%v\n",
			result.Kind, result.Processed, result.Failed, result.Drained)
		return nil
	},
}

// workerSpawnFunc builds a SpawnFunc that re-execs the current binary as
// "memctl worker <kind>" (the teacher's cmd/bd/hook.go dispatches a single
// hook subcommand by name the same way; this dispatches a worker subcommand
// by kind instead). The child inherits this process's stderr so a crash is
// visible in whatever log the caller already writes to; stdin/stdout are
// not wired, since a worker has nothing to read or print that matters.
func workerSpawnFunc(kind types.TaskKind) workerlock.SpawnFunc {
	return func() (*exec.Cmd, error) {
		exe, err := os.Executable()
		if err != nil {
			return nil, err
		}
		cmd := exec.Command(exe, "worker", string(kind), "--project", projectDir, "--db", dbPath)
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		return cmd, nil
	}
}

// minWorkerRuntime is the threshold below which an exited worker is treated
// as having crashed rather than having drained cleanly, for respawn
// purposes (spec §4.7 policy 3 doesn't define "unexpectedly" precisely; a
// worker that ran at least this long plausibly claimed and processed at
// least one task, so a fast exit under this is the signal we respawn on).
const minWorkerRuntime = 500 * time.Millisecond

// spawnWorkers fires the three worker kinds concurrently, each supervised
// with its own bounded respawn budget, and returns once all three have
// either drained, exhausted their respawn budget, or ctx was cancelled.
// Per spec, spawning is fire-and-forget from the caller's perspective (it
// does not block on queue depth) — but *this* call itself does wait on the
// children's own short (≤5 minute) lifetimes, since that is the only way to
// decide whether a respawn is warranted; callers that truly want to not
// wait at all should launch this in its own goroutine.
func spawnWorkers(ctx context.Context, memDir string) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, kind := range taskKinds {
		kind := kind
		g.Go(func() error {
			return superviseWorker(ctx, memDir, kind)
		})
	}
	return g.Wait()
}

func superviseWorker(ctx context.Context, memDir string, kind types.TaskKind) error {
	sup := workerlock.NewSupervisor(memDir, string(kind))
	spawn := workerSpawnFunc(kind)

	for {
		cmd, spawned, err := workerlock.EnsureRunningCmd(memDir, string(kind), spawn)
		if err != nil {
			return fmt.Errorf("spawning %s worker: %w", kind, err)
		}
		if !spawned {
			return nil // a worker for this kind is already running elsewhere
		}

		start := time.Now()
		waitErr := cmd.Wait()
		ranFor := time.Since(start)

		if ctx.Err() != nil {
			return nil
		}
		if waitErr == nil || ranFor >= minWorkerRuntime {
			return nil
		}
		if !sup.NotifyExit() {
			return nil
		}
		eng.metrics.Respawn(ctx, string(kind))
	}
}
