// Package worker implements the per-task-kind processing loop run by the
// embed/enrich/compress worker subprocesses (spec §4.7). The supervision
// side — lock files, bounded respawn — lives in internal/workerlock; this
// package is the child's actual work loop once it has the lock.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/agentkits/memory/internal/aiprovider"
	"github.com/agentkits/memory/internal/capture"
	"github.com/agentkits/memory/internal/metrics"
	"github.com/agentkits/memory/internal/storage"
	"github.com/agentkits/memory/internal/types"
)

// maxTasksPerRun bounds how many queue rows one worker run drains before
// self-terminating, regardless of how many remain pending.
const maxTasksPerRun = 200

// wallClockLimit is the other self-termination trigger: a worker that has
// been running this long exits even mid-drain, leaving remaining tasks for
// the next spawn.
const wallClockLimit = 5 * time.Minute

// Embedder produces a vector for text; *embedclient.Client and
// aiprovider-less mocks both satisfy this.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Enricher produces an AI-derived subtitle for an observation's rendered
// text; aiprovider.Provider satisfies this.
type Enricher interface {
	EnrichObservation(ctx context.Context, text string) (aiprovider.EnrichmentResult, error)
}

// Result reports what one worker run did, for CLI/log output.
type Result struct {
	Kind      types.TaskKind
	Processed int
	Failed    int
	Drained   bool // false if stopped by the wall-clock limit or cancellation
}

// Run claims and processes up to maxTasksPerRun tasks of kind, stopping
// early on wallClockLimit or ctx cancellation (SIGTERM/SIGINT, wired by the
// caller into ctx). A task whose processing errors is reported via
// store.FailTask rather than aborting the run — per-task failures never
// stop the drain. rec may be nil (metrics disabled).
func Run(ctx context.Context, store storage.Storage, kind types.TaskKind, embed Embedder, enrich Enricher, rec *metrics.Recorder) (Result, error) {
	deadline := time.Now().Add(wallClockLimit)
	result := Result{Kind: kind}

	if n, err := store.PendingCount(ctx, kind); err == nil {
		rec.QueueDepth(ctx, string(kind), n)
	}

	for result.Processed+result.Failed < maxTasksPerRun {
		if ctx.Err() != nil {
			return result, nil
		}
		if time.Now().After(deadline) {
			return result, nil
		}

		remaining := maxTasksPerRun - result.Processed - result.Failed
		tasks, err := store.ClaimBatch(ctx, kind, min(remaining, 50))
		if err != nil {
			return result, fmt.Errorf("claiming %s tasks: %w", kind, err)
		}
		if len(tasks) == 0 {
			result.Drained = true
			return result, nil
		}

		for _, t := range tasks {
			if ctx.Err() != nil {
				return result, nil
			}
			if err := processTask(ctx, store, t, embed, enrich); err != nil {
				result.Failed++
				rec.TaskFailed(ctx, string(kind))
				_ = store.FailTask(ctx, t.ID)
				continue
			}
			result.Processed++
			rec.TaskProcessed(ctx, string(kind))
			_ = store.CompleteTask(ctx, t.ID)
		}
	}

	return result, nil
}

func processTask(ctx context.Context, store storage.Storage, t *types.Task, embed Embedder, enrich Enricher) error {
	switch t.Kind {
	case types.TaskEmbed:
		return processEmbed(ctx, store, t, embed)
	case types.TaskEnrich:
		return processEnrich(ctx, store, t, enrich)
	case types.TaskCompress:
		return processCompress(ctx, store, t)
	default:
		return nil // unrecognized kind: drop silently, same tolerance as unknown target table
	}
}

func processEmbed(ctx context.Context, store storage.Storage, t *types.Task, embed Embedder) error {
	if embed == nil {
		return nil // no generator configured; leave the row without an embedding
	}

	var text string
	switch t.TargetTable {
	case "user_prompts":
		p, err := store.GetPrompt(ctx, t.TargetID)
		if err != nil {
			return fmt.Errorf("loading prompt %s: %w", t.TargetID, err)
		}
		text = p.PromptText
	case "observations":
		o, err := store.GetObservation(ctx, t.TargetID)
		if err != nil {
			return fmt.Errorf("loading observation %s: %w", t.TargetID, err)
		}
		text = observationEmbedText(o)
	default:
		return nil // unknown target_table: no-op discard, per §4.7 policy 5
	}

	vector, err := embed.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embedding %s: %w", t.TargetID, err)
	}

	if t.TargetTable == "user_prompts" {
		return store.SetPromptEmbedding(ctx, t.TargetID, vector)
	}
	return store.SetObservationEmbedding(ctx, t.TargetID, vector)
}

func processEnrich(ctx context.Context, store storage.Storage, t *types.Task, enrich Enricher) error {
	if t.TargetTable != "observations" {
		return nil // enrich only ever targets observations; anything else is tolerated no-op
	}
	if enrich == nil {
		return nil
	}
	o, err := store.GetObservation(ctx, t.TargetID)
	if err != nil {
		return fmt.Errorf("loading observation %s: %w", t.TargetID, err)
	}
	result, err := enrich.EnrichObservation(ctx, observationEmbedText(o))
	if err != nil {
		return fmt.Errorf("enriching %s: %w", t.TargetID, err)
	}
	return store.SetObservationSubtitle(ctx, t.TargetID, result.Subtitle)
}

func processCompress(ctx context.Context, store storage.Storage, t *types.Task) error {
	if t.TargetTable != "observations" {
		return nil
	}
	o, err := store.GetObservation(ctx, t.TargetID)
	if err != nil {
		return fmt.Errorf("loading observation %s: %w", t.TargetID, err)
	}
	summary, ok := capture.Compress(o)
	if !ok {
		return nil // already compressed: no-op, not a failure
	}
	return store.MarkObservationCompressed(ctx, t.TargetID, summary)
}

func observationEmbedText(o *types.Observation) string {
	text := o.Title
	if o.Narrative != "" {
		text += ": " + o.Narrative
	}
	return text
}
