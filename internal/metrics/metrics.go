// Package metrics is the optional Metrics component (spec §2): OpenTelemetry
// counters and histograms around hybrid search latency, cache hit rate, and
// worker throughput/respawns, periodically exported as stdout-metric — a
// distinct writer from the MCP server's stdout wire or the structured
// logger's sink, never either of them.
package metrics

import (
	"context"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// exportInterval is how often the periodic reader flushes to the exporter.
const exportInterval = time.Minute

// Recorder wraps the instruments this engine reports. A nil *Recorder is
// valid and every method on it is a no-op, so components can hold one
// unconditionally and skip a nil check at every call site. New always builds
// a live Recorder; with metrics disabled, callers do not call New and hold
// a nil Recorder.
type Recorder struct {
	provider *sdkmetric.MeterProvider

	searchLatency  metric.Float64Histogram
	cacheHits      metric.Int64Counter
	cacheMisses    metric.Int64Counter
	tasksProcessed metric.Int64Counter
	tasksFailed    metric.Int64Counter
	respawns       metric.Int64Counter
	queueDepth     metric.Int64Histogram
}

// New builds a Recorder exporting to w on exportInterval, registering it as
// the global MeterProvider so any package that calls otel.Meter(...)
// directly also reports through it.
func New(w io.Writer) (*Recorder, error) {
	exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(exportInterval))),
	)
	otel.SetMeterProvider(provider)
	meter := provider.Meter("github.com/agentkits/memory")

	r := &Recorder{provider: provider}

	r.searchLatency, err = meter.Float64Histogram("memory.search.latency_ms",
		metric.WithDescription("hybrid search engine layer latency"), metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	r.cacheHits, err = meter.Int64Counter("memory.cache.hits",
		metric.WithDescription("embedding cache hits, in-process or persisted"))
	if err != nil {
		return nil, err
	}
	r.cacheMisses, err = meter.Int64Counter("memory.cache.misses",
		metric.WithDescription("embedding cache misses requiring a generator call"))
	if err != nil {
		return nil, err
	}
	r.tasksProcessed, err = meter.Int64Counter("memory.worker.tasks_processed",
		metric.WithDescription("task queue rows completed by kind"))
	if err != nil {
		return nil, err
	}
	r.tasksFailed, err = meter.Int64Counter("memory.worker.tasks_failed",
		metric.WithDescription("task queue rows failed by kind"))
	if err != nil {
		return nil, err
	}
	r.respawns, err = meter.Int64Counter("memory.worker.respawns",
		metric.WithDescription("worker subprocess respawns by kind"))
	if err != nil {
		return nil, err
	}
	r.queueDepth, err = meter.Int64Histogram("memory.worker.queue_depth",
		metric.WithDescription("pending task count sampled at worker run start"))
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Shutdown flushes and closes the exporter. Safe to call on a nil Recorder.
func (r *Recorder) Shutdown(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Shutdown(ctx)
}

func (r *Recorder) SearchLatency(ctx context.Context, layer string, d time.Duration) {
	if r == nil {
		return
	}
	r.searchLatency.Record(ctx, float64(d.Microseconds())/1000, metric.WithAttributes(attribute.String("layer", layer)))
}

func (r *Recorder) CacheHit(ctx context.Context) {
	if r == nil {
		return
	}
	r.cacheHits.Add(ctx, 1)
}

func (r *Recorder) CacheMiss(ctx context.Context) {
	if r == nil {
		return
	}
	r.cacheMisses.Add(ctx, 1)
}

func (r *Recorder) TaskProcessed(ctx context.Context, kind string) {
	if r == nil {
		return
	}
	r.tasksProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (r *Recorder) TaskFailed(ctx context.Context, kind string) {
	if r == nil {
		return
	}
	r.tasksFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (r *Recorder) Respawn(ctx context.Context, kind string) {
	if r == nil {
		return
	}
	r.respawns.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (r *Recorder) QueueDepth(ctx context.Context, kind string, depth int) {
	if r == nil {
		return
	}
	r.queueDepth.Record(ctx, int64(depth), metric.WithAttributes(attribute.String("kind", kind)))
}
