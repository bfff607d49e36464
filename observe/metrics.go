package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// FetchMeta describes one intercepted fetch for telemetry purposes.
type FetchMeta struct {
	Route    string // routing decision: bypass|static|document|dynamic
	Identity string // canonical request identity key
	Version  string // agent version handling the fetch (optional)
}

// SpanName returns the deterministic span name for this fetch.
// Format: offline.fetch.<route>
func (m FetchMeta) SpanName() string {
	return "offline.fetch." + m.Route
}

// Metrics records caching-engine metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must honor cancellation/deadlines and return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordFetch records one intercepted fetch with its routing decision,
	// whether a cached snapshot satisfied it, its duration and error status.
	RecordFetch(ctx context.Context, meta FetchMeta, duration time.Duration, cacheHit bool, err error)

	// RecordEviction records the removal of a stale cache generation.
	RecordEviction(ctx context.Context, tag string)
}

// metricsImpl is the concrete implementation of Metrics.
type metricsImpl struct {
	meter         metric.Meter
	fetchCount    metric.Int64Counter
	errorCount    metric.Int64Counter
	hitCount      metric.Int64Counter
	evictionCount metric.Int64Counter
	durationHist  metric.Float64Histogram
}

// newMetrics creates a new Metrics instance with the given meter.
func newMetrics(meter metric.Meter) (*metricsImpl, error) {
	fetchCount, err := meter.Int64Counter(
		"offline.fetch.total",
		metric.WithDescription("Total number of intercepted fetches"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"offline.fetch.errors",
		metric.WithDescription("Total number of fetch failures surfaced to callers"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	hitCount, err := meter.Int64Counter(
		"offline.cache.hits",
		metric.WithDescription("Total number of fetches satisfied from a cache store"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, err
	}

	evictionCount, err := meter.Int64Counter(
		"offline.cache.evictions",
		metric.WithDescription("Total number of stale cache generations removed"),
		metric.WithUnit("{generation}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"offline.fetch.duration_ms",
		metric.WithDescription("Intercepted fetch duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		meter:         meter,
		fetchCount:    fetchCount,
		errorCount:    errorCount,
		hitCount:      hitCount,
		evictionCount: evictionCount,
		durationHist:  durationHist,
	}, nil
}

// RecordFetch records metrics for one intercepted fetch.
func (m *metricsImpl) RecordFetch(ctx context.Context, meta FetchMeta, duration time.Duration, cacheHit bool, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("fetch.route", meta.Route),
	}
	if meta.Version != "" {
		attrs = append(attrs, attribute.String("agent.version", meta.Version))
	}

	opt := metric.WithAttributes(attrs...)

	m.fetchCount.Add(ctx, 1, opt)

	if cacheHit {
		m.hitCount.Add(ctx, 1, opt)
	}

	if err != nil {
		m.errorCount.Add(ctx, 1, opt)
	}

	m.durationHist.Record(ctx, float64(duration.Milliseconds()), opt)
}

// RecordEviction records the removal of one stale generation.
func (m *metricsImpl) RecordEviction(ctx context.Context, tag string) {
	m.evictionCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache.tag", tag),
	))
}

// noopMetrics is a metrics implementation that does nothing.
type noopMetrics struct{}

func (m *noopMetrics) RecordFetch(ctx context.Context, meta FetchMeta, duration time.Duration, cacheHit bool, err error) {
}

func (m *noopMetrics) RecordEviction(ctx context.Context, tag string) {}

// NopMetrics returns a Metrics implementation that discards everything.
func NopMetrics() Metrics { return &noopMetrics{} }

// Ensure implementations satisfy Metrics
var (
	_ Metrics = (*metricsImpl)(nil)
	_ Metrics = (*noopMetrics)(nil)
)
