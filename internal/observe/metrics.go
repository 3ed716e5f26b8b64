// Package observe provides application-wide observability primitives for
// SongWords: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all SongWords metrics.
const meterName = "github.com/MrWong99/songwords"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// SearchDuration tracks one search-provider round trip.
	SearchDuration metric.Float64Histogram

	// FetchDuration tracks one candidate page download plus text extraction.
	FetchDuration metric.Float64Histogram

	// LLMDuration tracks LLM inference latency.
	LLMDuration metric.Float64Histogram

	// --- Counters ---

	// SearchOutcomes counts finished searches. Use with attribute:
	//   attribute.String("status", ...)
	SearchOutcomes metric.Int64Counter

	// Exclusions counts exclusion-tracker mutations. Use with attribute:
	//   attribute.String("event", "add"|"promote")
	Exclusions metric.Int64Counter

	// FallbackExtractions counts vocabulary lists produced without an LLM.
	FallbackExtractions metric.Int64Counter

	// SongsPersisted counts freshly persisted songs.
	SongsPersisted metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveRuns tracks the number of in-flight pipeline runs.
	ActiveRuns metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Search
// and LLM calls routinely run for several seconds, so the tail is long.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.SearchDuration, err = m.Float64Histogram("songwords.search.duration",
		metric.WithDescription("Latency of one search-provider round trip."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FetchDuration, err = m.Float64Histogram("songwords.fetch.duration",
		metric.WithDescription("Latency of one candidate page fetch and text extraction."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("songwords.llm.duration",
		metric.WithDescription("Latency of LLM inference."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.SearchOutcomes, err = m.Int64Counter("songwords.search.outcomes",
		metric.WithDescription("Total finished searches by status."),
	); err != nil {
		return nil, err
	}
	if met.Exclusions, err = m.Int64Counter("songwords.exclusion.events",
		metric.WithDescription("Total exclusion-tracker mutations by event."),
	); err != nil {
		return nil, err
	}
	if met.FallbackExtractions, err = m.Int64Counter("songwords.vocab.fallbacks",
		metric.WithDescription("Total vocabulary lists produced by the deterministic fallback."),
	); err != nil {
		return nil, err
	}
	if met.SongsPersisted, err = m.Int64Counter("songwords.songs.persisted",
		metric.WithDescription("Total freshly persisted songs."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("songwords.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveRuns, err = m.Int64UpDownCounter("songwords.active_runs",
		metric.WithDescription("Number of in-flight pipeline runs."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("songwords.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordSearchOutcome is a convenience method that records one finished
// search with its status.
func (m *Metrics) RecordSearchOutcome(ctx context.Context, status string) {
	m.SearchOutcomes.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordExclusion is a convenience method that records one exclusion-tracker
// mutation ("add" or "promote").
func (m *Metrics) RecordExclusion(ctx context.Context, event, domain string) {
	m.Exclusions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("event", event),
			attribute.String("domain", domain),
		),
	)
}

// RecordLLMDuration records one LLM call latency for a pipeline stage
// ("cleaner" or "extractor").
func (m *Metrics) RecordLLMDuration(ctx context.Context, stage string, seconds float64) {
	m.LLMDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
