// Package observe provides application-wide observability primitives for the
// harness: OpenTelemetry metrics, tracing, structured logging, and HTTP
// middleware that ties them together.
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

// meterName is the instrumentation scope name used for all harness metrics.
const meterName = "github.com/unamentis/kbharness"

// Metrics holds all OpenTelemetry metric instruments for the harness.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline phase ---

	// GenerationDuration tracks audio generation latency.
	GenerationDuration metric.Float64Histogram

	// STTDuration tracks injection-plus-transcription latency.
	STTDuration metric.Float64Histogram

	// ValidationDuration tracks transcript validation latency.
	ValidationDuration metric.Float64Histogram

	// PipelineDuration tracks end-to-end per-test latency.
	PipelineDuration metric.Float64Histogram

	// --- Counters ---

	// TestsTotal counts completed tests. Use with attributes:
	//   attribute.String("test", ...), attribute.String("status", "pass"|"fail")
	TestsTotal metric.Int64Counter

	// ValidationsByTier counts validation verdicts. Use with attribute:
	//   attribute.String("match_type", ...)
	ValidationsByTier metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveRuns tracks in-flight test executions (0 or 1 per harness).
	ActiveRuns metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.GenerationDuration, err = m.Float64Histogram("kbharness.generation.duration",
		metric.WithDescription("Latency of audio generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.STTDuration, err = m.Float64Histogram("kbharness.stt.duration",
		metric.WithDescription("Latency of audio injection and transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ValidationDuration, err = m.Float64Histogram("kbharness.validation.duration",
		metric.WithDescription("Latency of transcript validation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PipelineDuration, err = m.Float64Histogram("kbharness.pipeline.duration",
		metric.WithDescription("End-to-end per-test pipeline latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.TestsTotal, err = m.Int64Counter("kbharness.tests.total",
		metric.WithDescription("Completed tests by test case and status."),
	); err != nil {
		return nil, err
	}
	if met.ValidationsByTier, err = m.Int64Counter("kbharness.validations.total",
		metric.WithDescription("Validation verdicts by winning match type."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("kbharness.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveRuns, err = m.Int64UpDownCounter("kbharness.active_runs",
		metric.WithDescription("Number of in-flight test executions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("kbharness.http.request.duration",
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

// RecordTest records one completed test with its test-case ID and pass/fail
// status.
func (m *Metrics) RecordTest(ctx context.Context, testID, status string) {
	m.TestsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("test", testID),
			attribute.String("status", status),
		),
	)
}

// RecordValidation records a validation verdict by its winning match type.
func (m *Metrics) RecordValidation(ctx context.Context, matchType string) {
	m.ValidationsByTier.Add(ctx, 1,
		metric.WithAttributes(attribute.String("match_type", matchType)),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
