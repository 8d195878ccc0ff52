// Package observe provides application-wide observability primitives for
// SoundMind: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all SoundMind metrics.
const meterName = "github.com/soundmind-app/soundmind"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per analysis stage ---

	// AnalysisDuration tracks end-to-end analysis latency, from request
	// receipt to assembled result.
	AnalysisDuration metric.Float64Histogram

	// ExtractionDuration tracks acoustic feature extraction latency.
	ExtractionDuration metric.Float64Histogram

	// LLMDuration tracks suggestion-generation LLM latency.
	LLMDuration metric.Float64Histogram

	// --- Counters ---

	// Analyses counts completed analyses. Use with attributes:
	//   attribute.String("category", ...), attribute.String("input", "audio"|"features")
	Analyses metric.Int64Counter

	// Alerts counts high-stress alerts raised.
	Alerts metric.Int64Counter

	// Calibrations counts baseline recalibrations.
	Calibrations metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts external service errors. Use with attribute:
	//   attribute.String("provider", "extractor"|"llm"|"postgres")
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// AlertSubscribers tracks the number of connected alert dashboard
	// watchers.
	AlertSubscribers metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// analysis-pipeline latencies.
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
	if met.AnalysisDuration, err = m.Float64Histogram("soundmind.analysis.duration",
		metric.WithDescription("End-to-end latency of a stress analysis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ExtractionDuration, err = m.Float64Histogram("soundmind.extraction.duration",
		metric.WithDescription("Latency of acoustic feature extraction."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("soundmind.llm.duration",
		metric.WithDescription("Latency of suggestion generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Analyses, err = m.Int64Counter("soundmind.analyses",
		metric.WithDescription("Total completed analyses by category and input kind."),
	); err != nil {
		return nil, err
	}
	if met.Alerts, err = m.Int64Counter("soundmind.alerts",
		metric.WithDescription("Total high-stress alerts raised."),
	); err != nil {
		return nil, err
	}
	if met.Calibrations, err = m.Int64Counter("soundmind.calibrations",
		metric.WithDescription("Total baseline recalibrations."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("soundmind.provider.errors",
		metric.WithDescription("Total external service errors by provider."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.AlertSubscribers, err = m.Int64UpDownCounter("soundmind.alert_subscribers",
		metric.WithDescription("Number of connected alert dashboard watchers."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("soundmind.http.request.duration",
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

// RecordAnalysis is a convenience method that records a completed analysis
// with the standard attribute set.
func (m *Metrics) RecordAnalysis(ctx context.Context, category, input string) {
	m.Analyses.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("category", category),
			attribute.String("input", input),
		),
	)
}

// RecordAlert is a convenience method that records a raised alert.
func (m *Metrics) RecordAlert(ctx context.Context) {
	m.Alerts.Add(ctx, 1)
}

// RecordProviderError is a convenience method that records an external
// service error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}
