// Package observe provides application-wide observability primitives for
// Skywave: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [Init] so that metrics can still be
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

// meterName is the instrumentation scope name used for all Skywave metrics.
const meterName = "github.com/MrWong99/skywave"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// StageDuration tracks per-stage pipeline latency. Use with attribute:
	//   attribute.String("stage", ...) — "ingest", "resample_audio",
	//   "modulate", "resample_iq" or "stream".
	StageDuration metric.Float64Histogram

	// TransmissionDuration tracks the wall-clock time of a whole
	// transmission, from file ingest to the radio settling.
	TransmissionDuration metric.Float64Histogram

	// --- Counters ---

	// Transmissions counts finished transmissions. Use with attribute:
	//   attribute.String("status", ...) — "ok" or "error".
	Transmissions metric.Int64Counter

	// ChunksSent counts IQ buffers pushed to the radio.
	ChunksSent metric.Int64Counter

	// SamplesSent counts individual IQ samples pushed to the radio.
	SamplesSent metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// WorkflowRuns counts end-to-end workflow executions. Use with attribute:
	//   attribute.String("status", ...)
	WorkflowRuns metric.Int64Counter

	// ProviderFailovers counts calls served by a fallback backend instead of
	// the chain's primary. Use with attributes:
	//   attribute.String("kind", ...), attribute.String("backend", ...)
	ProviderFailovers metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Use with attributes:
	//   attribute.String("backend", ...), attribute.String("state", ...) — the state entered.
	BreakerTransitions metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveTransmissions tracks the number of transmissions currently on
	// the air.
	ActiveTransmissions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// stageBuckets defines histogram bucket boundaries (in seconds) for DSP
// stages, which run from sub-millisecond up to a few seconds on long files.
var stageBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// transmissionBuckets covers whole transmissions, which stream in real time
// and so last roughly as long as the audio itself.
var transmissionBuckets = []float64{
	0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.StageDuration, err = m.Float64Histogram("skywave.pipeline.stage.duration",
		metric.WithDescription("Latency of a single pipeline stage by stage name."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TransmissionDuration, err = m.Float64Histogram("skywave.transmission.duration",
		metric.WithDescription("Wall-clock duration of a whole transmission."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(transmissionBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Transmissions, err = m.Int64Counter("skywave.transmissions",
		metric.WithDescription("Total finished transmissions by status."),
	); err != nil {
		return nil, err
	}
	if met.ChunksSent, err = m.Int64Counter("skywave.chunks.sent",
		metric.WithDescription("Total IQ buffers pushed to the radio."),
	); err != nil {
		return nil, err
	}
	if met.SamplesSent, err = m.Int64Counter("skywave.samples.sent",
		metric.WithDescription("Total IQ samples pushed to the radio."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("skywave.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.WorkflowRuns, err = m.Int64Counter("skywave.workflow.runs",
		metric.WithDescription("Total end-to-end workflow executions by status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderFailovers, err = m.Int64Counter("skywave.provider.failovers",
		metric.WithDescription("Total calls served by a fallback backend instead of the primary."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("skywave.breaker.transitions",
		metric.WithDescription("Total circuit breaker state changes by backend and entered state."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("skywave.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveTransmissions, err = m.Int64UpDownCounter("skywave.active_transmissions",
		metric.WithDescription("Number of transmissions currently on the air."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("skywave.http.request.duration",
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

// RecordStage records the latency of one pipeline stage.
func (m *Metrics) RecordStage(ctx context.Context, stage string, seconds float64) {
	m.StageDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// RecordTransmission records a finished transmission: its total duration and
// an increment of the status-tagged counter.
func (m *Metrics) RecordTransmission(ctx context.Context, status string, seconds float64) {
	m.TransmissionDuration.Record(ctx, seconds)
	m.Transmissions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordChunk records one IQ buffer of the given sample count pushed to the
// radio.
func (m *Metrics) RecordChunk(ctx context.Context, samples int) {
	m.ChunksSent.Add(ctx, 1)
	m.SamplesSent.Add(ctx, int64(samples))
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
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

// RecordFailover records one call that a fallback backend served because the
// primary (and any earlier fallbacks) failed.
func (m *Metrics) RecordFailover(ctx context.Context, kind, backend string) {
	m.ProviderFailovers.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("backend", backend),
		),
	)
}

// RecordBreakerTransition records a circuit breaker entering a new state.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, backend, state string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("state", state),
		),
	)
}

// RecordWorkflowRun records one end-to-end workflow execution.
func (m *Metrics) RecordWorkflowRun(ctx context.Context, status string) {
	m.WorkflowRuns.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}
