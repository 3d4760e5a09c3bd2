package observe

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// TelemetryConfig configures [Init].
type TelemetryConfig struct {
	// ServiceName is the service name reported in telemetry. Default: "skywave".
	ServiceName string

	// ServiceVersion is the service version reported in telemetry.
	ServiceVersion string

	// TraceExporter is an optional span exporter. When nil, spans are
	// recorded but not exported, which is all a one-shot transmission run
	// needs; a long-lived deployment would plug in an OTLP exporter here.
	TraceExporter sdktrace.SpanExporter
}

// Telemetry owns the OpenTelemetry SDK providers for the process lifetime.
// Metrics flow through a Prometheus exporter bridge so they surface on the
// standard /metrics scrape endpoint.
type Telemetry struct {
	meter  *sdkmetric.MeterProvider
	tracer *sdktrace.TracerProvider
}

// Init builds the metric and trace providers described by cfg and registers
// them as the global OTel providers. Call [Telemetry.Shutdown] in a defer
// from main().
func Init(ctx context.Context, cfg TelemetryConfig) (*Telemetry, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "skywave"
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	promExp, err := promexporter.New()
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExp),
	)

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)

	return &Telemetry{meter: mp, tracer: tp}, nil
}

// Shutdown flushes both providers and releases their exporters.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(
		t.meter.Shutdown(ctx),
		t.tracer.Shutdown(ctx),
	)
}
