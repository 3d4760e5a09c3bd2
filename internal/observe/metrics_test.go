package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// counterValue returns the value of the data point whose attribute key equals
// value, or -1 when no such point exists.
func counterValue(sum metricdata.Sum[int64], key, value string) int64 {
	for _, dp := range sum.DataPoints {
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == key && kv.Value.AsString() == value {
				return dp.Value
			}
		}
	}
	return -1
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestStageDurationHistogram(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordStage(ctx, "modulate", 0.012)
	m.RecordStage(ctx, "modulate", 0.015)
	m.RecordStage(ctx, "resample_audio", 0.004)

	rm := collect(t, reader)
	met := findMetric(rm, "skywave.pipeline.stage.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}

	for _, dp := range hist.DataPoints {
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == "stage" && kv.Value.AsString() == "modulate" {
				if dp.Count != 2 {
					t.Errorf("modulate sample count = %d, want 2", dp.Count)
				}
				return
			}
		}
	}
	t.Error("data point with stage=modulate not found")
}

func TestRecordTransmission(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTransmission(ctx, "ok", 12.5)
	m.RecordTransmission(ctx, "ok", 33.0)
	m.RecordTransmission(ctx, "error", 1.2)

	rm := collect(t, reader)

	met := findMetric(rm, "skywave.transmissions")
	if met == nil {
		t.Fatal("transmissions metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("transmissions metric is not a sum")
	}
	if got := counterValue(sum, "status", "ok"); got != 2 {
		t.Errorf("transmissions{status=ok} = %d, want 2", got)
	}
	if got := counterValue(sum, "status", "error"); got != 1 {
		t.Errorf("transmissions{status=error} = %d, want 1", got)
	}

	durMet := findMetric(rm, "skywave.transmission.duration")
	if durMet == nil {
		t.Fatal("duration metric not found")
	}
	hist, ok := durMet.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("duration metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 || hist.DataPoints[0].Count != 3 {
		t.Errorf("duration data points = %+v, want one point with 3 samples", hist.DataPoints)
	}
}

func TestRecordChunk(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordChunk(ctx, 8192)
	m.RecordChunk(ctx, 3616)

	rm := collect(t, reader)

	chunks := findMetric(rm, "skywave.chunks.sent")
	if chunks == nil {
		t.Fatal("chunks metric not found")
	}
	if sum, ok := chunks.Data.(metricdata.Sum[int64]); !ok || len(sum.DataPoints) == 0 || sum.DataPoints[0].Value != 2 {
		t.Errorf("chunks.sent = %+v, want 2", chunks.Data)
	}

	samples := findMetric(rm, "skywave.samples.sent")
	if samples == nil {
		t.Fatal("samples metric not found")
	}
	if sum, ok := samples.Data.(metricdata.Sum[int64]); !ok || len(sum.DataPoints) == 0 || sum.DataPoints[0].Value != 11808 {
		t.Errorf("samples.sent = %+v, want 11808", samples.Data)
	}
}

func TestProviderRequestsCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "coqui", "tts", "ok")
	m.RecordProviderRequest(ctx, "coqui", "tts", "ok")
	m.RecordProviderRequest(ctx, "coqui", "tts", "error")

	rm := collect(t, reader)
	met := findMetric(rm, "skywave.provider.requests")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	if got := counterValue(sum, "status", "ok"); got != 2 {
		t.Errorf("requests{status=ok} = %d, want 2", got)
	}
}

func TestProviderErrorsCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderError(ctx, "ollama", "llm")

	rm := collect(t, reader)
	met := findMetric(rm, "skywave.provider.errors")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	if len(sum.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if sum.DataPoints[0].Value != 1 {
		t.Errorf("counter value = %d, want 1", sum.DataPoints[0].Value)
	}
}

func TestRecordFailover(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordFailover(ctx, "tts", "elevenlabs")
	m.RecordFailover(ctx, "tts", "elevenlabs")

	rm := collect(t, reader)
	met := findMetric(rm, "skywave.provider.failovers")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	if got := counterValue(sum, "backend", "elevenlabs"); got != 2 {
		t.Errorf("failovers{backend=elevenlabs} = %d, want 2", got)
	}
}

func TestRecordBreakerTransition(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordBreakerTransition(ctx, "ollama", "open")
	m.RecordBreakerTransition(ctx, "ollama", "half-open")
	m.RecordBreakerTransition(ctx, "ollama", "open")

	rm := collect(t, reader)
	met := findMetric(rm, "skywave.breaker.transitions")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	if got := counterValue(sum, "state", "open"); got != 2 {
		t.Errorf("transitions{state=open} = %d, want 2", got)
	}
	if got := counterValue(sum, "state", "half-open"); got != 1 {
		t.Errorf("transitions{state=half-open} = %d, want 1", got)
	}
}

func TestWorkflowRunsCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordWorkflowRun(ctx, "ok")
	m.RecordWorkflowRun(ctx, "ok")
	m.RecordWorkflowRun(ctx, "error")

	rm := collect(t, reader)
	met := findMetric(rm, "skywave.workflow.runs")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	if got := counterValue(sum, "status", "ok"); got != 2 {
		t.Errorf("runs{status=ok} = %d, want 2", got)
	}
}

func TestActiveTransmissionsGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveTransmissions.Add(ctx, 1)
	m.ActiveTransmissions.Add(ctx, 1)
	m.ActiveTransmissions.Add(ctx, -1)

	rm := collect(t, reader)
	met := findMetric(rm, "skywave.active_transmissions")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	if len(sum.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := sum.DataPoints[0].Value; got != 1 {
		t.Errorf("gauge value = %d, want 1", got)
	}
}

func TestHTTPRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.HTTPRequestDuration.Record(ctx, 0.05,
		metric.WithAttributes(
			attribute.String("method", "GET"),
			attribute.String("path", "/healthz"),
		),
	)

	rm := collect(t, reader)
	met := findMetric(rm, "skywave.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := hist.DataPoints[0].Count; got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	// DefaultMetrics uses the global OTel provider so we just check
	// that repeated calls return the same pointer.
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
