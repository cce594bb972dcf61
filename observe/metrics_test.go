package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
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

// counterValue returns the sum of the data point carrying attr.
func counterValue(t *testing.T, rm metricdata.ResourceMetrics, name string, attr attribute.KeyValue) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q: data type = %T, want Sum[int64]", name, met.Data)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attr.Key); ok && v == attr.Value {
			return dp.Value
		}
	}
	return 0
}

func TestRecordFrame(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordFrame(ctx, OutcomeCandidate)
	m.RecordFrame(ctx, OutcomeCandidate)
	m.RecordFrame(ctx, OutcomeSilent)

	rm := collect(t, reader)
	if got := counterValue(t, rm, "sonido.listen.frames", attribute.String("outcome", OutcomeCandidate)); got != 2 {
		t.Errorf("candidate frames = %d, want 2", got)
	}
	if got := counterValue(t, rm, "sonido.listen.frames", attribute.String("outcome", OutcomeSilent)); got != 1 {
		t.Errorf("silent frames = %d, want 1", got)
	}
}

func TestRecordNoteFiredAndErrors(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordNoteFired(ctx, "A4")
	m.RecordFrameError(ctx, "panic")

	rm := collect(t, reader)
	if got := counterValue(t, rm, "sonido.listen.notes_fired", attribute.String("note", "A4")); got != 1 {
		t.Errorf("notes fired = %d, want 1", got)
	}
	if got := counterValue(t, rm, "sonido.listen.frame_errors", attribute.String("kind", "panic")); got != 1 {
		t.Errorf("frame errors = %d, want 1", got)
	}
}

func TestRecordEstimate(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordEstimate(context.Background(), 3*time.Millisecond)

	rm := collect(t, reader)
	met := findMetric(rm, "sonido.listen.estimate.duration")
	if met == nil {
		t.Fatal("histogram not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("data type = %T, want Histogram[float64]", met.Data)
	}
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 1 {
		t.Fatalf("unexpected data points: %+v", hist.DataPoints)
	}
	if got := hist.DataPoints[0].Sum; got < 0.0029 || got > 0.0031 {
		t.Errorf("sum = %v, want 0.003", got)
	}
}

func TestActiveSessions(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)

	rm := collect(t, reader)
	met := findMetric(rm, "sonido.listen.active_sessions")
	if met == nil {
		t.Fatal("up-down counter not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) != 1 {
		t.Fatalf("unexpected data: %+v", met.Data)
	}
	if sum.DataPoints[0].Value != 1 {
		t.Errorf("active sessions = %d, want 1", sum.DataPoints[0].Value)
	}
}
