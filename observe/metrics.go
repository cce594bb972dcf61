// Package observe provides OpenTelemetry metrics for listening sessions.
//
// Instruments are created through the OpenTelemetry Metrics API. [InitProvider]
// installs a Prometheus exporter so they can be scraped from /metrics. Tests
// should use [NewMetrics] with their own [metric.MeterProvider] rather than
// [DefaultMetrics].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/RyanBlaney/sonido-listen"

// Frame outcomes recorded on the Frames counter.
const (
	OutcomeSilent        = "silent"
	OutcomeNoPitch       = "no_pitch"
	OutcomeLowConfidence = "low_confidence"
	OutcomeUnmapped      = "unmapped"
	OutcomeCandidate     = "candidate"
	OutcomeSuppressed    = "suppressed"
)

// Metrics holds the metric instruments for the detection pipeline.
// All fields are safe for concurrent use.
type Metrics struct {
	// Frames counts analysis ticks that produced a frame. Use with attribute:
	//   attribute.String("outcome", ...)
	Frames metric.Int64Counter

	// NotesFired counts confirmed note events. Use with attribute:
	//   attribute.String("note", ...)
	NotesFired metric.Int64Counter

	// FrameErrors counts frames whose processing failed. Use with attribute:
	//   attribute.String("kind", ...)
	FrameErrors metric.Int64Counter

	// SamplesCaptured counts conditioned samples pushed by the audio source.
	SamplesCaptured metric.Int64Counter

	// EstimateDuration tracks the latency of one pitch estimate.
	EstimateDuration metric.Float64Histogram

	// ActiveSessions tracks the number of live listening sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// estimateBuckets (seconds) cover the per-tick budget of a ~16ms display frame.
var estimateBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.004, 0.008, 0.016, 0.032,
}

// NewMetrics creates all instruments on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Frames, err = m.Int64Counter("sonido.listen.frames",
		metric.WithDescription("Analysed frames by outcome."),
	); err != nil {
		return nil, err
	}
	if met.NotesFired, err = m.Int64Counter("sonido.listen.notes_fired",
		metric.WithDescription("Confirmed note events by note."),
	); err != nil {
		return nil, err
	}
	if met.FrameErrors, err = m.Int64Counter("sonido.listen.frame_errors",
		metric.WithDescription("Frames that failed to process, by kind."),
	); err != nil {
		return nil, err
	}
	if met.SamplesCaptured, err = m.Int64Counter("sonido.listen.samples_captured",
		metric.WithDescription("Conditioned samples received from the audio source."),
	); err != nil {
		return nil, err
	}
	if met.EstimateDuration, err = m.Float64Histogram("sonido.listen.estimate.duration",
		metric.WithDescription("Latency of a single pitch estimate."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(estimateBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("sonido.listen.active_sessions",
		metric.WithDescription("Number of live listening sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, created on
// first call from [otel.GetMeterProvider]. Panics if instrument creation
// fails.
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

// RecordFrame counts one analysed frame with its outcome.
func (m *Metrics) RecordFrame(ctx context.Context, outcome string) {
	m.Frames.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordNoteFired counts a confirmed note.
func (m *Metrics) RecordNoteFired(ctx context.Context, note string) {
	m.NotesFired.Add(ctx, 1, metric.WithAttributes(attribute.String("note", note)))
}

// RecordFrameError counts a failed frame.
func (m *Metrics) RecordFrameError(ctx context.Context, kind string) {
	m.FrameErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordEstimate records the duration of one pitch estimate.
func (m *Metrics) RecordEstimate(ctx context.Context, d time.Duration) {
	m.EstimateDuration.Record(ctx, d.Seconds())
}
