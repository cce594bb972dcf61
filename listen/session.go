package listen

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/RyanBlaney/sonido-listen/algorithms/temporal"
	"github.com/RyanBlaney/sonido-listen/algorithms/tonal"
	"github.com/RyanBlaney/sonido-listen/logging"
	"github.com/RyanBlaney/sonido-listen/observe"
)

// ErrSessionStopped is returned by Start when Stop was called while the
// audio source was still opening
var ErrSessionStopped = errors.New("listen: session stopped during start")

// NoteFunc receives confirmed notes
type NoteFunc func(note tonal.Note)

// HeardFunc receives every raw per-frame candidate before stability gating.
// It is meant for live diagnostics only.
type HeardFunc func(note tonal.Note, estimate tonal.PitchEstimate)

// Option configures a Session
type Option func(*Session)

// WithScheduler sets the scheduler driving the analysis loop
func WithScheduler(s Scheduler) Option {
	return func(sess *Session) {
		if s != nil {
			sess.scheduler = s
		}
	}
}

// WithLogger sets the session logger
func WithLogger(l logging.Logger) Option {
	return func(sess *Session) {
		if l != nil {
			sess.logger = l
		}
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m *observe.Metrics) Option {
	return func(sess *Session) {
		if m != nil {
			sess.metrics = m
		}
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(sess *Session) {
		if now != nil {
			sess.now = now
		}
	}
}

// Session owns one listening run at a time: the open stream, the signal
// chain and all gate state. Stop releases everything; a stopped Session may
// be started again. All methods are safe for concurrent use, and callbacks
// run without the session lock held so they may call Stop or SuppressFor.
type Session struct {
	source    AudioSource
	scheduler Scheduler
	logger    logging.Logger
	metrics   *observe.Metrics
	now       func() time.Time

	mu         sync.Mutex
	generation uint64
	starting   bool
	run        *run
}

// run is the state of one Start..Stop cycle
type run struct {
	generation  uint64
	ctx         context.Context
	preset      DetectionPreset
	stream      Stream
	sampleRate  int
	conditioner *SignalConditioner
	onsets      *temporal.OnsetDetector
	analyser    *analyser
	estimator   tonal.PitchEstimator
	gate        *StabilityGate
	onNote      NoteFunc
	onHeard     HeardFunc

	cancelTicks func()
	stopAfter   func() bool
}

// NewSession creates an idle session reading from source
func NewSession(source AudioSource, opts ...Option) *Session {
	s := &Session{
		source:    source,
		scheduler: NewTickerScheduler(DefaultFrameInterval),
		logger:    logging.WithFields(logging.Fields{"component": "listen"}),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Start opens the audio source and begins detection with the given preset.
// onHeard may be nil. Calling Start on an active session does nothing.
//
// The session stops on its own when ctx is cancelled. Start returns an
// error matching ErrPermissionDenied when microphone access is refused and
// a *DeviceError for other device failures.
func (s *Session) Start(ctx context.Context, onNote NoteFunc, onHeard HeardFunc, preset DetectionPreset) error {
	if onNote == nil {
		return errors.New("listen: start: nil note callback")
	}
	if err := preset.Validate(); err != nil {
		return err
	}
	estimator, err := tonal.NewPitchEstimator(preset.EstimatorParams())
	if err != nil {
		return fmt.Errorf("listen: start: %w", err)
	}

	s.mu.Lock()
	if s.run != nil || s.starting {
		s.mu.Unlock()
		return nil
	}
	s.starting = true
	gen := s.generation
	s.mu.Unlock()

	r, err := s.open(ctx, preset, estimator, onNote, onHeard)

	s.mu.Lock()
	s.starting = false
	if err == nil && s.generation != gen {
		s.mu.Unlock()
		s.closeStream(r.stream)
		return ErrSessionStopped
	}
	if err != nil {
		s.mu.Unlock()
		return err
	}

	s.generation++
	r.generation = s.generation
	s.run = r
	r.cancelTicks = s.scheduler.Schedule(ctx, func() { s.tick(r.generation) })
	r.stopAfter = context.AfterFunc(ctx, func() { s.stopGeneration(r.generation) })
	s.mu.Unlock()

	s.metrics.ActiveSessions.Add(ctx, 1)
	s.logger.Info("listening started", logging.Fields{
		"preset":      preset.Name,
		"method":      preset.Method.String(),
		"sample_rate": r.sampleRate,
		"block_size":  preset.BlockSize,
	})
	return nil
}

// open acquires the stream and wires the capture path. It runs without the
// session lock since opening may block on a permission prompt.
func (s *Session) open(ctx context.Context, preset DetectionPreset, estimator tonal.PitchEstimator, onNote NoteFunc, onHeard HeardFunc) (*run, error) {
	stream, err := s.source.Open(ctx)
	if err != nil {
		return nil, asDeviceError("open", err)
	}

	sampleRate := stream.SampleRate()
	conditioner, err := NewSignalConditioner(preset, sampleRate)
	if err != nil {
		s.closeStream(stream)
		return nil, err
	}
	onsetParams := temporal.DefaultOnsetParams()
	onsetParams.MinRMS = preset.MinRMS
	onsets, err := temporal.NewOnsetDetector(sampleRate, onsetParams)
	if err != nil {
		s.closeStream(stream)
		return nil, fmt.Errorf("listen: onset detector: %w", err)
	}

	r := &run{
		ctx:         ctx,
		preset:      preset,
		stream:      stream,
		sampleRate:  sampleRate,
		conditioner: conditioner,
		onsets:      onsets,
		analyser:    newAnalyser(preset.BlockSize),
		estimator:   estimator,
		gate:        NewStabilityGate(preset.GateConfig()),
		onNote:      onNote,
		onHeard:     onHeard,
	}

	sink := func(samples []float64) {
		buf := slices.Clone(samples)
		for i, v := range buf {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				buf[i] = 0
			}
		}
		// Attacks are taken before compression flattens them
		if r.onsets.Process(buf) > 0 {
			r.analyser.markOnset()
		}
		r.conditioner.Process(buf)
		r.analyser.push(buf)
		s.metrics.SamplesCaptured.Add(ctx, int64(len(buf)))
	}
	if err := stream.Start(sink); err != nil {
		s.closeStream(stream)
		return nil, asDeviceError("start", err)
	}
	return r, nil
}

// Stop ends the active run and releases the audio device. It is safe to call
// at any time, from any goroutine or callback, any number of times.
func (s *Session) Stop() {
	s.mu.Lock()
	r := s.detach()
	s.mu.Unlock()
	s.teardown(r)
}

// stopGeneration stops the run only if it is still the current one
func (s *Session) stopGeneration(gen uint64) {
	s.mu.Lock()
	if s.run == nil || s.run.generation != gen {
		s.mu.Unlock()
		return
	}
	r := s.detach()
	s.mu.Unlock()
	s.teardown(r)
}

// detach clears the current run. Caller holds s.mu.
func (s *Session) detach() *run {
	r := s.run
	s.run = nil
	s.generation++
	return r
}

func (s *Session) teardown(r *run) {
	if r == nil {
		return
	}
	if r.cancelTicks != nil {
		r.cancelTicks()
	}
	if r.stopAfter != nil {
		r.stopAfter()
	}
	s.closeStream(r.stream)
	r.gate.Reset()
	r.analyser.reset()

	s.metrics.ActiveSessions.Add(context.Background(), -1)
	s.logger.Info("listening stopped", logging.Fields{"preset": r.preset.Name})
}

func (s *Session) closeStream(stream Stream) {
	if stream == nil {
		return
	}
	if err := stream.Close(); err != nil {
		s.logger.Debug("ignoring stream close error", logging.Fields{"error": err.Error()})
	}
}

// SuppressFor mutes detection for d without stopping the session, e.g. while
// the application plays audio through the speakers
func (s *Session) SuppressFor(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != nil {
		s.run.gate.Suppress(s.now().Add(d))
	}
}

// Active reports whether a run is in progress
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run != nil
}

// Preset returns the preset of the active run
func (s *Session) Preset() (DetectionPreset, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		return DetectionPreset{}, false
	}
	return s.run.preset, true
}

// GateState returns a snapshot of the stability gate of the active run
func (s *Session) GateState() (GateState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		return GateState{}, false
	}
	return s.run.gate.State(s.now()), true
}

// tickResult carries callback work out of the locked section
type tickResult struct {
	heard    bool
	note     tonal.Note
	estimate tonal.PitchEstimate
	fired    bool
	fire     tonal.Note
}

// tick runs one analysis step for generation gen. Ticks from a cancelled
// run are ignored.
func (s *Session) tick(gen uint64) {
	s.mu.Lock()
	r := s.run
	if r == nil || r.generation != gen {
		s.mu.Unlock()
		return
	}
	res := s.analyse(r)
	s.mu.Unlock()

	if res.heard && r.onHeard != nil {
		r.onHeard(res.note, res.estimate)
	}
	if res.fired {
		r.onNote(res.fire)
	}
}

// analyse runs estimator, mapper and gate on the latest frame. A panic from
// a malformed frame is logged and the frame dropped. Caller holds s.mu.
func (s *Session) analyse(r *run) (res tickResult) {
	defer func() {
		if p := recover(); p != nil {
			s.metrics.RecordFrameError(r.ctx, "panic")
			s.logger.Error(fmt.Errorf("%v", p), "recovered from panic in analysis tick")
			res = tickResult{}
		}
	}()

	now := s.now()
	if r.analyser.takeOnset() {
		r.gate.Onset(now)
	}

	frame, ok := r.analyser.frame(r.sampleRate)
	if !ok {
		return res
	}

	rms := frame.RMS()
	preset := r.preset

	if r.gate.Suppressed(now) {
		r.gate.Step(now, tonal.Note{}, false, rms)
		s.metrics.RecordFrame(r.ctx, observe.OutcomeSuppressed)
		return res
	}

	if rms < preset.MinRMS {
		r.gate.Step(now, tonal.Note{}, false, rms)
		s.metrics.RecordFrame(r.ctx, observe.OutcomeSilent)
		return res
	}

	started := time.Now()
	estimate, err := r.estimator.Estimate(frame.Samples, frame.SampleRate)
	s.metrics.RecordEstimate(r.ctx, time.Since(started))
	if err != nil {
		s.metrics.RecordFrameError(r.ctx, "estimate")
		s.logger.Warn("pitch estimate failed", logging.Fields{"error": err.Error()})
		r.gate.Step(now, tonal.Note{}, false, rms)
		return res
	}

	var (
		note    tonal.Note
		mapped  bool
		outcome string
	)
	switch {
	case !estimate.HasPitch():
		outcome = observe.OutcomeNoPitch
	case estimate.Confidence < preset.MinConfidence:
		outcome = observe.OutcomeLowConfidence
	default:
		note, mapped = tonal.MapFrequency(estimate.Frequency, preset.SnapTolerance)
		outcome = observe.OutcomeUnmapped
		if mapped {
			outcome = observe.OutcomeCandidate
		}
	}
	s.metrics.RecordFrame(r.ctx, outcome)

	if mapped {
		res.heard = true
		res.note = note
		res.estimate = estimate
	}

	if fired, ok := r.gate.Step(now, note, mapped, rms); ok {
		res.fired = true
		res.fire = fired
		s.metrics.RecordNoteFired(r.ctx, fired.String())
		s.logger.Debug("note fired", logging.Fields{
			"note":       fired.String(),
			"frequency":  estimate.Frequency,
			"confidence": estimate.Confidence,
		})
	}
	return res
}
