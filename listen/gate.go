package listen

import (
	"time"

	"github.com/RyanBlaney/sonido-listen/algorithms/tonal"
)

// silenceFactor scales MinRMS into the level below which a frame counts as silent
const silenceFactor = 1.5

// GateConfig configures a StabilityGate
type GateConfig struct {
	StabilityFrames  int           // consecutive frames a candidate needs before firing
	AnyNoteCooldown  time.Duration // minimum time between any two firings
	SameNoteCooldown time.Duration // minimum time before the last fired note may fire again
	SilenceFrames    int           // silent frames that release the same-note cooldown
	MinRMS           float64       // detection floor; silence is below silenceFactor times this
}

// GatePhase is the coarse state of a StabilityGate
type GatePhase int

const (
	GateIdle GatePhase = iota
	GateTracking
	GateSuppressed
)

func (p GatePhase) String() string {
	switch p {
	case GateIdle:
		return "idle"
	case GateTracking:
		return "tracking"
	case GateSuppressed:
		return "suppressed"
	default:
		return "unknown"
	}
}

// GateState is a snapshot of a StabilityGate for diagnostics
type GateState struct {
	Phase         GatePhase
	Tracked       tonal.Note
	Count         int
	SilenceFrames int
	LastFired     tonal.Note // zero when cleared by silence
	LastFiredAt   time.Time
	SuppressUntil time.Time
}

// StabilityGate debounces per-frame note candidates into note events.
//
// A candidate must be seen on StabilityFrames consecutive voiced frames.
// Frames without a candidate neither add support nor reset it; only a
// different candidate restarts tracking. After any firing, nothing fires for
// AnyNoteCooldown. The note that fired last is blocked until it is released
// by one of:
//
//   - a new attack (see Onset) once SameNoteCooldown has passed since it fired
//   - SilenceFrames consecutive silent frames
//   - reappearing after going unheard for at least SameNoteCooldown
//
// A sustained or ringing tone therefore fires once, while re-striking a note
// that is still ringing fires again.
//
// StabilityGate is not safe for concurrent use.
type StabilityGate struct {
	cfg GateConfig

	current  tonal.Note
	tracking bool
	count    int
	silence  int

	lastFired    tonal.Note
	hasLastFired bool
	lastFiredAt  time.Time
	lastHeardAt  time.Time // last frame the last fired note was a candidate
	lastOnsetAt  time.Time

	suppressUntil time.Time
}

// NewStabilityGate creates a gate in the Idle state
func NewStabilityGate(cfg GateConfig) *StabilityGate {
	if cfg.StabilityFrames < 1 {
		cfg.StabilityFrames = 1
	}
	if cfg.SilenceFrames < 1 {
		cfg.SilenceFrames = 1
	}
	return &StabilityGate{cfg: cfg}
}

// Step feeds one analysis frame. ok reports whether the frame produced a
// candidate note. It returns the note to emit, if any.
func (g *StabilityGate) Step(now time.Time, candidate tonal.Note, ok bool, rms float64) (tonal.Note, bool) {
	if rms < silenceFactor*g.cfg.MinRMS {
		g.silence++
		if g.silence >= g.cfg.SilenceFrames {
			g.release()
		}
	} else {
		g.silence = 0
	}

	if g.Suppressed(now) {
		g.resetTracking()
		return tonal.Note{}, false
	}

	if !ok {
		return tonal.Note{}, false
	}

	if g.hasLastFired && candidate == g.lastFired {
		restruck := g.lastOnsetAt.After(g.lastFiredAt) &&
			now.Sub(g.lastFiredAt) >= g.cfg.SameNoteCooldown
		if restruck || now.Sub(g.lastHeardAt) >= g.cfg.SameNoteCooldown {
			g.release()
		} else {
			g.lastHeardAt = now
		}
	}

	if g.tracking && candidate == g.current {
		g.count++
	} else {
		g.current = candidate
		g.tracking = true
		g.count = 1
	}

	if g.count < g.cfg.StabilityFrames {
		return tonal.Note{}, false
	}

	if !g.lastFiredAt.IsZero() && now.Sub(g.lastFiredAt) < g.cfg.AnyNoteCooldown {
		return tonal.Note{}, false
	}
	if g.hasLastFired && candidate == g.lastFired {
		return tonal.Note{}, false
	}

	g.lastFired = candidate
	g.hasLastFired = true
	g.lastFiredAt = now
	g.lastHeardAt = now
	g.resetTracking()
	return candidate, true
}

// Onset records a note attack at now. Tracking restarts so the new note
// has to prove itself stable from this point.
func (g *StabilityGate) Onset(now time.Time) {
	g.lastOnsetAt = now
	g.resetTracking()
}

// Suppress mutes the gate until the given time. A later deadline extends
// the window, an earlier one is ignored.
func (g *StabilityGate) Suppress(until time.Time) {
	if until.After(g.suppressUntil) {
		g.suppressUntil = until
	}
}

// Suppressed reports whether now falls inside the suppression window
func (g *StabilityGate) Suppressed(now time.Time) bool {
	return now.Before(g.suppressUntil)
}

// Reset returns the gate to its initial state, clearing cooldowns and suppression
func (g *StabilityGate) Reset() {
	*g = StabilityGate{cfg: g.cfg}
}

// State returns a snapshot of the gate as seen at now
func (g *StabilityGate) State(now time.Time) GateState {
	st := GateState{
		Phase:         GateIdle,
		SilenceFrames: g.silence,
		LastFiredAt:   g.lastFiredAt,
		SuppressUntil: g.suppressUntil,
	}
	if g.hasLastFired {
		st.LastFired = g.lastFired
	}
	switch {
	case g.Suppressed(now):
		st.Phase = GateSuppressed
	case g.tracking:
		st.Phase = GateTracking
		st.Tracked = g.current
		st.Count = g.count
	}
	return st
}

// release lifts the same-note cooldown
func (g *StabilityGate) release() {
	g.lastFired = tonal.Note{}
	g.hasLastFired = false
}

func (g *StabilityGate) resetTracking() {
	g.current = tonal.Note{}
	g.tracking = false
	g.count = 0
}
