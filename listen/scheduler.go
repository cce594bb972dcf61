package listen

import (
	"context"
	"slices"
	"sync"
	"time"
)

// DefaultFrameInterval approximates a 60 Hz display refresh
const DefaultFrameInterval = 16 * time.Millisecond

// Scheduler drives the analysis loop. Schedule arranges for tick to be called
// repeatedly, never concurrently with itself, until ctx is done or cancel is
// called. cancel must not wait for an in-flight tick, since ticks may call
// back into the session.
type Scheduler interface {
	Schedule(ctx context.Context, tick func()) (cancel func())
}

// TickerScheduler calls tick from a single goroutine at a fixed interval
type TickerScheduler struct {
	Interval time.Duration
}

// NewTickerScheduler returns a scheduler ticking every interval
// (DefaultFrameInterval if interval is not positive)
func NewTickerScheduler(interval time.Duration) *TickerScheduler {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &TickerScheduler{Interval: interval}
}

// Schedule implements Scheduler
func (s *TickerScheduler) Schedule(ctx context.Context, tick func()) func() {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultFrameInterval
	}

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ctx.Err() != nil {
					return
				}
				tick()
			}
		}
	}()
	return cancel
}

// ManualScheduler runs ticks only when Tick is called. It lets tests and
// offline replays step the analysis loop deterministically.
type ManualScheduler struct {
	mu     sync.Mutex
	nextID int
	ticks  map[int]scheduledTick
}

type scheduledTick struct {
	ctx  context.Context
	tick func()
}

// NewManualScheduler creates an empty ManualScheduler
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{ticks: make(map[int]scheduledTick)}
}

// Schedule implements Scheduler
func (m *ManualScheduler) Schedule(ctx context.Context, tick func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.ticks[id] = scheduledTick{ctx: ctx, tick: tick}
	return func() {
		m.mu.Lock()
		delete(m.ticks, id)
		m.mu.Unlock()
	}
}

// Tick calls every live scheduled tick once, in scheduling order, and
// returns how many ran
func (m *ManualScheduler) Tick() int {
	m.mu.Lock()
	ids := make([]int, 0, len(m.ticks))
	for id := range m.ticks {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	slices.Sort(ids)

	ran := 0
	for _, id := range ids {
		m.mu.Lock()
		st, ok := m.ticks[id]
		m.mu.Unlock()
		if !ok || st.ctx.Err() != nil {
			continue
		}
		st.tick()
		ran++
	}
	return ran
}

// Pending returns the number of scheduled loops not yet cancelled
func (m *ManualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, st := range m.ticks {
		if st.ctx.Err() == nil {
			n++
		}
	}
	return n
}
