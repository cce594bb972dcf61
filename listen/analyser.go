package listen

import (
	"sync"

	"github.com/RyanBlaney/sonido-listen/algorithms/common"
)

// analyser keeps the most recent block of conditioned samples. The audio
// driver writes into it and the tick reads snapshots from it.
type analyser struct {
	mu    sync.Mutex
	ring  *common.CircularBuffer
	onset bool // attack seen since the last tick
}

func newAnalyser(blockSize int) *analyser {
	return &analyser{ring: common.NewCircularBuffer(blockSize)}
}

func (a *analyser) push(samples []float64) {
	a.mu.Lock()
	a.ring.Write(samples)
	a.mu.Unlock()
}

// frame copies out the latest block. It reports false until a full block
// has been captured.
func (a *analyser) frame(sampleRate int) (AudioFrame, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.ring.IsFull() {
		return AudioFrame{}, false
	}
	samples := make([]float64, a.ring.Size())
	a.ring.Latest(samples)
	return AudioFrame{Samples: samples, SampleRate: sampleRate}, true
}

func (a *analyser) markOnset() {
	a.mu.Lock()
	a.onset = true
	a.mu.Unlock()
}

// takeOnset reports and clears a pending attack
func (a *analyser) takeOnset() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	seen := a.onset
	a.onset = false
	return seen
}

func (a *analyser) reset() {
	a.mu.Lock()
	a.ring.Clear()
	a.onset = false
	a.mu.Unlock()
}
