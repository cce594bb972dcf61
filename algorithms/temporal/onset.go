package temporal

import (
	"fmt"
	"time"

	"github.com/RyanBlaney/sonido-listen/algorithms/common"
)

// OnsetParams configures an energy-based onset detector
type OnsetParams struct {
	FrameSize   int           `json:"frame_size" yaml:"frame_size"`     // Samples per energy frame
	History     int           `json:"history" yaml:"history"`           // Frames averaged into the reference level
	RiseRatio   float64       `json:"rise_ratio" yaml:"rise_ratio"`     // Frame level over reference that marks an attack
	MinRMS      float64       `json:"min_rms" yaml:"min_rms"`           // Frames quieter than this never mark an attack
	MinInterval time.Duration `json:"min_interval" yaml:"min_interval"` // Minimum spacing between onsets
}

// DefaultOnsetParams returns settings for struck or plucked notes:
// 512-sample frames against a four-frame reference, a rise of about 3.5 dB,
// and at most one onset per 50ms.
func DefaultOnsetParams() OnsetParams {
	return OnsetParams{
		FrameSize:   512,
		History:     4,
		RiseRatio:   1.5,
		MinRMS:      0.005,
		MinInterval: 50 * time.Millisecond,
	}
}

// OnsetDetector finds note attacks in a sample stream by comparing the
// level of each frame against the average of the frames before it. Input
// may arrive in chunks of any size; frames are cut from the continuous
// stream.
//
// OnsetDetector is not safe for concurrent use.
type OnsetDetector struct {
	params            OnsetParams
	minIntervalFrames int

	pending []float64 // partial frame carried between calls
	history []float64 // ring of recent frame levels
	histPos int
	histLen int
	since   int // frames since the last onset
}

// NewOnsetDetector creates a detector for the given sample rate
func NewOnsetDetector(sampleRate int, params OnsetParams) (*OnsetDetector, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("onset: sample rate must be positive: %d", sampleRate)
	}
	if params.FrameSize < 16 {
		return nil, fmt.Errorf("onset: frame size must be at least 16: %d", params.FrameSize)
	}
	if params.History < 1 {
		return nil, fmt.Errorf("onset: history must be at least 1 frame: %d", params.History)
	}
	if params.RiseRatio <= 1 {
		return nil, fmt.Errorf("onset: rise ratio must be greater than 1: %g", params.RiseRatio)
	}

	// Convert minimum interval to frames
	minIntervalFrames := int(params.MinInterval.Seconds() * float64(sampleRate) / float64(params.FrameSize))

	return &OnsetDetector{
		params:            params,
		minIntervalFrames: minIntervalFrames,
		pending:           make([]float64, 0, params.FrameSize),
		history:           make([]float64, params.History),
		since:             minIntervalFrames, // allow the first onset
	}, nil
}

// Process consumes samples and returns the number of onsets found in them
func (d *OnsetDetector) Process(samples []float64) int {
	onsets := 0
	for len(samples) > 0 {
		n := min(d.params.FrameSize-len(d.pending), len(samples))
		d.pending = append(d.pending, samples[:n]...)
		samples = samples[n:]

		if len(d.pending) == d.params.FrameSize {
			if d.step(common.ACRMS(d.pending)) {
				onsets++
			}
			d.pending = d.pending[:0]
		}
	}
	return onsets
}

// step scores one complete frame
func (d *OnsetDetector) step(level float64) bool {
	var reference float64
	if d.histLen > 0 {
		for i := range d.histLen {
			reference += d.history[i]
		}
		reference /= float64(d.histLen)
	}

	d.since++
	onset := level >= d.params.MinRMS &&
		level >= d.params.RiseRatio*reference &&
		d.since >= d.minIntervalFrames
	if onset {
		d.since = 0
	}

	d.history[d.histPos] = level
	d.histPos = (d.histPos + 1) % len(d.history)
	if d.histLen < len(d.history) {
		d.histLen++
	}
	return onset
}

// Reset forgets all history
func (d *OnsetDetector) Reset() {
	d.pending = d.pending[:0]
	clear(d.history)
	d.histPos = 0
	d.histLen = 0
	d.since = d.minIntervalFrames
}
