package listen

import (
	"fmt"

	"github.com/RyanBlaney/sonido-listen/algorithms/filters"
)

// SignalConditioner band-limits the raw stream before analysis:
// high-pass (rumble) -> low-pass (upper harmonics) -> optional compressor.
// It only attenuates, so the fundamental is never shifted.
type SignalConditioner struct {
	chain *filters.Chain
}

// NewSignalConditioner builds the chain described by preset
func NewSignalConditioner(preset DetectionPreset, sampleRate int) (*SignalConditioner, error) {
	hp, err := filters.NewHighpass(sampleRate, preset.HighPassHz)
	if err != nil {
		return nil, fmt.Errorf("listen: conditioner: %w", err)
	}
	lp, err := filters.NewLowpass(sampleRate, preset.LowPassHz)
	if err != nil {
		return nil, fmt.Errorf("listen: conditioner: %w", err)
	}

	stages := []filters.Processor{hp, lp}
	if preset.Compressor != nil {
		comp, err := filters.NewCompressor(sampleRate, *preset.Compressor)
		if err != nil {
			return nil, fmt.Errorf("listen: conditioner: %w", err)
		}
		stages = append(stages, comp)
	}

	return &SignalConditioner{chain: filters.NewChain(stages...)}, nil
}

// Process conditions buf in place
func (c *SignalConditioner) Process(buf []float64) {
	c.chain.ProcessBuffer(buf)
}

// Stages returns the number of processing stages
func (c *SignalConditioner) Stages() int {
	return c.chain.Len()
}

// Reset clears all filter state
func (c *SignalConditioner) Reset() {
	c.chain.Reset()
}
