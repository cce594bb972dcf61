package listen

import "github.com/RyanBlaney/sonido-listen/algorithms/common"

// AudioFrame is one analysis block copied out of the analyser ring
type AudioFrame struct {
	Samples    []float64
	SampleRate int
}

// RMS returns the root mean square level of the frame
func (f AudioFrame) RMS() float64 {
	return common.RMS(f.Samples)
}
