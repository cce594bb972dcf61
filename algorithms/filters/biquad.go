package filters

import (
	"fmt"
	"math"
)

// BiquadType selects the response of a Biquad section
type BiquadType int

const (
	// Lowpass passes frequencies below the cutoff
	Lowpass BiquadType = iota
	// Highpass passes frequencies above the cutoff
	Highpass
)

func (t BiquadType) String() string {
	switch t {
	case Lowpass:
		return "lowpass"
	case Highpass:
		return "highpass"
	default:
		return "unknown"
	}
}

// ButterworthQ is the quality factor of a maximally flat second-order section
const ButterworthQ = math.Sqrt2 / 2

// Biquad implements a second-order IIR section.
//
// Coefficients follow Robert Bristow-Johnson's
// "Cookbook formulae for audio EQ biquad filter coefficients"
// Reference: https://webaudio.github.io/Audio-EQ-Cookbook/audio-eq-cookbook.html
type Biquad struct {
	kind       BiquadType
	sampleRate int
	freq       float64 // cutoff frequency in Hz
	qFactor    float64

	// Normalized coefficients (a0 == 1)
	b0, b1, b2 float64
	a1, a2     float64

	// Direct Form II transposed state
	z1, z2 float64
}

// NewBiquad creates a filter section of the given type.
//
// Parameters:
//   - sampleRate: Sample rate in Hz
//   - freq: Cutoff frequency in Hz
//   - qFactor: Quality factor; use ButterworthQ for a flat passband
func NewBiquad(kind BiquadType, sampleRate int, freq, qFactor float64) (*Biquad, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("biquad: sample rate must be positive: %d", sampleRate)
	}
	if freq <= 0 || freq >= float64(sampleRate)/2 {
		return nil, fmt.Errorf("biquad: %s frequency %.1f Hz must be between 0 and Nyquist (%d Hz)", kind, freq, sampleRate/2)
	}
	if qFactor <= 0 {
		return nil, fmt.Errorf("biquad: Q must be positive: %g", qFactor)
	}

	bq := &Biquad{
		kind:       kind,
		sampleRate: sampleRate,
		freq:       freq,
		qFactor:    qFactor,
	}
	bq.computeCoefficients()
	return bq, nil
}

// NewHighpass creates a Butterworth high-pass section
func NewHighpass(sampleRate int, cutoff float64) (*Biquad, error) {
	return NewBiquad(Highpass, sampleRate, cutoff, ButterworthQ)
}

// NewLowpass creates a Butterworth low-pass section
func NewLowpass(sampleRate int, cutoff float64) (*Biquad, error) {
	return NewBiquad(Lowpass, sampleRate, cutoff, ButterworthQ)
}

// computeCoefficients calculates the biquad coefficients using the cookbook formula.
func (bq *Biquad) computeCoefficients() {
	// w0 = 2*pi*f0/Fs
	w0 := 2.0 * math.Pi * bq.freq / float64(bq.sampleRate)
	cosW0 := math.Cos(w0)
	alpha := math.Sin(w0) / (2.0 * bq.qFactor)

	var b0, b1, b2 float64
	switch bq.kind {
	case Lowpass:
		b0 = (1 - cosW0) / 2
		b1 = 1 - cosW0
		b2 = (1 - cosW0) / 2
	case Highpass:
		b0 = (1 + cosW0) / 2
		b1 = -(1 + cosW0)
		b2 = (1 + cosW0) / 2
	}

	a0 := 1 + alpha
	bq.b0 = b0 / a0
	bq.b1 = b1 / a0
	bq.b2 = b2 / a0
	bq.a1 = -2 * cosW0 / a0
	bq.a2 = (1 - alpha) / a0
}

// Process filters a single sample.
//
// The difference equation is:
// y[n] = b0*x[n] + b1*x[n-1] + b2*x[n-2] - a1*y[n-1] - a2*y[n-2]
func (bq *Biquad) Process(input float64) float64 {
	output := bq.b0*input + bq.z1
	bq.z1 = bq.b1*input - bq.a1*output + bq.z2
	bq.z2 = bq.b2*input - bq.a2*output
	return output
}

// ProcessBuffer filters buf in place.
func (bq *Biquad) ProcessBuffer(buf []float64) {
	for i, sample := range buf {
		buf[i] = bq.Process(sample)
	}
}

// Reset clears the filter's internal state.
// Call this when processing discontinuous audio segments.
func (bq *Biquad) Reset() {
	bq.z1, bq.z2 = 0, 0
}

// Magnitude returns the linear magnitude response at the given frequency.
//
// H(e^jw) = (b0 + b1*e^-jw + b2*e^-j2w) / (1 + a1*e^-jw + a2*e^-j2w)
func (bq *Biquad) Magnitude(frequency float64) float64 {
	w := 2.0 * math.Pi * frequency / float64(bq.sampleRate)
	cosW, sinW := math.Cos(w), math.Sin(w)
	cos2W, sin2W := math.Cos(2*w), math.Sin(2*w)

	numReal := bq.b0 + bq.b1*cosW + bq.b2*cos2W
	numImag := -bq.b1*sinW - bq.b2*sin2W
	denReal := 1 + bq.a1*cosW + bq.a2*cos2W
	denImag := -bq.a1*sinW - bq.a2*sin2W

	return math.Sqrt((numReal*numReal + numImag*numImag) / (denReal*denReal + denImag*denImag))
}
