package tonal

import (
	"fmt"
	"math"
	"strings"
)

// PitchDetectionMethod represents different pitch detection algorithms
type PitchDetectionMethod int

const (
	// AutocorrelationYin uses the cumulative mean normalized difference (YIN)
	AutocorrelationYin PitchDetectionMethod = iota
	// AutocorrelationACF picks the strongest autocorrelation peak
	AutocorrelationACF
)

// String returns the short method name used in configuration
func (m PitchDetectionMethod) String() string {
	switch m {
	case AutocorrelationYin:
		return "yin"
	case AutocorrelationACF:
		return "acf"
	default:
		return "unknown"
	}
}

// ParsePitchDetectionMethod parses a configuration name ("acf" or "yin")
func ParsePitchDetectionMethod(name string) (PitchDetectionMethod, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "yin":
		return AutocorrelationYin, nil
	case "acf", "autocorrelation":
		return AutocorrelationACF, nil
	default:
		return 0, fmt.Errorf("tonal: unknown pitch detection method %q", name)
	}
}

// PitchEstimate is the result of analysing one frame.
// A zero Frequency means no reliable periodicity was found.
type PitchEstimate struct {
	Frequency  float64 `json:"frequency"`  // Fundamental frequency in Hz
	Confidence float64 `json:"confidence"` // Periodicity strength (0-1)
}

// HasPitch reports whether the estimate carries a frequency
func (e PitchEstimate) HasPitch() bool {
	return e.Frequency > 0
}

// PitchEstimator estimates the fundamental frequency of a block of samples.
// Errors are reserved for malformed input; a frame without pitch is not an error.
type PitchEstimator interface {
	Estimate(samples []float64, sampleRate int) (PitchEstimate, error)
}

// PitchDetectionParams contains parameters for pitch detection
type PitchDetectionParams struct {
	Method PitchDetectionMethod `json:"method"`

	// Frequency range constraints
	MinFreq float64 `json:"min_freq"` // Minimum frequency (Hz)
	MaxFreq float64 `json:"max_freq"` // Maximum frequency (Hz)

	// Algorithm-specific parameters
	YinThreshold float64 `json:"yin_threshold"` // YIN absolute threshold (0.1-0.5)
	PeakRatio    float64 `json:"peak_ratio"`    // ACF: earliest peak within this ratio of the best wins
}

// DefaultPitchDetectionParams returns parameters covering the piano range
func DefaultPitchDetectionParams() PitchDetectionParams {
	return PitchDetectionParams{
		Method:       AutocorrelationACF,
		MinFreq:      MinFrequency,
		MaxFreq:      MaxFrequency,
		YinThreshold: 0.2,
		PeakRatio:    0.9,
	}
}

// NewPitchEstimator returns the estimator for params.Method
func NewPitchEstimator(params PitchDetectionParams) (PitchEstimator, error) {
	if params.MinFreq <= 0 || params.MaxFreq <= params.MinFreq {
		return nil, fmt.Errorf("tonal: invalid frequency range [%g, %g]", params.MinFreq, params.MaxFreq)
	}

	switch params.Method {
	case AutocorrelationACF:
		if params.PeakRatio <= 0 || params.PeakRatio > 1 {
			return nil, fmt.Errorf("tonal: peak ratio must be in (0, 1]: %g", params.PeakRatio)
		}
		return &ACFEstimator{params: params}, nil
	case AutocorrelationYin:
		if params.YinThreshold <= 0 || params.YinThreshold >= 1 {
			return nil, fmt.Errorf("tonal: YIN threshold must be in (0, 1): %g", params.YinThreshold)
		}
		return &YinEstimator{params: params}, nil
	default:
		return nil, fmt.Errorf("tonal: unsupported pitch detection method %d", params.Method)
	}
}

// lagWindow converts a frequency range into the period range (in samples)
// that can be searched in a frame of n samples. maxLag is capped at limit so
// callers can keep one extra lag available for interpolation.
func lagWindow(sampleRate, limit int, minFreq, maxFreq float64) (minLag, maxLag int, err error) {
	if sampleRate <= 0 {
		return 0, 0, fmt.Errorf("tonal: sample rate must be positive: %d", sampleRate)
	}

	minLag = max(2, int(math.Floor(float64(sampleRate)/maxFreq)))
	maxLag = min(int(math.Ceil(float64(sampleRate)/minFreq))+1, limit)

	if maxLag-minLag < 2 {
		return 0, 0, fmt.Errorf("tonal: frame too short for %.0f Hz at %d Hz sample rate", maxFreq, sampleRate)
	}
	return minLag, maxLag, nil
}

// inRange reports whether f lies inside the configured detection range
func (p PitchDetectionParams) inRange(f float64) bool {
	return !math.IsNaN(f) && f >= p.MinFreq && f <= p.MaxFreq
}
