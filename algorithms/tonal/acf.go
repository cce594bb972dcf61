package tonal

import (
	"math"

	"github.com/RyanBlaney/sonido-listen/algorithms/common"
	"github.com/RyanBlaney/sonido-listen/algorithms/stats"
)

// ACFEstimator detects pitch from the autocorrelation function.
//
// Reference: Rabiner, L.R. (1977). "On the use of autocorrelation analysis
// for pitch detection"
//
// The lag-0 lobe is skipped up to its first local minimum. Among the
// remaining local maxima in the valid lag window, the earliest one whose
// normalized correlation reaches PeakRatio of the best is chosen, which keeps
// subharmonic peaks at 2T, 3T from winning on sustained tones.
type ACFEstimator struct {
	params PitchDetectionParams
}

// Estimate implements PitchEstimator
func (e *ACFEstimator) Estimate(samples []float64, sampleRate int) (PitchEstimate, error) {
	n := len(samples)
	minLag, maxLag, err := lagWindow(sampleRate, n/2, e.params.MinFreq, e.params.MaxFreq)
	if err != nil {
		return PitchEstimate{}, err
	}

	r, err := stats.NewAutoCorrelation(maxLag + 1).Compute(samples)
	if err != nil {
		return PitchEstimate{}, err
	}
	if r[0] <= 0 {
		return PitchEstimate{}, nil
	}

	prefix := common.EnergyPrefix(samples)
	normalized := func(lag int) float64 {
		head := prefix[n-lag]
		tail := prefix[n] - prefix[lag]
		if head <= 0 || tail <= 0 {
			return 0
		}
		return r[lag] / math.Sqrt(head*tail)
	}

	// Skip the lag-0 lobe
	start := 1
	for start < maxLag && r[start+1] <= r[start] {
		start++
	}
	start = max(start, minLag)

	type peak struct {
		lag   int
		value float64
	}
	var peaks []peak
	best := 0.0
	for lag := start; lag <= maxLag; lag++ {
		if r[lag] > r[lag-1] && r[lag] >= r[lag+1] {
			v := normalized(lag)
			if v <= 0 {
				continue
			}
			peaks = append(peaks, peak{lag: lag, value: v})
			best = math.Max(best, v)
		}
	}
	if len(peaks) == 0 {
		return PitchEstimate{}, nil
	}

	chosen := peaks[0]
	for _, p := range peaks {
		if p.value >= e.params.PeakRatio*best {
			chosen = p
			break
		}
	}

	period := common.ParabolicPeak(r, chosen.lag)
	if period <= 0 {
		return PitchEstimate{}, nil
	}

	frequency := float64(sampleRate) / period
	if !e.params.inRange(frequency) {
		return PitchEstimate{}, nil
	}

	return PitchEstimate{
		Frequency:  frequency,
		Confidence: common.Clamp(chosen.value, 0, 1),
	}, nil
}
