package tonal

import (
	"github.com/RyanBlaney/sonido-listen/algorithms/common"
	"github.com/RyanBlaney/sonido-listen/algorithms/stats"
)

// YinEstimator implements the YIN fundamental frequency estimator.
//
// Reference: de Cheveigné, A., Kawahara, H. (2002). "YIN, a fundamental
// frequency estimator for speech and music"
//
// The difference function over a window of W = n/2 samples is expanded as
//
//	d(τ) = Σ x[j]² + Σ x[j+τ]² - 2·Σ x[j]·x[j+τ]
//
// so the energy terms come from a prefix sum and the cross term from one FFT
// cross-correlation, instead of the O(n²) direct sum.
type YinEstimator struct {
	params PitchDetectionParams
}

// Estimate implements PitchEstimator
func (e *YinEstimator) Estimate(samples []float64, sampleRate int) (PitchEstimate, error) {
	n := len(samples)
	window := n / 2
	minTau, maxTau, err := lagWindow(sampleRate, n-window-1, e.params.MinFreq, e.params.MaxFreq)
	if err != nil {
		return PitchEstimate{}, err
	}

	cross, err := stats.NewCrossCorrelation(maxTau+1).Compute(samples[:window], samples)
	if err != nil {
		return PitchEstimate{}, err
	}
	prefix := common.EnergyPrefix(samples)

	// Cumulative mean normalized difference function
	cmndf := make([]float64, maxTau+2)
	cmndf[0] = 1.0
	head := prefix[window]
	runningSum := 0.0
	for tau := 1; tau < len(cmndf); tau++ {
		d := head + (prefix[tau+window] - prefix[tau]) - 2*cross[tau]
		if d < 0 {
			d = 0
		}
		runningSum += d
		if runningSum <= 0 {
			cmndf[tau] = 1.0
			continue
		}
		cmndf[tau] = d * float64(tau) / runningSum
	}

	// First dip below threshold, followed down to its local minimum
	found := -1
	for tau := minTau; tau <= maxTau; tau++ {
		if cmndf[tau] < e.params.YinThreshold {
			for tau < maxTau && cmndf[tau+1] < cmndf[tau] {
				tau++
			}
			found = tau
			break
		}
	}
	if found < 0 {
		return PitchEstimate{}, nil
	}

	period := common.ParabolicPeak(cmndf, found)
	if period <= 0 {
		return PitchEstimate{}, nil
	}

	frequency := float64(sampleRate) / period
	if !e.params.inRange(frequency) {
		return PitchEstimate{}, nil
	}

	return PitchEstimate{
		Frequency:  frequency,
		Confidence: common.Clamp(1.0-cmndf[found], 0, 1),
	}, nil
}
