package stats

import (
	"fmt"

	"github.com/RyanBlaney/sonido-listen/algorithms/common"
	"github.com/RyanBlaney/sonido-listen/algorithms/spectral"
)

// AutoCorrelation computes the (biased) auto-correlation of a signal through
// the Wiener-Khinchin theorem:
//
//	r[τ] = Σ_{j=0}^{N-1-τ} x[j]·x[j+τ]
//
// The signal is zero-padded to at least twice its length so the circular
// correlation of the FFT equals the linear one for every returned lag.
type AutoCorrelation struct {
	maxLag int
	fft    *spectral.FFT
}

// NewAutoCorrelation creates a new auto-correlation calculator returning
// lags 0..maxLag inclusive
func NewAutoCorrelation(maxLag int) *AutoCorrelation {
	return &AutoCorrelation{
		maxLag: maxLag,
		fft:    spectral.NewFFT(),
	}
}

// Compute calculates auto-correlation of a signal for lags 0..maxLag.
// Lags beyond the signal length are clipped.
func (ac *AutoCorrelation) Compute(signal []float64) ([]float64, error) {
	n := len(signal)
	if n == 0 {
		return nil, fmt.Errorf("autocorrelation: empty signal")
	}
	if ac.maxLag < 0 {
		return nil, fmt.Errorf("autocorrelation: negative max lag %d", ac.maxLag)
	}

	size := common.NextPowerOf2(2 * n)
	padded := make([]float64, size)
	copy(padded, signal)

	spectrum := ac.fft.Compute(padded)
	spectral.PowerSpectrum(spectrum)
	circular := ac.fft.ComputeInverseReal(spectrum)

	lags := min(ac.maxLag, n-1) + 1
	result := make([]float64, lags)
	copy(result, circular[:lags])
	return result, nil
}

// CrossCorrelation correlates a short template against a longer signal:
//
//	c[τ] = Σ_{j=0}^{M-1} a[j]·x[j+τ]   for τ in [0, maxLag]
//
// where M = len(a). Only lags where the template fits entirely inside the
// signal (τ <= len(x)-M) are returned.
type CrossCorrelation struct {
	maxLag int
	fft    *spectral.FFT
}

// NewCrossCorrelation creates a cross-correlation calculator for lags 0..maxLag
func NewCrossCorrelation(maxLag int) *CrossCorrelation {
	return &CrossCorrelation{
		maxLag: maxLag,
		fft:    spectral.NewFFT(),
	}
}

// Compute correlates template against signal
func (cc *CrossCorrelation) Compute(template, signal []float64) ([]float64, error) {
	m, n := len(template), len(signal)
	if m == 0 || n == 0 {
		return nil, fmt.Errorf("cross-correlation: empty input")
	}
	if m > n {
		return nil, fmt.Errorf("cross-correlation: template (%d) longer than signal (%d)", m, n)
	}

	size := common.NextPowerOf2(n + m)
	a := make([]float64, size)
	x := make([]float64, size)
	copy(a, template)
	copy(x, signal)

	fa := cc.fft.Compute(a)
	fx := cc.fft.Compute(x)

	// conj(A)·X transforms back to the correlation of a against x
	for i := range fx {
		re, im := real(fa[i]), -imag(fa[i])
		fx[i] = complex(re*real(fx[i])-im*imag(fx[i]), re*imag(fx[i])+im*real(fx[i]))
	}
	circular := cc.fft.ComputeInverseReal(fx)

	lags := min(cc.maxLag, n-m) + 1
	result := make([]float64, lags)
	copy(result, circular[:lags])
	return result, nil
}
