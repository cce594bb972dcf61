package tonal

import (
	"math"
	"math/rand/v2"
	"testing"
)

const testSampleRate = 44100

func sineFrame(freq, amp float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/testSampleRate)
	}
	return out
}

// pianoLikeFrame adds decaying overtones to a fundamental
func pianoLikeFrame(freq float64, n int) []float64 {
	out := make([]float64, n)
	gains := []float64{1, 0.6, 0.4, 0.25, 0.15}
	for i := range out {
		t := float64(i) / testSampleRate
		for h, g := range gains {
			out[i] += 0.2 * g * math.Sin(2*math.Pi*freq*float64(h+1)*t+float64(h))
		}
	}
	return out
}

func noiseFrame(n int, seed uint64) []float64 {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b9))
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.Float64()*2 - 1
	}
	return out
}

func newEstimator(t *testing.T, method PitchDetectionMethod) PitchEstimator {
	t.Helper()
	params := DefaultPitchDetectionParams()
	params.Method = method
	est, err := NewPitchEstimator(params)
	if err != nil {
		t.Fatalf("NewPitchEstimator(%v): %v", method, err)
	}
	return est
}

func semitonesApart(a, b float64) float64 {
	return math.Abs(12 * math.Log2(a/b))
}

func TestEstimate_SineWithinSemitone(t *testing.T) {
	t.Parallel()
	freqs := []float64{55, 82.41, 220, 261.63, 440, 880, 1760, 3520}
	for _, method := range []PitchDetectionMethod{AutocorrelationACF, AutocorrelationYin} {
		for _, freq := range freqs {
			est := newEstimator(t, method)
			got, err := est.Estimate(sineFrame(freq, 0.5, 4096), testSampleRate)
			if err != nil {
				t.Fatalf("%v Estimate(%v Hz): %v", method, freq, err)
			}
			if !got.HasPitch() {
				t.Errorf("%v Estimate(%v Hz): no pitch", method, freq)
				continue
			}
			if d := semitonesApart(got.Frequency, freq); d > 0.5 {
				t.Errorf("%v Estimate(%v Hz) = %.2f Hz (%.2f semitones off)", method, freq, got.Frequency, d)
			}
			if got.Confidence < 0.8 || got.Confidence > 1 {
				t.Errorf("%v Estimate(%v Hz) confidence = %v, want >= 0.8", method, freq, got.Confidence)
			}
		}
	}
}

func TestEstimate_HarmonicToneFindsFundamental(t *testing.T) {
	t.Parallel()
	for _, method := range []PitchDetectionMethod{AutocorrelationACF, AutocorrelationYin} {
		for _, freq := range []float64{130.81, 196, 440} {
			got, err := newEstimator(t, method).Estimate(pianoLikeFrame(freq, 8192), testSampleRate)
			if err != nil {
				t.Fatalf("%v Estimate: %v", method, err)
			}
			if !got.HasPitch() || semitonesApart(got.Frequency, freq) > 0.5 {
				t.Errorf("%v Estimate(harmonic %v Hz) = %+v", method, freq, got)
			}
		}
	}
}

func TestEstimate_SilenceHasNoPitch(t *testing.T) {
	t.Parallel()
	for _, method := range []PitchDetectionMethod{AutocorrelationACF, AutocorrelationYin} {
		got, err := newEstimator(t, method).Estimate(make([]float64, 2048), testSampleRate)
		if err != nil {
			t.Fatalf("%v Estimate(silence): %v", method, err)
		}
		if got.HasPitch() {
			t.Errorf("%v Estimate(silence) = %+v, want no pitch", method, got)
		}
	}
}

func TestEstimate_NoiseHasLowConfidence(t *testing.T) {
	t.Parallel()
	for _, method := range []PitchDetectionMethod{AutocorrelationACF, AutocorrelationYin} {
		for seed := uint64(1); seed <= 5; seed++ {
			got, err := newEstimator(t, method).Estimate(noiseFrame(4096, seed), testSampleRate)
			if err != nil {
				t.Fatalf("%v Estimate(noise): %v", method, err)
			}
			if got.HasPitch() && got.Confidence >= 0.5 {
				t.Errorf("%v Estimate(noise seed %d) = %+v, want confidence < 0.5", method, seed, got)
			}
		}
	}
}

func TestEstimate_MalformedInput(t *testing.T) {
	t.Parallel()
	for _, method := range []PitchDetectionMethod{AutocorrelationACF, AutocorrelationYin} {
		est := newEstimator(t, method)
		if _, err := est.Estimate(make([]float64, 16), testSampleRate); err == nil {
			t.Errorf("%v: expected error for short frame", method)
		}
		if _, err := est.Estimate(sineFrame(440, 0.5, 2048), 0); err == nil {
			t.Errorf("%v: expected error for zero sample rate", method)
		}
	}
}

func TestNewPitchEstimator_Validation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*PitchDetectionParams)
	}{
		{name: "inverted range", mutate: func(p *PitchDetectionParams) { p.MinFreq, p.MaxFreq = 500, 100 }},
		{name: "yin threshold", mutate: func(p *PitchDetectionParams) { p.Method = AutocorrelationYin; p.YinThreshold = 0 }},
		{name: "peak ratio", mutate: func(p *PitchDetectionParams) { p.Method = AutocorrelationACF; p.PeakRatio = 1.5 }},
		{name: "unknown method", mutate: func(p *PitchDetectionParams) { p.Method = PitchDetectionMethod(42) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := DefaultPitchDetectionParams()
			tc.mutate(&p)
			if _, err := NewPitchEstimator(p); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestParsePitchDetectionMethod(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]PitchDetectionMethod{"acf": AutocorrelationACF, " YIN ": AutocorrelationYin} {
		got, err := ParsePitchDetectionMethod(in)
		if err != nil || got != want {
			t.Errorf("ParsePitchDetectionMethod(%q) = %v, %v; want %v", in, got, err, want)
		}
		if got.String() != want.String() {
			t.Errorf("String() = %q", got.String())
		}
	}
	if _, err := ParsePitchDetectionMethod("hps"); err == nil {
		t.Error("expected error for unsupported method")
	}
}
