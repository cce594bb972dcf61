package common

import (
	"math"
	"testing"
)

func TestRMS(t *testing.T) {
	t.Parallel()

	sine := make([]float64, 48000)
	for i := range sine {
		sine[i] = math.Sin(2 * math.Pi * 440 * float64(i) / 48000)
	}
	constant := make([]float64, 1024)
	for i := range constant {
		constant[i] = 0.5
	}

	tests := []struct {
		name string
		data []float64
		want float64
		tol  float64
	}{
		{name: "empty", data: nil, want: 0, tol: 0},
		{name: "zeros", data: make([]float64, 2048), want: 0, tol: 0},
		{name: "constant half", data: constant, want: 0.5, tol: 1e-12},
		{name: "unit sine", data: sine, want: 1 / math.Sqrt2, tol: 1e-3},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := RMS(tc.data)
			if math.Abs(got-tc.want) > tc.tol {
				t.Errorf("RMS() = %v, want %v (±%v)", got, tc.want, tc.tol)
			}
		})
	}
}

func TestRMS_ZeroBufferIsExactlyZero(t *testing.T) {
	t.Parallel()
	if got := RMS(make([]float64, 4096)); got != 0 {
		t.Fatalf("RMS of zero buffer = %v, want exactly 0", got)
	}
}

func TestEnergyPrefix(t *testing.T) {
	t.Parallel()
	prefix := EnergyPrefix([]float64{1, -2, 3})
	want := []float64{0, 1, 5, 14}
	if len(prefix) != len(want) {
		t.Fatalf("len = %d, want %d", len(prefix), len(want))
	}
	for i := range want {
		if prefix[i] != want[i] {
			t.Errorf("prefix[%d] = %v, want %v", i, prefix[i], want[i])
		}
	}
}

func TestDBFS(t *testing.T) {
	t.Parallel()
	if got := DBFS(1, -120); got != 0 {
		t.Errorf("DBFS(1) = %v, want 0", got)
	}
	if got := DBFS(0, -120); got != -120 {
		t.Errorf("DBFS(0) = %v, want floor", got)
	}
	if got := DBFS(0.1, -120); math.Abs(got+20) > 1e-9 {
		t.Errorf("DBFS(0.1) = %v, want -20", got)
	}
}

func TestNextPowerOf2(t *testing.T) {
	t.Parallel()
	cases := map[int]int{0: 1, 1: 1, 2: 2, 3: 4, 1000: 1024, 4096: 4096, 4097: 8192}
	for in, want := range cases {
		if got := NextPowerOf2(in); got != want {
			t.Errorf("NextPowerOf2(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestParabolicOffset(t *testing.T) {
	t.Parallel()

	// y = -(x - 0.25)^2 sampled at -1, 0, 1 peaks at 0.25
	f := func(x float64) float64 { return -(x - 0.25) * (x - 0.25) }
	if got := ParabolicOffset(f(-1), f(0), f(1)); math.Abs(got-0.25) > 1e-12 {
		t.Errorf("peak offset = %v, want 0.25", got)
	}

	// Minima use the same formula
	g := func(x float64) float64 { return (x + 0.4) * (x + 0.4) }
	if got := ParabolicOffset(g(-1), g(0), g(1)); math.Abs(got+0.4) > 1e-12 {
		t.Errorf("dip offset = %v, want -0.4", got)
	}

	if got := ParabolicOffset(1, 1, 1); got != 0 {
		t.Errorf("flat offset = %v, want 0", got)
	}
}

func TestParabolicPeak_Edges(t *testing.T) {
	t.Parallel()
	data := []float64{3, 2, 1}
	if got := ParabolicPeak(data, 0); got != 0 {
		t.Errorf("ParabolicPeak at 0 = %v, want 0", got)
	}
	if got := ParabolicPeak(data, 2); got != 2 {
		t.Errorf("ParabolicPeak at last = %v, want 2", got)
	}
}

func TestACRMS_IgnoresOffset(t *testing.T) {
	t.Parallel()

	const n = 4410
	sine := make([]float64, n)
	biased := make([]float64, n)
	for i := range sine {
		sine[i] = 0.5 * math.Sin(2*math.Pi*100*float64(i)/44100)
		biased[i] = sine[i] + 0.3
	}

	if got, want := ACRMS(biased), ACRMS(sine); math.Abs(got-want) > 1e-9 {
		t.Errorf("ACRMS with offset = %v, without = %v", got, want)
	}
	if got := ACRMS(sine); math.Abs(got-0.5/math.Sqrt2) > 1e-3 {
		t.Errorf("ACRMS(sine) = %v, want ~%v", got, 0.5/math.Sqrt2)
	}
	if got := ACRMS([]float64{0.7}); got != 0 {
		t.Errorf("ACRMS of one sample = %v, want 0", got)
	}
}
