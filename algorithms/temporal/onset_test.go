package temporal

import (
	"math"
	"testing"
	"time"
)

const testRate = 44100

// struckTone renders a harmonic tone re-struck every interval, each strike
// decaying exponentially at decay per second
func struckTone(freq float64, strikes int, interval time.Duration, decay float64) []float64 {
	per := int(interval.Seconds() * testRate)
	out := make([]float64, strikes*per)
	for i := range out {
		t := float64(i%per) / testRate
		env := 0.4 * math.Exp(-decay*t)
		phase := 2 * math.Pi * freq * t
		out[i] = env * (math.Sin(phase) + 0.5*math.Sin(2*phase) + 0.25*math.Sin(3*phase))
	}
	return out
}

func feedChunks(t *testing.T, d *OnsetDetector, samples []float64, chunk int) int {
	t.Helper()
	total := 0
	for start := 0; start < len(samples); start += chunk {
		total += d.Process(samples[start:min(start+chunk, len(samples))])
	}
	return total
}

func TestOnsetDetector_CountsStrikes(t *testing.T) {
	t.Parallel()

	sustained := make([]float64, 3*testRate)
	for i := range sustained {
		sustained[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/testRate)
	}
	quiet := make([]float64, testRate)
	for i := range quiet {
		quiet[i] = 0.001 * math.Sin(2*math.Pi*440*float64(i)/testRate)
	}

	tests := []struct {
		name    string
		samples []float64
		chunk   int
		want    int
	}{
		{name: "silence", samples: make([]float64, testRate), chunk: 705, want: 0},
		{name: "below floor", samples: quiet, chunk: 705, want: 0},
		{name: "steady tone attacks once", samples: sustained, chunk: 705, want: 1},
		{name: "four strikes while ringing", samples: struckTone(261.63, 4, 800*time.Millisecond, 1), chunk: 705, want: 4},
		{name: "fast repeats", samples: struckTone(440, 6, 250*time.Millisecond, 3), chunk: 705, want: 6},
		{name: "chunking does not matter", samples: struckTone(261.63, 4, 800*time.Millisecond, 1), chunk: 37, want: 4},
		{name: "single call", samples: struckTone(261.63, 4, 800*time.Millisecond, 1), chunk: 4 * testRate, want: 4},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			d, err := NewOnsetDetector(testRate, DefaultOnsetParams())
			if err != nil {
				t.Fatalf("NewOnsetDetector: %v", err)
			}
			if got := feedChunks(t, d, tc.samples, tc.chunk); got != tc.want {
				t.Errorf("onsets = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestOnsetDetector_Reset(t *testing.T) {
	t.Parallel()
	d, err := NewOnsetDetector(testRate, DefaultOnsetParams())
	if err != nil {
		t.Fatalf("NewOnsetDetector: %v", err)
	}
	tone := struckTone(440, 1, time.Second, 0)
	if got := d.Process(tone); got != 1 {
		t.Fatalf("first pass onsets = %d, want 1", got)
	}
	if got := d.Process(tone); got != 0 {
		t.Fatalf("continuing tone onsets = %d, want 0", got)
	}
	d.Reset()
	if got := d.Process(tone); got != 1 {
		t.Errorf("onsets after Reset = %d, want 1", got)
	}
}

func TestNewOnsetDetector_RejectsBadParameters(t *testing.T) {
	t.Parallel()
	mutate := []func(*OnsetParams){
		func(p *OnsetParams) { p.FrameSize = 8 },
		func(p *OnsetParams) { p.History = 0 },
		func(p *OnsetParams) { p.RiseRatio = 1 },
	}
	for i, m := range mutate {
		p := DefaultOnsetParams()
		m(&p)
		if _, err := NewOnsetDetector(testRate, p); err == nil {
			t.Errorf("case %d: expected error for %+v", i, p)
		}
	}
	if _, err := NewOnsetDetector(0, DefaultOnsetParams()); err == nil {
		t.Error("expected error for zero sample rate")
	}
}
