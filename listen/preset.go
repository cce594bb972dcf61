package listen

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-listen/algorithms/filters"
	"github.com/RyanBlaney/sonido-listen/algorithms/tonal"
)

// Built-in preset names
const (
	PresetStrict = "strict"
	PresetNormal = "normal"
	PresetPiano  = "piano"
)

// DetectionPreset bundles every tunable threshold of the pipeline.
// The numbers in the built-in presets were chosen empirically and may be
// overridden through configuration.
type DetectionPreset struct {
	Name string

	// Analysis
	BlockSize     int                        // samples per analysis frame
	Method        tonal.PitchDetectionMethod // estimator strategy
	YinThreshold  float64                    // YIN absolute threshold
	MinConfidence float64                    // estimates below this are discarded
	MinRMS        float64                    // frames below this level are not analysed
	SnapTolerance float64                    // max semitone distance to a natural note

	// Conditioning
	HighPassHz float64
	LowPassHz  float64
	Compressor *filters.CompressorParams // nil disables compression

	// Stability gate
	StabilityFrames  int
	AnyNoteCooldown  time.Duration
	SameNoteCooldown time.Duration
	SilenceFrames    int
}

// StrictPreset minimizes false triggers
func StrictPreset() DetectionPreset {
	return DetectionPreset{
		Name:             PresetStrict,
		BlockSize:        2048,
		Method:           tonal.AutocorrelationACF,
		YinThreshold:     0.15,
		MinConfidence:    0.9,
		MinRMS:           0.02,
		SnapTolerance:    0.35,
		HighPassHz:       80,
		LowPassHz:        2000,
		StabilityFrames:  3,
		AnyNoteCooldown:  80 * time.Millisecond,
		SameNoteCooldown: 1500 * time.Millisecond,
		SilenceFrames:    4,
	}
}

// NormalPreset balances responsiveness and false-positive risk
func NormalPreset() DetectionPreset {
	return DetectionPreset{
		Name:             PresetNormal,
		BlockSize:        4096,
		Method:           tonal.AutocorrelationACF,
		YinThreshold:     0.15,
		MinConfidence:    0.8,
		MinRMS:           0.01,
		SnapTolerance:    0.45,
		HighPassHz:       60,
		LowPassHz:        2500,
		StabilityFrames:  2,
		AnyNoteCooldown:  60 * time.Millisecond,
		SameNoteCooldown: 700 * time.Millisecond,
		SilenceFrames:    3,
	}
}

// PianoPreset targets quiet acoustic pianos with strong overtones and fast decay
func PianoPreset() DetectionPreset {
	comp := filters.DefaultCompressorParams()
	return DetectionPreset{
		Name:             PresetPiano,
		BlockSize:        8192,
		Method:           tonal.AutocorrelationYin,
		YinThreshold:     0.2,
		MinConfidence:    0.6,
		MinRMS:           0.005,
		SnapTolerance:    0.55,
		HighPassHz:       40,
		LowPassHz:        3000,
		Compressor:       &comp,
		StabilityFrames:  1,
		AnyNoteCooldown:  40 * time.Millisecond,
		SameNoteCooldown: 450 * time.Millisecond,
		SilenceFrames:    2,
	}
}

var builtinPresets = map[string]func() DetectionPreset{
	PresetStrict: StrictPreset,
	PresetNormal: NormalPreset,
	PresetPiano:  PianoPreset,
}

// PresetByName returns a copy of a built-in preset
func PresetByName(name string) (DetectionPreset, error) {
	ctor, ok := builtinPresets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return DetectionPreset{}, fmt.Errorf("listen: unknown preset %q (want one of %s)", name, strings.Join(PresetNames(), ", "))
	}
	return ctor(), nil
}

// PresetNames lists the built-in preset names in sorted order
func PresetNames() []string {
	names := make([]string, 0, len(builtinPresets))
	for name := range builtinPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the preset for values the pipeline cannot run with.
// All problems are reported together.
func (p DetectionPreset) Validate() error {
	var errs []error

	if p.BlockSize < 256 {
		errs = append(errs, fmt.Errorf("block size must be at least 256, got %d", p.BlockSize))
	}
	switch p.Method {
	case tonal.AutocorrelationACF:
	case tonal.AutocorrelationYin:
		if p.YinThreshold <= 0 || p.YinThreshold >= 1 {
			errs = append(errs, fmt.Errorf("yin threshold must be in (0, 1), got %g", p.YinThreshold))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown pitch detection method %d", p.Method))
	}
	if p.MinConfidence < 0 || p.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("min confidence must be in [0, 1], got %g", p.MinConfidence))
	}
	if p.MinRMS <= 0 {
		errs = append(errs, fmt.Errorf("min rms must be positive, got %g", p.MinRMS))
	}
	if p.SnapTolerance <= 0 || p.SnapTolerance > 1 {
		errs = append(errs, fmt.Errorf("snap tolerance must be in (0, 1] semitones, got %g", p.SnapTolerance))
	}
	if p.HighPassHz <= 0 || p.LowPassHz <= p.HighPassHz {
		errs = append(errs, fmt.Errorf("filter band [%g, %g] Hz is empty", p.HighPassHz, p.LowPassHz))
	}
	if p.Compressor != nil {
		if err := p.Compressor.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.StabilityFrames < 1 {
		errs = append(errs, fmt.Errorf("stability frames must be at least 1, got %d", p.StabilityFrames))
	}
	if p.SilenceFrames < 1 {
		errs = append(errs, fmt.Errorf("silence frames must be at least 1, got %d", p.SilenceFrames))
	}
	if p.AnyNoteCooldown < 0 || p.SameNoteCooldown < 0 {
		errs = append(errs, errors.New("cooldowns must not be negative"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("listen: invalid preset %q: %w", p.Name, err)
	}
	return nil
}

// EstimatorParams returns the pitch detection parameters for this preset
func (p DetectionPreset) EstimatorParams() tonal.PitchDetectionParams {
	params := tonal.DefaultPitchDetectionParams()
	params.Method = p.Method
	params.YinThreshold = p.YinThreshold
	return params
}

// GateConfig returns the stability gate settings for this preset
func (p DetectionPreset) GateConfig() GateConfig {
	return GateConfig{
		StabilityFrames:  p.StabilityFrames,
		AnyNoteCooldown:  p.AnyNoteCooldown,
		SameNoteCooldown: p.SameNoteCooldown,
		SilenceFrames:    p.SilenceFrames,
		MinRMS:           p.MinRMS,
	}
}
