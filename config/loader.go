package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/sonido-listen/algorithms/tonal"
	"github.com/RyanBlaney/sonido-listen/listen"
	"github.com/RyanBlaney/sonido-listen/logging"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r over [Default] and validates the result.
// Unknown keys are rejected. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	presets, err := normalizePresets(cfg.Presets)
	if err != nil {
		return nil, err
	}
	cfg.Presets = presets
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if _, err := listen.PresetByName(cfg.Preset); err != nil {
		errs = append(errs, fmt.Errorf("preset: %w", err))
	}
	if cfg.Session.FrameInterval < 0 {
		errs = append(errs, fmt.Errorf("session.frame_interval must not be negative, got %v", cfg.Session.FrameInterval))
	}
	if cfg.Replay.ChunkSize < 0 {
		errs = append(errs, fmt.Errorf("replay.chunk_size must not be negative, got %d", cfg.Replay.ChunkSize))
	}
	if err := cfg.Replay.Decoder.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("replay: %w", err))
	}

	for name := range cfg.Presets {
		if name != presetKey(name) {
			errs = append(errs, fmt.Errorf("presets.%s: preset names must be lowercase", name))
			continue
		}
		if _, err := resolve(name, cfg.Presets); err != nil {
			errs = append(errs, fmt.Errorf("presets.%s: %w", name, err))
		}
	}

	return errors.Join(errs...)
}

// ResolvePreset returns the selected built-in preset with any configured
// overrides applied
func (c *Config) ResolvePreset() (listen.DetectionPreset, error) {
	return c.PresetNamed(c.Preset)
}

// PresetNamed resolves a preset by name, e.g. one chosen on the command line
func (c *Config) PresetNamed(name string) (listen.DetectionPreset, error) {
	p, err := resolve(name, c.Presets)
	if err != nil {
		return listen.DetectionPreset{}, fmt.Errorf("config: %w", err)
	}
	return p, nil
}

func resolve(name string, overrides map[string]PresetOverride) (listen.DetectionPreset, error) {
	p, err := listen.PresetByName(name)
	if err != nil {
		return listen.DetectionPreset{}, err
	}
	if o, ok := overrides[presetKey(name)]; ok {
		if err := o.apply(&p); err != nil {
			return listen.DetectionPreset{}, err
		}
	}
	if err := p.Validate(); err != nil {
		return listen.DetectionPreset{}, err
	}
	return p, nil
}

// normalizePresets rekeys overrides by lowercase preset name, so "Normal:"
// in a file overrides the normal preset
func normalizePresets(overrides map[string]PresetOverride) (map[string]PresetOverride, error) {
	if len(overrides) == 0 {
		return overrides, nil
	}
	out := make(map[string]PresetOverride, len(overrides))
	for name, o := range overrides {
		key := presetKey(name)
		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("config: presets: %q given more than once", key)
		}
		out[key] = o
	}
	return out, nil
}

func presetKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (o PresetOverride) apply(p *listen.DetectionPreset) error {
	if o.Method != nil {
		m, err := tonal.ParsePitchDetectionMethod(*o.Method)
		if err != nil {
			return err
		}
		p.Method = m
	}
	set(&p.BlockSize, o.BlockSize)
	set(&p.YinThreshold, o.YinThreshold)
	set(&p.MinConfidence, o.MinConfidence)
	set(&p.MinRMS, o.MinRMS)
	set(&p.SnapTolerance, o.SnapTolerance)
	set(&p.HighPassHz, o.HighPassHz)
	set(&p.LowPassHz, o.LowPassHz)
	set(&p.StabilityFrames, o.StabilityFrames)
	set(&p.AnyNoteCooldown, o.AnyNoteCooldown)
	set(&p.SameNoteCooldown, o.SameNoteCooldown)
	set(&p.SilenceFrames, o.SilenceFrames)

	switch {
	case o.NoCompressor:
		p.Compressor = nil
	case o.Compressor != nil:
		comp := *o.Compressor
		p.Compressor = &comp
	}
	return nil
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
