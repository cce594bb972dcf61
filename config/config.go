// Package config defines the YAML configuration schema for sonido-listen.
package config

import (
	"time"

	"github.com/RyanBlaney/sonido-listen/algorithms/filters"
	"github.com/RyanBlaney/sonido-listen/capture"
	"github.com/RyanBlaney/sonido-listen/listen"
	"github.com/RyanBlaney/sonido-listen/transcode"
)

// Config is the top-level configuration
type Config struct {
	LogLevel string                    `yaml:"log_level"`
	Preset   string                    `yaml:"preset"`
	Capture  capture.MicrophoneConfig  `yaml:"capture"`
	Session  SessionConfig             `yaml:"session"`
	Metrics  MetricsConfig             `yaml:"metrics"`
	Presets  map[string]PresetOverride `yaml:"presets"`
	Replay   ReplayConfig              `yaml:"replay"`
}

// SessionConfig tunes the listening loop
type SessionConfig struct {
	// FrameInterval is how often the latest block is analysed
	FrameInterval time.Duration `yaml:"frame_interval"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	// ListenAddr serves /metrics when non-empty, e.g. ":9464"
	ListenAddr string `yaml:"listen_addr"`
}

// ReplayConfig configures file replay through ffmpeg
type ReplayConfig struct {
	Loop      bool                    `yaml:"loop"`
	ChunkSize int                     `yaml:"chunk_size"`
	Decoder   transcode.DecoderConfig `yaml:",inline"`
}

// PresetOverride replaces selected fields of a built-in preset.
// Nil fields keep the built-in value.
type PresetOverride struct {
	BlockSize     *int     `yaml:"block_size"`
	Method        *string  `yaml:"method"`
	YinThreshold  *float64 `yaml:"yin_threshold"`
	MinConfidence *float64 `yaml:"min_confidence"`
	MinRMS        *float64 `yaml:"min_rms"`
	SnapTolerance *float64 `yaml:"snap_tolerance"`

	HighPassHz   *float64                  `yaml:"high_pass_hz"`
	LowPassHz    *float64                  `yaml:"low_pass_hz"`
	Compressor   *filters.CompressorParams `yaml:"compressor"`
	NoCompressor bool                      `yaml:"no_compressor"`

	StabilityFrames  *int           `yaml:"stability_frames"`
	AnyNoteCooldown  *time.Duration `yaml:"any_note_cooldown"`
	SameNoteCooldown *time.Duration `yaml:"same_note_cooldown"`
	SilenceFrames    *int           `yaml:"silence_frames"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Preset:   listen.PresetNormal,
		Capture:  capture.DefaultMicrophoneConfig(),
		Session:  SessionConfig{FrameInterval: listen.DefaultFrameInterval},
		Replay: ReplayConfig{
			ChunkSize: capture.DefaultChunkSize,
			Decoder:   *transcode.DefaultDecoderConfig(),
		},
	}
}
