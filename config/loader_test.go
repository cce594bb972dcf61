package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/RyanBlaney/sonido-listen/algorithms/tonal"
	"github.com/RyanBlaney/sonido-listen/config"
	"github.com/RyanBlaney/sonido-listen/listen"
)

func TestLoadFromReader_EmptyUsesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Preset != listen.PresetNormal {
		t.Errorf("preset = %q, want %q", cfg.Preset, listen.PresetNormal)
	}
	if cfg.Session.FrameInterval != listen.DefaultFrameInterval {
		t.Errorf("frame interval = %v", cfg.Session.FrameInterval)
	}
	if cfg.Capture.SampleRate != 48000 {
		t.Errorf("sample rate = %d", cfg.Capture.SampleRate)
	}
	if cfg.Replay.Decoder.FFmpegPath != "ffmpeg" || cfg.Replay.Decoder.TargetChannels != 1 {
		t.Errorf("replay decoder defaults not applied: %+v", cfg.Replay.Decoder)
	}
}

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()
	yaml := `
log_level: debug
preset: piano
capture:
  device: USB
  sample_rate: 44100
session:
  frame_interval: 20ms
metrics:
  listen_addr: ":9464"
replay:
  loop: true
  chunk_size: 512
  ffmpeg_path: /usr/local/bin/ffmpeg
  enable_normalization: true
  normalization_method: dynaudnorm
presets:
  piano:
    method: acf
    min_confidence: 0.75
    same_note_cooldown: 600ms
    no_compressor: true
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Capture.Device != "USB" || cfg.Capture.SampleRate != 44100 {
		t.Errorf("capture = %+v", cfg.Capture)
	}
	if cfg.Session.FrameInterval != 20*time.Millisecond {
		t.Errorf("frame interval = %v", cfg.Session.FrameInterval)
	}
	if cfg.Metrics.ListenAddr != ":9464" {
		t.Errorf("listen addr = %q", cfg.Metrics.ListenAddr)
	}
	if !cfg.Replay.Loop || cfg.Replay.ChunkSize != 512 || cfg.Replay.Decoder.FFmpegPath != "/usr/local/bin/ffmpeg" {
		t.Errorf("replay = %+v", cfg.Replay)
	}
	if cfg.Replay.Decoder.FFprobePath != "ffprobe" {
		t.Errorf("unset replay field lost its default: %q", cfg.Replay.Decoder.FFprobePath)
	}

	p, err := cfg.ResolvePreset()
	if err != nil {
		t.Fatalf("ResolvePreset: %v", err)
	}
	want := listen.PianoPreset()
	if p.Method != tonal.AutocorrelationACF {
		t.Errorf("method = %v, want acf", p.Method)
	}
	if p.MinConfidence != 0.75 || p.SameNoteCooldown != 600*time.Millisecond {
		t.Errorf("overrides not applied: %+v", p)
	}
	if p.Compressor != nil {
		t.Error("compressor should be disabled")
	}
	if p.BlockSize != want.BlockSize || p.StabilityFrames != want.StabilityFrames {
		t.Errorf("untouched fields changed: block=%d stability=%d", p.BlockSize, p.StabilityFrames)
	}

	// Other presets are unaffected by the piano override
	n, err := cfg.PresetNamed("normal")
	if err != nil {
		t.Fatalf("PresetNamed: %v", err)
	}
	if n.MinConfidence != listen.NormalPreset().MinConfidence {
		t.Errorf("normal preset changed: %+v", n)
	}
}

func TestLoadFromReader_CompressorOverride(t *testing.T) {
	t.Parallel()
	yaml := `
preset: normal
presets:
  normal:
    compressor:
      threshold_db: -30
      ratio: 4
      attack: 5ms
      release: 200ms
      auto_makeup: true
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, err := cfg.ResolvePreset()
	if err != nil {
		t.Fatalf("ResolvePreset: %v", err)
	}
	if p.Compressor == nil || p.Compressor.Ratio != 4 || p.Compressor.Release != 200*time.Millisecond {
		t.Errorf("compressor = %+v", p.Compressor)
	}
}

func TestLoadFromReader_PresetNamesIgnoreCase(t *testing.T) {
	t.Parallel()
	yaml := `
preset: Normal
presets:
  " Normal":
    stability_frames: 3
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := cfg.Presets["normal"]; !ok {
		t.Fatalf("override keys = %v, want normal", cfg.Presets)
	}
	p, err := cfg.ResolvePreset()
	if err != nil {
		t.Fatalf("ResolvePreset: %v", err)
	}
	if p.StabilityFrames != 3 {
		t.Errorf("stability frames = %d, want override 3", p.StabilityFrames)
	}
}

func TestValidate_RejectsMixedCasePresetKey(t *testing.T) {
	t.Parallel()
	frames := 3
	cfg := config.Default()
	cfg.Presets = map[string]config.PresetOverride{"Normal": {StabilityFrames: &frames}}

	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "lowercase") {
		t.Fatalf("Validate() = %v, want lowercase error", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want []string
	}{
		{
			name: "unknown key",
			yaml: "preset: normal\nbogus: 1\n",
			want: []string{"bogus"},
		},
		{
			name: "bad log level and preset",
			yaml: "log_level: loud\npreset: violin\n",
			want: []string{"log_level", "preset"},
		},
		{
			name: "override of unknown preset",
			yaml: "presets:\n  harp:\n    min_rms: 0.1\n",
			want: []string{"presets.harp", "unknown preset"},
		},
		{
			name: "invalid override values",
			yaml: "presets:\n  strict:\n    block_size: 10\n    high_pass_hz: 3000\n",
			want: []string{"block size", "filter band"},
		},
		{
			name: "bad method",
			yaml: "presets:\n  normal:\n    method: fft\n",
			want: []string{"presets.normal"},
		},
		{
			name: "bad compressor",
			yaml: "presets:\n  normal:\n    compressor:\n      ratio: 0.5\n",
			want: []string{"ratio"},
		},
		{
			name: "same preset under two spellings",
			yaml: "presets:\n  Normal:\n    min_rms: 0.1\n  normal:\n    min_rms: 0.2\n",
			want: []string{`"normal" given more than once`},
		},
		{
			name: "negative interval and replay",
			yaml: "session:\n  frame_interval: -1s\nreplay:\n  chunk_size: -4\n  target_sample_rate: 0\n",
			want: []string{"frame_interval", "chunk_size", "sample rate"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			for _, want := range tc.want {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error should mention %q, got: %v", want, err)
				}
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "listen.yaml")
	if err := os.WriteFile(path, []byte("preset: strict\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Preset != "strict" {
		t.Errorf("preset = %q", cfg.Preset)
	}

	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
