package transcode

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-listen/logging"
)

// AudioData represents decoded audio data
type AudioData struct {
	PCM        []float64      `json:"-"` // Interleaved PCM samples in [-1, 1]
	SampleRate int            `json:"sample_rate"`
	Channels   int            `json:"channels"`
	Duration   time.Duration  `json:"duration"`
	Source     string         `json:"source,omitempty"`
	Input      *AudioMetadata `json:"input,omitempty"` // properties of the source before conversion
}

// AudioMetadata holds detected audio properties from FFprobe
type AudioMetadata struct {
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	Codec      string  `json:"codec"`
	Duration   float64 `json:"duration"`
	Bitrate    int     `json:"bitrate"`
	Format     string  `json:"format"`
}

// DecoderConfig holds decoder configuration
type DecoderConfig struct {
	TargetSampleRate int           `json:"target_sample_rate" yaml:"target_sample_rate"`
	TargetChannels   int           `json:"target_channels" yaml:"target_channels"`
	MaxDuration      time.Duration `json:"max_duration" yaml:"max_duration"`
	ResampleQuality  string        `json:"resample_quality" yaml:"resample_quality"` // "fast", "medium", "high"
	FFmpegPath       string        `json:"ffmpeg_path" yaml:"ffmpeg_path"`
	FFprobePath      string        `json:"ffprobe_path" yaml:"ffprobe_path"`
	Timeout          time.Duration `json:"timeout" yaml:"timeout"` // per ffmpeg/ffprobe invocation
	// Normalization options
	EnableNormalization bool    `json:"enable_normalization" yaml:"enable_normalization"`
	NormalizationMethod string  `json:"normalization_method" yaml:"normalization_method"` // "loudnorm", "dynaudnorm", "compand"
	TargetLUFS          float64 `json:"target_lufs" yaml:"target_lufs"`
	TargetPeak          float64 `json:"target_peak" yaml:"target_peak"`
	LoudnessRange       float64 `json:"loudness_range" yaml:"loudness_range"`
}

// DefaultDecoderConfig returns a mono 44.1 kHz configuration without
// loudness normalization
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		TargetSampleRate:    44100,
		TargetChannels:      1,
		ResampleQuality:     "medium",
		FFmpegPath:          "ffmpeg",
		FFprobePath:         "ffprobe",
		Timeout:             30 * time.Second,
		EnableNormalization: false,
		NormalizationMethod: "loudnorm",
		TargetLUFS:          -16.0,
		TargetPeak:          -1.0,
		LoudnessRange:       8.0,
	}
}

// Validate checks the configuration without touching the filesystem
func (c *DecoderConfig) Validate() error {
	var errs []error
	if c.TargetSampleRate <= 0 {
		errs = append(errs, fmt.Errorf("target sample rate must be positive: %d", c.TargetSampleRate))
	}
	if c.TargetChannels <= 0 || c.TargetChannels > 8 {
		errs = append(errs, fmt.Errorf("target channels must be between 1 and 8: %d", c.TargetChannels))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative: %v", c.Timeout))
	}
	switch c.ResampleQuality {
	case "", "fast", "medium", "high":
	default:
		errs = append(errs, fmt.Errorf("unknown resample quality %q", c.ResampleQuality))
	}
	if c.EnableNormalization {
		switch c.NormalizationMethod {
		case "loudnorm", "dynaudnorm", "compand":
		default:
			errs = append(errs, fmt.Errorf("unknown normalization method %q", c.NormalizationMethod))
		}
	}
	return errors.Join(errs...)
}

// Decoder handles audio decoding using FFmpeg
type Decoder struct {
	config *DecoderConfig
	logger logging.Logger
}

// NewDecoder creates a new audio decoder
func NewDecoder(config *DecoderConfig) *Decoder {
	if config == nil {
		config = DefaultDecoderConfig()
	}
	return &Decoder{
		config: config,
		logger: logging.WithFields(logging.Fields{"component": "audio_decoder"}),
	}
}

// Config returns the decoder configuration
func (d *Decoder) Config() DecoderConfig {
	return *d.config
}

// DecodeFile decodes an audio file and returns PCM data
func (d *Decoder) DecodeFile(ctx context.Context, filename string) (*AudioData, error) {
	logger := d.logger.WithFields(logging.Fields{
		"function": "DecodeFile",
		"filename": filename,
	})
	logger.Debug("Starting audio file decode")

	metadata, err := d.probe(ctx, filename, nil)
	if err != nil {
		logger.Error(err, "Failed to probe audio file")
		return nil, err
	}

	logger.Debug("Audio metadata detected", logging.Fields{
		"input_sample_rate": metadata.SampleRate,
		"input_channels":    metadata.Channels,
		"input_codec":       metadata.Codec,
		"input_duration":    metadata.Duration,
	})

	return d.decode(ctx, filename, nil, metadata, logger)
}

// DecodeReader decodes audio streamed through ffmpeg's stdin.
// The whole input is buffered since it is read twice (probe, then decode).
func (d *Decoder) DecodeReader(ctx context.Context, r io.Reader) (*AudioData, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("transcode: read input: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("transcode: empty input")
	}

	logger := d.logger.WithFields(logging.Fields{
		"function":  "DecodeReader",
		"data_size": len(data),
	})

	metadata, err := d.probe(ctx, "pipe:0", data)
	if err != nil {
		logger.Error(err, "Failed to probe audio input")
		return nil, err
	}
	return d.decode(ctx, "pipe:0", data, metadata, logger)
}

// command builds an ffmpeg/ffprobe invocation bounded by the configured timeout
func (d *Decoder) command(ctx context.Context, path string, args []string, stdin []byte) (*exec.Cmd, context.CancelFunc) {
	cancel := context.CancelFunc(func() {})
	if d.config.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, d.config.Timeout)
	}
	cmd := exec.CommandContext(ctx, path, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	return cmd, cancel
}

// probe runs ffprobe on a file or, with input "pipe:0", on stdin
func (d *Decoder) probe(ctx context.Context, input string, stdin []byte) (*AudioMetadata, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-select_streams", "a:0", // First audio stream only
		input,
	}

	cmd, cancel := d.command(ctx, d.config.FFprobePath, args, stdin)
	defer cancel()

	output, err := cmd.Output()
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			return nil, fmt.Errorf("transcode: ffprobe failed: %w, stderr: %s", err, string(exitError.Stderr))
		}
		return nil, fmt.Errorf("transcode: ffprobe failed: %w", err)
	}

	return parseFFprobeOutput(output)
}

// parseFFprobeOutput parses ffprobe JSON to extract audio metadata
func parseFFprobeOutput(jsonData []byte) (*AudioMetadata, error) {
	var probe struct {
		Streams []struct {
			CodecType     string `json:"codec_type"`
			CodecName     string `json:"codec_name"`
			SampleRate    string `json:"sample_rate"`
			Channels      int    `json:"channels"`
			Duration      string `json:"duration"`
			BitRate       string `json:"bit_rate"`
			CodecLongName string `json:"codec_long_name"`
		} `json:"streams"`
	}

	if err := json.Unmarshal(jsonData, &probe); err != nil {
		return nil, fmt.Errorf("transcode: failed to parse ffprobe output: %w", err)
	}
	if len(probe.Streams) == 0 {
		return nil, errors.New("transcode: no audio streams found")
	}

	stream := probe.Streams[0]
	if stream.CodecType != "audio" {
		return nil, fmt.Errorf("transcode: stream is not audio type: %s", stream.CodecType)
	}
	if stream.Channels <= 0 || stream.Channels > 8 {
		return nil, fmt.Errorf("transcode: invalid channel count: %d", stream.Channels)
	}

	// Missing numeric fields are common for raw or piped input
	sampleRate, err := strconv.Atoi(stream.SampleRate)
	if err != nil {
		sampleRate = 0
	}
	duration, err := strconv.ParseFloat(stream.Duration, 64)
	if err != nil {
		duration = 0
	}
	bitrate, err := strconv.Atoi(stream.BitRate)
	if err != nil {
		bitrate = 0
	}

	return &AudioMetadata{
		SampleRate: sampleRate,
		Channels:   stream.Channels,
		Codec:      stream.CodecName,
		Duration:   duration,
		Bitrate:    bitrate,
		Format:     stream.CodecLongName,
	}, nil
}

// decode runs ffmpeg and converts its raw output
func (d *Decoder) decode(ctx context.Context, input string, stdin []byte, metadata *AudioMetadata, logger logging.Logger) (*AudioData, error) {
	args := append([]string{"-i", input}, d.buildFFmpegArgs(metadata)...)
	args = append(args, "pipe:1")

	cmd, cancel := d.command(ctx, d.config.FFmpegPath, args, stdin)
	defer cancel()

	logger.Debug("Running ffmpeg command", logging.Fields{
		"args": strings.Join(args, " "),
	})

	output, err := cmd.Output()
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			logger.Error(err, "FFmpeg decode failed", logging.Fields{
				"stderr": string(exitError.Stderr),
			})
		}
		return nil, fmt.Errorf("transcode: ffmpeg decode failed: %w", err)
	}

	source := input
	if stdin != nil {
		source = ""
	}
	return d.processFFmpegOutput(output, metadata, source, logger)
}

// buildFFmpegArgs builds the ffmpeg output arguments
func (d *Decoder) buildFFmpegArgs(metadata *AudioMetadata) []string {
	args := []string{
		"-f", "f64le", // Output raw float64 little-endian
		"-ac", strconv.Itoa(d.config.TargetChannels),
		"-ar", strconv.Itoa(d.config.TargetSampleRate),
	}

	var filters []string
	if d.config.ResampleQuality != "" && metadata.SampleRate != d.config.TargetSampleRate {
		switch d.config.ResampleQuality {
		case "fast":
			filters = append(filters, "aresample=resampler=soxr:precision=16")
		case "medium":
			filters = append(filters, "aresample=resampler=soxr:precision=20")
		case "high":
			filters = append(filters, "aresample=resampler=soxr:precision=28")
		}
	}
	if d.config.EnableNormalization {
		if f := d.buildNormalizationFilter(); f != "" {
			filters = append(filters, f)
		}
	}
	if len(filters) > 0 {
		args = append(args, "-af", strings.Join(filters, ","))
	}

	if d.config.MaxDuration > 0 {
		args = append(args, "-t", fmt.Sprintf("%.2f", d.config.MaxDuration.Seconds()))
	}

	// Suppress ffmpeg output
	args = append(args, "-v", "error")

	return args
}

// buildNormalizationFilter returns the ffmpeg filter for the configured
// normalization method
func (d *Decoder) buildNormalizationFilter() string {
	switch d.config.NormalizationMethod {
	case "loudnorm":
		// EBU R128 loudness normalization
		return fmt.Sprintf("loudnorm=I=%.1f:TP=%.1f:LRA=%.1f",
			d.config.TargetLUFS,
			d.config.TargetPeak,
			d.config.LoudnessRange)

	case "dynaudnorm":
		return "dynaudnorm=p=0.95:m=10:s=12"

	case "compand":
		return fmt.Sprintf("compand=0.1,0.3:-90/-90,-%.1f/-%.1f,0/0:6:0:-90:0.1",
			math.Abs(d.config.TargetPeak),
			math.Abs(d.config.TargetPeak))

	default:
		return ""
	}
}

// processFFmpegOutput converts ffmpeg's raw output into AudioData
func (d *Decoder) processFFmpegOutput(output []byte, inputMetadata *AudioMetadata, source string, logger logging.Logger) (*AudioData, error) {
	samples := bytesToFloat64(output)
	if len(samples) == 0 {
		return nil, errors.New("transcode: no audio samples decoded")
	}

	samplesPerChannel := len(samples) / d.config.TargetChannels
	duration := time.Duration(samplesPerChannel) * time.Second / time.Duration(d.config.TargetSampleRate)

	logger.Debug("FFmpeg decode completed", logging.Fields{
		"output_samples":     len(samples),
		"output_sample_rate": d.config.TargetSampleRate,
		"output_channels":    d.config.TargetChannels,
		"output_duration":    duration.Seconds(),
	})

	return &AudioData{
		PCM:        samples,
		SampleRate: d.config.TargetSampleRate,
		Channels:   d.config.TargetChannels,
		Duration:   duration,
		Source:     source,
		Input:      inputMetadata,
	}, nil
}

// bytesToFloat64 converts raw little-endian float64 bytes, dropping any
// trailing partial sample
func bytesToFloat64(data []byte) []float64 {
	sampleCount := len(data) / 8
	if sampleCount == 0 {
		return nil
	}

	samples := make([]float64, sampleCount)
	for i := range sampleCount {
		bits := binary.LittleEndian.Uint64(data[i*8 : i*8+8])
		samples[i] = math.Float64frombits(bits)
	}
	return samples
}

// CheckAvailability verifies that ffmpeg and ffprobe can be executed
func (d *Decoder) CheckAvailability(ctx context.Context) error {
	for _, path := range []string{d.config.FFmpegPath, d.config.FFprobePath} {
		cmd, cancel := d.command(ctx, path, []string{"-version"}, nil)
		err := cmd.Run()
		cancel()
		if err != nil {
			return fmt.Errorf("transcode: %s not available: %w", path, err)
		}
	}
	return nil
}
