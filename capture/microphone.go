package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/RyanBlaney/sonido-listen/listen"
	"github.com/RyanBlaney/sonido-listen/logging"
)

// DefaultSampleRate is requested from the device when none is configured
const DefaultSampleRate = 48000

// MicrophoneConfig selects and configures the capture device
type MicrophoneConfig struct {
	// Device is a case-insensitive substring of the device name.
	// Empty selects the system default input.
	Device     string `yaml:"device" json:"device"`
	SampleRate uint32 `yaml:"sample_rate" json:"sample_rate"`
}

// DefaultMicrophoneConfig returns the default input at 48 kHz
func DefaultMicrophoneConfig() MicrophoneConfig {
	return MicrophoneConfig{SampleRate: DefaultSampleRate}
}

// Microphone is a listen.AudioSource backed by a mono f32 capture device
type Microphone struct {
	config MicrophoneConfig
	logger logging.Logger
}

var _ listen.AudioSource = (*Microphone)(nil)

// NewMicrophone creates a microphone source. A nil logger uses the global one.
func NewMicrophone(config MicrophoneConfig, logger logging.Logger) *Microphone {
	if config.SampleRate == 0 {
		config.SampleRate = DefaultSampleRate
	}
	if logger == nil {
		logger = logging.WithFields(logging.Fields{"component": "microphone"})
	}
	return &Microphone{config: config, logger: logger}
}

// Open initialises the audio backend and the capture device. On platforms
// that gate microphone access this is where the permission prompt happens.
func (m *Microphone) Open(ctx context.Context) (listen.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		m.logger.Debug("malgo", logging.Fields{"message": strings.TrimSpace(message)})
	})
	if err != nil {
		return nil, classify("init", err)
	}

	stream := &micStream{ctx: mctx, logger: m.logger}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = m.config.SampleRate
	deviceConfig.Alsa.NoMMap = 1

	if m.config.Device != "" {
		infos, err := mctx.Devices(malgo.Capture)
		if err != nil {
			stream.Close()
			return nil, classify("enumerate", err)
		}
		names := make([]string, len(infos))
		for i := range infos {
			names[i] = infos[i].Name()
		}
		idx := matchDevice(names, m.config.Device)
		if idx < 0 {
			stream.Close()
			return nil, &listen.DeviceError{
				Op:  "select",
				Err: fmt.Errorf("no capture device matching %q", m.config.Device),
			}
		}
		deviceConfig.Capture.DeviceID = infos[idx].ID.Pointer()
		m.logger.Debug("Selected capture device", logging.Fields{"device": names[idx]})
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: stream.onData,
	})
	if err != nil {
		stream.Close()
		return nil, classify("open", err)
	}
	stream.device = device

	stream.sampleRate = int(m.config.SampleRate)
	if rate := device.SampleRate(); rate > 0 {
		stream.sampleRate = int(rate)
	}

	m.logger.Debug("Capture device opened", logging.Fields{
		"sample_rate": stream.sampleRate,
		"requested":   m.config.SampleRate,
	})
	return stream, nil
}

type micStream struct {
	ctx        *malgo.AllocatedContext
	device     *malgo.Device
	sampleRate int
	logger     logging.Logger

	sink    atomic.Pointer[func([]float64)]
	scratch []float64 // driver thread only

	closeOnce sync.Once
	closeErr  error
	closed    atomic.Bool
}

func (s *micStream) SampleRate() int { return s.sampleRate }

func (s *micStream) Start(sink func(samples []float64)) error {
	if sink == nil {
		return errors.New("capture: nil sink")
	}
	if s.closed.Load() {
		return &listen.DeviceError{Op: "start", Err: errors.New("stream closed")}
	}
	s.sink.Store(&sink)
	if err := s.device.Start(); err != nil {
		s.sink.Store(nil)
		return classify("start", err)
	}
	return nil
}

func (s *micStream) onData(_, input []byte, _ uint32) {
	sink := s.sink.Load()
	if sink == nil || len(input) < 4 {
		return
	}
	s.scratch = decodeFloat32(s.scratch, input)
	(*sink)(s.scratch)
}

// Close stops the device and releases the backend context
func (s *micStream) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.sink.Store(nil)
		if s.device != nil {
			if err := s.device.Stop(); err != nil {
				s.logger.Debug("Device stop failed", logging.Fields{"error": err.Error()})
			}
			s.device.Uninit()
		}
		if s.ctx != nil {
			s.closeErr = s.ctx.Uninit()
			s.ctx.Free()
		}
	})
	return s.closeErr
}

// DeviceInfo describes a capture device
type DeviceInfo struct {
	Name    string `json:"name"`
	Default bool   `json:"default"`
}

// ListDevices enumerates the capture devices known to the audio backend
func ListDevices() ([]DeviceInfo, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, classify("init", err)
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, classify("enumerate", err)
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for i := range infos {
		name := infos[i].Name()
		if name == "" {
			name = "Unknown input"
		}
		devices = append(devices, DeviceInfo{Name: name, Default: infos[i].IsDefault != 0})
	}
	return devices, nil
}

// matchDevice returns the index of the first name containing query,
// ignoring case, or -1. An exact match wins over a substring match.
func matchDevice(names []string, query string) int {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return -1
	}
	if i := slices.IndexFunc(names, func(n string) bool { return strings.ToLower(n) == query }); i >= 0 {
		return i
	}
	return slices.IndexFunc(names, func(n string) bool {
		return strings.Contains(strings.ToLower(n), query)
	})
}

// classify maps backend failures onto the listen error contract
func classify(op string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "denied") || strings.Contains(msg, "permission") {
		return fmt.Errorf("%w: %v", listen.ErrPermissionDenied, err)
	}
	return &listen.DeviceError{Op: op, Err: err}
}

// decodeFloat32 converts little-endian f32 frames into dst, reusing its storage
func decodeFloat32(dst []float64, b []byte) []float64 {
	n := len(b) / 4
	if cap(dst) < n {
		dst = make([]float64, n)
	}
	dst = dst[:n]
	for i := range n {
		dst[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:])))
	}
	return dst
}
