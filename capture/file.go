package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/RyanBlaney/sonido-listen/listen"
	"github.com/RyanBlaney/sonido-listen/logging"
	"github.com/RyanBlaney/sonido-listen/transcode"
)

// DefaultChunkSize is the number of samples delivered per sink call
const DefaultChunkSize = 1024

// Decoder turns an audio file into PCM
type Decoder interface {
	DecodeFile(ctx context.Context, path string) (*transcode.AudioData, error)
}

var _ Decoder = (*transcode.Decoder)(nil)

// FileSource replays a decoded audio file as if it were a live input
type FileSource struct {
	path      string
	decoder   Decoder
	chunkSize int
	loop      bool
	paced     bool
	logger    logging.Logger

	done     chan struct{}
	doneOnce sync.Once
}

var _ listen.AudioSource = (*FileSource)(nil)

// FileOption configures a FileSource
type FileOption func(*FileSource)

// WithChunkSize sets how many samples each sink call carries
func WithChunkSize(n int) FileOption {
	return func(f *FileSource) {
		if n > 0 {
			f.chunkSize = n
		}
	}
}

// WithLoop restarts playback from the beginning at end of file
func WithLoop(loop bool) FileOption {
	return func(f *FileSource) { f.loop = loop }
}

// WithPacing controls whether chunks are delivered at real-time rate.
// Unpaced playback delivers as fast as the sink returns.
func WithPacing(paced bool) FileOption {
	return func(f *FileSource) { f.paced = paced }
}

// WithFileLogger sets the logger
func WithFileLogger(l logging.Logger) FileOption {
	return func(f *FileSource) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFileSource creates a replay source. A nil decoder uses a mono
// transcode.Decoder with default settings.
func NewFileSource(path string, decoder Decoder, opts ...FileOption) *FileSource {
	if decoder == nil {
		decoder = transcode.NewDecoder(nil)
	}
	f := &FileSource{
		path:      path,
		decoder:   decoder,
		chunkSize: DefaultChunkSize,
		paced:     true,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = logging.WithFields(logging.Fields{"component": "file_source", "path": path})
	}
	return f
}

// Done is closed once a stream from this source has played to the end.
// It never closes while looping.
func (f *FileSource) Done() <-chan struct{} {
	return f.done
}

// Open decodes the whole file up front
func (f *FileSource) Open(ctx context.Context) (listen.Stream, error) {
	data, err := f.decoder.DecodeFile(ctx, f.path)
	if err != nil {
		return nil, &listen.DeviceError{Op: "decode", Err: err}
	}
	samples := downmix(data.PCM, data.Channels)
	if len(samples) == 0 {
		return nil, &listen.DeviceError{Op: "decode", Err: errors.New("file contains no audio")}
	}

	f.logger.Info("Replaying audio file", logging.Fields{
		"sample_rate": data.SampleRate,
		"duration":    data.Duration.String(),
		"loop":        f.loop,
	})

	return &fileStream{
		source:     f,
		samples:    samples,
		sampleRate: data.SampleRate,
		stop:       make(chan struct{}),
	}, nil
}

func (f *FileSource) finish() {
	f.doneOnce.Do(func() { close(f.done) })
}

type fileStream struct {
	source     *FileSource
	samples    []float64
	sampleRate int

	mu      sync.Mutex
	started bool
	closed  bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

func (s *fileStream) SampleRate() int { return s.sampleRate }

func (s *fileStream) Start(sink func(samples []float64)) error {
	if sink == nil {
		return errors.New("capture: nil sink")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &listen.DeviceError{Op: "start", Err: errors.New("stream closed")}
	}
	if s.started {
		return &listen.DeviceError{Op: "start", Err: errors.New("stream already started")}
	}
	s.started = true

	s.wg.Add(1)
	go s.play(sink)
	return nil
}

func (s *fileStream) play(sink func([]float64)) {
	defer s.wg.Done()

	chunk := s.source.chunkSize
	buf := make([]float64, chunk)

	var tick <-chan time.Time
	if s.source.paced && s.sampleRate > 0 {
		interval := time.Duration(chunk) * time.Second / time.Duration(s.sampleRate)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	pos := 0
	for {
		if pos >= len(s.samples) {
			if !s.source.loop {
				s.source.finish()
				return
			}
			pos = 0
		}

		end := min(pos+chunk, len(s.samples))
		n := copy(buf, s.samples[pos:end])
		pos = end

		select {
		case <-s.stop:
			return
		default:
		}
		sink(buf[:n])

		if tick != nil {
			select {
			case <-s.stop:
				return
			case <-tick:
			}
		}
	}
}

// Close stops playback and waits for the delivery goroutine to exit
func (s *fileStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.stop)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// downmix averages interleaved channels into mono
func downmix(pcm []float64, channels int) []float64 {
	if channels <= 1 {
		return pcm
	}
	frames := len(pcm) / channels
	mono := make([]float64, frames)
	for i := range frames {
		var sum float64
		for c := range channels {
			sum += pcm[i*channels+c]
		}
		mono[i] = sum / float64(channels)
	}
	return mono
}
