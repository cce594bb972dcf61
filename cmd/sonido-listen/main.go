// Command sonido-listen listens to a microphone (or replays an audio file)
// and prints every natural note it hears being played.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/RyanBlaney/sonido-listen/algorithms/tonal"
	"github.com/RyanBlaney/sonido-listen/capture"
	"github.com/RyanBlaney/sonido-listen/config"
	"github.com/RyanBlaney/sonido-listen/listen"
	"github.com/RyanBlaney/sonido-listen/logging"
	"github.com/RyanBlaney/sonido-listen/observe"
	"github.com/RyanBlaney/sonido-listen/transcode"
)

var version = "dev"

var errReplayFinished = errors.New("replay finished")

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ─────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to a YAML configuration file")
	presetName := flag.String("preset", "", "detection preset: "+strings.Join(listen.PresetNames(), ", "))
	device := flag.String("device", "", "capture device name (substring match)")
	file := flag.String("file", "", "replay an audio file instead of the microphone")
	listDevices := flag.Bool("list-devices", false, "list capture devices and exit")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9464")
	logLevel := flag.String("log-level", "", "debug, info, warn or error")
	heard := flag.Bool("heard", false, "print every voiced frame with frequency and confidence")
	flag.Parse()

	// ── Configuration ─────────────────────────────────────────────────────────
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sonido-listen: %v\n", err)
			return 1
		}
		cfg = loaded
	}
	if *presetName != "" {
		cfg.Preset = *presetName
	}
	if *device != "" {
		cfg.Capture.Device = *device
	}
	if *metricsAddr != "" {
		cfg.Metrics.ListenAddr = *metricsAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sonido-listen: %v\n", err)
		return 1
	}
	logger := logging.NewLogger(os.Stderr, level)
	logging.SetGlobalLogger(logger)

	if *listDevices {
		return printDevices(os.Stdout)
	}

	preset, err := cfg.ResolvePreset()
	if err != nil {
		logger.Error(err, "Invalid preset")
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Metrics ───────────────────────────────────────────────────────────────
	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "sonido-listen",
		ServiceVersion: version,
	})
	if err != nil {
		logger.Error(err, "Failed to initialise metrics")
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			logger.Warn("Metrics shutdown failed", logging.Fields{"error": err.Error()})
		}
	}()

	// ── Audio source ──────────────────────────────────────────────────────────
	var (
		source   listen.AudioSource
		finished <-chan struct{}
	)
	if *file != "" {
		decoderCfg := cfg.Replay.Decoder
		replay := capture.NewFileSource(*file, transcode.NewDecoder(&decoderCfg),
			capture.WithChunkSize(cfg.Replay.ChunkSize),
			capture.WithLoop(cfg.Replay.Loop))
		source, finished = replay, replay.Done()
	} else {
		source = capture.NewMicrophone(cfg.Capture, logger.WithFields(logging.Fields{"component": "microphone"}))
	}

	session := listen.NewSession(source,
		listen.WithScheduler(listen.NewTickerScheduler(cfg.Session.FrameInterval)),
		listen.WithLogger(logger.WithFields(logging.Fields{"component": "listen", "preset": preset.Name})),
	)

	onNote := func(note tonal.Note) {
		fmt.Fprintf(os.Stdout, "%s  %s\n", time.Now().Format("15:04:05.000"), note)
	}
	var onHeard listen.HeardFunc
	if *heard {
		onHeard = func(note tonal.Note, est tonal.PitchEstimate) {
			fmt.Fprintf(os.Stdout, "    heard %-3s %8.2f Hz  confidence %.2f\n", note, est.Frequency, est.Confidence)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.ListenAddr != "" {
		srv := newMetricsServer(cfg.Metrics.ListenAddr)
		g.Go(func() error {
			logger.Info("Serving metrics", logging.Fields{"addr": cfg.Metrics.ListenAddr})
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		if err := session.Start(gctx, onNote, onHeard, preset); err != nil {
			return err
		}
		defer session.Stop()

		logger.Info("Listening; press Ctrl+C to stop", logging.Fields{"preset": preset.Name})
		select {
		case <-gctx.Done():
			return nil
		case <-finished:
			return errReplayFinished
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errReplayFinished) {
		if errors.Is(err, listen.ErrPermissionDenied) {
			logger.Error(err, "Microphone access was denied; grant permission and try again")
		} else {
			logger.Error(err, "Listening failed")
		}
		return 1
	}
	return 0
}

func newMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func printDevices(w io.Writer) int {
	devices, err := capture.ListDevices()
	if err != nil {
		logging.Error(err, "Failed to list capture devices")
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(w, "no capture devices found")
		return 0
	}
	for _, d := range devices {
		marker := " "
		if d.Default {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %s\n", marker, d.Name)
	}
	return 0
}
