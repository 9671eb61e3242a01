// Command udpcam captures frames from a local camera and streams them as
// RTP/H.264 over UDP at a fixed cadence.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	camstream "github.com/onidzelskyi/stereo-camera"
	"github.com/onidzelskyi/stereo-camera/internal/config"
	"github.com/onidzelskyi/stereo-camera/internal/observe"
)

const statsInterval = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to the YAML configuration file")
	device := flag.String("device", "", "video device path (overrides config)")
	width := flag.Int("width", 0, "capture width (overrides config)")
	height := flag.Int("height", 0, "capture height (overrides config)")
	fps := flag.Float64("fps", 0, "emission cadence in frames per second (overrides config)")
	bitrate := flag.Uint("bitrate", 0, "H.264 bitrate in kbit/s (overrides config)")
	sim := flag.Bool("sim", false, "use a synthetic frame generator instead of a camera")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics listen address (overrides config)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Usage = usage
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	var cfg *config.Config
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "udpcam: %v\n", err)
			return 1
		}
		cfg = loaded
	} else {
		cfg = &config.Config{}
	}

	// Positional destination overrides the config file.
	if args := flag.Args(); len(args) == 2 {
		port, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "udpcam: invalid port %q\n", args[1])
			usage()
			return 1
		}
		cfg.Destination.Host = args[0]
		cfg.Destination.Port = port
	} else if len(args) != 0 {
		usage()
		return 1
	}

	applyFlagOverrides(cfg, *device, *width, *height, *fps, *bitrate, *sim, *metricsAddr, *debug)

	if err := config.Validate(cfg); err != nil {
		if cfg.Destination.Host == "" {
			usage()
			return 1
		}
		fmt.Fprintf(os.Stderr, "udpcam: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Log.Level))

	slog.Info("udpcam starting",
		"destination", fmt.Sprintf("%s:%d", cfg.Destination.Host, cfg.Destination.Port),
		"fps", cfg.Stream.FPS,
		"log_level", cfg.Log.Level,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Metrics provider ──────────────────────────────────────────────────────
	mp, shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise metrics provider", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()

	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		slog.Error("failed to create metric instruments", "err", err)
		return 1
	}

	// ── Capture source ────────────────────────────────────────────────────────
	source, err := buildSource(cfg)
	if err != nil {
		slog.Error("failed to create capture source", "err", err)
		return 1
	}

	// ── Output sink ───────────────────────────────────────────────────────────
	sink, err := camstream.NewUDPSink(camstream.UDPSinkConfig{
		Host:        cfg.Destination.Host,
		Port:        cfg.Destination.Port,
		BitrateKbps: cfg.Stream.BitrateKbps,
		KeyIntMax:   cfg.Stream.KeyIntMax,
	}, source.Geometry(), cfg.Stream.FPS)
	if err != nil {
		slog.Error("failed to create UDP sink", "err", err)
		return 1
	}

	// ── Bridge ────────────────────────────────────────────────────────────────
	bridge, err := camstream.NewBridge(
		camstream.BridgeConfig{FPS: cfg.Stream.FPS},
		source, sink,
		camstream.WithMetrics(metrics),
	)
	if err != nil {
		slog.Error("failed to create bridge", "err", err)
		return 1
	}

	if err := bridge.Start(ctx); err != nil {
		slog.Error("failed to start bridge", "err", err)
		return 1
	}

	slog.Info("streaming — press Ctrl+C to stop")

	// ── Supervision ───────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-bridge.Done():
			if err := bridge.Err(); err != nil {
				return fmt.Errorf("bridge terminated: %w", err)
			}
			return nil
		}
	})

	if cfg.Metrics.Addr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.Metrics.Addr)
		})
	}

	g.Go(func() error {
		logStats(gctx, bridge)
		return nil
	})

	runErr := g.Wait()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("stopping…")
	if err := bridge.Stop(); err != nil {
		slog.Warn("bridge stop error", "err", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags] <destination-ip> <port>\n", os.Args[0])
	flag.PrintDefaults()
}

// applyFlagOverrides folds non-zero CLI flags into cfg. Flags win over the
// config file; positional arguments win over both.
func applyFlagOverrides(cfg *config.Config, device string, width, height int, fps float64, bitrate uint, sim bool, metricsAddr string, debug bool) {
	if device != "" {
		cfg.Camera.Device = device
	}
	if width > 0 {
		cfg.Camera.Width = width
	}
	if height > 0 {
		cfg.Camera.Height = height
	}
	if fps > 0 {
		cfg.Stream.FPS = fps
	}
	if bitrate > 0 {
		cfg.Stream.BitrateKbps = bitrate
	}
	if sim {
		cfg.Camera.Simulate = true
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}
	if debug {
		cfg.Log.Level = config.LogDebug
	}
}

// buildSource creates the capture source named by cfg: a real camera, or a
// synthetic generator when simulate is set.
func buildSource(cfg *config.Config) (camstream.CaptureSource, error) {
	if cfg.Camera.Simulate {
		geo := camstream.Geometry{
			Width:  cfg.Camera.Width,
			Height: cfg.Camera.Height,
			Stride: cfg.Camera.Width * camstream.FormatBGRx.BytesPerPixel(),
			Format: camstream.FormatBGRx,
		}
		src, err := camstream.NewSimSource(camstream.SimConfig{
			Geometry: geo,
			Interval: time.Duration(float64(time.Second) / cfg.Stream.FPS),
			Buffers:  cfg.Camera.Buffers,
		})
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	return camstream.NewCameraSource(camstream.CameraConfig{
		Device:  cfg.Camera.Device,
		Element: string(cfg.Camera.Element),
		Width:   cfg.Camera.Width,
		Height:  cfg.Camera.Height,
		FPS:     cfg.Stream.FPS,
		Buffers: cfg.Camera.Buffers,
	})
}

// serveMetrics runs the Prometheus scrape endpoint until ctx is cancelled.
func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	slog.Info("metrics endpoint listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// logStats periodically logs a bridge stats snapshot.
func logStats(ctx context.Context, bridge *camstream.Bridge) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := bridge.Stats()
			slog.Info("stream stats",
				"frames_stored", s.FramesStored,
				"frames_emitted", s.FramesEmitted,
				"overwrites", s.FramesOverwritten,
				"empty_ticks", s.EmptyTicks,
				"backpressure_skips", s.BackpressureSkips,
				"fps_target", s.FPSTarget,
				"fps_real", fmt.Sprintf("%.2f", s.FPSReal),
				"uptime", s.Uptime.Round(time.Second),
			)
		}
	}
}
