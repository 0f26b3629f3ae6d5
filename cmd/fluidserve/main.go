// Command fluidserve runs the flow simulation on the software device and
// streams downsampled flow frames to WebSocket clients, whose pointer
// messages stir the fluid.
//
// Usage: go run ./cmd/fluidserve -addr :8080
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/darkroomengineering/satus-sub000/config"
	"github.com/darkroomengineering/satus-sub000/fluid"
	"github.com/darkroomengineering/satus-sub000/gpu"
	"github.com/darkroomengineering/satus-sub000/software"
	"github.com/darkroomengineering/satus-sub000/stream"
	"github.com/darkroomengineering/satus-sub000/telemetry"
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	addr := flag.String("addr", "", "Listen address (empty = config stream.addr)")
	outputDir := flag.String("output-dir", "", "Output directory for step CSV logs")
	debug := flag.Bool("debug", false, "Log at debug level")
	flag.Parse()

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if *addr == "" {
		*addr = cfg.Stream.Addr
	}

	if err := run(cfg, *addr, *outputDir, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, addr, outputDir string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	output, err := telemetry.NewOutputManager(outputDir)
	if err != nil {
		return err
	}
	defer output.Close()
	if err := output.WriteConfig(cfg); err != nil {
		logger.Warn("config snapshot not written", "error", err)
	}

	dev := software.New(software.Options{
		Unsupported: cfg.Derived.DisabledFormats,
		Logger:      logger,
	})
	defer dev.Close()

	hub := stream.NewHub(stream.HubOptions{
		Sensitivity:     float32(cfg.Input.Sensitivity),
		Radius:          float32(cfg.Input.Radius),
		FrameResolution: cfg.Stream.FrameResolution,
		Device:          dev.Name(),
		Logger:          logger,
	})
	defer hub.Close()

	params := fluid.ParamsFromConfig(cfg)
	params.AspectRatio = 1
	sim, err := fluid.New(dev, fluid.Options{
		SimResolution: cfg.Fluid.SimResolution,
		DyeResolution: cfg.Derived.DyeResolution,
		Params:        params,
		Source:        hub,
		Negotiate:     gpu.NegotiateOptions{ForceNearest: cfg.GPU.ForceNearest},
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	defer sim.Dispose()

	streamer := stream.NewStreamer(sim, hub, stream.StreamerOptions{
		Interval:      cfg.Derived.FrameInterval,
		Resolution:    cfg.Stream.FrameResolution,
		StatsInterval: cfg.Telemetry.StatsInterval,
		Output:        output,
		Logger:        logger,
	})

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
			stop()
		}
	}()

	// The streamer owns the simulation until Run returns.
	err = streamer.Run(ctx)
	select {
	case serr := <-srvErr:
		err = errors.Join(err, serr)
	default:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("http shutdown", "error", serr)
	}
	return err
}
