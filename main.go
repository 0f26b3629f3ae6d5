package main

import (
	"flag"
	"log/slog"
	"os"
	"time"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/darkroomengineering/satus-sub000/config"
	"github.com/darkroomengineering/satus-sub000/game"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	headless := flag.Bool("headless", false, "Run on the software device without a window")
	logStats := flag.Bool("log-stats", false, "Output field and perf stats via slog")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	seed := flag.Int64("seed", 0, "Synthetic pointer seed for headless runs (0 = config seed)")
	maxSteps := flag.Int("max-steps", 0, "Stop after N steps (0 = config headless.steps when headless, unlimited otherwise)")
	debug := flag.Bool("debug", false, "Log at debug level")

	flag.Parse()

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	// Set up slog (JSON to stdout for structured logging)
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = cfg.Headless.Seed
	}
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}

	opts := game.Options{
		Seed:      rngSeed,
		LogStats:  *logStats,
		OutputDir: *outputDir,
		Headless:  *headless,
		Logger:    logger,
	}

	if *headless {
		// Headless mode - software device, no raylib window needed
		g, err := game.NewGameWithOptions(opts)
		if err != nil {
			slog.Error("failed to start", "error", err)
			os.Exit(1)
		}
		defer g.Unload()

		steps := *maxSteps
		if steps == 0 {
			steps = cfg.Headless.Steps
		}
		slog.Info("starting headless simulation", "seed", rngSeed, "steps", steps)

		start := time.Now()
		for g.Steps() < steps {
			g.UpdateHeadless()
			if g.Sim() == nil {
				slog.Error("simulation unavailable on the software device")
				return
			}
		}
		slog.Info("headless run finished", "steps", g.Steps(), "elapsed", time.Since(start).Round(time.Millisecond))
		g.Perf().Stats().LogStats(logger)
		return
	}

	// Graphical mode
	rl.SetConfigFlags(rl.FlagWindowResizable)
	rl.InitWindow(int32(cfg.Screen.Width), int32(cfg.Screen.Height), "Flowmap")
	defer rl.CloseWindow()

	rl.SetTargetFPS(int32(cfg.Screen.TargetFPS))

	g, err := game.NewGameWithOptions(opts)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer g.Unload()

	for !rl.WindowShouldClose() {
		g.Update()
		g.Draw()

		if *maxSteps > 0 && g.Steps() >= *maxSteps {
			break
		}
	}
}
