// Package game drives the flow effect: it owns the device, the simulation
// and its input, and runs either the raylib window loop or headless steps.
package game

import (
	"errors"
	"fmt"
	"log/slog"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/darkroomengineering/satus-sub000/config"
	"github.com/darkroomengineering/satus-sub000/fluid"
	"github.com/darkroomengineering/satus-sub000/gpu"
	"github.com/darkroomengineering/satus-sub000/input"
	"github.com/darkroomengineering/satus-sub000/renderer"
	"github.com/darkroomengineering/satus-sub000/software"
	"github.com/darkroomengineering/satus-sub000/telemetry"
	"github.com/darkroomengineering/satus-sub000/ui"
)

// Options configures a Game.
type Options struct {
	Seed      int64
	LogStats  bool   // Log perf and field stats every StatsInterval steps
	OutputDir string // CSV output directory (empty = disabled)
	Headless  bool   // Software device and synthetic pointer, no window
	Logger    *slog.Logger
}

// Game holds the complete demo state.
type Game struct {
	cfg  *config.Config
	opts Options
	log  *slog.Logger

	dev     gpu.Device
	sim     *fluid.Simulation // nil when the device cannot run the effect
	simErr  error
	capture *input.Capture
	wander  *input.Wander

	// Rendering (windowed only)
	poller  *renderer.PointerPoller
	surface *renderer.FlowSurface
	field   *renderer.FieldOverlay

	// UI (windowed only)
	overlays   *ui.OverlayRegistry
	hud        *ui.HUD
	perfPanel  *ui.PerfPanel
	statsPanel *ui.FieldStatsPanel
	controls   *ui.ControlsPanel
	tuning     *ui.TuningPanel

	perf       *telemetry.PerfCollector
	output     *telemetry.OutputManager
	lastRecord telemetry.StepRecord

	paused  bool
	simTime float64
	time    float32 // Wall animation time for the surface
	width   int
	height  int
}

// NewGameWithOptions creates a game. In windowed mode it must be called
// after rl.InitWindow. A device that cannot run the simulation is not an
// error: the game runs without distortion and reports why on the HUD.
func NewGameWithOptions(opts Options) (*Game, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	cfg := config.Cfg()
	g := &Game{
		cfg:    cfg,
		opts:   opts,
		log:    opts.Logger,
		perf:   telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow),
		width:  cfg.Screen.Width,
		height: cfg.Screen.Height,
	}

	output, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("game: %w", err)
	}
	g.output = output
	if err := g.output.WriteConfig(cfg); err != nil {
		g.log.Warn("config snapshot not written", "error", err)
	}

	g.capture = input.New(g.width, g.height, input.Options{
		Sensitivity: float32(cfg.Input.Sensitivity),
		Radius:      float32(cfg.Input.Radius),
		Logger:      g.log,
	})

	if opts.Headless {
		g.dev = software.New(software.Options{Logger: g.log})
		g.wander = input.NewWander(opts.Seed, g.width, g.height, float32(cfg.Headless.WanderSpeed), g.capture)
	} else {
		g.dev = renderer.NewDevice(g.log)
		g.initRendering()
	}

	g.sim, g.simErr = fluid.New(g.dev, g.simOptions())
	if g.simErr != nil {
		g.log.Warn("flow effect unavailable, running without distortion", "device", g.dev.Name(), "error", g.simErr)
		g.sim = nil
	} else {
		f := g.sim.Formats()
		g.log.Info("flow effect ready",
			"device", g.dev.Name(),
			"density", f.Density.String(),
			"velocity", f.Velocity.String(),
			"scalar", f.Scalar.String(),
			"filter", f.Filter.String(),
		)
	}
	return g, nil
}

func (g *Game) simOptions() fluid.Options {
	params := fluid.ParamsFromConfig(g.cfg)
	params.AspectRatio = float32(g.width) / float32(max(g.height, 1))
	return fluid.Options{
		SimResolution: g.cfg.Fluid.SimResolution,
		DyeResolution: g.cfg.Derived.DyeResolution,
		Params:        params,
		Source:        g.capture,
		Negotiate: gpu.NegotiateOptions{
			Disabled:     g.cfg.Derived.DisabledFormats,
			ForceNearest: g.cfg.GPU.ForceNearest,
		},
		Perf:   g.perf,
		Logger: g.log,
	}
}

func (g *Game) initRendering() {
	g.poller = renderer.NewPointerPoller(g.capture)
	g.surface = renderer.NewFlowSurface(int32(g.width), int32(g.height),
		g.cfg.Derived.ColorA, g.cfg.Derived.ColorB, float32(g.cfg.Effect.FlowStrength))
	g.surface.Init()
	g.field = renderer.NewFieldOverlay()

	g.overlays = ui.NewOverlayRegistry()
	g.hud = ui.NewHUD()
	g.perfPanel = ui.NewPerfPanel(int32(g.width)-300, 10)
	g.statsPanel = ui.NewFieldStatsPanel(10, 110, 260)
	g.controls = ui.NewControlsPanel(int32(g.width)-220, int32(g.height)-230, 210)
	defaults := fluid.ParamsFromConfig(g.cfg)
	g.tuning = ui.NewTuningPanel(10, int32(g.height)-340, 300, defaults)
}

// Sim returns the simulation, or nil when the effect is unavailable.
func (g *Game) Sim() *fluid.Simulation { return g.sim }

// Steps returns the number of completed simulation steps.
func (g *Game) Steps() int {
	if g.sim == nil {
		return 0
	}
	return g.sim.Steps()
}

// Perf returns the game's perf collector.
func (g *Game) Perf() *telemetry.PerfCollector { return g.perf }

// recoverContext rebuilds the simulation after a context loss on the current
// device. It reports whether the effect is running again.
func (g *Game) recoverContext() bool {
	if g.sim == nil || !errors.Is(g.sim.Err(), gpu.ErrContextLost) {
		return false
	}
	if err := g.sim.Recreate(g.dev); err != nil {
		g.log.Warn("flow effect recreate failed", "error", err)
		return false
	}
	g.log.Info("flow effect recreated after context loss")
	return true
}

// Unload releases every resource the game owns.
func (g *Game) Unload() {
	if g.sim != nil {
		g.sim.Dispose()
	}
	g.capture.Close()
	if g.surface != nil {
		g.surface.Unload()
	}
	if g.field != nil {
		g.field.Unload()
	}
	if err := g.dev.Close(); err != nil {
		g.log.Warn("device close failed", "error", err)
	}
	if err := g.output.Close(); err != nil {
		g.log.Warn("output close failed", "error", err)
	}
}

// screenSize returns the window size, or the configured size headless.
func (g *Game) screenSize() (int, int) {
	if g.opts.Headless {
		return g.width, g.height
	}
	return rl.GetScreenWidth(), rl.GetScreenHeight()
}
