// Shader debug tool - runs the fluid passes on the GPU for a number of
// steps and writes one field, or the distorted surface, to a PNG file.
//
// Usage: go run ./cmd/shaderdebug -view density -steps 120 -out debug.png
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/darkroomengineering/satus-sub000/config"
	"github.com/darkroomengineering/satus-sub000/fluid"
	"github.com/darkroomengineering/satus-sub000/gpu"
	"github.com/darkroomengineering/satus-sub000/input"
	"github.com/darkroomengineering/satus-sub000/renderer"
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	view := flag.String("view", "surface", "What to render: surface, velocity, density or pressure")
	steps := flag.Int("steps", 120, "Steps to run before capturing")
	seed := flag.Int64("seed", 42, "Synthetic pointer seed")
	scale := flag.Float64("scale", 0, "Field color scale (0 = per-view default)")
	outPath := flag.String("out", "debug.png", "Output PNG path")
	width := flag.Int("width", 512, "Render width")
	height := flag.Int("height", 512, "Render height")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := config.Init(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	// Initialize raylib with hidden window
	rl.SetConfigFlags(rl.FlagWindowHidden)
	rl.InitWindow(int32(*width), int32(*height), "Shader Debug")
	defer rl.CloseWindow()

	dev := renderer.NewDevice(logger)
	defer dev.Close()

	capture := input.New(*width, *height, input.Options{
		Sensitivity: float32(cfg.Input.Sensitivity),
		Radius:      float32(cfg.Input.Radius),
		Logger:      logger,
	})
	defer capture.Close()
	wander := input.NewWander(*seed, *width, *height, float32(cfg.Headless.WanderSpeed), capture)

	params := fluid.ParamsFromConfig(cfg)
	params.AspectRatio = float32(*width) / float32(*height)
	sim, err := fluid.New(dev, fluid.Options{
		SimResolution: cfg.Fluid.SimResolution,
		DyeResolution: cfg.Derived.DyeResolution,
		Params:        params,
		Source:        capture,
		Negotiate: gpu.NegotiateOptions{
			Disabled:     cfg.Derived.DisabledFormats,
			ForceNearest: cfg.GPU.ForceNearest,
		},
		Logger: logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Simulation unavailable: %v\n", err)
		os.Exit(1)
	}
	defer sim.Dispose()

	dt := cfg.Derived.DT32
	for i := 0; i < *steps; i++ {
		wander.Advance(dt)
		sim.Step(dt)
		if err := sim.Err(); err != nil {
			fmt.Fprintf(os.Stderr, "Step %d failed: %v\n", i+1, err)
			os.Exit(1)
		}
	}

	// Create render texture
	target := rl.LoadRenderTexture(int32(*width), int32(*height))
	defer rl.UnloadRenderTexture(target)

	rl.BeginTextureMode(target)
	rl.ClearBackground(rl.Black)
	if err := draw(*view, sim, float32(*scale), cfg, int32(*width), int32(*height), dt*float32(*steps)); err != nil {
		rl.EndTextureMode()
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}
	rl.EndTextureMode()

	// Get image from texture and flip it (OpenGL convention)
	img := rl.LoadImageFromTexture(target.Texture)
	rl.ImageFlipVertical(img)

	// Export to PNG
	success := rl.ExportImage(*img, *outPath)
	rl.UnloadImage(img)

	if success {
		fmt.Printf("%s after %d steps rendered to: %s (%dx%d)\n", *view, sim.Steps(), *outPath, *width, *height)
	} else {
		fmt.Fprintf(os.Stderr, "Failed to export image\n")
		os.Exit(1)
	}
}

// draw renders the requested view into the current render target.
func draw(view string, sim *fluid.Simulation, scale float32, cfg *config.Config, w, h int32, simTime float32) error {
	dst := rl.Rectangle{Width: float32(w), Height: float32(h)}

	var (
		tex      gpu.Texture
		mode     renderer.FieldView
		defScale float32
	)
	switch view {
	case "surface":
		surface := renderer.NewFlowSurface(w, h, cfg.Derived.ColorA, cfg.Derived.ColorB, float32(cfg.Effect.FlowStrength))
		surface.Init()
		defer surface.Unload()
		surface.Draw(simTime, sim.Density())
		return nil
	case "velocity":
		tex, mode, defScale = sim.Velocity(), renderer.ViewVector, 0.05
	case "density":
		tex, mode, defScale = sim.Density(), renderer.ViewDye, 0.1
	case "pressure":
		tex, mode, defScale = sim.Pressure(), renderer.ViewScalar, 0.5
	default:
		return fmt.Errorf("unknown view %q", view)
	}
	if scale == 0 {
		scale = defScale
	}

	overlay := renderer.NewFieldOverlay()
	defer overlay.Unload()
	overlay.Draw(tex, mode, scale, dst)
	return nil
}
