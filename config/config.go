// Package config provides configuration loading and access for the flow simulation.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/darkroomengineering/satus-sub000/gpu"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all configuration parameters.
type Config struct {
	Screen    ScreenConfig    `yaml:"screen"`
	Fluid     FluidConfig     `yaml:"fluid"`
	Input     InputConfig     `yaml:"input"`
	GPU       GPUConfig       `yaml:"gpu"`
	Effect    EffectConfig    `yaml:"effect"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Stream    StreamConfig    `yaml:"stream"`
	Headless  HeadlessConfig  `yaml:"headless"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// ScreenConfig holds display settings.
type ScreenConfig struct {
	Width     int `yaml:"width"`
	Height    int `yaml:"height"`
	TargetFPS int `yaml:"target_fps"`
}

// FluidConfig holds the simulation resolution and the solver tunables.
type FluidConfig struct {
	SimResolution       int     `yaml:"sim_resolution"`       // Velocity/pressure grid edge
	DyeResolution       int     `yaml:"dye_resolution"`       // Density grid edge (0 = sim_resolution)
	Iterations          int     `yaml:"iterations"`           // Jacobi passes per frame
	DensityDissipation  float64 `yaml:"density_dissipation"`  // Per-step dye decay
	VelocityDissipation float64 `yaml:"velocity_dissipation"` // Per-step velocity decay
	PressureDissipation float64 `yaml:"pressure_dissipation"` // Pressure carried into the next solve
	CurlStrength        float64 `yaml:"curl_strength"`        // Vorticity confinement scale
	Radius              float64 `yaml:"radius"`               // Splat radius in normalized splat units
}

// InputConfig holds pointer capture parameters.
type InputConfig struct {
	Sensitivity float64 `yaml:"sensitivity"` // Impulse per pixel of pointer motion
	Radius      float64 `yaml:"radius"`      // Per-splat radius (0 = simulation radius)
}

// GPUConfig holds device negotiation overrides.
type GPUConfig struct {
	DisabledFormats []string `yaml:"disabled_formats"` // Formats treated as unsupported, e.g. RGBA16F
	ForceNearest    bool     `yaml:"force_nearest"`    // Skip the linear filtering probe
}

// EffectConfig holds parameters of the flow-distorted surface.
type EffectConfig struct {
	FlowStrength float64 `yaml:"flow_strength"` // Flow map offset coefficient
	ColorA       []int   `yaml:"color_a"`       // Gradient start, RGB 0-255
	ColorB       []int   `yaml:"color_b"`       // Gradient end, RGB 0-255
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	PerfWindow    int `yaml:"perf_window"`    // Steps averaged by the perf collector
	StatsInterval int `yaml:"stats_interval"` // Steps between field statistics samples
}

// StreamConfig holds the websocket server parameters.
type StreamConfig struct {
	Addr            string `yaml:"addr"`
	FrameIntervalMS int    `yaml:"frame_interval_ms"` // Milliseconds between broadcast frames
	FrameResolution int    `yaml:"frame_resolution"`  // Edge of the downsampled broadcast field
}

// HeadlessConfig holds parameters for runs on the software device.
type HeadlessConfig struct {
	Steps       int     `yaml:"steps"`
	DT          float64 `yaml:"dt"`
	Seed        int64   `yaml:"seed"`
	WanderSpeed float64 `yaml:"wander_speed"` // Noise-space units per second of the synthetic pointer
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	DT32            float32       // Headless.DT as float32
	AspectRatio     float32       // Screen.Width / Screen.Height
	DyeResolution   int           // Effective dye resolution
	DisabledFormats []gpu.Format  // Parsed GPU.DisabledFormats
	FrameInterval   time.Duration // Stream.FrameIntervalMS as a duration
	ColorA          [3]float32    // Effect.ColorA normalized to [0,1]
	ColorB          [3]float32    // Effect.ColorB normalized to [0,1]
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.computeDerived(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() error {
	if c.Fluid.SimResolution <= 0 {
		return fmt.Errorf("fluid.sim_resolution must be positive, got %d", c.Fluid.SimResolution)
	}
	if c.Fluid.Iterations < 0 {
		return fmt.Errorf("fluid.iterations must not be negative, got %d", c.Fluid.Iterations)
	}
	if !(c.Fluid.Radius > 0) {
		return fmt.Errorf("fluid.radius must be positive, got %v", c.Fluid.Radius)
	}
	if c.Input.Radius < 0 {
		return fmt.Errorf("input.radius must not be negative, got %v", c.Input.Radius)
	}

	c.Derived.DT32 = float32(c.Headless.DT)

	c.Derived.AspectRatio = 1
	if c.Screen.Width > 0 && c.Screen.Height > 0 {
		c.Derived.AspectRatio = float32(c.Screen.Width) / float32(c.Screen.Height)
	}

	c.Derived.DyeResolution = c.Fluid.DyeResolution
	if c.Derived.DyeResolution == 0 {
		c.Derived.DyeResolution = c.Fluid.SimResolution
	}

	c.Derived.DisabledFormats = c.Derived.DisabledFormats[:0]
	for _, name := range c.GPU.DisabledFormats {
		f, err := gpu.ParseFormat(name)
		if err != nil {
			return fmt.Errorf("gpu.disabled_formats: %w", err)
		}
		c.Derived.DisabledFormats = append(c.Derived.DisabledFormats, f)
	}

	c.Derived.FrameInterval = time.Duration(c.Stream.FrameIntervalMS) * time.Millisecond

	var err error
	if c.Derived.ColorA, err = normalizeColor(c.Effect.ColorA); err != nil {
		return fmt.Errorf("effect.color_a: %w", err)
	}
	if c.Derived.ColorB, err = normalizeColor(c.Effect.ColorB); err != nil {
		return fmt.Errorf("effect.color_b: %w", err)
	}
	return nil
}

func normalizeColor(rgb []int) ([3]float32, error) {
	var out [3]float32
	if len(rgb) != 3 {
		return out, fmt.Errorf("want 3 components, got %d", len(rgb))
	}
	for i, v := range rgb {
		if v < 0 || v > 255 {
			return out, fmt.Errorf("component %d out of range: %d", i, v)
		}
		out[i] = float32(v) / 255
	}
	return out, nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
