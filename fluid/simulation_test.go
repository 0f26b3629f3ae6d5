package fluid

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/darkroomengineering/satus-sub000/config"
	"github.com/darkroomengineering/satus-sub000/gpu"
	"github.com/darkroomengineering/satus-sub000/software"
	"github.com/darkroomengineering/satus-sub000/telemetry"
)

func init() {
	config.MustInit("")
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// halfFormats are disabled on devices that must store full floats.
var halfFormats = []gpu.Format{gpu.RGBA16F, gpu.RG16F, gpu.R16F}

func newTestSim(t *testing.T, dev gpu.Device, sim, dye int) *Simulation {
	t.Helper()
	s, err := New(dev, Options{SimResolution: sim, DyeResolution: dye, Logger: quiet})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func readback(t *testing.T, s *Simulation, tex gpu.Texture) []float32 {
	t.Helper()
	data, err := s.Readback(tex)
	if err != nil {
		t.Fatalf("Readback: %v", err)
	}
	return data
}

func TestSplat_ZeroImpulseLeavesVelocity(t *testing.T) {
	dev := software.New(software.Options{Logger: quiet})
	s := newTestSim(t, dev, 32, 32)

	s.AddSplat(Splat{X: 0.3, Y: 0.6, DX: 4, DY: -2})
	for i := 0; i < 20; i++ {
		s.Step(1.0 / 60)
		if err := s.Err(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	before := readback(t, s, s.Velocity())

	if err := s.splat(Splat{X: 0.5, Y: 0.5}, s.Params); err != nil {
		t.Fatalf("zero splat: %v", err)
	}
	after := readback(t, s, s.Velocity())

	for i := range before {
		if math.Float32bits(before[i]) != math.Float32bits(after[i]) {
			t.Fatalf("texel %d channel %d changed: %v -> %v", i/4, i%4, before[i], after[i])
		}
	}
}

func TestSplat_VelocityThirdChannelStaysZero(t *testing.T) {
	dev := software.New(software.Options{Logger: quiet})
	s := newTestSim(t, dev, 32, 32)

	for i := 0; i < 3; i++ {
		if err := s.splat(Splat{X: 0.5, Y: 0.5, DX: 3, DY: 1}, s.Params); err != nil {
			t.Fatalf("splat: %v", err)
		}
	}
	vel := readback(t, s, s.Velocity())
	for i := 2; i < len(vel); i += 4 {
		if vel[i] != 0 {
			t.Fatalf("velocity texel %d third channel = %v, want 0", i/4, vel[i])
		}
	}

	// Density still carries the unit third channel.
	dens := readback(t, s, s.Density())
	if c := dens[(16*32+16)*4+2]; c <= 0 {
		t.Errorf("density third channel at the splat = %v, want > 0", c)
	}
}

func TestSplat_NonPositiveRadiusDropped(t *testing.T) {
	for _, radius := range []float32{0, -0.2} {
		dev := software.New(software.Options{Logger: quiet})
		s := newTestSim(t, dev, 32, 32)
		s.Params.Radius = radius

		// Texel center, where a zero denominator would give 0/0.
		s.AddSplat(Splat{X: 16.5 / 32, Y: 16.5 / 32, DX: 5, DY: 5})
		s.Step(1.0 / 60)
		if err := s.Err(); err != nil {
			t.Fatalf("radius %v: step: %v", radius, err)
		}
		if got := s.LastSplats(); got != 1 {
			t.Errorf("radius %v: LastSplats = %d, want 1", radius, got)
		}

		for name, tex := range map[string]gpu.Texture{"velocity": s.Velocity(), "density": s.Density()} {
			for i, v := range readback(t, s, tex) {
				if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
					t.Fatalf("radius %v: %s texel %d channel %d = %v", radius, name, i/4, i%4, v)
				}
				if i%4 != 3 && v != 0 {
					t.Fatalf("radius %v: %s texel %d channel %d = %v, want 0", radius, name, i/4, i%4, v)
				}
			}
		}

		// A per-splat radius still applies.
		s.AddSplat(Splat{X: 0.5, Y: 0.5, DX: 5, Radius: 0.5})
		s.Step(1.0 / 60)
		if st := telemetry.ComputeFieldStats(readback(t, s, s.Velocity()), 32, 32, 0, 1); st.L2 == 0 {
			t.Errorf("radius %v: splat with its own radius left no velocity", radius)
		}
	}
}

func TestNew_PartialParamsTakeDefaults(t *testing.T) {
	dev := software.New(software.Options{Logger: quiet})
	s, err := New(dev, Options{
		SimResolution: 16,
		DyeResolution: 16,
		Params:        Params{Iterations: 10},
		Logger:        quiet,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	def := DefaultParams()
	if s.Params.Radius != def.Radius || s.Params.AspectRatio != def.AspectRatio {
		t.Errorf("radius/aspect = %v/%v, want %v/%v", s.Params.Radius, s.Params.AspectRatio, def.Radius, def.AspectRatio)
	}
	if s.Params.Iterations != 10 || s.Params.CurlStrength != 0 {
		t.Errorf("explicit fields changed: %+v", s.Params)
	}
}

func TestSplat_RadiusAndAspect(t *testing.T) {
	dev := software.New(software.Options{Unsupported: halfFormats, Logger: quiet})
	s := newTestSim(t, dev, 32, 32)
	s.Params.AspectRatio = 2

	if err := s.splat(Splat{X: 0.5, Y: 0.5, DX: 1}, s.Params); err != nil {
		t.Fatalf("splat: %v", err)
	}
	data := readback(t, s, s.Velocity())
	at := func(x, y int) float32 { return data[(y*32+x)*4] }

	// With aspect 2 the splat falls off faster along x than along y.
	if at(20, 16) >= at(16, 20) {
		t.Errorf("expected horizontal falloff to be steeper: x=%v y=%v", at(20, 16), at(16, 20))
	}

	// A per-splat radius overrides the simulation radius.
	wide := newTestSim(t, dev, 32, 32)
	if err := wide.splat(Splat{X: 0.5, Y: 0.5, DX: 1, Radius: 1}, wide.Params); err != nil {
		t.Fatalf("splat: %v", err)
	}
	wideData := readback(t, wide, wide.Velocity())
	if wideData[(16*32+24)*4] <= data[(16*32+24)*4] {
		t.Error("expected a larger radius to spread the splat further")
	}
}

// seedVelocity writes a smooth pseudo-random velocity field that vanishes
// at the walls.
func seedVelocity(t *testing.T, s *Simulation, seed int64) {
	t.Helper()
	type mode struct{ kx, ky, phase, ax, ay float64 }
	rng := rand.New(rand.NewSource(seed))
	modes := make([]mode, 4)
	for i := range modes {
		modes[i] = mode{
			kx:    float64(1 + rng.Intn(3)),
			ky:    float64(1 + rng.Intn(3)),
			phase: rng.Float64() * 2 * math.Pi,
			ax:    rng.Float64()*2 - 1,
			ay:    rng.Float64()*2 - 1,
		}
	}
	prog, err := s.dev.Compile(gpu.ProgramSource{
		Name: "seed_velocity",
		Kernel: func(f *gpu.Fragment) gpu.Vec4 {
			x, y := float64(f.UV[0]), float64(f.UV[1])
			window := math.Sin(math.Pi*x) * math.Sin(math.Pi*y)
			var vx, vy float64
			for _, m := range modes {
				arg := 2*math.Pi*(m.kx*x+m.ky*y) + m.phase
				vx += m.ax * math.Sin(arg)
				vy += m.ay * math.Cos(arg)
			}
			return gpu.Vec4{float32(vx * window), float32(vy * window), 0, 1}
		},
	})
	if err != nil {
		t.Fatalf("compile seed: %v", err)
	}
	defer prog.Release()
	if err := gpu.RunPass(s.dev, prog, nil, nil, s.velocity.Write()); err != nil {
		t.Fatalf("seed velocity: %v", err)
	}
	s.velocity.Swap()
}

func TestProject_ReducesDivergence(t *testing.T) {
	project := func(iterations int) (before, after float64) {
		dev := software.New(software.Options{Unsupported: halfFormats, Logger: quiet})
		s := newTestSim(t, dev, 32, 32)
		seedVelocity(t, s, 7)

		var err error
		if before, err = s.Divergence(); err != nil {
			t.Fatalf("divergence: %v", err)
		}
		p := s.Params
		p.Iterations = iterations
		if err := s.project(p); err != nil {
			t.Fatalf("project: %v", err)
		}
		if after, err = s.Divergence(); err != nil {
			t.Fatalf("divergence: %v", err)
		}
		return before, after
	}

	var prev float64
	var first float64
	for i, n := range []int{1, 4, 16, 64} {
		before, after := project(n)
		if before <= 0 {
			t.Fatal("seed field has no divergence")
		}
		if after >= before {
			t.Errorf("iterations=%d: divergence %v not below %v", n, after, before)
		}
		if i == 0 {
			first = after
		} else if after > prev*(1+1e-4) {
			t.Errorf("iterations=%d: divergence %v rose above %v", n, after, prev)
		}
		prev = after
	}
	if prev >= first {
		t.Errorf("64 iterations (%v) should beat 1 iteration (%v)", prev, first)
	}
}

func TestStep_DensityDecaysWithoutInput(t *testing.T) {
	dev := software.New(software.Options{Logger: quiet})
	s := newTestSim(t, dev, 32, 32)
	s.AddSplat(Splat{X: 0.5, Y: 0.5, DX: 6, DY: 3})
	s.Step(1.0 / 60)

	prev := telemetry.ComputeFieldStats(readback(t, s, s.Density()), 32, 32, 0, 1, 2).Max
	for i := 0; i < 30; i++ {
		s.Step(1.0 / 60)
		if err := s.Err(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		cur := telemetry.ComputeFieldStats(readback(t, s, s.Density()), 32, 32, 0, 1, 2).Max
		if cur >= prev {
			t.Fatalf("step %d: density max %v did not decay from %v", i, cur, prev)
		}
		prev = cur
	}
}

// velocityL2Trace splats once, then records the velocity L2 norm after each
// of n further input-free steps. The first entry is the norm right after
// the splat.
func velocityL2Trace(t *testing.T, s *Simulation, n int) []float64 {
	t.Helper()
	s.AddSplat(Splat{X: 0.4, Y: 0.6, DX: 8, DY: -5})
	s.Step(1.0 / 60)

	trace := []float64{telemetry.ComputeFieldStats(readback(t, s, s.Velocity()), 32, 32, 0, 1).L2}
	if trace[0] == 0 {
		t.Fatal("splat left no velocity")
	}
	for i := 0; i < n; i++ {
		s.Step(1.0 / 60)
		if err := s.Err(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		trace = append(trace, telemetry.ComputeFieldStats(readback(t, s, s.Velocity()), 32, 32, 0, 1).L2)
	}
	return trace
}

// Vorticity confinement amplifies existing swirl, so monotonic decay holds
// with it off. The warm-started pressure at its stock dissipation does not
// add energy.
func TestStep_VelocityDecaysWithoutInput(t *testing.T) {
	dev := software.New(software.Options{Logger: quiet})
	s := newTestSim(t, dev, 32, 32)
	s.Params.CurlStrength = 0
	if s.Params.PressureDissipation != DefaultParams().PressureDissipation {
		t.Fatalf("pressure dissipation = %v, want the default", s.Params.PressureDissipation)
	}

	trace := velocityL2Trace(t, s, 60)
	for i := 1; i < len(trace); i++ {
		if trace[i] >= trace[i-1] {
			t.Fatalf("step %d: velocity L2 %v did not decay from %v", i, trace[i], trace[i-1])
		}
	}
}

// With stock tunables confinement may grow the field for a while after a
// splat; the growth is bounded and dissipation wins afterwards.
func TestStep_DefaultParamsVelocityBounded(t *testing.T) {
	dev := software.New(software.Options{Logger: quiet})
	s := newTestSim(t, dev, 32, 32)

	trace := velocityL2Trace(t, s, 240)
	first, last := trace[0], trace[len(trace)-1]
	peak, peakAt := first, 0
	for i, v := range trace {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("step %d: velocity L2 = %v", i, v)
		}
		if v > peak {
			peak, peakAt = v, i
		}
	}
	if peak > 4*first {
		t.Errorf("velocity L2 peaked at %v (step %d), more than 4x the splat's %v", peak, peakAt, first)
	}
	if peakAt == len(trace)-1 || last >= peak {
		t.Errorf("velocity L2 still at its peak after %d steps: last %v, peak %v", len(trace)-1, last, peak)
	}
}

// windowL2 is the L2 norm of channel 0 over a square window centered on
// the middle of a w×w field.
func windowL2(data []float32, w, half int) float64 {
	var sum float64
	for y := w/2 - half; y < w/2+half; y++ {
		for x := w/2 - half; x < w/2+half; x++ {
			v := float64(data[(y*w+x)*4])
			sum += v * v
		}
	}
	return math.Sqrt(sum)
}

func TestStep_CenterSplatScenario(t *testing.T) {
	const res = 64
	const dt = float32(1.0 / 60)

	dev := software.New(software.Options{Logger: quiet})
	s := newTestSim(t, dev, res, res)
	s.AddSplat(Splat{X: 0.5, Y: 0.5, DX: 10, DY: 0})

	s.Step(dt)
	if err := s.Err(); err != nil {
		t.Fatalf("step 1: %v", err)
	}
	// The divergence target still holds the pre-solve divergence of step 1.
	divInjected := windowL2(readback(t, s, s.divergence), res, 8)
	first := telemetry.ComputeFieldStats(readback(t, s, s.Density()), res, res, 2)
	if first.Mass == 0 {
		t.Fatal("splat injected no density")
	}

	for i := 2; i <= 10; i++ {
		s.Step(dt)
	}
	tenth := telemetry.ComputeFieldStats(readback(t, s, s.Density()), res, res, 2)
	if tenth.CentroidX <= first.CentroidX || tenth.CentroidX-0.5 < 5e-4 {
		t.Errorf("centroid x did not move right: step1=%v step10=%v", first.CentroidX, tenth.CentroidX)
	}
	if math.Abs(tenth.CentroidY-0.5) > 0.01 {
		t.Errorf("centroid y drifted: %v", tenth.CentroidY)
	}

	for i := 11; i <= 60; i++ {
		s.Step(dt)
	}
	if err := s.Err(); err != nil {
		t.Fatalf("step 60: %v", err)
	}
	last := telemetry.ComputeFieldStats(readback(t, s, s.Density()), res, res, 2)
	ratio := last.Mass / first.Mass
	want := math.Pow(0.97, 59)
	if ratio < want*0.5 || ratio > want*1.5 {
		t.Errorf("density mass ratio %v, want about %v", ratio, want)
	}

	div, err := s.Divergence()
	if err != nil {
		t.Fatalf("divergence: %v", err)
	}
	divLate := windowL2(readback(t, s, s.divergence), res, 8)
	if divLate >= divInjected {
		t.Errorf("divergence near splat %v not below post-injection %v (total %v)", divLate, divInjected, div)
	}
}

func TestStep_ManualFilteringMatchesLinear(t *testing.T) {
	run := func(dev *software.Device) *Simulation {
		s := newTestSim(t, dev, 32, 64)
		s.AddSplat(Splat{X: 0.3, Y: 0.4, DX: 12, DY: 6})
		for i := 0; i < 10; i++ {
			s.Step(1.0 / 60)
		}
		if err := s.Err(); err != nil {
			t.Fatalf("step: %v", err)
		}
		return s
	}

	linear := run(software.New(software.Options{Unsupported: halfFormats, Logger: quiet}))
	manual := run(software.New(software.Options{Unsupported: halfFormats, NearestOnly: true, Logger: quiet}))
	if linear.Formats().ManualFiltering() {
		t.Fatal("expected hardware filtering on the default device")
	}
	if !manual.Formats().ManualFiltering() {
		t.Fatal("expected manual filtering on a nearest-only device")
	}

	a := readback(t, linear, linear.Density())
	b := readback(t, manual, manual.Density())
	var worst float64
	for i := range a {
		worst = math.Max(worst, math.Abs(float64(a[i]-b[i])))
	}
	if worst > 1e-2 {
		t.Errorf("manual and hardware filtering differ by %v", worst)
	}
}

func TestStep_DrainsSource(t *testing.T) {
	calls := 0
	src := SplatSourceFunc(func() []Splat {
		calls++
		if calls == 1 {
			return []Splat{{X: 0.5, Y: 0.5, DX: 1}, {X: 0.2, Y: 0.2, DY: 1}}
		}
		return nil
	})
	dev := software.New(software.Options{Logger: quiet})
	s, err := New(dev, Options{SimResolution: 16, DyeResolution: 16, Source: src, Logger: quiet})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.AddSplat(Splat{X: 0.7, Y: 0.7, DX: -1})

	s.Step(1.0 / 60)
	rec, err := s.Sample(1.0 / 60)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if rec.Splats != 3 {
		t.Errorf("got %d splats in first step, want 3", rec.Splats)
	}
	if rec.DensityMass == 0 || rec.VelocityL2 == 0 {
		t.Errorf("expected non-empty fields: %+v", rec)
	}

	s.Step(1.0 / 60)
	if rec, _ := s.Sample(0); rec.Splats != 0 {
		t.Errorf("queue not drained: %d splats in second step", rec.Splats)
	}
}

func TestDispose(t *testing.T) {
	dev := software.New(software.Options{Logger: quiet})
	s := newTestSim(t, dev, 16, 32)
	if dev.LiveTargets() == 0 {
		t.Fatal("expected live targets after New")
	}

	s.Dispose()
	s.Dispose()
	if n := dev.LiveTargets(); n != 0 {
		t.Errorf("%d targets leaked after Dispose", n)
	}
	if tex := s.Step(1.0 / 60); tex != nil {
		t.Error("disposed simulation returned a texture")
	}
	if !errors.Is(s.Err(), ErrDisposed) {
		t.Errorf("Err = %v, want ErrDisposed", s.Err())
	}
	if err := s.Resize(8, 8); !errors.Is(err, ErrDisposed) {
		t.Errorf("Resize after Dispose = %v, want ErrDisposed", err)
	}

	if err := s.Recreate(dev); err != nil {
		t.Fatalf("Recreate: %v", err)
	}
	if tex := s.Step(1.0 / 60); tex == nil {
		t.Error("recreated simulation returned no texture")
	}
}

func TestContextLossAndRecreate(t *testing.T) {
	dev := software.New(software.Options{Logger: quiet})
	s := newTestSim(t, dev, 16, 16)
	s.Params.CurlStrength = 5
	s.Step(1.0 / 60)

	dev.Lose()
	if tex := s.Step(1.0 / 60); tex == nil {
		t.Fatal("expected the previous density texture after context loss")
	}
	if !errors.Is(s.Err(), gpu.ErrContextLost) {
		t.Fatalf("Err = %v, want ErrContextLost", s.Err())
	}

	fresh := software.New(software.Options{Logger: quiet})
	if err := s.Recreate(fresh); err != nil {
		t.Fatalf("Recreate: %v", err)
	}
	if s.Params.CurlStrength != 5 {
		t.Error("Recreate should keep the current params")
	}
	s.AddSplat(Splat{X: 0.5, Y: 0.5, DX: 3})
	s.Step(1.0 / 60)
	if err := s.Err(); err != nil {
		t.Fatalf("step after Recreate: %v", err)
	}
	if s.Device() != gpu.Device(fresh) {
		t.Error("simulation still bound to the lost device")
	}
}

func TestResize(t *testing.T) {
	dev := software.New(software.Options{Logger: quiet})
	s := newTestSim(t, dev, 16, 16)
	live := dev.LiveTargets()

	if err := s.Resize(8, 24); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if w, h := s.Velocity().Size(); w != 8 || h != 8 {
		t.Errorf("velocity size %dx%d, want 8x8", w, h)
	}
	if w, h := s.Density().Size(); w != 24 || h != 24 {
		t.Errorf("density size %dx%d, want 24x24", w, h)
	}
	if n := dev.LiveTargets(); n != live {
		t.Errorf("live targets %d after resize, want %d", n, live)
	}
	s.AddSplat(Splat{X: 0.5, Y: 0.5, DX: 1})
	s.Step(1.0 / 60)
	if err := s.Err(); err != nil {
		t.Fatalf("step after Resize: %v", err)
	}
	if err := s.Resize(0, 8); err == nil {
		t.Error("expected error for zero resolution")
	}
}

// failingDevice rejects one program at compile time.
type failingDevice struct {
	*software.Device
	fail string
}

func (d failingDevice) Compile(src gpu.ProgramSource) (gpu.Program, error) {
	if src.Name == d.fail {
		return nil, errors.New("0:12: syntax error")
	}
	return d.Device.Compile(src)
}

func TestNew_CompileFailureNamesPass(t *testing.T) {
	inner := software.New(software.Options{Logger: quiet})
	_, err := New(failingDevice{Device: inner, fail: passVorticity}, Options{SimResolution: 8, DyeResolution: 8, Logger: quiet})
	if err == nil {
		t.Fatal("expected compile error")
	}
	if !strings.Contains(err.Error(), "compile vorticity") {
		t.Errorf("error does not name the pass: %v", err)
	}
	if n := inner.LiveTargets(); n != 0 {
		t.Errorf("%d targets leaked after failed New", n)
	}
}

func TestNew_Unsupported(t *testing.T) {
	dev := software.New(software.Options{Unsupported: gpu.Candidates, Logger: quiet})
	_, err := New(dev, Options{Logger: quiet})
	if !errors.Is(err, gpu.ErrUnsupported) {
		t.Fatalf("New = %v, want ErrUnsupported", err)
	}
}

func TestParamsFromConfig(t *testing.T) {
	p := ParamsFromConfig(config.Cfg())
	want := DefaultParams()
	want.AspectRatio = config.Cfg().Derived.AspectRatio
	if p != want {
		t.Errorf("ParamsFromConfig = %+v, want %+v", p, want)
	}
}
