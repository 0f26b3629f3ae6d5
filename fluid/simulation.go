// Package fluid runs a stable-fluids simulation as a fixed sequence of
// fullscreen passes over ping-ponged float render targets. The density
// texture it produces carries a flow-offset vector in its RG channels.
package fluid

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/darkroomengineering/satus-sub000/gpu"
	"github.com/darkroomengineering/satus-sub000/telemetry"
)

// ErrDisposed is returned by operations on a disposed simulation.
var ErrDisposed = errors.New("fluid: simulation disposed")

const (
	defaultSimResolution = 128
	defaultDyeResolution = 512
)

// Options configures a Simulation.
type Options struct {
	SimResolution int // Velocity and pressure grid edge (default 128)
	DyeResolution int // Density grid edge (default 512)

	// Params are the initial tunables. The zero value means DefaultParams.
	// In a partially filled Params a zero Radius or AspectRatio takes the
	// default; every other field is used as given, so zero Iterations,
	// dissipation or CurlStrength are honored.
	Params Params

	// Source is drained at the start of every Step. Optional.
	Source SplatSource

	Negotiate gpu.NegotiateOptions
	Perf      *telemetry.PerfCollector
	Logger    *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.SimResolution == 0 {
		o.SimResolution = defaultSimResolution
	}
	if o.DyeResolution == 0 {
		o.DyeResolution = defaultDyeResolution
	}
	def := DefaultParams()
	if o.Params == (Params{}) {
		o.Params = def
	}
	if o.Params.Radius == 0 {
		o.Params.Radius = def.Radius
	}
	if o.Params.AspectRatio == 0 {
		o.Params.AspectRatio = def.AspectRatio
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Negotiate.Logger == nil {
		o.Negotiate.Logger = o.Logger
	}
	return o
}

// programs holds one compiled program per pass.
type programs struct {
	splat      gpu.Program
	curl       gpu.Program
	vorticity  gpu.Program
	divergence gpu.Program
	clear      gpu.Program
	pressure   gpu.Program
	gradient   gpu.Program
	advection  gpu.Program
}

func (p *programs) all() []gpu.Program {
	return []gpu.Program{p.splat, p.curl, p.vorticity, p.divergence, p.clear, p.pressure, p.gradient, p.advection}
}

// Simulation owns every field of one fluid instance. It is driven from a
// single goroutine; Step is never re-entrant.
type Simulation struct {
	// Params is read at the start of every Step.
	Params Params

	opts Options
	dev  gpu.Device
	log  *slog.Logger
	perf *telemetry.PerfCollector

	formats  gpu.Formats
	programs programs

	velocity   *gpu.DoubleBuffer
	density    *gpu.DoubleBuffer
	pressure   *gpu.DoubleBuffer
	divergence gpu.Target
	curl       gpu.Target

	queue      []Splat
	lastSplats int
	steps      int
	err        error
	disposed   bool
}

// New negotiates formats on dev, compiles every pass and allocates the
// fields. It fails with an error wrapping gpu.ErrUnsupported when dev has no
// usable float render target; callers then run without the flow effect.
func New(dev gpu.Device, opts Options) (*Simulation, error) {
	if dev == nil {
		return nil, errors.New("fluid: nil device")
	}
	opts = opts.withDefaults()
	if opts.SimResolution < 1 || opts.DyeResolution < 1 {
		return nil, fmt.Errorf("fluid: invalid resolution sim=%d dye=%d", opts.SimResolution, opts.DyeResolution)
	}

	s := &Simulation{
		Params: opts.Params,
		opts:   opts,
		log:    opts.Logger,
		perf:   opts.Perf,
	}
	if err := s.build(dev); err != nil {
		return nil, err
	}
	return s, nil
}

// build negotiates, compiles and allocates on dev. On failure everything
// created so far is released.
func (s *Simulation) build(dev gpu.Device) error {
	s.dev = dev

	formats, err := gpu.Negotiate(dev, s.opts.Negotiate)
	if err != nil {
		return fmt.Errorf("fluid: %w", err)
	}
	s.formats = formats

	if err := s.compile(); err != nil {
		s.release()
		return err
	}
	if err := s.allocate(); err != nil {
		s.release()
		return err
	}

	s.log.Info("fluid simulation ready",
		"device", dev.Name(),
		"sim_resolution", s.opts.SimResolution,
		"dye_resolution", s.opts.DyeResolution,
		"density_format", formats.Density.String(),
		"velocity_format", formats.Velocity.String(),
		"scalar_format", formats.Scalar.String(),
		"filter", formats.Filter.String(),
	)
	return nil
}

func (s *Simulation) compile() error {
	advection := advectionProgram
	if s.formats.ManualFiltering() {
		advection = advectionManualProgram
	}

	compile := func(src gpu.ProgramSource) (gpu.Program, error) {
		p, err := s.dev.Compile(src)
		if err != nil {
			return nil, fmt.Errorf("fluid: compile %s: %w", src.Name, err)
		}
		return p, nil
	}

	var err error
	p := &s.programs
	for _, c := range []struct {
		dst *gpu.Program
		src gpu.ProgramSource
	}{
		{&p.splat, splatProgram},
		{&p.curl, curlProgram},
		{&p.vorticity, vorticityProgram},
		{&p.divergence, divergenceProgram},
		{&p.clear, clearProgram},
		{&p.pressure, pressureProgram},
		{&p.gradient, gradientProgram},
		{&p.advection, advection},
	} {
		if *c.dst, err = compile(c.src); err != nil {
			return err
		}
	}
	return nil
}

func (s *Simulation) allocate() error {
	sim, dye := s.opts.SimResolution, s.opts.DyeResolution
	f := s.formats

	var err error
	if s.velocity, err = gpu.NewDoubleBuffer(s.dev, sim, sim, f.Velocity, f.Filter); err != nil {
		return fmt.Errorf("fluid: velocity: %w", err)
	}
	if s.density, err = gpu.NewDoubleBuffer(s.dev, dye, dye, f.Density, f.Filter); err != nil {
		return fmt.Errorf("fluid: density: %w", err)
	}
	if s.pressure, err = gpu.NewDoubleBuffer(s.dev, sim, sim, f.Scalar, gpu.Nearest); err != nil {
		return fmt.Errorf("fluid: pressure: %w", err)
	}
	if s.divergence, err = s.dev.NewTarget(sim, sim, f.Scalar, gpu.Nearest); err != nil {
		return fmt.Errorf("fluid: divergence: %w", err)
	}
	if s.curl, err = s.dev.NewTarget(sim, sim, f.Scalar, gpu.Nearest); err != nil {
		return fmt.Errorf("fluid: curl: %w", err)
	}
	return nil
}

// releaseTargets frees every field.
func (s *Simulation) releaseTargets() {
	for _, db := range []*gpu.DoubleBuffer{s.velocity, s.density, s.pressure} {
		if db != nil {
			db.Release()
		}
	}
	for _, t := range []gpu.Target{s.divergence, s.curl} {
		if t != nil {
			t.Release()
		}
	}
	s.velocity, s.density, s.pressure = nil, nil, nil
	s.divergence, s.curl = nil, nil
}

func (s *Simulation) release() {
	s.releaseTargets()
	for _, p := range s.programs.all() {
		if p != nil {
			p.Release()
		}
	}
	s.programs = programs{}
}

// AddSplat queues a splat for the next Step.
func (s *Simulation) AddSplat(sp Splat) {
	s.queue = append(s.queue, sp)
}

// Step advances the simulation by dt seconds and returns the density
// texture. A failing pass abandons the rest of the step; the error is
// logged, kept for Err, and the current density texture is returned.
// A disposed simulation returns nil.
func (s *Simulation) Step(dt float32) gpu.Texture {
	if s.disposed {
		return nil
	}

	s.perf.StartStep()
	err := s.step(dt)
	s.perf.EndStep()

	if err != nil {
		if s.err == nil {
			s.log.Error("fluid step failed", "step", s.steps, "error", err)
		} else {
			s.log.Debug("fluid step failed", "step", s.steps, "error", err)
		}
		if errors.Is(err, gpu.ErrContextLost) && !errors.Is(s.err, gpu.ErrContextLost) {
			s.log.Warn("gpu context lost, simulation needs Recreate", "device", s.dev.Name())
		}
	}
	s.err = err
	return s.density.Read()
}

func (s *Simulation) step(dt float32) error {
	p := s.Params

	splats := s.drain()
	s.lastSplats = len(splats)

	s.perf.StartPhase(telemetry.PhaseSplat)
	for _, sp := range splats {
		if err := s.splat(sp, p); err != nil {
			return err
		}
	}

	velTexel := gpu.TexelSize(s.velocity.Read())

	s.perf.StartPhase(telemetry.PhaseCurl)
	if err := gpu.RunPass(s.dev, s.programs.curl,
		[]gpu.Binding{{Name: "uVelocity", Texture: s.velocity.Read()}},
		StencilUniforms{Texel: velTexel}, s.curl); err != nil {
		return err
	}

	s.perf.StartPhase(telemetry.PhaseVorticity)
	if err := gpu.RunPass(s.dev, s.programs.vorticity,
		[]gpu.Binding{
			{Name: "uVelocity", Texture: s.velocity.Read()},
			{Name: "uCurl", Texture: s.curl},
		},
		VorticityUniforms{Texel: velTexel, CurlStrength: p.CurlStrength, DT: dt},
		s.velocity.Write()); err != nil {
		return err
	}
	s.velocity.Swap()

	if err := s.project(p); err != nil {
		return err
	}

	s.perf.StartPhase(telemetry.PhaseAdvectVel)
	if err := s.advect(s.velocity, dt, p.VelocityDissipation); err != nil {
		return err
	}

	s.perf.StartPhase(telemetry.PhaseAdvectDye)
	if err := s.advect(s.density, dt, p.DensityDissipation); err != nil {
		return err
	}

	s.steps++
	return nil
}

func (s *Simulation) drain() []Splat {
	var splats []Splat
	if s.opts.Source != nil {
		splats = s.opts.Source.DrainPendingSplats()
	}
	if len(s.queue) > 0 {
		splats = append(splats, s.queue...)
		s.queue = s.queue[:0]
	}
	return splats
}

// splat adds one Gaussian impulse to velocity and density. Velocity gets
// (DX, DY, 0) and is left untouched by a zero impulse; density gets
// (DX, DY, 1). A splat whose resolved radius is not positive is dropped.
func (s *Simulation) splat(sp Splat, p Params) error {
	radius := sp.Radius
	if radius == 0 {
		radius = p.Radius
	}
	if !(radius > 0) {
		s.log.Debug("splat dropped", "radius", radius, "x", sp.X, "y", sp.Y)
		return nil
	}
	aspect := p.AspectRatio
	if aspect == 0 {
		aspect = 1
	}
	u := SplatUniforms{
		Point:       gpu.Vec2{sp.X, sp.Y},
		Radius:      radius / 100,
		AspectRatio: aspect,
	}
	if sp.DX != 0 || sp.DY != 0 {
		u.Color = [3]float32{sp.DX, sp.DY, 0}
		if err := s.splatInto(s.velocity, u); err != nil {
			return err
		}
	}
	u.Color = [3]float32{sp.DX, sp.DY, 1}
	return s.splatInto(s.density, u)
}

func (s *Simulation) splatInto(field *gpu.DoubleBuffer, u SplatUniforms) error {
	if err := gpu.RunPass(s.dev, s.programs.splat,
		[]gpu.Binding{{Name: "uTarget", Texture: field.Read()}},
		u, field.Write()); err != nil {
		return err
	}
	field.Swap()
	return nil
}

// project makes velocity approximately divergence free: divergence, decay
// of the previous pressure, Jacobi relaxation, gradient subtraction.
func (s *Simulation) project(p Params) error {
	velTexel := gpu.TexelSize(s.velocity.Read())

	s.perf.StartPhase(telemetry.PhaseDivergence)
	if err := s.computeDivergence(); err != nil {
		return err
	}

	s.perf.StartPhase(telemetry.PhasePressure)
	if err := gpu.RunPass(s.dev, s.programs.clear,
		[]gpu.Binding{{Name: "uTexture", Texture: s.pressure.Read()}},
		ClearUniforms{Value: p.PressureDissipation}, s.pressure.Write()); err != nil {
		return err
	}
	s.pressure.Swap()

	for i := 0; i < p.Iterations; i++ {
		if err := gpu.RunPass(s.dev, s.programs.pressure,
			[]gpu.Binding{
				{Name: "uPressure", Texture: s.pressure.Read()},
				{Name: "uDivergence", Texture: s.divergence},
			},
			StencilUniforms{Texel: velTexel}, s.pressure.Write()); err != nil {
			return err
		}
		s.pressure.Swap()
	}

	s.perf.StartPhase(telemetry.PhaseGradient)
	if err := gpu.RunPass(s.dev, s.programs.gradient,
		[]gpu.Binding{
			{Name: "uPressure", Texture: s.pressure.Read()},
			{Name: "uVelocity", Texture: s.velocity.Read()},
		},
		StencilUniforms{Texel: velTexel}, s.velocity.Write()); err != nil {
		return err
	}
	s.velocity.Swap()
	return nil
}

func (s *Simulation) computeDivergence() error {
	return gpu.RunPass(s.dev, s.programs.divergence,
		[]gpu.Binding{{Name: "uVelocity", Texture: s.velocity.Read()}},
		StencilUniforms{Texel: gpu.TexelSize(s.velocity.Read())}, s.divergence)
}

// advect transports field along the current velocity.
func (s *Simulation) advect(field *gpu.DoubleBuffer, dt, dissipation float32) error {
	u := AdvectionUniforms{
		Texel:       gpu.TexelSize(s.velocity.Read()),
		SourceTexel: gpu.TexelSize(field.Read()),
		DT:          dt,
		Dissipation: dissipation,
	}
	if err := gpu.RunPass(s.dev, s.programs.advection,
		[]gpu.Binding{
			{Name: "uVelocity", Texture: s.velocity.Read()},
			{Name: "uSource", Texture: field.Read()},
		},
		u, field.Write()); err != nil {
		return err
	}
	field.Swap()
	return nil
}

// Density returns the current density texture, or nil once disposed.
func (s *Simulation) Density() gpu.Texture {
	if s.disposed {
		return nil
	}
	return s.density.Read()
}

// Velocity returns the current velocity texture, or nil once disposed.
func (s *Simulation) Velocity() gpu.Texture {
	if s.disposed {
		return nil
	}
	return s.velocity.Read()
}

// Pressure returns the pressure from the last solve, or nil once disposed.
func (s *Simulation) Pressure() gpu.Texture {
	if s.disposed {
		return nil
	}
	return s.pressure.Read()
}

// Formats returns the negotiated formats.
func (s *Simulation) Formats() gpu.Formats { return s.formats }

// Device returns the device the simulation currently runs on.
func (s *Simulation) Device() gpu.Device { return s.dev }

// Steps returns the number of completed steps.
func (s *Simulation) Steps() int { return s.steps }

// LastSplats returns the number of splats drained by the most recent Step,
// including any dropped for a non-positive radius.
func (s *Simulation) LastSplats() int { return s.lastSplats }

// Err returns the error of the most recent Step, or nil.
func (s *Simulation) Err() error { return s.err }

// Dispose releases every target and program. It is idempotent. A disposed
// simulation ignores Step until Recreate.
func (s *Simulation) Dispose() {
	if s.disposed {
		return
	}
	s.release()
	s.queue = nil
	s.disposed = true
	s.err = ErrDisposed
	s.log.Info("fluid simulation disposed")
}

// Recreate rebuilds the simulation on dev with the same options and the
// current Params. It is the entry point after a context loss; field
// contents start from zero.
func (s *Simulation) Recreate(dev gpu.Device) error {
	if dev == nil {
		return errors.New("fluid: nil device")
	}
	if !s.disposed {
		s.release()
	}
	s.disposed = true
	if err := s.build(dev); err != nil {
		s.err = err
		return err
	}
	s.disposed = false
	s.err = nil
	return nil
}

// Resize reallocates every field at the given resolutions. Field contents
// start from zero; programs and negotiated formats are kept.
func (s *Simulation) Resize(simRes, dyeRes int) error {
	if s.disposed {
		return ErrDisposed
	}
	if simRes < 1 || dyeRes < 1 {
		return fmt.Errorf("fluid: invalid resolution sim=%d dye=%d", simRes, dyeRes)
	}
	s.releaseTargets()
	s.opts.SimResolution, s.opts.DyeResolution = simRes, dyeRes
	if err := s.allocate(); err != nil {
		s.release()
		s.disposed = true
		s.err = err
		return err
	}
	s.log.Info("fluid simulation resized", "sim_resolution", simRes, "dye_resolution", dyeRes)
	return nil
}
