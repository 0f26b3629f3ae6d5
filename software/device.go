// Package software is a CPU implementation of gpu.Device. It runs each
// program's Go kernel once per output texel, emulates half-float storage
// and bilinear filtering, and can be told to reject formats or filtering so
// the negotiation fallbacks can be exercised without hardware.
package software

import (
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"

	"github.com/darkroomengineering/satus-sub000/gpu"
)

// parallelThreshold is the minimum number of rows worth splitting across
// workers. Smaller targets are shaded on the calling goroutine.
const parallelThreshold = 32

// Options configures a Device.
type Options struct {
	// Unsupported formats fail the framebuffer completeness check.
	Unsupported []gpu.Format
	// NearestOnly ignores linear filtering on every texture, like a context
	// without float linear filtering support.
	NearestOnly bool
	// Workers bounds row parallelism. Zero uses GOMAXPROCS.
	Workers int
	Logger  *slog.Logger
}

// Device is the CPU device.
type Device struct {
	opts        Options
	unsupported map[gpu.Format]bool
	workers     int
	log         *slog.Logger

	mu      sync.Mutex
	lost    bool
	closed  bool
	targets int
}

// New creates a software device.
func New(opts Options) *Device {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	d := &Device{
		opts:        opts,
		unsupported: make(map[gpu.Format]bool, len(opts.Unsupported)),
		workers:     workers,
		log:         log,
	}
	for _, f := range opts.Unsupported {
		d.unsupported[f] = true
	}
	return d
}

// Name implements gpu.Device.
func (d *Device) Name() string { return "software" }

// Lose simulates a lost context. Every later call fails with
// gpu.ErrContextLost.
func (d *Device) Lose() {
	d.mu.Lock()
	d.lost = true
	d.mu.Unlock()
	d.log.Warn("software device context lost")
}

// LiveTargets reports how many targets are allocated and not released.
func (d *Device) LiveTargets() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.targets
}

func (d *Device) usable() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return gpu.ErrContextLost
	}
	if d.closed {
		return gpu.ErrReleased
	}
	return nil
}

// NewTarget implements gpu.Device.
func (d *Device) NewTarget(w, h int, f gpu.Format, filter gpu.Filter) (gpu.Target, error) {
	if err := d.usable(); err != nil {
		return nil, err
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("software: invalid target size %dx%d", w, h)
	}
	if !f.Valid() || d.unsupported[f] {
		return nil, fmt.Errorf("software: %s: %w", f, gpu.ErrIncomplete)
	}
	if d.opts.NearestOnly {
		filter = gpu.Nearest
	}
	d.mu.Lock()
	d.targets++
	d.mu.Unlock()
	return &target{
		dev:    d,
		w:      w,
		h:      h,
		format: f,
		filter: filter,
		data:   make([]float32, w*h*f.Channels),
	}, nil
}

// Compile implements gpu.Device.
func (d *Device) Compile(src gpu.ProgramSource) (gpu.Program, error) {
	if err := d.usable(); err != nil {
		return nil, err
	}
	if src.Kernel == nil {
		return nil, fmt.Errorf("software: compile %s: program has no kernel", src.Name)
	}
	return &program{name: src.Name, kernel: src.Kernel}, nil
}

// Draw implements gpu.Device.
func (d *Device) Draw(p gpu.Program, inputs []gpu.Binding, u gpu.Uniforms, out gpu.Target) error {
	if err := d.usable(); err != nil {
		return err
	}
	prog, ok := p.(*program)
	if !ok {
		return fmt.Errorf("software: foreign program %T", p)
	}
	if prog.released {
		return fmt.Errorf("software: program %s: %w", prog.name, gpu.ErrReleased)
	}
	dst, err := d.own(out)
	if err != nil {
		return err
	}
	samplers := make([]gpu.Sampler, len(inputs))
	for i, in := range inputs {
		t, err := d.own(in.Texture)
		if err != nil {
			return fmt.Errorf("sampler %s: %w", in.Name, err)
		}
		samplers[i] = t
	}

	d.log.Debug("software draw", "program", prog.name, "w", dst.w, "h", dst.h, "inputs", len(inputs))

	texel := gpu.Vec2{1 / float32(dst.w), 1 / float32(dst.h)}
	shadeRows := func(y0, y1 int) {
		frag := gpu.Fragment{Texel: texel, Uniforms: u, Inputs: samplers}
		for y := y0; y < y1; y++ {
			for x := 0; x < dst.w; x++ {
				frag.UV = gpu.Ortho.FromPixels(gpu.Vec2{float32(x) + 0.5, float32(y) + 0.5}, dst.w, dst.h)
				dst.store(x, y, prog.kernel(&frag))
			}
		}
	}

	if dst.h < parallelThreshold || d.workers == 1 {
		shadeRows(0, dst.h)
		return nil
	}

	chunk := (dst.h + d.workers - 1) / d.workers
	var wg sync.WaitGroup
	for y0 := 0; y0 < dst.h; y0 += chunk {
		y1 := min(y0+chunk, dst.h)
		wg.Add(1)
		go func(y0, y1 int) {
			defer wg.Done()
			shadeRows(y0, y1)
		}(y0, y1)
	}
	wg.Wait()
	return nil
}

// Read implements gpu.Device.
func (d *Device) Read(t gpu.Texture) ([]float32, error) {
	if err := d.usable(); err != nil {
		return nil, err
	}
	src, err := d.own(t)
	if err != nil {
		return nil, err
	}
	out := make([]float32, src.w*src.h*4)
	for i := 0; i < src.w*src.h; i++ {
		v := src.texel(i)
		copy(out[i*4:i*4+4], v[:])
	}
	return out, nil
}

// Close implements gpu.Device.
func (d *Device) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func (d *Device) own(t gpu.Texture) (*target, error) {
	tt, ok := t.(*target)
	if !ok {
		return nil, fmt.Errorf("software: foreign texture %T", t)
	}
	if tt.dev != d {
		return nil, fmt.Errorf("software: texture belongs to another device")
	}
	if tt.released {
		return nil, gpu.ErrReleased
	}
	return tt, nil
}

type program struct {
	name     string
	kernel   gpu.Kernel
	released bool
}

func (p *program) Name() string { return p.name }
func (p *program) Release() { p.released = true }

type target struct {
	dev      *Device
	w, h     int
	format   gpu.Format
	filter   gpu.Filter
	data     []float32
	released bool
}

func (t *target) Size() (int, int) { return t.w, t.h }
func (t *target) Format() gpu.Format { return t.format }
func (t *target) Filter() gpu.Filter { return t.filter }

func (t *target) Release() {
	if t.released {
		return
	}
	t.released = true
	t.data = nil
	t.dev.mu.Lock()
	t.dev.targets--
	t.dev.mu.Unlock()
}

// store writes the channels the format holds, rounding half formats.
func (t *target) store(x, y int, v gpu.Vec4) {
	ch := t.format.Channels
	base := (y*t.w + x) * ch
	for c := 0; c < ch; c++ {
		if t.format.Precision == gpu.Half {
			t.data[base+c] = gpu.RoundHalf(v[c])
		} else {
			t.data[base+c] = v[c]
		}
	}
}

// texel returns texel i expanded to RGBA.
func (t *target) texel(i int) gpu.Vec4 {
	ch := t.format.Channels
	v := gpu.Vec4{0, 0, 0, 1}
	copy(v[:ch], t.data[i*ch:i*ch+ch])
	return v
}

func (t *target) fetch(x, y int) gpu.Vec4 {
	x = min(max(x, 0), t.w-1)
	y = min(max(y, 0), t.h-1)
	return t.texel(y*t.w + x)
}

// Sample implements gpu.Sampler with clamp-to-edge addressing.
func (t *target) Sample(uv gpu.Vec2) gpu.Vec4 {
	sx := uv[0] * float32(t.w)
	sy := uv[1] * float32(t.h)
	if t.filter == gpu.Nearest {
		return t.fetch(int(math.Floor(float64(sx))), int(math.Floor(float64(sy))))
	}
	sx -= 0.5
	sy -= 0.5
	fx := math.Floor(float64(sx))
	fy := math.Floor(float64(sy))
	x0, y0 := int(fx), int(fy)
	tx, ty := sx-float32(fx), sy-float32(fy)
	a := t.fetch(x0, y0)
	b := t.fetch(x0+1, y0)
	c := t.fetch(x0, y0+1)
	d := t.fetch(x0+1, y0+1)
	return gpu.Mix(gpu.Mix(a, b, tx), gpu.Mix(c, d, tx), ty)
}
