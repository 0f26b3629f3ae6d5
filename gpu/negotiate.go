package gpu

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
)

// probeSize is the edge length of the throwaway targets used for format checks.
const probeSize = 4

// Role is the kind of field a render target stores.
type Role int

const (
	RoleDensity Role = iota
	RoleVelocity
	RoleScalar
)

// MinChannels is the fewest channels a format needs to hold the role.
func (r Role) MinChannels() int {
	switch r {
	case RoleDensity:
		return 3
	case RoleVelocity:
		return 2
	default:
		return 1
	}
}

func (r Role) String() string {
	switch r {
	case RoleDensity:
		return "density"
	case RoleVelocity:
		return "velocity"
	default:
		return "scalar"
	}
}

// Formats is the outcome of negotiation. It applies to every target the
// simulation creates afterwards.
type Formats struct {
	Density  Format
	Velocity Format
	Scalar   Format
	Filter   Filter
}

// ManualFiltering reports whether advection must interpolate by hand.
func (f Formats) ManualFiltering() bool { return f.Filter != Linear }

// NegotiateOptions tunes Negotiate.
type NegotiateOptions struct {
	// Disabled formats are treated as failing the completeness check.
	Disabled []Format
	// ForceNearest skips the linear filtering probe.
	ForceNearest bool
	Logger       *slog.Logger
}

// Negotiate picks render target formats for each field role by walking
// Candidates in order and validating each one on dev. It returns
// ErrUnsupported when some role has no usable candidate.
func Negotiate(dev Device, opts NegotiateOptions) (Formats, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	disabled := make(map[Format]bool, len(opts.Disabled))
	for _, f := range opts.Disabled {
		disabled[f] = true
	}

	checked := make(map[Format]bool)
	supported := func(f Format) bool {
		if ok, seen := checked[f]; seen {
			return ok
		}
		ok := !disabled[f] && probeFormat(dev, f)
		checked[f] = ok
		if !ok {
			log.Debug("render target format rejected", "device", dev.Name(), "format", f.String())
		}
		return ok
	}

	var out Formats
	for _, role := range []Role{RoleDensity, RoleVelocity, RoleScalar} {
		f, ok := pickFormat(role, supported)
		if !ok {
			log.Warn("no float render target format", "device", dev.Name(), "role", role.String())
			return Formats{}, fmt.Errorf("negotiate %s: %w", role, ErrUnsupported)
		}
		switch role {
		case RoleDensity:
			out.Density = f
		case RoleVelocity:
			out.Velocity = f
		case RoleScalar:
			out.Scalar = f
		}
	}

	out.Filter = Nearest
	if !opts.ForceNearest {
		linear, err := probeLinear(dev, out.Velocity, out.Density)
		if err != nil {
			log.Warn("linear filtering probe failed", "device", dev.Name(), "error", err)
		}
		if linear {
			out.Filter = Linear
		}
	}

	log.Info("negotiated float formats",
		"device", dev.Name(),
		"density", out.Density.String(),
		"velocity", out.Velocity.String(),
		"scalar", out.Scalar.String(),
		"filter", out.Filter.String(),
	)
	return out, nil
}

// pickFormat returns the first candidate with enough channels for role.
func pickFormat(role Role, supported func(Format) bool) (Format, bool) {
	for _, f := range Candidates {
		if f.Channels < role.MinChannels() {
			continue
		}
		if supported(f) {
			return f, true
		}
	}
	return Format{}, false
}

func probeFormat(dev Device, f Format) bool {
	t, err := dev.NewTarget(probeSize, probeSize, f, Nearest)
	if err != nil {
		return false
	}
	t.Release()
	return true
}

func probeLinear(dev Device, formats ...Format) (bool, error) {
	seen := make(map[Format]bool)
	for _, f := range formats {
		if seen[f] {
			continue
		}
		seen[f] = true
		ok, err := ProbeLinearFiltering(dev, f)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

var (
	probeStepSource = ProgramSource{
		Name: "probe_step",
		Fragment: `
void main() {
    float s = step(0.5, fragUv().x);
    finalColor = vec4(s, s, s, 1.0);
}
`,
		Kernel: func(f *Fragment) Vec4 {
			if f.UV[0] >= 0.5 {
				return Vec4{1, 1, 1, 1}
			}
			return Vec4{0, 0, 0, 1}
		},
	}

	probeSampleSource = ProgramSource{
		Name: "probe_sample",
		Fragment: `
uniform sampler2D uSource;
void main() {
    finalColor = vec4(texture(uSource, vec2(0.5, fragUv().y)).rrr, 1.0);
}
`,
		Kernel: func(f *Fragment) Vec4 {
			v := f.Sample(0, Vec2{0.5, f.UV[1]})[0]
			return Vec4{v, v, v, 1}
		},
	}
)

// ProbeLinearFiltering renders a hard 0→1 edge into a 2×1 target of format
// f with linear filtering and samples exactly between the two texels. Only
// real bilinear filtering lands near 0.5 there.
func ProbeLinearFiltering(dev Device, f Format) (bool, error) {
	step, err := dev.Compile(probeStepSource)
	if err != nil {
		return false, err
	}
	defer step.Release()
	sample, err := dev.Compile(probeSampleSource)
	if err != nil {
		return false, err
	}
	defer sample.Release()

	src, err := dev.NewTarget(2, 1, f, Linear)
	if err != nil {
		return false, err
	}
	defer src.Release()
	dst, err := dev.NewTarget(1, 1, f, Nearest)
	if err != nil {
		return false, err
	}
	defer dst.Release()

	if err := RunPass(dev, step, nil, NoUniforms{}, src); err != nil {
		return false, err
	}
	if err := RunPass(dev, sample, []Binding{{Name: "uSource", Texture: src}}, NoUniforms{}, dst); err != nil {
		return false, err
	}
	px, err := dev.Read(dst)
	if err != nil {
		return false, err
	}
	if len(px) < 1 {
		return false, errors.New("gpu: empty probe readback")
	}
	return math.Abs(float64(px[0])-0.5) < 0.1, nil
}
