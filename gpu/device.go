package gpu

import "errors"

var (
	// ErrUnsupported means no floating-point render target format works on
	// the device. The caller should run without the flow effect.
	ErrUnsupported = errors.New("gpu: no usable floating-point render target format")

	// ErrIncomplete is returned by Device.NewTarget when the framebuffer for
	// the requested format fails its completeness check.
	ErrIncomplete = errors.New("gpu: framebuffer incomplete")

	// ErrFeedbackLoop is returned when a pass samples the target it writes.
	ErrFeedbackLoop = errors.New("gpu: pass reads from its own output target")

	// ErrReleased is returned when a released target or program is used.
	ErrReleased = errors.New("gpu: resource already released")

	// ErrContextLost is returned by every device call after the underlying
	// context has been lost. Resources must be recreated on a new device.
	ErrContextLost = errors.New("gpu: context lost")
)

// Texture is anything a pass can sample.
type Texture interface {
	Size() (w, h int)
	Format() Format
	Filter() Filter
}

// Target is an off-screen render target. It can be drawn into and sampled.
type Target interface {
	Texture
	Release()
}

// Program is a compiled fragment program.
type Program interface {
	Name() string
	Release()
}

// Binding attaches a texture to a named sampler of a program. The position
// in the inputs slice is the sampler index seen by CPU kernels.
type Binding struct {
	Name    string
	Texture Texture
}

// Uniform is a single named float, vec2, vec3 or vec4 value.
type Uniform struct {
	Name   string
	Values []float32
}

// Uniforms is implemented by the per-pass uniform structs. Each pass owns
// its uniform values explicitly; nothing is shared between passes.
type Uniforms interface {
	Uniforms() []Uniform
}

// NoUniforms is used by passes without uniform values.
type NoUniforms struct{}

// Uniforms implements Uniforms.
func (NoUniforms) Uniforms() []Uniform { return nil }

// ProgramSource carries both renditions of a pass: GLSL for hardware
// devices and a Go kernel for the software device.
type ProgramSource struct {
	Name string
	// Fragment is GLSL 330 body code. Devices prepend FragmentPrelude.
	Fragment string
	Kernel   Kernel
}

// Device is a drawing context able to allocate float render targets and run
// fullscreen fragment programs into them.
type Device interface {
	Name() string

	// NewTarget creates a texture of the given format, attaches it to a
	// framebuffer and verifies completeness. It returns an error wrapping
	// ErrIncomplete when the format cannot be rendered to.
	NewTarget(w, h int, f Format, filter Filter) (Target, error)

	// Compile builds a program. Errors name the program.
	Compile(src ProgramSource) (Program, error)

	// Draw runs p over the whole of out. Callers go through RunPass.
	Draw(p Program, inputs []Binding, u Uniforms, out Target) error

	// Read returns the texels of t as RGBA float32, four values per texel,
	// rows ordered from v=0 upward. Missing channels read as 0, missing
	// alpha as 1.
	Read(t Texture) ([]float32, error)

	Close() error
}

// TexelSize returns the uv size of a single texel of t.
func TexelSize(t Texture) Vec2 {
	w, h := t.Size()
	return Vec2{1 / float32(w), 1 / float32(h)}
}
