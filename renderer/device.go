// Package renderer draws the flow effect with raylib: a gpu.Device backed by
// float render textures, the flow-distorted surface that consumes the
// density texture, a debug overlay and pointer polling.
package renderer

import (
	"fmt"
	"log/slog"
	"unsafe"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/darkroomengineering/satus-sub000/gpu"
)

// passVertexShader positions the fullscreen rectangle; all work happens in
// the fragment programs.
const passVertexShader = `#version 330
in vec3 vertexPosition;
uniform mat4 mvp;
void main() {
    gl_Position = mvp * vec4(vertexPosition, 1.0);
}
`

// Device is a gpu.Device on the current raylib window's GL context. It must
// be created after rl.InitWindow and used from the window's goroutine.
type Device struct {
	log    *slog.Logger
	closed bool
}

// NewDevice wraps the current raylib context.
func NewDevice(log *slog.Logger) *Device {
	if log == nil {
		log = slog.Default()
	}
	return &Device{log: log}
}

// Name implements gpu.Device.
func (d *Device) Name() string { return "raylib" }

// pixelFormat maps a float format onto raylib's pixel formats. raylib has
// no two-channel float layout, so RG fields are stored as RGB.
func pixelFormat(f gpu.Format) (rl.PixelFormat, int, bool) {
	switch f {
	case gpu.RGBA16F:
		return rl.UncompressedR16g16b16a16, 4, true
	case gpu.RG16F:
		return rl.UncompressedR16g16b16, 3, true
	case gpu.R16F:
		return rl.UncompressedR16, 1, true
	case gpu.RGBA32F:
		return rl.UncompressedR32g32b32a32, 4, true
	case gpu.RG32F:
		return rl.UncompressedR32g32b32, 3, true
	case gpu.R32F:
		return rl.UncompressedR32, 1, true
	}
	return 0, 0, false
}

// NewTarget implements gpu.Device. The texture is created through an image
// of the requested pixel format and attached to a fresh framebuffer whose
// completeness is checked before the target is handed out.
func (d *Device) NewTarget(w, h int, f gpu.Format, filter gpu.Filter) (gpu.Target, error) {
	if d.closed {
		return nil, gpu.ErrReleased
	}
	pf, stored, ok := pixelFormat(f)
	if !ok {
		return nil, fmt.Errorf("raylib: %s: %w", f, gpu.ErrIncomplete)
	}

	img := rl.GenImageColor(w, h, rl.Blank)
	rl.ImageFormat(img, pf)
	tex := rl.LoadTextureFromImage(img)
	rl.UnloadImage(img)
	if tex.ID == 0 {
		return nil, fmt.Errorf("raylib: create %s texture: %w", f, gpu.ErrIncomplete)
	}

	fbo := rl.LoadFramebuffer()
	if fbo == 0 {
		rl.UnloadTexture(tex)
		return nil, fmt.Errorf("raylib: create framebuffer for %s: %w", f, gpu.ErrIncomplete)
	}
	rl.FramebufferAttach(fbo, tex.ID, rl.AttachmentColorChannel0, rl.AttachmentTexture2d, 0)
	if !rl.FramebufferComplete(fbo) {
		rl.UnloadFramebuffer(fbo)
		rl.UnloadTexture(tex)
		return nil, fmt.Errorf("raylib: %s: %w", f, gpu.ErrIncomplete)
	}

	if filter == gpu.Linear {
		rl.SetTextureFilter(tex, rl.FilterBilinear)
	} else {
		rl.SetTextureFilter(tex, rl.FilterPoint)
	}
	rl.SetTextureWrap(tex, rl.WrapClamp)

	d.log.Debug("raylib target created", "w", w, "h", h, "format", f.String(), "filter", filter.String())
	return &target{
		rt:     rl.RenderTexture2D{ID: fbo, Texture: tex},
		w:      w,
		h:      h,
		format: f,
		filter: filter,
		stored: stored,
	}, nil
}

// Compile implements gpu.Device. raylib falls back to its default shader
// when compilation fails, so a program only counts as compiled when its
// own uOutputTexel uniform is present.
func (d *Device) Compile(src gpu.ProgramSource) (gpu.Program, error) {
	if d.closed {
		return nil, gpu.ErrReleased
	}
	if src.Fragment == "" {
		return nil, fmt.Errorf("raylib: compile %s: program has no fragment source", src.Name)
	}
	sh := rl.LoadShaderFromMemory(passVertexShader, gpu.FragmentPrelude+src.Fragment)
	texelLoc := rl.GetShaderLocation(sh, "uOutputTexel")
	if sh.ID == 0 || texelLoc < 0 {
		if sh.ID != 0 {
			rl.UnloadShader(sh)
		}
		return nil, fmt.Errorf("raylib: compile %s: shader failed to compile or link", src.Name)
	}
	return &program{
		name:     src.Name,
		shader:   sh,
		texelLoc: texelLoc,
		locs:     make(map[string]int32),
	}, nil
}

// Draw implements gpu.Device.
func (d *Device) Draw(p gpu.Program, inputs []gpu.Binding, u gpu.Uniforms, out gpu.Target) error {
	if d.closed {
		return gpu.ErrReleased
	}
	prog, ok := p.(*program)
	if !ok {
		return fmt.Errorf("raylib: foreign program %T", p)
	}
	if prog.released {
		return fmt.Errorf("raylib: program %s: %w", prog.name, gpu.ErrReleased)
	}
	dst, err := own(out)
	if err != nil {
		return err
	}
	textures := make([]rl.Texture2D, len(inputs))
	for i, in := range inputs {
		t, err := own(in.Texture)
		if err != nil {
			return fmt.Errorf("sampler %s: %w", in.Name, err)
		}
		textures[i] = t.rt.Texture
	}

	rl.BeginTextureMode(dst.rt)
	rl.BeginShaderMode(prog.shader)

	texel := gpu.TexelSize(dst)
	rl.SetShaderValue(prog.shader, prog.texelLoc, texel[:], rl.ShaderUniformVec2)
	for _, uni := range u.Uniforms() {
		loc := prog.location(uni.Name)
		if loc < 0 {
			continue
		}
		rl.SetShaderValue(prog.shader, loc, uni.Values, uniformType(len(uni.Values)))
	}
	for i, in := range inputs {
		if loc := prog.location(in.Name); loc >= 0 {
			rl.SetShaderValueTexture(prog.shader, loc, textures[i])
		}
	}

	rl.DrawRectangle(0, 0, int32(dst.w), int32(dst.h), rl.White)

	rl.EndShaderMode()
	rl.EndTextureMode()
	return nil
}

func uniformType(n int) rl.ShaderUniformDataType {
	switch n {
	case 2:
		return rl.ShaderUniformVec2
	case 3:
		return rl.ShaderUniformVec3
	case 4:
		return rl.ShaderUniformVec4
	default:
		return rl.ShaderUniformFloat
	}
}

// Read implements gpu.Device.
func (d *Device) Read(t gpu.Texture) ([]float32, error) {
	if d.closed {
		return nil, gpu.ErrReleased
	}
	src, err := own(t)
	if err != nil {
		return nil, err
	}

	img := rl.LoadImageFromTexture(src.rt.Texture)
	defer rl.UnloadImage(img)

	n := src.w * src.h
	values := make([]float32, n*src.stored)
	switch src.format.Precision {
	case gpu.Half:
		raw := unsafe.Slice((*uint16)(img.Data), n*src.stored)
		gpu.HalfToFloat32(values, raw)
	default:
		copy(values, unsafe.Slice((*float32)(img.Data), n*src.stored))
	}

	out := make([]float32, n*4)
	for i := 0; i < n; i++ {
		px := gpu.Vec4{0, 0, 0, 1}
		copy(px[:src.stored], values[i*src.stored:(i+1)*src.stored])
		copy(out[i*4:i*4+4], px[:])
	}
	return out, nil
}

// Close implements gpu.Device. The GL context itself belongs to the window.
func (d *Device) Close() error {
	d.closed = true
	return nil
}

func own(t gpu.Texture) (*target, error) {
	tt, ok := t.(*target)
	if !ok {
		return nil, fmt.Errorf("raylib: foreign texture %T", t)
	}
	if tt.released {
		return nil, gpu.ErrReleased
	}
	return tt, nil
}

type program struct {
	name     string
	shader   rl.Shader
	texelLoc int32
	locs     map[string]int32
	released bool
}

func (p *program) Name() string { return p.name }

func (p *program) location(name string) int32 {
	if loc, ok := p.locs[name]; ok {
		return loc
	}
	loc := rl.GetShaderLocation(p.shader, name)
	p.locs[name] = loc
	return loc
}

func (p *program) Release() {
	if p.released {
		return
	}
	p.released = true
	rl.UnloadShader(p.shader)
}

type target struct {
	rt       rl.RenderTexture2D
	w, h     int
	format   gpu.Format
	filter   gpu.Filter
	stored   int // Channels held by the GL texture
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
	rl.UnloadRenderTexture(t.rt)
}
