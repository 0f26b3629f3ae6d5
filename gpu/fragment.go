package gpu

import "math"

// Vec2 is a GLSL-style vec2.
type Vec2 [2]float32

// Vec4 is a GLSL-style vec4.
type Vec4 [4]float32

func (a Vec2) Add(b Vec2) Vec2 { return Vec2{a[0] + b[0], a[1] + b[1]} }
func (a Vec2) Sub(b Vec2) Vec2 { return Vec2{a[0] - b[0], a[1] - b[1]} }
func (a Vec2) Scale(s float32) Vec2 { return Vec2{a[0] * s, a[1] * s} }
func (a Vec2) Mul(b Vec2) Vec2 { return Vec2{a[0] * b[0], a[1] * b[1]} }
func (a Vec2) Dot(b Vec2) float32 { return a[0]*b[0] + a[1]*b[1] }
func (a Vec2) Length() float32 { return float32(math.Sqrt(float64(a.Dot(a)))) }
func (a Vec4) Scale(s float32) Vec4 { return Vec4{a[0] * s, a[1] * s, a[2] * s, a[3] * s} }
func (a Vec4) XY() Vec2 { return Vec2{a[0], a[1]} }

// Mix linearly interpolates between a and b, like GLSL mix.
func Mix(a, b Vec4, t float32) Vec4 {
	return Vec4{
		a[0] + (b[0]-a[0])*t,
		a[1] + (b[1]-a[1])*t,
		a[2] + (b[2]-a[2])*t,
		a[3] + (b[3]-a[3])*t,
	}
}

// Sampler reads a bound texture at a uv coordinate using its filter and
// clamp-to-edge addressing.
type Sampler interface {
	Sample(uv Vec2) Vec4
}

// Fragment is the per-texel invocation state handed to a Kernel. It mirrors
// what a GLSL fragment shader sees: its own uv, the output texel size, the
// bound samplers and the pass uniforms.
type Fragment struct {
	UV       Vec2
	Texel    Vec2
	Uniforms Uniforms
	Inputs   []Sampler
}

// Sample reads input i at uv.
func (f *Fragment) Sample(i int, uv Vec2) Vec4 {
	return f.Inputs[i].Sample(uv)
}

// Kernel is the CPU rendition of a fragment program.
type Kernel func(f *Fragment) Vec4

// FragmentPrelude is prepended to every GLSL fragment body. Programs derive
// their uv from gl_FragCoord so the same body works for any target size.
const FragmentPrelude = `#version 330
precision highp float;
out vec4 finalColor;
uniform vec2 uOutputTexel;
vec2 fragUv() { return gl_FragCoord.xy * uOutputTexel; }
`
