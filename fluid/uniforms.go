package fluid

import "github.com/darkroomengineering/satus-sub000/gpu"

// Per-pass uniform values. Every pass gets its own struct, built fresh from
// Params each step and handed to gpu.RunPass by value.

// SplatUniforms drives the Gaussian splat pass.
type SplatUniforms struct {
	Point       gpu.Vec2
	Color       [3]float32
	Radius      float32 // Kernel denominator, already divided by 100
	AspectRatio float32
}

func (u SplatUniforms) Uniforms() []gpu.Uniform {
	return []gpu.Uniform{
		{Name: "uPoint", Values: u.Point[:]},
		{Name: "uColor", Values: u.Color[:]},
		{Name: "uRadius", Values: []float32{u.Radius}},
		{Name: "uAspectRatio", Values: []float32{u.AspectRatio}},
	}
}

// StencilUniforms carries the texel size of the field a stencil pass reads.
// Curl, divergence, Jacobi and gradient subtraction share this shape.
type StencilUniforms struct {
	Texel gpu.Vec2
}

func (u StencilUniforms) Uniforms() []gpu.Uniform {
	return []gpu.Uniform{{Name: "uTexelSize", Values: u.Texel[:]}}
}

// VorticityUniforms drives vorticity confinement.
type VorticityUniforms struct {
	Texel        gpu.Vec2
	CurlStrength float32
	DT           float32
}

func (u VorticityUniforms) Uniforms() []gpu.Uniform {
	return []gpu.Uniform{
		{Name: "uTexelSize", Values: u.Texel[:]},
		{Name: "uCurlStrength", Values: []float32{u.CurlStrength}},
		{Name: "uDt", Values: []float32{u.DT}},
	}
}

// ClearUniforms scales a field by Value.
type ClearUniforms struct {
	Value float32
}

func (u ClearUniforms) Uniforms() []gpu.Uniform {
	return []gpu.Uniform{{Name: "uValue", Values: []float32{u.Value}}}
}

// AdvectionUniforms drives semi-Lagrangian advection. Texel is the velocity
// field's texel size and scales the back-trace; SourceTexel is the texel
// size of the advected field, used only by manual bilinear filtering.
type AdvectionUniforms struct {
	Texel       gpu.Vec2
	SourceTexel gpu.Vec2
	DT          float32
	Dissipation float32
}

func (u AdvectionUniforms) Uniforms() []gpu.Uniform {
	return []gpu.Uniform{
		{Name: "uTexelSize", Values: u.Texel[:]},
		{Name: "uSourceTexelSize", Values: u.SourceTexel[:]},
		{Name: "uDt", Values: []float32{u.DT}},
		{Name: "uDissipation", Values: []float32{u.Dissipation}},
	}
}
