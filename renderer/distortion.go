package renderer

import (
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/darkroomengineering/satus-sub000/gpu"
)

// flowSurfaceShader draws an animated two-color gradient whose lookup
// coordinate is pushed around by the RG channels of the flow map.
const flowSurfaceShader = `#version 330
out vec4 finalColor;

uniform vec2 resolution;
uniform float time;
uniform vec3 colorA;
uniform vec3 colorB;
uniform float flowStrength;
uniform sampler2D flowMap;

void main() {
    vec2 uv = gl_FragCoord.xy / resolution;
    vec2 flow = texture(flowMap, uv).rg;
    uv += flow * flowStrength;

    float bands = sin((uv.x + uv.y) * 9.0 + time * 0.6) * 0.5 + 0.5;
    float ripple = sin(length(uv - 0.5) * 24.0 - time * 1.3) * 0.5 + 0.5;
    float t = clamp(mix(bands, ripple, 0.35), 0.0, 1.0);
    finalColor = vec4(mix(colorA, colorB, t), 1.0);
}
`

// FlowSurface renders the distorted surface. It reads the density texture
// produced by the simulation; with no texture it draws the undistorted
// gradient.
type FlowSurface struct {
	shader          rl.Shader
	timeLoc         int32
	resolutionLoc   int32
	colorALoc       int32
	colorBLoc       int32
	flowStrengthLoc int32
	flowMapLoc      int32

	width, height float32
	colorA        [3]float32
	colorB        [3]float32
	flowStrength  float32
	initialized   bool
}

// NewFlowSurface creates a surface renderer for a width×height screen.
func NewFlowSurface(width, height int32, colorA, colorB [3]float32, flowStrength float32) *FlowSurface {
	return &FlowSurface{
		width:        float32(width),
		height:       float32(height),
		colorA:       colorA,
		colorB:       colorB,
		flowStrength: flowStrength,
	}
}

// Init compiles the surface shader (must be called after raylib window is created).
func (f *FlowSurface) Init() {
	if f.initialized {
		return
	}

	f.shader = rl.LoadShaderFromMemory("", flowSurfaceShader)
	f.timeLoc = rl.GetShaderLocation(f.shader, "time")
	f.resolutionLoc = rl.GetShaderLocation(f.shader, "resolution")
	f.colorALoc = rl.GetShaderLocation(f.shader, "colorA")
	f.colorBLoc = rl.GetShaderLocation(f.shader, "colorB")
	f.flowStrengthLoc = rl.GetShaderLocation(f.shader, "flowStrength")
	f.flowMapLoc = rl.GetShaderLocation(f.shader, "flowMap")

	rl.SetShaderValue(f.shader, f.resolutionLoc, []float32{f.width, f.height}, rl.ShaderUniformVec2)
	rl.SetShaderValue(f.shader, f.colorALoc, f.colorA[:], rl.ShaderUniformVec3)
	rl.SetShaderValue(f.shader, f.colorBLoc, f.colorB[:], rl.ShaderUniformVec3)

	f.initialized = true
}

// SetFlowStrength changes the offset coefficient applied to the flow map.
func (f *FlowSurface) SetFlowStrength(v float32) { f.flowStrength = v }

// Resize updates the output resolution.
func (f *FlowSurface) Resize(width, height int32) {
	f.width, f.height = float32(width), float32(height)
	if f.initialized {
		rl.SetShaderValue(f.shader, f.resolutionLoc, []float32{f.width, f.height}, rl.ShaderUniformVec2)
	}
}

// Draw renders the surface. flow is the simulation's density texture and
// must belong to a renderer Device; nil or foreign textures disable the
// distortion for this frame.
func (f *FlowSurface) Draw(time float32, flow gpu.Texture) {
	if !f.initialized {
		f.Init()
	}

	strength := f.flowStrength
	var flowTex rl.Texture2D
	if flow != nil {
		if t, err := own(flow); err == nil {
			flowTex = t.rt.Texture
		} else {
			strength = 0
		}
	} else {
		strength = 0
	}

	rl.BeginShaderMode(f.shader)

	rl.SetShaderValue(f.shader, f.timeLoc, []float32{time}, rl.ShaderUniformFloat)
	rl.SetShaderValue(f.shader, f.flowStrengthLoc, []float32{strength}, rl.ShaderUniformFloat)
	if strength != 0 {
		rl.SetShaderValueTexture(f.shader, f.flowMapLoc, flowTex)
	}

	// Draw fullscreen quad
	rl.DrawRectangle(0, 0, int32(f.width), int32(f.height), rl.White)

	rl.EndShaderMode()
}

// Unload frees resources.
func (f *FlowSurface) Unload() {
	if f.initialized {
		rl.UnloadShader(f.shader)
		f.initialized = false
	}
}
