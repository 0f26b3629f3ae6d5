package renderer

import (
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/darkroomengineering/satus-sub000/gpu"
)

// FieldView selects how a field texture is mapped to color.
type FieldView int

const (
	ViewVector FieldView = iota // RG around mid gray
	ViewDye                     // RGB magnitude
	ViewScalar                  // R as red (positive) or blue (negative)
)

// fieldOverlayShader maps raw float fields onto displayable colors.
const fieldOverlayShader = `#version 330
in vec2 fragTexCoord;
out vec4 finalColor;

uniform sampler2D texture0;
uniform float mode;
uniform float scale;

void main() {
    vec4 v = texture(texture0, fragTexCoord) * scale;
    vec3 c;
    if (mode < 0.5) {
        c = vec3(v.rg * 0.5 + 0.5, 0.5);
    } else if (mode < 1.5) {
        c = abs(v.rgb);
    } else {
        c = vec3(max(v.r, 0.0), 0.0, max(-v.r, 0.0));
    }
    finalColor = vec4(clamp(c, 0.0, 1.0), 1.0);
}
`

// FieldOverlay draws a simulation texture into a screen rectangle.
type FieldOverlay struct {
	shader      rl.Shader
	modeLoc     int32
	scaleLoc    int32
	initialized bool
}

// NewFieldOverlay creates an overlay; the shader compiles on first use.
func NewFieldOverlay() *FieldOverlay {
	return &FieldOverlay{}
}

// Init compiles the overlay shader (must be called after raylib window is created).
func (o *FieldOverlay) Init() {
	if o.initialized {
		return
	}
	o.shader = rl.LoadShaderFromMemory("", fieldOverlayShader)
	o.modeLoc = rl.GetShaderLocation(o.shader, "mode")
	o.scaleLoc = rl.GetShaderLocation(o.shader, "scale")
	o.initialized = true
}

// Draw renders field into dst. Row 0 of a field is the bottom of the
// surface, so the source rectangle is flipped vertically. Textures not
// owned by a renderer Device are skipped.
func (o *FieldOverlay) Draw(field gpu.Texture, view FieldView, scale float32, dst rl.Rectangle) {
	if field == nil {
		return
	}
	t, err := own(field)
	if err != nil {
		return
	}
	if !o.initialized {
		o.Init()
	}

	src := rl.Rectangle{X: 0, Y: 0, Width: float32(t.w), Height: -float32(t.h)}

	rl.BeginShaderMode(o.shader)
	rl.SetShaderValue(o.shader, o.modeLoc, []float32{float32(view)}, rl.ShaderUniformFloat)
	rl.SetShaderValue(o.shader, o.scaleLoc, []float32{scale}, rl.ShaderUniformFloat)
	rl.DrawTexturePro(t.rt.Texture, src, dst, rl.Vector2{}, 0, rl.White)
	rl.EndShaderMode()

	rl.DrawRectangleLinesEx(dst, 1, rl.Color{R: 60, G: 70, B: 80, A: 255})
}

// Unload frees resources.
func (o *FieldOverlay) Unload() {
	if o.initialized {
		rl.UnloadShader(o.shader)
		o.initialized = false
	}
}
