package gpu

import (
	"errors"
	"fmt"
)

// Rect is an axis-aligned rectangle in quad space.
type Rect struct {
	X, Y, W, H float32
}

// Quad is the unit quad every fullscreen pass is drawn with. It is shared by
// all passes and owned by no pass.
var Quad = Rect{X: 0, Y: 0, W: 1, H: 1}

// Projection is an orthographic camera over quad space.
type Projection struct {
	Left, Right, Bottom, Top float32
}

// Ortho is the fixed camera that makes Quad cover the whole target.
var Ortho = Projection{Left: 0, Right: 1, Bottom: 0, Top: 1}

// ToPixels maps a quad-space point to pixel coordinates of a w×h target.
func (p Projection) ToPixels(q Vec2, w, h int) Vec2 {
	return Vec2{
		(q[0] - p.Left) / (p.Right - p.Left) * float32(w),
		(q[1] - p.Bottom) / (p.Top - p.Bottom) * float32(h),
	}
}

// FromPixels maps a pixel coordinate back to quad space. Passing a texel
// center (x+0.5, y+0.5) yields that texel's uv.
func (p Projection) FromPixels(px Vec2, w, h int) Vec2 {
	return Vec2{
		p.Left + px[0]/float32(w)*(p.Right-p.Left),
		p.Bottom + px[1]/float32(h)*(p.Top-p.Bottom),
	}
}

// RunPass draws program over the whole of out, sampling inputs with the
// given uniforms. A pass may never sample the target it writes; ping-pong
// passes read one half of a DoubleBuffer and write the other.
func RunPass(dev Device, program Program, inputs []Binding, uniforms Uniforms, out Target) error {
	if dev == nil {
		return errors.New("gpu: run pass: nil device")
	}
	if program == nil {
		return errors.New("gpu: run pass: nil program")
	}
	if out == nil {
		return fmt.Errorf("gpu: run pass %s: nil output target", program.Name())
	}
	for _, in := range inputs {
		if in.Texture == nil {
			return fmt.Errorf("gpu: run pass %s: sampler %s has no texture", program.Name(), in.Name)
		}
		if in.Texture == Texture(out) {
			return fmt.Errorf("gpu: run pass %s: sampler %s: %w", program.Name(), in.Name, ErrFeedbackLoop)
		}
	}
	if uniforms == nil {
		uniforms = NoUniforms{}
	}
	if err := dev.Draw(program, inputs, uniforms, out); err != nil {
		return fmt.Errorf("gpu: run pass %s: %w", program.Name(), err)
	}
	return nil
}
