package input

import "github.com/ojrac/opensimplex-go"

// Wander drives a Capture along a smooth noise path, standing in for a
// pointer in headless runs.
type Wander struct {
	noise  opensimplex.Noise32
	target *Capture
	w, h   float32
	speed  float32
	t      float32
}

// NewWander creates a wander path over a w×h surface feeding target. speed
// is in noise units per second.
func NewWander(seed int64, w, h int, speed float32, target *Capture) *Wander {
	return &Wander{
		noise:  opensimplex.NewNormalized32(seed),
		target: target,
		w:      float32(w),
		h:      float32(h),
		speed:  speed,
	}
}

// Position returns the pointer position in pixels at the current time.
// The two axes read decorrelated rows of the noise field.
func (wd *Wander) Position() (float32, float32) {
	x := wd.noise.Eval2(wd.t, 0)
	y := wd.noise.Eval2(wd.t, 17.3)
	// Normalized noise rarely reaches its ends; stretch the middle band
	// over most of the surface.
	return stretch(x) * wd.w, stretch(y) * wd.h
}

// Advance moves the path forward by dt seconds and reports the new
// position to the capture.
func (wd *Wander) Advance(dt float32) {
	wd.t += dt * wd.speed
	x, y := wd.Position()
	wd.target.Move(x, y)
}

func stretch(v float32) float32 {
	v = (v-0.5)*1.6 + 0.5
	return min(max(v, 0.05), 0.95)
}
