package ui

import (
	"fmt"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/darkroomengineering/satus-sub000/fluid"
)

// Slider binds one tunable to a slider range.
type Slider struct {
	Label   string
	Min     float32
	Max     float32
	Integer bool
	Get     func(*fluid.Params) float32
	Set     func(*fluid.Params, float32)
}

// Apply writes v into p, clamped to the slider range and rounded for
// integer sliders. It reports whether p changed.
func (s Slider) Apply(p *fluid.Params, v float32) bool {
	v = min(max(v, s.Min), s.Max)
	if s.Integer {
		v = float32(int(v + 0.5))
	}
	if s.Get(p) == v {
		return false
	}
	s.Set(p, v)
	return true
}

// Format renders the slider's current value.
func (s Slider) Format(p *fluid.Params) string {
	if s.Integer {
		return fmt.Sprintf("%d", int(s.Get(p)))
	}
	return fmt.Sprintf("%.3f", s.Get(p))
}

// TuningSliders lists the runtime-mutable tunables in panel order.
func TuningSliders() []Slider {
	return []Slider{
		{
			Label: "Pressure iterations", Min: 1, Max: 60, Integer: true,
			Get: func(p *fluid.Params) float32 { return float32(p.Iterations) },
			Set: func(p *fluid.Params, v float32) { p.Iterations = int(v) },
		},
		{
			Label: "Density dissipation", Min: 0.8, Max: 1,
			Get: func(p *fluid.Params) float32 { return p.DensityDissipation },
			Set: func(p *fluid.Params, v float32) { p.DensityDissipation = v },
		},
		{
			Label: "Velocity dissipation", Min: 0.8, Max: 1,
			Get: func(p *fluid.Params) float32 { return p.VelocityDissipation },
			Set: func(p *fluid.Params, v float32) { p.VelocityDissipation = v },
		},
		{
			Label: "Pressure dissipation", Min: 0, Max: 1,
			Get: func(p *fluid.Params) float32 { return p.PressureDissipation },
			Set: func(p *fluid.Params, v float32) { p.PressureDissipation = v },
		},
		{
			Label: "Curl strength", Min: 0, Max: 50,
			Get: func(p *fluid.Params) float32 { return p.CurlStrength },
			Set: func(p *fluid.Params, v float32) { p.CurlStrength = v },
		},
		{
			Label: "Splat radius", Min: 0.01, Max: 1,
			Get: func(p *fluid.Params) float32 { return p.Radius },
			Set: func(p *fluid.Params, v float32) { p.Radius = v },
		},
	}
}

// TuningAction reports the buttons pressed in a frame.
type TuningAction struct {
	Changed bool // A slider moved
	Reset   bool // Defaults were restored
	Pause   bool // Pause was toggled
}

// TuningPanel draws raygui sliders over a simulation's Params.
type TuningPanel struct {
	renderer *Renderer
	sliders  []Slider
	defaults fluid.Params
	x, y     int32
	width    int32
}

// NewTuningPanel creates a panel. defaults are restored by its reset button.
func NewTuningPanel(x, y, width int32, defaults fluid.Params) *TuningPanel {
	return &TuningPanel{
		renderer: NewRenderer(),
		sliders:  TuningSliders(),
		defaults: defaults,
		x:        x,
		y:        y,
		width:    width,
	}
}

// SetPosition updates the panel position.
func (t *TuningPanel) SetPosition(x, y int32) {
	t.x = x
	t.y = y
}

// Height returns the panel's pixel height.
func (t *TuningPanel) Height() int32 {
	return t.renderer.Theme.Padding*2 + 24 + int32(len(t.sliders))*40 + 36
}

// Draw renders the panel and applies slider changes to p.
func (t *TuningPanel) Draw(p *fluid.Params, paused bool) TuningAction {
	var act TuningAction
	r := t.renderer
	padding := r.Theme.Padding

	r.DrawPanel(t.x, t.y, t.width, t.Height())

	x := float32(t.x + padding)
	y := float32(t.y + padding)
	rl.DrawText("Solver Tuning", int32(x), int32(y), 16, rl.White)
	y += 24

	sliderWidth := float32(t.width - padding*2 - 70)
	for _, s := range t.sliders {
		rl.DrawText(s.Label, int32(x), int32(y), r.Theme.FontSize, r.Theme.LabelColor)
		y += 16
		v := gui.SliderBar(
			rl.Rectangle{X: x, Y: y, Width: sliderWidth, Height: 16},
			"", "",
			s.Get(p), s.Min, s.Max,
		)
		if s.Apply(p, v) {
			act.Changed = true
		}
		rl.DrawText(s.Format(p), int32(x+sliderWidth+8), int32(y+2), r.Theme.FontSize, r.Theme.ValueColor)
		y += 24
	}

	if gui.Button(rl.Rectangle{X: x, Y: y, Width: 110, Height: 26}, "Reset") {
		aspect := p.AspectRatio
		*p = t.defaults
		p.AspectRatio = aspect
		act.Reset = true
	}
	if gui.Button(rl.Rectangle{X: x + 120, Y: y, Width: 110, Height: 26}, toggleText(paused, "Resume", "Pause")) {
		act.Pause = true
	}
	return act
}

func toggleText(on bool, onText, offText string) string {
	if on {
		return onText
	}
	return offText
}
