package game

import (
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/darkroomengineering/satus-sub000/gpu"
	"github.com/darkroomengineering/satus-sub000/renderer"
	"github.com/darkroomengineering/satus-sub000/ui"
)

const controlsLegend = "[SPACE] Pause  [F11] Fullscreen  [V/C/P] Field view  [H/F/S/T] Panels"

// Draw renders the surface, the active field view and the UI panels.
func (g *Game) Draw() {
	rl.BeginDrawing()
	rl.ClearBackground(rl.Black)

	var flow gpu.Texture
	if g.sim != nil {
		flow = g.sim.Density()
	}
	g.surface.Draw(g.time, flow)

	g.drawFieldView()
	g.drawPanels()

	rl.EndDrawing()
}

// drawFieldView renders the selected raw field in the bottom-right corner.
func (g *Game) drawFieldView() {
	id, ok := g.overlays.ActiveField()
	if !ok || g.sim == nil {
		return
	}

	var (
		tex   gpu.Texture
		view  renderer.FieldView
		scale float32
	)
	switch id {
	case ui.OverlayVelocity:
		tex, view, scale = g.sim.Velocity(), renderer.ViewVector, 0.05
	case ui.OverlayDensity:
		tex, view, scale = g.sim.Density(), renderer.ViewDye, 0.1
	case ui.OverlayPressure:
		tex, view, scale = g.sim.Pressure(), renderer.ViewScalar, 0.5
	}

	size := float32(min(g.width, g.height)) / 3
	dst := rl.Rectangle{
		X:      float32(g.width) - size - 10,
		Y:      float32(g.height) - size - 10,
		Width:  size,
		Height: size,
	}
	g.field.Draw(tex, view, scale, dst)
}

func (g *Game) drawPanels() {
	if g.overlays.IsEnabled(ui.OverlayHUD) {
		data := ui.HUDData{
			Title:  "Flowmap",
			FPS:    rl.GetFPS(),
			Paused: g.paused,
			Err:    g.simErr,
		}
		if g.sim != nil {
			data.Step = g.sim.Steps()
			data.Splats = g.sim.LastSplats()
			data.Device = g.dev.Name()
			data.Formats = g.sim.Formats()
			data.Err = g.sim.Err()
		}
		g.hud.Draw(data)
		g.hud.DrawControls(int32(g.width), int32(g.height), controlsLegend)
	}

	if g.overlays.IsEnabled(ui.OverlayPerf) {
		g.perfPanel.Draw(g.perf.Stats())
	}
	if g.overlays.IsEnabled(ui.OverlayFieldStats) {
		g.statsPanel.Draw(g.lastRecord)
	}
	if g.overlays.IsEnabled(ui.OverlayTuning) && g.sim != nil {
		act := g.tuning.Draw(&g.sim.Params, g.paused)
		if act.Pause {
			g.paused = !g.paused
		}
		if act.Changed || act.Reset {
			g.log.Debug("tunables changed", "params", g.sim.Params)
		}
	}
	if g.overlays.IsEnabled(ui.OverlayPerf) || g.overlays.IsEnabled(ui.OverlayTuning) {
		g.controls.Draw(g.overlays)
	}
}
