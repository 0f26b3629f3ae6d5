package game

import rl "github.com/gen2brain/raylib-go/raylib"

// handleInput processes keyboard input.
func (g *Game) handleInput() {
	g.handleResize()

	if rl.IsKeyPressed(rl.KeyF11) {
		rl.ToggleFullscreen()
	}
	if rl.IsKeyPressed(rl.KeySpace) {
		g.paused = !g.paused
	}

	// Overlay toggles (V, C, P, H, F, S, T)
	g.overlays.PollKeys()
}

// handleResize checks for window resize and propagates new dimensions.
func (g *Game) handleResize() {
	if !rl.IsWindowResized() {
		return
	}
	w, h := g.screenSize()
	if w == g.width && h == g.height {
		return
	}
	g.resize(w, h)
}

// resize propagates a new surface size. Field resolutions are fixed; only
// the aspect ratio follows the window.
func (g *Game) resize(w, h int) {
	g.width, g.height = w, h
	g.capture.SetSurface(w, h)
	if g.surface != nil {
		g.surface.Resize(int32(w), int32(h))
	}
	if g.perfPanel != nil {
		g.perfPanel.SetPosition(int32(w)-300, 10)
		g.tuning.SetPosition(10, int32(h)-g.tuning.Height()-40)
		g.controls.SetPosition(int32(w)-220, int32(h)-230)
	}
	if g.sim != nil {
		g.sim.Params.AspectRatio = float32(w) / float32(max(h, 1))
	}
	g.log.Debug("surface resized", "width", w, "height", h)
}
