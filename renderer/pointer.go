package renderer

import (
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/darkroomengineering/satus-sub000/input"
)

// PointerPoller feeds raylib mouse and touch positions into a Capture once
// per frame. Mouse motion counts without a button held, matching hover
// driven effects; touches count while a finger is down.
type PointerPoller struct {
	capture  *input.Capture
	touching bool
	inside   bool
}

// NewPointerPoller creates a poller writing into c.
func NewPointerPoller(c *input.Capture) *PointerPoller {
	return &PointerPoller{capture: c}
}

// Poll reads the current pointer state. Call it once per frame before the
// simulation step.
func (p *PointerPoller) Poll() {
	if rl.IsWindowResized() {
		p.capture.SetSurface(rl.GetScreenWidth(), rl.GetScreenHeight())
	}

	if rl.GetTouchPointCount() > 0 {
		pos := rl.GetTouchPosition(0)
		p.touching = true
		p.capture.Move(pos.X, pos.Y)
		return
	}
	if p.touching {
		// Finger lifted: the next contact starts a new stroke.
		p.touching = false
		p.capture.Reset()
	}

	if !rl.IsCursorOnScreen() {
		if p.inside {
			p.inside = false
			p.capture.Reset()
		}
		return
	}
	p.inside = true
	pos := rl.GetMousePosition()
	p.capture.Move(pos.X, pos.Y)
}
