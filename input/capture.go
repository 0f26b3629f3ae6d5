// Package input turns pointer and touch motion into fluid splats.
package input

import (
	"log/slog"
	"sync"

	"github.com/darkroomengineering/satus-sub000/fluid"
)

// DefaultSensitivity scales pixel deltas into splat impulses.
const DefaultSensitivity = 5

// Options configures a Capture.
type Options struct {
	Sensitivity float32 // Impulse per pixel of motion (default 5)
	Radius      float32 // Per-splat radius; 0 uses the simulation radius
	Logger      *slog.Logger
}

// Capture accumulates motion events into a pending splat queue. Producers
// call Move from any goroutine; the render loop drains the queue once per
// frame through DrainPendingSplats.
type Capture struct {
	sensitivity float32
	radius      float32
	log         *slog.Logger

	mu       sync.Mutex
	width    float32
	height   float32
	lastX    float32
	lastY    float32
	hasLast  bool
	closed   bool
	pending  []fluid.Splat
	received int
}

// New creates a Capture for a w×h pixel surface.
func New(w, h int, opts Options) *Capture {
	if opts.Sensitivity == 0 {
		opts.Sensitivity = DefaultSensitivity
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	c := &Capture{
		sensitivity: opts.Sensitivity,
		radius:      opts.Radius,
		log:         opts.Logger,
	}
	c.SetSurface(w, h)
	return c
}

// SetSurface updates the surface size used to normalize positions.
func (c *Capture) SetSurface(w, h int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.width = float32(max(w, 1))
	c.height = float32(max(h, 1))
}

// Move records a pointer position in surface pixels, origin top-left. The
// first position after New or Reset only sets the baseline.
func (c *Capture) Move(px, py float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.received++

	if !c.hasLast {
		c.lastX, c.lastY = px, py
		c.hasLast = true
		return
	}

	dx, dy := px-c.lastX, py-c.lastY
	c.lastX, c.lastY = px, py
	if dx == 0 && dy == 0 {
		return
	}
	c.pending = append(c.pending, fluid.Splat{
		X:      px / c.width,
		Y:      1 - py/c.height,
		DX:     dx * c.sensitivity,
		DY:     -dy * c.sensitivity,
		Radius: c.radius,
	})
}

// Reset forgets the baseline, for example when the pointer leaves the
// surface or a touch ends.
func (c *Capture) Reset() {
	c.mu.Lock()
	c.hasLast = false
	c.mu.Unlock()
}

// DrainPendingSplats returns the queued splats and clears the queue.
func (c *Capture) DrainPendingSplats() []fluid.Splat {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return nil
	}
	out := c.pending
	c.pending = nil
	return out
}

// Pending returns the number of queued splats.
func (c *Capture) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close detaches the capture. Later moves are ignored and queued splats
// are dropped.
func (c *Capture) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.pending = nil
	c.log.Debug("input capture closed", "events", c.received)
}
