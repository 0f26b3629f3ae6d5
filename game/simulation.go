package game

import (
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/darkroomengineering/satus-sub000/ui"
)

// Update advances one windowed frame: input, one simulation step.
func (g *Game) Update() {
	g.handleInput()
	g.poller.Poll()

	dt := rl.GetFrameTime()
	g.time += dt
	g.perf.RecordFrame()

	if g.paused {
		// Keep the queue from growing while nothing drains it.
		g.capture.DrainPendingSplats()
		return
	}
	g.step(min(dt, 1.0/30))
}

// UpdateHeadless advances one headless step with the fixed configured dt,
// driving the synthetic pointer first.
func (g *Game) UpdateHeadless() {
	dt := g.cfg.Derived.DT32
	g.wander.Advance(dt)
	g.time += dt
	g.step(dt)
}

// step runs the simulation once and handles sampling and recovery.
func (g *Game) step(dt float32) {
	if g.sim == nil {
		return
	}
	g.sim.Step(dt)
	if g.sim.Err() != nil {
		g.recoverContext()
		return
	}
	g.simTime += float64(dt)
	g.sampleTelemetry()
}

// sampleTelemetry writes field and perf records every stats interval.
func (g *Game) sampleTelemetry() {
	interval := g.cfg.Telemetry.StatsInterval
	steps := g.sim.Steps()
	if interval <= 0 || steps%interval != 0 {
		return
	}
	// Sampling reads every field back; skip it when nothing consumes it.
	if g.output == nil && !g.opts.LogStats && !g.statsVisible() {
		return
	}

	rec, err := g.sim.Sample(g.simTime)
	if err != nil {
		g.log.Warn("field sample failed", "step", steps, "error", err)
		return
	}
	g.lastRecord = rec

	perf := g.perf.Stats()
	if err := g.output.WriteStep(rec); err != nil {
		g.log.Warn("step record not written", "error", err)
	}
	if err := g.output.WritePerf(perf, steps); err != nil {
		g.log.Warn("perf record not written", "error", err)
	}
	if g.opts.LogStats {
		g.log.Info("field stats", "record", rec)
		perf.LogStats(g.log)
	}
}

func (g *Game) statsVisible() bool {
	return g.overlays != nil && g.overlays.IsEnabled(ui.OverlayFieldStats)
}
