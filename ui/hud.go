package ui

import (
	"fmt"
	"time"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/darkroomengineering/satus-sub000/gpu"
	"github.com/darkroomengineering/satus-sub000/telemetry"
)

// HUDData holds all the data needed to render the main HUD.
type HUDData struct {
	Title   string
	Step    int
	FPS     int32
	Splats  int // Splats applied in the last step
	Device  string
	Formats gpu.Formats
	Paused  bool
	Err     error // Last simulation error; nil when running
}

// Lines returns the HUD text below the title, one entry per line.
func (d HUDData) Lines() []string {
	lines := []string{
		fmt.Sprintf("Step: %d | FPS: %d | Splats: %d", d.Step, d.FPS, d.Splats),
	}
	if d.Device != "" {
		lines = append(lines, fmt.Sprintf("%s | dye %s | vel %s | scalar %s | %s filter",
			d.Device, d.Formats.Density, d.Formats.Velocity, d.Formats.Scalar, d.Formats.Filter))
	}
	return lines
}

// Status returns the status word and whether it signals a problem.
func (d HUDData) Status() (string, bool) {
	switch {
	case d.Err != nil:
		return "NO FLOW: " + d.Err.Error(), true
	case d.Paused:
		return "PAUSED", false
	}
	return "Running", false
}

// HUD renders the main heads-up display.
type HUD struct {
	renderer *Renderer
}

// NewHUD creates a new HUD renderer.
func NewHUD() *HUD {
	return &HUD{
		renderer: NewRenderer(),
	}
}

// Draw renders the HUD.
func (h *HUD) Draw(data HUDData) {
	rl.DrawText(data.Title, 10, 10, 20, rl.White)

	y := int32(35)
	for _, line := range data.Lines() {
		rl.DrawText(line, 10, y, 16, rl.LightGray)
		y += 20
	}

	status, bad := data.Status()
	color := rl.Yellow
	if bad {
		color = h.renderer.Theme.HotColor
	}
	rl.DrawText(status, 10, y, 16, color)
}

// DrawControls renders the control legend at the bottom of the screen.
func (h *HUD) DrawControls(screenWidth, screenHeight int32, controls string) {
	rl.DrawText(controls, 10, screenHeight-25, 14, rl.Gray)
}

// PerfRow is one line of the pass timing panel.
type PerfRow struct {
	Phase string
	Avg   time.Duration
	Pct   float64
}

// PerfRows orders the phases of stats in pipeline order. Phases that were
// never timed are skipped.
func PerfRows(stats telemetry.PerfStats) []PerfRow {
	var rows []PerfRow
	for _, phase := range telemetry.Phases {
		avg, ok := stats.PhaseAvg[phase]
		if !ok {
			continue
		}
		rows = append(rows, PerfRow{Phase: phase, Avg: avg, Pct: stats.PhasePct[phase]})
	}
	return rows
}

// PerfPanel renders the pass timing panel.
type PerfPanel struct {
	renderer *Renderer
	x, y     int32
}

// NewPerfPanel creates a new performance panel.
func NewPerfPanel(x, y int32) *PerfPanel {
	return &PerfPanel{
		renderer: NewRenderer(),
		x:        x,
		y:        y,
	}
}

// SetPosition updates the panel position.
func (p *PerfPanel) SetPosition(x, y int32) {
	p.x = x
	p.y = y
}

// Draw renders the performance panel.
func (p *PerfPanel) Draw(stats telemetry.PerfStats) {
	x := p.x
	y := p.y

	rl.DrawText("Pass Timing", x, y, 16, rl.White)
	y += 20

	rl.DrawText(fmt.Sprintf("Step: %s (%.0f/s)", stats.AvgStepDuration.Round(time.Microsecond), stats.StepsPerSecond),
		x, y, 14, rl.Yellow)
	y += 16

	for _, row := range PerfRows(stats) {
		color := p.renderer.Theme.LabelColor
		if row.Pct > 40 {
			color = p.renderer.Theme.HotColor
		} else if row.Pct > 20 {
			color = p.renderer.Theme.WarnColor
		}

		rl.DrawText(
			fmt.Sprintf("%-16s %8s %5.1f%%", row.Phase, row.Avg.Round(time.Microsecond), row.Pct),
			x, y, 12, color,
		)
		y += 14
	}
}
