package ui

import (
	"fmt"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/darkroomengineering/satus-sub000/telemetry"
)

// ControlsPanel renders the overlay toggle legend.
type ControlsPanel struct {
	renderer *Renderer
	x, y     int32
	width    int32
}

// NewControlsPanel creates a new controls panel.
func NewControlsPanel(x, y, width int32) *ControlsPanel {
	return &ControlsPanel{
		renderer: NewRenderer(),
		x:        x,
		y:        y,
		width:    width,
	}
}

// SetPosition moves the panel.
func (c *ControlsPanel) SetPosition(x, y int32) {
	c.x, c.y = x, y
}

// Draw renders the controls panel and returns the Y below it.
func (c *ControlsPanel) Draw(overlays *OverlayRegistry) int32 {
	r := c.renderer
	padding := r.Theme.Padding
	lineHeight := r.Theme.LineHeight

	groups := overlays.Groups()
	totalItems := 0
	for _, g := range groups {
		totalItems += len(g.Overlays) + 1 // +1 for category header
	}
	panelHeight := int32(totalItems)*lineHeight + padding*3 + lineHeight

	r.DrawPanel(c.x, c.y, c.width, panelHeight)

	y := c.y + padding
	rl.DrawText("Overlays", c.x+padding, y, 16, rl.White)
	y += lineHeight + 4

	for _, g := range groups {
		rl.DrawText(categoryLabel(g.Category), c.x+padding, y, r.Theme.HeaderFontSize, r.Theme.SectionHeader)
		y += lineHeight

		for _, desc := range g.Overlays {
			c.drawToggle(c.x+padding, y, desc, overlays.IsEnabled(desc.ID), c.width-padding*2)
			y += lineHeight
		}

		y += 4 // Gap between categories
	}

	return y
}

// drawToggle draws a single overlay toggle line.
func (c *ControlsPanel) drawToggle(x, y int32, desc OverlayDescriptor, enabled bool, width int32) {
	r := c.renderer

	statusColor := rl.Color{R: 80, G: 80, B: 80, A: 255}
	if enabled {
		statusColor = rl.Color{R: 100, G: 200, B: 100, A: 255}
	}
	rl.DrawRectangle(x, y+2, 8, 8, statusColor)

	nameColor := r.Theme.LabelColor
	if enabled {
		nameColor = rl.White
	}
	rl.DrawText(desc.Name, x+14, y, r.Theme.FontSize, nameColor)

	if desc.KeyLabel != "" {
		keyText := fmt.Sprintf("[%s]", desc.KeyLabel)
		keyWidth := rl.MeasureText(keyText, r.Theme.FontSize)
		rl.DrawText(keyText, x+width-keyWidth, y, r.Theme.FontSize, rl.Color{R: 150, G: 150, B: 150, A: 255})
	}
}

// categoryLabel returns a display label for a category.
func categoryLabel(cat string) string {
	switch cat {
	case CategoryField:
		return "Field View"
	case CategoryPanel:
		return "Panels"
	default:
		return cat
	}
}

// FieldStatsSections describes the field statistics panel over a
// telemetry.StepRecord.
func FieldStatsSections() []SectionDescriptor {
	rec := func(data any) telemetry.StepRecord {
		r, _ := data.(telemetry.StepRecord)
		return r
	}
	return []SectionDescriptor{
		{
			ID:    "velocity",
			Title: "Velocity",
			Fields: []FieldDescriptor{
				{ID: "velocity_l2", Label: "L2", Widget: WidgetText, Format: "%.3f",
					Getter: func(d any) float32 { return float32(rec(d).VelocityL2) }},
				{ID: "velocity_max", Label: "Max", Widget: WidgetBar, Format: "%.2f", Range: FieldRange{Min: 0, Max: 50},
					Getter: func(d any) float32 { return float32(rec(d).VelocityMax) }},
				{ID: "divergence_l2", Label: "Divergence", Widget: WidgetText, Format: "%.4f",
					Getter: func(d any) float32 { return float32(rec(d).DivergenceL2) }},
			},
		},
		{
			ID:    "density",
			Title: "Density",
			Fields: []FieldDescriptor{
				{ID: "density_mass", Label: "Mass", Widget: WidgetText, Format: "%.1f",
					Getter: func(d any) float32 { return float32(rec(d).DensityMass) }},
				{ID: "density_max", Label: "Max", Widget: WidgetBar, Format: "%.2f", Range: DefaultRange(),
					Getter: func(d any) float32 { return float32(rec(d).DensityMax) }},
				{ID: "density_centroid", Label: "Centroid", Widget: WidgetText,
					Visible: func(d any) bool { return rec(d).DensityMass > 0 },
					TextGetter: func(d any) string {
						r := rec(d)
						return fmt.Sprintf("(%.2f, %.2f)", r.DensityCentroidX, r.DensityCentroidY)
					}},
			},
		},
	}
}

// FieldStatsPanel renders the latest field statistics sample.
type FieldStatsPanel struct {
	renderer *Renderer
	sections []SectionDescriptor
	x, y     int32
	width    int32
}

// NewFieldStatsPanel creates a new field stats panel.
func NewFieldStatsPanel(x, y, width int32) *FieldStatsPanel {
	return &FieldStatsPanel{
		renderer: NewRenderer(),
		sections: FieldStatsSections(),
		x:        x,
		y:        y,
		width:    width,
	}
}

// SetPosition updates the panel position.
func (f *FieldStatsPanel) SetPosition(x, y int32) {
	f.x = x
	f.y = y
}

// Draw renders the panel for rec and returns the Y below it.
func (f *FieldStatsPanel) Draw(rec telemetry.StepRecord) int32 {
	r := f.renderer
	padding := r.Theme.Padding

	height := padding*2 + r.Theme.LineHeight + 2
	for _, sd := range f.sections {
		height += r.SectionHeight(sd, rec)
	}
	r.DrawPanel(f.x, f.y, f.width, height)

	y := f.y + padding
	rl.DrawText(fmt.Sprintf("Field Stats (step %d)", rec.Step), f.x+padding, y, 14, rl.White)
	y += r.Theme.LineHeight + 2

	for _, sd := range f.sections {
		y = r.DrawSection(f.x+padding, y, sd, rec, f.width-padding*2)
	}
	return y
}
