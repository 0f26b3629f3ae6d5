package ui

import (
	"errors"
	"strings"
	"testing"
	"time"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/darkroomengineering/satus-sub000/fluid"
	"github.com/darkroomengineering/satus-sub000/gpu"
	"github.com/darkroomengineering/satus-sub000/telemetry"
)

func TestOverlayRegistryDefaults(t *testing.T) {
	reg := NewOverlayRegistry()

	if !reg.IsEnabled(OverlayHUD) {
		t.Error("HUD should start enabled")
	}
	if _, ok := reg.ActiveField(); ok {
		t.Error("no field view should start enabled")
	}
	groups := reg.Groups()
	if len(groups) != 2 || groups[0].Category != CategoryField || groups[1].Category != CategoryPanel {
		t.Fatalf("Groups() = %+v", groups)
	}
	if !groups[0].Radio || groups[1].Radio {
		t.Error("only field views should be exclusive")
	}
	if got := len(groups[0].Overlays); got != 3 {
		t.Errorf("field overlays = %d, want 3", got)
	}
}

func TestOverlayFieldViewsExclusive(t *testing.T) {
	reg := NewOverlayRegistry()

	reg.Toggle(OverlayVelocity)
	reg.Toggle(OverlayPerf)
	if id, ok := reg.ActiveField(); !ok || id != OverlayVelocity {
		t.Fatalf("ActiveField() = %q, %v", id, ok)
	}

	reg.Toggle(OverlayDensity)
	if reg.IsEnabled(OverlayVelocity) {
		t.Error("enabling density should disable velocity")
	}
	if !reg.IsEnabled(OverlayPerf) {
		t.Error("panels are not exclusive with field views")
	}
	if id, _ := reg.ActiveField(); id != OverlayDensity {
		t.Errorf("ActiveField() = %q, want density", id)
	}

	reg.Toggle(OverlayDensity)
	if _, ok := reg.ActiveField(); ok {
		t.Error("toggling the active view off should leave none")
	}
}

func TestOverlayHandleKeyPress(t *testing.T) {
	reg := NewOverlayRegistry()

	id, state, ok := reg.HandleKeyPress(rl.KeyT)
	if !ok || id != OverlayTuning || !state {
		t.Fatalf("HandleKeyPress(T) = %q, %v, %v", id, state, ok)
	}
	if _, _, ok := reg.HandleKeyPress(rl.KeyZ); ok {
		t.Error("unbound key should not toggle anything")
	}
	if reg.Toggle("missing") {
		t.Error("toggling an unknown overlay should report false")
	}

	reg.Register(OverlayDescriptor{ID: OverlayHUD, Name: "Duplicate", Category: "extra"})
	if desc, _ := reg.Get(OverlayHUD); desc.Name != "HUD" {
		t.Errorf("duplicate registration replaced %q", desc.Name)
	}
	if len(reg.Groups()) != 2 {
		t.Error("ignored registration should not add a category")
	}
}

func TestSliderApply(t *testing.T) {
	sliders := TuningSliders()
	p := fluid.DefaultParams()

	iter := sliders[0]
	if !iter.Apply(&p, 19.6) {
		t.Fatal("iterations slider did not report a change")
	}
	if p.Iterations != 20 {
		t.Errorf("Iterations = %d, want 20", p.Iterations)
	}
	if iter.Apply(&p, 20.2) {
		t.Error("same rounded value should not report a change")
	}
	iter.Apply(&p, 500)
	if p.Iterations != 60 {
		t.Errorf("Iterations = %d, want clamp to 60", p.Iterations)
	}
	if got := iter.Format(&p); got != "60" {
		t.Errorf("Format = %q", got)
	}

	curl := sliders[4]
	curl.Apply(&p, -3)
	if p.CurlStrength != 0 {
		t.Errorf("CurlStrength = %v, want clamp to 0", p.CurlStrength)
	}
}

func TestSlidersCoverTunables(t *testing.T) {
	p := fluid.DefaultParams()
	for _, s := range TuningSliders() {
		v := s.Get(&p)
		if v < s.Min || v > s.Max {
			t.Errorf("%s default %v outside [%v, %v]", s.Label, v, s.Min, s.Max)
		}
	}
}

func TestHUDLines(t *testing.T) {
	d := HUDData{
		Step:   12,
		FPS:    60,
		Splats: 3,
		Device: "software",
		Formats: gpu.Formats{
			Density:  gpu.RGBA16F,
			Velocity: gpu.RGBA16F,
			Scalar:   gpu.RGBA16F,
			Filter:   gpu.Linear,
		},
	}
	lines := d.Lines()
	if len(lines) != 2 {
		t.Fatalf("Lines() = %v", lines)
	}
	if !strings.Contains(lines[0], "Step: 12") || !strings.Contains(lines[0], "Splats: 3") {
		t.Errorf("first line %q", lines[0])
	}
	if !strings.Contains(lines[1], "software") {
		t.Errorf("second line %q", lines[1])
	}

	if s, bad := d.Status(); s != "Running" || bad {
		t.Errorf("Status() = %q, %v", s, bad)
	}
	d.Paused = true
	if s, _ := d.Status(); s != "PAUSED" {
		t.Errorf("Status() = %q", s)
	}
	d.Err = errors.New("boom")
	if s, bad := d.Status(); !bad || !strings.Contains(s, "boom") {
		t.Errorf("Status() = %q, %v", s, bad)
	}
}

func TestPerfRowsPipelineOrder(t *testing.T) {
	stats := telemetry.PerfStats{
		PhaseAvg: map[string]time.Duration{
			telemetry.PhaseAdvectDye: 2 * time.Millisecond,
			telemetry.PhaseSplat:     time.Millisecond,
			telemetry.PhasePressure:  3 * time.Millisecond,
		},
		PhasePct: map[string]float64{
			telemetry.PhaseAdvectDye: 33,
			telemetry.PhaseSplat:     17,
			telemetry.PhasePressure:  50,
		},
	}
	rows := PerfRows(stats)
	want := []string{telemetry.PhaseSplat, telemetry.PhasePressure, telemetry.PhaseAdvectDye}
	if len(rows) != len(want) {
		t.Fatalf("rows = %v", rows)
	}
	for i, row := range rows {
		if row.Phase != want[i] {
			t.Errorf("row %d = %s, want %s", i, row.Phase, want[i])
		}
	}
	if rows[1].Pct != 50 {
		t.Errorf("pressure pct = %v", rows[1].Pct)
	}
}

func TestFieldRangeNormalize(t *testing.T) {
	r := FieldRange{Min: 10, Max: 20}
	tests := []struct {
		in, want float32
	}{
		{5, 0},
		{10, 0},
		{15, 0.5},
		{25, 1},
	}
	for _, tt := range tests {
		if got := r.Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if got := (FieldRange{}).Normalize(3); got != 0 {
		t.Errorf("empty range Normalize = %v", got)
	}
}

func TestFieldStatsSectionHeight(t *testing.T) {
	r := NewRenderer()
	sections := FieldStatsSections()
	density := sections[1]

	empty := r.SectionHeight(density, telemetry.StepRecord{})
	withMass := r.SectionHeight(density, telemetry.StepRecord{DensityMass: 1})
	if withMass-empty != r.Theme.LineHeight {
		t.Errorf("centroid line should appear only with mass: %d vs %d", empty, withMass)
	}

	hidden := SectionDescriptor{Title: "x", Visible: func(any) bool { return false }}
	if h := r.SectionHeight(hidden, nil); h != 0 {
		t.Errorf("hidden section height = %d", h)
	}

	rec := telemetry.StepRecord{DensityMass: 4, DensityCentroidX: 0.25, DensityCentroidY: 0.75}
	centroid := density.Fields[2]
	if got := fieldText(centroid, rec); got != "(0.25, 0.75)" {
		t.Errorf("centroid text = %q", got)
	}
	mass := density.Fields[0]
	if got := fieldText(mass, rec); got != "4.0" {
		t.Errorf("mass text = %q", got)
	}
}
