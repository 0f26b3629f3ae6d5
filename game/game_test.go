package game

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/darkroomengineering/satus-sub000/config"
	"github.com/darkroomengineering/satus-sub000/gpu"
	"github.com/darkroomengineering/satus-sub000/telemetry"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// smallConfig loads defaults shrunk to test resolutions and restores them
// afterwards.
func smallConfig(t *testing.T) *config.Config {
	t.Helper()
	config.MustInit("")
	t.Cleanup(func() { config.MustInit("") })

	cfg := config.Cfg()
	cfg.Fluid.SimResolution = 16
	cfg.Derived.DyeResolution = 16
	cfg.Telemetry.StatsInterval = 5
	return cfg
}

func TestHeadlessRunWritesStepRecords(t *testing.T) {
	smallConfig(t)
	dir := t.TempDir()

	g, err := NewGameWithOptions(Options{Seed: 7, Headless: true, OutputDir: dir, Logger: quiet})
	if err != nil {
		t.Fatalf("NewGameWithOptions: %v", err)
	}
	if g.Sim() == nil {
		t.Fatal("software device should run the simulation")
	}

	for i := 0; i < 20; i++ {
		g.UpdateHeadless()
	}
	if g.Steps() != 20 {
		t.Fatalf("Steps() = %d, want 20", g.Steps())
	}
	if err := g.Sim().Err(); err != nil {
		t.Fatalf("simulation error: %v", err)
	}
	g.Unload()

	recs, err := telemetry.ReadSteps(filepath.Join(dir, "steps.csv"))
	if err != nil {
		t.Fatalf("ReadSteps: %v", err)
	}
	if len(recs) != 4 {
		t.Fatalf("got %d records, want 4", len(recs))
	}
	if recs[3].Step != 20 {
		t.Errorf("last record step = %d, want 20", recs[3].Step)
	}
	splats := 0
	for _, r := range recs {
		splats += r.Splats
	}
	if splats == 0 {
		t.Error("wander pointer should have produced splats")
	}
	if recs[3].DensityMass <= 0 {
		t.Error("splats should have left dye in the field")
	}
}

func TestHeadlessWithoutFloatTargetsRunsWithoutEffect(t *testing.T) {
	cfg := smallConfig(t)
	cfg.Derived.DisabledFormats = gpu.Candidates

	g, err := NewGameWithOptions(Options{Headless: true, Logger: quiet})
	if err != nil {
		t.Fatalf("NewGameWithOptions: %v", err)
	}
	defer g.Unload()

	if g.Sim() != nil {
		t.Fatal("simulation should be unavailable")
	}
	g.UpdateHeadless()
	if g.Steps() != 0 {
		t.Errorf("Steps() = %d, want 0", g.Steps())
	}
}

func TestHeadlessResizeUpdatesAspect(t *testing.T) {
	smallConfig(t)
	g, err := NewGameWithOptions(Options{Headless: true, Logger: quiet})
	if err != nil {
		t.Fatalf("NewGameWithOptions: %v", err)
	}
	defer g.Unload()

	g.resize(300, 100)
	if got := g.Sim().Params.AspectRatio; got != 3 {
		t.Errorf("AspectRatio = %v, want 3", got)
	}
}
