package telemetry

import (
	"log/slog"
	"time"
)

// Phase names for the simulation step, one per pass group.
const (
	PhaseSplat      = "splat"
	PhaseCurl       = "curl"
	PhaseVorticity  = "vorticity"
	PhaseDivergence = "divergence"
	PhasePressure   = "pressure"
	PhaseGradient   = "gradient"
	PhaseAdvectVel  = "advect_velocity"
	PhaseAdvectDye  = "advect_density"
)

// Phases lists the step phases in execution order.
var Phases = []string{
	PhaseSplat, PhaseCurl, PhaseVorticity, PhaseDivergence,
	PhasePressure, PhaseGradient, PhaseAdvectVel, PhaseAdvectDye,
}

// PerfSample holds timing data for a single step.
type PerfSample struct {
	StepDuration time.Duration
	Phases       map[string]time.Duration
}

// PerfCollector tracks performance metrics over a rolling window.
// A nil *PerfCollector ignores every call, so callers can leave it unset.
type PerfCollector struct {
	windowSize    int
	samples       []PerfSample
	writeIndex    int
	sampleCount   int
	currentPhases map[string]time.Duration
	stepStart     time.Time
	phaseStart    time.Time
	lastPhase     string

	// Frame timing (for graphics mode)
	lastFrameTime time.Time
	frameDuration time.Duration
}

// NewPerfCollector creates a new performance collector.
// windowSize: number of steps to average over (e.g., 60 for 1 second at 60fps).
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	return &PerfCollector{
		windowSize:    windowSize,
		samples:       make([]PerfSample, windowSize),
		currentPhases: make(map[string]time.Duration),
	}
}

// StartStep begins timing a new simulation step.
func (p *PerfCollector) StartStep() {
	if p == nil {
		return
	}
	p.stepStart = time.Now()
	p.currentPhases = make(map[string]time.Duration)
	p.lastPhase = ""
}

// StartPhase begins timing a specific phase.
func (p *PerfCollector) StartPhase(phase string) {
	if p == nil {
		return
	}
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
	p.lastPhase = phase
}

// EndStep finishes timing the current step and records the sample.
func (p *PerfCollector) EndStep() {
	if p == nil {
		return
	}
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}

	p.samples[p.writeIndex] = PerfSample{
		StepDuration: now.Sub(p.stepStart),
		Phases:       p.currentPhases,
	}
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
}

// RecordFrame records frame timing for graphics mode.
func (p *PerfCollector) RecordFrame() {
	if p == nil {
		return
	}
	now := time.Now()
	if !p.lastFrameTime.IsZero() {
		p.frameDuration = now.Sub(p.lastFrameTime)
	}
	p.lastFrameTime = now
}

// PerfStats holds aggregated performance statistics.
type PerfStats struct {
	AvgStepDuration time.Duration
	MinStepDuration time.Duration
	MaxStepDuration time.Duration

	// Phase breakdown (average durations)
	PhaseAvg map[string]time.Duration

	// Phase percentages of total step time
	PhasePct map[string]float64

	StepsPerSecond float64

	// Frame timing (graphics mode)
	FrameDuration time.Duration
	FPS           float64
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	if p == nil {
		return PerfStats{PhaseAvg: map[string]time.Duration{}, PhasePct: map[string]float64{}}
	}

	var fps float64
	if p.frameDuration > 0 {
		fps = float64(time.Second) / float64(p.frameDuration)
	}

	if p.sampleCount == 0 {
		return PerfStats{
			PhaseAvg:      make(map[string]time.Duration),
			PhasePct:      make(map[string]float64),
			FrameDuration: p.frameDuration,
			FPS:           fps,
		}
	}

	var total, minStep, maxStep time.Duration
	phaseSum := make(map[string]time.Duration)

	for i := 0; i < p.sampleCount; i++ {
		s := p.samples[i]
		total += s.StepDuration

		if i == 0 || s.StepDuration < minStep {
			minStep = s.StepDuration
		}
		if s.StepDuration > maxStep {
			maxStep = s.StepDuration
		}
		for phase, dur := range s.Phases {
			phaseSum[phase] += dur
		}
	}

	avg := total / time.Duration(p.sampleCount)

	phaseAvg := make(map[string]time.Duration)
	phasePct := make(map[string]float64)
	for phase, sum := range phaseSum {
		phaseAvg[phase] = sum / time.Duration(p.sampleCount)
		if avg > 0 {
			phasePct[phase] = float64(phaseAvg[phase]) / float64(avg) * 100
		}
	}

	var stepsPerSec float64
	if avg > 0 {
		stepsPerSec = float64(time.Second) / float64(avg)
	}

	return PerfStats{
		AvgStepDuration: avg,
		MinStepDuration: minStep,
		MaxStepDuration: maxStep,
		PhaseAvg:        phaseAvg,
		PhasePct:        phasePct,
		StepsPerSecond:  stepsPerSec,
		FrameDuration:   p.frameDuration,
		FPS:             fps,
	}
}

// LogStats logs performance statistics.
func (s PerfStats) LogStats(log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	attrs := []any{
		"avg_step_us", s.AvgStepDuration.Microseconds(),
		"min_step_us", s.MinStepDuration.Microseconds(),
		"max_step_us", s.MaxStepDuration.Microseconds(),
		"steps_per_sec", int(s.StepsPerSecond),
	}
	if s.FPS > 0 {
		attrs = append(attrs, "fps", int(s.FPS))
	}
	for _, phase := range Phases {
		if pct, ok := s.PhasePct[phase]; ok && pct > 0.1 {
			attrs = append(attrs, phase+"_pct", float64(int(pct*10))/10.0)
		}
	}
	log.Info("perf", attrs...)
}

// PerfStatsCSV is a flat struct for CSV export of performance stats.
type PerfStatsCSV struct {
	WindowEnd     int     `csv:"window_end"`
	AvgStepUS     int64   `csv:"avg_step_us"`
	MinStepUS     int64   `csv:"min_step_us"`
	MaxStepUS     int64   `csv:"max_step_us"`
	StepsPerSec   float64 `csv:"steps_per_sec"`
	FPS           float64 `csv:"fps"`
	SplatPct      float64 `csv:"splat_pct"`
	CurlPct       float64 `csv:"curl_pct"`
	VorticityPct  float64 `csv:"vorticity_pct"`
	DivergencePct float64 `csv:"divergence_pct"`
	PressurePct   float64 `csv:"pressure_pct"`
	GradientPct   float64 `csv:"gradient_pct"`
	AdvectVelPct  float64 `csv:"advect_velocity_pct"`
	AdvectDyePct  float64 `csv:"advect_density_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(windowEnd int) PerfStatsCSV {
	return PerfStatsCSV{
		WindowEnd:     windowEnd,
		AvgStepUS:     s.AvgStepDuration.Microseconds(),
		MinStepUS:     s.MinStepDuration.Microseconds(),
		MaxStepUS:     s.MaxStepDuration.Microseconds(),
		StepsPerSec:   s.StepsPerSecond,
		FPS:           s.FPS,
		SplatPct:      s.PhasePct[PhaseSplat],
		CurlPct:       s.PhasePct[PhaseCurl],
		VorticityPct:  s.PhasePct[PhaseVorticity],
		DivergencePct: s.PhasePct[PhaseDivergence],
		PressurePct:   s.PhasePct[PhasePressure],
		GradientPct:   s.PhasePct[PhaseGradient],
		AdvectVelPct:  s.PhasePct[PhaseAdvectVel],
		AdvectDyePct:  s.PhasePct[PhaseAdvectDye],
	}
}
