package main

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"

	"github.com/darkroomengineering/satus-sub000/config"
	"github.com/darkroomengineering/satus-sub000/fluid"
	"github.com/darkroomengineering/satus-sub000/gpu"
	"github.com/darkroomengineering/satus-sub000/input"
	"github.com/darkroomengineering/satus-sub000/software"
	"github.com/darkroomengineering/satus-sub000/telemetry"
)

// Fitness terms.
const (
	// velocityFloor keeps the divergence ratio finite on a quiet field.
	velocityFloor = 1e-6
	// surfaceSize is the synthetic pointer's surface edge in pixels.
	surfaceSize = 512
)

// RunSettings configures the headless runs behind one evaluation.
type RunSettings struct {
	Resolution    int     // Velocity grid edge; dye uses the same
	Steps         int     // Steps per run
	Warmup        int     // Steps before the first sample
	SampleEvery   int     // Steps between samples
	DT            float32 // Simulation time per step
	WanderSpeed   float32 // Synthetic pointer speed
	IterationCost float64 // Fitness penalty per Jacobi pass
}

// FitnessEvaluator runs headless simulations and computes fitness.
type FitnessEvaluator struct {
	params     *ParamVector
	settings   RunSettings
	seeds      []int64
	baseConfig *config.Config
	log        *slog.Logger

	// Best run tracking
	mu          sync.Mutex
	bestFitness float64
	bestTrace   []telemetry.StepRecord
	lastRatio   float64 // mean divergence ratio from the most recent Evaluate call
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, settings RunSettings, seeds []int64, baseCfg *config.Config) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:      params,
		settings:    settings,
		seeds:       seeds,
		baseConfig:  baseCfg,
		log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		bestFitness: math.Inf(1),
	}
}

// BestTrace returns the field samples of the best seed of the best evaluation.
func (fe *FitnessEvaluator) BestTrace() []telemetry.StepRecord {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.bestTrace
}

// LastRatio returns the mean divergence ratio from the most recent evaluation.
func (fe *FitnessEvaluator) LastRatio() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastRatio
}

// runResult holds the results from a single simulation run.
type runResult struct {
	trace []telemetry.StepRecord
	err   error
}

// seedResult holds the result from one seed evaluation.
type seedResult struct {
	fitness float64
	ratio   float64
	trace   []telemetry.StepRecord
}

// Evaluate computes fitness for a raw parameter vector (lower = better).
// A run that fails scores +Inf.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	results := make([]seedResult, len(fe.seeds))
	var wg sync.WaitGroup

	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s int64) {
			defer wg.Done()
			r := fe.runSimulation(x, s)
			if r.err != nil {
				results[idx] = seedResult{fitness: math.Inf(1), ratio: math.Inf(1)}
				return
			}
			ratio := divergenceRatio(r.trace)
			results[idx] = seedResult{
				fitness: fe.computeFitness(ratio, x),
				ratio:   ratio,
				trace:   r.trace,
			}
		}(i, seed)
	}
	wg.Wait()

	var totalFitness, totalRatio float64
	bestSeedFitness := math.Inf(1)
	var bestSeedTrace []telemetry.StepRecord

	for _, r := range results {
		totalFitness += r.fitness
		totalRatio += r.ratio
		if r.fitness < bestSeedFitness {
			bestSeedFitness = r.fitness
			bestSeedTrace = r.trace
		}
	}

	n := float64(len(fe.seeds))
	avgFitness := totalFitness / n

	fe.mu.Lock()
	if avgFitness < fe.bestFitness {
		fe.bestFitness = avgFitness
		fe.bestTrace = bestSeedTrace
	}
	fe.lastRatio = totalRatio / n
	fe.mu.Unlock()

	return avgFitness
}

// runSimulation executes a single headless run on its own software device,
// sampling the fields every SampleEvery steps after warmup.
func (fe *FitnessEvaluator) runSimulation(x []float64, seed int64) *runResult {
	st := fe.settings
	params := fluid.ParamsFromConfig(fe.baseConfig)
	params.AspectRatio = 1
	fe.params.ApplyToParams(&params, x)

	dev := software.New(software.Options{Workers: 1, Logger: fe.log})
	defer dev.Close()

	capture := input.New(surfaceSize, surfaceSize, input.Options{
		Sensitivity: float32(fe.baseConfig.Input.Sensitivity),
		Radius:      float32(fe.baseConfig.Input.Radius),
		Logger:      fe.log,
	})
	defer capture.Close()
	wander := input.NewWander(seed, surfaceSize, surfaceSize, st.WanderSpeed, capture)

	sim, err := fluid.New(dev, fluid.Options{
		SimResolution: st.Resolution,
		DyeResolution: st.Resolution,
		Params:        params,
		Source:        capture,
		Negotiate: gpu.NegotiateOptions{
			Disabled:     fe.baseConfig.Derived.DisabledFormats,
			ForceNearest: fe.baseConfig.GPU.ForceNearest,
		},
		Logger: fe.log,
	})
	if err != nil {
		return &runResult{err: err}
	}
	defer sim.Dispose()

	result := &runResult{}
	var simTime float64
	for step := 1; step <= st.Steps; step++ {
		wander.Advance(st.DT)
		sim.Step(st.DT)
		if err := sim.Err(); err != nil {
			return &runResult{err: fmt.Errorf("step %d: %w", step, err)}
		}
		simTime += float64(st.DT)

		if step < st.Warmup || (step-st.Warmup)%st.SampleEvery != 0 {
			continue
		}
		rec, err := sim.Sample(simTime)
		if err != nil {
			return &runResult{err: fmt.Errorf("sample at step %d: %w", step, err)}
		}
		result.trace = append(result.trace, rec)
	}
	return result
}

// computeFitness adds the per-pass cost to the measured divergence ratio.
// The solver gets cheaper with fewer passes, so the cost keeps the search
// from buying a marginal ratio gain with many more iterations.
func (fe *FitnessEvaluator) computeFitness(ratio float64, x []float64) float64 {
	iterations := fe.params.Clamp(x)[0]
	return ratio + fe.settings.IterationCost*iterations
}

// divergenceRatio is the mean of DivergenceL2 / VelocityL2 over samples.
// Normalizing by velocity keeps a field that simply decays from scoring well.
func divergenceRatio(trace []telemetry.StepRecord) float64 {
	if len(trace) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for _, r := range trace {
		sum += r.DivergenceL2 / math.Max(r.VelocityL2, velocityFloor)
	}
	return sum / float64(len(trace))
}
