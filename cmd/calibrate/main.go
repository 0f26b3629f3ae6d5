// Package main searches the pressure solver tunables for the cheapest
// setting that still leaves the velocity field close to divergence free.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/optimize"

	"github.com/darkroomengineering/satus-sub000/config"
	"github.com/darkroomengineering/satus-sub000/telemetry"
)

// EvalRecord is one row of calibrate_log.csv.
type EvalRecord struct {
	Eval                int     `csv:"eval"`
	Fitness             float64 `csv:"fitness"`
	DivergenceRatio     float64 `csv:"divergence_ratio"`
	Iterations          int     `csv:"iterations"`
	PressureDissipation float64 `csv:"pressure_dissipation"`
	ElapsedSec          float64 `csv:"elapsed_sec"`
}

// formatDuration formats a duration as HH:MM:SS or MM:SS for shorter durations.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

// newMethod returns the gonum optimizer named by name.
func newMethod(name string, dim, population int) (optimize.Method, error) {
	switch name {
	case "nelder-mead":
		return &optimize.NelderMead{SimplexSize: 0.2}, nil
	case "cmaes":
		if population == 0 {
			population = 4 + int(3.0*float64(dim)/2.0)
		}
		return &optimize.CmaEsChol{InitStepSize: 0.3, Population: population}, nil
	default:
		return nil, fmt.Errorf("unknown method %q (want nelder-mead or cmaes)", name)
	}
}

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	methodName := flag.String("method", "nelder-mead", "Optimizer: nelder-mead or cmaes")
	resolution := flag.Int("resolution", 32, "Velocity grid edge for calibration runs")
	steps := flag.Int("steps", 120, "Steps per run")
	warmup := flag.Int("warmup", 20, "Steps before the first sample")
	sampleEvery := flag.Int("sample-every", 10, "Steps between samples")
	iterationCost := flag.Float64("iteration-cost", 0.002, "Fitness penalty per Jacobi pass")
	seeds := flag.Int("seeds", 3, "Number of seeds per evaluation")
	maxEvals := flag.Int("max-evals", 80, "Maximum number of evaluations")
	population := flag.Int("population", 0, "CMA-ES population size (0 = auto)")
	outputDir := flag.String("output", "", "Output directory for results")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if *outputDir == "" {
		slog.Error("--output is required")
		os.Exit(2)
	}
	if *sampleEvery < 1 || *steps < *warmup {
		slog.Error("invalid sampling window", "steps", *steps, "warmup", *warmup, "sample_every", *sampleEvery)
		os.Exit(2)
	}

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		slog.Error("failed to create output directory", "error", err)
		os.Exit(1)
	}

	// Load base config
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	baseCfg := config.Cfg()

	params := NewParamVector()
	dim := params.Dim()

	method, err := newMethod(*methodName, dim, *population)
	if err != nil {
		slog.Error("bad method", "error", err)
		os.Exit(2)
	}

	// Generate seeds for evaluation
	evalSeeds := make([]int64, *seeds)
	for i := range evalSeeds {
		evalSeeds[i] = int64(i*1000 + 42)
	}

	evaluator := NewFitnessEvaluator(params, RunSettings{
		Resolution:    *resolution,
		Steps:         *steps,
		Warmup:        *warmup,
		SampleEvery:   *sampleEvery,
		DT:            baseCfg.Derived.DT32,
		WanderSpeed:   float32(baseCfg.Headless.WanderSpeed),
		IterationCost: *iterationCost,
	}, evalSeeds, baseCfg)

	// Start from the base config rather than the stock defaults
	initX := params.Normalize(params.ExtractFromConfig(baseCfg))

	logPath := filepath.Join(*outputDir, "calibrate_log.csv")
	logFile, err := os.Create(logPath)
	if err != nil {
		slog.Error("failed to create log file", "error", err)
		os.Exit(1)
	}
	defer logFile.Close()

	evalCount := 0
	bestFitness := 1e9
	var bestParams []float64
	startTime := time.Now()

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			raw := params.Denormalize(x)
			fitness := evaluator.Evaluate(raw)
			evalCount++

			// Log clamped values (these are the values actually used)
			clamped := params.Clamp(raw)
			if fitness < bestFitness {
				bestFitness = fitness
				bestParams = clamped
			}

			elapsed := time.Since(startTime)
			rec := []EvalRecord{{
				Eval:                evalCount,
				Fitness:             fitness,
				DivergenceRatio:     evaluator.LastRatio(),
				Iterations:          int(clamped[0]),
				PressureDissipation: clamped[1],
				ElapsedSec:          elapsed.Seconds(),
			}}
			write := gocsv.MarshalWithoutHeaders
			if evalCount == 1 {
				write = gocsv.Marshal
			}
			if err := write(rec, logFile); err != nil {
				slog.Warn("eval not logged", "eval", evalCount, "error", err)
			}

			avgPerEval := elapsed / time.Duration(evalCount)
			remaining := time.Duration(max(*maxEvals-evalCount, 0)) * avgPerEval
			fmt.Printf("Eval %d/%d: iterations=%d pressure=%.3f ratio=%.4f (best=%.4f) | elapsed: %s, ETA: %s\n",
				evalCount, *maxEvals, int(clamped[0]), clamped[1], evaluator.LastRatio(), bestFitness,
				formatDuration(elapsed), formatDuration(remaining))

			return fitness
		},
	}

	settings := &optimize.Settings{
		FuncEvaluations: *maxEvals,
		Concurrent:      0, // Seeds already run in parallel
	}

	fmt.Printf("Starting %s calibration with %d parameters, max_evals=%d\n", *methodName, dim, *maxEvals)
	fmt.Printf("Seeds per evaluation: %d, steps per run: %d at %dx%d\n", *seeds, *steps, *resolution, *resolution)

	result, err := optimize.Minimize(problem, initX, settings, method)
	if err != nil {
		slog.Warn("calibration ended", "error", err)
	}

	if bestParams == nil && result != nil {
		bestParams = params.Clamp(params.Denormalize(result.X))
	}
	if bestParams == nil {
		slog.Error("no evaluation completed")
		os.Exit(1)
	}

	fmt.Printf("\nCalibration complete after %d evaluations in %s\n", evalCount, formatDuration(time.Since(startTime)))
	fmt.Printf("Best fitness: %.4f\n", bestFitness)
	fmt.Println("\nBest parameters:")
	for i, spec := range params.Specs {
		fmt.Printf("  %s: %.4f\n", spec.Path, bestParams[i])
	}

	bestCfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to reload config", "error", err)
		os.Exit(1)
	}
	params.ApplyToConfig(bestCfg, bestParams)

	configOutPath := filepath.Join(*outputDir, "best_config.yaml")
	if err := bestCfg.WriteYAML(configOutPath); err != nil {
		slog.Error("failed to write best config", "error", err)
	} else {
		fmt.Printf("\nBest config saved to: %s\n", configOutPath)
	}

	if trace := evaluator.BestTrace(); len(trace) > 0 {
		if err := writeTrace(filepath.Join(*outputDir, "best_trace.csv"), trace); err != nil {
			slog.Error("failed to write best trace", "error", err)
		}
	}
}

// writeTrace saves the field samples of the best run.
func writeTrace(path string, trace []telemetry.StepRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gocsv.MarshalFile(&trace, f)
}
