package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/darkroomengineering/satus-sub000/config"
)

// OutputManager handles structured run output with CSV logging.
type OutputManager struct {
	dir       string
	stepsFile *os.File
	perfFile  *os.File

	// Track if headers have been written
	stepsHeaderWritten bool
	perfHeaderWritten  bool
}

// NewOutputManager creates a new output manager and initializes the output directory.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}

	f, err := os.Create(filepath.Join(dir, "steps.csv"))
	if err != nil {
		return nil, fmt.Errorf("creating steps.csv: %w", err)
	}
	om.stepsFile = f

	f, err = os.Create(filepath.Join(dir, "perf.csv"))
	if err != nil {
		om.stepsFile.Close()
		return nil, fmt.Errorf("creating perf.csv: %w", err)
	}
	om.perfFile = f

	return om, nil
}

// WriteConfig saves the current configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WriteStep writes a step record to steps.csv.
func (om *OutputManager) WriteStep(r StepRecord) error {
	if om == nil {
		return nil
	}

	records := []StepRecord{r}

	if !om.stepsHeaderWritten {
		// First write includes headers
		if err := gocsv.Marshal(records, om.stepsFile); err != nil {
			return fmt.Errorf("writing step: %w", err)
		}
		om.stepsHeaderWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, om.stepsFile); err != nil {
		return fmt.Errorf("writing step: %w", err)
	}
	return nil
}

// WritePerf writes a performance stats record to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, windowEnd int) error {
	if om == nil {
		return nil
	}

	records := []PerfStatsCSV{stats.ToCSV(windowEnd)}

	if !om.perfHeaderWritten {
		if err := gocsv.Marshal(records, om.perfFile); err != nil {
			return fmt.Errorf("writing perf: %w", err)
		}
		om.perfHeaderWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, om.perfFile); err != nil {
		return fmt.Errorf("writing perf: %w", err)
	}
	return nil
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}

	var firstErr error
	for _, f := range []*os.File{om.stepsFile, om.perfFile} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ReadSteps loads a steps.csv written by an OutputManager.
func ReadSteps(path string) ([]StepRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening steps: %w", err)
	}
	defer f.Close()

	var records []StepRecord
	if err := gocsv.UnmarshalFile(f, &records); err != nil {
		return nil, fmt.Errorf("parsing steps: %w", err)
	}
	return records, nil
}
