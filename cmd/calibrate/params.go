package main

import (
	"math"

	"github.com/darkroomengineering/satus-sub000/config"
	"github.com/darkroomengineering/satus-sub000/fluid"
)

// ParamSpec defines a single calibrated solver tunable.
type ParamSpec struct {
	Name    string  // Human-readable name
	Path    string  // Config path for logging
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value
	Integer bool    // Rounded before use
}

// ParamVector holds the set of calibrated tunables.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the standard set of calibrated tunables.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			{Name: "iterations", Path: "fluid.iterations", Min: 1, Max: 40, Default: 3, Integer: true},
			{Name: "pressure_dissipation", Path: "fluid.pressure_dissipation", Min: 0, Max: 1, Default: 0.8},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds and rounds integer specs.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		val := math.Min(math.Max(v[i], spec.Min), spec.Max)
		if spec.Integer {
			val = math.Round(val)
		}
		clamped[i] = val
	}
	return clamped
}

// ApplyToParams writes clamped values into p. Order matches Specs.
func (pv *ParamVector) ApplyToParams(p *fluid.Params, values []float64) {
	clamped := pv.Clamp(values)
	p.Iterations = int(clamped[0])
	p.PressureDissipation = float32(clamped[1])
}

// ApplyToConfig writes clamped values into the fluid section of cfg.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	clamped := pv.Clamp(values)
	cfg.Fluid.Iterations = int(clamped[0])
	cfg.Fluid.PressureDissipation = clamped[1]
}

// ExtractFromConfig reads the current values from cfg.
func (pv *ParamVector) ExtractFromConfig(cfg *config.Config) []float64 {
	return []float64{
		float64(cfg.Fluid.Iterations),
		cfg.Fluid.PressureDissipation,
	}
}
