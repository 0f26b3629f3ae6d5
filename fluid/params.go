package fluid

import "github.com/darkroomengineering/satus-sub000/config"

// Params are the solver tunables. The simulation reads them fresh at the
// start of every Step, so the owner may change them between frames.
type Params struct {
	Iterations          int     // Jacobi passes per step
	DensityDissipation  float32 // Per-step dye decay
	VelocityDissipation float32 // Per-step velocity decay
	PressureDissipation float32 // Previous pressure kept as the solver's initial guess
	CurlStrength        float32 // Vorticity confinement scale
	Radius              float32 // Splat radius; the Gaussian denominator is Radius/100
	AspectRatio         float32 // Output width / height, keeps splats circular
}

// DefaultParams returns the stock tunables.
func DefaultParams() Params {
	return Params{
		Iterations:          3,
		DensityDissipation:  0.97,
		VelocityDissipation: 0.98,
		PressureDissipation: 0.8,
		CurlStrength:        20,
		Radius:              0.2,
		AspectRatio:         1,
	}
}

// ParamsFromConfig builds Params from the fluid section of cfg.
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		Iterations:          cfg.Fluid.Iterations,
		DensityDissipation:  float32(cfg.Fluid.DensityDissipation),
		VelocityDissipation: float32(cfg.Fluid.VelocityDissipation),
		PressureDissipation: float32(cfg.Fluid.PressureDissipation),
		CurlStrength:        float32(cfg.Fluid.CurlStrength),
		Radius:              float32(cfg.Fluid.Radius),
		AspectRatio:         cfg.Derived.AspectRatio,
	}
}
