package fluid

import (
	"fmt"

	"github.com/darkroomengineering/satus-sub000/gpu"
	"github.com/darkroomengineering/satus-sub000/telemetry"
)

// Readback returns the texels of t as RGBA float32 via the device.
func (s *Simulation) Readback(t gpu.Texture) ([]float32, error) {
	if s.disposed {
		return nil, ErrDisposed
	}
	data, err := s.dev.Read(t)
	if err != nil {
		return nil, fmt.Errorf("fluid: readback: %w", err)
	}
	return data, nil
}

// Divergence recomputes the divergence of the current velocity and returns
// its L2 norm. The divergence target is overwritten; the next Step
// recomputes it anyway.
func (s *Simulation) Divergence() (float64, error) {
	if s.disposed {
		return 0, ErrDisposed
	}
	if err := s.computeDivergence(); err != nil {
		return 0, err
	}
	data, err := s.Readback(s.divergence)
	if err != nil {
		return 0, err
	}
	return telemetry.ChannelL2(data, 0), nil
}

// Sample reads back the fields and summarizes them as a step record.
func (s *Simulation) Sample(simTime float64) (telemetry.StepRecord, error) {
	rec := telemetry.StepRecord{Step: s.steps, SimTime: simTime, Splats: s.lastSplats}

	div, err := s.Divergence()
	if err != nil {
		return rec, err
	}
	rec.DivergenceL2 = div

	vel, err := s.Readback(s.velocity.Read())
	if err != nil {
		return rec, err
	}
	w, h := s.velocity.Size()
	vs := telemetry.ComputeFieldStats(vel, w, h, 0, 1)
	rec.VelocityL2 = vs.L2
	rec.VelocityMax = vs.Max

	dye, err := s.Readback(s.density.Read())
	if err != nil {
		return rec, err
	}
	w, h = s.density.Size()
	ds := telemetry.ComputeFieldStats(dye, w, h, 2)
	rec.DensityMass = ds.Mass
	rec.DensityMax = ds.Max
	rec.DensityCentroidX = ds.CentroidX
	rec.DensityCentroidY = ds.CentroidY
	return rec, nil
}
