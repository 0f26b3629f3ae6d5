package telemetry

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// FieldStats summarizes selected channels of an RGBA field readback.
type FieldStats struct {
	L2        float64 // Euclidean norm over every selected component
	RMS       float64 // L2 / sqrt(texels)
	Max       float64 // Largest per-texel magnitude
	Mass      float64 // Sum of per-texel magnitudes
	CentroidX float64 // Magnitude-weighted centroid in uv
	CentroidY float64
}

// ComputeFieldStats computes statistics of an RGBA readback of size w×h
// over the given channels. Per-texel magnitude is the Euclidean length of
// the selected channels.
func ComputeFieldStats(rgba []float32, w, h int, channels ...int) FieldStats {
	n := w * h
	if n == 0 || len(rgba) < n*4 || len(channels) == 0 {
		return FieldStats{}
	}

	comps := make([]float32, 0, n*len(channels))
	mags := make([]float64, n)
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i := 0; i < n; i++ {
		var sq float64
		for _, c := range channels {
			v := rgba[i*4+c]
			comps = append(comps, v)
			sq += float64(v) * float64(v)
		}
		mags[i] = math.Sqrt(sq)
		xs[i] = (float64(i%w) + 0.5) / float64(w)
		ys[i] = (float64(i/w) + 0.5) / float64(h)
	}

	l2 := float64(blas32.Nrm2(blas32.Vector{N: len(comps), Inc: 1, Data: comps}))
	s := FieldStats{
		L2:   l2,
		RMS:  l2 / math.Sqrt(float64(n)),
		Max:  floats.Max(mags),
		Mass: floats.Sum(mags),
	}
	if s.Mass > 0 {
		s.CentroidX = stat.Mean(xs, mags)
		s.CentroidY = stat.Mean(ys, mags)
	}
	return s
}

// ChannelL2 is the Euclidean norm of a single channel of an RGBA readback.
func ChannelL2(rgba []float32, channel int) float64 {
	n := len(rgba) / 4
	if n == 0 {
		return 0
	}
	return float64(blas32.Nrm2(blas32.Vector{N: n, Inc: 4, Data: rgba[channel:]}))
}

// StepRecord is one row of steps.csv.
type StepRecord struct {
	Step             int     `csv:"step"`
	SimTime          float64 `csv:"sim_time"`
	Splats           int     `csv:"splats"`
	VelocityL2       float64 `csv:"velocity_l2"`
	VelocityMax      float64 `csv:"velocity_max"`
	DivergenceL2     float64 `csv:"divergence_l2"`
	DensityMass      float64 `csv:"density_mass"`
	DensityMax       float64 `csv:"density_max"`
	DensityCentroidX float64 `csv:"density_centroid_x"`
	DensityCentroidY float64 `csv:"density_centroid_y"`
}

// LogValue implements slog.LogValuer for structured logging.
func (r StepRecord) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("step", r.Step),
		slog.Float64("sim_time", r.SimTime),
		slog.Int("splats", r.Splats),
		slog.Float64("velocity_l2", r.VelocityL2),
		slog.Float64("velocity_max", r.VelocityMax),
		slog.Float64("divergence_l2", r.DivergenceL2),
		slog.Float64("density_mass", r.DensityMass),
		slog.Float64("density_max", r.DensityMax),
		slog.Float64("density_centroid_x", r.DensityCentroidX),
		slog.Float64("density_centroid_y", r.DensityCentroidY),
	)
}
