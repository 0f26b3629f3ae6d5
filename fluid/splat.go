package fluid

// Splat is a localized impulse. X and Y are in [0,1] with Y up; DX and DY
// are the impulse added to velocity and injected into density as the color
// (DX, DY, 1). A zero Radius uses the simulation's current Params.Radius; a
// splat that ends up with a non-positive radius is dropped.
type Splat struct {
	X, Y   float32
	DX, DY float32
	Radius float32
}

// SplatSource hands over the splats queued since the last call.
type SplatSource interface {
	DrainPendingSplats() []Splat
}

// SplatSourceFunc adapts a function to SplatSource.
type SplatSourceFunc func() []Splat

// DrainPendingSplats implements SplatSource.
func (f SplatSourceFunc) DrainPendingSplats() []Splat { return f() }
