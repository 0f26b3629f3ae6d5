package gpu

import (
	"errors"
	"fmt"
)

// DoubleBuffer is a read/write pair of identically shaped render targets.
// Passes that update a field in place sample Read and render into Write,
// then Swap.
type DoubleBuffer struct {
	targets [2]Target
	read    int
}

// NewDoubleBuffer allocates both targets on dev.
func NewDoubleBuffer(dev Device, w, h int, f Format, filter Filter) (*DoubleBuffer, error) {
	a, err := dev.NewTarget(w, h, f, filter)
	if err != nil {
		return nil, fmt.Errorf("double buffer %dx%d %s: %w", w, h, f, err)
	}
	b, err := dev.NewTarget(w, h, f, filter)
	if err != nil {
		a.Release()
		return nil, fmt.Errorf("double buffer %dx%d %s: %w", w, h, f, err)
	}
	return newDoubleBuffer(a, b)
}

func newDoubleBuffer(a, b Target) (*DoubleBuffer, error) {
	if a == b {
		return nil, errors.New("double buffer: read and write must be distinct targets")
	}
	return &DoubleBuffer{targets: [2]Target{a, b}}, nil
}

// Read returns the target holding the current field.
func (d *DoubleBuffer) Read() Target { return d.targets[d.read] }

// Write returns the target the next pass renders into. Its contents are
// undefined until that pass runs.
func (d *DoubleBuffer) Write() Target { return d.targets[1-d.read] }

// Swap exchanges the read and write roles. No texels are copied.
func (d *DoubleBuffer) Swap() { d.read = 1 - d.read }

// Size returns the shared target size.
func (d *DoubleBuffer) Size() (w, h int) { return d.targets[0].Size() }

// Release frees both targets.
func (d *DoubleBuffer) Release() {
	for _, t := range d.targets {
		if t != nil {
			t.Release()
		}
	}
}
