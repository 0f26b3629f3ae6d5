package gpu_test

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/darkroomengineering/satus-sub000/gpu"
	"github.com/darkroomengineering/satus-sub000/software"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestNegotiate_Fallback(t *testing.T) {
	tests := []struct {
		name        string
		unsupported []gpu.Format
		disabled    []gpu.Format
		density     gpu.Format
		velocity    gpu.Format
		scalar      gpu.Format
	}{
		{
			name:     "all supported",
			density:  gpu.RGBA16F,
			velocity: gpu.RGBA16F,
			scalar:   gpu.RGBA16F,
		},
		{
			name:        "rgba16f incomplete",
			unsupported: []gpu.Format{gpu.RGBA16F},
			density:     gpu.RGBA32F,
			velocity:    gpu.RG16F,
			scalar:      gpu.RG16F,
		},
		{
			name:        "only single channel half",
			unsupported: []gpu.Format{gpu.RGBA16F, gpu.RG16F},
			density:     gpu.RGBA32F,
			velocity:    gpu.RGBA32F,
			scalar:      gpu.R16F,
		},
		{
			name:     "disabled by option",
			disabled: []gpu.Format{gpu.RGBA16F, gpu.RG16F, gpu.R16F},
			density:  gpu.RGBA32F,
			velocity: gpu.RGBA32F,
			scalar:   gpu.RGBA32F,
		},
		{
			name:        "only rg32f and r32f",
			unsupported: []gpu.Format{gpu.RGBA16F, gpu.RG16F, gpu.R16F, gpu.RGBA32F},
			density:     gpu.Format{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := software.New(software.Options{Unsupported: tt.unsupported, Logger: quiet})
			got, err := gpu.Negotiate(dev, gpu.NegotiateOptions{Disabled: tt.disabled, Logger: quiet})
			if tt.density == (gpu.Format{}) {
				// No format holds three channels.
				if !errors.Is(err, gpu.ErrUnsupported) {
					t.Fatalf("Negotiate = %v, want ErrUnsupported", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Negotiate: %v", err)
			}
			if got.Density != tt.density || got.Velocity != tt.velocity || got.Scalar != tt.scalar {
				t.Errorf("got density=%s velocity=%s scalar=%s, want %s %s %s",
					got.Density, got.Velocity, got.Scalar, tt.density, tt.velocity, tt.scalar)
			}
			if got.Filter != gpu.Linear {
				t.Errorf("filter = %s, want linear", got.Filter)
			}
		})
	}
}

func TestNegotiate_AllUnsupported(t *testing.T) {
	dev := software.New(software.Options{Unsupported: gpu.Candidates, Logger: quiet})
	_, err := gpu.Negotiate(dev, gpu.NegotiateOptions{Logger: quiet})
	if !errors.Is(err, gpu.ErrUnsupported) {
		t.Fatalf("Negotiate = %v, want ErrUnsupported", err)
	}
}

func TestNegotiate_Filtering(t *testing.T) {
	nearest := software.New(software.Options{NearestOnly: true, Logger: quiet})
	got, err := gpu.Negotiate(nearest, gpu.NegotiateOptions{Logger: quiet})
	if err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	if !got.ManualFiltering() {
		t.Error("nearest-only device should need manual filtering")
	}

	forced, err := gpu.Negotiate(software.New(software.Options{Logger: quiet}), gpu.NegotiateOptions{ForceNearest: true, Logger: quiet})
	if err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	if forced.Filter != gpu.Nearest {
		t.Errorf("ForceNearest gave %s filtering", forced.Filter)
	}
}

func TestProbeLinearFiltering(t *testing.T) {
	for _, f := range []gpu.Format{gpu.RGBA16F, gpu.R32F} {
		ok, err := gpu.ProbeLinearFiltering(software.New(software.Options{Logger: quiet}), f)
		if err != nil || !ok {
			t.Errorf("%s: linear probe = %v, %v; want true", f, ok, err)
		}
		ok, err = gpu.ProbeLinearFiltering(software.New(software.Options{NearestOnly: true, Logger: quiet}), f)
		if err != nil || ok {
			t.Errorf("%s: nearest-only probe = %v, %v; want false", f, ok, err)
		}
	}
}

func TestNegotiate_ReleasesProbes(t *testing.T) {
	dev := software.New(software.Options{Logger: quiet})
	if _, err := gpu.Negotiate(dev, gpu.NegotiateOptions{Logger: quiet}); err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	if n := dev.LiveTargets(); n != 0 {
		t.Errorf("%d probe targets leaked", n)
	}
}
