// Package gpu describes the drawing device the flow simulation runs on:
// texture formats, render targets, fragment programs and the fullscreen pass
// that ties them together. Concrete devices live in the software and
// renderer packages.
package gpu

import (
	"fmt"
	"strings"
)

// Precision is the storage precision of a floating-point texture channel.
type Precision uint8

const (
	// Half stores 16-bit floats.
	Half Precision = iota
	// Float stores 32-bit floats.
	Float
)

// Format is a floating-point texture layout.
type Format struct {
	Channels  int // 1, 2 or 4
	Precision Precision
}

// Float texture layouts, in the order the negotiator prefers them.
var (
	RGBA16F = Format{Channels: 4, Precision: Half}
	RG16F   = Format{Channels: 2, Precision: Half}
	R16F    = Format{Channels: 1, Precision: Half}
	RGBA32F = Format{Channels: 4, Precision: Float}
	RG32F   = Format{Channels: 2, Precision: Float}
	R32F    = Format{Channels: 1, Precision: Float}
)

// Candidates is the strict preference order tried by Negotiate.
var Candidates = []Format{RGBA16F, RG16F, R16F, RGBA32F, RG32F, R32F}

// Valid reports whether f is one of the supported layouts.
func (f Format) Valid() bool {
	switch f.Channels {
	case 1, 2, 4:
	default:
		return false
	}
	return f.Precision == Half || f.Precision == Float
}

func (f Format) String() string {
	var ch string
	switch f.Channels {
	case 1:
		ch = "R"
	case 2:
		ch = "RG"
	case 4:
		ch = "RGBA"
	default:
		return fmt.Sprintf("Format(%d,%d)", f.Channels, f.Precision)
	}
	if f.Precision == Half {
		return ch + "16F"
	}
	return ch + "32F"
}

// ParseFormat parses names such as "RGBA16F" or "r32f".
func ParseFormat(s string) (Format, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for _, f := range Candidates {
		if f.String() == name {
			return f, nil
		}
	}
	return Format{}, fmt.Errorf("gpu: unknown texture format %q", s)
}

// Filter selects how a texture is sampled between texel centers.
type Filter uint8

const (
	Nearest Filter = iota
	Linear
)

func (f Filter) String() string {
	if f == Linear {
		return "linear"
	}
	return "nearest"
}
