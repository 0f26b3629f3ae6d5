// Package stream serves a simulation over WebSocket: remote clients send
// pointer motion as JSON and receive downsampled flow frames as binary
// messages.
package stream

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/darkroomengineering/satus-sub000/gpu"
)

// frameMagic tags binary flow frames.
const frameMagic uint32 = 0x464c4f57 // "FLOW"

// frameHeader precedes the half-float payload of every frame.
type frameHeader struct {
	Magic  uint32
	Step   uint32
	Width  uint16
	Height uint16
}

// Frame is a downsampled flow field: interleaved RG offsets, row 0 at the
// bottom of the surface.
type Frame struct {
	Step   int
	Width  int
	Height int
	Flow   []float32 // len = Width*Height*2
}

// ErrBadFrame is returned when a binary message is not a flow frame.
var ErrBadFrame = errors.New("stream: malformed frame")

// Downsample box-filters the RG channels of an RGBA readback of size w×h
// into an n×n flow frame. n is clamped to the source size.
func Downsample(rgba []float32, w, h, n int) Frame {
	n = min(n, w, h)
	if n < 1 || len(rgba) < w*h*4 {
		return Frame{}
	}
	f := Frame{Width: n, Height: n, Flow: make([]float32, n*n*2)}
	for y := 0; y < n; y++ {
		y0, y1 := y*h/n, (y+1)*h/n
		for x := 0; x < n; x++ {
			x0, x1 := x*w/n, (x+1)*w/n
			var r, g float32
			for sy := y0; sy < y1; sy++ {
				for sx := x0; sx < x1; sx++ {
					i := (sy*w + sx) * 4
					r += rgba[i]
					g += rgba[i+1]
				}
			}
			count := float32((y1 - y0) * (x1 - x0))
			f.Flow[(y*n+x)*2] = r / count
			f.Flow[(y*n+x)*2+1] = g / count
		}
	}
	return f
}

// Encode packs f as a little-endian header followed by half floats.
func (f Frame) Encode() []byte {
	var buf bytes.Buffer
	buf.Grow(12 + len(f.Flow)*2)
	hdr := frameHeader{Magic: frameMagic, Step: uint32(f.Step), Width: uint16(f.Width), Height: uint16(f.Height)}
	_ = binary.Write(&buf, binary.LittleEndian, hdr)

	halves := make([]uint16, len(f.Flow))
	for i, v := range f.Flow {
		halves[i] = gpu.Float32ToHalfBits(v)
	}
	_ = binary.Write(&buf, binary.LittleEndian, halves)
	return buf.Bytes()
}

// DecodeFrame unpacks a binary frame produced by Encode.
func DecodeFrame(data []byte) (Frame, error) {
	r := bytes.NewReader(data)
	var hdr frameHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return Frame{}, fmt.Errorf("%w: header: %v", ErrBadFrame, err)
	}
	if hdr.Magic != frameMagic {
		return Frame{}, fmt.Errorf("%w: magic %#x", ErrBadFrame, hdr.Magic)
	}
	n := int(hdr.Width) * int(hdr.Height) * 2
	if r.Len() != n*2 {
		return Frame{}, fmt.Errorf("%w: payload %d bytes, want %d", ErrBadFrame, r.Len(), n*2)
	}
	halves := make([]uint16, n)
	if err := binary.Read(r, binary.LittleEndian, halves); err != nil {
		return Frame{}, fmt.Errorf("%w: payload: %v", ErrBadFrame, err)
	}
	f := Frame{Step: int(hdr.Step), Width: int(hdr.Width), Height: int(hdr.Height), Flow: make([]float32, n)}
	gpu.HalfToFloat32(f.Flow, halves)
	return f, nil
}
