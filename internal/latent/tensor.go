// Package latent holds the dense 4-D float32 tensors the sampler operates on.
// Axes are (batch, channel, height, width) stored row-major.
package latent

import (
	"fmt"
)

// Axis indexes into a Shape.
const (
	AxisBatch = iota
	AxisChannel
	AxisHeight
	AxisWidth
)

// Defaults for the common 4-channel, 8x VAE model families.
const (
	DefaultChannels    = 4
	DefaultScaleFactor = 8
)

// Shape is (batch, channel, height, width).
type Shape [4]int

// Size returns the element count.
func (s Shape) Size() int { return s[0] * s[1] * s[2] * s[3] }

// Valid reports whether every dimension is positive.
func (s Shape) Valid() bool { return s[0] > 0 && s[1] > 0 && s[2] > 0 && s[3] > 0 }

func (s Shape) String() string { return fmt.Sprintf("(%d,%d,%d,%d)", s[0], s[1], s[2], s[3]) }

// Tensor is a dense BCHW float32 array.
type Tensor struct {
	Shape Shape
	Data  []float32
}

// New allocates a zero tensor.
func New(shape Shape) *Tensor {
	return &Tensor{Shape: shape, Data: make([]float32, shape.Size())}
}

// FromData wraps data, checking that its length matches shape.
func FromData(shape Shape, data []float32) (*Tensor, error) {
	if !shape.Valid() {
		return nil, fmt.Errorf("invalid shape %s", shape)
	}
	if len(data) != shape.Size() {
		return nil, fmt.Errorf("data length %d does not match shape %s", len(data), shape)
	}
	return &Tensor{Shape: shape, Data: data}, nil
}

// NewOffset returns an empty latent whose channel c is filled with offsets[c].
// Channels past len(offsets) stay zero.
func NewOffset(batch, channels, height, width int, offsets []float32) *Tensor {
	t := New(Shape{batch, channels, height, width})
	plane := height * width
	for b := 0; b < batch; b++ {
		for c := 0; c < channels && c < len(offsets); c++ {
			if offsets[c] == 0 {
				continue
			}
			p := t.Data[(b*channels+c)*plane : (b*channels+c+1)*plane]
			for i := range p {
				p[i] = offsets[c]
			}
		}
	}
	return t
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	out := &Tensor{Shape: t.Shape, Data: make([]float32, len(t.Data))}
	copy(out.Data, t.Data)
	return out
}

// Index returns the flat offset of (b, c, y, x).
func (t *Tensor) Index(b, c, y, x int) int {
	s := t.Shape
	return ((b*s[1]+c)*s[2]+y)*s[3] + x
}

// At returns the value at (b, c, y, x).
func (t *Tensor) At(b, c, y, x int) float32 { return t.Data[t.Index(b, c, y, x)] }

// Set writes the value at (b, c, y, x).
func (t *Tensor) Set(b, c, y, x int, v float32) { t.Data[t.Index(b, c, y, x)] = v }

// Batch returns element b as its own (1,C,H,W) tensor sharing no memory.
func (t *Tensor) Batch(b int) *Tensor {
	s := t.Shape
	n := s[1] * s[2] * s[3]
	out := New(Shape{1, s[1], s[2], s[3]})
	copy(out.Data, t.Data[b*n:(b+1)*n])
	return out
}

// Stack concatenates (1,C,H,W) tensors along the batch axis.
func Stack(items []*Tensor) (*Tensor, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("stack: no tensors")
	}
	first := items[0].Shape
	out := New(Shape{0, first[1], first[2], first[3]})
	for i, it := range items {
		if it.Shape[1] != first[1] || it.Shape[2] != first[2] || it.Shape[3] != first[3] {
			return nil, fmt.Errorf("stack: tensor %d shape %s does not match %s", i, it.Shape, first)
		}
		out.Data = append(out.Data, it.Data...)
		out.Shape[0] += it.Shape[0]
	}
	return out, nil
}

// Crop copies the spatial window [top,bottom) x [left,right) across all
// batch elements and channels.
func (t *Tensor) Crop(left, top, right, bottom int) (*Tensor, error) {
	s := t.Shape
	if left < 0 || top < 0 || right > s[3] || bottom > s[2] || left >= right || top >= bottom {
		return nil, fmt.Errorf("crop window [%d,%d)x[%d,%d) outside %dx%d", left, right, top, bottom, s[3], s[2])
	}
	w, h := right-left, bottom-top
	out := New(Shape{s[0], s[1], h, w})
	for b := 0; b < s[0]; b++ {
		for c := 0; c < s[1]; c++ {
			for y := 0; y < h; y++ {
				src := t.Index(b, c, top+y, left)
				dst := out.Index(b, c, y, 0)
				copy(out.Data[dst:dst+w], t.Data[src:src+w])
			}
		}
	}
	return out, nil
}

// Paste writes src into t with its top-left corner at (left, top).
func (t *Tensor) Paste(src *Tensor, left, top int) error {
	s, ss := t.Shape, src.Shape
	if ss[0] != s[0] || ss[1] != s[1] {
		return fmt.Errorf("paste: batch/channel mismatch %s into %s", ss, s)
	}
	if left < 0 || top < 0 || left+ss[3] > s[3] || top+ss[2] > s[2] {
		return fmt.Errorf("paste: %s at (%d,%d) exceeds %s", ss, left, top, s)
	}
	for b := 0; b < s[0]; b++ {
		for c := 0; c < s[1]; c++ {
			for y := 0; y < ss[2]; y++ {
				dst := t.Index(b, c, top+y, left)
				srcOff := src.Index(b, c, y, 0)
				copy(t.Data[dst:dst+ss[3]], src.Data[srcOff:srcOff+ss[3]])
			}
		}
	}
	return nil
}

// SameShape reports whether a and b have identical shapes.
func SameShape(a, b *Tensor) bool { return a.Shape == b.Shape }
