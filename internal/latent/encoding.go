package latent

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"
)

// DType names a wire element type.
type DType string

const (
	Float32 DType = "f32"
	Float16 DType = "f16"
)

// Encoded is the JSON wire form of a tensor: little-endian elements, base64.
type Encoded struct {
	Shape Shape  `json:"shape"`
	DType DType  `json:"dtype"`
	Data  string `json:"data"`
}

// ParseDType accepts "", "f32", "float32", "f16" and "float16".
func ParseDType(s string) (DType, error) {
	switch s {
	case "", "f32", "float32":
		return Float32, nil
	case "f16", "float16":
		return Float16, nil
	default:
		return "", fmt.Errorf("unsupported dtype %q", s)
	}
}

// Encode serialises t with the given element type.
func Encode(t *Tensor, dt DType) (Encoded, error) {
	var buf []byte
	switch dt {
	case Float32, "":
		dt = Float32
		buf = make([]byte, 4*len(t.Data))
		for i, v := range t.Data {
			binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
		}
	case Float16:
		buf = make([]byte, 2*len(t.Data))
		for i, v := range t.Data {
			binary.LittleEndian.PutUint16(buf[2*i:], float16.Fromfloat32(v).Bits())
		}
	default:
		return Encoded{}, fmt.Errorf("unsupported dtype %q", dt)
	}
	return Encoded{Shape: t.Shape, DType: dt, Data: base64.StdEncoding.EncodeToString(buf)}, nil
}

// Decode is the inverse of Encode. f16 payloads are widened to float32.
func Decode(e Encoded) (*Tensor, error) {
	if !e.Shape.Valid() {
		return nil, fmt.Errorf("invalid shape %s", e.Shape)
	}
	raw, err := base64.StdEncoding.DecodeString(e.Data)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	dt, err := ParseDType(string(e.DType))
	if err != nil {
		return nil, err
	}
	n := e.Shape.Size()
	out := New(e.Shape)
	switch dt {
	case Float32:
		if len(raw) != 4*n {
			return nil, fmt.Errorf("f32 payload is %d bytes, want %d", len(raw), 4*n)
		}
		for i := range out.Data {
			out.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
		}
	case Float16:
		if len(raw) != 2*n {
			return nil, fmt.Errorf("f16 payload is %d bytes, want %d", len(raw), 2*n)
		}
		for i := range out.Data {
			out.Data[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[2*i:])).Float32()
		}
	}
	return out, nil
}
