package latent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func ramp(shape Shape) *Tensor {
	t := New(shape)
	for i := range t.Data {
		t.Data[i] = float32(i)
	}
	return t
}

func TestCropPasteRoundTrip(t *testing.T) {
	src := ramp(Shape{2, 3, 6, 5})
	win, err := src.Crop(1, 2, 4, 5)
	require.NoError(t, err)
	require.Equal(t, Shape{2, 3, 3, 3}, win.Shape)
	require.Equal(t, src.At(1, 2, 2, 1), win.At(1, 2, 0, 0))
	require.Equal(t, src.At(0, 1, 4, 3), win.At(0, 1, 2, 2))

	dst := New(src.Shape)
	require.NoError(t, dst.Paste(win, 1, 2))
	require.Equal(t, src.At(1, 0, 3, 2), dst.At(1, 0, 3, 2))
	require.Zero(t, dst.At(0, 0, 0, 0))
}

func TestCropRejectsOutOfBounds(t *testing.T) {
	src := New(Shape{1, 1, 4, 4})
	_, err := src.Crop(0, 0, 5, 4)
	require.Error(t, err)
	_, err = src.Crop(2, 2, 2, 3)
	require.Error(t, err)
}

func TestPasteRejectsOverflow(t *testing.T) {
	dst := New(Shape{1, 1, 4, 4})
	require.Error(t, dst.Paste(New(Shape{1, 1, 2, 2}), 3, 0))
	require.Error(t, dst.Paste(New(Shape{1, 2, 2, 2}), 0, 0))
}

func TestNewOffsetFillsChannels(t *testing.T) {
	lt := NewOffset(2, 4, 3, 3, []float32{0.5, 0, -1})
	require.Equal(t, float32(0.5), lt.At(1, 0, 2, 2))
	require.Zero(t, lt.At(0, 1, 0, 0))
	require.Equal(t, float32(-1), lt.At(0, 2, 1, 1))
	require.Zero(t, lt.At(1, 3, 0, 0))
}

func TestBatchAndStack(t *testing.T) {
	src := ramp(Shape{3, 2, 2, 2})
	parts := []*Tensor{src.Batch(0), src.Batch(1), src.Batch(2)}
	out, err := Stack(parts)
	require.NoError(t, err)
	require.Equal(t, src.Shape, out.Shape)
	require.Equal(t, src.Data, out.Data)

	_, err = Stack([]*Tensor{New(Shape{1, 2, 2, 2}), New(Shape{1, 2, 3, 2})})
	require.Error(t, err)
}

func TestEncodeDecode(t *testing.T) {
	src := ramp(Shape{1, 2, 3, 4})
	enc, err := Encode(src, Float32)
	require.NoError(t, err)
	back, err := Decode(enc)
	require.NoError(t, err)
	require.Equal(t, src.Data, back.Data)

	// small integers are exact in half precision
	enc16, err := Encode(src, Float16)
	require.NoError(t, err)
	back16, err := Decode(enc16)
	require.NoError(t, err)
	require.Equal(t, src.Data, back16.Data)
}

func TestDecodeRejectsShortPayload(t *testing.T) {
	enc, err := Encode(New(Shape{1, 1, 2, 2}), Float32)
	require.NoError(t, err)
	enc.Shape = Shape{1, 1, 4, 4}
	_, err = Decode(enc)
	require.Error(t, err)

	_, err = ParseDType("bf16")
	require.Error(t, err)
}
