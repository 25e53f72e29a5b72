package noise

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"diffusiond/internal/latent"
)

func TestGenerateReproducible(t *testing.T) {
	shape := latent.Shape{1, 4, 64, 64}
	a := Generate(42, shape)
	b := Generate(42, shape)
	require.Equal(t, a.Data, b.Data)

	c := Generate(43, shape)
	require.NotEqual(t, a.Data, c.Data)
}

func TestGeneratePerElementSeeding(t *testing.T) {
	batch := Generate(7, latent.Shape{3, 2, 8, 8})
	single := Generate(9, latent.Shape{1, 2, 8, 8})
	require.Equal(t, single.Data, batch.Batch(2).Data)
}

func TestGenerateLooksNormal(t *testing.T) {
	f := Generate(1, latent.Shape{1, 4, 64, 64})
	var sum, sq float64
	for _, v := range f.Data {
		sum += float64(v)
		sq += float64(v) * float64(v)
	}
	n := float64(len(f.Data))
	mean := sum / n
	std := math.Sqrt(sq/n - mean*mean)
	require.InDelta(t, 0, mean, 0.05)
	require.InDelta(t, 1, std, 0.05)
}

func TestBlendVariationParallelFallsBackToLerp(t *testing.T) {
	shape := latent.Shape{2, 4, 8, 8}
	base := Generate(5, shape)
	variation := base.Clone()
	for i := range variation.Data {
		variation.Data[i] *= 2
	}
	got, err := BlendVariation(base, variation, 0.3)
	require.NoError(t, err)
	for i := range got.Data {
		want := 0.7*float64(base.Data[i]) + 0.3*float64(variation.Data[i])
		require.InDelta(t, want, float64(got.Data[i]), 1e-5)
	}
	for _, v := range got.Data {
		require.False(t, math.IsNaN(float64(v)))
	}
}

func TestBlendVariationEndpoints(t *testing.T) {
	shape := latent.Shape{1, 4, 16, 16}
	base := Generate(1, shape)
	variation := Generate(2, shape)

	zero, err := BlendVariation(base, variation, 0)
	require.NoError(t, err)
	require.Equal(t, base.Data, zero.Data)

	one, err := BlendVariation(base, variation, 1)
	require.NoError(t, err)
	require.InDeltaSlice(t, toF64(variation.Data), toF64(one.Data), 1e-4)
}

func TestBlendVariationPreservesMagnitude(t *testing.T) {
	shape := latent.Shape{1, 4, 32, 32}
	base := Generate(10, shape)
	variation := Generate(11, shape)
	mid, err := BlendVariation(base, variation, 0.5)
	require.NoError(t, err)
	// independent normals are nearly orthogonal; slerp keeps the norm, lerp would shrink it by ~0.707
	require.InDelta(t, norm(base.Data), norm(mid.Data), 0.05*norm(base.Data))
}

// Each (channel, x) height column is its own slerp vector; the columns below
// are orthogonal or parallel so the weights can be worked out by hand.
func TestBlendVariationPerColumn(t *testing.T) {
	shape := latent.Shape{1, 1, 2, 2}
	// column x=0: base (1,0), variation (0,1): orthogonal, omega = pi/2
	// column x=1: base (1,0), variation (-1,0): opposite, omega = pi
	base := &latent.Tensor{Shape: shape, Data: []float32{1, 1, 0, 0}}
	variation := &latent.Tensor{Shape: shape, Data: []float32{0, -1, 1, 0}}
	got, err := BlendVariation(base, variation, 0.5)
	require.NoError(t, err)

	half := math.Sin(math.Pi/4) / math.Sin(math.Pi/2)
	require.InDelta(t, half, float64(got.Data[0]), 1e-6)
	require.InDelta(t, half, float64(got.Data[2]), 1e-6)
	// sin(pi/2)/sin(pi) weights cancel exactly for opposite vectors
	require.InDelta(t, 0, float64(got.Data[1]), 1e-3)
	require.InDelta(t, 0, float64(got.Data[3]), 1e-6)
}

func TestBlendVariationColumnsNotPlanes(t *testing.T) {
	shape := latent.Shape{1, 2, 3, 4}
	base := Generate(21, shape)
	variation := Generate(22, shape)
	got, err := BlendVariation(base, variation, 0.4)
	require.NoError(t, err)

	h, w := shape[2], shape[3]
	for c := 0; c < shape[1]; c++ {
		for x := 0; x < w; x++ {
			var dot, na, nv float64
			for y := 0; y < h; y++ {
				i := (c*h+y)*w + x
				a, v := float64(base.Data[i]), float64(variation.Data[i])
				dot += a * v
				na += a * a
				nv += v * v
			}
			omega := math.Acos(dot / math.Sqrt(na*nv))
			wa := math.Sin(0.6*omega) / math.Sin(omega)
			wv := math.Sin(0.4*omega) / math.Sin(omega)
			for y := 0; y < h; y++ {
				i := (c*h+y)*w + x
				want := wa*float64(base.Data[i]) + wv*float64(variation.Data[i])
				require.InDelta(t, want, float64(got.Data[i]), 1e-4, "c=%d x=%d y=%d", c, x, y)
			}
		}
	}
}

func TestBlendVariationShapeMismatch(t *testing.T) {
	_, err := BlendVariation(latent.New(latent.Shape{1, 4, 8, 8}), latent.New(latent.Shape{1, 4, 8, 4}), 0.5)
	require.Error(t, err)
}

func TestFixed(t *testing.T) {
	shape := latent.Shape{2, 4, 8, 8}
	plain, err := Fixed(3, 100, 0, shape)
	require.NoError(t, err)
	require.Equal(t, Generate(3, shape).Data, plain.Data)

	varied, err := Fixed(3, 100, 0.25, shape)
	require.NoError(t, err)
	again, err := Fixed(3, 100, 0.25, shape)
	require.NoError(t, err)
	require.Equal(t, varied.Data, again.Data)
	require.NotEqual(t, varied.Batch(0).Data, varied.Batch(1).Data)

	_, err = Fixed(3, 100, 1.5, shape)
	require.Error(t, err)
}

func toF64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i := range v {
		out[i] = float64(v[i])
	}
	return out
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}
