// Package noise generates seeded standard-normal latent fields and blends
// variation noise into them.
package noise

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"

	"diffusiond/internal/latent"
)

// ParallelThreshold is the mean cosine above which slerp degrades to lerp.
const ParallelThreshold = 0.9995

// Generate draws a standard-normal field. Batch element i is seeded with
// seed+i so single frames can be regenerated on their own.
func Generate(seed uint64, shape latent.Shape) *latent.Tensor {
	out := latent.New(shape)
	n := shape[1] * shape[2] * shape[3]
	for b := 0; b < shape[0]; b++ {
		fill(out.Data[b*n:(b+1)*n], seed+uint64(b))
	}
	return out
}

// Zeros is the field used when noise injection is disabled.
func Zeros(shape latent.Shape) *latent.Tensor { return latent.New(shape) }

func fill(dst []float32, seed uint64) {
	rng := rand.New(rand.NewPCG(seed, seed))
	for i := range dst {
		dst[i] = float32(rng.NormFloat64())
	}
}

// Fixed reproduces the variation-seed behaviour of the sampler node: with
// strength 0 it is Generate(seed); otherwise every element starts from the
// base seed and is slerped towards the field of variationSeed+i.
func Fixed(seed, variationSeed uint64, strength float64, shape latent.Shape) (*latent.Tensor, error) {
	if strength < 0 || strength > 1 {
		return nil, fmt.Errorf("variation strength %v outside [0,1]", strength)
	}
	if strength == 0 {
		return Generate(seed, shape), nil
	}
	one := latent.Shape{1, shape[1], shape[2], shape[3]}
	base := latent.New(shape)
	variation := latent.New(shape)
	n := one.Size()
	for b := 0; b < shape[0]; b++ {
		copy(base.Data[b*n:(b+1)*n], Generate(seed, one).Data)
		copy(variation.Data[b*n:(b+1)*n], Generate(variationSeed+uint64(b), one).Data)
	}
	return BlendVariation(base, variation, strength)
}

// BlendVariation spherically interpolates each batch element of base towards
// variation. The vectors are the height columns of every (channel, x) pair,
// so each column gets its own angle; when the columns are nearly parallel on
// average the element is linearly interpolated instead.
func BlendVariation(base, variation *latent.Tensor, strength float64) (*latent.Tensor, error) {
	if !latent.SameShape(base, variation) {
		return nil, fmt.Errorf("blend: shape %s does not match %s", base.Shape, variation.Shape)
	}
	s := base.Shape
	out := latent.New(s)
	chans, h, w := s[1], s[2], s[3]
	plane := h * w
	elem := chans * plane
	lo := make([]float64, h)
	hi := make([]float64, h)
	dots := make([]float64, chans*w)
	for b := 0; b < s[0]; b++ {
		off := b * elem
		a, v := base.Data[off:off+elem], variation.Data[off:off+elem]
		dst := out.Data[off : off+elem]
		for c := 0; c < chans; c++ {
			for x := 0; x < w; x++ {
				column(lo, a, c*plane+x, w)
				column(hi, v, c*plane+x, w)
				dots[c*w+x] = cosine(lo, hi)
			}
		}
		if floats.Sum(dots)/float64(len(dots)) > ParallelThreshold {
			lerp(dst, a, v, strength)
			continue
		}
		for c := 0; c < chans; c++ {
			for x := 0; x < w; x++ {
				omega := math.Acos(dots[c*w+x])
				so := math.Sin(omega)
				wa, wv := float32(1-strength), float32(strength)
				if so != 0 {
					wa = float32(math.Sin((1-strength)*omega) / so)
					wv = float32(math.Sin(strength*omega) / so)
				}
				for y, i := 0, c*plane+x; y < h; y, i = y+1, i+w {
					dst[i] = wa*a[i] + wv*v[i]
				}
			}
		}
	}
	return out, nil
}

func lerp(dst, a, b []float32, t float64) {
	wa, wb := float32(1-t), float32(t)
	for i := range dst {
		dst[i] = wa*a[i] + wb*b[i]
	}
}

// column gathers len(dst) values of src starting at first, stride apart.
func column(dst []float64, src []float32, first, stride int) {
	for i := range dst {
		dst[i] = float64(src[first+i*stride])
	}
}

// cosine returns the dot product of the normalised vectors, clamped to
// [-1,1]. A zero vector counts as parallel.
func cosine(a, b []float64) float64 {
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 1
	}
	d := floats.Dot(a, b) / (na * nb)
	return math.Max(-1, math.Min(1, d))
}
