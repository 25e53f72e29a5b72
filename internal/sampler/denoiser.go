package sampler

import (
	"context"
	"fmt"

	"diffusiond/internal/latent"
	"diffusiond/internal/schedule"
)

// StepFunc is invoked by a Denoiser after every step with the step index,
// the total step count and the current prediction of the clean latent.
type StepFunc func(step, total int, x0 *latent.Tensor)

// DenoiseRequest is everything a Denoiser needs for one latent or tile.
type DenoiseRequest struct {
	Model    string
	Sampler  Name
	Noise    *latent.Tensor
	Sigmas   schedule.Sigmas
	Positive any
	Negative any
	Latent   *latent.Tensor
	CFGScale float64
	// StartStep and EndStep bound the portion of Sigmas to run.
	StartStep        int
	EndStep          int
	ForceFullDenoise bool
	NoiseMask        *latent.Tensor
	Callback         StepFunc
}

// Denoiser runs the actual model. Implementations should honour ctx between
// steps.
type Denoiser interface {
	Denoise(ctx context.Context, req DenoiseRequest) (*latent.Tensor, error)
}

// SamplingProvider is implemented by denoisers that know their model's
// noise parameterisation.
type SamplingProvider interface {
	ModelSampling() schedule.ModelSampling
}

// Predictor estimates the clean latent for x at noise level sigma.
type Predictor func(ctx context.Context, x *latent.Tensor, sigma float64, req *DenoiseRequest) (*latent.Tensor, error)

// IdentityPredictor predicts the request's input latent. With it the Euler
// denoiser returns its input, which makes tiling and stitching observable.
func IdentityPredictor(_ context.Context, _ *latent.Tensor, _ float64, req *DenoiseRequest) (*latent.Tensor, error) {
	return req.Latent.Clone(), nil
}

// EulerDenoiser is a first-order reference denoiser. It ignores the sampler
// name and always takes plain Euler steps.
type EulerDenoiser struct {
	Predict  Predictor
	Sampling schedule.ModelSampling
}

// NewEuler returns an EulerDenoiser backed by p for a model of family f.
func NewEuler(p Predictor, f schedule.Family) *EulerDenoiser {
	if p == nil {
		p = IdentityPredictor
	}
	return &EulerDenoiser{Predict: p, Sampling: schedule.ForFamily(f)}
}

func (e *EulerDenoiser) ModelSampling() schedule.ModelSampling { return e.Sampling }

func (e *EulerDenoiser) Denoise(ctx context.Context, req DenoiseRequest) (*latent.Tensor, error) {
	if req.Latent == nil {
		return nil, fmt.Errorf("euler: no input latent")
	}
	if req.Noise != nil && !latent.SameShape(req.Noise, req.Latent) {
		return nil, fmt.Errorf("euler: noise %s does not match latent %s", req.Noise.Shape, req.Latent.Shape)
	}
	last := len(req.Sigmas) - 1
	end := min(req.EndStep, last)
	if req.StartStep >= end {
		return req.Latent.Clone(), nil
	}
	sig := append(schedule.Sigmas(nil), req.Sigmas[req.StartStep:end+1]...)
	if req.ForceFullDenoise && end < last {
		sig[len(sig)-1] = 0
	}

	x := noised(req.Latent, req.Noise, sig[0])
	for i := 0; i+1 < len(sig); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		den, err := e.Predict(ctx, x, sig[i], &req)
		if err != nil {
			return nil, err
		}
		if !latent.SameShape(den, x) {
			return nil, fmt.Errorf("euler: prediction %s does not match latent %s", den.Shape, x.Shape)
		}
		if sig[i+1] == 0 || sig[i] == 0 {
			x = den.Clone()
		} else {
			dt := float32((sig[i+1] - sig[i]) / sig[i])
			for j := range x.Data {
				x.Data[j] += (x.Data[j] - den.Data[j]) * dt
			}
		}
		if req.NoiseMask != nil {
			if err := keepUnmasked(x, noised(req.Latent, req.Noise, sig[i+1]), req.NoiseMask); err != nil {
				return nil, err
			}
		}
		if req.Callback != nil {
			req.Callback(req.StartStep+i, last, den)
		}
	}
	return x, nil
}

func noised(x, n *latent.Tensor, sigma float64) *latent.Tensor {
	out := x.Clone()
	if n == nil || sigma == 0 {
		return out
	}
	s := float32(sigma)
	for i := range out.Data {
		out.Data[i] += n.Data[i] * s
	}
	return out
}

// keepUnmasked restores orig wherever mask is 0. The mask has one channel
// and either one batch element or one per latent element.
func keepUnmasked(x, orig, mask *latent.Tensor) error {
	s, m := x.Shape, mask.Shape
	if m[1] != 1 || m[2] != s[2] || m[3] != s[3] || (m[0] != 1 && m[0] != s[0]) {
		return fmt.Errorf("noise mask %s does not match latent %s", m, s)
	}
	for b := 0; b < s[0]; b++ {
		mb := b % m[0]
		for c := 0; c < s[1]; c++ {
			for y := 0; y < s[2]; y++ {
				for xx := 0; xx < s[3]; xx++ {
					w := mask.At(mb, 0, y, xx)
					i := x.Index(b, c, y, xx)
					x.Data[i] = x.Data[i]*w + orig.Data[i]*(1-w)
				}
			}
		}
	}
	return nil
}
