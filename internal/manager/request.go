package manager

import (
	"fmt"

	"diffusiond/internal/latent"
	"diffusiond/internal/sampler"
	"diffusiond/internal/schedule"
	"diffusiond/pkg/types"
)

// maxEmptyPixels caps the empty latent a request may ask for.
const maxEmptyPixels = 8192

// buildConfig layers req over the manager defaults and validates the result.
func (m *Manager) buildConfig(req types.SampleRequest, mdl types.Model) (sampler.Config, error) {
	cfg := m.defaults
	cfg.Model = mdl.ID
	cfg.Seed = req.Seed
	if req.Steps != 0 {
		cfg.Steps = req.Steps
	}
	if req.CFGScale != nil {
		cfg.CFGScale = *req.CFGScale
	}
	if req.Sampler != "" {
		cfg.Sampler = sampler.Name(req.Sampler)
	}
	if req.Scheduler != "" {
		cfg.Scheduler = schedule.Algorithm(req.Scheduler)
	}
	cfg.StartAtStep = req.StartAtStep
	if req.EndAtStep != nil {
		cfg.EndAtStep = *req.EndAtStep
	}
	cfg.VariationSeed = req.VariationSeed
	cfg.VariationStrength = req.VariationStrength
	if req.SigmaMin != nil {
		cfg.SigmaMin = *req.SigmaMin
	}
	if req.SigmaMax != nil {
		cfg.SigmaMax = *req.SigmaMax
	}
	if req.Rho != nil {
		cfg.Rho = *req.Rho
	}
	if req.AddNoise != nil {
		cfg.AddNoise = *req.AddNoise
	}
	cfg.ForceFullDenoise = !req.ReturnWithLeftoverNoise
	if req.Previews != "" {
		cfg.Previews = sampler.PreviewMode(req.Previews)
	}
	cfg.TileSample = req.TileSample
	if req.TileSize > 0 {
		cfg.TileSizePixels = req.TileSize
	}
	cfg.Unsample = req.Unsample
	if mdl.Family != "" {
		cfg.Family = schedule.Family(mdl.Family)
	}
	if err := cfg.Validate(); err != nil {
		return sampler.Config{}, err
	}
	return cfg, nil
}

// buildInput decodes the request tensors, or creates an offset-filled empty
// latent when none is given.
func buildInput(req types.SampleRequest, cfg sampler.Config) (sampler.Request, error) {
	var in sampler.Request
	if req.Latent != nil {
		t, err := DecodeLatent(*req.Latent)
		if err != nil {
			return in, invalidRequestError{fmt.Errorf("latent: %w", err)}
		}
		in.Latent = t
	} else {
		if req.Width <= 0 || req.Height <= 0 || req.Width > maxEmptyPixels || req.Height > maxEmptyPixels {
			return in, invalidRequestError{fmt.Errorf("empty latent needs width and height in (0,%d], got %dx%d", maxEmptyPixels, req.Width, req.Height)}
		}
		if len(req.Offsets) > cfg.LatentChannels {
			return in, invalidRequestError{fmt.Errorf("%d offsets for %d channels", len(req.Offsets), cfg.LatentChannels)}
		}
		batch := max(req.BatchSize, 1)
		h, w := req.Height/cfg.ScaleFactor, req.Width/cfg.ScaleFactor
		if h < 1 || w < 1 {
			return in, invalidRequestError{fmt.Errorf("%dx%d px is below one latent cell", req.Width, req.Height)}
		}
		in.Latent = latent.NewOffset(batch, cfg.LatentChannels, h, w, req.Offsets)
	}
	if req.NoiseMask != nil {
		t, err := DecodeLatent(*req.NoiseMask)
		if err != nil {
			return in, invalidRequestError{fmt.Errorf("noise_mask: %w", err)}
		}
		in.NoiseMask = t
	}
	if len(req.Positive) > 0 {
		in.Positive = req.Positive
	}
	if len(req.Negative) > 0 {
		in.Negative = req.Negative
	}
	return in, nil
}

// EncodeLatent converts a tensor to its wire form.
func EncodeLatent(t *latent.Tensor, dt latent.DType) (types.Latent, error) {
	e, err := latent.Encode(t, dt)
	if err != nil {
		return types.Latent{}, err
	}
	return types.Latent{Shape: e.Shape, DType: string(e.DType), Data: e.Data}, nil
}

// DecodeLatent converts a wire latent to a tensor.
func DecodeLatent(l types.Latent) (*latent.Tensor, error) {
	return latent.Decode(latent.Encoded{Shape: l.Shape, DType: latent.DType(l.DType), Data: l.Data})
}
