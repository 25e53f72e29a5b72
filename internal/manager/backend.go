package manager

import (
	"context"
	"fmt"

	"diffusiond/internal/sampler"
	"diffusiond/internal/schedule"
	"diffusiond/pkg/types"
)

// Backend loads the denoiser for a model. Denoisers that implement
// io.Closer are closed when their instance is unloaded or evicted.
type Backend interface {
	Load(ctx context.Context, mdl types.Model, aux *AuxCache) (sampler.Denoiser, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, mdl types.Model, aux *AuxCache) (sampler.Denoiser, error)

func (f BackendFunc) Load(ctx context.Context, mdl types.Model, aux *AuxCache) (sampler.Denoiser, error) {
	return f(ctx, mdl, aux)
}

// ReferenceBackend serves every model with the Euler reference denoiser and
// an identity predictor. The noise parameterisation of each family is shared
// through the auxiliary cache.
type ReferenceBackend struct {
	Predictor sampler.Predictor
}

func (b ReferenceBackend) Load(ctx context.Context, mdl types.Model, aux *AuxCache) (sampler.Denoiser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fam, err := schedule.ParseFamily(mdl.Family)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", mdl.ID, err)
	}
	v, err := aux.GetOrLoad("sampling/"+string(fam), func() (any, error) {
		return schedule.ForFamily(fam), nil
	})
	if err != nil {
		return nil, err
	}
	d := sampler.NewEuler(b.Predictor, fam)
	d.Sampling = v.(schedule.ModelSampling)
	return d, nil
}
