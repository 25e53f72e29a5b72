// Package sampler drives one sampling run: it validates the configuration,
// prepares noise and the sigma schedule, hands the latent (whole or tiled)
// to a Denoiser and stitches tiled results back together.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"diffusiond/internal/latent"
	"diffusiond/internal/noise"
	"diffusiond/internal/schedule"
	"diffusiond/internal/tiling"
)

// Phase is the lifecycle state of a run.
type Phase string

const (
	PhaseConfigured      Phase = "configured"
	PhaseConfigValidated Phase = "config_validated"
	PhaseNoiseReady      Phase = "noise_ready"
	PhaseScheduleReady   Phase = "schedule_ready"
	PhaseTilesPlanned    Phase = "tiles_planned"
	PhaseDenoising       Phase = "denoising"
	PhaseStitching       Phase = "stitching"
	PhaseDone            Phase = "done"
	PhaseFailed          Phase = "failed"
)

// Request is the tensor input of a run.
type Request struct {
	Latent    *latent.Tensor
	Positive  any
	Negative  any
	NoiseMask *latent.Tensor
}

// Orchestrator is stateless between runs and safe for concurrent use.
type Orchestrator struct {
	log zerolog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger used for run diagnostics.
func WithLogger(l zerolog.Logger) Option { return func(o *Orchestrator) { o.log = l } }

func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type run struct {
	cfg    Config
	req    Request
	d      Denoiser
	rep    Reporter
	phases PhaseReporter
	log    zerolog.Logger
	sigmas schedule.Sigmas
	rects  []tiling.Rect
	noise  *latent.Tensor
}

func (r *run) enter(p Phase) {
	if r.phases != nil {
		r.phases.Phase(p)
	}
	r.log.Trace().Str("phase", string(p)).Msg("sampling phase")
}

// Run samples req with d. Configuration problems are returned before any
// noise is drawn. A tiled run stops at the first failing tile and checks ctx
// before each tile; no partial result is returned.
func (o *Orchestrator) Run(ctx context.Context, cfg Config, req Request, d Denoiser, rep Reporter) (*latent.Tensor, error) {
	if rep == nil {
		rep = NopReporter{}
	}
	r := &run{cfg: cfg, req: req, d: d, rep: rep}
	r.phases, _ = rep.(PhaseReporter)
	r.log = o.log.With().Str("model", cfg.Model).Uint64("seed", cfg.Seed).Logger()
	start := time.Now()

	out, err := r.execute(ctx)
	if err != nil {
		r.enter(PhaseFailed)
		ev := r.log.Warn()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			ev = r.log.Info()
		}
		ev.Err(err).Dur("elapsed", time.Since(start)).Msg("sampling failed")
		return nil, err
	}
	r.enter(PhaseDone)
	r.log.Debug().Int("tiles", max(1, len(r.rects))).Dur("elapsed", time.Since(start)).Msg("sampling done")
	return out, nil
}

func (r *run) execute(ctx context.Context) (*latent.Tensor, error) {
	r.enter(PhaseConfigured)
	if err := r.validate(); err != nil {
		return nil, err
	}
	r.enter(PhaseConfigValidated)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.prepareNoise(); err != nil {
		return nil, stageErr(StageNoise, -1, err)
	}
	r.enter(PhaseNoiseReady)
	r.enter(PhaseScheduleReady)

	if !r.cfg.TileSample {
		r.enter(PhaseDenoising)
		return r.denoise(ctx, -1, r.req.Latent, r.req.NoiseMask)
	}
	r.enter(PhaseTilesPlanned)
	r.enter(PhaseDenoising)
	tiles := make([]tiling.Tile, 0, len(r.rects))
	for i, rect := range r.rects {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lat, err := r.req.Latent.Crop(rect.Left, rect.Top, rect.Right, rect.Bottom)
		if err != nil {
			return nil, stageErr(StagePlan, i, err)
		}
		var mask *latent.Tensor
		if r.req.NoiseMask != nil {
			if mask, err = r.req.NoiseMask.Crop(rect.Left, rect.Top, rect.Right, rect.Bottom); err != nil {
				return nil, stageErr(StagePlan, i, err)
			}
		}
		out, err := r.denoise(ctx, i, lat, mask)
		if err != nil {
			return nil, err
		}
		tiles = append(tiles, tiling.Tile{Rect: rect, Tensor: out})
	}
	r.enter(PhaseStitching)
	out, err := tiling.Stitch(r.req.Latent.Shape, tiles)
	if err != nil {
		return nil, stageErr(StageStitch, -1, err)
	}
	return out, nil
}

// validate covers everything that can be checked without tensor work:
// the config itself, the latent shape, the schedule and the tile grid.
func (r *run) validate() error {
	if err := r.cfg.Validate(); err != nil {
		return stageErr(StageValidate, -1, err)
	}
	if r.d == nil {
		return stageErr(StageValidate, -1, &ConfigError{Field: "model", Reason: "no denoiser"})
	}
	lat := r.req.Latent
	if lat == nil || !lat.Shape.Valid() {
		return stageErr(StageValidate, -1, &ConfigError{Field: "latent_image", Reason: "missing or empty latent"})
	}
	if got := lat.Shape[latent.AxisChannel]; got != r.cfg.LatentChannels {
		return stageErr(StageValidate, -1, &ConfigError{Field: "latent_image", Reason: fmt.Sprintf("%d channels, model expects %d", got, r.cfg.LatentChannels)})
	}
	if m := r.req.NoiseMask; m != nil {
		s := m.Shape
		if s[1] != 1 || s[2] != lat.Shape[2] || s[3] != lat.Shape[3] || (s[0] != 1 && s[0] != lat.Shape[0]) {
			return stageErr(StageValidate, -1, &ConfigError{Field: "noise_mask", Reason: fmt.Sprintf("shape %s does not match latent %s", s, lat.Shape)})
		}
	}

	ms := schedule.ForFamily(r.cfg.Family)
	if p, ok := r.d.(SamplingProvider); ok && p.ModelSampling() != nil {
		ms = p.ModelSampling()
	}
	sig, err := r.cfg.buildSigmas(ms)
	if err != nil {
		return stageErr(StageSchedule, -1, err)
	}
	r.sigmas = sig

	if r.cfg.TileSample {
		rects, err := tiling.Plan(lat.Shape[latent.AxisHeight], lat.Shape[latent.AxisWidth], r.cfg.TileSizePixels, r.cfg.ScaleFactor)
		if err != nil {
			return stageErr(StagePlan, -1, err)
		}
		r.rects = rects
		r.log.Debug().Int("tiles", len(rects)).Str("latent", lat.Shape.String()).Msg("tile plan")
	}
	return nil
}

// prepareNoise draws one field shared by every tile: all tiles of a plan
// have the same extent, so each sees exactly the noise an untiled run of
// that size would.
func (r *run) prepareNoise() error {
	shape := r.req.Latent.Shape
	if len(r.rects) > 0 {
		shape[latent.AxisHeight] = r.rects[0].Height()
		shape[latent.AxisWidth] = r.rects[0].Width()
	}
	if !r.cfg.AddNoise || r.cfg.Unsample {
		r.noise = noise.Zeros(shape)
		return nil
	}
	n, err := noise.Fixed(r.cfg.Seed, r.cfg.VariationSeed, r.cfg.VariationStrength, shape)
	if err != nil {
		return err
	}
	r.noise = n
	return nil
}

func (r *run) denoise(ctx context.Context, tile int, lat, mask *latent.Tensor) (*latent.Tensor, error) {
	dr := DenoiseRequest{
		Model:            r.cfg.Model,
		Sampler:          r.cfg.Sampler,
		Noise:            r.noise,
		Sigmas:           append(schedule.Sigmas(nil), r.sigmas...),
		Positive:         r.req.Positive,
		Negative:         r.req.Negative,
		Latent:           lat,
		CFGScale:         r.cfg.CFGScale,
		StartStep:        r.cfg.StartAtStep,
		EndStep:          r.cfg.EndAtStep,
		ForceFullDenoise: r.cfg.ForceFullDenoise,
		NoiseMask:        mask,
	}
	if r.cfg.Unsample {
		dr.CFGScale = 1
		dr.StartStep = 0
		dr.EndStep = max(0, r.cfg.Steps-r.cfg.StartAtStep)
		dr.ForceFullDenoise = false
	}
	tiles := len(r.rects)
	dr.Callback = func(step, total int, x0 *latent.Tensor) {
		r.rep.Step(Progress{Step: step, Total: total, Tile: tile, Tiles: tiles})
		for _, p := range previews(r.cfg.Previews, step, tile, x0) {
			r.rep.Preview(p)
		}
	}

	out, err := r.d.Denoise(ctx, dr)
	if err != nil {
		return nil, stageErr(StageDenoise, tile, err)
	}
	if out == nil || out.Shape != lat.Shape {
		got := "nil"
		if out != nil {
			got = out.Shape.String()
		}
		return nil, stageErr(StageDenoise, tile, fmt.Errorf("denoiser returned %s for input %s", got, lat.Shape))
	}
	return out, nil
}
