package sampler

import (
	"fmt"
	"strings"

	"diffusiond/internal/latent"
	"diffusiond/internal/schedule"
)

// Name identifies a sampling algorithm run by the external denoiser.
type Name string

const (
	Euler            Name = "euler"
	EulerAncestral   Name = "euler_ancestral"
	Heun             Name = "heun"
	DPM2             Name = "dpm_2"
	DPM2Ancestral    Name = "dpm_2_ancestral"
	LMS              Name = "lms"
	DPMFast          Name = "dpm_fast"
	DPMAdaptive      Name = "dpm_adaptive"
	DPMPP2SAncestral Name = "dpmpp_2s_ancestral"
	DPMPPSDE         Name = "dpmpp_sde"
	DPMPP2M          Name = "dpmpp_2m"
	DPMPP2MSDE       Name = "dpmpp_2m_sde"
	DPMPP3MSDE       Name = "dpmpp_3m_sde"
	DDIM             Name = "ddim"
	UniPC            Name = "uni_pc"
)

// Names lists every accepted sampler.
var Names = []Name{
	Euler, EulerAncestral, Heun, DPM2, DPM2Ancestral, LMS, DPMFast, DPMAdaptive,
	DPMPP2SAncestral, DPMPPSDE, DPMPP2M, DPMPP2MSDE, DPMPP3MSDE, DDIM, UniPC,
}

// ParseName resolves a sampler name.
func ParseName(s string) (Name, error) {
	n := Name(strings.ToLower(strings.TrimSpace(s)))
	for _, k := range Names {
		if k == n {
			return n, nil
		}
	}
	return "", &ConfigError{Field: "sampler_name", Reason: fmt.Sprintf("unknown sampler %q", s)}
}

// SecondOrder reports whether the sampler evaluates two sigmas per step and
// so needs a folded schedule.
func (n Name) SecondOrder() bool { return n == DPM2 || n == DPM2Ancestral }

// PreviewMode selects which intermediate latents are forwarded as previews.
type PreviewMode string

const (
	PreviewDefault PreviewMode = "default"
	PreviewNone    PreviewMode = "none"
	PreviewOne     PreviewMode = "one"
	PreviewIterate PreviewMode = "iterate"
	PreviewAnimate PreviewMode = "animate"
)

// ParsePreviewMode resolves a preview mode; empty means default.
func ParsePreviewMode(s string) (PreviewMode, error) {
	switch m := PreviewMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return PreviewDefault, nil
	case PreviewDefault, PreviewNone, PreviewOne, PreviewIterate, PreviewAnimate:
		return m, nil
	default:
		return "", &ConfigError{Field: "previews", Reason: fmt.Sprintf("unknown preview mode %q", s)}
	}
}

// Limits on the configuration surface.
const (
	MaxSteps       = 10000
	DefaultSteps   = 20
	DefaultCFG     = 8.0
	DefaultRho     = 7.0
	DefaultEndStep = 10000
	DefaultTile    = 1024
)

// Config is the validated, strongly typed sampling configuration.
type Config struct {
	Model             string
	Seed              uint64
	Steps             int
	CFGScale          float64
	Sampler           Name
	Scheduler         schedule.Algorithm
	StartAtStep       int
	EndAtStep         int
	VariationSeed     uint64
	VariationStrength float64
	// SigmaMin and SigmaMax use schedule.Unset (-1) for the model default.
	SigmaMin         float64
	SigmaMax         float64
	Rho              float64
	AddNoise         bool
	ForceFullDenoise bool
	Previews         PreviewMode
	TileSample       bool
	TileSizePixels   int
	// Unsample walks a clean latent back towards noise with an ascending
	// schedule.
	Unsample bool

	Family         schedule.Family
	LatentChannels int
	ScaleFactor    int
}

// DefaultConfig mirrors the defaults of the sampler node.
func DefaultConfig() Config {
	return Config{
		Steps:            DefaultSteps,
		CFGScale:         DefaultCFG,
		Sampler:          Euler,
		Scheduler:        schedule.Karras,
		EndAtStep:        DefaultEndStep,
		SigmaMin:         schedule.Unset,
		SigmaMax:         schedule.Unset,
		Rho:              DefaultRho,
		AddNoise:         true,
		ForceFullDenoise: true,
		Previews:         PreviewDefault,
		TileSizePixels:   DefaultTile,
		Family:           schedule.FamilySD1,
		LatentChannels:   latent.DefaultChannels,
		ScaleFactor:      latent.DefaultScaleFactor,
	}
}

// Validate checks every field without touching tensors. Enumerated names
// are normalised in place.
func (c *Config) Validate() error {
	var err error
	if c.Sampler, err = ParseName(string(c.Sampler)); err != nil {
		return err
	}
	if c.Scheduler, err = schedule.ParseAlgorithm(string(c.Scheduler)); err != nil {
		return wrapConfig("scheduler_name", err)
	}
	if c.Previews, err = ParsePreviewMode(string(c.Previews)); err != nil {
		return err
	}
	if c.Family, err = schedule.ParseFamily(string(c.Family)); err != nil {
		return wrapConfig("family", err)
	}
	switch {
	case c.Steps < 1 || c.Steps > MaxSteps:
		return &ConfigError{Field: "steps", Reason: fmt.Sprintf("%d outside [1,%d]", c.Steps, MaxSteps)}
	case c.CFGScale < 0:
		return &ConfigError{Field: "cfg_scale", Reason: fmt.Sprintf("%v is negative", c.CFGScale)}
	case c.StartAtStep < 0:
		return &ConfigError{Field: "start_at_step", Reason: fmt.Sprintf("%d is negative", c.StartAtStep)}
	case c.EndAtStep < c.StartAtStep:
		return &ConfigError{Field: "end_at_step", Reason: fmt.Sprintf("%d is before start_at_step %d", c.EndAtStep, c.StartAtStep)}
	case c.VariationStrength < 0 || c.VariationStrength > 1:
		return &ConfigError{Field: "variation_strength", Reason: fmt.Sprintf("%v outside [0,1]", c.VariationStrength)}
	case c.SigmaMin < 0 && c.SigmaMin != schedule.Unset:
		return &ConfigError{Field: "sigma_min", Reason: fmt.Sprintf("%v is negative; use -1 for the model default", c.SigmaMin)}
	case c.SigmaMax < 0 && c.SigmaMax != schedule.Unset:
		return &ConfigError{Field: "sigma_max", Reason: fmt.Sprintf("%v is negative; use -1 for the model default", c.SigmaMax)}
	case c.SigmaMin >= 0 && c.SigmaMax >= 0 && c.SigmaMin > c.SigmaMax:
		return &ConfigError{Field: "sigma_min", Reason: fmt.Sprintf("%v exceeds sigma_max %v", c.SigmaMin, c.SigmaMax)}
	case c.Scheduler == schedule.Karras && c.Rho <= 0:
		return &ConfigError{Field: "rho", Reason: fmt.Sprintf("%v must be positive for karras", c.Rho)}
	case c.LatentChannels < 1:
		return &ConfigError{Field: "latent_channels", Reason: fmt.Sprintf("%d must be positive", c.LatentChannels)}
	case c.ScaleFactor < 1:
		return &ConfigError{Field: "scale_factor", Reason: fmt.Sprintf("%d must be positive", c.ScaleFactor)}
	case c.TileSample && c.TileSizePixels < 1:
		return &ConfigError{Field: "tile_size", Reason: fmt.Sprintf("%d must be positive", c.TileSizePixels)}
	}
	return nil
}

// buildSigmas builds the schedule against ms. Custom bounds apply only when
// both are set; otherwise the model's own range is used.
func (c *Config) buildSigmas(ms schedule.ModelSampling) (schedule.Sigmas, error) {
	smin, smax := schedule.Unset, schedule.Unset
	if c.SigmaMin >= 0 && c.SigmaMax >= 0 {
		smin, smax = c.SigmaMin, c.SigmaMax
	}
	lo, hi, err := schedule.ResolveBounds(smin, smax, ms)
	if err != nil {
		return nil, wrapConfig("sigma_min/sigma_max", err)
	}
	sig, err := schedule.Build(schedule.Params{
		Algorithm:   c.Scheduler,
		Steps:       c.Steps,
		SigmaMin:    lo,
		SigmaMax:    hi,
		Rho:         c.Rho,
		Family:      c.Family,
		SecondOrder: c.Sampler.SecondOrder(),
		Sampling:    ms,
	})
	if err != nil {
		return nil, wrapConfig("scheduler_name", err)
	}
	if err := sig.Validate(); err != nil {
		return nil, wrapConfig("scheduler_name", err)
	}
	if c.Unsample {
		sig = schedule.Unsample(sig)
	}
	return sig, nil
}
