// Package schedule builds the descending noise-level sequences ("sigmas") a
// denoising loop steps through.
//
// Every sequence returned by Build is non-increasing and ends in exactly 0.
// Callers resolve the -1 "unset" sigma bounds with ResolveBounds before
// building; the algorithms never see the sentinel.
package schedule

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Algorithm names a schedule.
type Algorithm string

const (
	Karras         Algorithm = "karras"
	Exponential    Algorithm = "exponential"
	Turbo          Algorithm = "turbo"
	AlignYourSteps Algorithm = "align_your_steps"
	Normal         Algorithm = "normal"
	Simple         Algorithm = "simple"
)

// Algorithms lists every supported schedule in display order.
var Algorithms = []Algorithm{Karras, Exponential, Turbo, AlignYourSteps, Normal, Simple}

// ParseAlgorithm resolves a schedule name. Unknown names are an error.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(strings.TrimSpace(s))); a {
	case Karras, Exponential, Turbo, AlignYourSteps, Normal, Simple:
		return a, nil
	case "ays":
		return AlignYourSteps, nil
	default:
		return "", &ConfigError{Field: "scheduler", Reason: fmt.Sprintf("unknown schedule %q", s)}
	}
}

// UsesBounds reports whether the algorithm is parameterised by sigma_min
// and sigma_max.
func (a Algorithm) UsesBounds() bool { return a == Karras || a == Exponential }

// Unset is the sentinel for "use the model's own sigma bound".
const Unset = -1.0

// TurboTimesteps is the number of discretised timesteps the turbo schedule
// draws from.
const TurboTimesteps = 10

// Sigmas is a descending noise-level sequence ending in 0.
type Sigmas []float64

// Params selects and parameterises a schedule.
type Params struct {
	Algorithm Algorithm
	Steps     int
	SigmaMin  float64
	SigmaMax  float64
	Rho       float64
	Family    Family
	// SecondOrder builds one extra step and folds it away, for samplers that
	// evaluate two sigmas per step.
	SecondOrder bool
	// Sampling overrides the family's default model sampling.
	Sampling ModelSampling
}

// ConfigError reports an invalid schedule configuration.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string { return "schedule: " + e.Field + ": " + e.Reason }

// ResolveBounds replaces Unset bounds with the model's own limits. Any other
// negative value, or min > max, is a configuration error.
func ResolveBounds(sigmaMin, sigmaMax float64, ms ModelSampling) (float64, float64, error) {
	if sigmaMin == Unset {
		sigmaMin = ms.SigmaMin()
	}
	if sigmaMax == Unset {
		sigmaMax = ms.SigmaMax()
	}
	if sigmaMin < 0 {
		return 0, 0, &ConfigError{Field: "sigma_min", Reason: fmt.Sprintf("%v is negative", sigmaMin)}
	}
	if sigmaMax < 0 {
		return 0, 0, &ConfigError{Field: "sigma_max", Reason: fmt.Sprintf("%v is negative", sigmaMax)}
	}
	if sigmaMin > sigmaMax {
		return 0, 0, &ConfigError{Field: "sigma_min", Reason: fmt.Sprintf("%v exceeds sigma_max %v", sigmaMin, sigmaMax)}
	}
	return sigmaMin, sigmaMax, nil
}

// Build computes the sigma sequence for p. The result has Steps+1 entries.
func Build(p Params) (Sigmas, error) {
	if p.Steps < 1 {
		return nil, &ConfigError{Field: "steps", Reason: fmt.Sprintf("%d must be at least 1", p.Steps)}
	}
	alg, err := ParseAlgorithm(string(p.Algorithm))
	if err != nil {
		return nil, err
	}
	fam, err := ParseFamily(string(p.Family))
	if err != nil {
		return nil, err
	}
	p.Algorithm, p.Family = alg, fam
	if p.Sampling == nil {
		p.Sampling = ForFamily(p.Family)
	}
	if p.Algorithm == Turbo {
		return turbo(p.Steps, p.Sampling)
	}
	n := p.Steps
	if p.SecondOrder {
		n++
	}
	var sig Sigmas
	switch p.Algorithm {
	case Karras:
		if err = checkBounds(p); err == nil {
			if p.Rho <= 0 {
				return nil, &ConfigError{Field: "rho", Reason: fmt.Sprintf("%v must be positive", p.Rho)}
			}
			sig = karras(n, p.SigmaMin, p.SigmaMax, p.Rho)
		}
	case Exponential:
		if err = checkBounds(p); err == nil {
			if p.SigmaMin <= 0 {
				return nil, &ConfigError{Field: "sigma_min", Reason: "exponential schedule needs a positive sigma_min"}
			}
			sig = exponential(n, p.SigmaMin, p.SigmaMax)
		}
	case AlignYourSteps:
		sig, err = alignYourSteps(n, p.Family)
	case Normal:
		sig = normal(n, p.Sampling)
	case Simple:
		sig = simple(n, p.Sampling)
	}
	if err != nil {
		return nil, err
	}
	if p.SecondOrder {
		sig = fold(sig)
	}
	return sig, nil
}

// checkBounds rejects bounds that were not resolved.
func checkBounds(p Params) error {
	if p.SigmaMin < 0 || p.SigmaMax < 0 {
		return &ConfigError{Field: "sigma_min/sigma_max", Reason: fmt.Sprintf("unresolved bounds (%v, %v)", p.SigmaMin, p.SigmaMax)}
	}
	if p.SigmaMin > p.SigmaMax {
		return &ConfigError{Field: "sigma_min", Reason: fmt.Sprintf("%v exceeds sigma_max %v", p.SigmaMin, p.SigmaMax)}
	}
	return nil
}

// fold drops the second-to-last entry, keeping the terminal zero.
func fold(s Sigmas) Sigmas {
	out := make(Sigmas, 0, len(s)-1)
	out = append(out, s[:len(s)-2]...)
	return append(out, s[len(s)-1])
}

// linspace returns n evenly spaced values from a to b inclusive.
func linspace(n int, a, b float64) []float64 {
	if n == 1 {
		return []float64{a}
	}
	return floats.Span(make([]float64, n), a, b)
}

func karras(n int, sigmaMin, sigmaMax, rho float64) Sigmas {
	minInv := math.Pow(sigmaMin, 1/rho)
	maxInv := math.Pow(sigmaMax, 1/rho)
	out := make(Sigmas, 0, n+1)
	for _, r := range linspace(n, 0, 1) {
		out = append(out, math.Pow(maxInv+r*(minInv-maxInv), rho))
	}
	return append(out, 0)
}

func exponential(n int, sigmaMin, sigmaMax float64) Sigmas {
	out := make(Sigmas, 0, n+1)
	for _, l := range linspace(n, math.Log(sigmaMax), math.Log(sigmaMin)) {
		out = append(out, math.Exp(l))
	}
	return append(out, 0)
}

// turbo maps the timesteps 999, 899, ..., 99 through the model.
func turbo(steps int, ms ModelSampling) (Sigmas, error) {
	if !ms.Discrete() {
		return nil, &ConfigError{Field: "scheduler", Reason: "turbo needs a discrete-timestep model"}
	}
	if steps > TurboTimesteps {
		return nil, &ConfigError{Field: "steps", Reason: fmt.Sprintf("turbo supports at most %d steps, got %d", TurboTimesteps, steps)}
	}
	out := make(Sigmas, 0, steps+1)
	for i := 0; i < steps; i++ {
		t := float64((TurboTimesteps-i)*100 - 1)
		out = append(out, ms.Sigma(t))
	}
	return append(out, 0), nil
}

func normal(n int, ms ModelSampling) Sigmas {
	start := ms.Timestep(ms.SigmaMax())
	end := ms.Timestep(ms.SigmaMin())
	out := make(Sigmas, 0, n+1)
	for _, t := range linspace(n, start, end) {
		out = append(out, ms.Sigma(t))
	}
	return append(out, 0)
}

func simple(n int, ms ModelSampling) Sigmas {
	table := ms.Table()
	stride := float64(len(table)) / float64(n)
	out := make(Sigmas, 0, n+1)
	for i := 0; i < n; i++ {
		out = append(out, table[len(table)-1-int(float64(i)*stride)])
	}
	return append(out, 0)
}

// Unsample turns a descending schedule into the ascending one used to walk
// a clean latent back towards noise. The offset keeps the first entry off 0.
func Unsample(s Sigmas) Sigmas {
	out := make(Sigmas, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v + 1e-4
	}
	return out
}

// Validate checks that s is non-increasing and ends in 0.
func (s Sigmas) Validate() error {
	if len(s) < 2 {
		return fmt.Errorf("sigma sequence has %d entries", len(s))
	}
	for i := 1; i < len(s); i++ {
		if s[i] > s[i-1] {
			return fmt.Errorf("sigma %d (%v) exceeds sigma %d (%v)", i, s[i], i-1, s[i-1])
		}
	}
	if s[len(s)-1] != 0 {
		return fmt.Errorf("sigma sequence ends at %v, not 0", s[len(s)-1])
	}
	return nil
}

// Steps returns the number of denoising steps s describes.
func (s Sigmas) Steps() int { return len(s) - 1 }
