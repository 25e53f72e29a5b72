package schedule

import (
	"math"
	"sort"
)

// ModelSampling is the model family's mapping between timesteps and sigmas.
// The schedule algorithms only see a model through this interface.
type ModelSampling interface {
	SigmaMin() float64
	SigmaMax() float64
	// Sigma maps a (possibly fractional) timestep to a noise level.
	Sigma(t float64) float64
	// Timestep is the inverse of Sigma.
	Timestep(sigma float64) float64
	// Table is the ascending per-timestep sigma table.
	Table() []float64
	// Discrete reports whether timesteps are integer training indices.
	Discrete() bool
}

// Scaled-linear beta schedule shared by the sd1 and sdxl families.
const (
	TrainTimesteps = 1000
	linearStart    = 0.00085
	linearEnd      = 0.012
)

// DiscreteSampling is a DDPM-style table of per-timestep sigmas.
type DiscreteSampling struct {
	sigmas    []float64
	logSigmas []float64
}

// NewDiscreteSampling builds the table for a scaled-linear beta schedule.
func NewDiscreteSampling(timesteps int, betaStart, betaEnd float64) *DiscreteSampling {
	ds := &DiscreteSampling{
		sigmas:    make([]float64, timesteps),
		logSigmas: make([]float64, timesteps),
	}
	lo, hi := math.Sqrt(betaStart), math.Sqrt(betaEnd)
	cum := 1.0
	for i := 0; i < timesteps; i++ {
		b := lo
		if timesteps > 1 {
			b = lo + (hi-lo)*float64(i)/float64(timesteps-1)
		}
		cum *= 1 - b*b
		ds.sigmas[i] = math.Sqrt((1 - cum) / cum)
		ds.logSigmas[i] = math.Log(ds.sigmas[i])
	}
	return ds
}

func (d *DiscreteSampling) SigmaMin() float64 { return d.sigmas[0] }
func (d *DiscreteSampling) SigmaMax() float64 { return d.sigmas[len(d.sigmas)-1] }
func (d *DiscreteSampling) Table() []float64  { return d.sigmas }
func (d *DiscreteSampling) Discrete() bool    { return true }

// Sigma interpolates linearly in log-sigma between neighbouring timesteps.
func (d *DiscreteSampling) Sigma(t float64) float64 {
	last := float64(len(d.logSigmas) - 1)
	t = math.Max(0, math.Min(last, t))
	lo := math.Floor(t)
	hi := math.Ceil(t)
	w := t - lo
	return math.Exp((1-w)*d.logSigmas[int(lo)] + w*d.logSigmas[int(hi)])
}

func (d *DiscreteSampling) Timestep(sigma float64) float64 {
	ls := math.Log(sigma)
	n := len(d.logSigmas)
	// last index whose log-sigma is <= ls
	low := sort.Search(n, func(i int) bool { return d.logSigmas[i] > ls }) - 1
	low = max(0, min(n-2, low))
	high := low + 1
	w := (d.logSigmas[low] - ls) / (d.logSigmas[low] - d.logSigmas[high])
	w = math.Max(0, math.Min(1, w))
	return (1-w)*float64(low) + w*float64(high)
}

// EDMSampling is the continuous parameterisation used by video diffusion
// models: t = ln(sigma)/4.
type EDMSampling struct {
	min, max float64
	table    []float64
}

// NewEDMSampling returns a continuous sampling between lo and hi.
func NewEDMSampling(lo, hi float64) *EDMSampling {
	e := &EDMSampling{min: lo, max: hi, table: make([]float64, TrainTimesteps)}
	a, b := math.Log(lo), math.Log(hi)
	for i := range e.table {
		e.table[i] = math.Exp(a + (b-a)*float64(i)/float64(TrainTimesteps-1))
	}
	return e
}

func (e *EDMSampling) SigmaMin() float64              { return e.min }
func (e *EDMSampling) SigmaMax() float64              { return e.max }
func (e *EDMSampling) Sigma(t float64) float64        { return math.Exp(t * 4) }
func (e *EDMSampling) Timestep(sigma float64) float64 { return 0.25 * math.Log(sigma) }
func (e *EDMSampling) Table() []float64               { return e.table }
func (e *EDMSampling) Discrete() bool                 { return false }

var (
	discreteSD = NewDiscreteSampling(TrainTimesteps, linearStart, linearEnd)
	edmVideo   = NewEDMSampling(0.002, 700)
)

// ForFamily returns the default sampling for a model family.
func ForFamily(f Family) ModelSampling {
	if f == FamilySVD {
		return edmVideo
	}
	return discreteSD
}
