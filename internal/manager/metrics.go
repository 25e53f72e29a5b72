package manager

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the sampling collectors. The package default is registered
// with the global Prometheus registry; tests can build their own with
// NewMetrics and a private registry.
type Metrics struct {
	runs      *prometheus.CounterVec
	tiles     prometheus.Counter
	steps     prometheus.Counter
	failures  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	loads     prometheus.Counter
	evictions prometheus.Counter
}

// NewMetrics creates the sampling collectors and registers them with reg
// when it is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	mt := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "diffusiond",
			Subsystem: "sampler",
			Name:      "runs_total",
			Help:      "Sampling runs by outcome",
		}, []string{"model", "result"}),
		tiles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "diffusiond",
			Subsystem: "sampler",
			Name:      "tiles_total",
			Help:      "Tiles denoised",
		}),
		steps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "diffusiond",
			Subsystem: "sampler",
			Name:      "steps_total",
			Help:      "Denoising steps reported by backends",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "diffusiond",
			Subsystem: "sampler",
			Name:      "failures_total",
			Help:      "Failed sampling runs by stage",
		}, []string{"stage"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "diffusiond",
			Subsystem: "sampler",
			Name:      "run_duration_seconds",
			Help:      "Wall time of sampling runs",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		}, []string{"model", "tiled"}),
		loads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "diffusiond",
			Subsystem: "manager",
			Name:      "loads_total",
			Help:      "Model instance loads",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "diffusiond",
			Subsystem: "manager",
			Name:      "evictions_total",
			Help:      "Model instances evicted to fit the VRAM budget",
		}),
	}
	if reg != nil {
		reg.MustRegister(mt.runs, mt.tiles, mt.steps, mt.failures, mt.duration, mt.loads, mt.evictions)
	}
	return mt
}

var defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
