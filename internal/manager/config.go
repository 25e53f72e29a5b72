package manager

import (
	"time"

	"github.com/rs/zerolog"

	"diffusiond/internal/sampler"
	"diffusiond/pkg/types"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultMaxQueueDepth = 32
	defaultMaxWait       = 30 * time.Second
	defaultDrainTimeout  = 30 * time.Second
	defaultAuxEntries    = 4
)

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Registry      []types.Model
	BudgetMB      int
	MarginMB      int
	DefaultModel  string
	MaxQueueDepth int
	MaxWait       time.Duration
	DrainTimeout  time.Duration
	// Backend loads denoisers; defaults to the reference Euler backend.
	Backend Backend
	// AuxEntries bounds the auxiliary model cache.
	AuxEntries int
	// Defaults is the sampler configuration requests are layered on.
	Defaults *sampler.Config
	Logger   *zerolog.Logger
	Metrics  *Metrics
}

// NewWithConfig constructs a Manager from ManagerConfig.
func NewWithConfig(cfg ManagerConfig) *Manager {
	m := &Manager{
		state:        StateLoading,
		registry:     cfg.Registry,
		budgetMB:     cfg.BudgetMB,
		marginMB:     cfg.MarginMB,
		defaultModel: cfg.DefaultModel,
		instances:    make(map[string]*Instance),
		publisher:    noopPublisher{},
		log:          zerolog.Nop(),
		backend:      cfg.Backend,
		metrics:      cfg.Metrics,
		startTime:    time.Now(),
	}
	// Apply defaults if unset
	if cfg.MaxQueueDepth <= 0 {
		m.maxQueueDepth = defaultMaxQueueDepth
	} else {
		m.maxQueueDepth = cfg.MaxQueueDepth
	}
	if cfg.MaxWait <= 0 {
		m.maxWait = defaultMaxWait
	} else {
		m.maxWait = cfg.MaxWait
	}
	if cfg.DrainTimeout <= 0 {
		m.drainTimeout = defaultDrainTimeout
	} else {
		m.drainTimeout = cfg.DrainTimeout
	}
	if cfg.Logger != nil {
		m.log = *cfg.Logger
	}
	if m.backend == nil {
		m.backend = ReferenceBackend{}
	}
	if m.metrics == nil {
		m.metrics = defaultMetrics
	}
	auxEntries := cfg.AuxEntries
	if auxEntries <= 0 {
		auxEntries = defaultAuxEntries
	}
	m.aux = NewAuxCache(auxEntries)
	if cfg.Defaults != nil {
		m.defaults = *cfg.Defaults
	} else {
		m.defaults = sampler.DefaultConfig()
	}
	m.orch = sampler.New(sampler.WithLogger(m.log.With().Str("component", "sampler").Logger()))
	return m
}
