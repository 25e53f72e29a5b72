package manager

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"diffusiond/internal/sampler"
	"diffusiond/pkg/types"
)

type Manager struct {
	mu           sync.RWMutex
	state        State
	cur          *ModelInfo
	err          string
	registry     []types.Model
	budgetMB     int
	marginMB     int
	defaultModel string
	instances    map[string]*Instance
	usedEstMB    int

	// Queue config
	maxQueueDepth int
	maxWait       time.Duration
	drainTimeout  time.Duration

	backend   Backend
	aux       *AuxCache
	orch      *sampler.Orchestrator
	defaults  sampler.Config
	publisher EventPublisher
	log       zerolog.Logger
	metrics   *Metrics

	startTime      time.Time
	loadsTotal     uint64
	evictionsTotal uint64
	samplesTotal   uint64
}

func New(reg []types.Model, budgetMB, marginMB int, defaultModel string) *Manager {
	return NewWithConfig(ManagerConfig{
		Registry:     reg,
		BudgetMB:     budgetMB,
		MarginMB:     marginMB,
		DefaultModel: defaultModel,
	})
}

// SetEventPublisher replaces the event sink; nil restores the no-op sink.
func (m *Manager) SetEventPublisher(p EventPublisher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p == nil {
		p = noopPublisher{}
	}
	m.publisher = p
}

func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == StateError {
		return false
	}
	for _, inst := range m.instances {
		if inst.State == StateReady {
			return true
		}
	}
	return false
}

func (m *Manager) ListModels() []types.Model {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// return a shallow copy to avoid external mutation
	out := make([]types.Model, len(m.registry))
	copy(out, m.registry)
	return out
}

// Aux exposes the auxiliary model cache shared by backends.
func (m *Manager) Aux() *AuxCache { return m.aux }

// Close unloads every instance and empties the auxiliary cache.
func (m *Manager) Close() error {
	m.mu.RLock()
	ids := make([]string, 0, len(m.instances))
	for id := range m.instances {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	var first error
	for _, id := range ids {
		if err := m.Unload(id); err != nil && first == nil {
			first = err
		}
	}
	m.aux.Purge()
	return first
}
