package manager

import (
	"context"
	"io"
	"sync/atomic"
	"time"
)

// EnsureInstance loads modelID through the backend if it is not ready yet,
// evicting idle instances first when a VRAM budget is configured.
func (m *Manager) EnsureInstance(ctx context.Context, modelID string) error {
	startTs := time.Now()
	if modelID == "" {
		modelID = m.defaultModel
		if modelID == "" {
			return nil
		}
	}

	m.mu.Lock()
	if inst, ok := m.instances[modelID]; ok && inst.State == StateReady {
		inst.LastUsed = time.Now()
		m.mu.Unlock()
		return nil
	} else if ok && inst.loaded != nil {
		m.mu.Unlock()
		return m.awaitLoad(ctx, modelID, inst)
	}
	m.mu.Unlock()

	m.emit("ensure_start", modelID, nil)
	mdl, ok := m.getModelByID(modelID)
	if !ok {
		m.emit("ensure_model_not_found", modelID, nil)
		return ErrModelNotFound(modelID)
	}
	reqMB := m.estimateVRAMMB(mdl)

	if m.budgetMB > 0 {
		if err := m.evictUntilFits(reqMB); err != nil {
			m.emit("ensure_budget_fail", modelID, map[string]any{"error": err.Error()})
			return err
		}
	}

	m.mu.Lock()
	inst, existed := m.instances[modelID]
	if existed && inst.loaded != nil {
		// another caller claimed the load while we were evicting
		m.mu.Unlock()
		return m.awaitLoad(ctx, modelID, inst)
	}
	m.state = StateLoading
	m.err = ""
	if !existed {
		inst = &Instance{
			ID:        modelID,
			Family:    mdl.Family,
			State:     StateLoading,
			LastUsed:  time.Now(),
			EstVRAMMB: reqMB,
			genCh:     make(chan struct{}, 1),
			queueCh:   make(chan struct{}, m.maxQueueDepth),
		}
		m.instances[modelID] = inst
		m.usedEstMB += reqMB
	} else {
		inst.State = StateLoading
		inst.LastUsed = time.Now()
	}
	loaded := make(chan struct{})
	inst.loaded = loaded
	inst.loadErr = nil
	m.mu.Unlock()

	d, err := m.backend.Load(ctx, mdl, m.aux)
	if err != nil {
		m.mu.Lock()
		if m.instances[modelID] == inst {
			delete(m.instances, modelID)
			m.usedEstMB -= inst.EstVRAMMB
		}
		m.state = StateError
		m.err = err.Error()
		inst.loadErr = ErrDependencyUnavailable("load " + modelID + ": " + err.Error())
		inst.loaded = nil
		close(loaded)
		m.mu.Unlock()
		m.emit("ensure_load_error", modelID, map[string]any{"error": err.Error()})
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrDependencyUnavailable("load " + modelID + ": " + err.Error())
	}

	m.mu.Lock()
	if m.instances[modelID] != inst {
		// unloaded while loading
		inst.loadErr = ErrModelNotFound(modelID)
		inst.loaded = nil
		close(loaded)
		m.mu.Unlock()
		if c, ok := d.(io.Closer); ok {
			_ = c.Close()
		}
		return ErrModelNotFound(modelID)
	}
	inst.Denoiser = d
	inst.State = StateReady
	inst.LastUsed = time.Now()
	inst.loaded = nil
	close(loaded)
	m.cur = &ModelInfo{ID: modelID, Name: mdl.Name, Path: mdl.Path, Family: mdl.Family}
	m.state = StateReady
	m.err = ""
	m.mu.Unlock()
	atomic.AddUint64(&m.loadsTotal, 1)
	m.metrics.loads.Inc()
	m.emit("ensure_ready", modelID, map[string]any{"dur_ms": time.Since(startTs).Milliseconds(), "est_vram_mb": reqMB})
	return nil
}

// awaitLoad blocks until the load another caller started for inst settles,
// then reports its outcome. A successful load that was unloaded again in
// the meantime is retried from the start.
func (m *Manager) awaitLoad(ctx context.Context, modelID string, inst *Instance) error {
	m.mu.Lock()
	ch := inst.loaded
	m.mu.Unlock()
	if ch != nil {
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	err := inst.loadErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.EnsureInstance(ctx, modelID)
}
