package manager

import (
	"io"
	"time"
)

// Unload initiates a graceful drain of a model instance and removes it.
//   - Sets instance state to draining to reject new enqueues.
//   - Waits up to drainTimeout for in-flight and queued runs to finish.
//   - Closes the denoiser and removes the instance entry.
func (m *Manager) Unload(modelID string) error {
	if modelID == "" {
		return ErrModelNotFound("(unspecified)")
	}
	m.mu.Lock()
	inst := m.instances[modelID]
	if inst == nil {
		m.mu.Unlock()
		return ErrModelNotFound(modelID)
	}
	inst.State = StateDraining
	m.mu.Unlock()
	m.emit("unload_start", modelID, nil)

	deadline := time.Now().Add(m.drainTimeout)
	for {
		qlen, inflight := len(inst.queueCh), len(inst.genCh)
		if inflight == 0 && qlen == 0 {
			break
		}
		if time.Now().After(deadline) {
			m.emit("unload_timeout", modelID, map[string]any{"inflight": inflight, "queue": qlen})
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	m.mu.Lock()
	if m.instances[modelID] == inst {
		m.usedEstMB -= inst.EstVRAMMB
		if m.usedEstMB < 0 {
			m.usedEstMB = 0
		}
		delete(m.instances, modelID)
	}
	if m.cur != nil && m.cur.ID == modelID {
		m.cur = nil
	}
	m.mu.Unlock()
	if c, ok := inst.Denoiser.(io.Closer); ok {
		_ = c.Close()
	}

	m.emit("unload_done", modelID, nil)
	return nil
}
