package manager

import (
	"io"
	"sync/atomic"
)

// evictUntilFits drops LRU idle instances until requiredMB fits budget +
// margin. It gives up quietly when nothing idle is left; the load then runs
// over budget rather than failing.
func (m *Manager) evictUntilFits(requiredMB int) error {
	for {
		m.mu.Lock()
		if m.usedEstMB+requiredMB+m.marginMB <= m.budgetMB {
			m.mu.Unlock()
			return nil
		}
		// Pick LRU idle instance (no in-flight and no queued requests)
		var lru *Instance
		for _, inst := range m.instances {
			if inst.State != StateReady || len(inst.genCh) > 0 || len(inst.queueCh) > 0 {
				continue
			}
			if lru == nil || inst.LastUsed.Before(lru.LastUsed) {
				lru = inst
			}
		}
		if lru == nil {
			m.mu.Unlock()
			return nil
		}
		delete(m.instances, lru.ID)
		m.usedEstMB -= lru.EstVRAMMB
		if m.cur != nil && m.cur.ID == lru.ID {
			m.cur = nil
		}
		m.mu.Unlock()

		if c, ok := lru.Denoiser.(io.Closer); ok {
			_ = c.Close()
		}
		atomic.AddUint64(&m.evictionsTotal, 1)
		m.metrics.evictions.Inc()
		m.emit("evict", lru.ID, map[string]any{"freed_mb": lru.EstVRAMMB})
	}
}
