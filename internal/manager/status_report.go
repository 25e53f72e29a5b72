package manager

import (
	"sort"
	"sync/atomic"
	"time"

	"diffusiond/pkg/types"
)

// Snapshot returns a read-only view of the manager state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{State: m.state, CurrentModel: m.cur, Err: m.err}
}

// Status builds a detailed status response for /status.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()
	resp := types.StatusResponse{
		BudgetMB:        m.budgetMB,
		UsedMB:          m.usedEstMB,
		MarginMB:        m.marginMB,
		Error:           m.err,
		State:           string(m.state),
		UptimeSeconds:   int64(time.Since(m.startTime).Seconds()),
		ServerTimeUnix:  time.Now().Unix(),
		EvictionsTotal:  atomic.LoadUint64(&m.evictionsTotal),
		LoadsTotal:      atomic.LoadUint64(&m.loadsTotal),
		SamplesTotal:    atomic.LoadUint64(&m.samplesTotal),
		AuxCacheEntries: m.aux.Len(),
	}
	resp.Instances = make([]types.InstanceStatus, 0, len(m.instances))
	for _, inst := range m.instances {
		switch inst.State {
		case StateLoading:
			resp.WarmupsInProgress++
		case StateDraining:
			resp.DrainingCount++
		}
		resp.Instances = append(resp.Instances, types.InstanceStatus{
			ModelID:       inst.ID,
			State:         string(inst.State),
			LastUsed:      inst.LastUsed.Unix(),
			EstVRAMMB:     inst.EstVRAMMB,
			QueueLen:      len(inst.queueCh),
			Inflight:      len(inst.genCh),
			MaxQueueDepth: cap(inst.queueCh),
			Family:        inst.Family,
		})
	}
	sort.Slice(resp.Instances, func(i, j int) bool { return resp.Instances[i].ModelID < resp.Instances[j].ModelID })
	return resp
}
