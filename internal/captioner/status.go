package captioner

import (
	"time"

	"captiond/pkg/types"
)

// Snapshot returns a read-only view of the cache state.
func (m *Cache) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{State: m.state, Model: m.ready.Load(), Loads: m.loads, LoadFailures: m.failures, Err: m.err}
}

// Status builds a detailed status response for /status.
func (m *Cache) Status() types.StatusResponse {
	s := m.Snapshot()
	resp := types.StatusResponse{
		State:         string(s.State),
		Loads:         s.Loads,
		LoadFailures:  s.LoadFailures,
		Error:         s.Err,
		UptimeSeconds: int64(time.Since(m.startTime).Seconds()),
		QueueLen:      len(m.queueCh),
		Inflight:      len(m.genCh),
		MaxQueueDepth: cap(m.queueCh),
		MaxInflight:   cap(m.genCh),
	}
	if c := s.Model; c != nil {
		resp.Model = &types.ModelInfo{
			Family:   c.Family,
			Path:     c.Source.Dir,
			Device:   string(c.Device),
			LoadedAt: c.LoadedAt.Unix(),
		}
	}
	return resp
}
