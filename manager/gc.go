package manager

import "time"

// runGC wakes every m.opts.GCInterval and evicts completed sessions whose
// completedAt is older than m.opts.Retention. Started as a goroutine from
// New; stopped by closing gcStop (see Shutdown).
func (m *AgentManager) runGC() {
	defer close(m.gcDone)

	ticker := time.NewTicker(m.opts.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.gcStop:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep removes every completed session whose retention window has elapsed.
func (m *AgentManager) sweep() {
	cutoff := time.Now().Add(-m.opts.Retention)

	m.mu.Lock()
	var evicted []string
	for id, ce := range m.completed {
		if ce.completedAt.Before(cutoff) {
			delete(m.completed, id)
			evicted = append(evicted, id)
		}
	}
	m.mu.Unlock()

	if len(evicted) > 0 {
		m.log.Debug("manager: gc evicted completed sessions", "count", len(evicted), "session_ids", evicted)
	}
}
