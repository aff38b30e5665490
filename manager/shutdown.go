package manager

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Shutdown snapshots the active session id list and terminates each one
// concurrently (best-effort: failures are logged, never returned), then
// stops the GC task. Grounded on SPEC_FULL.md 4.C6's "fanned out via
// errgroup.Group", the same dependency rockstar-0000-aistore's
// dsort.go uses directly for bounded concurrent fan-out.
func (m *AgentManager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if _, err := m.Terminate(gctx, id); err != nil {
				m.log.Warn("manager: shutdown terminate failed", "session_id", id, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	close(m.gcStop)
	<-m.gcDone
}
