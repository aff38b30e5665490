package manager

import (
	"context"
	"time"

	"github.com/cyrup-ai/kodegen-claude-agent/control"
)

// Send posts a follow-up message to an active session and waits for the
// supervisor to acknowledge it. Returns control.SessionNotFound if id isn't
// in the active pool, or control.SessionComplete if the session has already
// finished.
func (m *AgentManager) Send(ctx context.Context, id, content string) error {
	e, err := m.lookupActive(id)
	if err != nil {
		return err
	}
	if e.supervisor.Complete() {
		return control.SessionComplete(id)
	}
	return e.supervisor.SendMessage(ctx, content)
}

// TerminateResult is the outcome of Terminate, grounded on the Rust
// original's manager/agent_manager/interaction.rs::terminate_session
// TerminateResponse{session_id, success, final_turn_count, total_messages,
// runtime_ms}.
type TerminateResult struct {
	SessionID      string
	Success        bool
	FinalTurnCount int
	TotalMessages  int
	RuntimeMS      int64
}

// Terminate removes id from the active pool, shuts its supervisor down, and
// moves it into the completed pool stamped with its final snapshot.
// Terminate is not idempotent at this layer: a second call on the same id
// returns control.SessionNotFound (idempotence-in-effect is enforced one
// layer up, by the registry/facade, per SPEC_FULL.md section 7).
func (m *AgentManager) Terminate(ctx context.Context, id string) (TerminateResult, error) {
	m.mu.Lock()
	e, ok := m.active[id]
	if ok {
		delete(m.active, id)
	}
	m.mu.Unlock()
	if !ok {
		return TerminateResult{}, control.SessionNotFound(id)
	}

	err := e.supervisor.Shutdown(ctx)
	e.cancel()

	completedAt := time.Now()
	finalTurns := e.supervisor.TurnCount()
	ring := e.supervisor.Ring()
	snapshot := ring.Snapshot()

	ce := &completedEntry{
		entry:          *e,
		completedAt:    completedAt,
		finalTurnCount: finalTurns,
		totalMessages:  len(snapshot),
		runtimeMS:      completedAt.Sub(e.startedAt).Milliseconds(),
	}

	m.mu.Lock()
	m.completed[id] = ce
	m.mu.Unlock()

	m.log.Debug("manager: terminated session", "session_id", id, "final_turn_count", finalTurns, "total_messages", len(snapshot))

	return TerminateResult{
		SessionID:      id,
		Success:        err == nil,
		FinalTurnCount: finalTurns,
		TotalMessages:  len(snapshot),
		RuntimeMS:      ce.runtimeMS,
	}, nil
}

// TerminateSession is Terminate stripped to an error return, satisfying
// registry.Terminator so the connection registry can drive cleanup without
// importing manager's richer TerminateResult shape.
func (m *AgentManager) TerminateSession(ctx context.Context, id string) error {
	_, err := m.Terminate(ctx, id)
	return err
}

// lookupActive returns the active-pool entry for id, or
// control.SessionNotFound.
func (m *AgentManager) lookupActive(id string) (*entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.active[id]
	if !ok {
		return nil, control.SessionNotFound(id)
	}
	return e, nil
}
