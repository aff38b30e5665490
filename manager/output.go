package manager

import (
	"github.com/cyrup-ai/kodegen-claude-agent/control"
	"github.com/cyrup-ai/kodegen-claude-agent/session"
)

// ReadResult is the paginated snapshot returned by Read.
type ReadResult struct {
	SessionID        string
	Messages         []session.MessageRecord
	TotalMessages    int
	MessagesReturned int
	HasMore          bool
	TurnCount        int
	Completed        bool
}

// Read locates id in the active pool first, then the completed pool, and
// returns a paginated snapshot of its message buffer.
//
// offset >= 0 returns length entries starting at offset in insertion order;
// offset < 0 is tail mode, returning the last |offset| entries regardless
// of length. Read never mutates the buffer.
func (m *AgentManager) Read(id string, offset, length int) (ReadResult, error) {
	m.mu.Lock()
	ae, activeOK := m.active[id]
	ce, completedOK := m.completed[id]
	m.mu.Unlock()

	var (
		all       []session.MessageRecord
		turnCount int
		completed bool
	)
	switch {
	case activeOK:
		all = ae.supervisor.Ring().Snapshot()
		turnCount = ae.supervisor.TurnCount()
		completed = ae.supervisor.Complete()
	case completedOK:
		all = ce.supervisor.Ring().Snapshot()
		turnCount = ce.finalTurnCount
		completed = true
	default:
		return ReadResult{}, control.SessionNotFound(id)
	}

	page, hasMore := paginateMessages(all, offset, length)
	return ReadResult{
		SessionID:        id,
		Messages:         page,
		TotalMessages:    len(all),
		MessagesReturned: len(page),
		HasMore:          hasMore,
		TurnCount:        turnCount,
		Completed:        completed,
	}, nil
}
