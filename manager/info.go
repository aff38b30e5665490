package manager

import (
	"github.com/cyrup-ai/kodegen-claude-agent/control"
	"github.com/cyrup-ai/kodegen-claude-agent/session"
)

// Info returns a single session's summary, looking in the active pool
// first and then the completed pool, with last-output-line extraction
// applied when n > 0.
//
// Grounded on the Rust original's manager/agent_manager/info.rs single-
// session lookup, factored out of List so a caller that only needs one
// session's status doesn't pay for a full pool scan and sort.
func (m *AgentManager) Info(id string, n int) (SessionSummary, error) {
	m.mu.Lock()
	e, activeOK := m.active[id]
	ce, completedOK := m.completed[id]
	m.mu.Unlock()

	switch {
	case activeOK:
		s := SessionSummary{
			SessionID:      e.id,
			Label:          e.label,
			Working:        e.supervisor.Working(),
			Completed:      e.supervisor.Complete(),
			TurnCount:      e.supervisor.TurnCount(),
			MaxTurns:       e.maxTurns,
			LastActivityAt: e.supervisor.LastActivity(),
		}
		if n > 0 {
			s.LastOutput = lastOutputLines(e.supervisor.Ring().Snapshot(), n)
		}
		return s, nil
	case completedOK:
		s := SessionSummary{
			SessionID: ce.id,
			Label:     ce.label,
			Completed: true,
			TurnCount: ce.finalTurnCount,
			MaxTurns:  ce.maxTurns,
			RuntimeMS: ce.runtimeMS,
		}
		if n > 0 {
			s.LastOutput = lastOutputLines(ce.supervisor.Ring().Snapshot(), n)
		}
		return s, nil
	default:
		return SessionSummary{}, control.SessionNotFound(id)
	}
}

// LastOutputLines scans records in reverse, keeping only assistant-authored
// text, and returns up to n lines in chronological order (oldest first).
// Exported standalone per SPEC_FULL.md 4.C6 ("also exposed standalone as
// LastOutputLines"), grounded on the Rust original's
// manager/helpers.rs::extract_last_output_lines.
func LastOutputLines(records []session.MessageRecord, n int) []string {
	return lastOutputLines(records, n)
}

// lastOutputLines is the shared implementation behind LastOutputLines,
// List's ListOptions.LastOutputLines, and Info's n parameter.
func lastOutputLines(records []session.MessageRecord, n int) []string {
	if n <= 0 {
		return nil
	}
	var lines []string
	for i := len(records) - 1; i >= 0 && len(lines) < n; i-- {
		r := records[i]
		if !r.IsAssistant() {
			continue
		}
		text := r.Text()
		if text == "" {
			continue
		}
		lines = append(lines, text)
	}
	// Reverse into chronological order.
	for l, r := 0, len(lines)-1; l < r; l, r = l+1, r-1 {
		lines[l], lines[r] = lines[r], lines[l]
	}
	return lines
}
