package manager

import (
	"sort"
	"time"
)

// SessionSummary is one row of a List result, grounded on the Rust
// original's manager/agent_manager/list.rs summary shape.
type SessionSummary struct {
	SessionID      string
	Label          string
	Working        bool
	Completed      bool
	TurnCount      int
	MaxTurns       int
	RuntimeMS      int64
	LastOutput     []string
	LastActivityAt time.Time
}

// ListOptions configures List.
type ListOptions struct {
	// IncludeCompleted also lists sessions in the completed pool.
	IncludeCompleted bool

	// LastOutputLines, if > 0, populates each summary's LastOutput with up
	// to this many lines of the most recent assistant-authored text,
	// scanning the ring buffer in reverse (Supplemental Feature).
	LastOutputLines int
}

// List returns a summary of every session, working sessions first, then
// sorted by descending runtime.
func (m *AgentManager) List(opts ListOptions) []SessionSummary {
	m.mu.Lock()
	active := make([]*entry, 0, len(m.active))
	for _, e := range m.active {
		active = append(active, e)
	}
	var completed []*completedEntry
	if opts.IncludeCompleted {
		completed = make([]*completedEntry, 0, len(m.completed))
		for _, ce := range m.completed {
			completed = append(completed, ce)
		}
	}
	m.mu.Unlock()

	now := time.Now()
	out := make([]SessionSummary, 0, len(active)+len(completed))

	for _, e := range active {
		s := SessionSummary{
			SessionID:      e.id,
			Label:          e.label,
			Working:        e.supervisor.Working(),
			Completed:      e.supervisor.Complete(),
			TurnCount:      e.supervisor.TurnCount(),
			MaxTurns:       e.maxTurns,
			RuntimeMS:      now.Sub(e.startedAt).Milliseconds(),
			LastActivityAt: e.supervisor.LastActivity(),
		}
		if opts.LastOutputLines > 0 {
			s.LastOutput = lastOutputLines(e.supervisor.Ring().Snapshot(), opts.LastOutputLines)
		}
		out = append(out, s)
	}

	for _, ce := range completed {
		s := SessionSummary{
			SessionID: ce.id,
			Label:     ce.label,
			Working:   false,
			Completed: true,
			TurnCount: ce.finalTurnCount,
			MaxTurns:  ce.maxTurns,
			RuntimeMS: ce.runtimeMS,
		}
		if opts.LastOutputLines > 0 {
			s.LastOutput = lastOutputLines(ce.supervisor.Ring().Snapshot(), opts.LastOutputLines)
		}
		out = append(out, s)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Working != out[j].Working {
			return out[i].Working
		}
		return out[i].RuntimeMS > out[j].RuntimeMS
	})
	return out
}
