package manager

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/cyrup-ai/kodegen-claude-agent"
	"github.com/cyrup-ai/kodegen-claude-agent/control"
	"github.com/cyrup-ai/kodegen-claude-agent/session"
)

// SpawnRequest describes one session to start, grounded on the Rust
// original's tools/claude_agent.rs::handle_spawn input shape.
type SpawnRequest struct {
	// Label is a human-readable name for the session. When WorkerCount > 1,
	// each spawned session is labeled "<label>-1", "<label>-2", ...,
	// mirroring the original's labeling rule exactly.
	Label string

	// Prompt is the initial prompt sent once the session starts. Required.
	Prompt string

	// MaxTurns bounds how many turns the session runs before the supervisor
	// marks it complete. Defaults to DefaultMaxTurns.
	MaxTurns int

	// Model overrides the default model for this session.
	Model string

	// CWD is the subprocess working directory, forwarded to agentrun.Session.
	CWD string

	// Options carries backend-specific session.Options (e.g. permission
	// mode, system prompt) forwarded verbatim.
	Options map[string]string

	// Env carries per-session environment overrides, validated against the
	// denylist in agentrun.ValidateEnv before the subprocess is spawned.
	Env map[string]string

	// WorkerCount spawns this many sessions from one request, all sharing
	// the same configuration (Supplemental Feature, SPEC_FULL.md 4.C6/C8).
	// Defaults to 1.
	WorkerCount int

	// EngineKind selects a named backend registered via WithEngines instead
	// of the manager's default Engine. Empty uses the default.
	EngineKind string
}

// Spawn starts one session and returns its id. A MaxActiveSessions limit
// (if set) rejects the spawn with control.MaxSessionsReached before any
// subprocess is started.
func (m *AgentManager) Spawn(ctx context.Context, req SpawnRequest) (string, error) {
	if req.Prompt == "" {
		return "", fmt.Errorf("manager: spawn requires a non-empty prompt")
	}
	if req.MaxTurns <= 0 {
		req.MaxTurns = DefaultMaxTurns
	}

	return m.spawnOne(ctx, req, req.Label)
}

// SpawnMany spawns req.WorkerCount sessions (default 1) from one
// configuration, labeling them "<label>-1", "<label>-2", ... when more than
// one is requested. Returns the ids of every session that started
// successfully; if any worker fails to start, SpawnMany terminates the
// workers that did start and returns the first error.
func (m *AgentManager) SpawnMany(ctx context.Context, req SpawnRequest) ([]string, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("manager: spawn requires a non-empty prompt")
	}
	if req.MaxTurns <= 0 {
		req.MaxTurns = DefaultMaxTurns
	}
	n := req.WorkerCount
	if n <= 0 {
		n = 1
	}

	ids := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		label := req.Label
		if n > 1 {
			label = req.Label + "-" + strconv.Itoa(i)
		}
		id, err := m.spawnOne(ctx, req, label)
		if err != nil {
			m.terminateAll(ids)
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// terminateAll best-effort terminates every session id in ids, used to
// unwind a partially-succeeded SpawnMany.
func (m *AgentManager) terminateAll(ids []string) {
	for _, id := range ids {
		if _, err := m.Terminate(context.Background(), id); err != nil {
			m.log.Warn("manager: spawn rollback terminate failed", "session_id", id, "error", err)
		}
	}
}

// spawnOne builds the agentrun.Session, starts the subprocess via the
// configured Engine, wraps it in a session.Client and session.Supervisor,
// and inserts the new entry into the active pool.
func (m *AgentManager) spawnOne(ctx context.Context, req SpawnRequest, label string) (string, error) {
	id := uuid.NewString()

	m.mu.Lock()
	atLimit := m.opts.MaxActiveSessions > 0 && len(m.active) >= m.opts.MaxActiveSessions
	m.mu.Unlock()
	if atLimit {
		return "", control.MaxSessionsReached(m.opts.MaxActiveSessions)
	}

	if err := agentrun.ValidateEnv(req.Env); err != nil {
		return "", fmt.Errorf("manager: spawn %s: %w", id, err)
	}

	sess := agentrun.Session{
		ID:      id,
		CWD:     req.CWD,
		Model:   req.Model,
		Prompt:  req.Prompt,
		Options: mergeMaxTurns(req.Options, req.MaxTurns),
		Env:     req.Env,
	}

	eng, err := m.resolveEngine(req.EngineKind)
	if err != nil {
		return "", err
	}

	client := session.New()
	proc, err := eng.Start(ctx, sess, agentrun.WithControlRoute(client.ControlRoute()))
	if err != nil {
		return "", fmt.Errorf("manager: spawn %s: %w", id, err)
	}
	client.Attach(proc)

	sup := session.NewSupervisor(client, m.opts.RingCapacity, req.MaxTurns)

	sessCtx, cancel := context.WithCancel(context.Background())

	e := &entry{
		id:         id,
		label:      label,
		maxTurns:   req.MaxTurns,
		supervisor: sup,
		cancel:     cancel,
		startedAt:  time.Now(),
	}

	m.mu.Lock()
	if m.opts.MaxActiveSessions > 0 && len(m.active) >= m.opts.MaxActiveSessions {
		m.mu.Unlock()
		cancel()
		_ = proc.Stop(context.Background())
		return "", control.MaxSessionsReached(m.opts.MaxActiveSessions)
	}
	m.active[id] = e
	m.mu.Unlock()

	go sup.Run()

	if err := sup.SendMessage(sessCtx, req.Prompt); err != nil {
		m.log.Warn("manager: initial prompt failed", "session_id", id, "error", err)
	}

	m.log.Debug("manager: spawned session", "session_id", id, "label", label, "max_turns", req.MaxTurns)
	return id, nil
}

// resolveEngine returns the default Engine when kind is empty, or the named
// backend registered via WithEngines. Unknown kinds are a config error
// rather than a silent fallback, so a typo'd EngineKind fails the spawn
// instead of silently running the wrong backend.
func (m *AgentManager) resolveEngine(kind string) (agentrun.Engine, error) {
	if kind == "" {
		return m.opts.Engine, nil
	}
	e, ok := m.opts.Engines[kind]
	if !ok {
		return nil, control.InvalidConfig("manager: unknown engine kind %q", kind)
	}
	return e, nil
}

// mergeMaxTurns returns a copy of opts with agentrun.OptionMaxTurns set,
// leaving the caller's map untouched.
func mergeMaxTurns(opts map[string]string, maxTurns int) map[string]string {
	out := make(map[string]string, len(opts)+1)
	for k, v := range opts {
		out[k] = v
	}
	out[agentrun.OptionMaxTurns] = strconv.Itoa(maxTurns)
	return out
}
