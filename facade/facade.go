// Package facade implements C8: the single action-dispatched tool-facade
// operation that an outer RPC/tool-dispatch layer calls into (out of scope
// per SPEC_FULL.md section 1). Dispatch validates one of
// SPAWN/SEND/READ/LIST/KILL, calls through the connection registry (C7)
// and the agent manager (C6), and shapes a uniform response envelope.
//
// Grounded in the Rust original's tools/claude_agent.rs
// (handle_spawn/handle_send/handle_terminate/wait_for_completion and the
// Tool::execute dispatch), stripped of its MCP-specific (rmcp,
// kodegen_mcp_schema) types per the Non-goals — Facade exposes a plain Go
// API an external MCP/RPC layer can wrap, not an MCP server of its own.
package facade

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/cyrup-ai/kodegen-claude-agent/control"
	"github.com/cyrup-ai/kodegen-claude-agent/manager"
	"github.com/cyrup-ai/kodegen-claude-agent/registry"
	"github.com/cyrup-ai/kodegen-claude-agent/session"
)

// Action selects which of the five operations Dispatch performs.
type Action string

const (
	ActionSpawn Action = "SPAWN"
	ActionSend  Action = "SEND"
	ActionRead  Action = "READ"
	ActionList  Action = "LIST"
	ActionKill  Action = "KILL"
)

// ReadWindow is the fixed pagination window READ uses through this surface
// (SPEC_FULL.md 4.C8: "paginated read with fixed window (50 in this
// surface)").
const ReadWindow = 50

// Request is one tool-facade call. ConnectionID is supplied by the
// transport layer, not the caller. Agent is the per-connection numeric
// handle; required for SEND/READ/KILL, ignored for LIST, absent for SPAWN
// (Dispatch allocates and returns a fresh one).
type Request struct {
	Action       Action
	ConnectionID string
	Agent        *int

	// SPAWN/SEND fields.
	Prompt      string
	MaxTurns    int
	WorkerCount int
	Label       string
	Model       string
	CWD         string
	Options     map[string]string
	Env         map[string]string

	// READ fields.
	Offset int

	// LIST fields.
	IncludeCompleted bool
	LastOutputLines  int

	// Wait, if true, blocks READ/SEND's response until the session stops
	// working or ctx is done, event-driven per SPEC_FULL.md section 9
	// ("Event-driven streaming instead of polling").
	Wait bool
}

// AgentSummary is one row of a LIST response.
type AgentSummary struct {
	Agent     int
	SessionID string
	Label     string
	Working   bool
	Completed bool
	TurnCount int
	MaxTurns  int
	RuntimeMS int64
}

// Response is the uniform envelope every action returns, per SPEC_FULL.md
// 4.C8: "{agent, action, session_id?, output(string), message_count?,
// working?, completed, exit_code?, agents?[]} with a short human summary
// line."
type Response struct {
	Agent        int
	Action       Action
	SessionID    string
	Output       string
	MessageCount int
	Working      bool
	Completed    bool
	ExitCode     *int
	Agents       []AgentSummary
	Summary      string
}

// Facade dispatches the five tool-facade actions against a Registry and an
// AgentManager.
type Facade struct {
	mgr *manager.AgentManager
	reg *registry.Registry
	log *slog.Logger

	mu      sync.Mutex
	nextHdl map[string]int
}

// New constructs a Facade over mgr and reg. A nil logger defaults to a
// text logger on stderr scoped with a "component=facade" attr.
func New(mgr *manager.AgentManager, reg *registry.Registry, logger *slog.Logger) *Facade {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil)).With("component", "facade")
	}
	return &Facade{
		mgr:     mgr,
		reg:     reg,
		log:     logger,
		nextHdl: make(map[string]int),
	}
}

// Dispatch executes req and returns its response envelope, or an error from
// control.ErrorKind's taxonomy wrapped in a *control.KindError.
func (f *Facade) Dispatch(ctx context.Context, req Request) (Response, error) {
	switch req.Action {
	case ActionSpawn:
		return f.dispatchSpawn(ctx, req)
	case ActionSend:
		return f.dispatchSend(ctx, req)
	case ActionRead:
		return f.dispatchRead(ctx, req)
	case ActionList:
		return f.dispatchList(req)
	case ActionKill:
		return f.dispatchKill(ctx, req)
	default:
		return Response{}, control.InvalidConfig("facade: unknown action %q", req.Action)
	}
}

// resolveAgent looks up req.Agent's session id in the registry, or returns
// control.SessionNotFound if the handle is unset or unregistered for this
// connection.
func (f *Facade) resolveAgent(req Request) (handle int, sessionID string, err error) {
	if req.Agent == nil {
		return 0, "", control.InvalidConfig("facade: %s requires an agent handle", req.Action)
	}
	id, ok := f.reg.Get(req.ConnectionID, *req.Agent)
	if !ok {
		return *req.Agent, "", control.SessionNotFound(fmt.Sprintf("handle %d on connection %s", *req.Agent, req.ConnectionID))
	}
	return *req.Agent, id, nil
}

// allocateHandle returns the next unused numeric handle for connID,
// starting at 0 and incrementing monotonically — handles are never reused
// within one Facade's lifetime even after KILL, so a stale handle from a
// killed agent reliably surfaces as SessionNotFound rather than silently
// addressing whatever session a reused number lands on next.
func (f *Facade) allocateHandle(connID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.nextHdl[connID]
	f.nextHdl[connID] = h + 1
	return h
}

func (f *Facade) dispatchSpawn(ctx context.Context, req Request) (Response, error) {
	if req.Prompt == "" {
		return Response{}, control.InvalidConfig("facade: SPAWN requires a non-empty prompt")
	}
	maxTurns := req.MaxTurns
	if maxTurns <= 0 {
		maxTurns = manager.DefaultMaxTurns
	}

	spawnReq := manager.SpawnRequest{
		Label:       req.Label,
		Prompt:      req.Prompt,
		MaxTurns:    maxTurns,
		Model:       req.Model,
		CWD:         req.CWD,
		Options:     req.Options,
		Env:         req.Env,
		WorkerCount: req.WorkerCount,
	}

	ids, err := f.mgr.SpawnMany(ctx, spawnReq)
	if err != nil {
		return Response{}, err
	}

	agents := make([]AgentSummary, 0, len(ids))
	for _, id := range ids {
		h := f.allocateHandle(req.ConnectionID)
		f.reg.Register(req.ConnectionID, h, id)
		agents = append(agents, AgentSummary{Agent: h, SessionID: id})
	}

	resp := Response{
		Action:    ActionSpawn,
		Completed: false,
	}
	if len(agents) == 1 {
		resp.Agent = agents[0].Agent
		resp.SessionID = agents[0].SessionID
		resp.Summary = fmt.Sprintf("spawned agent %d (session %s)", resp.Agent, resp.SessionID)
	} else {
		resp.Agents = agents
		resp.Summary = fmt.Sprintf("spawned %d agents", len(agents))
	}
	return resp, nil
}

func (f *Facade) dispatchSend(ctx context.Context, req Request) (Response, error) {
	if req.Prompt == "" {
		return Response{}, control.InvalidConfig("facade: SEND requires a non-empty prompt")
	}
	handle, sessionID, err := f.resolveAgent(req)
	if err != nil {
		return Response{}, err
	}
	if err := f.mgr.Send(ctx, sessionID, req.Prompt); err != nil {
		return Response{}, err
	}

	if req.Wait {
		waitForCompletion(ctx, f.mgr, sessionID)
	}

	info, err := f.mgr.Info(sessionID, 0)
	if err != nil {
		return Response{}, err
	}
	return Response{
		Agent:     handle,
		Action:    ActionSend,
		SessionID: sessionID,
		Working:   info.Working,
		Completed: info.Completed,
		Summary:   fmt.Sprintf("sent message to agent %d", handle),
	}, nil
}

func (f *Facade) dispatchRead(ctx context.Context, req Request) (Response, error) {
	handle, sessionID, err := f.resolveAgent(req)
	if err != nil {
		return Response{}, err
	}

	if req.Wait {
		waitForCompletion(ctx, f.mgr, sessionID)
	}

	result, err := f.mgr.Read(sessionID, req.Offset, ReadWindow)
	if err != nil {
		return Response{}, err
	}

	return Response{
		Agent:        handle,
		Action:       ActionRead,
		SessionID:    sessionID,
		Output:       renderOutput(result.Messages),
		MessageCount: result.MessagesReturned,
		Working:      !result.Completed,
		Completed:    result.Completed,
		Summary:      fmt.Sprintf("read %d/%d messages from agent %d", result.MessagesReturned, result.TotalMessages, handle),
	}, nil
}

func (f *Facade) dispatchList(req Request) (Response, error) {
	entries := f.reg.ListForConnection(req.ConnectionID)
	byID := make(map[string]int, len(entries))
	for _, e := range entries {
		byID[e.SessionID] = e.Handle
	}

	summaries := f.mgr.List(manager.ListOptions{
		IncludeCompleted: req.IncludeCompleted,
		LastOutputLines:  req.LastOutputLines,
	})

	agents := make([]AgentSummary, 0, len(entries))
	for _, s := range summaries {
		handle, ok := byID[s.SessionID]
		if !ok {
			continue // not this connection's session
		}
		agents = append(agents, AgentSummary{
			Agent:     handle,
			SessionID: s.SessionID,
			Label:     s.Label,
			Working:   s.Working,
			Completed: s.Completed,
			TurnCount: s.TurnCount,
			MaxTurns:  s.MaxTurns,
			RuntimeMS: s.RuntimeMS,
		})
	}

	return Response{
		Action:  ActionList,
		Agents:  agents,
		Summary: fmt.Sprintf("%d agent(s) on this connection", len(agents)),
	}, nil
}

func (f *Facade) dispatchKill(ctx context.Context, req Request) (Response, error) {
	handle, sessionID, err := f.resolveAgent(req)
	if err != nil {
		return Response{}, err
	}

	result, err := f.mgr.Terminate(ctx, sessionID)
	if err != nil {
		return Response{}, err
	}
	f.reg.Remove(req.ConnectionID, handle)

	code := 0
	if !result.Success {
		code = 1
	}
	return Response{
		Agent:        handle,
		Action:       ActionKill,
		SessionID:    sessionID,
		MessageCount: result.TotalMessages,
		Completed:    true,
		ExitCode:     &code,
		Summary:      fmt.Sprintf("killed agent %d (turns=%d, runtime=%dms)", handle, result.FinalTurnCount, result.RuntimeMS),
	}, nil
}

// renderOutput joins a page of message records into a single human-
// readable string, the "output(string)" field of the uniform envelope.
func renderOutput(records []session.MessageRecord) string {
	var b strings.Builder
	for i, r := range records {
		if i > 0 {
			b.WriteByte('\n')
		}
		if text := r.Text(); text != "" {
			b.WriteString(text)
		}
	}
	return b.String()
}
