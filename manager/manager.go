// Package manager implements C6: the agent manager that owns the set of
// live and recently-completed sessions — spawn, send, read, terminate,
// list, background GC, and global shutdown.
package manager

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cyrup-ai/kodegen-claude-agent"
	"github.com/cyrup-ai/kodegen-claude-agent/session"
)

// GCInterval is how often the garbage collector sweeps the completed pool.
const GCInterval = 60 * time.Second

// Retention is how long a completed session is kept before eviction.
const Retention = 60 * time.Second

// DefaultMaxTurns is applied to a spawn when the caller doesn't specify one.
const DefaultMaxTurns = 10

// entry is one active session's bookkeeping: the supervisor driving it plus
// the fields needed to compute TerminateResult/list summaries without
// re-deriving them from the ring after the supervisor has shut down.
type entry struct {
	id         string
	label      string
	maxTurns   int
	supervisor *session.Supervisor
	cancel     func()
	startedAt  time.Time
}

// completedEntry is an entry moved out of the active pool, stamped with its
// final snapshot at the moment of termination.
type completedEntry struct {
	entry
	completedAt    time.Time
	finalTurnCount int
	totalMessages  int
	runtimeMS      int64
}

// AgentManager owns the active and completed session pools, grounded on the
// Rust original's manager/agent_manager/core.rs AgentManager struct (two
// DashMap-equivalent pools translated to plain Go maps guarded by a mutex,
// since this package has no concurrent-map dependency in the pack — see
// DESIGN.md).
type AgentManager struct {
	opts ManagerOptions
	log  *slog.Logger

	mu        sync.Mutex
	active    map[string]*entry
	completed map[string]*completedEntry

	gcStop chan struct{}
	gcDone chan struct{}
}

// ManagerOptions configures an AgentManager, following this module's
// functional-options convention (agentrun.Option/StartOptions).
type ManagerOptions struct {
	Engine            agentrun.Engine
	Engines           map[string]agentrun.Engine
	RingCapacity      int
	MaxActiveSessions int
	GCInterval        time.Duration
	Retention         time.Duration
	Logger            *slog.Logger
}

// ManagerOption configures an AgentManager at construction.
type ManagerOption func(*ManagerOptions)

// WithEngine sets the agentrun.Engine used to start each session's
// subprocess. Required — New panics without one.
func WithEngine(e agentrun.Engine) ManagerOption {
	return func(o *ManagerOptions) { o.Engine = e }
}

// WithEngines registers additional named backends a SpawnRequest can select
// via EngineKind, alongside the default engine set by WithEngine. Lets a
// caller register alternate agentrun.Engine implementations without the
// manager package importing any of them directly — callers construct the
// Engine values and hand them in by name.
func WithEngines(named map[string]agentrun.Engine) ManagerOption {
	return func(o *ManagerOptions) { o.Engines = named }
}

// WithRingCapacity overrides the per-session ring buffer capacity.
func WithRingCapacity(n int) ManagerOption {
	return func(o *ManagerOptions) { o.RingCapacity = n }
}

// WithMaxActiveSessions caps the number of concurrently active sessions.
// Zero (the default) means unbounded.
func WithMaxActiveSessions(n int) ManagerOption {
	return func(o *ManagerOptions) { o.MaxActiveSessions = n }
}

// WithGCInterval overrides the completed-pool sweep interval.
func WithGCInterval(d time.Duration) ManagerOption {
	return func(o *ManagerOptions) { o.GCInterval = d }
}

// WithRetention overrides how long a completed session survives before GC.
func WithRetention(d time.Duration) ManagerOption {
	return func(o *ManagerOptions) { o.Retention = d }
}

// WithLogger overrides the manager's structured logger. Defaults to a text
// logger on stderr scoped with a "component=agent_manager" attr.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(o *ManagerOptions) { o.Logger = l }
}

// New constructs an AgentManager and starts its background GC task.
// Panics if opts doesn't set an Engine — every spawn needs one.
func New(opts ...ManagerOption) *AgentManager {
	o := ManagerOptions{
		GCInterval: GCInterval,
		Retention:  Retention,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Engine == nil {
		panic("manager: New requires WithEngine")
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(os.Stderr, nil)).With("component", "agent_manager")
	}

	m := &AgentManager{
		opts:      o,
		log:       o.Logger,
		active:    make(map[string]*entry),
		completed: make(map[string]*completedEntry),
		gcStop:    make(chan struct{}),
		gcDone:    make(chan struct{}),
	}
	go m.runGC()
	return m
}
