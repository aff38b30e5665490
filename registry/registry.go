// Package registry implements C7: the per-connection registry mapping
// tenant-visible numeric handles to session ids, and the cleanup-on-
// disconnect sweep that guarantees no session outlives its owning
// connection.
//
// Grounded directly on the Rust original's registry.rs::AgentRegistry
// (get_session_id/register_session/remove_session/list_all/
// cleanup_connection), translated to the mutex-guarded-map idiom used
// elsewhere in this module (engine/cli/process.go's "mu sync.Mutex" field).
package registry

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"
)

// key is the two-level registry key: (connection id, numeric handle).
type key struct {
	conn   string
	handle int
}

// Terminator is the subset of *manager.AgentManager the registry needs to
// perform disconnect cleanup. Declared as an interface here (rather than
// importing the manager package) so registry has no import-cycle-prone
// dependency on manager's internals — it only needs one method.
type Terminator interface {
	TerminateSession(ctx context.Context, id string) error
}

// Registry maps (connection id, numeric handle) to session id. Values are
// session ids only, never session records — disconnect cleanup can
// therefore never deadlock against a session holding its own lock
// (SPEC_FULL.md section 9, "Cyclic ownership avoidance").
type Registry struct {
	log *slog.Logger

	mu      sync.Mutex
	entries map[key]string
}

// New constructs an empty Registry. A nil logger defaults to a text logger
// on stderr scoped with a "component=registry" attr.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil)).With("component", "registry")
	}
	return &Registry{
		log:     logger,
		entries: make(map[key]string),
	}
}

// Get returns the session id registered under (connID, handle), if any.
func (r *Registry) Get(connID string, handle int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.entries[key{connID, handle}]
	return id, ok
}

// Register associates (connID, handle) with sessionID. A second Register
// call for the same key overwrites the previous mapping — callers (the
// tool facade) are responsible for choosing handles unique per connection,
// per SPEC_FULL.md section 3's invariant ("unique handles per connection").
func (r *Registry) Register(connID string, handle int, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key{connID, handle}] = sessionID
}

// Remove deletes the (connID, handle) mapping, returning the session id it
// held and whether it was present.
func (r *Registry) Remove(connID string, handle int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{connID, handle}
	id, ok := r.entries[k]
	if ok {
		delete(r.entries, k)
	}
	return id, ok
}

// HandleEntry pairs a numeric handle with its session id, returned by
// ListForConnection.
type HandleEntry struct {
	Handle    int
	SessionID string
}

// ListForConnection returns every (handle, session id) pair registered
// under connID, in no particular order.
func (r *Registry) ListForConnection(connID string) []HandleEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []HandleEntry
	for k, id := range r.entries {
		if k.conn == connID {
			out = append(out, HandleEntry{Handle: k.handle, SessionID: id})
		}
	}
	return out
}

// CleanupConnection atomically collects every key registered under connID,
// removes them from the map, and terminates each session concurrently
// (fanned out via errgroup.Group, same dependency manager.Shutdown uses).
// Individual termination failures are logged but never abort the sweep.
// Returns the count of sessions the sweep attempted to terminate.
//
// This is the only mechanism that enforces the invariant that no session
// outlives its owning connection (SPEC_FULL.md section 8, property 4).
func (r *Registry) CleanupConnection(ctx context.Context, connID string, mgr Terminator) int {
	r.mu.Lock()
	var ids []string
	for k, id := range r.entries {
		if k.conn == connID {
			delete(r.entries, k)
			ids = append(ids, id)
		}
	}
	r.mu.Unlock()

	if len(ids) == 0 {
		return 0
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := mgr.TerminateSession(gctx, id); err != nil {
				r.log.Warn("registry: cleanup terminate failed", "connection_id", connID, "session_id", id, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	r.log.Debug("registry: cleaned up connection", "connection_id", connID, "count", len(ids))
	return len(ids)
}
