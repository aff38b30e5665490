// Package session implements C4 (session client) and C5 (session
// supervisor): the bidirectional conversation handle over one transport,
// and the per-session command loop that drives it.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/cyrup-ai/kodegen-claude-agent"
	"github.com/cyrup-ai/kodegen-claude-agent/control"
	"github.com/cyrup-ai/kodegen-claude-agent/wire"
)

// writeBufferSize bounds the queue of outbound control-protocol frames
// (hook/permission responses) awaiting the writer task. A full queue drops
// the frame being queued rather than blocking the hook/permission
// callback goroutine, consistent with SPEC_FULL.md section 7's "logged and
// swallowed" treatment of a callback round trip that can't complete.
const writeBufferSize = 16

// HookHandler decides a hook callback's response. Registered by the
// caller; the matcher/decision logic itself is an external collaborator
// per SPEC_FULL.md's Non-goals ("the permission/hook callback policy...
// are given but not their decision logic") — Client only supplies the
// channel plumbing and request/response correlation.
type HookHandler func(ctx context.Context, ev control.HookEvent) (payload []byte, err error)

// PermissionHandler decides a permission callback's response, same
// division of responsibility as HookHandler.
type PermissionHandler func(ctx context.Context, ev control.PermissionEvent) (decision string, err error)

// Interrupter is an optional legacy capability an agentrun.Process may
// implement to support mid-turn interruption directly, for backends with no
// stdin pipe to carry a wire-encoded control frame (Resumer-only,
// spawn-per-turn backends). Client.Interrupt prefers RawWriter and falls
// back to Interrupter only when RawWriter is unavailable.
type Interrupter interface {
	Interrupt(ctx context.Context) error
}

// RawWriter is an optional capability an agentrun.Process may implement to
// accept a pre-encoded, newline-terminated wire frame and deliver it to the
// child's stdin. engine/cli's process implements this over the same
// wire.Writer it uses for ordinary Send traffic, serializing both through
// one mutex (SPEC_FULL.md 4.C4's concurrency invariant). Client's writer
// task and Interrupt use this to actually emit control-protocol frames —
// without it, hook/permission responses and interrupt requests have nowhere
// to go and are dropped.
type RawWriter interface {
	WriteRaw(ctx context.Context, frame []byte) error
}

// Client composes one agentrun.Process (the transport — an engine/cli
// Process, already implementing C1+C2) with a *control.Handler for
// control-request bookkeeping, plus background tasks for hook and
// permission callbacks when enabled.
//
// Grounded on the Rust original's client/mod.rs + client/tasks.rs task
// split (message_reader_task/control_writer_task/hook_handler_task/
// permission_handler_task), adapted: since agentrun.Process already owns
// its own reader/writer tasks (the wire transport and framing are
// engine/cli's job), Client is a thin orchestration layer one level above
// it rather than a re-derivation of a raw transport.
type Client struct {
	proc    agentrun.Process
	handler *control.Handler
	opts    ClientOptions

	out     chan agentrun.Message
	writeCh chan []byte

	hookHandler       HookHandler
	permissionHandler PermissionHandler

	mu      sync.Mutex
	hookWG  sync.WaitGroup
	permWG  sync.WaitGroup
	cbWG    sync.WaitGroup // hook/permission decision goroutines spawned per event
	writeWG sync.WaitGroup
	started bool
}

// New builds a Client's control-protocol bookkeeping (the *control.Handler)
// ahead of its transport. Skips the control-protocol handshake
// unconditionally (SPEC_FULL.md Open Question (a)): the real child never
// sends an init_response, so initialized is set true at construction rather
// than negotiated.
//
// Construction is two-phase: the engine that starts the subprocess
// transport needs a routing closure from this Handler (see ControlRoute)
// before the subprocess's first output line is ever read, which is before
// an agentrun.Process exists to pass to New. Callers therefore build the
// Client first, obtain ControlRoute(), pass it to Engine.Start via
// agentrun.WithControlRoute, and then call Attach with the resulting
// Process before Start.
func New(opts ...ClientOption) *Client {
	o := resolveClientOptions(opts...)

	var handlerOpts []control.HandlerOption
	if o.EnableHooks {
		handlerOpts = append(handlerOpts, control.WithHooks(o.HookBuffer))
	}
	if o.EnablePermissions {
		handlerOpts = append(handlerOpts, control.WithPermissions(o.PermissionBuffer))
	}
	h := control.NewHandler(handlerOpts...)
	h.SetInitialized(true)

	return &Client{
		handler: h,
		opts:    o,
		out:     make(chan agentrun.Message),
		writeCh: make(chan []byte, writeBufferSize),
	}
}

// ControlRoute returns the classifier closure to install via
// agentrun.WithControlRoute before the transport's reader starts: every raw
// inbound frame is offered to control.Handler.HandleInbound first, and a
// frame it consumes (init/request/response envelopes) never reaches the
// backend's ordinary message parsing. Decode errors from malformed control
// envelopes are swallowed here — HandleInbound's own consumed=false/true
// contract is the only signal the caller needs.
func (c *Client) ControlRoute() func(raw []byte) bool {
	return func(raw []byte) bool {
		consumed, _ := c.handler.HandleInbound(raw)
		return consumed
	}
}

// Attach binds the started transport to the Client. Must be called exactly
// once, before Start.
func (c *Client) Attach(proc agentrun.Process) {
	c.mu.Lock()
	c.proc = proc
	c.mu.Unlock()
}

// Start launches the reader task (pumping proc.Output() into Client's own
// output channel) and, if enabled, the hook and permission worker tasks.
// Start is idempotent; only the first call has effect.
//
// The reader pulls proc.Output() without holding any lock across the
// channel receive — the concurrency invariant in SPEC_FULL.md 4.C4.
func (c *Client) Start() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go c.readLoop()

	c.writeWG.Add(1)
	go c.writeLoop()

	if c.opts.EnableHooks {
		c.hookWG.Add(1)
		go c.hookLoop()
	}
	if c.opts.EnablePermissions {
		c.permWG.Add(1)
		go c.permissionLoop()
	}
}

// writeLoop is the control writer task (spec 4.C4 item 2): it drains
// encoded control-protocol frames queued by hookLoop/permissionLoop/
// Interrupt and delivers each to the child via the transport's RawWriter
// capability. Backends with no RawWriter (no stdin pipe) drain and drop —
// there is nowhere to deliver the frame, same best-effort treatment as a
// full queue.
func (c *Client) writeLoop() {
	defer c.writeWG.Done()
	rw, _ := c.proc.(RawWriter)
	for frame := range c.writeCh {
		if rw == nil {
			continue
		}
		_ = rw.WriteRaw(context.Background(), frame)
	}
}

// queueControlRequest encodes req and enqueues it for the writer task,
// dropping it if the queue is full rather than blocking the caller (always
// an async hookLoop/permissionLoop goroutine).
func (c *Client) queueControlRequest(req control.ControlRequest) {
	frame, err := wire.EncodeControlRequest(req)
	if err != nil {
		return
	}
	select {
	case c.writeCh <- frame:
	default:
	}
}

// readLoop pumps proc.Output() into c.out until the source closes.
func (c *Client) readLoop() {
	defer close(c.out)
	for msg := range c.proc.Output() {
		c.out <- msg
	}
}

// hookLoop drains hook callback events and, if a handler is registered,
// invokes it and submits a HookResponse control request. With no
// registered handler the events are drained and dropped — the channel
// plumbing exists independent of any decision policy being wired in.
func (c *Client) hookLoop() {
	defer c.hookWG.Done()
	for ev := range c.handler.HookEvents() {
		if c.hookHandler == nil {
			continue
		}
		handler := c.hookHandler
		ev := ev
		c.cbWG.Add(1)
		go func() {
			defer c.cbWG.Done()
			payload, err := handler(context.Background(), ev)
			if err != nil {
				// Per SPEC_FULL.md section 7: hook errors are logged and
				// swallowed by the caller that owns a logger (the
				// supervisor); Client has no logger of its own.
				return
			}
			req, _ := c.handler.CreateHookResponseRequest(ev.HookID, payload)
			c.queueControlRequest(req)
		}()
	}
}

// permissionLoop is the permission-callback analogue of hookLoop.
func (c *Client) permissionLoop() {
	defer c.permWG.Done()
	for ev := range c.handler.PermissionEvents() {
		if c.permissionHandler == nil {
			continue
		}
		handler := c.permissionHandler
		ev := ev
		c.cbWG.Add(1)
		go func() {
			defer c.cbWG.Done()
			decision, err := handler(context.Background(), ev)
			if err != nil {
				return
			}
			req, _ := c.handler.CreatePermissionResponseRequest(ev.RequestID, decision)
			c.queueControlRequest(req)
		}()
	}
}

// SetHookHandler registers the hook decision callback. Must be called
// before Start to guarantee no event is missed.
func (c *Client) SetHookHandler(h HookHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hookHandler = h
}

// SetPermissionHandler registers the permission decision callback. Must be
// called before Start to guarantee no event is missed.
func (c *Client) SetPermissionHandler(h PermissionHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.permissionHandler = h
}

// Messages returns the channel consumers read from. Closed when the
// underlying process's Output() closes.
func (c *Client) Messages() <-chan agentrun.Message {
	return c.out
}

// SendMessage writes a user frame directly, bypassing the control writer
// path — per SPEC_FULL.md 4.C4: "send_message(text) writes a user frame
// directly (bypassing the writer task) — the writer task is reserved for
// control traffic."
func (c *Client) SendMessage(ctx context.Context, text string) error {
	return c.proc.Send(ctx, text)
}

// Interrupt requests the child interrupt its current turn by emitting the
// wire protocol's "simple control" interrupt frame (SPEC_FULL.md 4.C1),
// written directly through the transport's RawWriter — interrupt carries no
// id and expects no acknowledgement, so it bypasses the writer task's queue
// for an immediate, synchronous send. Backends with no RawWriter (no stdin
// pipe) fall back to the legacy Interrupter capability if implemented,
// otherwise this is a best-effort no-op: delivery is not guaranteed,
// consistent with SPEC_FULL.md's Non-goals ("makes no guarantees about
// exactly-once delivery of control messages to the child").
func (c *Client) Interrupt(ctx context.Context) error {
	c.handler.CreateInterruptRequest() // id allocated for correlation/logging only

	if rw, ok := c.proc.(RawWriter); ok {
		return rw.WriteRaw(ctx, wire.EncodeInterrupt())
	}
	if in, ok := c.proc.(Interrupter); ok {
		return in.Interrupt(ctx)
	}
	return nil
}

// Close shuts down the underlying transport and waits for the hook and
// permission worker tasks to drain. Idempotent; safe to call multiple
// times — subsequent calls return the first call's error.
func (c *Client) Close(ctx context.Context) error {
	err := c.proc.Stop(ctx)
	c.handler.Close()
	c.hookWG.Wait()
	c.permWG.Wait()
	c.cbWG.Wait()
	close(c.writeCh)
	c.writeWG.Wait()
	if err != nil {
		return fmt.Errorf("session: close: %w", err)
	}
	return nil
}

// Err returns the transport's terminal error, valid after Messages()
// closes.
func (c *Client) Err() error {
	return c.proc.Err()
}
