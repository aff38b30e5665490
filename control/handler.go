package control

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
)

// Handler maintains request/response correlation for the control protocol:
// a monotonic request-id counter, a map of request id to one-shot
// completion sink, an initialized flag, and optional callback channels for
// hook and permission events.
//
// A mutex-guarded pending map of one-shot channels, an atomic id counter,
// and a drain-on-close step so stragglers waiting on a pending response
// channel unblock instead of leaking.
type Handler struct {
	mu      sync.Mutex
	pending map[string]chan *ControlResponse

	nextID atomic.Uint64

	initialized atomic.Bool

	hookCh       chan HookEvent
	permissionCh chan PermissionEvent

	closeOnce sync.Once
	closed    chan struct{}
}

// HandlerOption configures a Handler at construction.
type HandlerOption func(*Handler)

// WithHooks enables the hook callback channel with the given buffer size.
func WithHooks(buffer int) HandlerOption {
	return func(h *Handler) {
		h.hookCh = make(chan HookEvent, buffer)
	}
}

// WithPermissions enables the permission callback channel with the given
// buffer size.
func WithPermissions(buffer int) HandlerOption {
	return func(h *Handler) {
		h.permissionCh = make(chan PermissionEvent, buffer)
	}
}

// NewHandler constructs a Handler. Hook and permission channels are nil
// (disabled) unless enabled via WithHooks/WithPermissions.
func NewHandler(opts ...HandlerOption) *Handler {
	h := &Handler{
		pending: make(map[string]chan *ControlResponse),
		closed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetInitialized marks the handler as past the handshake, bypassing the
// init/init_response round trip. CLI-class backends never send an
// init_response (SPEC_FULL.md Open Question (a)); callers for those
// backends call SetInitialized(true) immediately after construction.
func (h *Handler) SetInitialized(v bool) {
	h.initialized.Store(v)
}

// Initialized reports whether the handshake has completed, either through an
// init_response or through SetInitialized.
func (h *Handler) Initialized() bool {
	return h.initialized.Load()
}

// nextRequestID allocates a fresh, process-unique request id.
func (h *Handler) nextRequestID() string {
	return "req-" + strconv.FormatUint(h.nextID.Add(1), 10)
}

// register allocates a request id and a one-shot response channel, storing
// it in the pending map so a later HandleInbound can route a response back.
func (h *Handler) register() (string, chan *ControlResponse) {
	id := h.nextRequestID()
	ch := make(chan *ControlResponse, 1)
	h.mu.Lock()
	h.pending[id] = ch
	h.mu.Unlock()
	return id, ch
}

// unregister removes id from the pending map without sending on its channel.
func (h *Handler) unregister(id string) {
	h.mu.Lock()
	delete(h.pending, id)
	h.mu.Unlock()
}

// CreateSendMessageRequest builds a SendMessage control request for content.
// Per SPEC_FULL.md 4.C4, send_message normally bypasses this path (it
// writes a user frame directly); this exists for callers that route
// send-message through the control channel explicitly.
func (h *Handler) CreateSendMessageRequest(content string) (ControlRequest, <-chan *ControlResponse) {
	id, ch := h.register()
	return ControlRequest{
		Type:    FrameRequest,
		Method:  MethodSendMessage,
		ID:      id,
		Content: content,
	}, ch
}

// CreateInterruptRequest builds an Interrupt control request. Unlike the
// other three variants, interrupt is encoded on the wire as a "simple
// control" frame with no id (SPEC_FULL.md 4.C1) — the child is not
// expected to acknowledge it, so no pending waiter is registered. The id
// here is for internal logging/correlation only.
func (h *Handler) CreateInterruptRequest() ControlRequest {
	return ControlRequest{
		Type:   FrameRequest,
		Method: MethodInterrupt,
		ID:     h.nextRequestID(),
	}
}

// CreateHookResponseRequest builds a HookResponse control request replying
// to hookID with payload.
func (h *Handler) CreateHookResponseRequest(hookID string, payload json.RawMessage) (ControlRequest, <-chan *ControlResponse) {
	id, ch := h.register()
	return ControlRequest{
		Type:    FrameRequest,
		Method:  MethodHookResponse,
		ID:      id,
		HookID:  hookID,
		Payload: payload,
	}, ch
}

// CreatePermissionResponseRequest builds a PermissionResponse control
// request replying to requestID with decision.
func (h *Handler) CreatePermissionResponseRequest(requestID, decision string) (ControlRequest, <-chan *ControlResponse) {
	id, ch := h.register()
	return ControlRequest{
		Type:      FrameRequest,
		Method:    MethodPermissionResponse,
		ID:        id,
		RequestID: requestID,
		Decision:  decision,
	}, ch
}

// CancelRequest removes a pending request without waiting for a response,
// e.g. when the caller's context is canceled.
func (h *Handler) CancelRequest(id string) {
	h.unregister(id)
}

// HandleInbound offers one decoded inbound JSON value to the control
// classifier. consumed reports whether raw was control-protocol traffic
// (and has therefore been fully handled); when consumed is false, the
// caller should pass raw on to ordinary message parsing.
//
// Control envelope discriminators: init, init_response, request, response.
// response frames carry a status of success, error, hook, or permission.
// success/error route to the waiting sink keyed by id; if no waiter
// exists the frame is silently dropped (late response). hook/permission
// frames are forwarded to their callback channels, best-effort (dropped if
// the channel is unset or full — the protocol never wedges waiting on a
// callback, per SPEC_FULL.md section 7).
func (h *Handler) HandleInbound(raw []byte) (consumed bool, err error) {
	var header envelopeHeader
	if err := json.Unmarshal(raw, &header); err != nil {
		return false, nil // not even a JSON object with a type field — not ours
	}

	switch header.Type {
	case FrameInitResponse:
		return true, h.handleInitResponse(raw)
	case FrameResponse:
		return true, h.handleResponse(raw)
	case FrameInit, FrameRequest:
		// These are frames we emit, not frames we expect inbound from the
		// child under this protocol's roles; ignore rather than error.
		return true, nil
	default:
		return false, nil
	}
}

func (h *Handler) handleInitResponse(raw []byte) error {
	var resp InitResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return ControlProtocol(fmt.Errorf("decode init_response: %w", err))
	}
	if resp.ProtocolVersion != ProtocolVersion {
		return ControlProtocol(fmt.Errorf("unsupported protocol_version %q (want %q)", resp.ProtocolVersion, ProtocolVersion))
	}
	h.SetInitialized(true)
	return nil
}

func (h *Handler) handleResponse(raw []byte) error {
	var resp ControlResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return ControlProtocol(fmt.Errorf("decode response: %w", err))
	}

	switch resp.Status {
	case StatusSuccess, StatusError:
		h.mu.Lock()
		ch, ok := h.pending[resp.ID]
		if ok {
			delete(h.pending, resp.ID)
		}
		h.mu.Unlock()
		if ok {
			ch <- &resp
		}
		return nil

	case StatusHook:
		if h.hookCh == nil {
			return nil
		}
		ev := HookEvent{HookID: resp.HookID, Event: resp.Event, Payload: resp.HookPayload}
		select {
		case h.hookCh <- ev:
		default:
			// Best-effort: a full channel means the hook worker is behind.
			// Dropping here rather than blocking keeps the reader loop live.
		}
		return nil

	case StatusPermission:
		if h.permissionCh == nil {
			return nil
		}
		ev := PermissionEvent{RequestID: resp.PermRequestID, Request: resp.PermRequest}
		select {
		case h.permissionCh <- ev:
		default:
		}
		return nil

	default:
		return ControlProtocol(fmt.Errorf("response %s: unknown status %q", resp.ID, resp.Status))
	}
}

// HookEvents returns the hook callback channel, or nil if hooks were not
// enabled via WithHooks.
func (h *Handler) HookEvents() <-chan HookEvent {
	return h.hookCh
}

// PermissionEvents returns the permission callback channel, or nil if
// permissions were not enabled via WithPermissions.
func (h *Handler) PermissionEvents() <-chan PermissionEvent {
	return h.permissionCh
}

// Close unblocks every caller waiting on a response channel returned by a
// Create*Request builder by closing that channel,
// and closes the hook/permission channels if enabled. Idempotent.
func (h *Handler) Close() {
	h.closeOnce.Do(func() {
		close(h.closed)
		h.mu.Lock()
		defer h.mu.Unlock()
		for id, ch := range h.pending {
			close(ch)
			delete(h.pending, id)
		}
		if h.hookCh != nil {
			close(h.hookCh)
		}
		if h.permissionCh != nil {
			close(h.permissionCh)
		}
	})
}

// Done returns a channel closed when Close has run.
func (h *Handler) Done() <-chan struct{} {
	return h.closed
}
