package control

import "encoding/json"

// FrameType is the "type" discriminator on every control-protocol envelope.
type FrameType string

const (
	FrameInit         FrameType = "init"
	FrameInitResponse FrameType = "init_response"
	FrameRequest      FrameType = "request"
	FrameResponse     FrameType = "response"
)

// ResponseStatus is the "status" discriminator on a response frame.
type ResponseStatus string

const (
	StatusSuccess    ResponseStatus = "success"
	StatusError      ResponseStatus = "error"
	StatusHook       ResponseStatus = "hook"
	StatusPermission ResponseStatus = "permission"
)

// envelopeHeader is unmarshaled first to read the discriminator fields
// before committing to a concrete shape.
type envelopeHeader struct {
	Type   FrameType      `json:"type"`
	Status ResponseStatus `json:"status,omitempty"`
}

// InitRequest is the orchestrator's handshake frame. Not sent to CLI-class
// backends (see Handler.SetInitialized) — retained for backends that do
// perform the handshake.
type InitRequest struct {
	Type             FrameType          `json:"type"`
	ProtocolVersion  string             `json:"protocol_version"`
	Capabilities     ClientCapabilities `json:"capabilities"`
}

// NewInitRequest builds an InitRequest advertising caps at ProtocolVersion.
func NewInitRequest(caps ClientCapabilities) InitRequest {
	return InitRequest{
		Type:            FrameInit,
		ProtocolVersion: ProtocolVersion,
		Capabilities:    caps,
	}
}

// InitResponse is the child's handshake reply.
type InitResponse struct {
	Type            FrameType          `json:"type"`
	ProtocolVersion string             `json:"protocol_version"`
	Capabilities    ServerCapabilities `json:"capabilities"`
}

// RequestMethod names a ControlRequest's method (the tagged-union variant).
type RequestMethod string

const (
	MethodInterrupt           RequestMethod = "interrupt"
	MethodSendMessage         RequestMethod = "send_message"
	MethodHookResponse        RequestMethod = "hook_response"
	MethodPermissionResponse  RequestMethod = "permission_response"
)

// ControlRequest is the orchestrator's outbound tagged union of
// {Interrupt, SendMessage(content), HookResponse(hook_id, payload),
// PermissionResponse(request_id, decision)}, per the data model in
// SPEC_FULL.md section 3. Exactly one of the method-specific fields is
// populated, selected by Method.
type ControlRequest struct {
	Type   FrameType     `json:"type"`
	Method RequestMethod `json:"method"`
	ID     string        `json:"id"`

	// Content is populated for MethodSendMessage.
	Content string `json:"content,omitempty"`

	// HookID/Payload are populated for MethodHookResponse.
	HookID  string          `json:"hook_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// RequestID/Decision are populated for MethodPermissionResponse.
	RequestID string `json:"request_id,omitempty"`
	Decision  string `json:"decision,omitempty"`
}

// ControlResponse is an inbound response/callback frame. Status selects
// which of Result/Err/Hook/Permission is populated.
type ControlResponse struct {
	Type   FrameType      `json:"type"`
	ID     string         `json:"id"`
	Status ResponseStatus `json:"status"`

	// Result is populated when Status == StatusSuccess.
	Result json.RawMessage `json:"result,omitempty"`

	// Err is populated when Status == StatusError.
	Err string `json:"error,omitempty"`

	// HookID/Event/HookPayload are populated when Status == StatusHook.
	HookID     string          `json:"hook_id,omitempty"`
	Event      string          `json:"event,omitempty"`
	HookPayload json.RawMessage `json:"hook_payload,omitempty"`

	// PermRequestID/PermRequest are populated when Status == StatusPermission.
	PermRequestID string          `json:"perm_request_id,omitempty"`
	PermRequest   json.RawMessage `json:"perm_request,omitempty"`
}

// HookEvent is the decoded payload handed to a registered hook worker.
type HookEvent struct {
	HookID  string
	Event   string
	Payload json.RawMessage
}

// PermissionEvent is the decoded payload handed to a registered permission
// worker.
type PermissionEvent struct {
	RequestID string
	Request   json.RawMessage
}
