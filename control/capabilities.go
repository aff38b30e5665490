// Package control implements the orchestrator's own control protocol: the
// request/response correlation, capability negotiation, and message shapes
// spoken to a child agent process over the C1 wire codec (package wire).
//
// control is the protocol for the claude/CLI-class backends' hook and
// permission callback traffic, layered over agentrun.Process rather than
// a raw pipe.
package control

import "encoding/json"

// ClientCapabilities is the bitset a control-protocol client advertises
// during init. Named flags only — four values do not warrant a bitflags
// dependency (see DESIGN.md).
type ClientCapabilities uint8

const (
	CapBidirectional ClientCapabilities = 1 << iota
	CapHooks
	CapPermissions
	CapInterrupts
)

// Has reports whether all bits in want are set in c.
func (c ClientCapabilities) Has(want ClientCapabilities) bool {
	return c&want == want
}

type clientCapabilitiesWire struct {
	Bidirectional bool `json:"bidirectional"`
	Hooks         bool `json:"hooks"`
	Permissions   bool `json:"permissions"`
	Interrupts    bool `json:"interrupts"`
}

func (c ClientCapabilities) MarshalJSON() ([]byte, error) {
	return json.Marshal(clientCapabilitiesWire{
		Bidirectional: c.Has(CapBidirectional),
		Hooks:         c.Has(CapHooks),
		Permissions:   c.Has(CapPermissions),
		Interrupts:    c.Has(CapInterrupts),
	})
}

func (c *ClientCapabilities) UnmarshalJSON(data []byte) error {
	var w clientCapabilitiesWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var out ClientCapabilities
	if w.Bidirectional {
		out |= CapBidirectional
	}
	if w.Hooks {
		out |= CapHooks
	}
	if w.Permissions {
		out |= CapPermissions
	}
	if w.Interrupts {
		out |= CapInterrupts
	}
	*c = out
	return nil
}

// ServerCapabilities is the bitset a control-protocol server (the child
// agent) advertises in its init response.
type ServerCapabilities uint8

const (
	CapStreaming ServerCapabilities = 1 << iota
	CapTools
	CapMCP
)

// Has reports whether all bits in want are set in s.
func (s ServerCapabilities) Has(want ServerCapabilities) bool {
	return s&want == want
}

type serverCapabilitiesWire struct {
	Streaming bool `json:"streaming"`
	Tools     bool `json:"tools"`
	MCP       bool `json:"mcp"`
}

func (s ServerCapabilities) MarshalJSON() ([]byte, error) {
	return json.Marshal(serverCapabilitiesWire{
		Streaming: s.Has(CapStreaming),
		Tools:     s.Has(CapTools),
		MCP:       s.Has(CapMCP),
	})
}

func (s *ServerCapabilities) UnmarshalJSON(data []byte) error {
	var w serverCapabilitiesWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var out ServerCapabilities
	if w.Streaming {
		out |= CapStreaming
	}
	if w.Tools {
		out |= CapTools
	}
	if w.MCP {
		out |= CapMCP
	}
	*s = out
	return nil
}

// ProtocolVersion is the only control-protocol version this handler
// accepts in an init response.
const ProtocolVersion = "1.0"
