package session

import (
	"sync"
	"time"

	"github.com/cyrup-ai/kodegen-claude-agent"
)

// RecordKind classifies a buffered message record, per SPEC_FULL.md
// section 3's data model ("a classification tag (assistant, user,
// system_<subtype>, result, stream_event)").
type RecordKind string

const (
	RecordAssistant   RecordKind = "assistant"
	RecordUser        RecordKind = "user"
	RecordSystem      RecordKind = "system"
	RecordResult      RecordKind = "result"
	RecordStreamEvent RecordKind = "stream_event"
)

// classify maps an agentrun.Message to its ring-buffer RecordKind and, for
// system messages, a subtype string (the part after "system_").
func classify(msg agentrun.Message) (kind RecordKind, subtype string) {
	switch msg.Type {
	case agentrun.MessageText, agentrun.MessageTextDelta, agentrun.MessageThinking,
		agentrun.MessageThinkingDelta, agentrun.MessageToolUse, agentrun.MessageToolUseDelta,
		agentrun.MessageToolResult:
		return RecordAssistant, ""
	case agentrun.MessageResult:
		return RecordResult, ""
	case agentrun.MessageSystem, agentrun.MessageInit, agentrun.MessageError, agentrun.MessageContextWindow:
		return RecordSystem, string(msg.Type)
	default:
		return RecordStreamEvent, string(msg.Type)
	}
}

// MessageRecord is one buffer element: a classification tag, the opaque
// full content, the turn number at the moment of receipt, and the
// wall-clock receive timestamp.
type MessageRecord struct {
	Kind       RecordKind
	Subtype    string
	Content    agentrun.Message
	Turn       int
	ReceivedAt time.Time
}

// NewMessageRecord classifies msg and stamps it with turn and the current
// time.
func NewMessageRecord(msg agentrun.Message, turn int) MessageRecord {
	kind, subtype := classify(msg)
	return MessageRecord{
		Kind:       kind,
		Subtype:    subtype,
		Content:    msg,
		Turn:       turn,
		ReceivedAt: time.Now(),
	}
}

// IsAssistant reports whether r represents assistant-authored output, the
// filter LastOutputLines uses to skip system/result noise.
func (r MessageRecord) IsAssistant() bool {
	return r.Kind == RecordAssistant
}

// Text returns the best-effort plain-text content of r, used by
// LastOutputLines. Empty for records with no text payload (tool calls,
// control frames).
func (r MessageRecord) Text() string {
	if r.Content.Content != "" {
		return r.Content.Content
	}
	if r.Content.Result != nil {
		return r.Content.Result.ResultText
	}
	return ""
}

// DefaultRingCapacity is the ring buffer's bound B from SPEC_FULL.md
// section 3 ("Bounded capacity B (1000)").
const DefaultRingCapacity = 1000

// Ring is a bounded, fixed-capacity circular buffer of MessageRecord.
// Insertions at the tail evict from the head when full; order is
// preserved; reads never mutate.
//
// Grounded on the Rust original's manager/background.rs VecDeque eviction
// rule ("if len() == BUFFER_SIZE { pop_front() }"), translated to a plain
// Go slice-backed circular buffer — stdlib territory, no pack example
// reaches for a ring-buffer library for this (see DESIGN.md).
type Ring struct {
	mu   sync.Mutex
	buf  []MessageRecord
	head int
	size int
	cap  int
}

// NewRing constructs a Ring with the given capacity. A non-positive
// capacity is replaced with DefaultRingCapacity.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &Ring{
		buf: make([]MessageRecord, capacity),
		cap: capacity,
	}
}

// Push appends rec at the tail, evicting the oldest record if the ring is
// at capacity.
func (r *Ring) Push(rec MessageRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == r.cap {
		r.buf[r.head] = rec
		r.head = (r.head + 1) % r.cap
		return
	}
	idx := (r.head + r.size) % r.cap
	r.buf[idx] = rec
	r.size++
}

// Len returns the current number of buffered records (≤ capacity).
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Cap returns the ring's fixed capacity.
func (r *Ring) Cap() int {
	return r.cap
}

// Snapshot returns a copy of the buffer's contents in insertion order.
// Reads never mutate the ring.
func (r *Ring) Snapshot() []MessageRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]MessageRecord, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.head+i)%r.cap]
	}
	return out
}

// At returns the record at position idx in insertion order (0 is oldest)
// and whether idx was in range.
func (r *Ring) At(idx int) (MessageRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx < 0 || idx >= r.size {
		return MessageRecord{}, false
	}
	return r.buf[(r.head+idx)%r.cap], true
}
