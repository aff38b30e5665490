package session

import (
	"context"
	"sync"
	"time"

	"github.com/cyrup-ai/kodegen-claude-agent"
)

// WorkingWindow is the trailing interval during which any received frame
// causes the session to report working=true (SPEC_FULL.md glossary).
const WorkingWindow = 2 * time.Second

type sendMessageCmd struct {
	content string
	reply   chan error
}

type shutdownCmd struct {
	reply chan error
}

// Supervisor is the per-session command loop: it owns one Client and
// drives a select loop over an inbound command channel and the client's
// outbound message stream, buffering into a bounded Ring and tracking
// activity/turn/completion state.
//
// Grounded on the Rust original's manager/background.rs
// spawn_message_collector tokio::select! loop and manager/session.rs
// AgentSessionInfo, translated to a Go select over a command channel and
// Client.Messages().
type Supervisor struct {
	client   *Client
	ring     *Ring
	maxTurns int
	window   time.Duration

	cmdCh chan any
	done  chan struct{}

	mu           sync.Mutex
	turnCount    int
	lastActivity time.Time
	complete     bool
	completedAt  time.Time
	runErr       error

	subsMu    sync.Mutex
	subs      map[int]chan MessageRecord
	nextSubID int
}

// NewSupervisor constructs a Supervisor over client, buffering into a Ring
// of the given capacity (DefaultRingCapacity if capacity <= 0) and
// treating the session complete once a Result frame reports
// num_turns >= maxTurns.
func NewSupervisor(client *Client, capacity, maxTurns int) *Supervisor {
	return &Supervisor{
		client:       client,
		ring:         NewRing(capacity),
		maxTurns:     maxTurns,
		window:       WorkingWindow,
		cmdCh:        make(chan any),
		done:         make(chan struct{}),
		lastActivity: time.Now(),
		subs:         make(map[int]chan MessageRecord),
	}
}

// Run drives the select loop until the session completes or the client's
// message stream closes. Run calls client.Start() itself and returns when
// the loop exits; callers invoke it in its own goroutine.
func (s *Supervisor) Run() {
	s.client.Start()
	defer close(s.done)

	msgs := s.client.Messages()
	for {
		select {
		case cmd, ok := <-s.cmdCh:
			if !ok {
				return
			}
			if s.handleCommand(cmd) {
				return
			}

		case msg, ok := <-msgs:
			if !ok {
				s.markComplete(s.client.Err())
				return
			}
			s.handleMessage(msg)
			if s.Complete() {
				return
			}
		}
	}
}

// handleCommand executes one command and reports whether the loop should
// exit (true for Shutdown).
func (s *Supervisor) handleCommand(cmd any) bool {
	switch c := cmd.(type) {
	case sendMessageCmd:
		err := s.client.SendMessage(context.Background(), c.content)
		if err == nil {
			s.touchActivity()
		}
		c.reply <- err
		return false

	case shutdownCmd:
		err := s.client.Close(context.Background())
		s.markComplete(nil)
		c.reply <- err
		return true

	default:
		return false
	}
}

// handleMessage appends msg to the ring, updates activity, publishes to
// subscribers, and applies the max-turns completion rule.
//
// Per-frame decode errors (MessageError) are appended like any other
// record and do not end the session — only a closed message stream
// (handled in Run) marks completion on error, per SPEC_FULL.md section 7.
func (s *Supervisor) handleMessage(msg agentrun.Message) {
	turn := s.TurnCount()
	rec := NewMessageRecord(msg, turn)
	s.ring.Push(rec)
	s.touchActivity()
	s.publish(rec)

	if msg.Type == agentrun.MessageResult && msg.Result != nil {
		s.setTurnCount(msg.Result.NumTurns)
		if msg.Result.NumTurns >= s.maxTurns {
			s.markComplete(nil)
		}
	}
}

func (s *Supervisor) touchActivity() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Supervisor) setTurnCount(n int) {
	s.mu.Lock()
	if n > s.turnCount {
		s.turnCount = n
	}
	s.mu.Unlock()
}

func (s *Supervisor) markComplete(err error) {
	s.mu.Lock()
	if !s.complete {
		s.complete = true
		s.completedAt = time.Now()
		s.runErr = err
	}
	s.mu.Unlock()
}

// TurnCount returns the turn count observed from the most recent Result
// message, monotonically non-decreasing.
func (s *Supervisor) TurnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnCount
}

// Complete reports whether the session has finished (max turns reached, a
// terminal result, an I/O failure, or an explicit Shutdown).
func (s *Supervisor) Complete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.complete
}

// CompletedAt returns the wall-clock completion time. Zero if still active.
func (s *Supervisor) CompletedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completedAt
}

// RunError returns the error that ended the session, if any.
func (s *Supervisor) RunError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runErr
}

// Working implements the activity rule from SPEC_FULL.md section 4.C5:
// working == (¬complete) ∧ (now − last_activity < WorkingWindow).
func (s *Supervisor) Working() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.complete {
		return false
	}
	return time.Since(s.lastActivity) < s.window
}

// LastActivity returns the last time any frame was sent or received.
func (s *Supervisor) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Ring returns the session's bounded message buffer.
func (s *Supervisor) Ring() *Ring {
	return s.ring
}

// Done returns a channel closed when Run exits.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// SendMessage posts a SendMessage command and waits for the supervisor
// loop to execute it, returning its error (nil on success). Returns
// ctx.Err() if ctx is done first, or agentrun.ErrTerminated if the loop
// has already exited.
func (s *Supervisor) SendMessage(ctx context.Context, content string) error {
	reply := make(chan error, 1)
	select {
	case s.cmdCh <- sendMessageCmd{content: content, reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return agentrun.ErrTerminated
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown posts a Shutdown command and waits for the supervisor loop to
// close the client and exit. Idempotent in effect: if the loop has
// already exited, Shutdown returns nil immediately.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case s.cmdCh <- shutdownCmd{reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return nil
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return nil
	}
}

// Subscribe registers a new broadcast subscriber, returning its channel
// and a cancel function to unregister it. Publishes are best-effort: a
// full subscriber channel drops the record rather than blocking the
// supervisor loop.
func (s *Supervisor) Subscribe(buffer int) (<-chan MessageRecord, func()) {
	ch := make(chan MessageRecord, buffer)
	s.subsMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = ch
	s.subsMu.Unlock()

	cancel := func() {
		s.subsMu.Lock()
		if existing, ok := s.subs[id]; ok {
			close(existing)
			delete(s.subs, id)
		}
		s.subsMu.Unlock()
	}
	return ch, cancel
}

func (s *Supervisor) publish(rec MessageRecord) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- rec:
		default:
		}
	}
}
