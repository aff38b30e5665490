// Package mgrtest is a conformance suite for manager.AgentManager, mirroring
// enginetest/clitest's factory-function + subtest structure: RunManagerTests
// exercises the quantified invariants from SPEC_FULL.md section 8 against
// any AgentManager built from a fake in-process agentrun.Engine, the same
// way clitest.RunBackendTests exercises any cli.Backend.
package mgrtest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cyrup-ai/kodegen-claude-agent"
	"github.com/cyrup-ai/kodegen-claude-agent/manager"
)

// FakeProcess is a minimal agentrun.Process test double driven entirely by
// the test: Emit pushes a message onto the output channel, CloseOutput ends
// the stream. Mirrors session package's private fakeProcess, exported here
// so conformance tests across packages can share one implementation.
type FakeProcess struct {
	mu      sync.Mutex
	out     chan agentrun.Message
	sent    []string
	err     error
	stopped bool
}

// NewFakeProcess constructs a ready-to-drive FakeProcess.
func NewFakeProcess() *FakeProcess {
	return &FakeProcess{out: make(chan agentrun.Message, 64)}
}

func (f *FakeProcess) Output() <-chan agentrun.Message { return f.out }

func (f *FakeProcess) Send(_ context.Context, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, message)
	return nil
}

func (f *FakeProcess) Stop(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.stopped {
		f.stopped = true
		close(f.out)
	}
	return nil
}

func (f *FakeProcess) Wait() error { return f.err }

func (f *FakeProcess) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Emit pushes msg onto the process's output stream.
func (f *FakeProcess) Emit(msg agentrun.Message) { f.out <- msg }

// CloseOutput ends the process's output stream with terminal error err.
func (f *FakeProcess) CloseOutput(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return
	}
	f.stopped = true
	f.err = err
	close(f.out)
}

// SentMessages returns every message written via Send, in order.
func (f *FakeProcess) SentMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	copy(out, f.sent)
	return out
}

var _ agentrun.Process = (*FakeProcess)(nil)

// FakeEngine is an agentrun.Engine whose Start spawns a FakeProcess per
// session instead of a real subprocess, keyed by the caller-assigned
// session.ID (manager.Spawn generates the id before calling Engine.Start).
type FakeEngine struct {
	mu       sync.Mutex
	procs    map[string]*FakeProcess
	startErr error
}

// NewFakeEngine constructs an empty FakeEngine.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{procs: make(map[string]*FakeProcess)}
}

// FailNextStarts makes every subsequent Start call return err instead of
// spawning a process.
func (e *FakeEngine) FailNextStarts(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startErr = err
}

func (e *FakeEngine) Start(_ context.Context, session agentrun.Session, _ ...agentrun.Option) (agentrun.Process, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.startErr != nil {
		return nil, e.startErr
	}
	p := NewFakeProcess()
	e.procs[session.ID] = p
	return p, nil
}

func (e *FakeEngine) Validate() error { return nil }

// Process returns the FakeProcess backing sessionID, or nil if unknown.
func (e *FakeEngine) Process(sessionID string) *FakeProcess {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.procs[sessionID]
}

// RunManagerTests runs every conformance subtest against a fresh
// *manager.AgentManager + *FakeEngine pair built by factory. factory is
// called once per subtest so state never leaks between them.
func RunManagerTests(t *testing.T, factory func(opts ...manager.ManagerOption) (*manager.AgentManager, *FakeEngine)) {
	t.Helper()

	t.Run("RingCapInvariant", func(t *testing.T) { testRingCapInvariant(t, factory) })
	t.Run("TurnCountMonotonic", func(t *testing.T) { testTurnCountMonotonic(t, factory) })
	t.Run("MaxTurnsBoundary", func(t *testing.T) { testMaxTurnsBoundary(t, factory) })
	t.Run("PaginationOffsets", func(t *testing.T) { testPaginationOffsets(t, factory) })
	t.Run("GCEvictsAfterRetention", func(t *testing.T) { testGCEvictsAfterRetention(t, factory) })
}

func awaitRingLen(t *testing.T, mgr *manager.AgentManager, id string, n int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		res, err := mgr.Read(id, 0, 1<<20)
		if err == nil && res.TotalMessages >= n {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for session %s to reach %d buffered messages", id, n)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// testRingCapInvariant is quantified invariant 1: |buffer(s)| <= B at all times.
func testRingCapInvariant(t *testing.T, factory func(opts ...manager.ManagerOption) (*manager.AgentManager, *FakeEngine)) {
	t.Helper()
	mgr, eng := factory(manager.WithRingCapacity(5))
	defer mgr.Shutdown(context.Background())

	id, err := mgr.Spawn(context.Background(), manager.SpawnRequest{Prompt: "hi", MaxTurns: 100})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	proc := eng.Process(id)
	for i := 0; i < 20; i++ {
		proc.Emit(agentrun.Message{Type: agentrun.MessageText, Content: "m"})
	}
	awaitRingLen(t, mgr, id, 5)

	res, err := mgr.Read(id, 0, 1<<20)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if res.TotalMessages != 5 {
		t.Fatalf("TotalMessages = %d, want exactly 5 (capacity)", res.TotalMessages)
	}
}

// testTurnCountMonotonic is quantified invariant 2: turn_count never decreases.
func testTurnCountMonotonic(t *testing.T, factory func(opts ...manager.ManagerOption) (*manager.AgentManager, *FakeEngine)) {
	t.Helper()
	mgr, eng := factory()
	defer mgr.Shutdown(context.Background())

	id, err := mgr.Spawn(context.Background(), manager.SpawnRequest{Prompt: "hi", MaxTurns: 100})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	proc := eng.Process(id)
	proc.Emit(agentrun.Message{Type: agentrun.MessageResult, Result: &agentrun.ResultFields{NumTurns: 3}})
	awaitRingLen(t, mgr, id, 1)

	res, err := mgr.Read(id, 0, 10)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if res.TurnCount != 3 {
		t.Fatalf("TurnCount = %d, want 3", res.TurnCount)
	}

	proc.Emit(agentrun.Message{Type: agentrun.MessageResult, Result: &agentrun.ResultFields{NumTurns: 2}})
	awaitRingLen(t, mgr, id, 2)
	res, err = mgr.Read(id, 0, 10)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if res.TurnCount != 3 {
		t.Fatalf("TurnCount regressed to %d after a lower-numbered Result", res.TurnCount)
	}
}

// testMaxTurnsBoundary is the max_turns=1 boundary scenario: exactly one
// turn allowed, a second Send fails with SessionComplete.
func testMaxTurnsBoundary(t *testing.T, factory func(opts ...manager.ManagerOption) (*manager.AgentManager, *FakeEngine)) {
	t.Helper()
	mgr, eng := factory()
	defer mgr.Shutdown(context.Background())

	id, err := mgr.Spawn(context.Background(), manager.SpawnRequest{Prompt: "hi", MaxTurns: 1})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	proc := eng.Process(id)
	proc.Emit(agentrun.Message{Type: agentrun.MessageResult, Result: &agentrun.ResultFields{NumTurns: 1}})

	deadline := time.After(2 * time.Second)
	for {
		res, err := mgr.Read(id, 0, 1)
		if err == nil && res.Completed {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for session to complete")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := mgr.Send(context.Background(), id, "again"); err == nil {
		t.Fatal("expected SessionComplete error on second Send, got nil")
	}
}

// testPaginationOffsets covers the offset>=0 / offset<0 pagination laws.
func testPaginationOffsets(t *testing.T, factory func(opts ...manager.ManagerOption) (*manager.AgentManager, *FakeEngine)) {
	t.Helper()
	mgr, eng := factory(manager.WithRingCapacity(1000))
	defer mgr.Shutdown(context.Background())

	id, err := mgr.Spawn(context.Background(), manager.SpawnRequest{Prompt: "hi", MaxTurns: 1000})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	proc := eng.Process(id)
	for i := 0; i < 120; i++ {
		proc.Emit(agentrun.Message{Type: agentrun.MessageText, Content: "m"})
	}
	awaitRingLen(t, mgr, id, 120)

	cases := []struct {
		offset, length int
		wantLen        int
		wantHasMore    bool
	}{
		{0, 50, 50, true},
		{50, 50, 50, true},
		{100, 50, 20, false},
		{-10, 0, 10, false},
	}
	for _, c := range cases {
		res, err := mgr.Read(id, c.offset, c.length)
		if err != nil {
			t.Fatalf("Read(offset=%d): %v", c.offset, err)
		}
		if res.MessagesReturned != c.wantLen || res.HasMore != c.wantHasMore {
			t.Fatalf("Read(offset=%d,length=%d) = (%d returned, has_more=%v), want (%d, %v)",
				c.offset, c.length, res.MessagesReturned, res.HasMore, c.wantLen, c.wantHasMore)
		}
	}
}

// testGCEvictsAfterRetention is quantified invariant 5: after the GC
// interval, a completed session older than retention is absent.
func testGCEvictsAfterRetention(t *testing.T, factory func(opts ...manager.ManagerOption) (*manager.AgentManager, *FakeEngine)) {
	t.Helper()
	mgr, _ := factory(manager.WithGCInterval(20*time.Millisecond), manager.WithRetention(10*time.Millisecond))
	defer mgr.Shutdown(context.Background())

	id, err := mgr.Spawn(context.Background(), manager.SpawnRequest{Prompt: "hi", MaxTurns: 10})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if _, err := mgr.Terminate(context.Background(), id); err != nil {
		t.Fatalf("Terminate: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		if _, err := mgr.Read(id, 0, 1); err != nil {
			return
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for GC to evict completed session")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
