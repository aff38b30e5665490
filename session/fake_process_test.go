package session

import (
	"context"
	"sync"

	"github.com/cyrup-ai/kodegen-claude-agent"
)

// fakeProcess is a minimal agentrun.Process test double driven entirely by
// the test: Emit pushes a message onto the output channel, CloseOutput
// ends the stream.
type fakeProcess struct {
	mu   sync.Mutex
	out  chan agentrun.Message
	sent []string
	err  error

	stopped bool
}

func newFakeProcess() *fakeProcess {
	return &fakeProcess{out: make(chan agentrun.Message, 16)}
}

func (f *fakeProcess) Output() <-chan agentrun.Message {
	return f.out
}

func (f *fakeProcess) Send(_ context.Context, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, message)
	return nil
}

func (f *fakeProcess) Stop(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.stopped {
		f.stopped = true
		close(f.out)
	}
	return nil
}

func (f *fakeProcess) Wait() error {
	return f.err
}

func (f *fakeProcess) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeProcess) Emit(msg agentrun.Message) {
	f.out <- msg
}

func (f *fakeProcess) CloseOutput(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return
	}
	f.stopped = true
	f.err = err
	close(f.out)
}

func (f *fakeProcess) SentMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	copy(out, f.sent)
	return out
}

var _ agentrun.Process = (*fakeProcess)(nil)

// rawCapturingProcess adds the RawWriter capability to fakeProcess, recording
// every frame delivered to it — used to assert that hook/permission
// responses and interrupt requests actually reach the transport instead of
// being silently discarded.
type rawCapturingProcess struct {
	*fakeProcess

	mu   sync.Mutex
	raws [][]byte
}

func newRawCapturingProcess() *rawCapturingProcess {
	return &rawCapturingProcess{fakeProcess: newFakeProcess()}
}

func (p *rawCapturingProcess) WriteRaw(_ context.Context, frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.raws = append(p.raws, append([]byte(nil), frame...))
	return nil
}

func (p *rawCapturingProcess) RawWrites() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.raws))
	copy(out, p.raws)
	return out
}

var _ RawWriter = (*rawCapturingProcess)(nil)
