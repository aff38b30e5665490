package cli

import (
	"errors"

	"github.com/cyrup-ai/kodegen-claude-agent"
)

// ErrSkipLine tells the read loop to silently drop the current stdout line
// instead of surfacing it as a MessageError. Parser implementations return
// it for lines with no message content (blank lines, log noise).
var ErrSkipLine = errors.New("cli: skip line")

// Backend is the minimum a CLI agent backend must implement: build the
// initial spawn command and parse its output lines into Messages.
// Optional capabilities (Resumer, Streamer, InputFormatter) are detected
// by type assertion in Engine.Start, following Go interface ownership
// conventions — defined here at the consumer side, not the backend side.
type Backend interface {
	Spawner
	Parser
}

// Spawner builds exec.Cmd arguments for a new, one-shot session.
// Implementations must not fail: invalid option values are silently
// skipped rather than returned as an error, since SpawnArgs has no error
// return.
type Spawner interface {
	// SpawnArgs returns the binary name/path and argument list for
	// starting a new session with session's prompt and options.
	SpawnArgs(session agentrun.Session) (binary string, args []string)
}

// Parser transforms one raw stdout line into a Message.
// Return ErrSkipLine to drop the line without surfacing an error message.
type Parser interface {
	ParseLine(line string) (agentrun.Message, error)
}

// Resumer resumes an existing session by replacing the subprocess.
// Backends implementing Resumer without Streamer use spawn-per-turn:
// each Send() call tears down the current subprocess and starts a new
// one with ResumeArgs.
type Resumer interface {
	// ResumeArgs returns the binary and arguments to resume session with
	// initialPrompt as the next turn's message. Unlike SpawnArgs, this may
	// return an error — resume requires an identifier the backend must
	// validate.
	ResumeArgs(session agentrun.Session, initialPrompt string) (binary string, args []string, err error)
}

// Streamer builds arguments for a long-lived session that accepts input
// over a persistent stdin pipe. Engine.Start prefers Streamer+InputFormatter
// over Resumer when a backend implements both.
type Streamer interface {
	StreamArgs(session agentrun.Session) (binary string, args []string)
}

// InputFormatter encodes a user message for delivery over a Streamer's
// stdin pipe. Required alongside Streamer for Engine.Start to use the
// streaming path.
type InputFormatter interface {
	FormatInput(message string) ([]byte, error)
}
