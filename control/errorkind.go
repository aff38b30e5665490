package control

import "fmt"

// ErrorKind is the taxonomy from SPEC_FULL.md section 7 — a fixed set of
// tags, not a type hierarchy, attached to wrapped errors so the tool
// facade can map any error to a stable kind without string-matching.
type ErrorKind string

const (
	KindCliNotFound               ErrorKind = "cli_not_found"
	KindConnection                ErrorKind = "connection"
	KindProcess                   ErrorKind = "process"
	KindTransport                 ErrorKind = "transport"
	KindJSONDecode                ErrorKind = "json_decode"
	KindMessageParse              ErrorKind = "message_parse"
	KindControlProtocol           ErrorKind = "control_protocol"
	KindHook                      ErrorKind = "hook"
	KindMCP                       ErrorKind = "mcp"
	KindIO                        ErrorKind = "io"
	KindTimeout                   ErrorKind = "timeout"
	KindInvalidConfig             ErrorKind = "invalid_config"
	KindSessionNotFound           ErrorKind = "session_not_found"
	KindSessionComplete           ErrorKind = "session_complete"
	KindMaxSessionsReached        ErrorKind = "max_sessions_reached"
	KindInvalidAgentConfiguration ErrorKind = "invalid_agent_configuration"
	KindPromptTemplateError       ErrorKind = "prompt_template_error"
)

// KindError wraps an error with a stable ErrorKind tag. Constructed via the
// named helpers below, mirroring the Rust original's ClaudeError
// constructor-function convention translated to Go's wrapped-error idiom.
type KindError struct {
	Kind ErrorKind
	Err  error
}

func (e *KindError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *KindError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *KindError with the same Kind, so callers
// can do errors.Is(err, &KindError{Kind: KindSessionNotFound}) without
// caring about the wrapped message.
func (e *KindError) Is(target error) bool {
	other, ok := target.(*KindError)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

func newKindError(kind ErrorKind, format string, args ...any) *KindError {
	return &KindError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// SessionNotFound builds a KindSessionNotFound error for session id.
func SessionNotFound(id string) *KindError {
	return newKindError(KindSessionNotFound, "session %q not found", id)
}

// SessionComplete builds a KindSessionComplete error for session id.
func SessionComplete(id string) *KindError {
	return newKindError(KindSessionComplete, "session %q has already completed", id)
}

// MaxSessionsReached builds a KindMaxSessionsReached error for the given limit.
func MaxSessionsReached(limit int) *KindError {
	return newKindError(KindMaxSessionsReached, "max active sessions reached (%d)", limit)
}

// Process builds a KindProcess error carrying the child's exit code and an
// optional hint extracted from stderr.
func Process(exitCode int, stderrHint string) *KindError {
	if stderrHint == "" {
		return newKindError(KindProcess, "process exited with code %d", exitCode)
	}
	return newKindError(KindProcess, "process exited with code %d: %s", exitCode, stderrHint)
}

// ControlProtocol builds a KindControlProtocol error wrapping err.
func ControlProtocol(err error) *KindError {
	return &KindError{Kind: KindControlProtocol, Err: err}
}

// Timeout builds a KindTimeout error wrapping err.
func Timeout(err error) *KindError {
	return &KindError{Kind: KindTimeout, Err: err}
}

// InvalidConfig builds a KindInvalidConfig error for a config problem.
func InvalidConfig(format string, args ...any) *KindError {
	return newKindError(KindInvalidConfig, format, args...)
}
