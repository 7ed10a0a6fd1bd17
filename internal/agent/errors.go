package agent

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an AgentError for callers that want to branch on
// failure category without string-matching messages.
type ErrorKind string

const (
	// KindLLMError indicates the brain's underlying provider call failed.
	KindLLMError ErrorKind = "llm_error"
	// KindInvalidResponse indicates the brain returned a decision the core
	// cannot act on (e.g. a non-assistant message).
	KindInvalidResponse ErrorKind = "invalid_response"
	// KindInvalidState indicates a command or internal event arrived while
	// the agent was in a state that cannot handle it.
	KindInvalidState ErrorKind = "invalid_state"
	// KindExecutionError indicates a tool failed during execution.
	KindExecutionError ErrorKind = "execution_error"
	// KindConfigurationError indicates the caller supplied an invalid brain,
	// tool list, or option.
	KindConfigurationError ErrorKind = "configuration_error"
	// KindSessionClosed indicates a command was sent after the agent reached
	// a terminal state or its command intake was closed.
	KindSessionClosed ErrorKind = "session_closed"
	// KindTimeoutError indicates a caller-side wait exceeded its deadline.
	KindTimeoutError ErrorKind = "timeout_error"
)

// AgentError is the core's sole error type. Kind lets callers branch with
// errors.Is/errors.As without parsing Message.
type AgentError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *AgentError) Error() string {
	if e.Message == "" && e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AgentError) Unwrap() error { return e.Cause }

// Is reports whether target is an *AgentError with the same Kind, so that
// errors.Is(err, &AgentError{Kind: KindSessionClosed}) works for sentinel-
// style checks without comparing Message/Cause.
func (e *AgentError) Is(target error) bool {
	var other *AgentError
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

// NewAgentError builds an AgentError wrapping cause, which may be nil.
func NewAgentError(kind ErrorKind, message string, cause error) *AgentError {
	return &AgentError{Kind: kind, Message: message, Cause: cause}
}

var (
	// ErrSessionClosed is returned by AgentController methods once the
	// agent's command intake has been closed (Terminate or Droping).
	ErrSessionClosed = &AgentError{Kind: KindSessionClosed, Message: "agent command intake closed"}
	// ErrReplyTimeout is returned by AgentController.send when the agent
	// does not reply within the client-side timeout.
	ErrReplyTimeout = &AgentError{Kind: KindTimeoutError, Message: "timed out waiting for agent reply"}
)
