package agent

import "context"

// ToolCallMethod selects how a Brain adapter encodes the available tools
// in its provider request: native function-calling, or a structured-JSON
// fallback for providers/models without function-call support.
type ToolCallMethod string

const (
	MethodFunctionCall    ToolCallMethod = "function_call"
	MethodStructuredOutput ToolCallMethod = "structured_output"
)

// FlowControl is the brain's signal for what should happen after a
// tool-call-free decision: keep going automatically, or hand control back
// to whoever is waiting on the agent.
type FlowControl int

const (
	// FlowContinue requests another thinker turn immediately.
	FlowContinue FlowControl = iota
	// FlowPause requests the agent settle into Paused.
	FlowPause
)

// AssistantMessage is the brain's proposed next entry in the trace. Role is
// always "assistant"; ToolCalls may be empty.
type AssistantMessage struct {
	Content   string
	ToolCalls []ToolCall
}

// HasToolCalls reports whether the decision requires tool dispatch. Per
// spec, when true, Flow is ignored entirely.
func (m AssistantMessage) HasToolCalls() bool { return len(m.ToolCalls) > 0 }

// TokenUsage reports accounting for a single brain call, when the provider
// exposes it.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// ThinkerDecision is the Brain's output: the proposed message plus flow
// control and optional token accounting.
type ThinkerDecision struct {
	Message    AssistantMessage
	Flow       FlowControl
	TokenUsage *TokenUsage
}

// ThinkerContext is everything a Brain needs to produce its next decision.
// Trace gives read-locked access to the conversation history; the brain
// must never mutate it — the core's brain-result handler is the only
// writer for assistant messages.
type ThinkerContext struct {
	Trace          *Trace
	AvailableTools []AnyTool
	Method         ToolCallMethod
}

// Brain is a one-shot decision function: given the current trace and
// toolbox, produce the next assistant decision by calling an LLM (or a
// stub, in tests). Implementations must not mutate tc.Trace. Errors
// propagate verbatim; the core treats every Brain error as non-fatal and
// pauses rather than terminating the agent.
type Brain interface {
	NextStep(ctx context.Context, tc ThinkerContext) (ThinkerDecision, error)
}

// BrainFunc adapts a plain function to the Brain interface, convenient for
// stub brains in tests.
type BrainFunc func(ctx context.Context, tc ThinkerContext) (ThinkerDecision, error)

func (f BrainFunc) NextStep(ctx context.Context, tc ThinkerContext) (ThinkerDecision, error) {
	return f(ctx, tc)
}
