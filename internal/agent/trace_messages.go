package agent

import "sync"

// MessageRole identifies the speaker of a trace entry.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// Message is one entry in the conversation trace. ToolCalls is populated
// only on assistant messages that requested tool execution; CallID is
// populated only on tool messages and must match a call_id present in a
// preceding assistant message's ToolCalls (invariant I1).
type Message struct {
	Role      MessageRole
	Content   string
	ToolCalls []ToolCall
	CallID    string
}

// IsUser reports whether this message has role user, used by the state
// machine to decide the post-AgentInitialized transition.
func (m Message) IsUser() bool { return m.Role == RoleUser }

// Trace is the ordered, append-only-within-a-turn conversation history
// shared between the main loop, the brain, and tool tasks. Exactly three
// call sites append: the loop (user input / a caller-provided trace
// extension), the brain-result handler (the assistant message), and tool
// tasks (tool-result messages) — enforced here by keeping the mutating
// methods narrow rather than exposing the backing slice for direct
// mutation.
type Trace struct {
	mu       sync.RWMutex
	messages []Message
}

// NewTrace seeds a trace with the given initial messages, which may be
// empty for a brand-new agent.
func NewTrace(initial []Message) *Trace {
	t := &Trace{messages: append([]Message(nil), initial...)}
	return t
}

// Snapshot returns a copy of the current messages for a reader (e.g. a
// Brain) that must not observe concurrent mutation.
func (t *Trace) Snapshot() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of messages currently in the trace.
func (t *Trace) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Last returns the final message and true, or the zero value and false if
// the trace is empty.
func (t *Trace) Last() (Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.messages) == 0 {
		return Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}

// AppendUser appends a user message. Called only by the loop's command
// handlers for SendUserInput, after any in-flight work has been cancelled.
func (t *Trace) AppendUser(content string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, Message{Role: RoleUser, Content: content})
}

// Extend appends an arbitrary batch of caller-supplied messages. Called
// only by the loop's SendTrace handler.
func (t *Trace) Extend(msgs []Message) {
	if len(msgs) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, msgs...)
}

// AppendAssistant appends the brain's decision message. Called only by the
// thinker scheduler's result handler, the sole mutation point for
// assistant messages.
func (t *Trace) AppendAssistant(msg AssistantMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, Message{
		Role:      RoleAssistant,
		Content:   msg.Content,
		ToolCalls: msg.ToolCalls,
	})
}

// AppendToolResult appends a tool-result message keyed by callID. Called
// only by tool tasks, before ToolCallCompleted is published (see
// scheduler_tools.go), satisfying the decided ordering for Open Question
// (b).
func (t *Trace) AppendToolResult(callID string, result ToolResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, Message{
		Role:    RoleTool,
		Content: result.String(),
		CallID:  callID,
	})
}
