package agent

import (
	"context"
	"log/slog"
)

// dispatch applies an internal event to the current state and returns the
// resulting state. Every (state, event) pair not explicitly handled below
// is illegal for that state and is logged at warn then dropped — this is
// the explicit dispatch table called for in §9's late-event-filtering
// note, generalizing the one state handler kept from the original source
// (states/starting.rs) to the non-terminal states. Running has no handler
// here: the loop starts thinking as soon as it sees Running.
func (a *Agent) dispatch(ctx context.Context, state agentState, evt InternalEvent) agentState {
	switch s := state.(type) {
	case stateStarting:
		return a.dispatchStarting(ctx, s, evt)
	case stateProcessing:
		return a.dispatchProcessing(ctx, s, evt)
	case statePaused:
		return a.dispatchPaused(ctx, s, evt)
	default:
		a.ignoreEvent(state, evt)
		return state
	}
}

func (a *Agent) dispatchStarting(ctx context.Context, s stateStarting, evt InternalEvent) agentState {
	switch evt.(type) {
	case InternalAgentInitialized:
		if last, ok := a.trace.Last(); ok && last.IsUser() {
			return a.transitionTo(stateRunning{})
		}
		return a.transitionTo(statePaused{})
	default:
		a.ignoreEvent(s, evt)
		return s
	}
}

func (a *Agent) dispatchProcessing(ctx context.Context, s stateProcessing, evt InternalEvent) agentState {
	switch e := evt.(type) {
	case InternalThinkingStart:
		// Emitted for stream fidelity when a thinker task is spawned;
		// drives no transition.
		return s
	case InternalCancelTask:
		// An explicit cancel was requested concurrently with this task;
		// the command handler already performed the transition, this
		// copy is purely an out-of-band notification for any other
		// subscriber (e.g. a tool task's permission wait) and is a no-op
		// here.
		return s
	case InternalBrainResult:
		return a.handleBrainResult(ctx, s, e)
	case InternalToolsCompleted:
		return a.handleToolsCompleted(ctx, s, e)
	default:
		a.ignoreEvent(s, evt)
		return s
	}
}

func (a *Agent) dispatchPaused(ctx context.Context, s statePaused, evt InternalEvent) agentState {
	a.ignoreEvent(s, evt)
	return s
}

// handleBrainResult is the sole mutation point for assistant messages
// (§9 trace mutation discipline).
func (a *Agent) handleBrainResult(ctx context.Context, s stateProcessing, e InternalBrainResult) agentState {
	if e.Err != nil {
		a.publicBus.Publish(EventBrainResult{Err: e.Err})
		return a.transitionTo(statePaused{})
	}

	a.trace.AppendAssistant(e.Decision.Message)
	a.publicBus.Publish(EventBrainResult{Decision: &e.Decision})
	if e.Decision.TokenUsage != nil {
		a.publicBus.Publish(EventTokenUsage{
			Input:  e.Decision.TokenUsage.InputTokens,
			Output: e.Decision.TokenUsage.OutputTokens,
		})
	}

	if e.Decision.Message.HasToolCalls() {
		return a.startToolBatch(ctx, e.Decision.Message.ToolCalls)
	}
	if e.Decision.Flow == FlowContinue {
		return a.transitionTo(stateRunning{})
	}
	return a.transitionTo(statePaused{})
}

func (a *Agent) handleToolsCompleted(ctx context.Context, s stateProcessing, e InternalToolsCompleted) agentState {
	if e.AnyDenied {
		return a.transitionTo(statePaused{})
	}
	return a.transitionTo(stateRunning{})
}

func (a *Agent) ignoreEvent(state agentState, evt InternalEvent) {
	slog.Warn("ignoring internal event illegal for current state",
		"state", state.public().String(),
		"event", internalEventTypeName(evt))
}

func internalEventTypeName(evt InternalEvent) string {
	switch evt.(type) {
	case InternalAgentInitialized:
		return "AgentInitialized"
	case InternalCancelTask:
		return "CancelTask"
	case InternalThinkingStart:
		return "ThinkingStart"
	case InternalBrainResult:
		return "BrainResult"
	case InternalToolsCompleted:
		return "ToolsCompleted"
	case InternalUserResponseReceived:
		return "UserResponseReceived"
	case InternalPermissionResponseReceived:
		return "PermissionResponseReceived"
	default:
		return "unknown"
	}
}
