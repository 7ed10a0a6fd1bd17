package agent

import (
	"context"
	"time"
)

// agentState is the sealed interface for the internal state machine.
// Represented as a tagged union via per-variant structs rather than a flat
// enum with a side table, so that Processing's cancellation handle and
// task name travel with the state value itself.
type agentState interface {
	agentState()
	// public projects this internal state onto the smaller public
	// AgentState enum observers see.
	public() AgentState
}

type stateStarting struct{}

type stateRunning struct{}

// stateProcessing carries the cancellation handle for whichever task
// (thinker or tool batch) is currently in flight, plus a label describing
// it for logging/diagnostics.
type stateProcessing struct {
	taskName  string
	startedAt time.Time
	cancel    context.CancelFunc
}

type statePaused struct{}

type stateCompleted struct{ success bool }

type stateFailed struct{ err error }

func (stateStarting) agentState()   {}
func (stateRunning) agentState()    {}
func (stateProcessing) agentState() {}
func (statePaused) agentState()     {}
func (stateCompleted) agentState()  {}
func (stateFailed) agentState()     {}

func (stateStarting) public() AgentState   { return PublicStarting }
func (stateRunning) public() AgentState    { return PublicRunning }
func (stateProcessing) public() AgentState { return PublicProcessing }
func (statePaused) public() AgentState     { return PublicPaused }
func (stateCompleted) public() AgentState  { return PublicCompleted }
func (stateFailed) public() AgentState     { return PublicFailed }

// cancelIfProcessing fires the state's cancellation handle, if it carries
// one. Safe to call on any state.
func cancelIfProcessing(s agentState) {
	if p, ok := s.(stateProcessing); ok && p.cancel != nil {
		p.cancel()
	}
}
