package agent

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// AgentConfig is the configuration side-channel a caller assembles to
// construct an agent: a brain, a tool list, the initial trace, and the
// starting tool-call method. The core never parses configuration files
// itself — that remains an external collaborator's job (see cmd/ for an
// example that does).
type AgentConfig struct {
	ID           string
	InitialTrace []Message
	Brain        Brain
	Tools        []AnyTool
	Method       ToolCallMethod
	Sudo         bool
	// ResultGuard redacts/truncates tool result text before it is
	// appended to the trace or observed by an Adapter (C9) or RunTrace
	// (C11). The zero value is inactive.
	ResultGuard ToolResultGuard
}

// AgentResult is returned by Run once the agent reaches a terminal state.
type AgentResult struct {
	Success bool
	Trace   []Message
}

// Agent is the long-lived stateful actor: one goroutine runs its Run
// loop for the agent's entire lifetime, multiplexing the command channel
// and the internal event bus exactly per §4.8's pseudo-algorithm.
type Agent struct {
	id     string
	trace  *Trace
	claims *ClaimManager
	brain  Brain
	tools  *ToolRegistry
	method ToolCallMethod
	guard  ToolResultGuard

	state agentState

	publicBus   *PublicEventBus
	internalBus *internalEventBus

	cmdCh  chan sentCommand
	closed int32 // atomic: 1 once Droping has been handled or Run has returned

	live   int32
	liveMu sync.Mutex

	runCtx context.Context
}

const cmdChanBuffer = 64

// NewAgent constructs an agent in the Starting state. Call Controller to
// obtain a handle before calling Run, since Run consumes the live-handle
// count to decide the Paused→Completed{true} shortcut.
func NewAgent(cfg AgentConfig) *Agent {
	claims := NewClaimManager()
	if cfg.Sudo {
		claims.Sudo()
	}
	registry := NewToolRegistry()
	for _, t := range cfg.Tools {
		registry.Register(t)
	}
	method := cfg.Method
	if method == "" {
		method = MethodFunctionCall
	}
	return &Agent{
		id:          cfg.ID,
		trace:       NewTrace(cfg.InitialTrace),
		claims:      claims,
		brain:       cfg.Brain,
		tools:       registry,
		method:      method,
		guard:       cfg.ResultGuard,
		state:       stateStarting{},
		publicBus:   NewPublicEventBus(),
		internalBus: newInternalEventBus(),
		cmdCh:       make(chan sentCommand, cmdChanBuffer),
	}
}

// ID returns the agent's session identity, stable for its lifetime.
func (a *Agent) ID() string { return a.id }

// Claims exposes the agent's permission-claim manager so an external
// ApprovalPolicy (C12) can pre-populate grants before Run starts. The
// core's own gate (scheduler_tools.go's gateToolCall) remains the only
// consumer of IsPermitted; a policy can only ever widen what is granted,
// never bypass that check.
func (a *Agent) Claims() *ClaimManager { return a.claims }

// Tools exposes the agent's tool registry, read-only from a caller's
// perspective (Register is still reachable, but calling it after Run has
// started races the scheduler's own reads — callers should register every
// tool up front via AgentConfig.Tools instead and use this accessor only
// to enumerate what is already registered, e.g. for an ApprovalPolicy).
func (a *Agent) Tools() *ToolRegistry { return a.tools }

// Controller returns a new cheaply-clonable handle for driving this agent.
func (a *Agent) Controller() *AgentController {
	return newController(a.cmdCh, &a.live, &a.liveMu, &a.closed)
}

// Subscribe attaches a new public-event listener.
func (a *Agent) Subscribe() (int, <-chan AgentEvent) {
	return a.publicBus.Subscribe()
}

// Unsubscribe detaches a previously attached listener.
func (a *Agent) Unsubscribe(id int) {
	a.publicBus.Unsubscribe(id)
}

func (a *Agent) liveControllers() int32 {
	a.liveMu.Lock()
	defer a.liveMu.Unlock()
	return a.live
}

// transitionTo emits StatusChanged (old state → new state) before
// assigning the new state, per O3: any event produced under the new state
// must be preceded by its StatusChanged.
func (a *Agent) transitionTo(s agentState) agentState {
	a.publicBus.Publish(EventStatusChanged{Old: a.state.public(), New: s.public()})
	a.state = s
	return s
}

// startToolBatch spawns the tool scheduler for one assistant turn and
// returns the new Processing state carrying its cancellation handle.
func (a *Agent) startToolBatch(ctx context.Context, calls []ToolCall) agentState {
	taskCtx, cancel := context.WithCancel(ctx)
	deps := toolTaskDeps{
		registry:    a.tools,
		claims:      a.claims,
		trace:       a.trace,
		publicBus:   a.publicBus,
		internalBus: a.internalBus,
		guard:       a.guard,
	}
	spawnToolBatch(taskCtx, calls, deps)
	return a.transitionTo(stateProcessing{taskName: "tools", startedAt: time.Now(), cancel: cancel})
}

// startThinking spawns the thinker scheduler and returns the new
// Processing state.
func (a *Agent) startThinking(ctx context.Context) agentState {
	taskCtx, cancel := context.WithCancel(ctx)
	tc := ThinkerContext{Trace: a.trace, AvailableTools: a.tools.List(), Method: a.method}
	a.publicBus.Publish(EventThinkingStart{})
	a.internalBus.send(ctx, InternalThinkingStart{})
	spawnBrainTask(taskCtx, a.brain, tc, a.internalBus)
	return a.transitionTo(stateProcessing{taskName: "thinker", startedAt: time.Now(), cancel: cancel})
}

// cancelInFlight fires the current state's cancellation handle (a no-op
// unless the state is Processing) and broadcasts CancelTask so any
// permission-wait in progress ends immediately instead of waiting on
// context propagation.
func (a *Agent) cancelInFlight(ctx context.Context) {
	cancelIfProcessing(a.state)
	a.internalBus.send(ctx, InternalCancelTask{})
}

// Run is the main loop. It blocks until the agent reaches a terminal
// state, returning the final trace on success or the failure error.
func (a *Agent) Run(ctx context.Context) (*AgentResult, error) {
	a.runCtx = ctx
	// Once Run returns nothing reads the command channel, so every later
	// controller send fails at once with ErrSessionClosed.
	defer atomic.StoreInt32(&a.closed, 1)
	subID, subCh := a.internalBus.subscribe()
	defer a.internalBus.unsubscribe(subID)

	a.state = a.dispatch(ctx, a.state, InternalAgentInitialized{})

	for {
		if _, paused := a.state.(statePaused); paused && a.liveControllers() == 0 {
			a.state = a.transitionTo(stateCompleted{success: true})
		}

		switch s := a.state.(type) {
		case stateCompleted:
			a.publicBus.Publish(EventCompleted{Success: s.success})
			return &AgentResult{Success: s.success, Trace: a.trace.Snapshot()}, nil
		case stateFailed:
			a.publicBus.Publish(EventError{Message: s.err.Error()})
			return nil, s.err
		}

		if _, running := a.state.(stateRunning); running {
			select {
			case cmd := <-a.cmdCh:
				a.handleCommand(ctx, cmd)
				continue
			default:
			}
			a.state = a.startThinking(ctx)
			continue
		}

		select {
		case cmd := <-a.cmdCh:
			a.handleCommand(ctx, cmd)
		case evt, ok := <-subCh:
			if !ok {
				return nil, NewAgentError(KindInvalidState, "internal event bus closed unexpectedly", nil)
			}
			a.state = a.dispatch(ctx, a.state, evt)
		case <-ctx.Done():
			a.cancelInFlight(ctx)
			a.state = a.transitionTo(stateCompleted{success: false})
		}
	}
}

func reply(bc chan AgentResponse, r AgentResponse) {
	select {
	case bc <- r:
	default:
	}
}

func (a *Agent) handleCommand(ctx context.Context, cmd sentCommand) {
	switch req := cmd.request.(type) {
	case ReqGetState:
		reply(cmd.backchannel, RespState{State: a.state.public()})

	case ReqSendUserInput:
		a.cancelInFlight(ctx)
		a.trace.AppendUser(req.Text)
		a.publicBus.Publish(EventUserInput{Text: req.Text})
		a.state = a.transitionTo(stateRunning{})
		reply(cmd.backchannel, RespAck{})

	case ReqSendTrace:
		a.cancelInFlight(ctx)
		a.trace.Extend(req.Messages)
		a.state = a.transitionTo(stateRunning{})
		reply(cmd.backchannel, RespAck{})

	case ReqStopCurrentTask:
		a.cancelInFlight(ctx)
		a.state = a.transitionTo(statePaused{})
		reply(cmd.backchannel, RespAck{})

	case ReqTerminate:
		a.cancelInFlight(ctx)
		a.state = a.transitionTo(stateCompleted{success: false})
		reply(cmd.backchannel, RespAck{})

	case ReqSudo:
		if req.Value != nil {
			if *req.Value {
				a.claims.Sudo()
			} else {
				a.claims.NoSudo()
			}
		}
		reply(cmd.backchannel, RespSudoStatus{Enabled: a.claims.IsSudo()})

	case ReqSwitchToolCallMethod:
		if req.Value != nil {
			a.method = *req.Value
		}
		reply(cmd.backchannel, RespMethod{Method: a.method})

	case ReqUserQueryResponse:
		a.internalBus.send(ctx, InternalUserResponseReceived{ID: req.ID, Response: req.Response})
		reply(cmd.backchannel, RespAck{})

	case ReqUserPermissionResponse:
		a.internalBus.send(ctx, InternalPermissionResponseReceived{ID: req.ID, Response: req.Response})
		reply(cmd.backchannel, RespAck{})

	case ReqWaitTurn:
		a.spawnWaitTurn(ctx, req.Timeout, cmd.backchannel)

	case ReqDropping:
		atomic.StoreInt32(&a.closed, 1)
		reply(cmd.backchannel, RespAck{})

	default:
		reply(cmd.backchannel, RespError{Err: NewAgentError(KindInvalidState, "unrecognized command", nil)})
	}
}

// spawnWaitTurn is the detached task serving WaitTurn: it subscribes to
// public events and replies once the agent reaches Paused (an Ack) or a
// terminal state (an error reply), satisfying O4 (reply arrives no earlier
// than the StatusChanged that reaches Paused/terminal) without blocking the
// main loop.
func (a *Agent) spawnWaitTurn(ctx context.Context, timeout time.Duration, bc chan AgentResponse) {
	terminalErr := RespError{Err: NewAgentError(KindSessionClosed, "agent reached a terminal state before WaitTurn condition", nil)}
	if s, ok := a.currentPublicStateLocked(); ok {
		switch s {
		case PublicPaused:
			reply(bc, RespAck{})
			return
		case PublicCompleted, PublicFailed:
			reply(bc, terminalErr)
			return
		}
	}
	id, ch := a.publicBus.Subscribe()
	go func() {
		defer a.publicBus.Unsubscribe(id)
		var timeoutCh <-chan time.Time
		if timeout > 0 {
			timer := time.NewTimer(timeout)
			defer timer.Stop()
			timeoutCh = timer.C
		}
		for {
			select {
			case evt, ok := <-ch:
				if !ok {
					reply(bc, RespError{Err: NewAgentError(KindSessionClosed, "agent stopped before WaitTurn condition", nil)})
					return
				}
				if sc, ok := evt.(EventStatusChanged); ok {
					switch sc.New {
					case PublicPaused:
						reply(bc, RespAck{})
						return
					case PublicCompleted, PublicFailed:
						reply(bc, terminalErr)
						return
					}
				}
			case <-timeoutCh:
				reply(bc, RespError{Err: ErrReplyTimeout})
				return
			case <-ctx.Done():
				reply(bc, RespError{Err: ctx.Err()})
				return
			}
		}
	}()
}

// currentPublicStateLocked is a best-effort read of the state at the
// moment WaitTurn is handled; handleCommand always runs on the loop
// goroutine so no lock is needed here.
func (a *Agent) currentPublicStateLocked() (AgentState, bool) {
	return a.state.public(), true
}
