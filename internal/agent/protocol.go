package agent

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// replyTimeout bounds how long AgentController.send waits for the loop to
// answer before giving up, per the 1-second client-side timeout in §5.
const replyTimeout = 1 * time.Second

// AgentRequest is the sealed interface for every command a controller can
// submit to the loop.
type AgentRequest interface {
	agentRequest()
}

type ReqGetState struct{}
type ReqSendUserInput struct{ Text string }
type ReqSendTrace struct{ Messages []Message }
type ReqStopCurrentTask struct{}
type ReqTerminate struct{}

// ReqSudo sets sudo when Value is non-nil, or queries it when nil.
type ReqSudo struct{ Value *bool }

// ReqSwitchToolCallMethod sets the method when Value is non-nil, or
// queries it when nil.
type ReqSwitchToolCallMethod struct{ Value *ToolCallMethod }

type ReqUserQueryResponse struct {
	ID       string
	Response UserResponse
}
type ReqUserPermissionResponse struct {
	ID       string
	Response PermissionResponse
}

// ReqWaitTurn replies only once the agent reaches Paused (or a terminal
// state, with an error reply). Timeout is optional (zero means no limit).
type ReqWaitTurn struct{ Timeout time.Duration }

type ReqDropping struct{}

func (ReqGetState) agentRequest()               {}
func (ReqSendUserInput) agentRequest()           {}
func (ReqSendTrace) agentRequest()               {}
func (ReqStopCurrentTask) agentRequest()         {}
func (ReqTerminate) agentRequest()               {}
func (ReqSudo) agentRequest()                    {}
func (ReqSwitchToolCallMethod) agentRequest()    {}
func (ReqUserQueryResponse) agentRequest()       {}
func (ReqUserPermissionResponse) agentRequest()  {}
func (ReqWaitTurn) agentRequest()                {}
func (ReqDropping) agentRequest()                {}

// AgentResponse is the sealed interface for every reply the loop sends
// back on a command's backchannel.
type AgentResponse interface {
	agentResponse()
}

type RespAck struct{}
type RespState struct{ State AgentState }
type RespSudoStatus struct{ Enabled bool }
type RespMethod struct{ Method ToolCallMethod }
type RespError struct{ Err error }

func (RespAck) agentResponse()        {}
func (RespState) agentResponse()      {}
func (RespSudoStatus) agentResponse() {}
func (RespMethod) agentResponse()     {}
func (RespError) agentResponse()      {}

// sentCommand pairs a request with the one-shot channel its reply is
// delivered on, the Go analogue of a oneshot sender paired with an
// unbounded mpsc command queue.
type sentCommand struct {
	request     AgentRequest
	backchannel chan AgentResponse
}

// AgentController is a cheaply-clonable handle for driving one agent. The
// agent supports multiple concurrent controllers; Drop decrements a live
// count the loop consults for the Paused→Completed{true} shortcut.
type AgentController struct {
	txcmd   chan<- sentCommand
	live    *int32
	liveMu  *sync.Mutex
	closed  *int32
	dropped bool
}

func newController(txcmd chan<- sentCommand, live *int32, liveMu *sync.Mutex, closed *int32) *AgentController {
	liveMu.Lock()
	*live++
	liveMu.Unlock()
	return &AgentController{txcmd: txcmd, live: live, liveMu: liveMu, closed: closed}
}

// Clone returns a new controller handle sharing the same underlying agent
// and live-count, mirroring the Rust controller's cheap-clone semantics.
func (c *AgentController) Clone() *AgentController {
	return newController(c.txcmd, c.live, c.liveMu, c.closed)
}

// Drop releases this controller's share of the live-handle count. It is
// safe to call at most meaningfully once; subsequent calls are no-ops.
func (c *AgentController) Drop() {
	if c.dropped {
		return
	}
	c.dropped = true
	c.liveMu.Lock()
	*c.live--
	c.liveMu.Unlock()
}

// send submits req and waits up to replyTimeout for a reply, or returns
// ErrReplyTimeout. If the command intake is closed, returns
// ErrSessionClosed immediately.
func (c *AgentController) send(ctx context.Context, req AgentRequest) (AgentResponse, error) {
	if atomic.LoadInt32(c.closed) == 1 {
		return nil, ErrSessionClosed
	}
	reply := make(chan AgentResponse, 1)
	timer := time.NewTimer(replyTimeout)
	defer timer.Stop()

	select {
	case c.txcmd <- sentCommand{request: req, backchannel: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrSessionClosed
	}

	select {
	case resp, ok := <-reply:
		if !ok {
			return nil, ErrSessionClosed
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrReplyTimeout
	}
}

// GetState returns the agent's current public state.
func (c *AgentController) GetState(ctx context.Context) (AgentState, error) {
	resp, err := c.send(ctx, ReqGetState{})
	if err != nil {
		return 0, err
	}
	if s, ok := resp.(RespState); ok {
		return s.State, nil
	}
	return 0, NewAgentError(KindInvalidResponse, "unexpected reply to GetState", nil)
}

// SendUserInput cancels in-flight work, appends a user message, and moves
// the agent to Running.
func (c *AgentController) SendUserInput(ctx context.Context, text string) error {
	_, err := c.send(ctx, ReqSendUserInput{Text: text})
	return err
}

// SendTrace cancels in-flight work, extends the trace, and moves the
// agent to Running.
func (c *AgentController) SendTrace(ctx context.Context, msgs []Message) error {
	_, err := c.send(ctx, ReqSendTrace{Messages: msgs})
	return err
}

// StopCurrentTask cancels in-flight work and moves the agent to Paused.
func (c *AgentController) StopCurrentTask(ctx context.Context) error {
	_, err := c.send(ctx, ReqStopCurrentTask{})
	return err
}

// Terminate cancels in-flight work and moves the agent to a terminal
// Completed{success=false} state.
func (c *AgentController) Terminate(ctx context.Context) error {
	_, err := c.send(ctx, ReqTerminate{})
	return err
}

// SetMethod sets the active tool-call method.
func (c *AgentController) SetMethod(ctx context.Context, method ToolCallMethod) error {
	m := method
	_, err := c.send(ctx, ReqSwitchToolCallMethod{Value: &m})
	return err
}

// GetMethod queries the active tool-call method.
func (c *AgentController) GetMethod(ctx context.Context) (ToolCallMethod, error) {
	resp, err := c.send(ctx, ReqSwitchToolCallMethod{})
	if err != nil {
		return "", err
	}
	if m, ok := resp.(RespMethod); ok {
		return m.Method, nil
	}
	return "", NewAgentError(KindInvalidResponse, "unexpected reply to SwitchToolCallMethod", nil)
}

// ResponseUserQuery delivers an answer to a pending UserInputRequired.
func (c *AgentController) ResponseUserQuery(ctx context.Context, id string, resp UserResponse) error {
	_, err := c.send(ctx, ReqUserQueryResponse{ID: id, Response: resp})
	return err
}

// ResponsePermissionRequest delivers an answer to a pending
// PermissionRequired.
func (c *AgentController) ResponsePermissionRequest(ctx context.Context, id string, resp PermissionResponse) error {
	_, err := c.send(ctx, ReqUserPermissionResponse{ID: id, Response: resp})
	return err
}

// Sudo enables the global permission bypass.
func (c *AgentController) Sudo(ctx context.Context) error {
	v := true
	_, err := c.send(ctx, ReqSudo{Value: &v})
	return err
}

// NoSudo disables the global permission bypass.
func (c *AgentController) NoSudo(ctx context.Context) error {
	v := false
	_, err := c.send(ctx, ReqSudo{Value: &v})
	return err
}

// IsSudo queries whether the global permission bypass is enabled.
func (c *AgentController) IsSudo(ctx context.Context) (bool, error) {
	resp, err := c.send(ctx, ReqSudo{})
	if err != nil {
		return false, err
	}
	if s, ok := resp.(RespSudoStatus); ok {
		return s.Enabled, nil
	}
	return false, NewAgentError(KindInvalidResponse, "unexpected reply to Sudo query", nil)
}

// WaitTurn blocks until the agent reaches Paused (returning nil) or a
// terminal state (returning an error). A zero timeout means wait
// indefinitely (bounded only by ctx).
func (c *AgentController) WaitTurn(ctx context.Context, timeout time.Duration) error {
	reply := make(chan AgentResponse, 1)
	select {
	case c.txcmd <- sentCommand{request: ReqWaitTurn{Timeout: timeout}, backchannel: reply}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case resp, ok := <-reply:
		if !ok {
			return ErrSessionClosed
		}
		if e, ok := resp.(RespError); ok {
			return e.Err
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropping closes the agent's command intake: this call's Ack is the last
// reply any controller will ever receive, and every subsequent send (from
// this or any other controller) fails immediately with ErrSessionClosed
// instead of waiting out the reply timeout.
func (c *AgentController) Dropping(ctx context.Context) error {
	_, err := c.send(ctx, ReqDropping{})
	return err
}

// newRequestID generates an id for a pending user/permission request.
func newRequestID() string { return uuid.NewString() }
