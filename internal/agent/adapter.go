package agent

import (
	"context"
	"sync"
)

// Adapter translates the internal AgentEvent stream into a protocol-
// specific representation — a line of terminal output, a websocket frame,
// a provider-shaped streaming chunk. Format returns ok=false for an event
// the adapter has nothing to say about, letting AdapterRegistry skip it
// rather than forward a zero value.
//
// Unlike a void notification hook, Format is allowed to be stateful and
// return a value: an adapter accumulating partial text across a run (to
// coalesce deltas into lines, say) keeps that state on the receiver
// between calls.
type Adapter interface {
	Format(event AgentEvent, sessionID string) (out any, ok bool)
}

// AdapterFunc adapts an ordinary function to the Adapter interface.
type AdapterFunc func(event AgentEvent, sessionID string) (any, bool)

// Format calls the function.
func (f AdapterFunc) Format(event AgentEvent, sessionID string) (any, bool) {
	return f(event, sessionID)
}

// AdapterRegistry holds a set of Adapters and dispatches each event to all
// of them in registration order. A panicking adapter is recovered and
// skipped so one
// misbehaving consumer never stops the others or the agent's own loop.
type AdapterRegistry struct {
	mu       sync.RWMutex
	adapters []Adapter
}

// NewAdapterRegistry creates an empty registry.
func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{}
}

// Use registers an adapter. Adapters are consulted in registration order.
func (r *AdapterRegistry) Use(a Adapter) {
	if a == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters = append(r.adapters, a)
}

// Count returns the number of registered adapters.
func (r *AdapterRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}

// Dispatch formats event through every registered adapter and returns the
// outputs that had something to say, in registration order.
func (r *AdapterRegistry) Dispatch(event AgentEvent, sessionID string) []any {
	r.mu.RLock()
	adapters := make([]Adapter, len(r.adapters))
	copy(adapters, r.adapters)
	r.mu.RUnlock()

	var out []any
	for _, a := range adapters {
		out = append(out, dispatchOne(a, event, sessionID)...)
	}
	return out
}

func dispatchOne(a Adapter, event AgentEvent, sessionID string) (out []any) {
	defer func() {
		if recover() != nil {
			out = nil
		}
	}()
	if v, ok := a.Format(event, sessionID); ok {
		return []any{v}
	}
	return nil
}

// RunAdapters subscribes to an agent's public event stream and feeds every
// event through registry until ctx is cancelled or the stream closes. It
// is the live-streaming counterpart to RunTrace's persisted JSONL: both
// consume the same public bus, one for external presentation (this type),
// one for durable replay (C11).
func RunAdapters(ctx context.Context, sub <-chan AgentEvent, sessionID string, registry *AdapterRegistry, sink func(any)) {
	for {
		select {
		case evt, ok := <-sub:
			if !ok {
				return
			}
			for _, out := range registry.Dispatch(evt, sessionID) {
				if sink != nil {
					sink(out)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// LineAdapter renders a minimal human-readable transcript line for a
// subset of events, the adapter a terminal-driven cmd/ consumer registers
// by default. Events with no natural line rendering yield ok=false.
type LineAdapter struct{}

// Format implements Adapter.
func (LineAdapter) Format(event AgentEvent, sessionID string) (any, bool) {
	switch e := event.(type) {
	case EventThinkingStart:
		return "thinking...", true
	case EventToolCallStarted:
		return "> " + e.Call.ToolName, true
	case EventToolCallCompleted:
		return e.Result.String(), true
	case EventUserInputRequired:
		return "? " + e.Request.Prompt, true
	case EventError:
		return "error: " + e.Message, true
	case EventCompleted:
		if e.Success {
			return "done", true
		}
		return "failed: " + e.Message, true
	default:
		return nil, false
	}
}
