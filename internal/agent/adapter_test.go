package agent

import (
	"testing"
)

func TestLineAdapter_Format(t *testing.T) {
	tests := []struct {
		name  string
		event AgentEvent
		want  string
	}{
		{"thinking", EventThinkingStart{}, "thinking..."},
		{"tool started", EventToolCallStarted{Call: ToolCall{ToolName: "exec"}}, "> exec"},
		{"tool completed", EventToolCallCompleted{Result: ToolSuccess("ok", nil)}, "ok"},
		{"completed success", EventCompleted{Success: true}, "done"},
		{"completed failure", EventCompleted{Success: false, Message: "boom"}, "failed: boom"},
		{"error", EventError{Message: "oops"}, "error: oops"},
	}

	var a LineAdapter
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, ok := a.Format(tt.event, "session-1")
			if !ok {
				t.Fatalf("Format() ok = false, want true")
			}
			if out != tt.want {
				t.Errorf("Format() = %q, want %q", out, tt.want)
			}
		})
	}
}

func TestLineAdapter_UnhandledEvent(t *testing.T) {
	var a LineAdapter
	_, ok := a.Format(EventTokenUsage{Input: 1, Output: 2}, "session-1")
	if ok {
		t.Error("Format() ok = true for an event LineAdapter has no rendering for")
	}
}

func TestAdapterRegistry_DispatchOrderAndSkip(t *testing.T) {
	registry := NewAdapterRegistry()
	registry.Use(LineAdapter{})
	registry.Use(AdapterFunc(func(e AgentEvent, sessionID string) (any, bool) {
		return "second:" + sessionID, true
	}))

	out := registry.Dispatch(EventThinkingStart{}, "sess")
	if len(out) != 2 {
		t.Fatalf("Dispatch() returned %d outputs, want 2", len(out))
	}
	if out[0] != "thinking..." || out[1] != "second:sess" {
		t.Errorf("Dispatch() = %v, want [thinking... second:sess]", out)
	}
}

func TestAdapterRegistry_SkipsUnhandledAndNilAdapter(t *testing.T) {
	registry := NewAdapterRegistry()
	registry.Use(nil)
	registry.Use(LineAdapter{})

	out := registry.Dispatch(EventTokenUsage{}, "sess")
	if len(out) != 0 {
		t.Errorf("Dispatch() = %v, want empty", out)
	}
	if registry.Count() != 1 {
		t.Errorf("Count() = %d, want 1 (nil adapter should not register)", registry.Count())
	}
}

func TestAdapterRegistry_RecoversPanickingAdapter(t *testing.T) {
	registry := NewAdapterRegistry()
	registry.Use(AdapterFunc(func(e AgentEvent, sessionID string) (any, bool) {
		panic("boom")
	}))
	registry.Use(LineAdapter{})

	out := registry.Dispatch(EventThinkingStart{}, "sess")
	if len(out) != 1 || out[0] != "thinking..." {
		t.Errorf("Dispatch() = %v, want [thinking...] (panicking adapter should be skipped)", out)
	}
}

func TestRunAdapters_FeedsDispatchUntilChannelCloses(t *testing.T) {
	ch := make(chan AgentEvent, 4)
	ch <- EventThinkingStart{}
	ch <- EventCompleted{Success: true}
	close(ch)

	registry := NewAdapterRegistry()
	registry.Use(LineAdapter{})

	var got []any
	RunAdapters(t.Context(), ch, "sess", registry, func(v any) {
		got = append(got, v)
	})

	if len(got) != 2 || got[0] != "thinking..." || got[1] != "done" {
		t.Errorf("RunAdapters() collected = %v, want [thinking... done]", got)
	}
}
