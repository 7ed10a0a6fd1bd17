package agent

import (
	"context"
	"sync"

	"github.com/haasonsaas/nexus/internal/observability"
	"go.opentelemetry.io/otel/trace"
)

// TracingAdapter is a C9 Adapter that turns the public event stream into
// OpenTelemetry spans, grounded on the teacher's own Tracer.TraceLLMRequest/
// TraceToolExecution helpers: one span per brain think, one span per tool
// call. The agent has at most one think in flight at a time, so the think
// span is tracked in a single field; tool calls run concurrently, so those
// are tracked in a map keyed by CallID. Format never returns ok=true: like
// MetricsAdapter, this is a pure side-effecting observer.
type TracingAdapter struct {
	tracer   *observability.Tracer
	provider string
	model    string

	mu        sync.Mutex
	thinkSpan trace.Span
	toolSpans map[string]trace.Span
}

// NewTracingAdapter builds a TracingAdapter over an already-constructed
// Tracer. provider/model label the think span; they describe the agent's
// configured brain, not any one decision.
func NewTracingAdapter(tracer *observability.Tracer, provider, model string) *TracingAdapter {
	return &TracingAdapter{
		tracer:    tracer,
		provider:  provider,
		model:     model,
		toolSpans: make(map[string]trace.Span),
	}
}

// Format implements Adapter by starting/ending spans around the thinking
// and tool-call phases of a run.
func (t *TracingAdapter) Format(event AgentEvent, sessionID string) (any, bool) {
	switch e := event.(type) {
	case EventThinkingStart:
		_, span := t.tracer.TraceLLMRequest(context.Background(), t.provider, t.model)
		t.tracer.SetAttributes(span, "session_id", sessionID)
		t.mu.Lock()
		t.thinkSpan = span
		t.mu.Unlock()

	case EventBrainResult:
		t.mu.Lock()
		span := t.thinkSpan
		t.thinkSpan = nil
		t.mu.Unlock()
		if span == nil {
			break
		}
		if e.Err != nil {
			t.tracer.RecordError(span, e.Err)
		}
		span.End()

	case EventToolCallStarted:
		_, span := t.tracer.TraceToolExecution(context.Background(), e.Call.ToolName, e.Call.CallID)
		t.tracer.SetAttributes(span, "session_id", sessionID)
		t.mu.Lock()
		t.toolSpans[e.Call.CallID] = span
		t.mu.Unlock()

	case EventToolCallCompleted:
		t.mu.Lock()
		span, ok := t.toolSpans[e.Call.CallID]
		delete(t.toolSpans, e.Call.CallID)
		t.mu.Unlock()
		if !ok {
			break
		}
		if e.Result.IsError() {
			t.tracer.SetAttributes(span, "tool.result", "error", "tool.message", e.Result.Message)
		} else if e.Result.IsDenied() {
			t.tracer.SetAttributes(span, "tool.result", "denied")
		} else {
			t.tracer.SetAttributes(span, "tool.result", "success")
		}
		span.End()
	}
	return nil, false
}
