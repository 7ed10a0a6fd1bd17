package agent

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsAdapter is a C9 Adapter that turns the public event stream into
// Prometheus series, grounded on the teacher's own `/metrics` instrumentation
// of its gateway request path (same counter/histogram vocabulary: total
// counts split by outcome, a duration histogram), generalized from
// per-channel message counters to per-tool-call and per-turn counters.
// Format never returns ok=true: it is a pure side-effecting observer, not a
// producer the registry should forward to a sink.
type MetricsAdapter struct {
	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
	thinks       prometheus.Counter
	brainErrors  prometheus.Counter
	tokensIn     prometheus.Counter
	tokensOut    prometheus.Counter
	permissions  *prometheus.CounterVec
	completions  *prometheus.CounterVec
}

// NewMetricsAdapter builds a MetricsAdapter and registers its collectors
// with reg. Passing a fresh prometheus.NewRegistry() keeps this agent's
// series isolated from any other Prometheus-instrumented component sharing
// the process; callers wanting the global default registry can pass
// prometheus.DefaultRegisterer instead.
func NewMetricsAdapter(reg prometheus.Registerer) *MetricsAdapter {
	m := &MetricsAdapter{
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_tool_calls_total",
			Help: "Tool calls completed, labeled by tool name and result kind.",
		}, []string{"tool", "result"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agent_tool_call_duration_seconds",
			Help:    "Tool call execution duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		thinks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agent_thinking_starts_total",
			Help: "Number of times the agent entered the thinking state.",
		}),
		brainErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agent_brain_errors_total",
			Help: "Number of BrainResult events carrying an error.",
		}),
		tokensIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agent_tokens_input_total",
			Help: "Cumulative input tokens reported by the brain.",
		}),
		tokensOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agent_tokens_output_total",
			Help: "Cumulative output tokens reported by the brain.",
		}),
		permissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_permission_requests_total",
			Help: "Permission prompts raised, labeled by tool name.",
		}, []string{"tool"}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_runs_completed_total",
			Help: "Agent runs reaching a terminal state, labeled by success.",
		}, []string{"success"}),
	}
	reg.MustRegister(m.toolCalls, m.toolDuration, m.thinks, m.brainErrors, m.tokensIn, m.tokensOut, m.permissions, m.completions)
	return m
}

// Format implements Adapter by observing each event on the matching
// collector; it never produces output for RunAdapters to forward.
func (m *MetricsAdapter) Format(event AgentEvent, sessionID string) (any, bool) {
	switch e := event.(type) {
	case EventThinkingStart:
		m.thinks.Inc()
	case EventBrainResult:
		if e.Err != nil {
			m.brainErrors.Inc()
		}
	case EventToolCallCompleted:
		result := resultKindLabel(e.Result)
		m.toolCalls.WithLabelValues(e.Call.ToolName, result).Inc()
		m.toolDuration.WithLabelValues(e.Call.ToolName).Observe(e.Duration.Seconds())
	case EventPermissionRequired:
		m.permissions.WithLabelValues(e.Request.ToolName).Inc()
	case EventTokenUsage:
		if e.Input > 0 {
			m.tokensIn.Add(float64(e.Input))
		}
		if e.Output > 0 {
			m.tokensOut.Add(float64(e.Output))
		}
	case EventCompleted:
		m.completions.WithLabelValues(boolLabel(e.Success)).Inc()
	}
	return nil, false
}

func resultKindLabel(r ToolResult) string {
	switch {
	case r.IsDenied():
		return "denied"
	case r.IsError():
		return "error"
	default:
		return "success"
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
