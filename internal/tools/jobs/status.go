package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/jobs"
)

// StatusParams are the parameters accepted by StatusTool.
type StatusParams struct {
	JobID string `json:"job_id"`
}

// StatusTool implements agent.Tool[StatusParams], exposing job status via
// tool call.
type StatusTool struct {
	store jobs.Store
}

// NewStatusTool returns a job status tool.
func NewStatusTool(store jobs.Store) *StatusTool {
	return &StatusTool{store: store}
}

func (t *StatusTool) Name() string { return "job_status" }

func (t *StatusTool) Description() string {
	return "Fetch job status/result by job_id"
}

func (t *StatusTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"job_id":{"type":"string"}},"required":["job_id"]}`)
}

// Capabilities reports job_status as read-only.
func (t *StatusTool) Capabilities() []agent.ToolCapability {
	return []agent.ToolCapability{agent.CapabilityRead}
}

// Preview is not supported; the store lookup has no side effects worth
// hiding behind a permission gate in the first place.
func (t *StatusTool) Preview(ctx context.Context, params StatusParams) (agent.ToolResult, bool) {
	return agent.ToolResult{}, false
}

func (t *StatusTool) Execute(ctx context.Context, input StatusParams) (agent.ToolResult, error) {
	if t.store == nil {
		return agent.ToolErrorResult("job store unavailable", nil), nil
	}
	if input.JobID == "" {
		return agent.ToolResult{}, fmt.Errorf("job_id is required")
	}
	job, err := t.store.Get(ctx, input.JobID)
	if err != nil {
		return agent.ToolResult{}, err
	}
	if job == nil {
		return agent.ToolErrorResult("job not found", nil), nil
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return agent.ToolResult{}, err
	}
	return agent.ToolSuccess(string(payload), nil), nil
}
