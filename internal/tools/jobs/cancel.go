package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/jobs"
)

// CancelParams are the parameters accepted by CancelTool.
type CancelParams struct {
	JobID string `json:"job_id"`
}

// CancelTool implements agent.Tool[CancelParams], cancelling a running job.
type CancelTool struct {
	store jobs.Store
}

// NewCancelTool returns a job cancel tool.
func NewCancelTool(store jobs.Store) *CancelTool {
	return &CancelTool{store: store}
}

func (t *CancelTool) Name() string { return "job_cancel" }

func (t *CancelTool) Description() string {
	return "Cancel a running async job by job_id"
}

func (t *CancelTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"job_id":{"type":"string","description":"The ID of the job to cancel"}},"required":["job_id"]}`)
}

// Capabilities reports job_cancel as a write: it mutates job state.
func (t *CancelTool) Capabilities() []agent.ToolCapability {
	return []agent.ToolCapability{agent.CapabilityWrite}
}

// Preview reports the job's current status without cancelling it.
func (t *CancelTool) Preview(ctx context.Context, params CancelParams) (agent.ToolResult, bool) {
	if t.store == nil || params.JobID == "" {
		return agent.ToolResult{}, false
	}
	job, err := t.store.Get(ctx, params.JobID)
	if err != nil || job == nil {
		return agent.ToolResult{}, false
	}
	return agent.ToolSuccess(fmt.Sprintf("job %s is currently %s", params.JobID, job.Status), nil), true
}

func (t *CancelTool) Execute(ctx context.Context, input CancelParams) (agent.ToolResult, error) {
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
	if job.Status.Terminal() {
		return agent.ToolErrorResult(fmt.Sprintf("job cannot be cancelled (status: %s)", job.Status), nil), nil
	}

	if err := t.store.Cancel(ctx, input.JobID); err != nil {
		return agent.ToolResult{}, err
	}

	return agent.ToolSuccess(fmt.Sprintf("Job %s cancelled successfully", input.JobID), nil), nil
}

// ListParams are the parameters accepted by ListTool.
type ListParams struct {
	Limit  int    `json:"limit,omitempty"`
	Status string `json:"status,omitempty"`
}

// ListTool implements agent.Tool[ListParams], listing jobs with optional
// filtering.
type ListTool struct {
	store jobs.Store
}

// NewListTool returns a job list tool.
func NewListTool(store jobs.Store) *ListTool {
	return &ListTool{store: store}
}

func (t *ListTool) Name() string { return "job_list" }

func (t *ListTool) Description() string {
	return "List recent async jobs with optional filtering"
}

func (t *ListTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"limit":{"type":"integer","description":"Max number of jobs to return (default 10)","default":10},"status":{"type":"string","description":"Filter by status: queued, running, succeeded, failed"}}}`)
}

// Capabilities reports job_list as read-only.
func (t *ListTool) Capabilities() []agent.ToolCapability {
	return []agent.ToolCapability{agent.CapabilityRead}
}

// Preview is not supported; listing has no side effects to hide.
func (t *ListTool) Preview(ctx context.Context, params ListParams) (agent.ToolResult, bool) {
	return agent.ToolResult{}, false
}

func (t *ListTool) Execute(ctx context.Context, input ListParams) (agent.ToolResult, error) {
	if t.store == nil {
		return agent.ToolErrorResult("job store unavailable", nil), nil
	}
	if input.Limit <= 0 {
		input.Limit = 10
	}

	jobList, err := t.store.List(ctx, input.Limit, 0)
	if err != nil {
		return agent.ToolResult{}, err
	}

	// Filter by status if specified
	if input.Status != "" {
		filtered := make([]*jobs.Job, 0)
		targetStatus := jobs.Status(input.Status)
		for _, j := range jobList {
			if j.Status == targetStatus {
				filtered = append(filtered, j)
			}
		}
		jobList = filtered
	}

	if len(jobList) == 0 {
		return agent.ToolSuccess("no jobs found", nil), nil
	}

	payload, err := json.Marshal(jobList)
	if err != nil {
		return agent.ToolResult{}, err
	}
	return agent.ToolSuccess(string(payload), nil), nil
}
