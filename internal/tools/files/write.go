package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/haasonsaas/nexus/internal/agent"
)

// WriteParams are the parameters accepted by WriteTool.
type WriteParams struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Append  bool   `json:"append,omitempty"`
}

// WriteTool writes or appends file content inside the workspace, creating
// parent directories as needed.
type WriteTool struct {
	resolver Resolver
}

// NewWriteTool creates a write tool scoped to the workspace.
func NewWriteTool(cfg Config) *WriteTool {
	return &WriteTool{resolver: Resolver{Root: cfg.Workspace}}
}

func (t *WriteTool) Name() string { return "write" }

func (t *WriteTool) Description() string {
	return "Write content to a file in the workspace (overwrites by default)."
}

func (t *WriteTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Path to write (relative to workspace)."},
			"content": {"type": "string", "description": "File contents to write."},
			"append": {"type": "boolean", "description": "Append instead of overwrite (default: false)."}
		},
		"required": ["path", "content"]
	}`)
}

// Capabilities reports write as a filesystem write, requiring permission
// unless the agent has been granted sudo or a standing claim.
func (t *WriteTool) Capabilities() []agent.ToolCapability {
	return []agent.ToolCapability{agent.CapabilityWrite}
}

// Preview has no dry-run mode: writing is the only way to know it succeeds.
func (t *WriteTool) Preview(ctx context.Context, params WriteParams) (agent.ToolResult, bool) {
	return agent.ToolResult{}, false
}

func (t *WriteTool) Execute(ctx context.Context, params WriteParams) (agent.ToolResult, error) {
	resolved, err := t.resolver.Resolve(params.Path)
	if err != nil {
		return toolError(err.Error()), nil
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return toolError(fmt.Sprintf("create directory: %v", err)), nil
	}

	mode := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if params.Append {
		mode = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(resolved, mode, 0o644)
	if err != nil {
		return toolError(fmt.Sprintf("open file: %v", err)), nil
	}
	defer file.Close()

	n, err := file.WriteString(params.Content)
	if err != nil {
		return toolError(fmt.Sprintf("write file: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"path":          params.Path,
		"bytes_written": n,
		"append":        params.Append,
	}), nil
}
