// Package files provides the workspace-scoped file tools (read, write,
// edit). Every path parameter is resolved through Resolver so no tool can
// reach outside the configured workspace root.
package files

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/haasonsaas/nexus/internal/agent"
)

// Config scopes the file tools to a workspace and bounds read sizes.
type Config struct {
	Workspace    string
	MaxReadBytes int
}

const defaultMaxReadBytes = 200_000

// ReadParams are the parameters accepted by ReadTool.
type ReadParams struct {
	Path     string `json:"path"`
	Offset   int64  `json:"offset,omitempty"`
	MaxBytes int    `json:"max_bytes,omitempty"`
}

// ReadTool reads files from the workspace with an offset and a byte cap.
type ReadTool struct {
	resolver Resolver
	maxBytes int
}

// NewReadTool creates a read tool scoped to the workspace.
func NewReadTool(cfg Config) *ReadTool {
	limit := cfg.MaxReadBytes
	if limit <= 0 {
		limit = defaultMaxReadBytes
	}
	return &ReadTool{resolver: Resolver{Root: cfg.Workspace}, maxBytes: limit}
}

func (t *ReadTool) Name() string { return "read" }

func (t *ReadTool) Description() string {
	return "Read a file from the workspace with optional offset and byte limit."
}

func (t *ReadTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Path to the file (relative to workspace)."},
			"offset": {"type": "integer", "description": "Byte offset to start reading from (default: 0).", "minimum": 0},
			"max_bytes": {"type": "integer", "description": "Maximum bytes to read (capped by tool default).", "minimum": 0}
		},
		"required": ["path"]
	}`)
}

// Capabilities reports read as read-only, so the scheduler never prompts
// for permission before running it.
func (t *ReadTool) Capabilities() []agent.ToolCapability {
	return []agent.ToolCapability{agent.CapabilityRead}
}

// Preview for a read-only tool is the execution itself.
func (t *ReadTool) Preview(ctx context.Context, params ReadParams) (agent.ToolResult, bool) {
	result, err := t.Execute(ctx, params)
	if err != nil {
		return agent.ToolResult{}, false
	}
	return result, true
}

func (t *ReadTool) Execute(ctx context.Context, params ReadParams) (agent.ToolResult, error) {
	if params.Offset < 0 {
		return toolError("offset must be >= 0"), nil
	}
	resolved, err := t.resolver.Resolve(params.Path)
	if err != nil {
		return toolError(err.Error()), nil
	}

	file, err := os.Open(resolved)
	if err != nil {
		return toolError(fmt.Sprintf("open file: %v", err)), nil
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return toolError(fmt.Sprintf("stat file: %v", err)), nil
	}
	if params.Offset > 0 {
		if _, err := file.Seek(params.Offset, io.SeekStart); err != nil {
			return toolError(fmt.Sprintf("seek file: %v", err)), nil
		}
	}

	limit := t.maxBytes
	if params.MaxBytes > 0 && params.MaxBytes < limit {
		limit = params.MaxBytes
	}
	buf, err := io.ReadAll(io.LimitReader(file, int64(limit)))
	if err != nil {
		return toolError(fmt.Sprintf("read file: %v", err)), nil
	}

	return jsonResult(map[string]any{
		"path":      params.Path,
		"content":   string(buf),
		"offset":    params.Offset,
		"bytes":     len(buf),
		"truncated": params.Offset+int64(len(buf)) < info.Size(),
	}), nil
}

// jsonResult renders a success payload as indented JSON; every tool in
// this package reports through it so output shape stays uniform.
func jsonResult(payload map[string]any) agent.ToolResult {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err))
	}
	return agent.ToolSuccess(string(data), nil)
}

func toolError(message string) agent.ToolResult {
	data, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return agent.ToolErrorResult(message, nil)
	}
	return agent.ToolErrorResult(string(data), nil)
}
