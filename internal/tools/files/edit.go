package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/haasonsaas/nexus/internal/agent"
)

// EditOperation is one find/replace edit applied by EditTool.
type EditOperation struct {
	OldText    string `json:"old_text"`
	NewText    string `json:"new_text"`
	ReplaceAll bool   `json:"replace_all,omitempty"`
}

// EditParams are the parameters accepted by EditTool.
type EditParams struct {
	Path  string          `json:"path"`
	Edits []EditOperation `json:"edits"`
}

// EditTool applies in-place find/replace edits to a workspace file. Edits
// are applied in order against the evolving content; any edit whose
// old_text is absent fails the whole call without writing.
type EditTool struct {
	resolver Resolver
}

// NewEditTool creates an edit tool scoped to the workspace.
func NewEditTool(cfg Config) *EditTool {
	return &EditTool{resolver: Resolver{Root: cfg.Workspace}}
}

func (t *EditTool) Name() string { return "edit" }

func (t *EditTool) Description() string {
	return "Apply one or more find/replace edits to a file in the workspace."
}

func (t *EditTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Path to edit (relative to workspace)."},
			"edits": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"old_text": {"type": "string", "description": "Text to replace."},
						"new_text": {"type": "string", "description": "Replacement text."},
						"replace_all": {"type": "boolean", "description": "Replace all occurrences (default: false)."}
					},
					"required": ["old_text", "new_text"]
				}
			}
		},
		"required": ["path", "edits"]
	}`)
}

// Capabilities reports edit as a filesystem write.
func (t *EditTool) Capabilities() []agent.ToolCapability {
	return []agent.ToolCapability{agent.CapabilityWrite}
}

// Preview has no dry-run mode: applying the edits is the only way to know
// whether every old_text is found.
func (t *EditTool) Preview(ctx context.Context, params EditParams) (agent.ToolResult, bool) {
	return agent.ToolResult{}, false
}

func (t *EditTool) Execute(ctx context.Context, params EditParams) (agent.ToolResult, error) {
	if len(params.Edits) == 0 {
		return toolError("edits are required"), nil
	}
	resolved, err := t.resolver.Resolve(params.Path)
	if err != nil {
		return toolError(err.Error()), nil
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return toolError(fmt.Sprintf("read file: %v", err)), nil
	}

	content := string(data)
	applied := 0
	for i, edit := range params.Edits {
		if edit.OldText == "" {
			return toolError(fmt.Sprintf("edits[%d]: old_text is required", i)), nil
		}
		count := strings.Count(content, edit.OldText)
		if count == 0 {
			return toolError(fmt.Sprintf("edits[%d]: old_text not found", i)), nil
		}
		if edit.ReplaceAll {
			content = strings.ReplaceAll(content, edit.OldText, edit.NewText)
			applied += count
		} else {
			content = strings.Replace(content, edit.OldText, edit.NewText, 1)
			applied++
		}
	}

	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return toolError(fmt.Sprintf("write file: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"path":         params.Path,
		"replacements": applied,
	}), nil
}
