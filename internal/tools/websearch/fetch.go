package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/nexus/internal/agent"
)

// FetchConfig controls web_fetch defaults.
type FetchConfig struct {
	MaxChars int
}

// FetchParams are the parameters accepted by WebFetchTool.
type FetchParams struct {
	URL         string `json:"url"`
	ExtractMode string `json:"extract_mode,omitempty"`
	MaxChars    int    `json:"max_chars,omitempty"`
}

// WebFetchTool fetches one URL and reduces it to readable text through the
// same extractor the search tool's content enrichment uses.
type WebFetchTool struct {
	maxChars  int
	extractor *ContentExtractor
}

// WebFetchOption customizes WebFetchTool construction.
type WebFetchOption func(*WebFetchTool)

// WithExtractor overrides the default content extractor (useful for tests).
func WithExtractor(extractor *ContentExtractor) WebFetchOption {
	return func(tool *WebFetchTool) {
		if extractor != nil {
			tool.extractor = extractor
		}
	}
}

// NewWebFetchTool creates a web_fetch tool with defaults applied.
func NewWebFetchTool(config *FetchConfig, opts ...WebFetchOption) *WebFetchTool {
	tool := &WebFetchTool{maxChars: maxExtractChars, extractor: NewContentExtractor()}
	if config != nil && config.MaxChars > 0 {
		tool.maxChars = config.MaxChars
	}
	for _, opt := range opts {
		opt(tool)
	}
	return tool
}

func (t *WebFetchTool) Name() string { return "web_fetch" }

func (t *WebFetchTool) Description() string {
	return "Fetch and extract readable content from a URL without full browser automation."
}

func (t *WebFetchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"url": {"type": "string", "description": "URL to fetch (http/https only)"},
			"extract_mode": {"type": "string", "enum": ["markdown", "text"], "description": "Echoed back as extract_mode; both modes return the same readable plain text, with no markdown conversion. Default: markdown"},
			"max_chars": {"type": "integer", "description": "Maximum characters to return (default: 10000)", "minimum": 0}
		},
		"required": ["url"]
	}`)
}

// Capabilities reports that web_fetch only reaches the network.
func (t *WebFetchTool) Capabilities() []agent.ToolCapability {
	return []agent.ToolCapability{agent.CapabilityNetwork}
}

// Preview declines: fetching is the only way to know what a URL returns.
func (t *WebFetchTool) Preview(ctx context.Context, params FetchParams) (agent.ToolResult, bool) {
	return agent.ToolResult{}, false
}

func (t *WebFetchTool) Execute(ctx context.Context, params FetchParams) (agent.ToolResult, error) {
	if params.URL == "" {
		return agent.ToolErrorResult("Missing required parameter: url", nil), nil
	}

	limit := t.maxChars
	if params.MaxChars > 0 && params.MaxChars < limit {
		limit = params.MaxChars
	}

	content, err := t.extractor.Extract(ctx, params.URL)
	if err != nil {
		return agent.ToolErrorResult(fmt.Sprintf("Fetch failed: %v", err), nil), nil
	}

	payload := map[string]any{
		"url":          params.URL,
		"extract_mode": normalizeExtractMode(params.ExtractMode),
		"content":      content,
	}
	if len(content) > limit {
		payload["content"] = content[:limit] + "..."
		payload["truncated"] = true
	}

	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return agent.ToolErrorResult(fmt.Sprintf("Failed to format response: %v", err), nil), nil
	}
	return agent.ToolSuccess(string(out), nil), nil
}

func normalizeExtractMode(mode string) string {
	if strings.ToLower(strings.TrimSpace(mode)) == "text" {
		return "text"
	}
	return "markdown"
}
