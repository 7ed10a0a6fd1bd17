package providers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/nexus/internal/agent"
)

// toolCatalogEntry is a provider-neutral view of one registered tool,
// built once per NextStep call from agent.AnyTool so both the native
// function-call path and the structured-JSON fallback can share it.
type toolCatalogEntry struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

func buildToolCatalog(tools []agent.AnyTool) []toolCatalogEntry {
	out := make([]toolCatalogEntry, 0, len(tools))
	for _, t := range tools {
		out = append(out, toolCatalogEntry{Name: t.Name(), Description: t.Description(), Schema: t.Schema()})
	}
	return out
}

// structuredOutputSuffix renders the tool catalog as a textual instruction
// appended to the system prompt for agent.MethodStructuredOutput: models
// without native function-calling are told to answer in a fenced JSON block
// instead, which parseStructuredToolCalls below decodes back into
// agent.ToolCall values.
func structuredOutputSuffix(tools []toolCatalogEntry) string {
	if len(tools) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nYou may call tools. Available tools:\n")
	for _, t := range tools {
		fmt.Fprintf(&b, "- %s: %s\n  parameters schema: %s\n", t.Name, t.Description, string(t.Schema))
	}
	b.WriteString("\nTo call one or more tools, respond with ONLY a fenced JSON block of the form:\n")
	b.WriteString("```json\n{\"tool_calls\":[{\"call_id\":\"c1\",\"tool_name\":\"<name>\",\"parameters\":{...}}]}\n```\n")
	b.WriteString("Otherwise respond normally in plain text.\n")
	return b.String()
}

type structuredToolCallPayload struct {
	ToolCalls []struct {
		CallID     string          `json:"call_id"`
		ToolName   string          `json:"tool_name"`
		Parameters json.RawMessage `json:"parameters"`
	} `json:"tool_calls"`
}

// parseStructuredToolCalls looks for a ```json ... ``` fenced block anywhere
// in text and decodes it as a tool-call batch. ok is false when no fenced
// block parses as the expected shape, in which case text should be treated
// as a plain-text assistant reply.
func parseStructuredToolCalls(text string) (calls []agent.ToolCall, ok bool) {
	const fenceOpen = "```json"
	start := strings.Index(text, fenceOpen)
	if start == -1 {
		return nil, false
	}
	rest := text[start+len(fenceOpen):]
	end := strings.Index(rest, "```")
	if end == -1 {
		return nil, false
	}
	body := strings.TrimSpace(rest[:end])

	var payload structuredToolCallPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil || len(payload.ToolCalls) == 0 {
		return nil, false
	}
	out := make([]agent.ToolCall, 0, len(payload.ToolCalls))
	for _, c := range payload.ToolCalls {
		out = append(out, agent.ToolCall{CallID: c.CallID, ToolName: c.ToolName, Parameters: c.Parameters})
	}
	return out, true
}

// systemPromptFor builds the request's system prompt: the brain's
// configured base prompt plus, for the structured-output fallback method,
// the tool catalog instructions. Per spec.md I3, this is computed at
// request time and never persisted into the trace.
func systemPromptFor(basePrompt string, method agent.ToolCallMethod, tools []toolCatalogEntry) string {
	if method != agent.MethodStructuredOutput {
		return basePrompt
	}
	return basePrompt + structuredOutputSuffix(tools)
}
