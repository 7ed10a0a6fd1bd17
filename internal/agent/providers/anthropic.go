package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/haasonsaas/nexus/internal/agent"
)

// AnthropicBrain implements agent.Brain over Anthropic's Messages API. It
// carries retry/backoff and error classification adapted from the
// teacher's streaming LLMProvider wrapper, but produces a single
// agent.ThinkerDecision per call rather than a chunk stream: the core's
// Brain contract (spec.md §4.3) is one-shot, not incremental.
type AnthropicBrain struct {
	client       anthropic.Client
	maxRetries   int
	retryDelay   time.Duration
	defaultModel string
	systemPrompt string
	temperature  *float64
}

// AnthropicConfig configures an AnthropicBrain.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
	// SystemPrompt is injected into every request at call time per I3; it
	// is never written into the trace.
	SystemPrompt string
	// Temperature overrides the provider default when set.
	Temperature *float64
}

// NewAnthropicBrain builds a ready-to-use brain from config, applying the
// teacher's defaults (3 retries, 1s base backoff, Sonnet 4 as the default
// model) when left unset.
func NewAnthropicBrain(config AnthropicConfig) (*AnthropicBrain, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "claude-sonnet-4-20250514"
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicBrain{
		client:       anthropic.NewClient(opts...),
		maxRetries:   config.MaxRetries,
		retryDelay:   config.RetryDelay,
		defaultModel: config.DefaultModel,
		systemPrompt: config.SystemPrompt,
		temperature:  config.Temperature,
	}, nil
}

// NextStep builds an Anthropic request from the trace snapshot and
// available tools, retries transient failures with exponential backoff
// (the teacher's createStream retry loop, ported to a non-streaming call),
// and translates the response into a ThinkerDecision.
func (b *AnthropicBrain) NextStep(ctx context.Context, tc agent.ThinkerContext) (agent.ThinkerDecision, error) {
	catalog := buildToolCatalog(tc.AvailableTools)
	params, err := b.buildParams(tc, catalog)
	if err != nil {
		return agent.ThinkerDecision{}, err
	}

	var msg *anthropic.Message
	var lastErr error
	for attempt := 0; attempt <= b.maxRetries; attempt++ {
		msg, lastErr = b.client.Messages.New(ctx, params)
		if lastErr == nil {
			break
		}
		wrapped := b.wrapError(lastErr, string(params.Model))
		if !wrapped.Reason.IsRetryable() || attempt == b.maxRetries {
			lastErr = wrapped
			break
		}
		backoff := b.retryDelay * time.Duration(math.Pow(2, float64(attempt)))
		select {
		case <-ctx.Done():
			return agent.ThinkerDecision{}, ctx.Err()
		case <-time.After(backoff):
		}
	}
	if lastErr != nil {
		return agent.ThinkerDecision{}, lastErr
	}

	return b.decisionFromMessage(msg, tc.Method), nil
}

func (b *AnthropicBrain) buildParams(tc agent.ThinkerContext, catalog []toolCatalogEntry) (anthropic.MessageNewParams, error) {
	messages, err := b.convertMessages(tc.Trace.Snapshot())
	if err != nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: failed to convert messages: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(b.defaultModel),
		Messages:  messages,
		MaxTokens: 4096,
	}
	if b.temperature != nil {
		params.Temperature = anthropic.Float(*b.temperature)
	}

	system := systemPromptFor(b.systemPrompt, tc.Method, catalog)
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}

	if tc.Method == agent.MethodFunctionCall && len(catalog) > 0 {
		tools, err := b.convertTools(catalog)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = tools
	}

	return params, nil
}

// convertMessages maps the Go trace onto Anthropic's alternating
// user/assistant message list, merging consecutive same-role entries
// (Anthropic rejects back-to-back messages of the same role) — tool
// results in particular arrive as consecutive Role==tool trace entries
// per §4.7's unspecified-completion-order note.
func (b *AnthropicBrain) convertMessages(messages []agent.Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	var pendingRole string
	var pendingBlocks []anthropic.ContentBlockParamUnion

	flush := func() {
		if len(pendingBlocks) == 0 {
			return
		}
		if pendingRole == "assistant" {
			result = append(result, anthropic.NewAssistantMessage(pendingBlocks...))
		} else {
			result = append(result, anthropic.NewUserMessage(pendingBlocks...))
		}
		pendingBlocks = nil
	}

	for _, msg := range messages {
		switch msg.Role {
		case agent.RoleSystem:
			continue // handled separately via params.System
		case agent.RoleUser:
			if pendingRole != "user" {
				flush()
				pendingRole = "user"
			}
			pendingBlocks = append(pendingBlocks, anthropic.NewTextBlock(msg.Content))
		case agent.RoleAssistant:
			flush()
			pendingRole = "assistant"
			if msg.Content != "" {
				pendingBlocks = append(pendingBlocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				var input map[string]any
				if len(tc.Parameters) > 0 {
					if err := json.Unmarshal(tc.Parameters, &input); err != nil {
						return nil, fmt.Errorf("invalid tool call parameters for %s: %w", tc.ToolName, err)
					}
				}
				pendingBlocks = append(pendingBlocks, anthropic.NewToolUseBlock(tc.CallID, input, tc.ToolName))
			}
			flush()
			pendingRole = ""
		case agent.RoleTool:
			if pendingRole != "user" {
				flush()
				pendingRole = "user"
			}
			pendingBlocks = append(pendingBlocks, anthropic.NewToolResultBlock(msg.CallID, msg.Content, false))
		}
	}
	flush()
	return result, nil
}

func (b *AnthropicBrain) convertTools(catalog []toolCatalogEntry) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(catalog))
	for _, t := range catalog {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(t.Schema, &schema); err != nil {
			return nil, fmt.Errorf("anthropic: invalid tool schema for %s: %w", t.Name, err)
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("anthropic: invalid tool schema for %s: missing tool definition", t.Name)
		}
		toolParam.OfTool.Description = anthropic.String(t.Description)
		result = append(result, toolParam)
	}
	return result, nil
}

// decisionFromMessage assembles the ThinkerDecision from a completed
// response: native tool_use blocks become ToolCall entries; otherwise the
// structured-output fallback is given a chance to parse a fenced JSON
// tool-call block out of the text. A reply with no tool calls pauses the
// agent (FlowPause) rather than continuing automatically, matching the
// echo scenario in spec.md §8.
func (b *AnthropicBrain) decisionFromMessage(msg *anthropic.Message, method agent.ToolCallMethod) agent.ThinkerDecision {
	var text strings.Builder
	var calls []agent.ToolCall

	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			calls = append(calls, agent.ToolCall{CallID: block.ID, ToolName: block.Name, Parameters: block.Input})
		}
	}

	content := text.String()
	if method == agent.MethodStructuredOutput && len(calls) == 0 {
		if parsed, ok := parseStructuredToolCalls(content); ok {
			calls = parsed
			content = ""
		}
	}

	flow := agent.FlowPause
	if len(calls) > 0 {
		// Flow is ignored by the core whenever tool calls are present
		// (spec.md §3), but set Continue for clarity at call sites that
		// inspect Decision directly before dispatch.
		flow = agent.FlowContinue
	}

	return agent.ThinkerDecision{
		Message: agent.AssistantMessage{Content: content, ToolCalls: calls},
		Flow:    flow,
		TokenUsage: &agent.TokenUsage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}
}

func (b *AnthropicBrain) wrapError(err error, model string) *ProviderError {
	if err == nil {
		return nil
	}
	if pe, ok := GetProviderError(err); ok {
		return pe
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		pe := &ProviderError{Provider: "anthropic", Model: model, Cause: err, Reason: FailoverUnknown}
		pe = pe.WithStatus(apiErr.StatusCode)
		if pe.Message == "" {
			pe.Message = "anthropic request failed"
		}
		if apiErr.RequestID != "" {
			pe = pe.WithRequestID(apiErr.RequestID)
		}
		return pe
	}
	return NewProviderError("anthropic", model, err)
}
