package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/haasonsaas/nexus/internal/agent"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIBrain implements agent.Brain over the OpenAI-compatible Chat
// Completions API, demonstrating the structured-JSON tool-call fallback
// (agent.MethodStructuredOutput) for models without native function
// calling, alongside the native path (agent.MethodFunctionCall).
type OpenAIBrain struct {
	client       *openai.Client
	maxRetries   int
	retryDelay   time.Duration
	defaultModel string
	systemPrompt string
	temperature  *float64
}

// OpenAIConfig configures an OpenAIBrain. BaseURL lets this adapter also
// reach any OpenAI-compatible endpoint (local inference servers, proxies).
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
	SystemPrompt string
	Temperature  *float64
}

// NewOpenAIBrain builds a ready-to-use brain from config.
func NewOpenAIBrain(config OpenAIConfig) (*OpenAIBrain, error) {
	if config.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "gpt-4o"
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIBrain{
		client:       openai.NewClientWithConfig(clientConfig),
		maxRetries:   config.MaxRetries,
		retryDelay:   config.RetryDelay,
		defaultModel: config.DefaultModel,
		systemPrompt: config.SystemPrompt,
		temperature:  config.Temperature,
	}, nil
}

// NextStep builds a ChatCompletionRequest from the trace snapshot,
// retries transient failures, and translates the response into a
// ThinkerDecision.
func (b *OpenAIBrain) NextStep(ctx context.Context, tc agent.ThinkerContext) (agent.ThinkerDecision, error) {
	catalog := buildToolCatalog(tc.AvailableTools)
	req, err := b.buildRequest(tc, catalog)
	if err != nil {
		return agent.ThinkerDecision{}, err
	}

	var resp openai.ChatCompletionResponse
	var lastErr error
	for attempt := 0; attempt <= b.maxRetries; attempt++ {
		resp, lastErr = b.client.CreateChatCompletion(ctx, req)
		if lastErr == nil {
			break
		}
		wrapped := NewProviderError("openai", req.Model, lastErr)
		if !wrapped.Reason.IsRetryable() || attempt == b.maxRetries {
			lastErr = wrapped
			break
		}
		select {
		case <-ctx.Done():
			return agent.ThinkerDecision{}, ctx.Err()
		case <-time.After(b.retryDelay * time.Duration(attempt+1)):
		}
	}
	if lastErr != nil {
		return agent.ThinkerDecision{}, lastErr
	}

	return b.decisionFromResponse(resp, tc.Method), nil
}

func (b *OpenAIBrain) buildRequest(tc agent.ThinkerContext, catalog []toolCatalogEntry) (openai.ChatCompletionRequest, error) {
	messages, err := b.convertMessages(tc.Trace.Snapshot())
	if err != nil {
		return openai.ChatCompletionRequest{}, fmt.Errorf("openai: failed to convert messages: %w", err)
	}

	system := systemPromptFor(b.systemPrompt, tc.Method, catalog)
	if system != "" {
		messages = append([]openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: system}}, messages...)
	}

	req := openai.ChatCompletionRequest{
		Model:    b.defaultModel,
		Messages: messages,
	}
	if b.temperature != nil {
		req.Temperature = float32(*b.temperature)
	}
	if tc.Method == agent.MethodFunctionCall && len(catalog) > 0 {
		req.Tools = convertOpenAITools(catalog)
	}
	return req, nil
}

// convertMessages maps the Go trace onto OpenAI's flat chat-message list.
// Unlike Anthropic, OpenAI tolerates consecutive same-role messages, so no
// merging is required: one trace message becomes one chat message.
func (b *OpenAIBrain) convertMessages(messages []agent.Message) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case agent.RoleSystem:
			continue // handled via systemPromptFor, prepended separately
		case agent.RoleUser:
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: msg.Content})
		case agent.RoleAssistant:
			oaiMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: msg.Content}
			for _, tc := range msg.ToolCalls {
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   tc.CallID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.ToolName,
						Arguments: string(tc.Parameters),
					},
				})
			}
			result = append(result, oaiMsg)
		case agent.RoleTool:
			result = append(result, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    msg.Content,
				ToolCallID: msg.CallID,
			})
		}
	}
	return result, nil
}

func convertOpenAITools(catalog []toolCatalogEntry) []openai.Tool {
	result := make([]openai.Tool, 0, len(catalog))
	for _, t := range catalog {
		var schema map[string]any
		if err := json.Unmarshal(t.Schema, &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			},
		})
	}
	return result
}

// decisionFromResponse assembles the ThinkerDecision from the first
// choice: native tool_calls become ToolCall entries directly; otherwise,
// under the structured-output method, the reply text is checked for a
// fenced JSON tool-call block.
func (b *OpenAIBrain) decisionFromResponse(resp openai.ChatCompletionResponse, method agent.ToolCallMethod) agent.ThinkerDecision {
	var content string
	var calls []agent.ToolCall

	if len(resp.Choices) > 0 {
		msg := resp.Choices[0].Message
		content = msg.Content
		for _, tc := range msg.ToolCalls {
			calls = append(calls, agent.ToolCall{
				CallID:     tc.ID,
				ToolName:   tc.Function.Name,
				Parameters: json.RawMessage(tc.Function.Arguments),
			})
		}
	}

	if method == agent.MethodStructuredOutput && len(calls) == 0 {
		if parsed, ok := parseStructuredToolCalls(content); ok {
			calls = parsed
			content = ""
		}
	}

	flow := agent.FlowPause
	if len(calls) > 0 {
		flow = agent.FlowContinue
	}

	return agent.ThinkerDecision{
		Message: agent.AssistantMessage{Content: content, ToolCalls: calls},
		Flow:    flow,
		TokenUsage: &agent.TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
}
