package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/haasonsaas/nexus/internal/agent"
	"google.golang.org/genai"
)

// GeminiBrain implements agent.Brain over Google's genai SDK. It mirrors
// AnthropicBrain/OpenAIBrain's one-shot NextStep contract rather than the
// teacher's streaming GoogleProvider.Complete: this core never consumes
// partial chunks, so GenerateContent (not GenerateContentStream) is the
// right sibling call here.
type GeminiBrain struct {
	client       *genai.Client
	maxRetries   int
	retryDelay   time.Duration
	defaultModel string
	systemPrompt string
	temperature  *float64
}

// GeminiConfig configures a GeminiBrain.
type GeminiConfig struct {
	APIKey       string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
	SystemPrompt string
	Temperature  *float64
}

// NewGeminiBrain builds a ready-to-use brain, applying the teacher's
// defaults (3 retries, 1s base backoff, gemini-2.0-flash) when left unset.
func NewGeminiBrain(config GeminiConfig) (*GeminiBrain, error) {
	if config.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}

	return &GeminiBrain{
		client:       client,
		maxRetries:   config.MaxRetries,
		retryDelay:   config.RetryDelay,
		defaultModel: config.DefaultModel,
		systemPrompt: config.SystemPrompt,
		temperature:  config.Temperature,
	}, nil
}

// NextStep builds a Gemini request from the trace snapshot and available
// tools, retries transient failures with exponential backoff, and
// translates the response into a ThinkerDecision.
func (b *GeminiBrain) NextStep(ctx context.Context, tc agent.ThinkerContext) (agent.ThinkerDecision, error) {
	catalog := buildToolCatalog(tc.AvailableTools)
	contents := b.convertMessages(tc.Trace.Snapshot())
	config := b.buildConfig(tc, catalog)

	var resp *genai.GenerateContentResponse
	var lastErr error
	for attempt := 0; attempt <= b.maxRetries; attempt++ {
		resp, lastErr = b.client.Models.GenerateContent(ctx, b.defaultModel, contents, config)
		if lastErr == nil {
			break
		}
		wrapped := b.wrapError(lastErr)
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

	return b.decisionFromResponse(resp, tc.Method), nil
}

func (b *GeminiBrain) buildConfig(tc agent.ThinkerContext, catalog []toolCatalogEntry) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if b.temperature != nil {
		t := float32(*b.temperature)
		config.Temperature = &t
	}

	system := systemPromptFor(b.systemPrompt, tc.Method, catalog)
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	if tc.Method == agent.MethodFunctionCall && len(catalog) > 0 {
		config.Tools = b.convertTools(catalog)
	}

	return config
}

// convertMessages maps the Go trace onto Gemini's user/model content list.
// Gemini has no "tool" role: tool results are attached as FunctionResponse
// parts on a user-role content entry, and system messages are dropped here
// since they are carried separately via SystemInstruction.
func (b *GeminiBrain) convertMessages(messages []agent.Message) []*genai.Content {
	result := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case agent.RoleSystem:
			continue
		case agent.RoleUser:
			result = append(result, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		case agent.RoleAssistant:
			content := &genai.Content{Role: genai.RoleModel}
			if msg.Content != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				var args map[string]any
				if len(call.Parameters) > 0 {
					_ = json.Unmarshal(call.Parameters, &args)
				}
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{Name: call.ToolName, Args: args},
				})
			}
			if len(content.Parts) > 0 {
				result = append(result, content)
			}
		case agent.RoleTool:
			var response map[string]any
			if err := json.Unmarshal([]byte(msg.Content), &response); err != nil {
				response = map[string]any{"result": msg.Content}
			}
			result = append(result, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{Name: msg.CallID, Response: response},
				}},
			})
		}
	}
	return result
}

func (b *GeminiBrain) convertTools(catalog []toolCatalogEntry) []*genai.Tool {
	declarations := make([]*genai.FunctionDeclaration, 0, len(catalog))
	for _, t := range catalog {
		var schemaMap map[string]any
		if err := json.Unmarshal(t.Schema, &schemaMap); err != nil {
			continue
		}
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  jsonSchemaToGemini(schemaMap),
		})
	}
	if len(declarations) == 0 {
		return nil
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// jsonSchemaToGemini recursively maps a JSON-schema document (as decoded
// into a plain map) onto genai.Schema's dedicated field set.
func jsonSchemaToGemini(schemaMap map[string]any) *genai.Schema {
	if schemaMap == nil {
		return nil
	}
	schema := &genai.Schema{}

	if t, ok := schemaMap["type"].(string); ok {
		schema.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schemaMap["description"].(string); ok {
		schema.Description = desc
	}
	if enum, ok := schemaMap["enum"].([]any); ok {
		for _, e := range enum {
			if s, ok := e.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	}
	if props, ok := schemaMap["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				schema.Properties[name] = jsonSchemaToGemini(propMap)
			}
		}
	}
	if required, ok := schemaMap["required"].([]any); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	if items, ok := schemaMap["items"].(map[string]any); ok {
		schema.Items = jsonSchemaToGemini(items)
	}
	return schema
}

// decisionFromResponse assembles the ThinkerDecision from a completed
// response: native FunctionCall parts become ToolCall entries, tagged with
// a generated call ID since Gemini's function calls carry no ID of their
// own; otherwise the structured-output fallback parses a fenced JSON block.
// A reply with no tool calls pauses the agent rather than continuing
// automatically.
func (b *GeminiBrain) decisionFromResponse(resp *genai.GenerateContentResponse, method agent.ToolCallMethod) agent.ThinkerDecision {
	var text strings.Builder
	var calls []agent.ToolCall

	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for i, part := range resp.Candidates[0].Content.Parts {
			if part == nil {
				continue
			}
			if part.Text != "" {
				text.WriteString(part.Text)
			}
			if part.FunctionCall != nil {
				args, err := json.Marshal(part.FunctionCall.Args)
				if err != nil {
					args = []byte("{}")
				}
				calls = append(calls, agent.ToolCall{
					CallID:     fmt.Sprintf("%s-%d", part.FunctionCall.Name, i),
					ToolName:   part.FunctionCall.Name,
					Parameters: args,
				})
			}
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
		flow = agent.FlowContinue
	}

	decision := agent.ThinkerDecision{
		Message: agent.AssistantMessage{Content: content, ToolCalls: calls},
		Flow:    flow,
	}
	if resp.UsageMetadata != nil {
		decision.TokenUsage = &agent.TokenUsage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return decision
}

func (b *GeminiBrain) wrapError(err error) *ProviderError {
	if err == nil {
		return nil
	}
	if pe, ok := GetProviderError(err); ok {
		return pe
	}
	return NewProviderError("gemini", b.defaultModel, err)
}
