// Package models holds a small static catalog of the chat models the
// brain adapters can be pointed at, keyed by API model id or alias. The
// agent only consults it to sanity-check a configured model before a
// session starts; an unknown id is a warning, never an error.
package models

import (
	"sort"
	"strings"
	"sync"
)

// Provider names an LLM vendor a brain adapter exists for.
type Provider string

const (
	Anthropic Provider = "anthropic"
	OpenAI    Provider = "openai"
	Gemini    Provider = "gemini"
)

// Capability is a coarse feature tag on a model.
type Capability string

const (
	CapTools     Capability = "tools"     // native function calling
	CapVision    Capability = "vision"    // image input
	CapJSON      Capability = "json"      // enforced JSON output
	CapReasoning Capability = "reasoning" // extended thinking variants
)

// Model describes one catalog entry.
type Model struct {
	ID            string       `json:"id"`
	DisplayName   string       `json:"display_name"`
	Provider      Provider     `json:"provider"`
	ContextWindow int          `json:"context_window"`
	MaxOutput     int          `json:"max_output,omitempty"`
	Capabilities  []Capability `json:"capabilities"`
	Aliases       []string     `json:"aliases,omitempty"`
}

// Has reports whether the model carries the given capability tag.
func (m *Model) Has(cap Capability) bool {
	for _, c := range m.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// SupportsTools reports whether the model can drive tool calls natively.
// Models without it still work through the structured-output fallback,
// but the CLI warns about them.
func (m *Model) SupportsTools() bool { return m.Has(CapTools) }

var (
	indexOnce sync.Once
	byID      map[string]*Model
	byAlias   map[string]string
)

// catalog is the built-in model table. Entries are deliberately sparse:
// only models one of the shipped brain adapters can actually reach.
var catalog = []Model{
	{
		ID: "claude-opus-4", DisplayName: "Claude Opus 4", Provider: Anthropic,
		ContextWindow: 200_000, MaxOutput: 32_000,
		Capabilities: []Capability{CapTools, CapVision, CapJSON},
		Aliases:      []string{"opus"},
	},
	{
		ID: "claude-3-5-sonnet-latest", DisplayName: "Claude 3.5 Sonnet", Provider: Anthropic,
		ContextWindow: 200_000, MaxOutput: 8_192,
		Capabilities: []Capability{CapTools, CapVision, CapJSON},
		Aliases:      []string{"claude-3-5-sonnet", "sonnet"},
	},
	{
		ID: "claude-3-5-haiku-latest", DisplayName: "Claude 3.5 Haiku", Provider: Anthropic,
		ContextWindow: 200_000, MaxOutput: 8_192,
		Capabilities: []Capability{CapTools, CapVision, CapJSON},
		Aliases:      []string{"claude-3-5-haiku", "haiku"},
	},
	{
		ID: "gpt-4o", DisplayName: "GPT-4o", Provider: OpenAI,
		ContextWindow: 128_000, MaxOutput: 16_384,
		Capabilities: []Capability{CapTools, CapVision, CapJSON},
		Aliases:      []string{"gpt-4o-2024-11-20"},
	},
	{
		ID: "gpt-4o-mini", DisplayName: "GPT-4o Mini", Provider: OpenAI,
		ContextWindow: 128_000, MaxOutput: 16_384,
		Capabilities: []Capability{CapTools, CapVision, CapJSON},
		Aliases:      []string{"gpt-4o-mini-2024-07-18"},
	},
	{
		ID: "o1", DisplayName: "o1", Provider: OpenAI,
		ContextWindow: 200_000, MaxOutput: 100_000,
		Capabilities: []Capability{CapTools, CapVision, CapJSON, CapReasoning},
	},
	{
		ID: "gemini-2.0-flash", DisplayName: "Gemini 2.0 Flash", Provider: Gemini,
		ContextWindow: 1_048_576, MaxOutput: 8_192,
		Capabilities: []Capability{CapTools, CapVision, CapJSON},
		Aliases:      []string{"gemini-2.0-flash-exp"},
	},
	{
		ID: "gemini-1.5-pro", DisplayName: "Gemini 1.5 Pro", Provider: Gemini,
		ContextWindow: 2_097_152, MaxOutput: 8_192,
		Capabilities: []Capability{CapTools, CapVision, CapJSON},
		Aliases:      []string{"gemini-1.5-pro-latest"},
	},
}

func buildIndex() {
	byID = make(map[string]*Model, len(catalog))
	byAlias = make(map[string]string)
	for i := range catalog {
		m := &catalog[i]
		byID[m.ID] = m
		for _, a := range m.Aliases {
			byAlias[strings.ToLower(a)] = m.ID
		}
	}
}

// Get resolves a model by exact id or (case-insensitive) alias.
func Get(id string) (*Model, bool) {
	indexOnce.Do(buildIndex)
	if m, ok := byID[id]; ok {
		return m, true
	}
	if real, ok := byAlias[strings.ToLower(id)]; ok {
		return byID[real], true
	}
	return nil, false
}

// ForProvider lists the catalog entries for one provider, ordered by id.
func ForProvider(p Provider) []*Model {
	indexOnce.Do(buildIndex)
	var out []*Model
	for i := range catalog {
		if catalog[i].Provider == p {
			out = append(out, &catalog[i])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
