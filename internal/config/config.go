// Package config loads the optional configuration file for a shai-agent
// process. The agent core never reads configuration itself; callers load
// a Config here and hand the constructed pieces (brain, tools, guard
// settings) to the core.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that decodes YAML scalars in either form:
// a bare integer of seconds, or a Go duration string like "90s" or "2m".
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var secs int64
	if err := node.Decode(&secs); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration %q", node.Value)
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the root of the configuration file.
type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	Agent   AgentProfile  `yaml:"agent"`
	Tools   ToolsConfig   `yaml:"tools"`
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig selects the provider the brain adapter is built against.
type LLMConfig struct {
	DefaultProvider string                    `yaml:"default_provider"`
	Providers       map[string]ProviderConfig `yaml:"providers"`
}

// ProviderConfig carries the credentials and model choice for one provider.
type ProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
}

// AgentProfile is the optional named agent configuration from the
// side-channel: system prompt, sampling temperature, and a tool
// allowlist. Empty fields mean "use the built-in default".
type AgentProfile struct {
	SystemPrompt string   `yaml:"system_prompt"`
	Temperature  *float64 `yaml:"temperature"`
	// Tools restricts the registered tool set to the named tools. Empty
	// means all tools the CLI knows how to build.
	Tools []string `yaml:"tools"`
	// MCPEndpoints is carried opaquely for callers that bridge MCP
	// servers into the tool list; the core itself never dials them.
	MCPEndpoints []string `yaml:"mcp_endpoints"`
}

// ToolsConfig configures the example tool set.
type ToolsConfig struct {
	WebSearch WebSearchConfig `yaml:"websearch"`
	Execution ExecutionConfig `yaml:"execution"`
}

// WebSearchConfig selects a search backend. The search tool is only
// registered when one of the backends is configured.
type WebSearchConfig struct {
	Provider    string `yaml:"provider"` // searxng or brave
	URL         string `yaml:"url"`      // SearXNG instance URL
	BraveAPIKey string `yaml:"brave_api_key"`
}

// ExecutionConfig bounds tool execution and shapes the result guard.
type ExecutionConfig struct {
	Timeout     Duration              `yaml:"timeout"`
	ResultGuard ToolResultGuardConfig `yaml:"result_guard"`
}

// ToolResultGuardConfig mirrors agent.ToolResultGuard field-for-field so
// the CLI can convert one into the other with a plain struct literal.
type ToolResultGuardConfig struct {
	Enabled         bool     `yaml:"enabled"`
	MaxChars        int      `yaml:"max_chars"`
	Denylist        []string `yaml:"denylist"`
	RedactPatterns  []string `yaml:"redact_patterns"`
	RedactionText   string   `yaml:"redaction_text"`
	TruncateSuffix  string   `yaml:"truncate_suffix"`
	SanitizeSecrets bool     `yaml:"sanitize_secrets"`
}

// LoggingConfig shapes the process-wide slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Load reads, merges, and validates a configuration file. YAML is the
// primary format; .json/.json5 files are accepted too, and any file may
// pull in others via an "include" key.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeRaw(raw)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.LLM.DefaultProvider == "" {
		cfg.LLM.DefaultProvider = "anthropic"
	}
	if cfg.Tools.Execution.Timeout == 0 {
		cfg.Tools.Execution.Timeout = Duration(2 * time.Minute)
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// applyEnvOverrides lets provider API keys come from the environment so
// a checked-in config file never has to carry secrets.
func applyEnvOverrides(cfg *Config) {
	for name, envKey := range map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
		"gemini":    "GEMINI_API_KEY",
	} {
		v := strings.TrimSpace(os.Getenv(envKey))
		if v == "" {
			continue
		}
		p := cfg.LLM.Providers[name]
		if p.APIKey == "" {
			p.APIKey = v
			if cfg.LLM.Providers == nil {
				cfg.LLM.Providers = map[string]ProviderConfig{}
			}
			cfg.LLM.Providers[name] = p
		}
	}
}

// ValidationError aggregates everything wrong with a config file so the
// user sees one report instead of a fix-rerun loop.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func (cfg *Config) validate() error {
	var issues []string

	if dp := strings.ToLower(strings.TrimSpace(cfg.LLM.DefaultProvider)); dp != "" && len(cfg.LLM.Providers) > 0 {
		if _, ok := cfg.LLM.Providers[dp]; !ok {
			issues = append(issues, fmt.Sprintf("llm.providers has no entry for default_provider %q", cfg.LLM.DefaultProvider))
		}
	}
	if t := cfg.Agent.Temperature; t != nil && (*t < 0 || *t > 2) {
		issues = append(issues, "agent.temperature must be between 0 and 2")
	}
	switch p := strings.ToLower(strings.TrimSpace(cfg.Tools.WebSearch.Provider)); p {
	case "", "searxng", "brave":
	default:
		issues = append(issues, `tools.websearch.provider must be "searxng" or "brave"`)
	}
	if cfg.Tools.Execution.Timeout < 0 {
		issues = append(issues, "tools.execution.timeout must be >= 0")
	}
	if cfg.Tools.Execution.ResultGuard.MaxChars < 0 {
		issues = append(issues, "tools.execution.result_guard.max_chars must be >= 0")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		issues = append(issues, `logging.level must be "debug", "info", "warn", or "error"`)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Format)) {
	case "", "text", "json":
	default:
		issues = append(issues, `logging.format must be "text" or "json"`)
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}
