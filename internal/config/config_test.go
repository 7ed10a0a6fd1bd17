package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
llm:
  default_provider: openai
  providers:
    openai:
      api_key: sk-test
      default_model: gpt-4o
agent:
  system_prompt: be brief
tools:
  websearch:
    provider: brave
    brave_api_key: bk-test
  execution:
    timeout: 30s
    result_guard:
      enabled: true
      max_chars: 5000
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.DefaultProvider != "openai" {
		t.Errorf("default_provider = %q", cfg.LLM.DefaultProvider)
	}
	if got := cfg.LLM.Providers["openai"].DefaultModel; got != "gpt-4o" {
		t.Errorf("default_model = %q", got)
	}
	if cfg.Agent.SystemPrompt != "be brief" {
		t.Errorf("system_prompt = %q", cfg.Agent.SystemPrompt)
	}
	if cfg.Tools.Execution.Timeout.Std() != 30*time.Second {
		t.Errorf("timeout = %v", cfg.Tools.Execution.Timeout.Std())
	}
	if !cfg.Tools.Execution.ResultGuard.Enabled || cfg.Tools.Execution.ResultGuard.MaxChars != 5000 {
		t.Errorf("result_guard = %+v", cfg.Tools.Execution.ResultGuard)
	}
}

func TestDurationForms(t *testing.T) {
	tests := []struct {
		yaml string
		want time.Duration
	}{
		{"timeout: 45", 45 * time.Second},
		{"timeout: 90s", 90 * time.Second},
		{"timeout: 2m", 2 * time.Minute},
	}
	for _, tt := range tests {
		dir := t.TempDir()
		cfg, err := Load(writeFile(t, dir, "config.yaml", "tools:\n  execution:\n    "+tt.yaml+"\n"))
		if err != nil {
			t.Fatalf("%q: %v", tt.yaml, err)
		}
		if got := cfg.Tools.Execution.Timeout.Std(); got != tt.want {
			t.Errorf("%q = %v, want %v", tt.yaml, got, tt.want)
		}
	}
}

func TestLoadJSON5(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.json5", `{
  // comments are fine in json5
  llm: { default_provider: "anthropic", providers: { anthropic: { default_model: "sonnet" } } },
}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.LLM.Providers["anthropic"].DefaultModel; got != "sonnet" {
		t.Errorf("default_model = %q", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(writeFile(t, dir, "config.yaml", "{}\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.DefaultProvider != "anthropic" {
		t.Errorf("default provider = %q, want anthropic", cfg.LLM.DefaultProvider)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("logging defaults = %+v", cfg.Logging)
	}
	if cfg.Tools.Execution.Timeout.Std() != 2*time.Minute {
		t.Errorf("execution timeout default = %v", cfg.Tools.Execution.Timeout.Std())
	}
}

func TestLoadInclude(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
llm:
  default_provider: anthropic
  providers:
    anthropic:
      default_model: haiku
logging:
  level: debug
`)
	path := writeFile(t, dir, "config.yaml", `
include: base.yaml
llm:
  providers:
    anthropic:
      default_model: sonnet
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	// The including file overrides one leaf; the rest of the included
	// tree survives the merge.
	if got := cfg.LLM.Providers["anthropic"].DefaultModel; got != "sonnet" {
		t.Errorf("default_model = %q, want sonnet", got)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging.level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "include: b.yaml\n")
	path := writeFile(t, dir, "b.yaml", "include: a.yaml\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected include cycle error, got %v", err)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "not_a_real_section:\n  x: 1\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown top-level key")
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			"missing default provider entry",
			"llm:\n  default_provider: openai\n  providers:\n    anthropic: {}\n",
			"default_provider",
		},
		{
			"bad websearch provider",
			"tools:\n  websearch:\n    provider: bing\n",
			"websearch.provider",
		},
		{
			"bad logging level",
			"logging:\n  level: loud\n",
			"logging.level",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			_, err := Load(writeFile(t, dir, "config.yaml", tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("want error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestEnvOverrideAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	dir := t.TempDir()
	cfg, err := Load(writeFile(t, dir, "config.yaml", `
llm:
  providers:
    anthropic:
      default_model: sonnet
`))
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.LLM.Providers["anthropic"].APIKey; got != "from-env" {
		t.Errorf("api_key = %q, want env value", got)
	}
}

func TestJSONSchema(t *testing.T) {
	data, err := JSONSchema()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "default_provider") {
		t.Error("schema missing llm fields")
	}
}
