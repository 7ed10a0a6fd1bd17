package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/agent/policy"
	"github.com/haasonsaas/nexus/internal/agent/providers"
	"github.com/haasonsaas/nexus/internal/config"
	"github.com/haasonsaas/nexus/internal/jobs"
	"github.com/haasonsaas/nexus/internal/models"
	"github.com/haasonsaas/nexus/internal/observability"
	execTool "github.com/haasonsaas/nexus/internal/tools/exec"
	"github.com/haasonsaas/nexus/internal/tools/files"
	jobTools "github.com/haasonsaas/nexus/internal/tools/jobs"
	"github.com/haasonsaas/nexus/internal/tools/websearch"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

type runOptions struct {
	configPath   string
	provider     string
	workspace    string
	method       string
	sudo         bool
	tracePath    string
	metricsAddr  string
	otlpEndpoint string
	jobsDSN      string
}

func buildRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start an interactive agent session reading user turns from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "", "path to a config.yaml (optional; env vars suffice for a minimal run)")
	cmd.Flags().StringVar(&opts.provider, "provider", "anthropic", "brain provider: anthropic, openai, or gemini")
	cmd.Flags().StringVar(&opts.workspace, "workspace", ".", "directory file tools and exec are scoped to")
	cmd.Flags().StringVar(&opts.method, "method", string(agent.MethodFunctionCall), "tool-call method: function_call or structured_output")
	cmd.Flags().BoolVar(&opts.sudo, "sudo", false, "start with the permission bypass enabled")
	cmd.Flags().StringVar(&opts.tracePath, "trace-file", "", "optional path to persist the run's event stream as JSONL")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "optional host:port to serve Prometheus metrics on (e.g. :9090)")
	cmd.Flags().StringVar(&opts.otlpEndpoint, "otlp-endpoint", "", "optional OTLP/gRPC collector endpoint for distributed tracing")
	cmd.Flags().StringVar(&opts.jobsDSN, "jobs-dsn", "", "optional CockroachDB/Postgres DSN for persisting async tool jobs (defaults to an in-memory store)")
	return cmd
}

func runAgent(ctx context.Context, opts *runOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadOptionalConfig(opts.configPath)
	if err != nil {
		return err
	}
	configureLogging(cfg)

	brain, err := buildBrain(opts.provider, cfg)
	if err != nil {
		return err
	}

	jobStore, closeJobStore, err := buildJobStore(opts.jobsDSN)
	if err != nil {
		return err
	}
	defer closeJobStore()

	registry := agent.NewToolRegistry()
	registerExampleTools(registry, opts.workspace, cfg, jobStore)
	tools := selectTools(registry, cfg)

	adapters := agent.NewAdapterRegistry()
	adapters.Use(agent.LineAdapter{})

	runID := agentRunID()
	if opts.tracePath != "" {
		runTrace, err := agent.NewRunTraceFile(opts.tracePath, runID)
		if err != nil {
			return fmt.Errorf("open trace file: %w", err)
		}
		defer runTrace.Close()
		adapters.Use(runTrace)
	}

	if opts.metricsAddr != "" {
		stopMetrics, err := serveMetrics(opts.metricsAddr, adapters)
		if err != nil {
			return err
		}
		defer stopMetrics()
	}

	if opts.otlpEndpoint != "" {
		_, providerModel, err := resolveProviderModel(opts.provider, cfg)
		if err != nil {
			return err
		}
		tracer, shutdown := observability.NewTracer(observability.TraceConfig{
			ServiceName: "shai-agent",
			Endpoint:    opts.otlpEndpoint,
		})
		defer func() { _ = shutdown(ctx) }()
		adapters.Use(agent.NewTracingAdapter(tracer, opts.provider, providerModel))
	}

	ag := agent.NewAgent(agent.AgentConfig{
		ID:          runID,
		Brain:       brain,
		Tools:       tools,
		Method:      agent.ToolCallMethod(opts.method),
		Sudo:        opts.sudo,
		ResultGuard: resultGuardFromConfig(cfg),
	})
	policy.DefaultApprovalPolicy().ApplyTo(ag.Tools(), ag.Claims())

	return runSession(ctx, ag, adapters)
}

// runSession drives one interactive terminal session: a single goroutine
// reads lines from stdin into lineCh, and the select loop below is the
// only consumer of both that channel and the agent's public event stream,
// so a pending permission or user-input prompt and an ordinary next-turn
// line are never read concurrently.
func runSession(ctx context.Context, ag *agent.Agent, adapters *agent.AdapterRegistry) error {
	controller := ag.Controller()
	defer controller.Drop()

	subID, sub := ag.Subscribe()
	defer ag.Unsubscribe(subID)

	lines := make(chan string)
	go scanStdin(lines)

	runErrCh := make(chan error, 1)
	go func() {
		_, err := ag.Run(ctx)
		runErrCh <- err
	}()

	var pendingPermission, pendingQuery string
	fmt.Print("> ")

	for {
		select {
		case evt, ok := <-sub:
			if !ok {
				return <-runErrCh
			}
			for _, out := range adapters.Dispatch(evt, ag.ID()) {
				if line, ok := out.(string); ok {
					fmt.Println(line)
				}
			}
			switch e := evt.(type) {
			case agent.EventPermissionRequired:
				pendingPermission = e.ID
				fmt.Printf("permission required for %q — allow? [y/N/a(lways)] ", e.Request.ToolName)
			case agent.EventUserInputRequired:
				pendingQuery = e.ID
				fmt.Printf("> ")
			case agent.EventCompleted:
				return <-runErrCh
			}

		case line, ok := <-lines:
			if !ok {
				_ = controller.Terminate(ctx)
				continue
			}
			handleLine(ctx, controller, strings.TrimSpace(line), &pendingPermission, &pendingQuery)

		case <-ctx.Done():
			_ = controller.Terminate(ctx)
			return <-runErrCh
		}
	}
}

func handleLine(ctx context.Context, controller *agent.AgentController, line string, pendingPermission, pendingQuery *string) {
	switch {
	case *pendingPermission != "":
		decision := parsePermissionDecision(line)
		_ = controller.ResponsePermissionRequest(ctx, *pendingPermission, agent.PermissionResponse{Decision: decision})
		*pendingPermission = ""
	case *pendingQuery != "":
		_ = controller.ResponseUserQuery(ctx, *pendingQuery, agent.UserResponse{Text: line})
		*pendingQuery = ""
		fmt.Print("> ")
	case line == "/quit" || line == "/exit":
		_ = controller.Terminate(ctx)
	case line == "":
		fmt.Print("> ")
	default:
		if err := controller.SendUserInput(ctx, line); err != nil {
			fmt.Println("error:", err)
		}
	}
}

func parsePermissionDecision(line string) agent.PermissionDecision {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return agent.PermissionAllow
	case "a", "always":
		return agent.PermissionAllowAlways
	default:
		return agent.PermissionDeny
	}
}

func scanStdin(out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}

// buildJobStore selects the async tool-job backend: a CockroachDB/Postgres
// store when a DSN is configured, otherwise the in-memory store. The
// returned closer releases database resources and is always safe to defer.
func buildJobStore(dsn string) (jobs.Store, func(), error) {
	if dsn == "" {
		return jobs.NewMemoryStore(), func() {}, nil
	}
	store, err := jobs.NewCockroachStoreFromDSN(dsn, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("connect job store: %w", err)
	}
	return store, func() { _ = store.Close() }, nil
}

func registerExampleTools(registry *agent.ToolRegistry, workspace string, cfg *config.Config, store jobs.Store) {
	fileCfg := files.Config{Workspace: workspace}
	registry.Register(agent.AsAnyTool[files.ReadParams](files.NewReadTool(fileCfg)))
	registry.Register(agent.AsAnyTool[files.WriteParams](files.NewWriteTool(fileCfg)))
	registry.Register(agent.AsAnyTool[files.EditParams](files.NewEditTool(fileCfg)))

	manager := execTool.NewManager(workspace)
	manager.SetJobStore(store)
	registry.Register(agent.AsAnyTool[execTool.ExecParams](execTool.NewExecTool("exec", manager)))
	registry.Register(agent.AsAnyTool[execTool.ProcessParams](execTool.NewProcessTool(manager)))

	registry.Register(agent.AsAnyTool[websearch.FetchParams](websearch.NewWebFetchTool(nil)))
	if cfg != nil && (cfg.Tools.WebSearch.URL != "" || cfg.Tools.WebSearch.BraveAPIKey != "") {
		searchCfg := websearch.Config{
			SearXNGURL:  cfg.Tools.WebSearch.URL,
			BraveAPIKey: cfg.Tools.WebSearch.BraveAPIKey,
		}
		registry.Register(agent.AsAnyTool[websearch.SearchParams](websearch.NewWebSearchTool(&searchCfg)))
	}

	registry.Register(agent.AsAnyTool[jobTools.StatusParams](jobTools.NewStatusTool(store)))
	registry.Register(agent.AsAnyTool[jobTools.CancelParams](jobTools.NewCancelTool(store)))
	registry.Register(agent.AsAnyTool[jobTools.ListParams](jobTools.NewListTool(store)))
}

// selectTools applies the agent profile's tool allowlist. Names that match
// no registered tool are reported rather than silently dropped, since a
// typo here would otherwise just shrink the toolbox.
func selectTools(registry *agent.ToolRegistry, cfg *config.Config) []agent.AnyTool {
	all := registry.List()
	if cfg == nil || len(cfg.Agent.Tools) == 0 {
		return all
	}
	allowed := make(map[string]bool, len(cfg.Agent.Tools))
	for _, name := range cfg.Agent.Tools {
		allowed[name] = true
	}
	var out []agent.AnyTool
	for _, t := range all {
		if allowed[t.Name()] {
			out = append(out, t)
			delete(allowed, t.Name())
		}
	}
	for name := range allowed {
		slog.Warn("agent.tools names an unknown tool", "tool", name)
	}
	return out
}

const defaultSystemPrompt = "You are a careful, terse coding assistant operating through a sandboxed tool set."

func buildBrain(provider string, cfg *config.Config) (agent.Brain, error) {
	prompt := defaultSystemPrompt
	var temperature *float64
	if cfg != nil {
		if cfg.Agent.SystemPrompt != "" {
			prompt = cfg.Agent.SystemPrompt
		}
		temperature = cfg.Agent.Temperature
	}

	switch strings.ToLower(provider) {
	case "openai":
		apiKey, baseURL, model := providerSettings(cfg, "openai", "OPENAI_API_KEY")
		warnIfModelUnsuitable(model)
		return providers.NewOpenAIBrain(providers.OpenAIConfig{
			APIKey: apiKey, BaseURL: baseURL, DefaultModel: model,
			SystemPrompt: prompt, Temperature: temperature,
		})
	case "anthropic", "":
		apiKey, baseURL, model := providerSettings(cfg, "anthropic", "ANTHROPIC_API_KEY")
		warnIfModelUnsuitable(model)
		return providers.NewAnthropicBrain(providers.AnthropicConfig{
			APIKey: apiKey, BaseURL: baseURL, DefaultModel: model,
			SystemPrompt: prompt, Temperature: temperature,
		})
	case "gemini":
		apiKey, _, model := providerSettings(cfg, "gemini", "GEMINI_API_KEY")
		if apiKey == "" {
			apiKey = os.Getenv("GOOGLE_API_KEY")
		}
		warnIfModelUnsuitable(model)
		return providers.NewGeminiBrain(providers.GeminiConfig{
			APIKey: apiKey, DefaultModel: model,
			SystemPrompt: prompt, Temperature: temperature,
		})
	default:
		return nil, fmt.Errorf("unknown provider %q (want anthropic, openai, or gemini)", provider)
	}
}

// configureLogging rebuilds the default slog handler from the config
// file's logging section; without a config file main's text handler at
// info level stays in effect.
func configureLogging(cfg *config.Config) {
	if cfg == nil {
		return
	}
	var level slog.Level
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Logging.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// resolveProviderModel reports the provider name and effective model string
// that buildBrain would use, without constructing a brain — used to label
// TracingAdapter's think spans before the brain (and its own client) exist.
func resolveProviderModel(provider string, cfg *config.Config) (name, model string, err error) {
	switch strings.ToLower(provider) {
	case "openai":
		_, _, m := providerSettings(cfg, "openai", "OPENAI_API_KEY")
		return "openai", m, nil
	case "anthropic", "":
		_, _, m := providerSettings(cfg, "anthropic", "ANTHROPIC_API_KEY")
		return "anthropic", m, nil
	case "gemini":
		_, _, m := providerSettings(cfg, "gemini", "GEMINI_API_KEY")
		return "gemini", m, nil
	default:
		return "", "", fmt.Errorf("unknown provider %q (want anthropic, openai, or gemini)", provider)
	}
}

// serveMetrics registers a MetricsAdapter on a fresh Prometheus registry and
// serves it over HTTP until the process exits; the returned stop function
// shuts the listener down.
func serveMetrics(addr string, adapters *agent.AdapterRegistry) (func(), error) {
	reg := prometheus.NewRegistry()
	adapters.Use(agent.NewMetricsAdapter(reg))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server stopped", "error", err)
		}
	}()

	return func() { _ = server.Close() }, nil
}

// warnIfModelUnsuitable looks the configured model up in the shared model
// catalog and logs a warning if it is unknown or lacks tool-calling support;
// this agent always drives its brain through tool calls, so a model without
// CapTools would fail every turn.
func warnIfModelUnsuitable(model string) {
	if strings.TrimSpace(model) == "" {
		return
	}
	m, ok := models.Get(model)
	if !ok {
		slog.Warn("model not found in catalog; proceeding without capability checks", "model", model)
		return
	}
	if !m.SupportsTools() {
		slog.Warn("configured model does not advertise tool-calling support", "model", model, "provider", m.Provider)
	}
}

func providerSettings(cfg *config.Config, name, envKey string) (apiKey, baseURL, model string) {
	if cfg != nil {
		if p, ok := cfg.LLM.Providers[name]; ok {
			apiKey, baseURL, model = p.APIKey, p.BaseURL, p.DefaultModel
		}
	}
	if apiKey == "" {
		apiKey = os.Getenv(envKey)
	}
	return apiKey, baseURL, model
}

func resultGuardFromConfig(cfg *config.Config) agent.ToolResultGuard {
	if cfg == nil {
		return agent.ToolResultGuard{SanitizeSecrets: true, MaxChars: agent.DefaultMaxToolResultSize}
	}
	rg := cfg.Tools.Execution.ResultGuard
	return agent.ToolResultGuard{
		Enabled:         rg.Enabled,
		MaxChars:        rg.MaxChars,
		Denylist:        rg.Denylist,
		RedactPatterns:  rg.RedactPatterns,
		RedactionText:   rg.RedactionText,
		TruncateSuffix:  rg.TruncateSuffix,
		SanitizeSecrets: rg.SanitizeSecrets,
	}
}

func loadOptionalConfig(path string) (*config.Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", path, err)
	}
	return cfg, nil
}

func agentRunID() string {
	id, err := os.Hostname()
	if err != nil || id == "" {
		id = "local"
	}
	return fmt.Sprintf("shai-agent-%s-%d", id, os.Getpid())
}
