package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/haasonsaas/nexus/internal/agent"
)

// SearchBackend names a search provider.
type SearchBackend string

const (
	BackendSearXNG    SearchBackend = "searxng"
	BackendBrave      SearchBackend = "brave"
	BackendDuckDuckGo SearchBackend = "duckduckgo"

	maxResultCount = 20
	maxCacheSize   = 1000
)

// Config selects and credentials the search backends.
type Config struct {
	SearXNGURL         string        `json:"searxng_url,omitempty"`
	BraveAPIKey        string        `json:"brave_api_key,omitempty"`
	DefaultBackend     SearchBackend `json:"default_backend,omitempty"`
	ExtractContent     bool          `json:"extract_content,omitempty"`
	DefaultResultCount int           `json:"default_result_count,omitempty"`
	CacheTTL           int           `json:"cache_ttl,omitempty"` // seconds
}

// SearchParams are the parameters accepted by WebSearchTool.
type SearchParams struct {
	Query          string        `json:"query"`
	ResultCount    int           `json:"result_count,omitempty"`
	ExtractContent bool          `json:"extract_content,omitempty"`
	Backend        SearchBackend `json:"backend,omitempty"`
}

// SearchResult is one hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Content string `json:"content,omitempty"`
}

// SearchResponse is the tool's JSON output shape.
type SearchResponse struct {
	Query       string         `json:"query"`
	Results     []SearchResult `json:"results"`
	ResultCount int            `json:"result_count"`
	Backend     SearchBackend  `json:"backend"`
}

// backend is one search provider's request/parse cycle.
type backend interface {
	id() SearchBackend
	search(ctx context.Context, client *http.Client, query string, count int) ([]SearchResult, error)
}

// WebSearchTool implements agent.Tool[SearchParams]: web search over a
// configurable backend with a TTL cache, falling back to DuckDuckGo when
// the configured backend fails.
type WebSearchTool struct {
	config    *Config
	client    *http.Client
	backends  map[SearchBackend]backend
	extractor *ContentExtractor

	cacheMu sync.RWMutex
	cache   map[string]cacheEntry
}

type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// NewWebSearchTool builds the tool, registering every backend the config
// provides credentials for plus the keyless DuckDuckGo fallback.
func NewWebSearchTool(config *Config) *WebSearchTool {
	if config == nil {
		config = &Config{}
	}
	if config.DefaultResultCount == 0 {
		config.DefaultResultCount = 5
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = 300
	}

	backends := map[SearchBackend]backend{
		BackendDuckDuckGo: duckduckgoBackend{},
	}
	if config.SearXNGURL != "" {
		backends[BackendSearXNG] = searxngBackend{baseURL: config.SearXNGURL}
	}
	if config.BraveAPIKey != "" {
		backends[BackendBrave] = braveBackend{apiKey: config.BraveAPIKey}
	}

	if config.DefaultBackend == "" {
		switch {
		case config.SearXNGURL != "":
			config.DefaultBackend = BackendSearXNG
		case config.BraveAPIKey != "":
			config.DefaultBackend = BackendBrave
		default:
			config.DefaultBackend = BackendDuckDuckGo
		}
	}

	return &WebSearchTool{
		config:    config,
		client:    &http.Client{Timeout: 30 * time.Second},
		backends:  backends,
		extractor: NewContentExtractor(),
		cache:     make(map[string]cacheEntry),
	}
}

func (t *WebSearchTool) Name() string { return "web_search" }

func (t *WebSearchTool) Description() string {
	return "Search the web for information. Can optionally extract full content from result URLs."
}

func (t *WebSearchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "The search query"},
			"result_count": {"type": "integer", "description": "Number of results to return (default: 5, max: 20)", "minimum": 1, "maximum": 20},
			"extract_content": {"type": "boolean", "description": "Whether to extract full content from result URLs (default: false)"},
			"backend": {"type": "string", "enum": ["searxng", "brave", "duckduckgo"], "description": "Search backend to use (default: configured default)"}
		},
		"required": ["query"]
	}`)
}

// Capabilities reports that web_search only reaches the network; it never
// touches the local filesystem, so it carries no Read/Write capability.
func (t *WebSearchTool) Capabilities() []agent.ToolCapability {
	return []agent.ToolCapability{agent.CapabilityNetwork}
}

// Preview has no side-effect-free way to show a result without performing
// the search itself, so it declines.
func (t *WebSearchTool) Preview(ctx context.Context, params SearchParams) (agent.ToolResult, bool) {
	return agent.ToolResult{}, false
}

func (t *WebSearchTool) Execute(ctx context.Context, params SearchParams) (agent.ToolResult, error) {
	if params.Query == "" {
		return agent.ToolErrorResult("Query parameter is required", nil), nil
	}
	if params.ResultCount <= 0 {
		params.ResultCount = t.config.DefaultResultCount
	} else if params.ResultCount > maxResultCount {
		params.ResultCount = maxResultCount
	}
	if params.Backend == "" {
		params.Backend = t.config.DefaultBackend
	}
	if !params.ExtractContent {
		params.ExtractContent = t.config.ExtractContent
	}

	key := cacheKey(params)
	if resp := t.cached(key); resp != nil {
		return formatSearchResponse(resp), nil
	}

	resp, err := t.runSearch(ctx, params)
	if err != nil {
		return agent.ToolErrorResult(fmt.Sprintf("Search failed: %v", err), nil), nil
	}
	if params.ExtractContent {
		t.enrichResults(ctx, resp.Results)
	}
	t.store(key, resp)
	return formatSearchResponse(resp), nil
}

func (t *WebSearchTool) runSearch(ctx context.Context, params SearchParams) (*SearchResponse, error) {
	b, ok := t.backends[params.Backend]
	if !ok {
		return nil, fmt.Errorf("unknown or unconfigured backend: %s", params.Backend)
	}
	results, err := b.search(ctx, t.client, params.Query, params.ResultCount)
	if err != nil && b.id() != BackendDuckDuckGo {
		// Keyless fallback keeps the tool useful when the configured
		// backend is down or misconfigured.
		b = t.backends[BackendDuckDuckGo]
		results, err = b.search(ctx, t.client, params.Query, params.ResultCount)
	}
	if err != nil {
		return nil, err
	}
	return &SearchResponse{
		Query:       params.Query,
		Results:     results,
		ResultCount: len(results),
		Backend:     b.id(),
	}, nil
}

// enrichResults fetches full content for each hit in parallel; a fetch
// failure just leaves that hit's Content empty.
func (t *WebSearchTool) enrichResults(ctx context.Context, results []SearchResult) {
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(r *SearchResult) {
			defer wg.Done()
			if content, err := t.extractor.Extract(ctx, r.URL); err == nil {
				r.Content = content
			}
		}(&results[i])
	}
	wg.Wait()
}

func formatSearchResponse(resp *SearchResponse) agent.ToolResult {
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return agent.ToolErrorResult(fmt.Sprintf("Failed to format response: %v", err), nil)
	}
	return agent.ToolSuccess(string(out), nil)
}

func cacheKey(params SearchParams) string {
	return fmt.Sprintf("%s:%d:%v:%s", params.Backend, params.ResultCount, params.ExtractContent, params.Query)
}

func (t *WebSearchTool) cached(key string) *SearchResponse {
	t.cacheMu.RLock()
	defer t.cacheMu.RUnlock()
	entry, ok := t.cache[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil
	}
	return entry.response
}

func (t *WebSearchTool) store(key string, resp *SearchResponse) {
	t.cacheMu.Lock()
	defer t.cacheMu.Unlock()
	now := time.Now()
	for k, v := range t.cache {
		if now.After(v.expiresAt) {
			delete(t.cache, k)
		}
	}
	for len(t.cache) >= maxCacheSize {
		oldestKey := ""
		var oldest time.Time
		for k, v := range t.cache {
			if oldestKey == "" || v.expiresAt.Before(oldest) {
				oldestKey, oldest = k, v.expiresAt
			}
		}
		delete(t.cache, oldestKey)
	}
	t.cache[key] = cacheEntry{
		response:  resp,
		expiresAt: now.Add(time.Duration(t.config.CacheTTL) * time.Second),
	}
}

// searxngBackend queries a self-hosted SearXNG instance's JSON API.
type searxngBackend struct {
	baseURL string
}

func (searxngBackend) id() SearchBackend { return BackendSearXNG }

func (b searxngBackend) search(ctx context.Context, client *http.Client, query string, count int) ([]SearchResult, error) {
	base, err := url.Parse(b.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid SearXNG URL: %w", err)
	}
	base.Path = "/search"
	base.RawQuery = url.Values{
		"q":          {query},
		"format":     {"json"},
		"pageno":     {"1"},
		"categories": {"general"},
	}.Encode()

	var payload struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := getJSON(ctx, client, base.String(), nil, &payload); err != nil {
		return nil, fmt.Errorf("searxng: %w", err)
	}

	results := make([]SearchResult, 0, count)
	for _, r := range payload.Results {
		if len(results) == count {
			break
		}
		results = append(results, SearchResult{Title: r.Title, URL: r.URL, Snippet: r.Content})
	}
	return results, nil
}

// braveBackend queries the Brave Search API.
type braveBackend struct {
	apiKey string
}

func (braveBackend) id() SearchBackend { return BackendBrave }

func (b braveBackend) search(ctx context.Context, client *http.Client, query string, count int) ([]SearchResult, error) {
	endpoint := "https://api.search.brave.com/res/v1/web/search?" + url.Values{
		"q":     {query},
		"count": {strconv.Itoa(count)},
	}.Encode()

	var payload struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	headers := map[string]string{
		"Accept":               "application/json",
		"X-Subscription-Token": b.apiKey,
	}
	if err := getJSON(ctx, client, endpoint, headers, &payload); err != nil {
		return nil, fmt.Errorf("brave: %w", err)
	}

	results := make([]SearchResult, 0, len(payload.Web.Results))
	for _, r := range payload.Web.Results {
		results = append(results, SearchResult{Title: r.Title, URL: r.URL, Snippet: r.Description})
	}
	return results, nil
}

// duckduckgoBackend queries DuckDuckGo's keyless Instant Answer API. Its
// coverage is shallow (abstract plus related topics), which is why it is
// the default only when neither SearXNG nor Brave is configured, and
// otherwise the fallback.
type duckduckgoBackend struct{}

func (duckduckgoBackend) id() SearchBackend { return BackendDuckDuckGo }

func (duckduckgoBackend) search(ctx context.Context, client *http.Client, query string, count int) ([]SearchResult, error) {
	endpoint := "https://api.duckduckgo.com/?" + url.Values{
		"q":       {query},
		"format":  {"json"},
		"no_html": {"1"},
	}.Encode()

	var payload struct {
		AbstractText  string `json:"AbstractText"`
		AbstractURL   string `json:"AbstractURL"`
		Heading       string `json:"Heading"`
		RelatedTopics []struct {
			FirstURL string `json:"FirstURL"`
			Text     string `json:"Text"`
		} `json:"RelatedTopics"`
	}
	headers := map[string]string{"User-Agent": extractorUserAgent}
	if err := getJSON(ctx, client, endpoint, headers, &payload); err != nil {
		return nil, fmt.Errorf("duckduckgo: %w", err)
	}

	var results []SearchResult
	if payload.AbstractText != "" && payload.AbstractURL != "" {
		results = append(results, SearchResult{
			Title:   payload.Heading,
			URL:     payload.AbstractURL,
			Snippet: payload.AbstractText,
		})
	}
	for _, topic := range payload.RelatedTopics {
		if len(results) == count {
			break
		}
		if topic.FirstURL == "" || topic.Text == "" {
			continue
		}
		title := topic.Text
		if len(title) > 100 {
			title = title[:100]
		}
		results = append(results, SearchResult{Title: title, URL: topic.FirstURL, Snippet: topic.Text})
	}
	return results, nil
}

// getJSON is the shared request/decode cycle for every backend.
func getJSON(ctx context.Context, client *http.Client, endpoint string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
