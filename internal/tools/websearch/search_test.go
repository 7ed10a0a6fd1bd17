package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/haasonsaas/nexus/internal/agent"
)

func searxngServer(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Query().Get("format") != "json" {
			t.Errorf("missing format=json, query: %s", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]string{
				{"title": "First", "url": "https://example.com/1", "content": "snippet one"},
				{"title": "Second", "url": "https://example.com/2", "content": "snippet two"},
				{"title": "Third", "url": "https://example.com/3", "content": "snippet three"},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func decodeResponse(t *testing.T, result string) SearchResponse {
	t.Helper()
	var resp SearchResponse
	if err := json.Unmarshal([]byte(result), &resp); err != nil {
		t.Fatalf("tool output is not a SearchResponse: %v\n%s", err, result)
	}
	return resp
}

func TestSearchSearXNG(t *testing.T) {
	srv, _ := searxngServer(t)
	tool := NewWebSearchTool(&Config{SearXNGURL: srv.URL})

	result, err := tool.Execute(context.Background(), SearchParams{Query: "go testing", ResultCount: 2})
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError() {
		t.Fatalf("tool error: %s", result.String())
	}
	resp := decodeResponse(t, result.Output)
	if resp.Backend != BackendSearXNG {
		t.Errorf("backend = %s", resp.Backend)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("got %d results, want 2 (count cap)", len(resp.Results))
	}
	if resp.Results[0].Title != "First" || resp.Results[0].Snippet != "snippet one" {
		t.Errorf("first result = %+v", resp.Results[0])
	}
}

func TestSearchCaching(t *testing.T) {
	srv, calls := searxngServer(t)
	tool := NewWebSearchTool(&Config{SearXNGURL: srv.URL})

	params := SearchParams{Query: "cached query"}
	for i := 0; i < 3; i++ {
		if _, err := tool.Execute(context.Background(), params); err != nil {
			t.Fatal(err)
		}
	}
	if got := atomic.LoadInt32(calls); got != 1 {
		t.Errorf("backend hit %d times, want 1 (cache)", got)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	tool := NewWebSearchTool(nil)
	result, err := tool.Execute(context.Background(), SearchParams{})
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError() {
		t.Error("expected error result for empty query")
	}
}

func TestSearchUnconfiguredBackend(t *testing.T) {
	// No Brave key registered, so asking for brave must fail over to
	// duckduckgo or report the failure — never panic on a missing backend.
	tool := NewWebSearchTool(&Config{})
	result, err := tool.Execute(context.Background(), SearchParams{Query: "x", Backend: "brave"})
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError() {
		t.Errorf("expected error result, got %s", result.Output)
	}
	if !strings.Contains(result.String(), "backend") {
		t.Errorf("error should name the backend problem: %s", result.String())
	}
}

func TestSearchCapabilitiesNetworkOnly(t *testing.T) {
	tool := NewWebSearchTool(nil)
	caps := tool.Capabilities()
	if len(caps) != 1 || caps[0] != agent.CapabilityNetwork {
		t.Errorf("capabilities = %v", caps)
	}
}
