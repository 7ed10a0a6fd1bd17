package websearch

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/haasonsaas/nexus/internal/agent"
)

func TestWebFetchExecute(t *testing.T) {
	srv := serveHTML(t, samplePage)
	tool := NewWebFetchTool(nil, WithExtractor(NewContentExtractorForTesting()))

	result, err := tool.Execute(context.Background(), FetchParams{URL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError() {
		t.Fatalf("tool error: %s", result.String())
	}

	var payload struct {
		URL     string `json:"url"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(result.Output), &payload); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if payload.URL != srv.URL {
		t.Errorf("url = %q", payload.URL)
	}
	if !strings.Contains(payload.Content, "Sample Page") {
		t.Errorf("content missing page text: %q", payload.Content)
	}
}

func TestWebFetchTruncates(t *testing.T) {
	srv := serveHTML(t, samplePage)
	tool := NewWebFetchTool(&FetchConfig{MaxChars: 40}, WithExtractor(NewContentExtractorForTesting()))

	result, err := tool.Execute(context.Background(), FetchParams{URL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	var payload struct {
		Content   string `json:"content"`
		Truncated bool   `json:"truncated"`
	}
	if err := json.Unmarshal([]byte(result.Output), &payload); err != nil {
		t.Fatal(err)
	}
	if !payload.Truncated {
		t.Error("expected truncated flag")
	}
	if len(payload.Content) > 40+len("...") {
		t.Errorf("content length %d exceeds cap", len(payload.Content))
	}
}

func TestWebFetchMissingURL(t *testing.T) {
	tool := NewWebFetchTool(nil)
	result, err := tool.Execute(context.Background(), FetchParams{})
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError() {
		t.Error("expected error result for missing url")
	}
}

func TestWebFetchCapabilitiesNetworkOnly(t *testing.T) {
	tool := NewWebFetchTool(nil)
	caps := tool.Capabilities()
	if len(caps) != 1 || caps[0] != agent.CapabilityNetwork {
		t.Errorf("capabilities = %v", caps)
	}
}
