package models

import "testing"

func TestGetByIDAndAlias(t *testing.T) {
	tests := []struct {
		lookup string
		wantID string
	}{
		{"claude-3-5-sonnet-latest", "claude-3-5-sonnet-latest"},
		{"sonnet", "claude-3-5-sonnet-latest"},
		{"SONNET", "claude-3-5-sonnet-latest"},
		{"gpt-4o-2024-11-20", "gpt-4o"},
		{"gemini-2.0-flash-exp", "gemini-2.0-flash"},
	}
	for _, tt := range tests {
		m, ok := Get(tt.lookup)
		if !ok {
			t.Fatalf("Get(%q): not found", tt.lookup)
		}
		if m.ID != tt.wantID {
			t.Errorf("Get(%q) = %q, want %q", tt.lookup, m.ID, tt.wantID)
		}
	}
}

func TestGetUnknown(t *testing.T) {
	if _, ok := Get("totally-made-up-model"); ok {
		t.Error("expected unknown model to miss")
	}
}

func TestSupportsTools(t *testing.T) {
	for _, p := range []Provider{Anthropic, OpenAI, Gemini} {
		list := ForProvider(p)
		if len(list) == 0 {
			t.Fatalf("no catalog entries for %s", p)
		}
		for _, m := range list {
			if !m.SupportsTools() {
				t.Errorf("%s: expected tool support", m.ID)
			}
		}
	}
}

func TestForProviderSorted(t *testing.T) {
	list := ForProvider(Anthropic)
	for i := 1; i < len(list); i++ {
		if list[i-1].ID >= list[i].ID {
			t.Errorf("ForProvider not sorted: %s >= %s", list[i-1].ID, list[i].ID)
		}
	}
}
