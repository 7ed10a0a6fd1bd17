package files

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haasonsaas/nexus/internal/agent"
)

func TestResolver(t *testing.T) {
	root := t.TempDir()
	r := Resolver{Root: root}

	tests := []struct {
		path    string
		wantErr bool
	}{
		{"notes.txt", false},
		{"sub/dir/notes.txt", false},
		{"sub/../notes.txt", false},
		{"", true},
		{"../outside.txt", true},
		{"sub/../../outside.txt", true},
	}
	for _, tt := range tests {
		got, err := r.Resolve(tt.path)
		if tt.wantErr != (err != nil) {
			t.Errorf("Resolve(%q) err = %v, wantErr %v", tt.path, err, tt.wantErr)
			continue
		}
		if err == nil && !strings.HasPrefix(got, root) {
			t.Errorf("Resolve(%q) = %q, escapes %q", tt.path, got, root)
		}
	}
}

func TestReadWriteEdit(t *testing.T) {
	root := t.TempDir()
	cfg := Config{Workspace: root}
	ctx := context.Background()

	if _, err := NewWriteTool(cfg).Execute(ctx, WriteParams{Path: "notes.txt", Content: "hello world"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	result, err := NewReadTool(cfg).Execute(ctx, ReadParams{Path: "notes.txt"})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(result.Output, "hello world") {
		t.Fatalf("read output missing content: %s", result.Output)
	}

	if _, err := NewEditTool(cfg).Execute(ctx, EditParams{
		Path:  "notes.txt",
		Edits: []EditOperation{{OldText: "world", NewText: "agent"}},
	}); err != nil {
		t.Fatalf("edit: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "notes.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello agent" {
		t.Fatalf("content after edit: %q", data)
	}
}

func TestWriteAppend(t *testing.T) {
	root := t.TempDir()
	tool := NewWriteTool(Config{Workspace: root})
	ctx := context.Background()

	_, _ = tool.Execute(ctx, WriteParams{Path: "log.txt", Content: "one\n"})
	_, _ = tool.Execute(ctx, WriteParams{Path: "log.txt", Content: "two\n", Append: true})

	data, _ := os.ReadFile(filepath.Join(root, "log.txt"))
	if string(data) != "one\ntwo\n" {
		t.Fatalf("append result: %q", data)
	}
}

func TestReadTruncation(t *testing.T) {
	root := t.TempDir()
	full := strings.Repeat("x", 100)
	if err := os.WriteFile(filepath.Join(root, "big.txt"), []byte(full), 0o644); err != nil {
		t.Fatal(err)
	}

	tool := NewReadTool(Config{Workspace: root, MaxReadBytes: 10})
	result, err := tool.Execute(context.Background(), ReadParams{Path: "big.txt"})
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
	if len(payload.Content) != 10 || !payload.Truncated {
		t.Errorf("content len %d, truncated %v", len(payload.Content), payload.Truncated)
	}
}

func TestEditOldTextNotFound(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "f.txt"), []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}
	result, err := NewEditTool(Config{Workspace: root}).Execute(context.Background(), EditParams{
		Path:  "f.txt",
		Edits: []EditOperation{{OldText: "zzz", NewText: "yyy"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError() {
		t.Error("expected error result for missing old_text")
	}
}

func TestCapabilities(t *testing.T) {
	cfg := Config{Workspace: t.TempDir()}
	if caps := NewReadTool(cfg).Capabilities(); len(caps) != 1 || caps[0] != agent.CapabilityRead {
		t.Errorf("read capabilities = %v", caps)
	}
	for name, caps := range map[string][]agent.ToolCapability{
		"write": NewWriteTool(cfg).Capabilities(),
		"edit":  NewEditTool(cfg).Capabilities(),
	} {
		if len(caps) != 1 || caps[0] != agent.CapabilityWrite {
			t.Errorf("%s capabilities = %v", name, caps)
		}
	}
}
