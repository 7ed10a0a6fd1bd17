package agent

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestRunTrace_WritesHeaderThenEntries(t *testing.T) {
	var buf bytes.Buffer
	trace := NewRunTrace(&buf, "run-1")

	trace.Format(EventThinkingStart{}, "sess")
	trace.Format(EventCompleted{Success: true}, "sess")

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3 (header + 2 entries)", len(lines))
	}

	var header RunTraceHeader
	if err := json.Unmarshal([]byte(lines[0]), &header); err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}
	if header.Version != runTraceVersion || header.RunID != "run-1" {
		t.Errorf("header = %+v, want version %d run_id run-1", header, runTraceVersion)
	}

	var first RawRunTraceEntry
	if err := json.Unmarshal([]byte(lines[1]), &first); err != nil {
		t.Fatalf("unmarshal entry 0: %v", err)
	}
	if first.Sequence != 1 || first.Type != "thinking_start" {
		t.Errorf("entry 0 = %+v, want sequence 1 type thinking_start", first)
	}

	var second RawRunTraceEntry
	if err := json.Unmarshal([]byte(lines[2]), &second); err != nil {
		t.Fatalf("unmarshal entry 1: %v", err)
	}
	if second.Sequence != 2 || second.Type != "completed" {
		t.Errorf("entry 1 = %+v, want sequence 2 type completed", second)
	}
}

func TestRunTrace_FormatNeverProducesAdapterOutput(t *testing.T) {
	var buf bytes.Buffer
	trace := NewRunTrace(&buf, "run-1")

	out, ok := trace.Format(EventThinkingStart{}, "sess")
	if ok || out != nil {
		t.Errorf("Format() = (%v, %v), want (nil, false)", out, ok)
	}
}

func TestRunTrace_Redactor(t *testing.T) {
	var buf bytes.Buffer
	redactor := func(e *RunTraceEntry) {
		if tc, ok := e.Event.(EventToolCallCompleted); ok {
			tc.Result = ToolSuccess("[REDACTED]", nil)
			e.Event = tc
		}
	}
	trace := NewRunTrace(&buf, "run-1", WithRunTraceRedactor(redactor))
	trace.Format(EventToolCallCompleted{Result: ToolSuccess("secret output", nil)}, "sess")

	if strings.Contains(buf.String(), "secret output") {
		t.Errorf("redactor did not apply: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "[REDACTED]") {
		t.Errorf("expected redacted placeholder in output: %s", buf.String())
	}
}

func TestRunTraceReader_ReadAllAndValidate(t *testing.T) {
	var buf bytes.Buffer
	trace := NewRunTrace(&buf, "run-2")
	trace.Format(EventThinkingStart{}, "sess")
	trace.Format(EventToolCallStarted{Call: ToolCall{ToolName: "exec"}}, "sess")
	trace.Format(EventCompleted{Success: true}, "sess")

	reader, err := NewRunTraceReader(&buf)
	if err != nil {
		t.Fatalf("NewRunTraceReader() error = %v", err)
	}
	if reader.Header().RunID != "run-2" {
		t.Errorf("Header().RunID = %q, want run-2", reader.Header().RunID)
	}

	entries, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("ReadAll() returned %d entries, want 3", len(entries))
	}

	if errs := reader.Validate(entries); len(errs) != 0 {
		t.Errorf("Validate() = %v, want no errors", errs)
	}
}

func TestRunTraceReader_RejectsWrongVersion(t *testing.T) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(RunTraceHeader{Version: 99, RunID: "run-3"}); err != nil {
		t.Fatalf("encode header: %v", err)
	}

	if _, err := NewRunTraceReader(&buf); err == nil {
		t.Error("NewRunTraceReader() error = nil, want error for unsupported version")
	}
}

func TestRunTraceReader_ValidateDetectsOutOfOrderSequence(t *testing.T) {
	reader := &RunTraceReader{}
	entries := []RawRunTraceEntry{
		{Sequence: 1},
		{Sequence: 1},
	}
	errs := reader.Validate(entries)
	if len(errs) == 0 {
		t.Error("Validate() = no errors, want a non-increasing-sequence error")
	}
}
