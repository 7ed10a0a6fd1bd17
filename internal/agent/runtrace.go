package agent

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// RunTraceHeader is written as the first line of a run trace file for
// versioning and context. Named distinctly from the core's in-memory
// Trace (conversation history); a RunTraceHeader together with the
// sequence-numbered entries that follow it is a durable recording of the
// public event stream for one agent's lifetime, not the message history
// itself.
type RunTraceHeader struct {
	Version     int       `json:"version"`
	RunID       string    `json:"run_id"`
	StartedAt   time.Time `json:"started_at"`
	Environment string    `json:"environment,omitempty"`
}

// RunTraceEntry is one recorded line: a sequence number, wall-clock
// timestamp, and the event itself under a type tag so a reader can
// discriminate AgentEvent's sealed interface without a custom decoder.
type RunTraceEntry struct {
	Sequence uint64    `json:"sequence"`
	Time     time.Time `json:"time"`
	Type     string    `json:"type"`
	Event    AgentEvent `json:"event"`
}

const runTraceVersion = 1

// RunTraceRedactor optionally rewrites an entry in place before it is
// written, the same hook shape as the teacher's Redactor but operating on
// the wrapping entry rather than the event directly, since some fields
// worth redacting (tool output) live on the boxed AgentEvent value.
type RunTraceRedactor func(e *RunTraceEntry)

// RunTrace is an Adapter that persists the public event stream to a JSONL
// file, one RunTraceHeader followed by one RunTraceEntry per event,
// flushed and synced immediately for crash safety. It is consumed as an
// optional Adapter (see AdapterRegistry), never a core dependency: an
// agent runs identically whether or not a RunTrace is attached.
type RunTrace struct {
	mu       sync.Mutex
	writer   io.Writer
	file     *os.File
	redactor RunTraceRedactor
	header   RunTraceHeader
	seq      uint64
	started  bool
}

// RunTraceOption configures a RunTrace using the functional options
// pattern, mirroring the teacher's TraceOption.
type RunTraceOption func(*RunTrace)

// WithRunTraceRedactor sets a redactor applied to each entry before write.
func WithRunTraceRedactor(r RunTraceRedactor) RunTraceOption {
	return func(t *RunTrace) { t.redactor = r }
}

// WithRunTraceEnvironment sets the environment name recorded in the header.
func WithRunTraceEnvironment(env string) RunTraceOption {
	return func(t *RunTrace) { t.header.Environment = env }
}

// NewRunTrace creates a RunTrace writing JSONL entries to w.
func NewRunTrace(w io.Writer, runID string, opts ...RunTraceOption) *RunTrace {
	t := &RunTrace{
		writer: w,
		header: RunTraceHeader{
			Version:   runTraceVersion,
			RunID:     runID,
			StartedAt: time.Now(),
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewRunTraceFile creates a RunTrace backed by a file at path, created or
// truncated. The caller must call Close when the run ends.
func NewRunTraceFile(path string, runID string, opts ...RunTraceOption) (*RunTrace, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create run trace file: %w", err)
	}
	t := NewRunTrace(f, runID, opts...)
	t.file = f
	return t, nil
}

// Format implements Adapter, letting a RunTrace register directly on an
// AdapterRegistry alongside presentation adapters like LineAdapter. It
// always returns ok=false: a RunTrace's job is the side effect of
// persisting, not producing a value for a consumer to forward.
func (t *RunTrace) Format(event AgentEvent, sessionID string) (any, bool) {
	t.record(event)
	return nil, false
}

// record appends one entry, writing the header first if this is the first
// call. Best-effort: a write failure is swallowed rather than propagated,
// since a broken trace file must never stall the agent it is observing.
func (t *RunTrace) record(event AgentEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started {
		t.started = true
		t.writeLine(t.header)
	}

	t.seq++
	entry := RunTraceEntry{Sequence: t.seq, Time: time.Now(), Type: eventTypeName(event), Event: event}
	if t.redactor != nil {
		t.redactor(&entry)
	}
	t.writeLine(entry)
}

func (t *RunTrace) writeLine(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if _, err := t.writer.Write(data); err != nil {
		return
	}
	if _, err := t.writer.Write([]byte("\n")); err != nil {
		return
	}
	if t.file != nil {
		_ = t.file.Sync()
	}
}

// Close closes the underlying file if one was opened by NewRunTraceFile.
func (t *RunTrace) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file != nil {
		return t.file.Close()
	}
	return nil
}

// eventTypeName returns a short discriminator tag for event, used both in
// the persisted entry and by RunTraceReader to pick a concrete type to
// unmarshal Event's raw JSON into.
func eventTypeName(event AgentEvent) string {
	switch event.(type) {
	case EventStatusChanged:
		return "status_changed"
	case EventThinkingStart:
		return "thinking_start"
	case EventBrainResult:
		return "brain_result"
	case EventToolCallStarted:
		return "tool_call_started"
	case EventToolCallCompleted:
		return "tool_call_completed"
	case EventUserInput:
		return "user_input"
	case EventUserInputRequired:
		return "user_input_required"
	case EventPermissionRequired:
		return "permission_required"
	case EventError:
		return "error"
	case EventCompleted:
		return "completed"
	case EventTokenUsage:
		return "token_usage"
	default:
		return "unknown"
	}
}

// RunTraceReader reads a run trace file back for inspection or replay.
// Because AgentEvent is a sealed interface, entries are decoded generically:
// callers needing a concrete event should switch on RawRunTraceEntry.Type
// and unmarshal RawRunTraceEntry.Event accordingly.
type RunTraceReader struct {
	decoder *json.Decoder
	header  RunTraceHeader
}

// RawRunTraceEntry mirrors RunTraceEntry but leaves Event as raw JSON,
// since json.Unmarshal cannot populate AgentEvent's unexported marker
// method on read — only Format/record ever produce a live AgentEvent.
type RawRunTraceEntry struct {
	Sequence uint64          `json:"sequence"`
	Time     time.Time       `json:"time"`
	Type     string          `json:"type"`
	Event    json.RawMessage `json:"event"`
}

// NewRunTraceReader validates the header and returns a reader positioned
// at the first entry.
func NewRunTraceReader(r io.Reader) (*RunTraceReader, error) {
	decoder := json.NewDecoder(r)
	var header RunTraceHeader
	if err := decoder.Decode(&header); err != nil {
		return nil, fmt.Errorf("read run trace header: %w", err)
	}
	if header.Version != runTraceVersion {
		return nil, fmt.Errorf("unsupported run trace version: %d", header.Version)
	}
	return &RunTraceReader{decoder: decoder, header: header}, nil
}

// Header returns the trace's header.
func (r *RunTraceReader) Header() RunTraceHeader { return r.header }

// ReadEntry reads the next raw entry, returning io.EOF once exhausted.
func (r *RunTraceReader) ReadEntry() (*RawRunTraceEntry, error) {
	var entry RawRunTraceEntry
	if err := r.decoder.Decode(&entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ReadAll reads every remaining entry into a slice.
func (r *RunTraceReader) ReadAll() ([]RawRunTraceEntry, error) {
	var entries []RawRunTraceEntry
	for {
		entry, err := r.ReadEntry()
		if err == io.EOF {
			break
		}
		if err != nil {
			return entries, err
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

// Validate checks a few structural invariants a well-formed run trace
// should satisfy: the entries present at all, and sequence numbers
// strictly increasing (the first number is not checked). It does not require specific leading/trailing
// event types since, unlike the teacher's run.started/run.finished
// framing, a RunTrace may be attached mid-run or detached before Run
// returns.
func (r *RunTraceReader) Validate(entries []RawRunTraceEntry) []string {
	var errs []string
	if len(entries) == 0 {
		errs = append(errs, "run trace has no entries")
		return errs
	}
	var last uint64
	for i, e := range entries {
		if i > 0 && e.Sequence <= last {
			errs = append(errs, fmt.Sprintf("sequence not strictly increasing at entry %d: %d <= %d", i, e.Sequence, last))
		}
		last = e.Sequence
	}
	return errs
}
