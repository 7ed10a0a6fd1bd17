package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ToolCapability tags what kind of effect a tool can have. The core uses
// this to decide whether a call needs permission: a tool whose capability
// set is empty or exactly {Read} never prompts.
type ToolCapability string

const (
	CapabilityRead    ToolCapability = "read"
	CapabilityWrite   ToolCapability = "write"
	CapabilityNetwork ToolCapability = "network"
)

// isReadOnly reports whether caps contains nothing beyond Read.
func isReadOnly(caps []ToolCapability) bool {
	for _, c := range caps {
		if c != CapabilityRead {
			return false
		}
	}
	return true
}

// ToolCall is the brain's request to invoke a named tool with JSON
// parameters. CallID is supplied by the brain's output and must be unique
// within a single assistant message; the core does not re-validate this,
// it keys tool-message lookups by CallID as the brain's contract requires.
type ToolCall struct {
	CallID     string          `json:"call_id"`
	ToolName   string          `json:"tool_name"`
	Parameters json.RawMessage `json:"parameters"`
}

// ToolResult is the tagged union a tool execution produces. Exactly one of
// Output (Success), Message (Error), or neither (Denied) is meaningful;
// callers should use the constructors below rather than building one by
// hand.
type ToolResult struct {
	kind     toolResultKind
	Output   string         `json:"output,omitempty"`
	Message  string         `json:"message,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type toolResultKind int

const (
	toolResultSuccess toolResultKind = iota
	toolResultError
	toolResultDenied
)

// ToolSuccess builds a successful result carrying output text for the trace.
func ToolSuccess(output string, metadata map[string]any) ToolResult {
	return ToolResult{kind: toolResultSuccess, Output: output, Metadata: metadata}
}

// ToolErrorResult builds a failed result carrying a human-readable message.
func ToolErrorResult(message string, metadata map[string]any) ToolResult {
	return ToolResult{kind: toolResultError, Message: message, Metadata: metadata}
}

// ToolDenied builds a result representing a permission refusal.
func ToolDenied() ToolResult {
	return ToolResult{kind: toolResultDenied}
}

// IsDenied reports whether this result represents a permission denial; the
// tool scheduler ORs this across a batch to decide ToolsCompleted.AnyDenied.
func (r ToolResult) IsDenied() bool { return r.kind == toolResultDenied }

// IsError reports whether this result represents a failed execution.
func (r ToolResult) IsError() bool { return r.kind == toolResultError }

// String renders the result the way it is appended to the trace as a tool
// message: Success yields its output verbatim, Error and Denied render a
// textual description.
func (r ToolResult) String() string {
	switch r.kind {
	case toolResultSuccess:
		return r.Output
	case toolResultError:
		return fmt.Sprintf("error: %s", r.Message)
	case toolResultDenied:
		return "denied: permission not granted"
	default:
		return ""
	}
}

// Tool is the uniform contract every concrete capability (file I/O, shell,
// web fetch, ...) implements. Params is deserialized from the raw JSON
// carried on a ToolCall; Execute must honor ctx promptly, since the core
// does not wait for a tool that ignores cancellation before moving state.
type Tool[P any] interface {
	Name() string
	Description() string
	// Schema returns the JSON schema describing Params, shown to the brain
	// and to a user reviewing a permission request.
	Schema() json.RawMessage
	Capabilities() []ToolCapability
	Execute(ctx context.Context, params P) (ToolResult, error)
	// Preview returns a best-effort dry run of what Execute would do,
	// without side effects, shown to a user before granting permission.
	// Returning ok=false means no preview is available.
	Preview(ctx context.Context, params P) (result ToolResult, ok bool)
}

// AnyTool is the object-safe, dynamically-dispatched counterpart of Tool,
// operating on raw JSON so a ToolRegistry can hold heterogeneous tools.
type AnyTool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Capabilities() []ToolCapability
	// ValidateJSON reports whether params deserializes into this tool's
	// parameter type, without executing anything. Used by the tool
	// scheduler's resolve step so a malformed call never reaches
	// ToolCallStarted.
	ValidateJSON(params json.RawMessage) error
	ExecuteJSON(ctx context.Context, params json.RawMessage) (ToolResult, error)
	// PreviewJSON returns ok=false when no preview is available. A preview
	// that itself errors is returned as (result, true) with result.IsError()
	// true — the tool scheduler treats that as the call's actual result,
	// short-circuiting the permission prompt rather than asking the user
	// to approve a call already known to fail.
	PreviewJSON(ctx context.Context, params json.RawMessage) (result ToolResult, ok bool)
}

// typedTool adapts any Tool[P] into an AnyTool via JSON marshal/unmarshal.
type typedTool[P any] struct {
	inner Tool[P]

	schemaOnce sync.Once
	schema     *jsonschema.Schema
}

// AsAnyTool wraps a typed Tool so it can be registered alongside other
// tools of different parameter types.
func AsAnyTool[P any](t Tool[P]) AnyTool {
	return &typedTool[P]{inner: t}
}

func (t *typedTool[P]) Name() string                  { return t.inner.Name() }
func (t *typedTool[P]) Description() string           { return t.inner.Description() }
func (t *typedTool[P]) Schema() json.RawMessage       { return t.inner.Schema() }
func (t *typedTool[P]) Capabilities() []ToolCapability { return t.inner.Capabilities() }

func (t *typedTool[P]) decode(raw json.RawMessage) (P, error) {
	var params P
	if len(raw) == 0 {
		return params, nil
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return params, err
	}
	return params, nil
}

// compiledSchema compiles this tool's JSON schema once and caches it. A
// tool whose Schema() is not valid JSON Schema compiles to nil, which
// compiledSchemaValidate treats as "no schema to check" rather than an
// error — a brain-visible schema document is advisory for this path, the
// struct tag decode above is what actually gates execution.
func (t *typedTool[P]) compiledSchema() *jsonschema.Schema {
	t.schemaOnce.Do(func() {
		raw := t.inner.Schema()
		if len(raw) == 0 {
			return
		}
		const resourceURL = "mem://tool-params.json"
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(resourceURL, bytes.NewReader(raw)); err != nil {
			return
		}
		schema, err := compiler.Compile(resourceURL)
		if err != nil {
			return
		}
		t.schema = schema
	})
	return t.schema
}

// validateSchema checks raw against the compiled JSON schema, skipping the
// check entirely when the tool carries no compilable schema.
func (t *typedTool[P]) validateSchema(raw json.RawMessage) error {
	schema := t.compiledSchema()
	if schema == nil {
		return nil
	}
	var doc any
	if len(raw) == 0 {
		doc = map[string]any{}
	} else if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return schema.Validate(doc)
}

// ValidateJSON reports whether raw both decodes into P and satisfies the
// tool's declared JSON schema, per spec.md C1's "JSON-schema parameter
// validation" — the schema check catches constraints (required fields,
// enums, ranges) a plain Go struct decode lets slide.
func (t *typedTool[P]) ValidateJSON(raw json.RawMessage) error {
	if _, err := t.decode(raw); err != nil {
		return err
	}
	return t.validateSchema(raw)
}

// ExecuteJSON deserializes raw into P and calls the typed tool. A malformed
// payload yields an Error result rather than propagating the decode error,
// so a misbehaving brain cannot crash the agent.
func (t *typedTool[P]) ExecuteJSON(ctx context.Context, raw json.RawMessage) (ToolResult, error) {
	params, err := t.decode(raw)
	if err != nil {
		return ToolErrorResult(fmt.Sprintf("invalid parameters for tool %q: %v", t.Name(), err), nil), nil
	}
	return t.inner.Execute(ctx, params)
}

// PreviewJSON mirrors ExecuteJSON for the dry-run path.
func (t *typedTool[P]) PreviewJSON(ctx context.Context, raw json.RawMessage) (ToolResult, bool) {
	params, err := t.decode(raw)
	if err != nil {
		return ToolErrorResult(fmt.Sprintf("invalid parameters for tool %q: %v", t.Name(), err), nil), true
	}
	return t.inner.Preview(ctx, params)
}

// ToolRegistry is a name-keyed collection of AnyTool implementations handed
// to the brain and consulted by the tool scheduler.
type ToolRegistry struct {
	tools map[string]AnyTool
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]AnyTool)}
}

// Register adds or replaces a tool under its own Name().
func (r *ToolRegistry) Register(t AnyTool) {
	if t == nil {
		return
	}
	r.tools[t.Name()] = t
}

// Get looks up a tool by name.
func (r *ToolRegistry) Get(name string) (AnyTool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// List returns every registered tool in no particular order.
func (r *ToolRegistry) List() []AnyTool {
	out := make([]AnyTool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}
