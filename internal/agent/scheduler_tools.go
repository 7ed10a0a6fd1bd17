package agent

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// toolTaskDeps bundles the shared collaborators a single tool task needs,
// so spawnToolTask's signature stays readable.
type toolTaskDeps struct {
	registry    *ToolRegistry
	claims      *ClaimManager
	trace       *Trace
	publicBus   *PublicEventBus
	internalBus *internalEventBus
	guard       ToolResultGuard
}

// spawnToolBatch runs one task per call concurrently, waits for all of
// them, and — unless the shared ctx was cancelled — publishes a single
// InternalToolsCompleted aggregating denial across the batch via OR. If
// ctx is cancelled before every task finishes, no ToolsCompleted is sent
// at all; the loop's explicit CancelTask handling drives the transition
// instead, exactly as spec'd.
func spawnToolBatch(ctx context.Context, calls []ToolCall, deps toolTaskDeps) {
	go func() {
		var wg sync.WaitGroup
		denied := make([]bool, len(calls))
		wg.Add(len(calls))
		for i, call := range calls {
			go func(idx int, c ToolCall) {
				defer wg.Done()
				denied[idx] = runToolTask(ctx, c, deps)
			}(i, call)
		}
		wg.Wait()

		if ctx.Err() != nil {
			return
		}
		any := false
		for _, d := range denied {
			any = any || d
		}
		deps.internalBus.send(ctx, InternalToolsCompleted{AnyDenied: any})
	}()
}

// runToolTask executes the six-step protocol for one call and returns
// whether the result was a denial.
func runToolTask(ctx context.Context, call ToolCall, deps toolTaskDeps) bool {
	// Step 2: locate before emitting start, so a missing tool never gets a
	// ToolCallStarted.
	tool, found := deps.registry.Get(call.ToolName)
	if !found {
		result := ToolErrorResult(fmt.Sprintf("tool not found: %s", call.ToolName), nil)
		finishToolTask(deps, call, result, time.Time{})
		return false
	}

	// Step 1: resolve parameters against this tool's schema before
	// anything is observable — a malformed call never gets a
	// ToolCallStarted either.
	if err := tool.ValidateJSON(call.Parameters); err != nil {
		result := ToolErrorResult(fmt.Sprintf("invalid parameters for tool %q: %v", call.ToolName, err), nil)
		finishToolTask(deps, call, result, time.Time{})
		return false
	}

	// Step 3: emit start.
	startedAt := time.Now()
	deps.publicBus.Publish(EventToolCallStarted{Timestamp: startedAt, Call: call})

	// Step 4: permission gate.
	result, gateDecided := gateToolCall(ctx, call, tool, deps)
	if gateDecided {
		finishToolTask(deps, call, result, startedAt)
		return result.IsDenied()
	}

	// Step 5: execute, racing cancellation.
	result = executeToolCall(ctx, call, tool)
	finishToolTask(deps, call, result, startedAt)
	return result.IsDenied()
}

// gateToolCall implements step 4. gateDecided is true when the call's
// final result is already known (denied, cancelled, or a failing preview)
// without ever calling Execute.
func gateToolCall(ctx context.Context, call ToolCall, tool AnyTool, deps toolTaskDeps) (ToolResult, bool) {
	if isReadOnly(tool.Capabilities()) {
		return ToolResult{}, false
	}
	if deps.claims.IsPermitted(call.ToolName, call.Parameters) {
		return ToolResult{}, false
	}
	if deps.publicBus.SubscriberCount() == 0 {
		// No interactive channel to ask through; treat as denied rather
		// than blocking forever on a question nobody can answer.
		return ToolDenied(), true
	}

	preview, ok := tool.PreviewJSON(ctx, call.Parameters)
	if ok && preview.IsError() {
		// A preview that itself fails is the call's actual result; asking
		// permission for a call already known to fail would be pointless.
		return preview, true
	}

	id := newRequestID()
	var previewPtr *ToolResult
	if ok {
		previewPtr = &preview
	}
	deps.publicBus.Publish(EventPermissionRequired{
		ID: id,
		Request: PermissionRequest{
			ToolName:  call.ToolName,
			Operation: call.ToolName,
			Call:      call,
			Preview:   previewPtr,
		},
	})

	decision, cancelled := awaitPermissionResponse(ctx, id, deps.internalBus)
	if cancelled {
		return ToolErrorResult("cancelled by user", nil), true
	}

	switch decision {
	case PermissionAllow:
		return ToolResult{}, false
	case PermissionAllowAlways:
		deps.claims.GrantAlways(call.ToolName, call.Parameters)
		return ToolResult{}, false
	default: // Deny, Forbidden, NoSystem
		return ToolDenied(), true
	}
}

// awaitPermissionResponse subscribes to the internal bus and filters for
// the one InternalPermissionResponseReceived matching id, ignoring every
// other internal event in the stream (the Rust source's exact filtering
// behavior — other tool tasks' completions, brain results, etc. all pass
// through unmatched).
func awaitPermissionResponse(ctx context.Context, id string, bus *internalEventBus) (PermissionDecision, bool) {
	subID, ch := bus.subscribe()
	defer bus.unsubscribe(subID)
	for {
		select {
		case evt := <-ch:
			if r, ok := evt.(InternalPermissionResponseReceived); ok && r.ID == id {
				return r.Response.Decision, false
			}
			if _, ok := evt.(InternalCancelTask); ok {
				return 0, true
			}
		case <-ctx.Done():
			return 0, true
		}
	}
}

// executeToolCall races tool.Execute against ctx, synthesizing a
// cancellation error result if ctx wins.
func executeToolCall(ctx context.Context, call ToolCall, tool AnyTool) ToolResult {
	type outcome struct {
		result ToolResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := tool.ExecuteJSON(ctx, call.Parameters)
		done <- outcome{result: result, err: err}
	}()
	select {
	case o := <-done:
		if o.err != nil {
			return ToolErrorResult(o.err.Error(), nil)
		}
		return o.result
	case <-ctx.Done():
		return ToolErrorResult("cancelled by user", nil)
	}
}

// finishToolTask implements step 6: redact/truncate per the configured
// guard, append the tool message before publishing ToolCallCompleted (the
// decided ordering for Open Question b), using the guarded result in both
// places so a persisted RunTrace (C11) never sees the unredacted text.
func finishToolTask(deps toolTaskDeps, call ToolCall, result ToolResult, startedAt time.Time) {
	result = deps.guard.Apply(call.ToolName, result)
	deps.trace.AppendToolResult(call.CallID, result)
	var duration time.Duration
	if !startedAt.IsZero() {
		duration = time.Since(startedAt)
	}
	deps.publicBus.Publish(EventToolCallCompleted{Duration: duration, Call: call, Result: result})
}
