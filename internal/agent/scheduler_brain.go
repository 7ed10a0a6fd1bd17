package agent

import "context"

// spawnBrainTask starts the one thinker task for this turn. It captures
// snapshots of the trace, toolbox, and method, calls the brain, and — on
// natural completion — publishes an InternalBrainResult on the internal
// bus. On cancellation it exits silently, publishing nothing, matching the
// Rust source's spawn_next_step/process_next_step shape exactly: a late
// result from a cancelled thinker must never reach the loop.
func spawnBrainTask(ctx context.Context, brain Brain, tc ThinkerContext, bus *internalEventBus) {
	go func() {
		decision, err := brain.NextStep(ctx, tc)
		if ctx.Err() != nil {
			// Cancelled while the brain call was in flight; the result
			// (if any) is stale and must be discarded.
			return
		}
		bus.send(ctx, InternalBrainResult{Decision: decision, Err: err})
	}()
}
