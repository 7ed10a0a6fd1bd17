package jobs

import (
	"context"
	"testing"
	"time"
)

func newJob(id string, status Status, createdAt time.Time) *Job {
	return &Job{
		ID:         id,
		ToolName:   "exec",
		ToolCallID: "call-" + id,
		Status:     status,
		CreatedAt:  createdAt,
	}
}

func TestMemoryStoreCreateGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	job := newJob("j1", StatusQueued, time.Now())
	job.Result = &ToolResult{ToolCallID: "call-j1", Content: "ok"}
	if err := s.Create(ctx, job); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, "j1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Status != StatusQueued || got.Result.Content != "ok" {
		t.Fatalf("Get = %+v", got)
	}

	// The store hands out copies: mutating the returned job must not
	// leak back into the stored record.
	got.Result.Content = "tampered"
	again, _ := s.Get(ctx, "j1")
	if again.Result.Content != "ok" {
		t.Error("Get returned a shared Result pointer")
	}
}

func TestMemoryStoreGetMissing(t *testing.T) {
	s := NewMemoryStore()
	got, err := s.Get(context.Background(), "nope")
	if err != nil || got != nil {
		t.Fatalf("Get missing = %v, %v; want nil, nil", got, err)
	}
}

func TestMemoryStoreListWindow(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()
	for _, id := range []string{"a", "b", "c", "d"} {
		if err := s.Create(ctx, newJob(id, StatusQueued, now)); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		limit, offset int
		want          []string
	}{
		{0, 0, []string{"a", "b", "c", "d"}},
		{2, 0, []string{"a", "b"}},
		{2, 2, []string{"c", "d"}},
		{10, 3, []string{"d"}},
		{2, 9, nil},
	}
	for _, tt := range tests {
		got, err := s.List(ctx, tt.limit, tt.offset)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("List(%d,%d) returned %d jobs, want %d", tt.limit, tt.offset, len(got), len(tt.want))
		}
		for i, j := range got {
			if j.ID != tt.want[i] {
				t.Errorf("List(%d,%d)[%d] = %s, want %s", tt.limit, tt.offset, i, j.ID, tt.want[i])
			}
		}
	}
}

func TestMemoryStorePrune(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	old := newJob("old", StatusSucceeded, time.Now().Add(-48*time.Hour))
	fresh := newJob("fresh", StatusRunning, time.Now())
	_ = s.Create(ctx, old)
	_ = s.Create(ctx, fresh)

	n, err := s.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("Prune removed %d, want 1", n)
	}
	if got, _ := s.Get(ctx, "old"); got != nil {
		t.Error("pruned job still present")
	}
	if got, _ := s.Get(ctx, "fresh"); got == nil {
		t.Error("fresh job was pruned")
	}
}

func TestMemoryStoreCancel(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Create(ctx, newJob("run", StatusRunning, time.Now()))

	fired := make(chan struct{})
	s.SetCancelFunc("run", func() { close(fired) })

	if err := s.Cancel(ctx, "run"); err != nil {
		t.Fatal(err)
	}
	select {
	case <-fired:
	default:
		t.Error("cancel func was not called")
	}
	got, _ := s.Get(ctx, "run")
	if got.Status != StatusFailed || got.Error == "" || got.FinishedAt.IsZero() {
		t.Errorf("after Cancel: %+v", got)
	}
}

func TestMemoryStoreCancelTerminalIsNoop(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	done := newJob("done", StatusSucceeded, time.Now())
	done.Result = &ToolResult{Content: "kept"}
	_ = s.Create(ctx, done)

	if err := s.Cancel(ctx, "done"); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Get(ctx, "done")
	if got.Status != StatusSucceeded || got.Result.Content != "kept" {
		t.Errorf("Cancel touched a terminal job: %+v", got)
	}
}

func TestStatusTerminal(t *testing.T) {
	for status, want := range map[Status]bool{
		StatusQueued:    false,
		StatusRunning:   false,
		StatusSucceeded: true,
		StatusFailed:    true,
	} {
		if status.Terminal() != want {
			t.Errorf("%s.Terminal() = %v", status, !want)
		}
	}
}
