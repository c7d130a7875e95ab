package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestNormalizeSpec(t *testing.T) {
	cases := map[string]string{
		"0 * * * *":     "0 0 * * * *",
		" 0 9 * * * ":   "0 0 9 * * *",
		"0 0 10 * * *":  "0 0 10 * * *",
		"@every 1h":     "@every 1h",
		"30 10 * * 1-5": "0 30 10 * * 1-5",
	}
	for in, want := range cases {
		if got := NormalizeSpec(in); got != want {
			t.Fatalf("NormalizeSpec(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRegisterValidates(t *testing.T) {
	r := NewRunner(nil, nil)
	noop := func(context.Context) error { return nil }

	if err := r.Register(Task{ID: "a", Spec: "not a cron", Run: noop}); err == nil {
		t.Fatalf("expected invalid spec error")
	}
	if err := r.Register(Task{ID: "", Spec: "@hourly", Run: noop}); err == nil {
		t.Fatalf("expected empty id error")
	}
	if err := r.Register(Task{ID: "a", Spec: "@hourly"}); err == nil {
		t.Fatalf("expected missing handler error")
	}
	if err := r.Register(Task{ID: "a", Spec: "0 * * * *", Run: noop}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(Task{ID: "a", Spec: "@hourly", Run: noop}); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}

func TestRunNowRecordsOutcome(t *testing.T) {
	r := NewRunner(time.UTC, nil)
	fail := errors.New("boom")
	var calls int32
	if err := r.Register(Task{ID: "ok", Spec: "0 0 9 * * *", Run: func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}}); err != nil {
		t.Fatalf("register ok: %v", err)
	}
	if err := r.Register(Task{ID: "bad", Spec: "0 0 9 * * *", Run: func(context.Context) error { return fail }}); err != nil {
		t.Fatalf("register bad: %v", err)
	}

	if err := r.RunNow(context.Background(), "ok"); err != nil {
		t.Fatalf("run ok: %v", err)
	}
	if err := r.RunNow(context.Background(), "bad"); !errors.Is(err, fail) {
		t.Fatalf("expected task error, got %v", err)
	}
	if err := r.RunNow(context.Background(), "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}

	stats := r.Stats()
	if len(stats) != 2 || stats[0].ID != "bad" || stats[1].ID != "ok" {
		t.Fatalf("unexpected stats order: %+v", stats)
	}
	if stats[0].Failures != 1 || stats[0].LastError != "boom" {
		t.Fatalf("unexpected failure stats: %+v", stats[0])
	}
	if stats[1].Runs != 1 || stats[1].LastStart == nil || stats[1].NextRun == nil {
		t.Fatalf("unexpected success stats: %+v", stats[1])
	}
	if stats[1].NextRun.Hour() != 9 {
		t.Fatalf("next run should be at 09:00, got %v", stats[1].NextRun)
	}
}

func TestRunNowRecoversPanics(t *testing.T) {
	r := NewRunner(nil, nil)
	if err := r.Register(Task{ID: "panic", Spec: "@daily", Run: func(context.Context) error {
		panic("unexpected")
	}}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.RunNow(context.Background(), "panic"); err == nil {
		t.Fatalf("expected error from panicking task")
	}
	if err := r.RunNow(context.Background(), "panic"); err == nil || errors.Is(err, ErrTaskBusy) {
		t.Fatalf("task must be runnable again after a panic, got %v", err)
	}
}

func TestTaskDoesNotOverlapItself(t *testing.T) {
	r := NewRunner(nil, nil)
	started := make(chan struct{})
	release := make(chan struct{})
	if err := r.Register(Task{ID: "slow", Spec: "@daily", Run: func(context.Context) error {
		close(started)
		<-release
		return nil
	}}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(Task{ID: "other", Spec: "@daily", Run: func(context.Context) error { return nil }}); err != nil {
		t.Fatalf("register other: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- r.RunNow(context.Background(), "slow") }()
	<-started

	if err := r.RunNow(context.Background(), "slow"); !errors.Is(err, ErrTaskBusy) {
		t.Fatalf("expected ErrTaskBusy, got %v", err)
	}
	if err := r.RunNow(context.Background(), "other"); err != nil {
		t.Fatalf("different tasks may overlap: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("slow run: %v", err)
	}
	for _, s := range r.Stats() {
		if s.ID == "slow" && (s.Skipped != 1 || s.Runs != 1) {
			t.Fatalf("unexpected slow stats: %+v", s)
		}
	}
}

func TestStartRunsScheduledTasksAndStopCancels(t *testing.T) {
	r := NewRunner(time.UTC, nil)
	var runs int32
	cancelled := make(chan struct{}, 1)
	if err := r.Register(Task{ID: "tick", Spec: "* * * * * *", Run: func(ctx context.Context) error {
		if atomic.AddInt32(&runs, 1) == 1 {
			<-ctx.Done()
			cancelled <- struct{}{}
		}
		return nil
	}}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for atomic.LoadInt32(&runs) == 0 {
		select {
		case <-deadline:
			t.Fatalf("scheduled task did not run")
		case <-time.After(20 * time.Millisecond):
		}
	}

	r.Stop()
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatalf("stop did not cancel the running task")
	}
	if got := atomic.LoadInt32(&runs); got != 1 {
		t.Fatalf("blocked task must not overlap itself, got %d runs", got)
	}
}
