package update

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recordingChecker struct {
	mu    sync.Mutex
	calls []bool
	seen  chan bool
}

func (r *recordingChecker) Check(_ context.Context, silent bool) error {
	r.mu.Lock()
	r.calls = append(r.calls, silent)
	r.mu.Unlock()
	r.seen <- silent
	return nil
}

func TestScheduler_InitialTickAndTrigger(t *testing.T) {
	t.Parallel()
	checker := &recordingChecker{seen: make(chan bool, 8)}
	s := NewScheduler(checker, time.Hour, time.Hour)

	initial := make(chan time.Time, 1)
	tick := make(chan time.Time, 1)
	var gotDelay, gotInterval time.Duration
	s.newTimer = func(d time.Duration) (<-chan time.Time, func() bool) {
		gotDelay = d
		return initial, func() bool { return true }
	}
	s.newTicker = func(d time.Duration) (<-chan time.Time, func()) {
		gotInterval = d
		return tick, func() {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	s.Trigger()
	if silent := <-checker.seen; silent {
		t.Error("manual trigger ran a silent check")
	}
	initial <- time.Now()
	if silent := <-checker.seen; !silent {
		t.Error("initial check was not silent")
	}
	tick <- time.Now()
	if silent := <-checker.seen; !silent {
		t.Error("interval check was not silent")
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("Run err = %v, want context.Canceled", err)
	}
	if gotDelay != time.Hour || gotInterval != time.Hour {
		t.Errorf("delay, interval = %v, %v", gotDelay, gotInterval)
	}
}

func TestScheduler_TriggerCoalesces(t *testing.T) {
	t.Parallel()
	s := NewScheduler(&recordingChecker{seen: make(chan bool, 8)}, 0, 0)
	s.Trigger()
	s.Trigger()
	s.Trigger()
	if n := len(s.trigger); n != 1 {
		t.Errorf("queued triggers = %d, want 1", n)
	}
	if s.initialDelay != DefaultInitialDelay || s.interval != DefaultInterval {
		t.Errorf("defaults not applied: %v %v", s.initialDelay, s.interval)
	}
}
