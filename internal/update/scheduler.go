package update

import (
	"context"
	"time"
)

// Default schedule.
const (
	DefaultInitialDelay = 3 * time.Second
	DefaultInterval     = 6 * time.Hour
)

// Checker is the part of Machine the scheduler drives.
type Checker interface {
	Check(ctx context.Context, silent bool) error
}

// Scheduler runs an initial silent check after a delay, then a silent check
// on every interval tick, and a visible check for every manual trigger.
type Scheduler struct {
	checker      Checker
	initialDelay time.Duration
	interval     time.Duration
	trigger      chan struct{}

	// newTimer and newTicker are replaced in tests.
	newTimer  func(d time.Duration) (<-chan time.Time, func() bool)
	newTicker func(d time.Duration) (<-chan time.Time, func())
}

// NewScheduler creates a scheduler. Non-positive durations select the
// defaults.
func NewScheduler(c Checker, initialDelay, interval time.Duration) *Scheduler {
	if initialDelay <= 0 {
		initialDelay = DefaultInitialDelay
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		checker:      c,
		initialDelay: initialDelay,
		interval:     interval,
		trigger:      make(chan struct{}, 1),
		newTimer: func(d time.Duration) (<-chan time.Time, func() bool) {
			t := time.NewTimer(d)
			return t.C, t.Stop
		},
		newTicker: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
	}
}

// Trigger requests a visible check. Requests made while one is already
// queued are coalesced.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is done. Check errors are recorded by the machine
// and do not stop the schedule.
func (s *Scheduler) Run(ctx context.Context) error {
	initial, stopInitial := s.newTimer(s.initialDelay)
	defer stopInitial()

	var tick <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-initial:
			initial = nil
			c, stop := s.newTicker(s.interval)
			defer stop()
			tick = c
			s.check(ctx, true)
		case <-tick:
			s.check(ctx, true)
		case <-s.trigger:
			s.check(ctx, false)
		}
	}
}

// check runs one check. The machine holds the outcome, so the returned
// error only matters to interactive callers.
func (s *Scheduler) check(ctx context.Context, silent bool) {
	_ = s.checker.Check(ctx, silent)
}
