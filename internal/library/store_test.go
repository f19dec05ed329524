package library

import (
	"context"
	"errors"
	"math/rand"
	"slices"
	"sync"
	"testing"
)

var errBackend = errors.New("backend unavailable")

// fakeBackend is an in-memory Backend with per-call failure injection.
type fakeBackend struct {
	mu      sync.Mutex
	entries []Entry

	failLoad   error
	failAdd    error
	failRemove error
	failHidden error
	failUpdate error
	failLaunch error
	failStop   error

	stopMinutes uint64
	loadCalls   int
	launches    []string

	// hooks run inside the corresponding call, outside the fake's lock.
	onLoad   func(call int)
	onLaunch func(id string)
}

func (f *fakeBackend) AllEntries(context.Context) ([]Entry, error) {
	f.mu.Lock()
	f.loadCalls++
	call := f.loadCalls
	err := f.failLoad
	out := slices.Clone(f.entries)
	hook := f.onLoad
	f.mu.Unlock()
	if hook != nil {
		hook(call)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (f *fakeBackend) AddLocal(_ context.Context, path string) (Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAdd != nil {
		return Entry{}, f.failAdd
	}
	e := Entry{ID: "new-" + path, Title: path, Path: path}
	f.entries = append(f.entries, e)
	return e, nil
}

func (f *fakeBackend) RemoveEntry(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRemove != nil {
		return f.failRemove
	}
	f.entries = slices.DeleteFunc(f.entries, func(e Entry) bool { return e.ID == id })
	return nil
}

func (f *fakeBackend) SetHidden(_ context.Context, id string, hidden bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failHidden != nil {
		return f.failHidden
	}
	for i := range f.entries {
		if f.entries[i].ID == id {
			f.entries[i].Hidden = hidden
		}
	}
	return nil
}

func (f *fakeBackend) UpdateEntry(_ context.Context, e Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdate != nil {
		return f.failUpdate
	}
	for i := range f.entries {
		if f.entries[i].ID == e.ID {
			f.entries[i] = e
		}
	}
	return nil
}

func (f *fakeBackend) Launch(_ context.Context, id string) error {
	f.mu.Lock()
	err := f.failLaunch
	f.launches = append(f.launches, id)
	hook := f.onLaunch
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		hook(id)
	}
	return nil
}

func (f *fakeBackend) StopTracking(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failStop != nil {
		return 0, f.failStop
	}
	return f.stopMinutes, nil
}

type fakeExits struct {
	handler      func(ProcessExited)
	unsubscribed int
}

func (f *fakeExits) SubscribeExits(h func(ProcessExited)) func() {
	f.handler = h
	return func() { f.unsubscribed++ }
}

func (f *fakeExits) emit(id string, minutes uint64) {
	f.handler(ProcessExited{ID: id, ElapsedMinutes: minutes})
}

func newLoadedStore(t *testing.T, entries ...Entry) (*Store, *fakeBackend, *fakeExits) {
	t.Helper()
	b := &fakeBackend{entries: entries}
	exits := &fakeExits{}
	s := NewStore(b, exits)
	t.Cleanup(s.Close)
	s.Load(context.Background())
	return s, b, exits
}

func TestStore_LaunchThenExitFoldsPlayTime(t *testing.T) {
	t.Parallel()
	s, _, exits := newLoadedStore(t, Entry{ID: "g1", Title: "Ever17", PlayTime: 45})
	ctx := context.Background()

	if err := s.Launch(ctx, "g1"); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if got := s.Running(); got != "g1" {
		t.Fatalf("Running() = %q, want g1", got)
	}

	exits.emit("g1", 30)

	snap := s.Snapshot()
	if snap.Running != "" {
		t.Errorf("Running = %q after exit, want empty", snap.Running)
	}
	e, _ := snap.Entry("g1")
	if e.PlayTime != 75 {
		t.Errorf("PlayTime = %d, want 75", e.PlayTime)
	}
}

func TestStore_OnExitIgnoresStaleID(t *testing.T) {
	t.Parallel()
	s, _, _ := newLoadedStore(t,
		Entry{ID: "g1", PlayTime: 10},
		Entry{ID: "g2", PlayTime: 20},
	)
	if err := s.Launch(context.Background(), "g1"); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	before := s.Snapshot()

	if s.OnExit("g2", 99) {
		t.Error("OnExit for a non-running id reported applied")
	}

	after := s.Snapshot()
	if after.Running != "g1" {
		t.Errorf("Running = %q, want g1", after.Running)
	}
	if after.Version != before.Version {
		t.Errorf("Version changed from %d to %d on a stale exit", before.Version, after.Version)
	}
	if !slices.Equal(after.Entries, before.Entries) {
		t.Errorf("entries changed on a stale exit: %+v", after.Entries)
	}
}

func TestStore_DuplicateExitAppliedOnce(t *testing.T) {
	t.Parallel()
	s, _, exits := newLoadedStore(t, Entry{ID: "g1", PlayTime: 5})
	if err := s.Launch(context.Background(), "g1"); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	exits.emit("g1", 10)
	exits.emit("g1", 10)

	e, _ := s.Snapshot().Entry("g1")
	if e.PlayTime != 15 {
		t.Errorf("PlayTime = %d, want 15", e.PlayTime)
	}
}

func TestStore_RunningMatchesLaunchExitModel(t *testing.T) {
	t.Parallel()
	ids := []string{"a", "b", "c"}
	entries := make([]Entry, len(ids))
	for i, id := range ids {
		entries[i] = Entry{ID: id}
	}

	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		s, _, exits := newLoadedStore(t, entries...)
		model := ""
		for step := 0; step < 40; step++ {
			id := ids[rng.Intn(len(ids))]
			if rng.Intn(2) == 0 {
				if err := s.Launch(context.Background(), id); err != nil {
					t.Fatalf("Launch(%s): %v", id, err)
				}
				model = id
			} else {
				exits.emit(id, 1)
				if model == id {
					model = ""
				}
			}
			if got := s.Running(); got != model {
				t.Fatalf("round %d step %d: Running() = %q, model %q", round, step, got, model)
			}
		}
	}
}

func TestStore_LaunchUnknownEntry(t *testing.T) {
	t.Parallel()
	s, b, _ := newLoadedStore(t, Entry{ID: "g1"})

	err := s.Launch(context.Background(), "missing")
	if !errors.Is(err, ErrUnknownEntry) {
		t.Fatalf("Launch(missing) err = %v, want ErrUnknownEntry", err)
	}
	if len(b.launches) != 0 {
		t.Errorf("backend launched %v for an unknown id", b.launches)
	}
}

func TestStore_LaunchRejectedLeavesIdle(t *testing.T) {
	t.Parallel()
	s, b, _ := newLoadedStore(t, Entry{ID: "g1"})
	b.failLaunch = errBackend

	err := s.Launch(context.Background(), "g1")
	if !errors.Is(err, errBackend) {
		t.Fatalf("Launch err = %v, want errBackend", err)
	}
	if got := s.Running(); got != "" {
		t.Errorf("Running() = %q after rejected launch", got)
	}
}

func TestStore_DuplicateLaunchIsForwarded(t *testing.T) {
	t.Parallel()
	s, b, _ := newLoadedStore(t, Entry{ID: "g1"})
	ctx := context.Background()

	if err := s.Launch(ctx, "g1"); err != nil {
		t.Fatalf("first Launch: %v", err)
	}
	b.failLaunch = errors.New("a game is already running")
	if err := s.Launch(ctx, "g1"); err == nil {
		t.Fatal("second Launch succeeded, want backend rejection")
	}
	if len(b.launches) != 2 {
		t.Errorf("backend saw %d launches, want 2", len(b.launches))
	}
	if got := s.Running(); got != "g1" {
		t.Errorf("Running() = %q, want g1 to stay tracked", got)
	}
}

func TestStore_ExitBeforeLaunchReturns(t *testing.T) {
	t.Parallel()
	s, b, exits := newLoadedStore(t, Entry{ID: "g1", PlayTime: 1})
	b.onLaunch = func(id string) { exits.emit(id, 2) }

	if err := s.Launch(context.Background(), "g1"); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	snap := s.Snapshot()
	if snap.Running != "" {
		t.Errorf("Running = %q, want empty after an exit that raced the launch", snap.Running)
	}
	e, _ := snap.Entry("g1")
	if e.PlayTime != 3 {
		t.Errorf("PlayTime = %d, want 3", e.PlayTime)
	}
}
