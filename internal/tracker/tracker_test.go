package tracker

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/papapumpkin/alka/internal/library"
)

// TestHelperProcess is the fake game. It is only active when launched by
// helperCommand.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("ALKA_HELPER_PROCESS") != "1" {
		return
	}
	switch os.Args[len(os.Args)-1] {
	case "hang":
		time.Sleep(time.Minute)
	}
	os.Exit(0)
}

type recorded struct {
	id      string
	minutes uint64
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []recorded
	err   error
}

func (f *fakeRecorder) AddPlayTime(_ context.Context, id string, minutes uint64, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recorded{id, minutes})
	return f.err
}

// steppingClock returns start, then start+step, start+2*step, ...
func steppingClock(step time.Duration) func() time.Time {
	var mu sync.Mutex
	cur := time.Date(2026, 10, 1, 20, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := cur
		cur = cur.Add(step)
		return t
	}
}

func newTestTracker(t *testing.T, mode string, rec Recorder) (*Tracker, string, *[]*exec.Cmd) {
	t.Helper()
	exe := filepath.Join(t.TempDir(), "game.exe")
	if err := os.WriteFile(exe, []byte("stub"), 0o755); err != nil {
		t.Fatal(err)
	}
	tr := New(rec, nil)
	tr.now = steppingClock(30 * time.Minute)
	var cmds []*exec.Cmd
	tr.newCommand = func(string) *exec.Cmd {
		cmd := exec.Command(os.Args[0], "-test.run=TestHelperProcess", "--", mode)
		cmd.Env = append(os.Environ(), "ALKA_HELPER_PROCESS=1")
		cmds = append(cmds, cmd)
		return cmd
	}
	t.Cleanup(func() {
		for _, c := range cmds {
			if c.Process != nil {
				c.Process.Kill()
			}
		}
		tr.Wait()
	})
	return tr, exe, &cmds
}

func TestTracker_ExitRecordsAndNotifies(t *testing.T) {
	t.Parallel()
	rec := &fakeRecorder{}
	tr, exe, cmds := newTestTracker(t, "exit", rec)

	exits := make(chan library.ProcessExited, 1)
	unsubscribe := tr.SubscribeExits(func(ev library.ProcessExited) { exits <- ev })
	defer unsubscribe()

	if err := tr.Start("g1", exe); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := (*cmds)[0].Dir; got != filepath.Dir(exe) {
		t.Errorf("working dir = %q, want %q", got, filepath.Dir(exe))
	}

	select {
	case ev := <-exits:
		if ev.ID != "g1" || ev.ElapsedMinutes != 30 {
			t.Errorf("event = %+v, want g1 after 30 minutes", ev)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("no exit event")
	}
	if _, running := tr.Running(); running {
		t.Error("still running after exit")
	}
	if len(rec.calls) != 1 || rec.calls[0] != (recorded{"g1", 30}) {
		t.Errorf("recorded = %+v", rec.calls)
	}
}

func TestTracker_StopThenExitCountsOnce(t *testing.T) {
	t.Parallel()
	rec := &fakeRecorder{}
	tr, exe, cmds := newTestTracker(t, "hang", rec)

	var notified int
	var mu sync.Mutex
	tr.SubscribeExits(func(library.ProcessExited) {
		mu.Lock()
		notified++
		mu.Unlock()
	})

	if err := tr.Start("g1", exe); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := tr.Start("g2", exe); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start err = %v, want ErrAlreadyRunning", err)
	}

	minutes, err := tr.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if minutes != 30 {
		t.Errorf("minutes = %d, want 30", minutes)
	}

	(*cmds)[0].Process.Kill()
	tr.Wait()

	mu.Lock()
	defer mu.Unlock()
	if notified != 0 {
		t.Errorf("exit after Stop notified %d times", notified)
	}
	if len(rec.calls) != 1 {
		t.Errorf("recorded %d sessions, want 1", len(rec.calls))
	}
}

func TestTracker_StopWhenIdle(t *testing.T) {
	t.Parallel()
	rec := &fakeRecorder{}
	tr := New(rec, nil)
	minutes, err := tr.Stop(context.Background())
	if err != nil || minutes != 0 {
		t.Errorf("Stop = %d, %v; want 0, nil", minutes, err)
	}
	if len(rec.calls) != 0 {
		t.Error("idle Stop recorded a session")
	}
}

func TestTracker_StartValidatesPath(t *testing.T) {
	t.Parallel()
	tr := New(&fakeRecorder{}, nil)
	dir := t.TempDir()

	if err := tr.Start("g1", filepath.Join(dir, "missing.exe")); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing: err = %v, want ErrNotFound", err)
	}
	if err := tr.Start("g1", dir); !errors.Is(err, ErrNotAFile) {
		t.Errorf("directory: err = %v, want ErrNotAFile", err)
	}
	if _, running := tr.Running(); running {
		t.Error("failed start left a running session")
	}
}

func TestTracker_UnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()
	tr, exe, _ := newTestTracker(t, "exit", &fakeRecorder{})

	called := false
	unsubscribe := tr.SubscribeExits(func(library.ProcessExited) { called = true })
	unsubscribe()
	unsubscribe()

	if err := tr.Start("g1", exe); err != nil {
		t.Fatalf("Start: %v", err)
	}
	tr.Wait()
	if called {
		t.Error("unsubscribed handler was called")
	}
}
