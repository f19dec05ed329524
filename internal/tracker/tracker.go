// Package tracker starts game processes and reports their exits. At most
// one process is tracked at a time.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/papapumpkin/alka/internal/library"
)

// Sentinel errors.
var (
	ErrAlreadyRunning = errors.New("tracker: a game is already running")
	ErrNotFound       = errors.New("tracker: executable not found")
	ErrNotAFile       = errors.New("tracker: executable path is not a regular file")
)

// Recorder persists finished sessions.
type Recorder interface {
	AddPlayTime(ctx context.Context, id string, minutes uint64, at time.Time) error
}

type session struct {
	id      string
	gen     uint64
	started time.Time
	cmd     *exec.Cmd
}

// Tracker owns the running process slot.
type Tracker struct {
	recorder Recorder
	logger   *log.Logger

	// now and newCommand are replaced in tests.
	now        func() time.Time
	newCommand func(path string) *exec.Cmd

	mu      sync.Mutex
	running *session
	gen     uint64

	subs    map[int]func(library.ProcessExited)
	nextSub int

	wg sync.WaitGroup
}

// New creates a tracker that records play time through r.
func New(r Recorder, logger *log.Logger) *Tracker {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Tracker{
		recorder:   r,
		logger:     logger,
		now:        time.Now,
		newCommand: func(path string) *exec.Cmd { return exec.Command(path) },
		subs:       make(map[int]func(library.ProcessExited)),
	}
}

// Start launches the executable at path for entry id, with the
// executable's directory as working directory.
func (t *Tracker) Start(id, path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return fmt.Errorf("tracker: stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrNotAFile, path)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running != nil {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, t.running.id)
	}

	cmd := t.newCommand(path)
	cmd.Dir = filepath.Dir(path)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("tracker: start %s: %w", path, err)
	}

	t.gen++
	s := &session{id: id, gen: t.gen, started: t.now(), cmd: cmd}
	t.running = s
	t.wg.Add(1)
	go t.wait(s)
	return nil
}

// Running returns the tracked entry id, if any.
func (t *Tracker) Running() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running == nil {
		return "", false
	}
	return t.running.id, true
}

// Stop abandons tracking without signalling the process. The elapsed
// minutes are recorded and returned; 0 when nothing was running. The
// process's eventual exit is not reported.
func (t *Tracker) Stop(ctx context.Context) (uint64, error) {
	t.mu.Lock()
	s := t.running
	t.running = nil
	t.mu.Unlock()
	if s == nil {
		return 0, nil
	}

	end := t.now()
	minutes := elapsedMinutes(s.started, end)
	if err := t.recorder.AddPlayTime(ctx, s.id, minutes, end); err != nil {
		return minutes, fmt.Errorf("tracker: record stopped session %s: %w", s.id, err)
	}
	return minutes, nil
}

// SubscribeExits registers handler for exit notifications.
func (t *Tracker) SubscribeExits(handler func(library.ProcessExited)) func() {
	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = handler
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			t.mu.Unlock()
		})
	}
}

// Wait blocks until every exit watcher has finished.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

func (t *Tracker) wait(s *session) {
	defer t.wg.Done()
	waitErr := s.cmd.Wait()
	end := t.now()

	t.mu.Lock()
	if t.running == nil || t.running.gen != s.gen {
		// Tracking was stopped; that path already recorded the session.
		t.mu.Unlock()
		return
	}
	t.running = nil
	t.mu.Unlock()

	if waitErr != nil {
		t.logger.Printf("tracker: %s exited: %v", s.id, waitErr)
	}
	minutes := elapsedMinutes(s.started, end)
	if err := t.recorder.AddPlayTime(context.Background(), s.id, minutes, end); err != nil {
		t.logger.Printf("tracker: record session %s: %v", s.id, err)
	}
	t.emit(library.ProcessExited{ID: s.id, ElapsedMinutes: minutes})
}

func (t *Tracker) emit(ev library.ProcessExited) {
	t.mu.Lock()
	handlers := make([]func(library.ProcessExited), 0, len(t.subs))
	for _, h := range t.subs {
		handlers = append(handlers, h)
	}
	t.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

func elapsedMinutes(start, end time.Time) uint64 {
	d := end.Sub(start)
	if d <= 0 {
		return 0
	}
	return uint64(d / time.Minute)
}
