package library

import (
	"context"
	"fmt"
	"io"
	"log"
	"slices"
	"sync"

	"github.com/papapumpkin/alka/internal/telemetry"
)

// Backend is the command surface the store drives. Every call may fail; the
// store treats failures as recoverable and leaves its state untouched.
type Backend interface {
	AllEntries(ctx context.Context) ([]Entry, error)
	AddLocal(ctx context.Context, path string) (Entry, error)
	RemoveEntry(ctx context.Context, id string) error
	SetHidden(ctx context.Context, id string, hidden bool) error
	UpdateEntry(ctx context.Context, e Entry) error
	Launch(ctx context.Context, id string) error
	StopTracking(ctx context.Context) (uint64, error)
}

// ExitSource delivers process exit notifications. SubscribeExits returns the
// function that releases the subscription.
type ExitSource interface {
	SubscribeExits(handler func(ProcessExited)) (unsubscribe func())
}

// maxLoadAttempts bounds how often Load re-reads the backend when a
// concurrent mutation lands while a read is in flight.
const maxLoadAttempts = 3

// Store owns the library collection and the running entry id.
type Store struct {
	backend Backend
	logger  *log.Logger
	events  *telemetry.Emitter

	mu      sync.Mutex
	entries []Entry
	running string
	version uint64
	loading int

	// launching is the id of a launch request still in flight; an exit for
	// it that arrives before the backend call returns is parked in earlyExit.
	launching string
	earlyExit *ProcessExited

	listeners    map[int]func(Snapshot)
	nextListener int

	notifyMu  sync.Mutex
	delivered uint64

	unsubscribe func()
	closeOnce   sync.Once
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for failures the store absorbs.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTelemetry records lifecycle events to the given emitter.
func WithTelemetry(e *telemetry.Emitter) Option {
	return func(s *Store) { s.events = e }
}

// NewStore creates a store over the backend and subscribes to exits. The
// subscription is held until Close.
func NewStore(b Backend, exits ExitSource, opts ...Option) *Store {
	s := &Store{
		backend:   b,
		logger:    log.New(io.Discard, "", 0),
		listeners: make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if exits != nil {
		s.unsubscribe = exits.SubscribeExits(func(ev ProcessExited) {
			s.OnExit(ev.ID, ev.ElapsedMinutes)
		})
	}
	return s
}

// Close releases the exit subscription. It is safe to call more than once.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
	})
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Running returns the id of the tracked running entry, or "".
func (s *Store) Running() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// OnChange registers fn to be called with the new snapshot after every
// applied change. The returned func unregisters it. Listeners run on the
// goroutine that made the change and must not call mutating Store methods
// synchronously.
func (s *Store) OnChange(fn func(Snapshot)) func() {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Load replaces the collection with the backend's snapshot. Failures are
// logged and the prior collection is kept. If another mutation lands while
// the read is in flight the read is discarded and retried.
func (s *Store) Load(ctx context.Context) {
	s.mu.Lock()
	s.loading++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.loading--
		s.mu.Unlock()
	}()

	for attempt := 1; attempt <= maxLoadAttempts; attempt++ {
		s.mu.Lock()
		startVersion := s.version
		s.mu.Unlock()

		entries, err := s.backend.AllEntries(ctx)
		if err != nil {
			s.logger.Printf("library: load entries: %v", err)
			return
		}

		s.mu.Lock()
		if s.version != startVersion {
			s.mu.Unlock()
			continue
		}
		s.entries = slices.Clone(entries)
		snap := s.commitLocked()
		s.mu.Unlock()
		s.notify(snap)
		return
	}
	s.logger.Printf("library: load entries: collection kept changing, giving up after %d attempts", maxLoadAttempts)
}

// Launch asks the backend to start the entry's process and, on success,
// records it as running. Whether a second launch is allowed is the backend's
// decision.
func (s *Store) Launch(ctx context.Context, id string) error {
	s.mu.Lock()
	if !s.hasLocked(id) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownEntry, id)
	}
	s.launching = id
	s.earlyExit = nil
	s.mu.Unlock()

	err := s.backend.Launch(ctx, id)

	s.mu.Lock()
	early := s.earlyExit
	s.launching = ""
	s.earlyExit = nil
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("library: launch %s: %w", id, err)
	}
	s.running = id
	if early != nil {
		// The process was gone before the launch call returned.
		s.applyExitLocked(*early)
	}
	snap := s.commitLocked()
	s.mu.Unlock()

	s.record(telemetry.KindEntryLaunched, id, nil)
	if early != nil {
		s.record(telemetry.KindEntryExited, id, map[string]uint64{"minutes": early.ElapsedMinutes})
	}
	s.notify(snap)
	return nil
}

// StopTracking abandons tracking of the running entry without signalling the
// process. The running id is cleared and the collection reloaded so play
// time recorded by the backend shows up.
func (s *Store) StopTracking(ctx context.Context) (uint64, error) {
	minutes, err := s.backend.StopTracking(ctx)
	if err != nil {
		return 0, fmt.Errorf("library: stop tracking: %w", err)
	}

	s.mu.Lock()
	stopped := s.running
	s.running = ""
	snap := s.commitLocked()
	s.mu.Unlock()

	s.record(telemetry.KindTrackingStopped, stopped, map[string]uint64{"minutes": minutes})
	s.notify(snap)
	s.Load(ctx)
	return minutes, nil
}

// OnExit folds an exit notification into the store. It is applied only when
// id is the running entry; stale or duplicate notifications are dropped and
// OnExit returns false.
func (s *Store) OnExit(id string, elapsedMinutes uint64) bool {
	ev := ProcessExited{ID: id, ElapsedMinutes: elapsedMinutes}

	s.mu.Lock()
	if s.running != id || id == "" {
		if id != "" && s.launching == id && s.earlyExit == nil {
			s.earlyExit = &ev
			s.mu.Unlock()
			return true
		}
		running := s.running
		s.mu.Unlock()
		s.record(telemetry.KindExitIgnored, id, map[string]string{"running": running})
		return false
	}
	s.applyExitLocked(ev)
	snap := s.commitLocked()
	s.mu.Unlock()

	s.record(telemetry.KindEntryExited, id, map[string]uint64{"minutes": elapsedMinutes})
	s.notify(snap)
	return true
}

// AddLocal registers an executable with the backend and appends the
// resulting entry.
func (s *Store) AddLocal(ctx context.Context, path string) (Entry, error) {
	e, err := s.backend.AddLocal(ctx, path)
	if err != nil {
		return Entry{}, fmt.Errorf("library: add %s: %w", path, err)
	}

	s.mu.Lock()
	if i := s.indexLocked(e.ID); i >= 0 {
		s.entries[i] = e
	} else {
		s.entries = append(s.entries, e)
	}
	snap := s.commitLocked()
	s.mu.Unlock()

	s.record(telemetry.KindEntryAdded, e.ID, map[string]string{"path": path})
	s.notify(snap)
	return e, nil
}

// Remove deletes an entry through the backend and then from memory.
func (s *Store) Remove(ctx context.Context, id string) error {
	if err := s.backend.RemoveEntry(ctx, id); err != nil {
		return fmt.Errorf("library: remove %s: %w", id, err)
	}

	s.mu.Lock()
	s.entries = slices.DeleteFunc(s.entries, func(e Entry) bool { return e.ID == id })
	snap := s.commitLocked()
	s.mu.Unlock()

	s.record(telemetry.KindEntryRemoved, id, nil)
	s.notify(snap)
	return nil
}

// SetHidden changes an entry's visibility flag.
func (s *Store) SetHidden(ctx context.Context, id string, hidden bool) error {
	if err := s.backend.SetHidden(ctx, id, hidden); err != nil {
		return fmt.Errorf("library: set hidden %s=%t: %w", id, hidden, err)
	}

	s.mu.Lock()
	if i := s.indexLocked(id); i >= 0 {
		s.entries[i].Hidden = hidden
	}
	snap := s.commitLocked()
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// Update persists the user-editable fields of e. PlayTime and LastPlayed
// are session-owned: the values carried by e are ignored and the held ones
// survive, so an edit made from a stale copy never undoes a finished session.
func (s *Store) Update(ctx context.Context, e Entry) error {
	if err := s.backend.UpdateEntry(ctx, e); err != nil {
		return fmt.Errorf("library: update %s: %w", e.ID, err)
	}

	s.mu.Lock()
	if i := s.indexLocked(e.ID); i >= 0 {
		cur := &s.entries[i]
		cur.Title = e.Title
		cur.Path = e.Path
		cur.CatalogID = e.CatalogID
		cur.CoverURL = e.CoverURL
		cur.Finished = e.Finished
		cur.Hidden = e.Hidden
	}
	snap := s.commitLocked()
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

func (s *Store) applyExitLocked(ev ProcessExited) {
	s.running = ""
	if i := s.indexLocked(ev.ID); i >= 0 {
		s.entries[i].PlayTime += ev.ElapsedMinutes
	}
}

func (s *Store) hasLocked(id string) bool {
	return s.indexLocked(id) >= 0
}

func (s *Store) indexLocked(id string) int {
	return slices.IndexFunc(s.entries, func(e Entry) bool { return e.ID == id })
}

// commitLocked bumps the version and returns the snapshot to publish.
func (s *Store) commitLocked() Snapshot {
	s.version++
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Entries: slices.Clone(s.entries),
		Running: s.running,
		Version: s.version,
		Loading: s.loading > 0,
	}
}

// notify delivers snap to listeners in version order, skipping snapshots
// that were overtaken by a newer delivery.
func (s *Store) notify(snap Snapshot) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if snap.Version <= s.delivered {
		return
	}
	s.delivered = snap.Version

	s.mu.Lock()
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func (s *Store) record(kind, id string, data any) {
	if err := s.events.Record(kind, id, data); err != nil {
		s.logger.Printf("library: %v", err)
	}
}
