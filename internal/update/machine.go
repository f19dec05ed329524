package update

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/papapumpkin/alka/internal/telemetry"
)

// Machine owns one update session. All transitions happen under its lock;
// source calls run outside it.
type Machine struct {
	source Source
	logger *log.Logger
	events *telemetry.Emitter

	mu       sync.Mutex
	status   Status
	silent   bool // the current status was reached by a silent check
	pending  *Metadata
	progress float64
	total    int64
	errMsg   string
	gen      uint64 // bumped on every new operation; stale callbacks compare against it
	cancel   context.CancelFunc

	listeners    map[int]func(Session)
	nextListener int
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the logger for errors reached by silent checks.
func WithLogger(l *log.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithTelemetry records status transitions.
func WithTelemetry(e *telemetry.Emitter) Option {
	return func(m *Machine) { m.events = e }
}

// NewMachine creates an idle machine over src.
func NewMachine(src Source, opts ...Option) *Machine {
	m := &Machine{
		source:    src,
		logger:    log.New(io.Discard, "", 0),
		status:    StatusIdle,
		listeners: make(map[int]func(Session)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Status returns the internal state, including states hidden by a silent
// check.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Snapshot returns the user-visible session. Checking, up-to-date and error
// states reached by a silent check are reported as idle; available is
// always visible.
func (m *Machine) Snapshot() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionLocked()
}

// OnChange registers fn to receive the visible session after every
// transition. The returned func unregisters it.
func (m *Machine) OnChange(fn func(Session)) func() {
	m.mu.Lock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Check asks the source for a newer version. It is refused while another
// operation is in flight or once an update is ready. A silent check is
// skipped while a visible available, up-to-date or error session is shown;
// Dismiss clears it.
func (m *Machine) Check(ctx context.Context, silent bool) error {
	m.mu.Lock()
	switch {
	case m.status.IsBusy():
		m.mu.Unlock()
		return ErrBusy
	case m.status == StatusReady:
		m.mu.Unlock()
		return ErrAlreadyInstalled
	case silent && m.visibleTerminalLocked():
		m.mu.Unlock()
		return nil
	}
	m.gen++
	gen := m.gen
	m.status = StatusChecking
	m.silent = silent
	m.pending = nil
	m.progress = 0
	m.errMsg = ""
	snap := m.sessionLocked()
	m.mu.Unlock()
	m.publish(snap, StatusChecking)

	meta, err := m.source.Check(ctx)

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return nil
	}
	var next Status
	switch {
	case err != nil:
		next = StatusError
		m.errMsg = err.Error()
	case meta == nil:
		next = StatusUpToDate
	default:
		next = StatusAvailable
		m.pending = meta
		m.silent = false
	}
	m.status = next
	snap = m.sessionLocked()
	m.mu.Unlock()

	if err != nil {
		if silent {
			m.logger.Printf("update: silent check: %v", err)
		}
		m.publish(snap, next)
		return fmt.Errorf("update: check: %w", err)
	}
	m.publish(snap, next)
	return nil
}

// Download installs the pending update. Progress accumulates from chunk
// events against the announced content length and never decreases.
// Cancelling ctx, or calling Cancel, ends the session in error.
func (m *Machine) Download(ctx context.Context) error {
	m.mu.Lock()
	if m.status == StatusDownloading {
		m.mu.Unlock()
		return ErrDownloadInProgress
	}
	if m.status != StatusAvailable || m.pending == nil {
		m.mu.Unlock()
		return ErrNoPendingUpdate
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.gen++
	gen := m.gen
	meta := *m.pending
	m.status = StatusDownloading
	m.silent = false
	m.progress = 0
	m.total = 0
	m.errMsg = ""
	m.cancel = cancel
	snap := m.sessionLocked()
	m.mu.Unlock()
	m.publish(snap, StatusDownloading)

	err := m.source.DownloadAndInstall(ctx, meta, func(ev Event) { m.onProgress(gen, ev) })
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}

	m.mu.Lock()
	m.cancel = nil
	if m.gen != gen {
		m.mu.Unlock()
		return err
	}
	next := StatusReady
	if err != nil {
		next = StatusError
		if errors.Is(err, context.Canceled) {
			m.errMsg = "download cancelled"
		} else {
			m.errMsg = err.Error()
		}
	} else {
		m.progress = 100
	}
	m.status = next
	snap = m.sessionLocked()
	m.mu.Unlock()
	m.publish(snap, next)

	if err != nil {
		return fmt.Errorf("update: download %s: %w", meta.Version, err)
	}
	return nil
}

// Cancel aborts an in-flight download. It is a no-op otherwise.
func (m *Machine) Cancel() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Dismiss returns the session to idle and discards the pending update. A
// download in progress cannot be dismissed.
func (m *Machine) Dismiss() error {
	m.mu.Lock()
	switch m.status {
	case StatusDownloading:
		m.mu.Unlock()
		return ErrDownloadInProgress
	case StatusIdle:
		m.mu.Unlock()
		return nil
	}
	m.gen++
	m.status = StatusIdle
	m.silent = false
	m.pending = nil
	m.progress = 0
	m.total = 0
	m.errMsg = ""
	snap := m.sessionLocked()
	m.mu.Unlock()
	m.publish(snap, StatusIdle)
	return nil
}

func (m *Machine) onProgress(gen uint64, ev Event) {
	m.mu.Lock()
	if m.gen != gen || m.status != StatusDownloading {
		m.mu.Unlock()
		return
	}
	before := m.progress
	switch ev.Kind {
	case EventStarted:
		m.total = ev.ContentLength
	case EventProgress:
		if m.total > 0 && ev.ChunkLength > 0 {
			m.progress = min(m.progress+float64(ev.ChunkLength)/float64(m.total)*100, 100)
		}
	case EventFinished:
		m.progress = 100
	}
	if m.progress == before {
		m.mu.Unlock()
		return
	}
	snap := m.sessionLocked()
	fns := m.listenersLocked()
	m.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

func (m *Machine) visibleTerminalLocked() bool {
	switch m.status {
	case StatusAvailable:
		return true
	case StatusUpToDate, StatusError:
		return !m.silent
	}
	return false
}

func (m *Machine) sessionLocked() Session {
	s := Session{
		Status:   m.status,
		Progress: m.progress,
		Err:      m.errMsg,
	}
	if m.pending != nil {
		p := *m.pending
		s.Pending = &p
	}
	if m.silent && m.status != StatusAvailable {
		s.Status = StatusIdle
		s.Err = ""
	}
	return s
}

func (m *Machine) listenersLocked() []func(Session) {
	fns := make([]func(Session), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	return fns
}

// publish records the internal transition and notifies listeners of the
// visible session.
func (m *Machine) publish(snap Session, internal Status) {
	data := map[string]any{"status": internal, "visible": snap.Status}
	if snap.Pending != nil {
		data["version"] = snap.Pending.Version
	}
	if snap.Err != "" {
		data["error"] = snap.Err
	}
	if err := m.events.Record(telemetry.KindUpdateStatus, "", data); err != nil {
		m.logger.Printf("update: %v", err)
	}

	m.mu.Lock()
	fns := m.listenersLocked()
	m.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}
