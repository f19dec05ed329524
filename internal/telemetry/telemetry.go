// Package telemetry provides a JSONL event stream for recording launcher state
// transitions. Launches, process exits, ignored exit notifications, tracking
// stops, catalog mutations, and self-update status changes are recorded as
// structured JSON events so a session can be audited after the fact.
package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Event kinds identify the type of telemetry event.
const (
	KindEntryAdded      = "entry_added"
	KindEntryRemoved    = "entry_removed"
	KindEntryLaunched   = "entry_launched"
	KindEntryExited     = "entry_exited"
	KindExitIgnored     = "exit_ignored"
	KindTrackingStopped = "tracking_stopped"
	KindCatalogMutation = "catalog_mutation"
	KindUpdateStatus    = "update_status"
)

// FileName is the conventional name of the event stream inside the data dir.
const FileName = "events.jsonl"

// Event represents a single telemetry record. Each event carries a timestamp,
// a kind tag, and optional identifiers (library entry, catalog title) along
// with arbitrary structured data.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Kind      string    `json:"kind"`
	EntryID   string    `json:"entry,omitempty"`
	CatalogID string    `json:"catalog,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// Emitter writes telemetry events to a JSONL file. It is safe for concurrent
// use by multiple goroutines. A nil *Emitter is a valid no-op emitter.
type Emitter struct {
	file *os.File
	enc  *json.Encoder
	mu   sync.Mutex
	now  func() time.Time
}

// NewEmitter creates a new Emitter that writes JSONL events to the file at
// path. The file is created if it does not exist, or appended to if it does.
func NewEmitter(path string) (*Emitter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open %s: %w", path, err)
	}
	return &Emitter{
		file: f,
		enc:  json.NewEncoder(f),
		now:  time.Now,
	}, nil
}

// Emit writes a single event to the JSONL file. It is safe for concurrent use.
// Calling Emit on a nil Emitter is a no-op.
func (e *Emitter) Emit(evt Event) error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.Encode(evt); err != nil {
		return fmt.Errorf("telemetry: encode event: %w", err)
	}
	return nil
}

// Record stamps an event with the current time and emits it.
func (e *Emitter) Record(kind, entryID string, data any) error {
	if e == nil {
		return nil
	}
	return e.Emit(Event{
		Timestamp: e.now().UTC(),
		Kind:      kind,
		EntryID:   entryID,
		Data:      data,
	})
}

// RecordCatalog stamps and emits an event about a catalog title.
func (e *Emitter) RecordCatalog(kind, catalogID string, data any) error {
	if e == nil {
		return nil
	}
	return e.Emit(Event{
		Timestamp: e.now().UTC(),
		Kind:      kind,
		CatalogID: catalogID,
		Data:      data,
	})
}

// Close flushes and closes the underlying file. Calling Close on a nil
// Emitter is a no-op.
func (e *Emitter) Close() error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.file.Close(); err != nil {
		return fmt.Errorf("telemetry: close: %w", err)
	}
	return nil
}
