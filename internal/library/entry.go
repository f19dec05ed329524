// Package library owns the local collection of launchable titles and the
// identity of the single process the launcher currently tracks as running.
//
// Store is the only writer of both. Every mutation goes through the backend
// first and touches memory only after the backend confirms it; the one
// exception is OnExit, which folds the elapsed play time reported by the
// process tracker into the matching entry in place.
package library

import (
	"errors"
	"time"
)

// ErrUnknownEntry is returned when an operation names an id that is not in
// the collection.
var ErrUnknownEntry = errors.New("library: unknown entry")

// Entry is one launchable title in the local library.
type Entry struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Path       string     `json:"path"`
	CatalogID  string     `json:"catalog_id,omitempty"`
	CoverURL   string     `json:"cover_url,omitempty"`
	PlayTime   uint64     `json:"play_time"` // minutes
	Finished   bool       `json:"is_finished"`
	LastPlayed *time.Time `json:"last_played,omitempty"`
	Hidden     bool       `json:"is_hidden"`
}

// Linked reports whether the entry is associated with a catalog title.
func (e Entry) Linked() bool {
	return e.CatalogID != ""
}

// ProcessExited is pushed by the process tracker when a launched title's
// process terminates.
type ProcessExited struct {
	ID             string `json:"game_id"`
	ElapsedMinutes uint64 `json:"play_minutes"`
}

// Snapshot is a consistent view of the store: the entries, the running id and
// the version they belong to are always read together.
type Snapshot struct {
	Entries []Entry
	Running string
	Version uint64
	Loading bool
}

// IsRunning reports whether id is the tracked running entry.
func (s Snapshot) IsRunning(id string) bool {
	return id != "" && s.Running == id
}

// Entry returns the entry with the given id.
func (s Snapshot) Entry(id string) (Entry, bool) {
	for _, e := range s.Entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}
