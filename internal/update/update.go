// Package update drives the launcher's self-update session.
//
// A Machine walks one session from idle through checking to available,
// up-to-date or error, and from available through downloading to ready or
// error. A Scheduler runs silent checks on a fixed schedule and forwards
// manual requests. Sources resolve update metadata and install artifacts.
package update

import (
	"context"
	"errors"
	"time"
)

// Status is a session state.
type Status string

const (
	// StatusIdle means no check has run or the last session was dismissed.
	StatusIdle Status = "idle"

	// StatusChecking means a check is in flight.
	StatusChecking Status = "checking"

	// StatusAvailable means a newer version was found and is pending.
	StatusAvailable Status = "available"

	// StatusUpToDate means the check found nothing newer.
	StatusUpToDate Status = "up-to-date"

	// StatusDownloading means the pending version is being downloaded and
	// installed.
	StatusDownloading Status = "downloading"

	// StatusReady means the update is installed and takes effect on
	// restart. It is terminal for the session.
	StatusReady Status = "ready"

	// StatusError means the check or download failed.
	StatusError Status = "error"
)

// IsBusy reports whether the session has an operation in flight.
func (s Status) IsBusy() bool {
	return s == StatusChecking || s == StatusDownloading
}

// Sentinel errors.
var (
	ErrDownloadInProgress = errors.New("update: download in progress")
	ErrNoPendingUpdate    = errors.New("update: no pending update")
	ErrBusy               = errors.New("update: operation in progress")
	ErrAlreadyInstalled   = errors.New("update: update already installed")
	ErrChecksumMismatch   = errors.New("update: checksum mismatch")
	ErrNoPlatformArtifact = errors.New("update: no artifact for this platform")
)

// Metadata describes an available version.
type Metadata struct {
	Version        string    `json:"version"`
	CurrentVersion string    `json:"current_version"`
	Notes          string    `json:"notes,omitempty"`
	Date           time.Time `json:"pub_date,omitempty"`
	URL            string    `json:"url"`
	SHA256         string    `json:"sha256,omitempty"`
}

// Session is the user-visible view of the update state.
type Session struct {
	Status   Status
	Pending  *Metadata
	Progress float64
	Err      string
}

// EventKind classifies a download progress event.
type EventKind int

const (
	// EventStarted carries the total content length, or 0 when unknown.
	EventStarted EventKind = iota
	// EventProgress carries the length of one received chunk.
	EventProgress
	// EventFinished marks the end of the download.
	EventFinished
)

// Event is a download progress report.
type Event struct {
	Kind          EventKind
	ContentLength int64
	ChunkLength   int64
}

// Source resolves and installs updates.
type Source interface {
	// Check returns the newer version, or nil when up to date.
	Check(ctx context.Context) (*Metadata, error)
	// DownloadAndInstall fetches and installs meta, reporting progress
	// through onProgress.
	DownloadAndInstall(ctx context.Context, meta Metadata, onProgress func(Event)) error
}
