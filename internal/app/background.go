package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/papapumpkin/alka/internal/presence"
	"github.com/papapumpkin/alka/internal/settings"
	"github.com/papapumpkin/alka/internal/update"
)

// ErrPresenceDisabled is returned by RunPresence when presence.app_id is
// empty.
var ErrPresenceDisabled = errors.New("app: presence disabled (presence.app_id is not set)")

// developerTimeout bounds the detail read behind a presence activity.
const developerTimeout = 3 * time.Second

// WatchSettings reloads settings when another process edits the file,
// until ctx is done.
func (a *App) WatchSettings(ctx context.Context) error {
	w, err := settings.NewWatcher(a.Settings.Path())
	if err != nil {
		return fmt.Errorf("app: watch settings: %w", err)
	}
	if err := w.Start(); err != nil {
		w.Stop()
		return fmt.Errorf("app: watch settings: %w", err)
	}
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-w.Changes:
			if !ok {
				return nil
			}
			if _, err := a.Settings.Reload(); err != nil {
				a.logger.Printf("app: reload settings: %v", err)
				continue
			}
			if a.Presence != nil {
				a.Presence.Poke()
			}
		}
	}
}

// Staged returns where meta's artifact is installed and its size.
func (a *App) Staged(meta update.Metadata) (string, int64, error) {
	if a.Source == nil {
		return "", 0, ErrUpdatesDisabled
	}
	path := a.Source.StagedPath(meta)
	info, err := a.fs.Stat(path)
	if err != nil {
		return path, 0, fmt.Errorf("app: stat staged update: %w", err)
	}
	return path, info.Size(), nil
}

// RunUpdates runs the periodic update check until ctx is done.
func (a *App) RunUpdates(ctx context.Context) error {
	if a.Scheduler == nil {
		return ErrUpdatesDisabled
	}
	return a.Scheduler.Run(ctx)
}

// CheckForUpdates queues a visible check on the running update schedule.
// It does not wait for the result; listeners on Updates see it.
func (a *App) CheckForUpdates() error {
	if a.Scheduler == nil {
		return ErrUpdatesDisabled
	}
	a.Scheduler.Trigger()
	return nil
}

// DismissUpdate clears the shown update session so periodic checks resume.
func (a *App) DismissUpdate() error {
	if a.Updates == nil {
		return ErrUpdatesDisabled
	}
	return a.Updates.Dismiss()
}

// RunPresence mirrors the running title onto Discord until ctx is done.
func (a *App) RunPresence(ctx context.Context) error {
	if a.Presence == nil {
		return ErrPresenceDisabled
	}
	unsubscribe := a.Library.OnChange(a.Presence.Update)
	defer unsubscribe()
	a.Presence.Update(a.Library.Snapshot())
	return a.Presence.Run(ctx)
}

func (a *App) presenceOptions() presence.Options {
	s := a.Settings.Get()
	return presence.Options{
		Enabled:           s.Presence.Enabled,
		ButtonCatalogPage: s.Presence.ButtonCatalogPage,
		ButtonProfile:     s.Presence.ButtonProfile,
		ButtonProject:     s.Presence.ButtonProject,
		UserID:            s.Catalog.UserID,
	}
}

// developer names the first developer of a linked title, from cache when
// possible.
func (a *App) developer(ctx context.Context, catalogID string) string {
	if catalogID == "" {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, developerTimeout)
	defer cancel()
	d, err := a.Backend.FetchDetail(ctx, catalogID, false)
	if err != nil {
		a.logger.Printf("app: presence developer for %s: %v", catalogID, err)
		return ""
	}
	if len(d.Developers) == 0 {
		return ""
	}
	return d.Developers[0].Name
}
