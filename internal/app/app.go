// Package app wires the launcher's stores, backend and background loops
// together for the command line.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/spf13/afero"

	"github.com/papapumpkin/alka/internal/backend"
	"github.com/papapumpkin/alka/internal/catalog"
	"github.com/papapumpkin/alka/internal/config"
	"github.com/papapumpkin/alka/internal/discord"
	"github.com/papapumpkin/alka/internal/filter"
	"github.com/papapumpkin/alka/internal/library"
	"github.com/papapumpkin/alka/internal/presence"
	"github.com/papapumpkin/alka/internal/settings"
	"github.com/papapumpkin/alka/internal/store"
	"github.com/papapumpkin/alka/internal/telemetry"
	"github.com/papapumpkin/alka/internal/tracker"
	"github.com/papapumpkin/alka/internal/update"
	"github.com/papapumpkin/alka/internal/vndb"
)

// ErrUpdatesDisabled is returned by update operations when no manifest URL
// is configured.
var ErrUpdatesDisabled = errors.New("app: updates disabled (update.manifest_url is not set)")

// App holds every long-lived component of one launcher session.
type App struct {
	Config   config.Config
	Settings *settings.File
	Backend  *backend.Local
	Library  *library.Store
	Filter   *filter.Engine
	Catalog  *catalog.Cache

	// Updates and Scheduler are nil when updates are disabled.
	Updates   *update.Machine
	Scheduler *update.Scheduler
	Source    *update.HTTPSource

	// Presence is nil when presence.app_id is empty.
	Presence *presence.Presence

	db      *store.Store
	tracker *tracker.Tracker
	events  *telemetry.Emitter
	fs      afero.Fs
	logger  *log.Logger
}

type options struct {
	logger       *log.Logger
	api          backend.CatalogAPI
	fs           afero.Fs
	dialPresence func(ctx context.Context) (presence.Publisher, error)
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the session logger.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCatalogAPI replaces the catalog HTTP client.
func WithCatalogAPI(api backend.CatalogAPI) Option {
	return func(o *options) { o.api = api }
}

// WithFs replaces the filesystem used for settings and update artifacts.
func WithFs(fs afero.Fs) Option {
	return func(o *options) { o.fs = fs }
}

// WithPresenceDial replaces the Discord IPC connection and turns presence
// on regardless of presence.app_id.
func WithPresenceDial(dial func(ctx context.Context) (presence.Publisher, error)) Option {
	return func(o *options) { o.dialPresence = dial }
}

// Open builds a session from cfg: it creates the data directory, opens the
// database and settings, constructs the stores over the local backend and
// loads the library.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	o := options{
		logger: log.New(io.Discard, "", 0),
		fs:     afero.NewOsFs(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.New(io.Discard, "", 0)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("app: create data dir %s: %w", cfg.DataDir, err)
	}

	a := &App{Config: cfg, fs: o.fs, logger: o.logger, Filter: filter.NewEngine()}

	var err error
	a.Settings, err = openSettings(o.fs, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Telemetry.Enabled {
		a.events, err = telemetry.NewEmitter(cfg.EventsPath())
		if err != nil {
			// Telemetry is best-effort.
			a.logger.Printf("app: %v", err)
		}
	}

	a.db, err = store.Open(ctx, cfg.DatabasePath())
	if err != nil {
		a.events.Close()
		return nil, err
	}

	api := o.api
	if api == nil {
		api = vndb.NewClient("alka/"+config.Version, cfg.Catalog.RatePerSecond, cfg.Catalog.MaxRetries, cfg.Catalog.Timeout,
			vndb.WithBaseURL(cfg.Catalog.BaseURL))
	}

	a.tracker = tracker.New(a.db, a.logger)
	a.Backend = backend.New(a.db, api, a.tracker, a.Settings, backend.WithLogger(a.logger))
	a.Library = library.NewStore(a.Backend, a.Backend, library.WithLogger(a.logger), library.WithTelemetry(a.events))
	a.Catalog = catalog.NewCache(a.Backend, a.Settings, catalog.WithLogger(a.logger), catalog.WithTelemetry(a.events))

	if cfg.Update.ManifestURL != "" {
		a.Source = update.NewHTTPSource(cfg.Update.ManifestURL, cfg.Update.CurrentVersion, cfg.UpdatesDir(), update.WithFs(o.fs))
		a.Updates = update.NewMachine(a.Source, update.WithLogger(a.logger), update.WithTelemetry(a.events))
		a.Scheduler = update.NewScheduler(a.Updates, cfg.Update.InitialDelay, cfg.Update.Interval)
	}

	if dial := o.dialPresence; dial != nil || cfg.Presence.AppID != "" {
		if dial == nil {
			appID := cfg.Presence.AppID
			dial = func(ctx context.Context) (presence.Publisher, error) {
				c, err := discord.Dial(ctx, appID)
				if err != nil {
					return nil, err
				}
				return c, nil
			}
		}
		a.Presence = presence.New(presence.Config{
			Dial:      dial,
			Options:   a.presenceOptions,
			Developer: a.developer,
			Logger:    a.logger,
		})
	}

	a.Library.Load(ctx)
	return a, nil
}

// openSettings loads the settings file, seeding the blur threshold from
// config on first run.
func openSettings(fs afero.Fs, cfg config.Config) (*settings.File, error) {
	path := cfg.SettingsPath()
	existed, err := afero.Exists(fs, path)
	if err != nil {
		return nil, fmt.Errorf("app: stat settings: %w", err)
	}
	f, err := settings.Open(fs, path)
	if err != nil {
		return nil, err
	}
	if !existed && cfg.Blur.Threshold > 0 {
		if err := f.Update(func(s *settings.Settings) { s.Display.BlurThreshold = cfg.Blur.Threshold }); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Close releases the session. A game still running is not signalled.
func (a *App) Close() error {
	a.Library.Close()
	var errs []error
	if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("app: close database: %w", err))
	}
	if err := a.events.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Logger returns the session logger.
func (a *App) Logger() *log.Logger { return a.logger }

// Tracker returns the process tracker.
func (a *App) Tracker() *tracker.Tracker { return a.tracker }

// --- library ---

// View returns the visible library under the saved preferences and query.
func (a *App) View(query string) []library.Entry {
	return a.Filter.View(a.Library.Snapshot(), a.Settings.Get().Library, query)
}

// SetPreferences edits and saves the library view preferences.
func (a *App) SetPreferences(fn func(*filter.Preferences)) (filter.Preferences, error) {
	if err := a.Settings.Update(func(s *settings.Settings) { fn(&s.Library) }); err != nil {
		return filter.Preferences{}, err
	}
	return a.Settings.Get().Library, nil
}

// Entry returns a loaded entry by id.
func (a *App) Entry(id string) (library.Entry, error) {
	e, ok := a.Library.Snapshot().Entry(id)
	if !ok {
		return library.Entry{}, fmt.Errorf("%w: %s", library.ErrUnknownEntry, id)
	}
	return e, nil
}

// SetFinished marks an entry finished or unfinished.
func (a *App) SetFinished(ctx context.Context, id string, finished bool) error {
	e, err := a.Entry(id)
	if err != nil {
		return err
	}
	e.Finished = finished
	return a.Library.Update(ctx, e)
}

// Link associates an entry with a catalog title, taking the catalog's title
// and cover.
func (a *App) Link(ctx context.Context, id, catalogID string) (library.Entry, error) {
	e, err := a.Entry(id)
	if err != nil {
		return library.Entry{}, err
	}
	d, err := a.Backend.FetchDetail(ctx, catalogID, false)
	if err != nil {
		return library.Entry{}, fmt.Errorf("app: link %s to %s: %w", id, catalogID, err)
	}
	e.CatalogID = d.ID
	e.Title = d.Title
	if d.Image != nil {
		e.CoverURL = d.Image.URL
	}
	if err := a.Library.Update(ctx, e); err != nil {
		return library.Entry{}, err
	}
	return e, nil
}

// Stats returns an entry and its per-day play time over the last days days.
func (a *App) Stats(ctx context.Context, id string, days int) (library.Entry, []store.DayTotal, error) {
	e, err := a.Entry(id)
	if err != nil {
		return library.Entry{}, nil, err
	}
	since := time.Now().AddDate(0, 0, -max(days-1, 0))
	totals, err := a.Backend.DailyPlayTime(ctx, id, since)
	if err != nil {
		return library.Entry{}, nil, err
	}
	return e, totals, nil
}
