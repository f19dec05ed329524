// Package backend implements the command surface the library store and the
// catalog cache drive: the SQLite database, the process tracker and the
// remote catalog API behind a two-level response cache.
package backend

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/papapumpkin/alka/internal/catalog"
	"github.com/papapumpkin/alka/internal/library"
	"github.com/papapumpkin/alka/internal/store"
	"github.com/papapumpkin/alka/internal/vndb"
)

// UnknownTitle is used when no title can be derived from an executable path.
const UnknownTitle = "Unknown Game"

// Sentinel errors.
var (
	// ErrNoToken is returned by list operations when no token is configured.
	ErrNoToken = errors.New("backend: no catalog token configured")
	// ErrTitleNotFound is returned when the catalog has no title with the id.
	ErrTitleNotFound = errors.New("backend: catalog title not found")
	// ErrEmptyPath is returned when AddLocal is given no path.
	ErrEmptyPath = errors.New("backend: empty executable path")
)

// CatalogAPI is the remote catalog service.
type CatalogAPI interface {
	SearchVN(ctx context.Context, q string) ([]catalog.SearchResult, error)
	VN(ctx context.Context, id string) (*catalog.Detail, error)
	Characters(ctx context.Context, vnID string) ([]catalog.Character, error)
	AuthInfo(ctx context.Context, token string) (vndb.AuthInfo, error)
	UserEntry(ctx context.Context, token, userID, vnID string) (*catalog.UserEntry, error)
	PatchUserEntry(ctx context.Context, token, vnID string, patch vndb.ListPatch) error
}

// Launcher owns the running process slot.
type Launcher interface {
	Start(id, path string) error
	Stop(ctx context.Context) (uint64, error)
	Running() (string, bool)
	SubscribeExits(handler func(library.ProcessExited)) func()
}

// Tokens supplies the catalog token and the user id it belongs to. userID
// may be empty when it has not been resolved yet.
type Tokens interface {
	Token() (token, userID string)
}

// Local is the in-process backend.
type Local struct {
	db       *store.Store
	api      CatalogAPI
	launcher Launcher
	tokens   Tokens
	logger   *log.Logger
	newID    func() string

	flight singleflight.Group

	mu          sync.Mutex
	details     map[string]*catalog.Detail
	characters  map[string][]catalog.Character
	resolvedUID map[string]string // token -> user id
}

// Option configures a Local backend.
type Option func(*Local)

// WithLogger sets the logger for cache failures the backend absorbs.
func WithLogger(l *log.Logger) Option {
	return func(b *Local) {
		if l != nil {
			b.logger = l
		}
	}
}

// New creates a backend over the given database, catalog API, launcher and
// token source.
func New(db *store.Store, api CatalogAPI, launcher Launcher, tokens Tokens, opts ...Option) *Local {
	b := &Local{
		db:          db,
		api:         api,
		launcher:    launcher,
		tokens:      tokens,
		logger:      log.New(io.Discard, "", 0),
		newID:       uuid.NewString,
		details:     make(map[string]*catalog.Detail),
		characters:  make(map[string][]catalog.Character),
		resolvedUID: make(map[string]string),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// --- library commands ---

// AllEntries returns every persisted entry.
func (b *Local) AllEntries(ctx context.Context) ([]library.Entry, error) {
	entries, err := b.db.AllGames(ctx)
	if err != nil {
		return nil, wrap("all entries", err)
	}
	if entries == nil {
		entries = []library.Entry{}
	}
	return entries, nil
}

// AddLocal registers the executable at path as a new entry titled after
// the file name.
func (b *Local) AddLocal(ctx context.Context, path string) (library.Entry, error) {
	if strings.TrimSpace(path) == "" {
		return library.Entry{}, &Error{Op: "add local", Kind: KindInvalid, Err: ErrEmptyPath}
	}
	e := library.Entry{
		ID:    b.newID(),
		Title: TitleFromPath(path),
		Path:  path,
	}
	if err := b.db.InsertGame(ctx, e); err != nil {
		return library.Entry{}, wrap("add local", err)
	}
	return e, nil
}

// TitleFromPath derives a display title from an executable path: the file
// name without its extension.
func TitleFromPath(path string) string {
	base := filepath.Base(filepath.Clean(path))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		return UnknownTitle
	}
	return stem
}

// RemoveEntry deletes an entry and its play-time history.
func (b *Local) RemoveEntry(ctx context.Context, id string) error {
	return wrap("remove entry", b.db.DeleteGame(ctx, id))
}

// SetHidden changes an entry's visibility flag.
func (b *Local) SetHidden(ctx context.Context, id string, hidden bool) error {
	return wrap("set hidden", b.db.SetHidden(ctx, id, hidden))
}

// UpdateEntry replaces an entry's persisted record.
func (b *Local) UpdateEntry(ctx context.Context, e library.Entry) error {
	return wrap("update entry", b.db.UpdateGame(ctx, e))
}

// Launch starts the entry's executable.
func (b *Local) Launch(ctx context.Context, id string) error {
	e, err := b.db.Game(ctx, id)
	if err != nil {
		return wrap("launch", err)
	}
	if err := b.launcher.Start(e.ID, e.Path); err != nil {
		return &Error{Op: "launch", Kind: launchKind(err), Err: err}
	}
	return nil
}

func launchKind(err error) Kind {
	if k := classify(err, KindStorage); k == KindNotFound || k == KindLaunch {
		return k
	}
	return KindLaunch
}

// StopTracking abandons the running session and returns the minutes it
// recorded.
func (b *Local) StopTracking(ctx context.Context) (uint64, error) {
	minutes, err := b.launcher.Stop(ctx)
	if err != nil {
		return minutes, wrap("stop tracking", err)
	}
	return minutes, nil
}

// SubscribeExits forwards the launcher's exit notifications.
func (b *Local) SubscribeExits(handler func(library.ProcessExited)) func() {
	return b.launcher.SubscribeExits(handler)
}

// Running returns the id of the tracked process, if any.
func (b *Local) Running() (string, bool) {
	return b.launcher.Running()
}

// DailyPlayTime returns an entry's per-day totals from since.
func (b *Local) DailyPlayTime(ctx context.Context, id string, since time.Time) ([]store.DayTotal, error) {
	days, err := b.db.DailyPlayTime(ctx, id, since)
	if err != nil {
		return nil, wrap("daily play time", err)
	}
	return days, nil
}
