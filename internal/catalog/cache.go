package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"slices"
	"strings"
	"sync"

	"github.com/papapumpkin/alka/internal/telemetry"
)

// Sentinel errors.
var (
	ErrNotAuthenticated = errors.New("catalog: not authenticated")
	ErrInvalidVote      = errors.New("catalog: vote must be between 10 and 100")
	ErrInvalidLabel     = errors.New("catalog: unknown status label")
)

// Vote bounds on the catalog's 10 to 100 scale.
const (
	MinVote = 10
	MaxVote = 100
)

// Backend is the catalog command surface the cache drives. force asks the
// backend to bypass its own persistent cache.
type Backend interface {
	FetchDetail(ctx context.Context, id string, force bool) (*Detail, error)
	FetchCharacters(ctx context.Context, id string, force bool) ([]Character, error)
	SearchCatalog(ctx context.Context, query string) ([]SearchResult, error)
	// FetchUserEntry returns nil, nil when the title is not on the user's list.
	FetchUserEntry(ctx context.Context, id string) (*UserEntry, error)
	SetUserStatus(ctx context.Context, id string, label StatusLabel) error
	SetUserVote(ctx context.Context, id string, vote int) error
	RemoveUserVote(ctx context.Context, id string) error
}

// Credentials reports whether a catalog token is configured.
type Credentials interface {
	HasToken() bool
}

// MutationResult reports the two halves of a list mutation. Applied is true
// when the backend accepted the change; Confirmed is true when the re-read
// that followed succeeded and the held entry reflects the server.
type MutationResult struct {
	Applied   bool
	Confirmed bool
}

// State is a copy of everything the cache holds.
type State struct {
	DetailID      string
	Detail        *Detail
	Characters    []Character
	User          *UserEntry
	UserLoaded    bool
	SearchResults []SearchResult
	Searching     bool
}

// Cache holds the last successful result of each catalog read for the
// title being viewed. A failed read never clobbers a held value.
type Cache struct {
	backend Backend
	creds   Credentials
	logger  *log.Logger
	events  *telemetry.Emitter

	mu         sync.Mutex
	gen        uint64 // bumped by ClearDetail; results from older generations are dropped
	detailID   string
	detail     *Detail
	characters []Character
	user       *UserEntry
	userLoaded bool
	results    []SearchResult
	searching  int
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger for failures the cache absorbs.
func WithLogger(l *log.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTelemetry records list mutations to the given emitter.
func WithTelemetry(e *telemetry.Emitter) Option {
	return func(c *Cache) { c.events = e }
}

// NewCache creates an empty cache.
func NewCache(b Backend, creds Credentials, opts ...Option) *Cache {
	c := &Cache{
		backend: b,
		creds:   creds,
		logger:  log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns a copy of the held values.
func (c *Cache) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		DetailID:      c.detailID,
		Detail:        c.detail,
		Characters:    slices.Clone(c.characters),
		User:          c.user,
		UserLoaded:    c.userLoaded,
		SearchResults: slices.Clone(c.results),
		Searching:     c.searching > 0,
	}
}

// FetchDetail reads the title's detail and holds it on success.
func (c *Cache) FetchDetail(ctx context.Context, id string, force bool) (*Detail, error) {
	gen := c.generation()
	d, err := c.backend.FetchDetail(ctx, id, force)
	if err != nil {
		return nil, fmt.Errorf("catalog: fetch detail %s: %w", id, err)
	}

	c.mu.Lock()
	if c.gen == gen {
		c.detailID = id
		c.detail = d
	}
	c.mu.Unlock()
	return d, nil
}

// FetchCharacters reads the title's characters and holds them on success.
func (c *Cache) FetchCharacters(ctx context.Context, id string, force bool) ([]Character, error) {
	gen := c.generation()
	chars, err := c.backend.FetchCharacters(ctx, id, force)
	if err != nil {
		return nil, fmt.Errorf("catalog: fetch characters %s: %w", id, err)
	}

	c.mu.Lock()
	if c.gen == gen {
		c.characters = slices.Clone(chars)
	}
	c.mu.Unlock()
	return chars, nil
}

// FetchUserEntry reads the user's list record for the title. A nil entry
// with a nil error means the title is not on the list, and is held as such.
func (c *Cache) FetchUserEntry(ctx context.Context, id string) (*UserEntry, error) {
	if !c.authenticated() {
		return nil, ErrNotAuthenticated
	}
	gen := c.generation()
	u, err := c.backend.FetchUserEntry(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("catalog: fetch user entry %s: %w", id, err)
	}

	c.mu.Lock()
	if c.gen == gen {
		c.user = u
		c.userLoaded = true
	}
	c.mu.Unlock()
	return u, nil
}

// SetStatus sets an exclusive status label, then re-reads the user entry.
func (c *Cache) SetStatus(ctx context.Context, id string, label StatusLabel) (MutationResult, error) {
	if !label.Valid() {
		return MutationResult{}, fmt.Errorf("%w: %d", ErrInvalidLabel, int(label))
	}
	return c.mutate(ctx, id, "set_status", label.String(), func() error {
		return c.backend.SetUserStatus(ctx, id, label)
	})
}

// SetVote sets the user's vote (10 to 100), then re-reads the user entry.
func (c *Cache) SetVote(ctx context.Context, id string, vote int) (MutationResult, error) {
	if vote < MinVote || vote > MaxVote {
		return MutationResult{}, fmt.Errorf("%w: got %d", ErrInvalidVote, vote)
	}
	return c.mutate(ctx, id, "set_vote", vote, func() error {
		return c.backend.SetUserVote(ctx, id, vote)
	})
}

// RemoveVote clears the user's vote, then re-reads the user entry.
func (c *Cache) RemoveVote(ctx context.Context, id string) (MutationResult, error) {
	return c.mutate(ctx, id, "remove_vote", nil, func() error {
		return c.backend.RemoveUserVote(ctx, id)
	})
}

// mutate runs a list mutation and always follows it with a re-read. The
// held entry changes only through the re-read.
func (c *Cache) mutate(ctx context.Context, id, op string, value any, call func() error) (MutationResult, error) {
	if !c.authenticated() {
		return MutationResult{}, ErrNotAuthenticated
	}

	var res MutationResult
	var errs []error
	if err := call(); err != nil {
		errs = append(errs, fmt.Errorf("catalog: %s %s: %w", strings.ReplaceAll(op, "_", " "), id, err))
	} else {
		res.Applied = true
	}

	if _, err := c.FetchUserEntry(ctx, id); err != nil {
		errs = append(errs, err)
	} else {
		res.Confirmed = true
	}

	c.record(id, map[string]any{
		"op":        op,
		"value":     value,
		"applied":   res.Applied,
		"confirmed": res.Confirmed,
	})
	return res, errors.Join(errs...)
}

// Search runs a catalog title search and holds the results. Blank queries
// clear the results without a backend call.
func (c *Cache) Search(ctx context.Context, query string) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		c.ClearSearch()
		return []SearchResult{}, nil
	}
	c.mu.Lock()
	c.searching++
	c.mu.Unlock()

	results, err := c.backend.SearchCatalog(ctx, query)

	c.mu.Lock()
	c.searching--
	if err == nil {
		c.results = slices.Clone(results)
	}
	c.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("catalog: search %q: %w", query, err)
	}
	return results, nil
}

// SearchResults queries the backend without touching held results. It is
// the request half used by the search debouncer, which decides whether the
// response is still wanted before calling SetSearchResults.
func (c *Cache) SearchResults(ctx context.Context, query string) ([]SearchResult, error) {
	results, err := c.backend.SearchCatalog(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("catalog: search %q: %w", query, err)
	}
	return results, nil
}

// SetSearchResults replaces the held search results.
func (c *Cache) SetSearchResults(results []SearchResult) {
	c.mu.Lock()
	c.results = slices.Clone(results)
	c.mu.Unlock()
}

// ClearSearch drops held search results. It is idempotent.
func (c *Cache) ClearSearch() {
	c.mu.Lock()
	c.results = nil
	c.mu.Unlock()
}

// ClearDetail drops the held detail, characters and user entry, and
// discards results of reads still in flight. It is idempotent.
func (c *Cache) ClearDetail() {
	c.mu.Lock()
	c.gen++
	c.detailID = ""
	c.detail = nil
	c.characters = nil
	c.user = nil
	c.userLoaded = false
	c.mu.Unlock()
}

func (c *Cache) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *Cache) authenticated() bool {
	return c.creds != nil && c.creds.HasToken()
}

func (c *Cache) record(id string, data any) {
	if err := c.events.RecordCatalog(telemetry.KindCatalogMutation, id, data); err != nil {
		c.logger.Printf("catalog: %v", err)
	}
}
