package filter

import (
	"sync"

	"golang.org/x/text/collate"

	"github.com/papapumpkin/alka/internal/library"
)

type memoKey struct {
	version uint64
	prefs   Preferences
	query   string
}

// Engine computes the library view and caches the last result. The cache
// is keyed by snapshot version, preferences and normalized query, so a
// repeated call with unchanged inputs returns the same slice.
type Engine struct {
	mu       sync.Mutex
	collator *collate.Collator
	key      memoKey
	result   []library.Entry
	valid    bool
	computes int
}

// NewEngine returns an empty engine.
func NewEngine() *Engine {
	return &Engine{collator: NewCollator()}
}

// View returns the entries of snap visible under prefs and query, in display
// order. Callers must not modify the returned slice.
func (e *Engine) View(snap library.Snapshot, prefs Preferences, query string) []library.Entry {
	prefs = prefs.Normalize()
	key := memoKey{version: snap.Version, prefs: prefs, query: NormalizeQuery(query)}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.valid && e.key == key {
		return e.result
	}
	// The collator keeps internal buffers and is only used under mu.
	e.result = DefaultChain(prefs, query, e.collator).Run(snap.Entries)
	e.key = key
	e.valid = true
	e.computes++
	return e.result
}

// Apply is the uncached form of View.
func Apply(entries []library.Entry, prefs Preferences, query string) []library.Entry {
	return DefaultChain(prefs.Normalize(), query, NewCollator()).Run(entries)
}
