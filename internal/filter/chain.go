package filter

import (
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/papapumpkin/alka/internal/library"
)

// Stage is a single named step of the view pipeline.
type Stage struct {
	Name string
	Fn   func(entries []library.Entry) []library.Entry
}

// Chain runs stages in order, feeding each the previous stage's output.
type Chain struct {
	Stages []Stage
}

// Run applies every stage to a copy of entries. The input slice is never
// modified.
func (c *Chain) Run(entries []library.Entry) []library.Entry {
	out := slices.Clone(entries)
	for _, st := range c.Stages {
		out = st.Fn(out)
	}
	if out == nil {
		out = []library.Entry{}
	}
	return out
}

// DefaultChain returns the standard pipeline: visibility, title search,
// then sort.
func DefaultChain(prefs Preferences, query string, col *collate.Collator) *Chain {
	return &Chain{Stages: []Stage{
		{Name: "hidden", Fn: hiddenStage(prefs.ShowHidden)},
		{Name: "search", Fn: searchStage(query)},
		{Name: "sort", Fn: sortStage(prefs.SortKey, prefs.Direction, col)},
	}}
}

// NewCollator returns the collator used for title ordering.
func NewCollator() *collate.Collator {
	return collate.New(language.Und, collate.IgnoreCase)
}

// NormalizeQuery trims the query and folds its case.
func NormalizeQuery(q string) string {
	return cases.Fold().String(strings.TrimSpace(q))
}

func hiddenStage(showHidden bool) func([]library.Entry) []library.Entry {
	return func(entries []library.Entry) []library.Entry {
		if showHidden {
			return entries
		}
		return slices.DeleteFunc(entries, func(e library.Entry) bool { return e.Hidden })
	}
}

func searchStage(query string) func([]library.Entry) []library.Entry {
	needle := NormalizeQuery(query)
	return func(entries []library.Entry) []library.Entry {
		if needle == "" {
			return entries
		}
		fold := cases.Fold()
		return slices.DeleteFunc(entries, func(e library.Entry) bool {
			return !strings.Contains(fold.String(e.Title), needle)
		})
	}
}

func sortStage(key SortKey, dir Direction, col *collate.Collator) func([]library.Entry) []library.Entry {
	return func(entries []library.Entry) []library.Entry {
		var cmp func(a, b library.Entry) int
		switch key {
		case SortLastPlayed:
			cmp = func(a, b library.Entry) int {
				return playedAt(a).Compare(playedAt(b))
			}
		case SortPlayTime:
			cmp = func(a, b library.Entry) int {
				switch {
				case a.PlayTime < b.PlayTime:
					return -1
				case a.PlayTime > b.PlayTime:
					return 1
				}
				return 0
			}
		default:
			cmp = func(a, b library.Entry) int {
				return col.CompareString(a.Title, b.Title)
			}
		}
		if dir == Desc {
			asc := cmp
			cmp = func(a, b library.Entry) int { return asc(b, a) }
		}
		slices.SortStableFunc(entries, cmp)
		return entries
	}
}

// playedAt treats a never-played entry as played at the epoch.
func playedAt(e library.Entry) time.Time {
	if e.LastPlayed == nil {
		return time.Unix(0, 0)
	}
	return *e.LastPlayed
}
