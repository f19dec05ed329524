// Package filter derives the visible library view from a library snapshot:
// hidden entries are dropped, the title search is applied and the result is
// sorted by the user's preferences. The derivation is a pure function of its
// inputs and is memoized on the snapshot version.
package filter

import (
	"fmt"
	"strings"
)

// SortKey selects the field the view is ordered by.
type SortKey string

// Sort keys.
const (
	SortTitle      SortKey = "title"
	SortLastPlayed SortKey = "lastPlayed"
	SortPlayTime   SortKey = "playTime"
)

// Direction is the sort direction. It is literal for every key: Asc on
// title is A to Z, Asc on lastPlayed is oldest first and Asc on playTime is
// least played first.
type Direction string

// Directions.
const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Preferences are the durable view settings.
type Preferences struct {
	SortKey    SortKey   `toml:"sort_key"`
	Direction  Direction `toml:"direction"`
	ShowHidden bool      `toml:"show_hidden"`
}

// DefaultPreferences returns the view settings used before the user picks any.
func DefaultPreferences() Preferences {
	return Preferences{SortKey: SortTitle, Direction: Asc}
}

// ParseSortKey accepts a sort key name, case-insensitively. "last_played"
// and "play_time" are accepted as aliases.
func ParseSortKey(s string) (SortKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "title":
		return SortTitle, nil
	case "lastplayed", "last_played", "last-played", "recent":
		return SortLastPlayed, nil
	case "playtime", "play_time", "play-time":
		return SortPlayTime, nil
	}
	return "", fmt.Errorf("filter: unknown sort key %q", s)
}

// ParseDirection accepts "asc" or "desc".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc":
		return Asc, nil
	case "desc":
		return Desc, nil
	}
	return "", fmt.Errorf("filter: unknown sort direction %q", s)
}

// Normalize replaces unknown fields with defaults so preferences read from
// an older or hand-edited file are always usable.
func (p Preferences) Normalize() Preferences {
	def := DefaultPreferences()
	if k, err := ParseSortKey(string(p.SortKey)); err != nil {
		p.SortKey = def.SortKey
	} else {
		p.SortKey = k
	}
	if d, err := ParseDirection(string(p.Direction)); err != nil {
		p.Direction = def.Direction
	} else {
		p.Direction = d
	}
	return p
}
