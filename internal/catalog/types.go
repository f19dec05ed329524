// Package catalog holds the remote catalog projections shown on the detail
// view, the Cache that fetches and reconciles them, and the pure grouping
// and presentation helpers applied to them.
package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

// Image is a catalog image with its content ratings on a 0 to 2 scale.
type Image struct {
	URL      string  `json:"url"`
	Sexual   float64 `json:"sexual"`
	Violence float64 `json:"violence"`
}

// SearchResult is one row of a catalog title search.
type SearchResult struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Image    *Image   `json:"image"`
	Released string   `json:"released"`
	Rating   *float64 `json:"rating"`
}

// Tag is a title tag. Spoiler 0 is safe to show.
type Tag struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Rating  float64 `json:"rating"`
	Spoiler int     `json:"spoiler"`
}

// Producer is a developer or publisher.
type Producer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Detail is the full record of a catalog title.
type Detail struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Image         *Image     `json:"image"`
	Released      string     `json:"released"`
	Rating        *float64   `json:"rating"`
	Description   string     `json:"description"`
	Length        *int       `json:"length"`
	LengthMinutes *int       `json:"length_minutes"`
	Tags          []Tag      `json:"tags"`
	Developers    []Producer `json:"developers"`
}

// Trait is a character trait. An empty GroupName means the catalog did not
// categorize it.
type Trait struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	GroupID   string `json:"group_id"`
	GroupName string `json:"group_name"`
	Spoiler   int    `json:"spoiler"`
}

// IsSpoiler reports whether the trait is narrative-sensitive.
func (t Trait) IsSpoiler() bool { return t.Spoiler > 0 }

// CharacterVN is a character's appearance in one title.
type CharacterVN struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Spoiler int    `json:"spoiler"`
}

// Character is a catalog character with its per-title roles and traits.
type Character struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Original    string        `json:"original"`
	Aliases     []string      `json:"aliases"`
	Image       *Image        `json:"image"`
	Description string        `json:"description"`
	BloodType   string        `json:"blood_type"`
	Height      *int          `json:"height"`
	Weight      *int          `json:"weight"`
	Bust        *int          `json:"bust"`
	Waist       *int          `json:"waist"`
	Hips        *int          `json:"hips"`
	Cup         string        `json:"cup"`
	Age         *int          `json:"age"`
	Birthday    []int         `json:"birthday"`
	Sex         []string      `json:"sex"`
	VNs         []CharacterVN `json:"vns"`
	Traits      []Trait       `json:"traits"`
}

// AppearanceIn returns the character's entry for the given title.
func (c Character) AppearanceIn(vnID string) (CharacterVN, bool) {
	for _, v := range c.VNs {
		if v.ID == vnID {
			return v, true
		}
	}
	return CharacterVN{}, false
}

// Label is a user list label.
type Label struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
}

// UserEntry is the signed-in user's list record for one title.
type UserEntry struct {
	ID       string  `json:"id"`
	Vote     *int    `json:"vote"`
	Labels   []Label `json:"labels"`
	Started  string  `json:"started"`
	Finished string  `json:"finished"`
}

// Status returns the first exclusive status label set on the entry.
func (u *UserEntry) Status() (StatusLabel, bool) {
	if u == nil {
		return 0, false
	}
	for _, l := range u.Labels {
		s := StatusLabel(l.ID)
		if s.Exclusive() {
			return s, true
		}
	}
	return 0, false
}

// VoteString formats the vote on the catalog's 1 to 10 display scale.
func (u *UserEntry) VoteString() string {
	if u == nil || u.Vote == nil {
		return "-"
	}
	return strconv.FormatFloat(float64(*u.Vote)/10, 'f', 1, 64)
}

// StatusLabel is one of the catalog's built-in list labels.
type StatusLabel int

// Built-in labels.
const (
	LabelPlaying   StatusLabel = 1
	LabelFinished  StatusLabel = 2
	LabelStalled   StatusLabel = 3
	LabelDropped   StatusLabel = 4
	LabelWishlist  StatusLabel = 5
	LabelBlacklist StatusLabel = 6
)

var statusNames = map[StatusLabel]string{
	LabelPlaying:   "Playing",
	LabelFinished:  "Finished",
	LabelStalled:   "Stalled",
	LabelDropped:   "Dropped",
	LabelWishlist:  "Wishlist",
	LabelBlacklist: "Blacklist",
}

// StatusLabels lists the built-in labels in display order.
func StatusLabels() []StatusLabel {
	return []StatusLabel{LabelPlaying, LabelFinished, LabelStalled, LabelDropped, LabelWishlist, LabelBlacklist}
}

// Valid reports whether l is a built-in label.
func (l StatusLabel) Valid() bool {
	_, ok := statusNames[l]
	return ok
}

// Exclusive reports whether setting l unsets the other exclusive labels.
func (l StatusLabel) Exclusive() bool {
	return l >= LabelPlaying && l <= LabelWishlist
}

// Others returns the exclusive labels that setting l unsets.
func (l StatusLabel) Others() []StatusLabel {
	if !l.Exclusive() {
		return nil
	}
	var out []StatusLabel
	for s := LabelPlaying; s <= LabelWishlist; s++ {
		if s != l {
			out = append(out, s)
		}
	}
	return out
}

// String returns the label name.
func (l StatusLabel) String() string {
	if name, ok := statusNames[l]; ok {
		return name
	}
	return fmt.Sprintf("label(%d)", int(l))
}

// ParseStatusLabel accepts a label name or number.
func ParseStatusLabel(s string) (StatusLabel, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if l := StatusLabel(n); l.Valid() {
			return l, nil
		}
		return 0, fmt.Errorf("%w: %d", ErrInvalidLabel, n)
	}
	for l, name := range statusNames {
		if strings.EqualFold(name, s) {
			return l, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidLabel, s)
}

var lengthNames = map[int]string{
	1: "Very Short (<2h)",
	2: "Short (2-10h)",
	3: "Medium (10-30h)",
	4: "Long (30-50h)",
	5: "Very Long (>50h)",
}

// LengthName returns the display name of a length category, or "" when
// the category is unknown.
func LengthName(length *int) string {
	if length == nil {
		return ""
	}
	return lengthNames[*length]
}
