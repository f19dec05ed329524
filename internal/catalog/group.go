package catalog

import (
	"slices"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// OtherCategory names the group for traits without a category.
const OtherCategory = "Other"

// traitOrder is the canonical category order; other categories follow in
// first-seen order.
var traitOrder = []string{
	"Hair",
	"Eyes",
	"Body",
	"Clothes",
	"Items",
	"Personality",
	"Role",
	"Engages in",
	"Subject of",
	"Engages in (Sexual)",
	"Subject of (Sexual)",
}

// TraitGroup is one category of a character's traits.
type TraitGroup struct {
	Name   string
	Traits []Trait
}

// GroupTraits partitions traits by category. With spoilers off, spoiler
// traits are removed and categories left empty are dropped; with spoilers
// on they stay in place and callers mark them with Trait.IsSpoiler.
func GroupTraits(traits []Trait, showSpoilers bool) []TraitGroup {
	groups := make(map[string][]Trait)
	var seen []string
	for _, t := range traits {
		if t.IsSpoiler() && !showSpoilers {
			continue
		}
		name := t.GroupName
		if name == "" {
			name = OtherCategory
		}
		if _, ok := groups[name]; !ok {
			seen = append(seen, name)
		}
		groups[name] = append(groups[name], t)
	}

	out := make([]TraitGroup, 0, len(groups))
	for _, name := range traitOrder {
		if ts, ok := groups[name]; ok {
			out = append(out, TraitGroup{Name: name, Traits: ts})
		}
	}
	for _, name := range seen {
		if !slices.Contains(traitOrder, name) {
			out = append(out, TraitGroup{Name: name, Traits: groups[name]})
		}
	}
	return out
}

// Role is a character's prominence within one title.
type Role string

// Roles in display order.
const (
	RoleMain    Role = "main"
	RolePrimary Role = "primary"
	RoleSide    Role = "side"
	RoleAppears Role = "appears"
)

var roleOrder = []Role{RoleMain, RolePrimary, RoleSide, RoleAppears}

var roleNames = map[Role]string{
	RoleMain:    "Protagonist",
	RolePrimary: "Main Characters",
	RoleSide:    "Side Characters",
	RoleAppears: "Makes an Appearance",
}

// ParseRole maps a catalog role string to a Role. Missing or unknown roles
// are treated as appearances.
func ParseRole(s string) Role {
	r := Role(s)
	if _, ok := roleNames[r]; ok {
		return r
	}
	return RoleAppears
}

// DisplayName returns the group heading for the role.
func (r Role) DisplayName() string {
	return roleNames[ParseRole(string(r))]
}

// CharacterGroup is the characters sharing one role in a title.
type CharacterGroup struct {
	Role       Role
	Characters []Character
}

// GroupCharacters partitions characters by their role in vnID, in role
// priority order, sorting names by collation within each group. A
// character whose appearance in vnID is spoiler-flagged is left out when
// spoilers are off.
func GroupCharacters(chars []Character, vnID string, showSpoilers bool) []CharacterGroup {
	groups := make(map[Role][]Character)
	for _, c := range VisibleCharacters(chars, vnID, showSpoilers) {
		v, _ := c.AppearanceIn(vnID)
		role := ParseRole(v.Role)
		groups[role] = append(groups[role], c)
	}

	col := collate.New(language.Und, collate.IgnoreCase)
	out := make([]CharacterGroup, 0, len(groups))
	for _, role := range roleOrder {
		cs, ok := groups[role]
		if !ok {
			continue
		}
		slices.SortStableFunc(cs, func(a, b Character) int {
			return col.CompareString(a.Name, b.Name)
		})
		out = append(out, CharacterGroup{Role: role, Characters: cs})
	}
	return out
}

// VisibleCharacters returns the characters shown for vnID under the
// spoiler setting, in their original order.
func VisibleCharacters(chars []Character, vnID string, showSpoilers bool) []Character {
	out := make([]Character, 0, len(chars))
	for _, c := range chars {
		v, _ := c.AppearanceIn(vnID)
		if v.Spoiler > 0 && !showSpoilers {
			continue
		}
		out = append(out, c)
	}
	return out
}
