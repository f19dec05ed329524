package catalog

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func groupNames(groups []TraitGroup) []string {
	out := make([]string, len(groups))
	for i, g := range groups {
		out[i] = g.Name
	}
	return out
}

func TestGroupTraits_SpoilersOff(t *testing.T) {
	t.Parallel()
	traits := []Trait{
		{ID: "i1", Name: "Glasses", GroupName: "Items"},
		{ID: "h1", Name: "Ponytail", GroupName: "Hair"},
		{ID: "u1", Name: "Mystery", GroupName: "Unknown"},
		{ID: "h2", Name: "Secret Dye", GroupName: "Hair", Spoiler: 2},
	}

	got := GroupTraits(traits, false)
	if diff := cmp.Diff([]string{"Hair", "Items", "Unknown"}, groupNames(got)); diff != "" {
		t.Errorf("category order (-want +got):\n%s", diff)
	}
	for _, g := range got {
		for _, tr := range g.Traits {
			if tr.ID == "h2" {
				t.Error("spoiler trait present with spoilers off")
			}
		}
	}
}

func TestGroupTraits_EmptyCategoryDropped(t *testing.T) {
	t.Parallel()
	traits := []Trait{
		{ID: "h1", Name: "Secret", GroupName: "Hair", Spoiler: 1},
		{ID: "i1", Name: "Sword", GroupName: "Items"},
		{ID: "x1", Name: "Loose"},
	}
	got := GroupTraits(traits, false)
	if diff := cmp.Diff([]string{"Items", OtherCategory}, groupNames(got)); diff != "" {
		t.Errorf("categories (-want +got):\n%s", diff)
	}
}

func TestGroupTraits_SpoilersOnKeepsInline(t *testing.T) {
	t.Parallel()
	traits := []Trait{
		{ID: "b", Name: "Kuudere", GroupName: "Personality"},
		{ID: "h1", Name: "Long", GroupName: "Hair"},
		{ID: "h2", Name: "Dyed", GroupName: "Hair", Spoiler: 1},
		{ID: "z", Name: "Zeta", GroupName: "Zodiac"},
		{ID: "a", Name: "Alpha", GroupName: "Aspects"},
	}
	got := GroupTraits(traits, true)
	want := []TraitGroup{
		{Name: "Hair", Traits: []Trait{traits[1], traits[2]}},
		{Name: "Personality", Traits: []Trait{traits[0]}},
		{Name: "Zodiac", Traits: []Trait{traits[3]}},
		{Name: "Aspects", Traits: []Trait{traits[4]}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("groups (-want +got):\n%s", diff)
	}
	if !got[0].Traits[1].IsSpoiler() {
		t.Error("spoiler trait not marked")
	}
}

func TestGroupCharacters(t *testing.T) {
	t.Parallel()
	chars := []Character{
		{ID: "c1", Name: "You", VNs: []CharacterVN{{ID: "v17", Role: "primary"}}},
		{ID: "c2", Name: "Takeshi", VNs: []CharacterVN{{ID: "v17", Role: "main"}}},
		{ID: "c3", Name: "coco", VNs: []CharacterVN{{ID: "v17", Role: "primary", Spoiler: 2}}},
		{ID: "c4", Name: "Sora", VNs: []CharacterVN{{ID: "v17", Role: "primary"}}},
		{ID: "c5", Name: "Pipi", VNs: []CharacterVN{{ID: "v99", Role: "main"}}},
		{ID: "c6", Name: "Kid", VNs: []CharacterVN{{ID: "v17", Role: "cameo"}}},
	}

	tests := []struct {
		name    string
		spoiler bool
		want    map[Role][]string
		order   []Role
	}{
		{
			name:    "spoilers off",
			spoiler: false,
			order:   []Role{RoleMain, RolePrimary, RoleAppears},
			want: map[Role][]string{
				RoleMain:    {"c2"},
				RolePrimary: {"c4", "c1"},
				RoleAppears: {"c6", "c5"},
			},
		},
		{
			name:    "spoilers on",
			spoiler: true,
			order:   []Role{RoleMain, RolePrimary, RoleAppears},
			want: map[Role][]string{
				RoleMain:    {"c2"},
				RolePrimary: {"c3", "c4", "c1"},
				RoleAppears: {"c6", "c5"},
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := GroupCharacters(chars, "v17", tt.spoiler)
			var order []Role
			for _, g := range got {
				order = append(order, g.Role)
				var ids []string
				for _, c := range g.Characters {
					ids = append(ids, c.ID)
				}
				if diff := cmp.Diff(tt.want[g.Role], ids); diff != "" {
					t.Errorf("role %s (-want +got):\n%s", g.Role, diff)
				}
			}
			if diff := cmp.Diff(tt.order, order); diff != "" {
				t.Errorf("role order (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBlurPolicy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		policy BlurPolicy
		img    *Image
		want   bool
	}{
		{"disabled", BlurPolicy{Enabled: false, Threshold: 1}, &Image{Sexual: 2}, false},
		{"nil image", BlurPolicy{Enabled: true, Threshold: 1}, nil, false},
		{"at threshold", BlurPolicy{Enabled: true, Threshold: 1}, &Image{Sexual: 1}, true},
		{"violence", BlurPolicy{Enabled: true, Threshold: 1}, &Image{Violence: 1.4}, true},
		{"below", BlurPolicy{Enabled: true, Threshold: 1}, &Image{Sexual: 0.9, Violence: 0.5}, false},
		{"strict threshold", BlurPolicy{Enabled: true, Threshold: 1.5}, &Image{Sexual: 1}, false},
	}
	for _, tt := range tests {
		if got := tt.policy.ShouldBlur(tt.img); got != tt.want {
			t.Errorf("%s: ShouldBlur = %t, want %t", tt.name, got, tt.want)
		}
	}
}

func TestStripMarkup(t *testing.T) {
	t.Parallel()
	in := "A [url=https://vndb.org/c1]girl[/url] with a [Spoiler]secret[/spoiler]. [b]kept[/b]"
	want := "A girl with a secret. [b]kept[/b]"
	if got := StripMarkup(in); got != want {
		t.Errorf("StripMarkup = %q, want %q", got, want)
	}
}

func TestVisibleTags(t *testing.T) {
	t.Parallel()
	var tags []Tag
	for i := 0; i < 20; i++ {
		tags = append(tags, Tag{ID: string(rune('a' + i)), Spoiler: i % 4 / 3})
	}
	got := VisibleTags(tags)
	if len(got) != MaxVisibleTags {
		t.Fatalf("len = %d, want %d", len(got), MaxVisibleTags)
	}
	for _, tg := range got {
		if tg.Spoiler != 0 {
			t.Errorf("spoiler tag %s visible", tg.ID)
		}
	}
}

func TestStatusLabels(t *testing.T) {
	t.Parallel()
	if l, err := ParseStatusLabel("finished"); err != nil || l != LabelFinished {
		t.Errorf("ParseStatusLabel(finished) = %v, %v", l, err)
	}
	if l, err := ParseStatusLabel("6"); err != nil || l != LabelBlacklist {
		t.Errorf("ParseStatusLabel(6) = %v, %v", l, err)
	}
	if got := LabelPlaying.Others(); len(got) != 4 {
		t.Errorf("Others() = %v, want 4 labels", got)
	}
	if got := LabelBlacklist.Others(); got != nil {
		t.Errorf("Blacklist.Others() = %v, want nil", got)
	}
	if got := LengthName(intp(3)); got != "Medium (10-30h)" {
		t.Errorf("LengthName(3) = %q", got)
	}
	v := 85
	if got := (&UserEntry{Vote: &v}).VoteString(); got != "8.5" {
		t.Errorf("VoteString = %q, want 8.5", got)
	}
}
