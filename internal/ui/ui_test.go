package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/papapumpkin/alka/internal/catalog"
	"github.com/papapumpkin/alka/internal/library"
	"github.com/papapumpkin/alka/internal/store"
	"github.com/papapumpkin/alka/internal/telemetry"
	"github.com/papapumpkin/alka/internal/update"
)

var fixedNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestPrinter() (*Printer, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	p := NewWriter(&out, &errOut)
	p.now = func() time.Time { return fixedNow }
	return p, &out, &errOut
}

func ptr[T any](v T) *T { return &v }

func TestFormatPlayTime(t *testing.T) {
	t.Parallel()
	tests := []struct {
		minutes uint64
		want    string
	}{
		{0, "0m"},
		{59, "59m"},
		{60, "1h 0m"},
		{61, "1h 1m"},
		{135, "2h 15m"},
		{6000, "100h 0m"},
	}
	for _, tt := range tests {
		if got := FormatPlayTime(tt.minutes); got != tt.want {
			t.Errorf("FormatPlayTime(%d) = %q, want %q", tt.minutes, got, tt.want)
		}
	}
}

func TestFormatLastPlayed(t *testing.T) {
	t.Parallel()
	ago := func(d time.Duration) *time.Time { return ptr(fixedNow.Add(-d)) }
	day := 24 * time.Hour
	tests := []struct {
		name string
		at   *time.Time
		want string
	}{
		{"never", nil, "Never"},
		{"today", ago(3 * time.Hour), "Today"},
		{"future clock skew", ago(-time.Hour), "Today"},
		{"yesterday", ago(day + time.Hour), "Yesterday"},
		{"days", ago(5 * day), "5 days ago"},
		{"weeks", ago(15 * day), "2 weeks ago"},
		{"months", ago(95 * day), "3 months ago"},
		{"date", ago(400 * day), fixedNow.Add(-400 * day).Local().Format(time.DateOnly)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := FormatLastPlayed(tt.at, fixedNow); got != tt.want {
				t.Errorf("FormatLastPlayed = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLibrary(t *testing.T) {
	t.Parallel()
	p, out, _ := newTestPrinter()
	p.Library([]library.Entry{
		{ID: "g1", Title: "Ever17", PlayTime: 135, CatalogID: "v17", Finished: true},
		{ID: "g2", Title: "Saya no Uta", Hidden: true},
	}, "g1")

	got := out.String()
	for _, want := range []string{"▶ g1", "Ever17", "2h 15m", "Never", "[finished, v17]", "· g2", "2 entries"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestLibrary_Empty(t *testing.T) {
	t.Parallel()
	p, out, _ := newTestPrinter()
	p.Library(nil, "")
	if !strings.Contains(out.String(), "library is empty") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestStats(t *testing.T) {
	t.Parallel()
	p, out, _ := newTestPrinter()
	p.Stats(library.Entry{Title: "Ever17", PlayTime: 90}, []store.DayTotal{
		{Day: "2026-03-12", Minutes: 30},
		{Day: "2026-03-13", Minutes: 60},
	})
	got := out.String()
	for _, want := range []string{"1h 30m", "2026-03-12", "30m", "2026-03-13", "1h 0m"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Count(got, "█") != 15+30 {
		t.Errorf("bars not scaled to the peak day:\n%s", got)
	}
}

func TestDetail(t *testing.T) {
	t.Parallel()
	p, out, _ := newTestPrinter()
	d := &catalog.Detail{
		ID:          "v17",
		Title:       "Ever17",
		Rating:      ptr(85.0),
		Length:      ptr(4),
		Image:       &catalog.Image{URL: "https://img/cv.jpg", Sexual: 1.2},
		Description: "A [url=https://x]deep sea[/url] mystery.",
		Tags: []catalog.Tag{
			{Name: "Amnesia", Rating: 2.5},
			{Name: "Twist Ending", Rating: 2.9, Spoiler: 2},
		},
		Developers: []catalog.Producer{{Name: "KID"}},
	}
	p.Detail(d, &catalog.UserEntry{Vote: ptr(90), Labels: []catalog.Label{{ID: 2}}}, true,
		catalog.BlurPolicy{Enabled: true, Threshold: catalog.DefaultBlurThreshold})

	got := out.String()
	for _, want := range []string{"Ever17", "8.50", "by:       KID", "[cover hidden]", "Amnesia", "Finished, vote 9.0", "A deep sea mystery."} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	for _, unwanted := range []string{"Twist Ending", "https://img/cv.jpg", "[url"} {
		if strings.Contains(got, unwanted) {
			t.Errorf("output should not contain %q:\n%s", unwanted, got)
		}
	}
}

func TestDetail_NotOnList(t *testing.T) {
	t.Parallel()
	p, out, _ := newTestPrinter()
	p.Detail(&catalog.Detail{ID: "v1", Title: "Tsukihime"}, nil, true, catalog.BlurPolicy{})
	if !strings.Contains(out.String(), "not on list, vote -") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}

func TestCharacters(t *testing.T) {
	t.Parallel()
	p, out, _ := newTestPrinter()
	groups := catalog.GroupCharacters([]catalog.Character{
		{ID: "c1", Name: "Takeshi", VNs: []catalog.CharacterVN{{ID: "v17", Role: "main"}},
			Traits: []catalog.Trait{{Name: "Brown", GroupName: "Hair"}}},
		{ID: "c2", Name: "Tsugumi", Original: "小町つぐみ", VNs: []catalog.CharacterVN{{ID: "v17", Role: "primary"}}},
	}, "v17", false)
	p.Characters(groups, false)

	got := out.String()
	for _, want := range []string{"Protagonist", "Takeshi", "Hair: Brown", "Main Characters", "Tsugumi (小町つぐみ)"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Index(got, "Protagonist") > strings.Index(got, "Main Characters") {
		t.Errorf("groups out of order:\n%s", got)
	}
}

func TestCharactersMarksShownSpoilers(t *testing.T) {
	t.Parallel()
	chars := []catalog.Character{
		{ID: "c1", Name: "Takeshi", VNs: []catalog.CharacterVN{{ID: "v17", Role: "main"}},
			Traits: []catalog.Trait{
				{Name: "Brown", GroupName: "Hair"},
				{Name: "Amnesiac", GroupName: "Personality", Spoiler: 2},
			}},
	}

	p, out, _ := newTestPrinter()
	p.Characters(catalog.GroupCharacters(chars, "v17", true), true)
	got := out.String()
	if !strings.Contains(got, "Amnesiac (spoiler)") {
		t.Errorf("spoiler trait not marked:\n%s", got)
	}
	if strings.Contains(got, "Brown (spoiler)") {
		t.Errorf("public trait marked as spoiler:\n%s", got)
	}

	p, out, _ = newTestPrinter()
	p.Characters(catalog.GroupCharacters(chars, "v17", false), false)
	if got := out.String(); strings.Contains(got, "Amnesiac") {
		t.Errorf("spoiler trait shown with spoilers off:\n%s", got)
	}
}

func TestUpdateSession(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		s    update.Session
		want string
	}{
		{"available", update.Session{Status: update.StatusAvailable, Pending: &update.Metadata{
			Version: "1.2.0", CurrentVersion: "1.1.0", Date: fixedNow.Add(-48 * time.Hour), Notes: "Faster search"}},
			"1.1.0 → 1.2.0"},
		{"up to date", update.Session{Status: update.StatusUpToDate}, "up to date"},
		{"ready", update.Session{Status: update.StatusReady}, "restart to apply"},
		{"error", update.Session{Status: update.StatusError, Err: "network down"}, "update: network down"},
		{"idle", update.Session{Status: update.StatusIdle}, "update: idle"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, _, errOut := newTestPrinter()
			p.UpdateSession(tt.s)
			if !strings.Contains(errOut.String(), tt.want) {
				t.Errorf("output missing %q:\n%s", tt.want, errOut.String())
			}
		})
	}
}

func TestUpdateProgressLine(t *testing.T) {
	t.Parallel()
	got := UpdateProgressLine(update.Session{Status: update.StatusDownloading, Progress: 42.4, Pending: &update.Metadata{Version: "1.2.0"}})
	want := "[update] downloading 1.2.0  42%"
	if got != want {
		t.Errorf("UpdateProgressLine = %q, want %q", got, want)
	}
}

func TestEvent(t *testing.T) {
	t.Parallel()
	p, out, _ := newTestPrinter()
	p.Event(telemetry.Event{
		Timestamp: fixedNow.Add(-2 * time.Minute),
		Kind:      telemetry.KindEntryExited,
		EntryID:   "g1",
		Data:      map[string]any{"minutes": 42},
	})
	got := out.String()
	for _, want := range []string{"2 minutes ago", "entry_exited", "g1", "minutes:42"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}
