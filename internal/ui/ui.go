package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/papapumpkin/alka/internal/ansi"
	"github.com/papapumpkin/alka/internal/catalog"
	"github.com/papapumpkin/alka/internal/library"
	"github.com/papapumpkin/alka/internal/store"
	"github.com/papapumpkin/alka/internal/telemetry"
	"github.com/papapumpkin/alka/internal/update"
)

// Printer renders command output. Listings go to out; status lines and
// errors go to errOut.
type Printer struct {
	out    io.Writer
	errOut io.Writer
	color  bool
	now    func() time.Time
}

// New returns a Printer on stdout and stderr with colors.
func New() *Printer {
	return &Printer{out: os.Stdout, errOut: os.Stderr, color: true, now: time.Now}
}

// NewWriter returns a colorless Printer over the given writers.
func NewWriter(out, errOut io.Writer) *Printer {
	return &Printer{out: out, errOut: errOut, now: time.Now}
}

// c wraps s in the given codes when colors are on.
func (p *Printer) c(s string, codes ...string) string {
	if !p.color || len(codes) == 0 {
		return s
	}
	return strings.Join(codes, "") + s + ansi.Reset
}

// Error prints msg as an error line.
func (p *Printer) Error(msg string) {
	fmt.Fprintf(p.errOut, "%s%s\n", p.c("error: ", ansi.Red, ansi.Bold), msg)
}

// Info prints a dimmed status line.
func (p *Printer) Info(msg string) {
	fmt.Fprintln(p.errOut, p.c(msg, ansi.Dim))
}

// Success prints a check-marked status line.
func (p *Printer) Success(msg string) {
	fmt.Fprintf(p.errOut, "%s %s\n", p.c("✓", ansi.Green, ansi.Bold), msg)
}

// FormatPlayTime renders minutes as "Xh Ym" from one hour up, else "Xm".
func FormatPlayTime(minutes uint64) string {
	if minutes >= 60 {
		return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
	}
	return fmt.Sprintf("%dm", minutes)
}

// FormatLastPlayed renders a last-played time relative to now in whole
// days, falling back to the date after a year.
func FormatLastPlayed(t *time.Time, now time.Time) string {
	if t == nil {
		return "Never"
	}
	days := int(now.Sub(*t) / (24 * time.Hour))
	switch {
	case days <= 0:
		return "Today"
	case days == 1:
		return "Yesterday"
	case days < 7:
		return fmt.Sprintf("%d days ago", days)
	case days < 30:
		return fmt.Sprintf("%d weeks ago", days/7)
	case days < 365:
		return fmt.Sprintf("%d months ago", days/30)
	}
	return t.Local().Format(time.DateOnly)
}

// --- Library output ---

// Library prints one row per entry in the given order.
func (p *Printer) Library(entries []library.Entry, running string) {
	if len(entries) == 0 {
		fmt.Fprintln(p.out, p.c("(library is empty)", ansi.Dim))
		return
	}
	now := p.now()
	for _, e := range entries {
		marker := " "
		switch {
		case e.ID == running:
			marker = p.c("▶", ansi.Green, ansi.Bold)
		case e.Hidden:
			marker = p.c("·", ansi.Dim)
		}
		var flags []string
		if e.Finished {
			flags = append(flags, "finished")
		}
		if e.Linked() {
			flags = append(flags, e.CatalogID)
		}
		var suffix string
		if len(flags) > 0 {
			suffix = " " + p.c("["+strings.Join(flags, ", ")+"]", ansi.Dim)
		}
		fmt.Fprintf(p.out, "%s %-36s %-40s %9s  %s%s\n",
			marker, e.ID, e.Title, FormatPlayTime(e.PlayTime), FormatLastPlayed(e.LastPlayed, now), suffix)
	}
	fmt.Fprintln(p.out, p.c(fmt.Sprintf("%s entr%s", humanize.Comma(int64(len(entries))), plural(len(entries), "y", "ies")), ansi.Dim))
}

// Stats prints an entry's totals and per-day play time.
func (p *Printer) Stats(e library.Entry, days []store.DayTotal) {
	fmt.Fprintf(p.out, "%s\n", p.c(e.Title, ansi.Bold, ansi.Cyan))
	fmt.Fprintf(p.out, "  play time:   %s\n", FormatPlayTime(e.PlayTime))
	fmt.Fprintf(p.out, "  last played: %s\n", FormatLastPlayed(e.LastPlayed, p.now()))
	if len(days) == 0 {
		fmt.Fprintln(p.out, p.c("  (no sessions in range)", ansi.Dim))
		return
	}
	var peak uint64
	for _, d := range days {
		peak = max(peak, d.Minutes)
	}
	const width = 30
	for _, d := range days {
		n := 0
		if peak > 0 {
			n = int(d.Minutes * width / peak)
		}
		fmt.Fprintf(p.out, "  %s %s %s\n", d.Day, p.c(strings.Repeat("█", max(n, 1)), ansi.Magenta), FormatPlayTime(d.Minutes))
	}
}

// --- Catalog output ---

// SearchResults prints catalog search rows.
func (p *Printer) SearchResults(results []catalog.SearchResult, blur catalog.BlurPolicy) {
	if len(results) == 0 {
		fmt.Fprintln(p.out, p.c("(no results)", ansi.Dim))
		return
	}
	for _, r := range results {
		rating := "-"
		if r.Rating != nil {
			rating = fmt.Sprintf("%.2f", *r.Rating/10)
		}
		var nsfw string
		if blur.ShouldBlur(r.Image) {
			nsfw = " " + p.c("[nsfw]", ansi.Red)
		}
		fmt.Fprintf(p.out, "%-8s %-50s %-10s %5s%s\n", r.ID, r.Title, r.Released, rating, nsfw)
	}
}

// Detail prints a title's detail and, when present, the user's list entry.
func (p *Printer) Detail(d *catalog.Detail, user *catalog.UserEntry, userLoaded bool, blur catalog.BlurPolicy) {
	fmt.Fprintf(p.out, "%s %s\n", p.c(d.Title, ansi.Bold, ansi.Cyan), p.c(d.ID, ansi.Dim))
	if d.Released != "" {
		fmt.Fprintf(p.out, "  released: %s\n", d.Released)
	}
	if d.Rating != nil {
		fmt.Fprintf(p.out, "  rating:   %.2f\n", *d.Rating/10)
	}
	if length := catalog.LengthName(d.Length); length != "" {
		fmt.Fprintf(p.out, "  length:   %s\n", length)
	}
	if d.LengthMinutes != nil {
		fmt.Fprintf(p.out, "  average:  %s\n", FormatPlayTime(uint64(*d.LengthMinutes)))
	}
	if len(d.Developers) > 0 {
		names := make([]string, len(d.Developers))
		for i, dev := range d.Developers {
			names[i] = dev.Name
		}
		fmt.Fprintf(p.out, "  by:       %s\n", strings.Join(names, ", "))
	}
	if d.Image != nil {
		cover := d.Image.URL
		if blur.ShouldBlur(d.Image) {
			cover = p.c("[cover hidden]", ansi.Red)
		}
		fmt.Fprintf(p.out, "  cover:    %s\n", cover)
	}
	if tags := catalog.VisibleTags(d.Tags); len(tags) > 0 {
		names := make([]string, len(tags))
		for i, t := range tags {
			names[i] = t.Name
		}
		fmt.Fprintf(p.out, "  tags:     %s\n", strings.Join(names, ", "))
	}
	if userLoaded {
		status := "not on list"
		if s, ok := user.Status(); ok {
			status = s.String()
		} else if user != nil {
			status = "on list"
		}
		fmt.Fprintf(p.out, "  my list:  %s, vote %s\n", status, user.VoteString())
	}
	if desc := catalog.StripMarkup(d.Description); desc != "" {
		fmt.Fprintf(p.out, "\n%s\n", desc)
	}
}

// Characters prints grouped characters and their trait categories.
func (p *Printer) Characters(groups []catalog.CharacterGroup, showSpoilers bool) {
	if len(groups) == 0 {
		fmt.Fprintln(p.out, p.c("(no characters)", ansi.Dim))
		return
	}
	for _, g := range groups {
		fmt.Fprintf(p.out, "%s\n", p.c(g.Role.DisplayName(), ansi.Bold, ansi.Blue))
		for _, ch := range g.Characters {
			name := ch.Name
			if ch.Original != "" && ch.Original != ch.Name {
				name += " " + p.c("("+ch.Original+")", ansi.Dim)
			}
			fmt.Fprintf(p.out, "  %s\n", name)
			for _, tg := range catalog.GroupTraits(ch.Traits, showSpoilers) {
				names := make([]string, len(tg.Traits))
				for i, t := range tg.Traits {
					names[i] = t.Name
					if t.IsSpoiler() {
						names[i] = p.c(t.Name+" (spoiler)", ansi.Magenta)
					}
				}
				fmt.Fprintf(p.out, "    %s: %s\n", p.c(tg.Name, ansi.Dim), strings.Join(names, ", "))
			}
		}
	}
}

// Labels prints the built-in list labels.
func (p *Printer) Labels() {
	for _, l := range catalog.StatusLabels() {
		fmt.Fprintf(p.out, "  %d  %s\n", int(l), l)
	}
}

// --- Update output ---

// UpdateSession prints the update session state.
func (p *Printer) UpdateSession(s update.Session) {
	switch s.Status {
	case update.StatusAvailable:
		fmt.Fprintf(p.errOut, "%s %s → %s\n", p.c("update available:", ansi.Yellow, ansi.Bold), s.Pending.CurrentVersion, s.Pending.Version)
		if !s.Pending.Date.IsZero() {
			fmt.Fprintf(p.errOut, "  released %s\n", humanize.RelTime(s.Pending.Date, p.now(), "ago", "from now"))
		}
		if s.Pending.Notes != "" {
			fmt.Fprintf(p.errOut, "  %s\n", s.Pending.Notes)
		}
	case update.StatusUpToDate:
		p.Success("up to date")
	case update.StatusReady:
		p.Success("update installed; restart to apply")
	case update.StatusError:
		p.Error("update: " + s.Err)
	default:
		p.Info("update: " + string(s.Status))
	}
}

// UpdateProgressLine formats a download progress line.
func UpdateProgressLine(s update.Session) string {
	version := ""
	if s.Pending != nil {
		version = s.Pending.Version
	}
	return fmt.Sprintf("[update] downloading %s %3.0f%%", version, s.Progress)
}

// UpdateProgress writes a carriage-return-overwritten progress line.
func (p *Printer) UpdateProgress(s update.Session) {
	fmt.Fprintf(p.errOut, "\r%s%s", ansi.ClearLine, p.c(UpdateProgressLine(s), ansi.Cyan))
}

// UpdateProgressDone ends the progress line.
func (p *Printer) UpdateProgressDone() {
	fmt.Fprintln(p.errOut)
}

// Downloaded reports a staged artifact size.
func (p *Printer) Downloaded(path string, size int64) {
	fmt.Fprintf(p.errOut, "%s %s (%s)\n", p.c("staged", ansi.Green), path, humanize.Bytes(uint64(max(size, 0))))
}

// --- Events output ---

// Event prints one telemetry record.
func (p *Printer) Event(ev telemetry.Event) {
	subject := ev.EntryID
	if subject == "" {
		subject = ev.CatalogID
	}
	when := humanize.RelTime(ev.Timestamp, p.now(), "ago", "from now")
	line := fmt.Sprintf("%-16s %-20s %s", when, ev.Kind, subject)
	if ev.Data != nil {
		line += " " + p.c(fmt.Sprint(ev.Data), ansi.Dim)
	}
	fmt.Fprintln(p.out, line)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
