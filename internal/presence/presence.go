// Package presence mirrors the running title onto the user's Discord
// profile. It follows library snapshots: a launch shows an activity with
// the title, its developer and up to two link buttons; an exit clears it.
// Discord is optional, so connection failures are logged and retried on the
// next change rather than returned.
package presence

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	"github.com/papapumpkin/alka/internal/discord"
	"github.com/papapumpkin/alka/internal/library"
)

// Button URLs and labels.
const (
	CatalogURL  = "https://vndb.org/"
	ProjectURL  = "https://github.com/papapumpkin/alka"
	DefaultText = "Playing Visual Novel"

	labelCatalogPage = "View on VNDB"
	labelProfile     = "My VNDB Profile"
	labelProject     = "GitHub"
)

// clearTimeout bounds the final clear when Run stops.
const clearTimeout = 2 * time.Second

// Publisher is a connected presence session.
type Publisher interface {
	SetActivity(ctx context.Context, a discord.Activity) error
	ClearActivity(ctx context.Context) error
	Close() error
}

// Options are the user's presence switches, read on every change.
type Options struct {
	Enabled           bool
	ButtonCatalogPage bool
	ButtonProfile     bool
	ButtonProject     bool
	UserID            string
}

// Config wires a Presence.
type Config struct {
	// Dial opens a session. It is called lazily and again after a failure.
	Dial func(ctx context.Context) (Publisher, error)
	// Options returns the current switches.
	Options func() Options
	// Developer names the developer of a catalog title, or "".
	Developer func(ctx context.Context, catalogID string) string
	Logger    *log.Logger
	Now       func() time.Time
}

// Presence reconciles the shown activity with the latest snapshot. Update
// only records the wanted state; Run does the IPC work.
type Presence struct {
	cfg  Config
	wake chan struct{}

	mu   sync.Mutex
	want *library.Entry

	// owned by Run
	pub   Publisher
	shown string
}

// New creates a Presence.
func New(cfg Config) *Presence {
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Developer == nil {
		cfg.Developer = func(context.Context, string) string { return "" }
	}
	return &Presence{cfg: cfg, wake: make(chan struct{}, 1)}
}

// Update records the running entry of snap. It never blocks and is safe to
// use as a library listener.
func (p *Presence) Update(snap library.Snapshot) {
	var want *library.Entry
	if snap.Running != "" {
		if e, ok := snap.Entry(snap.Running); ok {
			want = &e
		}
	}
	p.mu.Lock()
	p.want = want
	p.mu.Unlock()
	p.Poke()
}

// Poke asks Run to reconcile, for example after the options changed.
func (p *Presence) Poke() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run reconciles until ctx is done, then clears any shown activity and
// closes the session.
func (p *Presence) Run(ctx context.Context) error {
	defer p.shutdown()
	p.reconcile(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.wake:
			p.reconcile(ctx)
		}
	}
}

func (p *Presence) reconcile(ctx context.Context) {
	p.mu.Lock()
	want := p.want
	p.mu.Unlock()
	opts := p.cfg.Options()

	if want == nil || !opts.Enabled {
		if p.shown != "" {
			p.clear(ctx)
		}
		return
	}
	if p.shown == want.ID {
		return
	}

	act := BuildActivity(*want, p.cfg.Developer(ctx, want.CatalogID), opts, p.cfg.Now())
	if !p.connect(ctx) {
		return
	}
	if err := p.pub.SetActivity(ctx, act); err != nil {
		p.cfg.Logger.Printf("presence: set activity for %s: %v", want.ID, err)
		p.disconnect()
		return
	}
	p.shown = want.ID
}

func (p *Presence) clear(ctx context.Context) {
	p.shown = ""
	if p.pub == nil {
		return
	}
	if err := p.pub.ClearActivity(ctx); err != nil {
		p.cfg.Logger.Printf("presence: clear activity: %v", err)
		p.disconnect()
	}
}

func (p *Presence) connect(ctx context.Context) bool {
	if p.pub != nil {
		return true
	}
	pub, err := p.cfg.Dial(ctx)
	if err != nil {
		p.cfg.Logger.Printf("presence: connect: %v", err)
		return false
	}
	p.pub = pub
	return true
}

func (p *Presence) disconnect() {
	if p.pub == nil {
		return
	}
	if err := p.pub.Close(); err != nil {
		p.cfg.Logger.Printf("presence: close: %v", err)
	}
	p.pub = nil
	p.shown = ""
}

func (p *Presence) shutdown() {
	if p.shown != "" {
		ctx, cancel := context.WithTimeout(context.Background(), clearTimeout)
		p.clear(ctx)
		cancel()
	}
	p.disconnect()
}

// BuildActivity renders e as an activity started at start. Buttons are
// added in the order catalog page, profile, project, up to
// discord.MaxButtons; a button whose link is unknown is skipped.
func BuildActivity(e library.Entry, developer string, opts Options, start time.Time) discord.Activity {
	state := developer
	if state == "" {
		state = DefaultText
	}
	act := discord.Activity{
		Details:    e.Title,
		State:      state,
		Timestamps: &discord.Timestamps{Start: start.Unix()},
		Assets:     &discord.Assets{LargeImage: e.CoverURL, LargeText: e.Title},
	}

	add := func(label, url string) {
		if len(act.Buttons) < discord.MaxButtons {
			act.Buttons = append(act.Buttons, discord.Button{Label: label, URL: url})
		}
	}
	if opts.ButtonCatalogPage && e.CatalogID != "" {
		add(labelCatalogPage, CatalogURL+e.CatalogID)
	}
	if opts.ButtonProfile && opts.UserID != "" {
		add(labelProfile, CatalogURL+opts.UserID)
	}
	if opts.ButtonProject {
		add(labelProject, ProjectURL)
	}
	return act
}
