package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/papapumpkin/alka/internal/discord"
	"github.com/papapumpkin/alka/internal/library"
)

type fakePublisher struct {
	mu       sync.Mutex
	calls    []string
	shown    []discord.Activity
	failSet  error
	closed   int
	onChange chan struct{}
}

func (f *fakePublisher) record(call string) {
	f.calls = append(f.calls, call)
	if f.onChange != nil {
		select {
		case f.onChange <- struct{}{}:
		default:
		}
	}
}

func (f *fakePublisher) SetActivity(_ context.Context, a discord.Activity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet != nil {
		return f.failSet
	}
	f.shown = append(f.shown, a)
	f.record("set " + a.Details)
	return nil
}

func (f *fakePublisher) ClearActivity(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("clear")
	return nil
}

func (f *fakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakePublisher) log() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

var start = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestPresence(pub *fakePublisher, opts Options) (*Presence, *int) {
	dials := 0
	p := New(Config{
		Dial: func(context.Context) (Publisher, error) {
			dials++
			return pub, nil
		},
		Options:   func() Options { return opts },
		Developer: func(_ context.Context, id string) string { return map[string]string{"v17": "KID"}[id] },
		Now:       func() time.Time { return start },
	})
	return p, &dials
}

func running(id string, entries ...library.Entry) library.Snapshot {
	return library.Snapshot{Entries: entries, Running: id}
}

var ever17 = library.Entry{ID: "g1", Title: "Ever17", CatalogID: "v17", CoverURL: "https://img/v17.jpg"}

func TestPresence_LaunchShowsExitClears(t *testing.T) {
	t.Parallel()
	pub := &fakePublisher{}
	p, dials := newTestPresence(pub, Options{Enabled: true, ButtonCatalogPage: true})
	ctx := context.Background()

	p.Update(running("g1", ever17))
	p.reconcile(ctx)
	p.Update(running("g1", ever17))
	p.reconcile(ctx)
	p.Update(running("", ever17))
	p.reconcile(ctx)

	if diff := cmp.Diff([]string{"set Ever17", "clear"}, pub.log()); diff != "" {
		t.Errorf("calls (-want +got):\n%s", diff)
	}
	if *dials != 1 {
		t.Errorf("dials = %d, want 1", *dials)
	}
	want := discord.Activity{
		Details:    "Ever17",
		State:      "KID",
		Timestamps: &discord.Timestamps{Start: start.Unix()},
		Assets:     &discord.Assets{LargeImage: "https://img/v17.jpg", LargeText: "Ever17"},
		Buttons:    []discord.Button{{Label: labelCatalogPage, URL: "https://vndb.org/v17"}},
	}
	if diff := cmp.Diff(want, pub.shown[0]); diff != "" {
		t.Errorf("activity (-want +got):\n%s", diff)
	}
}

func TestPresence_DisabledShowsNothing(t *testing.T) {
	t.Parallel()
	pub := &fakePublisher{}
	p, dials := newTestPresence(pub, Options{})

	p.Update(running("g1", ever17))
	p.reconcile(context.Background())

	if got := pub.log(); len(got) != 0 || *dials != 0 {
		t.Errorf("calls = %v dials = %d, want none", got, *dials)
	}
}

func TestPresence_DialFailureRetriesOnNextChange(t *testing.T) {
	t.Parallel()
	pub := &fakePublisher{}
	attempts := 0
	p := New(Config{
		Dial: func(context.Context) (Publisher, error) {
			attempts++
			if attempts == 1 {
				return nil, discord.ErrNotRunning
			}
			return pub, nil
		},
		Options: func() Options { return Options{Enabled: true} },
	})
	ctx := context.Background()

	p.Update(running("g1", ever17))
	p.reconcile(ctx)
	if got := pub.log(); len(got) != 0 {
		t.Fatalf("calls after failed dial = %v", got)
	}
	p.reconcile(ctx)
	if diff := cmp.Diff([]string{"set Ever17"}, pub.log()); diff != "" {
		t.Errorf("calls (-want +got):\n%s", diff)
	}
	if got := pub.shown[0].State; got != DefaultText {
		t.Errorf("State = %q, want %q without a developer", got, DefaultText)
	}
}

func TestPresence_SetFailureDropsSession(t *testing.T) {
	t.Parallel()
	pub := &fakePublisher{failSet: errors.New("broken pipe")}
	p, dials := newTestPresence(pub, Options{Enabled: true})
	ctx := context.Background()

	p.Update(running("g1", ever17))
	p.reconcile(ctx)
	if pub.closed != 1 || p.shown != "" {
		t.Fatalf("closed = %d shown = %q, want session dropped", pub.closed, p.shown)
	}

	pub.failSet = nil
	p.reconcile(ctx)
	if *dials != 2 || p.shown != "g1" {
		t.Errorf("dials = %d shown = %q, want redial and show", *dials, p.shown)
	}
}

func TestPresence_RunClearsOnStop(t *testing.T) {
	t.Parallel()
	pub := &fakePublisher{onChange: make(chan struct{}, 4)}
	p, _ := newTestPresence(pub, Options{Enabled: true})
	p.Update(running("g1", ever17))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	<-pub.onChange
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run err = %v, want context.Canceled", err)
	}
	if diff := cmp.Diff([]string{"set Ever17", "clear"}, pub.log()); diff != "" {
		t.Errorf("calls (-want +got):\n%s", diff)
	}
	if pub.closed != 1 {
		t.Errorf("closed = %d, want 1", pub.closed)
	}
}

func TestBuildActivity_Buttons(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		entry library.Entry
		opts  Options
		want  []string
	}{
		{"none", ever17, Options{}, nil},
		{"catalog page", ever17, Options{ButtonCatalogPage: true}, []string{labelCatalogPage}},
		{"unlinked entry skips catalog page", library.Entry{Title: "x"}, Options{ButtonCatalogPage: true, ButtonProject: true}, []string{labelProject}},
		{"profile needs user id", ever17, Options{ButtonProfile: true}, nil},
		{"at most two in priority order", ever17,
			Options{ButtonCatalogPage: true, ButtonProfile: true, ButtonProject: true, UserID: "u42"},
			[]string{labelCatalogPage, labelProfile}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			act := BuildActivity(tt.entry, "", tt.opts, start)
			var got []string
			for _, b := range act.Buttons {
				got = append(got, b.Label)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("buttons (-want +got):\n%s", diff)
			}
		})
	}
}
