// Package search turns a stream of keystrokes into sparse search requests
// and applies a response only while the query that produced it is still
// the one on screen.
package search

import (
	"context"
	"io"
	"log"
	"strings"
	"sync"
	"time"
)

// DefaultDelay is the quiet period before a query is sent.
const DefaultDelay = 300 * time.Millisecond

// Timer is a pending debounce timer.
type Timer interface {
	Stop() bool
}

// AfterFunc arms a timer that calls f after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Func performs a search.
type Func[R any] func(ctx context.Context, query string) (R, error)

// token identifies one armed request.
type token struct {
	seq   uint64
	query string
}

// Debouncer coalesces input into search requests. Results reach the apply
// callback only when their query still matches the current input.
type Debouncer[R any] struct {
	search Func[R]
	apply  func(query string, result R)
	clear  func()

	ctx       context.Context
	delay     time.Duration
	afterFunc AfterFunc
	logger    *log.Logger

	mu    sync.Mutex
	query string
	seq   uint64
	timer Timer
	wg    sync.WaitGroup
}

// Option configures a Debouncer.
type Option func(*settings)

type settings struct {
	ctx       context.Context
	delay     time.Duration
	afterFunc AfterFunc
	logger    *log.Logger
}

// WithDelay overrides DefaultDelay.
func WithDelay(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.delay = d
		}
	}
}

// WithAfterFunc replaces the timer factory.
func WithAfterFunc(fn AfterFunc) Option {
	return func(s *settings) { s.afterFunc = fn }
}

// WithLogger sets the logger for failed searches.
func WithLogger(l *log.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithContext sets the context searches run under.
func WithContext(ctx context.Context) Option {
	return func(s *settings) { s.ctx = ctx }
}

// New creates a debouncer. apply receives accepted results and clear is
// called when the input becomes blank. Both run under the debouncer's lock
// and must not call back into it.
func New[R any](search Func[R], apply func(query string, result R), clear func(), opts ...Option) *Debouncer[R] {
	s := settings{
		ctx:       context.Background(),
		delay:     DefaultDelay,
		afterFunc: realAfterFunc,
		logger:    log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return &Debouncer[R]{
		search:    search,
		apply:     apply,
		clear:     clear,
		ctx:       s.ctx,
		delay:     s.delay,
		afterFunc: s.afterFunc,
		logger:    s.logger,
	}
}

// Input records a keystroke. The displayed query changes immediately, any
// pending timer is stopped, and non-blank text arms a new one. Blank text
// clears results synchronously.
func (d *Debouncer[R]) Input(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.query = text
	d.seq++
	if d.timer != nil && d.timer.Stop() {
		d.wg.Done()
	}
	d.timer = nil
	if strings.TrimSpace(text) == "" {
		if d.clear != nil {
			d.clear()
		}
		return
	}

	tok := token{seq: d.seq, query: text}
	d.wg.Add(1)
	d.timer = d.afterFunc(d.delay, func() { d.fire(tok) })
}

// Query returns the text currently displayed.
func (d *Debouncer[R]) Query() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.query
}

// Stop cancels the pending timer, if any.
func (d *Debouncer[R]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil && d.timer.Stop() {
		d.wg.Done()
	}
	d.timer = nil
}

// Wait blocks until every fired request has completed. Timers stopped
// before firing are not waited on.
func (d *Debouncer[R]) Wait() {
	d.wg.Wait()
}

func (d *Debouncer[R]) fire(tok token) {
	defer d.wg.Done()

	d.mu.Lock()
	if tok.seq != d.seq {
		// Superseded after the timer fired but before Stop could prevent it.
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()

	res, err := d.search(d.ctx, tok.query)
	if err != nil {
		d.logger.Printf("search: %q: %v", tok.query, err)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.query != tok.query {
		return
	}
	d.apply(tok.query, res)
}
