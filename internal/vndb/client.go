// Package vndb is a client for the VNDB Kana HTTP API.
package vndb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/papapumpkin/alka/internal/catalog"
)

// DefaultBaseURL is the public Kana endpoint.
const DefaultBaseURL = "https://api.vndb.org/kana"

// ErrUnauthorized is returned when the API rejects the token.
var ErrUnauthorized = errors.New("vndb: token rejected")

// APIError is a non-success HTTP response.
type APIError struct {
	Status int
	Body   string
}

// Error implements error.
func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("vndb: unexpected status code: %d", e.Status)
	}
	return fmt.Sprintf("vndb: unexpected status code: %d: %s", e.Status, e.Body)
}

// Temporary reports whether retrying may succeed.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Client talks to the API with rate limiting and retries.
type Client struct {
	httpClient *http.Client
	userAgent  string
	baseURL    string
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithBackoff sets the first retry delay; later retries double it.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) { c.backoff = d }
}

// NewClient creates a client limited to rps requests per second.
func NewClient(userAgent string, rps float64, maxRetries int, timeout time.Duration, opts ...Option) *Client {
	if rps <= 0 {
		rps = 1
	}
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  userAgent,
		baseURL:    DefaultBaseURL,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		maxRetries: maxRetries,
		backoff:    time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// query is a Kana POST body.
type query struct {
	Filters any    `json:"filters"`
	Fields  string `json:"fields"`
	Results int    `json:"results,omitempty"`
	User    string `json:"user,omitempty"`
}

type results[T any] struct {
	Results []T  `json:"results"`
	More    bool `json:"more"`
}

const (
	searchFields    = "id, title, image.url, image.sexual, image.violence, released, rating"
	detailFields    = "id, title, image.url, image.sexual, image.violence, released, rating, description, length, length_minutes, tags.id, tags.name, tags.rating, tags.spoiler, developers.id, developers.name"
	characterFields = "id, name, original, aliases, image.url, image.sexual, image.violence, description, blood_type, height, weight, bust, waist, hips, cup, age, birthday, sex, vns.id, vns.role, vns.spoiler, traits.id, traits.name, traits.group_id, traits.group_name, traits.spoiler"
	ulistFields     = "id, vote, labels.id, labels.label, started, finished"
)

// SearchVN searches titles by name.
func (c *Client) SearchVN(ctx context.Context, q string) ([]catalog.SearchResult, error) {
	var res results[catalog.SearchResult]
	body := query{Filters: []any{"search", "=", q}, Fields: searchFields, Results: 10}
	if err := c.do(ctx, http.MethodPost, "/vn", "", body, &res); err != nil {
		return nil, fmt.Errorf("vndb: search %q: %w", q, err)
	}
	return res.Results, nil
}

// VN returns one title's detail, or nil when the id is unknown.
func (c *Client) VN(ctx context.Context, id string) (*catalog.Detail, error) {
	var res results[catalog.Detail]
	body := query{Filters: []any{"id", "=", id}, Fields: detailFields, Results: 1}
	if err := c.do(ctx, http.MethodPost, "/vn", "", body, &res); err != nil {
		return nil, fmt.Errorf("vndb: get vn %s: %w", id, err)
	}
	if len(res.Results) == 0 {
		return nil, nil
	}
	return &res.Results[0], nil
}

// Characters returns up to 50 characters appearing in a title.
func (c *Client) Characters(ctx context.Context, vnID string) ([]catalog.Character, error) {
	var res results[catalog.Character]
	body := query{Filters: []any{"vn", "=", []any{"id", "=", vnID}}, Fields: characterFields, Results: 50}
	if err := c.do(ctx, http.MethodPost, "/character", "", body, &res); err != nil {
		return nil, fmt.Errorf("vndb: get characters %s: %w", vnID, err)
	}
	if res.Results == nil {
		res.Results = []catalog.Character{}
	}
	return res.Results, nil
}

// AuthInfo identifies a token's owner.
type AuthInfo struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	Permissions []string `json:"permissions"`
}

// CanWriteList reports whether the token may modify the user's list.
func (a AuthInfo) CanWriteList() bool {
	for _, p := range a.Permissions {
		if p == "listwrite" {
			return true
		}
	}
	return false
}

// AuthInfo validates token and returns its owner.
func (c *Client) AuthInfo(ctx context.Context, token string) (AuthInfo, error) {
	var info AuthInfo
	if err := c.do(ctx, http.MethodGet, "/authinfo", token, nil, &info); err != nil {
		return AuthInfo{}, fmt.Errorf("vndb: auth info: %w", err)
	}
	return info, nil
}

// UserEntry returns the user's list entry for vnID, or nil when the title
// is not on the list.
func (c *Client) UserEntry(ctx context.Context, token, userID, vnID string) (*catalog.UserEntry, error) {
	var res results[catalog.UserEntry]
	body := query{User: userID, Filters: []any{"id", "=", vnID}, Fields: ulistFields, Results: 1}
	if err := c.do(ctx, http.MethodPost, "/ulist", token, body, &res); err != nil {
		return nil, fmt.Errorf("vndb: get list entry %s: %w", vnID, err)
	}
	if len(res.Results) == 0 {
		return nil, nil
	}
	return &res.Results[0], nil
}

// ListPatch is a partial list update. A nil Vote leaves the vote alone
// unless ClearVote is set.
type ListPatch struct {
	LabelsSet   []int
	LabelsUnset []int
	Vote        *int
	ClearVote   bool
}

func (p ListPatch) body() map[string]any {
	b := make(map[string]any)
	if len(p.LabelsSet) > 0 {
		b["labels_set"] = p.LabelsSet
	}
	if len(p.LabelsUnset) > 0 {
		b["labels_unset"] = p.LabelsUnset
	}
	switch {
	case p.ClearVote:
		b["vote"] = nil
	case p.Vote != nil:
		b["vote"] = *p.Vote
	}
	return b
}

// PatchUserEntry applies patch to the user's entry for vnID, adding the
// title to the list if needed.
func (c *Client) PatchUserEntry(ctx context.Context, token, vnID string, patch ListPatch) error {
	if err := c.do(ctx, http.MethodPatch, "/ulist/"+vnID, token, patch.body(), nil); err != nil {
		return fmt.Errorf("vndb: patch list entry %s: %w", vnID, err)
	}
	return nil
}

// do sends one request, retrying throttled and server errors with
// exponential backoff.
func (c *Client) do(ctx context.Context, method, path, token string, body, target any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = b
	}

	var lastErr error
	for i := 0; i <= c.maxRetries; i++ {
		if i > 0 {
			backoff := c.backoff * time.Duration(1<<uint(i-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		err := c.once(ctx, method, path, token, payload, target)
		if err == nil {
			return nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Temporary() {
			return err
		}
		if errors.Is(err, ErrUnauthorized) || ctx.Err() != nil {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("after %d retries: %w", c.maxRetries, lastErr)
}

func (c *Client) once(ctx context.Context, method, path, token string, payload []byte, target any) error {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if target == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}
