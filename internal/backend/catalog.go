package backend

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/papapumpkin/alka/internal/catalog"
	"github.com/papapumpkin/alka/internal/store"
	"github.com/papapumpkin/alka/internal/vndb"
)

// FetchDetail returns a title's detail from memory, then the disk cache,
// then the API. force skips both caches and refreshes them.
func (b *Local) FetchDetail(ctx context.Context, id string, force bool) (*catalog.Detail, error) {
	if !force {
		b.mu.Lock()
		d, ok := b.details[id]
		b.mu.Unlock()
		if ok {
			return d, nil
		}
		var cached catalog.Detail
		if b.loadCached(ctx, store.CacheDetail, id, &cached) {
			b.mu.Lock()
			b.details[id] = &cached
			b.mu.Unlock()
			return &cached, nil
		}
	}

	v, err, _ := b.flight.Do(flightKey(store.CacheDetail, id, force), func() (any, error) {
		d, err := b.api.VN(ctx, id)
		if err != nil {
			return nil, err
		}
		if d == nil {
			return nil, fmt.Errorf("%w: %s", ErrTitleNotFound, id)
		}
		b.storeCached(ctx, store.CacheDetail, id, d)
		b.mu.Lock()
		b.details[id] = d
		b.mu.Unlock()
		return d, nil
	})
	if err != nil {
		return nil, wrapRemote("fetch detail", err)
	}
	return v.(*catalog.Detail), nil
}

// FetchCharacters returns a title's characters with the same cache policy
// as FetchDetail.
func (b *Local) FetchCharacters(ctx context.Context, id string, force bool) ([]catalog.Character, error) {
	if !force {
		b.mu.Lock()
		c, ok := b.characters[id]
		b.mu.Unlock()
		if ok {
			return c, nil
		}
		var cached []catalog.Character
		if b.loadCached(ctx, store.CacheCharacters, id, &cached) {
			if cached == nil {
				cached = []catalog.Character{}
			}
			b.mu.Lock()
			b.characters[id] = cached
			b.mu.Unlock()
			return cached, nil
		}
	}

	v, err, _ := b.flight.Do(flightKey(store.CacheCharacters, id, force), func() (any, error) {
		chars, err := b.api.Characters(ctx, id)
		if err != nil {
			return nil, err
		}
		b.storeCached(ctx, store.CacheCharacters, id, chars)
		b.mu.Lock()
		b.characters[id] = chars
		b.mu.Unlock()
		return chars, nil
	})
	if err != nil {
		return nil, wrapRemote("fetch characters", err)
	}
	return v.([]catalog.Character), nil
}

func flightKey(kind store.CacheKind, id string, force bool) string {
	return fmt.Sprintf("%s/%s/%t", kind, id, force)
}

func (b *Local) loadCached(ctx context.Context, kind store.CacheKind, id string, target any) bool {
	payload, _, ok, err := b.db.CachedPayload(ctx, kind, id)
	if err != nil {
		b.logger.Printf("backend: read cache: %v", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(payload, target); err != nil {
		b.logger.Printf("backend: decode cached %s %s: %v", kind, id, err)
		return false
	}
	return true
}

func (b *Local) storeCached(ctx context.Context, kind store.CacheKind, id string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.logger.Printf("backend: encode %s %s: %v", kind, id, err)
		return
	}
	if err := b.db.PutPayload(ctx, kind, id, payload); err != nil {
		b.logger.Printf("backend: write cache: %v", err)
	}
}

// ClearCache drops one title's cached responses from memory and disk.
func (b *Local) ClearCache(ctx context.Context, id string) error {
	b.mu.Lock()
	delete(b.details, id)
	delete(b.characters, id)
	b.mu.Unlock()
	return wrap("clear cache", b.db.DeletePayloads(ctx, id))
}

// ClearAllCache drops every cached response and returns how many disk rows
// were removed.
func (b *Local) ClearAllCache(ctx context.Context) (int64, error) {
	b.mu.Lock()
	clear(b.details)
	clear(b.characters)
	b.mu.Unlock()
	n, err := b.db.ClearPayloads(ctx)
	if err != nil {
		return 0, wrap("clear all cache", err)
	}
	return n, nil
}

// SearchCatalog searches titles by name. Results are never cached.
func (b *Local) SearchCatalog(ctx context.Context, query string) ([]catalog.SearchResult, error) {
	results, err := b.api.SearchVN(ctx, query)
	if err != nil {
		return nil, wrapRemote("search catalog", err)
	}
	if results == nil {
		results = []catalog.SearchResult{}
	}
	return results, nil
}

// AuthCheck validates token and returns its owner.
func (b *Local) AuthCheck(ctx context.Context, token string) (vndb.AuthInfo, error) {
	if token == "" {
		return vndb.AuthInfo{}, &Error{Op: "auth check", Kind: KindUnauthenticated, Err: ErrNoToken}
	}
	info, err := b.api.AuthInfo(ctx, token)
	if err != nil {
		return vndb.AuthInfo{}, wrapRemote("auth check", err)
	}
	b.mu.Lock()
	b.resolvedUID[token] = info.ID
	b.mu.Unlock()
	return info, nil
}

// FetchUserEntry returns the user's list entry for id, or nil when the
// title is not on the list.
func (b *Local) FetchUserEntry(ctx context.Context, id string) (*catalog.UserEntry, error) {
	token, uid, err := b.credentials(ctx, "fetch user entry")
	if err != nil {
		return nil, err
	}
	u, err := b.api.UserEntry(ctx, token, uid, id)
	if err != nil {
		return nil, wrapRemote("fetch user entry", err)
	}
	return u, nil
}

// SetUserStatus sets label on the user's entry and unsets the other
// exclusive labels.
func (b *Local) SetUserStatus(ctx context.Context, id string, label catalog.StatusLabel) error {
	if !label.Valid() {
		return &Error{Op: "set user status", Kind: KindInvalid, Err: fmt.Errorf("%w: %d", catalog.ErrInvalidLabel, label)}
	}
	patch := vndb.ListPatch{LabelsSet: []int{int(label)}}
	for _, other := range label.Others() {
		patch.LabelsUnset = append(patch.LabelsUnset, int(other))
	}
	return b.patch(ctx, "set user status", id, patch)
}

// SetUserVote sets the user's vote on the 10 to 100 scale.
func (b *Local) SetUserVote(ctx context.Context, id string, vote int) error {
	if vote < catalog.MinVote || vote > catalog.MaxVote {
		return &Error{Op: "set user vote", Kind: KindInvalid, Err: fmt.Errorf("%w: %d", catalog.ErrInvalidVote, vote)}
	}
	return b.patch(ctx, "set user vote", id, vndb.ListPatch{Vote: &vote})
}

// RemoveUserVote clears the user's vote.
func (b *Local) RemoveUserVote(ctx context.Context, id string) error {
	return b.patch(ctx, "remove user vote", id, vndb.ListPatch{ClearVote: true})
}

func (b *Local) patch(ctx context.Context, op, id string, p vndb.ListPatch) error {
	token := b.token()
	if token == "" {
		return &Error{Op: op, Kind: KindUnauthenticated, Err: ErrNoToken}
	}
	return wrapRemote(op, b.api.PatchUserEntry(ctx, token, id, p))
}

func (b *Local) token() string {
	if b.tokens == nil {
		return ""
	}
	token, _ := b.tokens.Token()
	return token
}

// credentials returns the token and its user id, resolving the id through
// the API when the token source does not know it.
func (b *Local) credentials(ctx context.Context, op string) (token, uid string, err error) {
	if b.tokens != nil {
		token, uid = b.tokens.Token()
	}
	if token == "" {
		return "", "", &Error{Op: op, Kind: KindUnauthenticated, Err: ErrNoToken}
	}
	if uid != "" {
		return token, uid, nil
	}
	b.mu.Lock()
	uid = b.resolvedUID[token]
	b.mu.Unlock()
	if uid != "" {
		return token, uid, nil
	}
	info, err := b.AuthCheck(ctx, token)
	if err != nil {
		return "", "", err
	}
	return token, info.ID, nil
}
