package app

import (
	"context"

	"github.com/sourcegraph/conc/pool"

	"github.com/papapumpkin/alka/internal/catalog"
	"github.com/papapumpkin/alka/internal/search"
	"github.com/papapumpkin/alka/internal/settings"
	"github.com/papapumpkin/alka/internal/vndb"
)

// Detail is everything shown for one catalog title.
type Detail struct {
	State  catalog.State
	Groups []catalog.CharacterGroup
	Blur   catalog.BlurPolicy
}

// OpenDetail loads a title's detail, characters and, when signed in, the
// user's list entry concurrently. Opening a different title drops what is
// held first; reopening the held one keeps it, so a read that fails leaves
// the last good part in place. Read errors are joined.
func (a *App) OpenDetail(ctx context.Context, id string, force bool) (Detail, error) {
	if a.Catalog.State().DetailID != id {
		a.Catalog.ClearDetail()
	}

	p := pool.New().WithErrors().WithContext(ctx)
	p.Go(func(ctx context.Context) error {
		_, err := a.Catalog.FetchDetail(ctx, id, force)
		return err
	})
	p.Go(func(ctx context.Context) error {
		_, err := a.Catalog.FetchCharacters(ctx, id, force)
		return err
	})
	if a.Settings.HasToken() {
		p.Go(func(ctx context.Context) error {
			_, err := a.Catalog.FetchUserEntry(ctx, id)
			return err
		})
	}
	err := p.Wait()
	return a.detail(id), err
}

func (a *App) detail(id string) Detail {
	s := a.Settings.Get()
	st := a.Catalog.State()
	return Detail{
		State:  st,
		Groups: catalog.GroupCharacters(st.Characters, id, s.Display.ShowSpoilers),
		Blur:   s.BlurPolicy(),
	}
}

// Refresh reloads a title from the network, bypassing the backend cache.
// The cached copy is replaced only by a successful read.
func (a *App) Refresh(ctx context.Context, id string) (Detail, error) {
	return a.OpenDetail(ctx, id, true)
}

// Purge drops a title's cached responses from memory and disk without
// re-fetching.
func (a *App) Purge(ctx context.Context, id string) error {
	if a.Catalog.State().DetailID == id {
		a.Catalog.ClearDetail()
	}
	return a.Backend.ClearCache(ctx, id)
}

// NewSearch returns a debouncer that runs catalog searches for typed input
// and hands accepted results to onResults after holding them in the cache.
func (a *App) NewSearch(ctx context.Context, onResults func(query string, results []catalog.SearchResult)) *search.Debouncer[[]catalog.SearchResult] {
	return search.New[[]catalog.SearchResult](
		a.Catalog.SearchResults,
		func(query string, results []catalog.SearchResult) {
			a.Catalog.SetSearchResults(results)
			if onResults != nil {
				onResults(query, results)
			}
		},
		a.Catalog.ClearSearch,
		search.WithDelay(a.Config.Search.Debounce),
		search.WithLogger(a.logger),
		search.WithContext(ctx),
	)
}

// --- account ---

// Login validates token and saves it with its owner.
func (a *App) Login(ctx context.Context, token string) (vndb.AuthInfo, error) {
	info, err := a.Backend.AuthCheck(ctx, token)
	if err != nil {
		return vndb.AuthInfo{}, err
	}
	err = a.Settings.Update(func(s *settings.Settings) {
		s.Catalog = settings.Catalog{Token: token, UserID: info.ID, Username: info.Username}
	})
	if err != nil {
		return vndb.AuthInfo{}, err
	}
	return info, nil
}

// Logout forgets the saved token.
func (a *App) Logout() error {
	a.Catalog.ClearDetail()
	return a.Settings.Update(func(s *settings.Settings) { s.Catalog = settings.Catalog{} })
}

// CheckAuth validates the saved token and refreshes the saved owner.
func (a *App) CheckAuth(ctx context.Context) (vndb.AuthInfo, error) {
	token, _ := a.Settings.Token()
	info, err := a.Backend.AuthCheck(ctx, token)
	if err != nil {
		return vndb.AuthInfo{}, err
	}
	err = a.Settings.Update(func(s *settings.Settings) {
		s.Catalog.UserID = info.ID
		s.Catalog.Username = info.Username
	})
	return info, err
}
