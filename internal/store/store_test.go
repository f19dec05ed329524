package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/papapumpkin/alka/internal/library"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "alka.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_IsIdempotent(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "alka.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.InsertGame(ctx, library.Entry{ID: "g1", Title: "Ever17", Path: "/g/e17.exe"}))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	games, err := s.AllGames(ctx)
	require.NoError(t, err)
	require.Len(t, games, 1)
}

func TestStore_GameRoundTrip(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	played := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)
	in := library.Entry{
		ID: "g1", Title: "Saya no Uta", Path: "/g/saya.exe", CatalogID: "v97",
		CoverURL: "https://t.vndb.org/cv/1.jpg", PlayTime: 42, Finished: true,
		LastPlayed: &played, Hidden: true,
	}
	require.NoError(t, s.InsertGame(ctx, in))
	require.NoError(t, s.InsertGame(ctx, library.Entry{ID: "g2", Title: "Clannad", Path: "/g/c.exe"}))

	got, err := s.Game(ctx, "g1")
	require.NoError(t, err)
	require.Equal(t, in.Title, got.Title)
	require.Equal(t, in.CatalogID, got.CatalogID)
	require.Equal(t, uint64(42), got.PlayTime)
	require.True(t, got.Finished)
	require.True(t, got.Hidden)
	require.NotNil(t, got.LastPlayed)
	require.True(t, played.Equal(*got.LastPlayed))

	all, err := s.AllGames(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "g1", all[0].ID)
	require.Nil(t, all[1].LastPlayed)
}

func TestStore_MutationsOnMissingGame(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Game(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.UpdateGame(ctx, library.Entry{ID: "nope"}), ErrNotFound)
	require.ErrorIs(t, s.DeleteGame(ctx, "nope"), ErrNotFound)
	require.ErrorIs(t, s.SetHidden(ctx, "nope", true), ErrNotFound)
	require.ErrorIs(t, s.AddPlayTime(ctx, "nope", 5, time.Now()), ErrNotFound)
}

func TestStore_UpdateAndHide(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertGame(ctx, library.Entry{ID: "g1", Title: "old", Path: "/x"}))

	require.NoError(t, s.UpdateGame(ctx, library.Entry{ID: "g1", Title: "new", Path: "/y", CatalogID: "v17"}))
	require.NoError(t, s.SetHidden(ctx, "g1", true))

	got, err := s.Game(ctx, "g1")
	require.NoError(t, err)
	require.Equal(t, "new", got.Title)
	require.Equal(t, "v17", got.CatalogID)
	require.True(t, got.Hidden)
}

func TestStore_AddPlayTimeAccumulatesDaily(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertGame(ctx, library.Entry{ID: "g1", Title: "t", Path: "/x", PlayTime: 45}))

	day1 := time.Date(2026, 6, 1, 12, 0, 0, 0, time.Local)
	day2 := day1.AddDate(0, 0, 1)
	require.NoError(t, s.AddPlayTime(ctx, "g1", 30, day1))
	require.NoError(t, s.AddPlayTime(ctx, "g1", 15, day1.Add(time.Hour)))
	require.NoError(t, s.AddPlayTime(ctx, "g1", 10, day2))
	require.NoError(t, s.AddPlayTime(ctx, "g1", 0, day2))

	got, err := s.Game(ctx, "g1")
	require.NoError(t, err)
	require.Equal(t, uint64(100), got.PlayTime)
	require.True(t, day2.Equal(*got.LastPlayed))

	days, err := s.DailyPlayTime(ctx, "g1", day1)
	require.NoError(t, err)
	require.Equal(t, []DayTotal{
		{Day: day1.Format(time.DateOnly), Minutes: 45},
		{Day: day2.Format(time.DateOnly), Minutes: 10},
	}, days)

	require.NoError(t, s.DeleteGame(ctx, "g1"))
	days, err = s.DailyPlayTime(ctx, "g1", day1)
	require.NoError(t, err)
	require.Empty(t, days)
}

func TestStore_CatalogCache(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	_, _, ok, err := s.CachedPayload(ctx, CacheDetail, "v17")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.PutPayload(ctx, CacheDetail, "v17", []byte(`{"id":"v17"}`)))
	require.NoError(t, s.PutPayload(ctx, CacheDetail, "v17", []byte(`{"id":"v17","title":"Ever17"}`)))
	require.NoError(t, s.PutPayload(ctx, CacheCharacters, "v17", []byte(`[]`)))
	require.NoError(t, s.PutPayload(ctx, CacheDetail, "v4", []byte(`{"id":"v4"}`)))

	payload, _, ok, err := s.CachedPayload(ctx, CacheDetail, "v17")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"id":"v17","title":"Ever17"}`, string(payload))

	require.NoError(t, s.DeletePayloads(ctx, "v17"))
	_, _, ok, err = s.CachedPayload(ctx, CacheCharacters, "v17")
	require.NoError(t, err)
	require.False(t, ok)

	n, err := s.ClearPayloads(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestMigrations_HaveGooseSections(t *testing.T) {
	t.Parallel()
	entries, err := os.ReadDir("migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	for _, e := range entries {
		b, err := os.ReadFile(filepath.Join("migrations", e.Name()))
		require.NoError(t, err)
		s := string(b)
		require.Truef(t, strings.Contains(s, "-- +goose Up"), "%s missing '-- +goose Up'", e.Name())
		require.Truef(t, strings.Contains(s, "-- +goose Down"), "%s missing '-- +goose Down'", e.Name())
	}
}

func TestStore_UpdateGameKeepsSessionColumns(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	played := time.Date(2024, 5, 2, 21, 30, 0, 0, time.UTC)
	require.NoError(t, s.InsertGame(ctx, library.Entry{ID: "g1", Title: "Ever17", Path: "/x", PlayTime: 45}))
	require.NoError(t, s.AddPlayTime(ctx, "g1", 30, played))

	// A record read before the session was folded in.
	stale := library.Entry{ID: "g1", Title: "Ever17", Path: "/x", PlayTime: 45, Finished: true}
	require.NoError(t, s.UpdateGame(ctx, stale))

	got, err := s.Game(ctx, "g1")
	require.NoError(t, err)
	require.True(t, got.Finished)
	require.Equal(t, uint64(75), got.PlayTime)
	require.NotNil(t, got.LastPlayed)
	require.True(t, played.Equal(*got.LastPlayed))
}
