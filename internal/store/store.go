// Package store persists the library, per-day play time and the catalog
// response cache in a local SQLite database.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"github.com/papapumpkin/alka/internal/library"
)

// ErrNotFound is returned when a game id has no row.
var ErrNotFound = errors.New("store: not found")

//go:embed migrations/*.sql
var migrations embed.FS

// Store is the SQLite-backed persistence layer.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path, enables WAL mode and runs
// pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	// SQLite has one writer; a single connection keeps pragmas consistent.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("store: open migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("store: load migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("store: apply migrations: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

const gameColumns = `id, title, path, catalog_id, cover_url, play_time, is_finished, last_played, is_hidden`

type scanner interface {
	Scan(dest ...any) error
}

func scanGame(row scanner) (library.Entry, error) {
	var (
		e          library.Entry
		lastPlayed sql.NullString
	)
	if err := row.Scan(&e.ID, &e.Title, &e.Path, &e.CatalogID, &e.CoverURL,
		&e.PlayTime, &e.Finished, &lastPlayed, &e.Hidden); err != nil {
		return library.Entry{}, err
	}
	if lastPlayed.Valid && lastPlayed.String != "" {
		t, err := time.Parse(time.RFC3339, lastPlayed.String)
		if err != nil {
			return library.Entry{}, fmt.Errorf("parse last_played %q: %w", lastPlayed.String, err)
		}
		e.LastPlayed = &t
	}
	return e, nil
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// AllGames returns every game in insertion order.
func (s *Store) AllGames(ctx context.Context) ([]library.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+gameColumns+` FROM games ORDER BY added_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("store: query games: %w", err)
	}
	defer rows.Close()

	var out []library.Entry
	for rows.Next() {
		e, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan game: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate games: %w", err)
	}
	return out, nil
}

// Game returns one game.
func (s *Store) Game(ctx context.Context, id string) (library.Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games WHERE id = ?`, id)
	e, err := scanGame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return library.Entry{}, fmt.Errorf("%w: game %s", ErrNotFound, id)
	}
	if err != nil {
		return library.Entry{}, fmt.Errorf("store: get game %s: %w", id, err)
	}
	return e, nil
}

// InsertGame adds a new game.
func (s *Store) InsertGame(ctx context.Context, e library.Entry) error {
	const q = `INSERT INTO games (` + gameColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, e.ID, e.Title, e.Path, e.CatalogID, e.CoverURL,
		e.PlayTime, e.Finished, formatTime(e.LastPlayed), e.Hidden); err != nil {
		return fmt.Errorf("store: insert game %s: %w", e.ID, err)
	}
	return nil
}

// UpdateGame rewrites the user-editable columns of an existing game.
// play_time and last_played are owned by AddPlayTime and are left alone,
// so a record read before a session ended cannot roll the totals back.
func (s *Store) UpdateGame(ctx context.Context, e library.Entry) error {
	const q = `
		UPDATE games SET title = ?, path = ?, catalog_id = ?, cover_url = ?,
			is_finished = ?, is_hidden = ?
		WHERE id = ?`
	res, err := s.db.ExecContext(ctx, q, e.Title, e.Path, e.CatalogID, e.CoverURL,
		e.Finished, e.Hidden, e.ID)
	if err != nil {
		return fmt.Errorf("store: update game %s: %w", e.ID, err)
	}
	return requireRow(res, e.ID)
}

// DeleteGame removes a game and its play-time history.
func (s *Store) DeleteGame(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM games WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete game %s: %w", id, err)
	}
	return requireRow(res, id)
}

// SetHidden changes a game's visibility flag.
func (s *Store) SetHidden(ctx context.Context, id string, hidden bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE games SET is_hidden = ? WHERE id = ?`, hidden, id)
	if err != nil {
		return fmt.Errorf("store: set hidden %s: %w", id, err)
	}
	return requireRow(res, id)
}

// AddPlayTime folds a finished session into the game's totals: play time
// grows by minutes, last_played becomes at, and the day's total is
// incremented. All three change in one transaction.
func (s *Store) AddPlayTime(ctx context.Context, id string, minutes uint64, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx for play time: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	res, err := tx.ExecContext(ctx,
		`UPDATE games SET play_time = play_time + ?, last_played = ? WHERE id = ?`,
		minutes, formatTime(&at), id)
	if err != nil {
		return fmt.Errorf("store: add play time %s: %w", id, err)
	}
	if err := requireRow(res, id); err != nil {
		return err
	}

	if minutes > 0 {
		const q = `
			INSERT INTO daily_playtime (game_id, day, minutes) VALUES (?, ?, ?)
			ON CONFLICT(game_id, day) DO UPDATE SET minutes = minutes + excluded.minutes`
		if _, err := tx.ExecContext(ctx, q, id, at.Local().Format(time.DateOnly), minutes); err != nil {
			return fmt.Errorf("store: record daily play time %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit play time %s: %w", id, err)
	}
	return nil
}

// DayTotal is one day's play time for a game.
type DayTotal struct {
	Day     string
	Minutes uint64
}

// DailyPlayTime returns a game's per-day totals from since (inclusive),
// oldest first.
func (s *Store) DailyPlayTime(ctx context.Context, id string, since time.Time) ([]DayTotal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT day, minutes FROM daily_playtime WHERE game_id = ? AND day >= ? ORDER BY day`,
		id, since.Local().Format(time.DateOnly))
	if err != nil {
		return nil, fmt.Errorf("store: query daily play time %s: %w", id, err)
	}
	defer rows.Close()

	var out []DayTotal
	for rows.Next() {
		var d DayTotal
		if err := rows.Scan(&d.Day, &d.Minutes); err != nil {
			return nil, fmt.Errorf("store: scan daily play time: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: game %s", ErrNotFound, id)
	}
	return nil
}
