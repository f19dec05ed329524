package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CacheKind namespaces catalog cache rows.
type CacheKind string

// Cache kinds.
const (
	CacheDetail     CacheKind = "detail"
	CacheCharacters CacheKind = "characters"
)

// CachedPayload returns the stored response for (kind, id). ok is false when
// nothing is cached.
func (s *Store) CachedPayload(ctx context.Context, kind CacheKind, id string) (payload []byte, fetchedAt time.Time, ok bool, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT payload, fetched_at FROM catalog_cache WHERE kind = ? AND catalog_id = ?`,
		string(kind), id).Scan(&payload, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("store: get cached %s %s: %w", kind, id, err)
	}
	return payload, fetchedAt, true, nil
}

// PutPayload stores a response, replacing any previous one.
func (s *Store) PutPayload(ctx context.Context, kind CacheKind, id string, payload []byte) error {
	const q = `
		INSERT INTO catalog_cache (kind, catalog_id, payload, fetched_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(kind, catalog_id) DO UPDATE SET
			payload    = excluded.payload,
			fetched_at = excluded.fetched_at`
	if _, err := s.db.ExecContext(ctx, q, string(kind), id, payload, s.now().UTC()); err != nil {
		return fmt.Errorf("store: put cached %s %s: %w", kind, id, err)
	}
	return nil
}

// DeletePayloads removes every cached response for one catalog id.
func (s *Store) DeletePayloads(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM catalog_cache WHERE catalog_id = ?`, id); err != nil {
		return fmt.Errorf("store: clear cache %s: %w", id, err)
	}
	return nil
}

// ClearPayloads removes every cached response and returns how many rows
// were deleted.
func (s *Store) ClearPayloads(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM catalog_cache`)
	if err != nil {
		return 0, fmt.Errorf("store: clear cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: clear cache: %w", err)
	}
	return n, nil
}
