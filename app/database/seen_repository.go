package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
)

// SeenStore handles database operations for seen listing identifiers.
// Positive lookups are cached; an identifier never leaves the set once recorded.
type SeenStore struct {
	db    *DB
	cache *ristretto.Cache
}

func NewSeenRepository(db *DB) (*SeenStore, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     50_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create seen cache: %w", err)
	}
	return &SeenStore{db: db, cache: cache}, nil
}

func (r *SeenStore) Contains(ctx context.Context, id string) (bool, error) {
	if _, ok := r.cache.Get(id); ok {
		return true, nil
	}

	var found string
	err := r.db.QueryRowContext(ctx, "SELECT id FROM seen_listings WHERE id = ?", id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query seen listing: %w", err)
	}

	r.cache.Set(id, struct{}{}, 1)
	return true, nil
}

func (r *SeenStore) Record(ctx context.Context, id string, seenAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO seen_listings (id, first_seen_at) VALUES (?, ?) ON CONFLICT(id) DO NOTHING",
		id, formatTime(seenAt))
	if err != nil {
		return fmt.Errorf("failed to record seen listing: %w", err)
	}

	r.cache.Set(id, struct{}{}, 1)
	return nil
}

// RecordAll marks every id as seen in one transaction: either all are recorded or none.
func (r *SeenStore) RecordAll(ctx context.Context, ids []string, seenAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO seen_listings (id, first_seen_at) VALUES (?, ?) ON CONFLICT(id) DO NOTHING")
	if err != nil {
		return fmt.Errorf("failed to prepare seen insert: %w", err)
	}
	defer stmt.Close()

	at := formatTime(seenAt)
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id, at); err != nil {
			return fmt.Errorf("failed to record seen listing %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seen listings: %w", err)
	}

	for _, id := range ids {
		r.cache.Set(id, struct{}{}, 1)
	}
	return nil
}

func (r *SeenStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM seen_listings").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count seen listings: %w", err)
	}
	return count, nil
}

func (r *SeenStore) Close() {
	r.cache.Close()
}
