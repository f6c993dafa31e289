package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CycleStore records cycle runs for status reporting.
type CycleStore struct {
	db *DB
}

func NewCycleRepository(db *DB) *CycleStore {
	return &CycleStore{db: db}
}

func (r *CycleStore) SaveCycle(ctx context.Context, run CycleRun) error {
	query := `
		INSERT INTO cycle_runs (id, started_at, finished_at, status, error, fetched, fresh, accepted, rejected)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finished_at = excluded.finished_at,
			status = excluded.status,
			error = excluded.error,
			fetched = excluded.fetched,
			fresh = excluded.fresh,
			accepted = excluded.accepted,
			rejected = excluded.rejected`

	_, err := r.db.ExecContext(ctx, query,
		run.ID, formatTime(run.StartedAt), formatTime(run.FinishedAt), string(run.Status), run.Error,
		run.Fetched, run.Fresh, run.Accepted, run.Rejected)
	if err != nil {
		return fmt.Errorf("failed to save cycle run %s: %w", run.ID, err)
	}
	return nil
}

// LastCycle returns the most recently started cycle, or nil when none ran yet.
func (r *CycleStore) LastCycle(ctx context.Context) (*CycleRun, error) {
	query := `
		SELECT id, started_at, finished_at, status, error, fetched, fresh, accepted, rejected
		FROM cycle_runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT 1`

	var (
		run               CycleRun
		started, finished string
		status            string
	)
	err := r.db.QueryRowContext(ctx, query).Scan(
		&run.ID, &started, &finished, &status, &run.Error,
		&run.Fetched, &run.Fresh, &run.Accepted, &run.Rejected)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last cycle: %w", err)
	}

	run.StartedAt = parseTime(started)
	run.FinishedAt = parseTime(finished)
	run.Status = CycleStatus(status)
	return &run, nil
}
