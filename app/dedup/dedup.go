package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/lysyi3m/auto-comb/app/listing"
)

// SeenStore is the durable set of listing identifiers already processed.
type SeenStore interface {
	Contains(ctx context.Context, id string) (bool, error)
	RecordAll(ctx context.Context, ids []string, seenAt time.Time) error
}

type Deduplicator struct {
	store SeenStore
	now   func() time.Time
}

func New(store SeenStore) *Deduplicator {
	return &Deduplicator{store: store, now: time.Now}
}

// Unseen returns the records not seen before, in input order, without marking them.
// Duplicates within the batch are emitted once.
func (d *Deduplicator) Unseen(ctx context.Context, records []listing.Record) ([]listing.Record, error) {
	fresh := make([]listing.Record, 0, len(records))
	batch := make(map[string]bool, len(records))

	for _, record := range records {
		if batch[record.ID] {
			continue
		}
		batch[record.ID] = true

		seen, err := d.store.Contains(ctx, record.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check seen listing %s: %w", record.ID, err)
		}
		if !seen {
			fresh = append(fresh, record)
		}
	}

	return fresh, nil
}

// MarkSeen records every listing of the batch as seen in a single write.
func (d *Deduplicator) MarkSeen(ctx context.Context, records []listing.Record) error {
	if len(records) == 0 {
		return nil
	}

	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.ID)
	}
	if err := d.store.RecordAll(ctx, ids, d.now().UTC()); err != nil {
		return fmt.Errorf("failed to record %d seen listings: %w", len(ids), err)
	}
	return nil
}

// FilterNew returns the records not seen before, in input order, and marks them as seen.
// Any store error aborts the whole batch and leaves no record marked.
func (d *Deduplicator) FilterNew(ctx context.Context, records []listing.Record) ([]listing.Record, error) {
	fresh, err := d.Unseen(ctx, records)
	if err != nil {
		return nil, err
	}
	if err := d.MarkSeen(ctx, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}
