package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lysyi3m/auto-comb/app/listing"
)

type mockSeenStore struct {
	seen       map[string]time.Time
	containsFn func(id string) (bool, error)
	recordErr  error
}

var _ SeenStore = (*mockSeenStore)(nil)

func newMockSeenStore() *mockSeenStore {
	return &mockSeenStore{seen: make(map[string]time.Time)}
}

func (m *mockSeenStore) Contains(ctx context.Context, id string) (bool, error) {
	if m.containsFn != nil {
		return m.containsFn(id)
	}
	_, ok := m.seen[id]
	return ok, nil
}

func (m *mockSeenStore) RecordAll(ctx context.Context, ids []string, seenAt time.Time) error {
	if m.recordErr != nil {
		return m.recordErr
	}
	for _, id := range ids {
		if _, ok := m.seen[id]; !ok {
			m.seen[id] = seenAt
		}
	}
	return nil
}

func records(ids ...string) []listing.Record {
	out := make([]listing.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, listing.Record{ID: id, Title: "listing " + id})
	}
	return out
}

func TestFilterNew(t *testing.T) {
	store := newMockSeenStore()
	store.seen["2"] = time.Now()
	d := New(store)

	fresh, err := d.FilterNew(context.Background(), records("1", "2", "3"))
	if err != nil {
		t.Fatal(err)
	}

	if len(fresh) != 2 || fresh[0].ID != "1" || fresh[1].ID != "3" {
		t.Errorf("Expected records 1 and 3 in order, got %+v", fresh)
	}
	if _, ok := store.seen["3"]; !ok {
		t.Error("New record should be marked as seen")
	}
}

func TestFilterNewIsIdempotent(t *testing.T) {
	store := newMockSeenStore()
	d := New(store)
	batch := records("10", "11", "12")

	first, err := d.FilterNew(context.Background(), batch)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 3 {
		t.Fatalf("Expected 3 new records on first pass, got %d", len(first))
	}

	second, err := d.FilterNew(context.Background(), batch)
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 0 {
		t.Errorf("Expected 0 new records on second pass, got %d", len(second))
	}
}

func TestFilterNewNoDoubleEmitWithinBatch(t *testing.T) {
	store := newMockSeenStore()
	// A store that has not yet observed writes must still not cause double emits.
	store.containsFn = func(id string) (bool, error) { return false, nil }
	d := New(store)

	fresh, err := d.FilterNew(context.Background(), records("7", "7", "8"))
	if err != nil {
		t.Fatal(err)
	}
	if len(fresh) != 2 {
		t.Errorf("Expected 2 records, got %d", len(fresh))
	}
}

func TestFilterNewStoreErrors(t *testing.T) {
	storeErr := errors.New("disk I/O error")

	t.Run("contains", func(t *testing.T) {
		store := newMockSeenStore()
		store.containsFn = func(id string) (bool, error) { return false, storeErr }

		fresh, err := New(store).FilterNew(context.Background(), records("1"))
		if !errors.Is(err, storeErr) {
			t.Errorf("Expected store error, got %v", err)
		}
		if fresh != nil {
			t.Error("No records should be emitted on store failure")
		}
	})

	t.Run("record", func(t *testing.T) {
		store := newMockSeenStore()
		store.recordErr = storeErr

		fresh, err := New(store).FilterNew(context.Background(), records("1"))
		if !errors.Is(err, storeErr) {
			t.Errorf("Expected store error, got %v", err)
		}
		if fresh != nil {
			t.Error("No records should be emitted on store failure")
		}
	})
}

func TestFilterNewFailureMidBatchMarksNothing(t *testing.T) {
	storeErr := errors.New("database is locked")
	store := newMockSeenStore()
	calls := 0
	store.containsFn = func(id string) (bool, error) {
		calls++
		if calls == 3 {
			return false, storeErr
		}
		_, ok := store.seen[id]
		return ok, nil
	}
	d := New(store)
	batch := records("1", "2", "3")

	if _, err := d.FilterNew(context.Background(), batch); !errors.Is(err, storeErr) {
		t.Fatalf("Expected store error, got %v", err)
	}
	if len(store.seen) != 0 {
		t.Errorf("Expected no ids marked after a failed batch, got %v", store.seen)
	}

	// The store recovers; the retried batch must emit every record.
	fresh, err := d.FilterNew(context.Background(), batch)
	if err != nil {
		t.Fatal(err)
	}
	if len(fresh) != 3 {
		t.Errorf("Expected all 3 records on retry, got %+v", fresh)
	}
}

func TestUnseenDoesNotMark(t *testing.T) {
	store := newMockSeenStore()
	d := New(store)
	batch := records("1", "2")

	fresh, err := d.Unseen(context.Background(), batch)
	if err != nil {
		t.Fatal(err)
	}
	if len(fresh) != 2 || len(store.seen) != 0 {
		t.Fatalf("Expected 2 unmarked records, got %d with %v", len(fresh), store.seen)
	}

	if err := d.MarkSeen(context.Background(), fresh[:1]); err != nil {
		t.Fatal(err)
	}
	again, _ := d.Unseen(context.Background(), batch)
	if len(again) != 1 || again[0].ID != "2" {
		t.Errorf("Expected only record 2 unseen, got %+v", again)
	}
}
