package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/lysyi3m/auto-comb/app/listing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func scoredListing(id, brand, model string, score int, tier listing.Tier, created time.Time) listing.Scored {
	return listing.Scored{
		Record: listing.Record{
			ID:           id,
			Title:        brand + " " + model,
			Brand:        brand,
			Model:        model,
			Price:        listing.Euros(5000),
			Mileage:      90000,
			Year:         2016,
			Fuel:         listing.FuelPetrol,
			Transmission: listing.TransmissionManual,
			URL:          "https://example.test/ad/" + id,
		},
		Score:     score,
		Tier:      tier,
		Criteria:  brand + " " + model,
		Signals:   []listing.Signal{{Name: "good_engine", Delta: 5}, {Name: "high_mileage", Delta: -2}},
		CycleID:   "cycle-1",
		CreatedAt: created,
	}
}

func TestOpenRunsMigrations(t *testing.T) {
	db := openTestDB(t)

	version, dirty, err := RunMigrations(db)
	if err != nil {
		t.Fatalf("Expected migrations to be idempotent, got %v", err)
	}
	if version != 2 || dirty {
		t.Errorf("Expected version 2 clean, got %d dirty=%v", version, dirty)
	}
}

func TestSeenRepository(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo, err := NewSeenRepository(db)
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	defer repo.Close()

	ok, err := repo.Contains(ctx, "a1")
	if err != nil || ok {
		t.Fatalf("Expected unseen id, got %v %v", ok, err)
	}

	now := time.Now()
	if err := repo.Record(ctx, "a1", now); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	// Recording twice is harmless.
	if err := repo.Record(ctx, "a1", now.Add(time.Minute)); err != nil {
		t.Fatalf("Second record failed: %v", err)
	}

	ok, err = repo.Contains(ctx, "a1")
	if err != nil || !ok {
		t.Errorf("Expected a1 to be seen, got %v %v", ok, err)
	}

	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 seen id, got %d", count)
	}
}

func TestSeenRepositorySurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "seen.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	repo, _ := NewSeenRepository(db)
	if err := repo.Record(ctx, "persisted", time.Now()); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	repo.Close()
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatalf("Failed to reopen database: %v", err)
	}
	defer db.Close()
	repo, _ = NewSeenRepository(db)
	defer repo.Close()

	ok, err := repo.Contains(ctx, "persisted")
	if err != nil || !ok {
		t.Errorf("Expected id to survive restart, got %v %v", ok, err)
	}
}

func TestListingRepositorySaveAndRecent(t *testing.T) {
	ctx := context.Background()
	repo := NewListingRepository(openTestDB(t))

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := scoredListing("1", "mazda", "2", 17, listing.TierHigh, base)
	second := scoredListing("2", "toyota", "yaris", 8, listing.TierLow, base.Add(time.Hour))
	second.Record.Price = listing.Unknown

	for _, s := range []listing.Scored{first, second, first} {
		if err := repo.Save(ctx, s); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	recent, err := repo.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Expected 2 listings, got %d", len(recent))
	}
	if recent[0].Record.ID != "2" {
		t.Errorf("Expected newest listing first, got %s", recent[0].Record.ID)
	}
	if recent[0].Record.HasPrice() {
		t.Errorf("Expected unknown price to round-trip, got %d", recent[0].Record.Price)
	}

	got := recent[1]
	if got.Score != 17 || got.Tier != listing.TierHigh {
		t.Errorf("Expected score 17 high, got %d %s", got.Score, got.Tier)
	}
	if len(got.Signals) != 2 || got.Signals[0].Name != "good_engine" {
		t.Errorf("Expected signals to round-trip, got %+v", got.Signals)
	}
	if !got.CreatedAt.Equal(base) {
		t.Errorf("Expected created_at %v, got %v", base, got.CreatedAt)
	}
	if got.Record.Fuel != listing.FuelPetrol {
		t.Errorf("Expected petrol, got %s", got.Record.Fuel)
	}

	limited, _ := repo.Recent(ctx, 1)
	if len(limited) != 1 {
		t.Errorf("Expected limit to apply, got %d", len(limited))
	}
}

func TestListingRepositoryStats(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewListingRepository(db)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	listings := []listing.Scored{
		scoredListing("1", "mazda", "2", 17, listing.TierHigh, now.Add(-time.Hour)),
		scoredListing("2", "mazda", "2", 11, listing.TierMedium, now.Add(-48*time.Hour)),
		scoredListing("3", "honda", "jazz", 6, listing.TierLow, now.Add(-2*time.Hour)),
	}
	for _, s := range listings {
		if err := repo.Save(ctx, s); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	byModel, err := repo.StatsByModel(ctx)
	if err != nil {
		t.Fatalf("StatsByModel failed: %v", err)
	}
	if byModel["mazda 2"] != 2 || byModel["honda jazz"] != 1 {
		t.Errorf("Unexpected per-model counts: %v", byModel)
	}

	stats, _ := repo.ModelStats(ctx)
	if len(stats) != 2 || stats[0].Model != "mazda 2" {
		t.Fatalf("Expected mazda 2 first, got %+v", stats)
	}
	if stats[0].AvgScore != 14 {
		t.Errorf("Expected average score 14, got %f", stats[0].AvgScore)
	}
	if stats[0].AvgPrice != 5000 {
		t.Errorf("Expected average price 5000, got %f", stats[0].AvgPrice)
	}

	totals, err := repo.Totals(ctx, now)
	if err != nil {
		t.Fatalf("Totals failed: %v", err)
	}
	if totals.Total != 3 || totals.High != 1 || totals.Last24h != 2 {
		t.Errorf("Unexpected totals: %+v", totals)
	}

	daily, err := repo.DailyStats(ctx, 7, now)
	if err != nil {
		t.Fatalf("DailyStats failed: %v", err)
	}
	if len(daily) != 2 || daily[0].Day != "2026-03-08" || daily[1].Count != 2 {
		t.Errorf("Unexpected daily stats: %+v", daily)
	}
}

func TestSeenRepositoryRecordAll(t *testing.T) {
	ctx := context.Background()
	repo, err := NewSeenRepository(openTestDB(t))
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	defer repo.Close()

	now := time.Now()
	if err := repo.Record(ctx, "b", now); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := repo.RecordAll(ctx, []string{"a", "b", "c"}, now); err != nil {
		t.Fatalf("RecordAll failed: %v", err)
	}
	if err := repo.RecordAll(ctx, nil, now); err != nil {
		t.Fatalf("Expected empty batch to be a no-op, got %v", err)
	}

	for _, id := range []string{"a", "b", "c"} {
		if ok, _ := repo.Contains(ctx, id); !ok {
			t.Errorf("Expected %s to be seen", id)
		}
	}
	if count, _ := repo.Count(ctx); count != 3 {
		t.Errorf("Expected 3 seen ids, got %d", count)
	}
}

func TestListingRepositoryStatsFallBackToCriteria(t *testing.T) {
	ctx := context.Background()
	repo := NewListingRepository(openTestDB(t))

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	titleOnly := scoredListing("1", "", "", 12, listing.TierMedium, now)
	titleOnly.Record.Title = "Mazda2 1.5 Skyactiv"
	titleOnly.Criteria = "Mazda 2"
	if err := repo.Save(ctx, titleOnly); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := repo.Save(ctx, scoredListing("2", "mazda", "2", 16, listing.TierHigh, now)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	byModel, err := repo.StatsByModel(ctx)
	if err != nil {
		t.Fatalf("StatsByModel failed: %v", err)
	}
	if byModel["mazda 2"] != 2 {
		t.Errorf("Expected title-only listing grouped under its criteria, got %v", byModel)
	}
	if _, ok := byModel[""]; ok {
		t.Errorf("Expected no empty model key, got %v", byModel)
	}

	m := NewMemoryStore()
	m.Save(ctx, titleOnly)
	memStats, _ := m.StatsByModel(ctx)
	if memStats["mazda 2"] != 1 {
		t.Errorf("Expected memory store to use the same key, got %v", memStats)
	}
}

func TestListingRepositoryNotified(t *testing.T) {
	ctx := context.Background()
	repo := NewListingRepository(openTestDB(t))

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"1", "2", "3"} {
		s := scoredListing(id, "mazda", "2", 17, listing.TierHigh, base.Add(time.Duration(i)*time.Minute))
		if err := repo.Save(ctx, s); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	pending, err := repo.Unnotified(ctx, 10)
	if err != nil {
		t.Fatalf("Unnotified failed: %v", err)
	}
	if len(pending) != 3 || pending[0].Record.ID != "1" {
		t.Fatalf("Expected 3 pending listings oldest first, got %+v", pending)
	}

	if err := repo.MarkNotified(ctx, []string{"1", "3"}, base.Add(time.Hour)); err != nil {
		t.Fatalf("MarkNotified failed: %v", err)
	}

	pending, _ = repo.Unnotified(ctx, 10)
	if len(pending) != 1 || pending[0].Record.ID != "2" {
		t.Errorf("Expected only listing 2 pending, got %+v", pending)
	}
	if limited, _ := repo.Unnotified(ctx, 0); limited != nil {
		t.Errorf("Expected no listings for zero limit, got %+v", limited)
	}

	m := NewMemoryStore()
	m.Save(ctx, scoredListing("1", "mazda", "2", 17, listing.TierHigh, base))
	m.Save(ctx, scoredListing("2", "mazda", "2", 17, listing.TierHigh, base.Add(time.Minute)))
	m.MarkNotified(ctx, []string{"1", "unknown"}, base)
	memPending, _ := m.Unnotified(ctx, 10)
	if len(memPending) != 1 || memPending[0].Record.ID != "2" {
		t.Errorf("Expected memory store to track notification, got %+v", memPending)
	}
}

func TestSettingsRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewSettingsRepository(openTestDB(t))

	if _, ok, err := repo.GetSetting(ctx, SettingHighThreshold); err != nil || ok {
		t.Fatalf("Expected missing setting, got %v %v", ok, err)
	}

	if err := repo.SetSetting(ctx, SettingHighThreshold, "20"); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}
	if err := repo.SetSetting(ctx, SettingHighThreshold, "25"); err != nil {
		t.Fatalf("SetSetting overwrite failed: %v", err)
	}

	value, ok, err := repo.GetSetting(ctx, SettingHighThreshold)
	if err != nil || !ok || value != "25" {
		t.Errorf("Expected 25, got %q %v %v", value, ok, err)
	}
}

func TestCycleRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewCycleRepository(openTestDB(t))

	last, err := repo.LastCycle(ctx)
	if err != nil || last != nil {
		t.Fatalf("Expected no cycles, got %+v %v", last, err)
	}

	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	runs := []CycleRun{
		{ID: "a", StartedAt: start, FinishedAt: start.Add(time.Minute), Status: CycleDone, Fetched: 35, Fresh: 3, Accepted: 1, Rejected: 2},
		{ID: "b", StartedAt: start.Add(30 * time.Minute), FinishedAt: start.Add(31 * time.Minute), Status: CycleFailed, Error: "rate limited"},
	}
	for _, r := range runs {
		if err := repo.SaveCycle(ctx, r); err != nil {
			t.Fatalf("SaveCycle failed: %v", err)
		}
	}

	last, err = repo.LastCycle(ctx)
	if err != nil {
		t.Fatalf("LastCycle failed: %v", err)
	}
	if last.ID != "b" || last.Status != CycleFailed || last.Error != "rate limited" {
		t.Errorf("Unexpected last cycle: %+v", last)
	}
}

func TestMemoryStoreMatchesRepositories(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	m.Record(ctx, "x", now)
	m.Record(ctx, "x", now)
	if n, _ := m.Count(ctx); n != 1 {
		t.Errorf("Expected 1 seen id, got %d", n)
	}

	m.Save(ctx, scoredListing("1", "mazda", "2", 17, listing.TierHigh, now))
	m.Save(ctx, scoredListing("2", "mazda", "2", 11, listing.TierMedium, now))
	m.Save(ctx, scoredListing("1", "mazda", "2", 17, listing.TierHigh, now))

	recent, _ := m.Recent(ctx, 5)
	if len(recent) != 2 || recent[0].Record.ID != "2" {
		t.Errorf("Expected newest insert first, got %+v", recent)
	}

	totals, _ := m.Totals(ctx, now)
	if totals.Total != 2 || totals.High != 1 || totals.SeenCount != 1 {
		t.Errorf("Unexpected totals: %+v", totals)
	}

	m.SaveCycle(ctx, CycleRun{ID: "c1", StartedAt: now, Status: CycleDone})
	m.SaveCycle(ctx, CycleRun{ID: "c1", StartedAt: now, Status: CycleFailed})
	last, _ := m.LastCycle(ctx)
	if last == nil || last.Status != CycleFailed {
		t.Errorf("Expected updated cycle, got %+v", last)
	}
}
