package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lysyi3m/auto-comb/app/listing"
)

// ListingStore handles database operations for scored listings.
type ListingStore struct {
	db *DB
}

func NewListingRepository(db *DB) *ListingStore {
	return &ListingStore{db: db}
}

// Save persists an accepted listing. Re-saving the same listing id is a no-op.
func (r *ListingStore) Save(ctx context.Context, s listing.Scored) error {
	signals, err := json.Marshal(s.Signals)
	if err != nil {
		return fmt.Errorf("failed to encode signals: %w", err)
	}
	if s.Signals == nil {
		signals = []byte("[]")
	}

	rec := s.Record
	query := `
		INSERT INTO scored_listings (
			listing_id, cycle_id, criteria, priority, model_key, brand, model,
			title, description, url, image_url, price, mileage, year,
			fuel, fuel_label, transmission, gearbox, engine, location,
			published_at, score, tier, signals, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(listing_id) DO NOTHING`

	_, err = r.db.ExecContext(ctx, query,
		rec.ID, s.CycleID, s.Criteria, s.Priority, statsKey(s), rec.Brand, rec.Model,
		rec.Title, rec.Description, rec.URL, rec.ImageURL, rec.Price, rec.Mileage, rec.Year,
		string(rec.Fuel), rec.FuelLabel, string(rec.Transmission), rec.Gearbox, rec.Engine, rec.Location,
		formatTime(rec.PublishedAt), s.Score, string(s.Tier), string(signals), formatTime(s.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save scored listing %s: %w", rec.ID, err)
	}
	return nil
}

const listingColumns = `listing_id, cycle_id, criteria, priority, brand, model,
	title, description, url, image_url, price, mileage, year,
	fuel, fuel_label, transmission, gearbox, engine, location,
	published_at, score, tier, signals, created_at`

// Recent returns the n most recently stored listings, newest first.
func (r *ListingStore) Recent(ctx context.Context, n int) ([]listing.Scored, error) {
	if n <= 0 {
		return nil, nil
	}

	query := `SELECT ` + listingColumns + `
		FROM scored_listings
		ORDER BY created_at DESC, id DESC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent listings: %w", err)
	}
	return scanListings(rows)
}

// Unnotified returns listings whose alert was never delivered, oldest first.
func (r *ListingStore) Unnotified(ctx context.Context, limit int) ([]listing.Scored, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `SELECT ` + listingColumns + `
		FROM scored_listings
		WHERE notified_at = ''
		ORDER BY created_at ASC, id ASC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unnotified listings: %w", err)
	}
	return scanListings(rows)
}

func (r *ListingStore) MarkNotified(ctx context.Context, ids []string, at time.Time) error {
	for _, id := range ids {
		_, err := r.db.ExecContext(ctx,
			"UPDATE scored_listings SET notified_at = ? WHERE listing_id = ? AND notified_at = ''",
			formatTime(at), id)
		if err != nil {
			return fmt.Errorf("failed to mark listing %s as notified: %w", id, err)
		}
	}
	return nil
}

func scanListings(rows *sql.Rows) ([]listing.Scored, error) {
	defer rows.Close()

	var out []listing.Scored
	for rows.Next() {
		var s listing.Scored
		var fuel, transmission, tier string
		var publishedAt, createdAt, rawSignals string
		rec := &s.Record
		if err := rows.Scan(
			&rec.ID, &s.CycleID, &s.Criteria, &s.Priority, &rec.Brand, &rec.Model,
			&rec.Title, &rec.Description, &rec.URL, &rec.ImageURL, &rec.Price, &rec.Mileage, &rec.Year,
			&fuel, &rec.FuelLabel, &transmission, &rec.Gearbox, &rec.Engine, &rec.Location,
			&publishedAt, &s.Score, &tier, &rawSignals, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		rec.Fuel = listing.Fuel(fuel)
		rec.Transmission = listing.Transmission(transmission)
		rec.PublishedAt = parseTime(publishedAt)
		s.Tier = listing.Tier(tier)
		s.CreatedAt = parseTime(createdAt)
		if err := json.Unmarshal([]byte(rawSignals), &s.Signals); err != nil {
			return nil, fmt.Errorf("failed to decode signals of %s: %w", rec.ID, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate listings: %w", err)
	}

	return out, nil
}

// statsKey groups a listing by brand and model, or by its criteria when the
// marketplace gave no brand attribute and the match came from the title.
func statsKey(s listing.Scored) string {
	if key := listing.ModelKey(s.Record.Brand, s.Record.Model); key != "" {
		return key
	}
	return listing.Normalize(s.Criteria)
}

// StatsByModel counts stored listings per model key.
func (r *ListingStore) StatsByModel(ctx context.Context) (map[string]int, error) {
	stats, err := r.ModelStats(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(stats))
	for _, st := range stats {
		out[st.Model] = st.Count
	}
	return out, nil
}

func (r *ListingStore) ModelStats(ctx context.Context) ([]ModelStat, error) {
	query := `
		SELECT model_key, COUNT(*), AVG(score),
			COALESCE(AVG(CASE WHEN price >= 0 THEN price END), 0)
		FROM scored_listings
		GROUP BY model_key
		ORDER BY COUNT(*) DESC, model_key ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query model stats: %w", err)
	}
	defer rows.Close()

	var out []ModelStat
	for rows.Next() {
		var st ModelStat
		var avgPriceCents float64
		if err := rows.Scan(&st.Model, &st.Count, &st.AvgScore, &avgPriceCents); err != nil {
			return nil, fmt.Errorf("failed to scan model stats: %w", err)
		}
		st.AvgPrice = avgPriceCents / 100
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate model stats: %w", err)
	}
	return out, nil
}

func (r *ListingStore) Totals(ctx context.Context, now time.Time) (Totals, error) {
	var t Totals
	query := `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN tier = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(score), 0)
		FROM scored_listings`

	err := r.db.QueryRowContext(ctx, query, string(listing.TierHigh), formatTime(now.Add(-24*time.Hour))).
		Scan(&t.Total, &t.High, &t.Last24h, &t.AvgScore)
	if err != nil {
		return Totals{}, fmt.Errorf("failed to query totals: %w", err)
	}

	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM seen_listings").Scan(&t.SeenCount); err != nil {
		return Totals{}, fmt.Errorf("failed to count seen listings: %w", err)
	}

	return t, nil
}

// DailyStats returns per-day counts for the last days, oldest first. Days without listings are omitted.
func (r *ListingStore) DailyStats(ctx context.Context, days int, now time.Time) ([]DailyStat, error) {
	if days <= 0 {
		return nil, nil
	}

	query := `
		SELECT substr(created_at, 1, 10) AS day, COUNT(*), AVG(score)
		FROM scored_listings
		WHERE created_at >= ?
		GROUP BY day
		ORDER BY day ASC`

	since := now.UTC().AddDate(0, 0, -(days - 1)).Truncate(24 * time.Hour)
	rows, err := r.db.QueryContext(ctx, query, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query daily stats: %w", err)
	}
	defer rows.Close()

	var out []DailyStat
	for rows.Next() {
		var d DailyStat
		if err := rows.Scan(&d.Day, &d.Count, &d.AvgScore); err != nil {
			return nil, fmt.Errorf("failed to scan daily stats: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate daily stats: %w", err)
	}
	return out, nil
}
