package database

import (
	"context"
	"time"

	"github.com/lysyi3m/auto-comb/app/listing"
)

type SeenRepository interface {
	Contains(ctx context.Context, id string) (bool, error)
	Record(ctx context.Context, id string, seenAt time.Time) error
	RecordAll(ctx context.Context, ids []string, seenAt time.Time) error
	Count(ctx context.Context) (int, error)
}

type ListingRepository interface {
	Save(ctx context.Context, scored listing.Scored) error
	Recent(ctx context.Context, n int) ([]listing.Scored, error)
	Unnotified(ctx context.Context, limit int) ([]listing.Scored, error)
	MarkNotified(ctx context.Context, ids []string, at time.Time) error
	StatsByModel(ctx context.Context) (map[string]int, error)
	ModelStats(ctx context.Context) ([]ModelStat, error)
	Totals(ctx context.Context, now time.Time) (Totals, error)
	DailyStats(ctx context.Context, days int, now time.Time) ([]DailyStat, error)
}

type SettingsRepository interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
}

type CycleRepository interface {
	SaveCycle(ctx context.Context, run CycleRun) error
	LastCycle(ctx context.Context) (*CycleRun, error)
}
