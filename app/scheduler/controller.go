package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/lysyi3m/auto-comb/app/config"
	"github.com/lysyi3m/auto-comb/app/cycle"
	"github.com/lysyi3m/auto-comb/app/database"
	"github.com/lysyi3m/auto-comb/app/listing"
	"github.com/lysyi3m/auto-comb/app/scoring"
)

var ErrCycleRunning = errors.New("a cycle is already running")

// Controller is the operator capability exposed to chat and HTTP surfaces.
type Controller interface {
	StartMonitoring(ctx context.Context) error
	StopMonitoring(ctx context.Context) error
	Status(ctx context.Context) (Status, error)
	SetHighThreshold(ctx context.Context, high int) error
	Recent(ctx context.Context, n int) ([]listing.Scored, error)
	StatsByModel(ctx context.Context) (map[string]int, error)
	Stats(ctx context.Context) (Stats, error)
	Criteria() []config.Criteria
	RunNow(ctx context.Context) (cycle.Result, error)
}

type Status struct {
	Version      string
	Monitoring   bool
	State        cycle.State
	Interval     time.Duration
	StartedAt    time.Time
	NextRunAt    time.Time
	CyclesRun    int
	CyclesFailed int
	LastCycle    *LastCycle
	Thresholds   scoring.Thresholds
	Totals       database.Totals
}

// LastCycle is the outcome of the most recent cycle.
type LastCycle struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Fetched    int
	Fresh      int
	Accepted   int
	Rejected   int
	Error      string
}

type Stats struct {
	Totals database.Totals
	Models []database.ModelStat
	Daily  []database.DailyStat
}
