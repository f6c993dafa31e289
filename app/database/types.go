package database

import (
	"time"
)

// ModelStat aggregates the scored listings of one brand/model.
type ModelStat struct {
	Model    string
	Count    int
	AvgScore float64
	AvgPrice float64 // euros, listings with a known price only
}

type Totals struct {
	Total     int
	High      int
	Last24h   int
	AvgScore  float64
	SeenCount int
}

type DailyStat struct {
	Day      string // YYYY-MM-DD, UTC
	Count    int
	AvgScore float64
}

type CycleStatus string

const (
	CycleDone   CycleStatus = "done"
	CycleFailed CycleStatus = "failed"
)

// CycleRun is the audit record of one polling cycle.
type CycleRun struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     CycleStatus
	Error      string
	Fetched    int
	Fresh      int
	Accepted   int
	Rejected   int
}

const (
	SettingHighThreshold = "high_threshold"
	SettingMonitoring    = "monitoring"
)
