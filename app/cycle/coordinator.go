package cycle

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lysyi3m/auto-comb/app/config"
	"github.com/lysyi3m/auto-comb/app/database"
	"github.com/lysyi3m/auto-comb/app/listing"
	"github.com/lysyi3m/auto-comb/app/rules"
	"github.com/lysyi3m/auto-comb/app/scoring"
	"github.com/lysyi3m/auto-comb/app/transport"
)

type Fetcher interface {
	Fetch(ctx context.Context, q transport.Query) ([]byte, error)
}

type Parser interface {
	Parse(payload []byte) ([]listing.Record, error)
}

// Deduplicator separates the seen check from recording, so a listing is only marked
// once it has been rejected or stored.
type Deduplicator interface {
	Unseen(ctx context.Context, records []listing.Record) ([]listing.Record, error)
	MarkSeen(ctx context.Context, records []listing.Record) error
}

type Evaluator interface {
	Evaluate(r listing.Record, criteria []config.Criteria, rules config.Rules) rules.Verdict
}

type Scorer interface {
	Evaluate(r listing.Record) scoring.Result
	Reconfigure(signals []config.Signal, thresholds scoring.Thresholds)
}

// ConfigSource provides the criteria and rules snapshot used by a cycle.
type ConfigSource interface {
	Refresh() (bool, error)
	Current() *config.Config
}

// pacer is implemented by fetchers whose delays follow the search configuration.
type pacer interface {
	SetPacing(p transport.Pacing)
}

type Options struct {
	Fetcher   Fetcher
	Parser    Parser
	Dedup     Deduplicator
	Evaluator Evaluator
	Scorer    Scorer
	Config    ConfigSource
	Listings  database.ListingRepository
	Cycles    database.CycleRepository
	Now       func() time.Time
	NewID     func() string
}

// Result summarizes one cycle. Listings is sorted by score, highest first.
type Result struct {
	CycleID    string
	StartedAt  time.Time
	FinishedAt time.Time
	Searches   int
	Fetched    int
	Fresh      int
	Accepted   int
	Rejected   int
	Rejections map[rules.Reason]int
	Listings   []listing.Scored
}

func (r Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Coordinator runs polling cycles: fetch, extract, deduplicate, evaluate and score every
// configured search in order, then hand back one batch.
type Coordinator struct {
	fetcher   Fetcher
	parser    Parser
	dedup     Deduplicator
	evaluator Evaluator
	scorer    Scorer
	config    ConfigSource
	listings  database.ListingRepository
	cycles    database.CycleRepository
	now       func() time.Time
	newID     func() string

	runMu sync.Mutex

	mu    sync.RWMutex
	state State
}

func NewCoordinator(opts Options) *Coordinator {
	c := &Coordinator{
		fetcher:   opts.Fetcher,
		parser:    opts.Parser,
		dedup:     opts.Dedup,
		evaluator: opts.Evaluator,
		scorer:    opts.Scorer,
		config:    opts.Config,
		listings:  opts.Listings,
		cycles:    opts.Cycles,
		now:       opts.Now,
		newID:     opts.NewID,
		state:     StateIdle,
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	return c
}

func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Run executes one cycle. On failure it returns the listings scored before the failure
// together with the error. Listings are recorded as seen only once rejected or stored,
// so anything lost to a failure is picked up again by the next cycle.
func (c *Coordinator) Run(ctx context.Context) (Result, error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	res := Result{
		CycleID:    c.newID(),
		StartedAt:  c.now(),
		Rejections: make(map[rules.Reason]int),
	}
	c.setState(StateIdle)

	cfg := c.reloadConfig()

	slog.Info("Cycle started", "cycle", res.CycleID, "searches", len(cfg.Search.Searches))

	var runErr error
	for i := range cfg.Search.Searches {
		criteria := cfg.Search.Searches[i]
		if err := c.runSearch(ctx, cfg, criteria, &res); err != nil {
			runErr = fmt.Errorf("search %q failed while %s: %w", criteria.Name, c.State(), err)
			break
		}
		res.Searches++
	}

	sortBatch(res.Listings)
	res.FinishedAt = c.now()

	run := database.CycleRun{
		ID:         res.CycleID,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		Status:     database.CycleDone,
		Fetched:    res.Fetched,
		Fresh:      res.Fresh,
		Accepted:   res.Accepted,
		Rejected:   res.Rejected,
	}

	if runErr != nil {
		c.setState(StateFailed)
		run.Status = database.CycleFailed
		run.Error = runErr.Error()
		c.saveRun(ctx, run)
		slog.Error("Cycle failed",
			"cycle", res.CycleID,
			"duration", res.Duration(),
			"accepted", res.Accepted,
			"error", runErr)
		return res, runErr
	}

	c.setState(StateDone)
	c.saveRun(ctx, run)
	slog.Info("Cycle completed",
		"cycle", res.CycleID,
		"duration", res.Duration(),
		"searches", res.Searches,
		"fetched", res.Fetched,
		"new", res.Fresh,
		"accepted", res.Accepted,
		"rejected", res.Rejected)

	return res, nil
}

// reloadConfig picks up edited configuration files at the cycle boundary.
func (c *Coordinator) reloadConfig() *config.Config {
	changed, err := c.config.Refresh()
	if err != nil {
		slog.Warn("Configuration reload failed, keeping previous configuration", "error", err)
	}
	cfg := c.config.Current()
	if changed {
		c.scorer.Reconfigure(cfg.Rules.Signals, scoring.Thresholds{
			High:   cfg.Search.Thresholds.High,
			Medium: cfg.Search.Thresholds.Medium,
		})
		if p, ok := c.fetcher.(pacer); ok {
			p.SetPacing(PacingFor(cfg.Search))
		}
		slog.Info("Configuration reloaded", "searches", len(cfg.Search.Searches), "signals", len(cfg.Rules.Signals))
	}
	return cfg
}

func (c *Coordinator) runSearch(ctx context.Context, cfg *config.Config, criteria config.Criteria, res *Result) error {
	query := QueryFor(criteria)

	c.setState(StateFetching)
	payload, err := c.fetcher.Fetch(ctx, query)
	if err != nil {
		return err
	}

	c.setState(StateExtracting)
	records, err := c.parser.Parse(payload)
	if err != nil {
		return err
	}
	res.Fetched += len(records)

	c.setState(StateDeduplicating)
	fresh, err := c.dedup.Unseen(ctx, records)
	if err != nil {
		return err
	}
	res.Fresh += len(fresh)

	c.setState(StateEvaluating)
	type candidate struct {
		record   listing.Record
		criteria *config.Criteria
	}
	var candidates []candidate
	settled := make([]listing.Record, 0, len(fresh))
	for _, r := range fresh {
		v := c.evaluator.Evaluate(r, cfg.Search.Searches, cfg.Rules)
		if !v.Accepted {
			settled = append(settled, r)
			res.Rejected++
			res.Rejections[v.Reason]++
			slog.Debug("Listing rejected", "id", r.ID, "title", r.Title, "reason", string(v.Reason), "detail", v.Detail)
			continue
		}
		candidates = append(candidates, candidate{record: r, criteria: v.Criteria})
	}

	c.setState(StateScoring)
	for _, cand := range candidates {
		scored := c.score(cand.record, cand.criteria, res.CycleID)
		if c.listings != nil {
			if err := c.listings.Save(ctx, scored); err != nil {
				if markErr := c.dedup.MarkSeen(ctx, settled); markErr != nil {
					slog.Warn("Failed to record seen listings", "search", criteria.Name, "error", markErr)
				}
				return err
			}
		}
		settled = append(settled, cand.record)
		res.Accepted++
		res.Listings = append(res.Listings, scored)
		slog.Debug("Listing accepted",
			"id", scored.Record.ID,
			"title", scored.Record.Title,
			"criteria", scored.Criteria,
			"score", scored.Score,
			"tier", string(scored.Tier))
	}

	if err := c.dedup.MarkSeen(ctx, settled); err != nil {
		return err
	}

	slog.Debug("Search processed",
		"search", criteria.Name,
		"query", query.String(),
		"fetched", len(records),
		"new", len(fresh),
		"accepted", len(candidates))

	return nil
}

func (c *Coordinator) score(r listing.Record, criteria *config.Criteria, cycleID string) listing.Scored {
	result := c.scorer.Evaluate(r)
	return listing.Scored{
		Record:    r,
		Score:     result.Score,
		Tier:      result.Tier,
		Criteria:  criteria.Name,
		Priority:  criteria.Priority,
		Signals:   result.Signals,
		CycleID:   cycleID,
		CreatedAt: c.now().UTC(),
	}
}

func (c *Coordinator) saveRun(ctx context.Context, run database.CycleRun) {
	if c.cycles == nil {
		return
	}
	if err := c.cycles.SaveCycle(ctx, run); err != nil {
		slog.Warn("Failed to record cycle run", "cycle", run.ID, "error", err)
	}
}

// sortBatch orders listings by score, then criteria priority, keeping discovery order for ties.
func sortBatch(batch []listing.Scored) {
	sort.SliceStable(batch, func(i, j int) bool {
		if batch[i].Score != batch[j].Score {
			return batch[i].Score > batch[j].Score
		}
		return batch[i].Priority > batch[j].Priority
	})
}
