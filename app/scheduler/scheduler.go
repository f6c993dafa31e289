package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lysyi3m/auto-comb/app/config"
	"github.com/lysyi3m/auto-comb/app/cycle"
	"github.com/lysyi3m/auto-comb/app/database"
	"github.com/lysyi3m/auto-comb/app/listing"
	"github.com/lysyi3m/auto-comb/app/notify"
	"github.com/lysyi3m/auto-comb/app/scoring"
)

type Runner interface {
	Run(ctx context.Context) (cycle.Result, error)
	State() cycle.State
}

type ThresholdSetter interface {
	SetHighThreshold(high int) error
	Thresholds() scoring.Thresholds
}

type ConfigSource interface {
	Current() *config.Config
}

type Options struct {
	Runner       Runner
	Scorer       ThresholdSetter
	Config       ConfigSource
	Store        *database.Store
	Notifier     notify.Notifier
	RunAtStartup bool
	Version      string
	Now          func() time.Time
}

const (
	redeliverLimit  = 20
	redeliverWindow = 24 * time.Hour
)

var _ Controller = (*Scheduler)(nil)

// Scheduler triggers one cycle per interval while monitoring is on. Cycles never overlap:
// a tick that finds a cycle running is skipped.
type Scheduler struct {
	runner       Runner
	scorer       ThresholdSetter
	config       ConfigSource
	store        *database.Store
	notifier     notify.Notifier
	runAtStartup bool
	version      string
	now          func() time.Time

	cron     *cron.Cron
	entry    cron.EntryID
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	runMu sync.Mutex

	mu           sync.RWMutex
	monitoring   bool
	startedAt    time.Time
	cyclesRun    int
	cyclesFailed int
	last         *LastCycle
}

func New(opts Options) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		runner:       opts.Runner,
		scorer:       opts.Scorer,
		config:       opts.Config,
		store:        opts.Store,
		notifier:     opts.Notifier,
		runAtStartup: opts.RunAtStartup,
		version:      opts.Version,
		now:          opts.Now,
		ctx:          ctx,
		cancel:       cancel,
		monitoring:   true,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.notifier == nil {
		s.notifier = notify.NewLogNotifier(nil)
	}

	logger := cronLogger{}
	s.cron = cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	return s
}

// Start restores persisted operator settings and begins ticking.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.restore(ctx); err != nil {
		return err
	}

	interval := s.config.Current().Search.General.CheckInterval()

	s.mu.Lock()
	s.interval = interval
	s.entry = s.cron.Schedule(cron.Every(interval), cron.FuncJob(s.tick))
	s.startedAt = s.now()
	monitoring := s.monitoring
	s.mu.Unlock()

	s.cron.Start()

	slog.Info("Scheduler started", "interval", interval.String(), "monitoring", monitoring)
	s.announce(fmt.Sprintf("auto-comb %s démarré, vérification toutes les %s, surveillance %s",
		s.version, interval, onOff(monitoring)))

	if s.runAtStartup && monitoring {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.tick()
		}()
	}

	return nil
}

// Stop waits for an in-flight cycle to finish before returning, including one started by RunNow.
func (s *Scheduler) Stop() {
	stopped := s.cron.Stop()
	<-stopped.Done()
	s.wg.Wait()
	s.runMu.Lock()
	defer s.runMu.Unlock()
	s.announce("auto-comb arrêté")
	s.cancel()
	slog.Info("Scheduler stopped")
}

func (s *Scheduler) restore(ctx context.Context) error {
	value, ok, err := s.store.Settings.GetSetting(ctx, database.SettingMonitoring)
	if err != nil {
		return fmt.Errorf("failed to restore monitoring flag: %w", err)
	}
	if ok {
		s.mu.Lock()
		s.monitoring = value != "false"
		s.mu.Unlock()
	}

	value, ok, err = s.store.Settings.GetSetting(ctx, database.SettingHighThreshold)
	if err != nil {
		return fmt.Errorf("failed to restore high threshold: %w", err)
	}
	if ok {
		high, convErr := strconv.Atoi(value)
		if convErr == nil {
			convErr = s.scorer.SetHighThreshold(high)
		}
		if convErr != nil {
			slog.Warn("Ignoring persisted high threshold", "value", value, "error", convErr)
		} else {
			slog.Info("High threshold restored", "high", high)
		}
	}
	return nil
}

func (s *Scheduler) tick() {
	s.mu.RLock()
	monitoring := s.monitoring
	s.mu.RUnlock()
	if !monitoring {
		slog.Debug("Monitoring paused, skipping cycle")
		return
	}

	if _, err := s.execute(); errors.Is(err, ErrCycleRunning) {
		slog.Info("Previous cycle still running, skipping tick")
	}

	s.reschedule()
}

// execute runs one cycle and delivers its batch. The cycle context is not tied to the caller,
// so shutdown lets an in-flight cycle finish.
func (s *Scheduler) execute() (cycle.Result, error) {
	if !s.runMu.TryLock() {
		return cycle.Result{}, ErrCycleRunning
	}
	defer s.runMu.Unlock()

	ctx := s.ctx
	s.redeliver(ctx)
	res, runErr := s.runner.Run(ctx)

	last := &LastCycle{
		ID:         res.CycleID,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		Fetched:    res.Fetched,
		Fresh:      res.Fresh,
		Accepted:   res.Accepted,
		Rejected:   res.Rejected,
	}
	if runErr != nil {
		last.Error = runErr.Error()
	}

	s.mu.Lock()
	s.cyclesRun++
	if runErr != nil {
		s.cyclesFailed++
	}
	s.last = last
	s.mu.Unlock()

	if failed := s.deliver(ctx, res.Listings); failed > 0 {
		slog.Error("Failed to dispatch listings, retrying next cycle", "cycle", res.CycleID, "count", len(res.Listings), "failed", failed)
	}
	if runErr != nil {
		if err := s.notifier.ReportFailure(ctx, res.CycleID, runErr); err != nil {
			slog.Error("Failed to report cycle failure", "cycle", res.CycleID, "error", err)
		}
	}

	return res, runErr
}

// deliver dispatches listings one at a time and marks each as notified once sent.
// It returns how many could not be delivered.
func (s *Scheduler) deliver(ctx context.Context, batch []listing.Scored) int {
	failed := 0
	for _, item := range batch {
		if err := s.notifier.Dispatch(ctx, []listing.Scored{item}); err != nil {
			slog.Warn("Failed to dispatch listing", "id", item.Record.ID, "error", err)
			failed++
			continue
		}
		if err := s.store.Listings.MarkNotified(ctx, []string{item.Record.ID}, s.now()); err != nil {
			slog.Warn("Failed to mark listing as notified", "id", item.Record.ID, "error", err)
		}
	}
	return failed
}

// redeliver retries alerts that failed in earlier cycles. Alerts older than
// redeliverWindow are dropped so a listing Discord keeps rejecting is not retried forever.
func (s *Scheduler) redeliver(ctx context.Context) {
	pending, err := s.store.Listings.Unnotified(ctx, redeliverLimit)
	if err != nil {
		slog.Warn("Failed to load undelivered listings", "error", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	cutoff := s.now().Add(-redeliverWindow)
	var retry []listing.Scored
	var expired []string
	for _, item := range pending {
		if item.CreatedAt.Before(cutoff) {
			expired = append(expired, item.Record.ID)
			continue
		}
		retry = append(retry, item)
	}
	if len(expired) > 0 {
		slog.Warn("Giving up on undelivered listings", "count", len(expired))
		if err := s.store.Listings.MarkNotified(ctx, expired, s.now()); err != nil {
			slog.Warn("Failed to mark expired listings", "error", err)
		}
	}

	failed := s.deliver(ctx, retry)
	slog.Info("Undelivered listings retried", "count", len(retry), "failed", failed)
}

// reschedule follows an interval change picked up from the configuration.
func (s *Scheduler) reschedule() {
	interval := s.config.Current().Search.General.CheckInterval()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.interval == 0 || interval <= 0 || interval == s.interval {
		return
	}
	s.cron.Remove(s.entry)
	s.entry = s.cron.Schedule(cron.Every(interval), cron.FuncJob(s.tick))
	slog.Info("Check interval changed", "from", s.interval.String(), "to", interval.String())
	s.interval = interval
}

func (s *Scheduler) announce(message string) {
	if err := s.notifier.Announce(s.ctx, message); err != nil {
		slog.Warn("Failed to send announcement", "error", err)
	}
}

func (s *Scheduler) StartMonitoring(ctx context.Context) error {
	return s.setMonitoring(ctx, true)
}

func (s *Scheduler) StopMonitoring(ctx context.Context) error {
	return s.setMonitoring(ctx, false)
}

func (s *Scheduler) setMonitoring(ctx context.Context, on bool) error {
	if err := s.store.Settings.SetSetting(ctx, database.SettingMonitoring, strconv.FormatBool(on)); err != nil {
		return fmt.Errorf("failed to persist monitoring flag: %w", err)
	}
	s.mu.Lock()
	s.monitoring = on
	s.mu.Unlock()
	slog.Info("Monitoring toggled", "monitoring", on)
	return nil
}

func (s *Scheduler) Status(ctx context.Context) (Status, error) {
	totals, err := s.store.Listings.Totals(ctx, s.now())
	if err != nil {
		return Status{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		Version:      s.version,
		Monitoring:   s.monitoring,
		State:        s.runner.State(),
		Interval:     s.interval,
		StartedAt:    s.startedAt,
		CyclesRun:    s.cyclesRun,
		CyclesFailed: s.cyclesFailed,
		Thresholds:   s.scorer.Thresholds(),
		Totals:       totals,
	}
	if s.last != nil {
		last := *s.last
		st.LastCycle = &last
	}
	if s.monitoring {
		if entry := s.cron.Entry(s.entry); entry.Valid() {
			st.NextRunAt = entry.Next
		}
	}
	return st, nil
}

// SetHighThreshold applies and persists the HIGH tier boundary.
func (s *Scheduler) SetHighThreshold(ctx context.Context, high int) error {
	if err := s.scorer.SetHighThreshold(high); err != nil {
		return err
	}
	if err := s.store.Settings.SetSetting(ctx, database.SettingHighThreshold, strconv.Itoa(high)); err != nil {
		return fmt.Errorf("failed to persist high threshold: %w", err)
	}
	slog.Info("High threshold changed", "high", high)
	return nil
}

func (s *Scheduler) Recent(ctx context.Context, n int) ([]listing.Scored, error) {
	return s.store.Listings.Recent(ctx, n)
}

func (s *Scheduler) StatsByModel(ctx context.Context) (map[string]int, error) {
	return s.store.Listings.StatsByModel(ctx)
}

func (s *Scheduler) Stats(ctx context.Context) (Stats, error) {
	now := s.now()
	totals, err := s.store.Listings.Totals(ctx, now)
	if err != nil {
		return Stats{}, err
	}
	models, err := s.store.Listings.ModelStats(ctx)
	if err != nil {
		return Stats{}, err
	}
	daily, err := s.store.Listings.DailyStats(ctx, 7, now)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Totals: totals, Models: models, Daily: daily}, nil
}

func (s *Scheduler) Criteria() []config.Criteria {
	return s.config.Current().Search.Searches
}

// RunNow runs a cycle immediately, regardless of the monitoring flag.
func (s *Scheduler) RunNow(_ context.Context) (cycle.Result, error) {
	return s.execute()
}

func onOff(on bool) string {
	if on {
		return "active"
	}
	return "en pause"
}
