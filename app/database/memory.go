package database

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/lysyi3m/auto-comb/app/listing"
)

// MemoryStore implements every repository in process memory. It backs dry runs and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	seen     map[string]time.Time
	listings []listing.Scored
	ids      map[string]bool
	notified map[string]time.Time
	settings map[string]string
	cycles   []CycleRun
}

var (
	_ SeenRepository     = (*MemoryStore)(nil)
	_ ListingRepository  = (*MemoryStore)(nil)
	_ SettingsRepository = (*MemoryStore)(nil)
	_ CycleRepository    = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		seen:     make(map[string]time.Time),
		ids:      make(map[string]bool),
		notified: make(map[string]time.Time),
		settings: make(map[string]string),
	}
}

func (m *MemoryStore) Contains(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.seen[id]
	return ok, nil
}

func (m *MemoryStore) Record(_ context.Context, id string, seenAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[id]; !ok {
		m.seen[id] = seenAt
	}
	return nil
}

func (m *MemoryStore) RecordAll(_ context.Context, ids []string, seenAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if _, ok := m.seen[id]; !ok {
			m.seen[id] = seenAt
		}
	}
	return nil
}

func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.seen), nil
}

func (m *MemoryStore) Save(_ context.Context, s listing.Scored) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ids[s.Record.ID] {
		return nil
	}
	m.ids[s.Record.ID] = true
	m.listings = append(m.listings, s)
	return nil
}

func (m *MemoryStore) Recent(_ context.Context, n int) ([]listing.Scored, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n <= 0 {
		return nil, nil
	}

	out := slices.Clone(m.listings)
	// Stable sort keeps insertion order for equal timestamps; reverse it so the newest comes first.
	slices.Reverse(out)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *MemoryStore) Unnotified(_ context.Context, limit int) ([]listing.Scored, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		return nil, nil
	}

	var out []listing.Scored
	for _, s := range m.listings {
		if _, ok := m.notified[s.Record.ID]; !ok {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) MarkNotified(_ context.Context, ids []string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if !m.ids[id] {
			continue
		}
		if _, ok := m.notified[id]; !ok {
			m.notified[id] = at
		}
	}
	return nil
}

func (m *MemoryStore) StatsByModel(ctx context.Context) (map[string]int, error) {
	stats, _ := m.ModelStats(ctx)
	out := make(map[string]int, len(stats))
	for _, st := range stats {
		out[st.Model] = st.Count
	}
	return out, nil
}

func (m *MemoryStore) ModelStats(_ context.Context) ([]ModelStat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type acc struct {
		count, priced     int
		scoreSum, centSum float64
	}
	byModel := make(map[string]*acc)
	for _, s := range m.listings {
		key := statsKey(s)
		a, ok := byModel[key]
		if !ok {
			a = &acc{}
			byModel[key] = a
		}
		a.count++
		a.scoreSum += float64(s.Score)
		if s.Record.HasPrice() {
			a.priced++
			a.centSum += float64(s.Record.Price)
		}
	}

	out := make([]ModelStat, 0, len(byModel))
	for key, a := range byModel {
		st := ModelStat{Model: key, Count: a.count, AvgScore: a.scoreSum / float64(a.count)}
		if a.priced > 0 {
			st.AvgPrice = a.centSum / float64(a.priced) / 100
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Model < out[j].Model
	})
	return out, nil
}

func (m *MemoryStore) Totals(_ context.Context, now time.Time) (Totals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t := Totals{Total: len(m.listings), SeenCount: len(m.seen)}
	cutoff := now.Add(-24 * time.Hour)
	var sum float64
	for _, s := range m.listings {
		if s.Tier == listing.TierHigh {
			t.High++
		}
		if !s.CreatedAt.Before(cutoff) {
			t.Last24h++
		}
		sum += float64(s.Score)
	}
	if t.Total > 0 {
		t.AvgScore = sum / float64(t.Total)
	}
	return t, nil
}

func (m *MemoryStore) DailyStats(_ context.Context, days int, now time.Time) ([]DailyStat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if days <= 0 {
		return nil, nil
	}

	since := now.UTC().AddDate(0, 0, -(days - 1)).Truncate(24 * time.Hour)
	counts := make(map[string]int)
	sums := make(map[string]float64)
	for _, s := range m.listings {
		created := s.CreatedAt.UTC()
		if created.Before(since) {
			continue
		}
		day := created.Format("2006-01-02")
		counts[day]++
		sums[day] += float64(s.Score)
	}

	out := make([]DailyStat, 0, len(counts))
	for day, c := range counts {
		out = append(out, DailyStat{Day: day, Count: c, AvgScore: sums[day] / float64(c)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out, nil
}

func (m *MemoryStore) GetSetting(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.settings[key]
	return v, ok, nil
}

func (m *MemoryStore) SetSetting(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}

func (m *MemoryStore) SaveCycle(_ context.Context, run CycleRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.cycles {
		if m.cycles[i].ID == run.ID {
			m.cycles[i] = run
			return nil
		}
	}
	m.cycles = append(m.cycles, run)
	return nil
}

func (m *MemoryStore) LastCycle(_ context.Context) (*CycleRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.cycles) == 0 {
		return nil, nil
	}
	last := m.cycles[0]
	for _, c := range m.cycles[1:] {
		if !c.StartedAt.Before(last.StartedAt) {
			last = c
		}
	}
	return &last, nil
}
