package scoring

import (
	"fmt"
	"sync"

	"github.com/lysyi3m/auto-comb/app/config"
	"github.com/lysyi3m/auto-comb/app/listing"
	"github.com/lysyi3m/auto-comb/app/rules"
)

// Thresholds map a score to a tier: above High is HIGH, from Medium to High inclusive is MEDIUM.
type Thresholds struct {
	High   int
	Medium int
}

func (t Thresholds) Tier(score int) listing.Tier {
	switch {
	case score > t.High:
		return listing.TierHigh
	case score >= t.Medium:
		return listing.TierMedium
	default:
		return listing.TierLow
	}
}

type Result struct {
	Score   int
	Tier    listing.Tier
	Signals []listing.Signal
}

// Scorer sums the deltas of every matching signal. It is safe for concurrent use.
type Scorer struct {
	mu             sync.RWMutex
	signals        []config.Signal
	thresholds     Thresholds
	highOverridden bool
}

func New(signals []config.Signal, thresholds Thresholds) *Scorer {
	return &Scorer{
		signals:    signals,
		thresholds: thresholds,
	}
}

func (s *Scorer) Score(r listing.Record) (int, listing.Tier) {
	res := s.Evaluate(r)
	return res.Score, res.Tier
}

// Evaluate returns the score, tier and the signals that contributed to it.
func (s *Scorer) Evaluate(r listing.Record) Result {
	s.mu.RLock()
	signals := s.signals
	thresholds := s.thresholds
	s.mu.RUnlock()

	var res Result
	for _, sig := range signals {
		if Matches(sig, r) {
			res.Score += sig.Delta
			res.Signals = append(res.Signals, listing.Signal{Name: sig.Name, Delta: sig.Delta})
		}
	}
	res.Tier = thresholds.Tier(res.Score)
	return res
}

func (s *Scorer) Thresholds() Thresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.thresholds
}

// SetHighThreshold changes the HIGH boundary at runtime. It survives Reconfigure.
func (s *Scorer) SetHighThreshold(high int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := config.ValidateThresholds(high, s.thresholds.Medium); err != nil {
		return fmt.Errorf("invalid high threshold: %w", err)
	}
	s.thresholds.High = high
	s.highOverridden = true
	return nil
}

// Reconfigure swaps in reloaded signals and thresholds, keeping an operator-set HIGH threshold.
func (s *Scorer) Reconfigure(signals []config.Signal, thresholds Thresholds) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.signals = signals
	if !s.highOverridden {
		s.thresholds.High = thresholds.High
	}
	s.thresholds.Medium = thresholds.Medium
	if s.thresholds.Medium > s.thresholds.High {
		s.thresholds.Medium = s.thresholds.High
	}
}

// Matches reports whether every condition set on sig holds for r. Unknown fields never match.
func Matches(sig config.Signal, r listing.Record) bool {
	if sig.Brand != "" && !rules.BrandMatches(r, sig.Brand) {
		return false
	}
	if sig.Model != "" && !rules.ModelMatches(r, sig.Brand, sig.Model) {
		return false
	}
	if len(sig.Keywords) > 0 && listing.FirstMatch(r.Text(), sig.Keywords) == "" {
		return false
	}
	if sig.Fuel != "" {
		want := listing.ParseFuel(sig.Fuel)
		if want == listing.FuelUnknown || r.Fuel != want {
			return false
		}
	}
	if sig.Transmission != "" {
		want := listing.ParseTransmission(sig.Transmission)
		if want == listing.TransmissionUnknown || r.Transmission != want {
			return false
		}
	}
	if sig.PriceBelow > 0 && (!r.HasPrice() || r.Price >= listing.Euros(sig.PriceBelow)) {
		return false
	}
	if sig.MileageBelow > 0 && (!r.HasMileage() || r.Mileage >= sig.MileageBelow) {
		return false
	}
	if sig.YearFrom > 0 && (!r.HasYear() || r.Year < sig.YearFrom) {
		return false
	}
	return true
}
