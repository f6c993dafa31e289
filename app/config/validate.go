package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lysyi3m/auto-comb/app/listing"
)

// ValidationError reports the first invalid value found in a configuration.
type ValidationError struct {
	File  string
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config %s: %s %s", e.File, e.Field, e.Msg)
}

func invalid(file, field, format string, args ...interface{}) error {
	return &ValidationError{File: file, Field: field, Msg: fmt.Sprintf(format, args...)}
}

// Validate checks a configuration snapshot; defaults must already be applied.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if err := validateSearch(&cfg.Search); err != nil {
		return err
	}
	return validateRules(&cfg.Rules)
}

func validateSearch(s *Search) error {
	g := s.General
	nonNegativeFields := map[string]int{
		"general.check_interval_minutes": g.CheckIntervalMinutes,
		"general.request_delay_min":      g.RequestDelayMin,
		"general.request_delay_max":      g.RequestDelayMax,
		"general.request_timeout":        g.RequestTimeout,
		"retry.rate_limit_attempts":      s.Retry.RateLimitAttempts,
		"retry.backoff_base":             s.Retry.BackoffBase,
		"retry.backoff_max":              s.Retry.BackoffMax,
		"retry.network_attempts":         s.Retry.NetworkAttempts,
		"retry.network_delay":            s.Retry.NetworkDelay,
	}
	for field, value := range nonNegativeFields {
		if value < 0 {
			return invalid(CriteriaFile, field, "must be non-negative, got %d", value)
		}
	}

	if g.CheckIntervalMinutes < 1 {
		return invalid(CriteriaFile, "general.check_interval_minutes", "must be at least 1")
	}
	if g.RequestTimeout < 1 {
		return invalid(CriteriaFile, "general.request_timeout", "must be at least 1")
	}
	if g.RequestDelayMin > g.RequestDelayMax {
		return invalid(CriteriaFile, "general.request_delay_min", "must not exceed request_delay_max (%d > %d)", g.RequestDelayMin, g.RequestDelayMax)
	}
	if s.Retry.BackoffBase > s.Retry.BackoffMax {
		return invalid(CriteriaFile, "retry.backoff_base", "must not exceed backoff_max")
	}
	if s.Retry.BackoffFactor < 1 {
		return invalid(CriteriaFile, "retry.backoff_factor", "must be at least 1, got %g", s.Retry.BackoffFactor)
	}
	if err := ValidateThresholds(s.Thresholds.High, s.Thresholds.Medium); err != nil {
		return invalid(CriteriaFile, "thresholds", "%v", err)
	}

	if len(s.Searches) == 0 {
		return invalid(CriteriaFile, "searches", "must contain at least one entry")
	}

	names := make(map[string]bool)
	for i, c := range s.Searches {
		field := fmt.Sprintf("searches[%d]", i)
		if strings.TrimSpace(c.Brand) == "" {
			return invalid(CriteriaFile, field+".brand", "is required")
		}
		if strings.TrimSpace(c.Model) == "" {
			return invalid(CriteriaFile, field+".model", "is required")
		}
		if c.MaxPrice <= 0 {
			return invalid(CriteriaFile, field+".max_price", "must be positive")
		}
		if c.MaxMileage <= 0 {
			return invalid(CriteriaFile, field+".max_mileage", "must be positive")
		}
		if c.MinYear < 1950 || c.MinYear > 2100 {
			return invalid(CriteriaFile, field+".min_year", "must be a model year, got %d", c.MinYear)
		}
		if c.Fuel != "" && listing.ParseFuel(c.Fuel) == listing.FuelUnknown {
			return invalid(CriteriaFile, field+".fuel", "unsupported value %q", c.Fuel)
		}
		if c.Transmission != "" && listing.ParseTransmission(c.Transmission) == listing.TransmissionUnknown {
			return invalid(CriteriaFile, field+".transmission", "unsupported value %q", c.Transmission)
		}
		key := listing.Normalize(c.Name)
		if names[key] {
			return invalid(CriteriaFile, field+".name", "duplicate name %q", c.Name)
		}
		names[key] = true
	}

	return nil
}

func validateRules(r *Rules) error {
	for category, phrases := range r.Blacklist {
		for i, phrase := range phrases {
			if strings.TrimSpace(phrase) == "" {
				return invalid(RulesFile, fmt.Sprintf("blacklist.%s[%d]", category, i), "must not be empty")
			}
		}
	}

	for i, e := range r.Exclusions {
		field := fmt.Sprintf("exclusions[%d]", i)
		if strings.TrimSpace(e.Brand) == "" {
			return invalid(RulesFile, field+".brand", "is required")
		}
		if len(e.Engines)+len(e.Transmissions)+len(e.Keywords)+len(e.Fuels)+len(e.Patterns) == 0 {
			return invalid(RulesFile, field, "must define at least one of engines, transmissions, keywords, fuels or patterns")
		}
		for j, pattern := range e.Patterns {
			if _, err := regexp.Compile("(?i)" + pattern); err != nil {
				return invalid(RulesFile, fmt.Sprintf("%s.patterns[%d]", field, j), "is not a valid expression: %v", err)
			}
		}
		for _, list := range [][]string{e.Engines, e.Transmissions, e.Keywords, e.Allow} {
			for _, phrase := range list {
				if strings.TrimSpace(phrase) == "" {
					return invalid(RulesFile, field, "contains an empty phrase")
				}
			}
		}
		for _, fuel := range e.Fuels {
			if listing.ParseFuel(fuel) == listing.FuelUnknown {
				return invalid(RulesFile, field+".fuels", "unsupported value %q", fuel)
			}
		}
	}

	for i, sig := range r.Signals {
		field := fmt.Sprintf("signals[%d]", i)
		if strings.TrimSpace(sig.Name) == "" {
			return invalid(RulesFile, field+".name", "is required")
		}
		if sig.Delta == 0 {
			return invalid(RulesFile, field+".delta", "must not be zero")
		}
		if sig.Model != "" && sig.Brand == "" {
			return invalid(RulesFile, field+".model", "requires a brand")
		}
		if sig.Brand == "" && len(sig.Keywords) == 0 && sig.Fuel == "" && sig.Transmission == "" &&
			sig.PriceBelow == 0 && sig.MileageBelow == 0 && sig.YearFrom == 0 {
			return invalid(RulesFile, field, "must define at least one condition")
		}
		if sig.Fuel != "" && listing.ParseFuel(sig.Fuel) == listing.FuelUnknown {
			return invalid(RulesFile, field+".fuel", "unsupported value %q", sig.Fuel)
		}
		if sig.Transmission != "" && listing.ParseTransmission(sig.Transmission) == listing.TransmissionUnknown {
			return invalid(RulesFile, field+".transmission", "unsupported value %q", sig.Transmission)
		}
		if sig.PriceBelow < 0 || sig.MileageBelow < 0 || sig.YearFrom < 0 {
			return invalid(RulesFile, field, "bounds must be non-negative")
		}
	}

	return nil
}

// ValidateThresholds checks a HIGH/MEDIUM pair; the operator threshold range is 0..100.
func ValidateThresholds(high, medium int) error {
	if high < 0 || high > 100 {
		return fmt.Errorf("high threshold must be between 0 and 100, got %d", high)
	}
	if medium > high {
		return fmt.Errorf("medium threshold %d must not exceed high threshold %d", medium, high)
	}
	return nil
}
