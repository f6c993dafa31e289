package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/lysyi3m/auto-comb/app/config"
	"github.com/lysyi3m/auto-comb/app/listing"
)

type Reason string

const (
	ReasonNoMatchingCriteria Reason = "no_matching_criteria"
	ReasonExcluded           Reason = "excluded"
	ReasonOutOfBounds        Reason = "out_of_bounds"
	ReasonCriteriaMismatch   Reason = "criteria_mismatch"
)

// Verdict is the outcome of evaluating one record.
type Verdict struct {
	Accepted bool
	Criteria *config.Criteria
	Reason   Reason
	Detail   string
}

func accepted(c *config.Criteria) Verdict {
	return Verdict{Accepted: true, Criteria: c}
}

func rejected(reason Reason, format string, args ...interface{}) Verdict {
	return Verdict{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Engine applies criteria bounds and exclusion rules. Exclusions veto before any bound is considered.
type Engine struct {
	patterns sync.Map // pattern -> *regexp.Regexp
}

func NewEngine() *Engine {
	return &Engine{}
}

// Evaluate accepts r under the first criteria, in configured order, whose brand and model
// match and whose bounds hold. Unknown numeric fields never fail a bound.
func (e *Engine) Evaluate(r listing.Record, criteria []config.Criteria, rules config.Rules) Verdict {
	var candidates []*config.Criteria
	for i := range criteria {
		c := &criteria[i]
		if BrandMatches(r, c.Brand) && ModelMatches(r, c.Brand, c.Model) {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return rejected(ReasonNoMatchingCriteria, "no criteria for %s", describe(r))
	}

	if excluded, detail := e.excluded(r, rules); excluded {
		return rejected(ReasonExcluded, "%s", detail)
	}

	var first Verdict
	for i, c := range candidates {
		v := checkCriteria(r, c)
		if v.Accepted {
			return v
		}
		if i == 0 {
			first = v
		}
	}
	return first
}

func checkCriteria(r listing.Record, c *config.Criteria) Verdict {
	if c.Fuel != "" {
		want := listing.ParseFuel(c.Fuel)
		if r.Fuel != listing.FuelUnknown && r.Fuel != want {
			return rejected(ReasonCriteriaMismatch, "%s: fuel %s, want %s", c.Name, r.Fuel, want)
		}
	}
	if c.Transmission != "" {
		want := listing.ParseTransmission(c.Transmission)
		if r.Transmission != listing.TransmissionUnknown && r.Transmission != want {
			return rejected(ReasonCriteriaMismatch, "%s: transmission %s, want %s", c.Name, r.Transmission, want)
		}
	}

	if r.HasPrice() && r.Price > listing.Euros(c.MaxPrice) {
		return rejected(ReasonOutOfBounds, "%s: price %d > %d", c.Name, r.PriceEuros(), c.MaxPrice)
	}
	if r.HasMileage() && r.Mileage > c.MaxMileage {
		return rejected(ReasonOutOfBounds, "%s: mileage %d > %d", c.Name, r.Mileage, c.MaxMileage)
	}
	if r.HasYear() && r.Year < c.MinYear {
		return rejected(ReasonOutOfBounds, "%s: year %d < %d", c.Name, r.Year, c.MinYear)
	}

	return accepted(c)
}

func (e *Engine) excluded(r listing.Record, rules config.Rules) (bool, string) {
	text := r.Text()

	categories := make([]string, 0, len(rules.Blacklist))
	for category := range rules.Blacklist {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	for _, category := range categories {
		if phrase := listing.FirstMatch(text, rules.Blacklist[category]); phrase != "" {
			return true, fmt.Sprintf("blacklisted phrase '%s' (%s)", phrase, category)
		}
	}

	for _, ex := range rules.Exclusions {
		if !BrandMatches(r, ex.Brand) {
			continue
		}
		if ex.Model != "" && !ModelMatches(r, ex.Brand, ex.Model) {
			continue
		}
		if matched, detail := e.exclusionMatch(r, text, ex); matched {
			if ex.Reason != "" {
				detail += ": " + ex.Reason
			}
			return true, detail
		}
	}

	return false, ""
}

func (e *Engine) exclusionMatch(r listing.Record, text string, ex config.Exclusion) (bool, string) {
	if phrase := listing.FirstMatch(text, ex.Allow); phrase != "" {
		return false, ""
	}

	scope := strings.TrimSpace(ex.Brand + " " + ex.Model)

	if phrase := listing.FirstMatch(text, ex.Engines); phrase != "" {
		return true, fmt.Sprintf("%s engine '%s'", scope, phrase)
	}
	if phrase := listing.FirstMatch(text, ex.Transmissions); phrase != "" {
		return true, fmt.Sprintf("%s transmission '%s'", scope, phrase)
	}
	if phrase := listing.FirstMatch(text, ex.Keywords); phrase != "" {
		return true, fmt.Sprintf("%s keyword '%s'", scope, phrase)
	}
	for _, fuel := range ex.Fuels {
		if r.Fuel != listing.FuelUnknown && r.Fuel == listing.ParseFuel(fuel) {
			return true, fmt.Sprintf("%s fuel %s", scope, r.Fuel)
		}
	}
	if len(ex.Patterns) > 0 {
		normalized := listing.Normalize(text)
		for _, pattern := range ex.Patterns {
			re := e.compile(pattern)
			if re != nil && re.MatchString(normalized) {
				return true, fmt.Sprintf("%s pattern '%s'", scope, pattern)
			}
		}
	}

	return false, ""
}

// compile caches patterns; they are validated when the rules are loaded.
func (e *Engine) compile(pattern string) *regexp.Regexp {
	if cached, ok := e.patterns.Load(pattern); ok {
		return cached.(*regexp.Regexp)
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil
	}
	e.patterns.Store(pattern, re)
	return re
}

func describe(r listing.Record) string {
	if key := listing.ModelKey(r.Brand, r.Model); key != "" {
		return key
	}
	return fmt.Sprintf("'%s'", r.Title)
}
