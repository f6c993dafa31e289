package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lysyi3m/auto-comb/app/listing"
)

const unknownValue = "?"

func Price(r listing.Record) string {
	if !r.HasPrice() {
		return unknownValue
	}
	return humanize.FormatInteger("# ###.", int(r.PriceEuros())) + " €"
}

func Mileage(r listing.Record) string {
	if !r.HasMileage() {
		return unknownValue
	}
	return humanize.FormatInteger("# ###.", r.Mileage) + " km"
}

func Year(r listing.Record) string {
	if !r.HasYear() {
		return unknownValue
	}
	return fmt.Sprintf("%d", r.Year)
}

// Age renders the publication date relative to now, e.g. "3 hours ago".
func Age(r listing.Record, now time.Time) string {
	if r.PublishedAt.IsZero() {
		return ""
	}
	return humanize.RelTime(r.PublishedAt, now, "ago", "from now")
}

func Emoji(tier listing.Tier) string {
	switch tier {
	case listing.TierHigh:
		return "🔥"
	case listing.TierMedium:
		return "⭐"
	default:
		return "📋"
	}
}

// Signals lists matched contributions as "+10 Mazda 2 essence, -2 high mileage".
func Signals(signals []listing.Signal) string {
	parts := make([]string, 0, len(signals))
	for _, sig := range signals {
		parts = append(parts, fmt.Sprintf("%+d %s", sig.Delta, sig.Name))
	}
	return strings.Join(parts, ", ")
}

// Summary is the one-line rendering used in logs and plain-text channels.
func Summary(s listing.Scored) string {
	r := s.Record
	return fmt.Sprintf("%s [%s %d] %s | %s | %s | %s | %s",
		Emoji(s.Tier), strings.ToUpper(string(s.Tier)), s.Score, r.Title,
		Price(r), Mileage(r), Year(r), r.URL)
}
