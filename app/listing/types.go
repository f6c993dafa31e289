package listing

import (
	"strings"
	"time"
)

// Unknown marks an integer field the marketplace did not provide.
const Unknown = -1

type Fuel string

const (
	FuelPetrol  Fuel = "petrol"
	FuelDiesel  Fuel = "diesel"
	FuelUnknown Fuel = "unknown"
)

type Transmission string

const (
	TransmissionManual    Transmission = "manual"
	TransmissionAutomatic Transmission = "automatic"
	TransmissionUnknown   Transmission = "unknown"
)

type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// Record is a single listing as extracted from a search page.
type Record struct {
	ID           string
	Title        string
	Description  string
	Price        int64 // euro cents
	Mileage      int   // kilometers
	Year         int
	Brand        string // normalized
	Model        string // normalized
	Transmission Transmission
	Fuel         Fuel
	Gearbox      string // raw marketplace label
	FuelLabel    string // raw marketplace label
	Engine       string
	Location     string
	ImageURL     string
	URL          string
	PublishedAt  time.Time
}

func (r Record) HasPrice() bool   { return r.Price != Unknown }
func (r Record) HasMileage() bool { return r.Mileage != Unknown }
func (r Record) HasYear() bool    { return r.Year != Unknown }

// Text is the free text searched by exclusion rules and keyword signals.
func (r Record) Text() string {
	parts := []string{r.Title, r.Description}
	if r.Engine != "" {
		parts = append(parts, r.Engine)
	}
	if r.Gearbox != "" {
		parts = append(parts, r.Gearbox)
	}
	return strings.Join(parts, " ")
}

// PriceEuros returns the price in whole euros, or Unknown.
func (r Record) PriceEuros() int64 {
	if !r.HasPrice() {
		return Unknown
	}
	return r.Price / 100
}

// Signal is one matched score contribution.
type Signal struct {
	Name  string `json:"name"`
	Delta int    `json:"delta"`
}

// Scored is an accepted listing annotated with its score. It is never mutated once built.
type Scored struct {
	Record    Record
	Score     int
	Tier      Tier
	Criteria  string
	Priority  int
	Signals   []Signal
	CycleID   string
	CreatedAt time.Time
}

func (s Scored) Bonuses() []Signal {
	var out []Signal
	for _, sig := range s.Signals {
		if sig.Delta > 0 {
			out = append(out, sig)
		}
	}
	return out
}

func (s Scored) Penalties() []Signal {
	var out []Signal
	for _, sig := range s.Signals {
		if sig.Delta < 0 {
			out = append(out, sig)
		}
	}
	return out
}

// Euros converts a whole-euro amount to cents.
func Euros(amount int64) int64 {
	return amount * 100
}

// ModelKey is the key used for per-model statistics, e.g. "mazda 2".
func ModelKey(brand, model string) string {
	return strings.TrimSpace(Normalize(brand) + " " + Normalize(model))
}

func ParseFuel(s string) Fuel {
	switch Normalize(s) {
	case "petrol", "essence", "1":
		return FuelPetrol
	case "diesel", "2":
		return FuelDiesel
	default:
		return FuelUnknown
	}
}

func ParseTransmission(s string) Transmission {
	switch Normalize(s) {
	case "manual", "manuelle", "1":
		return TransmissionManual
	case "automatic", "automatique", "2":
		return TransmissionAutomatic
	default:
		return TransmissionUnknown
	}
}
