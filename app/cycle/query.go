package cycle

import (
	"github.com/lysyi3m/auto-comb/app/config"
	"github.com/lysyi3m/auto-comb/app/listing"
	"github.com/lysyi3m/auto-comb/app/transport"
)

// QueryFor turns a search criteria into the marketplace query that retrieves its candidates.
func QueryFor(c config.Criteria) transport.Query {
	return transport.Query{
		Brand:        c.Brand,
		Model:        c.Model,
		MaxPrice:     c.MaxPrice,
		MaxMileage:   c.MaxMileage,
		MinYear:      c.MinYear,
		Fuel:         fuelOrEmpty(c.Fuel),
		Transmission: transmissionOrEmpty(c.Transmission),
	}
}

// PacingFor maps the general and retry sections onto fetcher pacing.
func PacingFor(s config.Search) transport.Pacing {
	delayMin, delayMax := s.General.DelayRange()
	return transport.Pacing{
		DelayMin: delayMin,
		DelayMax: delayMax,
		Timeout:  s.General.Timeout(),
		RateLimit: transport.BackoffPolicy{
			Base:     s.Retry.Base(),
			Max:      s.Retry.Max(),
			Factor:   s.Retry.BackoffFactor,
			Attempts: s.Retry.RateLimitAttempts,
		},
		Network: transport.BackoffPolicy{
			Base:     s.Retry.NetworkStep(),
			Linear:   true,
			Attempts: s.Retry.NetworkAttempts,
		},
	}
}

// fuelOrEmpty leaves the search unrefined when the configured value is blank or unknown.
func fuelOrEmpty(value string) listing.Fuel {
	if f := listing.ParseFuel(value); f != listing.FuelUnknown {
		return f
	}
	return ""
}

func transmissionOrEmpty(value string) listing.Transmission {
	if t := listing.ParseTransmission(value); t != listing.TransmissionUnknown {
		return t
	}
	return ""
}
