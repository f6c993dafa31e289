package transport

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/lysyi3m/auto-comb/app/listing"
)

// Query is one marketplace search.
type Query struct {
	Brand        string
	Model        string
	MaxPrice     int64 // euros
	MaxMileage   int
	MinYear      int
	Fuel         listing.Fuel
	Transmission listing.Transmission
}

var fuelCodes = map[listing.Fuel]string{
	listing.FuelPetrol: "1",
	listing.FuelDiesel: "2",
}

var gearboxCodes = map[listing.Transmission]string{
	listing.TransmissionManual:    "1",
	listing.TransmissionAutomatic: "2",
}

// URL builds the search page URL, newest listings first.
func (q Query) URL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid base URL %q: scheme and host are required", base)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/recherche"

	v := url.Values{}
	v.Set("category", "2")
	v.Set("sort", "time")
	v.Set("order", "desc")
	v.Set("owner_type", "all")
	if q.Brand != "" {
		v.Set("brand", listing.Normalize(q.Brand))
	}
	if q.Model != "" {
		v.Set("model", listing.Normalize(q.Model))
	}
	if q.MaxPrice > 0 {
		v.Set("price", fmt.Sprintf("0-%d", q.MaxPrice))
	}
	if q.MaxMileage > 0 {
		v.Set("mileage", fmt.Sprintf("0-%d", q.MaxMileage))
	}
	if q.MinYear > 0 {
		v.Set("regdate", fmt.Sprintf("%d-max", q.MinYear))
	}
	if code, ok := fuelCodes[q.Fuel]; ok {
		v.Set("fuel", code)
	}
	if code, ok := gearboxCodes[q.Transmission]; ok {
		v.Set("gearbox", code)
	}

	u.RawQuery = v.Encode()
	return u.String(), nil
}

func (q Query) String() string {
	return strings.TrimSpace(q.Brand + " " + q.Model)
}
