package api

import (
	"time"

	"github.com/lysyi3m/auto-comb/app/listing"
	"github.com/lysyi3m/auto-comb/app/feed"
	"github.com/lysyi3m/auto-comb/app/scheduler"
)

type Handler struct {
	ctrl    scheduler.Controller
	feed    *feed.Generator
	version string
	now     func() time.Time
}

type listingResponse struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	URL          string           `json:"url"`
	Brand        string           `json:"brand"`
	Model        string           `json:"model"`
	PriceEuros   *int64           `json:"price_eur"`
	Mileage      *int             `json:"mileage_km"`
	Year         *int             `json:"year"`
	Fuel         string           `json:"fuel"`
	Transmission string           `json:"transmission"`
	Location     string           `json:"location,omitempty"`
	ImageURL     string           `json:"image_url,omitempty"`
	PublishedAt  *time.Time       `json:"published_at,omitempty"`
	Score        int              `json:"score"`
	Tier         string           `json:"tier"`
	Criteria     string           `json:"criteria"`
	Signals      []listing.Signal `json:"signals"`
	CycleID      string           `json:"cycle_id"`
	CreatedAt    time.Time        `json:"created_at"`
}

type thresholdRequest struct {
	High *int `json:"high" binding:"required"`
}

func toListingResponse(s listing.Scored) listingResponse {
	r := s.Record
	resp := listingResponse{
		ID:           r.ID,
		Title:        r.Title,
		URL:          r.URL,
		Brand:        r.Brand,
		Model:        r.Model,
		Fuel:         string(r.Fuel),
		Transmission: string(r.Transmission),
		Location:     r.Location,
		ImageURL:     r.ImageURL,
		Score:        s.Score,
		Tier:         string(s.Tier),
		Criteria:     s.Criteria,
		Signals:      s.Signals,
		CycleID:      s.CycleID,
		CreatedAt:    s.CreatedAt,
	}
	if resp.Signals == nil {
		resp.Signals = []listing.Signal{}
	}
	if r.HasPrice() {
		euros := r.PriceEuros()
		resp.PriceEuros = &euros
	}
	if r.HasMileage() {
		mileage := r.Mileage
		resp.Mileage = &mileage
	}
	if r.HasYear() {
		year := r.Year
		resp.Year = &year
	}
	if !r.PublishedAt.IsZero() {
		published := r.PublishedAt
		resp.PublishedAt = &published
	}
	return resp
}
