package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lysyi3m/auto-comb/app/listing"
)

type recordingNotifier struct {
	dispatched int
	failures   int
	err        error
}

var _ Notifier = (*recordingNotifier)(nil)

func (r *recordingNotifier) Dispatch(context.Context, []listing.Scored) error {
	r.dispatched++
	return r.err
}

func (r *recordingNotifier) ReportFailure(context.Context, string, error) error {
	r.failures++
	return r.err
}

func (r *recordingNotifier) Announce(context.Context, string) error {
	return r.err
}

func scored() listing.Scored {
	return listing.Scored{
		Record: listing.Record{
			ID:      "1",
			Title:   "Mazda 2",
			Price:   listing.Euros(2000),
			Mileage: 80000,
			Year:    2011,
			URL:     "https://example.test/ad/1",
		},
		Score:   17,
		Tier:    listing.TierHigh,
		Signals: []listing.Signal{{Name: "Mazda 2 essence", Delta: 10}, {Name: "high mileage", Delta: -2}},
	}
}

func TestStyleFor(t *testing.T) {
	tests := []struct {
		tier listing.Tier
		want Style
	}{
		{listing.TierHigh, StyleAudible},
		{listing.TierMedium, StyleStandard},
		{listing.TierLow, StyleSilent},
	}
	for _, tt := range tests {
		if got := StyleFor(tt.tier); got != tt.want {
			t.Errorf("StyleFor(%s): expected %s, got %s", tt.tier, tt.want, got)
		}
	}
}

func TestFormatting(t *testing.T) {
	s := scored()

	if got := Price(s.Record); got != "2 000 €" {
		t.Errorf("Expected '2 000 €', got %q", got)
	}
	if got := Mileage(s.Record); got != "80 000 km" {
		t.Errorf("Expected '80 000 km', got %q", got)
	}
	if got := Signals(s.Signals); got != "+10 Mazda 2 essence, -2 high mileage" {
		t.Errorf("Unexpected signals rendering: %q", got)
	}

	s.Record.Price = listing.Unknown
	s.Record.Mileage = listing.Unknown
	s.Record.Year = listing.Unknown
	if Price(s.Record) != "?" || Mileage(s.Record) != "?" || Year(s.Record) != "?" {
		t.Error("Expected unknown values to render as '?'")
	}
}

func TestAge(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := listing.Record{PublishedAt: now.Add(-3 * time.Hour)}

	if got := Age(r, now); got != "3 hours ago" {
		t.Errorf("Expected '3 hours ago', got %q", got)
	}
	if got := Age(listing.Record{}, now); got != "" {
		t.Errorf("Expected empty age for unknown date, got %q", got)
	}
}

func TestLogNotifierWritesSummaries(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(&buf)

	if err := n.Dispatch(context.Background(), []listing.Scored{scored()}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "[HIGH 17] Mazda 2") {
		t.Errorf("Expected summary line, got %q", out)
	}
	if !strings.Contains(out, "+10 Mazda 2 essence") {
		t.Errorf("Expected signals line, got %q", out)
	}

	buf.Reset()
	n.ReportFailure(context.Background(), "c1", errors.New("rate limited"))
	if !strings.Contains(buf.String(), "cycle c1 failed: rate limited") {
		t.Errorf("Expected failure line, got %q", buf.String())
	}
}

func TestMultiReachesEveryNotifier(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("channel down")}
	healthy := &recordingNotifier{}
	m := Multi{failing, healthy}

	err := m.Dispatch(context.Background(), []listing.Scored{scored()})
	if err == nil {
		t.Error("Expected the failing channel's error")
	}
	if failing.dispatched != 1 || healthy.dispatched != 1 {
		t.Errorf("Expected both notifiers to be called, got %d and %d", failing.dispatched, healthy.dispatched)
	}

	if err := (Multi{healthy}).ReportFailure(context.Background(), "c1", errors.New("x")); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if healthy.failures != 1 {
		t.Errorf("Expected failure to be reported, got %d", healthy.failures)
	}
}
