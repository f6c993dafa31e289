package notify

import (
	"context"
	"errors"

	"github.com/lysyi3m/auto-comb/app/listing"
)

// Style is how loudly a listing is announced.
type Style string

const (
	StyleAudible  Style = "audible"
	StyleStandard Style = "standard"
	StyleSilent   Style = "silent"
)

func StyleFor(tier listing.Tier) Style {
	switch tier {
	case listing.TierHigh:
		return StyleAudible
	case listing.TierMedium:
		return StyleStandard
	default:
		return StyleSilent
	}
}

// Notifier delivers cycle output to an operator channel.
type Notifier interface {
	Dispatch(ctx context.Context, batch []listing.Scored) error
	ReportFailure(ctx context.Context, cycleID string, err error) error
	Announce(ctx context.Context, message string) error
}

// Multi fans out to every notifier; one failing channel does not stop the others.
type Multi []Notifier

var _ Notifier = Multi(nil)

func (m Multi) Dispatch(ctx context.Context, batch []listing.Scored) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.Dispatch(ctx, batch))
	}
	return errors.Join(errs...)
}

func (m Multi) ReportFailure(ctx context.Context, cycleID string, err error) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.ReportFailure(ctx, cycleID, err))
	}
	return errors.Join(errs...)
}

func (m Multi) Announce(ctx context.Context, message string) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.Announce(ctx, message))
	}
	return errors.Join(errs...)
}
