package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/lysyi3m/auto-comb/app/listing"
)

// LogNotifier reports through slog and, when out is set, prints one line per listing.
// It serves dry runs and deployments without a chat channel.
type LogNotifier struct {
	out io.Writer
}

var _ Notifier = (*LogNotifier)(nil)

func NewLogNotifier(out io.Writer) *LogNotifier {
	return &LogNotifier{out: out}
}

func (n *LogNotifier) Dispatch(_ context.Context, batch []listing.Scored) error {
	for _, s := range batch {
		slog.Info("Listing matched",
			"id", s.Record.ID,
			"title", s.Record.Title,
			"score", s.Score,
			"tier", string(s.Tier),
			"style", string(StyleFor(s.Tier)),
			"price", Price(s.Record),
			"mileage", Mileage(s.Record),
			"url", s.Record.URL)
		if n.out != nil {
			if _, err := fmt.Fprintln(n.out, Summary(s)); err != nil {
				return fmt.Errorf("failed to write listing: %w", err)
			}
			if len(s.Signals) > 0 {
				if _, err := fmt.Fprintf(n.out, "    %s\n", Signals(s.Signals)); err != nil {
					return fmt.Errorf("failed to write signals: %w", err)
				}
			}
		}
	}
	return nil
}

func (n *LogNotifier) ReportFailure(_ context.Context, cycleID string, err error) error {
	slog.Error("Cycle failure reported", "cycle", cycleID, "error", err)
	if n.out != nil {
		if _, werr := fmt.Fprintf(n.out, "cycle %s failed: %v\n", cycleID, err); werr != nil {
			return fmt.Errorf("failed to write failure: %w", werr)
		}
	}
	return nil
}

func (n *LogNotifier) Announce(_ context.Context, message string) error {
	slog.Info("Announcement", "message", message)
	return nil
}
