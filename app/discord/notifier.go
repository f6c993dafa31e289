package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/lysyi3m/auto-comb/app/listing"
	"github.com/lysyi3m/auto-comb/app/notify"
)

// Sender is the subset of *discordgo.Session used to post to a channel.
type Sender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

var _ Sender = (*discordgo.Session)(nil)

// Notifier posts listings to one channel, styled by tier.
type Notifier struct {
	sender    Sender
	channelID string
	mention   string
	now       func() time.Time
}

var _ notify.Notifier = (*Notifier)(nil)

// NewNotifier mentions roleID on HIGH listings, or @here when roleID is empty.
func NewNotifier(sender Sender, channelID, roleID string) *Notifier {
	mention := "@here"
	if roleID != "" {
		mention = fmt.Sprintf("<@&%s>", roleID)
	}
	return &Notifier{sender: sender, channelID: channelID, mention: mention, now: time.Now}
}

func (n *Notifier) Dispatch(ctx context.Context, batch []listing.Scored) error {
	var errs []error
	sent := 0
	for _, s := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := n.sender.ChannelMessageSendComplex(n.channelID, ListingMessage(s, n.mention, n.now())); err != nil {
			errs = append(errs, fmt.Errorf("failed to send listing %s: %w", s.Record.ID, err))
			continue
		}
		sent++
	}
	slog.Debug("Listings posted", "channel", n.channelID, "sent", sent, "failed", len(errs))
	return errors.Join(errs...)
}

func (n *Notifier) ReportFailure(_ context.Context, cycleID string, err error) error {
	msg := &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{FailureEmbed(cycleID, err)},
		Flags:  discordgo.MessageFlagsSuppressNotifications,
	}
	if _, sendErr := n.sender.ChannelMessageSendComplex(n.channelID, msg); sendErr != nil {
		return fmt.Errorf("failed to send failure report: %w", sendErr)
	}
	return nil
}

func (n *Notifier) Announce(_ context.Context, message string) error {
	if _, err := n.sender.ChannelMessageSend(n.channelID, message); err != nil {
		return fmt.Errorf("failed to send announcement: %w", err)
	}
	return nil
}
