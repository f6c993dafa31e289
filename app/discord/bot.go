package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
)

const commandTimeout = 30 * time.Second

// Bot owns the gateway session: it answers slash commands in the alert channel.
type Bot struct {
	Session    *discordgo.Session
	dispatcher *Dispatcher
	channelID  string
	guildID    string
	registered []*discordgo.ApplicationCommand
}

func NewBot(token, channelID, guildID string, dispatcher *Dispatcher) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	return &Bot{
		Session:    session,
		dispatcher: dispatcher,
		channelID:  channelID,
		guildID:    guildID,
	}, nil
}

// SetDispatcher installs the command set. The notifier shares the session, so the bot is
// built before the scheduler that backs the commands.
func (b *Bot) SetDispatcher(d *Dispatcher) {
	b.dispatcher = d
}

// Open connects to the gateway and registers the slash commands.
func (b *Bot) Open() error {
	b.Session.AddHandler(b.onInteraction)
	b.Session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("Discord session ready", "user", r.User.Username, "guilds", len(r.Guilds))
	})

	if err := b.Session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}

	registered, err := b.Session.ApplicationCommandBulkOverwrite(b.Session.State.User.ID, b.guildID, b.dispatcher.Definitions())
	if err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}
	b.registered = registered
	slog.Info("Discord commands registered", "count", len(registered), "guild", b.guildID)

	return nil
}

func (b *Bot) Close() error {
	if err := b.Session.Close(); err != nil {
		return fmt.Errorf("failed to close Discord session: %w", err)
	}
	return nil
}

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	data := i.ApplicationCommandData()
	var response *discordgo.InteractionResponseData
	if b.channelID != "" && i.ChannelID != b.channelID {
		response = ephemeral(fmt.Sprintf("🚫 Les commandes sont acceptées uniquement dans <#%s>", b.channelID))
	} else {
		opts := make(Options, len(data.Options))
		for _, opt := range data.Options {
			opts[opt.Name] = opt
		}

		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		response = b.dispatcher.Dispatch(ctx, data.Name, opts)
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: response,
	})
	if err != nil {
		slog.Error("Failed to respond to interaction", "command", data.Name, "error", err)
	}
}
