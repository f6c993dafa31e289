package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/lysyi3m/auto-comb/app/scheduler"
)

const (
	defaultRecent = 5
	maxRecent     = 10
)

// Options carries the values of the options a command was invoked with.
type Options map[string]*discordgo.ApplicationCommandInteractionDataOption

func (o Options) Int(name string, fallback int) int {
	if opt, ok := o[name]; ok {
		return int(opt.IntValue())
	}
	return fallback
}

// Command is one slash command. Handle returns the response shown to the operator.
type Command struct {
	Definition *discordgo.ApplicationCommand
	Handle     func(ctx context.Context, opts Options) (*discordgo.InteractionResponseData, error)
}

// Commands builds the operator command set on top of ctrl.
func Commands(ctrl scheduler.Controller, now func() time.Time) []*Command {
	minThreshold, maxThreshold := float64(0), float64(100)
	minRecent, maxRecentF := float64(1), float64(maxRecent)

	commands := []*Command{
		{
			Definition: &discordgo.ApplicationCommand{Name: "start", Description: "Démarre la surveillance"},
			Handle: func(ctx context.Context, _ Options) (*discordgo.InteractionResponseData, error) {
				if err := ctrl.StartMonitoring(ctx); err != nil {
					return nil, err
				}
				return text("▶️ Surveillance démarrée."), nil
			},
		},
		{
			Definition: &discordgo.ApplicationCommand{Name: "stop", Description: "Met la surveillance en pause"},
			Handle: func(ctx context.Context, _ Options) (*discordgo.InteractionResponseData, error) {
				if err := ctrl.StopMonitoring(ctx); err != nil {
					return nil, err
				}
				return text("⏸️ Surveillance en pause."), nil
			},
		},
		{
			Definition: &discordgo.ApplicationCommand{Name: "status", Description: "Affiche l'état et les compteurs"},
			Handle: func(ctx context.Context, _ Options) (*discordgo.InteractionResponseData, error) {
				st, err := ctrl.Status(ctx)
				if err != nil {
					return nil, err
				}
				return embeds(StatusEmbed(st, now())), nil
			},
		},
		{
			Definition: &discordgo.ApplicationCommand{
				Name:        "last",
				Description: "Affiche les dernières annonces retenues",
				Options: []*discordgo.ApplicationCommandOption{{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "count",
					Description: "Nombre d'annonces",
					MinValue:    &minRecent,
					MaxValue:    maxRecentF,
				}},
			},
			Handle: func(ctx context.Context, opts Options) (*discordgo.InteractionResponseData, error) {
				n := min(max(opts.Int("count", defaultRecent), 1), maxRecent)
				listings, err := ctrl.Recent(ctx, n)
				if err != nil {
					return nil, err
				}
				return embeds(RecentEmbed(listings)), nil
			},
		},
		{
			Definition: &discordgo.ApplicationCommand{Name: "stats", Description: "Statistiques par modèle"},
			Handle: func(ctx context.Context, _ Options) (*discordgo.InteractionResponseData, error) {
				stats, err := ctrl.Stats(ctx)
				if err != nil {
					return nil, err
				}
				return embeds(StatsEmbed(stats)), nil
			},
		},
		{
			Definition: &discordgo.ApplicationCommand{
				Name:        "sethighscore",
				Description: "Modifie le seuil de haute priorité",
				Options: []*discordgo.ApplicationCommandOption{{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "value",
					Description: "Score au-dessus duquel une annonce est HIGH",
					MinValue:    &minThreshold,
					MaxValue:    maxThreshold,
				}},
			},
			Handle: func(ctx context.Context, opts Options) (*discordgo.InteractionResponseData, error) {
				if _, ok := opts["value"]; !ok {
					st, err := ctrl.Status(ctx)
					if err != nil {
						return nil, err
					}
					return text(fmt.Sprintf("Seuil actuel: %d\nUsage: /sethighscore value:<0-100>", st.Thresholds.High)), nil
				}
				high := opts.Int("value", 0)
				if err := ctrl.SetHighThreshold(ctx, high); err != nil {
					return text("❌ " + err.Error()), nil
				}
				return text(fmt.Sprintf("✅ Seuil de haute priorité mis à jour: %d\nLes annonces avec un score > %d déclencheront une alerte.", high, high)), nil
			},
		},
		{
			Definition: &discordgo.ApplicationCommand{Name: "criteria", Description: "Affiche les critères de recherche"},
			Handle: func(_ context.Context, _ Options) (*discordgo.InteractionResponseData, error) {
				return embeds(CriteriaEmbed(ctrl.Criteria())), nil
			},
		},
	}

	help := &Command{
		Definition: &discordgo.ApplicationCommand{Name: "help", Description: "Affiche l'aide"},
	}
	commands = append(commands, help)
	help.Handle = func(_ context.Context, _ Options) (*discordgo.InteractionResponseData, error) {
		return embeds(HelpEmbed(commands)), nil
	}

	return commands
}

// Dispatcher routes interactions to commands by name.
type Dispatcher struct {
	commands map[string]*Command
	ordered  []*Command
}

func NewDispatcher(commands []*Command) *Dispatcher {
	d := &Dispatcher{commands: make(map[string]*Command, len(commands)), ordered: commands}
	for _, c := range commands {
		d.commands[c.Definition.Name] = c
	}
	return d
}

func (d *Dispatcher) Definitions() []*discordgo.ApplicationCommand {
	defs := make([]*discordgo.ApplicationCommand, 0, len(d.ordered))
	for _, c := range d.ordered {
		defs = append(defs, c.Definition)
	}
	return defs
}

// Dispatch runs the named command. Handler errors become an ephemeral error message.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, opts Options) *discordgo.InteractionResponseData {
	cmd, ok := d.commands[name]
	if !ok {
		slog.Warn("Unknown command", "command", name)
		return ephemeral("🚫 Commande inconnue: " + name)
	}

	data, err := cmd.Handle(ctx, opts)
	if err != nil {
		slog.Error("Command failed", "command", name, "error", err)
		return ephemeral("🚫 Erreur interne: " + err.Error())
	}
	return data
}

func text(content string) *discordgo.InteractionResponseData {
	return &discordgo.InteractionResponseData{Content: content}
}

func embeds(e ...*discordgo.MessageEmbed) *discordgo.InteractionResponseData {
	return &discordgo.InteractionResponseData{Embeds: e}
}

func ephemeral(content string) *discordgo.InteractionResponseData {
	return &discordgo.InteractionResponseData{Content: content, Flags: discordgo.MessageFlagsEphemeral}
}
