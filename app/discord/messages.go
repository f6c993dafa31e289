package discord

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/dustin/go-humanize"

	"github.com/lysyi3m/auto-comb/app/config"
	"github.com/lysyi3m/auto-comb/app/listing"
	"github.com/lysyi3m/auto-comb/app/notify"
	"github.com/lysyi3m/auto-comb/app/scheduler"
)

const (
	colorHigh   = 0xE74C3C
	colorMedium = 0xF1C40F
	colorLow    = 0x95A5A6
	colorInfo   = 0x3498DB
	colorError  = 0x992D22
)

func tierColor(tier listing.Tier) int {
	switch tier {
	case listing.TierHigh:
		return colorHigh
	case listing.TierMedium:
		return colorMedium
	default:
		return colorLow
	}
}

// ListingMessage renders one scored listing. HIGH listings carry the mention so members get
// an audible ping, LOW listings are posted without notifying anyone.
func ListingMessage(s listing.Scored, mention string, now time.Time) *discordgo.MessageSend {
	r := s.Record

	fields := []*discordgo.MessageEmbedField{
		{Name: "Prix", Value: notify.Price(r), Inline: true},
		{Name: "Kilométrage", Value: notify.Mileage(r), Inline: true},
		{Name: "Année", Value: notify.Year(r), Inline: true},
	}
	if label := valueOr(r.FuelLabel, string(r.Fuel)); label != "" && r.Fuel != listing.FuelUnknown {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Carburant", Value: label, Inline: true})
	}
	if label := valueOr(r.Gearbox, string(r.Transmission)); label != "" && r.Transmission != listing.TransmissionUnknown {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Boîte", Value: label, Inline: true})
	}
	if r.Engine != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Moteur", Value: r.Engine, Inline: true})
	}
	if r.Location != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Lieu", Value: r.Location, Inline: true})
	}
	if bonuses := s.Bonuses(); len(bonuses) > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Points forts", Value: truncate(notify.Signals(bonuses), 1024)})
	}
	if penalties := s.Penalties(); len(penalties) > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Points faibles", Value: truncate(notify.Signals(penalties), 1024)})
	}

	footer := fmt.Sprintf("Score %d · %s", s.Score, s.Criteria)
	if age := notify.Age(r, now); age != "" {
		footer += " · publié " + age
	}

	embed := &discordgo.MessageEmbed{
		Title:       truncate(fmt.Sprintf("%s %s", notify.Emoji(s.Tier), r.Title), 256),
		URL:         r.URL,
		Description: truncate(r.Description, 300),
		Color:       tierColor(s.Tier),
		Fields:      fields,
		Footer:      &discordgo.MessageEmbedFooter{Text: footer},
	}
	if r.ImageURL != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: r.ImageURL}
	}
	if !r.PublishedAt.IsZero() {
		embed.Timestamp = r.PublishedAt.Format(time.RFC3339)
	}

	msg := &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}}
	switch notify.StyleFor(s.Tier) {
	case notify.StyleAudible:
		msg.Content = mention
		msg.AllowedMentions = &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeRoles, discordgo.AllowedMentionTypeEveryone},
		}
	case notify.StyleSilent:
		msg.Flags = discordgo.MessageFlagsSuppressNotifications
	}
	return msg
}

func FailureEmbed(cycleID string, err error) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "⚠️ Cycle en échec",
		Description: truncate(err.Error(), 2000),
		Color:       colorError,
		Footer:      &discordgo.MessageEmbedFooter{Text: "cycle " + cycleID},
	}
}

func StatusEmbed(st scheduler.Status, now time.Time) *discordgo.MessageEmbed {
	monitoring := "⏸️ en pause"
	if st.Monitoring {
		monitoring = "▶️ actif"
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Surveillance", Value: monitoring, Inline: true},
		{Name: "État", Value: string(st.State), Inline: true},
		{Name: "Intervalle", Value: st.Interval.String(), Inline: true},
		{Name: "Cycles", Value: fmt.Sprintf("%d (%d en échec)", st.CyclesRun, st.CyclesFailed), Inline: true},
		{Name: "Seuils", Value: fmt.Sprintf("HIGH > %d · MEDIUM ≥ %d", st.Thresholds.High, st.Thresholds.Medium), Inline: true},
		{Name: "Annonces", Value: fmt.Sprintf("%d retenues · %d HIGH · %d sur 24h · %d vues",
			st.Totals.Total, st.Totals.High, st.Totals.Last24h, st.Totals.SeenCount)},
	}
	if last := st.LastCycle; last != nil {
		value := fmt.Sprintf("%s · %d récupérées · %d nouvelles · %d retenues",
			humanize.RelTime(last.FinishedAt, now, "", ""), last.Fetched, last.Fresh, last.Accepted)
		if last.Error != "" {
			value += "\n❌ " + truncate(last.Error, 300)
		}
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Dernier cycle", Value: value})
	}
	if !st.NextRunAt.IsZero() {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Prochain cycle", Value: humanize.RelTime(st.NextRunAt, now, "", "")})
	}
	if !st.StartedAt.IsZero() {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Démarré", Value: humanize.Time(st.StartedAt), Inline: true})
	}

	return &discordgo.MessageEmbed{
		Title:  "📊 auto-comb " + st.Version,
		Color:  colorInfo,
		Fields: fields,
	}
}

func RecentEmbed(listings []listing.Scored) *discordgo.MessageEmbed {
	if len(listings) == 0 {
		return &discordgo.MessageEmbed{Title: "Dernières annonces", Description: "Aucune annonce retenue pour l'instant.", Color: colorInfo}
	}

	lines := make([]string, 0, len(listings))
	for _, s := range listings {
		lines = append(lines, fmt.Sprintf("%s **%d** [%s](%s) · %s · %s",
			notify.Emoji(s.Tier), s.Score, truncate(s.Record.Title, 80), s.Record.URL,
			notify.Price(s.Record), notify.Mileage(s.Record)))
	}
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Dernières annonces (%d)", len(listings)),
		Description: truncate(strings.Join(lines, "\n"), 4096),
		Color:       colorInfo,
	}
}

func StatsEmbed(stats scheduler.Stats) *discordgo.MessageEmbed {
	var models []string
	for _, m := range stats.Models {
		models = append(models, fmt.Sprintf("**%s**: %d · score moyen %.1f · prix moyen %s €",
			m.Model, m.Count, m.AvgScore, humanize.FormatInteger("# ###.", int(m.AvgPrice))))
	}
	if len(models) == 0 {
		models = append(models, "Aucune donnée")
	}

	var days []string
	for _, d := range stats.Daily {
		days = append(days, fmt.Sprintf("%s: %d", d.Day, d.Count))
	}
	if len(days) == 0 {
		days = append(days, "Aucune donnée")
	}

	return &discordgo.MessageEmbed{
		Title: "📈 Statistiques",
		Color: colorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Total", Value: fmt.Sprintf("%d annonces · %d HIGH · score moyen %.1f", stats.Totals.Total, stats.Totals.High, stats.Totals.AvgScore)},
			{Name: "Par modèle", Value: truncate(strings.Join(models, "\n"), 1024)},
			{Name: "7 derniers jours", Value: truncate(strings.Join(days, "\n"), 1024)},
		},
	}
}

func CriteriaEmbed(criteria []config.Criteria) *discordgo.MessageEmbed {
	sorted := make([]config.Criteria, len(criteria))
	copy(sorted, criteria)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority > sorted[j].Priority })

	fields := make([]*discordgo.MessageEmbedField, 0, len(sorted))
	for _, c := range sorted {
		value := fmt.Sprintf("≤ %s € · ≤ %s km", humanize.FormatInteger("# ###.", int(c.MaxPrice)), humanize.FormatInteger("# ###.", c.MaxMileage))
		if c.MinYear > 0 {
			value += fmt.Sprintf(" · ≥ %d", c.MinYear)
		}
		if c.Fuel != "" {
			value += " · " + c.Fuel
		}
		if c.Transmission != "" {
			value += " · " + c.Transmission
		}
		value += fmt.Sprintf(" · priorité %d", c.Priority)
		fields = append(fields, &discordgo.MessageEmbedField{Name: c.Name, Value: value})
	}
	if len(fields) > 25 {
		fields = fields[:25]
	}

	return &discordgo.MessageEmbed{Title: "🔎 Critères de recherche", Color: colorInfo, Fields: fields}
}

func HelpEmbed(commands []*Command) *discordgo.MessageEmbed {
	lines := make([]string, 0, len(commands))
	for _, c := range commands {
		lines = append(lines, fmt.Sprintf("`/%s` %s", c.Definition.Name, c.Definition.Description))
	}
	return &discordgo.MessageEmbed{Title: "Commandes", Description: strings.Join(lines, "\n"), Color: colorInfo}
}

func valueOr(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
