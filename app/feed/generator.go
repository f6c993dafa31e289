package feed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/lysyi3m/auto-comb/app/listing"
	"github.com/lysyi3m/auto-comb/app/notify"
)

// Channel describes the RSS channel wrapping the matched listings.
type Channel struct {
	Title       string
	Link        string
	Description string
	SelfLink    string
	Version     string
}

// Generator renders matched listings as an RSS 2.0 document, newest first as given.
type Generator struct {
	now func() time.Time
}

func NewGenerator() *Generator {
	return &Generator{now: time.Now}
}

func (g *Generator) Run(ch Channel, batch []listing.Scored) (string, error) {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	// Channel metadata
	g.writeElement(&buf, "title", ch.Title, 4)
	g.writeElement(&buf, "link", ch.Link, 4)
	description := ch.Description
	if description == "" {
		description = "Matched vehicle listings"
	}
	g.writeElement(&buf, "description", description, 4)

	if ch.SelfLink != "" {
		buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
			html.EscapeString(ch.SelfLink)))
	}

	lastBuildDate := g.now().In(time.Local)
	if len(batch) > 0 && !batch[0].CreatedAt.IsZero() {
		lastBuildDate = batch[0].CreatedAt.In(time.Local)
	}
	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("Auto-Comb/%s", ch.Version), 4)
	g.writeElement(&buf, "language", "fr", 4)

	// Items
	for _, s := range batch {
		g.writeItem(&buf, s)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) writeItem(buf *bytes.Buffer, s listing.Scored) {
	r := s.Record
	buf.WriteString("    <item>\n")

	buf.WriteString(fmt.Sprintf("      <guid isPermaLink=\"%t\">", r.URL != ""))
	if r.URL != "" {
		xml.EscapeText(buf, []byte(r.URL))
	} else {
		xml.EscapeText(buf, []byte(r.ID))
	}
	buf.WriteString("</guid>\n")

	g.writeElement(buf, "title", fmt.Sprintf("[%s %d] %s", strings.ToUpper(string(s.Tier)), s.Score, r.Title), 6)
	g.writeElement(buf, "link", r.URL, 6)
	g.writeElement(buf, "description", itemDescription(s), 6)

	published := r.PublishedAt
	if published.IsZero() {
		published = s.CreatedAt
	}
	if !published.IsZero() {
		g.writeElement(buf, "pubDate", published.Format(time.RFC1123Z), 6)
	}

	// Tier and criteria double as categories for reader-side filtering
	g.writeElement(buf, "category", string(s.Tier), 6)
	g.writeElement(buf, "category", s.Criteria, 6)

	// RSS 2.0 requires a length; zero is accepted for unknown sizes.
	if r.ImageURL != "" {
		buf.WriteString(fmt.Sprintf("      <enclosure url=\"%s\" length=\"0\" type=\"image/jpeg\" />\n",
			html.EscapeString(r.ImageURL)))
	}

	buf.WriteString("    </item>\n")
}

func itemDescription(s listing.Scored) string {
	r := s.Record
	lines := []string{
		fmt.Sprintf("Prix: %s | Kilométrage: %s | Année: %s", notify.Price(r), notify.Mileage(r), notify.Year(r)),
	}
	if r.Location != "" {
		lines = append(lines, "Lieu: "+r.Location)
	}
	if len(s.Signals) > 0 {
		lines = append(lines, notify.Signals(s.Signals))
	}
	return strings.Join(lines, "\n")
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}
