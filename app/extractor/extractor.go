package extractor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/lysyi3m/auto-comb/app/listing"
)

const dataBlockSelector = "script#__NEXT_DATA__"

// DataBlockID is the id of the script element holding the page state.
const DataBlockID = "__NEXT_DATA__"

var (
	digitsRe = regexp.MustCompile(`\d+`)
	yearRe   = regexp.MustCompile(`\b(19|20)\d{2}\b`)
)

// Extractor turns a search page into listing records using the page's embedded JSON state.
type Extractor struct {
	baseURL  string
	location *time.Location
}

func New(baseURL string) *Extractor {
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		loc = time.UTC
	}
	return &Extractor{
		baseURL:  strings.TrimRight(baseURL, "/"),
		location: loc,
	}
}

// Parse returns the listings in page order. Ads without an identifier are skipped.
func (e *Extractor) Parse(payload []byte) ([]listing.Record, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload))
	if err != nil {
		return nil, &ParseError{Kind: KindMissingDataBlock, Err: err}
	}

	block := doc.Find(dataBlockSelector).First()
	if block.Length() == 0 {
		return nil, &ParseError{Kind: KindMissingDataBlock}
	}

	raw := strings.TrimSpace(block.Text())
	if raw == "" {
		return nil, &ParseError{Kind: KindMalformedDataBlock, Err: fmt.Errorf("empty data block")}
	}

	var data nextData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, &ParseError{Kind: KindMalformedDataBlock, Err: err}
	}

	search := data.Props.PageProps.SearchData
	if search == nil {
		return nil, &ParseError{Kind: KindMalformedDataBlock, Err: fmt.Errorf("props.pageProps.searchData is missing")}
	}

	records := make([]listing.Record, 0, len(search.Ads))
	skipped := 0
	for _, a := range search.Ads {
		record, ok := e.convert(a)
		if !ok {
			skipped++
			continue
		}
		records = append(records, record)
	}

	slog.Debug("Page parsed", "ads", len(search.Ads), "records", len(records), "skipped", skipped)

	return records, nil
}

func (e *Extractor) convert(a ad) (listing.Record, bool) {
	id := strings.TrimSpace(string(a.ListID))
	if id == "" {
		return listing.Record{}, false
	}

	attrs := make(map[string]attribute, len(a.Attributes))
	for _, attr := range a.Attributes {
		if attr.Key != "" {
			attrs[attr.Key] = attr
		}
	}

	brandLabel := attrValue(attrs, "brand", "u_car_brand")
	brand := listing.Normalize(brandLabel)
	fuelLabel := attrLabel(attrs, "fuel")
	gearboxLabel := attrLabel(attrs, "gearbox")

	record := listing.Record{
		ID:           id,
		Title:        strings.TrimSpace(a.Subject),
		Description:  strings.TrimSpace(a.Body),
		Price:        parsePrice(a.PriceCents, a.Price),
		Mileage:      parseMileage(attrValue(attrs, "mileage")),
		Year:         parseYear(attrValue(attrs, "regdate")),
		Brand:        brand,
		Model:        normalizeModel(brand, attrValue(attrs, "model", "u_car_model")),
		Fuel:         parseFuel(attrs),
		Transmission: parseTransmission(attrs),
		FuelLabel:    fuelLabel,
		Gearbox:      gearboxLabel,
		Engine:       attrValue(attrs, "vehicle_engine"),
		Location:     a.Location.City,
		URL:          a.URL,
		PublishedAt:  e.parseDate(a.FirstPublicationDate),
	}

	if record.URL == "" {
		record.URL = fmt.Sprintf("%s/ad/voitures/%s.htm", e.baseURL, id)
	}
	if len(a.Images.URLs) > 0 {
		record.ImageURL = a.Images.URLs[0]
	} else {
		record.ImageURL = a.Images.SmallURL
	}

	return record, true
}

func (e *Extractor) parseDate(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", value, e.location); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}

func attrValue(attrs map[string]attribute, keys ...string) string {
	for _, key := range keys {
		if attr, ok := attrs[key]; ok {
			if v := strings.TrimSpace(string(attr.Value)); v != "" {
				return v
			}
			if v := strings.TrimSpace(string(attr.ValueLabel)); v != "" {
				return v
			}
		}
	}
	return ""
}

// attrLabel prefers the human label, falling back to the raw value.
func attrLabel(attrs map[string]attribute, key string) string {
	attr, ok := attrs[key]
	if !ok {
		return ""
	}
	if v := strings.TrimSpace(string(attr.ValueLabel)); v != "" {
		return v
	}
	return strings.TrimSpace(string(attr.Value))
}

func parseFuel(attrs map[string]attribute) listing.Fuel {
	attr, ok := attrs["fuel"]
	if !ok {
		return listing.FuelUnknown
	}
	if f := listing.ParseFuel(string(attr.ValueLabel)); f != listing.FuelUnknown {
		return f
	}
	return listing.ParseFuel(string(attr.Value))
}

func parseTransmission(attrs map[string]attribute) listing.Transmission {
	attr, ok := attrs["gearbox"]
	if !ok {
		return listing.TransmissionUnknown
	}
	if tr := listing.ParseTransmission(string(attr.ValueLabel)); tr != listing.TransmissionUnknown {
		return tr
	}
	return listing.ParseTransmission(string(attr.Value))
}

// parsePrice reads price_cents when present, otherwise the first euro amount of price.
func parsePrice(cents, euros json.RawMessage) int64 {
	if v, ok := firstNumber(cents); ok {
		return v
	}
	if v, ok := firstNumber(euros); ok {
		return listing.Euros(v)
	}
	return listing.Unknown
}

func firstNumber(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 {
		return 0, false
	}

	var list []json.Number
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) == 0 {
			return 0, false
		}
		return numberValue(list[0])
	}

	var single json.Number
	if err := json.Unmarshal(raw, &single); err == nil {
		return numberValue(single)
	}
	return 0, false
}

func numberValue(n json.Number) (int64, bool) {
	if v, err := n.Int64(); err == nil {
		return v, v >= 0
	}
	if f, err := n.Float64(); err == nil && f >= 0 {
		return int64(f), true
	}
	return 0, false
}

// parseMileage accepts values such as "95 000 km" or "95000".
func parseMileage(value string) int {
	digits := strings.Join(digitsRe.FindAllString(value, -1), "")
	if digits == "" {
		return listing.Unknown
	}
	km, err := strconv.Atoi(digits)
	if err != nil {
		return listing.Unknown
	}
	return km
}

func parseYear(value string) int {
	match := yearRe.FindString(value)
	if match == "" {
		return listing.Unknown
	}
	year, err := strconv.Atoi(match)
	if err != nil {
		return listing.Unknown
	}
	return year
}

// normalizeModel turns "Mazda_2" or "Mazda2" into "2" for brand "mazda".
func normalizeModel(brand, model string) string {
	m := listing.Normalize(strings.ReplaceAll(model, "_", " "))
	if brand == "" || m == brand {
		return m
	}
	if strings.HasPrefix(m, brand) {
		if trimmed := strings.TrimSpace(strings.TrimPrefix(m, brand)); trimmed != "" {
			return trimmed
		}
	}
	return m
}
