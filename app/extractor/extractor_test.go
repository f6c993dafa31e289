package extractor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lysyi3m/auto-comb/app/listing"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestExtractorParse(t *testing.T) {
	e := New("https://www.leboncoin.fr")

	records, err := e.Parse(loadFixture(t, "search.html"))
	if err != nil {
		t.Fatal(err)
	}

	if len(records) != 3 {
		t.Fatalf("Expected 3 records (ad without id skipped), got %d", len(records))
	}

	// Page order is preserved
	for i, id := range []string{"2547896512", "2547896513", "2547896514"} {
		if records[i].ID != id {
			t.Errorf("Record %d: expected ID '%s', got '%s'", i, id, records[i].ID)
		}
	}

	mazda := records[0]
	if mazda.Title != "Mazda 2 1.3 essence" {
		t.Errorf("Unexpected title '%s'", mazda.Title)
	}
	if mazda.Price != 200000 {
		t.Errorf("Expected price 200000 cents, got %d", mazda.Price)
	}
	if mazda.Mileage != 80000 {
		t.Errorf("Expected mileage 80000, got %d", mazda.Mileage)
	}
	if mazda.Year != 2011 {
		t.Errorf("Expected year 2011, got %d", mazda.Year)
	}
	if mazda.Brand != "mazda" || mazda.Model != "2" {
		t.Errorf("Expected mazda/2, got %s/%s", mazda.Brand, mazda.Model)
	}
	if mazda.Fuel != listing.FuelPetrol {
		t.Errorf("Expected petrol, got %s", mazda.Fuel)
	}
	if mazda.Transmission != listing.TransmissionManual {
		t.Errorf("Expected manual, got %s", mazda.Transmission)
	}
	if mazda.Engine != "1.3 MZR 75ch" {
		t.Errorf("Unexpected engine '%s'", mazda.Engine)
	}
	if mazda.Location != "Lyon" {
		t.Errorf("Expected location 'Lyon', got '%s'", mazda.Location)
	}
	if mazda.ImageURL != "https://img.example/1.jpg" {
		t.Errorf("Expected first image, got '%s'", mazda.ImageURL)
	}
	if mazda.PublishedAt.IsZero() || mazda.PublishedAt.Year() != 2024 || mazda.PublishedAt.Month() != time.January {
		t.Errorf("Unexpected publication date %v", mazda.PublishedAt)
	}

	seat := records[1]
	if seat.Price != 250000 {
		t.Errorf("Expected price from euros 250000 cents, got %d", seat.Price)
	}
	if seat.Brand != "seat" || seat.Model != "ibiza" {
		t.Errorf("Expected seat/ibiza, got %s/%s", seat.Brand, seat.Model)
	}
	if seat.Fuel != listing.FuelDiesel {
		t.Errorf("Expected diesel from code, got %s", seat.Fuel)
	}
	if seat.URL != "https://www.leboncoin.fr/ad/voitures/2547896513.htm" {
		t.Errorf("Expected synthesized URL, got '%s'", seat.URL)
	}
	if seat.ImageURL != "https://img.example/small.jpg" {
		t.Errorf("Expected small image fallback, got '%s'", seat.ImageURL)
	}
	if seat.Mileage != listing.Unknown {
		t.Errorf("Missing mileage should be unknown, got %d", seat.Mileage)
	}

	peugeot := records[2]
	if peugeot.Price != listing.Unknown {
		t.Errorf("Missing price should be unknown, got %d", peugeot.Price)
	}
	if peugeot.Year != listing.Unknown {
		t.Errorf("Unparseable year should be unknown, got %d", peugeot.Year)
	}
	if peugeot.Fuel != listing.FuelUnknown || peugeot.Transmission != listing.TransmissionUnknown {
		t.Errorf("Missing enums should be unknown, got %s/%s", peugeot.Fuel, peugeot.Transmission)
	}
}

func TestExtractorMissingDataBlock(t *testing.T) {
	e := New("https://www.leboncoin.fr")

	_, err := e.Parse([]byte("<html><body><div class='ad'>Mazda 2</div></body></html>"))
	if !IsKind(err, KindMissingDataBlock) {
		t.Errorf("Expected missing data block error, got %v", err)
	}
}

func TestExtractorMalformedDataBlock(t *testing.T) {
	e := New("https://www.leboncoin.fr")

	tests := map[string]string{
		"invalid json":       `<script id="__NEXT_DATA__">{"props": </script>`,
		"empty block":        `<script id="__NEXT_DATA__">  </script>`,
		"missing searchData": `<script id="__NEXT_DATA__">{"props":{"pageProps":{}}}</script>`,
	}

	for name, page := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := e.Parse([]byte("<html><body>" + page + "</body></html>"))
			if !IsKind(err, KindMalformedDataBlock) {
				t.Errorf("Expected malformed data block error, got %v", err)
			}
		})
	}
}

func TestExtractorEmptyResults(t *testing.T) {
	e := New("https://www.leboncoin.fr")

	records, err := e.Parse([]byte(`<script id="__NEXT_DATA__">{"props":{"pageProps":{"searchData":{"ads":[]}}}}</script>`))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Errorf("Expected no records, got %d", len(records))
	}
}

func TestParseMileage(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"95 000 km", 95000},
		{"120000", 120000},
		{"", listing.Unknown},
		{"inconnu", listing.Unknown},
	}

	for _, tt := range tests {
		if got := parseMileage(tt.in); got != tt.want {
			t.Errorf("parseMileage(%q) = %d; want %d", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeModel(t *testing.T) {
	tests := []struct {
		brand, model, want string
	}{
		{"mazda", "Mazda2", "2"},
		{"mazda", "Mazda_2", "2"},
		{"seat", "Ibiza", "ibiza"},
		{"citroen", "Citroën C3", "c3"},
		{"", "Jazz", "jazz"},
	}

	for _, tt := range tests {
		if got := normalizeModel(tt.brand, tt.model); got != tt.want {
			t.Errorf("normalizeModel(%q, %q) = %q; want %q", tt.brand, tt.model, got, tt.want)
		}
	}
}
