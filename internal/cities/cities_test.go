package cities

import (
	"io"
	"log/slog"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func loadDirectory(t *testing.T) *Directory {
	t.Helper()
	d, err := Load(testLogger())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return d
}

func TestLoadEmbeddedCatalogue(t *testing.T) {
	d := loadDirectory(t)

	if d.Count() == 0 {
		t.Fatal("expected a non-empty catalogue")
	}
	if len(d.Featured()) == 0 {
		t.Fatal("expected a featured subset")
	}
	if len(d.Featured()) >= d.Count() {
		t.Error("featured subset should be smaller than the full catalogue")
	}

	for _, c := range d.All() {
		if c.ID == "" || c.Name == "" || c.Timezone == "" || c.CountryCode == "" {
			t.Errorf("city %q has missing fields: %+v", c.ID, c)
		}
		if c.Location() == nil {
			t.Errorf("city %q has no resolved location", c.ID)
		}
		if c.Lat < -90 || c.Lat > 90 || c.Lng < -180 || c.Lng > 180 {
			t.Errorf("city %q has out-of-range coordinates", c.ID)
		}
	}
}

func TestParseDropsInvalidEntries(t *testing.T) {
	data := []byte(`[
		{"id":"ok","name":"Tokyo","timezone":"Asia/Tokyo","lat":35.6,"lng":139.6,"country":"Japan","countryCode":"JP"},
		{"id":"badtz","name":"Nowhere","timezone":"Invalid/Zone","lat":0,"lng":0,"country":"X","countryCode":"XX"},
		{"id":"noname","timezone":"Asia/Tokyo","lat":0,"lng":0,"country":"X","countryCode":"XX"},
		{"id":"ok","name":"Duplicate","timezone":"Asia/Tokyo","lat":0,"lng":0,"country":"X","countryCode":"XX"}
	]`)

	d, err := parse(data, testLogger())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.Count() != 1 {
		t.Errorf("Count = %d, want 1 (invalid entries excluded, not fatal)", d.Count())
	}
	if _, ok := d.Resolve("ok"); !ok {
		t.Error("valid entry missing after parse")
	}
}

func TestParseAllInvalidIsError(t *testing.T) {
	if _, err := parse([]byte(`[{"id":"x","name":"X","timezone":"Bad/Zone","countryCode":"XX"}]`), testLogger()); err == nil {
		t.Error("expected an error for a catalogue with no usable cities")
	}
}

func TestSearch(t *testing.T) {
	d := loadDirectory(t)

	tests := []struct {
		name      string
		query     string
		wantEmpty bool
		wantID    string
	}{
		{"empty query", "", true, ""},
		{"whitespace query", "   ", true, ""},
		{"case-varied name", "TOKYO", false, "tokyo"},
		{"lowercase name", "tokyo", false, "tokyo"},
		{"substring", "angel", false, "losangeles"},
		{"localized name", "北京", false, "beijing"},
		{"country name", "japan", false, "tokyo"},
		{"country code exact", "jp", false, "tokyo"},
		{"no match", "atlantis", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.Search(tt.query)
			if tt.wantEmpty {
				if len(got) != 0 {
					t.Fatalf("Search(%q) returned %d results, want none", tt.query, len(got))
				}
				return
			}
			if len(got) == 0 {
				t.Fatalf("Search(%q) returned nothing", tt.query)
			}
			found := false
			for _, c := range got {
				if c.ID == tt.wantID {
					found = true
				}
			}
			if !found {
				t.Errorf("Search(%q) missing %q in results", tt.query, tt.wantID)
			}
		})
	}
}

func TestSearchLimit(t *testing.T) {
	d := loadDirectory(t)

	// A single-letter query matches many cities; the cap still holds.
	got := d.Search("a")
	if len(got) > SearchLimit {
		t.Errorf("Search returned %d results, cap is %d", len(got), SearchLimit)
	}
}

func TestSearchOrderIsDatasetOrder(t *testing.T) {
	d := loadDirectory(t)

	// Both runs of the same query must return identical ordering, and that
	// ordering must follow the catalogue, not any relevance score.
	first := d.Search("united states")
	second := d.Search("united states")
	if len(first) == 0 {
		t.Fatal("expected matches for a country query")
	}
	if len(first) != len(second) {
		t.Fatalf("unstable result count: %d vs %d", len(first), len(second))
	}

	pos := make(map[string]int, d.Count())
	for i, c := range d.All() {
		pos[c.ID] = i
	}
	last := -1
	for i, c := range first {
		if c.ID != second[i].ID {
			t.Errorf("unstable ordering at index %d: %s vs %s", i, c.ID, second[i].ID)
		}
		if pos[c.ID] < last {
			t.Errorf("result %s out of dataset order", c.ID)
		}
		last = pos[c.ID]
	}
}

func TestCountryCodeIsExactMatchOnly(t *testing.T) {
	d := loadDirectory(t)

	// "j" is a substring of "JP" but country codes only match exactly.
	for _, c := range d.Search("j") {
		if !strings.Contains(strings.ToLower(c.Name), "j") &&
			!strings.Contains(strings.ToLower(c.Country), "j") &&
			!containsLocalized(c, "j") {
			t.Errorf("city %s matched %q without a name or country hit", c.ID, "j")
		}
	}
}

func containsLocalized(c *City, q string) bool {
	for _, n := range c.Localized {
		if strings.Contains(strings.ToLower(n), q) {
			return true
		}
	}
	return false
}

func TestResolve(t *testing.T) {
	d := loadDirectory(t)

	c, ok := d.Resolve("tokyo")
	if !ok {
		t.Fatal("Resolve(tokyo) not found")
	}
	if c.Timezone != "Asia/Tokyo" {
		t.Errorf("tokyo timezone = %s", c.Timezone)
	}

	if _, ok := d.Resolve("missing"); ok {
		t.Error("Resolve should miss unknown ids")
	}
}

func TestDeriveID(t *testing.T) {
	tests := []struct {
		name, cc, want string
	}{
		{"New York", "US", "newyork-us"},
		{"São Paulo", "BR", "sopaulo-br"},
		{"Tokyo", "JP", "tokyo-jp"},
	}
	for _, tt := range tests {
		if got := DeriveID(tt.name, tt.cc); got != tt.want {
			t.Errorf("DeriveID(%q, %q) = %q, want %q", tt.name, tt.cc, got, tt.want)
		}
	}
}

func TestLocalizedName(t *testing.T) {
	d := loadDirectory(t)
	c, _ := d.Resolve("beijing")

	if got := c.LocalizedName("zh"); got != "北京" {
		t.Errorf("LocalizedName(zh) = %q", got)
	}
	if got := c.LocalizedName("zh-cn"); got != "北京" {
		t.Errorf("LocalizedName(zh-cn) = %q, want prefix fallback", got)
	}
	if got := c.LocalizedName("fr"); got != "Beijing" {
		t.Errorf("LocalizedName(fr) = %q, want default name", got)
	}
}
