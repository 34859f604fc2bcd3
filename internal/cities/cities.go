// Package cities holds the searchable city catalogue: coordinates, IANA
// timezone id and display names per city, a curated featured subset, and
// the substring search the map's search box runs against.
package cities

import (
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

//go:embed data/cities.json
var embedded embed.FS

// SearchLimit caps the number of results one query may return.
const SearchLimit = 8

// City is one catalogue entry. Entries are immutable once loaded; two
// cities may share a timezone id.
type City struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Localized   map[string]string `json:"localized,omitempty"`
	Timezone    string            `json:"timezone"`
	Lat         float64           `json:"lat"`
	Lng         float64           `json:"lng"`
	Country     string            `json:"country"`
	CountryCode string            `json:"countryCode"`
	Featured    bool              `json:"featured,omitempty"`

	loc *time.Location
}

// Location returns the resolved IANA location for the city's timezone.
func (c *City) Location() *time.Location { return c.loc }

// LocalizedName returns the name for a language tag, falling back to the
// default display name.
func (c *City) LocalizedName(lang string) string {
	if n, ok := c.Localized[lang]; ok {
		return n
	}
	if i := strings.IndexByte(lang, '-'); i > 0 {
		if n, ok := c.Localized[lang[:i]]; ok {
			return n
		}
	}
	return c.Name
}

// Directory answers id lookups, featured listing and search queries over
// the loaded catalogue. Read-only after construction.
type Directory struct {
	all      []*City
	byID     map[string]*City
	featured []*City
}

// Load builds the directory from the embedded catalogue.
func Load(logger *slog.Logger) (*Directory, error) {
	data, err := embedded.ReadFile("data/cities.json")
	if err != nil {
		return nil, fmt.Errorf("reading embedded catalogue: %w", err)
	}
	return parse(data, logger)
}

// LoadFile builds the directory from an external catalogue file, for
// deployments that ship their own city set.
func LoadFile(path string, logger *slog.Logger) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalogue %s: %w", path, err)
	}
	return parse(data, logger)
}

func parse(data []byte, logger *slog.Logger) (*Directory, error) {
	var entries []*City
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing catalogue: %w", err)
	}

	d := &Directory{byID: make(map[string]*City, len(entries))}
	for _, c := range entries {
		if c.Name == "" || c.Timezone == "" || c.CountryCode == "" {
			logger.Debug("dropping catalogue entry with missing fields", "id", c.ID, "name", c.Name)
			continue
		}
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			// Unknown zone ids exclude the entry rather than failing the load.
			logger.Debug("dropping catalogue entry with unknown timezone", "id", c.ID, "timezone", c.Timezone)
			continue
		}
		c.loc = loc

		if c.ID == "" {
			c.ID = DeriveID(c.Name, c.CountryCode)
		}
		if _, dup := d.byID[c.ID]; dup {
			logger.Debug("dropping catalogue entry with duplicate id", "id", c.ID)
			continue
		}

		d.all = append(d.all, c)
		d.byID[c.ID] = c
		if c.Featured {
			d.featured = append(d.featured, c)
		}
	}

	if len(d.all) == 0 {
		return nil, fmt.Errorf("catalogue contains no usable cities")
	}
	return d, nil
}

// DeriveID builds the stable id for a city from its name and country
// code: lowercase name letters and digits only, plus the country code.
func DeriveID(name, countryCode string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String() + "-" + strings.ToLower(countryCode)
}

// Resolve looks a city up by id.
func (d *Directory) Resolve(id string) (*City, bool) {
	c, ok := d.byID[id]
	return c, ok
}

// Featured returns the curated always-visible subset in dataset order.
func (d *Directory) Featured() []*City {
	return d.featured
}

// All returns every city in dataset order.
func (d *Directory) All() []*City {
	return d.all
}

// Count reports the catalogue size after load-time filtering.
func (d *Directory) Count() int {
	return len(d.all)
}

// Search returns up to SearchLimit cities matching the query, in dataset
// order (first match wins, no ranking). Matching is a case-insensitive
// substring test against the display name, every localized name and the
// country name, or an exact match on the country code. Empty and
// whitespace-only queries return nothing.
func (d *Directory) Search(query string) []*City {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	var results []*City
	for _, c := range d.all {
		if matches(c, q) {
			results = append(results, c)
			if len(results) == SearchLimit {
				break
			}
		}
	}
	return results
}

func matches(c *City, q string) bool {
	if strings.Contains(strings.ToLower(c.Name), q) ||
		strings.Contains(strings.ToLower(c.Country), q) {
		return true
	}
	for _, name := range c.Localized {
		if strings.Contains(strings.ToLower(name), q) {
			return true
		}
	}
	return strings.ToLower(c.CountryCode) == q
}
