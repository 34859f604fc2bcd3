package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"tzmap/internal/cities"
	"tzmap/internal/meridian"
	"tzmap/internal/timemath"
	"tzmap/internal/timesource"
)

type HTTPHandler struct {
	directory *cities.Directory
	clock     timesource.Clock
}

func NewHTTPHandler(dir *cities.Directory, clock timesource.Clock) *HTTPHandler {
	return &HTTPHandler{directory: dir, clock: clock}
}

type CitiesResponse struct {
	Cities     []cityJSON `json:"cities"`
	Count      int        `json:"count"`
	ServerTime time.Time  `json:"serverTime"`
}

type cityJSON struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	Timezone    string  `json:"timezone"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Featured    bool    `json:"featured"`
}

// ListCities returns the catalogue, or search hits when q is present.
// Search is capped the same way the live protocol caps it.
func (h *HTTPHandler) ListCities(w http.ResponseWriter, r *http.Request) {
	ServerStats.IncRequests()

	var matches []*cities.City
	if q, present := r.URL.Query()["q"]; present {
		query := ""
		if len(q) > 0 {
			query = q[0]
		}
		matches = h.directory.Search(query)
	} else {
		matches = h.directory.All()
	}

	out := make([]cityJSON, 0, len(matches))
	for _, c := range matches {
		out = append(out, toCityJSON(c))
	}

	respondJSON(w, http.StatusOK, CitiesResponse{
		Cities:     out,
		Count:      len(out),
		ServerTime: h.clock.Now(),
	})
}

func (h *HTTPHandler) GetCity(w http.ResponseWriter, r *http.Request) {
	ServerStats.IncRequests()

	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing city id")
		return
	}

	c, ok := h.directory.Resolve(id)
	if !ok {
		respondError(w, http.StatusNotFound, "city not found")
		return
	}

	respondJSON(w, http.StatusOK, toCityJSON(c))
}

type CityTimeResponse struct {
	CityID      string    `json:"cityId"`
	Name        string    `json:"name"`
	Timezone    string    `json:"timezone"`
	Clock       string    `json:"clock"`
	Date        string    `json:"date"`
	OffsetLabel string    `json:"offsetLabel"`
	DeltaLabel  string    `json:"deltaLabel"`
	IsDaytime   bool      `json:"isDaytime"`
	DayLabel    string    `json:"dayLabel,omitempty"`
	ServerTime  time.Time `json:"serverTime"`
}

// GetCityTime reports a city's current clock. An optional viewer query
// parameter (IANA zone id) anchors the relative-day and delta labels;
// without it the viewer is UTC.
func (h *HTTPHandler) GetCityTime(w http.ResponseWriter, r *http.Request) {
	ServerStats.IncRequests()

	c, ok := h.directory.Resolve(r.PathValue("id"))
	if !ok {
		respondError(w, http.StatusNotFound, "city not found")
		return
	}

	viewer := time.UTC
	if v := r.URL.Query().Get("viewer"); v != "" {
		loc, err := time.LoadLocation(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid viewer timezone: "+v)
			return
		}
		viewer = loc
	}

	now := h.clock.Now()
	snap := timemath.At(now, c.Location(), viewer)

	respondJSON(w, http.StatusOK, CityTimeResponse{
		CityID:      c.ID,
		Name:        c.Name,
		Timezone:    c.Timezone,
		Clock:       snap.Clock,
		Date:        snap.Date,
		OffsetLabel: snap.OffsetLabel,
		DeltaLabel:  timemath.FormatDelta(snap.DeltaHoursVsViewer),
		IsDaytime:   snap.IsDaytime,
		DayLabel:    snap.DayLabel,
		ServerTime:  now,
	})
}

func (h *HTTPHandler) ListFeatured(w http.ResponseWriter, r *http.Request) {
	ServerStats.IncRequests()

	featured := h.directory.Featured()
	out := make([]cityJSON, 0, len(featured))
	for _, c := range featured {
		out = append(out, toCityJSON(c))
	}

	respondJSON(w, http.StatusOK, CitiesResponse{
		Cities:     out,
		Count:      len(out),
		ServerTime: h.clock.Now(),
	})
}

type MeridiansResponse struct {
	Labels     []meridian.Label `json:"labels"`
	ServerTime time.Time        `json:"serverTime"`
}

// ListMeridians returns the current meridian label set. Optional north
// sets the visible top latitude, optional viewer (IANA zone id) anchors
// the relative-day labels.
func (h *HTTPHandler) ListMeridians(w http.ResponseWriter, r *http.Request) {
	ServerStats.IncRequests()

	north := 85.0
	if v := r.URL.Query().Get("north"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid north parameter")
			return
		}
		north = f
	}

	viewer := time.UTC
	if v := r.URL.Query().Get("viewer"); v != "" {
		loc, err := time.LoadLocation(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid viewer timezone: "+v)
			return
		}
		viewer = loc
	}

	now := h.clock.Now()
	respondJSON(w, http.StatusOK, MeridiansResponse{
		Labels:     meridian.Grid(now, north, viewer),
		ServerTime: now,
	})
}

func toCityJSON(c *cities.City) cityJSON {
	return cityJSON{
		ID:          c.ID,
		Name:        c.Name,
		Country:     c.Country,
		CountryCode: c.CountryCode,
		Timezone:    c.Timezone,
		Lat:         c.Lat,
		Lng:         c.Lng,
		Featured:    c.Featured,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
