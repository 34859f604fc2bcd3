package hub

import (
	"time"

	"tzmap/internal/meridian"
	"tzmap/internal/viewstate"
)

// Server-to-client frame types. The rendering client treats these as
// drawing instructions; all invariant-bearing computation happens before
// they leave this process.

// MarkerState is the published visual state of one city marker.
type MarkerState struct {
	CityID    string  `json:"cityId"`
	Name      string  `json:"name"`
	LocalName string  `json:"localName,omitempty"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Clock     string  `json:"clock"`
	IsDaytime bool    `json:"isDaytime"`
	DayLabel  string  `json:"dayLabel,omitempty"`
	Ring      string  `json:"ring,omitempty"`
	ShowLabel bool    `json:"showLabel"`
}

// PopupState is the content of the single visible popup.
type PopupState struct {
	CityID      string  `json:"cityId"`
	Name        string  `json:"name"`
	LocalName   string  `json:"localName,omitempty"`
	Country     string  `json:"country"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Clock       string  `json:"clock"`
	Date        string  `json:"date"`
	OffsetLabel string  `json:"offsetLabel"`
	DeltaLabel  string  `json:"deltaLabel"`
	IsDaytime   bool    `json:"isDaytime"`
	DayLabel    string  `json:"dayLabel,omitempty"`
}

// CursorState is the free-roaming cursor readout, synthetic-zone based.
type CursorState struct {
	Lng         float64 `json:"lng"`
	Lat         float64 `json:"lat"`
	Clock       string  `json:"clock"`
	Date        string  `json:"date"`
	OffsetLabel string  `json:"offsetLabel"`
	DayLabel    string  `json:"dayLabel,omitempty"`
}

type TickMessage struct {
	Type    string      `json:"type"`
	Payload TickPayload `json:"payload"`
}

type TickPayload struct {
	Markers    []MarkerState `json:"markers"`
	Popup      *PopupState   `json:"popup,omitempty"`
	Cursor     *CursorState  `json:"cursor,omitempty"`
	ServerTime time.Time     `json:"serverTime"`
}

type MeridianMessage struct {
	Type    string          `json:"type"`
	Payload MeridianPayload `json:"payload"`
}

type MeridianPayload struct {
	Labels []meridian.Label `json:"labels"`
}

type FlyToMessage struct {
	Type    string       `json:"type"`
	Payload FlyToPayload `json:"payload"`
}

// FlyToPayload is a fire-and-forget camera animation request. A newer
// request simply replaces any animation still in flight.
type FlyToPayload struct {
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	Zoom       float64 `json:"zoom"`
	DurationMs int     `json:"durationMs"`
}

type InitMessage struct {
	Type    string      `json:"type"`
	Payload InitPayload `json:"payload"`
}

type InitPayload struct {
	SessionID   string           `json:"sessionId"`
	Camera      viewstate.Camera `json:"camera"`
	SavedCamera bool             `json:"savedCamera"`
	Markers     []MarkerState    `json:"markers"`
	Meridians   []meridian.Label `json:"meridians"`
}

type ResultsMessage struct {
	Type    string         `json:"type"`
	Payload ResultsPayload `json:"payload"`
}

type ResultsPayload struct {
	Query   string       `json:"query"`
	Results []CityResult `json:"results"`
}

// CityResult is one search hit.
type CityResult struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	LocalName   string  `json:"localName,omitempty"`
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	Timezone    string  `json:"timezone"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
}

type CursorMessage struct {
	Type    string      `json:"type"`
	Payload CursorState `json:"payload"`
}

type PongMessage struct {
	Type string `json:"type"`
}

// Frame type tags.
const (
	FrameInit      = "init"
	FrameTick      = "tick"
	FrameMeridians = "meridians"
	FrameFlyTo     = "flyto"
	FrameResults   = "results"
	FrameCursor    = "cursor"
	FramePong      = "pong"
)
