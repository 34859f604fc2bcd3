// Package timemath converts an instant plus a zone descriptor (an IANA
// location or a raw longitude) into the display tuple the map shows:
// clock text, date text, UTC offset, day/night state and the relative-day
// label across the date line. All functions are pure and safe for
// concurrent use.
package timemath

import (
	"fmt"
	"math"
	"time"
)

// Snapshot is the fully derived time state for one zone at one instant.
type Snapshot struct {
	Instant            time.Time `json:"-"`
	Clock              string    `json:"clock"`
	Date               string    `json:"date"`
	UTCOffsetHours     float64   `json:"utcOffsetHours"`
	OffsetLabel        string    `json:"offsetLabel"`
	IsDaytime          bool      `json:"isDaytime"`
	DayLabel           string    `json:"dayLabel,omitempty"`
	DeltaHoursVsViewer float64   `json:"deltaHoursVsViewer"`
}

const (
	clockLayout = "15:04:05"
	dateLayout  = "Mon, 02 Jan"
)

// At computes the snapshot for an IANA zone. The offset is taken from the
// zone database at the given instant, so daylight-saving transitions are
// reflected without any cached table.
func At(instant time.Time, loc, viewer *time.Location) Snapshot {
	local := instant.In(loc)
	offset := OffsetHours(instant, loc)

	return Snapshot{
		Instant:            instant,
		Clock:              local.Format(clockLayout),
		Date:               local.Format(dateLayout),
		UTCOffsetHours:     offset,
		OffsetLabel:        FormatOffset(offset),
		IsDaytime:          IsDaytime(local.Hour()),
		DayLabel:           DayLabel(RelativeDay(instant, loc, viewer)),
		DeltaHoursVsViewer: offset - OffsetHours(instant, viewer),
	}
}

// AtLongitude computes the snapshot for a synthetic offset zone derived
// purely from longitude: round(lng/15) whole hours from UTC. This path is
// only for the free-roaming cursor, where no real zone applies; the
// whole-hour rounding here is intentional and must not leak into At.
func AtLongitude(instant time.Time, lng float64, viewer *time.Location) Snapshot {
	hours := LongitudeOffsetHours(lng)
	loc := time.FixedZone(FormatOffset(float64(hours)), hours*3600)
	s := At(instant, loc, viewer)
	s.UTCOffsetHours = float64(hours)
	return s
}

// OffsetHours returns the UTC offset of loc at the instant, in hours.
// Fractional-hour zones (e.g. Asia/Kolkata, +5.5) survive exactly.
func OffsetHours(instant time.Time, loc *time.Location) float64 {
	_, sec := instant.In(loc).Zone()
	return float64(sec) / 3600
}

// LongitudeOffsetHours maps a longitude to its nearest whole-hour offset.
// The longitude is wrapped into [-180, 180] first so a map that pans past
// the antimeridian keeps producing offsets in [-12, 12].
func LongitudeOffsetHours(lng float64) int {
	return int(math.Round(WrapLongitude(lng) / 15))
}

// WrapLongitude normalizes a longitude into [-180, 180].
func WrapLongitude(lng float64) float64 {
	w := math.Mod(lng+180, 360)
	if w < 0 {
		w += 360
	}
	return w - 180
}

// IsDaytime reports the simplified day/night rule: daytime iff the local
// hour is in [6, 18). No sunrise astronomy, by contract.
func IsDaytime(hour int) bool {
	return hour >= 6 && hour < 18
}

// RelativeDay returns how many calendar days the zone-local date of the
// instant is ahead of (positive) or behind (negative) the viewer-local
// date of the same instant.
func RelativeDay(instant time.Time, loc, viewer *time.Location) int {
	target := civilDate(instant.In(loc))
	here := civilDate(instant.In(viewer))
	return int(target.Sub(here) / (24 * time.Hour))
}

// DayLabel renders the relative-day count: "" for today, named labels for
// the adjacent days and a signed count beyond that.
func DayLabel(days int) string {
	switch {
	case days == 0:
		return ""
	case days == 1:
		return "tomorrow"
	case days == -1:
		return "yesterday"
	case days > 1:
		return fmt.Sprintf("+%d", days)
	default:
		return fmt.Sprintf("%d", days)
	}
}

// FormatOffset renders an offset-hours value as "UTC+8", "UTC-3.5" etc.
func FormatOffset(hours float64) string {
	if hours == math.Trunc(hours) {
		return fmt.Sprintf("UTC%+d", int(hours))
	}
	return fmt.Sprintf("UTC%+g", hours)
}

// FormatDelta renders the hour difference versus the viewer ("+3h",
// "-9.5h"), or "synced" when there is none.
func FormatDelta(hours float64) string {
	if hours == 0 {
		return "synced"
	}
	if hours == math.Trunc(hours) {
		return fmt.Sprintf("%+dh", int(hours))
	}
	return fmt.Sprintf("%+gh", hours)
}

// civilDate collapses a wall-clock time to midnight UTC of its calendar
// date, so date arithmetic is a plain duration divide.
func civilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
