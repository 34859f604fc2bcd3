// Package meridian derives the 15-degree timezone reference grid: 25
// lines from -180 to 180, each labeled with its integer offset hour and
// the current synthetic-zone clock text.
package meridian

import (
	"time"

	"tzmap/internal/timemath"
)

const (
	step = 15
	// Labels sit just under the visible top edge, but never above this
	// latitude so extreme zoom-outs keep them on the map.
	maxLabelLat = 80
	labelInset  = 5
)

// Count is the fixed size of the grid: one label per 15 degrees,
// inclusive of both antimeridian edges.
const Count = 25

// Label is one reference line with its render-time text.
type Label struct {
	Lng         float64 `json:"lng"`
	Lat         float64 `json:"lat"`
	OffsetHours int     `json:"offsetHours"`
	OffsetLabel string  `json:"offsetLabel"`
	Clock       string  `json:"clock"`
}

// Grid produces the full replacement label set for the given instant and
// visible top latitude. Always exactly Count entries; callers swap the
// whole set rather than patching.
func Grid(now time.Time, northLat float64, viewer *time.Location) []Label {
	lat := northLat - labelInset
	if lat > maxLabelLat {
		lat = maxLabelLat
	}

	labels := make([]Label, 0, Count)
	for lng := -180; lng <= 180; lng += step {
		offset := lng / step
		s := timemath.AtLongitude(now, float64(lng), viewer)
		labels = append(labels, Label{
			Lng:         float64(lng),
			Lat:         lat,
			OffsetHours: offset,
			OffsetLabel: timemath.FormatOffset(float64(offset)),
			Clock:       s.Clock[:5],
		})
	}
	return labels
}
