// Package engine owns the display scheduler: one goroutine driving the
// 1 Hz marker/popup/cursor tick and the slow meridian label refresh,
// publishing per-session frames through the hub. Every time value it
// emits comes from the single shared clock.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tzmap/internal/cities"
	"tzmap/internal/config"
	"tzmap/internal/hub"
	"tzmap/internal/meridian"
	"tzmap/internal/session"
	"tzmap/internal/timemath"
	"tzmap/internal/timesource"
)

// labelZoomThreshold is the zoom level above which marker name labels
// become visible.
const labelZoomThreshold = 4

type Engine struct {
	clock    timesource.Clock
	registry *session.Registry
	hub      *hub.Hub
	config   *config.Config
	logger   *slog.Logger

	ready   bool
	readyMu sync.RWMutex
}

func New(clock timesource.Clock, registry *session.Registry, h *hub.Hub, cfg *config.Config, logger *slog.Logger) *Engine {
	return &Engine{
		clock:    clock,
		registry: registry,
		hub:      h,
		config:   cfg,
		logger:   logger,
	}
}

// Run drives both cadences until the context closes. Each pass runs to
// completion before the next; there is no concurrent recomputation.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.config.TickInterval)
	defer ticker.Stop()

	meridianTicker := time.NewTicker(e.config.MeridianRefreshInterval)
	defer meridianTicker.Stop()

	e.setReady(true)
	e.logger.Info("engine running",
		"tick_interval", e.config.TickInterval,
		"meridian_refresh_interval", e.config.MeridianRefreshInterval,
	)

	for {
		select {
		case <-ctx.Done():
			e.setReady(false)
			return
		case <-ticker.C:
			e.publishTicks()
		case <-meridianTicker.C:
			e.publishMeridians()
		}
	}
}

func (e *Engine) publishTicks() {
	sessions := e.registry.All()
	if len(sessions) == 0 {
		return
	}

	now := e.clock.Now()
	for _, s := range sessions {
		frame := hub.TickMessage{
			Type:    hub.FrameTick,
			Payload: e.BuildTick(s, now),
		}
		e.hub.SendJSON(s.ID, frame)
	}
}

func (e *Engine) publishMeridians() {
	now := e.clock.Now()
	for _, s := range e.registry.All() {
		frame := hub.MeridianMessage{
			Type:    hub.FrameMeridians,
			Payload: hub.MeridianPayload{Labels: e.BuildMeridians(s, now)},
		}
		e.hub.SendJSON(s.ID, frame)
	}
}

// BuildTick computes the full per-session display state for one instant:
// marker states for the live set, the single popup if any, and the
// cursor readout.
func (e *Engine) BuildTick(s *session.Session, now time.Time) hub.TickPayload {
	viewer := s.Viewer()
	locale := s.Locale()
	zoom := s.Camera().Zoom

	live := s.Live()
	markers := make([]hub.MarkerState, 0, len(live))
	for _, c := range live {
		markers = append(markers, e.markerState(c, now, viewer, locale, zoom))
	}

	payload := hub.TickPayload{
		Markers:    markers,
		ServerTime: now,
	}

	if id := s.PopupCityID(); id != "" {
		for _, c := range live {
			if c.ID == id {
				p := e.popupState(c, now, viewer, locale)
				payload.Popup = &p
				break
			}
		}
	}

	if p, ok := s.Pointer(); ok {
		cur := e.CursorState(p, now, viewer)
		payload.Cursor = &cur
	}

	return payload
}

// BuildMeridians computes the full meridian label set for the session's
// current viewport.
func (e *Engine) BuildMeridians(s *session.Session, now time.Time) []meridian.Label {
	return meridian.Grid(now, s.North(), s.Viewer())
}

// CursorState computes the synthetic-zone readout for a cursor position.
func (e *Engine) CursorState(p session.Pointer, now time.Time, viewer *time.Location) hub.CursorState {
	snap := timemath.AtLongitude(now, p.Lng, viewer)
	return hub.CursorState{
		Lng:         p.Lng,
		Lat:         p.Lat,
		Clock:       snap.Clock,
		Date:        snap.Date,
		OffsetLabel: snap.OffsetLabel,
		DayLabel:    snap.DayLabel,
	}
}

func (e *Engine) markerState(c *cities.City, now time.Time, viewer *time.Location, locale string, zoom float64) hub.MarkerState {
	snap := timemath.At(now, c.Location(), viewer)
	return hub.MarkerState{
		CityID:    c.ID,
		Name:      c.Name,
		LocalName: c.LocalizedName(locale),
		Lat:       c.Lat,
		Lng:       c.Lng,
		Clock:     snap.Clock,
		IsDaytime: snap.IsDaytime,
		DayLabel:  snap.DayLabel,
		Ring:      ringClass(snap.DayLabel),
		ShowLabel: zoom >= labelZoomThreshold,
	}
}

func (e *Engine) popupState(c *cities.City, now time.Time, viewer *time.Location, locale string) hub.PopupState {
	snap := timemath.At(now, c.Location(), viewer)
	return hub.PopupState{
		CityID:      c.ID,
		Name:        c.Name,
		LocalName:   c.LocalizedName(locale),
		Country:     c.Country,
		Lat:         c.Lat,
		Lng:         c.Lng,
		Clock:       snap.Clock,
		Date:        snap.Date,
		OffsetLabel: snap.OffsetLabel,
		DeltaLabel:  timemath.FormatDelta(snap.DeltaHoursVsViewer),
		IsDaytime:   snap.IsDaytime,
		DayLabel:    snap.DayLabel,
	}
}

// ringClass maps a relative-day label to the marker ring indicator.
func ringClass(dayLabel string) string {
	switch {
	case dayLabel == "":
		return ""
	case dayLabel == "yesterday" || dayLabel[0] == '-':
		return "yesterday"
	default:
		return "tomorrow"
	}
}

func (e *Engine) IsReady() bool {
	e.readyMu.RLock()
	defer e.readyMu.RUnlock()
	return e.ready
}

func (e *Engine) setReady(ready bool) {
	e.readyMu.Lock()
	defer e.readyMu.Unlock()
	e.ready = ready
}
