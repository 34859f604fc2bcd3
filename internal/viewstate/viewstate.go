// Package viewstate owns the map camera: validation, the locale-derived
// default region, and persistence of the last settled camera per viewer.
package viewstate

import (
	"context"
	"log/slog"
	"strings"

	"tzmap/internal/timemath"
)

// Zoom bounds enforced when accepting cameras from the client.
const (
	MinZoom = 1.5
	MaxZoom = 10
)

// Camera is the map view: center coordinate plus zoom level.
type Camera struct {
	CenterLng float64 `json:"centerLng"`
	CenterLat float64 `json:"centerLat"`
	Zoom      float64 `json:"zoom"`
}

// Clamp normalizes a camera into the accepted range: longitude wrapped to
// [-180, 180], latitude and zoom clipped.
func (c Camera) Clamp() Camera {
	c.CenterLng = timemath.WrapLongitude(c.CenterLng)
	if c.CenterLat > 85 {
		c.CenterLat = 85
	}
	if c.CenterLat < -85 {
		c.CenterLat = -85
	}
	if c.Zoom < MinZoom {
		c.Zoom = MinZoom
	}
	if c.Zoom > MaxZoom {
		c.Zoom = MaxZoom
	}
	return c
}

// worldView is the global fallback when no locale matches.
var worldView = Camera{CenterLng: 0, CenterLat: 25, Zoom: 1.5}

// regionByLanguage maps a lowercase language tag to its approximate
// home region.
var regionByLanguage = map[string]Camera{
	"zh":    {CenterLng: 105, CenterLat: 35, Zoom: 3},
	"zh-cn": {CenterLng: 105, CenterLat: 35, Zoom: 3},
	"ja":    {CenterLng: 138, CenterLat: 36, Zoom: 4},
	"ko":    {CenterLng: 128, CenterLat: 36, Zoom: 4},
	"en":    {CenterLng: -100, CenterLat: 40, Zoom: 3},
	"en-us": {CenterLng: -100, CenterLat: 40, Zoom: 3},
	"en-gb": {CenterLng: -2, CenterLat: 54, Zoom: 4},
	"de":    {CenterLng: 10, CenterLat: 51, Zoom: 4},
	"fr":    {CenterLng: 2, CenterLat: 46, Zoom: 4},
}

// DefaultRegion resolves the starting camera for a viewer language tag.
// Fallback chain: exact tag, language-only prefix, world view.
func DefaultRegion(languageTag string) Camera {
	lang := strings.ToLower(strings.TrimSpace(languageTag))
	if cam, ok := regionByLanguage[lang]; ok {
		return cam
	}
	if i := strings.IndexByte(lang, '-'); i > 0 {
		if cam, ok := regionByLanguage[lang[:i]]; ok {
			return cam
		}
	}
	return worldView
}

// Manager loads and saves the per-viewer camera record. Storage failures
// never reach the caller: reads degrade to the locale default and writes
// fall back to an in-process store, so a flaky backend behaves like a
// cache miss.
type Manager struct {
	store    Store
	fallback *MemoryStore
	logger   *slog.Logger
}

// NewManager wraps a store. A nil store means in-process persistence only.
func NewManager(store Store, logger *slog.Logger) *Manager {
	m := &Manager{
		store:    store,
		fallback: NewMemoryStore(),
		logger:   logger.With("component", "viewstate"),
	}
	if m.store == nil {
		m.store = m.fallback
	}
	return m
}

// Load returns the persisted camera for the viewer, or the locale default
// when nothing well-formed is stored. The second result reports whether a
// saved camera was found.
func (m *Manager) Load(ctx context.Context, viewerID, languageTag string) (Camera, bool) {
	cam, ok, err := m.store.Load(ctx, viewerID)
	if err != nil {
		m.logger.Debug("camera load failed, treating as miss", "viewer_id", viewerID, "error", err)
		cam, ok, _ = m.fallback.Load(ctx, viewerID)
	}
	if !ok {
		return DefaultRegion(languageTag), false
	}
	return cam.Clamp(), true
}

// Save persists a settled camera. It never fails the caller; call this
// only on move-end, not on intermediate frames.
func (m *Manager) Save(ctx context.Context, viewerID string, cam Camera) {
	cam = cam.Clamp()
	if err := m.store.Save(ctx, viewerID, cam); err != nil {
		m.logger.Debug("camera save failed, keeping in-process copy", "viewer_id", viewerID, "error", err)
		m.fallback.Save(ctx, viewerID, cam)
	}
}

// Reset clears the persisted camera and returns the locale default.
func (m *Manager) Reset(ctx context.Context, viewerID, languageTag string) Camera {
	if err := m.store.Clear(ctx, viewerID); err != nil {
		m.logger.Debug("camera clear failed", "viewer_id", viewerID, "error", err)
	}
	m.fallback.Clear(ctx, viewerID)
	return DefaultRegion(languageTag)
}
