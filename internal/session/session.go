// Package session tracks per-viewer map state: the live city set
// (featured plus pinned), popup selection, the current camera and the
// cursor position. One Session per connected rendering client.
package session

import (
	"sync"
	"time"

	"tzmap/internal/cities"
	"tzmap/internal/viewstate"
)

// defaultNorth is the visible top latitude assumed until the client
// reports real viewport bounds.
const defaultNorth = 85.0

// Pointer is the last reported cursor coordinate.
type Pointer struct {
	Lng float64
	Lat float64
}

// Session is the mutable state for one viewer. All methods are safe for
// concurrent use; the engine reads on its tick while the websocket
// handler writes on input events.
type Session struct {
	ID string

	mu       sync.RWMutex
	viewer   *time.Location
	locale   string
	live     []*cities.City
	liveIDs  map[string]struct{}
	selected string
	hovered  string
	camera   viewstate.Camera
	north    float64
	pointer  *Pointer
}

// New builds a session seeded with the featured city set.
func New(id string, featured []*cities.City, cam viewstate.Camera, viewer *time.Location, locale string) *Session {
	s := &Session{
		ID:      id,
		viewer:  viewer,
		locale:  locale,
		live:    make([]*cities.City, 0, len(featured)),
		liveIDs: make(map[string]struct{}, len(featured)),
		camera:  cam,
		north:   defaultNorth,
	}
	for _, c := range featured {
		if _, dup := s.liveIDs[c.ID]; dup {
			continue
		}
		s.live = append(s.live, c)
		s.liveIDs[c.ID] = struct{}{}
	}
	return s
}

// Viewer returns the viewer's own timezone, used for relative-day labels.
func (s *Session) Viewer() *time.Location {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewer
}

// Locale returns the viewer's language tag.
func (s *Session) Locale() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.locale
}

// SetViewer updates the viewer zone and locale, from the hello message.
func (s *Session) SetViewer(viewer *time.Location, locale string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if viewer != nil {
		s.viewer = viewer
	}
	if locale != "" {
		s.locale = locale
	}
}

// Pin adds a city to the live set. It reports whether the set grew; a
// city already featured or already pinned is never duplicated. Pinned
// cities stay for the session's lifetime so marker identity is stable.
func (s *Session) Pin(c *cities.City) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.liveIDs[c.ID]; exists {
		return false
	}
	s.live = append(s.live, c)
	s.liveIDs[c.ID] = struct{}{}
	return true
}

// Live returns the live city set in insertion order: featured first,
// then pins in the order they arrived.
func (s *Session) Live() []*cities.City {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*cities.City, len(s.live))
	copy(out, s.live)
	return out
}

// LiveCount reports the live set size.
func (s *Session) LiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.live)
}

// Click toggles selection for a marker click: selecting an unselected
// city, deselecting the already-selected one. Hover is left alone; the
// popup rule resolves precedence.
func (s *Session) Click(cityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, live := s.liveIDs[cityID]; !live {
		return
	}
	if s.selected == cityID {
		s.selected = ""
		return
	}
	s.selected = cityID
}

// ClickBackground clears the selection (map-background click).
func (s *Session) ClickBackground() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = ""
}

// Select sets the selection directly, used when a search pin lands.
func (s *Session) Select(cityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = cityID
}

// Hover records the hovered city; an empty id clears it. Hover state is
// independent of selection.
func (s *Session) Hover(cityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hovered = cityID
}

// Selected returns the selected city id, or empty.
func (s *Session) Selected() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// PopupCityID resolves the exactly-one-popup rule: the selected city if
// any, else the hovered city, else none.
func (s *Session) PopupCityID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected != "" {
		return s.selected
	}
	return s.hovered
}

// SetCamera records the current camera. Called on every move event, not
// just settled ones; persistence is the caller's concern.
func (s *Session) SetCamera(cam viewstate.Camera) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.camera = cam
}

// Camera returns the current (possibly in-flight) camera.
func (s *Session) Camera() viewstate.Camera {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.camera
}

// SetNorth records the visible top latitude reported by the client.
func (s *Session) SetNorth(north float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.north = north
}

// North returns the visible top latitude for meridian label clipping.
func (s *Session) North() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.north
}

// SetPointer records the cursor coordinate driving the readout.
func (s *Session) SetPointer(lng, lat float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pointer = &Pointer{Lng: lng, Lat: lat}
}

// ClearPointer drops the cursor readout (pointer left the map).
func (s *Session) ClearPointer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pointer = nil
}

// Pointer returns the last cursor coordinate, if any.
func (s *Session) Pointer() (Pointer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pointer == nil {
		return Pointer{}, false
	}
	return *s.pointer, true
}

// Registry is the set of connected sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// All returns a snapshot of the connected sessions.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
