package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"tzmap/internal/cities"
	"tzmap/internal/config"
	"tzmap/internal/engine"
	"tzmap/internal/hub"
	"tzmap/internal/session"
	"tzmap/internal/timesource"
	"tzmap/internal/viewstate"
)

// WSHandler speaks the rendering-client protocol: input events in
// (pointer, click, hover, camera moves, search), drawing frames out.
type WSHandler struct {
	hub       *hub.Hub
	registry  *session.Registry
	engine    *engine.Engine
	directory *cities.Directory
	cameras   *viewstate.Manager
	clock     timesource.Clock
	config    *config.Config
	logger    *slog.Logger
}

func NewWSHandler(h *hub.Hub, registry *session.Registry, eng *engine.Engine, dir *cities.Directory, cameras *viewstate.Manager, clock timesource.Clock, cfg *config.Config, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		hub:       h,
		registry:  registry,
		engine:    eng,
		directory: dir,
		cameras:   cameras,
		clock:     clock,
		config:    cfg,
		logger:    logger,
	}
}

// Client-to-server message envelope and payloads.

type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// HelloPayload introduces the viewer: a durable id for camera
// persistence, a language tag, and the viewer's own timezone (IANA id
// preferred, minutes offset as fallback).
type HelloPayload struct {
	ViewerID        string `json:"viewerId,omitempty"`
	Locale          string `json:"locale,omitempty"`
	Timezone        string `json:"timezone,omitempty"`
	TZOffsetMinutes *int   `json:"tzOffsetMinutes,omitempty"`
}

type MovePayload struct {
	Camera viewstate.Camera `json:"camera"`
}

type MoveEndPayload struct {
	Camera viewstate.Camera `json:"camera"`
	North  *float64         `json:"north,omitempty"`
}

type PointerPayload struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

type ClickPayload struct {
	CityID string `json:"cityId,omitempty"`
}

type HoverPayload struct {
	CityID string `json:"cityId,omitempty"`
}

type SearchPayload struct {
	Query string `json:"query"`
}

type PinPayload struct {
	CityID string `json:"cityId"`
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}

	sessionID := uuid.New().String()
	client := hub.NewClient(sessionID, 256)
	h.hub.Register(client)
	ServerStats.IncWSConnections()

	// The session exists from the start so input events always have a
	// target; it joins the tick loop once hello establishes the viewer.
	sess := session.New(sessionID, h.directory.Featured(), viewstate.DefaultRegion(""), time.UTC, "")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writeLoop(ctx, conn, client)

	h.readLoop(ctx, conn, client, sess)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client, sess *session.Session) {
	viewerID := sess.ID

	defer func() {
		h.registry.Remove(sess.ID)
		h.hub.Unregister(client)
		ServerStats.DecWSConnections()
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				h.logger.Debug("websocket read error", "client_id", sess.ID, "error", err)
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}
		ServerStats.IncWSMessagesIn()

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("invalid message format", "client_id", sess.ID, "error", err)
			continue
		}

		switch msg.Type {
		case "hello":
			var payload HelloPayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				continue
			}
			if payload.ViewerID != "" {
				viewerID = payload.ViewerID
			}
			h.handleHello(ctx, sess, viewerID, payload)

		case "move":
			var payload MovePayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				continue
			}
			// In-progress camera: consumed live, never persisted.
			sess.SetCamera(payload.Camera.Clamp())

		case "moveend":
			var payload MoveEndPayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				continue
			}
			h.handleMoveEnd(ctx, sess, viewerID, payload)

		case "pointer":
			var payload PointerPayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				continue
			}
			sess.SetPointer(payload.Lng, payload.Lat)
			cur := h.engine.CursorState(session.Pointer{Lng: payload.Lng, Lat: payload.Lat}, h.clock.Now(), sess.Viewer())
			h.send(sess.ID, hub.CursorMessage{Type: hub.FrameCursor, Payload: cur})

		case "pointerleave":
			sess.ClearPointer()

		case "click":
			var payload ClickPayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				continue
			}
			if payload.CityID == "" {
				sess.ClickBackground()
			} else {
				sess.Click(payload.CityID)
			}

		case "hover":
			var payload HoverPayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				continue
			}
			sess.Hover(payload.CityID)

		case "search":
			var payload SearchPayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				continue
			}
			h.handleSearch(sess, payload.Query)

		case "pin":
			var payload PinPayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				continue
			}
			h.handlePin(sess, payload.CityID)

		case "reset":
			h.handleReset(ctx, sess, viewerID)

		case "ping":
			h.send(sess.ID, hub.PongMessage{Type: hub.FramePong})
		}
	}
}

func (h *WSHandler) handleHello(ctx context.Context, sess *session.Session, viewerID string, payload HelloPayload) {
	sess.SetViewer(resolveViewerZone(payload), payload.Locale)

	cam, saved := h.cameras.Load(ctx, viewerID, payload.Locale)
	sess.SetCamera(cam)

	h.registry.Add(sess)

	now := h.clock.Now()
	h.send(sess.ID, hub.InitMessage{
		Type: hub.FrameInit,
		Payload: hub.InitPayload{
			SessionID:   sess.ID,
			Camera:      cam,
			SavedCamera: saved,
			Markers:     h.engine.BuildTick(sess, now).Markers,
			Meridians:   h.engine.BuildMeridians(sess, now),
		},
	})

	// First visit: fly from the world view into the locale's home region.
	if !saved {
		h.sendFlyTo(sess.ID, cam, h.config.ResetFlyToDuration)
	}

	h.logger.Debug("session established",
		"client_id", sess.ID,
		"locale", payload.Locale,
		"saved_camera", saved,
	)
}

func (h *WSHandler) handleMoveEnd(ctx context.Context, sess *session.Session, viewerID string, payload MoveEndPayload) {
	cam := payload.Camera.Clamp()
	sess.SetCamera(cam)
	if payload.North != nil {
		sess.SetNorth(*payload.North)
	}

	// Only settled camera changes are persisted.
	h.cameras.Save(ctx, viewerID, cam)

	h.send(sess.ID, hub.MeridianMessage{
		Type:    hub.FrameMeridians,
		Payload: hub.MeridianPayload{Labels: h.engine.BuildMeridians(sess, h.clock.Now())},
	})
}

func (h *WSHandler) handleSearch(sess *session.Session, query string) {
	matches := h.directory.Search(query)
	locale := sess.Locale()

	results := make([]hub.CityResult, 0, len(matches))
	for _, c := range matches {
		results = append(results, hub.CityResult{
			ID:          c.ID,
			Name:        c.Name,
			LocalName:   c.LocalizedName(locale),
			Country:     c.Country,
			CountryCode: c.CountryCode,
			Timezone:    c.Timezone,
			Lat:         c.Lat,
			Lng:         c.Lng,
		})
	}

	h.send(sess.ID, hub.ResultsMessage{
		Type:    hub.FrameResults,
		Payload: hub.ResultsPayload{Query: query, Results: results},
	})
}

func (h *WSHandler) handlePin(sess *session.Session, cityID string) {
	c, ok := h.directory.Resolve(cityID)
	if !ok {
		return
	}

	// Pin dedupes against featured and prior pins; either way the city is
	// selected and the camera flies to it. The newest fly-to always wins.
	sess.Pin(c)
	sess.Select(c.ID)
	h.sendFlyTo(sess.ID, viewstate.Camera{CenterLng: c.Lng, CenterLat: c.Lat, Zoom: h.config.FlyToZoom}, h.config.FlyToDuration)
}

func (h *WSHandler) handleReset(ctx context.Context, sess *session.Session, viewerID string) {
	cam := h.cameras.Reset(ctx, viewerID, sess.Locale())
	sess.SetCamera(cam)
	h.sendFlyTo(sess.ID, cam, h.config.ResetFlyToDuration)
}

func (h *WSHandler) sendFlyTo(sessionID string, cam viewstate.Camera, duration time.Duration) {
	h.send(sessionID, hub.FlyToMessage{
		Type: hub.FrameFlyTo,
		Payload: hub.FlyToPayload{
			Lat:        cam.CenterLat,
			Lng:        cam.CenterLng,
			Zoom:       cam.Zoom,
			DurationMs: int(duration.Milliseconds()),
		},
	})
}

func (h *WSHandler) send(sessionID string, frame any) {
	if h.hub.SendJSON(sessionID, frame) {
		ServerStats.IncWSMessagesOut()
	}
}

// resolveViewerZone picks the viewer's timezone from the hello payload:
// a valid IANA id wins, then a fixed zone built from the minutes offset,
// then UTC.
func resolveViewerZone(payload HelloPayload) *time.Location {
	if payload.Timezone != "" {
		if loc, err := time.LoadLocation(payload.Timezone); err == nil {
			return loc
		}
	}
	if payload.TZOffsetMinutes != nil {
		min := *payload.TZOffsetMinutes
		if min >= -14*60 && min <= 14*60 {
			return time.FixedZone("viewer", min*60)
		}
	}
	return time.UTC
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-client.Send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
