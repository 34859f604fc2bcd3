package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"tzmap/internal/cities"
	"tzmap/internal/config"
	"tzmap/internal/engine"
	"tzmap/internal/hub"
	"tzmap/internal/session"
	"tzmap/internal/timesource"
	"tzmap/internal/viewstate"
)

func TestResolveViewerZone(t *testing.T) {
	offset := 330

	tests := []struct {
		name    string
		payload HelloPayload
		want    string
	}{
		{"iana id", HelloPayload{Timezone: "Asia/Tokyo"}, "Asia/Tokyo"},
		{"invalid id falls back to utc", HelloPayload{Timezone: "Mars/Olympus"}, "UTC"},
		{"minutes offset", HelloPayload{TZOffsetMinutes: &offset}, "viewer"},
		{"invalid id with offset fallback", HelloPayload{Timezone: "nope", TZOffsetMinutes: &offset}, "viewer"},
		{"nothing", HelloPayload{}, "UTC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc := resolveViewerZone(tt.payload)
			if loc.String() != tt.want {
				t.Errorf("zone = %q, want %q", loc.String(), tt.want)
			}
		})
	}
}

func TestResolveViewerZoneOffset(t *testing.T) {
	offset := 330
	loc := resolveViewerZone(HelloPayload{TZOffsetMinutes: &offset})

	ref := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	if got := ref.In(loc).Format("15:04"); got != "17:30" {
		t.Errorf("12:00 UTC in +330min zone = %s, want 17:30", got)
	}

	absurd := 20 * 60
	if loc := resolveViewerZone(HelloPayload{TZOffsetMinutes: &absurd}); loc != time.UTC {
		t.Errorf("out-of-range offset resolved to %v, want UTC", loc)
	}
}

// wsFixture wires a WSHandler with a live hub and a captive client so
// protocol handlers can be exercised without a real websocket.
type wsFixture struct {
	handler *WSHandler
	sess    *session.Session
	client  *hub.Client
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	dir, err := cities.Load(logger)
	if err != nil {
		t.Fatalf("load directory: %v", err)
	}

	cfg := &config.Config{
		TickInterval:            time.Second,
		MeridianRefreshInterval: time.Minute,
		FlyToZoom:               5,
		FlyToDuration:           1500 * time.Millisecond,
		ResetFlyToDuration:      2 * time.Second,
	}

	clock := timesource.Fixed(testInstant)
	registry := session.NewRegistry()
	h := hub.NewHub(logger)
	eng := engine.New(clock, registry, h, cfg, logger)
	cameras := viewstate.NewManager(viewstate.NewMemoryStore(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)

	wsh := NewWSHandler(h, registry, eng, dir, cameras, clock, cfg, logger)

	sess := session.New("s1", dir.Featured(), viewstate.DefaultRegion("en"), time.UTC, "en")
	client := hub.NewClient(sess.ID, 16)
	h.Register(client)

	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(time.Millisecond)
	}

	return &wsFixture{handler: wsh, sess: sess, client: client}
}

func (f *wsFixture) nextFrame(t *testing.T) (string, json.RawMessage) {
	t.Helper()
	select {
	case data := <-f.client.Send:
		var envelope struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		return envelope.Type, envelope.Payload
	case <-time.After(2 * time.Second):
		t.Fatal("no frame queued")
		return "", nil
	}
}

func TestHandleHelloSendsInit(t *testing.T) {
	f := newWSFixture(t)

	f.handler.handleHello(context.Background(), f.sess, "viewer-1", HelloPayload{Locale: "de", Timezone: "Europe/Berlin"})

	frameType, payload := f.nextFrame(t)
	if frameType != hub.FrameInit {
		t.Fatalf("frame = %s, want init", frameType)
	}

	var init hub.InitPayload
	if err := json.Unmarshal(payload, &init); err != nil {
		t.Fatalf("unmarshal init: %v", err)
	}
	if init.SessionID != "s1" {
		t.Errorf("session id = %s, want s1", init.SessionID)
	}
	if init.SavedCamera {
		t.Error("first visit should not report a saved camera")
	}
	if len(init.Markers) == 0 || len(init.Meridians) != 25 {
		t.Errorf("init carried %d markers and %d meridians", len(init.Markers), len(init.Meridians))
	}
	// German locale lands on the central European default region.
	if init.Camera.CenterLng != 10 || init.Camera.CenterLat != 51 {
		t.Errorf("camera = %+v, want the de home region", init.Camera)
	}

	// Without a saved camera the client is flown into the home region.
	frameType, _ = f.nextFrame(t)
	if frameType != hub.FrameFlyTo {
		t.Errorf("follow-up frame = %s, want flyto", frameType)
	}
}

func TestHandleHelloRestoresSavedCamera(t *testing.T) {
	f := newWSFixture(t)

	saved := viewstate.Camera{CenterLng: -74.006, CenterLat: 40.7128, Zoom: 5}
	f.handler.cameras.Save(context.Background(), "viewer-1", saved)

	f.handler.handleHello(context.Background(), f.sess, "viewer-1", HelloPayload{Locale: "en"})

	_, payload := f.nextFrame(t)
	var init hub.InitPayload
	if err := json.Unmarshal(payload, &init); err != nil {
		t.Fatalf("unmarshal init: %v", err)
	}
	if !init.SavedCamera {
		t.Fatal("returning viewer should report a saved camera")
	}
	if init.Camera != saved {
		t.Errorf("camera = %+v, want the saved one %+v", init.Camera, saved)
	}

	// No fly-to follows a restored camera.
	select {
	case data := <-f.client.Send:
		t.Fatalf("unexpected extra frame: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandlePinFliesToCity(t *testing.T) {
	f := newWSFixture(t)

	before := f.sess.LiveCount()
	f.handler.handlePin(f.sess, "osaka")
	if f.sess.LiveCount() != before+1 {
		t.Error("pinning a new city should grow the live set")
	}

	frameType, payload := f.nextFrame(t)
	if frameType != hub.FrameFlyTo {
		t.Fatalf("frame = %s, want flyto", frameType)
	}

	var fly hub.FlyToPayload
	if err := json.Unmarshal(payload, &fly); err != nil {
		t.Fatalf("unmarshal flyto: %v", err)
	}
	if fly.Zoom != 5 || fly.DurationMs != 1500 {
		t.Errorf("flyto = %+v, want zoom 5 over 1500ms", fly)
	}

	if f.sess.Selected() != "osaka" {
		t.Errorf("selected = %q, want osaka", f.sess.Selected())
	}

	// Pinning again moves the camera but never duplicates the marker.
	before = f.sess.LiveCount()
	f.handler.handlePin(f.sess, "osaka")
	if f.sess.LiveCount() != before {
		t.Error("repeat pin grew the live set")
	}
	if frameType, _ := f.nextFrame(t); frameType != hub.FrameFlyTo {
		t.Error("repeat pin should still fly to the city")
	}

	f.handler.handlePin(f.sess, "atlantis")
	select {
	case data := <-f.client.Send:
		t.Fatalf("unknown city produced a frame: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandleSearchSendsResults(t *testing.T) {
	f := newWSFixture(t)

	f.handler.handleSearch(f.sess, "japan")

	frameType, payload := f.nextFrame(t)
	if frameType != hub.FrameResults {
		t.Fatalf("frame = %s, want results", frameType)
	}

	var results hub.ResultsPayload
	if err := json.Unmarshal(payload, &results); err != nil {
		t.Fatalf("unmarshal results: %v", err)
	}
	if results.Query != "japan" {
		t.Errorf("query echo = %q, want japan", results.Query)
	}
	if len(results.Results) == 0 {
		t.Fatal("country search returned nothing")
	}
	for _, r := range results.Results {
		if r.CountryCode != "JP" {
			t.Errorf("result %s has country code %s, want JP", r.ID, r.CountryCode)
		}
	}
}

func TestHandleResetFliesHome(t *testing.T) {
	f := newWSFixture(t)

	f.handler.cameras.Save(context.Background(), "viewer-1", viewstate.Camera{CenterLng: 100, CenterLat: 10, Zoom: 7})
	f.sess.SetViewer(time.UTC, "fr")

	f.handler.handleReset(context.Background(), f.sess, "viewer-1")

	frameType, payload := f.nextFrame(t)
	if frameType != hub.FrameFlyTo {
		t.Fatalf("frame = %s, want flyto", frameType)
	}

	var fly hub.FlyToPayload
	if err := json.Unmarshal(payload, &fly); err != nil {
		t.Fatalf("unmarshal flyto: %v", err)
	}
	if fly.Lng != 2 || fly.Lat != 46 {
		t.Errorf("reset flew to %+v, want the fr home region", fly)
	}
	if fly.DurationMs != 2000 {
		t.Errorf("reset duration = %d, want 2000", fly.DurationMs)
	}

	// The stored camera is gone; the next load is the locale default again.
	if _, saved := f.handler.cameras.Load(context.Background(), "viewer-1", "fr"); saved {
		t.Error("reset left a saved camera behind")
	}
}

func TestHandleMoveEndPersistsAndRefreshesMeridians(t *testing.T) {
	f := newWSFixture(t)

	north := 60.0
	f.handler.handleMoveEnd(context.Background(), f.sess, "viewer-1",
		MoveEndPayload{Camera: viewstate.Camera{CenterLng: 30, CenterLat: 50, Zoom: 6}, North: &north})

	frameType, payload := f.nextFrame(t)
	if frameType != hub.FrameMeridians {
		t.Fatalf("frame = %s, want meridians", frameType)
	}

	var m hub.MeridianPayload
	if err := json.Unmarshal(payload, &m); err != nil {
		t.Fatalf("unmarshal meridians: %v", err)
	}
	if len(m.Labels) != 25 || m.Labels[0].Lat != 55 {
		t.Errorf("labels = %d at lat %v, want 25 at 55", len(m.Labels), m.Labels[0].Lat)
	}

	if cam, saved := f.handler.cameras.Load(context.Background(), "viewer-1", "en"); !saved || cam.CenterLng != 30 {
		t.Errorf("persisted camera = %+v saved=%v, want the settled one", cam, saved)
	}
	if f.sess.North() != 60 {
		t.Errorf("north = %v, want 60", f.sess.North())
	}
}
