package handler

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"tzmap/internal/cities"
	"tzmap/internal/hub"
	"tzmap/internal/session"
)

// Stats tracks server-wide counters.
type Stats struct {
	startTime        time.Time
	requestCount     atomic.Int64
	wsConnections    atomic.Int64
	wsMessagesIn     atomic.Int64
	wsMessagesOut    atomic.Int64
	rateLimitBlocked atomic.Int64
}

// Global stats instance.
var ServerStats = &Stats{
	startTime: time.Now(),
}

func (s *Stats) IncRequests()         { s.requestCount.Add(1) }
func (s *Stats) IncWSConnections()    { s.wsConnections.Add(1) }
func (s *Stats) DecWSConnections()    { s.wsConnections.Add(-1) }
func (s *Stats) IncWSMessagesIn()     { s.wsMessagesIn.Add(1) }
func (s *Stats) IncWSMessagesOut()    { s.wsMessagesOut.Add(1) }
func (s *Stats) IncRateLimitBlocked() { s.rateLimitBlocked.Add(1) }

type StatsHandler struct {
	directory *cities.Directory
	registry  *session.Registry
	hub       *hub.Hub
}

func NewStatsHandler(dir *cities.Directory, registry *session.Registry, h *hub.Hub) *StatsHandler {
	return &StatsHandler{
		directory: dir,
		registry:  registry,
		hub:       h,
	}
}

type StatsResponse struct {
	Server    ServerStatsResponse    `json:"server"`
	Catalogue CatalogueStatsResponse `json:"catalogue"`
	Sessions  SessionStatsResponse   `json:"sessions"`
	WebSocket WebSocketStatsResponse `json:"websocket"`
	Go        GoStatsResponse        `json:"go"`
}

type ServerStatsResponse struct {
	Uptime        string    `json:"uptime"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	StartTime     time.Time `json:"start_time"`
	RequestCount  int64     `json:"request_count"`
	RateLimited   int64     `json:"rate_limited"`
	Version       string    `json:"version"`
}

type CatalogueStatsResponse struct {
	Cities   int `json:"cities"`
	Featured int `json:"featured"`
}

type SessionStatsResponse struct {
	Active int `json:"active"`
}

type WebSocketStatsResponse struct {
	Connections int64 `json:"connections"`
	MessagesIn  int64 `json:"messages_in"`
	MessagesOut int64 `json:"messages_out"`
}

type GoStatsResponse struct {
	Goroutines  int     `json:"goroutines"`
	HeapAlloc   uint64  `json:"heap_alloc_bytes"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	NumGC       uint32  `json:"num_gc"`
	GoVersion   string  `json:"go_version"`
}

func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ServerStats.IncRequests()

	uptime := time.Since(ServerStats.startTime)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	response := StatsResponse{
		Server: ServerStatsResponse{
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			StartTime:     ServerStats.startTime,
			RequestCount:  ServerStats.requestCount.Load(),
			RateLimited:   ServerStats.rateLimitBlocked.Load(),
			Version:       "1.0.0",
		},
		Catalogue: CatalogueStatsResponse{
			Cities:   h.directory.Count(),
			Featured: len(h.directory.Featured()),
		},
		Sessions: SessionStatsResponse{
			Active: h.registry.Count(),
		},
		WebSocket: WebSocketStatsResponse{
			Connections: ServerStats.wsConnections.Load(),
			MessagesIn:  ServerStats.wsMessagesIn.Load(),
			MessagesOut: ServerStats.wsMessagesOut.Load(),
		},
		Go: GoStatsResponse{
			Goroutines:  runtime.NumGoroutine(),
			HeapAlloc:   mem.HeapAlloc,
			HeapAllocMB: float64(mem.HeapAlloc) / 1024 / 1024,
			NumGC:       mem.NumGC,
			GoVersion:   runtime.Version(),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	json.NewEncoder(w).Encode(response)
}
