package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"tzmap/internal/cities"
	"tzmap/internal/engine"
	"tzmap/internal/timesource"
)

type HealthHandler struct {
	engine    *engine.Engine
	directory *cities.Directory
	clock     timesource.Clock
}

func NewHealthHandler(eng *engine.Engine, dir *cities.Directory, clock timesource.Clock) *HealthHandler {
	return &HealthHandler{
		engine:    eng,
		directory: dir,
		clock:     clock,
	}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type ReadyResponse struct {
	Ready      bool      `json:"ready"`
	CityCount  int       `json:"cityCount"`
	ServerTime time.Time `json:"serverTime"`
}

func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ready := h.engine.IsReady()
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ReadyResponse{
		Ready:      ready,
		CityCount:  h.directory.Count(),
		ServerTime: h.clock.Now(),
	})
}
