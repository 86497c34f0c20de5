package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"flightmap/internal/ingestor"
	"flightmap/internal/store"
)

// Pinger is an optional backing service checked by Readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	loader *ingestor.Loader
	store  *store.Store
	redis  Pinger
}

// NewHealthHandler creates the probes. redis may be nil.
func NewHealthHandler(loader *ingestor.Loader, s *store.Store, redis Pinger) *HealthHandler {
	return &HealthHandler{
		loader: loader,
		store:  s,
		redis:  redis,
	}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type ReadyResponse struct {
	Ready       bool      `json:"ready"`
	FlightCount int       `json:"flightCount"`
	Version     uint64    `json:"version"`
	Loading     bool      `json:"loading"`
	Redis       string    `json:"redis,omitempty"`
	ServerTime  time.Time `json:"serverTime"`
}

// Readyz is ready once the first point set is installed. Redis is reported
// but does not gate readiness; the service runs without it.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ready := h.loader.IsReady()
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	resp := ReadyResponse{
		Ready:       ready,
		FlightCount: h.store.Count(),
		Version:     h.store.Version(),
		Loading:     h.loader.Loading(),
		ServerTime:  time.Now(),
	}
	if h.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		resp.Redis = "ok"
		if err := h.redis.Ping(ctx); err != nil {
			resp.Redis = "down"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
