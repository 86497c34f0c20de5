package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"flightmap/internal/domain"
	"flightmap/internal/geo"
	"flightmap/internal/ingestor"
	"flightmap/internal/session"
	"flightmap/internal/store"
	"flightmap/internal/weather"
)

// WeatherReporter is the weather service as used by the handlers.
type WeatherReporter interface {
	Report(ctx context.Context, code string) (weather.Report, error)
	Stats() weather.Stats
}

type HTTPHandler struct {
	store    *store.Store
	loader   *ingestor.Loader
	sessions session.Deps
	weather  WeatherReporter
	logger   *slog.Logger
}

func NewHTTPHandler(st *store.Store, loader *ingestor.Loader, sessions session.Deps, wx WeatherReporter, logger *slog.Logger) *HTTPHandler {
	return &HTTPHandler{
		store:    st,
		loader:   loader,
		sessions: sessions,
		weather:  wx,
		logger:   logger.With("component", "http"),
	}
}

// Register mounts every HTTP route on mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/flights", h.ListFlights)
	mux.HandleFunc("GET /v1/flights/{number}", h.GetFlight)
	mux.HandleFunc("GET /v1/points", h.ListPoints)
	mux.HandleFunc("GET /v1/stats", h.GetStatistics)
	mux.HandleFunc("GET /v1/routes/busy", h.BusyRoutes)
	mux.HandleFunc("GET /v1/heatmap", h.Heatmap)
	mux.HandleFunc("GET /v1/nearby", h.Nearby)
	mux.HandleFunc("GET /v1/airports/{code}/weather", h.GetWeather)
	mux.HandleFunc("GET /v1/lod", h.GetFrame)
	mux.HandleFunc("GET /v1/lod.png", h.GetFrameImage)
	mux.HandleFunc("GET /v1/lod/hit", h.HitTest)
	mux.HandleFunc("POST /v1/reload", h.Reload)
}

type ReloadResponse struct {
	Version  uint64    `json:"version"`
	Points   int       `json:"points"`
	LoadedAt time.Time `json:"loadedAt"`
	Source   string    `json:"source"`
}

// Reload drops the cached point set and loads it again.
func (h *HTTPHandler) Reload(w http.ResponseWriter, r *http.Request) {
	snap, err := h.loader.Reload(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, "reload failed: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, ReloadResponse{
		Version:  snap.Version,
		Points:   len(snap.Points),
		LoadedAt: snap.LoadedAt,
		Source:   snap.Source,
	})
}

func (h *HTTPHandler) snapshot(w http.ResponseWriter) (*store.Snapshot, bool) {
	snap := h.store.Snapshot()
	if snap == nil {
		respondError(w, http.StatusServiceUnavailable, session.ErrNoData.Error())
		return nil, false
	}
	return snap, true
}

// parseFilters reads the show* toggles; absent ones default to shown.
func parseFilters(q url.Values) (domain.FilterCriteria, error) {
	f := domain.DefaultFilters()
	toggles := []struct {
		name string
		dst  *bool
	}{
		{"grounded", &f.ShowGrounded},
		{"inAir", &f.ShowInAir},
		{"domestic", &f.ShowDomestic},
		{"international", &f.ShowInternational},
		{"incomplete", &f.ShowIncomplete},
	}
	for _, t := range toggles {
		v := q.Get(t.name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("invalid %s parameter: %q", t.name, v)
		}
		*t.dst = b
	}
	return f, nil
}

// parseViewport reads lat, lng, zoom, width and height. It returns nil when
// none of them is given.
func parseViewport(q url.Values) (*geo.Viewport, error) {
	names := []string{"lat", "lng", "zoom", "width", "height"}
	given := 0
	for _, n := range names {
		if q.Get(n) != "" {
			given++
		}
	}
	if given == 0 {
		return nil, nil
	}
	if given != len(names) {
		return nil, errors.New("viewport needs lat, lng, zoom, width and height")
	}

	var vals [3]float64
	for i, n := range names[:3] {
		v, err := strconv.ParseFloat(q.Get(n), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s parameter: %q", n, q.Get(n))
		}
		vals[i] = v
	}
	width, errW := strconv.Atoi(q.Get("width"))
	height, errH := strconv.Atoi(q.Get("height"))
	if errW != nil || errH != nil {
		return nil, errors.New("invalid width or height parameter")
	}

	vp := geo.Viewport{
		Center: domain.LatLng{Lat: vals[0], Lng: vals[1]},
		Zoom:   vals[2],
		Width:  width,
		Height: height,
	}
	if !vp.Valid() {
		return nil, session.ErrInvalidViewport
	}
	return &vp, nil
}

// parseSettings reads limit, culling and lod on top of the defaults.
func parseSettings(q url.Values, defaults session.Settings) (session.Settings, error) {
	s := defaults
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return s, fmt.Errorf("invalid limit parameter: %q", v)
		}
		s.MarkerLimit = n
	}
	for name, dst := range map[string]*bool{"culling": &s.ViewportCulling, "lod": &s.LOD} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return s, fmt.Errorf("invalid %s parameter: %q", name, v)
		}
		*dst = b
	}
	return s, nil
}

// parseBBox reads "north,south,east,west".
func parseBBox(raw string) (*domain.BoundingBox, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return nil, errors.New("invalid bbox format: expected north,south,east,west")
	}
	var vals [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid bbox values: %w", err)
		}
		vals[i] = v
	}
	bb := &domain.BoundingBox{North: vals[0], South: vals[1], East: vals[2], West: vals[3]}
	if !bb.Valid() {
		return nil, errors.New("invalid bbox values: north must not be below south")
	}
	return bb, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
