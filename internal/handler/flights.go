package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"flightmap/internal/domain"
	"flightmap/internal/flights"
	"flightmap/internal/session"
	"flightmap/internal/spatial"
	"flightmap/internal/store"
)

// SelectionPayload is a marker selection, over HTTP and websocket alike.
type SelectionPayload struct {
	Flights    []domain.AircraftPoint `json:"flights"`
	Count      int                    `json:"count"`
	Filtered   int                    `json:"filtered"`
	Total      int                    `json:"total"`
	Version    uint64                 `json:"version"`
	LOD        bool                   `json:"lod"`
	Notice     string                 `json:"notice,omitempty"`
	ServerTime time.Time              `json:"serverTime"`
}

func newSelectionPayload(s *session.Session) SelectionPayload {
	sel := s.Selection()
	if sel == nil {
		sel = []domain.AircraftPoint{}
	}
	p := SelectionPayload{
		Flights:    sel,
		Count:      len(sel),
		Filtered:   s.FilteredCount(),
		LOD:        s.Settings().LOD,
		ServerTime: time.Now(),
	}
	if snap := s.Snapshot(); snap != nil {
		p.Total = len(snap.Points)
		p.Version = snap.Version
	}
	return p
}

// ListFlights answers one display request: the markers to draw for the
// given filters, viewport and settings.
func (h *HTTPHandler) ListFlights(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w)
	if !ok {
		return
	}

	q := r.URL.Query()
	filters, err := parseFilters(q)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	viewport, err := parseViewport(q)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	settings, err := parseSettings(q, h.sessions.DefaultSettings())
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s := session.New("http", h.sessions, h.logger)
	defer s.Close()

	s.Refresh(snap)
	s.SetFilters(filters)
	if viewport != nil {
		if err := s.SetViewport(*viewport); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	var notice string
	if err := s.SetSettings(settings); err != nil {
		if !errors.Is(err, session.ErrLODUnsupported) {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		notice = err.Error()
	}

	payload := newSelectionPayload(s)
	payload.Notice = notice
	respondJSON(w, http.StatusOK, payload)
}

type FlightResponse struct {
	Flight         domain.AircraftPoint  `json:"flight"`
	Classification domain.Classification `json:"classification"`
	Route          *domain.Route         `json:"route,omitempty"`
}

// GetFlight looks up a flight by number and resolves its route. Unknown
// flights are 404; known flights without a usable route are 422.
func (h *HTTPHandler) GetFlight(w http.ResponseWriter, r *http.Request) {
	number := r.PathValue("number")
	if number == "" {
		respondError(w, http.StatusBadRequest, "missing flight number")
		return
	}

	p, ok := h.store.Get(number)
	if !ok {
		respondError(w, http.StatusNotFound, "Flight "+number+" not found")
		return
	}

	route, err := h.sessions.Classifier.ResolveRoute(p)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, FlightResponse{
		Flight:         p,
		Classification: h.sessions.Classifier.Classify(p),
		Route:          &route,
	})
}

type PointsResponse struct {
	Flights    []domain.AircraftPoint `json:"flights"`
	Count      int                    `json:"count"`
	ServerTime time.Time              `json:"serverTime"`
}

// ListPoints returns raw snapshot points, optionally restricted to an
// airport or a bounding box. No display selection is applied.
func (h *HTTPHandler) ListPoints(w http.ResponseWriter, r *http.Request) {
	opts := store.ListOptions{Airport: r.URL.Query().Get("airport")}

	if raw := r.URL.Query().Get("bbox"); raw != "" {
		bbox, err := parseBBox(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		opts.BBox = bbox
	}

	points := h.store.List(opts)
	if points == nil {
		points = []domain.AircraftPoint{}
	}

	respondJSON(w, http.StatusOK, PointsResponse{
		Flights:    points,
		Count:      len(points),
		ServerTime: time.Now(),
	})
}

type StatisticsResponse struct {
	flights.Statistics
	Version  uint64        `json:"version"`
	LoadedAt time.Time     `json:"loadedAt"`
	Source   string        `json:"source"`
	Index    spatial.Stats `json:"index"`
}

func (h *HTTPHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w)
	if !ok {
		return
	}

	all := h.sessions.Filters.Get(snap, domain.DefaultFilters())
	respondJSON(w, http.StatusOK, StatisticsResponse{
		Statistics: h.sessions.Classifier.Statistics(snap.Points),
		Version:    snap.Version,
		LoadedAt:   snap.LoadedAt,
		Source:     snap.Source,
		Index:      all.Index.Stats(),
	})
}

type BusyRoutesResponse struct {
	Routes []flights.RouteInfo `json:"routes"`
	Count  int                 `json:"count"`
}

func (h *HTTPHandler) BusyRoutes(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w)
	if !ok {
		return
	}

	n := flights.DefaultBusyRoutes
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			respondError(w, http.StatusBadRequest, "invalid n parameter: must be a positive integer")
			return
		}
		n = parsed
	}

	routes := flights.BusyRoutes(snap.Points, n)
	if routes == nil {
		routes = []flights.RouteInfo{}
	}
	respondJSON(w, http.StatusOK, BusyRoutesResponse{Routes: routes, Count: len(routes)})
}

type HeatmapResponse struct {
	CellSize float64             `json:"cellSize"`
	Cells    []spatial.Cell      `json:"cells"`
	Points   int                 `json:"points"`
	Bounds   *domain.BoundingBox `json:"bounds,omitempty"`
}

// Heatmap returns per-cell flight counts of the filtered set.
func (h *HTTPHandler) Heatmap(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w)
	if !ok {
		return
	}
	filters, err := parseFilters(r.URL.Query())
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	f := h.sessions.Filters.Get(snap, filters)
	cells := f.Index.Density()
	if cells == nil {
		cells = []spatial.Cell{}
	}
	resp := HeatmapResponse{
		CellSize: f.Index.CellSize(),
		Cells:    cells,
		Points:   len(f.Points),
	}
	if bb, ok := f.Index.Bounds(); ok {
		resp.Bounds = &bb
	}
	respondJSON(w, http.StatusOK, resp)
}

// maxNearbyRadius caps Nearby queries, whose distances are planar degrees.
const maxNearbyRadius = 5.0

type NearbyResponse struct {
	Center  domain.LatLng          `json:"center"`
	Radius  float64                `json:"radius"`
	Flights []domain.AircraftPoint `json:"flights"`
	Count   int                    `json:"count"`
}

// Nearby returns the filtered flights within radius degrees of lat,lng.
func (h *HTTPHandler) Nearby(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w)
	if !ok {
		return
	}

	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
	radius, errRadius := strconv.ParseFloat(q.Get("radius"), 64)
	center := domain.LatLng{Lat: lat, Lng: lng}
	if errLat != nil || errLng != nil || !center.Finite() {
		respondError(w, http.StatusBadRequest, "invalid lat or lng parameter")
		return
	}
	if errRadius != nil || radius <= 0 || radius > maxNearbyRadius {
		respondError(w, http.StatusBadRequest, "invalid radius parameter: must be in (0, 5] degrees")
		return
	}
	filters, err := parseFilters(q)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	points := h.sessions.Filters.Get(snap, filters).Index.QueryRadius(center, radius)
	if points == nil {
		points = []domain.AircraftPoint{}
	}
	respondJSON(w, http.StatusOK, NearbyResponse{
		Center:  center,
		Radius:  radius,
		Flights: points,
		Count:   len(points),
	})
}
