package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"flightmap/internal/airports"
	"flightmap/internal/domain"
	"flightmap/internal/flights"
	"flightmap/internal/geo"
	"flightmap/internal/hub"
	"flightmap/internal/ingestor"
	"flightmap/internal/render"
	"flightmap/internal/session"
	"flightmap/internal/store"
	"flightmap/internal/weather"
	"flightmap/pkg/geojson"
)

const nycQuery = "lat=40.75&lng=-73.8&zoom=10&width=800&height=600"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSource struct {
	mu     sync.Mutex
	points []domain.AircraftPoint
	err    error
}

func (f *fakeSource) Location() string { return "fake" }

func (f *fakeSource) Load(ctx context.Context) (*geojson.Collection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &geojson.Collection{Points: f.points}, nil
}

type fakeWeather struct {
	err error
}

func (f *fakeWeather) Report(ctx context.Context, code string) (weather.Report, error) {
	if f.err != nil {
		return weather.Report{}, f.err
	}
	return weather.NewReport(domain.Weather{Airport: code, Temperature: 50, WindSpeed: 12, WindDirection: 230, Visibility: 10}), nil
}

func (f *fakeWeather) Stats() weather.Stats {
	return weather.Stats{MemoryHits: 3, Misses: 1, Fetches: 1}
}

func testPoints() []domain.AircraftPoint {
	return []domain.AircraftPoint{
		{FlightNumber: "AA100", Origin: "JFK", Destination: "LAX", Position: domain.LatLng{Lat: 40.7, Lng: -74.0}, Altitude: domain.Float(30000)},
		{FlightNumber: "BA178", Origin: "JFK", Destination: "LHR", Position: domain.LatLng{Lat: 40.9, Lng: -73.5}, Altitude: domain.Float(35000)},
		{FlightNumber: "DL5", Origin: "BOS", Destination: "JFK", Position: domain.LatLng{Lat: 40.64, Lng: -73.78}, OnGround: true},
		{FlightNumber: "XX9", Position: domain.LatLng{Lat: 40.8, Lng: -73.9}, Altitude: domain.Float(12000)},
		{FlightNumber: "UA1", Origin: "LAX", Destination: "BOS", Position: domain.LatLng{Lat: 34.0, Lng: -118.0}, Altitude: domain.Float(20000)},
	}
}

type testEnv struct {
	store  *store.Store
	loader *ingestor.Loader
	source *fakeSource
	hub    *hub.Hub
	mux    *http.ServeMux
	wx     *fakeWeather
}

func newTestEnv(t *testing.T, surface render.Surface, load bool) *testEnv {
	t.Helper()

	classifier := flights.NewClassifier(airports.New([]domain.Airport{
		{Code: "JFK", Name: "John F. Kennedy International Airport", Lat: 40.6413, Lng: -73.7781, Country: "US"},
		{Code: "LAX", Name: "Los Angeles International Airport", Lat: 33.9416, Lng: -118.4085, Country: "US"},
		{Code: "BOS", Name: "Logan International Airport", Lat: 42.3656, Lng: -71.0096, Country: "US"},
		{Code: "LHR", Name: "Heathrow Airport", Lat: 51.47, Lng: -0.4543, Country: "GB"},
	}))
	fc, err := session.NewFilterCache(classifier, 0.5, 8)
	require.NoError(t, err)
	deps := session.Deps{Classifier: classifier, Filters: fc, Surface: surface, DefaultLimit: 50, MaxMarkerLimit: 100}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	env := &testEnv{
		store:  store.New(),
		source: &fakeSource{points: testPoints()},
		hub:    hub.NewHub(discardLogger()),
		mux:    http.NewServeMux(),
		wx:     &fakeWeather{},
	}
	go env.hub.Run(ctx)
	env.loader = ingestor.New(env.source, env.store, env.hub, 0, discardLogger())
	if load {
		_, err := env.loader.Load(ctx)
		require.NoError(t, err)
	}

	stats := NewStats()
	NewHTTPHandler(env.store, env.loader, deps, env.wx, discardLogger()).Register(env.mux)
	health := NewHealthHandler(env.loader, env.store, nil)
	env.mux.HandleFunc("GET /healthz", health.Healthz)
	env.mux.HandleFunc("GET /readyz", health.Readyz)
	env.mux.HandleFunc("GET /v1/server/stats", NewStatsHandler(stats, env.store, env.hub, fc, env.wx, nil).GetStats)
	env.mux.HandleFunc("GET /v1/ws", NewWSHandler(env.hub, env.store, deps, stats, discardLogger()).ServeWS)
	return env
}

func (e *testEnv) do(t *testing.T, method, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func flightNumbers(points []domain.AircraftPoint) []string {
	out := make([]string, len(points))
	for i, p := range points {
		out[i] = p.FlightNumber
	}
	return out
}

func TestListFlights(t *testing.T) {
	env := newTestEnv(t, nil, true)

	rec := env.do(t, http.MethodGet, "/v1/flights", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[SelectionPayload](t, rec)
	assert.Equal(t, 5, all.Count)
	assert.Equal(t, 5, all.Total)
	assert.Equal(t, uint64(1), all.Version)

	rec = env.do(t, http.MethodGet, "/v1/flights?limit=2&"+nycQuery, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	two := decode[SelectionPayload](t, rec)
	require.Len(t, two.Flights, 2)
	assert.Subset(t, []string{"AA100", "BA178", "DL5", "XX9"}, flightNumbers(two.Flights))

	rec = env.do(t, http.MethodGet, "/v1/flights?incomplete=false&grounded=false", nil)
	filtered := decode[SelectionPayload](t, rec)
	assert.ElementsMatch(t, []string{"AA100", "BA178", "UA1"}, flightNumbers(filtered.Flights))

	// No surface: LOD falls back to markers with a notice.
	rec = env.do(t, http.MethodGet, "/v1/flights?lod=true", nil)
	fallback := decode[SelectionPayload](t, rec)
	assert.False(t, fallback.LOD)
	assert.NotEmpty(t, fallback.Notice)
	assert.Equal(t, 5, fallback.Count)

	for _, bad := range []string{"limit=x", "grounded=maybe", "lat=40", "lat=1&lng=2&zoom=99&width=10&height=10"} {
		rec = env.do(t, http.MethodGet, "/v1/flights?"+bad, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

func TestListFlightsLODIsEmpty(t *testing.T) {
	env := newTestEnv(t, render.NewSoftwareSurface(), true)

	rec := env.do(t, http.MethodGet, "/v1/flights?lod=true&"+nycQuery, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	p := decode[SelectionPayload](t, rec)
	assert.True(t, p.LOD)
	assert.Empty(t, p.Flights)
}

func TestNotLoaded(t *testing.T) {
	env := newTestEnv(t, render.NewSoftwareSurface(), false)

	for _, target := range []string{"/v1/flights", "/v1/stats", "/v1/routes/busy", "/v1/heatmap", "/v1/lod?" + nycQuery} {
		rec := env.do(t, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, target)
	}

	rec := env.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetFlight(t *testing.T) {
	env := newTestEnv(t, nil, true)

	rec := env.do(t, http.MethodGet, "/v1/flights/aa100", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[FlightResponse](t, rec)
	assert.Equal(t, "AA100", resp.Flight.FlightNumber)
	require.NotNil(t, resp.Route)
	assert.Equal(t, "LAX", resp.Route.Destination)
	assert.Equal(t, "Los Angeles International Airport", resp.Route.DestinationName)
	assert.True(t, resp.Classification.IsDomestic)

	rec = env.do(t, http.MethodGet, "/v1/flights/NOPE", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/flights/XX9", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decode[errorResponse](t, rec).Error, "complete route")
}

func TestListPoints(t *testing.T) {
	env := newTestEnv(t, nil, true)

	rec := env.do(t, http.MethodGet, "/v1/points?airport=jfk", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[PointsResponse](t, rec)
	assert.Equal(t, []string{"AA100", "BA178", "DL5"}, flightNumbers(resp.Flights))

	rec = env.do(t, http.MethodGet, "/v1/points?bbox=41,40.75,-73,-74", nil)
	resp = decode[PointsResponse](t, rec)
	assert.Equal(t, []string{"BA178", "XX9"}, flightNumbers(resp.Flights))

	rec = env.do(t, http.MethodGet, "/v1/points?bbox=1,2,3", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, http.MethodGet, "/v1/points?bbox=40,41,-73,-74", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatisticsRoutesHeatmap(t *testing.T) {
	env := newTestEnv(t, nil, true)

	rec := env.do(t, http.MethodGet, "/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[StatisticsResponse](t, rec)
	assert.Equal(t, 5, st.Total)
	assert.Equal(t, 1, st.Grounded)
	assert.Equal(t, 4, st.InAir)
	assert.Equal(t, 4, st.CompleteRoutes)
	assert.Equal(t, 1, st.International)
	assert.Equal(t, "fake", st.Source)
	assert.Equal(t, 5, st.Index.TotalPoints)

	rec = env.do(t, http.MethodGet, "/v1/routes/busy?n=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	busy := decode[BusyRoutesResponse](t, rec)
	assert.Equal(t, 2, busy.Count)
	assert.Equal(t, "JFK", busy.Routes[0].Origin)

	rec = env.do(t, http.MethodGet, "/v1/routes/busy?n=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/heatmap?grounded=false", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	heat := decode[HeatmapResponse](t, rec)
	assert.Equal(t, 4, heat.Points)
	assert.Equal(t, 0.5, heat.CellSize)
	total := 0
	for _, c := range heat.Cells {
		total += c.Count
	}
	assert.Equal(t, 4, total)
	require.NotNil(t, heat.Bounds)
	assert.Equal(t, 40.9, heat.Bounds.North)
	assert.Equal(t, 34.0, heat.Bounds.South)
}

func TestNearby(t *testing.T) {
	env := newTestEnv(t, nil, true)

	rec := env.do(t, http.MethodGet, "/v1/nearby?lat=40.64&lng=-73.78&radius=0.3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[NearbyResponse](t, rec)
	assert.ElementsMatch(t, []string{"AA100", "DL5", "XX9"}, flightNumbers(resp.Flights))

	rec = env.do(t, http.MethodGet, "/v1/nearby?lat=40.64&lng=-73.78&radius=0.3&grounded=false", nil)
	resp = decode[NearbyResponse](t, rec)
	assert.ElementsMatch(t, []string{"AA100", "XX9"}, flightNumbers(resp.Flights))

	for _, bad := range []string{"lng=-73&radius=1", "lat=40&lng=-73&radius=0", "lat=40&lng=-73&radius=10", "lat=40&lng=-73"} {
		rec = env.do(t, http.MethodGet, "/v1/nearby?"+bad, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

func TestGetWeather(t *testing.T) {
	env := newTestEnv(t, nil, true)

	rec := env.do(t, http.MethodGet, "/v1/airports/jfk/weather", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["available"])
	assert.Equal(t, "JFK", body["airport"])
	assert.Equal(t, "SW 12 kt", body["windDescription"])
	assert.Equal(t, "low", body["flightRisk"])

	env.wx.err = errors.New("upstream down")
	rec = env.do(t, http.MethodGet, "/v1/airports/JFK/weather", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"airport": "JFK", "available": false}`, rec.Body.String())

	env.wx.err = weather.ErrUnknownAirport
	rec = env.do(t, http.MethodGet, "/v1/airports/ZZZ/weather", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLODEndpoints(t *testing.T) {
	surface := render.NewSoftwareSurface()
	env := newTestEnv(t, surface, true)

	rec := env.do(t, http.MethodGet, "/v1/lod?"+nycQuery, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	frame := decode[render.Frame](t, rec)
	assert.Equal(t, 4, frame.Count)
	assert.Len(t, frame.Positions, 8)
	assert.Equal(t, 1, frame.LOD)

	rec = env.do(t, http.MethodGet, "/v1/lod?"+nycQuery, http.Header{"Accept": {"application/msgpack"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/msgpack", rec.Header().Get("Content-Type"))
	var packed render.Frame
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &packed))
	assert.Equal(t, frame.Positions, packed.Positions)
	assert.Equal(t, frame.Seqs, packed.Seqs)

	rec = env.do(t, http.MethodGet, "/v1/lod.png?"+nycQuery, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 800, img.Bounds().Dx())
	assert.Equal(t, 600, img.Bounds().Dy())

	view := geo.Viewport{Center: domain.LatLng{Lat: 40.75, Lng: -73.8}, Zoom: 10, Width: 800, Height: 600}
	px := view.Project(domain.LatLng{Lat: 40.7, Lng: -74.0})
	rec = env.do(t, http.MethodGet, "/v1/lod/hit?"+nycQuery+"&x="+ftoa(px.X+2)+"&y="+ftoa(px.Y+2), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	hit := decode[HitResponse](t, rec)
	require.True(t, hit.Hit)
	assert.Equal(t, "AA100", hit.Flight.FlightNumber)

	rec = env.do(t, http.MethodGet, "/v1/lod/hit?"+nycQuery+"&x=1&y=1", nil)
	assert.False(t, decode[HitResponse](t, rec).Hit)

	rec = env.do(t, http.MethodGet, "/v1/lod", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, http.MethodGet, "/v1/lod/hit?"+nycQuery, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	for _, target := range []string{"/v1/lod?", "/v1/lod.png?", "/v1/flights?lod=true&"} {
		rec = env.do(t, http.MethodGet, target+"lat=40.75&lng=-73.8&zoom=10&width=40000&height=40000", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}

	// Every request released what it acquired.
	assert.Equal(t, render.Resources{}, surface.Live())
}

func TestLODDisabled(t *testing.T) {
	env := newTestEnv(t, nil, true)
	for _, target := range []string{"/v1/lod?", "/v1/lod.png?", "/v1/lod/hit?x=1&y=1&"} {
		rec := env.do(t, http.MethodGet, target+nycQuery, nil)
		assert.Equal(t, http.StatusNotImplemented, rec.Code, target)
	}
}

// lostSurface advertises support but never hands out a context.
type lostSurface struct{}

func (lostSurface) Supported() bool { return true }

func (lostSurface) Context() (render.Device, error) { return nil, render.ErrContextUnavailable }

func TestLODContextLost(t *testing.T) {
	env := newTestEnv(t, lostSurface{}, true)
	for _, target := range []string{"/v1/lod?", "/v1/lod.png?", "/v1/lod/hit?x=1&y=1&"} {
		rec := env.do(t, http.MethodGet, target+nycQuery, nil)
		assert.Equal(t, http.StatusNotImplemented, rec.Code, target)
	}
}

func TestReload(t *testing.T) {
	env := newTestEnv(t, nil, true)

	env.source.mu.Lock()
	env.source.points = testPoints()[:2]
	env.source.mu.Unlock()

	rec := env.do(t, http.MethodPost, "/v1/reload", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ReloadResponse](t, rec)
	assert.Equal(t, uint64(2), resp.Version)
	assert.Equal(t, 2, resp.Points)
	assert.Equal(t, 2, env.store.Count())

	env.source.mu.Lock()
	env.source.err = geojson.ErrMalformedDocument
	env.source.mu.Unlock()
	rec = env.do(t, http.MethodPost, "/v1/reload", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, 2, env.store.Count())

	rec = env.do(t, http.MethodGet, "/v1/reload", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthAndStats(t *testing.T) {
	env := newTestEnv(t, nil, true)

	rec := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, "ok", rec.Body.String())

	rec = env.do(t, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ready := decode[ReadyResponse](t, rec)
	assert.True(t, ready.Ready)
	assert.Equal(t, 5, ready.FlightCount)
	assert.Empty(t, ready.Redis)

	env.do(t, http.MethodGet, "/v1/flights", nil)
	rec = env.do(t, http.MethodGet, "/v1/server/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[StatsResponse](t, rec)
	assert.Equal(t, 5, st.Flights.Total)
	assert.Equal(t, "fake", st.Flights.Source)
	assert.Equal(t, int64(1), st.Cache.Filters.Builds)
	assert.Equal(t, 0.75, st.Cache.Ratio)
	assert.Nil(t, st.RateLimit)
}

func TestMiddleware(t *testing.T) {
	stats := NewStats()
	big := strings.Repeat("flight ", 500)
	h := CountRequests(stats, CORSMiddleware(GzipMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, big)
	}))))

	req := httptest.NewRequest(http.MethodGet, "/v1/flights", nil)
	req.Header.Set("Origin", "https://map.example")
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	assert.Less(t, rec.Body.Len(), len(big))
	assert.Equal(t, int64(1), stats.requestCount.Load())
}

type wsEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, msgType string) wsEnvelope {
	t.Helper()
	for {
		var msg wsEnvelope
		require.NoError(t, wsjson.Read(ctx, conn, &msg))
		if msg.Type == msgType {
			return msg
		}
	}
}

func TestWebSocketSession(t *testing.T) {
	env := newTestEnv(t, render.NewSoftwareSurface(), true)
	srv := httptest.NewServer(env.mux)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, srv.URL+"/v1/ws", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	var sel SelectionPayload
	require.NoError(t, json.Unmarshal(readUntil(t, ctx, conn, "selection").Payload, &sel))
	assert.Equal(t, 5, sel.Count)

	send := func(msgType string, payload any) {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		require.NoError(t, wsjson.Write(ctx, conn, WSMessage{Type: msgType, Payload: raw}))
	}

	send("settings", session.Settings{MarkerLimit: 2, ViewportCulling: true})
	send("viewport", geo.Viewport{Center: domain.LatLng{Lat: 40.75, Lng: -73.8}, Zoom: 10, Width: 800, Height: 600})
	readUntil(t, ctx, conn, "selection")
	require.NoError(t, json.Unmarshal(readUntil(t, ctx, conn, "selection").Payload, &sel))
	assert.Equal(t, 2, sel.Count)
	assert.Subset(t, []string{"AA100", "BA178", "DL5", "XX9"}, flightNumbers(sel.Flights))

	send("ping", nil)
	readUntil(t, ctx, conn, "pong")

	send("search", SearchPayload{Number: "NOPE"})
	var notice NoticePayload
	require.NoError(t, json.Unmarshal(readUntil(t, ctx, conn, "notice").Payload, &notice))
	assert.Contains(t, notice.Message, "not found")

	send("search", SearchPayload{Number: "UA1"})
	var route RoutePayload
	require.NoError(t, json.Unmarshal(readUntil(t, ctx, conn, "route").Payload, &route))
	require.NotNil(t, route.Route)
	assert.Equal(t, "BOS", route.Route.Destination)
	require.NoError(t, json.Unmarshal(readUntil(t, ctx, conn, "selection").Payload, &sel))
	assert.Contains(t, flightNumbers(sel.Flights), "UA1")

	// An undrawable route gets a notice and nothing else.
	send("search", SearchPayload{Number: "XX9"})
	send("ping", nil)
	var first, second wsEnvelope
	require.NoError(t, wsjson.Read(ctx, conn, &first))
	require.NoError(t, wsjson.Read(ctx, conn, &second))
	assert.Equal(t, "notice", first.Type)
	assert.Equal(t, "pong", second.Type)

	send("settings", session.Settings{MarkerLimit: 2, ViewportCulling: true, LOD: true})
	var frame render.Frame
	require.NoError(t, json.Unmarshal(readUntil(t, ctx, conn, "frame").Payload, &frame))
	assert.Equal(t, 4, frame.Count)

	send("stats", nil)
	var rs render.Stats
	require.NoError(t, json.Unmarshal(readUntil(t, ctx, conn, "stats").Payload, &rs))
	assert.Equal(t, 4, rs.VisiblePoints)
	assert.Equal(t, 1, rs.CurrentLOD)

	send("viewport", geo.Viewport{Center: domain.LatLng{Lat: 40.75, Lng: -73.8}, Zoom: 10, Width: 1 << 40, Height: 1 << 40})
	require.NoError(t, json.Unmarshal(readUntil(t, ctx, conn, "notice").Payload, &notice))
	assert.Contains(t, notice.Message, "invalid viewport")
	send("ping", nil)
	readUntil(t, ctx, conn, "pong")

	// A new snapshot reaches the session through the hub.
	env.source.mu.Lock()
	env.source.points = testPoints()[:1]
	env.source.mu.Unlock()
	_, err = env.loader.Reload(ctx)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(readUntil(t, ctx, conn, "frame").Payload, &frame))
	assert.Equal(t, 1, frame.Total)

	require.Eventually(t, func() bool { return env.hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
