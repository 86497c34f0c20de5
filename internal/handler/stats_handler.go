package handler

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"flightmap/internal/hub"
	"flightmap/internal/middleware"
	"flightmap/internal/session"
	"flightmap/internal/store"
	"flightmap/internal/weather"
)

// Stats tracks server-wide counters.
type Stats struct {
	startTime     time.Time
	requestCount  atomic.Int64
	wsConnections atomic.Int64
	wsMessagesIn  atomic.Int64
	wsMessagesOut atomic.Int64
}

func NewStats() *Stats {
	return &Stats{startTime: time.Now()}
}

func (s *Stats) IncRequests()      { s.requestCount.Add(1) }
func (s *Stats) IncWSConnections() { s.wsConnections.Add(1) }
func (s *Stats) DecWSConnections() { s.wsConnections.Add(-1) }
func (s *Stats) IncWSMessagesIn()  { s.wsMessagesIn.Add(1) }
func (s *Stats) IncWSMessagesOut() { s.wsMessagesOut.Add(1) }

type StatsHandler struct {
	stats   *Stats
	store   *store.Store
	hub     *hub.Hub
	filters *session.FilterCache
	weather WeatherReporter
	limiter *middleware.RateLimiter
}

// NewStatsHandler creates the server stats endpoint. limiter may be nil.
func NewStatsHandler(stats *Stats, st *store.Store, h *hub.Hub, filters *session.FilterCache, wx WeatherReporter, limiter *middleware.RateLimiter) *StatsHandler {
	return &StatsHandler{
		stats:   stats,
		store:   st,
		hub:     h,
		filters: filters,
		weather: wx,
		limiter: limiter,
	}
}

type StatsResponse struct {
	Server    ServerStatsResponse    `json:"server"`
	Flights   FlightStatsResponse    `json:"flights"`
	WebSocket WebSocketStatsResponse `json:"websocket"`
	Cache     CacheStatsResponse     `json:"cache"`
	RateLimit *middleware.Stats      `json:"rate_limit,omitempty"`
	Go        GoStatsResponse        `json:"go"`
}

type ServerStatsResponse struct {
	Uptime        string    `json:"uptime"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	StartTime     time.Time `json:"start_time"`
	RequestCount  int64     `json:"request_count"`
	Version       string    `json:"version"`
}

type FlightStatsResponse struct {
	Total    int       `json:"total"`
	Version  uint64    `json:"version"`
	Source   string    `json:"source,omitempty"`
	LoadedAt time.Time `json:"loaded_at"`
}

type WebSocketStatsResponse struct {
	Connections int64 `json:"connections"`
	Sessions    int   `json:"sessions"`
	MessagesIn  int64 `json:"messages_in"`
	MessagesOut int64 `json:"messages_out"`
}

type CacheStatsResponse struct {
	Filters session.FilterCacheStats `json:"filters"`
	Weather weather.Stats            `json:"weather"`
	Ratio   float64                  `json:"weather_hit_ratio"`
}

type GoStatsResponse struct {
	Goroutines  int     `json:"goroutines"`
	HeapAlloc   uint64  `json:"heap_alloc_bytes"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	NumGC       uint32  `json:"num_gc"`
	GoVersion   string  `json:"go_version"`
}

func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.stats.startTime)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	flights := FlightStatsResponse{Total: h.store.Count(), Version: h.store.Version()}
	if snap := h.store.Snapshot(); snap != nil {
		flights.Source = snap.Source
		flights.LoadedAt = snap.LoadedAt
	}

	wx := h.weather.Stats()
	var ratio float64
	if total := wx.MemoryHits + wx.SharedHits + wx.Misses; total > 0 {
		ratio = float64(wx.MemoryHits+wx.SharedHits) / float64(total)
	}

	response := StatsResponse{
		Server: ServerStatsResponse{
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			StartTime:     h.stats.startTime,
			RequestCount:  h.stats.requestCount.Load(),
			Version:       "1.0.0",
		},
		Flights: flights,
		WebSocket: WebSocketStatsResponse{
			Connections: h.stats.wsConnections.Load(),
			Sessions:    h.hub.ClientCount(),
			MessagesIn:  h.stats.wsMessagesIn.Load(),
			MessagesOut: h.stats.wsMessagesOut.Load(),
		},
		Cache: CacheStatsResponse{
			Filters: h.filters.Stats(),
			Weather: wx,
			Ratio:   ratio,
		},
		Go: GoStatsResponse{
			Goroutines:  runtime.NumGoroutine(),
			HeapAlloc:   mem.HeapAlloc,
			HeapAllocMB: float64(mem.HeapAlloc) / 1024 / 1024,
			NumGC:       mem.NumGC,
			GoVersion:   runtime.Version(),
		},
	}
	if h.limiter != nil {
		st := h.limiter.Stats()
		response.RateLimit = &st
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	json.NewEncoder(w).Encode(response)
}
