// Package weather serves current airport weather behind a two-level cache.
package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"flightmap/internal/airports"
	"flightmap/internal/cache"
	"flightmap/internal/domain"
)

var ErrUnknownAirport = errors.New("unknown airport")

// fetchTimeout bounds one shared lookup, shared-cache round trips included.
const fetchTimeout = 15 * time.Second

// Fetcher retrieves current weather from an upstream provider.
type Fetcher interface {
	Current(ctx context.Context, code string, pos domain.LatLng) (domain.Weather, error)
}

// L2 is the shared cache consulted after the in-memory one.
type L2 interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type Stats struct {
	MemoryHits int64 `json:"memoryHits"`
	SharedHits int64 `json:"sharedHits"`
	Misses     int64 `json:"misses"`
	Fetches    int64 `json:"fetches"`
	Failures   int64 `json:"failures"`
	Cached     int   `json:"cached"`
}

type Service struct {
	airports *airports.Table
	fetcher  Fetcher
	l2       L2
	ttl      time.Duration
	memory   *expirable.LRU[string, domain.Weather]
	group    singleflight.Group
	logger   *slog.Logger

	memoryHits atomic.Int64
	sharedHits atomic.Int64
	misses     atomic.Int64
	fetches    atomic.Int64
	failures   atomic.Int64
}

// New creates the service. l2 may be nil.
func New(table *airports.Table, fetcher Fetcher, l2 L2, size int, ttl time.Duration, logger *slog.Logger) *Service {
	if size <= 0 {
		size = 128
	}
	return &Service{
		airports: table,
		fetcher:  fetcher,
		l2:       l2,
		ttl:      ttl,
		memory:   expirable.NewLRU[string, domain.Weather](size, nil, ttl),
		logger:   logger.With("component", "weather"),
	}
}

// Lookup returns the current weather at the airport. Cached entries are
// returned without touching the network; concurrent misses for the same
// airport share one upstream request.
func (s *Service) Lookup(ctx context.Context, code string) (domain.Weather, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	airport, ok := s.airports.Lookup(code)
	if !ok {
		return domain.Weather{}, fmt.Errorf("%s: %w", code, ErrUnknownAirport)
	}

	if w, ok := s.memory.Get(code); ok {
		s.memoryHits.Add(1)
		return w, nil
	}

	ch := s.group.DoChan(code, func() (any, error) {
		if w, ok := s.memory.Get(code); ok {
			return w, nil
		}
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()

		if w, ok := s.fromShared(ctx, code); ok {
			s.sharedHits.Add(1)
			s.memory.Add(code, w)
			return w, nil
		}

		s.misses.Add(1)
		s.fetches.Add(1)
		start := time.Now()
		w, err := s.fetcher.Current(ctx, code, airport.Position())
		if err != nil {
			s.failures.Add(1)
			return nil, fmt.Errorf("fetching weather for %s: %w", code, err)
		}

		s.memory.Add(code, w)
		s.toShared(ctx, code, w)
		s.logger.Debug("weather fetched", "airport", code, "duration_ms", time.Since(start).Milliseconds())
		return w, nil
	})

	select {
	case <-ctx.Done():
		return domain.Weather{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.Weather{}, res.Err
		}
		return res.Val.(domain.Weather), nil
	}
}

// Report is Lookup plus the derived views.
func (s *Service) Report(ctx context.Context, code string) (Report, error) {
	w, err := s.Lookup(ctx, code)
	if err != nil {
		return Report{}, err
	}
	return NewReport(w), nil
}

func (s *Service) Stats() Stats {
	return Stats{
		MemoryHits: s.memoryHits.Load(),
		SharedHits: s.sharedHits.Load(),
		Misses:     s.misses.Load(),
		Fetches:    s.fetches.Load(),
		Failures:   s.failures.Load(),
		Cached:     s.memory.Len(),
	}
}

func (s *Service) fromShared(ctx context.Context, code string) (domain.Weather, bool) {
	if s.l2 == nil {
		return domain.Weather{}, false
	}
	var w domain.Weather
	found, err := s.l2.GetJSON(ctx, cache.KeyWeather(code), &w)
	if err != nil {
		s.logger.Warn("shared cache read failed", "airport", code, "error", err)
		return domain.Weather{}, false
	}
	return w, found
}

func (s *Service) toShared(ctx context.Context, code string, w domain.Weather) {
	if s.l2 == nil {
		return
	}
	if err := s.l2.SetJSON(ctx, cache.KeyWeather(code), w, s.ttl); err != nil {
		s.logger.Warn("shared cache write failed", "airport", code, "error", err)
	}
}
