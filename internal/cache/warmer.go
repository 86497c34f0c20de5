package cache

import (
	"context"
	"log/slog"
	"time"

	"flightmap/internal/domain"
	"flightmap/internal/flights"
	"flightmap/internal/store"
)

// WeatherLookup is the weather service as seen by the warmer.
type WeatherLookup interface {
	Lookup(ctx context.Context, code string) (domain.Weather, error)
}

// WeatherWarmer pre-fetches weather for the airports of the busiest routes
// so the first viewer asking for them is served from cache.
type WeatherWarmer struct {
	weather WeatherLookup
	routes  int
	logger  *slog.Logger
}

func NewWeatherWarmer(weather WeatherLookup, routes int, logger *slog.Logger) *WeatherWarmer {
	return &WeatherWarmer{
		weather: weather,
		routes:  routes,
		logger:  logger.With("component", "weather_warmer"),
	}
}

// Airports returns the distinct airports of the busiest routes in snap,
// in route order.
func (w *WeatherWarmer) Airports(snap *store.Snapshot) []string {
	if snap == nil || w.routes <= 0 {
		return nil
	}

	seen := make(map[string]bool)
	var codes []string
	for _, r := range flights.BusyRoutes(snap.Points, w.routes) {
		for _, code := range [...]string{r.Origin, r.Destination} {
			if !seen[code] {
				seen[code] = true
				codes = append(codes, code)
			}
		}
	}
	return codes
}

// Warm looks up every airport from Airports. Failures are logged and
// skipped; it returns the number of airports warmed.
func (w *WeatherWarmer) Warm(ctx context.Context, snap *store.Snapshot) int {
	start := time.Now()
	codes := w.Airports(snap)
	warmed := 0

	for _, code := range codes {
		if ctx.Err() != nil {
			break
		}
		if _, err := w.weather.Lookup(ctx, code); err != nil {
			w.logger.Debug("failed to warm weather", "airport", code, "error", err)
			continue
		}
		warmed++
	}

	w.logger.Info("weather warming completed",
		"airports_warmed", warmed,
		"total_airports", len(codes),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return warmed
}
