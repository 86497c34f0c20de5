package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"flightmap/internal/airports"
	"flightmap/internal/cache"
	"flightmap/internal/config"
	"flightmap/internal/flights"
	"flightmap/internal/handler"
	"flightmap/internal/hub"
	"flightmap/internal/ingestor"
	"flightmap/internal/logging"
	"flightmap/internal/middleware"
	"flightmap/internal/render"
	"flightmap/internal/session"
	"flightmap/internal/store"
	"flightmap/internal/weather"
	"flightmap/pkg/geojson"
	"flightmap/pkg/openweather"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, closeLog := logging.New(os.Stdout, logging.Options{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	defer closeLog()
	slog.SetDefault(logger)

	logger.Info("starting flightmap server",
		"log_level", cfg.LogLevel.String(),
		"http_addr", cfg.HTTPAddr,
		"source", cfg.FlightDataSource,
		"lod_enabled", cfg.LODEnabled,
		"redis_enabled", cfg.RedisEnabled,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	table := airports.Default()
	classifier := flights.NewClassifier(table)
	flightStore := store.New()
	wsHub := hub.NewHub(logger)
	loader := ingestor.New(geojson.NewSource(cfg.FlightDataSource, logger), flightStore, wsHub, cfg.FlightDataRefresh, logger)

	var (
		shared      weather.L2
		redisHealth handler.Pinger
	)
	if cfg.RedisEnabled {
		redisCache, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
		if err != nil {
			logger.Warn("redis unavailable, weather cache stays in memory", "error", err)
		} else {
			defer redisCache.Close()
			shared = redisCache
			redisHealth = redisCache
			logger.Info("redis cache connected", "addr", cfg.RedisAddr)
		}
	}

	if cfg.OpenWeatherAPIKey == "" {
		logger.Warn("OPENWEATHER_API_KEY not set, weather lookups will fail")
	}
	wxClient := openweather.New(cfg.OpenWeatherURL, cfg.OpenWeatherAPIKey, cfg.WeatherRatePerSec)
	wxService := weather.New(table, wxClient, shared, cfg.WeatherCacheSize, cfg.WeatherCacheTTL, logger)

	if cfg.WeatherWarmRoutes > 0 && cfg.OpenWeatherAPIKey != "" {
		warmer := cache.NewWeatherWarmer(wxService, cfg.WeatherWarmRoutes, logger)
		loader.OnLoad(func(_ context.Context, snap *store.Snapshot) {
			go warmer.Warm(ctx, snap)
		})
	}

	filters, err := session.NewFilterCache(classifier, cfg.IndexCellSize, cfg.FilterCacheSize)
	if err != nil {
		logger.Error("failed to create filter cache", "error", err)
		os.Exit(1)
	}

	var surface render.Surface
	if cfg.LODEnabled {
		surface = render.NewSoftwareSurface()
	}
	sessions := session.Deps{
		Classifier:     classifier,
		Filters:        filters,
		Surface:        surface,
		DefaultLimit:   cfg.DefaultMarkerLimit,
		MaxMarkerLimit: cfg.MaxMarkerLimit,
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerWindow, cfg.RateLimitWindow, cfg.RateLimitWhitelist, logger)
	stats := handler.NewStats()

	httpHandler := handler.NewHTTPHandler(flightStore, loader, sessions, wxService, logger)
	wsHandler := handler.NewWSHandler(wsHub, flightStore, sessions, stats, logger)
	healthHandler := handler.NewHealthHandler(loader, flightStore, redisHealth)
	statsHandler := handler.NewStatsHandler(stats, flightStore, wsHub, filters, wxService, limiter)

	api := http.NewServeMux()

	httpHandler.Register(api)
	api.HandleFunc("GET /v1/server/stats", statsHandler.GetStats)

	api.HandleFunc("GET /healthz", healthHandler.Healthz)
	api.HandleFunc("GET /readyz", healthHandler.Readyz)

	// The websocket upgrade needs the raw connection, so it skips compression.
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/ws", wsHandler.ServeWS)
	mux.Handle("/", handler.CORSMiddleware(handler.GzipMiddleware(api)))

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler.CountRequests(stats, limiter.Middleware(mux)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go wsHub.Run(ctx)

	go loader.Run(ctx)

	go limiter.Run(ctx)

	go func() {
		logger.Info("starting HTTP server", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
