package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	LogLevel      slog.Level
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int

	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	FlightDataSource  string
	FlightDataRefresh time.Duration

	IndexCellSize      float64
	DefaultMarkerLimit int
	MaxMarkerLimit     int
	LODEnabled         bool
	FilterCacheSize    int

	OpenWeatherAPIKey string
	OpenWeatherURL    string
	WeatherCacheTTL   time.Duration
	WeatherCacheSize  int
	WeatherRatePerSec float64
	WeatherWarmRoutes int

	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RateLimitPerWindow int
	RateLimitWindow    time.Duration
	RateLimitWhitelist []string
}

// Load reads the configuration from the environment. The weather API key is
// optional; lookups fail individually without it.
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:      getLogLevelEnv("LOG_LEVEL", slog.LevelInfo),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSizeMB:  getIntEnv("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: getIntEnv("LOG_MAX_BACKUPS", 3),
		LogMaxAgeDays: getIntEnv("LOG_MAX_AGE_DAYS", 28),

		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		ReadTimeout:     getDurationEnv("READ_TIMEOUT", 10*time.Second),
		WriteTimeout:    getDurationEnv("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),

		FlightDataSource:  getEnv("FLIGHT_DATA_SOURCE", "data/EasternSeaboardSampled.geojson"),
		FlightDataRefresh: getDurationEnv("FLIGHT_DATA_REFRESH", 0),

		IndexCellSize:      getFloatEnv("INDEX_CELL_SIZE", 0.5),
		DefaultMarkerLimit: getIntEnv("DEFAULT_MARKER_LIMIT", 1000),
		MaxMarkerLimit:     getIntEnv("MAX_MARKER_LIMIT", 5000),
		LODEnabled:         getBoolEnv("LOD_ENABLED", true),
		FilterCacheSize:    getIntEnv("FILTER_CACHE_SIZE", 64),

		OpenWeatherAPIKey: getEnv("OPENWEATHER_API_KEY", ""),
		OpenWeatherURL:    getEnv("OPENWEATHER_URL", "https://api.openweathermap.org/data/2.5/weather"),
		WeatherCacheTTL:   getDurationEnv("WEATHER_CACHE_TTL", 10*time.Minute),
		WeatherCacheSize:  getIntEnv("WEATHER_CACHE_SIZE", 128),
		WeatherRatePerSec: getFloatEnv("WEATHER_RATE_PER_SEC", 1),
		WeatherWarmRoutes: getIntEnv("WEATHER_WARM_ROUTES", 10),

		RedisEnabled:  getBoolEnv("REDIS_ENABLED", false),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		RateLimitPerWindow: getIntEnv("RATE_LIMIT_PER_WINDOW", 120),
		RateLimitWindow:    getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitWhitelist: getCSVEnv("RATE_LIMIT_WHITELIST"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.FlightDataSource == "" {
		errs = append(errs, errors.New("FLIGHT_DATA_SOURCE must not be empty"))
	}
	if c.FlightDataRefresh < 0 {
		errs = append(errs, errors.New("FLIGHT_DATA_REFRESH must not be negative"))
	}
	if c.IndexCellSize <= 0 {
		errs = append(errs, fmt.Errorf("INDEX_CELL_SIZE must be positive, got %v", c.IndexCellSize))
	}
	if c.DefaultMarkerLimit < 1 {
		errs = append(errs, fmt.Errorf("DEFAULT_MARKER_LIMIT must be at least 1, got %d", c.DefaultMarkerLimit))
	}
	if c.MaxMarkerLimit < c.DefaultMarkerLimit {
		errs = append(errs, fmt.Errorf("MAX_MARKER_LIMIT (%d) must not be below DEFAULT_MARKER_LIMIT (%d)", c.MaxMarkerLimit, c.DefaultMarkerLimit))
	}
	if c.FilterCacheSize < 1 {
		errs = append(errs, fmt.Errorf("FILTER_CACHE_SIZE must be at least 1, got %d", c.FilterCacheSize))
	}
	if c.WeatherCacheSize < 1 {
		errs = append(errs, fmt.Errorf("WEATHER_CACHE_SIZE must be at least 1, got %d", c.WeatherCacheSize))
	}
	if c.WeatherCacheTTL <= 0 {
		errs = append(errs, errors.New("WEATHER_CACHE_TTL must be positive"))
	}
	if c.WeatherRatePerSec < 0 {
		errs = append(errs, errors.New("WEATHER_RATE_PER_SEC must not be negative"))
	}
	if c.WeatherWarmRoutes < 0 {
		errs = append(errs, errors.New("WEATHER_WARM_ROUTES must not be negative"))
	}
	if c.RateLimitPerWindow < 1 || c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_WINDOW and RATE_LIMIT_WINDOW must be positive"))
	}
	if c.LogFile != "" && (c.LogMaxSizeMB < 1 || c.LogMaxBackups < 0 || c.LogMaxAgeDays < 0) {
		errs = append(errs, errors.New("LOG_MAX_SIZE_MB must be positive; LOG_MAX_BACKUPS and LOG_MAX_AGE_DAYS must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getFloatEnv(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getLogLevelEnv(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}

	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return defaultVal
	}
}

func getCSVEnv(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}

	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			result = append(result, t)
		}
	}
	return result
}
