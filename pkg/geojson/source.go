package geojson

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// Source loads a point set from a local file or an http(s) URL.
type Source struct {
	location string
	client   *http.Client
	logger   *slog.Logger
}

func NewSource(location string, logger *slog.Logger) *Source {
	return &Source{
		location: location,
		client: &http.Client{
			Timeout: 2 * time.Minute,
		},
		logger: logger.With("component", "geojson_source"),
	}
}

func (s *Source) Location() string {
	return s.location
}

// Load fetches and decodes the whole document.
func (s *Source) Load(ctx context.Context) (*Collection, error) {
	start := time.Now()
	s.logger.Info("loading flight data", "location", s.location)

	data, err := s.read(ctx)
	if err != nil {
		s.logger.Error("failed to read flight data",
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	s.logger.Debug("read flight data",
		"size_bytes", len(data),
		"size_mb", float64(len(data))/(1024*1024),
	)

	c, err := Decode(bytes.NewReader(data))
	if err != nil {
		s.logger.Error("failed to decode flight data", "error", err)
		return nil, err
	}

	s.logger.Info("flight data loaded",
		"points", len(c.Points),
		"skipped", c.Skipped,
		"total_duration_ms", time.Since(start).Milliseconds(),
	)
	return c, nil
}

func (s *Source) read(ctx context.Context) ([]byte, error) {
	if strings.HasPrefix(s.location, "http://") || strings.HasPrefix(s.location, "https://") {
		return s.download(ctx)
	}

	path := strings.TrimPrefix(s.location, "file://")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

func (s *Source) download(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.location, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")
	req.Header.Set("User-Agent", "flightmap/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download flight data: %w", err)
	}
	defer resp.Body.Close()

	s.logger.Debug("received HTTP response",
		"status_code", resp.StatusCode,
		"content_length", resp.ContentLength,
		"content_type", resp.Header.Get("Content-Type"),
	)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}
