// Package openweather is a client for the OpenWeatherMap current weather API.
package openweather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"flightmap/internal/domain"
)

const DefaultBaseURL = "https://api.openweathermap.org/data/2.5/weather"

var (
	ErrMissingAPIKey = errors.New("OpenWeatherMap API key not configured")
	ErrNoConditions  = errors.New("response carries no weather conditions")
)

const (
	metersPerMile = 1609
	inHgPerHPa    = 0.02953
)

type Client struct {
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	httpClient *http.Client
}

// New creates a client. A ratePerSec of zero or less disables throttling.
func New(baseURL, apiKey string, ratePerSec float64) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		limiter: rate.NewLimiter(limit, 1),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type apiResponse struct {
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
		Pressure float64 `json:"pressure"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
		Deg   float64 `json:"deg"`
	} `json:"wind"`
	Visibility float64 `json:"visibility"`
	Message    string  `json:"message,omitempty"`
}

// Current fetches the current weather at pos and labels it with the airport
// code. Values are imperial: °F, mph, miles and inHg.
func (c *Client) Current(ctx context.Context, code string, pos domain.LatLng) (domain.Weather, error) {
	if c.apiKey == "" {
		return domain.Weather{}, ErrMissingAPIKey
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return domain.Weather{}, fmt.Errorf("rate limiter: %w", err)
	}

	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(pos.Lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(pos.Lng, 'f', -1, 64))
	params.Set("appid", c.apiKey)
	params.Set("units", "imperial")

	reqURL := fmt.Sprintf("%s?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return domain.Weather{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Weather{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Weather{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return domain.Weather{}, fmt.Errorf("decoding response: %w", err)
	}

	return toDomain(code, apiResp)
}

func toDomain(code string, r apiResponse) (domain.Weather, error) {
	if len(r.Weather) == 0 {
		return domain.Weather{}, ErrNoConditions
	}
	w := r.Weather[0]

	return domain.Weather{
		Airport:       strings.ToUpper(code),
		Temperature:   round(r.Main.Temp),
		Description:   w.Description,
		Condition:     strings.ToLower(w.Main),
		Icon:          w.Icon,
		Humidity:      r.Main.Humidity,
		WindSpeed:     round(r.Wind.Speed),
		WindDirection: r.Wind.Deg,
		Visibility:    round(r.Visibility/metersPerMile*10) / 10,
		Pressure:      round(r.Main.Pressure*inHgPerHPa*100) / 100,
		FetchedAt:     time.Now(),
	}, nil
}

// round is half-up rounding, so -2.5 becomes -2.
func round(v float64) float64 {
	return math.Floor(v + 0.5)
}
