package handler

import (
	"errors"
	"net/http"
	"strings"

	"flightmap/internal/weather"
)

type weatherUnavailable struct {
	Airport   string `json:"airport"`
	Available bool   `json:"available"`
}

// GetWeather returns the airport's current weather with its derived views.
// Weather is optional: upstream failures answer 200 with available=false.
func (h *HTTPHandler) GetWeather(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(r.PathValue("code"))

	report, err := h.weather.Report(r.Context(), code)
	if errors.Is(err, weather.ErrUnknownAirport) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.logger.Warn("weather unavailable", "airport", code, "error", err)
		respondJSON(w, http.StatusOK, weatherUnavailable{Airport: code})
		return
	}

	w.Header().Set("Cache-Control", "max-age=60")
	respondJSON(w, http.StatusOK, report)
}
