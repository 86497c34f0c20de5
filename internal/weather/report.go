package weather

import (
	"fmt"
	"math"

	"flightmap/internal/domain"
)

type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

var compassPoints = [16]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// Report is a weather observation with the views shown next to it.
type Report struct {
	domain.Weather
	Available            bool    `json:"available"`
	TemperatureC         float64 `json:"temperatureC"`
	FlightRisk           Risk    `json:"flightRisk"`
	VisibilityStatus     string  `json:"visibilityStatus"`
	WindCompass          string  `json:"windCompass"`
	WindDescription      string  `json:"windDescription"`
	GoodFlightConditions bool    `json:"goodFlightConditions"`
}

func NewReport(w domain.Weather) Report {
	return Report{
		Weather:              w,
		Available:            true,
		TemperatureC:         math.Round(Celsius(w.Temperature)*10) / 10,
		FlightRisk:           FlightRisk(w),
		VisibilityStatus:     VisibilityStatus(w.Visibility),
		WindCompass:          Compass(w.WindDirection),
		WindDescription:      WindDescription(w),
		GoodFlightConditions: GoodFlightConditions(w),
	}
}

// FlightRisk grades wind (mph) and visibility (miles).
func FlightRisk(w domain.Weather) Risk {
	switch {
	case w.WindSpeed > 35 || w.Visibility < 2:
		return RiskHigh
	case w.WindSpeed > 25 || w.Visibility < 5:
		return RiskMedium
	default:
		return RiskLow
	}
}

func GoodFlightConditions(w domain.Weather) bool {
	return w.Visibility > 5 && w.WindSpeed < 25
}

func VisibilityStatus(miles float64) string {
	switch {
	case miles >= 10:
		return "Excellent"
	case miles >= 5:
		return "Good"
	case miles >= 2:
		return "Poor"
	default:
		return "Very Poor"
	}
}

// Compass names the 16-point direction nearest to deg.
func Compass(deg float64) string {
	i := int(math.Floor(deg/22.5+0.5)) % 16
	if i < 0 {
		i += 16
	}
	return compassPoints[i]
}

func WindDescription(w domain.Weather) string {
	return fmt.Sprintf("%s %v kt", Compass(w.WindDirection), w.WindSpeed)
}

func Celsius(f float64) float64 {
	return (f - 32) * 5 / 9
}
