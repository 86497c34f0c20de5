package domain

import "time"

// Airport is an entry of the static airport reference table.
type Airport struct {
	Code    string  `json:"code"`
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Country string  `json:"country,omitempty"`
}

// Position returns the airport coordinates.
func (a Airport) Position() LatLng {
	return LatLng{Lat: a.Lat, Lng: a.Lng}
}

// Route is a resolved origin/destination pair for one flight.
type Route struct {
	FlightNumber    string   `json:"flightNumber"`
	Origin          string   `json:"origin"`
	Destination     string   `json:"destination"`
	OriginName      string   `json:"originName"`
	DestinationName string   `json:"destinationName"`
	OriginPos       LatLng   `json:"originPos"`
	DestinationPos  LatLng   `json:"destinationPos"`
	Current         LatLng   `json:"current"`
	DistanceKm      int      `json:"distanceKm"`
	Path            []LatLng `json:"path"`
}

// Weather is the current weather at an airport.
type Weather struct {
	Airport       string    `json:"airport"`
	Temperature   float64   `json:"temperature"`
	Description   string    `json:"description"`
	Condition     string    `json:"condition"`
	Icon          string    `json:"icon,omitempty"`
	Humidity      float64   `json:"humidity"`
	WindSpeed     float64   `json:"windSpeed"`
	WindDirection float64   `json:"windDirection"`
	Visibility    float64   `json:"visibility"`
	Pressure      float64   `json:"pressure"`
	FetchedAt     time.Time `json:"fetchedAt"`
}
