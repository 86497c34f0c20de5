// Package geojson reads aircraft point sets published as a GeoJSON
// FeatureCollection.
package geojson

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"flightmap/internal/domain"
)

// ErrMalformedDocument means the document has no feature array.
var ErrMalformedDocument = errors.New("invalid flight data format")

// Collection is a decoded document. Skipped counts features dropped for a
// missing or unusable position.
type Collection struct {
	Points  []domain.AircraftPoint
	Skipped int
}

type document struct {
	Type     string          `json:"type"`
	Features json.RawMessage `json:"features"`
}

type feature struct {
	Type       string     `json:"type"`
	Properties properties `json:"properties"`
	Geometry   *geometry  `json:"geometry"`
}

type geometry struct {
	Type string `json:"type"`
	// GeoJSON order: longitude, latitude.
	Coordinates []float64 `json:"coordinates"`
}

type properties struct {
	ID            any      `json:"id"`
	Heading       *float64 `json:"heading"`
	Altitude      *float64 `json:"altitude"`
	GroundSpeed   *float64 `json:"ground_speed"`
	VerticalSpeed *float64 `json:"vertical_speed"`
	AircraftCode  string   `json:"aircraft_code"`
	Registration  string   `json:"registration"`
	Origin        string   `json:"origin_airport_iata"`
	Destination   string   `json:"destination_airport_iata"`
	Number        string   `json:"number"`
	AirlineIATA   string   `json:"airline_iata"`
	OnGround      *bool    `json:"on_ground"`
	Callsign      string   `json:"callsign"`
}

// Decode parses a FeatureCollection. A missing or non-array features member
// fails with ErrMalformedDocument; individual bad features are skipped.
func Decode(r io.Reader) (*Collection, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding document: %w: %w", ErrMalformedDocument, err)
	}

	raw := bytes.TrimSpace(doc.Features)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, ErrMalformedDocument
	}

	var features []json.RawMessage
	if err := json.Unmarshal(raw, &features); err != nil {
		return nil, fmt.Errorf("decoding features: %w: %w", ErrMalformedDocument, err)
	}

	c := &Collection{Points: make([]domain.AircraftPoint, 0, len(features))}
	for _, rawFeature := range features {
		var f feature
		if err := json.Unmarshal(rawFeature, &f); err != nil {
			c.Skipped++
			continue
		}
		p, ok := toPoint(f)
		if !ok {
			c.Skipped++
			continue
		}
		p.Seq = len(c.Points)
		c.Points = append(c.Points, p)
	}
	return c, nil
}

func toPoint(f feature) (domain.AircraftPoint, bool) {
	g := f.Geometry
	if g == nil || (g.Type != "" && g.Type != "Point") || len(g.Coordinates) < 2 {
		return domain.AircraftPoint{}, false
	}
	pos := domain.LatLng{Lat: g.Coordinates[1], Lng: g.Coordinates[0]}
	if !pos.Finite() || math.Abs(pos.Lat) > 90 || math.Abs(pos.Lng) > 180 {
		return domain.AircraftPoint{}, false
	}

	props := f.Properties
	p := domain.AircraftPoint{
		ID:            idString(props.ID),
		Callsign:      strings.TrimSpace(props.Callsign),
		FlightNumber:  strings.TrimSpace(props.Number),
		Position:      pos,
		Altitude:      props.Altitude,
		GroundSpeed:   props.GroundSpeed,
		VerticalSpeed: props.VerticalSpeed,
		Origin:        strings.ToUpper(strings.TrimSpace(props.Origin)),
		Destination:   strings.ToUpper(strings.TrimSpace(props.Destination)),
		AircraftType:  strings.TrimSpace(props.AircraftCode),
		Registration:  strings.TrimSpace(props.Registration),
		AirlineIATA:   strings.TrimSpace(props.AirlineIATA),
	}
	if props.Heading != nil {
		p.Heading = *props.Heading
	}
	if props.OnGround != nil {
		p.OnGround = *props.OnGround
	}
	return p, true
}

func idString(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case float64:
		return fmt.Sprintf("%.0f", id)
	default:
		return fmt.Sprint(id)
	}
}
