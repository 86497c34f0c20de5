package domain

import "math"

// LatLng is a geographic position in degrees, latitude first.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Finite reports whether both components are real numbers.
func (p LatLng) Finite() bool {
	return !math.IsNaN(p.Lat) && !math.IsInf(p.Lat, 0) &&
		!math.IsNaN(p.Lng) && !math.IsInf(p.Lng, 0)
}

// AircraftPoint is one observed aircraft in a snapshot.
type AircraftPoint struct {
	// Seq is unique within a snapshot and assigned at ingestion.
	Seq int `json:"seq"`

	ID            string   `json:"id,omitempty"`
	Callsign      string   `json:"callsign,omitempty"`
	FlightNumber  string   `json:"flightNumber,omitempty"`
	Position      LatLng   `json:"position"`
	Heading       float64  `json:"heading"`
	Altitude      *float64 `json:"altitude,omitempty"`
	GroundSpeed   *float64 `json:"groundSpeed,omitempty"`
	VerticalSpeed *float64 `json:"verticalSpeed,omitempty"`
	OnGround      bool     `json:"onGround"`
	Origin        string   `json:"origin,omitempty"`
	Destination   string   `json:"destination,omitempty"`
	AircraftType  string   `json:"aircraftType,omitempty"`
	Registration  string   `json:"registration,omitempty"`
	AirlineIATA   string   `json:"airlineIata,omitempty"`
}

// HasRouteCodes reports whether both airport codes are present. It does not
// check the codes against the airport table.
func (p *AircraftPoint) HasRouteCodes() bool {
	return p.Origin != "" && p.Destination != ""
}

// Float returns a pointer to v, for building optional fields.
func Float(v float64) *float64 {
	return &v
}

// BoundingBox is a geographic rectangle. North >= South for a valid box;
// East/West wraparound at the antimeridian is not handled.
type BoundingBox struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Contains checks if a point is within the bounding box, edges included.
func (bb BoundingBox) Contains(lat, lng float64) bool {
	return lat >= bb.South && lat <= bb.North &&
		lng >= bb.West && lng <= bb.East
}

// Expand grows the box by d degrees on every side.
func (bb BoundingBox) Expand(d float64) BoundingBox {
	return BoundingBox{
		North: bb.North + d,
		South: bb.South - d,
		East:  bb.East + d,
		West:  bb.West - d,
	}
}

// Valid reports whether the box has finite edges and North >= South.
func (bb BoundingBox) Valid() bool {
	for _, v := range [...]float64{bb.North, bb.South, bb.East, bb.West} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return bb.North >= bb.South
}

// EmptyBounds is the impossible range used as the starting point for running
// min/max accumulation.
func EmptyBounds() BoundingBox {
	return BoundingBox{North: -90, South: 90, East: -180, West: 180}
}

// FilterCriteria toggles which classes of flights are shown.
type FilterCriteria struct {
	ShowGrounded      bool `json:"showGrounded"`
	ShowInAir         bool `json:"showInAir"`
	ShowDomestic      bool `json:"showDomestic"`
	ShowInternational bool `json:"showInternational"`
	ShowIncomplete    bool `json:"showIncomplete"`
}

// DefaultFilters shows everything.
func DefaultFilters() FilterCriteria {
	return FilterCriteria{
		ShowGrounded:      true,
		ShowInAir:         true,
		ShowDomestic:      true,
		ShowInternational: true,
		ShowIncomplete:    true,
	}
}

// Classification is the derived status of one flight.
type Classification struct {
	IsGrounded       bool `json:"isGrounded"`
	IsInAir          bool `json:"isInAir"`
	IsDomestic       bool `json:"isDomestic"`
	IsInternational  bool `json:"isInternational"`
	HasCompleteRoute bool `json:"hasCompleteRoute"`
}
