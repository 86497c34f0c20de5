// Package flights classifies and filters aircraft points and derives route
// information from them.
package flights

import (
	"flightmap/internal/airports"
	"flightmap/internal/domain"
)

const (
	// GroundedAltitudeFeet is the altitude below which a flight counts as grounded.
	GroundedAltitudeFeet = 1000
	// GroundedSpeed is the ground speed below which a flight counts as grounded.
	GroundedSpeed = 50
)

// Classifier derives a Classification for each point using the airport table.
type Classifier struct {
	airports *airports.Table
}

func NewClassifier(table *airports.Table) *Classifier {
	if table == nil {
		table = airports.New(nil)
	}
	return &Classifier{airports: table}
}

func (c *Classifier) Airports() *airports.Table {
	return c.airports
}

// Classify never fails: missing altitude, speed or route fields fall back to
// the conservative reading (not grounded, incomplete route).
func (c *Classifier) Classify(p domain.AircraftPoint) domain.Classification {
	var cl domain.Classification

	cl.HasCompleteRoute = c.HasCompleteRoute(p)
	cl.IsGrounded = IsGrounded(p)
	cl.IsInAir = !cl.IsGrounded

	if cl.HasCompleteRoute {
		domestic := c.airports.Country(p.Origin) == c.airports.Country(p.Destination)
		cl.IsDomestic = domestic
		cl.IsInternational = !domestic
	}
	return cl
}

// HasCompleteRoute reports whether both airport codes are present and known.
func (c *Classifier) HasCompleteRoute(p domain.AircraftPoint) bool {
	if !p.HasRouteCodes() {
		return false
	}
	_, okOrigin := c.airports.Lookup(p.Origin)
	_, okDest := c.airports.Lookup(p.Destination)
	return okOrigin && okDest
}

// IsGrounded applies the alternative heuristics: explicit on-ground flag,
// known altitude under 1000 ft, or known ground speed under 50.
func IsGrounded(p domain.AircraftPoint) bool {
	if p.OnGround {
		return true
	}
	if p.Altitude != nil && *p.Altitude < GroundedAltitudeFeet {
		return true
	}
	if p.GroundSpeed != nil && *p.GroundSpeed < GroundedSpeed {
		return true
	}
	return false
}

// Filter returns the points that pass criteria, in their original order. The
// input slice is not modified.
func (c *Classifier) Filter(points []domain.AircraftPoint, criteria domain.FilterCriteria) []domain.AircraftPoint {
	out := make([]domain.AircraftPoint, 0, len(points))
	for _, p := range points {
		if c.Passes(p, criteria) {
			out = append(out, p)
		}
	}
	return out
}

// Passes reports whether a single point survives criteria.
func (c *Classifier) Passes(p domain.AircraftPoint, criteria domain.FilterCriteria) bool {
	cl := c.Classify(p)

	if !criteria.ShowGrounded && cl.IsGrounded {
		return false
	}
	if !criteria.ShowInAir && cl.IsInAir {
		return false
	}
	if !criteria.ShowIncomplete && !cl.HasCompleteRoute {
		return false
	}
	if cl.HasCompleteRoute {
		if !criteria.ShowDomestic && cl.IsDomestic {
			return false
		}
		if !criteria.ShowInternational && cl.IsInternational {
			return false
		}
	}
	return true
}
