// Package display picks the subset of flights rendered as individual
// markers.
//
// Selection is deterministic: the pseudo-random ordering is seeded from the
// viewport rounded to two decimals (or a fixed seed without a viewport), so
// re-rendering with the same inputs shows the same markers and small pans
// do not reshuffle them.
package display

import (
	"math"
	"slices"
	"strings"

	"flightmap/internal/domain"
	"flightmap/internal/spatial"
)

// GlobalSeed seeds the sample used when there is no viewport to derive one from.
const GlobalSeed int64 = 12345

// RouteChecker reports whether a point has a complete route.
type RouteChecker interface {
	HasCompleteRoute(p domain.AircraftPoint) bool
}

type Options struct {
	MarkerLimit     int
	ViewportCulling bool
	// LOD hands rendering to the point renderer; the selection is empty.
	LOD      bool
	Viewport *domain.BoundingBox
	Filters  domain.FilterCriteria
}

type Selector struct {
	routes RouteChecker
}

func NewSelector(routes RouteChecker) *Selector {
	return &Selector{routes: routes}
}

// Select returns at most opts.MarkerLimit points of filtered. index must
// have been built from filtered.
func (s *Selector) Select(filtered []domain.AircraftPoint, index *spatial.Index, opts Options) []domain.AircraftPoint {
	if opts.LOD || opts.MarkerLimit <= 0 || len(filtered) == 0 {
		return nil
	}

	var selected []domain.AircraftPoint
	if opts.ViewportCulling && opts.Viewport != nil && index != nil {
		selected = s.selectViewport(filtered, index, *opts.Viewport, opts)
	} else {
		rng := NewLCG(GlobalSeed)
		selected = takeRandom(filtered, rng, opts.MarkerLimit)
	}

	if len(selected) > opts.MarkerLimit {
		selected = selected[:opts.MarkerLimit]
	}
	return selected
}

func (s *Selector) selectViewport(filtered []domain.AircraftPoint, index *spatial.Index, viewport domain.BoundingBox, opts Options) []domain.AircraftPoint {
	inViewport := index.QueryBounds(viewport)

	inSet := make(map[int]struct{}, len(inViewport))
	for _, p := range inViewport {
		inSet[p.Seq] = struct{}{}
	}

	candidates := inViewport
	if !opts.Filters.ShowIncomplete && s.routes != nil {
		candidates = make([]domain.AircraftPoint, 0, len(inViewport))
		for _, p := range inViewport {
			if s.routes.HasCompleteRoute(p) {
				candidates = append(candidates, p)
			}
		}
	}

	rng := NewLCG(StableSeed(viewport))
	selected := takeRandom(candidates, rng, opts.MarkerLimit)
	if len(selected) >= opts.MarkerLimit {
		return selected
	}

	outside := make([]domain.AircraftPoint, 0, len(filtered))
	for _, p := range filtered {
		if _, ok := inSet[p.Seq]; !ok {
			outside = append(outside, p)
		}
	}
	if len(outside) == 0 {
		return selected
	}

	// Same generator, continued.
	return append(selected, takeRandom(outside, rng, opts.MarkerLimit-len(selected))...)
}

type ranked struct {
	point domain.AircraftPoint
	value float64
}

// takeRandom assigns each point the next generator value in input order,
// orders by value (stable on ties) and returns the first n.
func takeRandom(points []domain.AircraftPoint, rng *LCG, n int) []domain.AircraftPoint {
	items := make([]ranked, len(points))
	for i, p := range points {
		items[i] = ranked{point: p, value: rng.Next()}
	}
	slices.SortStableFunc(items, func(a, b ranked) int {
		switch {
		case a.value < b.value:
			return -1
		case a.value > b.value:
			return 1
		}
		return 0
	})

	if n > len(items) {
		n = len(items)
	}
	out := make([]domain.AircraftPoint, n)
	for i := 0; i < n; i++ {
		out[i] = items[i].point
	}
	return out
}

// StableSeed sums the viewport edges floored at two decimals, so the seed
// only changes when the viewport moves by a meaningful amount.
func StableSeed(bb domain.BoundingBox) int64 {
	return seedTerm(bb.North) + seedTerm(bb.South) + seedTerm(bb.East) + seedTerm(bb.West)
}

// seedTerm is floor(v*100), reduced modulo the generator modulus so absurd
// coordinates cannot overflow. Real coordinates are never reduced.
func seedTerm(v float64) int64 {
	return int64(math.Mod(math.Floor(v*100), lcgModulus))
}

// EnsureVisible makes sure p is part of selection, replacing the last entry
// when it is missing. Flight numbers are compared case-insensitively.
func EnsureVisible(selection []domain.AircraftPoint, p domain.AircraftPoint, limit int) []domain.AircraftPoint {
	for _, s := range selection {
		if s.Seq == p.Seq || (p.FlightNumber != "" && strings.EqualFold(s.FlightNumber, p.FlightNumber)) {
			return selection
		}
	}

	out := make([]domain.AircraftPoint, 0, len(selection)+1)
	out = append(out, selection...)
	if len(out) > 0 && len(out) >= limit {
		out = out[:len(out)-1]
	}
	return append(out, p)
}
