package flights

import (
	"slices"
	"strings"

	"flightmap/internal/domain"
)

// DefaultBusyRoutes is how many routes BusyRoutes returns when n <= 0.
const DefaultBusyRoutes = 10

type Statistics struct {
	Total          int `json:"total"`
	Grounded       int `json:"grounded"`
	InAir          int `json:"inAir"`
	Domestic       int `json:"domestic"`
	International  int `json:"international"`
	CompleteRoutes int `json:"completeRoutes"`
}

// RouteInfo counts the flights seen on one airport pair, in either direction.
type RouteInfo struct {
	Route       string   `json:"route"`
	Origin      string   `json:"origin"`
	Destination string   `json:"destination"`
	Count       int      `json:"count"`
	Flights     []string `json:"flights"`
}

func (c *Classifier) Statistics(points []domain.AircraftPoint) Statistics {
	s := Statistics{Total: len(points)}
	for _, p := range points {
		cl := c.Classify(p)
		if cl.IsGrounded {
			s.Grounded++
		}
		if cl.IsInAir {
			s.InAir++
		}
		if cl.HasCompleteRoute {
			s.CompleteRoutes++
			if cl.IsDomestic {
				s.Domestic++
			}
			if cl.IsInternational {
				s.International++
			}
		}
	}
	return s
}

// BusyRoutes returns the n most flown airport pairs. Only flights carrying a
// flight number and both codes are counted. Ties keep first-seen order.
func BusyRoutes(points []domain.AircraftPoint, n int) []RouteInfo {
	if n <= 0 {
		n = DefaultBusyRoutes
	}

	var routes []*RouteInfo
	byKey := make(map[string]*RouteInfo)

	for _, p := range points {
		if !p.HasRouteCodes() || p.FlightNumber == "" {
			continue
		}
		pair := []string{p.Origin, p.Destination}
		slices.Sort(pair)
		key := strings.Join(pair, "-")

		if r, ok := byKey[key]; ok {
			r.Count++
			r.Flights = append(r.Flights, p.FlightNumber)
			continue
		}
		r := &RouteInfo{
			Route:       p.Origin + " ↔ " + p.Destination,
			Origin:      p.Origin,
			Destination: p.Destination,
			Count:       1,
			Flights:     []string{p.FlightNumber},
		}
		byKey[key] = r
		routes = append(routes, r)
	}

	slices.SortStableFunc(routes, func(a, b *RouteInfo) int {
		return b.Count - a.Count
	})
	if len(routes) > n {
		routes = routes[:n]
	}

	out := make([]RouteInfo, len(routes))
	for i, r := range routes {
		out[i] = *r
	}
	return out
}

// Find looks up a flight by number, ignoring case and surrounding space.
func Find(points []domain.AircraftPoint, number string) (domain.AircraftPoint, bool) {
	code := strings.ToUpper(strings.TrimSpace(number))
	if code == "" {
		return domain.AircraftPoint{}, false
	}
	for _, p := range points {
		if strings.ToUpper(p.FlightNumber) == code {
			return p, true
		}
	}
	return domain.AircraftPoint{}, false
}
