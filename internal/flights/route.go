package flights

import (
	"errors"
	"fmt"
	"math"

	"flightmap/internal/domain"
)

var (
	ErrFlightNotFound  = errors.New("flight not found")
	ErrIncompleteRoute = errors.New("flight does not have complete route information")
	ErrAirportNotFound = errors.New("airport coordinates not found")
)

const (
	earthRadiusKm = 6371.0

	// Routes longer than this are drawn along the great circle.
	greatCircleMinKm = 500
)

// ResolveRoute builds the route for a flight. The returned errors are meant
// to be shown to the user as notices.
func (c *Classifier) ResolveRoute(p domain.AircraftPoint) (domain.Route, error) {
	if !p.HasRouteCodes() || p.FlightNumber == "" {
		number := p.FlightNumber
		if number == "" {
			number = "unknown"
		}
		return domain.Route{}, fmt.Errorf("flight %s: %w", number, ErrIncompleteRoute)
	}

	origin, okOrigin := c.airports.Lookup(p.Origin)
	dest, okDest := c.airports.Lookup(p.Destination)
	if !okOrigin || !okDest {
		return domain.Route{}, fmt.Errorf("%s or %s: %w", p.Origin, p.Destination, ErrAirportNotFound)
	}

	return domain.Route{
		FlightNumber:    p.FlightNumber,
		Origin:          p.Origin,
		Destination:     p.Destination,
		OriginName:      c.airports.Name(p.Origin),
		DestinationName: c.airports.Name(p.Destination),
		OriginPos:       origin.Position(),
		DestinationPos:  dest.Position(),
		Current:         p.Position,
		DistanceKm:      int(math.Round(DistanceKm(origin.Position(), dest.Position()))),
		Path:            FlightPath(origin.Position(), dest.Position()),
	}, nil
}

// Search finds a flight by number and resolves its route.
func (c *Classifier) Search(points []domain.AircraftPoint, number string) (domain.AircraftPoint, domain.Route, error) {
	p, ok := Find(points, number)
	if !ok {
		return domain.AircraftPoint{}, domain.Route{}, fmt.Errorf("flight %s: %w", number, ErrFlightNotFound)
	}
	route, err := c.ResolveRoute(p)
	if err != nil {
		return p, domain.Route{}, err
	}
	return p, route, nil
}

// DistanceKm is the haversine distance between two positions.
func DistanceKm(a, b domain.LatLng) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// FlightPath returns the drawn path between two airports: a straight segment
// for short hops, otherwise the great circle with one point per ~100 km
// (between 10 and 50 segments).
func FlightPath(origin, dest domain.LatLng) []domain.LatLng {
	km := DistanceKm(origin, dest)
	if km <= greatCircleMinKm {
		return []domain.LatLng{origin, dest}
	}
	segments := int(math.Floor(km / 100))
	segments = max(10, min(segments, 50))
	return GreatCircle(origin, dest, segments)
}

// GreatCircle interpolates segments+1 points along the great circle from
// origin to dest, both ends included.
func GreatCircle(origin, dest domain.LatLng, segments int) []domain.LatLng {
	if segments < 1 {
		segments = 1
	}
	lat1, lng1 := toRadians(origin.Lat), toRadians(origin.Lng)
	lat2, lng2 := toRadians(dest.Lat), toRadians(dest.Lng)

	cosD := math.Sin(lat1)*math.Sin(lat2) + math.Cos(lat1)*math.Cos(lat2)*math.Cos(lng2-lng1)
	d := math.Acos(math.Max(-1, math.Min(1, cosD)))
	if d == 0 {
		return []domain.LatLng{origin, dest}
	}

	points := make([]domain.LatLng, 0, segments+1)
	for i := 0; i <= segments; i++ {
		f := float64(i) / float64(segments)
		a := math.Sin((1-f)*d) / math.Sin(d)
		b := math.Sin(f*d) / math.Sin(d)

		x := a*math.Cos(lat1)*math.Cos(lng1) + b*math.Cos(lat2)*math.Cos(lng2)
		y := a*math.Cos(lat1)*math.Sin(lng1) + b*math.Cos(lat2)*math.Sin(lng2)
		z := a*math.Sin(lat1) + b*math.Sin(lat2)

		points = append(points, domain.LatLng{
			Lat: toDegrees(math.Atan2(z, math.Sqrt(x*x+y*y))),
			Lng: toDegrees(math.Atan2(y, x)),
		})
	}
	return points
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }
func toDegrees(rad float64) float64 { return rad * 180 / math.Pi }
