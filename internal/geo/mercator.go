// Package geo implements the Web Mercator (slippy map) projection used to map
// between geographic positions and screen pixels.
package geo

import (
	"math"

	"flightmap/internal/domain"
)

// TileSize is the edge of one map tile in pixels.
const TileSize = 256

// MaxLatitude is the latitude where Web Mercator squares the world.
const MaxLatitude = 85.05112878

// MaxViewportSize bounds each viewport dimension in pixels.
const MaxViewportSize = 8192

// Point is a pixel position. X grows east, Y grows south.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Viewport is the visible map window: a center, a fractional zoom level and
// the window size in pixels.
type Viewport struct {
	Center domain.LatLng `json:"center"`
	Zoom   float64       `json:"zoom"`
	Width  int           `json:"width"`
	Height int           `json:"height"`
}

// WorldSize returns the width of the whole world in pixels at zoom.
func WorldSize(zoom float64) float64 {
	return TileSize * math.Pow(2, zoom)
}

// WorldPixel projects a position to absolute world pixels at zoom.
func WorldPixel(pos domain.LatLng, zoom float64) Point {
	n := WorldSize(zoom)
	lat := clampLat(pos.Lat) * math.Pi / 180.0
	return Point{
		X: (pos.Lng + 180.0) / 360.0 * n,
		Y: (1.0 - math.Log(math.Tan(lat)+1.0/math.Cos(lat))/math.Pi) / 2.0 * n,
	}
}

// WorldLatLng inverts WorldPixel.
func WorldLatLng(p Point, zoom float64) domain.LatLng {
	n := WorldSize(zoom)
	latRad := math.Atan(math.Sinh(math.Pi * (1 - 2*p.Y/n)))
	return domain.LatLng{
		Lat: latRad * 180.0 / math.Pi,
		Lng: p.X/n*360.0 - 180.0,
	}
}

// Project maps a position to pixels relative to the viewport's top-left
// corner.
func (v Viewport) Project(pos domain.LatLng) Point {
	c := WorldPixel(v.Center, v.Zoom)
	p := WorldPixel(pos, v.Zoom)
	return Point{
		X: p.X - c.X + float64(v.Width)/2,
		Y: p.Y - c.Y + float64(v.Height)/2,
	}
}

// Unproject maps a viewport pixel back to a position.
func (v Viewport) Unproject(p Point) domain.LatLng {
	c := WorldPixel(v.Center, v.Zoom)
	return WorldLatLng(Point{
		X: p.X + c.X - float64(v.Width)/2,
		Y: p.Y + c.Y - float64(v.Height)/2,
	}, v.Zoom)
}

// Bounds returns the geographic box covered by the viewport. Longitudes are
// not wrapped.
func (v Viewport) Bounds() domain.BoundingBox {
	nw := v.Unproject(Point{X: 0, Y: 0})
	se := v.Unproject(Point{X: float64(v.Width), Y: float64(v.Height)})
	return domain.BoundingBox{
		North: nw.Lat,
		South: se.Lat,
		East:  se.Lng,
		West:  nw.Lng,
	}
}

// Valid reports whether the viewport can be projected and rendered. Each
// side must be between 1 and MaxViewportSize pixels.
func (v Viewport) Valid() bool {
	return v.Center.Finite() && !math.IsNaN(v.Zoom) && !math.IsInf(v.Zoom, 0) &&
		v.Zoom >= 0 && v.Zoom <= 24 &&
		v.Width > 0 && v.Width <= MaxViewportSize &&
		v.Height > 0 && v.Height <= MaxViewportSize
}

func clampLat(lat float64) float64 {
	return math.Max(-MaxLatitude, math.Min(MaxLatitude, lat))
}
