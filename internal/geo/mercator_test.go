package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"flightmap/internal/domain"
)

func TestWorldPixel(t *testing.T) {
	p := WorldPixel(domain.LatLng{}, 0)
	assert.InDelta(t, 128, p.X, 1e-9)
	assert.InDelta(t, 128, p.Y, 1e-9)

	nw := WorldPixel(domain.LatLng{Lat: 89, Lng: -180}, 1)
	assert.InDelta(t, 0, nw.X, 1e-9)
	assert.InDelta(t, 0, nw.Y, 1e-3)
}

func TestProjectRoundTrip(t *testing.T) {
	v := Viewport{Center: domain.LatLng{Lat: 40.7, Lng: -74}, Zoom: 7.5, Width: 1200, Height: 800}

	center := v.Project(v.Center)
	assert.InDelta(t, 600, center.X, 1e-6)
	assert.InDelta(t, 400, center.Y, 1e-6)

	for _, pos := range []domain.LatLng{
		{Lat: 41.2, Lng: -73.1},
		{Lat: 39.9, Lng: -75.6},
		{Lat: -33.9, Lng: 151.2},
	} {
		back := v.Unproject(v.Project(pos))
		assert.InDelta(t, pos.Lat, back.Lat, 1e-9)
		assert.InDelta(t, pos.Lng, back.Lng, 1e-9)
	}
}

func TestBounds(t *testing.T) {
	v := Viewport{Center: domain.LatLng{Lat: 40, Lng: -74}, Zoom: 6, Width: 512, Height: 512}
	bb := v.Bounds()

	assert.True(t, bb.Valid())
	assert.True(t, bb.Contains(40, -74))
	assert.Greater(t, bb.North, 40.0)
	assert.Less(t, bb.South, 40.0)
	// 512 px at zoom 6 spans two tiles of 360/64 degrees.
	assert.InDelta(t, 2*360.0/64, bb.East-bb.West, 1e-9)
}

func TestValid(t *testing.T) {
	assert.True(t, Viewport{Zoom: 3, Width: 1, Height: 1}.Valid())
	assert.False(t, Viewport{Zoom: 3}.Valid())
	assert.False(t, Viewport{Zoom: -1, Width: 1, Height: 1}.Valid())
	assert.False(t, Viewport{Zoom: 30, Width: 1, Height: 1}.Valid())

	assert.True(t, Viewport{Zoom: 3, Width: MaxViewportSize, Height: MaxViewportSize}.Valid())
	assert.False(t, Viewport{Zoom: 3, Width: MaxViewportSize + 1, Height: 1}.Valid())
	assert.False(t, Viewport{Zoom: 3, Width: 1, Height: 40000}.Valid())
	assert.False(t, Viewport{Zoom: 10, Width: 1 << 40, Height: 1 << 40}.Valid())
}
