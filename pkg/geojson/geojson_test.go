package geojson

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature",
     "properties": {"id": "2f1a", "number": "AA100", "callsign": "AAL100", "altitude": 35000,
                    "ground_speed": 450, "heading": 270, "on_ground": false,
                    "origin_airport_iata": "jfk", "destination_airport_iata": "LAX",
                    "aircraft_code": "B738", "registration": "N123AA", "airline_iata": "AA"},
     "geometry": {"type": "Point", "coordinates": [-73.78, 40.64]}},
    {"type": "Feature", "properties": {"number": "NOPOS"}},
    {"type": "Feature", "properties": {}, "geometry": {"type": "Point", "coordinates": [-73.0]}},
    {"type": "Feature", "properties": {}, "geometry": {"type": "Point", "coordinates": ["x", 1]}},
    {"type": "Feature", "properties": {"id": 42, "on_ground": true},
     "geometry": {"type": "Point", "coordinates": [-71.0, 42.36]}}
  ]
}`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDecode(t *testing.T) {
	c, err := Decode(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, c.Points, 2)
	assert.Equal(t, 3, c.Skipped)

	p := c.Points[0]
	assert.Equal(t, 0, p.Seq)
	assert.Equal(t, "2f1a", p.ID)
	assert.Equal(t, "AA100", p.FlightNumber)
	// [lng, lat] becomes lat/lng here and nowhere else.
	assert.Equal(t, 40.64, p.Position.Lat)
	assert.Equal(t, -73.78, p.Position.Lng)
	require.NotNil(t, p.Altitude)
	assert.Equal(t, 35000.0, *p.Altitude)
	assert.Nil(t, p.VerticalSpeed)
	assert.Equal(t, "JFK", p.Origin)
	assert.Equal(t, "B738", p.AircraftType)
	assert.Equal(t, 270.0, p.Heading)

	q := c.Points[1]
	assert.Equal(t, 1, q.Seq)
	assert.Equal(t, "42", q.ID)
	assert.True(t, q.OnGround)
	assert.Nil(t, q.Altitude)
	assert.Empty(t, q.FlightNumber)
}

func TestDecodeMalformed(t *testing.T) {
	for name, doc := range map[string]string{
		"missing features": `{"type": "FeatureCollection"}`,
		"null features":    `{"features": null}`,
		"object features":  `{"features": {"a": 1}}`,
		"string features":  `{"features": "[]"}`,
		"top-level array":  `[]`,
		"not json":         `<html>`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(doc))
			assert.ErrorIs(t, err, ErrMalformedDocument)
		})
	}

	c, err := Decode(strings.NewReader(`{"features": []}`))
	require.NoError(t, err)
	assert.Empty(t, c.Points)
}

func TestSourceFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flights.geojson")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	c, err := NewSource(path, discardLogger()).Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, c.Points, 2)

	c, err = NewSource("file://"+path, discardLogger()).Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, c.Points, 2)

	_, err = NewSource(filepath.Join(t.TempDir(), "missing.geojson"), discardLogger()).Load(context.Background())
	assert.Error(t, err)
}

func TestSourceHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "application/geo+json")
			io.WriteString(w, sample)
		case "/bad":
			io.WriteString(w, `{"type": "FeatureCollection"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, err := NewSource(srv.URL+"/ok", discardLogger()).Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, c.Points, 2)

	_, err = NewSource(srv.URL+"/bad", discardLogger()).Load(context.Background())
	assert.ErrorIs(t, err, ErrMalformedDocument)

	_, err = NewSource(srv.URL+"/missing", discardLogger()).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
