package spatial

import (
	"math"
	"sort"

	"flightmap/internal/domain"
)

// DefaultCellSize is the grid cell size in degrees used when none is given.
const DefaultCellSize = 1.0

type cellKey struct {
	lat int
	lng int
}

func (k cellKey) less(o cellKey) bool {
	if k.lat != o.lat {
		return k.lat < o.lat
	}
	return k.lng < o.lng
}

// Index is a grid-bucketed index over aircraft positions. It is built in one
// pass from a point set and never updated incrementally.
type Index struct {
	cellSize float64
	cells    map[cellKey][]domain.AircraftPoint
	bounds   domain.BoundingBox
	count    int
}

// Stats summarises how points are spread over the grid.
type Stats struct {
	TotalPoints     int     `json:"totalPoints"`
	Cells           int     `json:"cells"`
	AveragePerCell  float64 `json:"averagePerCell"`
	CellSizeDegrees float64 `json:"cellSizeDegrees"`
}

// Cell is the population of one occupied grid cell.
type Cell struct {
	Center domain.LatLng `json:"center"`
	Count  int           `json:"count"`
}

func New(cellSize float64) *Index {
	if cellSize <= 0 || math.IsNaN(cellSize) || math.IsInf(cellSize, 0) {
		cellSize = DefaultCellSize
	}
	return &Index{
		cellSize: cellSize,
		cells:    make(map[cellKey][]domain.AircraftPoint),
		bounds:   domain.EmptyBounds(),
	}
}

// Build creates an index over points with the given cell size. Queries
// dedup by Seq, so every point needs a distinct Seq; snapshots from
// store.Replace already have one.
func Build(points []domain.AircraftPoint, cellSize float64) *Index {
	ix := New(cellSize)
	ix.Build(points)
	return ix
}

// Build replaces the index contents with points. Points with non-finite
// coordinates are skipped.
func (ix *Index) Build(points []domain.AircraftPoint) {
	ix.Clear()

	for _, p := range points {
		if !p.Position.Finite() {
			continue
		}
		lat, lng := p.Position.Lat, p.Position.Lng

		ix.bounds.North = math.Max(ix.bounds.North, lat)
		ix.bounds.South = math.Min(ix.bounds.South, lat)
		ix.bounds.East = math.Max(ix.bounds.East, lng)
		ix.bounds.West = math.Min(ix.bounds.West, lng)

		key := ix.keyFor(lat, lng)
		ix.cells[key] = append(ix.cells[key], p)
		ix.count++
	}
}

// Clear empties all cells and resets the bounds to the impossible range.
func (ix *Index) Clear() {
	ix.cells = make(map[cellKey][]domain.AircraftPoint)
	ix.bounds = domain.EmptyBounds()
	ix.count = 0
}

func (ix *Index) CellSize() float64 {
	return ix.cellSize
}

func (ix *Index) Len() int {
	return ix.count
}

// Bounds returns the observed extent of the indexed points. ok is false for
// an empty index.
func (ix *Index) Bounds() (bb domain.BoundingBox, ok bool) {
	if ix.count == 0 {
		return ix.bounds, false
	}
	return ix.bounds, true
}

// QueryBounds returns every point whose position lies inside box, edges
// included. The candidate cell range is taken from box expanded by one cell
// on each side; each candidate is then tested against the original box.
// Results follow cell order (latitude-major) and insertion order inside a
// cell.
func (ix *Index) QueryBounds(box domain.BoundingBox) []domain.AircraftPoint {
	if ix.count == 0 || !box.Valid() {
		return nil
	}

	expanded := box.Expand(ix.cellSize)
	minLat := math.Floor(expanded.South / ix.cellSize)
	maxLat := math.Ceil(expanded.North / ix.cellSize)
	minLng := math.Floor(expanded.West / ix.cellSize)
	maxLng := math.Ceil(expanded.East / ix.cellSize)

	var results []domain.AircraftPoint
	visited := make(map[int]struct{})

	collect := func(nodes []domain.AircraftPoint) {
		for _, p := range nodes {
			if !box.Contains(p.Position.Lat, p.Position.Lng) {
				continue
			}
			if _, seen := visited[p.Seq]; seen {
				continue
			}
			visited[p.Seq] = struct{}{}
			results = append(results, p)
		}
	}

	span := (maxLat - minLat + 1) * (maxLng - minLng + 1)
	if span > float64(len(ix.cells)) {
		// Fewer occupied cells than cells in range: walk the occupied ones.
		for _, key := range ix.sortedKeys() {
			if float64(key.lat) < minLat || float64(key.lat) > maxLat ||
				float64(key.lng) < minLng || float64(key.lng) > maxLng {
				continue
			}
			collect(ix.cells[key])
		}
		return results
	}

	for lat := int(minLat); lat <= int(maxLat); lat++ {
		for lng := int(minLng); lng <= int(maxLng); lng++ {
			if nodes, ok := ix.cells[cellKey{lat: lat, lng: lng}]; ok {
				collect(nodes)
			}
		}
	}
	return results
}

// QueryRadius returns points within radius degrees of center. Distance is
// planar in degrees, which is only meaningful for small radii.
func (ix *Index) QueryRadius(center domain.LatLng, radius float64) []domain.AircraftPoint {
	if radius < 0 {
		return nil
	}
	box := domain.BoundingBox{
		North: center.Lat + radius,
		South: center.Lat - radius,
		East:  center.Lng + radius,
		West:  center.Lng - radius,
	}

	candidates := ix.QueryBounds(box)
	results := candidates[:0]
	for _, p := range candidates {
		dLat := p.Position.Lat - center.Lat
		dLng := p.Position.Lng - center.Lng
		if math.Sqrt(dLat*dLat+dLng*dLng) <= radius {
			results = append(results, p)
		}
	}
	return results
}

func (ix *Index) Stats() Stats {
	s := Stats{
		TotalPoints:     ix.count,
		Cells:           len(ix.cells),
		CellSizeDegrees: ix.cellSize,
	}
	if s.Cells > 0 {
		s.AveragePerCell = float64(s.TotalPoints) / float64(s.Cells)
	}
	return s
}

// Density returns the population of every occupied cell, in cell order.
func (ix *Index) Density() []Cell {
	keys := ix.sortedKeys()
	out := make([]Cell, 0, len(keys))
	for _, key := range keys {
		out = append(out, Cell{
			Center: domain.LatLng{
				Lat: (float64(key.lat) + 0.5) * ix.cellSize,
				Lng: (float64(key.lng) + 0.5) * ix.cellSize,
			},
			Count: len(ix.cells[key]),
		})
	}
	return out
}

func (ix *Index) keyFor(lat, lng float64) cellKey {
	return cellKey{
		lat: int(math.Floor(lat / ix.cellSize)),
		lng: int(math.Floor(lng / ix.cellSize)),
	}
}

func (ix *Index) sortedKeys() []cellKey {
	keys := make([]cellKey, 0, len(ix.cells))
	for key := range ix.cells {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
	return keys
}
