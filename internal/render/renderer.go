package render

import (
	"errors"
	"fmt"
	"image"
	"math"
	"slices"

	"flightmap/internal/domain"
	"flightmap/internal/geo"
)

const (
	// GridCellDegrees is the renderer's own partition, finer than the
	// spatial index used for marker selection.
	GridCellDegrees = 0.1

	// MaxRenderedPoints caps the per-frame point count.
	MaxRenderedPoints = 10000

	// HitThresholdPx is the largest screen distance accepted by HitTest.
	HitThresholdPx = 20.0

	basePointSize = 8.0
)

var (
	colorIncomplete = [4]float32{1.0, 0.2, 0.2, 0.8}
	colorGrounded   = [4]float32{0.6, 0.6, 0.6, 0.7}
	colorInAir      = [4]float32{0.2, 0.4, 0.8, 0.8}
)

// gridKey is a cell of the render grid; x follows longitude, y latitude.
type gridKey struct {
	x, y int
}

// Frame is one rendered frame as uploaded to the device.
type Frame struct {
	Width  int     `json:"width" msgpack:"width"`
	Height int     `json:"height" msgpack:"height"`
	Zoom   float64 `json:"zoom" msgpack:"zoom"`
	LOD    int     `json:"lod" msgpack:"lod"`
	Count  int     `json:"count" msgpack:"count"`
	Total  int     `json:"total" msgpack:"total"`

	// Positions holds x,y pixel pairs, Colors RGBA quadruples and Sizes one
	// diameter per point.
	Positions []float32 `json:"positions" msgpack:"positions"`
	Colors    []float32 `json:"colors" msgpack:"colors"`
	Sizes     []float32 `json:"sizes" msgpack:"sizes"`
	Seqs      []int     `json:"seqs" msgpack:"seqs"`
}

type Stats struct {
	TotalPoints   int `json:"totalPoints"`
	VisiblePoints int `json:"visiblePoints"`
	CurrentLOD    int `json:"currentLod"`
}

// Renderer owns a device context and the GPU-side resources for one layer.
// It is not safe for concurrent use.
type Renderer struct {
	device    Device
	program   Program
	positions Buffer
	colors    Buffer
	sizes     Buffer

	points []domain.AircraftPoint
	grid   map[gridKey][]int
	keys   []gridKey

	visible  []int
	lastView geo.Viewport
	hasView  bool
	lod      int
	disposed bool
}

// New acquires a context from surface and compiles the point program. It
// fails fast with ErrContextUnavailable when the surface has no context.
func New(surface Surface) (*Renderer, error) {
	if surface == nil {
		return nil, ErrContextUnavailable
	}
	device, err := surface.Context()
	if err != nil {
		if errors.Is(err, ErrContextUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrContextUnavailable, err)
	}
	if device == nil {
		return nil, ErrContextUnavailable
	}

	r := &Renderer{device: device, grid: make(map[gridKey][]int), lod: 1}
	if err := r.init(); err != nil {
		r.Dispose()
		return nil, err
	}
	return r, nil
}

func (r *Renderer) init() error {
	program, err := r.device.CompileProgram()
	if err != nil {
		return fmt.Errorf("compile program: %w", err)
	}
	r.program = program

	for _, buf := range []*Buffer{&r.positions, &r.colors, &r.sizes} {
		b, err := r.device.CreateBuffer()
		if err != nil {
			return fmt.Errorf("create buffer: %w", err)
		}
		*buf = b
	}
	return nil
}

// SetPoints replaces the point set and rebuilds the render grid.
func (r *Renderer) SetPoints(points []domain.AircraftPoint) {
	r.points = points
	r.grid = make(map[gridKey][]int)
	for i, p := range points {
		if !p.Position.Finite() {
			continue
		}
		k := gridKey{
			x: int(math.Floor(p.Position.Lng / GridCellDegrees)),
			y: int(math.Floor(p.Position.Lat / GridCellDegrees)),
		}
		r.grid[k] = append(r.grid[k], i)
	}

	r.keys = make([]gridKey, 0, len(r.grid))
	for k := range r.grid {
		r.keys = append(r.keys, k)
	}
	slices.SortFunc(r.keys, func(a, b gridKey) int {
		if a.x != b.x {
			return a.x - b.x
		}
		return a.y - b.y
	})

	r.visible = nil
	r.hasView = false
}

// LODStride returns the sampling stride at zoom: a stride of n renders every
// nth point of each cell.
func LODStride(zoom float64) int {
	switch {
	case zoom >= 10:
		return 1
	case zoom >= 8:
		return 2
	case zoom >= 6:
		return 4
	}
	return 8
}

// PointSize is the sprite diameter at zoom.
func PointSize(zoom float64) float64 {
	return basePointSize * math.Max(0.5, math.Min(2, zoom/8))
}

// Visible computes the points drawn for view: covering cells in
// longitude-major order, every stride-th point of each cell, exact bounds
// check, stopping at MaxRenderedPoints.
func (r *Renderer) Visible(view geo.Viewport) []domain.AircraftPoint {
	r.computeVisible(view)
	out := make([]domain.AircraftPoint, len(r.visible))
	for i, idx := range r.visible {
		out[i] = r.points[idx]
	}
	return out
}

func (r *Renderer) computeVisible(view geo.Viewport) {
	if r.hasView && r.lastView == view {
		return
	}
	r.lastView = view
	r.hasView = true
	r.lod = LODStride(view.Zoom)
	r.visible = r.collect(view.Bounds(), r.lod, r.visible[:0])
}

// collect appends the indices of points inside bb, taking every stride-th
// point of each covering cell.
func (r *Renderer) collect(bb domain.BoundingBox, stride int, dst []int) []int {
	minX := int(math.Floor(bb.West / GridCellDegrees))
	maxX := int(math.Ceil(bb.East / GridCellDegrees))
	minY := int(math.Floor(bb.South / GridCellDegrees))
	maxY := int(math.Ceil(bb.North / GridCellDegrees))

	visit := func(k gridKey) bool {
		cell := r.grid[k]
		for i := 0; i < len(cell); i += stride {
			p := r.points[cell[i]].Position
			if !bb.Contains(p.Lat, p.Lng) {
				continue
			}
			dst = append(dst, cell[i])
			if len(dst) >= MaxRenderedPoints {
				return false
			}
		}
		return true
	}

	span := (int64(maxX) - int64(minX) + 1) * (int64(maxY) - int64(minY) + 1)
	if span > int64(len(r.keys)) {
		for _, k := range r.keys {
			if k.x < minX || k.x > maxX || k.y < minY || k.y > maxY {
				continue
			}
			if !visit(k) {
				break
			}
		}
		return dst
	}

	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			k := gridKey{x, y}
			if _, ok := r.grid[k]; !ok {
				continue
			}
			if !visit(k) {
				return dst
			}
		}
	}
	return dst
}

// Render draws the visible points for view and returns the uploaded arrays.
func (r *Renderer) Render(view geo.Viewport) (Frame, error) {
	if r.disposed {
		return Frame{}, ErrDisposed
	}

	r.computeVisible(view)
	r.device.Resize(view.Width, view.Height)
	r.device.Clear()

	n := len(r.visible)
	frame := Frame{
		Width:     view.Width,
		Height:    view.Height,
		Zoom:      view.Zoom,
		LOD:       r.lod,
		Count:     n,
		Total:     len(r.points),
		Positions: make([]float32, n*2),
		Colors:    make([]float32, n*4),
		Sizes:     make([]float32, n),
		Seqs:      make([]int, n),
	}
	if n == 0 {
		return frame, nil
	}

	size := float32(PointSize(view.Zoom))
	for i, idx := range r.visible {
		p := &r.points[idx]
		px := view.Project(p.Position)
		frame.Positions[i*2] = float32(px.X)
		frame.Positions[i*2+1] = float32(px.Y)
		c := pointColor(p)
		copy(frame.Colors[i*4:i*4+4], c[:])
		frame.Sizes[i] = size
		frame.Seqs[i] = p.Seq
	}

	r.positions.Upload(frame.Positions)
	r.colors.Upload(frame.Colors)
	r.sizes.Upload(frame.Sizes)
	if err := r.device.DrawPoints(r.program, r.positions, r.colors, r.sizes, n); err != nil {
		return Frame{}, fmt.Errorf("draw points: %w", err)
	}
	return frame, nil
}

// HitTest returns the visible point nearest to the clicked pixel, within
// HitThresholdPx. A miss is not an error.
func (r *Renderer) HitTest(view geo.Viewport, click geo.Point) (domain.AircraftPoint, bool) {
	r.computeVisible(view)

	target := view.Project(view.Unproject(click))
	best := -1
	bestDist := 0.0
	for _, idx := range r.visible {
		px := view.Project(r.points[idx].Position)
		d := math.Hypot(px.X-target.X, px.Y-target.Y)
		if d > HitThresholdPx {
			continue
		}
		if best == -1 || d < bestDist {
			best, bestDist = idx, d
		}
	}
	if best == -1 {
		return domain.AircraftPoint{}, false
	}
	return r.points[best], true
}

// Snapshot copies the canvas of devices that keep one in memory.
func (r *Renderer) Snapshot() (*image.RGBA, bool) {
	d, ok := r.device.(interface{ Image() *image.RGBA })
	if !ok || d.Image() == nil {
		return nil, false
	}
	src := d.Image()
	dst := image.NewRGBA(src.Rect)
	copy(dst.Pix, src.Pix)
	return dst, true
}

func (r *Renderer) Stats() Stats {
	return Stats{
		TotalPoints:   len(r.points),
		VisiblePoints: len(r.visible),
		CurrentLOD:    r.lod,
	}
}

// Dispose releases the program, buffers and context. Further calls are
// no-ops.
func (r *Renderer) Dispose() {
	if r.disposed {
		return
	}
	r.disposed = true

	if r.device != nil {
		r.device.Clear()
	}
	for _, b := range []Buffer{r.positions, r.colors, r.sizes} {
		if b != nil {
			b.Delete()
		}
	}
	if r.program != nil {
		r.program.Delete()
	}
	if r.device != nil {
		r.device.Release()
	}

	r.program, r.positions, r.colors, r.sizes, r.device = nil, nil, nil, nil, nil
	r.points, r.grid, r.keys, r.visible = nil, nil, nil, nil
}

// pointColor encodes status: missing route codes, then on-ground, then in-air.
func pointColor(p *domain.AircraftPoint) [4]float32 {
	switch {
	case !p.HasRouteCodes():
		return colorIncomplete
	case p.OnGround:
		return colorGrounded
	}
	return colorInAir
}
