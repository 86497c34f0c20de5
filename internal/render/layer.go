package render

import (
	"image"
	"slices"
	"sync"

	"flightmap/internal/domain"
	"flightmap/internal/geo"
)

type EventType int

const (
	// EventMove fires after the viewport changed (pan, zoom or resize).
	EventMove EventType = iota
	EventClick
)

type Event struct {
	Type  EventType
	View  geo.Viewport
	Pixel geo.Point
}

// MapView is the host map a layer attaches to: the current viewport and the
// subscribers to its events. Handlers run on the goroutine that triggers
// the event.
type MapView struct {
	mu       sync.Mutex
	view     geo.Viewport
	nextID   int
	handlers map[int]func(Event)
}

func NewMapView(view geo.Viewport) *MapView {
	return &MapView{view: view, handlers: make(map[int]func(Event))}
}

func (m *MapView) Viewport() geo.Viewport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view
}

// SetViewport updates the viewport and emits EventMove.
func (m *MapView) SetViewport(view geo.Viewport) {
	m.mu.Lock()
	m.view = view
	m.mu.Unlock()
	m.emit(Event{Type: EventMove, View: view})
}

// Click emits EventClick at a viewport pixel.
func (m *MapView) Click(px geo.Point) {
	m.emit(Event{Type: EventClick, View: m.Viewport(), Pixel: px})
}

// On subscribes fn and returns the function that removes it.
func (m *MapView) On(fn func(Event)) (off func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.handlers[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.handlers, id)
			m.mu.Unlock()
		})
	}
}

// Listeners returns the number of subscribed handlers.
func (m *MapView) Listeners() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers)
}

func (m *MapView) emit(ev Event) {
	m.mu.Lock()
	ids := make([]int, 0, len(m.handlers))
	for id := range m.handlers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(Event), len(ids))
	for i, id := range ids {
		fns[i] = m.handlers[id]
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Layer binds a Renderer to a MapView. The renderer exists only while the
// layer is attached.
type Layer struct {
	surface Surface
	onClick func(domain.AircraftPoint)

	renderer *Renderer
	view     *MapView
	off      func()

	points  []domain.AircraftPoint
	version uint64

	// The grid is rebuilt only when count or version change.
	builtCount   int
	builtVersion uint64

	frame   Frame
	lastErr error
}

// NewLayer creates a detached layer. onClick, if set, receives hit points.
func NewLayer(surface Surface, onClick func(domain.AircraftPoint)) *Layer {
	return &Layer{surface: surface, onClick: onClick}
}

// Attach acquires the renderer, subscribes to view events and draws the
// first frame. Attaching an attached layer is a no-op.
func (l *Layer) Attach(view *MapView) error {
	if l.renderer != nil {
		return nil
	}
	r, err := New(l.surface)
	if err != nil {
		return err
	}
	l.renderer = r
	l.view = view
	l.rebuild()
	l.off = view.On(l.handle)
	l.redraw(view.Viewport())
	if err := l.lastErr; err != nil {
		l.Detach()
		return err
	}
	return nil
}

// Detach drops the event subscription and disposes the renderer.
func (l *Layer) Detach() {
	if l.renderer == nil {
		return
	}
	if l.off != nil {
		l.off()
		l.off = nil
	}
	l.renderer.Dispose()
	l.renderer = nil
	l.view = nil
	l.frame = Frame{}
}

func (l *Layer) Attached() bool {
	return l.renderer != nil
}

// SetPoints hands a new point set to the layer. version identifies the
// snapshot the points come from.
func (l *Layer) SetPoints(points []domain.AircraftPoint, version uint64) {
	l.points = points
	l.version = version
	if l.renderer == nil {
		return
	}
	if l.rebuild() {
		l.redraw(l.view.Viewport())
	}
}

func (l *Layer) rebuild() bool {
	if l.renderer.points != nil && len(l.points) == l.builtCount && l.version == l.builtVersion {
		return false
	}
	l.renderer.SetPoints(l.points)
	l.builtCount = len(l.points)
	l.builtVersion = l.version
	return true
}

func (l *Layer) handle(ev Event) {
	if l.renderer == nil {
		return
	}
	switch ev.Type {
	case EventMove:
		l.redraw(ev.View)
	case EventClick:
		p, ok := l.renderer.HitTest(ev.View, ev.Pixel)
		if ok && l.onClick != nil {
			l.onClick(p)
		}
	}
}

func (l *Layer) redraw(view geo.Viewport) {
	frame, err := l.renderer.Render(view)
	l.lastErr = err
	if err == nil {
		l.frame = frame
	}
}

// Frame returns the last rendered frame.
func (l *Layer) Frame() Frame {
	return l.frame
}

// Err returns the error of the last draw, if any.
func (l *Layer) Err() error {
	return l.lastErr
}

func (l *Layer) Stats() Stats {
	if l.renderer == nil {
		return Stats{CurrentLOD: 1}
	}
	return l.renderer.Stats()
}

// Snapshot returns a copy of the canvas when the surface keeps one.
func (l *Layer) Snapshot() (*image.RGBA, bool) {
	if l.renderer == nil {
		return nil, false
	}
	return l.renderer.Snapshot()
}
