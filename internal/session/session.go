// Package session holds the per-viewer display state: filters, viewport,
// settings and the current snapshot, and derives the marker selection or
// the point-rendered frame from them.
//
// A Session is owned by one goroutine. Nothing in it is synchronized.
package session

import (
	"errors"
	"fmt"
	"image"
	"log/slog"

	"flightmap/internal/display"
	"flightmap/internal/domain"
	"flightmap/internal/flights"
	"flightmap/internal/geo"
	"flightmap/internal/render"
	"flightmap/internal/store"
)

var (
	ErrLODUnsupported  = errors.New("point rendering is not supported")
	ErrInvalidViewport = errors.New("invalid viewport")
	ErrNoData          = errors.New("flight data not loaded")
)

type Settings struct {
	MarkerLimit     int  `json:"markerLimit"`
	ViewportCulling bool `json:"viewportCulling"`
	LOD             bool `json:"lod"`
}

// Deps are the collaborators shared by all sessions. A nil Surface means
// point rendering is unavailable.
type Deps struct {
	Classifier     *flights.Classifier
	Filters        *FilterCache
	Surface        render.Surface
	DefaultLimit   int
	MaxMarkerLimit int
}

// DefaultSettings are the settings of a new session.
func (d Deps) DefaultSettings() Settings {
	return Settings{MarkerLimit: d.DefaultLimit, ViewportCulling: true}
}

type Session struct {
	ID string

	deps     Deps
	selector *display.Selector
	logger   *slog.Logger

	criteria domain.FilterCriteria
	settings Settings
	viewport *geo.Viewport
	snap     *store.Snapshot

	dirty     bool
	current   *Filtered
	selection []domain.AircraftPoint

	view  *render.MapView
	layer *render.Layer
	hit   *domain.AircraftPoint
}

func New(id string, deps Deps, logger *slog.Logger) *Session {
	return &Session{
		ID:       id,
		deps:     deps,
		selector: display.NewSelector(deps.Classifier),
		logger:   logger.With("component", "session", "session_id", id),
		criteria: domain.DefaultFilters(),
		settings: deps.DefaultSettings(),
		dirty:    true,
	}
}

func (s *Session) Filters() domain.FilterCriteria {
	return s.criteria
}

func (s *Session) SetFilters(criteria domain.FilterCriteria) {
	if criteria == s.criteria {
		return
	}
	s.criteria = criteria
	s.dirty = true
}

func (s *Session) Viewport() (geo.Viewport, bool) {
	if s.viewport == nil {
		return geo.Viewport{}, false
	}
	return *s.viewport, true
}

// SetViewport moves the session's map. An attached point layer redraws
// immediately.
func (s *Session) SetViewport(v geo.Viewport) error {
	if !v.Valid() {
		return fmt.Errorf("%w: center %v zoom %v size %dx%d", ErrInvalidViewport, v.Center, v.Zoom, v.Width, v.Height)
	}
	s.viewport = &v
	s.dirty = true

	if s.view == nil {
		s.view = render.NewMapView(v)
		return nil
	}
	s.view.SetViewport(v)
	return nil
}

func (s *Session) Settings() Settings {
	return s.settings
}

// SetSettings applies new settings. The marker limit is clamped to
// [0, MaxMarkerLimit]. Turning on point rendering where it is unsupported
// returns ErrLODUnsupported and leaves the session on markers; the other
// settings still apply.
func (s *Session) SetSettings(next Settings) error {
	if next.MarkerLimit < 0 {
		next.MarkerLimit = 0
	}
	if s.deps.MaxMarkerLimit > 0 && next.MarkerLimit > s.deps.MaxMarkerLimit {
		next.MarkerLimit = s.deps.MaxMarkerLimit
	}

	var err error
	if next.LOD && !s.settings.LOD && !render.Supported(s.deps.Surface) {
		next.LOD = false
		err = ErrLODUnsupported
	}

	if next != s.settings {
		s.settings = next
		s.dirty = true
	}
	if err != nil {
		return err
	}

	return s.update()
}

// Refresh replaces the snapshot the session derives from.
func (s *Session) Refresh(snap *store.Snapshot) {
	if snap == s.snap {
		return
	}
	s.snap = snap
	s.dirty = true
}

func (s *Session) Snapshot() *store.Snapshot {
	return s.snap
}

// Selection returns the markers to draw. It is empty in LOD mode.
func (s *Session) Selection() []domain.AircraftPoint {
	s.update()
	return s.selection
}

// FilteredCount returns how many flights pass the filters.
func (s *Session) FilteredCount() int {
	s.update()
	if s.current == nil {
		return 0
	}
	return len(s.current.Points)
}

// Frame returns the last point-rendered frame. ok is false outside LOD
// mode or before the first viewport.
func (s *Session) Frame() (frame render.Frame, ok bool) {
	s.update()
	if s.layer == nil || !s.layer.Attached() {
		return render.Frame{}, false
	}
	return s.layer.Frame(), true
}

// Image returns the rendered canvas in LOD mode.
func (s *Session) Image() (*image.RGBA, bool) {
	s.update()
	if s.layer == nil {
		return nil, false
	}
	return s.layer.Snapshot()
}

func (s *Session) RenderStats() (render.Stats, bool) {
	if s.layer == nil || !s.layer.Attached() {
		return render.Stats{}, false
	}
	return s.layer.Stats(), true
}

// Search finds a flight in the whole snapshot, filters notwithstanding,
// resolves its route and puts it into the marker selection. On any error
// the selection is left as it was; a found flight whose route cannot be
// drawn is still returned.
func (s *Session) Search(number string) (domain.AircraftPoint, domain.Route, error) {
	if s.snap == nil {
		return domain.AircraftPoint{}, domain.Route{}, ErrNoData
	}
	s.update()

	p, route, err := s.deps.Classifier.Search(s.snap.Points, number)
	if errors.Is(err, flights.ErrFlightNotFound) {
		return domain.AircraftPoint{}, domain.Route{}, err
	}
	if err != nil {
		return p, domain.Route{}, err
	}
	if !s.settings.LOD {
		s.selection = display.EnsureVisible(s.selection, p, s.settings.MarkerLimit)
	}
	return p, route, nil
}

// Click hit-tests a viewport pixel against the rendered points.
func (s *Session) Click(px geo.Point) (domain.AircraftPoint, bool) {
	s.update()
	if s.view == nil || s.layer == nil || !s.layer.Attached() {
		return domain.AircraftPoint{}, false
	}

	s.hit = nil
	s.view.Click(px)
	if s.hit == nil {
		return domain.AircraftPoint{}, false
	}
	return *s.hit, true
}

// Close releases the point layer.
func (s *Session) Close() {
	if s.layer != nil {
		s.layer.Detach()
		s.layer = nil
	}
}

func (s *Session) onHit(p domain.AircraftPoint) {
	s.hit = &p
}

// update recomputes what changed since the last call. The returned error
// comes from attaching the point layer only; the marker path cannot fail.
func (s *Session) update() error {
	if !s.dirty {
		return nil
	}
	s.dirty = false

	if s.snap == nil {
		s.current = nil
		s.selection = nil
	} else {
		s.current = s.deps.Filters.Get(s.snap, s.criteria)
		s.selection = s.selector.Select(s.current.Points, s.current.Index, display.Options{
			MarkerLimit:     s.settings.MarkerLimit,
			ViewportCulling: s.settings.ViewportCulling,
			LOD:             s.settings.LOD,
			Viewport:        s.bounds(),
			Filters:         s.criteria,
		})
	}

	return s.syncLayer()
}

func (s *Session) bounds() *domain.BoundingBox {
	if s.viewport == nil {
		return nil
	}
	bb := s.viewport.Bounds()
	return &bb
}

func (s *Session) syncLayer() error {
	if !s.settings.LOD {
		s.Close()
		return nil
	}

	if s.layer == nil {
		s.layer = render.NewLayer(s.deps.Surface, s.onHit)
	}
	if s.current != nil {
		s.layer.SetPoints(s.current.Points, s.current.Generation)
	} else {
		s.layer.SetPoints(nil, 0)
	}
	if s.view == nil || s.layer.Attached() {
		return nil
	}

	if err := s.layer.Attach(s.view); err != nil {
		s.logger.Warn("point rendering unavailable, falling back to markers", "error", err)
		s.layer = nil
		s.settings.LOD = false
		s.dirty = true
		s.update()
		return fmt.Errorf("%w: %w", ErrLODUnsupported, err)
	}
	return nil
}
