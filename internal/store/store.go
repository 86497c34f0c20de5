package store

import (
	"strings"
	"sync"
	"time"

	"flightmap/internal/domain"
)

// Snapshot is one loaded point set. It is shared between readers and must
// not be modified.
type Snapshot struct {
	Version  uint64
	Points   []domain.AircraftPoint
	LoadedAt time.Time
	Source   string
}

type ListOptions struct {
	Airport string
	BBox    *domain.BoundingBox
}

// Store holds the current snapshot. Snapshots are only ever replaced whole.
type Store struct {
	mu        sync.RWMutex
	snapshot  *Snapshot
	byNumber  map[string]int
	byAirport map[string]map[int]struct{}
	version   uint64
}

func New() *Store {
	return &Store{
		byNumber:  make(map[string]int),
		byAirport: make(map[string]map[int]struct{}),
	}
}

// Replace installs points as the new snapshot and returns it. Seq is
// reassigned so it matches the position in the snapshot.
func (s *Store) Replace(points []domain.AircraftPoint, source string) *Snapshot {
	owned := make([]domain.AircraftPoint, len(points))
	copy(owned, points)
	for i := range owned {
		owned[i].Seq = i
	}

	byNumber := make(map[string]int, len(owned))
	byAirport := make(map[string]map[int]struct{})
	for i, p := range owned {
		if p.FlightNumber != "" {
			key := strings.ToUpper(p.FlightNumber)
			if _, exists := byNumber[key]; !exists {
				byNumber[key] = i
			}
		}
		for _, code := range []string{p.Origin, p.Destination} {
			if code == "" {
				continue
			}
			code = strings.ToUpper(code)
			if byAirport[code] == nil {
				byAirport[code] = make(map[int]struct{})
			}
			byAirport[code][i] = struct{}{}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.version++
	snap := &Snapshot{
		Version:  s.version,
		Points:   owned,
		LoadedAt: time.Now(),
		Source:   source,
	}
	s.snapshot = snap
	s.byNumber = byNumber
	s.byAirport = byAirport
	return snap
}

// Snapshot returns the current snapshot, or nil before the first load.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Get looks a flight up by number, case-insensitively. The first point
// carrying the number wins.
func (s *Store) Get(number string) (domain.AircraftPoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshot == nil {
		return domain.AircraftPoint{}, false
	}
	i, ok := s.byNumber[strings.ToUpper(strings.TrimSpace(number))]
	if !ok {
		return domain.AircraftPoint{}, false
	}
	return s.snapshot.Points[i], true
}

func (s *Store) List(opts ListOptions) []domain.AircraftPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.snapshot == nil {
		return nil
	}

	var result []domain.AircraftPoint
	keep := func(p domain.AircraftPoint) {
		if opts.BBox != nil && !opts.BBox.Contains(p.Position.Lat, p.Position.Lng) {
			return
		}
		result = append(result, p)
	}

	if opts.Airport == "" {
		for _, p := range s.snapshot.Points {
			keep(p)
		}
		return result
	}

	// Walk in snapshot order so the result is stable.
	members := s.byAirport[strings.ToUpper(opts.Airport)]
	for i, p := range s.snapshot.Points {
		if _, ok := members[i]; ok {
			keep(p)
		}
	}
	return result
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshot == nil {
		return 0
	}
	return len(s.snapshot.Points)
}
