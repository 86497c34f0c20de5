package session

import (
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"flightmap/internal/domain"
	"flightmap/internal/flights"
	"flightmap/internal/spatial"
	"flightmap/internal/store"
)

// Filtered is one filter applied to one snapshot, with the spatial index
// over the result. It is shared between sessions and must not be modified.
type Filtered struct {
	Version  uint64
	Criteria domain.FilterCriteria
	Points   []domain.AircraftPoint
	Index    *spatial.Index

	// Generation is unique per Filtered value.
	Generation uint64
}

type filterKey struct {
	version  uint64
	criteria domain.FilterCriteria
}

type FilterCacheStats struct {
	Hits    int64 `json:"hits"`
	Builds  int64 `json:"builds"`
	Entries int   `json:"entries"`
}

// FilterCache memoizes filtering and index builds across sessions. Viewers
// on the same snapshot mostly share a handful of filter combinations.
type FilterCache struct {
	classifier *flights.Classifier
	cellSize   float64
	entries    *lru.Cache[filterKey, *Filtered]
	group      singleflight.Group

	generation atomic.Uint64
	hits       atomic.Int64
	builds     atomic.Int64
}

func NewFilterCache(classifier *flights.Classifier, cellSize float64, size int) (*FilterCache, error) {
	if size <= 0 {
		size = 32
	}
	entries, err := lru.New[filterKey, *Filtered](size)
	if err != nil {
		return nil, fmt.Errorf("creating filter cache: %w", err)
	}
	return &FilterCache{classifier: classifier, cellSize: cellSize, entries: entries}, nil
}

// Get returns the filtered set and index of snap under criteria.
func (c *FilterCache) Get(snap *store.Snapshot, criteria domain.FilterCriteria) *Filtered {
	key := filterKey{version: snap.Version, criteria: criteria}
	if f, ok := c.entries.Get(key); ok {
		c.hits.Add(1)
		return f
	}

	v, _, _ := c.group.Do(fmt.Sprintf("%d:%+v", key.version, key.criteria), func() (any, error) {
		if f, ok := c.entries.Get(key); ok {
			return f, nil
		}
		points := c.classifier.Filter(snap.Points, criteria)
		f := &Filtered{
			Version:    snap.Version,
			Criteria:   criteria,
			Points:     points,
			Index:      spatial.Build(points, c.cellSize),
			Generation: c.generation.Add(1),
		}
		c.entries.Add(key, f)
		c.builds.Add(1)
		return f, nil
	})
	return v.(*Filtered)
}

func (c *FilterCache) Stats() FilterCacheStats {
	return FilterCacheStats{
		Hits:    c.hits.Load(),
		Builds:  c.builds.Load(),
		Entries: c.entries.Len(),
	}
}
