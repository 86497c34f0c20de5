package ingestor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"flightmap/internal/store"
	"flightmap/pkg/geojson"
)

// loadTimeout bounds one shared fetch.
const loadTimeout = 2 * time.Minute

type Source interface {
	Location() string
	Load(ctx context.Context) (*geojson.Collection, error)
}

// Notifier is told about every installed snapshot.
type Notifier interface {
	SnapshotReplaced(snap *store.Snapshot)
}

// Loader owns the point-set cache. A successful load installs the points in
// the store and notifies; a failed one leaves the previous snapshot in place.
type Loader struct {
	source   Source
	store    *store.Store
	notifier Notifier
	refresh  time.Duration
	logger   *slog.Logger

	group   singleflight.Group
	loading atomic.Bool

	mu     sync.RWMutex
	cached *store.Snapshot
	hooks  []func(context.Context, *store.Snapshot)

	ready   bool
	readyMu sync.RWMutex
}

// New creates a loader. A refresh of zero disables periodic reloads.
func New(source Source, st *store.Store, notifier Notifier, refresh time.Duration, logger *slog.Logger) *Loader {
	return &Loader{
		source:   source,
		store:    st,
		notifier: notifier,
		refresh:  refresh,
		logger:   logger.With("component", "loader"),
	}
}

// OnLoad registers fn to run after each installed snapshot.
func (l *Loader) OnLoad(fn func(context.Context, *store.Snapshot)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hooks = append(l.hooks, fn)
}

// Load returns the cached snapshot, fetching it when the cache is empty.
// Concurrent callers share a single fetch. A caller whose ctx ends stops
// waiting; the fetch itself runs on, bounded by loadTimeout.
func (l *Loader) Load(ctx context.Context) (*store.Snapshot, error) {
	if snap := l.Cached(); snap != nil {
		return snap, nil
	}

	ch := l.group.DoChan("load", func() (any, error) {
		if snap := l.Cached(); snap != nil {
			return snap, nil
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		return l.fetch(fetchCtx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			l.logger.Debug("joined in-flight load")
		}
		return res.Val.(*store.Snapshot), nil
	}
}

// Reload drops the cache and loads again.
func (l *Loader) Reload(ctx context.Context) (*store.Snapshot, error) {
	l.Invalidate()
	return l.Load(ctx)
}

// Invalidate clears the cache. The store keeps serving the current
// snapshot until the next load replaces it.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	l.cached = nil
	l.mu.Unlock()
}

func (l *Loader) Cached() *store.Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cached
}

func (l *Loader) Loading() bool {
	return l.loading.Load()
}

func (l *Loader) fetch(ctx context.Context) (*store.Snapshot, error) {
	l.loading.Store(true)
	defer l.loading.Store(false)

	start := time.Now()
	c, err := l.source.Load(ctx)
	if err != nil {
		l.logger.Error("failed to load flight data", "source", l.source.Location(), "error", err)
		return nil, err
	}

	snap := l.store.Replace(c.Points, l.source.Location())

	l.mu.Lock()
	l.cached = snap
	hooks := append([]func(context.Context, *store.Snapshot){}, l.hooks...)
	l.mu.Unlock()

	if l.notifier != nil {
		l.notifier.SnapshotReplaced(snap)
	}
	for _, fn := range hooks {
		fn(ctx, snap)
	}

	if !l.IsReady() {
		l.setReady(true)
		l.logger.Info("loader ready", "points", len(snap.Points))
	}

	l.logger.Info("snapshot installed",
		"version", snap.Version,
		"points", len(snap.Points),
		"skipped", c.Skipped,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return snap, nil
}

// Run loads once, then reloads every refresh interval until ctx is done.
func (l *Loader) Run(ctx context.Context) {
	l.Load(ctx)

	if l.refresh <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(l.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Reload(ctx)
		}
	}
}

func (l *Loader) IsReady() bool {
	l.readyMu.RLock()
	defer l.readyMu.RUnlock()
	return l.ready
}

func (l *Loader) setReady(ready bool) {
	l.readyMu.Lock()
	defer l.readyMu.Unlock()
	l.ready = ready
}
