// Package freshness is the application-level weather cache. It maps (location, unit system)
// to the last fetched bundle and decides whether that bundle is recent enough to show without
// a refetch. It does no network I/O of its own.
package freshness

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/skycast/internal/kvstore"
	"github.com/kjstillabower/skycast/internal/models"
	"github.com/kjstillabower/skycast/internal/observability"
)

// StorageKey is the kv key holding the whole cache as one JSON object.
const StorageKey = "weather_cache_v1"

// DefaultMaxAge is how long a bundle counts as fresh.
const DefaultMaxAge = 10 * time.Minute

// Status is the outcome of a Lookup.
type Status int

const (
	Miss Status = iota
	Stale
	Fresh
)

func (s Status) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "miss"
	}
}

// Key composes the cache key for a location and unit system.
func Key(locationID string, units models.UnitSystem) string {
	return locationID + "|" + string(units)
}

// Options tunes a Cache. Zero values use defaults.
type Options struct {
	MaxAge time.Duration
	Now    func() time.Time
}

// Cache reads and writes through the kv store so every read sees the last write, including
// writes made by another process sharing the profile. The in-memory mirror answers when the
// store is unavailable, and keeps keys whose write has not reached the store yet.
type Cache struct {
	mu     sync.Mutex
	store  kvstore.Store
	mirror map[string]models.WeatherBundle
	// unsaved holds keys written in this process that the store has not accepted.
	unsaved map[string]struct{}
	maxAge  time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// New creates a Cache backed by store.
func New(store kvstore.Store, opts Options, logger *zap.Logger) *Cache {
	c := &Cache{
		store:   store,
		mirror:  make(map[string]models.WeatherBundle),
		unsaved: make(map[string]struct{}),
		maxAge:  opts.MaxAge,
		now:     opts.Now,
		logger:  observability.OrNop(logger),
	}
	if c.maxAge <= 0 {
		c.maxAge = DefaultMaxAge
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// load returns the persisted map overlaid with unsaved local writes, or the mirror if the
// store cannot be read. Callers hold c.mu.
func (c *Cache) load(ctx context.Context) map[string]models.WeatherBundle {
	entries := make(map[string]models.WeatherBundle)
	ok, err := kvstore.GetJSON(ctx, c.store, StorageKey, &entries)
	if err != nil {
		c.logger.Warn("weather cache unreadable, using in-memory copy", zap.Error(err))
		return c.mirror
	}
	if !ok {
		return c.mirror
	}
	for k := range c.unsaved {
		if b, ok := c.mirror[k]; ok {
			entries[k] = b
		}
	}
	c.mirror = entries
	return entries
}

// Get returns the cached bundle for the key, fresh or not.
func (c *Cache) Get(ctx context.Context, locationID string, units models.UnitSystem) (models.WeatherBundle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.load(ctx)[Key(locationID, units)]
	return b, ok
}

// Put overwrites the bundle for the key and persists the whole cache. A failed write is
// logged; the bundle stays available in memory and wins over the store until a later Put
// persists it.
func (c *Cache) Put(ctx context.Context, locationID string, units models.UnitSystem, bundle models.WeatherBundle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := Key(locationID, units)
	entries := c.load(ctx)
	next := make(map[string]models.WeatherBundle, len(entries)+1)
	for k, v := range entries {
		next[k] = v
	}
	next[key] = bundle
	c.mirror = next
	if err := kvstore.SetJSON(ctx, c.store, StorageKey, next); err != nil {
		c.unsaved[key] = struct{}{}
		c.logger.Warn("weather cache write failed", zap.String("location_id", locationID), zap.Error(err))
		return
	}
	clear(c.unsaved)
}

// IsFresh reports whether updatedAt is less than MaxAge old. A zero time is never fresh.
func (c *Cache) IsFresh(updatedAt time.Time) bool {
	if updatedAt.IsZero() {
		return false
	}
	return c.now().Sub(updatedAt) < c.maxAge
}

// Lookup combines Get and IsFresh and records the outcome.
func (c *Cache) Lookup(ctx context.Context, locationID string, units models.UnitSystem) (models.WeatherBundle, Status) {
	b, ok := c.Get(ctx, locationID, units)
	status := Miss
	switch {
	case ok && c.IsFresh(b.UpdatedAt):
		status = Fresh
	case ok:
		status = Stale
	}
	observability.FreshnessLookupsTotal.WithLabelValues(status.String()).Inc()
	return b, status
}
