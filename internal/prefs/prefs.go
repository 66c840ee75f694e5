// Package prefs persists user settings, saved locations and the active location.
package prefs

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/kjstillabower/skycast/internal/kvstore"
	"github.com/kjstillabower/skycast/internal/models"
	"github.com/kjstillabower/skycast/internal/observability"
)

// Storage keys.
const (
	KeySettings       = "settings"
	KeySavedLocations = "saved_locations"
	KeyActiveLocation = "active_location"
)

// MaxSaved caps the saved locations list.
const MaxSaved = 12

// WithSaved returns list with loc moved or added to the front, de-duplicated by ID and capped
// at MaxSaved. list is not modified.
func WithSaved(list []models.Location, loc models.Location) []models.Location {
	out := make([]models.Location, 0, len(list)+1)
	out = append(out, loc)
	for _, l := range list {
		if l.ID != loc.ID {
			out = append(out, l)
		}
	}
	if len(out) > MaxSaved {
		out = out[:MaxSaved]
	}
	return out
}

// WithoutSaved returns list minus the location with id.
func WithoutSaved(list []models.Location, id string) []models.Location {
	out := make([]models.Location, 0, len(list))
	for _, l := range list {
		if l.ID != id {
			out = append(out, l)
		}
	}
	return out
}

// Prefs reads and writes preferences through the kv store. Reads fall back to defaults and
// writes are best-effort: failures are logged and the caller carries on.
type Prefs struct {
	mu     sync.Mutex
	store  kvstore.Store
	logger *zap.Logger
}

// New creates Prefs backed by store.
func New(store kvstore.Store, logger *zap.Logger) *Prefs {
	return &Prefs{store: store, logger: observability.OrNop(logger)}
}

func (p *Prefs) read(ctx context.Context, key string, v any) bool {
	ok, err := kvstore.GetJSON(ctx, p.store, key, v)
	if err != nil {
		p.logger.Warn("preference unreadable, using default", zap.String("key", key), zap.Error(err))
		return false
	}
	return ok
}

func (p *Prefs) write(ctx context.Context, key string, v any) {
	if err := kvstore.SetJSON(ctx, p.store, key, v); err != nil {
		p.logger.Warn("preference write failed", zap.String("key", key), zap.Error(err))
	}
}

// Settings returns the stored settings, normalised, or the defaults.
func (p *Prefs) Settings(ctx context.Context) models.Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := models.DefaultSettings()
	if !p.read(ctx, KeySettings, &s) {
		return models.DefaultSettings()
	}
	return s.Normalize()
}

// UpdateSettings applies fn to the current settings and stores the result.
func (p *Prefs) UpdateSettings(ctx context.Context, fn func(models.Settings) models.Settings) models.Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	cur := models.DefaultSettings()
	if !p.read(ctx, KeySettings, &cur) {
		cur = models.DefaultSettings()
	}
	cur = cur.Normalize()
	next := fn(cur).Normalize()
	p.write(ctx, KeySettings, next)
	return next
}

// Saved returns the saved locations, most recent first.
func (p *Prefs) Saved(ctx context.Context) []models.Location {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.savedLocked(ctx)
}

func (p *Prefs) savedLocked(ctx context.Context) []models.Location {
	var list []models.Location
	if !p.read(ctx, KeySavedLocations, &list) {
		return []models.Location{}
	}
	if list == nil {
		return []models.Location{}
	}
	return list
}

// AddSaved saves loc at the front of the list and returns the new list.
func (p *Prefs) AddSaved(ctx context.Context, loc models.Location) []models.Location {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := WithSaved(p.savedLocked(ctx), loc)
	p.write(ctx, KeySavedLocations, next)
	return next
}

// RemoveSaved deletes the saved location with id and returns the new list.
func (p *Prefs) RemoveSaved(ctx context.Context, id string) []models.Location {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := WithoutSaved(p.savedLocked(ctx), id)
	p.write(ctx, KeySavedLocations, next)
	return next
}

// Active returns the active location, if one is set.
func (p *Prefs) Active(ctx context.Context) (models.Location, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var loc models.Location
	if !p.read(ctx, KeyActiveLocation, &loc) || loc.ID == "" {
		return models.Location{}, false
	}
	return loc, true
}

// SetActive makes loc the active location.
func (p *Prefs) SetActive(ctx context.Context, loc models.Location) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.write(ctx, KeyActiveLocation, loc)
}

// ClearActive unsets the active location.
func (p *Prefs) ClearActive(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.write(ctx, KeyActiveLocation, nil)
}
