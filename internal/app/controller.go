// Package app is the application controller. It reacts to user actions and lifecycle events by
// coordinating preferences, the freshness cache, the weather client and alert notifications.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kjstillabower/skycast/internal/freshness"
	"github.com/kjstillabower/skycast/internal/geo"
	"github.com/kjstillabower/skycast/internal/models"
	"github.com/kjstillabower/skycast/internal/notify"
	"github.com/kjstillabower/skycast/internal/observability"
	"github.com/kjstillabower/skycast/internal/prefs"
	"github.com/kjstillabower/skycast/internal/search"
	"github.com/kjstillabower/skycast/internal/validation"
)

// CurrentLocationName names a geolocated position that reverse geocoding could not resolve.
const CurrentLocationName = "Current location"

// ThemeApplier renders the theme.
type ThemeApplier interface {
	ApplyTheme(models.Theme)
}

// WeatherClient is the provider surface the controller uses.
type WeatherClient interface {
	FetchWeather(ctx context.Context, lat, lon float64, units models.UnitSystem, timezone string) (models.WeatherBundle, error)
	FetchAlerts(ctx context.Context, lat, lon float64, timezone string) ([]models.AlertItem, error)
	ReverseGeocode(ctx context.Context, lat, lon float64) (models.Location, bool, error)
	search.Searcher
}

// Dispatcher delivers alert notifications.
type Dispatcher interface {
	Dispatch(ctx context.Context, enabled bool, p notify.Payload) notify.Channel
}

// Deps are the controller's collaborators. Theme, Notifier and Locator may be nil.
type Deps struct {
	Theme      ThemeApplier
	Prefs      *prefs.Prefs
	Cache      *freshness.Cache
	Client     WeatherClient
	Dispatcher Dispatcher
	Notifier   notify.Notifier
	Locator    geo.Locator
	// GeoTimeout bounds geolocation. Zero means geo.DefaultTimeout.
	GeoTimeout time.Duration
	Search     search.Options
	// OnChange is called after asynchronous state changes (search results). It must not call
	// Search. Optional.
	OnChange func()
	Logger   *zap.Logger
}

// View is a render-ready snapshot of the app state.
type View struct {
	Settings    models.Settings
	Active      models.Location
	HasActive   bool
	ActiveSaved bool
	Saved       []models.Location
	Bundle      models.WeatherBundle
	HasBundle   bool
	Fresh       bool
	Loading     bool
	Banner      string
	Query       string
	Results     []models.Location
}

// Controller owns the app's in-memory UI state. Persistent state lives in prefs and the
// freshness cache.
type Controller struct {
	deps     Deps
	logger   *zap.Logger
	debounce *search.Debouncer

	mu      sync.Mutex
	loading int
	banner  string
	query   string
	results []models.Location
}

// New creates a Controller.
func New(deps Deps) *Controller {
	c := &Controller{
		deps:    deps,
		logger:  observability.OrNop(deps.Logger),
		results: []models.Location{},
	}
	c.debounce = search.New(deps.Client, deps.Search, c.onSearchResult, c.logger)
	return c
}

// Close cancels any pending search.
func (c *Controller) Close() {
	c.debounce.Stop()
}

func (c *Controller) changed() {
	if c.deps.OnChange != nil {
		c.deps.OnChange()
	}
}

// Init applies the stored theme, resolves a first location from geolocation when none is
// active, then refreshes. Denied or timed-out geolocation leaves the app without a location.
func (c *Controller) Init(ctx context.Context) error {
	settings := c.deps.Prefs.Settings(ctx)
	c.applyTheme(settings.Theme)

	if _, ok := c.deps.Prefs.Active(ctx); !ok {
		if loc, ok := c.locate(ctx); ok {
			c.deps.Prefs.SetActive(ctx, loc)
		}
	}
	return c.Refresh(ctx)
}

func (c *Controller) applyTheme(t models.Theme) {
	if c.deps.Theme != nil {
		c.deps.Theme.ApplyTheme(t)
	}
}

func (c *Controller) locate(ctx context.Context) (models.Location, bool) {
	pos, err := geo.Acquire(ctx, c.deps.Locator, c.deps.GeoTimeout)
	if err != nil {
		c.logger.Info("no current location", zap.Error(err))
		return models.Location{}, false
	}
	loc, ok, err := c.deps.Client.ReverseGeocode(ctx, pos.Latitude, pos.Longitude)
	if err != nil || !ok {
		if err == nil {
			err = models.ErrEmptyResult
		}
		c.logger.Info("reverse geocoding failed, using coordinates", zap.Error(err))
		return models.NewLocation(CurrentLocationName, pos.Latitude, pos.Longitude, ""), true
	}
	return loc, true
}

// Refresh updates weather and alerts for the active location concurrently. Each side fails on
// its own. The returned error is the weather outcome: nil, or an error matching
// models.ErrStaleDataOnly when the fetch failed but a cached bundle is still shown.
func (c *Controller) Refresh(ctx context.Context) error {
	return c.refresh(ctx, true, true)
}

func (c *Controller) refresh(ctx context.Context, weather, alerts bool) error {
	active, ok := c.deps.Prefs.Active(ctx)
	if !ok {
		return nil
	}
	settings := c.deps.Prefs.Settings(ctx)

	id := uuid.NewString()
	logger := c.logger.With(zap.String("correlation_id", id), zap.String("location_id", active.ID))
	ctx = observability.WithLogger(observability.WithCorrelationID(ctx, id), logger)

	var (
		wg         sync.WaitGroup
		weatherErr error
	)
	if weather {
		wg.Add(1)
		go func() {
			defer wg.Done()
			weatherErr = c.refreshWeather(ctx, active, settings.Units)
		}()
	}
	if alerts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.refreshAlerts(ctx, active, settings.NotificationsEnabled)
		}()
	}
	wg.Wait()
	return weatherErr
}

func (c *Controller) refreshWeather(ctx context.Context, loc models.Location, units models.UnitSystem) error {
	logger := observability.LoggerFromContext(ctx, c.logger)
	_, status := c.deps.Cache.Lookup(ctx, loc.ID, units)
	if status == freshness.Fresh {
		return nil
	}

	c.setLoading(true)
	defer c.setLoading(false)

	bundle, err := c.deps.Client.FetchWeather(ctx, loc.Latitude, loc.Longitude, units, "auto")
	if err != nil {
		if status == freshness.Stale {
			observability.StaleDataServesTotal.Inc()
			err = fmt.Errorf("%w: %w", models.ErrStaleDataOnly, err)
		}
		logger.Warn("weather refresh failed", zap.Error(err))
		return err
	}
	c.deps.Cache.Put(ctx, loc.ID, units, bundle)
	return nil
}

func (c *Controller) setLoading(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if on {
		c.loading++
	} else {
		c.loading--
	}
}

// refreshAlerts shows the first alert in the banner and dispatches it. No alerts clears the
// banner; a failure leaves it untouched.
func (c *Controller) refreshAlerts(ctx context.Context, loc models.Location, notificationsEnabled bool) {
	logger := observability.LoggerFromContext(ctx, c.logger)
	items, err := c.deps.Client.FetchAlerts(ctx, loc.Latitude, loc.Longitude, "auto")
	if err != nil {
		logger.Debug("alerts unavailable", zap.Error(err))
		return
	}
	if len(items) == 0 {
		c.setBanner("")
		return
	}

	first := items[0]
	body := AlertBody(first)
	c.setBanner(body)
	ch := c.deps.Dispatcher.Dispatch(ctx, notificationsEnabled, notify.Payload{
		Title: "Weather alert: " + first.Event,
		Body:  body,
	})
	logger.Info("weather alert", zap.String("event", first.Event), zap.String("channel", string(ch)))
}

// AlertBody is the alert's headline, or "<severity> <event>" when it has none.
func AlertBody(a models.AlertItem) string {
	if a.Headline != "" {
		return a.Headline
	}
	return strings.TrimSpace(a.Severity + " " + a.Event)
}

func (c *Controller) setBanner(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.banner = s
}

// SelectLocation makes loc active and refreshes.
func (c *Controller) SelectLocation(ctx context.Context, loc models.Location) error {
	c.deps.Prefs.SetActive(ctx, loc)
	return c.Refresh(ctx)
}

// SelectSaved activates the saved location with id. Unknown ids are ignored.
func (c *Controller) SelectSaved(ctx context.Context, id string) (bool, error) {
	for _, l := range c.deps.Prefs.Saved(ctx) {
		if l.ID == id {
			return true, c.SelectLocation(ctx, l)
		}
	}
	return false, nil
}

// SaveActive adds the active location to the front of the saved list. Already saved or no
// active location is a no-op.
func (c *Controller) SaveActive(ctx context.Context) bool {
	active, ok := c.deps.Prefs.Active(ctx)
	if !ok {
		return false
	}
	for _, l := range c.deps.Prefs.Saved(ctx) {
		if l.ID == active.ID {
			return false
		}
	}
	c.deps.Prefs.AddSaved(ctx, active)
	return true
}

// RemoveSaved deletes a saved location. Removing the active one also clears the active location.
func (c *Controller) RemoveSaved(ctx context.Context, id string) {
	c.deps.Prefs.RemoveSaved(ctx, id)
	if active, ok := c.deps.Prefs.Active(ctx); ok && active.ID == id {
		c.deps.Prefs.ClearActive(ctx)
	}
}

// SetUnits switches the unit system and refreshes weather for it.
func (c *Controller) SetUnits(ctx context.Context, units models.UnitSystem) error {
	c.deps.Prefs.UpdateSettings(ctx, func(s models.Settings) models.Settings {
		s.Units = units
		return s
	})
	return c.refresh(ctx, true, false)
}

// SetView switches between the hourly and daily lists.
func (c *Controller) SetView(ctx context.Context, view models.View) {
	c.deps.Prefs.UpdateSettings(ctx, func(s models.Settings) models.Settings {
		s.View = view
		return s
	})
}

// ToggleTheme flips light/dark, applies and stores it.
func (c *Controller) ToggleTheme(ctx context.Context) models.Theme {
	s := c.deps.Prefs.UpdateSettings(ctx, func(s models.Settings) models.Settings {
		s.Theme = s.Theme.Toggle()
		return s
	})
	c.applyTheme(s.Theme)
	return s.Theme
}

// EnableNotifications turns alert notifications on or off. Turning them on asks for permission
// and succeeds only if it is granted; otherwise they stay off and the error matches
// models.ErrPermissionDenied.
func (c *Controller) EnableNotifications(ctx context.Context, enable bool) (bool, error) {
	granted := false
	var err error
	if enable {
		granted, err = c.requestPermission(ctx)
	}
	c.deps.Prefs.UpdateSettings(ctx, func(s models.Settings) models.Settings {
		s.NotificationsEnabled = granted
		return s
	})
	return granted, err
}

func (c *Controller) requestPermission(ctx context.Context) (bool, error) {
	if c.deps.Notifier == nil {
		return false, fmt.Errorf("notifications unavailable: %w", models.ErrPermissionDenied)
	}
	perm, err := c.deps.Notifier.RequestPermission(ctx)
	if err != nil {
		return false, errors.Join(models.ErrPermissionDenied, err)
	}
	if perm != notify.PermissionGranted {
		return false, fmt.Errorf("notification permission %s: %w", perm, models.ErrPermissionDenied)
	}
	return true, nil
}

// Search feeds the debounced place search. Results arrive asynchronously and are visible in
// Snapshot; OnChange fires when they do. A query that fails validation clears the results.
func (c *Controller) Search(query string) {
	q, err := validation.ValidateQuery(query, 0)
	if err != nil {
		c.logger.Debug("search query rejected", zap.Error(err))
		q = ""
	}
	c.mu.Lock()
	c.query = q
	c.mu.Unlock()
	c.debounce.Input(q)
}

func (c *Controller) onSearchResult(r search.Result) {
	c.mu.Lock()
	if r.Query == c.query {
		c.results = r.Places
	}
	c.mu.Unlock()
	c.changed()
}

// Snapshot returns the current state for rendering.
func (c *Controller) Snapshot(ctx context.Context) View {
	v := View{
		Settings: c.deps.Prefs.Settings(ctx),
		Saved:    c.deps.Prefs.Saved(ctx),
	}
	v.Active, v.HasActive = c.deps.Prefs.Active(ctx)
	if v.HasActive {
		for _, l := range v.Saved {
			if l.ID == v.Active.ID {
				v.ActiveSaved = true
			}
		}
		v.Bundle, v.HasBundle = c.deps.Cache.Get(ctx, v.Active.ID, v.Settings.Units)
		v.Fresh = v.HasBundle && c.deps.Cache.IsFresh(v.Bundle.UpdatedAt)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	v.Loading = c.loading > 0
	v.Banner = c.banner
	v.Query = c.query
	v.Results = append([]models.Location(nil), c.results...)
	return v
}
