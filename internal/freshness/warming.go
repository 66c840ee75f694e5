package freshness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/skycast/internal/models"
	"github.com/kjstillabower/skycast/internal/observability"
)

// WeatherFetcher is implemented by the weather client.
type WeatherFetcher interface {
	FetchWeather(ctx context.Context, lat, lon float64, units models.UnitSystem, timezone string) (models.WeatherBundle, error)
}

// Warmer prefetches bundles for saved locations so switching between them is instant.
type Warmer struct {
	cache   *Cache
	fetcher WeatherFetcher
	logger  *zap.Logger
}

// NewWarmer creates a Warmer that fills cache using fetcher.
func NewWarmer(cache *Cache, fetcher WeatherFetcher, logger *zap.Logger) *Warmer {
	return &Warmer{cache: cache, fetcher: fetcher, logger: observability.OrNop(logger)}
}

// Warm fetches, concurrently, every location whose bundle is missing or stale and stores the
// results. Fresh entries are skipped. Returns the aggregated per-location errors, if any.
func (w *Warmer) Warm(ctx context.Context, locations []models.Location, units models.UnitSystem) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()

	var (
		wg      sync.WaitGroup
		skipped int
	)
	errCh := make(chan error, len(locations))
	for _, loc := range locations {
		if _, status := w.cache.Lookup(ctx, loc.ID, units); status == Fresh {
			skipped++
			continue
		}
		loc := loc
		wg.Add(1)
		go func() {
			defer wg.Done()
			bundle, err := w.fetcher.FetchWeather(ctx, loc.Latitude, loc.Longitude, units, "auto")
			if err != nil {
				errCh <- fmt.Errorf("warm %s: %w", loc.ID, err)
				return
			}
			w.cache.Put(ctx, loc.ID, units, bundle)
		}()
	}
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	w.logger.Info("cache warming complete",
		zap.Int("locations", len(locations)),
		zap.Int("skipped_fresh", skipped),
		zap.Int("errors", len(errs)),
		zap.Float64("duration_seconds", duration))
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}
