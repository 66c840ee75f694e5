// Package geo acquires the device position for the first-run "current location".
package geo

import (
	"context"
	"fmt"
	"time"

	"github.com/kjstillabower/skycast/internal/models"
)

// DefaultTimeout bounds a position request.
const DefaultTimeout = 8 * time.Second

// Position is a latitude/longitude pair.
type Position struct {
	Latitude  float64
	Longitude float64
}

// Locator is the platform geolocation API. Implementations return an error wrapping
// models.ErrPermissionDenied when the user refuses.
type Locator interface {
	Locate(ctx context.Context) (Position, error)
}

// Acquire asks locator for the position, giving up after timeout (DefaultTimeout if zero).
func Acquire(ctx context.Context, locator Locator, timeout time.Duration) (Position, error) {
	if locator == nil {
		return Position{}, fmt.Errorf("geolocation unavailable: %w", models.ErrPermissionDenied)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		pos Position
		err error
	}
	ch := make(chan result, 1)
	go func() {
		pos, err := locator.Locate(ctx)
		ch <- result{pos, err}
	}()
	select {
	case r := <-ch:
		return r.pos, r.err
	case <-ctx.Done():
		return Position{}, fmt.Errorf("geolocation: %w", ctx.Err())
	}
}

// StaticLocator always reports a fixed position, such as a home location from config.
type StaticLocator struct {
	Position Position
}

func (s StaticLocator) Locate(ctx context.Context) (Position, error) {
	return s.Position, nil
}

// DeniedLocator behaves like a user who declined the permission prompt.
type DeniedLocator struct{}

func (DeniedLocator) Locate(ctx context.Context) (Position, error) {
	return Position{}, fmt.Errorf("geolocation: %w", models.ErrPermissionDenied)
}
