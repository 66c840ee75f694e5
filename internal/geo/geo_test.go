package geo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kjstillabower/skycast/internal/models"
)

type slowLocator struct{}

func (slowLocator) Locate(ctx context.Context) (Position, error) {
	select {
	case <-time.After(time.Hour):
		return Position{Latitude: 1}, nil
	case <-ctx.Done():
		return Position{}, ctx.Err()
	}
}

// stubbornLocator ignores cancellation.
type stubbornLocator struct{ release chan struct{} }

func (s stubbornLocator) Locate(ctx context.Context) (Position, error) {
	<-s.release
	return Position{Latitude: 1}, nil
}

func TestAcquire(t *testing.T) {
	pos, err := Acquire(context.Background(), StaticLocator{Position{Latitude: 59.91, Longitude: 10.75}}, 0)
	if err != nil || pos.Latitude != 59.91 || pos.Longitude != 10.75 {
		t.Errorf("Acquire(static) = %+v, %v", pos, err)
	}

	if _, err := Acquire(context.Background(), DeniedLocator{}, 0); !errors.Is(err, models.ErrPermissionDenied) {
		t.Errorf("Acquire(denied) error = %v, want permission denied", err)
	}
	if _, err := Acquire(context.Background(), nil, 0); !errors.Is(err, models.ErrPermissionDenied) {
		t.Errorf("Acquire(nil) error = %v, want permission denied", err)
	}
}

func TestAcquire_Timeout(t *testing.T) {
	if _, err := Acquire(context.Background(), slowLocator{}, 20*time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire(slow) error = %v, want deadline exceeded", err)
	}

	release := make(chan struct{})
	defer close(release)
	start := time.Now()
	if _, err := Acquire(context.Background(), stubbornLocator{release}, 20*time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire(stubborn) error = %v, want deadline exceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Acquire() did not return at the timeout")
	}
}
