package client

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/kjstillabower/skycast/internal/circuitbreaker"
)

var errServerStatus = errors.New("server error status")

// GuardedTransport throttles and breaks network round trips. It is the base transport of the
// HTTP cache, so responses served from cache never wait on the limiter or see an open breaker.
type GuardedTransport struct {
	// Base performs the request. Nil means http.DefaultTransport.
	Base http.RoundTripper
	// Limiter throttles outbound calls (Open-Meteo fair use). Optional.
	Limiter *rate.Limiter
	// Breaker fails calls fast after repeated transport or 5xx failures. Optional.
	Breaker *circuitbreaker.CircuitBreaker
}

// RoundTrip implements http.RoundTripper.
func (g *GuardedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if g.Limiter != nil {
		if err := g.Limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	base := g.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if g.Breaker == nil {
		return base.RoundTrip(req)
	}

	var (
		resp  *http.Response
		rtErr error
	)
	err := g.Breaker.Call(func() error {
		resp, rtErr = base.RoundTrip(req)
		switch {
		case errors.Is(rtErr, context.Canceled):
			// A superseded search is not a provider failure.
			return nil
		case rtErr != nil:
			return rtErr
		case resp.StatusCode >= 500:
			return errServerStatus
		}
		return nil
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return nil, err
	}
	return resp, rtErr
}
