package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/kjstillabower/skycast/internal/circuitbreaker"
	"github.com/kjstillabower/skycast/internal/httpcache"
	"github.com/kjstillabower/skycast/internal/models"
)

const alertsFixture = `{"alerts":[{"event":"Storm","severity":"Severe"}]}`

// newCachedClient builds the production stack: Client over the HTTP cache over guard.
func newCachedClient(t *testing.T, srvURL string, guard *GuardedTransport) (*Client, *httpcache.Transport) {
	t.Helper()
	u, err := url.Parse(srvURL)
	if err != nil {
		t.Fatal(err)
	}
	tr := httpcache.NewTransport(guard, httpcache.NewMemoryStorage(), httpcache.Config{APIHosts: []string{u.Hostname()}}, nil)
	t.Cleanup(tr.Wait)
	c := New(Config{
		ForecastURL: srvURL + "/v1/forecast",
		AlertsURL:   srvURL + "/v1/warnings",
		SearchURL:   srvURL + "/v1/search",
		ReverseURL:  srvURL + "/v1/reverse",
		HTTPClient:  &http.Client{Transport: tr},
		Now:         func() time.Time { return fixedNow },
	}, nil)
	return c, tr
}

func TestGuardedTransport_BreakerOpensOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	c := New(Config{ForecastURL: srv.URL, HTTPClient: &http.Client{Transport: &GuardedTransport{
		Breaker: circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 2, Timeout: time.Hour}),
	}}}, nil)

	for i := 0; i < 3; i++ {
		_, _ = c.FetchWeather(context.Background(), 1, 2, models.UnitsMetric, "")
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("upstream calls = %d, want 2 before the breaker opens", got)
	}
	_, err := c.FetchWeather(context.Background(), 1, 2, models.UnitsMetric, "")
	if !errors.Is(err, circuitbreaker.ErrOpen) || !errors.Is(err, models.ErrNetwork) {
		t.Errorf("error = %v, want open breaker reported as network error", err)
	}
	if got := CategorizeError(err); got != ErrorCategoryCircuitOpen {
		t.Errorf("CategorizeError() = %q, want %q", got, ErrorCategoryCircuitOpen)
	}
}

func TestGuardedTransport_CancelledCallDoesNotTripBreaker(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)
	breaker := circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 1, Timeout: time.Hour})
	c := New(Config{SearchURL: srv.URL, HTTPClient: &http.Client{Transport: &GuardedTransport{Breaker: breaker}}}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.SearchPlaces(ctx, "x", 8, "en"); err == nil {
		t.Fatal("SearchPlaces() with cancelled context error = nil")
	}
	if breaker.State() != circuitbreaker.StateClosed {
		t.Errorf("breaker state = %v after cancellation, want closed", breaker.State())
	}
}

func TestGuardedTransport_LimiterBoundsWait(t *testing.T) {
	srv := httptest.NewServer(respond(http.StatusOK, alertsFixture))
	defer srv.Close()
	c := New(Config{AlertsURL: srv.URL, HTTPClient: &http.Client{Transport: &GuardedTransport{
		Limiter: rate.NewLimiter(rate.Every(time.Hour), 1),
	}}}, nil)

	if _, err := c.FetchAlerts(context.Background(), 1, 2, ""); err != nil {
		t.Fatalf("first FetchAlerts() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.FetchAlerts(ctx, 1, 2, ""); !errors.Is(err, models.ErrNetwork) {
		t.Errorf("throttled FetchAlerts() error = %v, want network error", err)
	}
}

func TestCachedClient_OpenBreakerStillServesCachedResponses(t *testing.T) {
	srv := httptest.NewServer(respond(http.StatusOK, alertsFixture))
	breaker := circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 1, Timeout: time.Hour})
	c, tr := newCachedClient(t, srv.URL, &GuardedTransport{Breaker: breaker})
	ctx := context.Background()

	if got, err := c.FetchAlerts(ctx, 1, 2, ""); err != nil || len(got) != 1 {
		t.Fatalf("online FetchAlerts() = %+v, %v", got, err)
	}
	tr.Wait()
	srv.Close()

	if _, err := c.SearchPlaces(ctx, "london", 8, "en"); err == nil {
		t.Fatal("SearchPlaces() offline without cache error = nil")
	}
	if breaker.State() != circuitbreaker.StateOpen {
		t.Fatalf("breaker state = %v, want open", breaker.State())
	}

	got, err := c.FetchAlerts(ctx, 1, 2, "")
	if err != nil {
		t.Fatalf("cached FetchAlerts() error = %v, want cached response", err)
	}
	if len(got) != 1 || got[0].Event != "Storm" {
		t.Errorf("cached FetchAlerts() = %+v, want [Storm]", got)
	}
}

func TestCachedClient_HitNotThrottled(t *testing.T) {
	srv := httptest.NewServer(respond(http.StatusOK, alertsFixture))
	defer srv.Close()
	c, tr := newCachedClient(t, srv.URL, &GuardedTransport{Limiter: rate.NewLimiter(rate.Every(time.Hour), 1)})

	if _, err := c.FetchAlerts(context.Background(), 1, 2, ""); err != nil {
		t.Fatalf("first FetchAlerts() error = %v", err)
	}
	tr.Wait()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	got, err := c.FetchAlerts(ctx, 1, 2, "")
	if err != nil || len(got) != 1 {
		t.Errorf("cached FetchAlerts() = %+v, %v; want immediate cached response", got, err)
	}
}
