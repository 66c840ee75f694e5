package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/skycast/internal/models"
	"github.com/kjstillabower/skycast/internal/observability"
)

// Open-Meteo endpoints.
const (
	DefaultForecastURL = "https://api.open-meteo.com/v1/forecast"
	DefaultAlertsURL   = "https://api.open-meteo.com/v1/warnings"
	DefaultSearchURL   = "https://geocoding-api.open-meteo.com/v1/search"
	DefaultReverseURL  = "https://geocoding-api.open-meteo.com/v1/reverse"
)

// Endpoint labels used in metrics and FetchError.Op.
const (
	endpointForecast = "forecast"
	endpointAlerts   = "alerts"
	endpointSearch   = "search"
	endpointReverse  = "reverse"
)

// FetchError reports a failed provider request: either no response (StatusCode 0) or a
// non-success status. It always matches models.ErrNetwork.
type FetchError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("open-meteo %s: HTTP %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("open-meteo %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{models.ErrNetwork}
	}
	return []error{models.ErrNetwork, e.Err}
}

// Config holds the client's endpoints and optional collaborators. Empty URLs use the defaults.
type Config struct {
	ForecastURL string
	AlertsURL   string
	SearchURL   string
	ReverseURL  string
	// HTTPClient is normally built on the httpcache transport over a GuardedTransport.
	// Nil means http.DefaultClient.
	HTTPClient *http.Client
	// Now stamps WeatherBundle.UpdatedAt. Nil means time.Now.
	Now func() time.Time
}

// Client maps Open-Meteo forecast, warnings and geocoding responses to models. It keeps no
// state between calls beyond its collaborators.
type Client struct {
	forecastURL string
	alertsURL   string
	searchURL   string
	reverseURL  string
	http        *http.Client
	now         func() time.Time
	logger      *zap.Logger
}

// New creates a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	c := &Client{
		forecastURL: orDefault(cfg.ForecastURL, DefaultForecastURL),
		alertsURL:   orDefault(cfg.AlertsURL, DefaultAlertsURL),
		searchURL:   orDefault(cfg.SearchURL, DefaultSearchURL),
		reverseURL:  orDefault(cfg.ReverseURL, DefaultReverseURL),
		http:        cfg.HTTPClient,
		now:         cfg.Now,
		logger:      observability.OrNop(logger),
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// get performs a GET and returns the status and body. Transport failures come back as a
// *FetchError; non-success statuses are returned to the caller, which decides what they mean.
func (c *Client) get(ctx context.Context, endpoint, rawURL string, params url.Values) (int, []byte, error) {
	status, body, err := c.do(ctx, endpoint, rawURL, params)
	if err != nil {
		return 0, nil, c.fail(endpoint, &FetchError{Op: endpoint, Err: err})
	}
	return status, body, nil
}

func (c *Client) do(ctx context.Context, endpoint, rawURL string, params url.Values) (int, []byte, error) {
	start := time.Now()

	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid URL: %w", err)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.WeatherAPIDuration.WithLabelValues(endpoint, "error").Observe(duration)
		return 0, nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(endpoint, status).Observe(duration)
	if err != nil {
		return 0, nil, fmt.Errorf("read response body: %w", err)
	}
	c.logger.Debug("open-meteo call",
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.String("correlation_id", observability.CorrelationID(ctx)),
		zap.Float64("duration_seconds", duration))
	return resp.StatusCode, body, nil
}

// fail records err under its category and returns it.
func (c *Client) fail(endpoint string, err error) error {
	observability.WeatherAPIErrorsTotal.WithLabelValues(endpoint, string(CategorizeError(err))).Inc()
	return err
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
