package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// Diagnostics listener request rate.
	HTTPRequestsTotal *prometheus.CounterVec

	// Diagnostics listener latency.
	HTTPRequestDuration *prometheus.HistogramVec

	// Diagnostics requests rejected by the listener's rate limiter.
	RateLimitDeniedTotal prometheus.Counter

	// Intercepted request outcomes: hit, miss, offline_fallback, error, bypass.
	HTTPCacheRequestsTotal *prometheus.CounterVec

	// Background revalidation outcomes. Watch for: sustained errors = app is running offline.
	HTTPCacheRevalidationsTotal *prometheus.CounterVec

	// Revalidations that joined an in-flight network leg instead of starting a new one.
	HTTPCacheRevalidationsCoalescedTotal prometheus.Counter

	// Cache stores removed during worker activation (version GC).
	HTTPCacheStoresDeletedTotal prometheus.Counter

	// Open-Meteo API call rate by endpoint and status.
	WeatherAPICallsTotal *prometheus.CounterVec

	// Open-Meteo API latency. Watch for: p95 > 2s (upstream degradation).
	WeatherAPIDuration *prometheus.HistogramVec

	// Open-Meteo API errors by stable category.
	WeatherAPIErrorsTotal *prometheus.CounterVec

	// Freshness cache lookups: fresh, stale, miss.
	FreshnessLookupsTotal *prometheus.CounterVec

	// Refresh failures where the last cached bundle kept being shown.
	StaleDataServesTotal prometheus.Counter

	// Alert notification dispatch by channel: worker, foreground, none.
	NotificationsTotal *prometheus.CounterVec

	// Place searches by outcome: success, error, cancelled, empty_query.
	SearchRequestsTotal *prometheus.CounterVec

	// Startup warming of saved locations.
	CacheWarmingTotal           prometheus.Counter
	CacheWarmingErrorsTotal     prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	// Circuit breaker state (0 closed, 1 open, 2 half-open) and transitions.
	CircuitBreakerState       *prometheus.GaugeVec
	CircuitBreakerTransitions *prometheus.CounterVec
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of diagnostics HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "Diagnostics HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Diagnostics requests denied by the rate limiter",
		},
	)
	HTTPCacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpCacheRequestsTotal",
			Help: "Outbound requests seen by the stale-while-revalidate transport, by result",
		},
		[]string{"result"},
	)
	HTTPCacheRevalidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpCacheRevalidationsTotal",
			Help: "Background revalidations by status",
		},
		[]string{"status"},
	)
	HTTPCacheRevalidationsCoalescedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "httpCacheRevalidationsCoalescedTotal",
			Help: "Revalidations that shared an in-flight network request",
		},
	)
	HTTPCacheStoresDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "httpCacheStoresDeletedTotal",
			Help: "Outdated cache stores deleted on activation",
		},
	)
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of Open-Meteo API calls",
		},
		[]string{"endpoint", "status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "Open-Meteo API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "status"},
	)
	WeatherAPIErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiErrorsTotal",
			Help: "Open-Meteo API errors by category",
		},
		[]string{"endpoint", "category"},
	)
	FreshnessLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freshnessLookupsTotal",
			Help: "Freshness cache lookups by result",
		},
		[]string{"result"},
	)
	StaleDataServesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "staleDataServesTotal",
			Help: "Weather refresh failures answered with the last cached bundle",
		},
	)
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notificationsTotal",
			Help: "Alert notifications by delivery channel",
		},
		[]string{"channel"},
	)
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchRequestsTotal",
			Help: "Debounced place searches by outcome",
		},
		[]string{"result"},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Warm runs over saved locations",
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Warm runs that had at least one failed location",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Duration of warm runs in seconds",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30},
		},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"component"},
	)
	CircuitBreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, RateLimitDeniedTotal,
		HTTPCacheRequestsTotal, HTTPCacheRevalidationsTotal, HTTPCacheRevalidationsCoalescedTotal,
		HTTPCacheStoresDeletedTotal,
		WeatherAPICallsTotal, WeatherAPIDuration, WeatherAPIErrorsTotal,
		FreshnessLookupsTotal, StaleDataServesTotal,
		NotificationsTotal, SearchRequestsTotal,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
		CircuitBreakerState, CircuitBreakerTransitions,
	)
}

// RecordCircuitBreakerTransition counts a breaker transition and updates the state gauge.
func RecordCircuitBreakerTransition(component, from, to string, toValue int) {
	CircuitBreakerTransitions.WithLabelValues(component, from, to).Inc()
	CircuitBreakerState.WithLabelValues(component).Set(float64(toValue))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
