// Package http is the optional loopback diagnostics listener: health, cache store listing
// and prometheus metrics.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/skycast/internal/circuitbreaker"
	"github.com/kjstillabower/skycast/internal/httpcache"
	"github.com/kjstillabower/skycast/internal/observability"
	"github.com/kjstillabower/skycast/internal/traffic"
	"github.com/kjstillabower/skycast/internal/worker"
)

// WorkerState reports the background worker's lifecycle state.
type WorkerState interface {
	State() worker.State
}

// BreakerState reports the weather client's circuit breaker state.
type BreakerState interface {
	State() circuitbreaker.State
}

// HealthConfig holds the components the health handler inspects. Nil fields are skipped.
type HealthConfig struct {
	Worker  WorkerState
	Breaker BreakerState
	Traffic *traffic.Tracker
	// TrafficWindow is the window for connectivity. Zero means one minute.
	TrafficWindow time.Duration
	// DegradedRatio is the failure share that marks connectivity degraded. Zero means 0.2.
	DegradedRatio float64
	// Pings check storage reachability, keyed by component name.
	Pings     map[string]func() error
	StartTime time.Time
	Version   string
}

// Handler holds dependencies for the diagnostics handlers.
type Handler struct {
	healthConfig     *HealthConfig
	storage          httpcache.Storage
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. storage may be nil.
func NewHandler(healthConfig *HealthConfig, storage httpcache.Storage, logger *zap.Logger) *Handler {
	if healthConfig == nil {
		healthConfig = &HealthConfig{}
	}
	return &Handler{
		healthConfig: healthConfig,
		storage:      storage,
		logger:       observability.OrNop(logger),
	}
}

// NewRouter wires the diagnostics routes and middleware. limiter may be nil.
func NewRouter(h *Handler, logger *zap.Logger, limiter *rate.Limiter) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.Use(RateLimitMiddleware(limiter))
	router.Handle("/health", TimeoutMiddleware(2*time.Second)(http.HandlerFunc(h.GetHealth))).Methods("GET")
	router.HandleFunc("/cache/stores", h.GetCacheStores).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler()).Methods("GET")
	return router
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
	checks     map[string]string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "skycast",
		"version":   h.version(),
		"checks":    result.checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if !h.healthConfig.StartTime.IsZero() {
		resp["uptimeSeconds"] = int64(time.Since(h.healthConfig.StartTime).Seconds())
	}
	writeJSON(w, result.statusCode, resp)
}

func (h *Handler) version() string {
	if h.healthConfig.Version == "" {
		return "dev"
	}
	return h.healthConfig.Version
}

// computeHealthStatus evaluates conditions in priority order:
// worker not active > storage unreachable > offline > degraded > healthy.
// Offline and degraded still return 200; cached data keeps the app usable.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	cfg := h.healthConfig
	checks := make(map[string]string)
	result := healthResult{status: "healthy", statusCode: http.StatusOK, checks: checks}

	if cfg.Worker != nil {
		state := cfg.Worker.State()
		checks["worker"] = state.String()
		if state != worker.StateActive {
			result.status, result.statusCode, result.reason = "starting", http.StatusServiceUnavailable, "worker_"+state.String()
			if state == worker.StateStopped || state == worker.StateFailed {
				result.status = "unavailable"
			}
		}
	}

	names := make([]string, 0, len(cfg.Pings))
	for name := range cfg.Pings {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			checks[name] = "unknown"
			continue
		}
		if err := cfg.Pings[name](); err != nil {
			checks[name] = "unhealthy"
			observability.LoggerFromContext(ctx, h.logger).Debug("storage ping failed", zap.String("component", name), zap.Error(err))
			if result.statusCode == http.StatusOK {
				result.status, result.statusCode, result.reason = "degraded", http.StatusServiceUnavailable, name+"_unreachable"
			}
			continue
		}
		checks[name] = "healthy"
	}

	if cfg.Breaker != nil {
		checks["weatherApiBreaker"] = cfg.Breaker.State().String()
	}

	if cfg.Traffic != nil {
		window, ratio := cfg.TrafficWindow, cfg.DegradedRatio
		if window <= 0 {
			window = time.Minute
		}
		if ratio <= 0 {
			ratio = 0.2
		}
		conn := cfg.Traffic.Connectivity(window, ratio)
		checks["weatherApi"] = string(conn)
		if result.statusCode == http.StatusOK {
			switch conn {
			case traffic.ConnectivityOffline:
				result.status, result.reason = "offline", "network_unreachable"
			case traffic.ConnectivityDegraded:
				result.status, result.reason = "degraded", "error_rate_breach"
			}
		}
	}
	return result
}

// GetCacheStores handles GET /cache/stores.
func (h *Handler) GetCacheStores(w http.ResponseWriter, r *http.Request) {
	if h.storage == nil {
		writeError(w, r, http.StatusNotFound, "NO_HTTP_CACHE", "HTTP cache not configured")
		return
	}
	keys, err := h.storage.Keys(r.Context())
	if err != nil {
		observability.LoggerFromContext(r.Context(), h.logger).Warn("list cache stores", zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Unable to list cache stores")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"stores": keys})
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response with code, message and the request's correlation id.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}
