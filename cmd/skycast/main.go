package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/skycast/internal/app"
	"github.com/kjstillabower/skycast/internal/circuitbreaker"
	"github.com/kjstillabower/skycast/internal/client"
	"github.com/kjstillabower/skycast/internal/config"
	"github.com/kjstillabower/skycast/internal/freshness"
	"github.com/kjstillabower/skycast/internal/geo"
	httphandler "github.com/kjstillabower/skycast/internal/http"
	"github.com/kjstillabower/skycast/internal/httpcache"
	"github.com/kjstillabower/skycast/internal/kvstore"
	"github.com/kjstillabower/skycast/internal/notify"
	"github.com/kjstillabower/skycast/internal/observability"
	"github.com/kjstillabower/skycast/internal/prefs"
	"github.com/kjstillabower/skycast/internal/search"
	"github.com/kjstillabower/skycast/internal/traffic"
	"github.com/kjstillabower/skycast/internal/worker"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	var (
		kv      kvstore.Store
		sqlite  *kvstore.SQLiteStore
		memc    *kvstore.MemcachedStore
		pings   = map[string]func() error{}
		storage httpcache.Storage
	)
	if cfg.StorageBackend == "sqlite" || cfg.HTTPCacheBackend == "sqlite" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			logger.Fatal("data dir", zap.String("path", cfg.DataDir), zap.Error(err))
		}
		sqlite, err = kvstore.OpenSQLite(cfg.SQLitePath())
		if err != nil {
			logger.Fatal("sqlite", zap.Error(err))
		}
		pings["sqlite"] = sqlite.Ping
	}
	switch cfg.StorageBackend {
	case "memcached":
		memc = kvstore.NewMemcachedStore(cfg.MemcachedAddrs, cfg.Profile, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		pings["memcached"] = memc.Ping
		kv = memc
		logger.Info("storage backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	case "sqlite":
		kv = sqlite
		logger.Info("storage backend: sqlite", zap.String("path", cfg.SQLitePath()))
	default:
		kv = kvstore.NewMemoryStore()
		logger.Info("storage backend: memory")
	}
	switch cfg.HTTPCacheBackend {
	case "sqlite":
		s, err := httpcache.NewSQLiteStorage(sqlite.DB())
		if err != nil {
			logger.Fatal("http cache storage", zap.Error(err))
		}
		storage = s
	default:
		storage = httpcache.NewMemoryStorage()
	}

	breaker := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.BreakerFailureThreshold,
		SuccessThreshold: cfg.BreakerSuccessThreshold,
		Timeout:          cfg.BreakerTimeout,
		Component:        "weather_api",
		OnStateChange: func(component string, from, to circuitbreaker.State) {
			observability.RecordCircuitBreakerTransition(component, from.String(), to.String(), int(to))
			logger.Warn("circuit breaker transition", zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	observability.CircuitBreakerState.WithLabelValues("weather_api").Set(0)

	tracker := traffic.NewTracker(nil)
	transport, apiHTTP := newNetworkStack(cfg, storage, tracker, breaker, logger)
	weatherClient := client.New(client.Config{
		ForecastURL: cfg.ForecastURL,
		AlertsURL:   cfg.AlertsURL,
		SearchURL:   cfg.SearchURL,
		ReverseURL:  cfg.ReverseURL,
		HTTPClient:  apiHTTP,
	}, logger)

	var notifier notify.Notifier
	switch cfg.NotificationsBackend {
	case "exec":
		notifier = notify.NewExecNotifier(cfg.NotifyCommand, "skycast")
	default:
		notifier = notify.NewLogNotifier(logger, cfg.NotifyGrant)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bg := worker.New(transport, notifier, worker.Config{
		CriticalAssets: cfg.CriticalAssets,
		OptionalAssets: cfg.OptionalAssets,
		InboxSize:      cfg.WorkerInboxSize,
	}, logger)
	if err := bg.Start(ctx); err != nil {
		logger.Warn("worker unavailable, notifications fall back to foreground", zap.Error(err))
	}

	var locator geo.Locator = geo.DeniedLocator{}
	if cfg.HasHome {
		locator = geo.StaticLocator{Position: geo.Position{Latitude: cfg.HomeLatitude, Longitude: cfg.HomeLongitude}}
	}

	store := prefs.New(kv, logger)
	weatherCache := freshness.New(kv, freshness.Options{MaxAge: cfg.FreshnessMaxAge}, logger)
	theme := &terminalTheme{}
	ui := newREPL(os.Stdin, os.Stdout, theme)
	ctrl := app.New(app.Deps{
		Theme:      theme,
		Prefs:      store,
		Cache:      weatherCache,
		Client:     weatherClient,
		Dispatcher: notify.NewDispatcher(bg, notifier, logger),
		Notifier:   notifier,
		Locator:    locator,
		GeoTimeout: cfg.GeoTimeout,
		Search: search.Options{
			Delay:    cfg.SearchDelay,
			Count:    cfg.SearchCount,
			Language: cfg.SearchLanguage,
		},
		OnChange: ui.searchUpdated,
		Logger:   logger,
	})
	ui.ctrl = ctrl

	if cfg.WarmOnStart {
		go warm(ctx, weatherCache, weatherClient, store, logger)
	}

	var srv *http.Server
	if cfg.DiagnosticsAddr != "" {
		handler := httphandler.NewHandler(&httphandler.HealthConfig{
			Worker:    bg,
			Breaker:   breaker,
			Traffic:   tracker,
			Pings:     pings,
			StartTime: time.Now(),
		}, storage, logger)
		srv = &http.Server{
			Addr:         cfg.DiagnosticsAddr,
			Handler:      httphandler.NewRouter(handler, logger, rate.NewLimiter(20, 40)),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("diagnostics listening", zap.String("addr", cfg.DiagnosticsAddr))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("diagnostics server", zap.Error(err))
			}
		}()
	}

	if err := ctrl.Init(ctx); err != nil {
		logger.Info("initial refresh incomplete", zap.Error(err))
	}
	if err := ui.Run(ctx); err != nil {
		logger.Error("terminal", zap.Error(err))
	}
	stop()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("diagnostics shutdown", zap.Error(err))
		}
	}
	ctrl.Close()
	bg.Stop()

	if err := observability.FlushTelemetry(shutdownCtx, logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	if memc != nil {
		if err := memc.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	if sqlite != nil {
		if err := sqlite.Close(); err != nil {
			logger.Error("sqlite close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}

// newNetworkStack layers the HTTP cache over the limiter and breaker, so cached responses are
// served even while the breaker is open. Provider calls carry no client timeout; the cache's
// network leg is bounded by NetworkTimeout.
func newNetworkStack(cfg *config.Config, storage httpcache.Storage, outcomes httpcache.OutcomeRecorder, breaker *circuitbreaker.CircuitBreaker, logger *zap.Logger) (*httpcache.Transport, *http.Client) {
	var apiHosts []string
	if len(cfg.APIHosts) > 0 {
		apiHosts = cfg.APIHosts
	}
	network := &client.GuardedTransport{
		Limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
		Breaker: breaker,
	}
	transport := httpcache.NewTransport(network, storage, httpcache.Config{
		Origin:         cfg.Origin,
		APIHosts:       apiHosts,
		NetworkTimeout: cfg.NetworkTimeout,
		Outcomes:       outcomes,
	}, logger)
	return transport, &http.Client{Transport: transport}
}

// warm prefetches saved locations that are missing or stale in the current unit system.
func warm(ctx context.Context, cache *freshness.Cache, fetcher freshness.WeatherFetcher, store *prefs.Prefs, logger *zap.Logger) {
	saved := store.Saved(ctx)
	if len(saved) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	units := store.Settings(ctx).Units
	if err := freshness.NewWarmer(cache, fetcher, logger).Warm(ctx, saved, units); err != nil {
		logger.Warn("cache warming failed", zap.Error(err))
	}
}
