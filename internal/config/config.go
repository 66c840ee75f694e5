package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds app configuration loaded from YAML and env.
type Config struct {
	Profile string
	DataDir string

	StorageBackend   string // "memory", "sqlite" or "memcached"
	HTTPCacheBackend string // "memory" or "sqlite"

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	AppOrigin string
	// Origin is AppOrigin parsed by Load; nil when unset.
	Origin         *url.URL
	CriticalAssets []string
	OptionalAssets []string
	APIHosts       []string
	NetworkTimeout time.Duration

	ForecastURL string
	AlertsURL   string
	SearchURL   string
	ReverseURL  string

	RateLimitRPS   float64
	RateLimitBurst int

	BreakerFailureThreshold int
	BreakerSuccessThreshold int
	BreakerTimeout          time.Duration

	FreshnessMaxAge time.Duration
	WarmOnStart     bool

	SearchDelay    time.Duration
	SearchCount    int
	SearchLanguage string

	GeoTimeout    time.Duration
	HomeLatitude  float64
	HomeLongitude float64
	HasHome       bool

	NotificationsBackend string // "log" or "exec"
	NotifyCommand        string
	NotifyGrant          bool

	WorkerInboxSize int

	DiagnosticsAddr string
	ShutdownTimeout time.Duration
}

// SQLitePath is the database file used by the sqlite backends.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, c.Profile+".db")
}

type fileConfig struct {
	Profile string `yaml:"profile"`
	DataDir string `yaml:"data_dir"`

	Storage struct {
		Backend   string `yaml:"backend"`
		HTTPCache string `yaml:"http_cache"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"storage"`

	HTTPCache struct {
		Origin         string   `yaml:"origin"`
		CriticalAssets []string `yaml:"critical_assets"`
		OptionalAssets []string `yaml:"optional_assets"`
		APIHosts       []string `yaml:"api_hosts"`
		NetworkTimeout string   `yaml:"network_timeout"`
	} `yaml:"http_cache"`

	WeatherAPI struct {
		ForecastURL string `yaml:"forecast_url"`
		AlertsURL   string `yaml:"alerts_url"`
		SearchURL   string `yaml:"search_url"`
		ReverseURL  string `yaml:"reverse_url"`
	} `yaml:"weather_api"`

	Reliability struct {
		RateLimitRPS            float64 `yaml:"rate_limit_rps"`
		RateLimitBurst          int     `yaml:"rate_limit_burst"`
		BreakerFailureThreshold int     `yaml:"breaker_failure_threshold"`
		BreakerSuccessThreshold int     `yaml:"breaker_success_threshold"`
		BreakerTimeout          string  `yaml:"breaker_timeout"`
	} `yaml:"reliability"`

	Freshness struct {
		MaxAge      string `yaml:"max_age"`
		WarmOnStart *bool  `yaml:"warm_on_start"`
	} `yaml:"freshness"`

	Search struct {
		Delay    string `yaml:"delay"`
		Count    int    `yaml:"count"`
		Language string `yaml:"language"`
	} `yaml:"search"`

	Geolocation struct {
		Timeout       string   `yaml:"timeout"`
		HomeLatitude  *float64 `yaml:"home_latitude"`
		HomeLongitude *float64 `yaml:"home_longitude"`
	} `yaml:"geolocation"`

	Notifications struct {
		Backend string `yaml:"backend"`
		Command string `yaml:"command"`
		Grant   *bool  `yaml:"grant"`
	} `yaml:"notifications"`

	Worker struct {
		InboxSize int `yaml:"inbox_size"`
	} `yaml:"worker"`

	Diagnostics struct {
		Addr string `yaml:"addr"`
	} `yaml:"diagnostics"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev), relative to the working
// directory. A missing file means defaults. A .env file in the working directory is loaded
// first when present; variables already set win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")

	var fc fileConfig
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	case os.IsNotExist(err):
		// defaults
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := fromFile(&fc)
	applyEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromFile(fc *fileConfig) *Config {
	cfg := &Config{}

	cfg.Profile = orDefault(fc.Profile, "default")
	cfg.DataDir = strings.TrimSpace(fc.DataDir)
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir()
	}

	cfg.StorageBackend = lower(orDefault(fc.Storage.Backend, "sqlite"))
	cfg.HTTPCacheBackend = lower(orDefault(fc.Storage.HTTPCache, "sqlite"))
	cfg.MemcachedAddrs = orDefault(fc.Storage.Memcached.Addrs, "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Storage.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Storage.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.AppOrigin = strings.TrimSpace(fc.HTTPCache.Origin)
	cfg.CriticalAssets = fc.HTTPCache.CriticalAssets
	cfg.OptionalAssets = fc.HTTPCache.OptionalAssets
	cfg.APIHosts = fc.HTTPCache.APIHosts
	cfg.NetworkTimeout = parseDuration(fc.HTTPCache.NetworkTimeout, 30*time.Second)

	cfg.ForecastURL = strings.TrimSpace(fc.WeatherAPI.ForecastURL)
	cfg.AlertsURL = strings.TrimSpace(fc.WeatherAPI.AlertsURL)
	cfg.SearchURL = strings.TrimSpace(fc.WeatherAPI.SearchURL)
	cfg.ReverseURL = strings.TrimSpace(fc.WeatherAPI.ReverseURL)

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 5
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 10
	}
	cfg.BreakerFailureThreshold = fc.Reliability.BreakerFailureThreshold
	if cfg.BreakerFailureThreshold <= 0 {
		cfg.BreakerFailureThreshold = 5
	}
	cfg.BreakerSuccessThreshold = fc.Reliability.BreakerSuccessThreshold
	if cfg.BreakerSuccessThreshold <= 0 {
		cfg.BreakerSuccessThreshold = 1
	}
	cfg.BreakerTimeout = parseDuration(fc.Reliability.BreakerTimeout, 30*time.Second)

	cfg.FreshnessMaxAge = parseDuration(fc.Freshness.MaxAge, 10*time.Minute)
	cfg.WarmOnStart = true
	if fc.Freshness.WarmOnStart != nil {
		cfg.WarmOnStart = *fc.Freshness.WarmOnStart
	}

	cfg.SearchDelay = parseDuration(fc.Search.Delay, 300*time.Millisecond)
	cfg.SearchCount = fc.Search.Count
	if cfg.SearchCount <= 0 {
		cfg.SearchCount = 8
	}
	cfg.SearchLanguage = orDefault(fc.Search.Language, "en")

	cfg.GeoTimeout = parseDuration(fc.Geolocation.Timeout, 8*time.Second)
	if fc.Geolocation.HomeLatitude != nil && fc.Geolocation.HomeLongitude != nil {
		cfg.HomeLatitude, cfg.HomeLongitude = *fc.Geolocation.HomeLatitude, *fc.Geolocation.HomeLongitude
		cfg.HasHome = true
	}

	cfg.NotificationsBackend = lower(orDefault(fc.Notifications.Backend, "log"))
	cfg.NotifyCommand = strings.TrimSpace(fc.Notifications.Command)
	cfg.NotifyGrant = true
	if fc.Notifications.Grant != nil {
		cfg.NotifyGrant = *fc.Notifications.Grant
	}

	cfg.WorkerInboxSize = fc.Worker.InboxSize
	if cfg.WorkerInboxSize <= 0 {
		cfg.WorkerInboxSize = 16
	}

	cfg.DiagnosticsAddr = strings.TrimSpace(fc.Diagnostics.Addr)
	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 10*time.Second)
	return cfg
}

func applyEnv(cfg *Config) {
	if v := lower(os.Getenv("SKYCAST_STORAGE_BACKEND")); v != "" {
		cfg.StorageBackend = v
	}
	if v := strings.TrimSpace(os.Getenv("SKYCAST_DATA_DIR")); v != "" {
		cfg.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("SKYCAST_PROFILE")); v != "" {
		cfg.Profile = v
	}
	if v := strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS")); v != "" {
		cfg.MemcachedAddrs = v
	}
	if v, ok := os.LookupEnv("SKYCAST_DIAGNOSTICS_ADDR"); ok {
		cfg.DiagnosticsAddr = strings.TrimSpace(v)
	}
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".skycast"
	}
	return filepath.Join(dir, "skycast")
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Zero or negative durations are returned as-is so validate can reject them.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
func validate(cfg *Config) error {
	switch cfg.StorageBackend {
	case "memory", "sqlite", "memcached":
	default:
		return fmt.Errorf("storage.backend must be memory, sqlite or memcached, got %q", cfg.StorageBackend)
	}
	switch cfg.HTTPCacheBackend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("storage.http_cache must be memory or sqlite, got %q", cfg.HTTPCacheBackend)
	}
	switch cfg.NotificationsBackend {
	case "log", "exec":
	default:
		return fmt.Errorf("notifications.backend must be log or exec, got %q", cfg.NotificationsBackend)
	}
	if cfg.AppOrigin != "" {
		u, err := url.Parse(cfg.AppOrigin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("http_cache.origin must be an absolute URL, got %q", cfg.AppOrigin)
		}
		cfg.Origin = u
	} else if len(cfg.CriticalAssets) > 0 || len(cfg.OptionalAssets) > 0 {
		return fmt.Errorf("http_cache assets configured without http_cache.origin")
	}
	for name, raw := range map[string]string{
		"forecast_url": cfg.ForecastURL,
		"alerts_url":   cfg.AlertsURL,
		"search_url":   cfg.SearchURL,
		"reverse_url":  cfg.ReverseURL,
	} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("weather_api.%s must be an absolute URL, got %q", name, raw)
		}
	}
	if cfg.HasHome {
		if cfg.HomeLatitude < -90 || cfg.HomeLatitude > 90 || cfg.HomeLongitude < -180 || cfg.HomeLongitude > 180 {
			return fmt.Errorf("geolocation home coordinates out of range: %v,%v", cfg.HomeLatitude, cfg.HomeLongitude)
		}
	}
	if strings.ContainsAny(cfg.Profile, `/\`) {
		return fmt.Errorf("profile must not contain path separators, got %q", cfg.Profile)
	}
	return nil
}
