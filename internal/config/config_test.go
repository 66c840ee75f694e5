package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalEnvYAML = `
profile: "test"
storage:
  backend: "memory"
  http_cache: "memory"
reliability:
  rate_limit_rps: 2
  rate_limit_burst: 4
`

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "dev.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

// inDir runs the test from dir with a clean override environment.
func inDir(t *testing.T, dir string) {
	t.Helper()
	for _, k := range []string{"ENV_NAME", "SKYCAST_STORAGE_BACKEND", "SKYCAST_DATA_DIR", "SKYCAST_PROFILE", "MEMCACHED_ADDRS", "SKYCAST_DIAGNOSTICS_ADDR"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	inDir(t, t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.StorageBackend != "sqlite" || cfg.HTTPCacheBackend != "sqlite" {
		t.Errorf("backends = %q/%q, want sqlite/sqlite", cfg.StorageBackend, cfg.HTTPCacheBackend)
	}
	if cfg.FreshnessMaxAge != 10*time.Minute {
		t.Errorf("FreshnessMaxAge = %v, want 10m", cfg.FreshnessMaxAge)
	}
	if cfg.SearchDelay != 300*time.Millisecond || cfg.SearchCount != 8 || cfg.SearchLanguage != "en" {
		t.Errorf("search = %v/%d/%q, want 300ms/8/en", cfg.SearchDelay, cfg.SearchCount, cfg.SearchLanguage)
	}
	if cfg.Origin != nil {
		t.Errorf("Origin = %v, want nil without http_cache.origin", cfg.Origin)
	}
	if cfg.GeoTimeout != 8*time.Second {
		t.Errorf("GeoTimeout = %v, want 8s", cfg.GeoTimeout)
	}
	if cfg.NetworkTimeout != 30*time.Second {
		t.Errorf("NetworkTimeout = %v, want 30s", cfg.NetworkTimeout)
	}
	if cfg.NotificationsBackend != "log" || !cfg.NotifyGrant {
		t.Errorf("notifications = %q grant=%v, want log grant=true", cfg.NotificationsBackend, cfg.NotifyGrant)
	}
	if cfg.HasHome {
		t.Error("HasHome = true, want false without home coordinates")
	}
	if cfg.DiagnosticsAddr != "" {
		t.Errorf("DiagnosticsAddr = %q, want disabled", cfg.DiagnosticsAddr)
	}
	if !cfg.WarmOnStart {
		t.Error("WarmOnStart = false, want true by default")
	}
	if cfg.Profile != "default" {
		t.Errorf("Profile = %q, want default", cfg.Profile)
	}
}

func TestLoad_ReadsFile(t *testing.T) {
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML+`
http_cache:
  origin: "https://skycast.example"
  critical_assets: ["/", "/index.html"]
  optional_assets: ["/icon.png"]
  api_hosts: ["api.example.com"]
  network_timeout: "5s"
freshness:
  max_age: "2m"
  warm_on_start: false
geolocation:
  timeout: "3s"
  home_latitude: 51.5
  home_longitude: -0.12
notifications:
  backend: "EXEC"
  command: "dunstify"
diagnostics:
  addr: "127.0.0.1:9099"
`)
	inDir(t, dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != "test" || cfg.StorageBackend != "memory" {
		t.Errorf("profile/backend = %q/%q", cfg.Profile, cfg.StorageBackend)
	}
	if cfg.AppOrigin != "https://skycast.example" || len(cfg.CriticalAssets) != 2 || len(cfg.OptionalAssets) != 1 {
		t.Errorf("http cache = %q %v %v", cfg.AppOrigin, cfg.CriticalAssets, cfg.OptionalAssets)
	}
	if cfg.Origin == nil || cfg.Origin.Scheme != "https" || cfg.Origin.Host != "skycast.example" {
		t.Errorf("Origin = %v, want parsed https://skycast.example", cfg.Origin)
	}
	if cfg.NetworkTimeout != 5*time.Second || cfg.FreshnessMaxAge != 2*time.Minute {
		t.Errorf("timeouts = %v/%v", cfg.NetworkTimeout, cfg.FreshnessMaxAge)
	}
	if cfg.WarmOnStart {
		t.Error("WarmOnStart = true, want false")
	}
	if !cfg.HasHome || cfg.HomeLatitude != 51.5 || cfg.HomeLongitude != -0.12 {
		t.Errorf("home = %v %v,%v", cfg.HasHome, cfg.HomeLatitude, cfg.HomeLongitude)
	}
	if cfg.NotificationsBackend != "exec" || cfg.NotifyCommand != "dunstify" {
		t.Errorf("notifications = %q %q", cfg.NotificationsBackend, cfg.NotifyCommand)
	}
	if cfg.RateLimitRPS != 2 || cfg.RateLimitBurst != 4 {
		t.Errorf("rate limit = %v/%d, want 2/4", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if cfg.DiagnosticsAddr != "127.0.0.1:9099" {
		t.Errorf("DiagnosticsAddr = %q", cfg.DiagnosticsAddr)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	inDir(t, dir)
	t.Setenv("SKYCAST_STORAGE_BACKEND", "Memcached")
	t.Setenv("MEMCACHED_ADDRS", "cache-1:11211,cache-2:11211")
	t.Setenv("SKYCAST_DATA_DIR", "/tmp/skycast-data")
	t.Setenv("SKYCAST_DIAGNOSTICS_ADDR", "127.0.0.1:9100")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.StorageBackend != "memcached" {
		t.Errorf("StorageBackend = %q, want memcached", cfg.StorageBackend)
	}
	if cfg.MemcachedAddrs != "cache-1:11211,cache-2:11211" {
		t.Errorf("MemcachedAddrs = %q", cfg.MemcachedAddrs)
	}
	if cfg.SQLitePath() != filepath.Join("/tmp/skycast-data", "test.db") {
		t.Errorf("SQLitePath() = %q", cfg.SQLitePath())
	}
	if cfg.DiagnosticsAddr != "127.0.0.1:9100" {
		t.Errorf("DiagnosticsAddr = %q", cfg.DiagnosticsAddr)
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("SKYCAST_PROFILE=from-dotenv\n"), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	inDir(t, dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != "from-dotenv" {
		t.Errorf("Profile = %q, want from-dotenv", cfg.Profile)
	}
}

func TestLoad_InvalidDurationFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML+`
freshness:
  max_age: "soon"
search:
  delay: ""
`)
	inDir(t, dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.FreshnessMaxAge != 10*time.Minute {
		t.Errorf("FreshnessMaxAge = %v, want default 10m", cfg.FreshnessMaxAge)
	}
	if cfg.SearchDelay != 300*time.Millisecond {
		t.Errorf("SearchDelay = %v, want default 300ms", cfg.SearchDelay)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown storage", "storage:\n  backend: \"redis\"\n", "storage.backend"},
		{"unknown http cache", "storage:\n  http_cache: \"memcached\"\n", "storage.http_cache"},
		{"unknown notifier", "notifications:\n  backend: \"pager\"\n", "notifications.backend"},
		{"relative origin", "http_cache:\n  origin: \"/app\"\n", "http_cache.origin"},
		{"assets without origin", "http_cache:\n  critical_assets: [\"/\"]\n", "without http_cache.origin"},
		{"bad forecast url", "weather_api:\n  forecast_url: \"forecast\"\n", "forecast_url"},
		{"home out of range", "geolocation:\n  home_latitude: 91\n  home_longitude: 0\n", "out of range"},
		{"profile path", "profile: \"../x\"\n", "profile"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeEnvFile(t, dir, tt.yaml)
			inDir(t, dir)

			cfg, err := Load()
			if err == nil {
				t.Fatalf("Load() expected error, got config %+v", cfg)
			}
			if cfg != nil {
				t.Fatalf("Load() expected nil config on error, got %+v", cfg)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want message containing %q", err, tt.want)
			}
		})
	}
}

func TestLoad_InvalidConfigYAML(t *testing.T) {
	dir := t.TempDir()
	writeEnvFile(t, dir, "not: valid: yaml: [[[")
	inDir(t, dir)

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for invalid config YAML, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "parse config file") {
		t.Errorf("Load() error = %v, want parse error", err)
	}
}

func TestLoad_EnvNameSelectsFile(t *testing.T) {
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	if err := os.WriteFile(filepath.Join(dir, "config", "prod.yaml"), []byte("profile: \"prod\"\n"), 0644); err != nil {
		t.Fatalf("write prod config: %v", err)
	}
	inDir(t, dir)
	t.Setenv("ENV_NAME", "prod")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != "prod" {
		t.Errorf("Profile = %q, want prod", cfg.Profile)
	}
}

func TestLoad_ProjectDevConfig(t *testing.T) {
	root := findProjectRoot(t)
	inDir(t, root)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ForecastURL == "" {
		t.Error("Load() did not populate config from config/dev.yaml")
	}
}

func findProjectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "config", "dev.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("config/dev.yaml not found (run tests from project root)")
		}
		dir = parent
	}
}
