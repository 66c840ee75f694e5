//go:build integration
// +build integration

package testhelpers

import (
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/skycast/internal/client"
	"github.com/kjstillabower/skycast/internal/httpcache"
	"github.com/kjstillabower/skycast/internal/kvstore"
	"github.com/kjstillabower/skycast/internal/observability"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	MemcachedAddrs string
	LiveAPI        bool
}

// GetIntegrationConfig loads integration test configuration from environment.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	addrs := os.Getenv("MEMCACHED_ADDRS")
	if addrs == "" {
		addrs = "localhost:11211"
	}
	return IntegrationTestConfig{
		MemcachedAddrs: addrs,
		LiveAPI:        os.Getenv("SKYCAST_LIVE_API") == "1",
	}
}

// SetupMemcachedStore returns a store under a throwaway profile, skipping the test when no
// memcached server answers.
func SetupMemcachedStore(t *testing.T, cfg IntegrationTestConfig) *kvstore.MemcachedStore {
	t.Helper()
	s := kvstore.NewMemcachedStore(cfg.MemcachedAddrs, "it-"+time.Now().Format("150405.000000"), 500*time.Millisecond, 2)
	if err := s.Ping(); err != nil {
		_ = s.Close()
		t.Skipf("memcached not available at %s: %v", cfg.MemcachedAddrs, err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// SetupLiveClient returns an Open-Meteo client behind an in-memory HTTP cache, skipping the
// test unless SKYCAST_LIVE_API=1.
func SetupLiveClient(t *testing.T, cfg IntegrationTestConfig) (*client.Client, *httpcache.Transport) {
	t.Helper()
	if !cfg.LiveAPI {
		t.Skip("SKYCAST_LIVE_API not set, skipping live API test")
	}
	logger, err := observability.NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	transport := httpcache.NewTransport(nil, httpcache.NewMemoryStorage(), httpcache.Config{}, logger)
	t.Cleanup(transport.Wait)
	c := client.New(client.Config{
		HTTPClient: &http.Client{Transport: transport, Timeout: 10 * time.Second},
	}, logger)
	return c, transport
}
