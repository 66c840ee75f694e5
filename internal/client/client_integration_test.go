//go:build integration
// +build integration

package client_test

import (
	"context"
	"testing"
	"time"

	"github.com/kjstillabower/skycast/internal/models"
	"github.com/kjstillabower/skycast/internal/testhelpers"
)

func TestClient_FetchWeather_Integration(t *testing.T) {
	c, transport := testhelpers.SetupLiveClient(t, testhelpers.GetIntegrationConfig(t))
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	bundle, err := c.FetchWeather(ctx, 51.5, -0.12, models.UnitsMetric, "")
	if err != nil {
		t.Fatalf("FetchWeather() error = %v", err)
	}
	if len(bundle.Hourly) == 0 || len(bundle.Daily) == 0 {
		t.Errorf("FetchWeather() hourly=%d daily=%d, want both non-empty", len(bundle.Hourly), len(bundle.Daily))
	}

	// second call is answered from the HTTP cache
	if _, err := c.FetchWeather(ctx, 51.5, -0.12, models.UnitsMetric, ""); err != nil {
		t.Fatalf("cached FetchWeather() error = %v", err)
	}
	transport.Wait()
}

func TestClient_SearchPlaces_Integration(t *testing.T) {
	c, _ := testhelpers.SetupLiveClient(t, testhelpers.GetIntegrationConfig(t))
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	places, err := c.SearchPlaces(ctx, "Berlin", 0, "")
	if err != nil {
		t.Fatalf("SearchPlaces() error = %v", err)
	}
	if len(places) == 0 {
		t.Fatal("SearchPlaces() returned no places for Berlin")
	}
	if places[0].ID != models.LocationID(places[0].Latitude, places[0].Longitude) {
		t.Errorf("place id %q not derived from coordinates", places[0].ID)
	}
}
