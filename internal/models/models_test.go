package models

import "testing"

func TestLocationID(t *testing.T) {
	tests := []struct {
		lat, lon float64
		want     string
	}{
		{-26.20227, 28.04363, "-26.20227,28.04363"},
		{51.5, -0.12, "51.5,-0.12"},
		{0, 0, "0,0"},
		{10, 20, "10,20"},
	}
	for _, tt := range tests {
		if got := LocationID(tt.lat, tt.lon); got != tt.want {
			t.Errorf("LocationID(%v, %v) = %q, want %q", tt.lat, tt.lon, got, tt.want)
		}
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name, region, country string
		want                  string
	}{
		{"London", "England", "GB", "London, England, GB"},
		{"London", "", "GB", "London, GB"},
		{"London", "England", "", "London, England"},
		{"Nowhere", "", "", "Nowhere"},
		{"Oslo", "  ", "NO", "Oslo, NO"},
	}
	for _, tt := range tests {
		if got := DisplayName(tt.name, tt.region, tt.country); got != tt.want {
			t.Errorf("DisplayName(%q, %q, %q) = %q, want %q", tt.name, tt.region, tt.country, got, tt.want)
		}
	}
}

func TestParseUnitSystem(t *testing.T) {
	for _, in := range []string{"metric", "METRIC", " imperial "} {
		if _, err := ParseUnitSystem(in); err != nil {
			t.Errorf("ParseUnitSystem(%q) error = %v", in, err)
		}
	}
	if _, err := ParseUnitSystem("kelvin"); err == nil {
		t.Error("ParseUnitSystem(kelvin) error = nil, want error")
	}
}

func TestSettings_Normalize(t *testing.T) {
	got := Settings{Theme: "neon", Units: "", View: ViewDaily, NotificationsEnabled: true}.Normalize()
	want := Settings{Theme: ThemeLight, Units: UnitsMetric, View: ViewDaily, NotificationsEnabled: true}
	if got != want {
		t.Errorf("Normalize() = %+v, want %+v", got, want)
	}
}

func TestTheme_Toggle(t *testing.T) {
	if ThemeLight.Toggle() != ThemeDark || ThemeDark.Toggle() != ThemeLight {
		t.Error("Toggle() should flip between light and dark")
	}
}
