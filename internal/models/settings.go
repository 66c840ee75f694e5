package models

import (
	"fmt"
	"strings"
)

// UnitSystem selects the measurement units requested from the provider.
// A bundle fetched in one unit system is never reused for the other.
type UnitSystem string

const (
	UnitsMetric   UnitSystem = "metric"
	UnitsImperial UnitSystem = "imperial"
)

// ParseUnitSystem accepts "metric" or "imperial" (case-insensitive).
func ParseUnitSystem(s string) (UnitSystem, error) {
	switch UnitSystem(strings.ToLower(strings.TrimSpace(s))) {
	case UnitsMetric:
		return UnitsMetric, nil
	case UnitsImperial:
		return UnitsImperial, nil
	}
	return "", fmt.Errorf("unknown unit system %q", s)
}

// Theme is the light/dark display preference.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Toggle returns the other theme.
func (t Theme) Toggle() Theme {
	if t == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}

// View selects the hourly or daily forecast list.
type View string

const (
	ViewHourly View = "hourly"
	ViewDaily  View = "daily"
)

// ParseView accepts "hourly" or "daily" (case-insensitive).
func ParseView(s string) (View, error) {
	switch View(strings.ToLower(strings.TrimSpace(s))) {
	case ViewHourly:
		return ViewHourly, nil
	case ViewDaily:
		return ViewDaily, nil
	}
	return "", fmt.Errorf("unknown view %q", s)
}

// Settings holds user preferences. Mutated only by explicit user action.
type Settings struct {
	Theme                Theme      `json:"theme"`
	Units                UnitSystem `json:"units"`
	View                 View       `json:"view"`
	NotificationsEnabled bool       `json:"notificationsEnabled"`
}

// DefaultSettings returns the settings used before the user changes anything.
func DefaultSettings() Settings {
	return Settings{
		Theme: ThemeLight,
		Units: UnitsMetric,
		View:  ViewHourly,
	}
}

// Normalize replaces unknown or empty fields with their defaults.
func (s Settings) Normalize() Settings {
	def := DefaultSettings()
	if s.Theme != ThemeLight && s.Theme != ThemeDark {
		s.Theme = def.Theme
	}
	if s.Units != UnitsMetric && s.Units != UnitsImperial {
		s.Units = def.Units
	}
	if s.View != ViewHourly && s.View != ViewDaily {
		s.View = def.View
	}
	return s
}
