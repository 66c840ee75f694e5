package models

import "time"

// CurrentWeather is the "now" block of a forecast bundle.
type CurrentWeather struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	WindSpeed   float64 `json:"windSpeed"`
}

// HourlyPoint is one forecast hour. Points are ordered ascending by Time.
type HourlyPoint struct {
	Time        string  `json:"time"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	WindSpeed   float64 `json:"windSpeed"`
}

// DailyPoint is one forecast day. Points are ordered ascending by Date.
type DailyPoint struct {
	Date          string  `json:"date"`
	TMax          float64 `json:"tMax"`
	TMin          float64 `json:"tMin"`
	Precipitation float64 `json:"precipitation"`
	UVIndex       float64 `json:"uvIndex"`
}

// WeatherBundle is the full current+hourly+daily payload for one location, unit system and fetch.
// UpdatedAt is the local fetch completion time, never the provider's report time.
// Bundles are replaced wholesale by later fetches and never patched.
type WeatherBundle struct {
	Current   CurrentWeather `json:"current"`
	Hourly    []HourlyPoint  `json:"hourly"`
	Daily     []DailyPoint   `json:"daily"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// AlertItem is a severe-weather alert. Held in memory only, never persisted.
type AlertItem struct {
	Event    string `json:"event"`
	Severity string `json:"severity,omitempty"`
	Onset    string `json:"onset,omitempty"`
	Expires  string `json:"expires,omitempty"`
	Headline string `json:"headline,omitempty"`
}
