package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Location is a named place. ID is derived from the coordinates and is the join key
// for saved locations and the freshness cache.
type Location struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Country   string  `json:"country,omitempty"`
}

// LocationID returns the stable "<lat>,<lon>" identifier using the shortest decimal form of each coordinate.
func LocationID(lat, lon float64) string {
	return formatCoord(lat) + "," + formatCoord(lon)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// NewLocation builds a Location with its ID derived from lat/lon.
func NewLocation(name string, lat, lon float64, country string) Location {
	return Location{
		ID:        LocationID(lat, lon),
		Name:      name,
		Latitude:  lat,
		Longitude: lon,
		Country:   country,
	}
}

// DisplayName joins a place name with its optional region and country code, skipping empty parts.
func DisplayName(name, region, countryCode string) string {
	parts := []string{name}
	if strings.TrimSpace(region) != "" {
		parts = append(parts, region)
	}
	if strings.TrimSpace(countryCode) != "" {
		parts = append(parts, countryCode)
	}
	return strings.Join(parts, ", ")
}

// Coordinates formats the location for display when no name is known.
func (l Location) Coordinates() string {
	return fmt.Sprintf("%.2f, %.2f", l.Latitude, l.Longitude)
}
