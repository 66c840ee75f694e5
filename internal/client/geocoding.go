package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/kjstillabower/skycast/internal/models"
)

const (
	DefaultSearchCount    = 8
	DefaultSearchLanguage = "en"
)

type geocodingResult struct {
	Name        string  `json:"name"`
	Admin1      string  `json:"admin1"`
	CountryCode string  `json:"country_code"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

type geocodingResponse struct {
	Results []geocodingResult `json:"results"`
}

func (r geocodingResult) location() models.Location {
	return models.NewLocation(
		models.DisplayName(r.Name, r.Admin1, r.CountryCode),
		r.Latitude, r.Longitude, r.CountryCode,
	)
}

// SearchPlaces looks up places by name. count <= 0 and an empty language use the defaults.
// No matches is an empty list, not an error.
func (c *Client) SearchPlaces(ctx context.Context, query string, count int, language string) ([]models.Location, error) {
	if count <= 0 {
		count = DefaultSearchCount
	}
	if language == "" {
		language = DefaultSearchLanguage
	}
	params := url.Values{}
	params.Set("name", query)
	params.Set("count", strconv.Itoa(count))
	params.Set("language", language)
	params.Set("format", "json")

	status, body, err := c.get(ctx, endpointSearch, c.searchURL, params)
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		return nil, c.fail(endpointSearch, &FetchError{Op: endpointSearch, StatusCode: status})
	}

	var apiResp geocodingResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, c.fail(endpointSearch, fmt.Errorf("%w: parse search: %v", models.ErrDecode, err))
	}
	out := make([]models.Location, 0, len(apiResp.Results))
	for _, r := range apiResp.Results {
		out = append(out, r.location())
	}
	return out, nil
}

// ReverseGeocode names the place at a point. A non-success status or an empty result list
// reports ok=false with no error.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (models.Location, bool, error) {
	params := url.Values{}
	params.Set("latitude", coord(lat))
	params.Set("longitude", coord(lon))
	params.Set("language", DefaultSearchLanguage)
	params.Set("format", "json")

	status, body, err := c.get(ctx, endpointReverse, c.reverseURL, params)
	if err != nil {
		return models.Location{}, false, err
	}
	if !isSuccess(status) {
		return models.Location{}, false, nil
	}

	var apiResp geocodingResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.Location{}, false, c.fail(endpointReverse, fmt.Errorf("%w: parse reverse: %v", models.ErrDecode, err))
	}
	if len(apiResp.Results) == 0 {
		return models.Location{}, false, nil
	}
	return apiResp.Results[0].location(), true, nil
}
