package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/kjstillabower/skycast/internal/models"
)

type alertsResponse struct {
	Alerts []models.AlertItem `json:"alerts"`
}

// FetchAlerts returns active warnings for a point. A non-success status yields an empty list
// and no error. Transport and decode failures are returned; callers treat them as "no change".
func (c *Client) FetchAlerts(ctx context.Context, lat, lon float64, timezone string) ([]models.AlertItem, error) {
	if timezone == "" {
		timezone = "auto"
	}
	params := url.Values{}
	params.Set("latitude", coord(lat))
	params.Set("longitude", coord(lon))
	params.Set("timezone", timezone)

	status, body, err := c.get(ctx, endpointAlerts, c.alertsURL, params)
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		return []models.AlertItem{}, nil
	}

	var apiResp alertsResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, c.fail(endpointAlerts, fmt.Errorf("%w: parse alerts: %v", models.ErrDecode, err))
	}
	if apiResp.Alerts == nil {
		return []models.AlertItem{}, nil
	}
	return apiResp.Alerts, nil
}
