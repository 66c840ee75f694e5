package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/kjstillabower/skycast/internal/models"
)

const (
	currentFields = "temperature_2m,relative_humidity_2m,wind_speed_10m"
	hourlyFields  = "temperature_2m,relative_humidity_2m,wind_speed_10m"
	dailyFields   = "temperature_2m_max,temperature_2m_min,uv_index_max,precipitation_sum"
)

// forecastResponse mirrors the parts of /v1/forecast we request. Blocks are pointers and axes
// are slices so a missing block or array is distinguishable from an empty one. JSON nulls
// inside an axis decode as 0.
type forecastResponse struct {
	Current *struct {
		Temperature float64 `json:"temperature_2m"`
		Humidity    float64 `json:"relative_humidity_2m"`
		WindSpeed   float64 `json:"wind_speed_10m"`
	} `json:"current"`
	Hourly *struct {
		Time        []string  `json:"time"`
		Temperature []float64 `json:"temperature_2m"`
		Humidity    []float64 `json:"relative_humidity_2m"`
		WindSpeed   []float64 `json:"wind_speed_10m"`
	} `json:"hourly"`
	Daily *struct {
		Time          []string  `json:"time"`
		TMax          []float64 `json:"temperature_2m_max"`
		TMin          []float64 `json:"temperature_2m_min"`
		UVIndex       []float64 `json:"uv_index_max"`
		Precipitation []float64 `json:"precipitation_sum"`
	} `json:"daily"`
}

func unitParams(units models.UnitSystem) (temperature, windSpeed string) {
	if units == models.UnitsImperial {
		return "fahrenheit", "mph"
	}
	return "celsius", "kmh"
}

// FetchWeather fetches current, hourly and daily data for a point. An empty timezone means "auto".
// A non-success status is a *FetchError; a malformed payload is models.ErrDecode or
// models.ErrLengthMismatch. UpdatedAt is stamped with the local clock on success.
func (c *Client) FetchWeather(ctx context.Context, lat, lon float64, units models.UnitSystem, timezone string) (models.WeatherBundle, error) {
	if timezone == "" {
		timezone = "auto"
	}
	temperatureUnit, windSpeedUnit := unitParams(units)
	params := url.Values{}
	params.Set("latitude", coord(lat))
	params.Set("longitude", coord(lon))
	params.Set("timezone", timezone)
	params.Set("current", currentFields)
	params.Set("hourly", hourlyFields)
	params.Set("daily", dailyFields)
	params.Set("temperature_unit", temperatureUnit)
	params.Set("wind_speed_unit", windSpeedUnit)

	status, body, err := c.get(ctx, endpointForecast, c.forecastURL, params)
	if err != nil {
		return models.WeatherBundle{}, err
	}
	if !isSuccess(status) {
		return models.WeatherBundle{}, c.fail(endpointForecast, &FetchError{Op: endpointForecast, StatusCode: status})
	}

	var apiResp forecastResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.WeatherBundle{}, c.fail(endpointForecast, fmt.Errorf("%w: parse forecast: %v", models.ErrDecode, err))
	}
	bundle, err := mapForecast(apiResp)
	if err != nil {
		return models.WeatherBundle{}, c.fail(endpointForecast, err)
	}
	bundle.UpdatedAt = c.now()
	return bundle, nil
}

func mapForecast(r forecastResponse) (models.WeatherBundle, error) {
	if r.Current == nil || r.Hourly == nil || r.Daily == nil {
		return models.WeatherBundle{}, fmt.Errorf("%w: forecast is missing current, hourly or daily", models.ErrDecode)
	}

	h := r.Hourly
	if err := checkAxes("hourly", h.Time, map[string][]float64{
		"temperature_2m":       h.Temperature,
		"relative_humidity_2m": h.Humidity,
		"wind_speed_10m":       h.WindSpeed,
	}); err != nil {
		return models.WeatherBundle{}, err
	}
	hourly := make([]models.HourlyPoint, len(h.Time))
	for i, t := range h.Time {
		hourly[i] = models.HourlyPoint{
			Time:        t,
			Temperature: h.Temperature[i],
			Humidity:    h.Humidity[i],
			WindSpeed:   h.WindSpeed[i],
		}
	}

	d := r.Daily
	if err := checkAxes("daily", d.Time, map[string][]float64{
		"temperature_2m_max": d.TMax,
		"temperature_2m_min": d.TMin,
		"uv_index_max":       d.UVIndex,
		"precipitation_sum":  d.Precipitation,
	}); err != nil {
		return models.WeatherBundle{}, err
	}
	daily := make([]models.DailyPoint, len(d.Time))
	for i, date := range d.Time {
		daily[i] = models.DailyPoint{
			Date:          date,
			TMax:          d.TMax[i],
			TMin:          d.TMin[i],
			Precipitation: d.Precipitation[i],
			UVIndex:       d.UVIndex[i],
		}
	}

	return models.WeatherBundle{
		Current: models.CurrentWeather{
			Temperature: r.Current.Temperature,
			Humidity:    r.Current.Humidity,
			WindSpeed:   r.Current.WindSpeed,
		},
		Hourly: hourly,
		Daily:  daily,
	}, nil
}

// checkAxes requires the time axis and every value axis to be present and equally long.
func checkAxes(block string, times []string, values map[string][]float64) error {
	if times == nil {
		return fmt.Errorf("%w: %s.time missing", models.ErrDecode, block)
	}
	for name, v := range values {
		if v == nil {
			return fmt.Errorf("%w: %s.%s missing", models.ErrDecode, block, name)
		}
		if len(v) != len(times) {
			return fmt.Errorf("%w: %s.%s has %d values for %d times", models.ErrLengthMismatch, block, name, len(v), len(times))
		}
	}
	return nil
}
