package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
)

// LocationInfo is the upstream-reported location block. Coordinates are
// kept as json.Number so the caller decides whether they parse into a
// stable high-precision numeric form.
type LocationInfo struct {
	Name string      `json:"name"`
	Lat  json.Number `json:"lat"`
	Lon  json.Number `json:"lon"`
}

// DaySummary holds the per-day aggregate metrics WeatherAPI reports.
// Pointers distinguish "absent" from a genuine zero.
type DaySummary struct {
	AvgTempC    *float64 `json:"avgtemp_c"`
	AvgHumidity *float64 `json:"avghumidity"`
	UV          *float64 `json:"uv"`
	MaxWindKPH  *float64 `json:"maxwind_kph"`
	Condition   struct {
		Text string `json:"text"`
	} `json:"condition"`
}

// Hour is a single hourly entry inside a forecast day.
type Hour struct {
	TimeEpoch    int64   `json:"time_epoch"`
	TempC        float64 `json:"temp_c"`
	Humidity     float64 `json:"humidity"`
	WindKPH      float64 `json:"wind_kph"`
	UV           float64 `json:"uv"`
	PrecipMM     float64 `json:"precip_mm"`
	ChanceOfRain float64 `json:"chance_of_rain"`
	Condition    struct {
		Text string `json:"text"`
	} `json:"condition"`
}

// Day is one forecastday entry, either historical or predicted.
type Day struct {
	Date string     `json:"date"`
	Day  DaySummary `json:"day"`
	Hour []Hour     `json:"hour"`
}

// Response is the decoded envelope of a history or forecast call.
type Response struct {
	Location LocationInfo
	Days     []Day
}

// Coordinates parses the upstream lat/lon strings into float64s.
func (r *Response) Coordinates() (float64, float64, error) {
	lat, err := strconv.ParseFloat(r.Location.Lat.String(), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("latitude %q: %w", r.Location.Lat.String(), err)
	}
	lon, err := strconv.ParseFloat(r.Location.Lon.String(), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("longitude %q: %w", r.Location.Lon.String(), err)
	}
	return lat, lon, nil
}

// Client calls the WeatherAPI.com history and forecast endpoints with
// seconds-scale timeouts, retries and a circuit breaker.
type Client struct {
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

// NewClient creates a WeatherAPI client. baseURL has no trailing slash,
// e.g. "https://api.weatherapi.com/v1".
func NewClient(client *http.Client, apiKey, baseURL string) *Client {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "weatherapi",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpCfg: HTTPClientConfig{
			Client: client,
			Backoff: BackoffConfig{
				MaxRetries:      3,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		circuit: cb,
	}
}

// History fetches daily records for [start, end], both inclusive
// calendar days.
func (c *Client) History(ctx context.Context, query string, start, end time.Time) (*Response, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("dt", start.UTC().Format("2006-01-02"))
	params.Set("end_dt", end.UTC().Format("2006-01-02"))
	return c.call(ctx, "history", params)
}

// Forecast fetches a forward-looking window of the given number of days.
func (c *Client) Forecast(ctx context.Context, query string, days int) (*Response, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("days", strconv.Itoa(days))
	return c.call(ctx, "forecast", params)
}

func (c *Client) call(ctx context.Context, endpoint string, params url.Values) (*Response, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("weather api key is not configured")
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		for k, vs := range params {
			for _, v := range vs {
				values.Add(k, v)
			}
		}
		values.Set("key", c.apiKey)

		u := fmt.Sprintf("%s/%s.json?%s", c.baseURL, endpoint, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Location LocationInfo `json:"location"`
		Forecast struct {
			ForecastDay []Day `json:"forecastday"`
		} `json:"forecast"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", endpoint, err)
	}

	return &Response{
		Location: payload.Location,
		Days:     payload.Forecast.ForecastDay,
	}, nil
}
