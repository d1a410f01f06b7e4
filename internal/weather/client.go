package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/singletrack/race-control/internal/models"
)

// ClientConfig holds configuration for the weather HTTP client
type ClientConfig struct {
	BaseURL      string
	Timeout      time.Duration
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	RateLimit    float64 // requests per second
}

// DefaultClientConfig returns recommended defaults
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:      baseURL,
		Timeout:      10 * time.Second,
		MaxRetries:   3,
		RetryWaitMin: 100 * time.Millisecond,
		RetryWaitMax: 5 * time.Second,
		RateLimit:    5.0,
	}
}

// Client is an Open-Meteo style forecast API client with retries and
// client-side rate limiting.
type Client struct {
	baseURL string
	client  *retryablehttp.Client
	limiter *rate.Limiter
	logger  *logrus.Logger
}

// NewClient creates a new weather API client
func NewClient(cfg ClientConfig, logger *logrus.Logger) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Timeout = cfg.Timeout
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.Logger = nil

	return &Client{
		baseURL: cfg.BaseURL,
		client:  retryClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		logger:  logger,
	}
}

type currentResponse struct {
	Current struct {
		Temperature float64 `json:"temperature_2m"`
		Humidity    float64 `json:"relative_humidity_2m"`
		WindSpeed   float64 `json:"wind_speed_10m"`
		WeatherCode int     `json:"weather_code"`
	} `json:"current"`
}

type forecastResponse struct {
	Hourly struct {
		Time        []string  `json:"time"`
		Temperature []float64 `json:"temperature_2m"`
		Humidity    []float64 `json:"relative_humidity_2m"`
		WindSpeed   []float64 `json:"wind_speed_10m"`
		WeatherCode []int     `json:"weather_code"`
	} `json:"hourly"`
}

// Current returns the present conditions at the coordinates
func (c *Client) Current(ctx context.Context, lat, lon float64) (*models.WeatherSnapshot, error) {
	params := url.Values{}
	params.Set("latitude", fmt.Sprintf("%.4f", lat))
	params.Set("longitude", fmt.Sprintf("%.4f", lon))
	params.Set("current", "temperature_2m,relative_humidity_2m,wind_speed_10m,weather_code")

	body, err := c.get(ctx, "/forecast?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var parsed currentResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode current weather response: %w", err)
	}

	return &models.WeatherSnapshot{
		Temperature: parsed.Current.Temperature,
		Humidity:    parsed.Current.Humidity,
		WindSpeed:   parsed.Current.WindSpeed,
		Condition:   conditionFromCode(parsed.Current.WeatherCode),
		Forecast:    false,
		FetchedAt:   time.Now().UTC(),
	}, nil
}

// Forecast returns the hourly forecast entry closest to the target time
func (c *Client) Forecast(ctx context.Context, lat, lon float64, target time.Time) (*models.WeatherSnapshot, error) {
	day := target.UTC().Format("2006-01-02")

	params := url.Values{}
	params.Set("latitude", fmt.Sprintf("%.4f", lat))
	params.Set("longitude", fmt.Sprintf("%.4f", lon))
	params.Set("hourly", "temperature_2m,relative_humidity_2m,wind_speed_10m,weather_code")
	params.Set("start_date", day)
	params.Set("end_date", day)

	body, err := c.get(ctx, "/forecast?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var parsed forecastResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode forecast response: %w", err)
	}

	idx := -1
	var best time.Duration
	for i, ts := range parsed.Hourly.Time {
		entryTime, err := time.Parse("2006-01-02T15:04", ts)
		if err != nil {
			continue
		}
		diff := entryTime.Sub(target.UTC())
		if diff < 0 {
			diff = -diff
		}
		if idx == -1 || diff < best {
			idx = i
			best = diff
		}
	}

	if idx == -1 || idx >= len(parsed.Hourly.Temperature) {
		return nil, ErrNoForecast
	}

	snap := &models.WeatherSnapshot{
		Temperature: parsed.Hourly.Temperature[idx],
		Forecast:    true,
		FetchedAt:   time.Now().UTC(),
	}
	if idx < len(parsed.Hourly.Humidity) {
		snap.Humidity = parsed.Hourly.Humidity[idx]
	}
	if idx < len(parsed.Hourly.WindSpeed) {
		snap.WindSpeed = parsed.Hourly.WindSpeed[idx]
	}
	if idx < len(parsed.Hourly.WeatherCode) {
		snap.Condition = conditionFromCode(parsed.Hourly.WeatherCode[idx])
	}

	return snap, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build weather request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read weather response: %w", err)
	}

	return body, nil
}

// conditionFromCode maps WMO weather interpretation codes to display strings
func conditionFromCode(code int) string {
	switch {
	case code == 0:
		return "Clear"
	case code <= 3:
		return "Partly cloudy"
	case code == 45 || code == 48:
		return "Fog"
	case code >= 51 && code <= 57:
		return "Drizzle"
	case code >= 61 && code <= 67:
		return "Rain"
	case code >= 71 && code <= 77:
		return "Snow"
	case code >= 80 && code <= 82:
		return "Rain showers"
	case code >= 95:
		return "Thunderstorm"
	default:
		return "Unknown"
	}
}

// RoundCoord rounds a coordinate for cache keying; ~100 m of precision is
// plenty for weather lookups.
func RoundCoord(v float64) float64 {
	return math.Round(v*1000) / 1000
}
