// Package weather provides the weather provider used to stamp race
// documents with current conditions or a start-time forecast.
package weather

import (
	"context"
	"errors"
	"time"

	"github.com/singletrack/race-control/internal/models"
)

// ErrNoForecast is returned when no forecast entry covers the target time
var ErrNoForecast = errors.New("no forecast available for target time")

// Provider defines the interface for weather lookups by coordinates
type Provider interface {
	// Current returns the present conditions at the coordinates.
	Current(ctx context.Context, lat, lon float64) (*models.WeatherSnapshot, error)

	// Forecast returns the forecast entry closest to the target time.
	Forecast(ctx context.Context, lat, lon float64, target time.Time) (*models.WeatherSnapshot, error)
}
