package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	applogger "github.com/singletrack/race-control/internal/logger"
	"github.com/singletrack/race-control/internal/metrics"
	"github.com/singletrack/race-control/internal/models"
	"github.com/singletrack/race-control/internal/repository"
	"github.com/singletrack/race-control/internal/weather"
)

// imminentWindow is how close to the gun a race must be before we stop
// asking for a forecast and record current conditions instead.
const imminentWindow = 2 * time.Hour

// WeatherService attaches weather snapshots to races
type WeatherService struct {
	races    repository.RaceRepository
	provider weather.Provider
	logger   *logrus.Logger
	audit    *applogger.AuditLogger
	now      func() time.Time
}

// NewWeatherService creates a new weather refresh service
func NewWeatherService(
	races repository.RaceRepository,
	provider weather.Provider,
	logger *logrus.Logger,
	audit *applogger.AuditLogger,
) *WeatherService {
	return &WeatherService{
		races:    races,
		provider: provider,
		logger:   logger,
		audit:    audit,
		now:      time.Now,
	}
}

// RefreshRaceWeather fetches a fresh snapshot for a race and stores it on the
// race row. Races at or near their start time get current conditions; races
// further out get the forecast for their start hour. Races without
// coordinates cannot be refreshed.
func (s *WeatherService) RefreshRaceWeather(ctx context.Context, raceID uuid.UUID) (*models.WeatherSnapshot, error) {
	race, err := s.races.GetByID(ctx, raceID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrRaceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get race: %w", err)
	}

	if !race.HasCoordinates() {
		return nil, models.ErrNoCoordinates
	}

	lat, lon := *race.Latitude, *race.Longitude

	var snap *models.WeatherSnapshot
	if race.StartTime.Before(s.now().Add(imminentWindow)) {
		snap, err = s.provider.Current(ctx, lat, lon)
	} else {
		snap, err = s.provider.Forecast(ctx, lat, lon, race.StartTime)
	}
	if err != nil {
		metrics.WeatherRefreshErrorsTotal.Inc()
		return nil, fmt.Errorf("failed to fetch weather: %w", err)
	}

	if err := race.SetWeather(snap); err != nil {
		return nil, fmt.Errorf("failed to encode weather snapshot: %w", err)
	}

	if err := s.races.SetWeather(ctx, raceID, race.Weather); err != nil {
		return nil, fmt.Errorf("failed to store weather snapshot: %w", err)
	}

	metrics.WeatherRefreshesTotal.Inc()
	s.audit.LogWeatherRefresh(raceID.String(), snap.Condition, snap.Forecast)
	s.logger.WithFields(logrus.Fields{
		"race_id":   raceID,
		"condition": snap.Condition,
		"forecast":  snap.Forecast,
	}).Info("Race weather refreshed")

	return snap, nil
}

// RefreshUpcoming refreshes weather for every race starting inside the window
// that has coordinates. Individual failures are logged and skipped so one bad
// race does not starve the rest.
func (s *WeatherService) RefreshUpcoming(ctx context.Context, window time.Duration) (int, error) {
	races, err := s.races.GetUpcoming(ctx, window)
	if err != nil {
		return 0, fmt.Errorf("failed to list upcoming races: %w", err)
	}

	refreshed := 0
	for _, race := range races {
		if !race.HasCoordinates() {
			continue
		}
		if _, err := s.RefreshRaceWeather(ctx, race.ID); err != nil {
			s.logger.WithError(err).WithField("race_id", race.ID).Warn("Weather refresh failed, skipping race")
			continue
		}
		refreshed++
	}

	s.logger.WithFields(logrus.Fields{
		"window":    window.String(),
		"races":     len(races),
		"refreshed": refreshed,
	}).Info("Upcoming race weather refreshed")

	return refreshed, nil
}
