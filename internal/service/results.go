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
	"github.com/singletrack/race-control/internal/timeutil"
)

// StandingsPublisher pushes a fresh standings snapshot to live watchers.
// Optional: a nil publisher disables the feed without touching the lifecycle.
type StandingsPublisher interface {
	BroadcastStandings(raceID uuid.UUID, standings *LiveStandings)
}

// ResultService drives each rider's result lifecycle: registered → started →
// finished/dnf/dsq. Elapsed time is always derived from the stored mass-start
// instant, never accepted as input.
type ResultService struct {
	races     repository.RaceRepository
	results   repository.ResultRepository
	riders    repository.RiderRepository
	standings *StandingsService
	publisher StandingsPublisher
	logger    *logrus.Logger
	audit     *applogger.AuditLogger
	now       func() time.Time
}

// NewResultService creates a new result lifecycle service
func NewResultService(
	races repository.RaceRepository,
	results repository.ResultRepository,
	riders repository.RiderRepository,
	standings *StandingsService,
	publisher StandingsPublisher,
	logger *logrus.Logger,
	audit *applogger.AuditLogger,
) *ResultService {
	return &ResultService{
		races:     races,
		results:   results,
		riders:    riders,
		standings: standings,
		publisher: publisher,
		logger:    logger,
		audit:     audit,
		now:       time.Now,
	}
}

// FinishedRider is a finish event's enriched outcome: the updated result,
// its freshly assigned rank, and the display-ready elapsed time.
type FinishedRider struct {
	Result        *models.Result `json:"result"`
	Position      int            `json:"position"`
	FormattedTime *string        `json:"formatted_time"`
}

// Register creates the unique result row for a (race, rider) pair. Entries
// are accepted only while the race is open, matching the canRegister
// annotation NotInRace reports.
func (s *ResultService) Register(ctx context.Context, raceID, riderID uuid.UUID) (*models.Result, error) {
	race, err := s.races.GetByID(ctx, raceID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrRaceNotFound
		}
		return nil, fmt.Errorf("failed to get race: %w", err)
	}
	if race.Status != models.RaceStatusOpen {
		return nil, models.ErrRegistrationClosed
	}

	if _, err := s.riders.GetByID(ctx, riderID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrRiderNotFound
		}
		return nil, fmt.Errorf("failed to get rider: %w", err)
	}

	result := &models.Result{
		ID:      uuid.New(),
		RaceID:  raceID,
		RiderID: riderID,
		Status:  models.ResultStatusRegistered,
	}

	if err := s.results.Create(ctx, result); err != nil {
		if errors.Is(err, models.ErrDuplicateKey) {
			return nil, models.ErrAlreadyRegistered
		}
		return nil, fmt.Errorf("failed to create result: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"race_id":  raceID,
		"rider_id": riderID,
	}).Info("Rider registered")

	metrics.RegistrationsTotal.Inc()

	return result, nil
}

// FinishRider records an individual finish. The store-level compare-and-swap
// against status=started makes finishing exactly-once: a second attempt finds
// no started result and fails with the same not-started reason. The full race
// ranking is recomputed afterwards, and the result comes back enriched with
// its new position and a formatted time.
func (s *ResultService) FinishRider(ctx context.Context, raceID, riderID uuid.UUID) (*FinishedRider, error) {
	finishTime := s.now().UTC()

	result, err := s.results.FinishStarted(ctx, raceID, riderID, finishTime)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrRiderNotStarted
	}
	if err != nil {
		return nil, fmt.Errorf("failed to finish rider: %w", err)
	}

	ranks, err := s.standings.RecomputePositions(ctx, raceID)
	if err != nil {
		return nil, fmt.Errorf("failed to recompute positions: %w", err)
	}

	position := ranks[result.ID]
	result.Position = &position

	s.logger.WithFields(logrus.Fields{
		"race_id":    raceID,
		"rider_id":   riderID,
		"total_time": result.GetTotalTime(),
		"position":   position,
	}).Info("Rider finished")

	metrics.RidersFinishedTotal.Inc()

	s.publishStandings(ctx, raceID)

	return &FinishedRider{
		Result:        result,
		Position:      position,
		FormattedTime: timeutil.FormatSecondsPtr(result.TotalTime),
	}, nil
}

// SetStatus applies an administrative override, typically DNF or DSQ. For
// DNF/DSQ the withdrawal instant is recorded as finishTime, and the store
// clears totalTime and position since a non-finish has no elapsed time or
// rank. Notes are stored verbatim and double as the DNF/DSQ reason key for
// aggregation.
func (s *ResultService) SetStatus(ctx context.Context, raceID, riderID uuid.UUID, status models.ResultStatus, notes *string) (*models.Result, error) {
	if !status.Valid() {
		return nil, models.ErrInvalidResultStatus
	}

	var finishTime *time.Time
	if status == models.ResultStatusDNF || status == models.ResultStatusDSQ {
		t := s.now().UTC()
		finishTime = &t
	}

	result, err := s.results.SetStatus(ctx, raceID, riderID, status, finishTime, notes)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set result status: %w", err)
	}

	// An override can demote a finished result, so the remaining finishers
	// must close ranks right away rather than on the next finish event.
	if _, err := s.standings.RecomputePositions(ctx, raceID); err != nil {
		return nil, fmt.Errorf("failed to recompute positions: %w", err)
	}

	s.audit.LogResultOverride(raceID.String(), riderID.String(), string(status), result.GetNotes())
	metrics.StatusOverridesTotal.WithLabelValues(string(status)).Inc()

	s.publishStandings(ctx, raceID)

	return result, nil
}

func (s *ResultService) publishStandings(ctx context.Context, raceID uuid.UUID) {
	if s.publisher == nil {
		return
	}

	standings, err := s.standings.Live(ctx, raceID)
	if err != nil {
		s.logger.WithError(err).WithField("race_id", raceID).Warn("Failed to build standings for broadcast")
		return
	}

	s.publisher.BroadcastStandings(raceID, standings)
}
