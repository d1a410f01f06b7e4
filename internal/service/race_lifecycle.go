// Package service implements the race-result state machine and the
// live-standings/ranking engine on top of the repository layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	applogger "github.com/singletrack/race-control/internal/logger"
	"github.com/singletrack/race-control/internal/metrics"
	"github.com/singletrack/race-control/internal/models"
	"github.com/singletrack/race-control/internal/repository"
)

// RaceService drives the race lifecycle: draft → open → in_progress →
// completed, with cancelled reachable from any pre-completed state.
type RaceService struct {
	races   repository.RaceRepository
	results repository.ResultRepository
	logger  *logrus.Logger
	audit   *applogger.AuditLogger
	now     func() time.Time
}

// NewRaceService creates a new race lifecycle service
func NewRaceService(
	races repository.RaceRepository,
	results repository.ResultRepository,
	logger *logrus.Logger,
	audit *applogger.AuditLogger,
) *RaceService {
	return &RaceService{
		races:   races,
		results: results,
		logger:  logger,
		audit:   audit,
		now:     time.Now,
	}
}

// StartCheck reports whether a race may be started, with a display-ready
// reason when it may not.
type StartCheck struct {
	CanStart bool    `json:"can_start"`
	Reason   *string `json:"reason"`
}

func blocked(reason string) *StartCheck {
	return &StartCheck{CanStart: false, Reason: &reason}
}

// StartOutcome describes a successful race start
type StartOutcome struct {
	Race          *models.Race `json:"race"`
	RidersStarted int64        `json:"riders_started"`
	MassStartTime time.Time    `json:"mass_start_time"`
}

// Create persists a new race in draft status
func (s *RaceService) Create(ctx context.Context, race *models.Race) error {
	if race.ID == uuid.Nil {
		race.ID = uuid.New()
	}
	race.Status = models.RaceStatusDraft

	if err := s.races.Create(ctx, race); err != nil {
		return fmt.Errorf("failed to create race: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"race_id": race.ID,
		"name":    race.Name,
	}).Info("Race created")

	return nil
}

// Get retrieves a race by id
func (s *RaceService) Get(ctx context.Context, raceID uuid.UUID) (*models.Race, error) {
	race, err := s.races.GetByID(ctx, raceID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrRaceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get race: %w", err)
	}
	return race, nil
}

// List retrieves races with a total count
func (s *RaceService) List(ctx context.Context, limit, offset int) ([]*models.Race, int64, error) {
	return s.races.List(ctx, limit, offset)
}

// Update applies administrative attribute changes to a race
func (s *RaceService) Update(ctx context.Context, race *models.Race) error {
	err := s.races.Update(ctx, race)
	if errors.Is(err, models.ErrNotFound) {
		return models.ErrRaceNotFound
	}
	return err
}

// Delete removes a race and, via the store, its results
func (s *RaceService) Delete(ctx context.Context, raceID uuid.UUID) error {
	err := s.races.Delete(ctx, raceID)
	if errors.Is(err, models.ErrNotFound) {
		return models.ErrRaceNotFound
	}
	return err
}

// Open publishes a draft race for registration
func (s *RaceService) Open(ctx context.Context, raceID uuid.UUID) (*models.Race, error) {
	race, err := s.races.TransitionStatus(ctx, raceID, models.RaceStatusDraft, models.RaceStatusOpen)
	if errors.Is(err, models.ErrNotFound) {
		if _, getErr := s.races.GetByID(ctx, raceID); errors.Is(getErr, models.ErrNotFound) {
			return nil, models.ErrRaceNotFound
		}
		return nil, models.NewDomainError(models.KindInvalidTransition, "Only draft races can be opened")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open race: %w", err)
	}

	s.audit.LogRaceTransition(raceID.String(), string(models.RaceStatusDraft), string(models.RaceStatusOpen), s.now())
	s.logger.WithField("race_id", raceID).Info("Race opened for registration")

	return race, nil
}

// CloseRegistration closes an open race to further entries. A closed race
// cannot be started until reopened.
func (s *RaceService) CloseRegistration(ctx context.Context, raceID uuid.UUID) (*models.Race, error) {
	race, err := s.races.TransitionStatus(ctx, raceID, models.RaceStatusOpen, models.RaceStatusClosed)
	if errors.Is(err, models.ErrNotFound) {
		if _, getErr := s.races.GetByID(ctx, raceID); errors.Is(getErr, models.ErrNotFound) {
			return nil, models.ErrRaceNotFound
		}
		return nil, models.NewDomainError(models.KindInvalidTransition, "Only open races can be closed")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to close race registration: %w", err)
	}

	s.audit.LogRaceTransition(raceID.String(), string(models.RaceStatusOpen), string(models.RaceStatusClosed), s.now())
	s.logger.WithField("race_id", raceID).Info("Race registration closed")

	return race, nil
}

// CanStart checks the start preconditions in order and fails closed: the
// race must exist, must be open, and unless manually overridden its
// scheduled start must have arrived. A manual override lets an official
// force an early start but never bypasses the open-status check.
func (s *RaceService) CanStart(ctx context.Context, raceID uuid.UUID, manualOverride bool) (*StartCheck, error) {
	race, err := s.races.GetByID(ctx, raceID)
	if errors.Is(err, models.ErrNotFound) {
		return blocked(models.ErrRaceNotFound.Reason), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get race: %w", err)
	}

	if race.Status != models.RaceStatusOpen {
		return blocked(models.ErrRaceNotOpen.Reason), nil
	}

	if !manualOverride {
		now := s.now()
		if race.StartTime.After(now) {
			minutes := int64(math.Round(race.StartTime.Sub(now).Minutes()))
			return blocked(fmt.Sprintf("Race starts in %d minute(s)", minutes)), nil
		}
	}

	return &StartCheck{CanStart: true}, nil
}

// Start begins a race. A draft race is first auto-promoted to open, then the
// open-status precondition is re-checked with the time gate overridden. On
// success the race moves to in_progress with start_time overwritten by the
// mass-start instant, and every registered result is bulk-transitioned to
// started carrying that same instant. This is the single synchronization
// point that makes all riders' elapsed times comparable.
func (s *RaceService) Start(ctx context.Context, raceID uuid.UUID) (*StartOutcome, error) {
	race, err := s.races.GetByID(ctx, raceID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrRaceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get race: %w", err)
	}

	// A previous start may have flipped the race but failed before the bulk
	// rider transition completed. Resume it with the stored mass-start
	// instant so every rider still shares one clock.
	if race.Status == models.RaceStatusInProgress {
		return s.resumeMassStart(ctx, race)
	}

	if race.Status == models.RaceStatusDraft {
		promoted, err := s.races.TransitionStatus(ctx, raceID, models.RaceStatusDraft, models.RaceStatusOpen)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("failed to open race: %w", err)
		}
		if promoted != nil {
			race = promoted
			s.audit.LogRaceTransition(raceID.String(), string(models.RaceStatusDraft), string(models.RaceStatusOpen), s.now())
			s.logger.WithField("race_id", raceID).Info("Draft race auto-promoted to open")
		}
	}

	check, err := s.CanStart(ctx, raceID, true)
	if err != nil {
		return nil, err
	}
	if !check.CanStart {
		return nil, models.NewDomainError(models.KindInvalidTransition, *check.Reason)
	}

	massStart := s.now().UTC()

	started, err := s.races.StartInProgress(ctx, raceID, massStart)
	if errors.Is(err, models.ErrNotFound) {
		// Lost to a concurrent start; the guarded update found no open race
		return nil, models.ErrRaceNotOpen
	}
	if err != nil {
		return nil, fmt.Errorf("failed to start race: %w", err)
	}

	ridersStarted, err := s.results.MassStart(ctx, raceID, massStart)
	if err != nil {
		return nil, fmt.Errorf("failed to mass start riders: %w", err)
	}

	s.audit.LogRaceTransition(raceID.String(), string(models.RaceStatusOpen), string(models.RaceStatusInProgress), massStart)
	s.audit.LogMassStart(raceID.String(), ridersStarted, massStart)
	s.logger.WithFields(logrus.Fields{
		"race_id":         raceID,
		"riders_started":  ridersStarted,
		"mass_start_time": massStart,
	}).Info("Race started")

	metrics.RacesStartedTotal.Inc()
	metrics.RidersStartedTotal.Add(float64(ridersStarted))
	metrics.RacesInProgress.Inc()

	return &StartOutcome{
		Race:          started,
		RidersStarted: ridersStarted,
		MassStartTime: massStart,
	}, nil
}

// resumeMassStart re-runs the bulk rider transition for a race that is
// already in_progress. StartTime holds the original mass-start instant once
// the race flips, so a resumed run hands the stragglers the identical
// timestamp. A race with no registered riders left is simply already started.
func (s *RaceService) resumeMassStart(ctx context.Context, race *models.Race) (*StartOutcome, error) {
	ridersStarted, err := s.results.MassStart(ctx, race.ID, race.StartTime)
	if err != nil {
		return nil, fmt.Errorf("failed to mass start riders: %w", err)
	}
	if ridersStarted == 0 {
		return nil, models.ErrRaceNotOpen
	}

	s.audit.LogMassStart(race.ID.String(), ridersStarted, race.StartTime)
	s.logger.WithFields(logrus.Fields{
		"race_id":         race.ID,
		"riders_started":  ridersStarted,
		"mass_start_time": race.StartTime,
	}).Warn("Resumed interrupted mass start")

	metrics.RidersStartedTotal.Add(float64(ridersStarted))

	return &StartOutcome{
		Race:          race,
		RidersStarted: ridersStarted,
		MassStartTime: race.StartTime,
	}, nil
}

// Finish completes an in-progress race, stamping its end time
func (s *RaceService) Finish(ctx context.Context, raceID uuid.UUID) (*models.Race, error) {
	endTime := s.now().UTC()

	race, err := s.races.FinishCompleted(ctx, raceID, endTime)
	if errors.Is(err, models.ErrNotFound) {
		// Distinguish an absent race from one in the wrong status
		if _, getErr := s.races.GetByID(ctx, raceID); errors.Is(getErr, models.ErrNotFound) {
			return nil, models.ErrRaceNotFound
		}
		return nil, models.ErrRaceNotInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("failed to finish race: %w", err)
	}

	s.audit.LogRaceTransition(raceID.String(), string(models.RaceStatusInProgress), string(models.RaceStatusCompleted), endTime)
	s.logger.WithField("race_id", raceID).Info("Race finished")

	metrics.RacesFinishedTotal.Inc()
	metrics.RacesInProgress.Dec()

	return race, nil
}

// Cancel withdraws any pre-completed race
func (s *RaceService) Cancel(ctx context.Context, raceID uuid.UUID) (*models.Race, error) {
	race, err := s.races.Cancel(ctx, raceID)
	if errors.Is(err, models.ErrNotFound) {
		if _, getErr := s.races.GetByID(ctx, raceID); errors.Is(getErr, models.ErrNotFound) {
			return nil, models.ErrRaceNotFound
		}
		return nil, models.ErrRaceAlreadyOver
	}
	if err != nil {
		return nil, fmt.Errorf("failed to cancel race: %w", err)
	}

	s.audit.LogRaceTransition(raceID.String(), "", string(models.RaceStatusCancelled), s.now())
	s.logger.WithField("race_id", raceID).Warn("Race cancelled")

	return race, nil
}
