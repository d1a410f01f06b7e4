package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/singletrack/race-control/internal/models"
)

// PositionAssignment pairs a finished result with its computed rank.
// The whole race's finished set is applied as one unit.
type PositionAssignment struct {
	ResultID uuid.UUID
	Position int
}

// RaceRepository defines the interface for race data access
type RaceRepository interface {
	Create(ctx context.Context, race *models.Race) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Race, error)
	List(ctx context.Context, limit, offset int) ([]*models.Race, int64, error)
	GetUpcoming(ctx context.Context, within time.Duration) ([]*models.Race, error)
	GetByStatus(ctx context.Context, status models.RaceStatus) ([]*models.Race, error)
	Update(ctx context.Context, race *models.Race) error
	Delete(ctx context.Context, id uuid.UUID) error

	// TransitionStatus moves a race from one status to another, guarded by
	// the current status. Returns models.ErrNotFound when no race matched
	// both id and the expected status.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.RaceStatus) (*models.Race, error)

	// StartInProgress sets status=in_progress and overwrites start_time with
	// the mass-start instant, guarded by status=open.
	StartInProgress(ctx context.Context, id uuid.UUID, massStart time.Time) (*models.Race, error)

	// FinishCompleted sets status=completed and end_time, guarded by
	// status=in_progress.
	FinishCompleted(ctx context.Context, id uuid.UUID, endTime time.Time) (*models.Race, error)

	// Cancel moves any pre-completed race to cancelled.
	Cancel(ctx context.Context, id uuid.UUID) (*models.Race, error)

	SetWeather(ctx context.Context, id uuid.UUID, snapshot json.RawMessage) error
}

// ResultRepository defines the interface for result data access
type ResultRepository interface {
	Create(ctx context.Context, result *models.Result) error
	GetByRaceAndRider(ctx context.Context, raceID, riderID uuid.UUID) (*models.Result, error)

	// GetByRaceID returns all results for a race with rider info attached.
	GetByRaceID(ctx context.Context, raceID uuid.UUID) ([]*models.Result, error)

	// MassStart transitions every registered result of the race to started
	// with the single shared timestamp, as one guarded bulk update. Returns
	// the number of riders started.
	MassStart(ctx context.Context, raceID uuid.UUID, startTime time.Time) (int64, error)

	// FinishStarted is the compare-and-swap finish: it transitions the
	// result to finished only if its current status is started, computing
	// total_time from the stored start_time in the same statement. Returns
	// models.ErrNotFound when no started result matched, which is how a
	// second concurrent finish attempt loses.
	FinishStarted(ctx context.Context, raceID, riderID uuid.UUID, finishTime time.Time) (*models.Result, error)

	// SetStatus applies an administrative status override. finishTime and
	// notes are written only when non-nil; total_time and position survive
	// only while the status stays finished.
	SetStatus(ctx context.Context, raceID, riderID uuid.UUID, status models.ResultStatus, finishTime *time.Time, notes *string) (*models.Result, error)

	// UpdatePositions applies a full ranking for a race as a single batched
	// write inside one transaction, clearing positions not reassigned.
	UpdatePositions(ctx context.Context, raceID uuid.UUID, assignments []PositionAssignment) error
}

// RiderRepository defines the interface for rider directory access
type RiderRepository interface {
	Create(ctx context.Context, rider *models.Rider) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Rider, error)
	GetAll(ctx context.Context) ([]*models.Rider, error)

	// GetNotInRace returns riders holding no result row for the race.
	GetNotInRace(ctx context.Context, raceID uuid.UUID) ([]*models.Rider, error)
}
