package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/singletrack/race-control/internal/models"
	"github.com/singletrack/race-control/internal/repository"
)

type mockRaceRepository struct {
	mock.Mock
}

func (m *mockRaceRepository) Create(ctx context.Context, race *models.Race) error {
	args := m.Called(ctx, race)
	return args.Error(0)
}

func (m *mockRaceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Race, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Race), args.Error(1)
}

func (m *mockRaceRepository) List(ctx context.Context, limit, offset int) ([]*models.Race, int64, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*models.Race), args.Get(1).(int64), args.Error(2)
}

func (m *mockRaceRepository) GetUpcoming(ctx context.Context, within time.Duration) ([]*models.Race, error) {
	args := m.Called(ctx, within)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Race), args.Error(1)
}

func (m *mockRaceRepository) GetByStatus(ctx context.Context, status models.RaceStatus) ([]*models.Race, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Race), args.Error(1)
}

func (m *mockRaceRepository) Update(ctx context.Context, race *models.Race) error {
	args := m.Called(ctx, race)
	return args.Error(0)
}

func (m *mockRaceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockRaceRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.RaceStatus) (*models.Race, error) {
	args := m.Called(ctx, id, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Race), args.Error(1)
}

func (m *mockRaceRepository) StartInProgress(ctx context.Context, id uuid.UUID, massStart time.Time) (*models.Race, error) {
	args := m.Called(ctx, id, massStart)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Race), args.Error(1)
}

func (m *mockRaceRepository) FinishCompleted(ctx context.Context, id uuid.UUID, endTime time.Time) (*models.Race, error) {
	args := m.Called(ctx, id, endTime)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Race), args.Error(1)
}

func (m *mockRaceRepository) Cancel(ctx context.Context, id uuid.UUID) (*models.Race, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Race), args.Error(1)
}

func (m *mockRaceRepository) SetWeather(ctx context.Context, id uuid.UUID, snapshot json.RawMessage) error {
	args := m.Called(ctx, id, snapshot)
	return args.Error(0)
}

type mockResultRepository struct {
	mock.Mock
}

func (m *mockResultRepository) Create(ctx context.Context, result *models.Result) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

func (m *mockResultRepository) GetByRaceAndRider(ctx context.Context, raceID, riderID uuid.UUID) (*models.Result, error) {
	args := m.Called(ctx, raceID, riderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Result), args.Error(1)
}

func (m *mockResultRepository) GetByRaceID(ctx context.Context, raceID uuid.UUID) ([]*models.Result, error) {
	args := m.Called(ctx, raceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Result), args.Error(1)
}

func (m *mockResultRepository) MassStart(ctx context.Context, raceID uuid.UUID, startTime time.Time) (int64, error) {
	args := m.Called(ctx, raceID, startTime)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockResultRepository) FinishStarted(ctx context.Context, raceID, riderID uuid.UUID, finishTime time.Time) (*models.Result, error) {
	args := m.Called(ctx, raceID, riderID, finishTime)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Result), args.Error(1)
}

func (m *mockResultRepository) SetStatus(ctx context.Context, raceID, riderID uuid.UUID, status models.ResultStatus, finishTime *time.Time, notes *string) (*models.Result, error) {
	args := m.Called(ctx, raceID, riderID, status, finishTime, notes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Result), args.Error(1)
}

func (m *mockResultRepository) UpdatePositions(ctx context.Context, raceID uuid.UUID, assignments []repository.PositionAssignment) error {
	args := m.Called(ctx, raceID, assignments)
	return args.Error(0)
}

type mockRiderRepository struct {
	mock.Mock
}

func (m *mockRiderRepository) Create(ctx context.Context, rider *models.Rider) error {
	args := m.Called(ctx, rider)
	return args.Error(0)
}

func (m *mockRiderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Rider, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Rider), args.Error(1)
}

func (m *mockRiderRepository) GetAll(ctx context.Context) ([]*models.Rider, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Rider), args.Error(1)
}

func (m *mockRiderRepository) GetNotInRace(ctx context.Context, raceID uuid.UUID) ([]*models.Rider, error) {
	args := m.Called(ctx, raceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Rider), args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) BroadcastStandings(raceID uuid.UUID, standings *LiveStandings) {
	m.Called(raceID, standings)
}
