package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	applogger "github.com/singletrack/race-control/internal/logger"
	"github.com/singletrack/race-control/internal/models"
	"github.com/singletrack/race-control/internal/repository"
)

type resultServiceMocks struct {
	races   *mockRaceRepository
	results *mockResultRepository
	riders  *mockRiderRepository
}

func newTestResultService(now time.Time) (*ResultService, *resultServiceMocks) {
	m := &resultServiceMocks{
		races:   new(mockRaceRepository),
		results: new(mockResultRepository),
		riders:  new(mockRiderRepository),
	}
	l := discardLogger()
	standings := NewStandingsService(m.races, m.results, m.riders, l)
	svc := NewResultService(m.races, m.results, m.riders, standings, nil, l, applogger.NewAuditLogger(l))
	svc.now = func() time.Time { return now }
	return svc, m
}

func TestRegisterRider(t *testing.T) {
	svc, m := newTestResultService(time.Now())
	raceID, riderID := uuid.New(), uuid.New()

	m.races.On("GetByID", mock.Anything, raceID).Return(openRace(raceID, time.Now()), nil)
	m.riders.On("GetByID", mock.Anything, riderID).Return(&models.Rider{ID: riderID}, nil)
	m.results.On("Create", mock.Anything, mock.MatchedBy(func(r *models.Result) bool {
		return r.RaceID == raceID && r.RiderID == riderID && r.Status == models.ResultStatusRegistered
	})).Return(nil)

	result, err := svc.Register(context.Background(), raceID, riderID)
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusRegistered, result.Status)
	assert.NotEqual(t, uuid.Nil, result.ID)

	m.results.AssertExpectations(t)
}

func TestRegisterRiderTwice(t *testing.T) {
	svc, m := newTestResultService(time.Now())
	raceID, riderID := uuid.New(), uuid.New()

	m.races.On("GetByID", mock.Anything, raceID).Return(openRace(raceID, time.Now()), nil)
	m.riders.On("GetByID", mock.Anything, riderID).Return(&models.Rider{ID: riderID}, nil)
	m.results.On("Create", mock.Anything, mock.Anything).Return(nil).Once()
	m.results.On("Create", mock.Anything, mock.Anything).Return(models.ErrDuplicateKey)

	_, err := svc.Register(context.Background(), raceID, riderID)
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), raceID, riderID)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrAlreadyRegistered)
	assert.Equal(t, "Rider already registered for this race", err.Error())
}

func TestRegisterRiderRaceMissing(t *testing.T) {
	svc, m := newTestResultService(time.Now())
	raceID, riderID := uuid.New(), uuid.New()

	m.races.On("GetByID", mock.Anything, raceID).Return(nil, models.ErrNotFound)

	_, err := svc.Register(context.Background(), raceID, riderID)
	assert.ErrorIs(t, err, models.ErrRaceNotFound)
}

func TestRegisterRiderUnknownRider(t *testing.T) {
	svc, m := newTestResultService(time.Now())
	raceID, riderID := uuid.New(), uuid.New()

	m.races.On("GetByID", mock.Anything, raceID).Return(openRace(raceID, time.Now()), nil)
	m.riders.On("GetByID", mock.Anything, riderID).Return(nil, models.ErrNotFound)

	_, err := svc.Register(context.Background(), raceID, riderID)
	assert.ErrorIs(t, err, models.ErrRiderNotFound)
}

func TestFinishRider(t *testing.T) {
	massStart := time.Date(2026, 6, 14, 9, 0, 0, 0, time.UTC)
	finishAt := massStart.Add(125 * time.Second)
	svc, m := newTestResultService(finishAt)

	raceID, riderID := uuid.New(), uuid.New()
	total := int64(125)
	finished := &models.Result{
		ID:         uuid.New(),
		RaceID:     raceID,
		RiderID:    riderID,
		StartTime:  &massStart,
		FinishTime: &finishAt,
		TotalTime:  &total,
		Status:     models.ResultStatusFinished,
	}

	m.results.On("FinishStarted", mock.Anything, raceID, riderID, finishAt.UTC()).Return(finished, nil)
	m.results.On("GetByRaceID", mock.Anything, raceID).Return([]*models.Result{finished}, nil)
	m.results.On("UpdatePositions", mock.Anything, raceID, mock.Anything).Return(nil)

	outcome, err := svc.FinishRider(context.Background(), raceID, riderID)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Position)
	require.NotNil(t, outcome.FormattedTime)
	assert.Equal(t, "2:05", *outcome.FormattedTime)
	require.NotNil(t, outcome.Result.Position)
	assert.Equal(t, 1, *outcome.Result.Position)
}

func TestFinishRiderNotStarted(t *testing.T) {
	svc, m := newTestResultService(time.Now())
	raceID, riderID := uuid.New(), uuid.New()

	m.results.On("FinishStarted", mock.Anything, raceID, riderID, mock.Anything).Return(nil, models.ErrNotFound)

	_, err := svc.FinishRider(context.Background(), raceID, riderID)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrRiderNotStarted)
	assert.Equal(t, "Rider not found or not started yet", err.Error())
}

func TestFinishRiderTwice(t *testing.T) {
	massStart := time.Date(2026, 6, 14, 9, 0, 0, 0, time.UTC)
	finishAt := massStart.Add(10 * time.Minute)
	svc, m := newTestResultService(finishAt)

	raceID, riderID := uuid.New(), uuid.New()
	total := int64(600)
	finished := &models.Result{
		ID:        uuid.New(),
		RaceID:    raceID,
		RiderID:   riderID,
		TotalTime: &total,
		Status:    models.ResultStatusFinished,
	}

	m.results.On("FinishStarted", mock.Anything, raceID, riderID, mock.Anything).Return(finished, nil).Once()
	m.results.On("FinishStarted", mock.Anything, raceID, riderID, mock.Anything).Return(nil, models.ErrNotFound)
	m.results.On("GetByRaceID", mock.Anything, raceID).Return([]*models.Result{finished}, nil)
	m.results.On("UpdatePositions", mock.Anything, raceID, mock.Anything).Return(nil)

	first, err := svc.FinishRider(context.Background(), raceID, riderID)
	require.NoError(t, err)
	assert.Equal(t, int64(600), first.Result.GetTotalTime())

	// The compare-and-swap finds no started result the second time
	_, err = svc.FinishRider(context.Background(), raceID, riderID)
	assert.ErrorIs(t, err, models.ErrRiderNotStarted)
}

func TestSetStatusDNF(t *testing.T) {
	now := time.Date(2026, 6, 14, 10, 30, 0, 0, time.UTC)
	svc, m := newTestResultService(now)

	raceID, riderID := uuid.New(), uuid.New()
	reason := "Mechanical failure"
	updated := &models.Result{
		ID:      uuid.New(),
		RaceID:  raceID,
		RiderID: riderID,
		Status:  models.ResultStatusDNF,
		Notes:   &reason,
	}

	m.results.On("SetStatus", mock.Anything, raceID, riderID, models.ResultStatusDNF,
		mock.MatchedBy(func(ft *time.Time) bool { return ft != nil && ft.Equal(now.UTC()) }),
		&reason).Return(updated, nil)
	m.results.On("GetByRaceID", mock.Anything, raceID).Return([]*models.Result{updated}, nil)
	m.results.On("UpdatePositions", mock.Anything, raceID, mock.Anything).Return(nil)

	result, err := svc.SetStatus(context.Background(), raceID, riderID, models.ResultStatusDNF, &reason)
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusDNF, result.Status)
	assert.Nil(t, result.TotalTime)

	m.results.AssertExpectations(t)
}

func TestSetStatusDemotesFinishedRider(t *testing.T) {
	now := time.Date(2026, 6, 14, 12, 0, 0, 0, time.UTC)
	svc, m := newTestResultService(now)

	raceID := uuid.New()
	demotedRider, runnerUpRider := uuid.New(), uuid.New()
	reason := "Course cutting"

	demoted := &models.Result{
		ID:      uuid.New(),
		RaceID:  raceID,
		RiderID: demotedRider,
		Status:  models.ResultStatusDSQ,
		Notes:   &reason,
	}
	runnerUpTime := int64(5600)
	runnerUpFinish := now.Add(-time.Hour)
	runnerUpPos := 2
	runnerUp := &models.Result{
		ID:         uuid.New(),
		RaceID:     raceID,
		RiderID:    runnerUpRider,
		FinishTime: &runnerUpFinish,
		TotalTime:  &runnerUpTime,
		Position:   &runnerUpPos,
		Status:     models.ResultStatusFinished,
	}

	m.results.On("SetStatus", mock.Anything, raceID, demotedRider, models.ResultStatusDSQ,
		mock.Anything, &reason).Return(demoted, nil)
	m.results.On("GetByRaceID", mock.Anything, raceID).Return([]*models.Result{demoted, runnerUp}, nil)
	// The former runner-up inherits first place as soon as the override lands
	m.results.On("UpdatePositions", mock.Anything, raceID, []repository.PositionAssignment{
		{ResultID: runnerUp.ID, Position: 1},
	}).Return(nil)

	result, err := svc.SetStatus(context.Background(), raceID, demotedRider, models.ResultStatusDSQ, &reason)
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusDSQ, result.Status)
	assert.Nil(t, result.TotalTime)
	assert.Nil(t, result.Position)

	m.results.AssertExpectations(t)
}

func TestRegisterRiderRaceNotOpen(t *testing.T) {
	svc, m := newTestResultService(time.Now())
	raceID, riderID := uuid.New(), uuid.New()

	race := openRace(raceID, time.Now())
	race.Status = models.RaceStatusInProgress
	m.races.On("GetByID", mock.Anything, raceID).Return(race, nil)

	_, err := svc.Register(context.Background(), raceID, riderID)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrRegistrationClosed)
	assert.Equal(t, "Race is not open for registration", err.Error())
}

func TestSetStatusInvalid(t *testing.T) {
	svc, _ := newTestResultService(time.Now())

	_, err := svc.SetStatus(context.Background(), uuid.New(), uuid.New(), models.ResultStatus("flying"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidResultStatus)
	assert.Equal(t, "Invalid status", err.Error())
}

func TestSetStatusResultMissing(t *testing.T) {
	svc, m := newTestResultService(time.Now())
	raceID, riderID := uuid.New(), uuid.New()

	m.results.On("SetStatus", mock.Anything, raceID, riderID, models.ResultStatusDSQ, mock.Anything, mock.Anything).
		Return(nil, models.ErrNotFound)

	_, err := svc.SetStatus(context.Background(), raceID, riderID, models.ResultStatusDSQ, nil)
	assert.ErrorIs(t, err, models.ErrResultNotFound)
}
