package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	applogger "github.com/singletrack/race-control/internal/logger"
	"github.com/singletrack/race-control/internal/models"
)

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestRaceService(races *mockRaceRepository, results *mockResultRepository, now time.Time) *RaceService {
	l := discardLogger()
	svc := NewRaceService(races, results, l, applogger.NewAuditLogger(l))
	svc.now = func() time.Time { return now }
	return svc
}

func openRace(id uuid.UUID, startTime time.Time) *models.Race {
	return &models.Race{
		ID:        id,
		Name:      "Alpine Enduro",
		StartTime: startTime,
		Status:    models.RaceStatusOpen,
	}
}

func TestCanStartRaceNotFound(t *testing.T) {
	races := new(mockRaceRepository)
	raceID := uuid.New()
	races.On("GetByID", mock.Anything, raceID).Return(nil, models.ErrNotFound)

	svc := newTestRaceService(races, new(mockResultRepository), time.Now())

	check, err := svc.CanStart(context.Background(), raceID, false)
	require.NoError(t, err)
	assert.False(t, check.CanStart)
	require.NotNil(t, check.Reason)
	assert.Equal(t, "Race not found", *check.Reason)
}

func TestCanStartRaceNotOpen(t *testing.T) {
	races := new(mockRaceRepository)
	raceID := uuid.New()
	race := openRace(raceID, time.Now())
	race.Status = models.RaceStatusDraft
	races.On("GetByID", mock.Anything, raceID).Return(race, nil)

	svc := newTestRaceService(races, new(mockResultRepository), time.Now())

	check, err := svc.CanStart(context.Background(), raceID, false)
	require.NoError(t, err)
	assert.False(t, check.CanStart)
	require.NotNil(t, check.Reason)
	assert.Equal(t, "Race is not open for starting", *check.Reason)
}

func TestCanStartBeforeScheduledTime(t *testing.T) {
	now := time.Date(2026, 6, 14, 9, 0, 0, 0, time.UTC)
	races := new(mockRaceRepository)
	raceID := uuid.New()
	races.On("GetByID", mock.Anything, raceID).Return(openRace(raceID, now.Add(30*time.Minute)), nil)

	svc := newTestRaceService(races, new(mockResultRepository), now)

	check, err := svc.CanStart(context.Background(), raceID, false)
	require.NoError(t, err)
	assert.False(t, check.CanStart)
	require.NotNil(t, check.Reason)
	assert.Equal(t, "Race starts in 30 minute(s)", *check.Reason)
}

func TestCanStartMinutesRounding(t *testing.T) {
	now := time.Date(2026, 6, 14, 9, 0, 0, 0, time.UTC)
	races := new(mockRaceRepository)
	raceID := uuid.New()
	races.On("GetByID", mock.Anything, raceID).Return(openRace(raceID, now.Add(90*time.Second)), nil)

	svc := newTestRaceService(races, new(mockResultRepository), now)

	check, err := svc.CanStart(context.Background(), raceID, false)
	require.NoError(t, err)
	require.NotNil(t, check.Reason)
	assert.Equal(t, "Race starts in 2 minute(s)", *check.Reason)
}

func TestCanStartManualOverride(t *testing.T) {
	now := time.Date(2026, 6, 14, 9, 0, 0, 0, time.UTC)
	races := new(mockRaceRepository)
	raceID := uuid.New()
	races.On("GetByID", mock.Anything, raceID).Return(openRace(raceID, now.Add(2*time.Hour)), nil)

	svc := newTestRaceService(races, new(mockResultRepository), now)

	check, err := svc.CanStart(context.Background(), raceID, true)
	require.NoError(t, err)
	assert.True(t, check.CanStart)
	assert.Nil(t, check.Reason)
}

func TestStartOpenRace(t *testing.T) {
	now := time.Date(2026, 6, 14, 9, 5, 0, 0, time.UTC)
	races := new(mockRaceRepository)
	results := new(mockResultRepository)
	raceID := uuid.New()
	race := openRace(raceID, now.Add(-5*time.Minute))

	races.On("GetByID", mock.Anything, raceID).Return(race, nil)

	started := openRace(raceID, now.UTC())
	started.Status = models.RaceStatusInProgress
	races.On("StartInProgress", mock.Anything, raceID, now.UTC()).Return(started, nil)
	results.On("MassStart", mock.Anything, raceID, now.UTC()).Return(int64(12), nil)

	svc := newTestRaceService(races, results, now)

	outcome, err := svc.Start(context.Background(), raceID)
	require.NoError(t, err)
	assert.Equal(t, models.RaceStatusInProgress, outcome.Race.Status)
	assert.Equal(t, int64(12), outcome.RidersStarted)
	assert.Equal(t, now.UTC(), outcome.MassStartTime)

	races.AssertExpectations(t)
	results.AssertExpectations(t)
}

func TestStartDraftRaceAutoPromotes(t *testing.T) {
	now := time.Date(2026, 6, 14, 9, 5, 0, 0, time.UTC)
	races := new(mockRaceRepository)
	results := new(mockResultRepository)
	raceID := uuid.New()

	draft := openRace(raceID, now)
	draft.Status = models.RaceStatusDraft
	promoted := openRace(raceID, now)

	races.On("GetByID", mock.Anything, raceID).Return(draft, nil).Once()
	races.On("TransitionStatus", mock.Anything, raceID, models.RaceStatusDraft, models.RaceStatusOpen).Return(promoted, nil)
	races.On("GetByID", mock.Anything, raceID).Return(promoted, nil)

	started := openRace(raceID, now.UTC())
	started.Status = models.RaceStatusInProgress
	races.On("StartInProgress", mock.Anything, raceID, now.UTC()).Return(started, nil)
	results.On("MassStart", mock.Anything, raceID, now.UTC()).Return(int64(3), nil)

	svc := newTestRaceService(races, results, now)

	outcome, err := svc.Start(context.Background(), raceID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), outcome.RidersStarted)

	races.AssertExpectations(t)
}

func TestStartLosesConcurrentRace(t *testing.T) {
	now := time.Now()
	races := new(mockRaceRepository)
	raceID := uuid.New()
	races.On("GetByID", mock.Anything, raceID).Return(openRace(raceID, now.Add(-time.Minute)), nil)
	races.On("StartInProgress", mock.Anything, raceID, mock.Anything).Return(nil, models.ErrNotFound)

	svc := newTestRaceService(races, new(mockResultRepository), now)

	_, err := svc.Start(context.Background(), raceID)
	assert.ErrorIs(t, err, models.ErrRaceNotOpen)
}

func TestStartResumesInterruptedMassStart(t *testing.T) {
	now := time.Date(2026, 6, 14, 9, 5, 0, 0, time.UTC)
	races := new(mockRaceRepository)
	results := new(mockResultRepository)
	raceID := uuid.New()
	massStart := now.UTC()

	open := openRace(raceID, now.Add(-5*time.Minute))
	flipped := openRace(raceID, massStart)
	flipped.Status = models.RaceStatusInProgress

	// The race flips to in_progress but the bulk rider transition dies
	races.On("GetByID", mock.Anything, raceID).Return(open, nil).Twice()
	races.On("StartInProgress", mock.Anything, raceID, massStart).Return(flipped, nil)
	results.On("MassStart", mock.Anything, raceID, massStart).
		Return(int64(0), errors.New("connection reset")).Once()

	svc := newTestRaceService(races, results, now)

	_, err := svc.Start(context.Background(), raceID)
	require.Error(t, err)

	// The retry finds the race in_progress and re-runs the rider transition
	// with the stored mass-start instant, not a fresh clock reading
	races.On("GetByID", mock.Anything, raceID).Return(flipped, nil)
	results.On("MassStart", mock.Anything, raceID, massStart).Return(int64(9), nil).Once()

	outcome, err := svc.Start(context.Background(), raceID)
	require.NoError(t, err)
	assert.Equal(t, int64(9), outcome.RidersStarted)
	assert.Equal(t, massStart, outcome.MassStartTime)

	races.AssertExpectations(t)
	results.AssertExpectations(t)
	results.AssertNumberOfCalls(t, "MassStart", 2)
}

func TestStartAlreadyStartedRace(t *testing.T) {
	now := time.Now()
	races := new(mockRaceRepository)
	results := new(mockResultRepository)
	raceID := uuid.New()

	running := openRace(raceID, now.Add(-time.Hour))
	running.Status = models.RaceStatusInProgress
	races.On("GetByID", mock.Anything, raceID).Return(running, nil)
	results.On("MassStart", mock.Anything, raceID, running.StartTime).Return(int64(0), nil)

	svc := newTestRaceService(races, results, now)

	_, err := svc.Start(context.Background(), raceID)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrRaceNotOpen)
}

func TestStartCompletedRace(t *testing.T) {
	now := time.Now()
	races := new(mockRaceRepository)
	raceID := uuid.New()
	done := openRace(raceID, now.Add(-3*time.Hour))
	done.Status = models.RaceStatusCompleted
	races.On("GetByID", mock.Anything, raceID).Return(done, nil)

	svc := newTestRaceService(races, new(mockResultRepository), now)

	_, err := svc.Start(context.Background(), raceID)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrRaceNotOpen)
}

func TestFinishRace(t *testing.T) {
	now := time.Date(2026, 6, 14, 12, 0, 0, 0, time.UTC)
	races := new(mockRaceRepository)
	raceID := uuid.New()

	completed := openRace(raceID, now.Add(-3*time.Hour))
	completed.Status = models.RaceStatusCompleted
	end := now.UTC()
	completed.EndTime = &end
	races.On("FinishCompleted", mock.Anything, raceID, now.UTC()).Return(completed, nil)

	svc := newTestRaceService(races, new(mockResultRepository), now)

	race, err := svc.Finish(context.Background(), raceID)
	require.NoError(t, err)
	assert.Equal(t, models.RaceStatusCompleted, race.Status)
	require.NotNil(t, race.EndTime)
}

func TestFinishRaceNotInProgress(t *testing.T) {
	now := time.Now()
	races := new(mockRaceRepository)
	raceID := uuid.New()
	races.On("FinishCompleted", mock.Anything, raceID, mock.Anything).Return(nil, models.ErrNotFound)
	races.On("GetByID", mock.Anything, raceID).Return(openRace(raceID, now), nil)

	svc := newTestRaceService(races, new(mockResultRepository), now)

	_, err := svc.Finish(context.Background(), raceID)
	assert.ErrorIs(t, err, models.ErrRaceNotInProgress)
}

func TestFinishRaceNotFound(t *testing.T) {
	races := new(mockRaceRepository)
	raceID := uuid.New()
	races.On("FinishCompleted", mock.Anything, raceID, mock.Anything).Return(nil, models.ErrNotFound)
	races.On("GetByID", mock.Anything, raceID).Return(nil, models.ErrNotFound)

	svc := newTestRaceService(races, new(mockResultRepository), time.Now())

	_, err := svc.Finish(context.Background(), raceID)
	assert.ErrorIs(t, err, models.ErrRaceNotFound)
}

func TestCancelRace(t *testing.T) {
	now := time.Now()
	races := new(mockRaceRepository)
	raceID := uuid.New()
	cancelled := openRace(raceID, now)
	cancelled.Status = models.RaceStatusCancelled
	races.On("Cancel", mock.Anything, raceID).Return(cancelled, nil)

	svc := newTestRaceService(races, new(mockResultRepository), now)

	race, err := svc.Cancel(context.Background(), raceID)
	require.NoError(t, err)
	assert.Equal(t, models.RaceStatusCancelled, race.Status)
}

func TestCancelRaceAlreadyOver(t *testing.T) {
	now := time.Now()
	races := new(mockRaceRepository)
	raceID := uuid.New()
	completed := openRace(raceID, now)
	completed.Status = models.RaceStatusCompleted
	races.On("Cancel", mock.Anything, raceID).Return(nil, models.ErrNotFound)
	races.On("GetByID", mock.Anything, raceID).Return(completed, nil)

	svc := newTestRaceService(races, new(mockResultRepository), now)

	_, err := svc.Cancel(context.Background(), raceID)
	assert.ErrorIs(t, err, models.ErrRaceAlreadyOver)
}
