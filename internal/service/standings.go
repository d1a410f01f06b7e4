package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/singletrack/race-control/internal/metrics"
	"github.com/singletrack/race-control/internal/models"
	"github.com/singletrack/race-control/internal/repository"
	"github.com/singletrack/race-control/internal/timeutil"
)

// StandingsService is the read side: it aggregates result rows into ranked,
// gapped, and categorized views. It never mutates results except for the
// position recompute triggered by finish events.
type StandingsService struct {
	races   repository.RaceRepository
	results repository.ResultRepository
	riders  repository.RiderRepository
	logger  *logrus.Logger
}

// NewStandingsService creates a new standings/reporting service
func NewStandingsService(
	races repository.RaceRepository,
	results repository.ResultRepository,
	riders repository.RiderRepository,
	logger *logrus.Logger,
) *StandingsService {
	return &StandingsService{
		races:   races,
		results: results,
		riders:  riders,
		logger:  logger,
	}
}

// StandingEntry is one finished row in the live standings
type StandingEntry struct {
	Result        *models.Result `json:"result"`
	Position      int            `json:"position"`
	FormattedTime *string        `json:"formatted_time"`
}

// LiveStandings is the live view of a race in progress
type LiveStandings struct {
	Finished     []StandingEntry `json:"finished"`
	StillRacing  int             `json:"still_racing"`
	DNF          int             `json:"dnf"`
	DSQ          int             `json:"dsq"`
	TotalStarted int             `json:"total_started"`
}

// PodiumEntry is one of the top finishers with its gap to the fastest
type PodiumEntry struct {
	Result *models.Result `json:"result"`
	Rank   int            `json:"rank"`
	Gap    *string        `json:"gap"`
}

// DNFReport partitions non-finishers and aggregates their reasons
type DNFReport struct {
	DNF     []*models.Result `json:"dnf"`
	DSQ     []*models.Result `json:"dsq"`
	Total   int              `json:"total"`
	Reasons map[string]int   `json:"reasons"`
}

// RiderAvailability annotates a rider not yet entered in a race
type RiderAvailability struct {
	Rider       *models.Rider `json:"rider"`
	Eligible    bool          `json:"eligible"`
	CanRegister bool          `json:"can_register"`
}

// RaceStatistics summarizes participation for a report
type RaceStatistics struct {
	TotalParticipants int    `json:"total_participants"`
	FinishedCount     int    `json:"finished_count"`
	DNFCount          int    `json:"dnf_count"`
	DSQCount          int    `json:"dsq_count"`
	AverageTime       *int64 `json:"average_time"`
}

// RaceReport is the full post-race report. A nil Race is the deliberate
// soft not-found marker: callers can distinguish "race doesn't exist" from
// an infrastructure failure without catching errors.
type RaceReport struct {
	Race              *models.Race            `json:"race"`
	Statistics        *RaceStatistics         `json:"statistics,omitempty"`
	Top3Fastest       []PodiumEntry           `json:"top_3_fastest,omitempty"`
	DidNotFinish      *DNFReport              `json:"did_not_finish,omitempty"`
	WeatherConditions *models.WeatherSnapshot `json:"weather_conditions,omitempty"`
}

// Found reports whether the race id resolved
func (r *RaceReport) Found() bool {
	return r.Race != nil
}

// StatusCounts holds per-status result counts for a race
type StatusCounts struct {
	Registered int `json:"registered"`
	Started    int `json:"started"`
	Finished   int `json:"finished"`
	DNF        int `json:"dnf"`
	DSQ        int `json:"dsq"`
}

// CompletionAnalysis extends the counts with a completion rate and
// fastest/slowest/average times over the finishers
type CompletionAnalysis struct {
	StatusCounts
	CompletionRate int    `json:"completion_rate"`
	FastestTime    *int64 `json:"fastest_time"`
	SlowestTime    *int64 `json:"slowest_time"`
	AverageTime    *int64 `json:"average_time"`
}

// sortFinished orders finished results by ascending total time. Ties break
// deterministically on finish time, then rider id, so repeated sorts always
// reproduce the same order.
func sortFinished(results []*models.Result) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.GetTotalTime() != b.GetTotalTime() {
			return a.GetTotalTime() < b.GetTotalTime()
		}
		if a.FinishTime != nil && b.FinishTime != nil && !a.FinishTime.Equal(*b.FinishTime) {
			return a.FinishTime.Before(*b.FinishTime)
		}
		return a.RiderID.String() < b.RiderID.String()
	})
}

func filterByStatus(results []*models.Result, status models.ResultStatus) []*models.Result {
	var out []*models.Result
	for _, r := range results {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out
}

func (s *StandingsService) finishedForRace(ctx context.Context, raceID uuid.UUID) ([]*models.Result, error) {
	all, err := s.results.GetByRaceID(ctx, raceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}

	finished := filterByStatus(all, models.ResultStatusFinished)
	sortFinished(finished)
	return finished, nil
}

// RecomputePositions rebuilds the full finish-order ranking for a race and
// persists it as one batched write. Idempotent: an unchanged result set
// reproduces the identical assignment. Returns a map of result id to its new
// 1-based position.
func (s *StandingsService) RecomputePositions(ctx context.Context, raceID uuid.UUID) (map[uuid.UUID]int, error) {
	timer := time.Now()
	defer func() {
		metrics.PositionRecomputeDuration.Observe(time.Since(timer).Seconds())
	}()

	finished, err := s.finishedForRace(ctx, raceID)
	if err != nil {
		return nil, err
	}

	assignments := make([]repository.PositionAssignment, len(finished))
	ranks := make(map[uuid.UUID]int, len(finished))
	for i, result := range finished {
		assignments[i] = repository.PositionAssignment{ResultID: result.ID, Position: i + 1}
		ranks[result.ID] = i + 1
	}

	if err := s.results.UpdatePositions(ctx, raceID, assignments); err != nil {
		return nil, fmt.Errorf("failed to persist positions: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"race_id":  raceID,
		"finished": len(finished),
	}).Debug("Positions recomputed")

	return ranks, nil
}

// Top3 returns up to three fastest finishers, each annotated with a 1-based
// rank and the gap to the fastest. The fastest carries a nil gap.
func (s *StandingsService) Top3(ctx context.Context, raceID uuid.UUID) ([]PodiumEntry, error) {
	finished, err := s.finishedForRace(ctx, raceID)
	if err != nil {
		return nil, err
	}

	if len(finished) > 3 {
		finished = finished[:3]
	}

	podium := make([]PodiumEntry, 0, len(finished))
	for i, result := range finished {
		entry := PodiumEntry{Result: result, Rank: i + 1}
		if i > 0 {
			gap := "+" + timeutil.FormatSeconds(result.GetTotalTime()-finished[0].GetTotalTime())
			entry.Gap = &gap
		}
		podium = append(podium, entry)
	}

	return podium, nil
}

// Live builds the live standings view. Positions are re-derived on the fly
// from the current sort rather than read from the persisted column, so the
// view is self-consistent even while a recompute is still in flight.
// TotalStarted counts everyone who actually started; registered-but-not-
// started riders are excluded from the denominator.
func (s *StandingsService) Live(ctx context.Context, raceID uuid.UUID) (*LiveStandings, error) {
	timer := time.Now()
	defer func() {
		metrics.StandingsQueryDuration.Observe(time.Since(timer).Seconds())
	}()

	if _, err := s.races.GetByID(ctx, raceID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrRaceNotFound
		}
		return nil, fmt.Errorf("failed to get race: %w", err)
	}

	all, err := s.results.GetByRaceID(ctx, raceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}

	finished := filterByStatus(all, models.ResultStatusFinished)
	sortFinished(finished)

	entries := make([]StandingEntry, 0, len(finished))
	for i, result := range finished {
		entries = append(entries, StandingEntry{
			Result:        result,
			Position:      i + 1,
			FormattedTime: timeutil.FormatSecondsPtr(result.TotalTime),
		})
	}

	standings := &LiveStandings{
		Finished:    entries,
		StillRacing: len(filterByStatus(all, models.ResultStatusStarted)),
		DNF:         len(filterByStatus(all, models.ResultStatusDNF)),
		DSQ:         len(filterByStatus(all, models.ResultStatusDSQ)),
	}
	standings.TotalStarted = len(entries) + standings.StillRacing + standings.DNF + standings.DSQ

	return standings, nil
}

// DidNotFinish partitions the non-finishers and aggregates their notes as
// reason counts. Empty notes count toward the total but not toward reasons.
func (s *StandingsService) DidNotFinish(ctx context.Context, raceID uuid.UUID) (*DNFReport, error) {
	all, err := s.results.GetByRaceID(ctx, raceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}

	report := &DNFReport{
		DNF:     filterByStatus(all, models.ResultStatusDNF),
		DSQ:     filterByStatus(all, models.ResultStatusDSQ),
		Reasons: make(map[string]int),
	}
	report.Total = len(report.DNF) + len(report.DSQ)

	for _, result := range append(append([]*models.Result{}, report.DNF...), report.DSQ...) {
		if note := result.GetNotes(); note != "" {
			report.Reasons[note]++
		}
	}

	return report, nil
}

// NotInRace lists riders with no result row for the race, annotated with
// category eligibility and whether registration is currently possible.
func (s *StandingsService) NotInRace(ctx context.Context, raceID uuid.UUID) ([]RiderAvailability, error) {
	race, err := s.races.GetByID(ctx, raceID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrRaceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get race: %w", err)
	}

	riders, err := s.riders.GetNotInRace(ctx, raceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get riders: %w", err)
	}

	availability := make([]RiderAvailability, 0, len(riders))
	for _, rider := range riders {
		eligible := race.AllowsCategory(rider.Category)
		availability = append(availability, RiderAvailability{
			Rider:       rider,
			Eligible:    eligible,
			CanRegister: eligible && race.Status == models.RaceStatusOpen,
		})
	}

	return availability, nil
}

// Stats returns per-status result counts for a race
func (s *StandingsService) Stats(ctx context.Context, raceID uuid.UUID) (*StatusCounts, error) {
	all, err := s.results.GetByRaceID(ctx, raceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}

	return countStatuses(all), nil
}

func countStatuses(results []*models.Result) *StatusCounts {
	counts := &StatusCounts{}
	for _, r := range results {
		switch r.Status {
		case models.ResultStatusRegistered:
			counts.Registered++
		case models.ResultStatusStarted:
			counts.Started++
		case models.ResultStatusFinished:
			counts.Finished++
		case models.ResultStatusDNF:
			counts.DNF++
		case models.ResultStatusDSQ:
			counts.DSQ++
		}
	}
	return counts
}

// CompletionAnalysis computes the completion rate over everyone who started,
// plus fastest/slowest/average elapsed times over the finishers.
func (s *StandingsService) CompletionAnalysis(ctx context.Context, raceID uuid.UUID) (*CompletionAnalysis, error) {
	all, err := s.results.GetByRaceID(ctx, raceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}

	counts := countStatuses(all)
	analysis := &CompletionAnalysis{StatusCounts: *counts}

	started := counts.Finished + counts.DNF + counts.DSQ + counts.Started
	if started > 0 {
		analysis.CompletionRate = int(math.Round(100 * float64(counts.Finished) / float64(started)))
	}

	finished := filterByStatus(all, models.ResultStatusFinished)
	sortFinished(finished)
	if len(finished) > 0 {
		fastest := finished[0].GetTotalTime()
		slowest := finished[len(finished)-1].GetTotalTime()
		analysis.FastestTime = &fastest
		analysis.SlowestTime = &slowest
		analysis.AverageTime = averageTime(finished)
	}

	return analysis, nil
}

// Report assembles the full post-race report. An unknown race id yields a
// report with a nil race rather than an error, so callers can cheaply test
// existence.
func (s *StandingsService) Report(ctx context.Context, raceID uuid.UUID) (*RaceReport, error) {
	race, err := s.races.GetByID(ctx, raceID)
	if errors.Is(err, models.ErrNotFound) {
		return &RaceReport{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get race: %w", err)
	}

	all, err := s.results.GetByRaceID(ctx, raceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}

	counts := countStatuses(all)
	finished := filterByStatus(all, models.ResultStatusFinished)
	sortFinished(finished)

	statistics := &RaceStatistics{
		TotalParticipants: len(all),
		FinishedCount:     counts.Finished,
		DNFCount:          counts.DNF,
		DSQCount:          counts.DSQ,
		AverageTime:       averageTime(finished),
	}

	top3, err := s.Top3(ctx, raceID)
	if err != nil {
		return nil, err
	}

	dnf, err := s.DidNotFinish(ctx, raceID)
	if err != nil {
		return nil, err
	}

	weather, err := race.ParseWeather()
	if err != nil {
		s.logger.WithError(err).WithField("race_id", raceID).Warn("Stored weather snapshot is unreadable")
	}

	return &RaceReport{
		Race:              race,
		Statistics:        statistics,
		Top3Fastest:       top3,
		DidNotFinish:      dnf,
		WeatherConditions: weather,
	}, nil
}

// averageTime returns the rounded mean elapsed time, nil when no one finished
func averageTime(finished []*models.Result) *int64 {
	if len(finished) == 0 {
		return nil
	}

	var sum int64
	for _, r := range finished {
		sum += r.GetTotalTime()
	}

	avg := int64(math.Round(float64(sum) / float64(len(finished))))
	return &avg
}
