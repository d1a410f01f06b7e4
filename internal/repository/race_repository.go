package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/singletrack/race-control/internal/database"
	"github.com/singletrack/race-control/internal/models"
)

const raceColumns = `id, name, location_name, latitude, longitude, start_time, end_time,
       distance_km, terrain, difficulty, categories, status, weather, created_at, updated_at`

const errScanRace = "failed to scan race: %w"

// PostgresRaceRepository implements RaceRepository for PostgreSQL
type PostgresRaceRepository struct {
	db *database.DB
}

// NewPostgresRaceRepository creates a new race repository
func NewPostgresRaceRepository(db *database.DB) RaceRepository {
	return &PostgresRaceRepository{db: db}
}

func scanRace(row pgx.Row) (*models.Race, error) {
	race := &models.Race{}
	err := row.Scan(
		&race.ID, &race.Name, &race.LocationName, &race.Latitude, &race.Longitude,
		&race.StartTime, &race.EndTime, &race.DistanceKm, &race.Terrain, &race.Difficulty,
		&race.Categories, &race.Status, &race.Weather, &race.CreatedAt, &race.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf(errScanRace, err)
	}
	return race, nil
}

// Create inserts a new race
func (r *PostgresRaceRepository) Create(ctx context.Context, race *models.Race) error {
	query := `
		INSERT INTO races (id, name, location_name, latitude, longitude, start_time,
		                   distance_km, terrain, difficulty, categories, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.GetPool().Exec(ctx, query,
		race.ID, race.Name, race.LocationName, race.Latitude, race.Longitude,
		race.StartTime, race.DistanceKm, race.Terrain, race.Difficulty,
		race.Categories, race.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to create race: %w", err)
	}

	return nil
}

// GetByID retrieves a race by ID
func (r *PostgresRaceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Race, error) {
	query := `SELECT ` + raceColumns + ` FROM races WHERE id = $1`

	race, err := scanRace(r.db.GetPool().QueryRow(ctx, query, id))
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get race: %w", err)
	}

	return race, nil
}

// List retrieves races ordered by start time, newest first, with a total count
func (r *PostgresRaceRepository) List(ctx context.Context, limit, offset int) ([]*models.Race, int64, error) {
	var total int64
	if err := r.db.GetPool().QueryRow(ctx, "SELECT COUNT(*) FROM races").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count races: %w", err)
	}

	query := `SELECT ` + raceColumns + ` FROM races ORDER BY start_time DESC LIMIT $1 OFFSET $2`

	rows, err := r.db.GetPool().Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query races: %w", err)
	}
	defer rows.Close()

	var races []*models.Race
	for rows.Next() {
		race, err := scanRace(rows)
		if err != nil {
			return nil, 0, err
		}
		races = append(races, race)
	}

	return races, total, rows.Err()
}

// GetUpcoming retrieves not-yet-started races scheduled within the window
func (r *PostgresRaceRepository) GetUpcoming(ctx context.Context, within time.Duration) ([]*models.Race, error) {
	query := `
		SELECT ` + raceColumns + `
		FROM races
		WHERE status IN ('draft', 'open') AND start_time BETWEEN NOW() AND NOW() + $1
		ORDER BY start_time ASC
	`

	rows, err := r.db.GetPool().Query(ctx, query, within)
	if err != nil {
		return nil, fmt.Errorf("failed to query upcoming races: %w", err)
	}
	defer rows.Close()

	var races []*models.Race
	for rows.Next() {
		race, err := scanRace(rows)
		if err != nil {
			return nil, err
		}
		races = append(races, race)
	}

	return races, rows.Err()
}

// GetByStatus retrieves all races in a given status
func (r *PostgresRaceRepository) GetByStatus(ctx context.Context, status models.RaceStatus) ([]*models.Race, error) {
	query := `SELECT ` + raceColumns + ` FROM races WHERE status = $1 ORDER BY start_time ASC`

	rows, err := r.db.GetPool().Query(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query races by status: %w", err)
	}
	defer rows.Close()

	var races []*models.Race
	for rows.Next() {
		race, err := scanRace(rows)
		if err != nil {
			return nil, err
		}
		races = append(races, race)
	}

	return races, rows.Err()
}

// Update updates the mutable attributes of an existing race
func (r *PostgresRaceRepository) Update(ctx context.Context, race *models.Race) error {
	query := `
		UPDATE races SET
			name = $2, location_name = $3, latitude = $4, longitude = $5,
			start_time = $6, distance_km = $7, terrain = $8, difficulty = $9,
			categories = $10, updated_at = NOW()
		WHERE id = $1
	`

	commandTag, err := r.db.GetPool().Exec(ctx, query,
		race.ID, race.Name, race.LocationName, race.Latitude, race.Longitude,
		race.StartTime, race.DistanceKm, race.Terrain, race.Difficulty, race.Categories,
	)
	if err != nil {
		return fmt.Errorf("failed to update race: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// Delete deletes a race
func (r *PostgresRaceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	commandTag, err := r.db.GetPool().Exec(ctx, "DELETE FROM races WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete race: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// TransitionStatus moves a race between statuses, guarded by the current status
func (r *PostgresRaceRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.RaceStatus) (*models.Race, error) {
	query := `
		UPDATE races SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING ` + raceColumns

	race, err := scanRace(r.db.GetPool().QueryRow(ctx, query, id, from, to))
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to transition race status: %w", err)
	}

	return race, nil
}

// StartInProgress flips an open race to in_progress, overwriting start_time
// with the mass-start instant in the same guarded statement.
func (r *PostgresRaceRepository) StartInProgress(ctx context.Context, id uuid.UUID, massStart time.Time) (*models.Race, error) {
	query := `
		UPDATE races SET status = 'in_progress', start_time = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'open'
		RETURNING ` + raceColumns

	race, err := scanRace(r.db.GetPool().QueryRow(ctx, query, id, massStart))
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to start race: %w", err)
	}

	return race, nil
}

// FinishCompleted flips an in-progress race to completed with the given end time
func (r *PostgresRaceRepository) FinishCompleted(ctx context.Context, id uuid.UUID, endTime time.Time) (*models.Race, error) {
	query := `
		UPDATE races SET status = 'completed', end_time = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'in_progress'
		RETURNING ` + raceColumns

	race, err := scanRace(r.db.GetPool().QueryRow(ctx, query, id, endTime))
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to finish race: %w", err)
	}

	return race, nil
}

// Cancel moves any pre-completed race to cancelled
func (r *PostgresRaceRepository) Cancel(ctx context.Context, id uuid.UUID) (*models.Race, error) {
	query := `
		UPDATE races SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('completed', 'cancelled')
		RETURNING ` + raceColumns

	race, err := scanRace(r.db.GetPool().QueryRow(ctx, query, id))
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to cancel race: %w", err)
	}

	return race, nil
}

// SetWeather stores a weather snapshot document on the race
func (r *PostgresRaceRepository) SetWeather(ctx context.Context, id uuid.UUID, snapshot json.RawMessage) error {
	commandTag, err := r.db.GetPool().Exec(ctx,
		"UPDATE races SET weather = $2, updated_at = NOW() WHERE id = $1", id, snapshot)
	if err != nil {
		return fmt.Errorf("failed to set race weather: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}
