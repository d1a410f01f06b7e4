package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/singletrack/race-control/internal/database"
	"github.com/singletrack/race-control/internal/models"
)

const resultColumns = `id, race_id, rider_id, start_time, finish_time, total_time,
       status, position, notes, created_at, updated_at`

const uniqueViolationCode = "23505"

// PostgresResultRepository implements ResultRepository for PostgreSQL
type PostgresResultRepository struct {
	db *database.DB
}

// NewPostgresResultRepository creates a new result repository
func NewPostgresResultRepository(db *database.DB) ResultRepository {
	return &PostgresResultRepository{db: db}
}

func scanResult(row pgx.Row) (*models.Result, error) {
	result := &models.Result{}
	err := row.Scan(
		&result.ID, &result.RaceID, &result.RiderID, &result.StartTime, &result.FinishTime,
		&result.TotalTime, &result.Status, &result.Position, &result.Notes,
		&result.CreatedAt, &result.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan result: %w", err)
	}
	return result, nil
}

// Create inserts a new result. The unique constraint on (race_id, rider_id)
// surfaces duplicate registrations as models.ErrDuplicateKey.
func (r *PostgresResultRepository) Create(ctx context.Context, result *models.Result) error {
	query := `
		INSERT INTO results (id, race_id, rider_id, status, notes)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.GetPool().Exec(ctx, query,
		result.ID, result.RaceID, result.RiderID, result.Status, result.Notes,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return models.ErrDuplicateKey
		}
		return fmt.Errorf("failed to create result: %w", err)
	}

	return nil
}

// GetByRaceAndRider retrieves the unique result for a (race, rider) pair
func (r *PostgresResultRepository) GetByRaceAndRider(ctx context.Context, raceID, riderID uuid.UUID) (*models.Result, error) {
	query := `SELECT ` + resultColumns + ` FROM results WHERE race_id = $1 AND rider_id = $2`

	result, err := scanResult(r.db.GetPool().QueryRow(ctx, query, raceID, riderID))
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}

	return result, nil
}

// GetByRaceID retrieves all results for a race with rider info attached
func (r *PostgresResultRepository) GetByRaceID(ctx context.Context, raceID uuid.UUID) ([]*models.Result, error) {
	query := `
		SELECT res.id, res.race_id, res.rider_id, res.start_time, res.finish_time,
		       res.total_time, res.status, res.position, res.notes, res.created_at, res.updated_at,
		       rid.id, rid.first_name, rid.last_name, rid.email, rid.category, rid.created_at, rid.updated_at
		FROM results res
		JOIN riders rid ON rid.id = res.rider_id
		WHERE res.race_id = $1
		ORDER BY res.created_at ASC
	`

	rows, err := r.db.GetPool().Query(ctx, query, raceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []*models.Result
	for rows.Next() {
		result := &models.Result{Rider: &models.Rider{}}
		err := rows.Scan(
			&result.ID, &result.RaceID, &result.RiderID, &result.StartTime, &result.FinishTime,
			&result.TotalTime, &result.Status, &result.Position, &result.Notes,
			&result.CreatedAt, &result.UpdatedAt,
			&result.Rider.ID, &result.Rider.FirstName, &result.Rider.LastName,
			&result.Rider.Email, &result.Rider.Category, &result.Rider.CreatedAt, &result.Rider.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, result)
	}

	return results, rows.Err()
}

// MassStart transitions all registered results of a race to started with one
// shared timestamp. A single guarded UPDATE keeps the transition atomic: no
// partial mass start is observable, and every started rider carries the
// identical instant.
func (r *PostgresResultRepository) MassStart(ctx context.Context, raceID uuid.UUID, startTime time.Time) (int64, error) {
	query := `
		UPDATE results SET status = 'started', start_time = $2, updated_at = NOW()
		WHERE race_id = $1 AND status = 'registered'
	`

	commandTag, err := r.db.GetPool().Exec(ctx, query, raceID, startTime)
	if err != nil {
		return 0, fmt.Errorf("failed to mass start results: %w", err)
	}

	return commandTag.RowsAffected(), nil
}

// FinishStarted performs the compare-and-swap finish. total_time is computed
// from the stored start_time inside the statement, so elapsed time is derived
// under the same guard that enforces exactly-once finishing.
func (r *PostgresResultRepository) FinishStarted(ctx context.Context, raceID, riderID uuid.UUID, finishTime time.Time) (*models.Result, error) {
	query := `
		UPDATE results SET
			status = 'finished',
			finish_time = $3,
			total_time = FLOOR(EXTRACT(EPOCH FROM ($3::timestamptz - start_time)))::bigint,
			updated_at = NOW()
		WHERE race_id = $1 AND rider_id = $2 AND status = 'started'
		RETURNING ` + resultColumns

	result, err := scanResult(r.db.GetPool().QueryRow(ctx, query, raceID, riderID, finishTime))
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to finish result: %w", err)
	}

	return result, nil
}

// SetStatus applies an administrative status override. finish_time and notes
// are only written when provided. total_time and position exist only for
// finished results, so demoting a finished result clears both in the same
// statement.
func (r *PostgresResultRepository) SetStatus(ctx context.Context, raceID, riderID uuid.UUID, status models.ResultStatus, finishTime *time.Time, notes *string) (*models.Result, error) {
	query := `
		UPDATE results SET
			status = $3,
			finish_time = COALESCE($4, finish_time),
			notes = COALESCE($5, notes),
			total_time = CASE WHEN $3::text = 'finished' THEN total_time ELSE NULL END,
			position = CASE WHEN $3::text = 'finished' THEN position ELSE NULL END,
			updated_at = NOW()
		WHERE race_id = $1 AND rider_id = $2
		RETURNING ` + resultColumns

	result, err := scanResult(r.db.GetPool().QueryRow(ctx, query, raceID, riderID, status, finishTime, notes))
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set result status: %w", err)
	}

	return result, nil
}

// UpdatePositions applies a complete ranking for the race in one transaction.
// Positions are first cleared for the race, then reassigned through a single
// batch, so readers never observe duplicate ranks across a recompute.
func (r *PostgresResultRepository) UpdatePositions(ctx context.Context, raceID uuid.UUID, assignments []PositionAssignment) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			"UPDATE results SET position = NULL, updated_at = NOW() WHERE race_id = $1 AND position IS NOT NULL",
			raceID,
		); err != nil {
			return fmt.Errorf("failed to clear positions: %w", err)
		}

		if len(assignments) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, a := range assignments {
			batch.Queue(
				"UPDATE results SET position = $2, updated_at = NOW() WHERE id = $1",
				a.ResultID, a.Position,
			)
		}

		br := tx.SendBatch(ctx, batch)
		defer br.Close()

		for range assignments {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("failed to assign position: %w", err)
			}
		}

		return nil
	})
}
