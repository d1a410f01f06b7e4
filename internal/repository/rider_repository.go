package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/singletrack/race-control/internal/database"
	"github.com/singletrack/race-control/internal/models"
)

const riderColumns = `id, first_name, last_name, email, category, created_at, updated_at`

// PostgresRiderRepository implements RiderRepository for PostgreSQL
type PostgresRiderRepository struct {
	db *database.DB
}

// NewPostgresRiderRepository creates a new rider repository
func NewPostgresRiderRepository(db *database.DB) RiderRepository {
	return &PostgresRiderRepository{db: db}
}

func scanRider(row pgx.Row) (*models.Rider, error) {
	rider := &models.Rider{}
	err := row.Scan(
		&rider.ID, &rider.FirstName, &rider.LastName, &rider.Email,
		&rider.Category, &rider.CreatedAt, &rider.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan rider: %w", err)
	}
	return rider, nil
}

// Create inserts a new rider
func (r *PostgresRiderRepository) Create(ctx context.Context, rider *models.Rider) error {
	query := `
		INSERT INTO riders (id, first_name, last_name, email, category)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.GetPool().Exec(ctx, query,
		rider.ID, rider.FirstName, rider.LastName, rider.Email, rider.Category,
	)
	if err != nil {
		return fmt.Errorf("failed to create rider: %w", err)
	}

	return nil
}

// GetByID retrieves a rider by ID
func (r *PostgresRiderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Rider, error) {
	query := `SELECT ` + riderColumns + ` FROM riders WHERE id = $1`

	rider, err := scanRider(r.db.GetPool().QueryRow(ctx, query, id))
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rider: %w", err)
	}

	return rider, nil
}

// GetAll retrieves all riders ordered by last name
func (r *PostgresRiderRepository) GetAll(ctx context.Context) ([]*models.Rider, error) {
	query := `SELECT ` + riderColumns + ` FROM riders ORDER BY last_name, first_name`

	rows, err := r.db.GetPool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query riders: %w", err)
	}
	defer rows.Close()

	var riders []*models.Rider
	for rows.Next() {
		rider, err := scanRider(rows)
		if err != nil {
			return nil, err
		}
		riders = append(riders, rider)
	}

	return riders, rows.Err()
}

// GetNotInRace retrieves riders with no result row for the race
func (r *PostgresRiderRepository) GetNotInRace(ctx context.Context, raceID uuid.UUID) ([]*models.Rider, error) {
	query := `
		SELECT ` + riderColumns + `
		FROM riders
		WHERE id NOT IN (SELECT rider_id FROM results WHERE race_id = $1)
		ORDER BY last_name, first_name
	`

	rows, err := r.db.GetPool().Query(ctx, query, raceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query riders not in race: %w", err)
	}
	defer rows.Close()

	var riders []*models.Rider
	for rows.Next() {
		rider, err := scanRider(rows)
		if err != nil {
			return nil, err
		}
		riders = append(riders, rider)
	}

	return riders, rows.Err()
}
