package repository

import (
	"fmt"

	"github.com/singletrack/race-control/internal/database"
)

// Repositories holds all repository implementations
type Repositories struct {
	Race   RaceRepository
	Result ResultRepository
	Rider  RiderRepository
}

// NewRepositories creates and returns all repository implementations
func NewRepositories(db *database.DB) (*Repositories, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	return &Repositories{
		Race:   NewPostgresRaceRepository(db),
		Result: NewPostgresResultRepository(db),
		Rider:  NewPostgresRiderRepository(db),
	}, nil
}
