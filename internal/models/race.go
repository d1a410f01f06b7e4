package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RaceStatus is the lifecycle status of a race
type RaceStatus string

const (
	RaceStatusDraft      RaceStatus = "draft"
	RaceStatusOpen       RaceStatus = "open"
	RaceStatusClosed     RaceStatus = "closed"
	RaceStatusInProgress RaceStatus = "in_progress"
	RaceStatusCompleted  RaceStatus = "completed"
	RaceStatusCancelled  RaceStatus = "cancelled"
)

// Valid reports whether the status is a known race status
func (s RaceStatus) Valid() bool {
	switch s {
	case RaceStatusDraft, RaceStatusOpen, RaceStatusClosed,
		RaceStatusInProgress, RaceStatusCompleted, RaceStatusCancelled:
		return true
	default:
		return false
	}
}

// Race represents a mountain bike race event.
// StartTime holds the scheduled start until the race transitions to
// in_progress, at which point it is overwritten with the mass-start instant.
type Race struct {
	ID           uuid.UUID       `db:"id" json:"id" validate:"required,uuid4"`
	Name         string          `db:"name" json:"name" validate:"required"`
	LocationName string          `db:"location_name" json:"location_name" validate:"required"`
	Latitude     *float64        `db:"latitude" json:"latitude"`
	Longitude    *float64        `db:"longitude" json:"longitude"`
	StartTime    time.Time       `db:"start_time" json:"start_time" validate:"required"`
	EndTime      *time.Time      `db:"end_time" json:"end_time"`
	DistanceKm   float64         `db:"distance_km" json:"distance_km" validate:"required,gt=0"`
	Terrain      string          `db:"terrain" json:"terrain"`
	Difficulty   string          `db:"difficulty" json:"difficulty"`
	Categories   []string        `db:"categories" json:"categories"`
	Status       RaceStatus      `db:"status" json:"status" validate:"required"`
	Weather      json.RawMessage `db:"weather" json:"weather,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// HasCoordinates reports whether the race location carries lat/lon
func (r *Race) HasCoordinates() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// AllowsCategory reports whether a rider category may enter this race.
// A race with no category restriction admits everyone.
func (r *Race) AllowsCategory(category string) bool {
	if len(r.Categories) == 0 {
		return true
	}
	for _, c := range r.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// IsOver reports whether the race has reached a terminal status
func (r *Race) IsOver() bool {
	return r.Status == RaceStatusCompleted || r.Status == RaceStatusCancelled
}

// ParseWeather decodes the stored weather snapshot, nil when none recorded
func (r *Race) ParseWeather() (*WeatherSnapshot, error) {
	if len(r.Weather) == 0 {
		return nil, nil
	}

	var snap WeatherSnapshot
	if err := json.Unmarshal(r.Weather, &snap); err != nil {
		return nil, err
	}

	return &snap, nil
}

// SetWeather stores a weather snapshot on the race
func (r *Race) SetWeather(snap *WeatherSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	r.Weather = data
	return nil
}
