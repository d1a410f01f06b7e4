package models

import (
	"time"

	"github.com/google/uuid"
)

// Rider represents a registered rider in the directory
type Rider struct {
	ID        uuid.UUID `db:"id" json:"id" validate:"required,uuid4"`
	FirstName string    `db:"first_name" json:"first_name" validate:"required"`
	LastName  string    `db:"last_name" json:"last_name" validate:"required"`
	Email     string    `db:"email" json:"email" validate:"omitempty,email"`
	Category  string    `db:"category" json:"category"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// FullName returns the rider's display name
func (r *Rider) FullName() string {
	return r.FirstName + " " + r.LastName
}
