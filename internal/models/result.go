package models

import (
	"time"

	"github.com/google/uuid"
)

// ResultStatus is the lifecycle status of a rider's result in a race
type ResultStatus string

const (
	ResultStatusRegistered ResultStatus = "registered"
	ResultStatusStarted    ResultStatus = "started"
	ResultStatusFinished   ResultStatus = "finished"
	ResultStatusDNF        ResultStatus = "dnf"
	ResultStatusDSQ        ResultStatus = "dsq"
)

// Valid reports whether the status is a known result status
func (s ResultStatus) Valid() bool {
	switch s {
	case ResultStatusRegistered, ResultStatusStarted, ResultStatusFinished,
		ResultStatusDNF, ResultStatusDSQ:
		return true
	default:
		return false
	}
}

// Result represents one rider's participation in one race. Exactly one
// result exists per (race, rider) pair.
//
// TotalTime is derived, never user-supplied: it is set only when the result
// reaches finished and equals floor(finishTime - startTime) in whole seconds.
// DNF/DSQ record finishTime (the withdrawal instant) but never a total time.
type Result struct {
	ID         uuid.UUID    `db:"id" json:"id" validate:"required,uuid4"`
	RaceID     uuid.UUID    `db:"race_id" json:"race_id" validate:"required,uuid4"`
	RiderID    uuid.UUID    `db:"rider_id" json:"rider_id" validate:"required,uuid4"`
	StartTime  *time.Time   `db:"start_time" json:"start_time"`
	FinishTime *time.Time   `db:"finish_time" json:"finish_time"`
	TotalTime  *int64       `db:"total_time" json:"total_time"`
	Status     ResultStatus `db:"status" json:"status" validate:"required"`
	Position   *int         `db:"position" json:"position"`
	Notes      *string      `db:"notes" json:"notes"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time    `db:"updated_at" json:"updated_at"`
	Rider      *Rider       `db:"-" json:"rider,omitempty"`
}

// HasFinished reports whether the result carries a ranked elapsed time
func (r *Result) HasFinished() bool {
	return r.Status == ResultStatusFinished && r.TotalTime != nil
}

// GetTotalTime returns the elapsed seconds or 0 if not finished
func (r *Result) GetTotalTime() int64 {
	if r.TotalTime == nil {
		return 0
	}
	return *r.TotalTime
}

// GetNotes returns the notes text or empty string if none
func (r *Result) GetNotes() string {
	if r.Notes == nil {
		return ""
	}
	return *r.Notes
}
