package models

import "errors"

// Sentinel errors shared by repositories and services
var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicateKey = errors.New("duplicate key violation")
	ErrInvalidID    = errors.New("invalid ID format")
)

// ErrorKind classifies domain failures for callers that need more than a string
type ErrorKind string

const (
	KindNotFound          ErrorKind = "not_found"
	KindInvalidTransition ErrorKind = "invalid_transition"
	KindConflict          ErrorKind = "conflict"
)

// DomainError carries a failure classification and a display-ready reason.
// The Reason string is safe to surface to end users verbatim.
type DomainError struct {
	Kind   ErrorKind
	Reason string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Reason
}

// Is lets errors.Is match both identical domain errors and the kind sentinels,
// so callers can test errors.Is(err, models.ErrNotFound) without knowing the
// concrete domain error.
func (e *DomainError) Is(target error) bool {
	if other, ok := target.(*DomainError); ok {
		return e.Kind == other.Kind && e.Reason == other.Reason
	}
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrDuplicateKey:
		return e.Kind == KindConflict
	}
	return false
}

// NewDomainError creates a classified domain error
func NewDomainError(kind ErrorKind, reason string) *DomainError {
	return &DomainError{Kind: kind, Reason: reason}
}

// Domain errors with display-ready reasons
var (
	ErrRaceNotFound        = NewDomainError(KindNotFound, "Race not found")
	ErrRiderNotFound       = NewDomainError(KindNotFound, "Rider not found")
	ErrResultNotFound      = NewDomainError(KindNotFound, "Result not found")
	ErrAlreadyRegistered   = NewDomainError(KindConflict, "Rider already registered for this race")
	ErrRiderNotStarted     = NewDomainError(KindNotFound, "Rider not found or not started yet")
	ErrRaceNotOpen         = NewDomainError(KindInvalidTransition, "Race is not open for starting")
	ErrRegistrationClosed  = NewDomainError(KindInvalidTransition, "Race is not open for registration")
	ErrRaceNotInProgress   = NewDomainError(KindInvalidTransition, "Only races in progress can be finished")
	ErrRaceAlreadyOver     = NewDomainError(KindInvalidTransition, "Race is already completed or cancelled")
	ErrInvalidResultStatus = NewDomainError(KindInvalidTransition, "Invalid status")
	ErrNoCoordinates       = NewDomainError(KindConflict, "Race location has no coordinates")
)
