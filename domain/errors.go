package domain

import "errors"

var (
	// ErrInvalidPermutation is returned when a reorder request is not a
	// permutation of exactly the current members of the slot.
	ErrInvalidPermutation = errors.New("invalid permutation")
	// ErrHabitNotFound indicates the referenced habit does not exist for the user.
	ErrHabitNotFound = errors.New("habit not found")
	// ErrConcurrencyConflict indicates that the underlying storage rejected an
	// update because a newer version of the entity is already persisted.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

// ValidationError reports a habit field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }
