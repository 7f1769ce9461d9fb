package apperrors

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrInvalidSlotIndex     = errors.New("slot index must be between 1 and 5")
	ErrContentIncomplete    = errors.New("content incomplete")
	ErrNoSourceImages       = errors.New("question has no source images")
	ErrMissingCanonicalText = errors.New("canonical question or answer is empty")
)

// IsValidation reports whether err is a synchronous validation failure that
// must be rejected before any state is mutated, as opposed to a transient
// provider failure that the task queue may retry.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidSlotIndex) ||
		errors.Is(err, ErrContentIncomplete) ||
		errors.Is(err, ErrNoSourceImages) ||
		errors.Is(err, ErrMissingCanonicalText)
}
