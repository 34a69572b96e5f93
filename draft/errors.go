package draft

import "errors"

var (
	// ErrNotFound means the referenced draft id does not exist.
	ErrNotFound = errors.New("draft not found")

	// ErrInvalidTransition means the requested status change is not legal
	// from the draft's current status.  Nothing is mutated.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrUnknownStatus means storage handed back a status outside the
	// closed set.  This is an internal consistency fault.
	ErrUnknownStatus = errors.New("unknown draft status")
)

// A GenerationError means a generation adapter was unavailable.  The reason
// is opaque to the core and only suitable for display.
type GenerationError struct {
	Reason string
}

func (e *GenerationError) Error() string {
	return "generation unavailable: " + e.Reason
}
