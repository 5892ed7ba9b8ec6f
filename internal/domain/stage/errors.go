package stage

import "errors"

var (
	// ErrInvalidDuration is returned for a non-positive stage duration.
	ErrInvalidDuration = errors.New("stage duration must be positive")
	// ErrInvalidClock is returned when a cutoff is not a valid HH:MM time.
	ErrInvalidClock = errors.New("invalid cutoff clock")
	// ErrUnknownStage is returned when a stage name cannot be parsed.
	ErrUnknownStage = errors.New("unknown stage")
)
