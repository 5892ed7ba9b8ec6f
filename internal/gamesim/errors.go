package gamesim

import "errors"

var (
	// ErrInvalidConfig is returned when the simulation cannot be generated.
	ErrInvalidConfig = errors.New("invalid simulation config")
	// ErrUnhealthy is returned when /healthz does not answer 200.
	ErrUnhealthy = errors.New("moderator is not healthy")
	// ErrMismatch is returned when the reported tally differs from the game.
	ErrMismatch = errors.New("tally mismatch")
	// ErrNoTally is returned when the moderator never reports the day.
	ErrNoTally = errors.New("no tally reported")
)
