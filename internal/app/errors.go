package service

import "errors"

var (
	// ErrGameOver is returned once the thread reaches the end of the game.
	ErrGameOver = errors.New("game over")
	// ErrNotStarted is returned by operations that need Start first.
	ErrNotStarted = errors.New("service not started")
	// ErrMissingDependency is returned by Start when a collaborator is unset.
	ErrMissingDependency = errors.New("missing dependency")
)
