package thread

import "errors"

var (
	// ErrNoPath is returned by Open without a snapshot path.
	ErrNoPath = errors.New("thread: snapshot path is required")
	// ErrNoGameMaster is returned by Open without a game master.
	ErrNoGameMaster = errors.New("thread: game master is required")
	// ErrInvalidPage is returned for page numbers below 1.
	ErrInvalidPage = errors.New("thread: invalid page")
)
