package worker

import "errors"

// ErrStopped is returned when a delivery is abandoned during shutdown.
var ErrStopped = errors.New("worker stopped")
