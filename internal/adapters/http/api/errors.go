package api

import "errors"

// ErrServe is returned when the HTTP listener stops unexpectedly.
var ErrServe = errors.New("http serve failed")
