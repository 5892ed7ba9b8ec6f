package repository

import "errors"

// Sentinel errors returned by Open.
var (
	ErrUnsupportedDialect = errors.New("unsupported database dialect")
	ErrMissingDSN         = errors.New("postgres dialect requires a DSN")
)
