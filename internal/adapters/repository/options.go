package repository

import (
	"strings"

	"github.com/okian/mafiabot/pkg/logger"
)

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithDialect selects sqlite or postgres.
func WithDialect(d string) Option {
	return func(s *Store) {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			s.dialect = Dialect(d)
		}
	}
}

// WithSQLitePath sets the database file for the sqlite dialect.
func WithSQLitePath(path string) Option {
	return func(s *Store) {
		if path != "" {
			s.sqlitePath = path
		}
	}
}

// WithPostgresDSN sets the connection string for the postgres dialect.
func WithPostgresDSN(dsn string) Option {
	return func(s *Store) {
		s.dsn = strings.TrimSpace(dsn)
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}
