package postgres

import "github.com/cockroachdb/errors"

var (
	ErrNilConfig     = errors.New("postgres: config is nil")
	ErrInvalidConfig = errors.New("postgres: invalid config")
)
