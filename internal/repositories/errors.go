package repositories

import "errors"

// Common repository errors
var (
	ErrNotFound        = errors.New("record not found")
	ErrVersionConflict = errors.New("application was modified concurrently")
	ErrDuplicateKey    = errors.New("duplicate key violation")
)
