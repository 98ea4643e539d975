package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrVersionConflict is returned when a guarded write lost a race with
	// another writer of the same record.
	ErrVersionConflict = errors.New("record was modified concurrently")

	// ErrDuplicate is returned when a unique key already exists.
	ErrDuplicate = errors.New("duplicate entity")
)
