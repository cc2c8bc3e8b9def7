package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a record with the given id already
	// exists, or when a transaction lost a race with a concurrent commit.
	ErrConflict = errors.New("record already exists")

	// ErrPreconditionFailed is returned when the stored ETag differs from
	// the one a conditional write expected.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrTxNotFound is returned for an unknown or finished transaction id.
	ErrTxNotFound = errors.New("transaction not found")
)
