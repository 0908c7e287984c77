package storage

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist. Callers
	// translate it to the model's typed not-found errors at the service
	// boundary.
	ErrNotFound = errors.New("storage: not found")

	// ErrForbidden is returned by ConfirmMatch when the user owns neither
	// side of the match or has already confirmed every side they own.
	ErrForbidden = errors.New("storage: confirmation not permitted")

	// ErrNotOpen is returned when an operation requires an open match and the
	// match is already closed or cancelled.
	ErrNotOpen = errors.New("storage: match is not open")
)
