package model

import "errors"

// Sentinel errors for the matching core. Handlers map these to HTTP statuses
// with errors.Is; everything else is a 500.
var (
	// ErrMatchNotFound: a referenced match does not exist.
	ErrMatchNotFound = errors.New("match not found")

	// ErrNotParticipant: the acting user owns neither side of the match, or
	// has already confirmed every side they own. Re-confirming is an error by
	// contract, not a no-op success.
	ErrNotParticipant = errors.New("unauthorized or already confirmed")

	// ErrMatchNotOpen: the operation requires the match to be open (chat join
	// and send).
	ErrMatchNotOpen = errors.New("match is not open")
)
