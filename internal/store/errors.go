package store

import "errors"

var (
	// ErrNotFound is returned when a mutation references a round, session or
	// driver id that does not exist. The hub reports it to the requester only
	// and broadcasts nothing.
	ErrNotFound = errors.New("not found")

	// ErrInvalid is returned for malformed input such as an unknown session
	// category or an empty required field.
	ErrInvalid = errors.New("invalid input")
)
