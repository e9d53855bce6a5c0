package discovery

import "errors"

// Domain errors for the discovery store.
var (
	// ErrNotFound is returned when no candidate matches the family and address.
	ErrNotFound = errors.New("discovery: candidate not found")

	// ErrNotStarted is returned when recording before Start or after Stop.
	ErrNotStarted = errors.New("discovery: store not started")

	// ErrInvalidCandidate is returned for a candidate without family or address.
	ErrInvalidCandidate = errors.New("discovery: invalid candidate")
)
