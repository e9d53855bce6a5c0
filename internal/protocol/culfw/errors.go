package culfw

import "errors"

// Domain errors for the culfw codec.
var (
	// ErrMalformedFrame is returned when a line has a known prefix but the
	// wrong length or invalid hex.
	ErrMalformedFrame = errors.New("culfw: malformed frame")

	// ErrUnknownCommand is returned when encoding a command the protocol
	// does not support.
	ErrUnknownCommand = errors.New("culfw: unknown command")

	// ErrInvalidParameter is returned when a command parameter is missing
	// or out of range.
	ErrInvalidParameter = errors.New("culfw: invalid parameter")

	// ErrFamilyDisabled is returned when a command targets a family whose
	// protocol is switched off.
	ErrFamilyDisabled = errors.New("culfw: protocol disabled")
)
