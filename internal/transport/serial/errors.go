package serial

import "errors"

// Domain-specific errors for the serial transport.
var (
	// ErrPortClosed is returned when reading or writing a closed connection.
	ErrPortClosed = errors.New("serial: port closed")

	// ErrInvalidOptions is returned when port options cannot be normalised.
	ErrInvalidOptions = errors.New("serial: invalid port options")

	// ErrNoPort is returned when Open is called without a port path.
	ErrNoPort = errors.New("serial: port path is required")
)
