package onewire

import "errors"

// Domain errors for the 1-wire gateway protocol.
var (
	// ErrMalformedFrame is returned for a reading line that does not parse.
	ErrMalformedFrame = errors.New("onewire: malformed frame")

	// ErrReadFailed is reported when the gateway could not read a sensor.
	ErrReadFailed = errors.New("onewire: sensor read failed")

	// ErrNoReading is returned by Poll when sensors stayed silent after
	// every try.
	ErrNoReading = errors.New("onewire: no reading")

	// ErrNoCommands is returned by EncodeCommand; 1-wire sensors are
	// read-only.
	ErrNoCommands = errors.New("onewire: sensors accept no commands")
)
