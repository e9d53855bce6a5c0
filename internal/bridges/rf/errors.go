package rf

import "errors"

// Domain errors for the RF bridge package.
var (
	// ErrUnknownProtocol is returned for a bridge.protocol other than
	// "cul" or "onewire".
	ErrUnknownProtocol = errors.New("rf: unknown protocol")

	// ErrDeviceNotRegistered is returned when a command targets an address
	// with no registered device.
	ErrDeviceNotRegistered = errors.New("rf: device not registered")

	// ErrUnsupportedFamily is returned when a device family is not served
	// by the bridge's protocol.
	ErrUnsupportedFamily = errors.New("rf: family not supported by this bridge")

	// ErrAddressMismatch is returned by a device handler given a message
	// for another address.
	ErrAddressMismatch = errors.New("rf: message for another device")

	// ErrNotStarted is returned by operations that need a started bridge.
	ErrNotStarted = errors.New("rf: bridge not started")

	// ErrStopped is returned after Stop.
	ErrStopped = errors.New("rf: bridge stopped")
)
