package core

import "errors"

// Domain errors for the bridge core.
var (
	// ErrDuplicateAddress is returned when a handler is registered for an
	// address that already has one.
	ErrDuplicateAddress = errors.New("core: address already registered")

	// ErrUnknownFamily is returned for an address whose family is not one
	// of the supported protocol families.
	ErrUnknownFamily = errors.New("core: unknown protocol family")

	// ErrInvalidAddress is returned when an address string cannot be parsed.
	ErrInvalidAddress = errors.New("core: invalid device address")

	// ErrNotConnected is returned when a write is attempted while the
	// connection is not open.
	ErrNotConnected = errors.New("core: not connected")

	// ErrConnectionFailed is returned when opening or initialising the
	// transport fails.
	ErrConnectionFailed = errors.New("core: connection failed")

	// ErrReadTimeout is returned by Connection.ReadFrame when no frame
	// arrived within the timeout. It is a normal poll result, not a fault.
	ErrReadTimeout = errors.New("core: read timeout")

	// ErrDisposed is returned by operations on a disposed controller.
	ErrDisposed = errors.New("core: controller disposed")

	// ErrNilHandler is returned when registering a nil handler.
	ErrNilHandler = errors.New("core: handler is nil")
)
