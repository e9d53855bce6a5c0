package core

import (
	"context"
	"time"
)

// Transport opens connections to a serial-attached transceiver.
type Transport interface {
	Open(ctx context.Context, port string, speed int) (Connection, error)
}

// Connection is an open link to the transceiver.
//
// ReadFrame is only called from the reader goroutine. Write is only called
// inside WriteGate.WithLock. Close may be called concurrently with a
// blocked ReadFrame and must unblock it.
type Connection interface {
	// ReadFrame returns the next frame, or ErrReadTimeout if none arrived
	// within timeout.
	ReadFrame(timeout time.Duration) ([]byte, error)
	Write(frame []byte) error
	Close() error
}

// Decoder turns raw frames into events. Decode calls emit exactly once per
// decoded unit, in frame order, before returning.
type Decoder interface {
	Decode(frame []byte, emit func(Event))
}

// Handler applies decoded messages to one device.
type Handler interface {
	Update(msg DeviceMessage) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(msg DeviceMessage) error

// Update calls f(msg).
func (f HandlerFunc) Update(msg DeviceMessage) error { return f(msg) }

// CandidateSink receives devices seen during a discovery scan.
type CandidateSink interface {
	OnCandidate(addr DeviceAddress, hint string)
}

// DiagnosticSink receives side events that are not addressed to a device.
type DiagnosticSink interface {
	OnDiagnostic(ev Event)
}

// Status is the externally visible bridge status.
type Status struct {
	Online bool
	Detail string
}

// Online is the status reported while the connection is open.
var Online = Status{Online: true}

// Offline returns an offline status with the given detail.
func Offline(detail string) Status {
	return Status{Online: false, Detail: detail}
}

// StatusSink is told about every connection state transition.
type StatusSink interface {
	SetStatus(s Status)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}
