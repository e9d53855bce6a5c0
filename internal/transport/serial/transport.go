package serial

import (
	"context"
	"fmt"
	"io"
	"time"

	goserial "go.bug.st/serial"

	"github.com/nerrad567/gray-logic-rfbridge/internal/bridges/core"
)

// Port is the subset of go.bug.st/serial.Port the transport needs.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// OpenFunc opens the port at path with the given mode.
type OpenFunc func(path string, mode *goserial.Mode) (Port, error)

func openSystemPort(path string, mode *goserial.Mode) (Port, error) {
	p, err := goserial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Option configures a Transport.
type Option func(*Transport)

// WithOpenFunc replaces the function used to open ports.
func WithOpenFunc(fn OpenFunc) Option {
	return func(t *Transport) { t.open = fn }
}

// WithTrafficLog records every frame of each opened connection to a new
// file in dir named after bridgeID.
func WithTrafficLog(dir, bridgeID string) Option {
	return func(t *Transport) {
		t.trafficDir = dir
		t.bridgeID = bridgeID
	}
}

// Transport opens line-framed serial connections. It implements
// core.Transport.
type Transport struct {
	options    PortOptions
	open       OpenFunc
	trafficDir string
	bridgeID   string
	now        func() time.Time
}

// NewTransport creates a transport with the given line settings.
func NewTransport(opts PortOptions, options ...Option) *Transport {
	t := &Transport{
		options: opts,
		open:    openSystemPort,
		now:     time.Now,
	}
	for _, o := range options {
		o(t)
	}
	return t
}

// Open opens port at speed. A non-positive speed keeps the configured
// baud rate.
func (t *Transport) Open(ctx context.Context, port string, speed int) (core.Connection, error) {
	if port == "" {
		return nil, ErrNoPort
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := t.options
	if speed > 0 {
		opts.BaudRate = speed
	}
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	p, err := t.open(port, mode)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", port, err)
	}

	// The caller gave up while the port was opening.
	if err := ctx.Err(); err != nil {
		_ = p.Close()
		return nil, err
	}

	var traffic *TrafficLog
	if t.trafficDir != "" {
		traffic, err = OpenTrafficLog(t.trafficDir, t.bridgeID, t.now())
		if err != nil {
			_ = p.Close()
			return nil, err
		}
	}

	return newConn(p, traffic), nil
}
