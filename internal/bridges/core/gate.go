package core

import (
	"sync"
	"sync/atomic"
)

// ConnectionState is the lifecycle state of a bridge connection.
type ConnectionState int32

// Connection states. The zero value is StateClosed.
const (
	StateClosed ConnectionState = iota
	StateOpening
	StateOpen
	StateFaulted
)

func (s ConnectionState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// adapter pairs an open connection with the decoder reading from it.
type adapter struct {
	conn    Connection
	decoder Decoder
}

// WriteGate is the single serialization point for outbound writes and
// connection replacement. It guards the adapter reference and the
// connection state; nothing else may touch either.
type WriteGate struct {
	mu      sync.Mutex
	adapter *adapter
	state   ConnectionState

	// stateMirror lets State() answer without waiting out a recovery.
	stateMirror atomic.Int32
}

// WithLock runs fn with exclusive access to the current connection.
//
// It returns ErrNotConnected without calling fn unless the state is Open.
// Errors from fn are returned unchanged and are not retried.
func (g *WriteGate) WithLock(fn func(conn Connection) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != StateOpen || g.adapter == nil {
		return ErrNotConnected
	}
	return fn(g.adapter.conn)
}

// State returns the current connection state without blocking.
func (g *WriteGate) State() ConnectionState {
	return ConnectionState(g.stateMirror.Load())
}

// setStateLocked updates the state. The caller must hold g.mu.
func (g *WriteGate) setStateLocked(s ConnectionState) {
	g.state = s
	g.stateMirror.Store(int32(s))
}
