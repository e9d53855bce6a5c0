package serial

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-rfbridge/internal/bridges/core"
)

const (
	readChunk = 256

	// maxLineLength caps a frame that never sees its newline.
	maxLineLength = 1024
)

// Conn is a line-framed connection over an open port.
//
// ReadFrame must only be called from one goroutine. Write may be called
// concurrently with ReadFrame.
type Conn struct {
	port    Port
	traffic *TrafficLog

	pending []byte
	buf     [readChunk]byte

	writeMu sync.Mutex
	closed  atomic.Bool
}

func newConn(p Port, traffic *TrafficLog) *Conn {
	return &Conn{port: p, traffic: traffic}
}

// ReadFrame returns the next non-empty line without its terminator. It
// returns core.ErrReadTimeout when no complete line arrives within timeout.
func (c *Conn) ReadFrame(timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)

	for {
		if frame, ok := c.nextLine(); ok {
			c.traffic.Record("RX", frame)
			return frame, nil
		}
		if c.closed.Load() {
			return nil, ErrPortClosed
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, core.ErrReadTimeout
		}
		if err := c.port.SetReadTimeout(remaining); err != nil {
			return nil, fmt.Errorf("setting read timeout: %w", err)
		}

		n, err := c.port.Read(c.buf[:])
		if n > 0 {
			c.pending = append(c.pending, c.buf[:n]...)
		}
		if err != nil {
			if c.closed.Load() {
				return nil, ErrPortClosed
			}
			return nil, fmt.Errorf("reading port: %w", err)
		}
		if n == 0 {
			// go.bug.st/serial reports an expired read timeout as (0, nil).
			return nil, core.ErrReadTimeout
		}
	}
}

// nextLine pops one complete line from the pending buffer.
func (c *Conn) nextLine() ([]byte, bool) {
	for {
		idx := bytes.IndexByte(c.pending, '\n')
		if idx < 0 {
			if len(c.pending) > maxLineLength {
				frame := bytes.Clone(c.pending)
				c.pending = c.pending[:0]
				return frame, true
			}
			return nil, false
		}

		line := bytes.TrimRight(c.pending[:idx], "\r")
		frame := bytes.Clone(line)
		c.pending = c.pending[idx+1:]
		if len(frame) > 0 {
			return frame, true
		}
	}
}

// Write sends frame followed by a newline.
func (c *Conn) Write(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return ErrPortClosed
	}

	out := frame
	if !bytes.HasSuffix(frame, []byte("\n")) {
		out = append(bytes.Clone(frame), '\n')
	}
	for len(out) > 0 {
		n, err := c.port.Write(out)
		if err != nil {
			return fmt.Errorf("writing port: %w", err)
		}
		if n == 0 {
			return errors.New("writing port: short write")
		}
		out = out[n:]
	}

	c.traffic.Record("TX", bytes.TrimRight(frame, "\r\n"))
	return nil
}

// Close closes the port and the traffic log. It is safe to call more than
// once.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := c.port.Close()
	if cerr := c.traffic.Close(); err == nil {
		err = cerr
	}
	return err
}
