package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var errConnClosed = errors.New("fake: connection closed")

// fakeConn is a scripted Connection.
type fakeConn struct {
	frames  chan []byte
	readErr chan error
	closed  chan struct{}
	once    sync.Once

	mu            sync.Mutex
	writes        [][]byte
	writeErr      error
	writesOnClose atomic.Int32
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames:  make(chan []byte, 16),
		readErr: make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadFrame(timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f := <-c.frames:
		return f, nil
	case err := <-c.readErr:
		return nil, err
	case <-c.closed:
		return nil, errConnClosed
	case <-timer.C:
		return nil, ErrReadTimeout
	}
}

func (c *fakeConn) Write(frame []byte) error {
	if c.isClosed() {
		c.writesOnClose.Add(1)
		return errConnClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.writes = append(c.writes, append([]byte(nil), frame...))
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.writes))
	for i, w := range c.writes {
		out[i] = string(w)
	}
	return out
}

// fakeTransport hands out fakeConns. openErrs[i] is returned by the i-th
// Open call when non-nil.
type fakeTransport struct {
	mu       sync.Mutex
	openErrs []error
	opens    int
	conns    []*fakeConn
}

func (t *fakeTransport) Open(ctx context.Context, _ string, _ int) (Connection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := t.opens
	t.opens++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if idx < len(t.openErrs) && t.openErrs[idx] != nil {
		return nil, t.openErrs[idx]
	}
	c := newFakeConn()
	t.conns = append(t.conns, c)
	return c, nil
}

func (t *fakeTransport) openCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opens
}

func (t *fakeTransport) conn(i int) *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i >= len(t.conns) {
		return nil
	}
	return t.conns[i]
}

func (t *fakeTransport) allConns() []*fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*fakeConn(nil), t.conns...)
}

// mapDecoder emits the event registered for a frame, or a RawFrame.
type mapDecoder map[string]Event

func (d mapDecoder) Decode(frame []byte, emit func(Event)) {
	if ev, ok := d[string(frame)]; ok {
		emit(ev)
		return
	}
	emit(RawFrame{Data: frame})
}

// recordingHandler counts Update calls.
type recordingHandler struct {
	mu   sync.Mutex
	msgs []DeviceMessage
	err  error
	hook func(DeviceMessage)
}

func (h *recordingHandler) Update(msg DeviceMessage) error {
	if h.hook != nil {
		h.hook(msg)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, msg)
	return h.err
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.msgs)
}

type candidate struct {
	addr DeviceAddress
	hint string
}

// recordingSink records discovery candidates.
type recordingSink struct {
	mu         sync.Mutex
	candidates []candidate
}

func (s *recordingSink) OnCandidate(addr DeviceAddress, hint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates = append(s.candidates, candidate{addr: addr, hint: hint})
}

func (s *recordingSink) all() []candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]candidate(nil), s.candidates...)
}

// recordingDiag records side events.
type recordingDiag struct {
	mu     sync.Mutex
	events []Event
}

func (d *recordingDiag) OnDiagnostic(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
}

func (d *recordingDiag) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events)
}

// recordingStatus records status transitions.
type recordingStatus struct {
	mu       sync.Mutex
	statuses []Status
}

func (s *recordingStatus) SetStatus(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, st)
}

func (s *recordingStatus) all() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Status(nil), s.statuses...)
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
