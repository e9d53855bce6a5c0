package serial

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	goserial "go.bug.st/serial"

	"github.com/nerrad567/gray-logic-rfbridge/internal/bridges/core"
)

// fakePort feeds scripted chunks to Read and records writes.
type fakePort struct {
	chunks chan []byte
	done   chan struct{}
	once   sync.Once

	mu      sync.Mutex
	written []byte
	timeout time.Duration
}

func newFakePort() *fakePort {
	return &fakePort{chunks: make(chan []byte, 16), done: make(chan struct{})}
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	timeout := p.timeout
	p.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case chunk := <-p.chunks:
		return copy(b, chunk), nil
	case <-p.done:
		return 0, errors.New("file already closed")
	case <-timer.C:
		return 0, nil
	}
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.written = append(p.written, b...)
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	p.timeout = t
	p.mu.Unlock()
	return nil
}

func (p *fakePort) output() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.written)
}

func openFake(t *testing.T, options ...Option) (core.Connection, *fakePort, *goserial.Mode) {
	t.Helper()
	port := newFakePort()
	var gotMode *goserial.Mode
	options = append(options, WithOpenFunc(func(_ string, mode *goserial.Mode) (Port, error) {
		gotMode = mode
		return port, nil
	}))
	tr := NewTransport(PortOptions{}, options...)
	conn, err := tr.Open(context.Background(), "/dev/ttyACM0", 38400)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn, port, gotMode
}

func TestTransport_OpenUsesSpeed(t *testing.T) {
	_, _, mode := openFake(t)
	if mode.BaudRate != 38400 {
		t.Errorf("BaudRate = %d, want 38400", mode.BaudRate)
	}
	if mode.DataBits != 8 || mode.StopBits != goserial.OneStopBit || mode.Parity != goserial.NoParity {
		t.Errorf("mode = %+v, want 8N1", mode)
	}
}

func TestTransport_OpenErrors(t *testing.T) {
	tr := NewTransport(PortOptions{}, WithOpenFunc(func(string, *goserial.Mode) (Port, error) {
		return nil, errors.New("no such file or directory")
	}))

	if _, err := tr.Open(context.Background(), "", 0); !errors.Is(err, ErrNoPort) {
		t.Errorf("Open(\"\") error = %v, want ErrNoPort", err)
	}
	if _, err := tr.Open(context.Background(), "/dev/ttyUSB9", 0); err == nil {
		t.Error("Open() with failing opener returned nil error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := tr.Open(ctx, "/dev/ttyUSB9", 0); !errors.Is(err, context.Canceled) {
		t.Errorf("Open() with cancelled ctx error = %v, want context.Canceled", err)
	}
}

func TestConn_ReadFrameSplitsLines(t *testing.T) {
	conn, port, _ := openFake(t)

	port.chunks <- []byte("T4321")
	port.chunks <- []byte("4169\r\n\r\nH1234")
	port.chunks <- []byte("56\n")

	var frames []string
	for len(frames) < 2 {
		f, err := conn.ReadFrame(time.Second)
		if err != nil {
			t.Fatalf("ReadFrame() error: %v", err)
		}
		frames = append(frames, string(f))
	}

	if want := []string{"T43214169", "H123456"}; !slices.Equal(frames, want) {
		t.Errorf("frames = %v, want %v", frames, want)
	}
}

func TestConn_ReadFrameTimeout(t *testing.T) {
	conn, port, _ := openFake(t)
	port.chunks <- []byte("T43")

	_, err := conn.ReadFrame(20 * time.Millisecond)
	if !errors.Is(err, core.ErrReadTimeout) {
		t.Fatalf("ReadFrame() error = %v, want ErrReadTimeout", err)
	}

	// The partial line survives the timeout.
	port.chunks <- []byte("2141\n")
	f, err := conn.ReadFrame(time.Second)
	if err != nil {
		t.Fatalf("ReadFrame() error: %v", err)
	}
	if string(f) != "T432141" {
		t.Errorf("frame = %q, want T432141", f)
	}
}

func TestConn_ReadAfterCloseFails(t *testing.T) {
	conn, _, _ := openFake(t)
	if err := conn.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if _, err := conn.ReadFrame(time.Second); !errors.Is(err, ErrPortClosed) {
		t.Errorf("ReadFrame() error = %v, want ErrPortClosed", err)
	}
	if err := conn.Write([]byte("X21")); !errors.Is(err, ErrPortClosed) {
		t.Errorf("Write() error = %v, want ErrPortClosed", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
}

func TestConn_WriteTerminatesLines(t *testing.T) {
	conn, port, _ := openFake(t)

	if err := conn.Write([]byte("X21")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if err := conn.Write([]byte("T01\n")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	if got := port.output(); got != "X21\nT01\n" {
		t.Errorf("port output = %q", got)
	}
}

func TestTrafficLog_RecordsBothDirections(t *testing.T) {
	dir := t.TempDir()
	instant := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	port := newFakePort()
	tr := NewTransport(PortOptions{},
		WithOpenFunc(func(string, *goserial.Mode) (Port, error) { return port, nil }),
		WithTrafficLog(dir, "cul-1"),
	)
	tr.now = func() time.Time { return instant }

	conn, err := tr.Open(context.Background(), "/dev/ttyACM0", 0)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	if err := conn.Write([]byte("X21")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	port.chunks <- []byte("T432141a0\n")
	if _, err := conn.ReadFrame(time.Second); err != nil {
		t.Fatalf("ReadFrame() error: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	path := filepath.Join(dir, "CUL_cul-1_2026-03-01T12:00:00Z.log.txt")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading traffic log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("log lines = %d, want 2: %q", len(lines), data)
	}
	if !strings.HasSuffix(lines[0], " TX X21") || !strings.HasSuffix(lines[1], " RX T432141a0") {
		t.Errorf("log = %q", data)
	}
}

func TestTrafficLog_NilIsNoop(t *testing.T) {
	var l *TrafficLog
	l.Record("RX", []byte("x"))
	if err := l.Close(); err != nil {
		t.Errorf("Close() on nil log error: %v", err)
	}
	if l.Path() != "" {
		t.Errorf("Path() = %q, want empty", l.Path())
	}
}

func TestListPorts(t *testing.T) {
	orig := listPorts
	t.Cleanup(func() { listPorts = orig })

	listPorts = func() ([]string, error) { return []string{"/dev/ttyUSB0", "/dev/ttyACM0"}, nil }
	ports, err := ListPorts()
	if err != nil {
		t.Fatalf("ListPorts() error: %v", err)
	}
	if want := []string{"/dev/ttyACM0", "/dev/ttyUSB0"}; !slices.Equal(ports, want) {
		t.Errorf("ListPorts() = %v, want %v", ports, want)
	}

	listPorts = func() ([]string, error) { return nil, errors.New("permission denied") }
	if _, err := ListPorts(); err == nil {
		t.Error("ListPorts() error = nil")
	}
}
