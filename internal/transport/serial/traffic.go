package serial

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TrafficLog records frames read from and written to one connection. A nil
// *TrafficLog discards everything.
type TrafficLog struct {
	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
	now  func() time.Time
}

// TrafficLogName returns the file name used for a traffic log opened at
// instant for bridgeID.
func TrafficLogName(bridgeID string, instant time.Time) string {
	return fmt.Sprintf("CUL_%s_%s.log.txt", bridgeID, instant.UTC().Format(time.RFC3339))
}

// OpenTrafficLog creates a new traffic log in dir.
func OpenTrafficLog(dir, bridgeID string, instant time.Time) (*TrafficLog, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating traffic log dir: %w", err)
	}
	path := filepath.Join(dir, TrafficLogName(bridgeID, instant))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640) //nolint:gosec // path built from config
	if err != nil {
		return nil, fmt.Errorf("opening traffic log: %w", err)
	}
	return &TrafficLog{file: f, w: bufio.NewWriter(f), now: time.Now}, nil
}

// Path returns the log file path.
func (l *TrafficLog) Path() string {
	if l == nil {
		return ""
	}
	return l.file.Name()
}

// Record appends one frame with its direction ("RX" or "TX").
func (l *TrafficLog) Record(direction string, frame []byte) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w == nil {
		return
	}
	fmt.Fprintf(l.w, "%s %s %s\n", l.now().UTC().Format(time.RFC3339Nano), direction, frame)
	_ = l.w.Flush()
}

// Close flushes and closes the file.
func (l *TrafficLog) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w == nil {
		return nil
	}
	_ = l.w.Flush()
	l.w = nil
	return l.file.Close()
}
