package rf

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-rfbridge/internal/bridges/core"
	"github.com/nerrad567/gray-logic-rfbridge/internal/discovery"
	"github.com/nerrad567/gray-logic-rfbridge/internal/transport/serial"
)

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu            sync.Mutex
	published     []mockPublish
	subscriptions []string
	connected     bool
	handlers      map[string]func(topic string, payload []byte)
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		handlers:  make(map[string]func(topic string, payload []byte)),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, mockPublish{
		Topic:    topic,
		Payload:  payload,
		QoS:      qos,
		Retained: retained,
	})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, _ byte, handler func(topic string, payload []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = append(m.subscriptions, topic)
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// GetPublished returns the messages published on topic.
func (m *MockMQTTClient) GetPublished(topic string) []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mockPublish
	for _, p := range m.published {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

// GetPublishedPrefix returns the messages published under prefix.
func (m *MockMQTTClient) GetPublishedPrefix(prefix string) []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mockPublish
	for _, p := range m.published {
		if strings.HasPrefix(p.Topic, prefix) {
			out = append(out, p)
		}
	}
	return out
}

func (m *MockMQTTClient) GetSubscriptions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.subscriptions...)
}

// SimulateMessage delivers payload on topic to the handler subscribed
// with pattern.
func (m *MockMQTTClient) SimulateMessage(pattern, topic string, payload []byte) {
	m.mu.Lock()
	handler, ok := m.handlers[pattern]
	m.mu.Unlock()
	if ok {
		handler(topic, payload)
	}
}

var errConnClosed = errors.New("fake: connection closed")

// fakeConn is a scripted core.Connection.
type fakeConn struct {
	frames chan []byte
	closed chan struct{}
	once   sync.Once

	mu     sync.Mutex
	writes []string
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadFrame(timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f := <-c.frames:
		return f, nil
	case <-c.closed:
		return nil, errConnClosed
	case <-timer.C:
		return nil, core.ErrReadTimeout
	}
}

func (c *fakeConn) Write(frame []byte) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, string(frame))
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) feed(lines ...string) {
	for _, l := range lines {
		c.frames <- []byte(l)
	}
}

func (c *fakeConn) written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.writes...)
}

// fakeTransport hands out fakeConns. openErrs[i] fails the i-th Open.
type fakeTransport struct {
	mu       sync.Mutex
	openErrs []error
	opens    int
	conns    []*fakeConn
}

func (t *fakeTransport) Open(_ context.Context, _ string, _ int) (core.Connection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := t.opens
	t.opens++
	if idx < len(t.openErrs) && t.openErrs[idx] != nil {
		return nil, t.openErrs[idx]
	}
	c := newFakeConn()
	t.conns = append(t.conns, c)
	return c, nil
}

func (t *fakeTransport) last() *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.conns) == 0 {
		return nil
	}
	return t.conns[len(t.conns)-1]
}

// recordingStore implements CandidateStore.
type recordingStore struct {
	mu         sync.Mutex
	candidates []discovery.Candidate
}

func (s *recordingStore) Record(_ context.Context, c discovery.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates = append(s.candidates, c)
	return nil
}

func (s *recordingStore) all() []discovery.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]discovery.Candidate(nil), s.candidates...)
}

type seriesPoint struct {
	name  string
	value float64
}

// recordingSeries implements TimeSeries.
type recordingSeries struct {
	mu     sync.Mutex
	points []seriesPoint
}

func (s *recordingSeries) WriteChannel(_, _, _, channel string, value float64, _ time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append(s.points, seriesPoint{channel, value})
}

func (s *recordingSeries) WriteSignalStrength(_ string, dBm float64, _ time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append(s.points, seriesPoint{"rssi", dBm})
}

func (s *recordingSeries) find(name string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.points {
		if p.name == name {
			return p.value, true
		}
	}
	return 0, false
}

// recordingBroadcaster implements Broadcaster.
type recordingBroadcaster struct {
	mu       sync.Mutex
	channels []string
}

func (r *recordingBroadcaster) Broadcast(channel string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels = append(r.channels, channel)
}

func (r *recordingBroadcaster) count(channel string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.channels {
		if c == channel {
			n++
		}
	}
	return n
}

func createTestConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:             "cul-test",
			Protocol:       ProtocolCUL,
			HealthInterval: 30,
		},
		Serial: SerialConfig{
			Port:        "/dev/ttyTEST0",
			PortOptions: serial.PortOptions{BaudRate: 38400, DataBits: 8, StopBits: 1, Parity: "none"},
			ReadTimeout: 1,
			OpenTimeout: 1,
		},
		Protocols: ProtocolFlags{FHT: true, EvoHome: true, Housecode: "1234", RSSI: true},
		Recovery:  RecoveryConfig{Backoff: 1},
		Discovery: DiscoveryConfig{Duration: 900},
	}
}

type testBridge struct {
	*Bridge
	mqtt        *MockMQTTClient
	transport   *fakeTransport
	store       *recordingStore
	series      *recordingSeries
	broadcaster *recordingBroadcaster
}

// startTestBridge creates and starts a bridge on fakes. mutate may adjust
// the config or options before creation.
func startTestBridge(t *testing.T, mutate func(*BridgeOptions)) *testBridge {
	t.Helper()

	tb := &testBridge{
		mqtt:        NewMockMQTTClient(),
		transport:   &fakeTransport{},
		store:       &recordingStore{},
		series:      &recordingSeries{},
		broadcaster: &recordingBroadcaster{},
	}
	opts := BridgeOptions{
		Config:      createTestConfig(),
		Version:     "test",
		MQTTClient:  tb.mqtt,
		Transport:   tb.transport,
		Store:       tb.store,
		TimeSeries:  tb.series,
		Broadcaster: tb.broadcaster,
	}
	if mutate != nil {
		mutate(&opts)
	}

	b, err := NewBridge(opts)
	if err != nil {
		t.Fatalf("NewBridge() error: %v", err)
	}
	tb.Bridge = b
	t.Cleanup(b.Stop)

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	return tb
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

func decode[T any](t *testing.T, payload []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		t.Fatalf("unmarshal %s: %v", payload, err)
	}
	return v
}
