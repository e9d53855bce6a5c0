package api

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-rfbridge/internal/bridges/core"
	"github.com/nerrad567/gray-logic-rfbridge/internal/bridges/rf"
	"github.com/nerrad567/gray-logic-rfbridge/internal/discovery"
	"github.com/nerrad567/gray-logic-rfbridge/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-rfbridge/internal/infrastructure/logging"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

type sentCommand struct {
	addr    core.DeviceAddress
	command string
	params  map[string]any
}

// mockBridge implements Bridge for testing.
type mockBridge struct {
	id       string
	protocol string
	families []core.Family
	state    core.ConnectionState
	metrics  rf.BridgeMetrics

	sendErr     error
	reinitErr   error
	panicHealth bool

	mu             sync.Mutex
	devices        map[core.DeviceAddress]*rf.DeviceHandler
	commands       []sentCommand
	discoveryFor   time.Duration
	discoveryStops int
	reinits        int
}

func newMockBridge(id, protocol string, families ...core.Family) *mockBridge {
	return &mockBridge{
		id:       id,
		protocol: protocol,
		families: families,
		state:    core.StateOpen,
		devices:  make(map[core.DeviceAddress]*rf.DeviceHandler),
	}
}

func (m *mockBridge) ID() string                  { return m.id }
func (m *mockBridge) ProtocolName() string        { return m.protocol }
func (m *mockBridge) State() core.ConnectionState { return m.state }

func (m *mockBridge) Health() rf.HealthMessage {
	if m.panicHealth {
		panic("health exploded")
	}
	return rf.HealthMessage{Bridge: m.id, Status: rf.HealthHealthy, DevicesManaged: len(m.Devices())}
}

func (m *mockBridge) GetMetrics() rf.BridgeMetrics {
	out := m.metrics
	out.ID = m.id
	out.Protocol = m.protocol
	return out
}

func (m *mockBridge) Devices() []rf.DeviceInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]rf.DeviceInfo, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d.Info())
	}
	slices.SortFunc(out, func(a, b rf.DeviceInfo) int { return strings.Compare(a.Address, b.Address) })
	return out
}

func (m *mockBridge) Device(addr core.DeviceAddress) (*rf.DeviceHandler, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[addr]
	return d, ok
}

func (m *mockBridge) AddDevice(id, name string, addr core.DeviceAddress) (*rf.DeviceHandler, error) {
	if !slices.Contains(m.families, addr.Family) {
		return nil, fmt.Errorf("%w: %s", rf.ErrUnsupportedFamily, addr.Family)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.devices[addr]; dup {
		return nil, core.ErrDuplicateAddress
	}
	d := rf.NewDeviceHandler(id, name, addr, nil)
	m.devices[addr] = d
	return d, nil
}

func (m *mockBridge) Unregister(addr core.DeviceAddress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.devices, addr)
}

func (m *mockBridge) SendCommand(_ context.Context, addr core.DeviceAddress, command string, params map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, sentCommand{addr, command, params})
	return m.sendErr
}

func (m *mockBridge) StartDiscovery(d time.Duration) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discoveryFor = d
	return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), nil
}

func (m *mockBridge) StopDiscovery() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discoveryStops++
}

func (m *mockBridge) Reinitialize(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reinits++
	return m.reinitErr
}

// mockCandidates implements CandidateStore.
type mockCandidates struct {
	mu         sync.Mutex
	candidates []discovery.Candidate
	lastFilter discovery.Filter
	listErr    error
	dismissed  []string
}

func (m *mockCandidates) List(_ context.Context, f discovery.Filter) ([]discovery.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilter = f
	return m.candidates, m.listErr
}

func (m *mockCandidates) Dismiss(_ context.Context, family, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.candidates {
		if c.Family == family && c.Address == address {
			m.candidates = slices.Delete(m.candidates, i, i+1)
			m.dismissed = append(m.dismissed, family+":"+address)
			return nil
		}
	}
	return discovery.ErrNotFound
}

type testEnv struct {
	srv        *Server
	cul        *mockBridge
	onewire    *mockBridge
	candidates *mockCandidates
}

// testServer creates a Server with a CUL bridge and a OneWire bridge.
// secret enables bearer auth when non-empty.
func testServer(t *testing.T, secret string) *testEnv {
	t.Helper()

	env := &testEnv{
		cul:     newMockBridge("cul-1", rf.ProtocolCUL, core.FamilyFHT, core.FamilyFHT80TF, core.FamilyEvoHome, core.FamilyEM, core.FamilyHMS),
		onewire: newMockBridge("owfs-1", rf.ProtocolOneWire, core.FamilyOneWire),
		candidates: &mockCandidates{candidates: []discovery.Candidate{
			{Family: "evohome", Address: "067aec", Bridge: "cul-1", Label: "EvoHome Radiator 0x067aec", SeenCount: 3},
		}},
	}

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host:      "127.0.0.1",
			Port:      0,
			Timeouts:  config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
			JWTSecret: secret,
		},
		Logger:     log,
		Bridges:    []Bridge{env.cul, env.onewire},
		Candidates: env.candidates,
		ListPorts:  func() ([]string, error) { return []string{"/dev/ttyACM0", "/dev/ttyUSB0"}, nil },
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	env.srv = srv
	return env
}
