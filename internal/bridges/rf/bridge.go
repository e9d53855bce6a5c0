package rf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-rfbridge/internal/bridges/core"
	"github.com/nerrad567/gray-logic-rfbridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-rfbridge/internal/protocol/culfw"
	"github.com/nerrad567/gray-logic-rfbridge/internal/protocol/onewire"
	"github.com/nerrad567/gray-logic-rfbridge/internal/transport/serial"
)

// Bridge operation constants.
const (
	// minTopicParts is the minimum number of parts in a valid MQTT topic.
	minTopicParts = 4

	// commandTimeout is the timeout for sending commands to devices.
	commandTimeout = 5 * time.Second

	// requestTimeout bounds reinitialize requests.
	requestTimeout = 30 * time.Second

	// defaultDiscoveryDuration ends a scan when none is configured.
	defaultDiscoveryDuration = 15 * time.Minute

	// CmdClearFHTBuffer re-runs the init sequence, which makes culfw drop
	// its pending FHT send buffer.
	CmdClearFHTBuffer = "clear_fht_buffer"
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// TimeSeries records numeric channel values.
// Satisfied by *influxdb.Client.
type TimeSeries interface {
	WriteChannel(deviceID, family, address, channel string, value float64, at time.Time)
	WriteSignalStrength(bridgeID string, dBm float64, at time.Time)
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// Config is the loaded bridge configuration.
	Config *Config

	// Version is reported in health messages.
	Version string

	// MQTTClient is the MQTT client implementation.
	MQTTClient MQTTClient

	// Transport opens the serial connection. See NewSerialTransport.
	Transport core.Transport

	// Protocol overrides the codec built from Config (optional).
	Protocol Protocol

	// Store persists discovery candidates (optional).
	Store CandidateStore

	// TimeSeries records channel values (optional).
	TimeSeries TimeSeries

	// Broadcaster pushes state and discovery events to live clients (optional).
	Broadcaster Broadcaster

	// Logger is optional structured logger.
	Logger Logger
}

// Bridge owns one serial transceiver and every device reachable through
// it. It translates between the radio and MQTT:
//   - decoded frames are routed to device handlers and published as state
//   - MQTT commands are encoded and written under the write gate
//   - unregistered devices are announced while a discovery scan runs
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cfg         *Config
	version     string
	mqtt        MQTTClient
	topics      mqtt.Topics
	protocol    Protocol
	store       CandidateStore
	tsdb        TimeSeries
	broadcaster Broadcaster

	router     *core.Router
	controller *core.Controller
	health     *HealthReporter

	// Device handlers by address, mirrors the router registry.
	devices   map[core.DeviceAddress]*DeviceHandler
	devicesMu sync.RWMutex

	status   core.Status
	statusMu sync.RWMutex

	rssi   *float64
	rssiMu sync.RWMutex

	discoveryTimer *time.Timer
	discoveryUntil time.Time
	discoveryMu    sync.Mutex

	healthKick chan struct{}
	debugKick  chan struct{}

	commandsSent    atomic.Uint64
	commandErrors   atomic.Uint64
	discoveredTotal atomic.Uint64

	// Shutdown coordination
	stopped   atomic.Bool
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context    // Bridge-level context, cancelled on Stop()
	ctxCancel context.CancelFunc // Cancel function for ctx

	logger   Logger
	loggerMu sync.RWMutex
}

// Compile-time checks.
var (
	_ core.StatusSink     = (*Bridge)(nil)
	_ core.DiagnosticSink = (*Bridge)(nil)
	_ core.CandidateSink  = candidateSink{}
)

// NewSerialTransport builds the serial transport described by cfg.Serial.
// With log_traffic set every frame is copied to a traffic log file.
func NewSerialTransport(cfg *Config) *serial.Transport {
	var opts []serial.Option
	if cfg.Serial.LogTraffic {
		opts = append(opts, serial.WithTrafficLog(cfg.Serial.TrafficLogDir, cfg.Bridge.ID))
	}
	return serial.NewTransport(cfg.Serial.PortOptions, opts...)
}

// NewBridge creates a new bridge instance in state Closed.
// Call Start() to open the port and begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}

	protocol := opts.Protocol
	if protocol == nil {
		p, err := NewProtocol(opts.Config)
		if err != nil {
			return nil, err
		}
		protocol = p
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		cfg:         opts.Config,
		version:     opts.Version,
		mqtt:        opts.MQTTClient,
		protocol:    protocol,
		store:       opts.Store,
		tsdb:        opts.TimeSeries,
		broadcaster: opts.Broadcaster,
		devices:     make(map[core.DeviceAddress]*DeviceHandler),
		status:      core.Offline("not initialized"),
		healthKick:  make(chan struct{}, 1),
		debugKick:   make(chan struct{}, 1),
		ctx:         ctx,
		ctxCancel:   ctxCancel,
		logger:      opts.Logger,
	}

	b.router = core.NewRouter(core.NewDeviceRegistry(), core.NewDiscoveryRelay())
	b.router.SetDiagnosticSink(b)

	controller, err := core.NewController(core.ControllerConfig{
		Transport:   opts.Transport,
		Port:        opts.Config.Serial.Port,
		Speed:       opts.Config.Serial.BaudRate,
		NewDecoder:  protocol.NewDecoder,
		Init:        initFunc(protocol),
		Router:      b.router,
		Status:      b,
		Backoff:     opts.Config.GetBackoff(),
		ReadTimeout: opts.Config.GetReadTimeout(),
		OpenTimeout: opts.Config.GetOpenTimeout(),
	})
	if err != nil {
		ctxCancel()
		return nil, fmt.Errorf("creating controller: %w", err)
	}
	b.controller = controller

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:    opts.Config.Bridge.ID,
		Version:     opts.Version,
		Topic:       b.topics.BridgeHealth(opts.Config.Bridge.ID),
		Interval:    opts.Config.GetHealthInterval(),
		Publisher:   opts.MQTTClient,
		Snapshot:    b.HealthSnapshot,
		Broadcaster: opts.Broadcaster,
	})

	if opts.Logger != nil {
		b.router.SetLogger(opts.Logger)
		b.controller.SetLogger(opts.Logger)
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Start registers the configured devices, subscribes to MQTT, opens the
// port and starts health reporting and the scheduled jobs.
//
// A device that cannot be registered fails Start. A port that cannot be
// opened does not: the bridge keeps running Closed and reports the
// failure in its health until an operator reinitializes it.
func (b *Bridge) Start(ctx context.Context) error {
	if b.stopped.Load() {
		return ErrStopped
	}

	for _, dc := range b.cfg.Devices {
		addr, err := dc.DeviceAddress()
		if err != nil {
			return fmt.Errorf("device %q: %w", dc.ID, err)
		}
		if _, err := b.AddDevice(dc.ID, dc.Name, addr); err != nil {
			return fmt.Errorf("device %q: %w", dc.ID, err)
		}
	}

	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	for _, f := range b.protocol.Families() {
		topic := b.topics.DeviceCommands(f.String())
		if err := b.mqtt.Subscribe(topic, 1, b.handleMQTTMessage); err != nil {
			return fmt.Errorf("subscribe to commands: %w", err)
		}
		b.logInfo("subscribed to commands", "topic", topic)
	}

	requestTopic := b.topics.BridgeRequests(b.cfg.Bridge.ID)
	if err := b.mqtt.Subscribe(requestTopic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to requests: %w", err)
	}
	b.logInfo("subscribed to requests", "topic", requestTopic)

	if err := b.controller.Initialize(ctx); err != nil {
		b.logError("failed to open transceiver", err)
	}

	b.health.Start(b.ctx)
	b.startJobs()

	if err := b.health.PublishNow(); err != nil {
		b.logError("failed to publish health status", err)
	}

	b.logInfo("bridge started",
		"bridge_id", b.cfg.Bridge.ID,
		"protocol", b.protocol.Name(),
		"port", b.cfg.Serial.Port,
		"devices", b.DeviceCount())

	return nil
}

// Stop gracefully shuts down the bridge. It ends any discovery scan,
// disposes the connection, waits for the scheduled jobs and publishes a
// final "stopping" health status. Safe to call multiple times.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.stopped.Store(true)

		// Cancel bridge context to abort in-flight commands and jobs
		b.ctxCancel()
		b.StopDiscovery()

		b.controller.Dispose()
		b.wg.Wait()

		b.health.Stop()

		b.devicesMu.Lock()
		clear(b.devices)
		b.devicesMu.Unlock()

		b.logInfo("bridge stopped", "bridge_id", b.cfg.Bridge.ID)
	})
}

// ID returns the bridge id.
func (b *Bridge) ID() string { return b.cfg.Bridge.ID }

// ProtocolName returns "cul" or "onewire".
func (b *Bridge) ProtocolName() string { return b.protocol.Name() }

// Config returns the bridge configuration.
func (b *Bridge) Config() *Config { return b.cfg }

// State returns the connection state.
func (b *Bridge) State() core.ConnectionState { return b.controller.State() }

// =============================================================================
// Devices
// =============================================================================

// Register adds a handler for addr. The address family must be served by
// the bridge's protocol. Returns core.ErrDuplicateAddress when addr is
// already taken; the first handler is kept.
func (b *Bridge) Register(addr core.DeviceAddress, h core.Handler) error {
	if b.stopped.Load() {
		return ErrStopped
	}
	if !slices.Contains(b.protocol.Families(), addr.Family) {
		return fmt.Errorf("%w: %s on %s", ErrUnsupportedFamily, addr.Family, b.protocol.Name())
	}
	return b.router.Registry().Register(addr, h)
}

// Unregister removes the handler for addr. No-op when absent.
func (b *Bridge) Unregister(addr core.DeviceAddress) {
	b.router.Registry().Unregister(addr)

	b.devicesMu.Lock()
	delete(b.devices, addr)
	b.devicesMu.Unlock()
}

// AddDevice registers a DeviceHandler publishing its state to MQTT.
func (b *Bridge) AddDevice(id, name string, addr core.DeviceAddress) (*DeviceHandler, error) {
	d := NewDeviceHandler(id, name, addr, b.onDeviceChange)
	if err := b.Register(addr, d); err != nil {
		return nil, err
	}

	b.devicesMu.Lock()
	b.devices[addr] = d
	b.devicesMu.Unlock()

	b.logInfo("device registered",
		"device_id", d.ID(),
		"address", addr.String())
	return d, nil
}

// Device returns the handler registered with AddDevice for addr.
func (b *Bridge) Device(addr core.DeviceAddress) (*DeviceHandler, bool) {
	b.devicesMu.RLock()
	defer b.devicesMu.RUnlock()
	d, ok := b.devices[addr]
	return d, ok
}

// Devices describes every device added with AddDevice, ordered by address.
func (b *Bridge) Devices() []DeviceInfo {
	b.devicesMu.RLock()
	handlers := make([]*DeviceHandler, 0, len(b.devices))
	for _, d := range b.devices {
		handlers = append(handlers, d)
	}
	b.devicesMu.RUnlock()

	slices.SortFunc(handlers, func(x, y *DeviceHandler) int {
		return strings.Compare(x.Address().String(), y.Address().String())
	})

	out := make([]DeviceInfo, len(handlers))
	for i, d := range handlers {
		out[i] = d.Info()
	}
	return out
}

// DeviceCount returns the number of registered handlers.
func (b *Bridge) DeviceCount() int {
	return b.router.Registry().Len()
}

// onDeviceChange records numeric values and publishes the device state
// when a channel changed.
func (b *Bridge) onDeviceChange(d *DeviceHandler, values map[string]any, changed []string, at time.Time) {
	addr := d.Address()
	family := addr.Family.String()

	if b.tsdb != nil {
		for ch, v := range values {
			if f, ok := v.(float64); ok {
				b.tsdb.WriteChannel(d.ID(), family, addr.Hex(), ch, f, at)
			}
		}
	}

	if len(changed) == 0 {
		return
	}

	msg := StateMessage{
		DeviceID:  d.ID(),
		Timestamp: at,
		State:     d.State(),
		Changed:   changed,
		Protocol:  family,
		Address:   addr.Hex(),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("failed to marshal state", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.DeviceState(family, addr.Hex()), payload, 1, true); err != nil {
		b.logError("failed to publish state", err)
	}

	if b.broadcaster != nil {
		b.broadcaster.Broadcast(BroadcastState, msg)
	}
}

// =============================================================================
// Commands
// =============================================================================

// SendCommand encodes command for addr and writes it to the transceiver.
// It returns nil, core.ErrNotConnected, an encoding error or the I/O
// error of the failed write. Write errors are not retried.
//
// CmdClearFHTBuffer is handled by the bridge itself and replays the init
// sequence.
func (b *Bridge) SendCommand(ctx context.Context, addr core.DeviceAddress, command string, params map[string]any) error {
	if b.stopped.Load() {
		return ErrStopped
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if command == CmdClearFHTBuffer {
		return b.count(b.controller.ReplayInit(ctx))
	}

	if !slices.Contains(b.protocol.Families(), addr.Family) {
		return fmt.Errorf("%w: %s on %s", ErrUnsupportedFamily, addr.Family, b.protocol.Name())
	}

	frames, err := b.protocol.EncodeCommand(addr, command, params, time.Now())
	if err != nil {
		return err
	}

	// With traffic logging on, the FHT buffer is dumped around each send.
	if addr.Family == core.FamilyFHT && b.cfg.Serial.LogTraffic {
		if dr, ok := b.protocol.(DebugRequester); ok {
			debug := dr.DebugRequest()
			frames = append(append(append(make([][]byte, 0, len(debug)+len(frames)+len(debug)), debug...), frames...), debug...)
		}
	}

	b.logDebug("sending command",
		"address", addr.String(),
		"command", command,
		"frames", len(frames))

	return b.count(b.controller.Write(frames...))
}

func (b *Bridge) count(err error) error {
	if err != nil {
		b.commandErrors.Add(1)
		return err
	}
	b.commandsSent.Add(1)
	return nil
}

// commandErrorCode maps a SendCommand error onto an ack error code.
func commandErrorCode(err error) string {
	switch {
	case errors.Is(err, culfw.ErrUnknownCommand), errors.Is(err, onewire.ErrNoCommands):
		return ErrCodeInvalidCommand
	case errors.Is(err, culfw.ErrInvalidParameter):
		return ErrCodeInvalidParameters
	case errors.Is(err, culfw.ErrFamilyDisabled), errors.Is(err, ErrUnsupportedFamily),
		errors.Is(err, ErrDeviceNotRegistered):
		return ErrCodeNotConfigured
	case errors.Is(err, ErrStopped):
		return ErrCodeBridgeError
	default:
		return ErrCodeDeviceUnreachable
	}
}

// =============================================================================
// Discovery
// =============================================================================

// SetDiscoveryActive starts a discovery session feeding sink. Every
// unregistered device is reported once per session.
func (b *Bridge) SetDiscoveryActive(sink core.CandidateSink) {
	b.router.Relay().SetActive(sink)
}

// SetDiscoveryInactive ends the discovery session.
func (b *Bridge) SetDiscoveryInactive() {
	b.router.Relay().SetInactive()
}

// DiscoveryActive reports whether a discovery session is running.
func (b *Bridge) DiscoveryActive() bool {
	return b.router.Relay().Active()
}

// StartDiscovery starts a scan announcing candidates on MQTT, the store
// and the live stream. The scan stops itself after d, or after the
// configured discovery duration when d is zero. A running scan is
// restarted with an empty seen set.
func (b *Bridge) StartDiscovery(d time.Duration) (time.Time, error) {
	if b.stopped.Load() {
		return time.Time{}, ErrStopped
	}
	if d <= 0 {
		d = b.cfg.GetDiscoveryDuration()
	}
	if d <= 0 {
		d = defaultDiscoveryDuration
	}

	b.discoveryMu.Lock()
	defer b.discoveryMu.Unlock()

	if b.discoveryTimer != nil {
		b.discoveryTimer.Stop()
	}
	b.SetDiscoveryActive(candidateSink{b: b})
	b.discoveryUntil = time.Now().Add(d).UTC()

	var timer *time.Timer
	timer = time.AfterFunc(d, func() {
		b.discoveryMu.Lock()
		if b.discoveryTimer != timer {
			b.discoveryMu.Unlock()
			return
		}
		b.discoveryTimer = nil
		b.discoveryUntil = time.Time{}
		b.SetDiscoveryInactive()
		b.discoveryMu.Unlock()

		b.logInfo("discovery scan timed out", "bridge_id", b.cfg.Bridge.ID)
		b.kickHealth()
	})
	b.discoveryTimer = timer

	b.logInfo("discovery scan started",
		"bridge_id", b.cfg.Bridge.ID,
		"until", b.discoveryUntil)
	b.kickHealth()
	return b.discoveryUntil, nil
}

// StopDiscovery ends a running scan. No-op when none is running.
func (b *Bridge) StopDiscovery() {
	b.discoveryMu.Lock()
	defer b.discoveryMu.Unlock()

	if b.discoveryTimer != nil {
		b.discoveryTimer.Stop()
		b.discoveryTimer = nil
	}
	if !b.DiscoveryActive() {
		return
	}
	b.discoveryUntil = time.Time{}
	b.SetDiscoveryInactive()

	b.logInfo("discovery scan stopped", "bridge_id", b.cfg.Bridge.ID)
	b.kickHealth()
}

// DiscoveryUntil returns when the running scan ends, or the zero time.
func (b *Bridge) DiscoveryUntil() time.Time {
	b.discoveryMu.Lock()
	defer b.discoveryMu.Unlock()
	return b.discoveryUntil
}

// =============================================================================
// Connection
// =============================================================================

// Reinitialize opens the port again after a failed start or a failed
// recovery. It is a no-op while the connection is open.
func (b *Bridge) Reinitialize(ctx context.Context) error {
	if b.stopped.Load() {
		return ErrStopped
	}
	err := b.controller.Initialize(ctx)
	b.kickHealth()
	return err
}

// SetStatus implements core.StatusSink. It is called under the write gate
// and must not block, so the health message is published asynchronously.
func (b *Bridge) SetStatus(s core.Status) {
	b.statusMu.Lock()
	b.status = s
	b.statusMu.Unlock()

	if s.Online {
		b.logInfo("transceiver online", "bridge_id", b.cfg.Bridge.ID)
	} else {
		b.logWarn("transceiver offline", "bridge_id", b.cfg.Bridge.ID, "detail", s.Detail)
	}
	b.kickHealth()
}

// Status returns the last status reported by the controller.
func (b *Bridge) Status() core.Status {
	b.statusMu.RLock()
	defer b.statusMu.RUnlock()
	return b.status
}

// OnDiagnostic implements core.DiagnosticSink. It runs on the reader
// goroutine.
func (b *Bridge) OnDiagnostic(ev core.Event) {
	switch e := ev.(type) {
	case core.SignalStrength:
		v := e.Value
		b.rssiMu.Lock()
		b.rssi = &v
		b.rssiMu.Unlock()
		if b.tsdb != nil {
			b.tsdb.WriteSignalStrength(b.cfg.Bridge.ID, v, time.Now())
		}
	case core.BufferMarker:
		b.logWarn("transceiver buffer marker", "bridge_id", b.cfg.Bridge.ID, "marker", e.Marker)
		if _, ok := b.protocol.(DebugRequester); ok && b.cfg.Serial.LogTraffic {
			select {
			case b.debugKick <- struct{}{}:
			default:
			}
		}
	case core.DecodeFault:
		b.logDebug("undecodable frame", "frame", string(e.Frame), "error", e.Err)
	case core.RawFrame:
		b.logDebug("unhandled frame", "frame", string(e.Data))
	}
}

// SignalStrength returns the last RSSI in dBm.
func (b *Bridge) SignalStrength() (float64, bool) {
	b.rssiMu.RLock()
	defer b.rssiMu.RUnlock()
	if b.rssi == nil {
		return 0, false
	}
	return *b.rssi, true
}

// HealthSnapshot returns the state health messages are built from.
func (b *Bridge) HealthSnapshot() HealthSnapshot {
	status := b.Status()
	snap := HealthSnapshot{
		State:           b.controller.State(),
		Port:            b.cfg.Serial.Port,
		Protocol:        b.protocol.Name(),
		Controller:      b.controller.Stats(),
		Router:          b.router.Stats(),
		Devices:         b.DeviceCount(),
		DiscoveryActive: b.DiscoveryActive(),
	}
	if !status.Online {
		snap.Detail = status.Detail
	}
	if v, ok := b.SignalStrength(); ok {
		snap.SignalStrength = &v
	}
	return snap
}

// Health returns the current health message without publishing it.
func (b *Bridge) Health() HealthMessage {
	return b.health.Current()
}

func (b *Bridge) kickHealth() {
	select {
	case b.healthKick <- struct{}{}:
	default:
	}
}

// =============================================================================
// MQTT Handling
// =============================================================================

// handleMQTTMessage routes incoming MQTT messages by topic category.
// Topics: graylogic/command/{family}/{address} and
// graylogic/request/{bridge}/{action}.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) {
	parts := strings.Split(topic, "/")
	if len(parts) < minTopicParts {
		b.logError("invalid topic format", fmt.Errorf("topic: %s", topic))
		return
	}

	switch parts[1] {
	case "command":
		b.handleCommand(parts[2], parts[3], payload)
	case "request":
		if parts[2] != b.cfg.Bridge.ID {
			return
		}
		b.handleRequest(parts[3], payload)
	default:
		b.logError("unknown message type", fmt.Errorf("type: %s", parts[1]))
	}
}

// handleCommand executes a device command and acknowledges it.
func (b *Bridge) handleCommand(family, address string, payload []byte) {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logError("failed to parse command", err)
		cmd.EnsureID()
		b.publishAckError(cmd, family, address, ErrCodeInvalidCommand, "malformed command payload")
		return
	}
	cmd.EnsureID()

	b.logInfo("received command",
		"command_id", cmd.ID,
		"family", family,
		"address", address,
		"command", cmd.Command)

	f, err := core.ParseFamily(family)
	if err != nil {
		b.publishAckError(cmd, family, address, ErrCodeInvalidAddress, err.Error())
		return
	}
	addr, err := core.ParseAddress(f, address)
	if err != nil {
		b.publishAckError(cmd, family, address, ErrCodeInvalidAddress, err.Error())
		return
	}

	if _, ok := b.router.Registry().Lookup(addr); !ok {
		err := fmt.Errorf("%w: %s", ErrDeviceNotRegistered, addr)
		b.publishAckError(cmd, f.String(), addr.Hex(), commandErrorCode(err), err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	if err := b.SendCommand(ctx, addr, cmd.Command, cmd.Parameters); err != nil {
		b.logError("command failed", err)
		b.publishAckError(cmd, f.String(), addr.Hex(), commandErrorCode(err), err.Error())
		return
	}

	b.publishAck(cmd, addr)
}

func (b *Bridge) publishAck(cmd CommandMessage, addr core.DeviceAddress) {
	b.publishAckMessage(NewAckMessage(cmd, addr))
}

func (b *Bridge) publishAckError(cmd CommandMessage, family, address, code, message string) {
	b.publishAckMessage(NewAckError(cmd, family, address, code, message))
}

func (b *Bridge) publishAckMessage(ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}

	topic := b.topics.DeviceAck(ack.Protocol, ack.Address)
	if err := b.mqtt.Publish(topic, payload, 1, false); err != nil {
		b.logError("failed to publish ack", err)
	}
}

// handleRequest answers a bridge request. The payload may be empty, in
// which case a request id is generated.
func (b *Bridge) handleRequest(action string, payload []byte) {
	var req RequestMessage
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			b.logError("failed to parse request", err)
			return
		}
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	b.logInfo("received request",
		"request_id", req.RequestID,
		"action", action)

	resp := b.executeRequest(action, req)

	respPayload, err := json.Marshal(resp)
	if err != nil {
		b.logError("failed to marshal response", err)
		return
	}

	respTopic := b.topics.BridgeResponse(b.cfg.Bridge.ID, req.RequestID)
	if err := b.mqtt.Publish(respTopic, respPayload, 1, false); err != nil {
		b.logError("failed to publish response", err)
	}
}

func (b *Bridge) executeRequest(action string, req RequestMessage) ResponseMessage {
	resp := ResponseMessage{
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
		Action:    action,
		Success:   true,
	}
	fail := func(code string, err error) ResponseMessage {
		resp.Success = false
		resp.Error = &ResponseError{Code: code, Message: err.Error()}
		return resp
	}

	switch action {
	case ActionDiscoveryStart:
		var d time.Duration
		if secs, ok := req.Parameters["duration"].(float64); ok && secs > 0 {
			d = time.Duration(secs * float64(time.Second))
		}
		until, err := b.StartDiscovery(d)
		if err != nil {
			return fail(ErrCodeBridgeError, err)
		}
		resp.Data = map[string]any{"active": true, "until": until}
	case ActionDiscoveryStop:
		b.StopDiscovery()
		resp.Data = map[string]any{"active": false}
	case ActionReinitialize:
		ctx, cancel := context.WithTimeout(b.ctx, requestTimeout)
		defer cancel()
		if err := b.Reinitialize(ctx); err != nil {
			return fail(ErrCodeBridgeError, err)
		}
		resp.Data = map[string]any{"state": b.State().String()}
	case ActionListDevices:
		resp.Data = map[string]any{"devices": b.Devices()}
	default:
		return fail(ErrCodeInvalidCommand, fmt.Errorf("unknown action: %s", action))
	}
	return resp
}

// =============================================================================
// Logging
// =============================================================================

// SetLogger sets the logger for this bridge and its components.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	b.router.SetLogger(logger)
	b.controller.SetLogger(logger)
	b.health.SetLogger(logger)
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, "error", err, "bridge_id", b.cfg.Bridge.ID)
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

// =============================================================================
// Metrics
// =============================================================================

// BridgeMetrics contains metrics data for the API and the /metrics endpoint.
type BridgeMetrics struct {
	ID              string
	Protocol        string
	Port            string
	State           core.ConnectionState
	Connected       bool
	Detail          string
	Controller      core.ControllerStats
	Router          core.RouterStats
	DevicesManaged  int
	DiscoveryActive bool
	SignalStrength  *float64
	CommandsSent    uint64
	CommandErrors   uint64
	Discovered      uint64
}

// GetMetrics returns current bridge metrics.
func (b *Bridge) GetMetrics() BridgeMetrics {
	snap := b.HealthSnapshot()
	return BridgeMetrics{
		ID:              b.cfg.Bridge.ID,
		Protocol:        snap.Protocol,
		Port:            snap.Port,
		State:           snap.State,
		Connected:       snap.State == core.StateOpen,
		Detail:          snap.Detail,
		Controller:      snap.Controller,
		Router:          snap.Router,
		DevicesManaged:  snap.Devices,
		DiscoveryActive: snap.DiscoveryActive,
		SignalStrength:  snap.SignalStrength,
		CommandsSent:    b.commandsSent.Load(),
		CommandErrors:   b.commandErrors.Load(),
		Discovered:      b.discoveredTotal.Load(),
	}
}
