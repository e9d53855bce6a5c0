package rf

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-rfbridge/internal/bridges/core"
)

// defaultHealthInterval is used when no interval is configured.
const defaultHealthInterval = 30 * time.Second

// HealthSnapshot is the bridge state a health message is built from.
type HealthSnapshot struct {
	State      core.ConnectionState
	Detail     string
	Port       string
	Protocol   string
	Controller core.ControllerStats
	Router     core.RouterStats

	// SignalStrength is nil until the first RSSI report.
	SignalStrength *float64

	Devices         int
	DiscoveryActive bool
}

// HealthPublisher is the interface for publishing health messages.
// This is typically implemented by an MQTT client.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	BridgeID string
	Version  string

	// Topic is the retained health topic.
	Topic string

	// Interval is how often to publish health status. Default: 30 seconds.
	Interval time.Duration

	Publisher HealthPublisher

	// Snapshot returns the current bridge state.
	Snapshot func() HealthSnapshot

	// Broadcaster receives every published message (optional).
	Broadcaster Broadcaster
}

// HealthReporter publishes the bridge health to MQTT at regular intervals.
type HealthReporter struct {
	cfg       HealthReporterConfig
	startTime time.Time

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewHealthReporter creates a new health reporter. Call Start to begin
// periodic reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultHealthInterval
	}
	return &HealthReporter{
		cfg:       cfg,
		startTime: time.Now(),
		done:      make(chan struct{}),
	}
}

// Start begins periodic health reporting until ctx is cancelled or Stop
// is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // best-effort during shutdown
		h.publishStatus(HealthStopping, "bridge stopping")
	})
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting")
}

// PublishNow publishes the current health status immediately.
func (h *HealthReporter) PublishNow() error {
	snap := h.snapshot()
	status, reason := determineStatus(snap, h.mqttConnected())
	return h.publish(h.buildMessage(snap, status, reason))
}

// Current builds the health message without publishing it.
func (h *HealthReporter) Current() HealthMessage {
	snap := h.snapshot()
	status, reason := determineStatus(snap, h.mqttConnected())
	return h.buildMessage(snap, status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

// determineStatus derives the health status from the connection state.
func determineStatus(snap HealthSnapshot, mqttConnected bool) (HealthStatus, string) {
	switch snap.State {
	case core.StateOpen:
		if !mqttConnected {
			return HealthDegraded, "MQTT disconnected"
		}
		return HealthHealthy, ""
	case core.StateOpening:
		return HealthDegraded, "connection recovering"
	case core.StateFaulted:
		reason := "communication error"
		if snap.Detail != "" {
			reason = snap.Detail
		}
		return HealthUnhealthy, reason
	default:
		reason := "connection closed"
		if snap.Detail != "" {
			reason = snap.Detail
		}
		return HealthUnhealthy, reason
	}
}

func (h *HealthReporter) snapshot() HealthSnapshot {
	if h.cfg.Snapshot == nil {
		return HealthSnapshot{}
	}
	return h.cfg.Snapshot()
}

func (h *HealthReporter) mqttConnected() bool {
	return h.cfg.Publisher != nil && h.cfg.Publisher.IsConnected()
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	return h.publish(h.buildMessage(h.snapshot(), status, reason))
}

func (h *HealthReporter) buildMessage(snap HealthSnapshot, status HealthStatus, reason string) HealthMessage {
	msg := HealthMessage{
		Bridge:          h.cfg.BridgeID,
		Timestamp:       time.Now().UTC(),
		Status:          status,
		Version:         h.cfg.Version,
		UptimeSeconds:   int64(time.Since(h.startTime).Seconds()),
		SignalStrength:  snap.SignalStrength,
		DevicesManaged:  snap.Devices,
		DiscoveryActive: snap.DiscoveryActive,
		Reason:          reason,
		Connection: &ConnectionStatus{
			State:    snap.State.String(),
			Port:     snap.Port,
			Protocol: snap.Protocol,
			Detail:   snap.Detail,
		},
		Statistics: &BridgeStatistics{
			FramesReceived:   snap.Controller.FramesRx,
			FramesSent:       snap.Controller.FramesTx,
			WriteErrors:      snap.Controller.WriteErrors,
			Recoveries:       snap.Controller.Recoveries,
			RecoveryFailures: snap.Controller.RecoveryFailures,
			Routed:           snap.Router.Routed,
			Unroutable:       snap.Router.Unroutable,
			HandlerErrors:    snap.Router.HandlerErrors,
		},
	}
	if last := snap.Controller.LastActivity; !last.IsZero() && last.Unix() > 0 {
		t := last.UTC()
		msg.Connection.LastActivity = &t
	}
	return msg
}

func (h *HealthReporter) publish(msg HealthMessage) error {
	if h.cfg.Broadcaster != nil {
		h.cfg.Broadcaster.Broadcast(BroadcastHealth, msg)
	}
	if h.cfg.Publisher == nil {
		return nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.cfg.Publisher.Publish(h.cfg.Topic, payload, 1, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
