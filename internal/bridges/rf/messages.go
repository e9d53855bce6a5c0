package rf

import (
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-rfbridge/internal/bridges/core"
)

// MQTT message types exchanged between Gray Logic Core and an RF bridge.

// CommandMessage is sent from Core to a bridge to execute a device command.
// Topic: graylogic/command/{family}/{address}
type CommandMessage struct {
	// ID correlates the command with its acknowledgment. Filled with a
	// UUID when the sender omits it.
	ID string `json:"id"`

	// Timestamp is when the command was issued (UTC).
	Timestamp time.Time `json:"timestamp"`

	// DeviceID is the Gray Logic device identifier (optional).
	DeviceID string `json:"device_id,omitempty"`

	// Command is the command name, e.g. "set_desired_temperature".
	Command string `json:"command"`

	// Parameters contains command-specific values.
	// Examples:
	//   {"temperature": 21.5} for set_desired_temperature
	//   {"zone": 1, "temperature": 19} for set_zone_setpoint
	Parameters map[string]any `json:"parameters,omitempty"`

	// Source indicates where the command originated ("api", "automation", ...).
	Source string `json:"source,omitempty"`
}

// EnsureID fills ID with a new UUID when it is empty.
func (m *CommandMessage) EnsureID() {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
}

// AckStatus represents the acknowledgment status of a command.
type AckStatus string

const (
	// AckAccepted indicates the command was written to the transceiver.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"
)

// AckMessage is sent from a bridge to Core to acknowledge a command.
// Topic: graylogic/ack/{family}/{address}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id,omitempty"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`
	Address   string    `json:"address"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for command and request failures.
const (
	ErrCodeDeviceUnreachable = "DEVICE_UNREACHABLE"
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeInvalidAddress    = "INVALID_ADDRESS"
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// NewAckMessage creates an accepted acknowledgment for a command.
func NewAckMessage(cmd CommandMessage, addr core.DeviceAddress) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  cmd.DeviceID,
		Status:    AckAccepted,
		Protocol:  addr.Family.String(),
		Address:   addr.Hex(),
	}
}

// NewAckError creates a failed acknowledgment with error details.
func NewAckError(cmd CommandMessage, family, address, code, message string) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  cmd.DeviceID,
		Status:    AckFailed,
		Protocol:  family,
		Address:   address,
		Error: &AckError{
			Code:    code,
			Message: message,
		},
	}
}

// StateMessage is sent from a bridge to Core when device channels change.
// Topic: graylogic/state/{family}/{address}
// QoS: 1, Retained: Yes
type StateMessage struct {
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`

	// State holds the full channel map of the device, e.g.
	// {"desired-temperature": 21.5, "valve-position": 40}.
	State map[string]any `json:"state"`

	// Changed lists the channels updated by this message.
	Changed []string `json:"changed,omitempty"`

	Protocol string `json:"protocol"`
	Address  string `json:"address"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates the connection is open and MQTT is up.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the bridge is recovering or MQTT is down.
	HealthDegraded HealthStatus = "degraded"

	// HealthUnhealthy indicates the connection is closed or faulted.
	HealthUnhealthy HealthStatus = "unhealthy"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the bridge's operational status.
// Topic: graylogic/health/{bridge}
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge        string       `json:"bridge"`
	Timestamp     time.Time    `json:"timestamp"`
	Status        HealthStatus `json:"status"`
	Version       string       `json:"version"`
	UptimeSeconds int64        `json:"uptime_seconds"`

	Connection *ConnectionStatus `json:"connection,omitempty"`
	Statistics *BridgeStatistics `json:"statistics,omitempty"`

	// SignalStrength is the RSSI of the last received frame in dBm.
	SignalStrength *float64 `json:"signal_strength,omitempty"`

	DevicesManaged  int  `json:"devices_managed"`
	DiscoveryActive bool `json:"discovery_active"`

	Reason string `json:"reason,omitempty"`
}

// ConnectionStatus describes the serial connection.
type ConnectionStatus struct {
	// State is the connection state: closed, opening, open or faulted.
	State string `json:"state"`

	Port     string `json:"port"`
	Protocol string `json:"protocol"`

	// Detail is the last status detail, e.g. the communication error.
	Detail string `json:"detail,omitempty"`

	LastActivity *time.Time `json:"last_activity,omitempty"`
}

// BridgeStatistics contains operational counters.
type BridgeStatistics struct {
	FramesReceived   uint64 `json:"frames_received"`
	FramesSent       uint64 `json:"frames_sent"`
	WriteErrors      uint64 `json:"write_errors"`
	Recoveries       uint64 `json:"recoveries"`
	RecoveryFailures uint64 `json:"recovery_failures"`
	Routed           uint64 `json:"routed"`
	Unroutable       uint64 `json:"unroutable"`
	HandlerErrors    uint64 `json:"handler_errors"`
}

// Request actions handled on graylogic/request/{bridge}/{action}.
const (
	ActionDiscoveryStart = "discovery_start"
	ActionDiscoveryStop  = "discovery_stop"
	ActionReinitialize   = "reinitialize"
	ActionListDevices    = "list_devices"
)

// RequestMessage is sent from Core to a bridge for request/response
// operations. The action is taken from the topic. The payload may be empty.
type RequestMessage struct {
	RequestID  string         `json:"request_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// ResponseMessage answers a request.
// Topic: graylogic/response/{bridge}/{request_id}
type ResponseMessage struct {
	RequestID string         `json:"request_id"`
	Timestamp time.Time      `json:"timestamp"`
	Action    string         `json:"action"`
	Success   bool           `json:"success"`
	Data      map[string]any `json:"data,omitempty"`
	Error     *ResponseError `json:"error,omitempty"`
}

// ResponseError contains error details for failed requests.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DiscoveryMessage announces a discovery candidate.
// Topic: graylogic/discovery/{bridge}
type DiscoveryMessage struct {
	Timestamp time.Time          `json:"timestamp"`
	Bridge    string             `json:"bridge"`
	Devices   []DiscoveredDevice `json:"devices"`
}

// DiscoveredDevice represents a device heard during a scan.
type DiscoveredDevice struct {
	// Protocol is the device family, e.g. "evohome".
	Protocol string `json:"protocol"`

	// Address is the device id in hex, e.g. "067aec".
	Address string `json:"address"`

	// Type is the kind reported by the device, e.g. "RADIATOR_CONTROLLER".
	Type string `json:"type"`

	// SuggestedName is a display label, e.g. "EvoHome Radiator 0x067aec".
	SuggestedName string `json:"suggested_name"`
}

// DeviceInfo describes a registered device in list_devices responses and
// the HTTP API.
type DeviceInfo struct {
	ID      string         `json:"id"`
	Name    string         `json:"name,omitempty"`
	Family  string         `json:"family"`
	Address string         `json:"address"`
	State   map[string]any `json:"state,omitempty"`
}
