package mqtt

import "fmt"

// Topic prefixes.
//
// Device topics use the flat scheme graylogic/{category}/{family}/{address};
// bridge topics use graylogic/{category}/{bridge_id}.
const (
	// TopicPrefix is the base of every Gray Logic topic.
	TopicPrefix = "graylogic"

	// TopicPrefixSystem is the base for per-process status topics.
	TopicPrefixSystem = "graylogic/system"
)

// Topics provides builders for the MQTT topics used by the RF bridge.
//
//	topics := mqtt.Topics{}
//	topics.DeviceState("fht", "4321") // graylogic/state/fht/4321
type Topics struct{}

// =============================================================================
// Device Topics
// =============================================================================

// DeviceState returns the retained state topic of a device.
//
// Example: graylogic/state/fht/4321
func (Topics) DeviceState(family, address string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, family, address)
}

// DeviceCommand returns the command topic of a device.
//
// Example: graylogic/command/evohome/067aec
func (Topics) DeviceCommand(family, address string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, family, address)
}

// DeviceAck returns the topic acknowledging commands to a device.
//
// Example: graylogic/ack/fht/4321
func (Topics) DeviceAck(family, address string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, family, address)
}

// DeviceCommands returns the pattern matching every command for a family.
//
// Pattern: graylogic/command/fht/+
func (Topics) DeviceCommands(family string) string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefix, family)
}

// =============================================================================
// Bridge Topics
// =============================================================================

// BridgeHealth returns the retained health topic of a bridge.
//
// Example: graylogic/health/cul-1
func (Topics) BridgeHealth(bridgeID string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, bridgeID)
}

// BridgeDiscovery returns the topic candidates are announced on.
//
// Example: graylogic/discovery/cul-1
func (Topics) BridgeDiscovery(bridgeID string) string {
	return fmt.Sprintf("%s/discovery/%s", TopicPrefix, bridgeID)
}

// BridgeRequest returns the request topic for one action.
//
// Example: graylogic/request/cul-1/discovery_start
func (Topics) BridgeRequest(bridgeID, action string) string {
	return fmt.Sprintf("%s/request/%s/%s", TopicPrefix, bridgeID, action)
}

// BridgeRequests returns the pattern matching every request to a bridge.
//
// Pattern: graylogic/request/cul-1/+
func (Topics) BridgeRequests(bridgeID string) string {
	return fmt.Sprintf("%s/request/%s/+", TopicPrefix, bridgeID)
}

// BridgeResponse returns the topic answering a request.
//
// Example: graylogic/response/cul-1/req-abc123
func (Topics) BridgeResponse(bridgeID, requestID string) string {
	return fmt.Sprintf("%s/response/%s/%s", TopicPrefix, bridgeID, requestID)
}

// =============================================================================
// System Topics
// =============================================================================

// ServiceStatus returns the online/offline topic of one bridge process,
// also used as its LWT.
//
// Example: graylogic/system/status/graylogic-rfbridge
func (Topics) ServiceStatus(clientID string) string {
	return fmt.Sprintf("%s/status/%s", TopicPrefixSystem, clientID)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllDeviceStates returns a pattern matching every device state topic.
//
// Pattern: graylogic/state/+/+
func (Topics) AllDeviceStates() string {
	return fmt.Sprintf("%s/state/+/+", TopicPrefix)
}

// AllBridgeHealth returns a pattern matching every bridge health topic.
//
// Pattern: graylogic/health/+
func (Topics) AllBridgeHealth() string {
	return fmt.Sprintf("%s/health/+", TopicPrefix)
}
