package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement and tag names.
const (
	MeasurementRSSI = "rssi"

	TagDeviceID = "device_id"
	TagFamily   = "family"
	TagAddress  = "address"
	TagBridge   = "bridge"
)

// ChannelPoint builds the point for one device channel update. The
// measurement is the channel name, e.g. "desired-temperature".
func ChannelPoint(deviceID, family, address, channel string, value float64, at time.Time) *write.Point {
	return write.NewPoint(
		channel,
		map[string]string{
			TagDeviceID: deviceID,
			TagFamily:   family,
			TagAddress:  address,
		},
		map[string]any{"value": value},
		at,
	)
}

// SignalStrengthPoint builds the RSSI point of a bridge in dBm.
func SignalStrengthPoint(bridgeID string, dBm float64, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementRSSI,
		map[string]string{TagBridge: bridgeID},
		map[string]any{"value": dBm},
		at,
	)
}

// WriteChannel records a numeric channel update of a device.
//
//	client.WriteChannel("living-room", "fht", "4321", "desired-temperature", 21.5, time.Now())
func (c *Client) WriteChannel(deviceID, family, address, channel string, value float64, at time.Time) {
	c.write(ChannelPoint(deviceID, family, address, channel, value, at))
}

// WriteSignalStrength records the last RSSI seen by a bridge.
func (c *Client) WriteSignalStrength(bridgeID string, dBm float64, at time.Time) {
	c.write(SignalStrengthPoint(bridgeID, dBm, at))
}
