// Package rf implements the serial RF bridge for Gray Logic.
//
// A bridge owns one serial transceiver, either a CUL stick running culfw
// (FHT, FHT80 TF, EvoHome, EM and HMS devices) or a 1-wire gateway, and
// translates between decoded radio frames and Gray Logic's MQTT topics.
//
// # Architecture
//
//	┌─────────────────┐          ┌─────────────────┐
//	│   Gray Logic    │   MQTT   │    RF Bridge    │  serial
//	│      Core       │◄────────►│   (this pkg)    │◄────────► CUL / 1-wire
//	└─────────────────┘          └─────────────────┘
//
// The connection, write gate and routing live in package core. This package
// wires them to configuration, per-device channel handlers, discovery,
// health reporting and the scheduled jobs the radios need (the weekly FHT
// report ping, CUL debug requests and 1-wire polling).
//
// # Devices
//
// Devices are registered from the bridge config at Start and may be added
// or removed at runtime with Register and Unregister. Each device gets a
// DeviceHandler that maps decoded messages onto named channels such as
// "desired-temperature" or "energy-total" and publishes changed channels
// to graylogic/state/{family}/{address}.
//
// # Discovery
//
// While a scan is active, messages from unregistered devices become
// candidates. They are announced on graylogic/discovery/{bridge}, recorded
// in the discovery store and broadcast to websocket clients. A scan stops
// on its own after the configured duration.
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
package rf
