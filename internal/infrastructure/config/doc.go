// Package config loads and validates the service-level configuration of the
// RF bridge: site identity, SQLite, MQTT, the HTTP API, InfluxDB, logging and
// which bridges to run.
//
// Per-bridge settings (serial port, protocol flags, devices, schedules) live
// in separate files referenced from protocols.cul.config_file and
// protocols.onewire.config_file; see package rf.
//
// Secrets (MQTT password, InfluxDB token, API JWT secret) should be supplied
// through GRAYLOGIC_* environment variables rather than the file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
