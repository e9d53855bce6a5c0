package rf

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-rfbridge/internal/bridges/core"
	"github.com/nerrad567/gray-logic-rfbridge/internal/transport/serial"
)

// Protocol names accepted in bridge.protocol.
const (
	ProtocolCUL     = "cul"
	ProtocolOneWire = "onewire"
)

// Config is the root configuration for one RF bridge.
// Loaded from YAML with environment variable overrides.
type Config struct {
	Bridge    BridgeConfig    `yaml:"bridge"`
	Serial    SerialConfig    `yaml:"serial"`
	Protocols ProtocolFlags   `yaml:"protocols"`
	Recovery  RecoveryConfig  `yaml:"recovery"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Devices   []DeviceConfig  `yaml:"devices"`
}

// BridgeConfig contains bridge identity and operational settings.
type BridgeConfig struct {
	// ID uniquely identifies this bridge instance.
	// Used in MQTT topics, health reporting and the traffic log name.
	ID string `yaml:"id"`

	// Protocol selects the transceiver firmware: "cul" or "onewire".
	// Filled from the global protocols section when empty.
	Protocol string `yaml:"protocol"`

	// HealthInterval is how often to publish health status (seconds).
	// Default: 30 seconds.
	HealthInterval int `yaml:"health_interval"`
}

// SerialConfig describes the serial port the transceiver is attached to.
type SerialConfig struct {
	// Port is the device path, e.g. /dev/ttyACM0.
	Port string `yaml:"port"`

	serial.PortOptions `yaml:",inline"`

	// ReadTimeout bounds each frame read (seconds). Default: 1 second.
	ReadTimeout int `yaml:"read_timeout"`

	// OpenTimeout bounds opening the port plus the init sequence (seconds).
	// Default: 10 seconds.
	OpenTimeout int `yaml:"open_timeout"`

	// LogTraffic records every frame to a file in TrafficLogDir.
	LogTraffic bool `yaml:"log_traffic"`

	// TrafficLogDir is where traffic logs are written. Default: "./data/traffic".
	TrafficLogDir string `yaml:"traffic_log_dir"`
}

// ProtocolFlags selects the culfw sub-protocols.
type ProtocolFlags struct {
	FHT     bool `yaml:"fht"`
	EvoHome bool `yaml:"evohome"`

	// Housecode is the CUL's own FHT housecode in hex, e.g. "1234".
	Housecode string `yaml:"housecode"`

	// RSSI enables signal strength reporting.
	RSSI bool `yaml:"rssi"`
}

// RecoveryConfig controls connection recovery.
type RecoveryConfig struct {
	// Backoff is the wait between closing a faulted connection and
	// reopening it (seconds). Default: 5 seconds.
	Backoff int `yaml:"backoff"`
}

// DiscoveryConfig controls discovery scans.
type DiscoveryConfig struct {
	// Duration is how long a scan stays active (seconds). Default: 900.
	Duration int `yaml:"duration"`
}

// ScheduleConfig controls the scheduled writer jobs.
type ScheduleConfig struct {
	// ReportPing is the FHT clock and report ping interval (hours).
	// Default: 168 (weekly). 0 disables it.
	ReportPing int `yaml:"report_ping"`

	// DebugInterval is the CUL debug request interval (minutes).
	// Default: 60. Only runs with FHT and traffic logging enabled.
	DebugInterval int `yaml:"debug_interval"`

	// PollInterval is the 1-wire poll interval (seconds). Default: 60.
	PollInterval int `yaml:"poll_interval"`

	// PollRetries is the number of read requests per sensor and poll.
	// Default: 3.
	PollRetries int `yaml:"poll_retries"`
}

// DeviceConfig defines one device to register at start.
type DeviceConfig struct {
	// ID is the Gray Logic device identifier.
	ID string `yaml:"id"`

	// Name is a display name (optional).
	Name string `yaml:"name"`

	// Family is the protocol family: fht, fht80tf, evohome, em, hms or onewire.
	Family string `yaml:"family"`

	// Address is the device id in hex, e.g. "4321" or "067aec".
	Address string `yaml:"address"`
}

// DeviceAddress parses the configured family and address.
func (d DeviceConfig) DeviceAddress() (core.DeviceAddress, error) {
	f, err := core.ParseFamily(d.Family)
	if err != nil {
		return core.DeviceAddress{}, err
	}
	return core.ParseAddress(f, d.Address)
}

// LoadConfig reads configuration from a YAML file.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern RF_BRIDGE_SECTION_KEY,
// for example RF_BRIDGE_SERIAL_PORT.
//
// protocol names the global protocols section that referenced the file
// ("cul" or "onewire"). It fills an empty bridge.protocol and must match a
// set one. The protocol flags are normalised before validation.
func LoadConfig(path, protocol string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if protocol != "" {
		if cfg.Bridge.Protocol == "" {
			cfg.Bridge.Protocol = protocol
		} else if cfg.Bridge.Protocol != protocol {
			return nil, fmt.Errorf("%w: bridge.protocol %q in a %s config file", ErrUnknownProtocol, cfg.Bridge.Protocol, protocol)
		}
	}
	cfg.Protocols = NormalizeProtocols(cfg.Protocols)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// NormalizeProtocols turns FHT on when neither FHT nor EvoHome is selected.
// A CUL with no sub-protocol would receive nothing addressable.
func NormalizeProtocols(p ProtocolFlags) ProtocolFlags {
	if !p.FHT && !p.EvoHome {
		p.FHT = true
	}
	return p
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:             "rf-bridge-01",
			HealthInterval: 30,
		},
		Serial: SerialConfig{
			PortOptions: serial.PortOptions{
				BaudRate: serial.DefaultBaudRate,
				DataBits: 8,
				StopBits: 1,
				Parity:   "N",
			},
			ReadTimeout:   1,
			OpenTimeout:   10,
			TrafficLogDir: "./data/traffic",
		},
		Recovery: RecoveryConfig{
			Backoff: 5,
		},
		Discovery: DiscoveryConfig{
			Duration: 900,
		},
		Schedule: ScheduleConfig{
			ReportPing:    168,
			DebugInterval: 60,
			PollInterval:  60,
			PollRetries:   3,
		},
		Devices: []DeviceConfig{},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Bridge
	if v := os.Getenv("RF_BRIDGE_ID"); v != "" {
		cfg.Bridge.ID = v
	}
	if v := os.Getenv("RF_BRIDGE_PROTOCOL"); v != "" {
		cfg.Bridge.Protocol = v
	}

	// Serial
	if v := os.Getenv("RF_BRIDGE_SERIAL_PORT"); v != "" {
		cfg.Serial.Port = v
	}
	if v := os.Getenv("RF_BRIDGE_SERIAL_SPEED"); v != "" {
		if speed, err := strconv.Atoi(v); err == nil {
			cfg.Serial.BaudRate = speed
		}
	}
	if v := os.Getenv("RF_BRIDGE_SERIAL_LOG_TRAFFIC"); v != "" {
		cfg.Serial.LogTraffic = v == "true" || v == "1"
	}

	// Protocols
	if v := os.Getenv("RF_BRIDGE_PROTOCOLS_HOUSECODE"); v != "" {
		cfg.Protocols.Housecode = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	errs = append(errs, c.validateBridge()...)
	errs = append(errs, c.validateSerial()...)
	errs = append(errs, c.validateProtocols()...)
	errs = append(errs, c.validateTimings()...)
	errs = append(errs, c.validateDevices()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c *Config) validateBridge() []string {
	var errs []string
	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}
	switch c.Bridge.Protocol {
	case ProtocolCUL, ProtocolOneWire:
	case "":
		errs = append(errs, "bridge.protocol is required (cul or onewire)")
	default:
		errs = append(errs, fmt.Sprintf("bridge.protocol %q is invalid (use cul or onewire)", c.Bridge.Protocol))
	}
	if c.Bridge.HealthInterval < 1 {
		errs = append(errs, "bridge.health_interval must be at least 1 second")
	}
	return errs
}

func (c *Config) validateSerial() []string {
	var errs []string
	if c.Serial.Port == "" {
		errs = append(errs, "serial.port is required")
	}
	if _, err := c.Serial.PortOptions.Normalize(); err != nil {
		errs = append(errs, fmt.Sprintf("serial: %v", err))
	}
	if c.Serial.ReadTimeout < 1 {
		errs = append(errs, "serial.read_timeout must be at least 1 second")
	}
	if c.Serial.OpenTimeout < 1 {
		errs = append(errs, "serial.open_timeout must be at least 1 second")
	}
	if c.Serial.LogTraffic && c.Serial.TrafficLogDir == "" {
		errs = append(errs, "serial.traffic_log_dir is required when log_traffic is set")
	}
	return errs
}

func (c *Config) validateProtocols() []string {
	if c.Bridge.Protocol != ProtocolCUL || c.Protocols.Housecode == "" {
		return nil
	}
	if _, err := c.Housecode(); err != nil {
		return []string{fmt.Sprintf("protocols.housecode %q is invalid: %v", c.Protocols.Housecode, err)}
	}
	return nil
}

func (c *Config) validateTimings() []string {
	var errs []string
	if c.Recovery.Backoff < 0 {
		errs = append(errs, "recovery.backoff must not be negative")
	}
	if c.Discovery.Duration < 1 {
		errs = append(errs, "discovery.duration must be at least 1 second")
	}
	if c.Schedule.ReportPing < 0 {
		errs = append(errs, "schedule.report_ping must not be negative")
	}
	if c.Schedule.DebugInterval < 0 {
		errs = append(errs, "schedule.debug_interval must not be negative")
	}
	if c.Schedule.PollInterval < 1 {
		errs = append(errs, "schedule.poll_interval must be at least 1 second")
	}
	if c.Schedule.PollRetries < 1 {
		errs = append(errs, "schedule.poll_retries must be at least 1")
	}
	return errs
}

// validateDevices checks each device and rejects duplicate ids and
// addresses; a duplicate address would refuse registration at start.
func (c *Config) validateDevices() []string {
	var errs []string
	ids := make(map[string]bool)
	addrs := make(map[core.DeviceAddress]int)
	supported := c.supportedFamilies()

	for i, dev := range c.Devices {
		if dev.ID == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].id is required", i))
		} else if ids[dev.ID] {
			errs = append(errs, fmt.Sprintf("devices[%d].id %q is duplicate", i, dev.ID))
		}
		ids[dev.ID] = true

		addr, err := dev.DeviceAddress()
		if err != nil {
			errs = append(errs, fmt.Sprintf("devices[%d]: %v", i, err))
			continue
		}
		if supported != nil && !slices.Contains(supported, addr.Family) {
			errs = append(errs, fmt.Sprintf("devices[%d].family %s is not served by a %s bridge", i, addr.Family, c.Bridge.Protocol))
		}
		if first, dup := addrs[addr]; dup {
			errs = append(errs, fmt.Sprintf("devices[%d].address %s duplicates devices[%d]", i, addr, first))
			continue
		}
		addrs[addr] = i
	}

	return errs
}

// supportedFamilies returns the families the configured protocol can
// address, or nil when the protocol is invalid.
func (c *Config) supportedFamilies() []core.Family {
	p, err := NewProtocol(c)
	if err != nil {
		return nil
	}
	return p.Families()
}

// Housecode returns the parsed CUL housecode (0 when unset).
func (c *Config) Housecode() (uint16, error) {
	s := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(c.Protocols.Housecode), "0x"), "0X")
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}

// GetHealthInterval returns the health reporting interval as a Duration.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Bridge.HealthInterval) * time.Second
}

// GetReadTimeout returns the frame read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.Serial.ReadTimeout) * time.Second
}

// GetOpenTimeout returns the open timeout as a Duration.
func (c *Config) GetOpenTimeout() time.Duration {
	return time.Duration(c.Serial.OpenTimeout) * time.Second
}

// GetBackoff returns the recovery backoff as a Duration.
func (c *Config) GetBackoff() time.Duration {
	return time.Duration(c.Recovery.Backoff) * time.Second
}

// GetDiscoveryDuration returns the scan duration as a Duration.
func (c *Config) GetDiscoveryDuration() time.Duration {
	return time.Duration(c.Discovery.Duration) * time.Second
}

// GetReportPingInterval returns the FHT report ping interval.
func (c *Config) GetReportPingInterval() time.Duration {
	return time.Duration(c.Schedule.ReportPing) * time.Hour
}

// GetDebugInterval returns the CUL debug request interval.
func (c *Config) GetDebugInterval() time.Duration {
	return time.Duration(c.Schedule.DebugInterval) * time.Minute
}

// GetPollInterval returns the 1-wire poll interval.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Schedule.PollInterval) * time.Second
}
