package core

import "time"

// Event is one decoded unit handed to the Router by a Decoder.
//
// Event is a closed union: device messages (FHTMessage, FHT80TFMessage,
// EvoHomeMessage, EMMessage, HMSMessage, OneWireMessage) and side events
// (SignalStrength, RawFrame, BufferMarker, DecodeFault). Only types in this
// package can implement it.
type Event interface {
	isEvent()
}

// DeviceMessage is an Event addressed to a single device.
type DeviceMessage interface {
	Event
	// Address returns the device the message belongs to.
	Address() DeviceAddress
	// Kind returns the device kind, used as the discovery hint.
	Kind() string
}

// Device kinds reported as discovery hints.
const (
	KindFHT80B             = "FHT80B"
	KindFHT80TF            = "FHT80_TF"
	KindEM1000EM           = "EM_1000_EM"
	KindHMS100TF           = "HMS_100_TF"
	KindOneWireTemperature = "ONEWIRE_TEMPERATURE"
	KindOneWireHumidity    = "ONEWIRE_HUMIDITY"
)

// FHTDirection tells whether an FHT frame was sent by the device or echoed
// from a frame the bridge itself sent.
type FHTDirection uint8

// FHT frame directions. The zero value is FromDevice.
const (
	FromDevice FHTDirection = iota
	FromBridge
)

func (d FHTDirection) String() string {
	if d == FromBridge {
		return "bridge->device"
	}
	return "device->bridge"
}

// FHTProperty is the function code carried by an FHT frame.
type FHTProperty string

// FHT properties.
const (
	FHTValve          FHTProperty = "VALVE"
	FHTMode           FHTProperty = "MODE"
	FHTDesiredTemp    FHTProperty = "DESIRED_TEMP"
	FHTMeasuredTemp   FHTProperty = "MEASURED_TEMP"
	FHTDayTemp        FHTProperty = "DAY_TEMP"
	FHTNightTemp      FHTProperty = "NIGHT_TEMP"
	FHTWindowOpenTemp FHTProperty = "WINDOW_OPEN_TEMP"
	FHTManuTemp       FHTProperty = "MANU_TEMP"
	FHTWarnings       FHTProperty = "WARNINGS"
	FHTHolidayEnd     FHTProperty = "HOLIDAY_END_DATE"
	FHTPartyEnd       FHTProperty = "PARTY_END_TIME"
	FHTSwitchTimes    FHTProperty = "SWITCH_TIMES"
	FHTUnknown        FHTProperty = "UNKNOWN"
)

// FHTMessage is a frame of an FHT80b room thermostat.
type FHTMessage struct {
	Housecode uint16
	Direction FHTDirection
	// Partial is set when only part of a multi-frame value was received.
	Partial  bool
	Property FHTProperty
	// Value holds temperatures (°C) and the valve position (%).
	Value float64
	// Text holds the mode (AUTO, MANUAL, HOLIDAY, PARTY), switch times
	// ("HH:MM-HH:MM HH:MM-HH:MM"), party end ("HH:MM") or holiday end ("MM-DD").
	Text       string
	Weekday    time.Weekday
	LowBattery bool
	WindowOpen bool
}

func (FHTMessage) isEvent() {}

// Address returns the FHT housecode address.
func (m FHTMessage) Address() DeviceAddress { return FHTAddress(m.Housecode) }

// Kind returns KindFHT80B.
func (FHTMessage) Kind() string { return KindFHT80B }

// FHT80TFValue is the state reported by an FHT80 TF window contact.
type FHT80TFValue string

// FHT80 TF values.
const (
	TFWindowInternalOpen   FHT80TFValue = "WINDOW_INTERNAL_OPEN"
	TFWindowInternalClosed FHT80TFValue = "WINDOW_INTERNAL_CLOSED"
	TFWindowExternalOpen   FHT80TFValue = "WINDOW_EXTERNAL_OPEN"
	TFWindowExternalClosed FHT80TFValue = "WINDOW_EXTERNAL_CLOSED"
	TFSync                 FHT80TFValue = "SYNC"
	TFFinish               FHT80TFValue = "FINISH"
)

// FHT80TFMessage is a frame of an FHT80 TF window contact.
type FHT80TFMessage struct {
	DeviceAddr uint32
	Value      FHT80TFValue
	LowBattery bool
}

func (FHT80TFMessage) isEvent() {}

// Address returns the 24-bit FHT80 TF address.
func (m FHT80TFMessage) Address() DeviceAddress { return FHT80TFAddress(m.DeviceAddr) }

// Kind returns KindFHT80TF.
func (FHT80TFMessage) Kind() string { return KindFHT80TF }

// EvoHome device types.
const (
	EvoHomeRadiatorController   = "RADIATOR_CONTROLLER"
	EvoHomeSingleZoneThermostat = "SINGLE_ZONE_THERMOSTAT"
	EvoHomeMultiZoneController  = "MULTI_ZONE_CONTROLLER"
	EvoHomeUnknownDeviceType    = "UNKNOWN"
)

// EvoHome commands.
const (
	EvoHomeZoneTemperature       = "ZONE_TEMPERATURE"
	EvoHomeZoneSetpoint          = "ZONE_SETPOINT"
	EvoHomeZoneHeatDemand        = "ZONE_HEAT_DEMAND"
	EvoHomeZoneConfig            = "ZONE_CONFIG"
	EvoHomeDeviceBatteryStatus   = "DEVICE_BATTERY_STATUS"
	EvoHomeWindowSensor          = "WINDOW_SENSOR"
	EvoHomeSystemSynchronization = "SYSTEM_SYNCHRONIZATION"
)

// ZoneValue is a per-zone reading of an EvoHome message.
type ZoneValue struct {
	Zone  int
	Value float64
}

// ZoneConfig is the per-zone configuration reported by EvoHome devices.
type ZoneConfig struct {
	Zone           int
	MinTemperature float64
	MaxTemperature float64
	OperationLock  bool
	WindowFunction bool
}

// EvoHomeMessage is a frame sent by an EvoHome device.
type EvoHomeMessage struct {
	DeviceID   uint32
	DeviceType string
	Command    string
	// Zones carries temperatures, setpoints or heat demand depending on Command.
	Zones       []ZoneValue
	ZoneConfigs []ZoneConfig
	LowBattery  bool
	WindowOpen  bool
}

func (EvoHomeMessage) isEvent() {}

// Address returns the 24-bit EvoHome device address.
func (m EvoHomeMessage) Address() DeviceAddress { return EvoHomeAddress(m.DeviceID) }

// Kind returns the EvoHome device type.
func (m EvoHomeMessage) Kind() string {
	if m.DeviceType == "" {
		return EvoHomeUnknownDeviceType
	}
	return m.DeviceType
}

// EMMessage is a reading of an EM1000 energy monitor.
type EMMessage struct {
	Housecode     uint16
	EnergyTotal   float64 // kWh
	Power5Min     float64 // W, average over the last 5 minutes
	PeakPower5Min float64 // W
}

func (EMMessage) isEvent() {}

// Address returns the EM housecode address.
func (m EMMessage) Address() DeviceAddress { return EMAddress(m.Housecode) }

// Kind returns KindEM1000EM.
func (EMMessage) Kind() string { return KindEM1000EM }

// HMSMessage is a reading of an HMS100 TF temperature/humidity sensor.
type HMSMessage struct {
	Housecode   uint16
	Temperature float64
	Humidity    float64
	LowBattery  bool
}

func (HMSMessage) isEvent() {}

// Address returns the HMS housecode address.
func (m HMSMessage) Address() DeviceAddress { return HMSAddress(m.Housecode) }

// Kind returns KindHMS100TF.
func (HMSMessage) Kind() string { return KindHMS100TF }

// OneWireMessage is a reading of a 1-wire sensor.
type OneWireMessage struct {
	DeviceID    uint64
	Temperature float64
	Humidity    float64
	HasHumidity bool
}

func (OneWireMessage) isEvent() {}

// Address returns the 64-bit 1-wire address.
func (m OneWireMessage) Address() DeviceAddress { return OneWireAddress(m.DeviceID) }

// Kind returns the humidity kind when the reading carries humidity.
func (m OneWireMessage) Kind() string {
	if m.HasHumidity {
		return KindOneWireHumidity
	}
	return KindOneWireTemperature
}

// SignalStrength reports the RSSI of the last received frame in dBm.
type SignalStrength struct {
	Value float64
}

func (SignalStrength) isEvent() {}

// RawFrame is a frame the decoder did not turn into a device message.
type RawFrame struct {
	Data []byte
}

func (RawFrame) isEvent() {}

// Buffer markers emitted by the transceiver.
const (
	MarkerLimitOverflow = "LOVF"
	MarkerEndOfBuffer   = "EOB"
)

// BufferMarker reports a transceiver buffer condition such as LOVF or EOB.
type BufferMarker struct {
	Marker string
}

func (BufferMarker) isEvent() {}

// DecodeFault reports a frame the decoder could not parse.
type DecodeFault struct {
	Frame []byte
	Err   error
}

func (DecodeFault) isEvent() {}
