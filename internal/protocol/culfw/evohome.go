package culfw

import (
	"fmt"
	"math"
	"time"

	"github.com/nerrad567/gray-logic-rfbridge/internal/bridges/core"
)

// EvoHome device classes carried in the frame header.
var evoDeviceTypes = map[byte]string{
	0x01: core.EvoHomeMultiZoneController,
	0x04: core.EvoHomeRadiatorController,
	0x34: core.EvoHomeSingleZoneThermostat,
}

// RAMSES-II command codes.
const (
	evoZoneConfig      = 0x000a
	evoBattery         = 0x1060
	evoWindow          = 0x12b0
	evoSystemSync      = 0x1f09
	evoZoneSetpoint    = 0x2309
	evoZoneTemperature = 0x30c9
	evoHeatDemand      = 0x3150
)

var evoCommands = map[uint16]string{
	evoZoneConfig:      core.EvoHomeZoneConfig,
	evoBattery:         core.EvoHomeDeviceBatteryStatus,
	evoWindow:          core.EvoHomeWindowSensor,
	evoSystemSync:      core.EvoHomeSystemSynchronization,
	evoZoneSetpoint:    core.EvoHomeZoneSetpoint,
	evoZoneTemperature: core.EvoHomeZoneTemperature,
	evoHeatDemand:      core.EvoHomeZoneHeatDemand,
}

// Zone config flag bits.
const (
	evoFlagOperationLock  = 0x01
	evoFlagWindowFunction = 0x02
)

func (d *Decoder) decodeEvoHome(rest string, emit func(core.Event)) error {
	body, rssi, err := d.splitRSSI(rest)
	if err != nil {
		return err
	}
	if len(body) < 12 || len(body)%2 != 0 {
		return fmt.Errorf("%w: EvoHome frame of %d digits", ErrMalformedFrame, len(body))
	}

	id, err := parseHex(body[0:6], 24)
	if err != nil {
		return err
	}
	class, err := parseByte(body[6:8])
	if err != nil {
		return err
	}
	code, err := parseWord(body[8:12])
	if err != nil {
		return err
	}
	payload := body[12:]

	msg := core.EvoHomeMessage{
		DeviceID:   uint32(id),
		DeviceType: core.EvoHomeUnknownDeviceType,
	}
	if t, ok := evoDeviceTypes[class]; ok {
		msg.DeviceType = t
	}
	cmd, ok := evoCommands[code]
	if !ok {
		return fmt.Errorf("%w: EvoHome command %04x", ErrMalformedFrame, code)
	}
	msg.Command = cmd

	switch code {
	case evoZoneTemperature, evoZoneSetpoint:
		msg.Zones, err = decodeZoneRecords(payload, 4, func(v uint64) float64 {
			return float64(int16(uint16(v))) / 100
		})
	case evoHeatDemand:
		msg.Zones, err = decodeZoneRecords(payload, 2, func(v uint64) float64 {
			return float64(v) / 2
		})
	case evoZoneConfig:
		msg.ZoneConfigs, err = decodeZoneConfigs(payload)
	case evoBattery:
		// zone, level, ok flag
		if len(payload) < 6 {
			return fmt.Errorf("%w: short battery payload", ErrMalformedFrame)
		}
		okFlag, perr := parseByte(payload[4:6])
		if perr != nil {
			return perr
		}
		msg.LowBattery = okFlag == 0
	case evoWindow:
		if len(payload) < 6 {
			return fmt.Errorf("%w: short window payload", ErrMalformedFrame)
		}
		state, perr := parseWord(payload[2:6])
		if perr != nil {
			return perr
		}
		msg.WindowOpen = state != 0
	}
	if err != nil {
		return err
	}

	emitWithRSSI(emit, msg, rssi)
	return nil
}

// decodeZoneRecords splits payload into records of a zone byte followed by
// width hex digits of value.
func decodeZoneRecords(payload string, width int, conv func(uint64) float64) ([]core.ZoneValue, error) {
	recLen := 2 + width
	if len(payload) == 0 || len(payload)%recLen != 0 {
		return nil, fmt.Errorf("%w: zone payload of %d digits", ErrMalformedFrame, len(payload))
	}
	var zones []core.ZoneValue
	for i := 0; i < len(payload); i += recLen {
		zone, err := parseByte(payload[i : i+2])
		if err != nil {
			return nil, err
		}
		raw, err := parseHex(payload[i+2:i+recLen], width*4)
		if err != nil {
			return nil, err
		}
		zones = append(zones, core.ZoneValue{Zone: int(zone), Value: conv(raw)})
	}
	return zones, nil
}

func decodeZoneConfigs(payload string) ([]core.ZoneConfig, error) {
	const recLen = 12 // zone, flags, min, max
	if len(payload) == 0 || len(payload)%recLen != 0 {
		return nil, fmt.Errorf("%w: zone config payload of %d digits", ErrMalformedFrame, len(payload))
	}
	var out []core.ZoneConfig
	for i := 0; i < len(payload); i += recLen {
		zone, err := parseByte(payload[i : i+2])
		if err != nil {
			return nil, err
		}
		flags, err := parseByte(payload[i+2 : i+4])
		if err != nil {
			return nil, err
		}
		minT, err := parseWord(payload[i+4 : i+8])
		if err != nil {
			return nil, err
		}
		maxT, err := parseWord(payload[i+8 : i+12])
		if err != nil {
			return nil, err
		}
		out = append(out, core.ZoneConfig{
			Zone:           int(zone),
			MinTemperature: float64(minT) / 100,
			MaxTemperature: float64(maxT) / 100,
			OperationLock:  flags&evoFlagOperationLock != 0,
			WindowFunction: flags&evoFlagWindowFunction != 0,
		})
	}
	return out, nil
}

// encodeZoneSetpoint renders a "vs" send command for a setpoint change.
// A zero until means a permanent override.
func encodeZoneSetpoint(id uint32, zone int, temp float64, until time.Time) ([]byte, error) {
	if zone < 0 || zone > 0xff {
		return nil, fmt.Errorf("%w: zone %d", ErrInvalidParameter, zone)
	}
	if math.IsNaN(temp) || temp < MinTemperature || temp > 35 {
		return nil, fmt.Errorf("%w: setpoint %.2f", ErrInvalidParameter, temp)
	}
	out := fmt.Appendf(nil, "vs%06X%04X%02X%04X", id&0xffffff, evoZoneSetpoint, zone, uint16(math.Round(temp*100)))
	if !until.IsZero() {
		out = fmt.Appendf(out, "%s", until.Format("200601021504"))
	}
	return out, nil
}
