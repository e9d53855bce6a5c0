package rf

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-rfbridge/internal/bridges/core"
)

// Channel names published in device state.
const (
	ChannelDesiredTemperature    = "desired-temperature"
	ChannelMeasuredTemperature   = "measured-temperature"
	ChannelDayTemperature        = "day-temperature"
	ChannelNightTemperature      = "night-temperature"
	ChannelWindowOpenTemperature = "window-open-temperature"
	ChannelManualTemperature     = "manual-temperature"
	ChannelValvePosition         = "valve-position"
	ChannelMode                  = "mode"
	ChannelLowBattery            = "low-battery"
	ChannelWindowOpen            = "window-open"
	ChannelHolidayEnd            = "holiday-end"
	ChannelPartyEnd              = "party-end"
	ChannelSwitchTimes           = "switch-times"

	ChannelWindowInternal = "window-internal"
	ChannelWindowExternal = "window-external"

	ChannelHeatDemand     = "heat-demand"
	ChannelMinTemperature = "min-temperature"
	ChannelMaxTemperature = "max-temperature"
	ChannelOperationLock  = "operation-lock"
	ChannelWindowFunction = "window-function"

	ChannelEnergyTotal  = "energy-total"
	ChannelPower5Min    = "power-5min"
	ChannelMaxPower5Min = "max-power-5min"

	ChannelTemperature = "temperature"
	ChannelHumidity    = "humidity"
)

// ChangeFunc is called after a device handler applied a message. values
// holds every channel the message carried, changed the names of those
// whose value differs from the previous state.
type ChangeFunc func(d *DeviceHandler, values map[string]any, changed []string, at time.Time)

// DeviceHandler keeps the channel state of one registered device. It
// implements core.Handler.
type DeviceHandler struct {
	id   string
	name string
	addr core.DeviceAddress

	mu       sync.Mutex
	channels map[string]any
	updated  time.Time

	onChange ChangeFunc
	now      func() time.Time
}

// NewDeviceHandler creates a handler for addr. onChange may be nil.
func NewDeviceHandler(id, name string, addr core.DeviceAddress, onChange ChangeFunc) *DeviceHandler {
	if id == "" {
		id = addr.String()
	}
	return &DeviceHandler{
		id:       id,
		name:     name,
		addr:     addr,
		channels: make(map[string]any),
		onChange: onChange,
		now:      time.Now,
	}
}

// ID returns the Gray Logic device id.
func (d *DeviceHandler) ID() string { return d.id }

// Name returns the display name.
func (d *DeviceHandler) Name() string { return d.name }

// Address returns the device address.
func (d *DeviceHandler) Address() core.DeviceAddress { return d.addr }

// State returns a copy of the current channel values.
func (d *DeviceHandler) State() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return maps.Clone(d.channels)
}

// LastUpdate returns when the device last reported.
func (d *DeviceHandler) LastUpdate() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.updated
}

// Info describes the device for list responses.
func (d *DeviceHandler) Info() DeviceInfo {
	return DeviceInfo{
		ID:      d.id,
		Name:    d.name,
		Family:  d.addr.Family.String(),
		Address: d.addr.Hex(),
		State:   d.State(),
	}
}

// Update applies msg to the channel state.
func (d *DeviceHandler) Update(msg core.DeviceMessage) error {
	if msg.Address() != d.addr {
		return fmt.Errorf("%w: %s delivered to %s", ErrAddressMismatch, msg.Address(), d.addr)
	}

	values := ChannelValues(msg)
	if len(values) == 0 {
		return nil
	}

	at := d.now().UTC()
	var changed []string

	d.mu.Lock()
	for ch, v := range values {
		if old, ok := d.channels[ch]; ok && old == v {
			continue
		}
		d.channels[ch] = v
		changed = append(changed, ch)
	}
	d.updated = at
	d.mu.Unlock()

	slices.Sort(changed)
	if d.onChange != nil {
		d.onChange(d, values, changed, at)
	}
	return nil
}

// ChannelValues maps a decoded message onto named channels. Values are
// float64, bool or string. Messages that carry nothing displayable, such
// as FHT80 TF sync frames, map to an empty result.
func ChannelValues(msg core.DeviceMessage) map[string]any {
	switch m := msg.(type) {
	case core.FHTMessage:
		return fhtChannels(m)
	case core.FHT80TFMessage:
		return fht80tfChannels(m)
	case core.EvoHomeMessage:
		return evoHomeChannels(m)
	case core.EMMessage:
		return map[string]any{
			ChannelEnergyTotal:  m.EnergyTotal,
			ChannelPower5Min:    m.Power5Min,
			ChannelMaxPower5Min: m.PeakPower5Min,
		}
	case core.HMSMessage:
		return map[string]any{
			ChannelTemperature: m.Temperature,
			ChannelHumidity:    m.Humidity,
			ChannelLowBattery:  m.LowBattery,
		}
	case core.OneWireMessage:
		values := map[string]any{ChannelTemperature: m.Temperature}
		if m.HasHumidity {
			values[ChannelHumidity] = m.Humidity
		}
		return values
	default:
		return nil
	}
}

func fhtChannels(m core.FHTMessage) map[string]any {
	switch m.Property {
	case core.FHTDesiredTemp:
		return map[string]any{ChannelDesiredTemperature: m.Value}
	case core.FHTMeasuredTemp:
		return map[string]any{ChannelMeasuredTemperature: m.Value}
	case core.FHTDayTemp:
		return map[string]any{ChannelDayTemperature: m.Value}
	case core.FHTNightTemp:
		return map[string]any{ChannelNightTemperature: m.Value}
	case core.FHTWindowOpenTemp:
		return map[string]any{ChannelWindowOpenTemperature: m.Value}
	case core.FHTManuTemp:
		return map[string]any{ChannelManualTemperature: m.Value}
	case core.FHTValve:
		return map[string]any{ChannelValvePosition: m.Value}
	case core.FHTMode:
		return map[string]any{ChannelMode: strings.ToLower(m.Text)}
	case core.FHTWarnings:
		return map[string]any{
			ChannelLowBattery: m.LowBattery,
			ChannelWindowOpen: m.WindowOpen,
		}
	case core.FHTHolidayEnd:
		return map[string]any{ChannelHolidayEnd: m.Text}
	case core.FHTPartyEnd:
		return map[string]any{ChannelPartyEnd: m.Text}
	case core.FHTSwitchTimes:
		ch := ChannelSwitchTimes + "-" + strings.ToLower(m.Weekday.String())
		return map[string]any{ch: m.Text}
	default:
		return nil
	}
}

func fht80tfChannels(m core.FHT80TFMessage) map[string]any {
	values := map[string]any{ChannelLowBattery: m.LowBattery}
	switch m.Value {
	case core.TFWindowInternalOpen:
		values[ChannelWindowInternal] = true
	case core.TFWindowInternalClosed:
		values[ChannelWindowInternal] = false
	case core.TFWindowExternalOpen:
		values[ChannelWindowExternal] = true
	case core.TFWindowExternalClosed:
		values[ChannelWindowExternal] = false
	}
	return values
}

// evoHomeChannels maps zone readings. Multi zone controllers report every
// zone on channels suffixed with the zone number, e.g.
// "measured-temperature_02"; single zone devices use the first zone only.
func evoHomeChannels(m core.EvoHomeMessage) map[string]any {
	multi := m.DeviceType == core.EvoHomeMultiZoneController
	values := make(map[string]any)

	zoneChannel := func(name string, zone int) string {
		if multi {
			return fmt.Sprintf("%s_%02d", name, zone)
		}
		return name
	}
	zones := m.Zones
	if !multi && len(zones) > 1 {
		zones = zones[:1]
	}
	configs := m.ZoneConfigs
	if !multi && len(configs) > 1 {
		configs = configs[:1]
	}

	switch m.Command {
	case core.EvoHomeZoneTemperature:
		for _, z := range zones {
			values[zoneChannel(ChannelMeasuredTemperature, z.Zone)] = z.Value
		}
	case core.EvoHomeZoneSetpoint:
		for _, z := range zones {
			values[zoneChannel(ChannelDesiredTemperature, z.Zone)] = z.Value
		}
	case core.EvoHomeZoneHeatDemand:
		// Value is the valve opening in percent; the raw demand is twice that.
		for _, z := range zones {
			values[zoneChannel(ChannelValvePosition, z.Zone)] = z.Value
			values[zoneChannel(ChannelHeatDemand, z.Zone)] = z.Value * 2
		}
	case core.EvoHomeZoneConfig:
		for _, c := range configs {
			values[zoneChannel(ChannelMinTemperature, c.Zone)] = c.MinTemperature
			values[zoneChannel(ChannelMaxTemperature, c.Zone)] = c.MaxTemperature
			values[zoneChannel(ChannelOperationLock, c.Zone)] = c.OperationLock
			values[zoneChannel(ChannelWindowFunction, c.Zone)] = c.WindowFunction
		}
	case core.EvoHomeDeviceBatteryStatus:
		values[ChannelLowBattery] = m.LowBattery
	case core.EvoHomeWindowSensor:
		values[ChannelWindowOpen] = m.WindowOpen
	}
	return values
}
