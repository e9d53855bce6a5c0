package culfw

import (
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-rfbridge/internal/bridges/core"
)

func decodeAll(d *Decoder, lines ...string) []core.Event {
	var events []core.Event
	for _, l := range lines {
		d.Decode([]byte(l), func(ev core.Event) { events = append(events, ev) })
	}
	return events
}

func TestDecoder_FHTDesiredTemperature(t *testing.T) {
	events := decodeAll(NewDecoder(true), "T432141692B30")

	if len(events) != 2 {
		t.Fatalf("events = %d, want message and rssi", len(events))
	}
	msg, ok := events[0].(core.FHTMessage)
	if !ok {
		t.Fatalf("first event = %T, want FHTMessage", events[0])
	}
	if msg.Housecode != 0x4321 || msg.Property != core.FHTDesiredTemp || msg.Value != 21.5 {
		t.Errorf("message = %+v", msg)
	}
	if msg.Direction != core.FromDevice || msg.Partial {
		t.Errorf("direction=%v partial=%v", msg.Direction, msg.Partial)
	}
	if rssi, ok := events[1].(core.SignalStrength); !ok || rssi.Value != -50 {
		t.Errorf("second event = %+v, want rssi -50", events[1])
	}
}

func TestDecoder_FHTSingleFrameProperties(t *testing.T) {
	tests := []struct {
		line     string
		property core.FHTProperty
		value    float64
	}{
		{"T4321006980", core.FHTValve, 50.2},
		{"T4321826928", core.FHTDayTemp, 20},
		{"T4321846922", core.FHTNightTemp, 17},
		{"T43218a690c", core.FHTWindowOpenTemp, 6},
		{"T4321456924", core.FHTManuTemp, 18},
		{"T4321996905", core.FHTUnknown, 5},
	}

	for _, tt := range tests {
		t.Run(string(tt.property), func(t *testing.T) {
			events := decodeAll(NewDecoder(false), tt.line)
			if len(events) != 1 {
				t.Fatalf("events = %v", events)
			}
			msg := events[0].(core.FHTMessage)
			if msg.Property != tt.property || msg.Value != tt.value {
				t.Errorf("decoded %s = %v, want %s = %v", msg.Property, msg.Value, tt.property, tt.value)
			}
		})
	}
}

func TestDecoder_FHTEchoIsMarked(t *testing.T) {
	d := NewDecoder(false)
	events := decodeAll(d, "T432141792B")

	msg := events[0].(core.FHTMessage)
	if msg.Direction != core.FromBridge {
		t.Errorf("Direction = %v, want FromBridge", msg.Direction)
	}
}

func TestDecoder_FHTMeasuredTemperatureAssembly(t *testing.T) {
	d := NewDecoder(false)
	events := decodeAll(d, "T43214269D7", "T4321436900")

	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	low := events[0].(core.FHTMessage)
	if !low.Partial || low.Property != core.FHTMeasuredTemp {
		t.Errorf("low byte frame = %+v, want partial measured temp", low)
	}
	high := events[1].(core.FHTMessage)
	if high.Partial || high.Value != 21.5 {
		t.Errorf("high byte frame = %+v, want 21.5", high)
	}

	// A high byte without its low byte stays partial.
	lone := decodeAll(d, "T4321436900")[0].(core.FHTMessage)
	if !lone.Partial {
		t.Error("high byte without low byte not partial")
	}
}

func TestDecoder_FHTSwitchTimes(t *testing.T) {
	d := NewDecoder(false)
	events := decodeAll(d, "T4321146924", "T4321156984", "T4321166990", "T4321176990")

	for i, ev := range events[:3] {
		if !ev.(core.FHTMessage).Partial {
			t.Errorf("slot %d not partial", i)
		}
	}
	last := events[3].(core.FHTMessage)
	if last.Partial {
		t.Fatal("complete day still partial")
	}
	if last.Property != core.FHTSwitchTimes || last.Weekday != time.Monday {
		t.Errorf("message = %+v", last)
	}
	if last.Text != "06:00-22:00 XX:XX-XX:XX" {
		t.Errorf("Text = %q", last.Text)
	}
}

func TestDecoder_FHTHolidayAndPartyEnd(t *testing.T) {
	d := NewDecoder(false)

	events := decodeAll(d, "T43213e6902", "T43213f690f", "T4321406908")
	holiday := events[2].(core.FHTMessage)
	if events[0].(core.FHTMessage).Text != "HOLIDAY" {
		t.Errorf("mode text = %q", events[0].(core.FHTMessage).Text)
	}
	if holiday.Property != core.FHTHolidayEnd || holiday.Text != "08-15" || holiday.Partial {
		t.Errorf("holiday end = %+v", holiday)
	}

	events = decodeAll(d, "T43213e6903", "T43213f698d", "T4321406910")
	party := events[2].(core.FHTMessage)
	if party.Property != core.FHTPartyEnd || party.Text != "23:30" || party.Value != 16 {
		t.Errorf("party end = %+v", party)
	}
}

func TestDecoder_FHTWarnings(t *testing.T) {
	msg := decodeAll(NewDecoder(false), "T4321446921")[0].(core.FHTMessage)
	if !msg.LowBattery || !msg.WindowOpen {
		t.Errorf("warnings = %+v, want low battery and window open", msg)
	}
}

func TestDecoder_FHT80TF(t *testing.T) {
	events := decodeAll(NewDecoder(true), "T12A4B68130")
	msg, ok := events[0].(core.FHT80TFMessage)
	if !ok {
		t.Fatalf("event = %T, want FHT80TFMessage", events[0])
	}
	if msg.DeviceAddr != 0x12a4b6 || msg.Value != core.TFWindowInternalOpen || !msg.LowBattery {
		t.Errorf("message = %+v", msg)
	}
}

func TestDecoder_EMAndHMS(t *testing.T) {
	events := decodeAll(NewDecoder(true),
		"E01020504D2000A001430",
		"HAB128200C0022630",
	)
	if len(events) != 4 {
		t.Fatalf("events = %d, want 4", len(events))
	}

	em := events[0].(core.EMMessage)
	if em.Housecode != 0x0102 || em.EnergyTotal != 12.34 || em.Power5Min != 120 || em.PeakPower5Min != 240 {
		t.Errorf("EM = %+v", em)
	}

	hms := events[2].(core.HMSMessage)
	if hms.Housecode != 0xab12 || hms.Temperature != -19.2 || hms.Humidity != 55 || !hms.LowBattery {
		t.Errorf("HMS = %+v", hms)
	}
}

func TestDecoder_EvoHome(t *testing.T) {
	events := decodeAll(NewDecoder(true), "v067AEC0430C900080230")
	msg, ok := events[0].(core.EvoHomeMessage)
	if !ok {
		t.Fatalf("event = %T, want EvoHomeMessage", events[0])
	}
	if msg.DeviceID != 0x067aec || msg.DeviceType != core.EvoHomeRadiatorController {
		t.Errorf("header = %+v", msg)
	}
	if msg.Command != core.EvoHomeZoneTemperature || len(msg.Zones) != 1 || msg.Zones[0].Value != 20.5 {
		t.Errorf("payload = %+v", msg)
	}
}

func TestDecoder_EvoHomeZoneConfigAndWindow(t *testing.T) {
	events := decodeAll(NewDecoder(false),
		"v12345601000A010301F40DAC",
		"v12345634" + "12B0" + "000001",
	)

	cfg := events[0].(core.EvoHomeMessage)
	if cfg.DeviceType != core.EvoHomeMultiZoneController || len(cfg.ZoneConfigs) != 1 {
		t.Fatalf("config = %+v", cfg)
	}
	zc := cfg.ZoneConfigs[0]
	if zc.Zone != 1 || !zc.OperationLock || !zc.WindowFunction || zc.MinTemperature != 5 || zc.MaxTemperature != 35 {
		t.Errorf("zone config = %+v", zc)
	}

	win := events[1].(core.EvoHomeMessage)
	if win.DeviceType != core.EvoHomeSingleZoneThermostat || !win.WindowOpen {
		t.Errorf("window = %+v", win)
	}
}

func TestDecoder_SideEvents(t *testing.T) {
	events := decodeAll(NewDecoder(true), "LOVF", "EOB", "V 1.67 CUL868", "", "Tzz")
	if len(events) != 4 {
		t.Fatalf("events = %d, want 4", len(events))
	}

	if m, ok := events[0].(core.BufferMarker); !ok || m.Marker != core.MarkerLimitOverflow {
		t.Errorf("events[0] = %+v", events[0])
	}
	if m, ok := events[1].(core.BufferMarker); !ok || m.Marker != core.MarkerEndOfBuffer {
		t.Errorf("events[1] = %+v", events[1])
	}
	if _, ok := events[2].(core.RawFrame); !ok {
		t.Errorf("events[2] = %T, want RawFrame", events[2])
	}
	fault, ok := events[3].(core.DecodeFault)
	if !ok || !errors.Is(fault.Err, ErrMalformedFrame) {
		t.Errorf("events[3] = %+v, want DecodeFault", events[3])
	}
}

func TestDecoder_MalformedFrames(t *testing.T) {
	for _, line := range []string{
		"T432141692",    // wrong length
		"T4321416G2B",   // bad hex
		"T12A4B677",     // unknown TF state
		"E0102",         // short EM
		"v067AEC04FFFF", // unknown EvoHome command
		"v067AEC0430C9000802F",
	} {
		events := decodeAll(NewDecoder(false), line)
		if len(events) != 1 {
			t.Errorf("%q: events = %d, want 1", line, len(events))
			continue
		}
		if _, ok := events[0].(core.DecodeFault); !ok {
			t.Errorf("%q: event = %T, want DecodeFault", line, events[0])
		}
	}
}

func TestRSSIConversion(t *testing.T) {
	tests := []struct {
		raw  byte
		want float64
	}{
		{0x00, -74},
		{0x30, -50},
		{0xff, -74.5},
		{0x80, -138},
	}
	for _, tt := range tests {
		if got := rssiDBm(tt.raw); got != tt.want {
			t.Errorf("rssiDBm(%#x) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}
