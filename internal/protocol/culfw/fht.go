package culfw

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-rfbridge/internal/bridges/core"
)

// FHT command codes.
const (
	fhtValve        = 0x00
	fhtCycleFirst   = 0x14
	fhtCycleLast    = 0x2f
	fhtMode         = 0x3e
	fhtEndFirst     = 0x3f
	fhtEndSecond    = 0x40
	fhtDesiredTemp  = 0x41
	fhtMeasuredLow  = 0x42
	fhtMeasuredHigh = 0x43
	fhtWarnings     = 0x44
	fhtManuTemp     = 0x45
	fhtYear         = 0x60
	fhtMonth        = 0x61
	fhtDay          = 0x62
	fhtHour         = 0x63
	fhtMinute       = 0x64
	fhtReport       = 0x66
	fhtDayTemp      = 0x82
	fhtNightTemp    = 0x84
	fhtWindowTemp   = 0x8a
)

// FHT status byte flags.
const (
	statusFromBridge = 0x10
	statusPartial    = 0x02
)

// FHT modes as carried by command 0x3e.
const (
	ModeAuto    = 0x00
	ModeManual  = 0x01
	ModeHoliday = 0x02
	ModeParty   = 0x03
)

// Warning bits of command 0x44.
const (
	warnLowBattery = 0x01
	warnWindowOpen = 0x20
)

// cycleUnset marks an unused switch time slot.
const cycleUnset = 0x90

// FHT temperature limits in °C.
const (
	MinTemperature = 5.5
	MaxTemperature = 30.5
)

var modeNames = map[byte]string{
	ModeAuto:    "AUTO",
	ModeManual:  "MANUAL",
	ModeHoliday: "HOLIDAY",
	ModeParty:   "PARTY",
}

// fhtState assembles multi-frame values of one housecode.
type fhtState struct {
	mode byte

	measuredLow    byte
	hasMeasuredLow bool

	endFirst    byte
	hasEndFirst bool

	cycle     [7][4]byte
	cycleSeen [7]uint8
}

func (d *Decoder) state(hc uint16) *fhtState {
	st, ok := d.fht[hc]
	if !ok {
		st = &fhtState{}
		d.fht[hc] = st
	}
	return st
}

func (d *Decoder) decodeFHT(body string) (core.FHTMessage, error) {
	hc, err := parseWord(body[0:4])
	if err != nil {
		return core.FHTMessage{}, err
	}
	cmd, err := parseByte(body[4:6])
	if err != nil {
		return core.FHTMessage{}, err
	}
	status, err := parseByte(body[6:8])
	if err != nil {
		return core.FHTMessage{}, err
	}
	val, err := parseByte(body[8:10])
	if err != nil {
		return core.FHTMessage{}, err
	}

	msg := core.FHTMessage{
		Housecode: hc,
		Property:  core.FHTUnknown,
		Value:     float64(val),
		Partial:   status&statusPartial != 0,
	}

	// Echoes of our own commands must not disturb the device's state.
	st := d.state(hc)
	if status&statusFromBridge != 0 {
		msg.Direction = core.FromBridge
		st = &fhtState{}
	}

	switch {
	case cmd == fhtValve:
		msg.Property = core.FHTValve
		msg.Value = math.Round(float64(val)*1000/255) / 10
	case cmd >= fhtCycleFirst && cmd <= fhtCycleLast:
		decodeCycle(st, cmd, val, &msg)
	case cmd == fhtMode:
		msg.Property = core.FHTMode
		msg.Text = modeText(val)
		st.mode = val
	case cmd == fhtEndFirst:
		msg.Property = endProperty(st.mode)
		msg.Partial = true
		st.endFirst, st.hasEndFirst = val, true
	case cmd == fhtEndSecond:
		decodeEnd(st, val, &msg)
	case cmd == fhtDesiredTemp:
		msg.Property = core.FHTDesiredTemp
		msg.Value = float64(val) / 2
	case cmd == fhtMeasuredLow:
		msg.Property = core.FHTMeasuredTemp
		msg.Partial = true
		st.measuredLow, st.hasMeasuredLow = val, true
	case cmd == fhtMeasuredHigh:
		msg.Property = core.FHTMeasuredTemp
		if !st.hasMeasuredLow {
			msg.Partial = true
			break
		}
		msg.Value = float64(uint16(val)<<8|uint16(st.measuredLow)) / 10
		st.hasMeasuredLow = false
	case cmd == fhtWarnings:
		msg.Property = core.FHTWarnings
		msg.LowBattery = val&warnLowBattery != 0
		msg.WindowOpen = val&warnWindowOpen != 0
	case cmd == fhtManuTemp:
		msg.Property = core.FHTManuTemp
		msg.Value = float64(val) / 2
	case cmd == fhtDayTemp:
		msg.Property = core.FHTDayTemp
		msg.Value = float64(val) / 2
	case cmd == fhtNightTemp:
		msg.Property = core.FHTNightTemp
		msg.Value = float64(val) / 2
	case cmd == fhtWindowTemp:
		msg.Property = core.FHTWindowOpenTemp
		msg.Value = float64(val) / 2
	}
	return msg, nil
}

func decodeCycle(st *fhtState, cmd, val byte, msg *core.FHTMessage) {
	idx := int(cmd - fhtCycleFirst)
	day, slot := idx/4, idx%4

	msg.Property = core.FHTSwitchTimes
	msg.Weekday = time.Weekday((day + 1) % 7)

	st.cycle[day][slot] = val
	st.cycleSeen[day] |= 1 << slot
	if st.cycleSeen[day] != 0x0f {
		msg.Partial = true
		return
	}
	st.cycleSeen[day] = 0
	c := st.cycle[day]
	msg.Text = fmt.Sprintf("%s-%s %s-%s", slotText(c[0]), slotText(c[1]), slotText(c[2]), slotText(c[3]))
}

func decodeEnd(st *fhtState, val byte, msg *core.FHTMessage) {
	msg.Property = endProperty(st.mode)
	if !st.hasEndFirst {
		msg.Partial = true
		return
	}
	first := st.endFirst
	st.hasEndFirst = false

	if st.mode == ModeParty {
		// first is the 10-minute slot of the day, val the day of month.
		msg.Text = slotText(first)
		msg.Value = float64(val)
		return
	}
	// first is the day, val the month.
	msg.Text = fmt.Sprintf("%02d-%02d", val, first)
}

func endProperty(mode byte) core.FHTProperty {
	if mode == ModeParty {
		return core.FHTPartyEnd
	}
	return core.FHTHolidayEnd
}

func modeText(v byte) string {
	if name, ok := modeNames[v]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%02x)", v)
}

func slotText(v byte) string {
	if v >= cycleUnset {
		return "XX:XX"
	}
	minutes := int(v) * 10
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// fhtPair is one command/value pair of an outbound FHT frame.
type fhtPair struct {
	cmd, val byte
}

// encodeFHT renders an outbound FHT frame. culfw accepts several pairs per
// frame for the same housecode.
func encodeFHT(hc uint16, pairs ...fhtPair) []byte {
	out := fmt.Appendf(nil, "T%04X", hc)
	for _, p := range pairs {
		out = fmt.Appendf(out, "%02X%02X", p.cmd, p.val)
	}
	return out
}

func encodeTemperature(t float64) (byte, error) {
	if math.IsNaN(t) || t < MinTemperature || t > MaxTemperature {
		return 0, fmt.Errorf("%w: temperature %.1f outside %.1f..%.1f", ErrInvalidParameter, t, MinTemperature, MaxTemperature)
	}
	return byte(math.Round(t * 2)), nil
}

// parseSlot parses "HH:MM" (10-minute steps) or "XX:XX" into a slot value.
func parseSlot(s string) (byte, error) {
	if s == "XX:XX" || s == "xx:xx" {
		return cycleUnset, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%w: switch time %q", ErrInvalidParameter, s)
	}
	if t.Minute()%10 != 0 {
		return 0, fmt.Errorf("%w: switch time %q not in 10-minute steps", ErrInvalidParameter, s)
	}
	return byte(t.Hour()*6 + t.Minute()/10), nil
}

// parseCycle parses "HH:MM-HH:MM HH:MM-HH:MM" into the four slots of a day.
func parseCycle(s string) ([4]byte, error) {
	var slots [4]byte
	var p []string
	for _, period := range strings.Fields(s) {
		from, to, ok := strings.Cut(period, "-")
		if !ok {
			break
		}
		p = append(p, from, to)
	}
	if len(p) != 4 {
		return slots, fmt.Errorf("%w: cycle %q, want HH:MM-HH:MM HH:MM-HH:MM", ErrInvalidParameter, s)
	}
	for i, part := range p {
		v, err := parseSlot(part)
		if err != nil {
			return slots, err
		}
		slots[i] = v
	}
	return slots, nil
}

// cycleCommand returns the first cycle command code for a weekday.
func cycleCommand(day time.Weekday) byte {
	// Monday is the first day of the FHT week.
	idx := (int(day) + 6) % 7
	return byte(fhtCycleFirst + idx*4)
}
