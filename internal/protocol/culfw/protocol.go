package culfw

import (
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-rfbridge/internal/bridges/core"
)

// Protocol name reported by Name.
const Name = "cul"

// Command names understood by EncodeCommand.
const (
	CmdSetDesiredTemperature    = "set_desired_temperature"
	CmdSetDayTemperature        = "set_day_temperature"
	CmdSetNightTemperature      = "set_night_temperature"
	CmdSetWindowOpenTemperature = "set_window_open_temperature"
	CmdSetMode                  = "set_mode"
	CmdSetCycle                 = "set_cycle"
	CmdSetParty                 = "set_party"
	CmdSetHoliday               = "set_holiday"
	CmdSetClock                 = "set_clock"
	CmdInitReporting            = "init_reporting"
	CmdSetZoneSetpoint          = "set_zone_setpoint"
)

// Options selects the sub-protocols a CUL listens to.
type Options struct {
	FHT     bool
	EvoHome bool

	// Housecode is the CUL's own FHT housecode, sent with "T01".
	Housecode uint16

	// RSSI enables signal strength reporting ("X21").
	RSSI bool
}

// Protocol binds the culfw codec to a bridge.
type Protocol struct {
	opts Options
}

// New creates a CUL protocol.
func New(opts Options) *Protocol {
	return &Protocol{opts: opts}
}

// Name returns "cul".
func (p *Protocol) Name() string { return Name }

// Families returns the device families this CUL can address.
func (p *Protocol) Families() []core.Family {
	families := []core.Family{core.FamilyEM, core.FamilyHMS}
	if p.opts.FHT {
		families = append(families, core.FamilyFHT, core.FamilyFHT80TF)
	}
	if p.opts.EvoHome {
		families = append(families, core.FamilyEvoHome)
	}
	return families
}

// NewDecoder returns a fresh decoder for a new connection.
func (p *Protocol) NewDecoder() core.Decoder {
	return NewDecoder(p.opts.RSSI)
}

// InitSequence returns the lines written after every (re)open.
func (p *Protocol) InitSequence() [][]byte {
	report := "X01"
	if p.opts.RSSI {
		report = "X21"
	}
	seq := [][]byte{[]byte(report)}
	if p.opts.FHT {
		seq = append(seq, fmt.Appendf(nil, "T01%04X", p.opts.Housecode))
	}
	if p.opts.EvoHome {
		seq = append(seq, []byte("vr"))
	}
	return seq
}

// DebugRequest returns the lines that make culfw report its version and
// FHT send buffer.
func (p *Protocol) DebugRequest() [][]byte {
	return [][]byte{[]byte("V"), []byte("T02")}
}

// EncodeCommand renders a device command. now is used for clock and party
// commands.
func (p *Protocol) EncodeCommand(addr core.DeviceAddress, name string, params map[string]any, now time.Time) ([][]byte, error) {
	switch addr.Family {
	case core.FamilyFHT:
		if !p.opts.FHT {
			return nil, fmt.Errorf("%w: fht", ErrFamilyDisabled)
		}
		frame, err := encodeFHTCommand(uint16(addr.ID), name, params, now)
		if err != nil {
			return nil, err
		}
		return [][]byte{frame}, nil
	case core.FamilyEvoHome:
		if !p.opts.EvoHome {
			return nil, fmt.Errorf("%w: evohome", ErrFamilyDisabled)
		}
		if name != CmdSetZoneSetpoint {
			return nil, fmt.Errorf("%w: %s for evohome", ErrUnknownCommand, name)
		}
		frame, err := encodeEvoHomeSetpoint(uint32(addr.ID), params)
		if err != nil {
			return nil, err
		}
		return [][]byte{frame}, nil
	default:
		return nil, fmt.Errorf("%w: %s devices accept no commands", ErrUnknownCommand, addr.Family)
	}
}

func encodeFHTCommand(hc uint16, name string, params map[string]any, now time.Time) ([]byte, error) {
	switch name {
	case CmdSetDesiredTemperature:
		return encodeFHTTemperature(hc, fhtDesiredTemp, params)
	case CmdSetDayTemperature:
		return encodeFHTTemperature(hc, fhtDayTemp, params)
	case CmdSetNightTemperature:
		return encodeFHTTemperature(hc, fhtNightTemp, params)
	case CmdSetWindowOpenTemperature:
		return encodeFHTTemperature(hc, fhtWindowTemp, params)

	case CmdSetMode:
		mode, err := paramString(params, "mode")
		if err != nil {
			return nil, err
		}
		switch strings.ToLower(mode) {
		case "auto":
			return encodeFHT(hc, fhtPair{fhtMode, ModeAuto}), nil
		case "manual", "manu":
			return encodeFHT(hc, fhtPair{fhtMode, ModeManual}), nil
		default:
			return nil, fmt.Errorf("%w: mode %q, want auto or manual", ErrInvalidParameter, mode)
		}

	case CmdSetCycle:
		day, err := paramWeekday(params, "weekday")
		if err != nil {
			return nil, err
		}
		times, err := paramString(params, "times")
		if err != nil {
			return nil, err
		}
		slots, err := parseCycle(times)
		if err != nil {
			return nil, err
		}
		first := cycleCommand(day)
		pairs := make([]fhtPair, len(slots))
		for i, v := range slots {
			pairs[i] = fhtPair{first + byte(i), v}
		}
		return encodeFHT(hc, pairs...), nil

	case CmdSetParty:
		until, err := partyEnd(params, now)
		if err != nil {
			return nil, err
		}
		slot := byte(until.Hour()*6 + until.Minute()/10)
		return encodeFHT(hc,
			fhtPair{fhtEndFirst, slot},
			fhtPair{fhtEndSecond, byte(until.Day())},
			fhtPair{fhtMode, ModeParty},
		), nil

	case CmdSetHoliday:
		s, err := paramString(params, "until")
		if err != nil {
			return nil, err
		}
		until, err := time.Parse(time.DateOnly, s)
		if err != nil {
			return nil, fmt.Errorf("%w: until %q, want YYYY-MM-DD", ErrInvalidParameter, s)
		}
		return encodeFHT(hc,
			fhtPair{fhtEndFirst, byte(until.Day())},
			fhtPair{fhtEndSecond, byte(until.Month())},
			fhtPair{fhtMode, ModeHoliday},
		), nil

	case CmdSetClock:
		return encodeFHT(hc,
			fhtPair{fhtYear, byte(now.Year() % 100)},
			fhtPair{fhtMonth, byte(now.Month())},
			fhtPair{fhtDay, byte(now.Day())},
			fhtPair{fhtHour, byte(now.Hour())},
			fhtPair{fhtMinute, byte(now.Minute())},
		), nil

	case CmdInitReporting:
		return encodeFHT(hc, fhtPair{fhtReport, 0xff}), nil

	default:
		return nil, fmt.Errorf("%w: %s for fht", ErrUnknownCommand, name)
	}
}

func encodeFHTTemperature(hc uint16, cmd byte, params map[string]any) ([]byte, error) {
	t, err := paramFloat(params, "temperature")
	if err != nil {
		return nil, err
	}
	v, err := encodeTemperature(t)
	if err != nil {
		return nil, err
	}
	return encodeFHT(hc, fhtPair{cmd, v}), nil
}

// partyEnd accepts an RFC3339 instant or "HH:MM", which means the next
// occurrence of that time after now.
func partyEnd(params map[string]any, now time.Time) (time.Time, error) {
	s, err := paramString(params, "until")
	if err != nil {
		return time.Time{}, err
	}
	var until time.Time
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		until = t.In(now.Location())
	} else {
		hm, err := time.Parse("15:04", s)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: until %q, want HH:MM or RFC3339", ErrInvalidParameter, s)
		}
		until = time.Date(now.Year(), now.Month(), now.Day(), hm.Hour(), hm.Minute(), 0, 0, now.Location())
		if !until.After(now) {
			until = until.AddDate(0, 0, 1)
		}
	}
	if until.Minute()%10 != 0 {
		return time.Time{}, fmt.Errorf("%w: party end must be in 10-minute steps", ErrInvalidParameter)
	}
	return until, nil
}

func encodeEvoHomeSetpoint(id uint32, params map[string]any) ([]byte, error) {
	zone, err := paramInt(params, "zone")
	if err != nil {
		return nil, err
	}
	temp, err := paramFloat(params, "temperature")
	if err != nil {
		return nil, err
	}
	var until time.Time
	if _, ok := params["until"]; ok {
		s, err := paramString(params, "until")
		if err != nil {
			return nil, err
		}
		until, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("%w: until %q, want RFC3339", ErrInvalidParameter, s)
		}
	}
	return encodeZoneSetpoint(id, zone, temp, until)
}
