package culfw

import (
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-rfbridge/internal/bridges/core"
)

// Decoder turns culfw lines into core events. It keeps per-housecode state
// for multi-frame FHT values, so each connection needs its own Decoder and
// Decode must only be called from the reader goroutine.
type Decoder struct {
	rssi bool
	fht  map[uint16]*fhtState
}

// NewDecoder creates a decoder. rssi tells it that every device line ends
// with an RSSI byte, which is the case once "X21" has been sent.
func NewDecoder(rssi bool) *Decoder {
	return &Decoder{rssi: rssi, fht: make(map[uint16]*fhtState)}
}

// Decode implements core.Decoder.
func (d *Decoder) Decode(frame []byte, emit func(core.Event)) {
	line := strings.TrimSpace(string(frame))
	if line == "" {
		return
	}
	if line == core.MarkerLimitOverflow || line == core.MarkerEndOfBuffer {
		emit(core.BufferMarker{Marker: line})
		return
	}

	var err error
	switch line[0] {
	case 'T':
		err = d.decodeT(line[1:], emit)
	case 'E':
		err = d.decodeEM(line[1:], emit)
	case 'H':
		err = d.decodeHMS(line[1:], emit)
	case 'v':
		err = d.decodeEvoHome(line[1:], emit)
	default:
		emit(core.RawFrame{Data: frame})
		return
	}
	if err != nil {
		emit(core.DecodeFault{Frame: frame, Err: err})
	}
}

// splitRSSI strips the trailing RSSI byte when the decoder expects one.
func (d *Decoder) splitRSSI(body string) (string, *core.SignalStrength, error) {
	if !d.rssi {
		return body, nil, nil
	}
	if len(body) < 2 {
		return "", nil, fmt.Errorf("%w: missing rssi", ErrMalformedFrame)
	}
	raw, err := parseByte(body[len(body)-2:])
	if err != nil {
		return "", nil, err
	}
	return body[:len(body)-2], &core.SignalStrength{Value: rssiDBm(raw)}, nil
}

func emitWithRSSI(emit func(core.Event), ev core.Event, rssi *core.SignalStrength) {
	emit(ev)
	if rssi != nil {
		emit(*rssi)
	}
}

func (d *Decoder) decodeT(rest string, emit func(core.Event)) error {
	body, rssi, err := d.splitRSSI(rest)
	if err != nil {
		return err
	}

	switch len(body) {
	case 10:
		msg, err := d.decodeFHT(body)
		if err != nil {
			return err
		}
		emitWithRSSI(emit, msg, rssi)
	case 8:
		msg, err := decodeFHT80TF(body)
		if err != nil {
			return err
		}
		emitWithRSSI(emit, msg, rssi)
	default:
		return fmt.Errorf("%w: FHT frame of %d digits", ErrMalformedFrame, len(body))
	}
	return nil
}

func (d *Decoder) decodeEM(rest string, emit func(core.Event)) error {
	body, rssi, err := d.splitRSSI(rest)
	if err != nil {
		return err
	}
	if len(body) != 18 {
		return fmt.Errorf("%w: EM frame of %d digits", ErrMalformedFrame, len(body))
	}

	hc, err := parseWord(body[0:4])
	if err != nil {
		return err
	}
	if _, err := parseByte(body[4:6]); err != nil {
		return err
	}
	total, err := parseWord(body[6:10])
	if err != nil {
		return err
	}
	avg, err := parseWord(body[10:14])
	if err != nil {
		return err
	}
	peak, err := parseWord(body[14:18])
	if err != nil {
		return err
	}

	emitWithRSSI(emit, core.EMMessage{
		Housecode:     hc,
		EnergyTotal:   float64(total) / 100,
		Power5Min:     float64(avg) * emPowerFactor,
		PeakPower5Min: float64(peak) * emPowerFactor,
	}, rssi)
	return nil
}

// emPowerFactor converts EM1000-EM pulse counts per 5 minutes to watts.
const emPowerFactor = 12

// HMS status bits.
const (
	hmsLowBattery   = 0x02
	hmsNegativeTemp = 0x80
)

func (d *Decoder) decodeHMS(rest string, emit func(core.Event)) error {
	body, rssi, err := d.splitRSSI(rest)
	if err != nil {
		return err
	}
	if len(body) != 14 {
		return fmt.Errorf("%w: HMS frame of %d digits", ErrMalformedFrame, len(body))
	}

	hc, err := parseWord(body[0:4])
	if err != nil {
		return err
	}
	status, err := parseByte(body[4:6])
	if err != nil {
		return err
	}
	temp, err := parseWord(body[6:10])
	if err != nil {
		return err
	}
	hum, err := parseWord(body[10:14])
	if err != nil {
		return err
	}

	t := float64(temp) / 10
	if status&hmsNegativeTemp != 0 {
		t = -t
	}
	emitWithRSSI(emit, core.HMSMessage{
		Housecode:   hc,
		Temperature: t,
		Humidity:    float64(hum) / 10,
		LowBattery:  status&hmsLowBattery != 0,
	}, rssi)
	return nil
}
