package onewire

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-rfbridge/internal/bridges/core"
)

// Decoder turns gateway lines into core events and reports readings and
// search hits back to the Protocol that created it.
type Decoder struct {
	tracker *tracker
}

// Decode implements core.Decoder.
func (d *Decoder) Decode(frame []byte, emit func(core.Event)) {
	line := strings.TrimSpace(string(frame))
	if line == "" {
		return
	}

	switch line[0] {
	case 'D':
		msg, err := decodeReading(line[1:])
		if err != nil {
			emit(core.DecodeFault{Frame: frame, Err: err})
			return
		}
		d.tracker.markRead(msg.DeviceID)
		emit(msg)
	case 'F':
		if id, err := parseID(line[1:]); err == nil {
			d.tracker.markFound(id)
		}
		emit(core.RawFrame{Data: frame})
	default:
		emit(core.RawFrame{Data: frame})
	}
}

func parseID(s string) (uint64, error) {
	if len(s) != 16 {
		return 0, fmt.Errorf("%w: id %q is not 16 hex digits", ErrMalformedFrame, s)
	}
	id, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: id %q", ErrMalformedFrame, s)
	}
	return id, nil
}

func decodeReading(body string) (core.OneWireMessage, error) {
	parts := strings.Split(body, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return core.OneWireMessage{}, fmt.Errorf("%w: reading %q", ErrMalformedFrame, body)
	}
	id, err := parseID(parts[0])
	if err != nil {
		return core.OneWireMessage{}, err
	}
	if parts[1] == "ERR" {
		return core.OneWireMessage{}, fmt.Errorf("%w: %016X", ErrReadFailed, id)
	}

	temp, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return core.OneWireMessage{}, fmt.Errorf("%w: temperature %q", ErrMalformedFrame, parts[1])
	}
	msg := core.OneWireMessage{DeviceID: id, Temperature: temp}

	if len(parts) == 3 {
		hum, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return core.OneWireMessage{}, fmt.Errorf("%w: humidity %q", ErrMalformedFrame, parts[2])
		}
		msg.Humidity = hum
		msg.HasHumidity = true
	}
	return msg, nil
}
