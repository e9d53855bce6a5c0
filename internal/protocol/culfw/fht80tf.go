package culfw

import (
	"fmt"

	"github.com/nerrad567/gray-logic-rfbridge/internal/bridges/core"
)

const tfLowBattery = 0x80

var tfStates = map[byte]core.FHT80TFValue{
	0x01: core.TFWindowInternalOpen,
	0x02: core.TFWindowInternalClosed,
	0x11: core.TFWindowExternalOpen,
	0x12: core.TFWindowExternalClosed,
	0x0c: core.TFSync,
	0x0f: core.TFFinish,
}

func decodeFHT80TF(body string) (core.FHT80TFMessage, error) {
	addr, err := parseHex(body[0:6], 24)
	if err != nil {
		return core.FHT80TFMessage{}, err
	}
	val, err := parseByte(body[6:8])
	if err != nil {
		return core.FHT80TFMessage{}, err
	}

	state, ok := tfStates[val&^tfLowBattery]
	if !ok {
		return core.FHT80TFMessage{}, fmt.Errorf("%w: FHT80 TF state %02x", ErrMalformedFrame, val)
	}
	return core.FHT80TFMessage{
		DeviceAddr: uint32(addr),
		Value:      state,
		LowBattery: val&tfLowBattery != 0,
	}, nil
}
