package culfw

import (
	"fmt"
	"strconv"
)

func parseHex(s string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(s, 16, bits)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not %d-bit hex", ErrMalformedFrame, s, bits)
	}
	return v, nil
}

func parseByte(s string) (byte, error) {
	v, err := parseHex(s, 8)
	return byte(v), err
}

func parseWord(s string) (uint16, error) {
	v, err := parseHex(s, 16)
	return uint16(v), err
}

// rssiDBm converts the culfw RSSI byte to dBm.
func rssiDBm(raw byte) float64 {
	if raw >= 128 {
		return (float64(raw)-256)/2 - 74
	}
	return float64(raw)/2 - 74
}
