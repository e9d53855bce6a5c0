package core

import (
	"fmt"
	"strconv"
	"strings"
)

// Family identifies the protocol family a device address belongs to.
type Family uint8

// Supported protocol families.
const (
	FamilyFHT Family = iota + 1
	FamilyFHT80TF
	FamilyEvoHome
	FamilyEM
	FamilyHMS
	FamilyOneWire
)

// Families lists every supported family in a stable order.
var Families = []Family{
	FamilyFHT,
	FamilyFHT80TF,
	FamilyEvoHome,
	FamilyEM,
	FamilyHMS,
	FamilyOneWire,
}

var familyNames = map[Family]string{
	FamilyFHT:     "fht",
	FamilyFHT80TF: "fht80tf",
	FamilyEvoHome: "evohome",
	FamilyEM:      "em",
	FamilyHMS:     "hms",
	FamilyOneWire: "onewire",
}

// familyBits is the width of the device id within each family.
var familyBits = map[Family]uint{
	FamilyFHT:     16,
	FamilyFHT80TF: 24,
	FamilyEvoHome: 24,
	FamilyEM:      16,
	FamilyHMS:     16,
	FamilyOneWire: 64,
}

// String returns the lower-case family name used in topics and config.
func (f Family) String() string {
	if name, ok := familyNames[f]; ok {
		return name
	}
	return fmt.Sprintf("family(%d)", uint8(f))
}

// Valid reports whether f is a supported family.
func (f Family) Valid() bool {
	_, ok := familyNames[f]
	return ok
}

// Bits returns the id width of the family, or 0 for an unknown family.
func (f Family) Bits() uint {
	return familyBits[f]
}

// mask returns the id mask for the family.
func (f Family) mask() uint64 {
	bits := f.Bits()
	if bits >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << bits) - 1
}

// ParseFamily parses a family name as produced by Family.String.
func ParseFamily(s string) (Family, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for f, n := range familyNames {
		if n == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFamily, s)
}

// DeviceAddress is a protocol-tagged device key.
//
// Two addresses are equal only when both family and id match, so the same
// numeric id in two families never collides. DeviceAddress is comparable
// and can be used directly as a map key.
type DeviceAddress struct {
	Family Family
	ID     uint64
}

// NewAddress builds an address, masking id to the width of the family.
func NewAddress(f Family, id uint64) DeviceAddress {
	return DeviceAddress{Family: f, ID: id & f.mask()}
}

// FHTAddress returns the address of an FHT80b by housecode.
func FHTAddress(housecode uint16) DeviceAddress {
	return NewAddress(FamilyFHT, uint64(housecode))
}

// FHT80TFAddress returns the address of an FHT80 TF window contact.
func FHT80TFAddress(address uint32) DeviceAddress {
	return NewAddress(FamilyFHT80TF, uint64(address))
}

// EvoHomeAddress returns the address of an EvoHome device by its 24-bit id.
func EvoHomeAddress(deviceID uint32) DeviceAddress {
	return NewAddress(FamilyEvoHome, uint64(deviceID))
}

// EMAddress returns the address of an EM energy monitor by housecode.
func EMAddress(housecode uint16) DeviceAddress {
	return NewAddress(FamilyEM, uint64(housecode))
}

// HMSAddress returns the address of an HMS sensor by housecode.
func HMSAddress(housecode uint16) DeviceAddress {
	return NewAddress(FamilyHMS, uint64(housecode))
}

// OneWireAddress returns the address of a 1-wire device by its 64-bit id.
func OneWireAddress(deviceID uint64) DeviceAddress {
	return NewAddress(FamilyOneWire, deviceID)
}

// ParseAddress parses a hex id (with or without a 0x prefix) for family f.
// Ids wider than the family are rejected rather than truncated.
func ParseAddress(f Family, s string) (DeviceAddress, error) {
	if !f.Valid() {
		return DeviceAddress{}, fmt.Errorf("%w: %d", ErrUnknownFamily, uint8(f))
	}
	text := strings.TrimSpace(s)
	text = strings.TrimPrefix(strings.TrimPrefix(text, "0x"), "0X")
	if text == "" {
		return DeviceAddress{}, fmt.Errorf("%w: empty id", ErrInvalidAddress)
	}
	id, err := strconv.ParseUint(text, 16, int(f.Bits()))
	if err != nil {
		return DeviceAddress{}, fmt.Errorf("%w: %q for %s: %w", ErrInvalidAddress, s, f, err)
	}
	return NewAddress(f, id), nil
}

// ParseAddressString parses the "family:hex" form produced by String.
func ParseAddressString(s string) (DeviceAddress, error) {
	family, id, ok := strings.Cut(s, ":")
	if !ok {
		return DeviceAddress{}, fmt.Errorf("%w: %q has no family prefix", ErrInvalidAddress, s)
	}
	f, err := ParseFamily(family)
	if err != nil {
		return DeviceAddress{}, err
	}
	return ParseAddress(f, id)
}

// Hex returns the id as zero-padded lower-case hex sized to the family.
func (a DeviceAddress) Hex() string {
	digits := int(a.Family.Bits() / 4)
	if digits == 0 {
		digits = 1
	}
	return fmt.Sprintf("%0*x", digits, a.ID)
}

// String returns "family:hex", e.g. "fht:4321" or "evohome:067aec".
func (a DeviceAddress) String() string {
	return a.Family.String() + ":" + a.Hex()
}

// IsZero reports whether a is the zero address.
func (a DeviceAddress) IsZero() bool {
	return a.Family == 0 && a.ID == 0
}
