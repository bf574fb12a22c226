// Package onewire defines the single-wire bus contract used by the sensor
// acquisition code, together with ROM addressing and the Dallas/Maxim CRC-8.
package onewire

import (
	"fmt"
	"strings"
)

// ROM and function commands understood by single-wire devices.
const (
	SearchROM      byte = 0xF0
	MatchROM       byte = 0x55
	SkipROM        byte = 0xCC
	ConvertT       byte = 0x44
	ReadScratchpad byte = 0xBE
)

// AddressLen is the size of a ROM address in bytes.
const AddressLen = 8

// Address is the 64-bit ROM code of a device, in bus order:
// family code first, CRC-8 last.
type Address [AddressLen]byte

// NewAddress builds an address from a family code and a 48-bit serial,
// filling in the CRC byte.
func NewAddress(family byte, serial [6]byte) Address {
	var a Address
	a[0] = family
	copy(a[1:7], serial[:])
	a[7] = CRC8(a[:7])
	return a
}

// Family returns the device family code.
func (a Address) Family() byte {
	return a[0]
}

// Valid reports whether the CRC over the first seven bytes matches the last.
func (a Address) Valid() bool {
	return CRC8(a[:7]) == a[7]
}

// String formats the address as dash separated hex bytes.
func (a Address) String() string {
	var sb strings.Builder
	for i, b := range a {
		if i > 0 {
			sb.WriteByte('-')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

// Bus is the primitive single-wire bus driver. Electrical timing is the
// implementation's concern; callers only sequence operations.
type Bus interface {
	// Reset issues a bus reset and reports whether any device answered
	// with a presence pulse.
	Reset() bool
	// Search writes the next discovered ROM address into addr. It returns
	// false once the enumeration is exhausted.
	Search(addr *Address) bool
	// ResetSearch restarts the enumeration performed by Search.
	ResetSearch()
	// Select addresses a single device (MATCH ROM).
	Select(addr Address)
	// Skip addresses every device on the bus (SKIP ROM).
	Skip()
	// Write sends one byte.
	Write(b byte)
	// ReadBytes fills buf from the bus.
	ReadBytes(buf []byte)
	// ReadBit reads a single time slot.
	ReadBit() bool
}
