// Package sensor drives MAX31850 thermocouple converters on a single-wire
// bus: discovery, conversion control and scratchpad decoding.
package sensor

import (
	"io"
	"log"

	"github.com/itohio/goptprobe/pkg/onewire"
)

const (
	// MaxDevices is the bus fan-out limit.
	MaxDevices = 4
	// FamilyMAX31850 is the ROM family code accepted by Discover.
	FamilyMAX31850 byte = 0x3B
	// Broadcast addresses all devices in StartConversion and ConversionComplete.
	Broadcast = -1
	// Unassigned marks a device whose channel id could not be recovered.
	Unassigned uint8 = 0xFF
)

// DeviceRecord is the last known state of one converter.
type DeviceRecord struct {
	Addr   onewire.Address
	ID     uint8 // self-reported channel id (0-15), Unassigned if unknown
	ProbeT float32
	RefT   float32
	Fault  Fault
}

// Reading is a decoded scratchpad.
type Reading struct {
	ProbeT  float32
	RefT    float32
	Faulted bool
	Fault   Fault
	ID      uint8
}

// Bus owns the device table for one single-wire bus. It is not safe for
// concurrent use; all access must be serialized by its owner.
type Bus struct {
	bus     onewire.Bus
	log     *log.Logger
	devices [MaxDevices]DeviceRecord
	count   int
}

// New creates a Bus over the given driver. A nil logger discards messages.
func New(bus onewire.Bus, logger *log.Logger) *Bus {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Bus{
		bus: bus,
		log: logger,
	}
}

// Count returns the number of discovered devices.
func (b *Bus) Count() int {
	return b.count
}

// Device returns a copy of the record at index.
func (b *Bus) Device(index int) (DeviceRecord, bool) {
	if index < 0 || index >= b.count {
		return DeviceRecord{}, false
	}
	return b.devices[index], true
}

// Devices returns a copy of the device table.
func (b *Bus) Devices() []DeviceRecord {
	out := make([]DeviceRecord, b.count)
	copy(out, b.devices[:b.count])
	return out
}

// Discover rebuilds the device table. The search is bounded to MaxDevices
// iterations; addresses with a bad CRC or a foreign family code are
// skipped. Each accepted device is then asked for its channel id.
func (b *Bus) Discover() []DeviceRecord {
	b.count = 0
	b.devices = [MaxDevices]DeviceRecord{}

	if !b.bus.Reset() {
		b.log.Printf("discover: no presence on bus")
		return nil
	}

	var addr onewire.Address
	for range MaxDevices {
		if !b.bus.Search(&addr) {
			break
		}
		if !addr.Valid() {
			b.log.Printf("discover: %s: invalid address CRC", addr)
			continue
		}
		if addr.Family() != FamilyMAX31850 {
			b.log.Printf("discover: %s: unexpected family 0x%02X (expecting 0x%02X)", addr, addr.Family(), FamilyMAX31850)
			continue
		}
		b.devices[b.count] = DeviceRecord{Addr: addr, ID: Unassigned}
		b.count++
	}
	b.bus.ResetSearch()

	var data [onewire.ScratchpadLen]byte
	for i := range b.count {
		if code := b.fetch(i, data[:]); code != OK {
			b.log.Printf("discover: %s: channel id not recovered: %v", b.devices[i].Addr, code)
			continue
		}
		b.devices[i].ID = data[4] & 0x0F
	}

	return b.Devices()
}

// StartConversion starts a temperature conversion on one device, or on all
// devices when index is Broadcast. Nothing is sent if the reset fails.
func (b *Bus) StartConversion(index int) error {
	if index != Broadcast && (index < 0 || index >= b.count) {
		return InvalidIndex
	}
	if !b.bus.Reset() {
		return NoPresence
	}
	if index == Broadcast {
		b.bus.Skip()
	} else {
		b.bus.Select(b.devices[index].Addr)
	}
	b.bus.Write(onewire.ConvertT)
	return nil
}

// ConversionComplete polls the conversion status slot. The caller must have
// addressed the device (or all devices) with StartConversion beforehand.
func (b *Bus) ConversionComplete(index int) bool {
	if index != Broadcast && (index < 0 || index >= b.count) {
		return false
	}
	return b.bus.ReadBit()
}

// ReadScratchpad reads and decodes the scratchpad of one device. It returns
// OK, the positive fault code reported by the device, or a negative Code.
// The record is left untouched unless the CRC matches.
func (b *Bus) ReadScratchpad(index int) Code {
	if index < 0 || index >= b.count {
		return InvalidIndex
	}

	var data [onewire.ScratchpadLen]byte
	if code := b.fetch(index, data[:]); code != OK {
		return code
	}

	r := Decode(data)
	rec := &b.devices[index]
	rec.ProbeT = r.ProbeT
	rec.RefT = r.RefT
	rec.ID = r.ID
	if r.Faulted {
		rec.Fault = r.Fault
	} else {
		rec.Fault = FaultNone
	}

	return Code(rec.Fault)
}

// fetch reads the raw scratchpad of a device and validates its CRC.
func (b *Bus) fetch(index int, data []byte) Code {
	if !b.bus.Reset() {
		return NoPresence
	}
	b.bus.Select(b.devices[index].Addr)
	b.bus.Write(onewire.ReadScratchpad)
	b.bus.ReadBytes(data)

	if onewire.CRC8(data[:8]) != data[8] {
		return Checksum
	}
	return OK
}

// Decode interprets a scratchpad. Both temperature words are little-endian
// signed; the probe word carries a fault flag in bit 0. The fault code sits
// in the low three bits of the reference word as the device reports it, or
// in its top three bits. A flagged fault without a code is FaultUnspecified.
func Decode(data [onewire.ScratchpadLen]byte) Reading {
	rawProbe := int16(uint16(data[1])<<8 | uint16(data[0]))
	rawRef := int16(uint16(data[3])<<8 | uint16(data[2]))

	r := Reading{
		ProbeT: float32(rawProbe>>2) / 4,
		RefT:   float32(rawRef>>4) / 16,
		ID:     data[4] & 0x0F,
	}
	if rawProbe&0x01 == 0 {
		return r
	}

	r.Faulted = true
	low := Fault(uint16(rawRef) & 0x07)
	top := Fault(uint16(rawRef) >> 13 & 0x07)
	switch {
	case low != 0:
		r.Fault = low
	case top != 0:
		// The code bits are not part of the reference reading.
		r.Fault = top
		r.RefT = float32(int16(uint16(rawRef)&0x1FFF)>>4) / 16
	default:
		r.Fault = FaultUnspecified
	}
	return r
}
