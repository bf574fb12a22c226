package onewire

// ScratchpadLen is the number of scratchpad bytes read from a MAX31850.
const ScratchpadLen = 9

// SimDevice is a simulated thermocouple converter attached to a Sim bus.
type SimDevice struct {
	Addr       Address
	Scratchpad [ScratchpadLen]byte
	// ConvertPolls is the number of status reads that report "busy" after
	// a conversion has been started.
	ConvertPolls int
	// Stuck keeps the device busy forever once a conversion is started.
	Stuck bool

	pending int
	busy    bool
}

// SetReading loads the scratchpad with a probe and reference temperature.
// A non-zero fault sets the probe fault flag and places the code in the top
// three bits of the reference word.
func (d *SimDevice) SetReading(probe, ref float32, fault uint8, id uint8) {
	probeRaw := uint16(int16(probe*4)) << 2
	refRaw := uint16(int16(ref*16)) << 4
	if fault != 0 {
		probeRaw |= 0x0001
		refRaw = refRaw&0x1FFF | uint16(fault&0x07)<<13
	}
	d.Scratchpad = EncodeScratchpad(int16(probeRaw), int16(refRaw), id)
}

// EncodeScratchpad lays out raw probe and reference words and the channel id
// the way the device presents them, and appends a valid CRC.
func EncodeScratchpad(probeRaw, refRaw int16, id uint8) [ScratchpadLen]byte {
	var s [ScratchpadLen]byte
	s[0] = byte(uint16(probeRaw))
	s[1] = byte(uint16(probeRaw) >> 8)
	s[2] = byte(uint16(refRaw))
	s[3] = byte(uint16(refRaw) >> 8)
	s[4] = 0xF0 | id&0x0F
	s[5], s[6], s[7] = 0xFF, 0xFF, 0xFF
	s[8] = CRC8(s[:8])
	return s
}

// Sim is an in-memory Bus. Devices are enumerated by Search in slice order
// and answer CONVERT T and READ SCRATCHPAD.
type Sim struct {
	Devices []*SimDevice
	// Absent suppresses the presence pulse.
	Absent bool
	// OnConvert is called for each device that starts a conversion.
	OnConvert func(d *SimDevice)

	// Resets and Writes record traffic for inspection.
	Resets int
	Writes []byte

	searchPos int
	selected  []*SimDevice
	readBuf   []byte
}

var _ Bus = (*Sim)(nil)

// NewSim creates a simulated bus with the given devices.
func NewSim(devices ...*SimDevice) *Sim {
	return &Sim{Devices: devices}
}

// Reset clears device selection and reports presence.
func (s *Sim) Reset() bool {
	s.Resets++
	s.selected = nil
	s.readBuf = nil
	return !s.Absent && len(s.Devices) > 0
}

// Search returns the next device address in slice order.
func (s *Sim) Search(addr *Address) bool {
	if s.Absent || s.searchPos >= len(s.Devices) {
		return false
	}
	*addr = s.Devices[s.searchPos].Addr
	s.searchPos++
	return true
}

// ResetSearch restarts enumeration.
func (s *Sim) ResetSearch() {
	s.searchPos = 0
}

// Select addresses the device whose address matches exactly.
func (s *Sim) Select(addr Address) {
	s.selected = s.selected[:0]
	for _, d := range s.Devices {
		if d.Addr == addr {
			s.selected = append(s.selected, d)
		}
	}
}

// Skip addresses every device.
func (s *Sim) Skip() {
	s.selected = append(s.selected[:0], s.Devices...)
}

// Write executes function commands against the selected devices.
func (s *Sim) Write(b byte) {
	s.Writes = append(s.Writes, b)
	switch b {
	case ConvertT:
		for _, d := range s.selected {
			d.pending = d.ConvertPolls
			d.busy = true
			if s.OnConvert != nil {
				s.OnConvert(d)
			}
		}
	case ReadScratchpad:
		if len(s.selected) == 1 {
			sp := s.selected[0].Scratchpad
			s.readBuf = append(s.readBuf[:0], sp[:]...)
		} else {
			s.readBuf = nil
		}
	}
}

// ReadBytes drains the pending read buffer. Idle bus lines read as 0xFF.
func (s *Sim) ReadBytes(buf []byte) {
	for i := range buf {
		if len(s.readBuf) > 0 {
			buf[i] = s.readBuf[0]
			s.readBuf = s.readBuf[1:]
		} else {
			buf[i] = 0xFF
		}
	}
}

// ReadBit returns false while any device is still converting.
func (s *Sim) ReadBit() bool {
	done := true
	for _, d := range s.Devices {
		if !d.busy {
			continue
		}
		if d.Stuck {
			done = false
			continue
		}
		if d.pending > 0 {
			d.pending--
			done = false
			continue
		}
		d.busy = false
	}
	return done
}
