package onewire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRC8(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want byte
	}{
		{"empty", nil, 0x00},
		{"maxim example rom", []byte{0x02, 0x1C, 0xB8, 0x01, 0x00, 0x00, 0x00}, 0xA2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CRC8(tt.data))
		})
	}
}

func TestCRC8_AppendedCRCYieldsZero(t *testing.T) {
	data := []byte{0x3B, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66}
	withCRC := append(data, CRC8(data))
	assert.Equal(t, byte(0), CRC8(withCRC))
}

func TestAddress_Valid(t *testing.T) {
	addr := NewAddress(0x3B, [6]byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x02})
	require.True(t, addr.Valid())
	assert.Equal(t, byte(0x3B), addr.Family())

	for i := range AddressLen {
		for bit := range 8 {
			flipped := addr
			flipped[i] ^= 1 << bit
			assert.False(t, flipped.Valid(), "byte %d bit %d", i, bit)
		}
	}
}

func TestAddress_String(t *testing.T) {
	addr := Address{0x3B, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0xAB}
	assert.Equal(t, "3B-01-02-03-04-05-06-AB", addr.String())
}

func TestEncodeScratchpad(t *testing.T) {
	s := EncodeScratchpad(0x0190, 0x0040, 3)
	assert.Equal(t, byte(0x90), s[0])
	assert.Equal(t, byte(0x01), s[1])
	assert.Equal(t, byte(0x40), s[2])
	assert.Equal(t, byte(0x00), s[3])
	assert.Equal(t, byte(3), s[4]&0x0F)
	assert.Equal(t, CRC8(s[:8]), s[8])
}

func TestSimDevice_SetReading(t *testing.T) {
	d := &SimDevice{}
	d.SetReading(25.0, 0.25, 0, 1)
	assert.Equal(t, byte(0x90), d.Scratchpad[0])
	assert.Equal(t, byte(0x01), d.Scratchpad[1])
	assert.Equal(t, byte(0x40), d.Scratchpad[2])

	d.SetReading(25.0, 0.25, 2, 1)
	assert.Equal(t, byte(0x91), d.Scratchpad[0], "fault flag in probe low bit")
	assert.Equal(t, byte(0x40), d.Scratchpad[3]&0xE0, "fault code in top bits of reference word")
}

func TestSim_SearchAndSelect(t *testing.T) {
	a := &SimDevice{Addr: NewAddress(0x3B, [6]byte{1})}
	b := &SimDevice{Addr: NewAddress(0x3B, [6]byte{2})}
	a.SetReading(10, 20, 0, 0)
	b.SetReading(30, 40, 0, 1)
	sim := NewSim(a, b)

	var addr Address
	require.True(t, sim.Search(&addr))
	assert.Equal(t, a.Addr, addr)
	require.True(t, sim.Search(&addr))
	assert.Equal(t, b.Addr, addr)
	assert.False(t, sim.Search(&addr))

	sim.ResetSearch()
	require.True(t, sim.Search(&addr))
	assert.Equal(t, a.Addr, addr)

	require.True(t, sim.Reset())
	sim.Select(b.Addr)
	sim.Write(ReadScratchpad)
	buf := make([]byte, ScratchpadLen)
	sim.ReadBytes(buf)
	assert.Equal(t, b.Scratchpad[:], buf)
}

func TestSim_Conversion(t *testing.T) {
	d := &SimDevice{Addr: NewAddress(0x3B, [6]byte{1}), ConvertPolls: 2}
	converted := 0
	sim := NewSim(d)
	sim.OnConvert = func(*SimDevice) { converted++ }

	require.True(t, sim.Reset())
	sim.Skip()
	sim.Write(ConvertT)
	assert.Equal(t, 1, converted)

	assert.False(t, sim.ReadBit())
	assert.False(t, sim.ReadBit())
	assert.True(t, sim.ReadBit())
}

func TestSim_Absent(t *testing.T) {
	sim := NewSim(&SimDevice{})
	sim.Absent = true
	assert.False(t, sim.Reset())
	var addr Address
	assert.False(t, sim.Search(&addr))
}
