package packet

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/itohio/goptprobe/pkg/analog"
	"github.com/itohio/goptprobe/pkg/channel"
	"github.com/itohio/goptprobe/pkg/onewire"
	"github.com/itohio/goptprobe/pkg/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedInput uint16

func (f fixedInput) Get() uint16 { return uint16(f) }

func newTable() *channel.Table {
	return channel.NewTable(nil, analog.NewReader(), channel.Options{})
}

func TestHeaders(t *testing.T) {
	assert.Equal(t, Header(0x40|55), DataHeader())
	assert.Equal(t, Header(0xC0), HaltHeader())

	h := RespHeader(RespTref, 3, true)
	assert.Equal(t, Header(0b10_100_11_1), h)
	assert.Equal(t, TypeResp, h.Type())
	assert.Equal(t, RespTref, h.RespType())
	assert.Equal(t, 3, h.Channel())
	assert.True(t, h.Err())

	h = RespHeader(RespP, 1, false)
	assert.Equal(t, Header(0b10_011_01_0), h)
	assert.False(t, h.Err())
}

func TestHeader_BodyLen(t *testing.T) {
	tests := []struct {
		name   string
		header Header
		want   int
	}{
		{"data", DataHeader(), DataBodyLen},
		{"data wrong length", Header(0x40 | 12), -1},
		{"halt", HaltHeader(), 4},
		{"resp T", RespHeader(RespT, 0, false), 4},
		{"resp ID", RespHeader(RespID, 0, false), 4},
		{"status T mapped", RespHeader(RespStatusT, 2, false), StatusTBodyLen},
		{"status T unmapped", RespHeader(RespStatusT, 2, true), StatusTUnmappedBodyLen},
		{"status P", RespHeader(RespStatusP, 1, false), StatusPBodyLen},
		{"status P error", RespHeader(RespStatusP, 1, true), 4},
		{"resp reserved", RespHeader(RespReserved, 0, false), -1},
		{"reserved type", Header(0x05), -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.header.BodyLen())
		})
	}
}

func TestData_Layout(t *testing.T) {
	tbl := newTable()
	tbl.T[0] = channel.Temperature{Index: 0, T: 23.4, Tref: 21.0625, Device: 0}
	tbl.T[1] = channel.Temperature{Index: 1, Device: channel.Unmapped}
	tbl.T[2] = channel.Temperature{Index: 2, T: 50, Tref: 22, Fault: sensor.Code(sensor.FaultGroundShort), Device: 1}
	tbl.T[3] = channel.Temperature{Index: 3, T: 51, Tref: 23, Fault: sensor.Checksum, Device: 2}
	tbl.P[0].Enabled = true
	tbl.P[0].P = 101.325

	var enc Encoder
	var f Frame
	enc.Data(&f, 0x01020304, tbl)

	b := f.Bytes()
	require.Len(t, b, DataFrameLen)
	assert.Equal(t, byte(0x77), b[0])
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, b[1:5])

	// temperature group: active {0,2,3}, error {2,3}
	assert.Equal(t, byte(0b1101_1100), b[tGroupOffset])
	assert.Equal(t, math.Float32bits(23.4), binary.BigEndian.Uint32(b[6:10]))
	assert.Equal(t, []byte{0, 0, 0, 0}, b[10:14], "unmapped slot stays zero")
	assert.Equal(t, uint32(2), binary.BigEndian.Uint32(b[14:18]))
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF}, b[18:22])

	// pressure group: only channel 0 enabled
	assert.Equal(t, byte(0b0001_0000), b[pGroupOffset])
	assert.Equal(t, math.Float32bits(101.325), binary.BigEndian.Uint32(b[23:27]))

	// reference group: active {0,2,3}, error only for the communication error
	assert.Equal(t, byte(0b1101_1000), b[trefGroupOffset])
	assert.Equal(t, math.Float32bits(21.0625), binary.BigEndian.Uint32(b[40:44]))
	assert.Equal(t, math.Float32bits(22), binary.BigEndian.Uint32(b[48:52]))
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF}, b[52:56])

	assert.Equal(t, uint32(1), enc.Count())
}

func TestData_RoundTrip(t *testing.T) {
	tbl := newTable()
	tbl.T[0] = channel.Temperature{Index: 0, T: 23.4, Tref: 21, Device: 0}
	tbl.T[2] = channel.Temperature{Index: 2, T: 5, Tref: 22, Fault: sensor.Code(sensor.FaultOpenCircuit), Device: 1}
	for i := range tbl.P {
		tbl.P[i].Enabled = true
		tbl.P[i].P = float32(i) * 10.5
	}

	var enc Encoder
	var f Frame
	enc.Data(&f, 1234, tbl)

	var in Frame
	require.NoError(t, ReadFrame(bytes.NewReader(f.Bytes()), &in))
	d, err := DecodeData(&in)
	require.NoError(t, err)

	assert.Equal(t, uint32(1234), d.Timestamp)
	assert.True(t, d.T.Active(0))
	assert.False(t, d.T.Err(0))
	assert.Equal(t, float32(23.4), d.T.Values[0])
	assert.False(t, d.T.Active(1))
	assert.True(t, d.T.Active(2))
	assert.True(t, d.T.Err(2))
	assert.Equal(t, int32(1), d.T.Codes[2])
	assert.Equal(t, float32(22), d.Tref.Values[2])
	for i := range 4 {
		assert.True(t, d.P.Active(i))
		assert.Equal(t, float32(i)*10.5, d.P.Values[i])
	}
}

func TestData_FrameIsFresh(t *testing.T) {
	tbl := newTable()
	tbl.T[1] = channel.Temperature{Index: 1, T: 99, Device: 0}

	var enc Encoder
	var f Frame
	enc.Data(&f, 1, tbl)

	tbl.T[1].Device = channel.Unmapped
	enc.Data(&f, 2, tbl)
	assert.Equal(t, byte(0), f.Bytes()[tGroupOffset])
	assert.Equal(t, []byte{0, 0, 0, 0}, f.Bytes()[10:14])
	assert.Equal(t, uint32(2), enc.Count())
}

func TestData_FromAcquisition(t *testing.T) {
	dev := &onewire.SimDevice{Addr: onewire.NewAddress(sensor.FamilyMAX31850, [6]byte{1})}
	dev.SetReading(25, 0.25, 0, 0)
	bus := sensor.New(onewire.NewSim(dev), nil)
	tbl := channel.NewTable(bus, analog.NewReader(fixedInput(0x8000)), channel.Options{Sleep: func(time.Duration) {}})
	tbl.MapChannels(bus.Discover())
	require.Equal(t, sensor.OK, tbl.AcquireAll())
	tbl.AcquireAllPressure()

	var enc Encoder
	var f Frame
	enc.Data(&f, 10, tbl)
	d, err := DecodeData(&f)
	require.NoError(t, err)
	assert.Equal(t, float32(25), d.T.Values[0])
	assert.Equal(t, float32(0.25), d.Tref.Values[0])
	assert.Equal(t, tbl.P[0].P, d.P.Values[0])
}

func TestResp(t *testing.T) {
	var enc Encoder
	var f Frame

	enc.Resp(&f, RespT, 2, 23.5, sensor.OK)
	require.Equal(t, RespFrameLen, f.Len())
	r, err := DecodeResp(&f)
	require.NoError(t, err)
	assert.Equal(t, Resp{Type: RespT, Channel: 2, Value: 23.5, Raw: math.Float32bits(23.5)}, r)

	enc.Resp(&f, RespT, 1, 23.5, sensor.NoPresence)
	r, err = DecodeResp(&f)
	require.NoError(t, err)
	assert.True(t, r.Err)
	assert.Equal(t, int32(-2), r.Code)
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFE}, f.Bytes()[1:])
}

func TestID(t *testing.T) {
	var enc Encoder
	var f Frame
	enc.ID(&f, 0xCAFEBABE)
	assert.Equal(t, []byte{0x88, 0xCA, 0xFE, 0xBA, 0xBE}, f.Bytes())
	r, err := DecodeResp(&f)
	require.NoError(t, err)
	assert.Equal(t, RespID, r.Type)
	assert.Equal(t, uint32(0xCAFEBABE), r.Raw)
}

func TestStatusT(t *testing.T) {
	var enc Encoder
	var f Frame

	dev := &sensor.DeviceRecord{
		Addr:  onewire.Address{0x3B, 1, 2, 3, 4, 5, 6, 7},
		ID:    2,
		Fault: sensor.FaultSupplyShort,
	}
	enc.StatusT(&f, 2, dev)
	require.Equal(t, 1+StatusTBodyLen, f.Len())
	assert.Equal(t, []byte{2, 4, 0x3B, 1, 2, 3, 4, 5, 6, 7}, f.Bytes()[1:])

	s, err := DecodeStatusT(&f)
	require.NoError(t, err)
	assert.Equal(t, StatusT{Channel: 2, Mapped: true, ID: 2, Fault: 4, Addr: dev.Addr}, s)

	enc.StatusT(&f, 1, nil)
	assert.Equal(t, []byte{byte(RespHeader(RespStatusT, 1, true)), 0xFF}, f.Bytes())
	s, err = DecodeStatusT(&f)
	require.NoError(t, err)
	assert.False(t, s.Mapped)
	assert.Equal(t, 1, s.Channel)
}

func TestStatusP(t *testing.T) {
	var enc Encoder
	var f Frame
	pc := channel.Pressure{Index: 3, Coeffs: [3]float32{-97.35308, 920.6867, -14.86687}}
	enc.StatusP(&f, pc)
	require.Equal(t, 1+StatusPBodyLen, f.Len())
	assert.Equal(t, byte(3), f.Bytes()[1])
	assert.Equal(t, math.Float32bits(-97.35308), binary.BigEndian.Uint32(f.Bytes()[2:6]))

	s, err := DecodeStatusP(&f)
	require.NoError(t, err)
	assert.Equal(t, StatusP{Channel: 3, Coeffs: pc.Coeffs}, s)
}

func TestHalt_RoundTrip(t *testing.T) {
	tbl := newTable()
	var enc Encoder
	var f Frame
	for range 3 {
		enc.Data(&f, 0, tbl)
	}
	enc.Halt(&f)
	assert.Equal(t, []byte{0xC0, 0, 0, 0, 3}, f.Bytes())

	for _, want := range []uint32{0, 1, 0x80000000, math.MaxUint32} {
		enc.count = want
		enc.Halt(&f)
		var in Frame
		require.NoError(t, ReadFrame(bytes.NewReader(f.Bytes()), &in))
		got, err := DecodeHalt(&in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestReadFrame_Stream(t *testing.T) {
	var enc Encoder
	var f Frame
	var stream bytes.Buffer

	enc.Resp(&f, RespP, 0, 1.5, sensor.OK)
	f.WriteTo(&stream)
	enc.StatusT(&f, 3, nil)
	f.WriteTo(&stream)
	enc.Halt(&f)
	f.WriteTo(&stream)

	var in Frame
	require.NoError(t, ReadFrame(&stream, &in))
	assert.Equal(t, TypeResp, in.Header().Type())
	require.NoError(t, ReadFrame(&stream, &in))
	assert.Equal(t, RespStatusT, in.Header().RespType())
	require.NoError(t, ReadFrame(&stream, &in))
	assert.Equal(t, TypeHalt, in.Header().Type())
}

func TestReadFrame_Errors(t *testing.T) {
	var in Frame
	err := ReadFrame(bytes.NewReader([]byte{0x00}), &in)
	assert.ErrorIs(t, err, ErrBadHeader)

	err = ReadFrame(bytes.NewReader([]byte{0xC0, 0x00}), &in)
	assert.Error(t, err)
}

func TestDecode_WrongType(t *testing.T) {
	var enc Encoder
	var f Frame
	enc.Halt(&f)

	_, err := DecodeData(&f)
	assert.ErrorIs(t, err, ErrBadHeader)
	_, err = DecodeResp(&f)
	assert.ErrorIs(t, err, ErrBadHeader)

	enc.StatusT(&f, 0, nil)
	_, err = DecodeResp(&f)
	assert.ErrorIs(t, err, ErrBadFrame)
	_, err = DecodeStatusP(&f)
	assert.ErrorIs(t, err, ErrBadHeader)
}
