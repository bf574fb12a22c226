package packet

import (
	"github.com/itohio/goptprobe/pkg/channel"
	"github.com/itohio/goptprobe/pkg/sensor"
)

// Encoder builds outbound frames. The only state it keeps between frames is
// the count of DATA frames emitted.
type Encoder struct {
	count uint32
}

// Count returns the number of DATA frames written so far.
func (e *Encoder) Count() uint32 {
	return e.count
}

// Data encodes a telemetry frame from the channel table.
//
// Temperature group: active when mapped; error flag and signed code when the
// channel carries a fault or communication error. Pressure group: active when
// enabled. Reference group: active when mapped; error flag only for
// communication errors since a device fault leaves the reference valid.
func (e *Encoder) Data(f *Frame, timestamp uint32, tbl *channel.Table) {
	f.reset()
	f.putByte(byte(DataHeader()))
	f.putUint32(timestamp)

	for i, tc := range tbl.T {
		if !tc.Mapped() {
			continue
		}
		if tc.Fault != sensor.OK {
			f.writeErr(tGroupOffset, i, int32(tc.Fault))
		} else {
			f.writeVal(tGroupOffset, i, tc.T)
		}
		if tc.Fault.IsCommError() {
			f.writeErr(trefGroupOffset, i, int32(tc.Fault))
		} else {
			f.writeVal(trefGroupOffset, i, tc.Tref)
		}
	}
	for i, pc := range tbl.P {
		if pc.Enabled {
			f.writeVal(pGroupOffset, i, pc.P)
		}
	}

	f.n = DataFrameLen
	e.count++
}

// writeVal stores a float in a group slot and marks it active.
func (f *Frame) writeVal(group, ch int, v float32) {
	n := f.n
	f.n = group + 1 + 4*ch
	f.putFloat32(v)
	f.n = n
	f.buf[group] |= 1 << (ch + 4)
	f.buf[group] &^= 1 << ch
}

// writeErr stores an error code in a group slot and flags it.
func (f *Frame) writeErr(group, ch int, code int32) {
	n := f.n
	f.n = group + 1 + 4*ch
	f.putInt32(code)
	f.n = n
	f.buf[group] |= 1<<(ch+4) | 1<<ch
}

// Resp encodes a single-value response. A non-zero code sets the error flag
// and replaces the value.
func (e *Encoder) Resp(f *Frame, rt RespType, ch int, v float32, code sensor.Code) {
	f.reset()
	f.putByte(byte(RespHeader(rt, ch, code != sensor.OK)))
	if code != sensor.OK {
		f.putInt32(int32(code))
	} else {
		f.putFloat32(v)
	}
}

// ID encodes the board identifier response.
func (e *Encoder) ID(f *Frame, boardID uint32) {
	f.reset()
	f.putByte(byte(RespHeader(RespID, 0, false)))
	f.putUint32(boardID)
}

// StatusT encodes a temperature channel status. An unmapped channel, or one
// whose device record is missing, gets the error flag and a single marker
// byte; otherwise the body is id, fault and the ROM address.
func (e *Encoder) StatusT(f *Frame, ch int, dev *sensor.DeviceRecord) {
	f.reset()
	if dev == nil {
		f.putByte(byte(RespHeader(RespStatusT, ch, true)))
		f.putByte(UnmappedMarker)
		return
	}
	f.putByte(byte(RespHeader(RespStatusT, ch, false)))
	f.putByte(dev.ID)
	f.putByte(byte(dev.Fault))
	for _, b := range dev.Addr {
		f.putByte(b)
	}
}

// StatusP encodes a pressure channel status: channel index and the three
// calibration coefficients.
func (e *Encoder) StatusP(f *Frame, pc channel.Pressure) {
	f.reset()
	f.putByte(byte(RespHeader(RespStatusP, pc.Index, false)))
	f.putByte(byte(pc.Index))
	for _, c := range pc.Coeffs {
		f.putFloat32(c)
	}
}

// Halt encodes the end-of-run frame with the DATA frame count.
func (e *Encoder) Halt(f *Frame) {
	f.reset()
	f.putByte(byte(HaltHeader()))
	f.putUint32(e.count)
}
