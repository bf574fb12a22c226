// Package packet implements the fixed-layout binary frames exchanged with
// the host. All multi-byte fields are most-significant byte first.
//
// Header byte layout:
//
//	DATA:  01LLLLLL  L = body length (55)
//	RESP:  10TTTCCE  T = response type, C = channel, E = error flag
//	HALT:  11000000
package packet

import (
	"encoding/binary"
	"io"

	"github.com/chewxy/math32"
)

// Type is the frame type in the top two header bits.
type Type uint8

const (
	TypeReserved Type = 0
	TypeData     Type = 1
	TypeResp     Type = 2
	TypeHalt     Type = 3
)

func (t Type) String() string {
	switch t {
	case TypeData:
		return "DATA"
	case TypeResp:
		return "RESP"
	case TypeHalt:
		return "HALT"
	default:
		return "RSVD"
	}
}

// RespType is the response subtype in header bits 5-3.
type RespType uint8

const (
	RespReserved RespType = 0
	RespID       RespType = 1
	RespT        RespType = 2
	RespP        RespType = 3
	RespTref     RespType = 4
	RespADC      RespType = 5
	RespStatusT  RespType = 6
	RespStatusP  RespType = 7
)

func (r RespType) String() string {
	switch r {
	case RespID:
		return "ID"
	case RespT:
		return "T"
	case RespP:
		return "P"
	case RespTref:
		return "TREF"
	case RespADC:
		return "ADC"
	case RespStatusT:
		return "STATUS_T"
	case RespStatusP:
		return "STATUS_P"
	default:
		return "RSVD"
	}
}

// Frame sizes and group offsets.
const (
	MaxFrameLen = 64

	DataBodyLen  = 55
	DataFrameLen = 1 + DataBodyLen
	RespFrameLen = 5
	HaltFrameLen = 5

	StatusTBodyLen         = 10
	StatusTUnmappedBodyLen = 1
	StatusPBodyLen         = 13

	// UnmappedMarker is the STATUS-T body of an unmapped channel.
	UnmappedMarker byte = 0xFF

	tGroupOffset    = 5
	pGroupOffset    = 22
	trefGroupOffset = 39
	groupLen        = 17
)

// Header is the first byte of every frame.
type Header byte

// DataHeader returns the DATA header carrying the fixed body length.
func DataHeader() Header {
	return Header(byte(TypeData)<<6 | DataBodyLen)
}

// RespHeader builds a RESP header.
func RespHeader(rt RespType, ch int, errFlag bool) Header {
	h := byte(TypeResp)<<6 | byte(rt&0x07)<<3 | byte(ch&0x03)<<1
	if errFlag {
		h |= 0x01
	}
	return Header(h)
}

// HaltHeader returns the HALT header.
func HaltHeader() Header {
	return Header(byte(TypeHalt) << 6)
}

func (h Header) Type() Type { return Type(h >> 6) }
func (h Header) DataLen() int { return int(h & 0x3F) }
func (h Header) RespType() RespType { return RespType(h>>3) & 0x07 }
func (h Header) Channel() int { return int(h>>1) & 0x03 }
func (h Header) Err() bool { return h&0x01 != 0 }

// BodyLen returns the number of bytes following the header, or -1 for
// headers that cannot start a frame.
func (h Header) BodyLen() int {
	switch h.Type() {
	case TypeData:
		if h.DataLen() != DataBodyLen {
			return -1
		}
		return DataBodyLen
	case TypeHalt:
		return 4
	case TypeResp:
		switch h.RespType() {
		case RespStatusT:
			if h.Err() {
				return StatusTUnmappedBodyLen
			}
			return StatusTBodyLen
		case RespStatusP:
			if h.Err() {
				return 4
			}
			return StatusPBodyLen
		case RespReserved:
			return -1
		default:
			return 4
		}
	}
	return -1
}

// Frame is a fixed-capacity frame buffer.
type Frame struct {
	buf [MaxFrameLen]byte
	n   int
}

// Bytes returns the encoded frame.
func (f *Frame) Bytes() []byte {
	return f.buf[:f.n]
}

// Len returns the encoded frame length.
func (f *Frame) Len() int {
	return f.n
}

// Header returns the first byte of the frame.
func (f *Frame) Header() Header {
	return Header(f.buf[0])
}

// WriteTo writes the encoded frame to w.
func (f *Frame) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(f.buf[:f.n])
	return int64(n), err
}

// reset clears the buffer so no bytes carry over between frames.
func (f *Frame) reset() {
	f.buf = [MaxFrameLen]byte{}
	f.n = 0
}

func (f *Frame) putByte(b byte) {
	f.buf[f.n] = b
	f.n++
}

func (f *Frame) putUint32(v uint32) {
	binary.BigEndian.PutUint32(f.buf[f.n:], v)
	f.n += 4
}

func (f *Frame) putFloat32(v float32) {
	f.putUint32(math32.Float32bits(v))
}

func (f *Frame) putInt32(v int32) {
	f.putUint32(uint32(v))
}

func getUint32(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

func getFloat32(b []byte) float32 {
	return math32.Float32frombits(getUint32(b))
}
