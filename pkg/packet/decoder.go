package packet

import (
	"errors"
	"fmt"
	"io"
)

var (
	ErrBadHeader = errors.New("bad frame header")
	ErrBadFrame  = errors.New("bad frame")
)

// Group is one decoded DATA group.
type Group struct {
	Mask   byte
	Values [4]float32
	Codes  [4]int32
}

// Active reports the active flag of a channel.
func (g Group) Active(ch int) bool {
	return g.Mask&(1<<(ch+4)) != 0
}

// Err reports the error flag of a channel.
func (g Group) Err(ch int) bool {
	return g.Mask&(1<<ch) != 0
}

// Data is a decoded telemetry frame. Slots of inactive channels are zero
// and must not be interpreted.
type Data struct {
	Timestamp uint32
	T         Group
	P         Group
	Tref      Group
}

// Resp is a decoded single-value response.
type Resp struct {
	Type    RespType
	Channel int
	Err     bool
	Value   float32 // valid when !Err
	Code    int32   // valid when Err
	Raw     uint32  // body as an unsigned integer (board id)
}

// StatusT is a decoded temperature channel status.
type StatusT struct {
	Channel int
	Mapped  bool
	ID      uint8
	Fault   uint8
	Addr    [8]byte
}

// StatusP is a decoded pressure channel status.
type StatusP struct {
	Channel int
	Coeffs  [3]float32
}

// ReadFrame reads one complete frame from r into f.
func ReadFrame(r io.Reader, f *Frame) error {
	f.reset()
	if _, err := io.ReadFull(r, f.buf[:1]); err != nil {
		return err
	}
	n := f.Header().BodyLen()
	if n < 0 {
		return fmt.Errorf("%w: 0x%02X", ErrBadHeader, f.buf[0])
	}
	if _, err := io.ReadFull(r, f.buf[1:1+n]); err != nil {
		return fmt.Errorf("reading %s body: %w", f.Header().Type(), err)
	}
	f.n = 1 + n
	return nil
}

func (f *Frame) expect(t Type) error {
	if f.n == 0 || f.Header().Type() != t {
		return fmt.Errorf("%w: want %s, got 0x%02X", ErrBadHeader, t, f.buf[0])
	}
	if f.n != 1+f.Header().BodyLen() {
		return fmt.Errorf("%w: truncated %s frame", ErrBadFrame, t)
	}
	return nil
}

// DecodeData decodes a DATA frame.
func DecodeData(f *Frame) (Data, error) {
	if err := f.expect(TypeData); err != nil {
		return Data{}, err
	}
	return Data{
		Timestamp: getUint32(f.buf[1:]),
		T:         f.group(tGroupOffset),
		P:         f.group(pGroupOffset),
		Tref:      f.group(trefGroupOffset),
	}, nil
}

func (f *Frame) group(offset int) Group {
	g := Group{Mask: f.buf[offset]}
	for ch := range 4 {
		if !g.Active(ch) {
			continue
		}
		slot := f.buf[offset+1+4*ch:]
		if g.Err(ch) {
			g.Codes[ch] = int32(getUint32(slot))
		} else {
			g.Values[ch] = getFloat32(slot)
		}
	}
	return g
}

// DecodeResp decodes a single-value RESP frame (ID, T, P, TREF, ADC).
func DecodeResp(f *Frame) (Resp, error) {
	if err := f.expect(TypeResp); err != nil {
		return Resp{}, err
	}
	h := f.Header()
	if rt := h.RespType(); rt == RespStatusT || rt == RespStatusP {
		return Resp{}, fmt.Errorf("%w: %s is a status response", ErrBadFrame, rt)
	}
	r := Resp{
		Type:    h.RespType(),
		Channel: h.Channel(),
		Err:     h.Err(),
		Raw:     getUint32(f.buf[1:]),
	}
	if r.Err {
		r.Code = int32(r.Raw)
	} else {
		r.Value = getFloat32(f.buf[1:])
	}
	return r, nil
}

// DecodeStatusT decodes a STATUS-T frame.
func DecodeStatusT(f *Frame) (StatusT, error) {
	if err := f.expect(TypeResp); err != nil {
		return StatusT{}, err
	}
	h := f.Header()
	if h.RespType() != RespStatusT {
		return StatusT{}, fmt.Errorf("%w: want STATUS_T, got %s", ErrBadHeader, h.RespType())
	}
	s := StatusT{Channel: h.Channel(), Mapped: !h.Err()}
	if !s.Mapped {
		if f.buf[1] != UnmappedMarker {
			return StatusT{}, fmt.Errorf("%w: unmapped status body 0x%02X", ErrBadFrame, f.buf[1])
		}
		return s, nil
	}
	s.ID = f.buf[1]
	s.Fault = f.buf[2]
	copy(s.Addr[:], f.buf[3:11])
	return s, nil
}

// DecodeStatusP decodes a STATUS-P frame.
func DecodeStatusP(f *Frame) (StatusP, error) {
	if err := f.expect(TypeResp); err != nil {
		return StatusP{}, err
	}
	h := f.Header()
	if h.RespType() != RespStatusP {
		return StatusP{}, fmt.Errorf("%w: want STATUS_P, got %s", ErrBadHeader, h.RespType())
	}
	if h.Err() {
		return StatusP{}, fmt.Errorf("%w: STATUS_P error code %d", ErrBadFrame, int32(getUint32(f.buf[1:])))
	}
	s := StatusP{Channel: int(f.buf[1])}
	for i := range s.Coeffs {
		s.Coeffs[i] = getFloat32(f.buf[2+4*i:])
	}
	return s, nil
}

// DecodeHalt decodes a HALT frame and returns the emitted frame count.
func DecodeHalt(f *Frame) (uint32, error) {
	if err := f.expect(TypeHalt); err != nil {
		return 0, err
	}
	return getUint32(f.buf[1:]), nil
}
