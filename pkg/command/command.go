// Package command parses the host-to-board command stream and encodes
// commands for the host side.
//
// Commands are short ASCII prefixes, some followed by newline, others by
// little-endian binary arguments:
//
//	A{T|P|R|A}<ch>\n   one-shot query (temperature, pressure, reference, raw ADC)
//	AB\n               board id
//	AS{T|P}<ch>\n      channel status
//	R<u32>             run for N samples (0 = until stopped)
//	S                  stop a run
//	CD<i8>             set debug level
//	CP<i8 ch><i8 idx><f32>  set pressure coefficient
//	CB<u32>            set board id
//	CW                 store configuration
package command

import (
	"encoding/binary"
	"fmt"

	"github.com/chewxy/math32"
	"github.com/itohio/goptprobe/pkg/packet"
)

// Kind identifies a command.
type Kind uint8

const (
	KindQuery Kind = iota + 1
	KindBoardID
	KindStatus
	KindRun
	KindStop
	KindSetDebug
	KindSetCoeff
	KindSetBoardID
	KindStore
)

func (k Kind) String() string {
	switch k {
	case KindQuery:
		return "query"
	case KindBoardID:
		return "board-id"
	case KindStatus:
		return "status"
	case KindRun:
		return "run"
	case KindStop:
		return "stop"
	case KindSetDebug:
		return "set-debug"
	case KindSetCoeff:
		return "set-coeff"
	case KindSetBoardID:
		return "set-board-id"
	case KindStore:
		return "store"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Command is one decoded host command. Only the fields relevant to Kind
// are set.
type Command struct {
	Kind    Kind
	Resp    packet.RespType // query and status subtype
	Channel int             // query, status, set-coeff
	Count   uint32          // run
	Level   int8            // set-debug
	Index   int             // set-coeff
	Value   float32         // set-coeff
	BoardID uint32          // set-board-id
}

const maxCommandLen = 8

// Parser accumulates command bytes. Unrecognised input resets it.
type Parser struct {
	buf [maxCommandLen]byte
	n   int
}

// Reset discards any partial command.
func (p *Parser) Reset() {
	p.n = 0
}

// Feed consumes one byte and returns a command once one is complete.
func (p *Parser) Feed(b byte) (Command, bool) {
	if p.n == 0 && (b == '\n' || b == '\r' || b == ' ' || b == '\t') {
		return Command{}, false
	}
	p.buf[p.n] = b
	p.n++

	cmd, st := parse(p.buf[:p.n])
	switch st {
	case complete:
		p.n = 0
		return cmd, true
	case invalid:
		restart := p.n > 1
		p.n = 0
		// The offending byte may open the next command.
		if restart {
			return p.Feed(b)
		}
	}
	return Command{}, false
}

type state uint8

const (
	partial state = iota
	complete
	invalid
)

var queryTypes = map[byte]packet.RespType{
	'T': packet.RespT,
	'P': packet.RespP,
	'R': packet.RespTref,
	'A': packet.RespADC,
}

var statusTypes = map[byte]packet.RespType{
	'T': packet.RespStatusT,
	'P': packet.RespStatusP,
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// parse inspects a prefix of the command stream.
func parse(b []byte) (Command, state) {
	need := func(n int) bool { return len(b) >= n }

	switch b[0] {
	case 'A':
		if !need(2) {
			return Command{}, partial
		}
		switch b[1] {
		case 'B':
			if !need(3) {
				return Command{}, partial
			}
			if b[2] != '\n' {
				return Command{}, invalid
			}
			return Command{Kind: KindBoardID, Resp: packet.RespID}, complete
		case 'S':
			if !need(3) {
				return Command{}, partial
			}
			rt, ok := statusTypes[b[2]]
			if !ok {
				return Command{}, invalid
			}
			if !need(4) {
				return Command{}, partial
			}
			if !isDigit(b[3]) {
				return Command{}, invalid
			}
			if !need(5) {
				return Command{}, partial
			}
			if b[4] != '\n' {
				return Command{}, invalid
			}
			return Command{Kind: KindStatus, Resp: rt, Channel: int(b[3] - '0')}, complete
		default:
			rt, ok := queryTypes[b[1]]
			if !ok {
				return Command{}, invalid
			}
			if !need(3) {
				return Command{}, partial
			}
			if !isDigit(b[2]) {
				return Command{}, invalid
			}
			if !need(4) {
				return Command{}, partial
			}
			if b[3] != '\n' {
				return Command{}, invalid
			}
			return Command{Kind: KindQuery, Resp: rt, Channel: int(b[2] - '0')}, complete
		}
	case 'R':
		if !need(5) {
			return Command{}, partial
		}
		return Command{Kind: KindRun, Count: binary.LittleEndian.Uint32(b[1:5])}, complete
	case 'S':
		return Command{Kind: KindStop}, complete
	case 'C':
		if !need(2) {
			return Command{}, partial
		}
		switch b[1] {
		case 'D':
			if !need(3) {
				return Command{}, partial
			}
			return Command{Kind: KindSetDebug, Level: int8(b[2])}, complete
		case 'P':
			if !need(8) {
				return Command{}, partial
			}
			return Command{
				Kind:    KindSetCoeff,
				Channel: int(int8(b[2])),
				Index:   int(int8(b[3])),
				Value:   math32.Float32frombits(binary.LittleEndian.Uint32(b[4:8])),
			}, complete
		case 'B':
			if !need(6) {
				return Command{}, partial
			}
			return Command{Kind: KindSetBoardID, BoardID: binary.LittleEndian.Uint32(b[2:6])}, complete
		case 'W':
			return Command{Kind: KindStore}, complete
		}
		return Command{}, invalid
	}
	return Command{}, invalid
}

var queryLetters = map[packet.RespType]byte{
	packet.RespT:    'T',
	packet.RespP:    'P',
	packet.RespTref: 'R',
	packet.RespADC:  'A',
}

var statusLetters = map[packet.RespType]byte{
	packet.RespStatusT: 'T',
	packet.RespStatusP: 'P',
}

// Encode serializes a command for transmission to the board.
func Encode(cmd Command) ([]byte, error) {
	switch cmd.Kind {
	case KindQuery:
		l, ok := queryLetters[cmd.Resp]
		if !ok {
			return nil, fmt.Errorf("query: unsupported response type %s", cmd.Resp)
		}
		if err := checkChannel(cmd.Channel); err != nil {
			return nil, err
		}
		return []byte{'A', l, byte('0' + cmd.Channel), '\n'}, nil
	case KindBoardID:
		return []byte("AB\n"), nil
	case KindStatus:
		l, ok := statusLetters[cmd.Resp]
		if !ok {
			return nil, fmt.Errorf("status: unsupported response type %s", cmd.Resp)
		}
		if err := checkChannel(cmd.Channel); err != nil {
			return nil, err
		}
		return []byte{'A', 'S', l, byte('0' + cmd.Channel), '\n'}, nil
	case KindRun:
		return binary.LittleEndian.AppendUint32([]byte{'R'}, cmd.Count), nil
	case KindStop:
		return []byte{'S'}, nil
	case KindSetDebug:
		return []byte{'C', 'D', byte(cmd.Level)}, nil
	case KindSetCoeff:
		if cmd.Channel < -128 || cmd.Channel > 127 || cmd.Index < -128 || cmd.Index > 127 {
			return nil, fmt.Errorf("set-coeff: channel %d or index %d out of range", cmd.Channel, cmd.Index)
		}
		b := []byte{'C', 'P', byte(int8(cmd.Channel)), byte(int8(cmd.Index))}
		return binary.LittleEndian.AppendUint32(b, math32.Float32bits(cmd.Value)), nil
	case KindSetBoardID:
		return binary.LittleEndian.AppendUint32([]byte{'C', 'B'}, cmd.BoardID), nil
	case KindStore:
		return []byte{'C', 'W'}, nil
	}
	return nil, fmt.Errorf("unknown command %s", cmd.Kind)
}

func checkChannel(ch int) error {
	if ch < 0 || ch > 9 {
		return fmt.Errorf("channel %d out of range", ch)
	}
	return nil
}
