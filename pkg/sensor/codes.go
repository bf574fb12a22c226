package sensor

import "fmt"

// Fault is the self-diagnostic result reported by a thermocouple converter.
type Fault uint8

const (
	FaultNone        Fault = 0
	FaultOpenCircuit Fault = 1
	FaultGroundShort Fault = 2
	FaultSupplyShort Fault = 4
	// FaultUnspecified marks a flagged fault that carries no code.
	FaultUnspecified Fault = 7
)

func (f Fault) String() string {
	switch f {
	case FaultNone:
		return "none"
	case FaultOpenCircuit:
		return "open circuit"
	case FaultGroundShort:
		return "short to ground"
	case FaultSupplyShort:
		return "short to supply"
	case FaultUnspecified:
		return "unspecified"
	default:
		return fmt.Sprintf("fault(%d)", uint8(f))
	}
}

// Code is the outcome of a bus exchange: 0 for a clean read, a positive
// Fault value for a device-reported fault, negative for communication
// errors. Codes travel verbatim in telemetry frames.
//
// Code implements error so negative codes can be returned directly.
type Code int8

const (
	OK           Code = 0
	Checksum     Code = -1 // CRC mismatch on a multi-byte read
	NoPresence   Code = -2 // bus reset saw no presence pulse
	InvalidIndex Code = -3 // device or channel index out of range
	Timeout      Code = -4 // conversion did not complete within the poll budget
	Unmapped     Code = -5 // channel has no device or is not configured
)

func (c Code) Error() string {
	switch c {
	case OK:
		return "ok"
	case Checksum:
		return "checksum mismatch"
	case NoPresence:
		return "no device presence"
	case InvalidIndex:
		return "invalid index"
	case Timeout:
		return "conversion timeout"
	case Unmapped:
		return "channel not mapped"
	}
	if c > 0 {
		return "device fault: " + Fault(c).String()
	}
	return fmt.Sprintf("communication error %d", int8(c))
}

// IsFault reports a device self-diagnosed fault.
func (c Code) IsFault() bool { return c > 0 }

// IsCommError reports a failed exchange.
func (c Code) IsCommError() bool { return c < 0 }

// CodeOf extracts a Code from an error returned by this package.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	return Checksum
}
