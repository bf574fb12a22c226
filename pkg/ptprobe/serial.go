package ptprobe

import (
	"fmt"
	"sync"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// DefaultBaudRate is the UART speed of the probe firmware.
const DefaultBaudRate = 115200

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
	USB         bool
	VID, PID    string
	Serial      string
}

// Serial is a probe board attached to a serial port.
type Serial struct {
	Controller

	port     string
	baudRate int

	state     sync.RWMutex
	connected bool
}

// New creates a new Device instance with the specified port and baud rate.
func New(port string, baudRate int) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	return &Serial{
		port:     port,
		baudRate: baudRate,
	}
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(details))
	for _, d := range details {
		p := Port{
			Name:        d.Name,
			Description: d.Name,
			USB:         d.IsUSB,
		}
		if d.IsUSB {
			p.VID, p.PID, p.Serial = d.VID, d.PID, d.SerialNumber
			if d.Product != "" {
				p.Description = d.Product
			}
		}
		result = append(result, p)
	}
	return result, nil
}

// Connect opens the serial port and starts decoding frames.
func (d *Serial) Connect() error {
	d.state.Lock()
	defer d.state.Unlock()

	if d.connected {
		return fmt.Errorf("already connected")
	}

	port, err := serial.Open(d.port, &serial.Mode{
		BaudRate: d.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	d.attach(port)
	d.connected = true
	return nil
}

// Close closes the port.
func (d *Serial) Close() error {
	d.state.Lock()
	defer d.state.Unlock()

	if !d.connected {
		return nil
	}
	d.connected = false
	if err := d.detach(); err != nil {
		return fmt.Errorf("failed to close serial port %s: %w", d.port, err)
	}
	return nil
}

// IsConnected returns whether the device is currently connected.
func (d *Serial) IsConnected() bool {
	d.state.RLock()
	defer d.state.RUnlock()
	return d.connected
}
