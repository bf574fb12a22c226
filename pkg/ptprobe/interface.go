// Package ptprobe is the host side of the probe protocol: a serial client
// and a simulated board sharing one Controller.
package ptprobe

import (
	"context"

	"github.com/itohio/goptprobe/pkg/packet"
)

// Device defines the interface for probe boards (real or mocked).
type Device interface {
	Connect() error
	Close() error
	IsConnected() bool

	BoardID() (uint32, error)
	Temperature(ch int) (float32, error)
	RefTemperature(ch int) (float32, error)
	Pressure(ch int) (float32, error)
	RawADC(ch int) (float32, error)
	StatusT(ch int) (packet.StatusT, error)
	StatusP(ch int) (packet.StatusP, error)
	Run(ctx context.Context, n uint32, fn func(Sample) error) (int, error)

	SetDebugLevel(level int8) error
	SetPolyCoeffs(ch int, coeffs [3]float32) error
	SetBoardID(id uint32) error
	StoreConfig() error
}

// Ensure Serial implements Device.
var _ Device = (*Serial)(nil)

// Ensure Mock implements Device.
var _ Device = (*Mock)(nil)
