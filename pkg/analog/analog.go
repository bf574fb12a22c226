// Package analog reads pressure transducers through ADC inputs and applies
// the per-channel calibration polynomial.
package analog

import (
	"errors"
	"fmt"
)

// MaxChannels is the number of analog pressure inputs.
const MaxChannels = 4

// DefaultCoeffs converts a normalized reading to kPa for the stock
// transducer.
var DefaultCoeffs = [3]float32{-97.35308, 920.6867, -14.86687}

// ErrNoInput is returned for channels without an ADC input.
var ErrNoInput = errors.New("no analog input")

// Input is a single ADC channel. Get returns a reading scaled to the full
// 16-bit range, which is what TinyGo's machine.ADC provides.
type Input interface {
	Get() uint16
}

// Reader maps channel numbers to ADC inputs.
type Reader struct {
	inputs [MaxChannels]Input
}

// NewReader creates a reader; inputs are assigned to channels in order.
func NewReader(inputs ...Input) *Reader {
	r := &Reader{}
	for i, in := range inputs {
		if i >= MaxChannels {
			break
		}
		r.inputs[i] = in
	}
	return r
}

// Has reports whether a channel has an input attached.
func (r *Reader) Has(ch int) bool {
	return r != nil && ch >= 0 && ch < MaxChannels && r.inputs[ch] != nil
}

// Read returns the normalized code of a channel in [0,1].
func (r *Reader) Read(ch int) (float32, error) {
	if ch < 0 || ch >= MaxChannels {
		return 0, fmt.Errorf("channel %d out of range", ch)
	}
	if !r.Has(ch) {
		return 0, ErrNoInput
	}
	return float32(r.inputs[ch].Get()) / 0xFFFF, nil
}

// Calibrate evaluates c0 + raw*(c1 + raw*c2).
func Calibrate(raw float32, c [3]float32) float32 {
	return c[0] + raw*(c[1]+raw*c[2])
}
