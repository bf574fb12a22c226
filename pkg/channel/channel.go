// Package channel holds the fixed logical channel table and orchestrates
// acquisition from the sensor bus and the analog reader.
package channel

import (
	"fmt"
	"io"
	"log"
	"time"

	"github.com/itohio/goptprobe/pkg/analog"
	"github.com/itohio/goptprobe/pkg/sensor"
)

const (
	// NumChannels is the number of temperature and pressure channel slots.
	NumChannels = 4
	// Unmapped is the device link of a temperature channel with no device.
	Unmapped = -1

	DefaultPollInterval = 2 * time.Millisecond
	DefaultMaxPolls     = 500
)

// Temperature is one thermocouple channel.
type Temperature struct {
	Index int
	T     float32
	Tref  float32
	// Fault is 0 when ok, a device fault code when positive, and a
	// communication error code when negative.
	Fault sensor.Code
	// Device indexes the sensor bus device table, or Unmapped.
	Device int
}

// Mapped reports whether a device is linked to the channel.
func (t Temperature) Mapped() bool {
	return t.Device != Unmapped
}

// Pressure is one analog pressure channel.
type Pressure struct {
	Index   int
	Enabled bool
	Raw     float32
	P       float32
	Coeffs  [3]float32
}

// Conflict records a device whose channel id was already claimed.
type Conflict struct {
	Channel int
	Kept    int // device index linked to the channel
	Dropped int // device index ignored
}

func (c Conflict) String() string {
	return fmt.Sprintf("channel %d claimed by devices %d and %d", c.Channel, c.Kept, c.Dropped)
}

// Sensors is the part of the sensor bus used for acquisition.
type Sensors interface {
	StartConversion(index int) error
	ConversionComplete(index int) bool
	ReadScratchpad(index int) sensor.Code
	Device(index int) (sensor.DeviceRecord, bool)
}

var _ Sensors = (*sensor.Bus)(nil)

// Options tune acquisition.
type Options struct {
	// PollInterval is the delay before each conversion status poll.
	PollInterval time.Duration
	// MaxPolls bounds the wait for a conversion; exhaustion yields
	// sensor.Timeout.
	MaxPolls int
	// Sleep replaces time.Sleep, mostly for tests.
	Sleep  func(time.Duration)
	Logger *log.Logger
}

// Table is the channel table. Like the sensor bus it is owned by a single
// control loop and is not safe for concurrent use.
type Table struct {
	T [NumChannels]Temperature
	P [NumChannels]Pressure

	sensors Sensors
	adc     *analog.Reader
	opts    Options
}

// NewTable creates a table with every temperature channel unmapped and
// pressure channels enabled where the reader has an input.
func NewTable(sensors Sensors, adc *analog.Reader, opts Options) *Table {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxPolls <= 0 {
		opts.MaxPolls = DefaultMaxPolls
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}

	t := &Table{
		sensors: sensors,
		adc:     adc,
		opts:    opts,
	}
	for i := range NumChannels {
		t.T[i] = Temperature{Index: i, Device: Unmapped}
		t.P[i] = Pressure{
			Index:   i,
			Enabled: adc.Has(i),
			Coeffs:  analog.DefaultCoeffs,
		}
	}
	return t
}

// MapChannels links each channel to the device reporting its id. Ids out
// of range are ignored; for duplicate ids the first device wins and every
// other claimant is returned as a Conflict.
func (t *Table) MapChannels(devices []sensor.DeviceRecord) []Conflict {
	for i := range t.T {
		t.T[i].Device = Unmapped
	}

	var conflicts []Conflict
	for idx, dev := range devices {
		ch := int(dev.ID)
		if ch < 0 || ch >= NumChannels {
			t.opts.Logger.Printf("map: device %s reports channel %d, ignored", dev.Addr, dev.ID)
			continue
		}
		if t.T[ch].Mapped() {
			c := Conflict{Channel: ch, Kept: t.T[ch].Device, Dropped: idx}
			t.opts.Logger.Printf("map: %s", c)
			conflicts = append(conflicts, c)
			continue
		}
		t.T[ch].Device = idx
	}
	return conflicts
}

// AcquireOne runs a conversion on the device of one channel and commits the
// result. Unmapped channels are left alone.
func (t *Table) AcquireOne(ch int) sensor.Code {
	if ch < 0 || ch >= NumChannels {
		return sensor.InvalidIndex
	}
	tc := &t.T[ch]
	if !tc.Mapped() {
		return sensor.Unmapped
	}

	if err := t.sensors.StartConversion(tc.Device); err != nil {
		code := sensor.CodeOf(err)
		tc.Fault = code
		return code
	}
	if !t.wait(tc.Device) {
		tc.Fault = sensor.Timeout
		return sensor.Timeout
	}
	return t.read(tc)
}

// AcquireAll starts one broadcast conversion and reads every mapped channel.
// It returns the first non-OK code, or OK.
func (t *Table) AcquireAll() sensor.Code {
	mapped := false
	for i := range t.T {
		if t.T[i].Mapped() {
			mapped = true
			break
		}
	}
	if !mapped {
		return sensor.OK
	}

	fail := func(code sensor.Code) sensor.Code {
		for i := range t.T {
			if t.T[i].Mapped() {
				t.T[i].Fault = code
			}
		}
		return code
	}
	if err := t.sensors.StartConversion(sensor.Broadcast); err != nil {
		return fail(sensor.CodeOf(err))
	}
	if !t.wait(sensor.Broadcast) {
		return fail(sensor.Timeout)
	}

	result := sensor.OK
	for i := range t.T {
		if !t.T[i].Mapped() {
			continue
		}
		if code := t.read(&t.T[i]); code != sensor.OK && result == sensor.OK {
			result = code
		}
	}
	return result
}

// wait polls for conversion completion within the poll budget.
func (t *Table) wait(index int) bool {
	for range t.opts.MaxPolls {
		t.opts.Sleep(t.opts.PollInterval)
		if t.sensors.ConversionComplete(index) {
			return true
		}
	}
	return false
}

// read fetches the scratchpad for a mapped channel and commits it: a clean
// read updates T and Tref, a device fault keeps T but updates Tref, and a
// communication error only records the code.
func (t *Table) read(tc *Temperature) sensor.Code {
	code := t.sensors.ReadScratchpad(tc.Device)
	switch {
	case code == sensor.OK:
		rec, _ := t.sensors.Device(tc.Device)
		tc.T = rec.ProbeT
		tc.Tref = rec.RefT
		tc.Fault = sensor.OK
	case code.IsFault():
		rec, _ := t.sensors.Device(tc.Device)
		tc.Tref = rec.RefT
		tc.Fault = code
	default:
		tc.Fault = code
	}
	return code
}

// AcquirePressure reads one analog channel and applies its calibration.
func (t *Table) AcquirePressure(ch int) sensor.Code {
	if ch < 0 || ch >= NumChannels {
		return sensor.InvalidIndex
	}
	pc := &t.P[ch]
	if !pc.Enabled {
		return sensor.Unmapped
	}
	raw, err := t.adc.Read(ch)
	if err != nil {
		t.opts.Logger.Printf("pressure %d: %v", ch, err)
		return sensor.Unmapped
	}
	pc.Raw = raw
	pc.P = analog.Calibrate(raw, pc.Coeffs)
	return sensor.OK
}

// AcquireAllPressure refreshes every enabled pressure channel.
func (t *Table) AcquireAllPressure() {
	for i := range t.P {
		if t.P[i].Enabled {
			t.AcquirePressure(i)
		}
	}
}

// SetCoeff replaces one calibration coefficient.
func (t *Table) SetCoeff(ch, idx int, v float32) error {
	if ch < 0 || ch >= NumChannels {
		return fmt.Errorf("pressure channel %d: %w", ch, sensor.InvalidIndex)
	}
	if idx < 0 || idx >= len(t.P[ch].Coeffs) {
		return fmt.Errorf("coefficient %d: %w", idx, sensor.InvalidIndex)
	}
	t.P[ch].Coeffs[idx] = v
	return nil
}

// SetEnabled switches a pressure channel on or off. Channels without an
// analog input cannot be enabled.
func (t *Table) SetEnabled(ch int, enabled bool) error {
	if ch < 0 || ch >= NumChannels {
		return fmt.Errorf("pressure channel %d: %w", ch, sensor.InvalidIndex)
	}
	if enabled && !t.adc.Has(ch) {
		return fmt.Errorf("pressure channel %d: %w", ch, analog.ErrNoInput)
	}
	t.P[ch].Enabled = enabled
	return nil
}
